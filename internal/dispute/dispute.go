// Package dispute handles conflict arbitration for chores. Opening a
// dispute freezes the approval path; an admin verdict moves money first
// and then resolves the dispute and the chore together in one atomic
// write, so a crash can strand money ahead of state but never state ahead
// of money.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chorebay/chorebay/internal/chore"
	"github.com/chorebay/chorebay/internal/escrow"
	"github.com/chorebay/chorebay/internal/idgen"
	"github.com/chorebay/chorebay/internal/logging"
	"github.com/chorebay/chorebay/internal/metrics"
)

var (
	ErrDisputeNotFound = errors.New("dispute not found")
	ErrDisputeExists   = errors.New("chore already has an open dispute")
	ErrNotParty        = errors.New("caller is not a party to this chore")
	ErrAlreadyResolved = errors.New("dispute is already resolved")
	ErrInvalidAction   = errors.New("invalid resolution action")
	ErrChoreClosed     = errors.New("cannot dispute a terminal chore")
)

// Status is the dispute lifecycle state.
type Status string

const (
	StatusOpen                 Status = "OPEN"
	StatusInReview             Status = "IN_REVIEW"
	StatusResolvedRefundClient Status = "RESOLVED_REFUND_CLIENT"
	StatusResolvedPayWorker    Status = "RESOLVED_PAY_WORKER"
	StatusResolvedManual       Status = "RESOLVED_MANUAL"
)

// IsOpen reports whether the dispute still blocks approval.
func (s Status) IsOpen() bool {
	return s == StatusOpen || s == StatusInReview
}

// Action is an admin's resolution verdict.
type Action string

const (
	ActionRefundClient Action = "REFUND_CLIENT"
	ActionPayWorker    Action = "PAY_WORKER"
	ActionManual       Action = "MANUAL"
)

func (a Action) resolvedStatus() (Status, bool) {
	switch a {
	case ActionRefundClient:
		return StatusResolvedRefundClient, true
	case ActionPayWorker:
		return StatusResolvedPayWorker, true
	case ActionManual:
		return StatusResolvedManual, true
	}
	return "", false
}

// Dispute is one conflict raised against a chore. AmountRefunded and
// WorkerPayoutAdjustment are audit fields set at resolution time; they
// record the admin's verdict, not a second ledger.
type Dispute struct {
	ID                     string     `json:"id"`
	ChoreID                string     `json:"choreId"`
	RaisedBy               string     `json:"raisedBy"`
	Reason                 string     `json:"reason"`
	Status                 Status     `json:"status"`
	Resolution             Action     `json:"resolution,omitempty"`
	ResolvedBy             string     `json:"resolvedBy,omitempty"`
	ResolutionNotes        string     `json:"resolutionNotes,omitempty"`
	RefundID               string     `json:"refundId,omitempty"`
	AmountRefunded         int64      `json:"amountRefunded,omitempty"`
	WorkerPayoutAdjustment int64      `json:"workerPayoutAdjustment,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
	ResolvedAt             *time.Time `json:"resolvedAt,omitempty"`
}

// ChoreResolution is the chore-side write that lands in the same
// transaction as the dispute's resolution. A terminal chore keeps its
// status: the dispute still resolves and the escrow side still moves, but
// CLOSED and CANCELLED are never overwritten.
type ChoreResolution struct {
	ChoreID string
	Status  chore.Status
	// Escrow, when non-empty, overwrites the chore's escrow state.
	Escrow chore.EscrowState
}

// Store persists disputes. ResolveAtomic applies the dispute update and the
// chore resolution as one unit; a nil resolution updates the dispute alone.
type Store interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	Update(ctx context.Context, d *Dispute) error
	ListByChore(ctx context.Context, choreID string) ([]*Dispute, error)
	ListByStatus(ctx context.Context, statuses []Status, limit int) ([]*Dispute, error)
	HasOpenByChore(ctx context.Context, choreID string) (bool, error)
	ResolveAtomic(ctx context.Context, d *Dispute, cr *ChoreResolution) error
}

// Money is the slice of the escrow service disputes move money through.
type Money interface {
	// RefundForDispute refunds amount minor units of the chore's captured
	// payment, or the full captured amount when amount is zero. It returns
	// the processor refund ID and the amount actually refunded.
	RefundForDispute(ctx context.Context, choreID string, amount int64) (string, int64, error)
	Release(ctx context.Context, choreID, releasedBy string) error
}

// Chores reads chore records for dispute preconditions.
type Chores interface {
	Get(ctx context.Context, id string) (*chore.Chore, error)
}

// Notifier emits dispute lifecycle notifications. Fire-and-forget; optional.
type Notifier interface {
	EmitDisputeOpened(counterpartyID, disputeID, choreID, raisedBy string)
	EmitDisputeResolved(userID, disputeID, choreID, action string)
}

// Service implements dispute business logic.
type Service struct {
	store    Store
	chores   Chores
	money    Money
	notifier Notifier
}

// NewService creates a new dispute service.
func NewService(store Store, chores Chores, money Money) *Service {
	return &Service{store: store, chores: chores, money: money}
}

// WithNotifier wires outbound notifications.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Open raises a dispute on a chore. Only the owner or the assigned worker
// may open one, and a chore carries at most one open dispute at a time.
func (s *Service) Open(ctx context.Context, callerID, choreID, reason string) (*Dispute, error) {
	c, err := s.chores.Get(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if c.CreatedBy != callerID && c.AssignedWorker != callerID {
		return nil, ErrNotParty
	}
	if c.IsTerminal() {
		return nil, ErrChoreClosed
	}

	open, err := s.store.HasOpenByChore(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, ErrDisputeExists
	}

	now := time.Now()
	d := &Dispute{
		ID:        idgen.WithPrefix("dsp_"),
		ChoreID:   choreID,
		RaisedBy:  callerID,
		Reason:    reason,
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create dispute: %w", err)
	}

	if s.notifier != nil {
		counterparty := c.CreatedBy
		if callerID == c.CreatedBy {
			counterparty = c.AssignedWorker
		}
		if counterparty != "" {
			s.notifier.EmitDisputeOpened(counterparty, d.ID, choreID, callerID)
		}
	}

	logging.FromContext(ctx).Info("dispute opened",
		"disputeId", d.ID, "choreId", choreID, "raisedBy", callerID)
	return d, nil
}

// Review marks an OPEN dispute as being looked at.
func (s *Service) Review(ctx context.Context, adminID, disputeID string) (*Dispute, error) {
	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.Status.IsOpen() {
		return nil, ErrAlreadyResolved
	}
	if d.Status == StatusInReview {
		return d, nil
	}

	d.Status = StatusInReview
	d.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Resolution carries an admin verdict. AmountRefunded limits a
// REFUND_CLIENT refund to a partial amount; zero means the full captured
// amount. WorkerPayoutAdjustment is recorded for audit only.
type Resolution struct {
	Action                 Action
	Notes                  string
	AmountRefunded         int64
	WorkerPayoutAdjustment int64
}

// Resolve applies an admin verdict.
//
// Money moves outside the transaction, state inside it. A failed refund
// aborts the resolution and leaves the dispute open for another attempt;
// a failed payout release is soft (recorded for retry) because the chore
// closing is not allowed to hang on the processor. MANUAL touches only the
// dispute: no money moves and the chore keeps whatever state it is in.
func (s *Service) Resolve(ctx context.Context, adminID, disputeID string, r Resolution) (*Dispute, error) {
	resolved, ok := r.Action.resolvedStatus()
	if !ok {
		return nil, ErrInvalidAction
	}

	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.Status.IsOpen() {
		return nil, fmt.Errorf("%w: status %s", ErrAlreadyResolved, d.Status)
	}

	var cr *ChoreResolution
	log := logging.FromContext(ctx)

	switch r.Action {
	case ActionRefundClient:
		cr = &ChoreResolution{ChoreID: d.ChoreID, Status: chore.StatusCancelled}
		refundID, refunded, err := s.money.RefundForDispute(ctx, d.ChoreID, r.AmountRefunded)
		switch {
		case err == nil:
			d.RefundID = refundID
			d.AmountRefunded = refunded
			cr.Escrow = chore.EscrowRefunded
		case errors.Is(err, escrow.ErrNoCapturedPayment):
			// Nothing was ever captured: resolve state-only.
			log.Info("refund resolution with no captured payment",
				"disputeId", d.ID, "choreId", d.ChoreID)
		default:
			return nil, fmt.Errorf("refund failed, dispute left open: %w", err)
		}

	case ActionPayWorker:
		cr = &ChoreResolution{ChoreID: d.ChoreID, Status: chore.StatusClosed}
		if err := s.money.Release(ctx, d.ChoreID, adminID); err != nil {
			// Recorded by the releaser; an admin retries via the release
			// endpoint after the chore closes.
			log.Error("payout release failed during resolution",
				"disputeId", d.ID, "choreId", d.ChoreID, "error", err)
		}

	case ActionManual:
		// Out-of-band settlement: an explicit admin override that leaves
		// the chore untouched.
	}

	now := time.Now()
	d.Status = resolved
	d.Resolution = r.Action
	d.ResolvedBy = adminID
	d.ResolutionNotes = r.Notes
	d.WorkerPayoutAdjustment = r.WorkerPayoutAdjustment
	d.UpdatedAt = now
	d.ResolvedAt = &now

	if err := s.store.ResolveAtomic(ctx, d, cr); err != nil {
		return nil, fmt.Errorf("failed to resolve dispute: %w", err)
	}

	metrics.DisputesResolvedTotal.WithLabelValues(string(r.Action)).Inc()
	if s.notifier != nil {
		if c, getErr := s.chores.Get(ctx, d.ChoreID); getErr == nil {
			s.notifier.EmitDisputeResolved(c.CreatedBy, d.ID, d.ChoreID, string(r.Action))
			if c.AssignedWorker != "" {
				s.notifier.EmitDisputeResolved(c.AssignedWorker, d.ID, d.ChoreID, string(r.Action))
			}
		}
	}
	log.Info("dispute resolved",
		"disputeId", d.ID, "choreId", d.ChoreID, "action", r.Action, "resolvedBy", adminID)
	return d, nil
}

// Get returns a dispute by ID.
func (s *Service) Get(ctx context.Context, id string) (*Dispute, error) {
	return s.store.Get(ctx, id)
}

// ListByChore returns all disputes for a chore.
func (s *Service) ListByChore(ctx context.Context, choreID string) ([]*Dispute, error) {
	return s.store.ListByChore(ctx, choreID)
}

// ListOpen returns unresolved disputes for the admin queue.
func (s *Service) ListOpen(ctx context.Context, limit int) ([]*Dispute, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByStatus(ctx, []Status{StatusOpen, StatusInReview}, limit)
}

// HasOpenDispute satisfies the chore service's approval-path check.
func (s *Service) HasOpenDispute(ctx context.Context, choreID string) (bool, error) {
	return s.store.HasOpenByChore(ctx, choreID)
}
