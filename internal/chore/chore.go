// Package chore tracks a chore's lifecycle jointly with its payment lifecycle.
//
// A chore's row is the single source of truth mutated by five call paths
// (order creation, webhook ingestion, payout release, dispute resolution,
// manual ledger). Every mutation is a guarded transition: read current state,
// verify it is an allowed predecessor, write the successor.
package chore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chorebay/chorebay/internal/idgen"
	"github.com/chorebay/chorebay/internal/pagination"
	"github.com/chorebay/chorebay/internal/syncutil"
)

var (
	ErrChoreNotFound   = errors.New("chore not found")
	ErrNotOwner        = errors.New("caller is not the chore owner")
	ErrNotWorker       = errors.New("caller is not the assigned worker")
	ErrInvalidStatus   = errors.New("invalid chore status for this operation")
	ErrNoWorker        = errors.New("chore has no assigned worker")
	ErrDisputeOpen     = errors.New("an open dispute blocks this operation")
	ErrNotReservable   = errors.New("chore is not payable in its current payment state")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrIllegalMove     = errors.New("illegal chore status transition")
	ErrTerminal        = errors.New("chore is in a terminal status")
	ErrWorkerSameAsOwner = errors.New("worker cannot be the chore owner")
	ErrInvalidCursor   = errors.New("invalid pagination cursor")
)

// Status is the chore lifecycle state.
type Status string

const (
	StatusDraft                 Status = "DRAFT"
	StatusPublished             Status = "PUBLISHED"
	StatusAssigned              Status = "ASSIGNED"
	StatusFunded                Status = "FUNDED"
	StatusInProgress            Status = "IN_PROGRESS"
	StatusCompleted             Status = "COMPLETED"
	StatusClosed                Status = "CLOSED"
	StatusCancelled             Status = "CANCELLED"
	StatusCancellationRequested Status = "CANCELLATION_REQUESTED"
)

// EscrowState is the processor-path payment state of a chore.
// Owned exclusively by the escrow components; the manual ledger never
// writes it.
type EscrowState string

const (
	EscrowNone     EscrowState = "NONE"
	EscrowUnpaid   EscrowState = "UNPAID"
	EscrowPending  EscrowState = "PENDING"
	EscrowFunded   EscrowState = "FUNDED"
	EscrowSettled  EscrowState = "SETTLED"
	EscrowRefunded EscrowState = "REFUNDED"
)

// ManualState is the manual-ledger payment state of a chore.
// Owned exclusively by the manual ledger; escrow components never write it.
type ManualState string

const (
	ManualNone    ManualState = "NONE"
	ManualPartial ManualState = "CUSTOMER_PARTIAL"
	ManualPaid    ManualState = "CUSTOMER_PAID"
)

// allowedTransitions is the chore status machine. Status advances only
// forward except the CANCELLATION_REQUESTED side branch. CLOSED and
// CANCELLED are terminal. Dispute resolution may cancel or close any
// non-terminal chore, hence the extra CLOSED/CANCELLED successors.
var allowedTransitions = map[Status][]Status{
	StatusDraft:                 {StatusPublished, StatusCancelled},
	StatusPublished:             {StatusAssigned, StatusCancelled},
	StatusAssigned:              {StatusFunded, StatusCancelled, StatusCancellationRequested},
	StatusFunded:                {StatusInProgress, StatusClosed, StatusCancelled, StatusCancellationRequested},
	StatusInProgress:            {StatusCompleted, StatusClosed, StatusCancelled, StatusCancellationRequested},
	StatusCompleted:             {StatusClosed, StatusCancelled},
	StatusCancellationRequested: {StatusCancelled, StatusClosed},
	StatusClosed:                nil,
	StatusCancelled:             nil,
}

// CanTransition reports whether from -> to is a legal status move.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Chore is the authoritative record of a task.
type Chore struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description,omitempty"`
	CreatedBy      string      `json:"createdBy"`
	AssignedWorker string      `json:"assignedWorker,omitempty"`
	Status         Status      `json:"status"`
	EscrowState    EscrowState `json:"escrowState"`
	ManualState    ManualState `json:"manualState"`
	Budget         int64       `json:"budget"`      // minor units
	AgreedPrice    int64       `json:"agreedPrice"` // minor units, set at assignment
	ClosedAt       *time.Time  `json:"closedAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// IsTerminal returns true if the chore is in a final status.
func (c *Chore) IsTerminal() bool {
	return c.Status == StatusClosed || c.Status == StatusCancelled
}

// PriceBasis is the authoritative price for split computation and the
// manual ledger's paid/partial classification.
func (c *Chore) PriceBasis() int64 {
	if c.AgreedPrice > 0 {
		return c.AgreedPrice
	}
	return c.Budget
}

// transition applies a guarded status move in place.
func (c *Chore) transition(to Status) error {
	if c.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, c.Status)
	}
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalMove, c.Status, to)
	}
	c.Status = to
	return nil
}

// EffectivePaymentStatus derives a single display status from the two
// independent payment paths. The escrow path wins whenever the processor
// has been engaged; the manual ledger fills in otherwise.
func (c *Chore) EffectivePaymentStatus() string {
	switch c.EscrowState {
	case EscrowPending:
		return "PENDING"
	case EscrowFunded:
		return "FUNDED"
	case EscrowSettled:
		return "SETTLED"
	case EscrowRefunded:
		return "REFUNDED"
	}
	switch c.ManualState {
	case ManualPartial:
		return "CUSTOMER_PARTIAL"
	case ManualPaid:
		return "CUSTOMER_PAID"
	}
	if c.EscrowState == EscrowUnpaid {
		return "UNPAID"
	}
	return "NONE"
}

// Store persists chore data.
type Store interface {
	Create(ctx context.Context, c *Chore) error
	Get(ctx context.Context, id string) (*Chore, error)
	Update(ctx context.Context, c *Chore) error
	// ListByUser returns chores owned by or assigned to the user, newest
	// first. A non-nil cursor restricts results to chores strictly older
	// than the cursor position.
	ListByUser(ctx context.Context, userID string, limit int, before *pagination.Cursor) ([]*Chore, error)
	// ReserveEscrow atomically moves escrow_state UNPAID -> PENDING.
	// Returns ErrNotReservable if the chore is in any other payment state,
	// which is how two concurrent order-creation requests are serialized.
	ReserveEscrow(ctx context.Context, id string) error
}

// DisputeChecker reports whether a chore has an unresolved dispute.
// Implemented by the dispute service; consumed by the approval path.
type DisputeChecker interface {
	HasOpenDispute(ctx context.Context, choreID string) (bool, error)
}

// PayoutReleaser releases the held worker transfer for a chore.
// A release failure is soft: it is recorded for retry and must never
// block the approval path from closing the chore.
type PayoutReleaser interface {
	Release(ctx context.Context, choreID, releasedBy string) error
}

// Service implements chore lifecycle business logic.
type Service struct {
	store    Store
	disputes DisputeChecker
	releaser PayoutReleaser
	locks    syncutil.ShardedMutex // per-chore locks to serialize state transitions
}

// NewService creates a new chore service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// WithDisputeChecker wires the approval path's dispute exclusivity check.
func (s *Service) WithDisputeChecker(d DisputeChecker) *Service {
	s.disputes = d
	return s
}

// WithReleaser wires the payout releaser triggered on approval.
func (s *Service) WithReleaser(r PayoutReleaser) *Service {
	s.releaser = r
	return s
}

// CreateRequest contains the parameters for creating a chore.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Budget      int64  `json:"budget" binding:"required"`
}

// Create creates a new chore in PUBLISHED status owned by the caller.
func (s *Service) Create(ctx context.Context, callerID string, req CreateRequest) (*Chore, error) {
	if req.Budget <= 0 {
		return nil, ErrInvalidPrice
	}

	now := time.Now()
	c := &Chore{
		ID:          idgen.WithPrefix("chr_"),
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   callerID,
		Status:      StatusPublished,
		EscrowState: EscrowNone,
		ManualState: ManualNone,
		Budget:      req.Budget,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create chore: %w", err)
	}
	return c, nil
}

// Assign moves a PUBLISHED chore to ASSIGNED with the given worker and
// agreed price, and opens the escrow path (UNPAID).
func (s *Service) Assign(ctx context.Context, callerID, choreID, workerID string, agreedPrice int64) (*Chore, error) {
	unlock := s.locks.Lock(choreID)
	defer unlock()

	c, err := s.store.Get(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if c.CreatedBy != callerID {
		return nil, ErrNotOwner
	}
	if workerID == callerID {
		return nil, ErrWorkerSameAsOwner
	}
	if agreedPrice <= 0 {
		return nil, ErrInvalidPrice
	}
	if err := c.transition(StatusAssigned); err != nil {
		return nil, err
	}

	c.AssignedWorker = workerID
	c.AgreedPrice = agreedPrice
	c.EscrowState = EscrowUnpaid
	c.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Start moves a FUNDED chore to IN_PROGRESS. Worker-only: funding is the
// signal that escrow is held and work may begin.
func (s *Service) Start(ctx context.Context, callerID, choreID string) (*Chore, error) {
	return s.workerTransition(ctx, callerID, choreID, StatusFunded, StatusInProgress)
}

// Complete moves an IN_PROGRESS chore to COMPLETED. Worker-only.
func (s *Service) Complete(ctx context.Context, callerID, choreID string) (*Chore, error) {
	return s.workerTransition(ctx, callerID, choreID, StatusInProgress, StatusCompleted)
}

func (s *Service) workerTransition(ctx context.Context, callerID, choreID string, from, to Status) (*Chore, error) {
	unlock := s.locks.Lock(choreID)
	defer unlock()

	c, err := s.store.Get(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if c.AssignedWorker == "" {
		return nil, ErrNoWorker
	}
	if c.AssignedWorker != callerID {
		return nil, ErrNotWorker
	}
	if c.Status != from {
		return nil, fmt.Errorf("%w: chore must be %s, currently %s", ErrInvalidStatus, from, c.Status)
	}
	if err := c.transition(to); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Approve closes a COMPLETED chore and triggers the worker payout.
//
// The release call is a soft step: its failure is recorded by the releaser
// for administrative retry and never blocks the COMPLETED -> CLOSED
// transition. The dispute check is a hard step: an unresolved dispute
// rejects the approval outright.
func (s *Service) Approve(ctx context.Context, callerID, choreID string) (*Chore, error) {
	unlock := s.locks.Lock(choreID)
	defer unlock()

	c, err := s.store.Get(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if c.CreatedBy != callerID {
		return nil, ErrNotOwner
	}
	if c.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: chore must be COMPLETED, currently %s", ErrInvalidStatus, c.Status)
	}

	if s.disputes != nil {
		open, err := s.disputes.HasOpenDispute(ctx, choreID)
		if err != nil {
			return nil, fmt.Errorf("failed to check disputes: %w", err)
		}
		if open {
			return nil, ErrDisputeOpen
		}
	}

	// Money movement first, state closure second; but a release failure
	// does not stop the closure. The releaser records the outcome.
	if s.releaser != nil {
		_ = s.releaser.Release(ctx, choreID, callerID)
	}

	// Re-read: the releaser updates the chore's escrow state on success.
	c, err = s.store.Get(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if err := c.transition(StatusClosed); err != nil {
		return nil, err
	}
	now := time.Now()
	c.ClosedAt = &now
	c.UpdatedAt = now

	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RequestCancellation branches an active chore into CANCELLATION_REQUESTED.
func (s *Service) RequestCancellation(ctx context.Context, callerID, choreID string) (*Chore, error) {
	unlock := s.locks.Lock(choreID)
	defer unlock()

	c, err := s.store.Get(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if c.CreatedBy != callerID && c.AssignedWorker != callerID {
		return nil, ErrNotOwner
	}
	if err := c.transition(StatusCancellationRequested); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Cancel cancels a chore that has not been funded. Funded chores must go
// through the cancellation-request branch or a dispute.
func (s *Service) Cancel(ctx context.Context, callerID, choreID string) (*Chore, error) {
	unlock := s.locks.Lock(choreID)
	defer unlock()

	c, err := s.store.Get(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if c.CreatedBy != callerID {
		return nil, ErrNotOwner
	}
	if c.EscrowState == EscrowFunded || c.EscrowState == EscrowPending {
		return nil, fmt.Errorf("%w: funded chores cannot be cancelled directly", ErrInvalidStatus)
	}
	if err := c.transition(StatusCancelled); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a chore by ID.
func (s *Service) Get(ctx context.Context, id string) (*Chore, error) {
	return s.store.Get(ctx, id)
}

// ListByUser returns chores a user owns or is assigned to, newest first,
// plus an opaque cursor for the next page ("" when exhausted).
func (s *Service) ListByUser(ctx context.Context, userID string, limit int, cursor string) ([]*Chore, string, error) {
	if limit <= 0 {
		limit = 50
	}

	before, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", ErrInvalidCursor
	}

	// Fetch one extra row to learn whether another page exists.
	items, err := s.store.ListByUser(ctx, userID, limit+1, before)
	if err != nil {
		return nil, "", err
	}

	items, next, _ := pagination.ComputePage(items, limit, func(c *Chore) (time.Time, string) {
		return c.CreatedAt, c.ID
	})
	return items, next, nil
}
