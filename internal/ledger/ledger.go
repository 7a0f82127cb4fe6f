// Package ledger records off-processor payments: cash handed over, a UPI
// transfer outside the platform, and the like. The ledger never moves money;
// it only derives a payment state from what the parties report, and that
// state never overrides the processor's escrow path.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chorebay/chorebay/internal/chore"
	"github.com/chorebay/chorebay/internal/idgen"
	"github.com/chorebay/chorebay/internal/logging"
	"github.com/chorebay/chorebay/internal/metrics"
)

var (
	ErrEntryNotFound  = errors.New("ledger entry not found")
	ErrNotOwner       = errors.New("caller is not the chore owner")
	ErrNotRecordable  = errors.New("chore is not in a recordable state")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidMethod = errors.New("invalid payment method")
	ErrInvalidFlow   = errors.New("invalid payment direction")
)

// Direction distinguishes who paid whom.
type Direction string

const (
	// DirectionCustomerToOwner is the customer settling the chore price
	// with the platform account holder off-processor.
	DirectionCustomerToOwner Direction = "CUSTOMER_TO_OWNER"
	// DirectionOwnerToWorker is the owner paying the worker directly.
	DirectionOwnerToWorker Direction = "OWNER_TO_WORKER"
)

// Method is how the money changed hands.
type Method string

const (
	MethodCash         Method = "CASH"
	MethodUPI          Method = "UPI"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodCard         Method = "CARD"
	MethodOther        Method = "OTHER"
)

func validMethod(m Method) bool {
	switch m {
	case MethodCash, MethodUPI, MethodBankTransfer, MethodCard, MethodOther:
		return true
	}
	return false
}

// Entry is one recorded off-processor payment.
type Entry struct {
	ID         string    `json:"id"`
	ChoreID    string    `json:"choreId"`
	RecordedBy string    `json:"recordedBy"`
	Direction  Direction `json:"direction"`
	Method     Method    `json:"method"`
	Amount     int64     `json:"amount"` // minor units
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DeriveState classifies the customer-side total against the chore's price.
// Pure: the same entries always yield the same state, so re-recording or
// replaying entries cannot corrupt it.
func DeriveState(entries []*Entry, priceBasis int64) chore.ManualState {
	var total int64
	for _, e := range entries {
		if e.Direction == DirectionCustomerToOwner {
			total += e.Amount
		}
	}
	switch {
	case total <= 0:
		return chore.ManualNone
	case priceBasis > 0 && total >= priceBasis:
		return chore.ManualPaid
	default:
		return chore.ManualPartial
	}
}

// recordableStatus limits the ledger to chores where work is actually
// underway or settled. Unassigned and cancelled chores have nothing to pay
// for.
func recordableStatus(s chore.Status) bool {
	switch s {
	case chore.StatusDraft, chore.StatusPublished,
		chore.StatusCancelled, chore.StatusCancellationRequested:
		return false
	}
	return true
}

// Store persists ledger entries.
type Store interface {
	Create(ctx context.Context, e *Entry) error
	ListByChore(ctx context.Context, choreID string) ([]*Entry, error)
}

// Chores is the slice of the chore service the ledger drives.
type Chores interface {
	Get(ctx context.Context, id string) (*chore.Chore, error)
	SetManualState(ctx context.Context, choreID string, state chore.ManualState) error
}

// Notifier emits ledger notifications. Fire-and-forget; optional.
type Notifier interface {
	EmitManualRecorded(counterpartyID, choreID, entryID string, amount int64, direction string)
}

// Service implements manual ledger business logic.
type Service struct {
	store    Store
	chores   Chores
	notifier Notifier
}

// NewService creates a new ledger service.
func NewService(store Store, chores Chores) *Service {
	return &Service{store: store, chores: chores}
}

// WithNotifier wires outbound notifications.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// RecordRequest contains the parameters for recording a manual payment.
type RecordRequest struct {
	Direction Direction `json:"direction" binding:"required"`
	Method    Method    `json:"method" binding:"required"`
	Amount    int64     `json:"amount" binding:"required"`
	Notes     string    `json:"notes"`
}

// Record appends a manual payment and recomputes the chore's manual
// payment state from the full entry list.
func (s *Service) Record(ctx context.Context, callerID, choreID string, req RecordRequest) (*Entry, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !validMethod(req.Method) {
		return nil, ErrInvalidMethod
	}
	if req.Direction != DirectionCustomerToOwner && req.Direction != DirectionOwnerToWorker {
		return nil, ErrInvalidFlow
	}

	c, err := s.chores.Get(ctx, choreID)
	if err != nil {
		return nil, err
	}
	// Only the owner vouches for money changing hands; the worker's side
	// is implied by the derived state.
	if c.CreatedBy != callerID {
		return nil, ErrNotOwner
	}
	if !recordableStatus(c.Status) {
		return nil, fmt.Errorf("%w: status %s", ErrNotRecordable, c.Status)
	}

	e := &Entry{
		ID:         idgen.WithPrefix("led_"),
		ChoreID:    choreID,
		RecordedBy: callerID,
		Direction:  req.Direction,
		Method:     req.Method,
		Amount:     req.Amount,
		Notes:      req.Notes,
		CreatedAt:  time.Now(),
	}
	if err := s.store.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to record manual payment: %w", err)
	}

	entries, err := s.store.ListByChore(ctx, choreID)
	if err != nil {
		return nil, err
	}
	state := DeriveState(entries, c.PriceBasis())
	if err := s.chores.SetManualState(ctx, choreID, state); err != nil {
		return nil, fmt.Errorf("failed to update manual payment state: %w", err)
	}

	metrics.ManualPaymentsTotal.WithLabelValues(string(req.Direction)).Inc()
	if s.notifier != nil {
		counterparty := c.CreatedBy
		if callerID == c.CreatedBy {
			counterparty = c.AssignedWorker
		}
		if counterparty != "" {
			s.notifier.EmitManualRecorded(counterparty, choreID, e.ID, e.Amount, string(e.Direction))
		}
	}
	logging.FromContext(ctx).Info("manual payment recorded",
		"choreId", choreID, "entryId", e.ID, "direction", req.Direction,
		"method", req.Method, "amount", req.Amount, "derivedState", state)
	return e, nil
}

// List returns all manual payments for a chore, newest first.
func (s *Service) List(ctx context.Context, choreID string) ([]*Entry, error) {
	return s.store.ListByChore(ctx, choreID)
}
