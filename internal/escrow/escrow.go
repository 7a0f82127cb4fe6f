// Package escrow moves money for chores: it creates processor orders that
// hold the full amount with the worker's share attached as an on-hold
// transfer, applies processor events to payment records, releases payouts
// on approval, and refunds captured payments for disputes.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chorebay/chorebay/internal/chore"
	"github.com/chorebay/chorebay/internal/idgen"
	"github.com/chorebay/chorebay/internal/logging"
	"github.com/chorebay/chorebay/internal/metrics"
	"github.com/chorebay/chorebay/internal/processor"
	"github.com/chorebay/chorebay/internal/syncutil"
)

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrOrderExists         = errors.New("an active order already exists for this chore")
	ErrNotOrderable        = errors.New("chore is not in an orderable state")
	ErrNoCapturedPayment   = errors.New("no captured payment for this chore")
	ErrAlreadyReleased     = errors.New("worker payout already released")
	ErrReleaseNotNeeded    = errors.New("no failed release to retry")
	ErrNotOwner            = errors.New("caller is not the chore owner")
	ErrNoPayoutAccount     = errors.New("worker has no linked payout account")
	ErrInvalidRefundAmount = errors.New("refund amount exceeds the captured amount")
)

// PaymentStatus is the lifecycle of a single escrow payment attempt.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Payment records one escrow order and its settlement split.
// Amount = PlatformFee + WorkerPayout always.
type Payment struct {
	ID                 string        `json:"id"`
	ChoreID            string        `json:"choreId"`
	OrderID            string        `json:"orderId"`
	ProcessorPaymentID string        `json:"processorPaymentId,omitempty"`
	TransferID         string        `json:"transferId,omitempty"`
	RefundID           string        `json:"refundId,omitempty"`
	Amount             int64         `json:"amount"`
	PlatformFee        int64         `json:"platformFee"`
	WorkerPayout       int64         `json:"workerPayout"`
	Currency           string        `json:"currency"`
	Status             PaymentStatus `json:"status"`
	FailureReason      string        `json:"failureReason,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// PayoutStatus is the outcome of one release attempt.
type PayoutStatus string

const (
	PayoutReleased PayoutStatus = "RELEASED"
	PayoutFailed   PayoutStatus = "FAILED"
)

// Payout records one attempt to lift the hold on the worker's transfer.
type Payout struct {
	ID            string       `json:"id"`
	ChoreID       string       `json:"choreId"`
	PaymentID     string       `json:"paymentId"`
	TransferID    string       `json:"transferId,omitempty"`
	Amount        int64        `json:"amount"`
	Status        PayoutStatus `json:"status"`
	ReleasedBy    string       `json:"releasedBy"`
	FailureReason string       `json:"failureReason,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// SplitAmount computes the platform/worker split for a price. The platform
// keeps 10% rounded half-up in minor units; the worker gets the remainder,
// so the two shares always sum to the full amount.
func SplitAmount(amount int64) (fee, payout int64) {
	fee = (amount + 5) / 10
	return fee, amount - fee
}

// Store persists payments and payouts.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	GetPaymentByOrderID(ctx context.Context, orderID string) (*Payment, error)
	GetPaymentByProcessorID(ctx context.Context, processorPaymentID string) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
	ListPaymentsByChore(ctx context.Context, choreID string) ([]*Payment, error)
	// LatestActivePayment returns the newest non-FAILED payment for a chore,
	// or ErrPaymentNotFound.
	LatestActivePayment(ctx context.Context, choreID string) (*Payment, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Payment, error)

	CreatePayout(ctx context.Context, p *Payout) error
	LatestPayoutByChore(ctx context.Context, choreID string) (*Payout, error)
}

// Chores is the slice of the chore service the escrow path drives.
type Chores interface {
	Get(ctx context.Context, id string) (*chore.Chore, error)
	ReserveEscrow(ctx context.Context, choreID string) error
	RevertEscrowReservation(ctx context.Context, choreID string) error
	MarkEscrowFunded(ctx context.Context, choreID string) error
	MarkEscrowSettled(ctx context.Context, choreID string) error
	MarkEscrowRefunded(ctx context.Context, choreID string) error
}

// Accounts resolves a user's linked payout account.
type Accounts interface {
	PayoutAccountID(ctx context.Context, userID string) (string, error)
}

// Notifier emits payment lifecycle notifications. Fire-and-forget;
// optional.
type Notifier interface {
	EmitChoreFunded(workerID, choreID, paymentID string, amount int64)
	EmitPaymentFailed(ownerID, choreID, paymentID, reason string)
	EmitPayoutReleased(workerID, choreID string, amount int64)
	EmitPayoutReleaseFailed(workerID, choreID, reason string)
	EmitRefundProcessed(ownerID, choreID, refundID string, amount int64)
}

// Service implements escrow business logic.
type Service struct {
	store    Store
	chores   Chores
	gateway  processor.Gateway
	accounts Accounts
	notifier Notifier
	currency string
	locks    syncutil.ShardedMutex // per-chore locks for release serialization
}

// NewService creates a new escrow service.
func NewService(store Store, chores Chores, gateway processor.Gateway, accounts Accounts, currency string) *Service {
	if currency == "" {
		currency = "INR"
	}
	return &Service{
		store:    store,
		chores:   chores,
		gateway:  gateway,
		accounts: accounts,
		currency: currency,
	}
}

// WithNotifier wires outbound notifications.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// CreateOrder reserves the chore's escrow slot, creates a processor order
// for the given amount (the chore's price basis when zero) with the worker
// payout held, and records a PENDING payment. The reservation happens
// before the processor call so a second concurrent request fails fast; a
// processor failure reverts it.
func (s *Service) CreateOrder(ctx context.Context, callerID, choreID string, amount int64) (*Payment, *processor.Order, error) {
	c, err := s.chores.Get(ctx, choreID)
	if err != nil {
		return nil, nil, err
	}
	if c.CreatedBy != callerID {
		return nil, nil, ErrNotOwner
	}
	if c.IsTerminal() || c.AssignedWorker == "" {
		return nil, nil, fmt.Errorf("%w: status %s, payment state %s",
			ErrNotOrderable, c.Status, c.EscrowState)
	}

	if amount <= 0 {
		amount = c.PriceBasis()
	}
	fee, workerShare := SplitAmount(amount)

	var workerAccount string
	if s.accounts != nil {
		workerAccount, err = s.accounts.PayoutAccountID(ctx, c.AssignedWorker)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve worker payout account: %w", err)
		}
		if workerAccount == "" {
			return nil, nil, ErrNoPayoutAccount
		}
	}

	if err := s.chores.ReserveEscrow(ctx, choreID); err != nil {
		if errors.Is(err, chore.ErrNotReservable) {
			metrics.OrderCreationFailuresTotal.Inc()
			return nil, nil, ErrOrderExists
		}
		return nil, nil, err
	}

	paymentID := idgen.WithPrefix("pay_")
	order, err := s.gateway.CreateOrder(ctx, processor.OrderRequest{
		Amount:          amount,
		Currency:        s.currency,
		Receipt:         paymentID,
		WorkerAccountID: workerAccount,
		WorkerPayout:    workerShare,
		ChoreID:         choreID,
	})
	if err != nil {
		// Give the slot back so the customer can retry.
		if revertErr := s.chores.RevertEscrowReservation(ctx, choreID); revertErr != nil {
			logging.FromContext(ctx).Error("failed to revert escrow reservation",
				"choreId", choreID, "error", revertErr)
		}
		metrics.OrderCreationFailuresTotal.Inc()
		return nil, nil, fmt.Errorf("failed to create processor order: %w", err)
	}

	now := time.Now()
	p := &Payment{
		ID:           paymentID,
		ChoreID:      choreID,
		OrderID:      order.ID,
		TransferID:   order.TransferID,
		Amount:       amount,
		PlatformFee:  fee,
		WorkerPayout: workerShare,
		Currency:     s.currency,
		Status:       PaymentPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		if revertErr := s.chores.RevertEscrowReservation(ctx, choreID); revertErr != nil {
			logging.FromContext(ctx).Error("failed to revert escrow reservation",
				"choreId", choreID, "error", revertErr)
		}
		metrics.OrderCreationFailuresTotal.Inc()
		return nil, nil, fmt.Errorf("failed to record payment: %w", err)
	}

	metrics.OrdersCreatedTotal.Inc()
	logging.FromContext(ctx).Info("escrow order created",
		"choreId", choreID, "paymentId", p.ID, "orderId", order.ID,
		"amount", amount, "platformFee", fee, "workerPayout", workerShare)
	return p, order, nil
}

// GetPayment returns a payment by ID.
func (s *Service) GetPayment(ctx context.Context, id string) (*Payment, error) {
	return s.store.GetPayment(ctx, id)
}

// ListPayments returns all payment attempts for a chore, newest first.
func (s *Service) ListPayments(ctx context.Context, choreID string) ([]*Payment, error) {
	return s.store.ListPaymentsByChore(ctx, choreID)
}
