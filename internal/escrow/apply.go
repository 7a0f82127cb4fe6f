package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/chorebay/chorebay/internal/logging"
)

// ApplyResult classifies what an inbound processor event did.
type ApplyResult string

const (
	// ResultApplied means the event advanced the payment record.
	ResultApplied ApplyResult = "applied"
	// ResultDuplicate means the payment was already in the target state.
	ResultDuplicate ApplyResult = "duplicate"
	// ResultIgnored means the event referenced an unknown record or a
	// state it cannot move.
	ResultIgnored ApplyResult = "ignored"
)

// Event application is idempotent by construction: the processor redelivers
// webhooks and may deliver them out of order, so every handler is a guarded
// "set" rather than a transition that can fail on replay.

// ApplyCaptured marks the payment behind an order as SUCCESS and funds the
// chore. A capture overrides an earlier FAILED verdict (the processor's
// capture is authoritative), but never a refund. transferID backfills the
// payment's transfer reference when order creation did not record one.
func (s *Service) ApplyCaptured(ctx context.Context, orderID, processorPaymentID, transferID string) (ApplyResult, error) {
	unlock, p, err := s.lockPaymentByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return ResultIgnored, nil
		}
		return ResultIgnored, err
	}
	defer unlock()

	switch p.Status {
	case PaymentRefunded:
		return ResultIgnored, nil
	case PaymentSuccess:
		// Redelivery. Re-assert the chore state in case the first
		// delivery crashed between the two writes.
		if p.TransferID == "" && transferID != "" {
			p.TransferID = transferID
			p.UpdatedAt = time.Now()
			if err := s.store.UpdatePayment(ctx, p); err != nil {
				logging.FromContext(ctx).Warn("redelivered capture could not backfill transfer",
					"choreId", p.ChoreID, "paymentId", p.ID, "error", err)
			}
		}
		if err := s.chores.MarkEscrowFunded(ctx, p.ChoreID); err != nil {
			logging.FromContext(ctx).Warn("redelivered capture could not re-fund chore",
				"choreId", p.ChoreID, "error", err)
		}
		return ResultDuplicate, nil
	}

	p.Status = PaymentSuccess
	p.ProcessorPaymentID = processorPaymentID
	if p.TransferID == "" && transferID != "" {
		p.TransferID = transferID
	}
	p.FailureReason = ""
	p.UpdatedAt = time.Now()
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		return ResultIgnored, err
	}
	if err := s.chores.MarkEscrowFunded(ctx, p.ChoreID); err != nil {
		logging.FromContext(ctx).Error("captured payment could not fund chore",
			"choreId", p.ChoreID, "paymentId", p.ID, "error", err)
	}

	if s.notifier != nil {
		if c, err := s.chores.Get(ctx, p.ChoreID); err == nil && c.AssignedWorker != "" {
			s.notifier.EmitChoreFunded(c.AssignedWorker, p.ChoreID, p.ID, p.Amount)
		}
	}

	logging.FromContext(ctx).Info("payment captured",
		"choreId", p.ChoreID, "paymentId", p.ID, "processorPaymentId", processorPaymentID)
	return ResultApplied, nil
}

// ApplyFailed marks a pending payment FAILED and gives the escrow slot back
// so the customer can retry. A failure arriving after a capture or refund
// is stale and ignored.
func (s *Service) ApplyFailed(ctx context.Context, orderID, reason string) (ApplyResult, error) {
	unlock, p, err := s.lockPaymentByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return ResultIgnored, nil
		}
		return ResultIgnored, err
	}
	defer unlock()

	switch p.Status {
	case PaymentSuccess, PaymentRefunded:
		return ResultIgnored, nil
	case PaymentFailed:
		return ResultDuplicate, nil
	}

	p.Status = PaymentFailed
	p.FailureReason = reason
	p.UpdatedAt = time.Now()
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		return ResultIgnored, err
	}
	if err := s.chores.RevertEscrowReservation(ctx, p.ChoreID); err != nil {
		logging.FromContext(ctx).Error("failed payment could not revert reservation",
			"choreId", p.ChoreID, "error", err)
	}

	if s.notifier != nil {
		if c, err := s.chores.Get(ctx, p.ChoreID); err == nil {
			s.notifier.EmitPaymentFailed(c.CreatedBy, p.ChoreID, p.ID, reason)
		}
	}

	logging.FromContext(ctx).Info("payment failed",
		"choreId", p.ChoreID, "paymentId", p.ID, "reason", reason)
	return ResultApplied, nil
}

// ApplyAuthorized acknowledges an authorization. Funds move on capture, not
// authorization, so no state changes here.
func (s *Service) ApplyAuthorized(ctx context.Context, orderID, processorPaymentID string) (ApplyResult, error) {
	p, err := s.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return ResultIgnored, nil
	}
	logging.FromContext(ctx).Info("payment authorized, awaiting capture",
		"choreId", p.ChoreID, "paymentId", p.ID, "processorPaymentId", processorPaymentID)
	return ResultIgnored, nil
}

// ApplyRefund marks the payment behind a processor payment ID as REFUNDED
// and moves the chore's escrow state with it. Partial refunds still move
// the record to REFUNDED; the amount is informational.
func (s *Service) ApplyRefund(ctx context.Context, processorPaymentID, refundID string) (ApplyResult, error) {
	p, err := s.store.GetPaymentByProcessorID(ctx, processorPaymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return ResultIgnored, nil
		}
		return ResultIgnored, err
	}

	unlock := s.locks.Lock(p.ChoreID)
	defer unlock()

	// Re-read under the lock.
	p, err = s.store.GetPayment(ctx, p.ID)
	if err != nil {
		return ResultIgnored, err
	}
	if p.Status == PaymentRefunded {
		return ResultDuplicate, nil
	}

	p.Status = PaymentRefunded
	p.RefundID = refundID
	p.UpdatedAt = time.Now()
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		return ResultIgnored, err
	}
	if err := s.chores.MarkEscrowRefunded(ctx, p.ChoreID); err != nil {
		logging.FromContext(ctx).Error("refund could not update chore escrow state",
			"choreId", p.ChoreID, "error", err)
	}

	if s.notifier != nil {
		if c, err := s.chores.Get(ctx, p.ChoreID); err == nil {
			s.notifier.EmitRefundProcessed(c.CreatedBy, p.ChoreID, refundID, p.Amount)
		}
	}

	logging.FromContext(ctx).Info("refund processed",
		"choreId", p.ChoreID, "paymentId", p.ID, "refundId", refundID)
	return ResultApplied, nil
}

// lockPaymentByOrder resolves an order to its payment and acquires the
// per-chore lock, re-reading the payment once locked.
func (s *Service) lockPaymentByOrder(ctx context.Context, orderID string) (func(), *Payment, error) {
	p, err := s.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	unlock := s.locks.Lock(p.ChoreID)
	p, err = s.store.GetPayment(ctx, p.ID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return unlock, p, nil
}
