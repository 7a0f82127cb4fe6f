package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chorebay/chorebay/internal/idgen"
	"github.com/chorebay/chorebay/internal/logging"
	"github.com/chorebay/chorebay/internal/metrics"
)

// Release lifts the hold on the worker's transfer for a chore's captured
// payment. It satisfies the chore service's releaser dependency, so it is
// the money step of approval: the caller treats its error as soft and
// closes the chore regardless, while this method records the outcome for
// administrative retry.
func (s *Service) Release(ctx context.Context, choreID, releasedBy string) error {
	unlock := s.locks.Lock(choreID)
	defer unlock()

	return s.release(ctx, choreID, releasedBy)
}

// RetryRelease re-runs a failed release. Admin-only at the HTTP layer.
// Succeeding releases are not retriable.
func (s *Service) RetryRelease(ctx context.Context, choreID, adminID string) error {
	unlock := s.locks.Lock(choreID)
	defer unlock()

	last, err := s.store.LatestPayoutByChore(ctx, choreID)
	if err == nil && last.Status == PayoutReleased {
		return ErrAlreadyReleased
	}
	if err != nil {
		return ErrReleaseNotNeeded
	}
	return s.release(ctx, choreID, adminID)
}

func (s *Service) release(ctx context.Context, choreID, releasedBy string) error {
	// Double-release guard: one successful payout per chore, ever.
	if last, err := s.store.LatestPayoutByChore(ctx, choreID); err == nil && last.Status == PayoutReleased {
		return nil
	}

	p, err := s.store.LatestActivePayment(ctx, choreID)
	if err != nil || p.Status != PaymentSuccess {
		reason := "no captured payment to release"
		s.recordPayout(ctx, &Payout{
			ChoreID:       choreID,
			Status:        PayoutFailed,
			ReleasedBy:    releasedBy,
			FailureReason: reason,
		})
		metrics.PayoutReleaseFailuresTotal.Inc()
		return fmt.Errorf("%w: %s", ErrNoCapturedPayment, choreID)
	}

	if err := s.gateway.ReleaseTransfer(ctx, p.TransferID); err != nil {
		s.recordPayout(ctx, &Payout{
			ChoreID:       choreID,
			PaymentID:     p.ID,
			TransferID:    p.TransferID,
			Amount:        p.WorkerPayout,
			Status:        PayoutFailed,
			ReleasedBy:    releasedBy,
			FailureReason: err.Error(),
		})
		metrics.PayoutReleaseFailuresTotal.Inc()
		if s.notifier != nil {
			if c, getErr := s.chores.Get(ctx, choreID); getErr == nil && c.AssignedWorker != "" {
				s.notifier.EmitPayoutReleaseFailed(c.AssignedWorker, choreID, err.Error())
			}
		}
		logging.FromContext(ctx).Error("payout release failed",
			"choreId", choreID, "paymentId", p.ID, "error", err)
		return fmt.Errorf("failed to release payout: %w", err)
	}

	s.recordPayout(ctx, &Payout{
		ChoreID:    choreID,
		PaymentID:  p.ID,
		TransferID: p.TransferID,
		Amount:     p.WorkerPayout,
		Status:     PayoutReleased,
		ReleasedBy: releasedBy,
	})
	if err := s.chores.MarkEscrowSettled(ctx, choreID); err != nil {
		logging.FromContext(ctx).Error("released payout could not settle chore",
			"choreId", choreID, "error", err)
	}

	metrics.PayoutsReleasedTotal.Inc()
	if s.notifier != nil {
		if c, getErr := s.chores.Get(ctx, choreID); getErr == nil && c.AssignedWorker != "" {
			s.notifier.EmitPayoutReleased(c.AssignedWorker, choreID, p.WorkerPayout)
		}
	}
	logging.FromContext(ctx).Info("payout released",
		"choreId", choreID, "paymentId", p.ID, "amount", p.WorkerPayout, "releasedBy", releasedBy)
	return nil
}

func (s *Service) recordPayout(ctx context.Context, p *Payout) {
	p.ID = idgen.WithPrefix("out_")
	p.CreatedAt = time.Now()
	if err := s.store.CreatePayout(ctx, p); err != nil {
		logging.FromContext(ctx).Error("failed to record payout attempt",
			"choreId", p.ChoreID, "error", err)
	}
}

// RefundForDispute refunds amount minor units of the chore's captured
// payment back to the customer, or the full captured amount when amount is
// zero. It only moves money and the payment record; the chore's state
// change belongs to the dispute resolution transaction. When no captured
// payment exists (off-processor or never funded), ErrNoCapturedPayment is
// returned so the caller can degrade to a state-only resolution.
func (s *Service) RefundForDispute(ctx context.Context, choreID string, amount int64) (string, int64, error) {
	unlock := s.locks.Lock(choreID)
	defer unlock()

	p, err := s.store.LatestActivePayment(ctx, choreID)
	if err != nil {
		return "", 0, ErrNoCapturedPayment
	}
	if p.Status == PaymentRefunded {
		// Already settled; nothing newly moved on this call.
		return p.RefundID, 0, nil
	}
	if p.Status != PaymentSuccess || p.ProcessorPaymentID == "" {
		return "", 0, ErrNoCapturedPayment
	}

	switch {
	case amount == 0:
		amount = p.Amount
	case amount < 0 || amount > p.Amount:
		return "", 0, fmt.Errorf("%w: %d of %d", ErrInvalidRefundAmount, amount, p.Amount)
	}

	refundID, err := s.gateway.Refund(ctx, p.ProcessorPaymentID, amount)
	if err != nil {
		return "", 0, fmt.Errorf("failed to refund payment: %w", err)
	}

	// Partial refunds still move the record to REFUNDED; the processor is
	// the ledger of record for the remainder.
	p.Status = PaymentRefunded
	p.RefundID = refundID
	p.UpdatedAt = time.Now()
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		// Money has moved; the redelivered refund.processed webhook will
		// reconcile the record.
		logging.FromContext(ctx).Error("refund issued but payment record not updated",
			"choreId", choreID, "paymentId", p.ID, "refundId", refundID, "error", err)
	}

	logging.FromContext(ctx).Info("dispute refund issued",
		"choreId", choreID, "paymentId", p.ID, "refundId", refundID, "amount", amount)
	return refundID, amount, nil
}

// HasCapturedPayment reports whether a chore holds a captured, unrefunded
// payment.
func (s *Service) HasCapturedPayment(ctx context.Context, choreID string) (bool, error) {
	p, err := s.store.LatestActivePayment(ctx, choreID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.Status == PaymentSuccess, nil
}
