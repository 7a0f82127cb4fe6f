package escrow

import (
	"context"
	"time"

	"github.com/chorebay/chorebay/internal/logging"
	"github.com/chorebay/chorebay/internal/metrics"
)

// Timer periodically expires stale PENDING payments. A reservation the
// customer abandoned would otherwise hold the chore's escrow slot forever;
// the sweep fails the payment and gives the slot back.
type Timer struct {
	service  *Service
	interval time.Duration
	maxAge   time.Duration
}

// NewTimer creates a sweep timer. interval controls how often the sweep
// runs; maxAge is how long a PENDING payment may wait for its webhook.
func NewTimer(service *Service, interval, maxAge time.Duration) *Timer {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	return &Timer{service: service, interval: interval, maxAge: maxAge}
}

// Start runs the sweep loop until the context is cancelled.
func (t *Timer) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

func (t *Timer) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-t.maxAge)
	stale, err := t.service.store.ListPendingBefore(ctx, cutoff)
	if err != nil {
		logging.FromContext(ctx).Error("pending sweep query failed", "error", err)
		return
	}

	for _, p := range stale {
		// ApplyFailed carries the idempotency guards: a capture that
		// raced the sweep wins and the expiry becomes a no-op.
		res, err := t.service.ApplyFailed(ctx, p.OrderID, "payment window expired")
		if err != nil {
			logging.FromContext(ctx).Error("failed to expire pending payment",
				"paymentId", p.ID, "error", err)
			continue
		}
		if res == ResultApplied {
			metrics.PendingSweepExpiredTotal.Inc()
			logging.FromContext(ctx).Info("expired stale pending payment",
				"paymentId", p.ID, "choreId", p.ChoreID, "age", time.Since(p.CreatedAt).String())
		}
	}
}
