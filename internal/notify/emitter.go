package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/chorebay/chorebay/internal/idgen"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	notifyEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chorebay",
		Subsystem: "notify",
		Name:      "emit_total",
		Help:      "Total notification emit attempts by event type.",
	}, []string{"event_type"})

	notifyEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chorebay",
		Subsystem: "notify",
		Name:      "emit_errors_total",
		Help:      "Total notification emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(notifyEmitTotal, notifyEmitErrors)
}

// Emitter wraps a Dispatcher to emit lifecycle events across subsystems.
// All methods are fire-and-forget: errors are logged but never returned.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new notification emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

func (e *Emitter) emit(userID string, eventType EventType, data map[string]interface{}) {
	if e == nil || e.d == nil {
		return
	}
	notifyEmitTotal.WithLabelValues(string(eventType)).Inc()
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.d.DispatchToUser(ctx, userID, event); err != nil {
		notifyEmitErrors.WithLabelValues(string(eventType)).Inc()
		e.logger.Warn("notification emit failed", "event", eventType, "user", userID, "error", err)
	}
}

// --- Escrow events ---

// EmitChoreFunded emits a chore.funded event to the worker.
func (e *Emitter) EmitChoreFunded(workerID, choreID, paymentID string, amount int64) {
	e.emit(workerID, EventChoreFunded, map[string]interface{}{
		"choreId":   choreID,
		"paymentId": paymentID,
		"amount":    amount,
	})
}

// EmitPaymentFailed emits a payment.failed event to the chore owner.
func (e *Emitter) EmitPaymentFailed(ownerID, choreID, paymentID, reason string) {
	e.emit(ownerID, EventPaymentFailed, map[string]interface{}{
		"choreId":   choreID,
		"paymentId": paymentID,
		"reason":    reason,
	})
}

// EmitPayoutReleased emits a payout.released event to the worker.
func (e *Emitter) EmitPayoutReleased(workerID, choreID string, amount int64) {
	e.emit(workerID, EventPayoutReleased, map[string]interface{}{
		"choreId": choreID,
		"amount":  amount,
	})
}

// EmitPayoutReleaseFailed emits a payout.release_failed event to the worker.
func (e *Emitter) EmitPayoutReleaseFailed(workerID, choreID, reason string) {
	e.emit(workerID, EventPayoutReleaseFailed, map[string]interface{}{
		"choreId": choreID,
		"reason":  reason,
	})
}

// EmitRefundProcessed emits a refund.processed event to the chore owner.
func (e *Emitter) EmitRefundProcessed(ownerID, choreID, refundID string, amount int64) {
	e.emit(ownerID, EventRefundProcessed, map[string]interface{}{
		"choreId":  choreID,
		"refundId": refundID,
		"amount":   amount,
	})
}

// --- Dispute events ---

// EmitDisputeOpened emits a dispute.opened event to the counterparty.
func (e *Emitter) EmitDisputeOpened(counterpartyID, disputeID, choreID, raisedBy string) {
	e.emit(counterpartyID, EventDisputeOpened, map[string]interface{}{
		"disputeId": disputeID,
		"choreId":   choreID,
		"raisedBy":  raisedBy,
	})
}

// EmitDisputeResolved emits a dispute.resolved event.
func (e *Emitter) EmitDisputeResolved(userID, disputeID, choreID, action string) {
	e.emit(userID, EventDisputeResolved, map[string]interface{}{
		"disputeId": disputeID,
		"choreId":   choreID,
		"action":    action,
	})
}

// --- Ledger events ---

// EmitManualRecorded emits a manual_payment.recorded event to the counterparty.
func (e *Emitter) EmitManualRecorded(counterpartyID, choreID, entryID string, amount int64, direction string) {
	e.emit(counterpartyID, EventManualRecorded, map[string]interface{}{
		"choreId":   choreID,
		"entryId":   entryID,
		"amount":    amount,
		"direction": direction,
	})
}
