package webhook

import (
	"context"

	"github.com/chorebay/chorebay/internal/escrow"
	"github.com/chorebay/chorebay/internal/logging"
	"github.com/chorebay/chorebay/internal/metrics"
)

// Payments is the slice of the escrow service the ingestor drives.
type Payments interface {
	ApplyCaptured(ctx context.Context, orderID, processorPaymentID, transferID string) (escrow.ApplyResult, error)
	ApplyFailed(ctx context.Context, orderID, reason string) (escrow.ApplyResult, error)
	ApplyAuthorized(ctx context.Context, orderID, processorPaymentID string) (escrow.ApplyResult, error)
	ApplyRefund(ctx context.Context, processorPaymentID, refundID string) (escrow.ApplyResult, error)
}

// Broadcaster pushes payment lifecycle events to connected clients.
// Optional; nil disables broadcasting.
type Broadcaster interface {
	BroadcastPaymentEvent(kind, orderID, result string)
}

// Ingestor verifies and dispatches processor events.
type Ingestor struct {
	payments    Payments
	secret      string
	broadcaster Broadcaster
}

// NewIngestor creates a webhook ingestor with the shared webhook secret.
func NewIngestor(payments Payments, secret string) *Ingestor {
	return &Ingestor{payments: payments, secret: secret}
}

// WithBroadcaster wires realtime event fan-out.
func (i *Ingestor) WithBroadcaster(b Broadcaster) *Ingestor {
	i.broadcaster = b
	return i
}

// Ingest verifies the signature, decodes the event and applies it. The
// returned result feeds metrics and the HTTP status: only signature and
// payload errors are client errors, everything downstream is acknowledged
// so the processor does not redeliver forever.
func (i *Ingestor) Ingest(ctx context.Context, body []byte, signature string) (escrow.ApplyResult, error) {
	if err := VerifySignature(body, signature, i.secret); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("bad_signature").Inc()
		return escrow.ResultIgnored, err
	}

	event, err := ParseEvent(body)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("bad_payload").Inc()
		return escrow.ResultIgnored, err
	}

	res, applyErr := i.apply(ctx, event)
	metrics.WebhookEventsTotal.WithLabelValues(string(res)).Inc()
	if applyErr != nil {
		logging.FromContext(ctx).Error("webhook application failed",
			"event", event.Kind, "error", applyErr)
	}
	if i.broadcaster != nil && res == escrow.ResultApplied {
		i.broadcaster.BroadcastPaymentEvent(event.Kind, event.Payment().OrderID, string(res))
	}
	return res, nil
}

func (i *Ingestor) apply(ctx context.Context, event *Event) (escrow.ApplyResult, error) {
	log := logging.FromContext(ctx)

	switch event.Kind {
	case EventPaymentCaptured:
		p := event.Payment()
		return i.payments.ApplyCaptured(ctx, p.OrderID, p.ID, event.TransferID())
	case EventPaymentFailed:
		p := event.Payment()
		return i.payments.ApplyFailed(ctx, p.OrderID, event.FailureReason())
	case EventPaymentAuthorized:
		p := event.Payment()
		return i.payments.ApplyAuthorized(ctx, p.OrderID, p.ID)
	case EventRefundProcessed:
		r := event.Refund()
		return i.payments.ApplyRefund(ctx, r.PaymentID, r.ID)
	default:
		log.Info("ignoring unhandled webhook event", "event", event.Kind)
		return escrow.ResultIgnored, nil
	}
}
