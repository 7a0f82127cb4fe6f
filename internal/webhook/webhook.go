// Package webhook ingests payment processor events. The endpoint trusts
// nothing but the HMAC signature over the raw body; every accepted event is
// dispatched to the escrow service, whose idempotent application makes
// redelivery and reordering safe.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrBadSignature = errors.New("webhook signature verification failed")
	ErrBadPayload   = errors.New("webhook payload is not valid JSON")
)

// Event kinds the ingestor understands. Anything else is acknowledged and
// dropped so the processor stops redelivering it.
const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
	EventPaymentAuthorized = "payment.authorized"
	EventRefundProcessed   = "refund.processed"
)

// Event is the decoded processor notification.
type Event struct {
	Kind    string  `json:"event"`
	Payload payload `json:"payload"`
}

type payload struct {
	Payment *entityWrapper `json:"payment,omitempty"`
	Refund  *entityWrapper `json:"refund,omitempty"`
}

type entityWrapper struct {
	Entity entity `json:"entity"`
}

type entity struct {
	ID               string      `json:"id"`
	OrderID          string      `json:"order_id,omitempty"`
	PaymentID        string      `json:"payment_id,omitempty"`
	ErrorCode        string      `json:"error_code,omitempty"`
	ErrorDescription string      `json:"error_description,omitempty"`
	Transfers        *collection `json:"transfers,omitempty"`
}

// collection mirrors the processor's list envelope.
type collection struct {
	Items []struct {
		ID string `json:"id"`
	} `json:"items"`
}

// ParseEvent decodes a raw webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if e.Kind == "" {
		return nil, fmt.Errorf("%w: missing event field", ErrBadPayload)
	}
	return &e, nil
}

// Payment returns the payment entity of the event, or a zero entity.
func (e *Event) Payment() entity {
	if e.Payload.Payment == nil {
		return entity{}
	}
	return e.Payload.Payment.Entity
}

// Refund returns the refund entity of the event, or a zero entity.
func (e *Event) Refund() entity {
	if e.Payload.Refund == nil {
		return entity{}
	}
	return e.Payload.Refund.Entity
}

// TransferID returns the first transfer attached to the payment entity, or
// "". Capture events carry the transfer created with the order, which may
// be missing from the payment record when the order was created elsewhere.
func (e *Event) TransferID() string {
	p := e.Payment()
	if p.Transfers == nil || len(p.Transfers.Items) == 0 {
		return ""
	}
	return p.Transfers.Items[0].ID
}

// FailureReason renders the payment entity's error fields as one string.
func (e *Event) FailureReason() string {
	p := e.Payment()
	switch {
	case p.ErrorCode != "" && p.ErrorDescription != "":
		return p.ErrorCode + ": " + p.ErrorDescription
	case p.ErrorDescription != "":
		return p.ErrorDescription
	case p.ErrorCode != "":
		return p.ErrorCode
	}
	return "payment failed"
}

// Sign computes the hex HMAC-SHA256 of a raw body under the shared secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the raw body in
// constant time.
func VerifySignature(body []byte, signature, secret string) error {
	if signature == "" || secret == "" {
		return ErrBadSignature
	}
	expected := Sign(body, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
