// Package processor abstracts the payment processor behind a small gateway
// interface so the escrow components can run against either a deterministic
// mock (demo mode) or the live Razorpay Route API.
package processor

import (
	"context"
	"errors"
)

var (
	ErrNotConfigured = errors.New("payment processor is not configured")
	ErrOrderFailed   = errors.New("processor order creation failed")
	ErrTransferFailed = errors.New("processor transfer release failed")
	ErrRefundFailed  = errors.New("processor refund failed")
)

// OrderRequest describes an escrow order: the full amount is collected from
// the customer, and the worker's share is attached as an on-hold transfer
// released only after approval.
type OrderRequest struct {
	Amount          int64  // total, minor units
	Currency        string
	Receipt         string // internal payment ID, echoed back by webhooks
	WorkerAccountID string // linked payout account for the held transfer
	WorkerPayout    int64  // worker share, minor units
	ChoreID         string
}

// Order is the processor's record of a created order.
type Order struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	TransferID string `json:"transferId,omitempty"`
	Status     string `json:"status"`
}

// Gateway is the processor surface the escrow service consumes.
type Gateway interface {
	// Mode identifies the gateway ("mock" or "live") for API responses
	// and logs.
	Mode() string
	// CreateOrder creates a payment order with the worker payout attached
	// as an on-hold transfer.
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// ReleaseTransfer lifts the hold on a worker transfer.
	ReleaseTransfer(ctx context.Context, transferID string) error
	// Refund refunds a captured payment back to the customer and returns
	// the processor refund ID.
	Refund(ctx context.Context, paymentID string, amount int64) (string, error)
}
