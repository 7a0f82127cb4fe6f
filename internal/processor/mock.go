package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// MockGateway is the demo-mode processor. Orders succeed immediately and IDs
// are derived from the receipt, so replaying the same request yields the same
// order. Funding still arrives via the webhook endpoint, which keeps the
// demo flow identical to the live one.
type MockGateway struct {
	mu        sync.Mutex
	released  map[string]bool
	refunded  map[string]string
}

// NewMockGateway creates a deterministic in-process gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		released: make(map[string]bool),
		refunded: make(map[string]string),
	}
}

func (g *MockGateway) Mode() string { return "mock" }

func (g *MockGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", ErrOrderFailed)
	}
	tag := shortHash(req.Receipt)
	return &Order{
		ID:         "order_mock_" + tag,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Receipt:    req.Receipt,
		TransferID: "trf_mock_" + tag,
		Status:     "created",
	}, nil
}

func (g *MockGateway) ReleaseTransfer(ctx context.Context, transferID string) error {
	if transferID == "" {
		return fmt.Errorf("%w: empty transfer id", ErrTransferFailed)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released[transferID] = true
	return nil
}

func (g *MockGateway) Refund(ctx context.Context, paymentID string, amount int64) (string, error) {
	if paymentID == "" {
		return "", fmt.Errorf("%w: empty payment id", ErrRefundFailed)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := "rfnd_mock_" + shortHash(paymentID)
	g.refunded[paymentID] = id
	return id, nil
}

// Released reports whether a transfer hold has been lifted. Test hook.
func (g *MockGateway) Released(transferID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released[transferID]
}

// Refunded returns the refund ID issued for a payment, if any. Test hook.
func (g *MockGateway) Refunded(paymentID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[paymentID]
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

var _ Gateway = (*MockGateway)(nil)
