package processor

import (
	"context"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// LiveGateway drives the real Razorpay Route API. The SDK does not take a
// context, so every call runs in a goroutine bounded by a timeout; a timed-out
// call is reported as a failure even if Razorpay later completes it, and the
// webhook path reconciles the truth.
type LiveGateway struct {
	client  *razorpay.Client
	timeout time.Duration
}

// NewLiveGateway creates a gateway backed by Razorpay API credentials.
func NewLiveGateway(keyID, keySecret string, timeout time.Duration) (*LiveGateway, error) {
	if keyID == "" || keySecret == "" {
		return nil, ErrNotConfigured
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LiveGateway{
		client:  razorpay.NewClient(keyID, keySecret),
		timeout: timeout,
	}, nil
}

func (g *LiveGateway) Mode() string { return "live" }

func (g *LiveGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes": map[string]interface{}{
			"chore_id": req.ChoreID,
		},
	}
	if req.WorkerAccountID != "" {
		// The worker share rides as an on-hold transfer: funds are captured
		// into escrow but not payable until the hold is lifted.
		data["transfers"] = []map[string]interface{}{
			{
				"account":  req.WorkerAccountID,
				"amount":   req.WorkerPayout,
				"currency": req.Currency,
				"on_hold":  true,
			},
		}
	}

	body, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.client.Order.Create(data, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFailed, err)
	}

	order := &Order{
		ID:       stringField(body, "id"),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   stringField(body, "status"),
	}
	if transfers, ok := body["transfers"].(map[string]interface{}); ok {
		if items, ok := transfers["items"].([]interface{}); ok && len(items) > 0 {
			if first, ok := items[0].(map[string]interface{}); ok {
				order.TransferID = stringField(first, "id")
			}
		}
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: response missing order id", ErrOrderFailed)
	}
	return order, nil
}

func (g *LiveGateway) ReleaseTransfer(ctx context.Context, transferID string) error {
	if transferID == "" {
		return fmt.Errorf("%w: empty transfer id", ErrTransferFailed)
	}
	_, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.client.Transfer.Edit(transferID, map[string]interface{}{
			"on_hold": false,
		}, nil)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

func (g *LiveGateway) Refund(ctx context.Context, paymentID string, amount int64) (string, error) {
	if paymentID == "" {
		return "", fmt.Errorf("%w: empty payment id", ErrRefundFailed)
	}
	body, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.client.Payment.Refund(paymentID, int(amount), map[string]interface{}{
			"speed": "normal",
		}, nil)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefundFailed, err)
	}
	id := stringField(body, "id")
	if id == "" {
		return "", fmt.Errorf("%w: response missing refund id", ErrRefundFailed)
	}
	return id, nil
}

type callResult struct {
	body map[string]interface{}
	err  error
}

// call runs an SDK invocation under the gateway timeout and the caller's
// context.
func (g *LiveGateway) call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ch := make(chan callResult, 1)
	go func() {
		body, err := fn()
		ch <- callResult{body: body, err: err}
	}()

	select {
	case res := <-ch:
		return res.body, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

var _ Gateway = (*LiveGateway)(nil)
