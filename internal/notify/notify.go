// Package notify delivers outbound event notifications to external services.
//
// Users can register notification URLs to hear about:
// - Payment captures and failures
// - Payout releases
// - Dispute activity
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chorebay/chorebay/internal/circuitbreaker"
	"github.com/chorebay/chorebay/internal/retry"
)

// EventType represents the type of outbound notification event
type EventType string

const (
	EventChoreFunded         EventType = "chore.funded"
	EventPaymentFailed       EventType = "payment.failed"
	EventPayoutReleased      EventType = "payout.released"
	EventPayoutReleaseFailed EventType = "payout.release_failed"
	EventRefundProcessed     EventType = "refund.processed"
	EventDisputeOpened       EventType = "dispute.opened"
	EventDisputeResolved     EventType = "dispute.resolved"
	EventManualRecorded      EventType = "manual_payment.recorded"
)

// Event represents an outbound notification event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscription represents a notification subscription
type Subscription struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	URL         string      `json:"url"`
	Secret      string      `json:"-"` // Used for HMAC signing
	Events      []EventType `json:"events"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"createdAt"`
	LastSuccess *time.Time  `json:"lastSuccess,omitempty"`
	LastError   string      `json:"lastError,omitempty"`
}

// Store persists notification subscriptions
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByUser(ctx context.Context, userID string) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// Dispatcher sends notification events
type Dispatcher struct {
	store   Store
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(store Store) *Dispatcher {
	return &Dispatcher{
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		// Per-subscription circuit: stop hammering endpoints that keep failing.
		breaker: circuitbreaker.New(5, 5*time.Minute),
	}
}

// Store exposes the subscription store for handler wiring.
func (d *Dispatcher) Store() Store {
	return d.store
}

// DispatchToUser sends an event to a specific user's subscriptions
func (d *Dispatcher) DispatchToUser(ctx context.Context, userID string, event *Event) error {
	subs, err := d.store.GetByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get subscriptions: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}

		// Check if subscribed to this event type
		for _, et := range sub.Events {
			if et == event.Type {
				// Send async to avoid blocking
				go d.send(ctx, sub, event)
				break
			}
		}
	}

	return nil
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, event *Event) {
	if !d.breaker.Allow(sub.ID) {
		d.updateError(ctx, sub, "delivery suspended: endpoint circuit open")
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.updateError(ctx, sub, "failed to marshal event")
		return
	}

	err = retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", sub.URL, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Chorebay-Event", string(event.Type))
		req.Header.Set("X-Chorebay-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))

		// Sign the payload if secret is set
		if sub.Secret != "" {
			signature := d.sign(payload, sub.Secret)
			req.Header.Set("X-Chorebay-Signature", signature)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			// The endpoint rejected the delivery; retrying won't change that.
			return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		default:
			return fmt.Errorf("status %d", resp.StatusCode)
		}
	})

	if err != nil {
		d.breaker.RecordFailure(sub.ID)
		d.updateError(ctx, sub, fmt.Sprintf("delivery failed: %v", err))
		return
	}

	d.breaker.RecordSuccess(sub.ID)
	d.updateSuccess(ctx, sub)
}

func (d *Dispatcher) sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) updateSuccess(ctx context.Context, sub *Subscription) {
	now := time.Now()
	sub.LastSuccess = &now
	sub.LastError = ""
	d.store.Update(ctx, sub)
}

func (d *Dispatcher) updateError(ctx context.Context, sub *Subscription, errMsg string) {
	sub.LastError = errMsg
	d.store.Update(ctx, sub)
}

// MemoryStore is an in-memory implementation for testing
type MemoryStore struct {
	subs map[string]*Subscription
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs: make(map[string]*Subscription),
	}
}

func (m *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subs[id]; ok {
		return sub, nil
	}
	return nil, fmt.Errorf("subscription not found")
}

func (m *MemoryStore) GetByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		if sub.UserID == userID {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}
