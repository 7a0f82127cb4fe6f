package escrow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory escrow store for demo/development mode.
type MemoryStore struct {
	payments map[string]*Payment
	payouts  map[string]*Payout
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory escrow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*Payment),
		payouts:  make(map[string]*Payout),
	}
}

func (m *MemoryStore) CreatePayment(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.payments {
		if existing.OrderID == p.OrderID {
			return fmt.Errorf("order %s already recorded", p.OrderID)
		}
	}
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPayment(ctx context.Context, id string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetPaymentByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.payments {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (m *MemoryStore) GetPaymentByProcessorID(ctx context.Context, processorPaymentID string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if processorPaymentID == "" {
		return nil, ErrPaymentNotFound
	}
	for _, p := range m.payments {
		if p.ProcessorPaymentID == processorPaymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (m *MemoryStore) UpdatePayment(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payments[p.ID]; !ok {
		return ErrPaymentNotFound
	}
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MemoryStore) ListPaymentsByChore(ctx context.Context, choreID string) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Payment
	for _, p := range m.payments {
		if p.ChoreID == choreID {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) LatestActivePayment(ctx context.Context, choreID string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Payment
	for _, p := range m.payments {
		if p.ChoreID != choreID || p.Status == PaymentFailed {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, ErrPaymentNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Payment
	for _, p := range m.payments {
		if p.Status == PaymentPending && p.CreatedAt.Before(cutoff) {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) CreatePayout(ctx context.Context, p *Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.payouts[p.ID] = &cp
	return nil
}

func (m *MemoryStore) LatestPayoutByChore(ctx context.Context, choreID string) (*Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Payout
	for _, p := range m.payouts {
		if p.ChoreID != choreID {
			continue
		}
		switch {
		case latest == nil:
			latest = p
		case p.Status == PayoutReleased && latest.Status != PayoutReleased:
			// A released payout always wins over failed retries.
			latest = p
		case p.Status == latest.Status && p.CreatedAt.After(latest.CreatedAt):
			latest = p
		}
	}
	if latest == nil {
		return nil, ErrPaymentNotFound
	}
	cp := *latest
	return &cp, nil
}

var _ Store = (*MemoryStore)(nil)
