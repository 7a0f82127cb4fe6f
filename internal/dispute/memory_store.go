package dispute

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chorebay/chorebay/internal/chore"
)

// MemoryStore is an in-memory dispute store for demo/development mode.
// ResolveAtomic leans on the chore store directly; without a real
// transaction the two writes are merely ordered dispute-first, which the
// Postgres store upgrades to true atomicity.
type MemoryStore struct {
	disputes map[string]*Dispute
	chores   chore.Store
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory dispute store backed by the given
// chore store for resolution writes.
func NewMemoryStore(chores chore.Store) *MemoryStore {
	return &MemoryStore{
		disputes: make(map[string]*Dispute),
		chores:   chores,
	}
}

func (m *MemoryStore) Create(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.disputes[d.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.disputes[id]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.disputes[d.ID]; !ok {
		return ErrDisputeNotFound
	}
	cp := *d
	m.disputes[d.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByChore(ctx context.Context, choreID string) ([]*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Dispute
	for _, d := range m.disputes {
		if d.ChoreID == choreID {
			cp := *d
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) ListByStatus(ctx context.Context, statuses []Status, limit int) ([]*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	var result []*Dispute
	for _, d := range m.disputes {
		if want[d.Status] {
			cp := *d
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) HasOpenByChore(ctx context.Context, choreID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.disputes {
		if d.ChoreID == choreID && d.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ResolveAtomic(ctx context.Context, d *Dispute, cr *ChoreResolution) error {
	m.mu.Lock()
	if _, ok := m.disputes[d.ID]; !ok {
		m.mu.Unlock()
		return ErrDisputeNotFound
	}
	cp := *d
	m.disputes[d.ID] = &cp
	m.mu.Unlock()

	if cr == nil {
		return nil
	}
	c, err := m.chores.Get(ctx, cr.ChoreID)
	if err != nil {
		return err
	}
	now := time.Now()
	// CLOSED and CANCELLED stay put; a refund landing on an already
	// cancelled chore still moves the escrow side.
	if !c.IsTerminal() {
		c.Status = cr.Status
		if cr.Status == chore.StatusClosed {
			c.ClosedAt = &now
		}
	}
	if cr.Escrow != "" {
		c.EscrowState = cr.Escrow
	}
	c.UpdatedAt = now
	return m.chores.Update(ctx, c)
}

var _ Store = (*MemoryStore)(nil)
