package chore

import (
	"context"
	"sort"
	"sync"

	"github.com/chorebay/chorebay/internal/pagination"
)

// MemoryStore is an in-memory chore store for demo/development mode.
type MemoryStore struct {
	chores map[string]*Chore
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory chore store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chores: make(map[string]*Chore),
	}
}

func (m *MemoryStore) Create(ctx context.Context, c *Chore) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.chores[c.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Chore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.chores[id]
	if !ok {
		return nil, ErrChoreNotFound
	}
	// Return a copy to prevent races on the shared pointer.
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, c *Chore) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chores[c.ID]; !ok {
		return ErrChoreNotFound
	}
	cp := *c
	m.chores[c.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int, before *pagination.Cursor) ([]*Chore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Chore
	for _, c := range m.chores {
		if c.CreatedBy != userID && c.AssignedWorker != userID {
			continue
		}
		if before != nil {
			if c.CreatedAt.After(before.CreatedAt) {
				continue
			}
			if c.CreatedAt.Equal(before.CreatedAt) && c.ID >= before.ID {
				continue
			}
		}
		cp := *c
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ReserveEscrow atomically moves escrow_state UNPAID -> PENDING under the
// store lock, mirroring the conditional UPDATE the Postgres store issues.
func (m *MemoryStore) ReserveEscrow(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chores[id]
	if !ok {
		return ErrChoreNotFound
	}
	if c.EscrowState != EscrowUnpaid {
		return ErrNotReservable
	}
	c.EscrowState = EscrowPending
	return nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
