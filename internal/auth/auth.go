// Package auth supplies the authenticated principal for every engine operation.
//
// Authentication model:
// - The identity provider issues API keys bound to a user {id, role}.
// - The engine trusts the resulting principal and never re-derives it.
// - Roles: customer, worker, admin.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

// Errors
var (
	ErrNoAPIKey      = errors.New("API key required")
	ErrInvalidAPIKey = errors.New("invalid or expired API key")
	ErrUserNotFound  = errors.New("user not found")
	ErrKeyNotFound   = errors.New("API key not found")
)

// Role classifies what a principal may do.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleWorker   Role = "worker"
	RoleAdmin    Role = "admin"
)

// Principal is the authenticated identity attached to each request.
type Principal struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// User is a marketplace participant known to the identity provider.
// PayoutAccountID is the processor-side destination for held transfers;
// workers without one cannot be paid and block order creation.
type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Role            Role      `json:"role"`
	PayoutAccountID string    `json:"payoutAccountId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// APIKey represents an issued API key.
type APIKey struct {
	ID        string     `json:"id"`
	Hash      string     `json:"-"` // SHA256 hash of key (stored)
	UserID    string     `json:"userId"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	LastUsed  time.Time  `json:"lastUsed,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// Store persists users and API keys.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	CreateKey(ctx context.Context, key *APIKey) error
	GetKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	UpdateKey(ctx context.Context, key *APIKey) error
}

// Manager handles identity and authentication.
type Manager struct {
	store Store
}

// NewManager creates a new auth manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// RegisterUser creates a user and issues their first API key.
// Returns the raw key, which is shown once and stored only as a hash.
func (m *Manager) RegisterUser(ctx context.Context, name string, role Role) (rawKey string, user *User, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}

	user = &User{
		ID:        "usr_" + hex.EncodeToString(b[:12]),
		Name:      name,
		Role:      role,
		CreatedAt: time.Now(),
	}
	if err := m.store.CreateUser(ctx, user); err != nil {
		return "", nil, err
	}

	rawKey = "sk_" + hex.EncodeToString(b)
	key := &APIKey{
		ID:        "ak_" + hex.EncodeToString(b[:8]),
		Hash:      hashKey(rawKey),
		UserID:    user.ID,
		Role:      role,
		CreatedAt: time.Now(),
	}
	if err := m.store.CreateKey(ctx, key); err != nil {
		return "", nil, err
	}

	return rawKey, user, nil
}

// ValidateKey validates an API key and returns the principal it represents.
func (m *Manager) ValidateKey(ctx context.Context, rawKey string) (*Principal, error) {
	if rawKey == "" {
		return nil, ErrNoAPIKey
	}

	rawKey = strings.TrimPrefix(rawKey, "Bearer ")
	rawKey = strings.TrimSpace(rawKey)

	if !strings.HasPrefix(rawKey, "sk_") {
		return nil, ErrInvalidAPIKey
	}

	key, err := m.store.GetKeyByHash(ctx, hashKey(rawKey))
	if err != nil {
		return nil, ErrInvalidAPIKey
	}

	if key.Revoked {
		return nil, ErrInvalidAPIKey
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return nil, ErrInvalidAPIKey
	}

	// Update last used (fire and forget)
	go func() {
		key.LastUsed = time.Now()
		_ = m.store.UpdateKey(context.Background(), key)
	}()

	return &Principal{UserID: key.UserID, Role: key.Role}, nil
}

// GetUser returns a user by ID.
func (m *Manager) GetUser(ctx context.Context, id string) (*User, error) {
	return m.store.GetUser(ctx, id)
}

// SetPayoutAccount records a worker's processor-side payout destination.
func (m *Manager) SetPayoutAccount(ctx context.Context, userID, accountID string) error {
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	u.PayoutAccountID = accountID
	return m.store.UpdateUser(ctx, u)
}

// PayoutAccountID returns the payout destination for a user, or "" if none.
func (m *Manager) PayoutAccountID(ctx context.Context, userID string) (string, error) {
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.PayoutAccountID, nil
}

func hashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
	keys  map[string]*APIKey // by ID
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
		keys:  make(map[string]*APIKey),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) CreateKey(ctx context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = key
	return nil
}

func (s *MemoryStore) GetKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.Hash == hash {
			return k, nil
		}
	}
	return nil, ErrKeyNotFound
}

func (s *MemoryStore) UpdateKey(ctx context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = key
	return nil
}
