package auth

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists users and API keys in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed auth store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role, payout_account_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, string(u.Role), nullString(u.PayoutAccountID), u.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, role, payout_account_id, created_at
		FROM users WHERE id = $1`, id)

	u := &User{}
	var role string
	var payout sql.NullString
	err := row.Scan(&u.ID, &u.Name, &role, &payout, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	u.PayoutAccountID = payout.String
	return u, nil
}

func (p *PostgresStore) UpdateUser(ctx context.Context, u *User) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE users SET name = $1, role = $2, payout_account_id = $3
		WHERE id = $4`,
		u.Name, string(u.Role), nullString(u.PayoutAccountID), u.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (p *PostgresStore) CreateKey(ctx context.Context, key *APIKey) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, hash, user_id, role, created_at, last_used, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.Hash, key.UserID, string(key.Role),
		key.CreatedAt, key.LastUsed, nullTime(key.ExpiresAt), key.Revoked,
	)
	return err
}

func (p *PostgresStore) GetKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, hash, user_id, role, created_at, last_used, expires_at, revoked
		FROM api_keys WHERE hash = $1`, hash)

	key := &APIKey{}
	var role string
	var expiresAt sql.NullTime
	err := row.Scan(&key.ID, &key.Hash, &key.UserID, &role,
		&key.CreatedAt, &key.LastUsed, &expiresAt, &key.Revoked)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	key.Role = Role(role)
	if expiresAt.Valid {
		key.ExpiresAt = &expiresAt.Time
	}
	return key, nil
}

func (p *PostgresStore) UpdateKey(ctx context.Context, key *APIKey) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used = $1, expires_at = $2, revoked = $3
		WHERE id = $4`,
		key.LastUsed, nullTime(key.ExpiresAt), key.Revoked, key.ID,
	)
	return err
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
