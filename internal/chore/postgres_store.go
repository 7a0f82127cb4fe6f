package chore

import (
	"context"
	"database/sql"
	"time"

	"github.com/chorebay/chorebay/internal/pagination"
)

// PostgresStore persists chore data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed chore store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const choreColumns = `id, title, description, created_by, assigned_worker,
		       status, escrow_state, manual_state, budget, agreed_price,
		       closed_at, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, c *Chore) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO chores (
			id, title, description, created_by, assigned_worker,
			status, escrow_state, manual_state, budget, agreed_price,
			closed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.Title, nullString(c.Description), c.CreatedBy, nullString(c.AssignedWorker),
		string(c.Status), string(c.EscrowState), string(c.ManualState), c.Budget, c.AgreedPrice,
		nullTime(c.ClosedAt), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Chore, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+choreColumns+` FROM chores WHERE id = $1`, id)

	c, err := scanChore(row)
	if err == sql.ErrNoRows {
		return nil, ErrChoreNotFound
	}
	return c, err
}

func (p *PostgresStore) Update(ctx context.Context, c *Chore) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE chores SET
			title = $1, description = $2, assigned_worker = $3,
			status = $4, escrow_state = $5, manual_state = $6,
			budget = $7, agreed_price = $8, closed_at = $9, updated_at = $10
		WHERE id = $11`,
		c.Title, nullString(c.Description), nullString(c.AssignedWorker),
		string(c.Status), string(c.EscrowState), string(c.ManualState),
		c.Budget, c.AgreedPrice, nullTime(c.ClosedAt), c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrChoreNotFound
	}
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int, before *pagination.Cursor) ([]*Chore, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if before != nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+choreColumns+`
			FROM chores
			WHERE (created_by = $1 OR assigned_worker = $1)
			  AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`, userID, before.CreatedAt, before.ID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+choreColumns+`
			FROM chores
			WHERE created_by = $1 OR assigned_worker = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`, userID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// ReserveEscrow is the optimistic lock for order creation: the conditional
// UPDATE only succeeds for a chore still in UNPAID, so of two concurrent
// reservations exactly one wins.
func (p *PostgresStore) ReserveEscrow(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE chores SET escrow_state = 'PENDING', updated_at = NOW()
		WHERE id = $1 AND escrow_state = 'UNPAID'`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing chore from a lost race.
		if _, getErr := p.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrNotReservable
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChore(s scanner) (*Chore, error) {
	c := &Chore{}
	var (
		description    sql.NullString
		assignedWorker sql.NullString
		status         string
		escrowState    string
		manualState    string
		closedAt       sql.NullTime
	)

	err := s.Scan(
		&c.ID, &c.Title, &description, &c.CreatedBy, &assignedWorker,
		&status, &escrowState, &manualState, &c.Budget, &c.AgreedPrice,
		&closedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Description = description.String
	c.AssignedWorker = assignedWorker.String
	c.Status = Status(status)
	c.EscrowState = EscrowState(escrowState)
	c.ManualState = ManualState(manualState)
	if closedAt.Valid {
		c.ClosedAt = &closedAt.Time
	}
	return c, nil
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
