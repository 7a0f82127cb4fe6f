package ledger

import (
	"context"
	"database/sql"
)

// PostgresStore persists ledger entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, e *Entry) error {
	var notes sql.NullString
	if e.Notes != "" {
		notes = sql.NullString{String: e.Notes, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO manual_payments (
			id, chore_id, recorded_by, direction, method, amount, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ChoreID, e.RecordedBy, string(e.Direction), string(e.Method),
		e.Amount, notes, e.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListByChore(ctx context.Context, choreID string) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, chore_id, recorded_by, direction, method, amount, notes, created_at
		FROM manual_payments
		WHERE chore_id = $1
		ORDER BY created_at DESC`, choreID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		e := &Entry{}
		var (
			direction string
			method    string
			notes     sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.ChoreID, &e.RecordedBy, &direction, &method,
			&e.Amount, &notes, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Direction = Direction(direction)
		e.Method = Method(method)
		e.Notes = notes.String
		result = append(result, e)
	}
	return result, rows.Err()
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
