package dispute

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/chorebay/chorebay/internal/chore"
)

// PostgresStore persists disputes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed dispute store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const disputeColumns = `id, chore_id, raised_by, reason, status, resolution,
			 resolved_by, resolution_notes, refund_id,
			 amount_refunded, worker_payout_adjustment,
			 created_at, updated_at, resolved_at`

func (p *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO disputes (
			id, chore_id, raised_by, reason, status, resolution,
			resolved_by, resolution_notes, refund_id,
			amount_refunded, worker_payout_adjustment,
			created_at, updated_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, d.ChoreID, d.RaisedBy, d.Reason, string(d.Status), nullString(string(d.Resolution)),
		nullString(d.ResolvedBy), nullString(d.ResolutionNotes), nullString(d.RefundID),
		d.AmountRefunded, d.WorkerPayoutAdjustment,
		d.CreatedAt, d.UpdatedAt, nullTime(d.ResolvedAt),
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)

	d, err := scanDispute(row)
	if err == sql.ErrNoRows {
		return nil, ErrDisputeNotFound
	}
	return d, err
}

func (p *PostgresStore) Update(ctx context.Context, d *Dispute) error {
	result, err := p.db.ExecContext(ctx, disputeUpdateSQL,
		string(d.Status), nullString(string(d.Resolution)), nullString(d.ResolvedBy),
		nullString(d.ResolutionNotes), nullString(d.RefundID),
		d.AmountRefunded, d.WorkerPayoutAdjustment,
		d.UpdatedAt, nullTime(d.ResolvedAt), d.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

const disputeUpdateSQL = `
	UPDATE disputes SET
		status = $1, resolution = $2, resolved_by = $3,
		resolution_notes = $4, refund_id = $5,
		amount_refunded = $6, worker_payout_adjustment = $7,
		updated_at = $8, resolved_at = $9
	WHERE id = $10`

func (p *PostgresStore) ListByChore(ctx context.Context, choreID string) ([]*Dispute, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE chore_id = $1
		ORDER BY created_at DESC`, choreID)
	if err != nil {
		return nil, err
	}
	return collectDisputes(rows)
}

func (p *PostgresStore) ListByStatus(ctx context.Context, statuses []Status, limit int) ([]*Dispute, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]interface{}, 0, len(statuses)+1)
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, string(s))
	}
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE status IN (%s)
		ORDER BY created_at ASC
		LIMIT $%d`, strings.Join(placeholders, ", "), len(statuses)+1), args...)
	if err != nil {
		return nil, err
	}
	return collectDisputes(rows)
}

func (p *PostgresStore) HasOpenByChore(ctx context.Context, choreID string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM disputes
			WHERE chore_id = $1 AND status IN ('OPEN', 'IN_REVIEW')
		)`, choreID).Scan(&exists)
	return exists, err
}

// ResolveAtomic writes the dispute's resolution and the chore's terminal
// state in one transaction. The chore's status write is guarded: a chore
// already in CLOSED or CANCELLED keeps its status, and only the escrow
// side (if any) is recorded.
func (p *PostgresStore) ResolveAtomic(ctx context.Context, d *Dispute, cr *ChoreResolution) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, disputeUpdateSQL,
		string(d.Status), nullString(string(d.Resolution)), nullString(d.ResolvedBy),
		nullString(d.ResolutionNotes), nullString(d.RefundID),
		d.AmountRefunded, d.WorkerPayoutAdjustment,
		d.UpdatedAt, nullTime(d.ResolvedAt), d.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDisputeNotFound
	}

	if cr != nil {
		var closedAt interface{}
		if cr.Status == chore.StatusClosed {
			closedAt = time.Now()
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE chores SET status = $1,
				escrow_state = COALESCE(NULLIF($2, ''), escrow_state),
				closed_at = COALESCE($3, closed_at), updated_at = NOW()
			WHERE id = $4 AND status NOT IN ('CLOSED', 'CANCELLED')`,
			string(cr.Status), string(cr.Escrow), closedAt, cr.ChoreID)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 && cr.Escrow != "" {
			_, err = tx.ExecContext(ctx, `
				UPDATE chores SET escrow_state = $1, updated_at = NOW()
				WHERE id = $2`,
				string(cr.Escrow), cr.ChoreID)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func collectDisputes(rows *sql.Rows) ([]*Dispute, error) {
	defer func() { _ = rows.Close() }()

	var result []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDispute(s scanner) (*Dispute, error) {
	d := &Dispute{}
	var (
		status          string
		resolution      sql.NullString
		resolvedBy      sql.NullString
		resolutionNotes sql.NullString
		refundID        sql.NullString
		resolvedAt      sql.NullTime
	)

	err := s.Scan(
		&d.ID, &d.ChoreID, &d.RaisedBy, &d.Reason, &status, &resolution,
		&resolvedBy, &resolutionNotes, &refundID,
		&d.AmountRefunded, &d.WorkerPayoutAdjustment,
		&d.CreatedAt, &d.UpdatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Status = Status(status)
	d.Resolution = Action(resolution.String)
	d.ResolvedBy = resolvedBy.String
	d.ResolutionNotes = resolutionNotes.String
	d.RefundID = refundID.String
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	return d, nil
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
