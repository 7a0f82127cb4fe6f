package escrow

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists escrow payments and payouts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed escrow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const paymentColumns = `id, chore_id, order_id, processor_payment_id, transfer_id, refund_id,
			 amount, platform_fee, worker_payout, currency, status, failure_reason,
			 created_at, updated_at`

func (p *PostgresStore) CreatePayment(ctx context.Context, pay *Payment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO escrow_payments (
			id, chore_id, order_id, processor_payment_id, transfer_id, refund_id,
			amount, platform_fee, worker_payout, currency, status, failure_reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		pay.ID, pay.ChoreID, pay.OrderID, nullString(pay.ProcessorPaymentID),
		nullString(pay.TransferID), nullString(pay.RefundID),
		pay.Amount, pay.PlatformFee, pay.WorkerPayout, pay.Currency,
		string(pay.Status), nullString(pay.FailureReason),
		pay.CreatedAt, pay.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetPayment(ctx context.Context, id string) (*Payment, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM escrow_payments WHERE id = $1`, id)
	return scanPaymentRow(row)
}

func (p *PostgresStore) GetPaymentByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM escrow_payments WHERE order_id = $1`, orderID)
	return scanPaymentRow(row)
}

func (p *PostgresStore) GetPaymentByProcessorID(ctx context.Context, processorPaymentID string) (*Payment, error) {
	if processorPaymentID == "" {
		return nil, ErrPaymentNotFound
	}
	row := p.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM escrow_payments WHERE processor_payment_id = $1`, processorPaymentID)
	return scanPaymentRow(row)
}

func (p *PostgresStore) UpdatePayment(ctx context.Context, pay *Payment) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE escrow_payments SET
			processor_payment_id = $1, transfer_id = $2, refund_id = $3,
			status = $4, failure_reason = $5, updated_at = $6
		WHERE id = $7`,
		nullString(pay.ProcessorPaymentID), nullString(pay.TransferID), nullString(pay.RefundID),
		string(pay.Status), nullString(pay.FailureReason), pay.UpdatedAt,
		pay.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (p *PostgresStore) ListPaymentsByChore(ctx context.Context, choreID string) ([]*Payment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM escrow_payments
		WHERE chore_id = $1
		ORDER BY created_at DESC`, choreID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Payment
	for rows.Next() {
		pay, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pay)
	}
	return result, rows.Err()
}

func (p *PostgresStore) LatestActivePayment(ctx context.Context, choreID string) (*Payment, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM escrow_payments
		WHERE chore_id = $1 AND status != 'FAILED'
		ORDER BY created_at DESC
		LIMIT 1`, choreID)
	return scanPaymentRow(row)
}

func (p *PostgresStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Payment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM escrow_payments
		WHERE status = 'PENDING' AND created_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Payment
	for rows.Next() {
		pay, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pay)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CreatePayout(ctx context.Context, out *Payout) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO worker_payouts (
			id, chore_id, payment_id, transfer_id, amount,
			status, released_by, failure_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		out.ID, out.ChoreID, nullString(out.PaymentID), nullString(out.TransferID),
		out.Amount, string(out.Status), out.ReleasedBy, nullString(out.FailureReason),
		out.CreatedAt,
	)
	return err
}

func (p *PostgresStore) LatestPayoutByChore(ctx context.Context, choreID string) (*Payout, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, chore_id, payment_id, transfer_id, amount,
		       status, released_by, failure_reason, created_at
		FROM worker_payouts
		WHERE chore_id = $1
		ORDER BY (status = 'RELEASED') DESC, created_at DESC
		LIMIT 1`, choreID)

	out := &Payout{}
	var (
		paymentID     sql.NullString
		transferID    sql.NullString
		status        string
		failureReason sql.NullString
	)
	err := row.Scan(
		&out.ID, &out.ChoreID, &paymentID, &transferID, &out.Amount,
		&status, &out.ReleasedBy, &failureReason, &out.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	out.PaymentID = paymentID.String
	out.TransferID = transferID.String
	out.Status = PayoutStatus(status)
	out.FailureReason = failureReason.String
	return out, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPaymentRow(row *sql.Row) (*Payment, error) {
	pay, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	return pay, err
}

func scanPayment(s scanner) (*Payment, error) {
	pay := &Payment{}
	var (
		processorPaymentID sql.NullString
		transferID         sql.NullString
		refundID           sql.NullString
		status             string
		failureReason      sql.NullString
	)

	err := s.Scan(
		&pay.ID, &pay.ChoreID, &pay.OrderID, &processorPaymentID, &transferID, &refundID,
		&pay.Amount, &pay.PlatformFee, &pay.WorkerPayout, &pay.Currency, &status, &failureReason,
		&pay.CreatedAt, &pay.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	pay.ProcessorPaymentID = processorPaymentID.String
	pay.TransferID = transferID.String
	pay.RefundID = refundID.String
	pay.Status = PaymentStatus(status)
	pay.FailureReason = failureReason.String
	return pay, nil
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
