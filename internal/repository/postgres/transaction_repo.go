package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/localcredits/backend/internal/models"
)

// Sub-records are stored flattened; a nil cancelled_by, dispute_raised_by or
// payment_amount means the sub-record is absent.
const transactionWriteColumns = `id, customer_id, provider_id, service_id, credits, agreed_price, description, customer_notes, status,
	requested_at, accepted_at, started_at, completed_at, paid_at,
	provider_contact_shared, customer_contact_shared, contact_shared_at, hold_id,
	payment_amount, payment_paid_at, payment_escrow_released,
	cancelled_by, cancel_reason, cancel_refund_issued, cancelled_at,
	dispute_raised_by, dispute_reason, dispute_resolution, dispute_resolved_by, dispute_split_fraction, disputed_at, dispute_resolved_at,
	version,
	estimated_hours, scheduled_date, estimated_duration, service_address`

const transactionColumns = transactionWriteColumns + `, created_at, updated_at`

type transactionRow struct {
	t models.Transaction

	status string

	paymentAmount   *int64
	paymentPaidAt   *time.Time
	paymentReleased bool

	cancelledBy  *uuid.UUID
	cancelReason string
	cancelRefund bool
	cancelledAt  *time.Time

	disputeRaisedBy   *uuid.UUID
	disputeReason     string
	disputeResolution string
	disputeResolvedBy *uuid.UUID
	disputeFraction   *float64
	disputedAt        *time.Time
	disputeResolvedAt *time.Time
}

func (r *transactionRow) dest() []any {
	t := &r.t
	return []any{
		&t.ID, &t.CustomerID, &t.ProviderID, &t.ServiceID, &t.Pricing.Credits, &t.Pricing.AgreedPrice, &t.Description, &t.CustomerNotes, &r.status,
		&t.Timeline.Requested, &t.Timeline.Accepted, &t.Timeline.Started, &t.Timeline.Completed, &t.Timeline.Paid,
		&t.Contact.ProviderShared, &t.Contact.CustomerShared, &t.Contact.SharedAt, &t.HoldID,
		&r.paymentAmount, &r.paymentPaidAt, &r.paymentReleased,
		&r.cancelledBy, &r.cancelReason, &r.cancelRefund, &r.cancelledAt,
		&r.disputeRaisedBy, &r.disputeReason, &r.disputeResolution, &r.disputeResolvedBy, &r.disputeFraction, &r.disputedAt, &r.disputeResolvedAt,
		&t.Version,
		&t.Pricing.EstimatedHours, &t.Schedule.Date, &t.Schedule.EstimatedDuration, &t.Schedule.Address,
		&t.CreatedAt, &t.UpdatedAt,
	}
}

func (r *transactionRow) model() *models.Transaction {
	t := r.t
	t.Status = models.Status(r.status)
	if r.paymentAmount != nil && r.paymentPaidAt != nil {
		t.Payment = &models.Payment{Amount: *r.paymentAmount, PaidAt: *r.paymentPaidAt, EscrowReleased: r.paymentReleased}
	}
	if r.cancelledBy != nil && r.cancelledAt != nil {
		t.Cancellation = &models.Cancellation{
			CancelledBy:  *r.cancelledBy,
			Reason:       r.cancelReason,
			RefundIssued: r.cancelRefund,
			Timestamp:    *r.cancelledAt,
		}
	}
	if r.disputeRaisedBy != nil && r.disputedAt != nil {
		t.Dispute = &models.Dispute{
			RaisedBy:      *r.disputeRaisedBy,
			Reason:        r.disputeReason,
			Resolution:    models.Resolution(r.disputeResolution),
			ResolvedBy:    r.disputeResolvedBy,
			SplitFraction: r.disputeFraction,
			Timestamp:     *r.disputedAt,
			ResolvedAt:    r.disputeResolvedAt,
		}
	}
	return &t
}

// transactionArgs returns the values of transactionWriteColumns in order.
func transactionArgs(t *models.Transaction) []any {
	var (
		paymentAmount   *int64
		paymentPaidAt   *time.Time
		paymentReleased bool

		cancelledBy  *uuid.UUID
		cancelReason string
		cancelRefund bool
		cancelledAt  *time.Time

		disputeRaisedBy   *uuid.UUID
		disputeReason     string
		disputeResolution string
		disputeResolvedBy *uuid.UUID
		disputeFraction   *float64
		disputedAt        *time.Time
		disputeResolvedAt *time.Time
	)
	if p := t.Payment; p != nil {
		paymentAmount, paymentPaidAt, paymentReleased = &p.Amount, &p.PaidAt, p.EscrowReleased
	}
	if c := t.Cancellation; c != nil {
		cancelledBy, cancelReason, cancelRefund, cancelledAt = &c.CancelledBy, c.Reason, c.RefundIssued, &c.Timestamp
	}
	if d := t.Dispute; d != nil {
		disputeRaisedBy, disputeReason, disputeResolution = &d.RaisedBy, d.Reason, string(d.Resolution)
		disputeResolvedBy, disputeFraction, disputedAt, disputeResolvedAt = d.ResolvedBy, d.SplitFraction, &d.Timestamp, d.ResolvedAt
	}
	return []any{
		t.ID, t.CustomerID, t.ProviderID, t.ServiceID, t.Pricing.Credits, t.Pricing.AgreedPrice, t.Description, t.CustomerNotes, string(t.Status),
		t.Timeline.Requested, t.Timeline.Accepted, t.Timeline.Started, t.Timeline.Completed, t.Timeline.Paid,
		t.Contact.ProviderShared, t.Contact.CustomerShared, t.Contact.SharedAt, t.HoldID,
		paymentAmount, paymentPaidAt, paymentReleased,
		cancelledBy, cancelReason, cancelRefund, cancelledAt,
		disputeRaisedBy, disputeReason, disputeResolution, disputeResolvedBy, disputeFraction, disputedAt, disputeResolvedAt,
		t.Version,
		t.Pricing.EstimatedHours, t.Schedule.Date, t.Schedule.EstimatedDuration, t.Schedule.Address,
	}
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var r transactionRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, err
	}
	return r.model(), nil
}

func getTransaction(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if forUpdate {
		sql += ` FOR NO KEY UPDATE`
	}
	t, err := scanTransaction(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, MapError(err))
	}
	return t, nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return getTransaction(ctx, s.pool, id, false)
}

// ListTransactionsByAccount returns every transaction the account is party to, newest first.
func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE customer_id = $1 OR provider_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", MapError(err))
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (t *pgTx) LockTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return getTransaction(ctx, t.tx, id, true)
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transactions (`+transactionWriteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36, $37)
		RETURNING created_at, updated_at
	`, transactionArgs(txn)...).Scan(&txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", MapError(err))
	}
	return nil
}

// UpdateTransaction rewrites every mutable column. Call after LockTransaction in the same tx.
func (t *pgTx) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE transactions SET
			customer_id = $2, provider_id = $3, service_id = $4, credits = $5, agreed_price = $6, description = $7, customer_notes = $8, status = $9,
			requested_at = $10, accepted_at = $11, started_at = $12, completed_at = $13, paid_at = $14,
			provider_contact_shared = $15, customer_contact_shared = $16, contact_shared_at = $17, hold_id = $18,
			payment_amount = $19, payment_paid_at = $20, payment_escrow_released = $21,
			cancelled_by = $22, cancel_reason = $23, cancel_refund_issued = $24, cancelled_at = $25,
			dispute_raised_by = $26, dispute_reason = $27, dispute_resolution = $28, dispute_resolved_by = $29,
			dispute_split_fraction = $30, disputed_at = $31, dispute_resolved_at = $32,
			version = $33,
			estimated_hours = $34, scheduled_date = $35, estimated_duration = $36, service_address = $37,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, transactionArgs(txn)...).Scan(&txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", txn.ID, MapError(err))
	}
	return nil
}
