package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ticketing-core/internal/model"
)

// PaymentRepo stores payment attempts. Rows are never deleted; only the
// status and provider fields change, always through a compare-and-set.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, order_id, method, gateway, status, provider_payment_id, failure_reason, attempts, amount_cents, created_at, updated_at`

// CreatePayment inserts a new payment attempt.
func (r *PaymentRepo) CreatePayment(ctx context.Context, p model.Payment) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, string(p.Method), p.Gateway, string(p.Status),
		nullString(p.ProviderPaymentID), nullString(p.FailureReason), p.Attempts, p.AmountCents,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	return err
}

// UpdatePayment writes status, provider reference, failure reason and the
// attempt counter when the stored status is still `from`.
func (r *PaymentRepo) UpdatePayment(ctx context.Context, p model.Payment, from model.PaymentStatus) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE payments SET status = ?, provider_payment_id = ?, failure_reason = ?, attempts = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(p.Status), nullString(p.ProviderPaymentID), nullString(p.FailureReason), p.Attempts, p.UpdatedAt.UTC(),
		p.ID, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListPayments returns every attempt of an order, oldest first.
func (r *PaymentRepo) ListPayments(ctx context.Context, orderID string) ([]model.Payment, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = ? ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	payments := []model.Payment{}
	for rows.Next() {
		var (
			p              model.Payment
			provider, fail sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Method, &p.Gateway, &p.Status, &provider, &fail,
			&p.Attempts, &p.AmountCents, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.ProviderPaymentID = provider.String
		p.FailureReason = fail.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
