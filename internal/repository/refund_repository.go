package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ticketing-core/internal/model"
)

// RefundRepo stores refunds. The unique key on payment_id allows one refund
// per payment; only a PENDING row may be completed or discarded.
type RefundRepo struct {
	db *sql.DB
}

// NewRefundRepo returns a new RefundRepo bound to the given database.
func NewRefundRepo(db *sql.DB) *RefundRepo { return &RefundRepo{db: db} }

const refundColumns = `id, payment_id, order_id, reason_code, reason_description, result_status, amount_cents, provider_refund_id, created_at`

// CreateRefund inserts rf. A second refund of the same payment yields
// model.ErrRefundIneligible.
func (r *RefundRepo) CreateRefund(ctx context.Context, rf model.Refund) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO refunds (`+refundColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rf.ID, rf.PaymentID, rf.OrderID, rf.ReasonCode, nullString(rf.ReasonDescription),
		string(rf.ResultStatus), rf.AmountCents, nullString(rf.ProviderRefundID), rf.CreatedAt.UTC())
	if isDuplicateKey(err) {
		return model.ErrRefundIneligible
	}
	return err
}

// CompleteRefund moves a PENDING refund to rf.ResultStatus with the
// provider reference and reports whether the row changed.
func (r *RefundRepo) CompleteRefund(ctx context.Context, rf model.Refund) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE refunds SET result_status = ?, provider_refund_id = ? WHERE id = ? AND result_status = ?`,
		string(rf.ResultStatus), nullString(rf.ProviderRefundID), rf.ID, string(model.RefundPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DiscardRefund deletes a PENDING refund so the payment can be refunded
// again. Completed refunds are left alone.
func (r *RefundRepo) DiscardRefund(ctx context.Context, rf model.Refund) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM refunds WHERE id = ? AND result_status = ?`, rf.ID, string(model.RefundPending))
	return err
}

func (r *RefundRepo) ListRefunds(ctx context.Context, orderID string) ([]model.Refund, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE order_id = ? ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	refunds := []model.Refund{}
	for rows.Next() {
		var (
			rf             model.Refund
			desc, provider sql.NullString
		)
		if err := rows.Scan(&rf.ID, &rf.PaymentID, &rf.OrderID, &rf.ReasonCode, &desc,
			&rf.ResultStatus, &rf.AmountCents, &provider, &rf.CreatedAt); err != nil {
			return nil, err
		}
		rf.ReasonDescription = desc.String
		rf.ProviderRefundID = provider.String
		refunds = append(refunds, rf)
	}
	return refunds, rows.Err()
}
