package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticketing-core/internal/model"
)

// OrderRepo provides access to orders and their items. An order's item set
// is written once together with the order and never updated.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = `id, tenant_id, session_id, hold_id, status, buyer_name, buyer_email, buyer_document,
	ticket_subtotal_cents, service_fee_cents, total_amount_cents, currency_code, created_at, updated_at`

// CreateOrder inserts the order and its items in one transaction. The
// unique key on hold_id turns a second order for the same hold into
// model.ErrDuplicateOrder.
func (r *OrderRepo) CreateOrder(ctx context.Context, o model.Order, items []model.OrderItem) error {
	return withTx(ctx, r.db, func(ctx context.Context) error {
		q := conn(ctx, r.db)
		_, err := q.ExecContext(ctx,
			`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.TenantID, o.SessionID, o.HoldID, string(o.Status),
			o.Buyer.Name, o.Buyer.Email, nullString(o.Buyer.Document),
			o.TicketSubtotalCents, o.ServiceFeeCents, o.TotalAmountCents, o.CurrencyCode,
			o.CreatedAt.UTC(), o.CreatedAt.UTC())
		if isDuplicateKey(err) {
			return model.ErrDuplicateOrder
		}
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		query := `INSERT INTO order_items (order_id, seat_id, unit_price_cents) VALUES `
		args := make([]any, 0, len(items)*3)
		for i, it := range items {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?)"
			args = append(args, o.ID, it.SeatID, it.UnitPriceCents)
		}
		_, err = q.ExecContext(ctx, query, args...)
		return err
	})
}

// GetOrder loads an order or returns model.ErrOrderNotFound.
func (r *OrderRepo) GetOrder(ctx context.Context, id string) (model.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

// GetOrderForUpdate is GetOrder with a row lock held until the surrounding
// transaction ends.
func (r *OrderRepo) GetOrderForUpdate(ctx context.Context, id string) (model.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
}

// GetOrderByHoldID loads the order created from a hold.
func (r *OrderRepo) GetOrderByHoldID(ctx context.Context, holdID string) (model.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE hold_id = ?`, holdID)
}

func (r *OrderRepo) get(ctx context.Context, query string, arg string) (model.Order, error) {
	o, err := scanOrder(conn(ctx, r.db).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, model.ErrOrderNotFound
	}
	return o, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (model.Order, error) {
	var (
		o   model.Order
		doc sql.NullString
	)
	err := row.Scan(&o.ID, &o.TenantID, &o.SessionID, &o.HoldID, &o.Status,
		&o.Buyer.Name, &o.Buyer.Email, &doc,
		&o.TicketSubtotalCents, &o.ServiceFeeCents, &o.TotalAmountCents, &o.CurrencyCode,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}
	o.Buyer.Document = doc.String
	return o, nil
}

// ListOrderItems returns the items of an order in seat order of the hold.
func (r *OrderRepo) ListOrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT oi.order_id, oi.seat_id, oi.unit_price_cents
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 LEFT JOIN hold_seats hs ON hs.hold_id = o.hold_id AND hs.seat_id = oi.seat_id
		 WHERE oi.order_id = ? ORDER BY hs.position, oi.seat_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []model.OrderItem{}
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.OrderID, &it.SeatID, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// TransitionOrder performs a compare-and-set on the order status.
func (r *OrderRepo) TransitionOrder(ctx context.Context, id string, from, to model.OrderStatus, at time.Time) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), at.UTC(), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListStaleOrders returns up to limit PENDING_PAYMENT orders created at or
// before createdBefore that have no APPROVED payment.
func (r *OrderRepo) ListStaleOrders(ctx context.Context, createdBefore time.Time, limit int) ([]model.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders o
		 WHERE o.status = 'PENDING_PAYMENT' AND o.created_at <= ?
		   AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.order_id = o.id AND p.status = 'APPROVED')
		 ORDER BY o.created_at LIMIT ?`,
		createdBefore.UTC(), limit)
}

// ListPendingOrdersOfCancelledSessions returns up to limit PENDING_PAYMENT
// orders whose session has been cancelled.
func (r *OrderRepo) ListPendingOrdersOfCancelledSessions(ctx context.Context, limit int) ([]model.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders o
		 WHERE o.status = 'PENDING_PAYMENT'
		   AND o.session_id IN (SELECT id FROM sessions WHERE status = 'CANCELLED')
		 ORDER BY o.created_at LIMIT ?`,
		limit)
}

func (r *OrderRepo) list(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
