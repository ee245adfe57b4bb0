package model

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderPaid           OrderStatus = "PAID"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderExpired        OrderStatus = "EXPIRED"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPendingPayment, OrderPaid, OrderCancelled, OrderExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether an order may move from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderPendingPayment:
		return next == OrderPaid || next == OrderCancelled || next == OrderExpired
	case OrderPaid, OrderCancelled, OrderExpired:
		return false
	}
	return false
}

// HoldsSeats reports whether seats of an order in status s are SOLD.
func (s OrderStatus) HoldsSeats() bool {
	switch s {
	case OrderPendingPayment, OrderPaid:
		return true
	case OrderCancelled, OrderExpired:
		return false
	}
	return false
}

// Buyer identifies the purchaser of an order.
type Buyer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document,omitempty"`
}

// Order is the durable purchase created from a consumed hold. Amounts are
// fixed at creation: TotalAmountCents == TicketSubtotalCents + ServiceFeeCents
// and TicketSubtotalCents is the sum of the item unit prices.
type Order struct {
	ID                  string      // orders.id
	TenantID            string      // orders.tenant_id
	SessionID           string      // orders.session_id
	HoldID              string      // orders.hold_id, unique
	Status              OrderStatus // orders.status
	Buyer               Buyer       // orders.buyer_*
	TicketSubtotalCents int64       // orders.ticket_subtotal_cents
	ServiceFeeCents     int64       // orders.service_fee_cents
	TotalAmountCents    int64       // orders.total_amount_cents
	CurrencyCode        string      // orders.currency_code
	CreatedAt           time.Time   // orders.created_at
	UpdatedAt           time.Time   // orders.updated_at
}

// OrderItem is one seat of an order. The item set never changes after the
// order is created.
type OrderItem struct {
	OrderID        string // order_items.order_id
	SeatID         string // order_items.seat_id
	UnitPriceCents int64  // order_items.unit_price_cents
}
