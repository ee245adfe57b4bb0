package service

import (
	"context"
	"time"

	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/queue"
)

// Transactor runs fn as one atomic unit of work over the records of a
// session. Repositories called with the context handed to fn take part in
// the same unit; if fn returns an error nothing it wrote is kept.
type Transactor interface {
	WithinSession(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error
}

// Ledger is the only writer of seat status. Every transition is atomic over
// the whole seat set and tagged with the owning hold id.
type Ledger interface {
	// TryReserve moves every seat from AVAILABLE to HELD tagged with holdID,
	// or mutates nothing and returns model.ErrSeatUnavailable.
	TryReserve(ctx context.Context, sessionID, holdID string, seatIDs []string) error
	// Commit moves seats HELD by holdID to SOLD, or returns
	// model.ErrInvalidHoldState if any seat is not HELD by holdID.
	Commit(ctx context.Context, holdID string, seatIDs []string) error
	// Release moves seats HELD by holdID back to AVAILABLE. Seats not HELD by
	// holdID are left alone, so releasing twice is a no-op.
	Release(ctx context.Context, holdID string, seatIDs []string) error
	// Revert moves seats SOLD under holdID back to AVAILABLE. Idempotent.
	Revert(ctx context.Context, holdID string, seatIDs []string) error
}

type SessionReader interface {
	GetSession(ctx context.Context, id string) (model.Session, error)
}

type SeatReader interface {
	ListSeats(ctx context.Context, sessionID string) ([]model.Seat, error)
	// GetSeats returns the seats among seatIDs that belong to sessionID.
	GetSeats(ctx context.Context, sessionID string, seatIDs []string) ([]model.Seat, error)
}

type HoldRepository interface {
	CreateHold(ctx context.Context, hold model.Hold) error
	GetHold(ctx context.Context, id string) (model.Hold, error)
	GetHoldForUpdate(ctx context.Context, id string) (model.Hold, error)
	// TransitionHold sets the status to `to` only if it is currently `from`
	// and reports whether the row changed.
	TransitionHold(ctx context.Context, id string, from, to model.HoldStatus, at time.Time) (bool, error)
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error)
	ListActiveHoldsOfCancelledSessions(ctx context.Context, limit int) ([]model.Hold, error)
}

type OrderRepository interface {
	// CreateOrder stores the order and its items. A second order for the
	// same hold yields model.ErrDuplicateOrder.
	CreateOrder(ctx context.Context, order model.Order, items []model.OrderItem) error
	GetOrder(ctx context.Context, id string) (model.Order, error)
	GetOrderForUpdate(ctx context.Context, id string) (model.Order, error)
	GetOrderByHoldID(ctx context.Context, holdID string) (model.Order, error)
	ListOrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error)
	TransitionOrder(ctx context.Context, id string, from, to model.OrderStatus, at time.Time) (bool, error)
	ListStaleOrders(ctx context.Context, createdBefore time.Time, limit int) ([]model.Order, error)
	ListPendingOrdersOfCancelledSessions(ctx context.Context, limit int) ([]model.Order, error)
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, p model.Payment) error
	// UpdatePayment writes the mutable fields of p only if the stored status
	// is still `from` and reports whether the row changed.
	UpdatePayment(ctx context.Context, p model.Payment, from model.PaymentStatus) (bool, error)
	ListPayments(ctx context.Context, orderID string) ([]model.Payment, error)
}

type RefundRepository interface {
	// CreateRefund stores r. A payment has at most one refund: a second one
	// yields model.ErrRefundIneligible.
	CreateRefund(ctx context.Context, r model.Refund) error
	// CompleteRefund writes the result and provider reference of a PENDING
	// refund and reports whether the row changed.
	CompleteRefund(ctx context.Context, r model.Refund) (bool, error)
	// DiscardRefund removes a PENDING refund. Completed refunds stay.
	DiscardRefund(ctx context.Context, r model.Refund) error
	ListRefunds(ctx context.Context, orderID string) ([]model.Refund, error)
}

// EventPublisher delivers domain events after the state change committed.
// Delivery failures never undo the change.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.Event) error { return nil }

// SweepLock lets several instances share one sweep schedule. Sweeping stays
// correct without it; it only avoids redundant passes.
type SweepLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
