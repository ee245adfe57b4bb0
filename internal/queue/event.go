// Package queue defines the domain events exchanged over the message broker
// together with the publisher and the audit-log consumer.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys of the events published on the ticketing exchange.
const (
	HoldCreated     = "hold.created"
	HoldReleased    = "hold.released"
	HoldExpired     = "hold.expired"
	OrderCreated    = "order.created"
	OrderPaid       = "order.paid"
	OrderExpired    = "order.expired"
	OrderCancelled  = "order.cancelled"
	PaymentDenied   = "payment.denied"
	PaymentFailed   = "payment.failed"
	RefundCompleted = "refund.completed"
)

// Event is published after a checkout state change is committed. It carries
// enough information for downstream consumers to log, notify or trigger
// analytics without querying the primary database.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	TenantID    string    `json:"tenant_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	HoldID      string    `json:"hold_id,omitempty"`
	OrderID     string    `json:"order_id,omitempty"`
	PaymentID   string    `json:"payment_id,omitempty"`
	SeatIDs     []string  `json:"seat_ids,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Status      string    `json:"status,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewEvent returns an event of the given type with a fresh id.
func NewEvent(typ string, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: typ, OccurredAt: at.UTC()}
}
