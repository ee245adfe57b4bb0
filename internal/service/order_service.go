package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/ticketing-core/internal/clock"
	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/queue"
)

// OrderService turns an ACTIVE hold into a PENDING_PAYMENT order. The hold
// id is the idempotency key: repeated or concurrent calls for the same hold
// all observe the one order that was created.
type OrderService struct {
	tx       Transactor
	ledger   Ledger
	sessions SessionReader
	seats    SeatReader
	holds    HoldRepository
	orders   OrderRepository
	payments PaymentRepository
	events   EventPublisher
	clock    clock.Clock
	fees     FeePolicy
}

type OrderServiceOption func(*OrderService)

// WithFeePolicy sets how service fees are computed.
func WithFeePolicy(p FeePolicy) OrderServiceOption {
	return func(s *OrderService) { s.fees = p }
}

// WithOrderEvents sets the publisher of order events.
func WithOrderEvents(p EventPublisher) OrderServiceOption {
	return func(s *OrderService) { s.events = p }
}

func NewOrderService(tx Transactor, ledger Ledger, sessions SessionReader, seats SeatReader, holds HoldRepository, orders OrderRepository, payments PaymentRepository, clk clock.Clock, opts ...OrderServiceOption) *OrderService {
	s := &OrderService{
		tx:       tx,
		ledger:   ledger,
		sessions: sessions,
		seats:    seats,
		holds:    holds,
		orders:   orders,
		payments: payments,
		events:   NopPublisher{},
		clock:    clk,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateOrderInput struct {
	TenantID string
	HoldID   string
	Buyer    model.Buyer
}

type OrderResult struct {
	Order model.Order
	Items []model.OrderItem
	Hold  model.Hold
	// Created is false when the call replayed an earlier success.
	Created bool
}

func validateBuyer(b model.Buyer) error {
	if strings.TrimSpace(b.Name) == "" {
		return model.Invalid("buyer.name", "is required")
	}
	if len(b.Name) > 200 {
		return model.Invalid("buyer.name", "must be at most 200 characters")
	}
	if _, err := mail.ParseAddress(b.Email); err != nil || len(b.Email) > 254 {
		return model.Invalid("buyer.email", "is not a valid address")
	}
	if len(b.Document) > 40 {
		return model.Invalid("buyer.document", "must be at most 40 characters")
	}
	return nil
}

// CreateOrder commits the hold's seats as SOLD, consumes the hold and
// creates the order with its items in one unit of work. Either all of it
// happens or the seats stay HELD and the hold stays ACTIVE.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (res OrderResult, err error) {
	ctx, span := startSpan(ctx, "OrderService.CreateOrder", attribute.String("hold.id", in.HoldID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(in.HoldID) == "" {
		return OrderResult{}, model.Invalid("holdId", "is required")
	}
	if err := validateBuyer(in.Buyer); err != nil {
		return OrderResult{}, err
	}

	hold, err := s.holds.GetHold(ctx, in.HoldID)
	if err != nil {
		return OrderResult{}, err
	}
	if hold.TenantID != in.TenantID {
		return OrderResult{}, model.ErrHoldNotFound
	}

	now := s.clock.Now()
	err = s.tx.WithinSession(ctx, hold.SessionID, func(ctx context.Context) error {
		h, err := s.holds.GetHoldForUpdate(ctx, in.HoldID)
		if err != nil {
			return err
		}
		switch h.Status {
		case model.HoldActive:
		case model.HoldConsumed:
			existing, err := s.orders.GetOrderByHoldID(ctx, h.ID)
			if errors.Is(err, model.ErrOrderNotFound) {
				return model.ErrHoldAlreadyConsumed
			}
			if err != nil {
				return err
			}
			items, err := s.orders.ListOrderItems(ctx, existing.ID)
			if err != nil {
				return err
			}
			res = OrderResult{Order: existing, Items: items, Hold: h}
			return nil
		case model.HoldExpired:
			return model.ErrHoldExpired
		case model.HoldReleased:
			return fmt.Errorf("hold was released: %w", model.ErrHoldNotActive)
		default:
			return fmt.Errorf("hold %s in unknown status %q", h.ID, h.Status)
		}
		if h.ExpiredAt(now) {
			return model.ErrHoldExpired
		}

		session, err := s.sessions.GetSession(ctx, h.SessionID)
		if err != nil {
			return err
		}
		seats, err := s.seats.GetSeats(ctx, h.SessionID, h.SeatIDs)
		if err != nil {
			return err
		}
		prices := make(map[string]int64, len(seats))
		for _, seat := range seats {
			prices[seat.ID] = seat.EffectivePrice(session.DefaultPriceCents)
		}

		if err := s.ledger.Commit(ctx, h.ID, h.SeatIDs); err != nil {
			return err
		}
		ok, err := s.holds.TransitionHold(ctx, h.ID, model.HoldActive, model.HoldConsumed, now)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrHoldAlreadyConsumed
		}
		h.Status = model.HoldConsumed
		h.UpdatedAt = now

		order := model.Order{
			ID:           uuid.NewString(),
			TenantID:     h.TenantID,
			SessionID:    h.SessionID,
			HoldID:       h.ID,
			Status:       model.OrderPendingPayment,
			Buyer:        in.Buyer,
			CurrencyCode: session.CurrencyCode,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		items := make([]model.OrderItem, 0, len(h.SeatIDs))
		for _, seatID := range h.SeatIDs {
			price, ok := prices[seatID]
			if !ok {
				return fmt.Errorf("price seat %s: %w", seatID, model.ErrInvalidHoldState)
			}
			items = append(items, model.OrderItem{OrderID: order.ID, SeatID: seatID, UnitPriceCents: price})
			order.TicketSubtotalCents += price
		}
		order.ServiceFeeCents = s.fees.Fee(order.TicketSubtotalCents, len(items))
		order.TotalAmountCents = order.TicketSubtotalCents + order.ServiceFeeCents

		if err := s.orders.CreateOrder(ctx, order, items); err != nil {
			return err
		}
		res = OrderResult{Order: order, Items: items, Hold: h, Created: true}
		return nil
	})
	if errors.Is(err, model.ErrDuplicateOrder) {
		// Another writer created the order between our read and insert.
		return s.replay(ctx, in.HoldID)
	}
	if err != nil {
		return OrderResult{}, err
	}

	if res.Created {
		ev := queue.NewEvent(queue.OrderCreated, now)
		ev.TenantID, ev.SessionID, ev.HoldID, ev.OrderID = res.Order.TenantID, res.Order.SessionID, res.Order.HoldID, res.Order.ID
		ev.SeatIDs, ev.AmountCents, ev.Currency = res.Hold.SeatIDs, res.Order.TotalAmountCents, res.Order.CurrencyCode
		publish(ctx, s.events, ev)
	}
	return res, nil
}

func (s *OrderService) replay(ctx context.Context, holdID string) (OrderResult, error) {
	order, err := s.orders.GetOrderByHoldID(ctx, holdID)
	if err != nil {
		return OrderResult{}, err
	}
	items, err := s.orders.ListOrderItems(ctx, order.ID)
	if err != nil {
		return OrderResult{}, err
	}
	hold, err := s.holds.GetHold(ctx, holdID)
	if err != nil {
		return OrderResult{}, err
	}
	return OrderResult{Order: order, Items: items, Hold: hold}, nil
}

// OrderDetails is an order with its items, payment attempts and hold.
type OrderDetails struct {
	Order    model.Order
	Items    []model.OrderItem
	Payments []model.Payment
	Hold     model.Hold
}

// GetOrder returns an order of the tenant with everything attached to it.
func (s *OrderService) GetOrder(ctx context.Context, tenantID, orderID string) (OrderDetails, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return OrderDetails{}, err
	}
	if order.TenantID != tenantID {
		return OrderDetails{}, model.ErrOrderNotFound
	}
	items, err := s.orders.ListOrderItems(ctx, order.ID)
	if err != nil {
		return OrderDetails{}, err
	}
	payments, err := s.payments.ListPayments(ctx, order.ID)
	if err != nil {
		return OrderDetails{}, err
	}
	hold, err := s.holds.GetHold(ctx, order.HoldID)
	if err != nil {
		return OrderDetails{}, err
	}
	return OrderDetails{Order: order, Items: items, Payments: payments, Hold: hold}, nil
}
