package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/ticketing-core/internal/clock"
	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/payment"
	"github.com/iliyamo/ticketing-core/internal/queue"
)

// RefundService reverses the approved payment of a paid order. The order
// itself stays PAID; invalidating tickets belongs to another system.
type RefundService struct {
	tx       Transactor
	orders   OrderRepository
	payments PaymentRepository
	refunds  RefundRepository
	gateways *payment.Registry
	retry    payment.RetryPolicy
	events   EventPublisher
	clock    clock.Clock
}

type RefundServiceOption func(*RefundService)

func WithRefundRetryPolicy(p payment.RetryPolicy) RefundServiceOption {
	return func(s *RefundService) { s.retry = p }
}

func WithRefundEvents(p EventPublisher) RefundServiceOption {
	return func(s *RefundService) { s.events = p }
}

func NewRefundService(tx Transactor, orders OrderRepository, payments PaymentRepository, refunds RefundRepository, gateways *payment.Registry, clk clock.Clock, opts ...RefundServiceOption) *RefundService {
	s := &RefundService{
		tx:       tx,
		orders:   orders,
		payments: payments,
		refunds:  refunds,
		gateways: gateways,
		retry:    payment.DefaultRetryPolicy,
		events:   NopPublisher{},
		clock:    clk,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RefundInput struct {
	TenantID          string
	OrderID           string
	ReasonCode        string
	ReasonDescription string
}

func (in RefundInput) validate() error {
	code := strings.TrimSpace(in.ReasonCode)
	if code == "" {
		return model.Invalid("reasonCode", "is required")
	}
	if len(code) > 60 {
		return model.Invalid("reasonCode", "must be at most 60 characters")
	}
	if len(in.ReasonDescription) > 500 {
		return model.Invalid("reasonDescription", "must be at most 500 characters")
	}
	return nil
}

// Refund reverses the single APPROVED payment of a PAID order. Anything
// else is model.ErrRefundIneligible and changes nothing. The refund is
// claimed as PENDING before the provider is called, so of two concurrent
// requests only one reaches the provider. A provider failure discards the
// claim, leaving the order as it was for the caller to retry.
func (s *RefundService) Refund(ctx context.Context, in RefundInput) (refund model.Refund, err error) {
	ctx, span := startSpan(ctx, "RefundService.Refund", attribute.String("order.id", in.OrderID))
	defer func() { endSpan(span, err) }()

	if err := in.validate(); err != nil {
		return model.Refund{}, err
	}
	order, err := s.orders.GetOrder(ctx, in.OrderID)
	if err != nil {
		return model.Refund{}, err
	}
	if order.TenantID != in.TenantID {
		return model.Refund{}, model.ErrOrderNotFound
	}
	p, err := s.refundable(ctx, order)
	if err != nil {
		return model.Refund{}, err
	}
	gw, err := s.gateways.Lookup(p.Gateway)
	if err != nil {
		return model.Refund{}, fmt.Errorf("%w: %v", model.ErrPaymentGateway, err)
	}

	now := s.clock.Now()
	refund = model.Refund{
		ID:                uuid.NewString(),
		PaymentID:         p.ID,
		OrderID:           order.ID,
		ReasonCode:        strings.TrimSpace(in.ReasonCode),
		ReasonDescription: in.ReasonDescription,
		ResultStatus:      model.RefundPending,
		AmountCents:       p.AmountCents,
		CreatedAt:         now,
	}
	if err := s.claim(ctx, order, refund); err != nil {
		return model.Refund{}, err
	}

	providerRef, err := payment.Reverse(ctx, gw, p.ProviderPaymentID, p.AmountCents, s.retry)
	if err != nil {
		log.Printf("[refunds] reversal failed order_id=%s payment_id=%s gateway=%s: %v", order.ID, p.ID, p.Gateway, err)
		if derr := s.refunds.DiscardRefund(context.WithoutCancel(ctx), refund); derr != nil {
			log.Printf("[refunds] could not discard claim refund_id=%s order_id=%s: %v", refund.ID, order.ID, derr)
		}
		return model.Refund{}, fmt.Errorf("%w: %v", model.ErrPaymentGateway, err)
	}

	refund.ResultStatus = model.RefundSucceeded
	refund.ProviderRefundID = providerRef
	err = s.tx.WithinSession(context.WithoutCancel(ctx), order.SessionID, func(ctx context.Context) error {
		p.Status = model.PaymentRefunded
		p.UpdatedAt = now
		ok, err := s.payments.UpdatePayment(ctx, p, model.PaymentApproved)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("payment %s is no longer approved", p.ID)
		}
		ok, err = s.refunds.CompleteRefund(ctx, refund)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("refund %s is no longer pending", refund.ID)
		}
		return nil
	})
	if err != nil {
		log.Printf("[refunds] provider reversed but state not recorded order_id=%s payment_id=%s refund_id=%s provider_ref=%s: %v",
			order.ID, p.ID, refund.ID, providerRef, err)
		return model.Refund{}, err
	}

	ev := queue.NewEvent(queue.RefundCompleted, now)
	ev.TenantID, ev.SessionID, ev.OrderID, ev.PaymentID = order.TenantID, order.SessionID, order.ID, p.ID
	ev.AmountCents, ev.Currency, ev.Reason = refund.AmountCents, order.CurrencyCode, refund.ReasonCode
	publish(ctx, s.events, ev)
	return refund, nil
}

// claim stores the PENDING refund while the order is still PAID. A refund
// already claimed for the payment yields model.ErrRefundIneligible.
func (s *RefundService) claim(ctx context.Context, order model.Order, refund model.Refund) error {
	return s.tx.WithinSession(ctx, order.SessionID, func(ctx context.Context) error {
		cur, err := s.orders.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.OrderPaid {
			return fmt.Errorf("order is %s: %w", cur.Status, model.ErrRefundIneligible)
		}
		if err := s.refunds.CreateRefund(ctx, refund); err != nil {
			if errors.Is(err, model.ErrRefundIneligible) {
				return fmt.Errorf("payment %s already has a refund: %w", refund.PaymentID, err)
			}
			return err
		}
		return nil
	})
}

// refundable returns the one APPROVED payment of a PAID order.
func (s *RefundService) refundable(ctx context.Context, order model.Order) (model.Payment, error) {
	if order.Status != model.OrderPaid {
		return model.Payment{}, fmt.Errorf("order is %s: %w", order.Status, model.ErrRefundIneligible)
	}
	payments, err := s.payments.ListPayments(ctx, order.ID)
	if err != nil {
		return model.Payment{}, err
	}
	var approved []model.Payment
	for _, p := range payments {
		if p.Status == model.PaymentApproved {
			approved = append(approved, p)
		}
	}
	if len(approved) != 1 {
		return model.Payment{}, fmt.Errorf("order has %d approved payments: %w", len(approved), model.ErrRefundIneligible)
	}
	return approved[0], nil
}

// ListRefunds returns the refunds recorded for an order of the tenant.
func (s *RefundService) ListRefunds(ctx context.Context, tenantID, orderID string) ([]model.Refund, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.TenantID != tenantID {
		return nil, model.ErrOrderNotFound
	}
	return s.refunds.ListRefunds(ctx, orderID)
}
