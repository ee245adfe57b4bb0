package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/ticketing-core/internal/clock"
	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/payment"
	"github.com/iliyamo/ticketing-core/internal/queue"
)

const maxCardTokenLen = 128

// PaymentService records payment attempts and drives orders to PAID. The
// provider call happens outside every unit of work: seats are already SOLD
// when an order is paid, so no inventory is locked while waiting on I/O.
type PaymentService struct {
	tx       Transactor
	orders   OrderRepository
	payments PaymentRepository
	gateways *payment.Registry
	retry    payment.RetryPolicy
	events   EventPublisher
	clock    clock.Clock
}

type PaymentServiceOption func(*PaymentService)

// WithRetryPolicy overrides the retry budget for transient provider errors.
func WithRetryPolicy(p payment.RetryPolicy) PaymentServiceOption {
	return func(s *PaymentService) { s.retry = p }
}

// WithPaymentEvents sets the publisher of payment events.
func WithPaymentEvents(p EventPublisher) PaymentServiceOption {
	return func(s *PaymentService) { s.events = p }
}

func NewPaymentService(tx Transactor, orders OrderRepository, payments PaymentRepository, gateways *payment.Registry, clk clock.Clock, opts ...PaymentServiceOption) *PaymentService {
	s := &PaymentService{
		tx:       tx,
		orders:   orders,
		payments: payments,
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

type SubmitPaymentInput struct {
	TenantID  string
	OrderID   string
	Method    string
	Gateway   string
	CardToken string
}

type PaymentResult struct {
	Payment model.Payment
	Order   model.Order
}

func (in SubmitPaymentInput) validate() (model.PaymentMethod, error) {
	method, err := model.ParsePaymentMethod(in.Method)
	if err != nil {
		return "", err
	}
	if in.Gateway != "" && !payment.ValidCode(in.Gateway) {
		return "", model.Invalid("gateway", "must be 1-40 lowercase letters, digits or underscores")
	}
	if len(in.CardToken) > maxCardTokenLen {
		return "", model.Invalid("cardToken", "must be at most %d characters", maxCardTokenLen)
	}
	if method.IsCard() && in.CardToken == "" {
		return "", model.Invalid("cardToken", "is required for %s", method)
	}
	return method, nil
}

// SubmitPayment makes one payment attempt for an order awaiting payment.
// The attempt is stored as PENDING before the provider is contacted. A
// denial returns the DENIED attempt together with model.ErrPaymentDenied;
// an exhausted retry budget returns the ERROR attempt together with
// model.ErrPaymentGateway. In both cases the order stays PENDING_PAYMENT.
func (s *PaymentService) SubmitPayment(ctx context.Context, in SubmitPaymentInput) (res PaymentResult, err error) {
	ctx, span := startSpan(ctx, "PaymentService.SubmitPayment",
		attribute.String("order.id", in.OrderID), attribute.String("payment.method", in.Method))
	defer func() { endSpan(span, err) }()

	method, err := in.validate()
	if err != nil {
		return PaymentResult{}, err
	}
	order, err := s.orders.GetOrder(ctx, in.OrderID)
	if err != nil {
		return PaymentResult{}, err
	}
	if order.TenantID != in.TenantID {
		return PaymentResult{}, model.ErrOrderNotFound
	}
	if err := payable(order); err != nil {
		return PaymentResult{}, err
	}
	code, gw, err := s.gateways.Resolve(in.Gateway, method)
	if err != nil {
		return PaymentResult{}, model.Invalid("gateway", "%v", err)
	}

	now := s.clock.Now()
	p := model.Payment{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Method:      method,
		Gateway:     code,
		Status:      model.PaymentPending,
		AmountCents: order.TotalAmountCents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.payments.CreatePayment(ctx, p); err != nil {
		return PaymentResult{}, err
	}
	span.SetAttributes(attribute.String("payment.id", p.ID), attribute.String("payment.gateway", code))

	auth, attempts, callErr := payment.Authorize(ctx, gw, payment.AuthorizeRequest{
		PaymentID:    p.ID,
		OrderID:      order.ID,
		AmountCents:  order.TotalAmountCents,
		CurrencyCode: order.CurrencyCode,
		Method:       method,
		CardToken:    in.CardToken,
	}, s.retry)
	p.Attempts = attempts
	p.UpdatedAt = s.clock.Now()

	if callErr != nil {
		p.Status = model.PaymentError
		p.FailureReason = truncateReason(callErr.Error())
		if err := s.settle(ctx, p); err != nil {
			return PaymentResult{}, err
		}
		log.Printf("[payments] gateway error order_id=%s payment_id=%s gateway=%s attempts=%d: %v", order.ID, p.ID, code, attempts, callErr)
		s.emit(ctx, queue.PaymentFailed, order, p)
		return PaymentResult{Payment: p, Order: order}, fmt.Errorf("%w: %v", model.ErrPaymentGateway, callErr)
	}

	switch auth.Decision {
	case payment.Denied:
		p.Status = model.PaymentDenied
		p.FailureReason = truncateReason(auth.Reason)
		p.ProviderPaymentID = auth.ProviderPaymentID
		if err := s.settle(ctx, p); err != nil {
			return PaymentResult{}, err
		}
		s.emit(ctx, queue.PaymentDenied, order, p)
		return PaymentResult{Payment: p, Order: order}, model.ErrPaymentDenied
	case payment.Approved:
		p.ProviderPaymentID = auth.ProviderPaymentID
		return s.approve(ctx, order, p, gw)
	default:
		return PaymentResult{}, fmt.Errorf("gateway %s returned unknown decision %d", code, auth.Decision)
	}
}

func payable(o model.Order) error {
	switch o.Status {
	case model.OrderPendingPayment:
		return nil
	case model.OrderPaid:
		return model.ErrOrderAlreadyPaid
	case model.OrderCancelled, model.OrderExpired:
		return fmt.Errorf("order is %s: %w", o.Status, model.ErrOrderNotPayable)
	}
	return fmt.Errorf("order %s in unknown status %q", o.ID, o.Status)
}

// settle moves a PENDING attempt to its final status.
func (s *PaymentService) settle(ctx context.Context, p model.Payment) error {
	if !model.PaymentPending.CanTransitionTo(p.Status) {
		return fmt.Errorf("payment transition %s -> %s not allowed", model.PaymentPending, p.Status)
	}
	ok, err := s.payments.UpdatePayment(ctx, p, model.PaymentPending)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("payment %s is no longer pending", p.ID)
	}
	return nil
}

// approve marks the attempt APPROVED and the order PAID in one unit of
// work. If the order stopped being payable while the provider was working,
// or the unit of work itself fails, the charge is reversed: an order never
// has two approved attempts and money is never kept for an unpaid order.
func (s *PaymentService) approve(ctx context.Context, order model.Order, p model.Payment, gw payment.Gateway) (PaymentResult, error) {
	var closed error
	err := s.tx.WithinSession(ctx, order.SessionID, func(ctx context.Context) error {
		cur, err := s.orders.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := payable(cur); err != nil {
			closed = err
			order = cur
			return nil
		}
		approved := p
		approved.Status = model.PaymentApproved
		if err := s.settle(ctx, approved); err != nil {
			return err
		}
		ok, err := s.orders.TransitionOrder(ctx, cur.ID, model.OrderPendingPayment, model.OrderPaid, p.UpdatedAt)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrOrderNotPayable
		}
		p = approved
		order = cur
		order.Status = model.OrderPaid
		order.UpdatedAt = p.UpdatedAt
		return nil
	})
	if err != nil {
		// The attempt is still PENDING and the order unpaid.
		p = s.unwind(context.WithoutCancel(ctx), order, p, gw, "approval not recorded")
		if serr := s.settle(context.WithoutCancel(ctx), p); serr != nil {
			log.Printf("[payments] could not settle unrecorded approval order_id=%s payment_id=%s provider_id=%s status=%s: %v",
				order.ID, p.ID, p.ProviderPaymentID, p.Status, serr)
		}
		return PaymentResult{}, fmt.Errorf("record approval of payment %s: %w", p.ID, err)
	}

	if closed != nil {
		p = s.unwind(ctx, order, p, gw, "approved after order closed")
		if err := s.settle(ctx, p); err != nil {
			return PaymentResult{}, err
		}
		return PaymentResult{Payment: p, Order: order}, closed
	}

	log.Printf("[payments] order paid order_id=%s payment_id=%s gateway=%s amount=%d", order.ID, p.ID, p.Gateway, p.AmountCents)
	s.emit(ctx, queue.OrderPaid, order, p)
	return PaymentResult{Payment: p, Order: order}, nil
}

// unwind reverses an approved charge that cannot be kept and returns the
// attempt as REFUNDED, or as ERROR when the provider refused the reversal.
func (s *PaymentService) unwind(ctx context.Context, order model.Order, p model.Payment, gw payment.Gateway, why string) model.Payment {
	p.Status = model.PaymentRefunded
	p.FailureReason = why
	if _, err := payment.Reverse(ctx, gw, p.ProviderPaymentID, p.AmountCents, s.retry); err != nil {
		p.Status = model.PaymentError
		p.FailureReason = truncateReason(why + "; reversal failed: " + err.Error())
		log.Printf("[payments] charge could not be reversed order_id=%s payment_id=%s provider_id=%s: %v",
			order.ID, p.ID, p.ProviderPaymentID, err)
	}
	return p
}

func (s *PaymentService) emit(ctx context.Context, typ string, o model.Order, p model.Payment) {
	ev := queue.NewEvent(typ, s.clock.Now())
	ev.TenantID, ev.SessionID, ev.OrderID, ev.PaymentID = o.TenantID, o.SessionID, o.ID, p.ID
	ev.AmountCents, ev.Currency, ev.Status, ev.Reason = p.AmountCents, o.CurrencyCode, string(p.Status), p.FailureReason
	publish(ctx, s.events, ev)
}

func truncateReason(s string) string {
	const max = 500
	if len(s) > max {
		return s[:max]
	}
	return s
}

// IsUserRecoverable reports whether a SubmitPayment error still allows a
// new attempt on the same order.
func IsUserRecoverable(err error) bool {
	return errors.Is(err, model.ErrPaymentDenied) || errors.Is(err, model.ErrPaymentGateway)
}
