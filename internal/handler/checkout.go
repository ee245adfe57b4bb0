package handler

import (
	"context"

	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/service"
)

// HoldAPI is the part of service.HoldService the HTTP layer uses.
type HoldAPI interface {
	CreateHold(ctx context.Context, in service.CreateHoldInput) (service.HoldView, error)
	GetHold(ctx context.Context, tenantID, holdID string) (service.HoldView, error)
	Release(ctx context.Context, tenantID, holdID string) (model.Hold, error)
	Availability(ctx context.Context, tenantID, sessionID string) (model.Session, []model.Seat, error)
}

type OrderAPI interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (service.OrderResult, error)
	GetOrder(ctx context.Context, tenantID, orderID string) (service.OrderDetails, error)
}

type PaymentAPI interface {
	SubmitPayment(ctx context.Context, in service.SubmitPaymentInput) (service.PaymentResult, error)
}

type RefundAPI interface {
	Refund(ctx context.Context, in service.RefundInput) (model.Refund, error)
}

// CheckoutHandler serves the tenant-scoped checkout API. JWTAuth must run
// before every method; the tenant always comes from the token.
type CheckoutHandler struct {
	Holds    HoldAPI
	Orders   OrderAPI
	Payments PaymentAPI
	Refunds  RefundAPI
}

// NewCheckoutHandler panics if any dependency is nil.
func NewCheckoutHandler(holds HoldAPI, orders OrderAPI, payments PaymentAPI, refunds RefundAPI) *CheckoutHandler {
	if holds == nil || orders == nil || payments == nil || refunds == nil {
		panic("nil service passed to NewCheckoutHandler")
	}
	return &CheckoutHandler{Holds: holds, Orders: orders, Payments: payments, Refunds: refunds}
}
