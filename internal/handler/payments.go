package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-core/internal/middleware"
	"github.com/iliyamo/ticketing-core/internal/payment"
	"github.com/iliyamo/ticketing-core/internal/service"
)

// SubmitPayment handles POST /v1/orders/:id/payments. A denied or failed
// attempt still carries the attempt in the body, with "retryable" telling
// the client whether a new attempt on the same order makes sense.
func (h *CheckoutHandler) SubmitPayment(c echo.Context) error {
	var body submitPaymentRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Gateway != "" && !payment.ValidCode(body.Gateway) {
		return badRequest(c, "gateway must match ^[a-z0-9_]{1,40}$")
	}
	if len(body.CardToken) > 128 {
		return badRequest(c, "cardToken must be at most 128 characters")
	}

	res, err := h.Payments.SubmitPayment(c.Request().Context(), service.SubmitPaymentInput{
		TenantID:  middleware.TenantID(c),
		OrderID:   c.Param("id"),
		Method:    body.Method,
		Gateway:   body.Gateway,
		CardToken: body.CardToken,
	})
	if err != nil && (!service.IsUserRecoverable(err) || res.Payment.ID == "") {
		return writeError(c, err)
	}
	out := paymentResultResponse{
		Payment:     toPayment(res.Payment),
		OrderStatus: string(res.Order.Status),
		Retryable:   err != nil,
	}
	if err != nil {
		status, _ := errorStatus(err)
		return c.JSON(status, out)
	}
	return c.JSON(http.StatusOK, out)
}

// Refund handles POST /v1/orders/:id/refunds. Operators only.
func (h *CheckoutHandler) Refund(c echo.Context) error {
	var body refundRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	r, err := h.Refunds.Refund(c.Request().Context(), service.RefundInput{
		TenantID:          middleware.TenantID(c),
		OrderID:           c.Param("id"),
		ReasonCode:        body.ReasonCode,
		ReasonDescription: body.ReasonDescription,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toRefund(r))
}
