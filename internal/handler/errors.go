package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-core/internal/model"
)

// errorStatus maps domain errors to an HTTP status and a stable error code.
func errorStatus(err error) (int, string) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, model.ErrUnknownGateway):
		return http.StatusBadRequest, "unknown_gateway"
	case errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, model.ErrHoldNotFound):
		return http.StatusNotFound, "hold_not_found"
	case errors.Is(err, model.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, model.ErrSeatUnavailable):
		return http.StatusConflict, "seat_unavailable"
	case errors.Is(err, model.ErrSalesClosed):
		return http.StatusConflict, "sales_closed"
	case errors.Is(err, model.ErrHoldExpired):
		return http.StatusConflict, "hold_expired"
	case errors.Is(err, model.ErrHoldAlreadyConsumed):
		return http.StatusConflict, "hold_already_consumed"
	case errors.Is(err, model.ErrHoldNotActive):
		return http.StatusConflict, "hold_not_active"
	case errors.Is(err, model.ErrInvalidHoldState):
		return http.StatusConflict, "invalid_hold_state"
	case errors.Is(err, model.ErrOrderAlreadyPaid):
		return http.StatusConflict, "order_already_paid"
	case errors.Is(err, model.ErrOrderNotPayable):
		return http.StatusConflict, "order_not_payable"
	case errors.Is(err, model.ErrRefundIneligible):
		return http.StatusConflict, "refund_ineligible"
	case errors.Is(err, model.ErrPaymentDenied):
		return http.StatusPaymentRequired, "payment_denied"
	case errors.Is(err, model.ErrPaymentGateway):
		return http.StatusBadGateway, "payment_gateway_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError renders err as {"error": code, "message": msg}. Internal
// errors are logged and their text is not sent to the client.
func writeError(c echo.Context, err error) error {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("[http] %s %s failed: %v", c.Request().Method, c.Path(), err)
		msg = "internal error"
	}
	return c.JSON(status, echo.Map{"error": code, "message": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "message": msg})
}
