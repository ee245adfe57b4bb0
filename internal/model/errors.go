package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the ledger, the services and the HTTP layer.
// Handlers translate them into status codes; services never return a bare
// driver error for a condition listed here.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSalesClosed     = errors.New("sales are closed for this session")

	// ErrSeatUnavailable means at least one requested seat was not AVAILABLE.
	// The caller should re-query availability and pick another set.
	ErrSeatUnavailable = errors.New("seat unavailable")
	// ErrInvalidHoldState means a ledger commit found a seat that was not
	// HELD by the committing hold.
	ErrInvalidHoldState = errors.New("invalid hold state")

	ErrHoldNotFound        = errors.New("hold not found")
	ErrHoldExpired         = errors.New("hold expired")
	ErrHoldAlreadyConsumed = errors.New("hold already consumed")
	ErrHoldNotActive       = errors.New("hold is not active")

	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderNotPayable  = errors.New("order is not awaiting payment")
	ErrOrderAlreadyPaid = errors.New("order already paid")
	ErrDuplicateOrder   = errors.New("order already exists for hold")

	ErrPaymentDenied  = errors.New("payment denied")
	ErrPaymentGateway = errors.New("payment gateway error")
	ErrUnknownGateway = errors.New("unknown payment gateway")

	ErrRefundIneligible = errors.New("refund ineligible")
)

// ValidationError reports malformed input. It is raised before any state is
// touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	case e.Message != "":
		return e.Message
	case e.Field != "":
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
