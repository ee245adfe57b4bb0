package model

import (
	"fmt"
	"time"
)

// PaymentMethod is the instrument a buyer pays with.
type PaymentMethod string

const (
	MethodPIX        PaymentMethod = "PIX"
	MethodCreditCard PaymentMethod = "CREDIT_CARD"
	MethodDebitCard  PaymentMethod = "DEBIT_CARD"
)

// ParsePaymentMethod converts s into a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case MethodPIX, MethodCreditCard, MethodDebitCard:
		return m, nil
	}
	return "", &ValidationError{Field: "method", Message: fmt.Sprintf("unsupported payment method %q", s)}
}

// IsCard reports whether the method needs a card token.
func (m PaymentMethod) IsCard() bool {
	switch m {
	case MethodCreditCard, MethodDebitCard:
		return true
	case MethodPIX:
		return false
	}
	return false
}

// PaymentStatus is the state of one payment attempt.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentApproved PaymentStatus = "APPROVED"
	PaymentDenied   PaymentStatus = "DENIED"
	PaymentRefunded PaymentStatus = "REFUNDED"
	PaymentError    PaymentStatus = "ERROR"
)

// Valid reports whether s is one of the known payment statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentDenied, PaymentRefunded, PaymentError:
		return true
	}
	return false
}

// CanTransitionTo reports whether a payment may move from s to next.
// PENDING may go straight to REFUNDED when an approval arrives for an order
// that can no longer be paid and the charge is reversed.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentApproved || next == PaymentDenied || next == PaymentError || next == PaymentRefunded
	case PaymentApproved:
		return next == PaymentRefunded
	case PaymentDenied, PaymentRefunded, PaymentError:
		return false
	}
	return false
}

// Payment is a single attempt to pay an order. Attempts are never deleted;
// at most one attempt per order is ever APPROVED.
//
// Fields:
//
//	Gateway           – code of the gateway implementation that handled the attempt.
//	ProviderPaymentID – provider reference, set once the provider approved.
//	FailureReason     – provider denial reason or last transient error.
//	Attempts          – number of provider calls made for this attempt.
type Payment struct {
	ID                string        // payments.id
	OrderID           string        // payments.order_id
	Method            PaymentMethod // payments.method
	Gateway           string        // payments.gateway
	Status            PaymentStatus // payments.status
	ProviderPaymentID string        // payments.provider_payment_id
	FailureReason     string        // payments.failure_reason
	Attempts          int           // payments.attempts
	AmountCents       int64         // payments.amount_cents
	CreatedAt         time.Time     // payments.created_at
	UpdatedAt         time.Time     // payments.updated_at
}
