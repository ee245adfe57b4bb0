package model

import "time"

// RefundResult is the outcome recorded on a refund.
type RefundResult string

const (
	// RefundPending marks a refund whose reversal is in flight. At most one
	// refund exists per payment, so the pending row is the claim on it.
	RefundPending   RefundResult = "PENDING"
	RefundSucceeded RefundResult = "SUCCEEDED"
)

// Refund records the reversal of an approved payment. A refund is written
// PENDING before the provider is called and becomes SUCCEEDED once the
// provider confirmed; it never changes after that.
type Refund struct {
	ID                string       // refunds.id
	PaymentID         string       // refunds.payment_id
	OrderID           string       // refunds.order_id
	ReasonCode        string       // refunds.reason_code
	ReasonDescription string       // refunds.reason_description
	ResultStatus      RefundResult // refunds.result_status
	AmountCents       int64        // refunds.amount_cents
	ProviderRefundID  string       // refunds.provider_refund_id
	CreatedAt         time.Time    // refunds.created_at
}
