package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// Omise charges cards through the Omise API. Authorize creates a captured
// charge and Reverse refunds it.
type Omise struct {
	createCharge func(op *operations.CreateCharge) (*omise.Charge, error)
	createRefund func(op *operations.CreateRefund) (*omise.Refund, error)
}

// NewOmise builds the gateway from a public/secret key pair.
func NewOmise(publicKey, secretKey string) (*Omise, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, err
	}
	return &Omise{
		createCharge: func(op *operations.CreateCharge) (*omise.Charge, error) {
			ch := &omise.Charge{}
			if err := c.Do(ch, op); err != nil {
				return nil, err
			}
			return ch, nil
		},
		createRefund: func(op *operations.CreateRefund) (*omise.Refund, error) {
			rf := &omise.Refund{}
			if err := c.Do(rf, op); err != nil {
				return nil, err
			}
			return rf, nil
		},
	}, nil
}

// Authorize implements Gateway. Charges that come back neither successful
// nor failed (for example waiting on 3-D Secure) are reported as denied:
// the checkout has no redirect flow to complete them.
func (o *Omise) Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error) {
	if !req.Method.IsCard() {
		return Authorization{Decision: Denied, Reason: "method_not_supported"}, nil
	}
	if req.CardToken == "" {
		return Authorization{Decision: Denied, Reason: "missing_card_token"}, nil
	}
	op := &operations.CreateCharge{
		Amount:   req.AmountCents,
		Currency: strings.ToLower(req.CurrencyCode),
		Card:     req.CardToken,
		Metadata: map[string]any{
			"order_id":   req.OrderID,
			"payment_id": req.PaymentID,
		},
	}
	ch, err := call(ctx, func() (*omise.Charge, error) { return o.createCharge(op) })
	if err != nil {
		if reason, ok := rejected(err); ok {
			return Authorization{Decision: Denied, Reason: reason}, nil
		}
		return Authorization{}, err
	}

	switch string(ch.Status) {
	case "successful":
		return Authorization{Decision: Approved, ProviderPaymentID: ch.ID}, nil
	case "failed":
		reason := "charge_failed"
		if ch.FailureCode != nil && *ch.FailureCode != "" {
			reason = *ch.FailureCode
		}
		return Authorization{Decision: Denied, ProviderPaymentID: ch.ID, Reason: reason}, nil
	default:
		return Authorization{Decision: Denied, ProviderPaymentID: ch.ID, Reason: "charge_" + string(ch.Status)}, nil
	}
}

// Reverse implements Gateway.
func (o *Omise) Reverse(ctx context.Context, providerPaymentID string, amountCents int64) (string, error) {
	op := &operations.CreateRefund{ChargeID: providerPaymentID, Amount: amountCents}
	rf, err := call(ctx, func() (*omise.Refund, error) { return o.createRefund(op) })
	if err != nil {
		if _, ok := rejected(err); ok {
			return "", fmt.Errorf("%w: %w", ErrRejected, err)
		}
		return "", err
	}
	return rf.ID, nil
}

// call runs fn but gives up when ctx ends first. The Omise client has no
// context support, so an abandoned call finishes in the background.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("omise: %w", ctx.Err())
	}
}

// rejected reports whether err is a client error from the API, which means
// retrying the same request cannot succeed.
func rejected(err error) (string, bool) {
	var oe *omise.Error
	if !errors.As(err, &oe) {
		return "", false
	}
	if oe.StatusCode >= http.StatusBadRequest && oe.StatusCode < http.StatusInternalServerError &&
		oe.StatusCode != http.StatusTooManyRequests {
		return oe.Code, true
	}
	return "", false
}
