package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/queue"
	"github.com/iliyamo/ticketing-core/internal/service"
)

func TestRefundPaidOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.paidOrder(t, "1", "2")

	refund, err := f.refunds.Refund(ctx, service.RefundInput{
		TenantID: tenant, OrderID: res.Order.ID, ReasonCode: " EVENT_MOVED ", ReasonDescription: "date changed",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RefundSucceeded, refund.ResultStatus)
	assert.Equal(t, "EVENT_MOVED", refund.ReasonCode)
	assert.Equal(t, res.Order.TotalAmountCents, refund.AmountCents)
	assert.Equal(t, "rf_ch_1", refund.ProviderRefundID)
	assert.Equal(t, []string{"ch_1"}, f.gw.reversed)

	d, err := f.orders.GetOrder(ctx, tenant, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, d.Payments, 1)
	assert.Equal(t, model.PaymentRefunded, d.Payments[0].Status)
	// refunds do not change the order or its seats
	assert.Equal(t, model.OrderPaid, d.Order.Status)
	assert.Equal(t, statuses(model.SeatSold, 2), f.seatStatuses(t, "1", "2"))

	list, err := f.refunds.ListRefunds(ctx, tenant, res.Order.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Contains(t, f.events.types(), queue.RefundCompleted)

	// the only approved payment is gone, so a second refund is ineligible
	_, err = f.refunds.Refund(ctx, service.RefundInput{TenantID: tenant, OrderID: res.Order.ID, ReasonCode: "AGAIN"})
	assert.ErrorIs(t, err, model.ErrRefundIneligible)
	assert.Len(t, f.gw.reversed, 1)
}

func TestRefundIneligibleOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.order(t, "1")

	_, err := f.refunds.Refund(ctx, service.RefundInput{TenantID: tenant, OrderID: res.Order.ID, ReasonCode: "CUSTOMER"})
	require.ErrorIs(t, err, model.ErrRefundIneligible)

	d, err := f.orders.GetOrder(ctx, tenant, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPendingPayment, d.Order.Status)
	assert.Empty(t, d.Payments)
	list, err := f.refunds.ListRefunds(ctx, tenant, res.Order.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.gw.reversed)
}

func TestRefundProviderFailureChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.paidOrder(t, "1")
	f.gw.failRev = true

	_, err := f.refunds.Refund(ctx, service.RefundInput{TenantID: tenant, OrderID: res.Order.ID, ReasonCode: "CUSTOMER"})
	require.ErrorIs(t, err, model.ErrPaymentGateway)

	d, err := f.orders.GetOrder(ctx, tenant, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentApproved, d.Payments[0].Status)
	list, err := f.refunds.ListRefunds(ctx, tenant, res.Order.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "failed reversal leaves no refund behind")

	f.gw.failRev = false
	_, err = f.refunds.Refund(ctx, service.RefundInput{TenantID: tenant, OrderID: res.Order.ID, ReasonCode: "CUSTOMER"})
	require.NoError(t, err)
}

func TestConcurrentRefundsReverseOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.paidOrder(t, "1", "2")
	f.gw.revEnter = make(chan struct{}, 2)
	f.gw.revGate = make(chan struct{})

	type outcome struct {
		refund model.Refund
		err    error
	}
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			r, err := f.refunds.Refund(ctx, service.RefundInput{TenantID: tenant, OrderID: res.Order.ID, ReasonCode: "EVENT_CANCELLED"})
			results <- outcome{r, err}
		}()
	}

	<-f.gw.revEnter
	// The second request is turned away while the first is at the provider.
	loser := <-results
	assert.ErrorIs(t, loser.err, model.ErrRefundIneligible)
	pending, err := f.refunds.ListRefunds(ctx, tenant, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.RefundPending, pending[0].ResultStatus)

	close(f.gw.revGate)
	winner := <-results
	require.NoError(t, winner.err)
	assert.Equal(t, model.RefundSucceeded, winner.refund.ResultStatus)
	assert.Equal(t, []string{"ch_1"}, f.gw.reversed)

	list, err := f.refunds.ListRefunds(ctx, tenant, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.RefundSucceeded, list[0].ResultStatus)
	assert.Equal(t, "rf_ch_1", list[0].ProviderRefundID)

	n := 0
	for _, typ := range f.events.types() {
		if typ == queue.RefundCompleted {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestRefundValidation(t *testing.T) {
	f := newFixture(t)
	res := f.paidOrder(t, "1")
	for _, in := range []service.RefundInput{
		{ReasonCode: "  "},
		{ReasonCode: string(make([]byte, 61))},
		{ReasonCode: "OK", ReasonDescription: string(make([]byte, 501))},
	} {
		in.TenantID, in.OrderID = tenant, res.Order.ID
		_, err := f.refunds.Refund(context.Background(), in)
		assert.True(t, model.IsValidation(err), "got %v", err)
	}
	assert.Empty(t, f.gw.reversed)
}

func TestFeePolicy(t *testing.T) {
	assert.Equal(t, int64(0), service.FeePolicy{}.Fee(10000, 2))
	assert.Equal(t, int64(200), service.FeePolicy{PerTicketCents: 100}.Fee(10000, 2))
	assert.Equal(t, int64(1250), service.FeePolicy{PercentBps: 1250}.Fee(10000, 2))
	// rounds down
	assert.Equal(t, int64(12), service.FeePolicy{PercentBps: 1250}.Fee(99, 1))
	assert.Equal(t, int64(0), service.FeePolicy{PerTicketCents: -500}.Fee(100, 1))
}
