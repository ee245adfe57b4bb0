package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/queue"
	"github.com/iliyamo/ticketing-core/internal/repository/memstore"
	"github.com/iliyamo/ticketing-core/internal/service"
)

func TestHoldThenOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.holds.CreateHold(ctx, service.CreateHoldInput{
		TenantID: tenant, SessionID: sessionID, SeatIDs: []string{"1", "2"}, TTL: 60 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, model.HoldActive, view.Hold.Status)
	assert.Equal(t, t0.Add(60*time.Second), view.Hold.ExpiresAt)
	require.Len(t, view.Seats, 2)
	assert.Equal(t, "1", view.Seats[0].ID)
	assert.Equal(t, statuses(model.SeatHeld, 2), f.seatStatuses(t, "1", "2"))
	assert.Equal(t, view.Hold.ID, f.seat(t, "1").HoldID)

	res, err := f.orders.CreateOrder(ctx, service.CreateOrderInput{TenantID: tenant, HoldID: view.Hold.ID, Buyer: buyer})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, model.OrderPendingPayment, res.Order.Status)
	assert.Equal(t, model.HoldConsumed, res.Hold.Status)
	assert.Equal(t, "BRL", res.Order.CurrencyCode)
	assert.Equal(t, statuses(model.SeatSold, 2), f.seatStatuses(t, "1", "2"))

	stored, err := f.holds.GetHold(ctx, tenant, view.Hold.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldConsumed, stored.Hold.Status)

	assert.Equal(t, []string{queue.HoldCreated, queue.OrderCreated}, f.events.types())
}

func TestOrderTotals(t *testing.T) {
	f := newFixture(t)
	res := f.order(t, "1", "2", "3")

	// seat 1 carries its own price, the others use the session default.
	require.Len(t, res.Items, 3)
	assert.Equal(t, int64(8000), res.Items[0].UnitPriceCents)
	assert.Equal(t, int64(5000), res.Items[1].UnitPriceCents)

	var sum int64
	for _, it := range res.Items {
		sum += it.UnitPriceCents
	}
	assert.Equal(t, int64(18000), sum)
	assert.Equal(t, sum, res.Order.TicketSubtotalCents)
	assert.Equal(t, int64(1800+300), res.Order.ServiceFeeCents)
	assert.Equal(t, res.Order.TicketSubtotalCents+res.Order.ServiceFeeCents, res.Order.TotalAmountCents)
}

func TestHoldExpiresAndSeatsReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.holds.CreateHold(ctx, service.CreateHoldInput{
		TenantID: tenant, SessionID: sessionID, SeatIDs: []string{"4", "5"}, TTL: 60 * time.Second,
	})
	require.NoError(t, err)

	f.clk.Advance(61 * time.Second)
	report, err := f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.HoldsExpired)

	got, err := f.holds.GetHold(ctx, tenant, view.Hold.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldExpired, got.Hold.Status)
	assert.Equal(t, statuses(model.SeatAvailable, 2), f.seatStatuses(t, "4", "5"))
	assert.Empty(t, f.seat(t, "4").HoldID)

	_, err = f.orders.CreateOrder(ctx, service.CreateOrderInput{TenantID: tenant, HoldID: view.Hold.ID, Buyer: buyer})
	assert.ErrorIs(t, err, model.ErrHoldExpired)

	// a second pass finds nothing left to do
	report, err = f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.HoldsExpired)
}

func TestExpiredHoldRejectedBeforeSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.holds.CreateHold(ctx, service.CreateHoldInput{
		TenantID: tenant, SessionID: sessionID, SeatIDs: []string{"2"}, TTL: 30 * time.Second,
	})
	require.NoError(t, err)
	f.clk.Advance(30 * time.Second)

	_, err = f.orders.CreateOrder(ctx, service.CreateOrderInput{TenantID: tenant, HoldID: view.Hold.ID, Buyer: buyer})
	assert.ErrorIs(t, err, model.ErrHoldExpired)
	// nothing was committed
	assert.Equal(t, model.SeatHeld, f.seat(t, "2").Status)
}

func TestConcurrentHoldsOnSameSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     []string
		refused int
	)
	start := make(chan struct{})
	for _, seats := range [][]string{{"5"}, {"5", "6"}} {
		wg.Add(1)
		go func(seats []string) {
			defer wg.Done()
			<-start
			v, err := f.holds.CreateHold(ctx, service.CreateHoldInput{TenantID: tenant, SessionID: sessionID, SeatIDs: seats})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won = append(won, v.Hold.ID)
			case errors.Is(err, model.ErrSeatUnavailable):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(seats)
	}
	close(start)
	wg.Wait()

	require.Len(t, won, 1)
	assert.Equal(t, 1, refused)
	assert.Equal(t, won[0], f.seat(t, "5").HoldID)
	// the loser reserved nothing, not even its uncontested seat
	six := f.seat(t, "6")
	if six.Status == model.SeatHeld {
		assert.Equal(t, won[0], six.HoldID)
	} else {
		assert.Equal(t, model.SeatAvailable, six.Status)
	}
}

func TestCreateHoldValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]service.CreateHoldInput{
		"no seats":     {TenantID: tenant, SessionID: sessionID},
		"too many":     {TenantID: tenant, SessionID: sessionID, SeatIDs: []string{"1", "2", "3", "4", "5", "6", "7"}},
		"no session":   {TenantID: tenant, SeatIDs: []string{"1"}},
		"foreign seat": {TenantID: tenant, SessionID: sessionID, SeatIDs: []string{"1", "99"}},
		"negative ttl": {TenantID: tenant, SessionID: sessionID, SeatIDs: []string{"1"}, TTL: -time.Second},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.holds.CreateHold(ctx, in)
			assert.True(t, model.IsValidation(err), "got %v", err)
		})
	}
	assert.Equal(t, model.SeatAvailable, f.seat(t, "1").Status)
	assert.Empty(t, f.events.types())
}

func TestCreateHoldSalesWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := service.CreateHoldInput{TenantID: tenant, SessionID: sessionID, SeatIDs: []string{"1"}}

	f.clk.Set(t0.Add(-2 * time.Hour))
	_, err := f.holds.CreateHold(ctx, in)
	assert.ErrorIs(t, err, model.ErrSalesClosed)

	f.clk.Set(t0.Add(24 * time.Hour))
	_, err = f.holds.CreateHold(ctx, in)
	assert.ErrorIs(t, err, model.ErrSalesClosed)

	f.clk.Set(t0)
	require.NoError(t, f.store.SetSessionStatus(ctx, sessionID, model.SessionDraft))
	_, err = f.holds.CreateHold(ctx, in)
	assert.ErrorIs(t, err, model.ErrSalesClosed)
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.holds.CreateHold(ctx, service.CreateHoldInput{TenantID: "t2", SessionID: sessionID, SeatIDs: []string{"1"}})
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	_, _, err = f.holds.Availability(ctx, "t2", sessionID)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	view := f.hold(t, "2")
	_, err = f.holds.GetHold(ctx, "t2", view.Hold.ID)
	assert.ErrorIs(t, err, model.ErrHoldNotFound)
	_, err = f.holds.Release(ctx, "t2", view.Hold.ID)
	assert.ErrorIs(t, err, model.ErrHoldNotFound)
	_, err = f.orders.CreateOrder(ctx, service.CreateOrderInput{TenantID: "t2", HoldID: view.Hold.ID, Buyer: buyer})
	assert.ErrorIs(t, err, model.ErrHoldNotFound)

	res, err := f.orders.CreateOrder(ctx, service.CreateOrderInput{TenantID: tenant, HoldID: view.Hold.ID, Buyer: buyer})
	require.NoError(t, err)
	_, err = f.orders.GetOrder(ctx, "t2", res.Order.ID)
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
	_, err = f.payments.SubmitPayment(ctx, service.SubmitPaymentInput{TenantID: "t2", OrderID: res.Order.ID, Method: "PIX"})
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
	_, err = f.refunds.Refund(ctx, service.RefundInput{TenantID: "t2", OrderID: res.Order.ID, ReasonCode: "X"})
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
	assert.Zero(t, f.gw.calls)
}

func TestReleaseHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.hold(t, "3", "4")

	hold, err := f.holds.Release(ctx, tenant, view.Hold.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldReleased, hold.Status)
	assert.Equal(t, statuses(model.SeatAvailable, 2), f.seatStatuses(t, "3", "4"))

	_, err = f.holds.Release(ctx, tenant, view.Hold.ID)
	assert.ErrorIs(t, err, model.ErrHoldNotActive)
	_, err = f.orders.CreateOrder(ctx, service.CreateOrderInput{TenantID: tenant, HoldID: view.Hold.ID, Buyer: buyer})
	assert.ErrorIs(t, err, model.ErrHoldNotActive)

	// the seats can be held again right away
	f.hold(t, "3", "4")
}

func TestCreateOrderIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.hold(t, "1", "2")

	const callers = 8
	var wg sync.WaitGroup
	results := make([]service.OrderResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.orders.CreateOrder(ctx, service.CreateOrderInput{TenantID: tenant, HoldID: view.Hold.ID, Buyer: buyer})
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Order.ID, results[i].Order.ID)
		assert.Equal(t, results[0].Order.TotalAmountCents, results[i].Order.TotalAmountCents)
		assert.Len(t, results[i].Items, 2)
		if results[i].Created {
			created++
		}
	}
	assert.Equal(t, 1, created)

	n := 0
	for _, typ := range f.events.types() {
		if typ == queue.OrderCreated {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestCreateOrderBuyerValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.hold(t, "1")

	for _, b := range []model.Buyer{
		{Email: "a@example.com"},
		{Name: "Ana", Email: "not-an-address"},
		{Name: "Ana", Email: "a@example.com", Document: string(make([]byte, 41))},
	} {
		_, err := f.orders.CreateOrder(ctx, service.CreateOrderInput{TenantID: tenant, HoldID: view.Hold.ID, Buyer: b})
		assert.True(t, model.IsValidation(err), "buyer %+v: %v", b, err)
	}
	got, err := f.holds.GetHold(ctx, tenant, view.Hold.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldActive, got.Hold.Status)
}

// brokenOrders fails every order insert after the seats were committed and
// the hold consumed in the same unit of work.
type brokenOrders struct {
	*memstore.Store
}

func (brokenOrders) CreateOrder(context.Context, model.Order, []model.OrderItem) error {
	return errors.New("insert order: connection lost")
}

func TestCreateOrderFailureKeepsHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.hold(t, "1", "2")

	m := f.store
	broken := service.NewOrderService(m, m, m, m, m, brokenOrders{m}, m, f.clk, service.WithOrderEvents(f.events))
	_, err := broken.CreateOrder(ctx, service.CreateOrderInput{TenantID: tenant, HoldID: view.Hold.ID, Buyer: buyer})
	require.Error(t, err)

	got, err := f.holds.GetHold(ctx, tenant, view.Hold.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldActive, got.Hold.Status)
	assert.Equal(t, statuses(model.SeatHeld, 2), f.seatStatuses(t, "1", "2"))
	_, err = f.store.GetOrderByHoldID(ctx, view.Hold.ID)
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
	assert.NotContains(t, f.events.types(), queue.OrderCreated)

	res, err := f.orders.CreateOrder(ctx, service.CreateOrderInput{TenantID: tenant, HoldID: view.Hold.ID, Buyer: buyer})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, statuses(model.SeatSold, 2), f.seatStatuses(t, "1", "2"))
}
