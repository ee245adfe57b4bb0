package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-core/internal/clock"
	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/payment"
	"github.com/iliyamo/ticketing-core/internal/queue"
	"github.com/iliyamo/ticketing-core/internal/repository/memstore"
	"github.com/iliyamo/ticketing-core/internal/service"
)

const (
	tenant    = "t1"
	sessionID = "s1"
)

var t0 = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

var testRetry = payment.RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     time.Millisecond,
	CallTimeout:     time.Second,
}

type recorder struct {
	mu     sync.Mutex
	events []queue.Event
}

func (r *recorder) Publish(_ context.Context, ev queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// scripted answers authorizations from a queue of outcomes and records
// reversals. An empty queue approves.
type scripted struct {
	mu       sync.Mutex
	outcomes []func() (payment.Authorization, error)
	calls    int
	reversed []string
	gate     chan struct{} // when set, Authorize waits on it
	entered  chan struct{} // signalled when Authorize is entered
	failRev  bool
	revGate  chan struct{} // when set, Reverse waits on it
	revEnter chan struct{} // signalled when Reverse is entered
}

func (g *scripted) Authorize(ctx context.Context, req payment.AuthorizeRequest) (payment.Authorization, error) {
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.gate != nil {
		<-g.gate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.outcomes) > 0 {
		next := g.outcomes[0]
		g.outcomes = g.outcomes[1:]
		return next()
	}
	return payment.Authorization{Decision: payment.Approved, ProviderPaymentID: fmt.Sprintf("ch_%d", g.calls)}, nil
}

func (g *scripted) Reverse(_ context.Context, providerPaymentID string, _ int64) (string, error) {
	if g.revEnter != nil {
		g.revEnter <- struct{}{}
	}
	if g.revGate != nil {
		<-g.revGate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failRev {
		return "", fmt.Errorf("reversal rejected")
	}
	g.reversed = append(g.reversed, providerPaymentID)
	return "rf_" + providerPaymentID, nil
}

func deny(reason string) func() (payment.Authorization, error) {
	return func() (payment.Authorization, error) {
		return payment.Authorization{Decision: payment.Denied, Reason: reason}, nil
	}
}

func fail() (payment.Authorization, error) {
	return payment.Authorization{}, fmt.Errorf("connection refused")
}

type fixture struct {
	store    *memstore.Store
	clk      *clock.Manual
	gw       *scripted
	events   *recorder
	holds    *service.HoldService
	orders   *service.OrderService
	payments *service.PaymentService
	refunds  *service.RefundService
	sweeper  *service.Sweeper
}

// newFixture builds the services over a memory store holding one
// published session with seats "1".."10" priced 5000 by default; seat "1"
// is priced 8000.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(t0)
	f := &fixture{
		store:  memstore.New(memstore.WithClock(clk)),
		clk:    clk,
		gw:     &scripted{},
		events: &recorder{},
	}
	premium := int64(8000)
	seats := make([]model.Seat, 10)
	for i := range seats {
		seats[i] = model.Seat{ID: fmt.Sprint(i + 1), SectorCode: "MAIN", RowLabel: "A", SeatNumber: fmt.Sprintf("%02d", i+1)}
	}
	seats[0].PriceCents = &premium
	f.store.AddSession(model.Session{
		ID:                sessionID,
		TenantID:          tenant,
		Name:              "Opening night",
		SalesStartsAt:     t0.Add(-time.Hour),
		SalesEndsAt:       t0.Add(24 * time.Hour),
		Capacity:          10,
		Status:            model.SessionPublished,
		DefaultPriceCents: 5000,
		CurrencyCode:      "BRL",
		CreatedAt:         t0.Add(-48 * time.Hour),
	}, seats)

	reg := payment.NewRegistry()
	reg.Register("stub", f.gw)
	reg.Register("sandbox", payment.NewSandbox())
	reg.SetDefault(model.MethodPIX, "stub")
	reg.SetDefault(model.MethodCreditCard, "stub")

	m := f.store
	f.holds = service.NewHoldService(m, m, m, m, m, f.clk,
		service.WithHoldTTL(5*time.Minute), service.WithMaxHoldSeats(6), service.WithHoldEvents(f.events))
	f.orders = service.NewOrderService(m, m, m, m, m, m, m, f.clk,
		service.WithFeePolicy(service.FeePolicy{PercentBps: 1000, PerTicketCents: 100}),
		service.WithOrderEvents(f.events))
	f.payments = service.NewPaymentService(m, m, m, reg, f.clk,
		service.WithRetryPolicy(testRetry), service.WithPaymentEvents(f.events))
	f.refunds = service.NewRefundService(m, m, m, m, reg, f.clk,
		service.WithRefundRetryPolicy(testRetry), service.WithRefundEvents(f.events))
	f.sweeper = service.NewSweeper(m, m, m, m, m, f.clk,
		service.WithPaymentWindow(15*time.Minute), service.WithSweepSessions(m), service.WithSweepEvents(f.events))
	return f
}

var buyer = model.Buyer{Name: "Ana Souza", Email: "ana@example.com"}

func (f *fixture) hold(t *testing.T, seats ...string) service.HoldView {
	t.Helper()
	v, err := f.holds.CreateHold(context.Background(), service.CreateHoldInput{TenantID: tenant, SessionID: sessionID, SeatIDs: seats})
	require.NoError(t, err)
	return v
}

func (f *fixture) order(t *testing.T, seats ...string) service.OrderResult {
	t.Helper()
	h := f.hold(t, seats...)
	res, err := f.orders.CreateOrder(context.Background(), service.CreateOrderInput{TenantID: tenant, HoldID: h.Hold.ID, Buyer: buyer})
	require.NoError(t, err)
	return res
}

func (f *fixture) paidOrder(t *testing.T, seats ...string) service.OrderResult {
	t.Helper()
	res := f.order(t, seats...)
	_, err := f.payments.SubmitPayment(context.Background(), service.SubmitPaymentInput{TenantID: tenant, OrderID: res.Order.ID, Method: "PIX"})
	require.NoError(t, err)
	return res
}

func (f *fixture) seat(t *testing.T, id string) model.Seat {
	t.Helper()
	seats, err := f.store.GetSeats(context.Background(), sessionID, []string{id})
	require.NoError(t, err)
	require.Len(t, seats, 1)
	return seats[0]
}

func (f *fixture) seatStatuses(t *testing.T, ids ...string) []model.SeatStatus {
	t.Helper()
	out := make([]model.SeatStatus, len(ids))
	for i, id := range ids {
		out[i] = f.seat(t, id).Status
	}
	return out
}

func statuses(s model.SeatStatus, n int) []model.SeatStatus {
	out := make([]model.SeatStatus, n)
	for i := range out {
		out[i] = s
	}
	return out
}
