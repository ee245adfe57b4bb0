package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-core/internal/middleware"
	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/service"
)

type stubHolds struct {
	in   service.CreateHoldInput
	view service.HoldView
	err  error
}

func (s *stubHolds) CreateHold(_ context.Context, in service.CreateHoldInput) (service.HoldView, error) {
	s.in = in
	return s.view, s.err
}

func (s *stubHolds) GetHold(context.Context, string, string) (service.HoldView, error) {
	return s.view, s.err
}

func (s *stubHolds) Release(context.Context, string, string) (model.Hold, error) {
	return s.view.Hold, s.err
}

func (s *stubHolds) Availability(context.Context, string, string) (model.Session, []model.Seat, error) {
	return model.Session{ID: "s1", Status: model.SessionPublished, DefaultPriceCents: 5000, CurrencyCode: "BRL"}, s.view.Seats, s.err
}

type stubOrders struct {
	in  service.CreateOrderInput
	res service.OrderResult
	err error
}

func (s *stubOrders) CreateOrder(_ context.Context, in service.CreateOrderInput) (service.OrderResult, error) {
	s.in = in
	return s.res, s.err
}

func (s *stubOrders) GetOrder(context.Context, string, string) (service.OrderDetails, error) {
	return service.OrderDetails{Order: s.res.Order, Items: s.res.Items}, s.err
}

type stubPayments struct {
	res service.PaymentResult
	err error
}

func (s *stubPayments) SubmitPayment(context.Context, service.SubmitPaymentInput) (service.PaymentResult, error) {
	return s.res, s.err
}

type stubRefunds struct {
	err error
}

func (s *stubRefunds) Refund(_ context.Context, in service.RefundInput) (model.Refund, error) {
	return model.Refund{ID: "r1", OrderID: in.OrderID, ReasonCode: in.ReasonCode, ResultStatus: model.RefundSucceeded}, s.err
}

type fixture struct {
	holds    *stubHolds
	orders   *stubOrders
	payments *stubPayments
	refunds  *stubRefunds
	h        *CheckoutHandler
}

func newFixture() *fixture {
	f := &fixture{holds: &stubHolds{}, orders: &stubOrders{}, payments: &stubPayments{}, refunds: &stubRefunds{}}
	f.h = NewCheckoutHandler(f.holds, f.orders, f.payments, f.refunds)
	return f
}

// call runs fn as if JWTAuth had accepted a token for tenant t1.
func call(t *testing.T, fn echo.HandlerFunc, method, body string, id string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.CtxTenantID, "t1")
	c.Set(middleware.CtxUserID, "u1")
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	require.NoError(t, fn(c))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{model.Invalid("seatIds", "must not be empty"), http.StatusBadRequest, "validation_failed"},
		{fmt.Errorf("resolve: %w", model.ErrUnknownGateway), http.StatusBadRequest, "unknown_gateway"},
		{model.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
		{model.ErrHoldNotFound, http.StatusNotFound, "hold_not_found"},
		{model.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
		{model.ErrSeatUnavailable, http.StatusConflict, "seat_unavailable"},
		{model.ErrSalesClosed, http.StatusConflict, "sales_closed"},
		{model.ErrHoldExpired, http.StatusConflict, "hold_expired"},
		{model.ErrHoldAlreadyConsumed, http.StatusConflict, "hold_already_consumed"},
		{fmt.Errorf("hold was released: %w", model.ErrHoldNotActive), http.StatusConflict, "hold_not_active"},
		{model.ErrOrderAlreadyPaid, http.StatusConflict, "order_already_paid"},
		{fmt.Errorf("order is EXPIRED: %w", model.ErrOrderNotPayable), http.StatusConflict, "order_not_payable"},
		{model.ErrRefundIneligible, http.StatusConflict, "refund_ineligible"},
		{model.ErrPaymentDenied, http.StatusPaymentRequired, "payment_denied"},
		{model.ErrPaymentGateway, http.StatusBadGateway, "payment_gateway_error"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, code := errorStatus(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	f := newFixture()
	f.orders.err = errors.New("dial tcp 10.0.0.3:3306: connection refused")
	rec := call(t, f.h.GetOrder, http.MethodGet, "", "o1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec)["message"])
}

func TestCreateHold(t *testing.T) {
	f := newFixture()
	now := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	f.holds.view = service.HoldView{
		Hold:  model.Hold{ID: "h1", SessionID: "s1", SeatIDs: []string{"A1"}, Status: model.HoldActive, CreatedAt: now, ExpiresAt: now.Add(time.Minute)},
		Seats: []model.Seat{{ID: "A1", Status: model.SeatHeld}},
	}

	rec := call(t, f.h.CreateHold, http.MethodPost, `{"seatIds":["A1"],"ttlSeconds":60}`, "s1")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, service.CreateHoldInput{TenantID: "t1", SessionID: "s1", SeatIDs: []string{"A1"}, TTL: time.Minute}, f.holds.in)
	body := decode(t, rec)
	assert.Equal(t, "h1", body["id"])
	assert.Equal(t, "ACTIVE", body["status"])

	rec = call(t, f.h.CreateHold, http.MethodPost, `{"seatIds":["A1"],"ttlSeconds":-5}`, "s1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.holds.err = model.ErrSeatUnavailable
	rec = call(t, f.h.CreateHold, http.MethodPost, `{"seatIds":["A1"]}`, "s1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "seat_unavailable", decode(t, rec)["error"])
}

func TestAvailabilityCountsFreeSeats(t *testing.T) {
	f := newFixture()
	vip := int64(9000)
	f.holds.view.Seats = []model.Seat{
		{ID: "A1", Status: model.SeatAvailable, PriceCents: &vip},
		{ID: "A2", Status: model.SeatSold},
		{ID: "A3", Status: model.SeatAvailable},
	}
	rec := call(t, f.h.Availability, http.MethodGet, "", "s1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body availabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Available)
	require.Len(t, body.Seats, 3)
	assert.Equal(t, int64(9000), *body.Seats[0].PriceCents)
	assert.Equal(t, int64(5000), *body.Seats[2].PriceCents)
}

func TestCreateOrderStatusCodes(t *testing.T) {
	f := newFixture()
	f.orders.res = service.OrderResult{
		Order:   model.Order{ID: "o1", HoldID: "h1", Status: model.OrderPendingPayment, TotalAmountCents: 11000},
		Items:   []model.OrderItem{{OrderID: "o1", SeatID: "A1", UnitPriceCents: 10000}},
		Created: true,
	}
	body := `{"holdId":"h1","buyer":{"name":"Ana","email":"ana@example.com"}}`

	rec := call(t, f.h.CreateOrder, http.MethodPost, body, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "t1", f.orders.in.TenantID)
	assert.Equal(t, "Ana", f.orders.in.Buyer.Name)
	assert.Equal(t, float64(11000), decode(t, rec)["totalAmountCents"])

	f.orders.res.Created = false
	rec = call(t, f.h.CreateOrder, http.MethodPost, body, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, f.h.CreateOrder, http.MethodPost, `{"buyer":{}}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitPaymentOutcomes(t *testing.T) {
	f := newFixture()
	attempt := model.Payment{ID: "p1", Method: model.MethodCreditCard, Gateway: "sandbox", Status: model.PaymentDenied, FailureReason: "card_declined"}
	pending := model.Order{ID: "o1", Status: model.OrderPendingPayment}

	t.Run("denied", func(t *testing.T) {
		f.payments.res, f.payments.err = service.PaymentResult{Payment: attempt, Order: pending}, model.ErrPaymentDenied
		rec := call(t, f.h.SubmitPayment, http.MethodPost, `{"method":"CREDIT_CARD","cardToken":"tok"}`, "o1")
		require.Equal(t, http.StatusPaymentRequired, rec.Code)
		var body paymentResultResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Retryable)
		assert.Equal(t, "DENIED", body.Payment.Status)
		assert.Equal(t, "PENDING_PAYMENT", body.OrderStatus)
	})

	t.Run("gateway error", func(t *testing.T) {
		errored := attempt
		errored.Status = model.PaymentError
		f.payments.res, f.payments.err = service.PaymentResult{Payment: errored, Order: pending}, fmt.Errorf("%w: timeout", model.ErrPaymentGateway)
		rec := call(t, f.h.SubmitPayment, http.MethodPost, `{"method":"PIX"}`, "o1")
		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, true, decode(t, rec)["retryable"])
	})

	t.Run("approved", func(t *testing.T) {
		approved := attempt
		approved.Status, approved.FailureReason = model.PaymentApproved, ""
		f.payments.res, f.payments.err = service.PaymentResult{Payment: approved, Order: model.Order{ID: "o1", Status: model.OrderPaid}}, nil
		rec := call(t, f.h.SubmitPayment, http.MethodPost, `{"method":"PIX"}`, "o1")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, false, body["retryable"])
		assert.Equal(t, "PAID", body["orderStatus"])
	})

	t.Run("already paid", func(t *testing.T) {
		f.payments.res, f.payments.err = service.PaymentResult{}, model.ErrOrderAlreadyPaid
		rec := call(t, f.h.SubmitPayment, http.MethodPost, `{"method":"PIX"}`, "o1")
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "order_already_paid", decode(t, rec)["error"])
	})

	t.Run("bad gateway code", func(t *testing.T) {
		rec := call(t, f.h.SubmitPayment, http.MethodPost, `{"method":"PIX","gateway":"Stripe!"}`, "o1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("gateway code too long", func(t *testing.T) {
		body := `{"method":"PIX","gateway":"` + strings.Repeat("a", 41) + `"}`
		rec := call(t, f.h.SubmitPayment, http.MethodPost, body, "o1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRefund(t *testing.T) {
	f := newFixture()
	rec := call(t, f.h.Refund, http.MethodPost, `{"reasonCode":"EVENT_CANCELLED"}`, "o1")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "SUCCEEDED", decode(t, rec)["resultStatus"])

	f.refunds.err = fmt.Errorf("order is PENDING_PAYMENT: %w", model.ErrRefundIneligible)
	rec = call(t, f.h.Refund, http.MethodPost, `{"reasonCode":"EVENT_CANCELLED"}`, "o1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	for _, tc := range []struct {
		db     Pinger
		status int
	}{
		{nil, http.StatusOK},
		{pinger{}, http.StatusOK},
		{pinger{err: errors.New("down")}, http.StatusServiceUnavailable},
	} {
		rec := call(t, Health(tc.db), http.MethodGet, "", "")
		assert.Equal(t, tc.status, rec.Code)
	}
}

func TestNewCheckoutHandlerPanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { NewCheckoutHandler(nil, &stubOrders{}, &stubPayments{}, &stubRefunds{}) })
}
