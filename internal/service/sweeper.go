package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/ticketing-core/internal/clock"
	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/queue"
)

const (
	defaultSweepInterval = 15 * time.Second
	defaultPaymentWindow = 15 * time.Minute
	defaultSweepBatch    = 200
	sweepLockKey         = "ticketing:sweeper"
)

// Sweeper reclaims abandoned holds and unpaid orders. Every transition it
// makes is conditional on the status it read, so overlapping passes from
// several instances only ever turn into no-ops.
type Sweeper struct {
	tx       Transactor
	ledger   Ledger
	holds    HoldRepository
	orders   OrderRepository
	payments PaymentRepository
	sessions SessionReader
	events   EventPublisher
	lock     SweepLock
	clock    clock.Clock
	interval time.Duration
	window   time.Duration
	batch    int
}

type SweeperOption func(*Sweeper)

// WithSweepInterval sets the pause between two passes.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithPaymentWindow sets how long an order may stay PENDING_PAYMENT.
func WithPaymentWindow(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithSweepBatch caps the records handled per category and pass.
func WithSweepBatch(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithSweepLock shares the schedule between instances.
func WithSweepLock(l SweepLock) SweeperOption {
	return func(s *Sweeper) { s.lock = l }
}

// WithSweepSessions lets the sweeper expire holds of cancelled sessions
// before their lease runs out.
func WithSweepSessions(r SessionReader) SweeperOption {
	return func(s *Sweeper) { s.sessions = r }
}

func WithSweepEvents(p EventPublisher) SweeperOption {
	return func(s *Sweeper) { s.events = p }
}

func NewSweeper(tx Transactor, ledger Ledger, holds HoldRepository, orders OrderRepository, payments PaymentRepository, clk clock.Clock, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		tx:       tx,
		ledger:   ledger,
		holds:    holds,
		orders:   orders,
		payments: payments,
		events:   NopPublisher{},
		clock:    clk,
		interval: defaultSweepInterval,
		window:   defaultPaymentWindow,
		batch:    defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SweepReport counts the records a pass moved.
type SweepReport struct {
	HoldsExpired    int
	OrdersExpired   int
	OrdersCancelled int
}

func (r SweepReport) empty() bool {
	return r.HoldsExpired+r.OrdersExpired+r.OrdersCancelled == 0
}

// Run sweeps every interval until ctx is done. Errors of a pass are logged
// and the next pass runs on schedule.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("[sweeper] started interval=%s payment_window=%s batch=%d", s.interval, s.window, s.batch)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sweeper] stopped")
			return
		case <-ticker.C:
			if s.lock != nil {
				ok, err := s.lock.Acquire(ctx, sweepLockKey, s.interval)
				if err != nil {
					log.Printf("[sweeper] lock error, sweeping anyway: %v", err)
				} else if !ok {
					continue
				}
			}
			report, err := s.SweepOnce(ctx)
			if err != nil {
				log.Printf("[sweeper] pass failed: %v", err)
			}
			if !report.empty() {
				log.Printf("[sweeper] pass holds_expired=%d orders_expired=%d orders_cancelled=%d",
					report.HoldsExpired, report.OrdersExpired, report.OrdersCancelled)
			}
		}
	}
}

// SweepOnce runs a single pass. Failures on individual records do not stop
// the pass; they are joined into the returned error.
func (s *Sweeper) SweepOnce(ctx context.Context) (report SweepReport, err error) {
	ctx, span := startSpan(ctx, "Sweeper.SweepOnce")
	defer func() {
		span.SetAttributes(
			attribute.Int("holds.expired", report.HoldsExpired),
			attribute.Int("orders.expired", report.OrdersExpired),
			attribute.Int("orders.cancelled", report.OrdersCancelled))
		endSpan(span, err)
	}()

	now := s.clock.Now()
	var errs []error

	expired, err := s.holds.ListExpiredHolds(ctx, now, s.batch)
	if err != nil {
		errs = append(errs, fmt.Errorf("list expired holds: %w", err))
	}
	orphaned, err := s.holds.ListActiveHoldsOfCancelledSessions(ctx, s.batch)
	if err != nil {
		errs = append(errs, fmt.Errorf("list holds of cancelled sessions: %w", err))
	}
	for _, h := range append(expired, orphaned...) {
		moved, err := s.ExpireHold(ctx, h.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire hold %s: %w", h.ID, err))
			continue
		}
		if moved {
			report.HoldsExpired++
		}
	}

	stale, err := s.orders.ListStaleOrders(ctx, now.Add(-s.window), s.batch)
	if err != nil {
		errs = append(errs, fmt.Errorf("list stale orders: %w", err))
	}
	for _, o := range stale {
		moved, err := s.CloseOrder(ctx, o.ID, model.OrderExpired)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire order %s: %w", o.ID, err))
			continue
		}
		if moved {
			report.OrdersExpired++
		}
	}

	cancelled, err := s.orders.ListPendingOrdersOfCancelledSessions(ctx, s.batch)
	if err != nil {
		errs = append(errs, fmt.Errorf("list orders of cancelled sessions: %w", err))
	}
	for _, o := range cancelled {
		moved, err := s.CloseOrder(ctx, o.ID, model.OrderCancelled)
		if err != nil {
			errs = append(errs, fmt.Errorf("cancel order %s: %w", o.ID, err))
			continue
		}
		if moved {
			report.OrdersCancelled++
		}
	}
	return report, errors.Join(errs...)
}

// ExpireHold releases the seats of an ACTIVE hold and marks it EXPIRED. It
// reports false without error when the hold is no longer ACTIVE or its
// lease is still running on a live session.
func (s *Sweeper) ExpireHold(ctx context.Context, holdID string) (bool, error) {
	hold, err := s.holds.GetHold(ctx, holdID)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	moved := false
	err = s.tx.WithinSession(ctx, hold.SessionID, func(ctx context.Context) error {
		cur, err := s.holds.GetHoldForUpdate(ctx, holdID)
		if err != nil {
			return err
		}
		if cur.Status != model.HoldActive {
			return nil
		}
		if !cur.ExpiredAt(now) && !s.sessionCancelled(ctx, cur.SessionID) {
			return nil
		}
		if err := s.ledger.Release(ctx, cur.ID, cur.SeatIDs); err != nil {
			return err
		}
		moved, err = s.holds.TransitionHold(ctx, cur.ID, model.HoldActive, model.HoldExpired, now)
		hold = cur
		return err
	})
	if err != nil || !moved {
		return false, err
	}

	ev := queue.NewEvent(queue.HoldExpired, now)
	ev.TenantID, ev.SessionID, ev.HoldID, ev.SeatIDs = hold.TenantID, hold.SessionID, hold.ID, hold.SeatIDs
	publish(ctx, s.events, ev)
	return true, nil
}

// CloseOrder reverts the seats of a PENDING_PAYMENT order to AVAILABLE and
// moves the order to `to` (EXPIRED or CANCELLED). An order that has an
// APPROVED payment is never closed.
func (s *Sweeper) CloseOrder(ctx context.Context, orderID string, to model.OrderStatus) (bool, error) {
	if !model.OrderPendingPayment.CanTransitionTo(to) || to == model.OrderPaid {
		return false, fmt.Errorf("sweeper cannot move orders to %s", to)
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	moved := false
	err = s.tx.WithinSession(ctx, order.SessionID, func(ctx context.Context) error {
		cur, err := s.orders.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if cur.Status != model.OrderPendingPayment {
			return nil
		}
		payments, err := s.payments.ListPayments(ctx, cur.ID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.Status == model.PaymentApproved {
				return nil
			}
		}
		items, err := s.orders.ListOrderItems(ctx, cur.ID)
		if err != nil {
			return err
		}
		seatIDs := make([]string, len(items))
		for i, it := range items {
			seatIDs[i] = it.SeatID
		}
		if err := s.ledger.Revert(ctx, cur.HoldID, seatIDs); err != nil {
			return err
		}
		moved, err = s.orders.TransitionOrder(ctx, cur.ID, model.OrderPendingPayment, to, now)
		order = cur
		return err
	})
	if err != nil || !moved {
		return false, err
	}

	typ := queue.OrderExpired
	if to == model.OrderCancelled {
		typ = queue.OrderCancelled
	}
	log.Printf("[sweeper] order closed order_id=%s status=%s", order.ID, to)
	ev := queue.NewEvent(typ, now)
	ev.TenantID, ev.SessionID, ev.OrderID, ev.HoldID = order.TenantID, order.SessionID, order.ID, order.HoldID
	ev.AmountCents, ev.Currency, ev.Status = order.TotalAmountCents, order.CurrencyCode, string(to)
	publish(ctx, s.events, ev)
	return true, nil
}

// sessionCancelled is only consulted for holds whose lease is still running.
func (s *Sweeper) sessionCancelled(ctx context.Context, sessionID string) bool {
	if s.sessions == nil {
		return false
	}
	sess, err := s.sessions.GetSession(ctx, sessionID)
	return err == nil && sess.Status == model.SessionCancelled
}
