package memstore

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/iliyamo/ticketing-core/internal/model"
)

// CreateHold implements service.HoldRepository.
func (s *Store) CreateHold(ctx context.Context, h model.Hold) error {
	return s.withSession(ctx, h.SessionID, func(t *txn) error {
		h.SeatIDs = slices.Clone(h.SeatIDs)
		h.UpdatedAt = h.CreatedAt
		t.st.holds[h.ID] = h
		t.holds = append(t.holds, h.ID)
		return nil
	})
}

// GetHold implements service.HoldRepository.
func (s *Store) GetHold(ctx context.Context, id string) (model.Hold, error) {
	sessionID, err := s.sessionOf(ctx, s.holds, id, model.ErrHoldNotFound)
	if err != nil {
		return model.Hold{}, err
	}
	var h model.Hold
	err = s.withSession(ctx, sessionID, func(t *txn) error {
		var ok bool
		if h, ok = t.st.holds[id]; !ok {
			return model.ErrHoldNotFound
		}
		return nil
	})
	return h, err
}

// GetHoldForUpdate implements service.HoldRepository. The session lock held
// by the enclosing unit of work already serializes writers of the hold.
func (s *Store) GetHoldForUpdate(ctx context.Context, id string) (model.Hold, error) {
	return s.GetHold(ctx, id)
}

// TransitionHold implements service.HoldRepository.
func (s *Store) TransitionHold(ctx context.Context, id string, from, to model.HoldStatus, at time.Time) (bool, error) {
	sessionID, err := s.sessionOf(ctx, s.holds, id, model.ErrHoldNotFound)
	if err != nil {
		return false, err
	}
	changed := false
	err = s.withSession(ctx, sessionID, func(t *txn) error {
		h, ok := t.st.holds[id]
		if !ok || h.Status != from {
			return nil
		}
		h.Status = to
		h.UpdatedAt = at.UTC()
		t.st.holds[id] = h
		changed = true
		return nil
	})
	return changed, err
}

// ListExpiredHolds implements service.HoldRepository.
func (s *Store) ListExpiredHolds(_ context.Context, now time.Time, limit int) ([]model.Hold, error) {
	var out []model.Hold
	s.snapshot(func(st *state) {
		for _, h := range st.holds {
			if h.Status == model.HoldActive && h.ExpiredAt(now) {
				out = append(out, h)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return truncate(out, limit), nil
}

// ListActiveHoldsOfCancelledSessions implements service.HoldRepository.
func (s *Store) ListActiveHoldsOfCancelledSessions(_ context.Context, limit int) ([]model.Hold, error) {
	var out []model.Hold
	s.snapshot(func(st *state) {
		if st.session.Status != model.SessionCancelled {
			return
		}
		for _, h := range st.holds {
			if h.Status == model.HoldActive {
				out = append(out, h)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

// CreateOrder implements service.OrderRepository.
func (s *Store) CreateOrder(ctx context.Context, o model.Order, items []model.OrderItem) error {
	return s.withSession(ctx, o.SessionID, func(t *txn) error {
		if _, ok := t.st.byHold[o.HoldID]; ok {
			return model.ErrDuplicateOrder
		}
		o.UpdatedAt = o.CreatedAt
		t.st.orders[o.ID] = o
		t.st.byHold[o.HoldID] = o.ID
		stored := make([]model.OrderItem, len(items))
		for i, it := range items {
			it.OrderID = o.ID
			stored[i] = it
		}
		t.st.items[o.ID] = stored
		t.orders = append(t.orders, o.ID)
		return nil
	})
}

// GetOrder implements service.OrderRepository.
func (s *Store) GetOrder(ctx context.Context, id string) (model.Order, error) {
	sessionID, err := s.sessionOf(ctx, s.orders, id, model.ErrOrderNotFound)
	if err != nil {
		return model.Order{}, err
	}
	var o model.Order
	err = s.withSession(ctx, sessionID, func(t *txn) error {
		var ok bool
		if o, ok = t.st.orders[id]; !ok {
			return model.ErrOrderNotFound
		}
		return nil
	})
	return o, err
}

// GetOrderForUpdate implements service.OrderRepository.
func (s *Store) GetOrderForUpdate(ctx context.Context, id string) (model.Order, error) {
	return s.GetOrder(ctx, id)
}

// GetOrderByHoldID implements service.OrderRepository.
func (s *Store) GetOrderByHoldID(ctx context.Context, holdID string) (model.Order, error) {
	sessionID, err := s.sessionOf(ctx, s.holds, holdID, model.ErrOrderNotFound)
	if err != nil {
		return model.Order{}, err
	}
	var o model.Order
	err = s.withSession(ctx, sessionID, func(t *txn) error {
		orderID, ok := t.st.byHold[holdID]
		if !ok {
			return model.ErrOrderNotFound
		}
		o = t.st.orders[orderID]
		return nil
	})
	return o, err
}

// ListOrderItems implements service.OrderRepository.
func (s *Store) ListOrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	sessionID, err := s.sessionOf(ctx, s.orders, orderID, model.ErrOrderNotFound)
	if err != nil {
		return nil, err
	}
	var items []model.OrderItem
	err = s.withSession(ctx, sessionID, func(t *txn) error {
		items = slices.Clone(t.st.items[orderID])
		return nil
	})
	return items, err
}

// TransitionOrder implements service.OrderRepository.
func (s *Store) TransitionOrder(ctx context.Context, id string, from, to model.OrderStatus, at time.Time) (bool, error) {
	sessionID, err := s.sessionOf(ctx, s.orders, id, model.ErrOrderNotFound)
	if err != nil {
		return false, err
	}
	changed := false
	err = s.withSession(ctx, sessionID, func(t *txn) error {
		o, ok := t.st.orders[id]
		if !ok || o.Status != from {
			return nil
		}
		o.Status = to
		o.UpdatedAt = at.UTC()
		t.st.orders[id] = o
		changed = true
		return nil
	})
	return changed, err
}

// ListStaleOrders implements service.OrderRepository.
func (s *Store) ListStaleOrders(_ context.Context, createdBefore time.Time, limit int) ([]model.Order, error) {
	var out []model.Order
	s.snapshot(func(st *state) {
		for _, o := range st.orders {
			if o.Status != model.OrderPendingPayment || o.CreatedAt.After(createdBefore) {
				continue
			}
			if hasApproved(st.payments[o.ID]) {
				continue
			}
			out = append(out, o)
		}
	})
	sortOrders(out)
	return truncate(out, limit), nil
}

// ListPendingOrdersOfCancelledSessions implements service.OrderRepository.
func (s *Store) ListPendingOrdersOfCancelledSessions(_ context.Context, limit int) ([]model.Order, error) {
	var out []model.Order
	s.snapshot(func(st *state) {
		if st.session.Status != model.SessionCancelled {
			return
		}
		for _, o := range st.orders {
			if o.Status == model.OrderPendingPayment {
				out = append(out, o)
			}
		}
	})
	sortOrders(out)
	return truncate(out, limit), nil
}

// CreatePayment implements service.PaymentRepository.
func (s *Store) CreatePayment(ctx context.Context, p model.Payment) error {
	sessionID, err := s.sessionOf(ctx, s.orders, p.OrderID, model.ErrOrderNotFound)
	if err != nil {
		return err
	}
	return s.withSession(ctx, sessionID, func(t *txn) error {
		if _, ok := t.st.orders[p.OrderID]; !ok {
			return model.ErrOrderNotFound
		}
		t.st.payments[p.OrderID] = append(t.st.payments[p.OrderID], p)
		t.payments = append(t.payments, p.ID)
		return nil
	})
}

// UpdatePayment implements service.PaymentRepository.
func (s *Store) UpdatePayment(ctx context.Context, p model.Payment, from model.PaymentStatus) (bool, error) {
	sessionID, err := s.sessionOf(ctx, s.payments, p.ID, model.ErrOrderNotFound)
	if err != nil {
		return false, err
	}
	changed := false
	err = s.withSession(ctx, sessionID, func(t *txn) error {
		attempts := t.st.payments[p.OrderID]
		for i, cur := range attempts {
			if cur.ID != p.ID {
				continue
			}
			if cur.Status != from {
				return nil
			}
			cur.Status = p.Status
			cur.ProviderPaymentID = p.ProviderPaymentID
			cur.FailureReason = p.FailureReason
			cur.Attempts = p.Attempts
			cur.UpdatedAt = p.UpdatedAt.UTC()
			attempts[i] = cur
			changed = true
			return nil
		}
		return nil
	})
	return changed, err
}

// ListPayments implements service.PaymentRepository.
func (s *Store) ListPayments(ctx context.Context, orderID string) ([]model.Payment, error) {
	sessionID, err := s.sessionOf(ctx, s.orders, orderID, model.ErrOrderNotFound)
	if err != nil {
		return nil, err
	}
	payments := []model.Payment{}
	err = s.withSession(ctx, sessionID, func(t *txn) error {
		payments = append(payments, t.st.payments[orderID]...)
		return nil
	})
	return payments, err
}

// CreateRefund implements service.RefundRepository.
func (s *Store) CreateRefund(ctx context.Context, r model.Refund) error {
	sessionID, err := s.sessionOf(ctx, s.orders, r.OrderID, model.ErrOrderNotFound)
	if err != nil {
		return err
	}
	return s.withSession(ctx, sessionID, func(t *txn) error {
		for _, cur := range t.st.refunds[r.OrderID] {
			if cur.PaymentID == r.PaymentID {
				return model.ErrRefundIneligible
			}
		}
		r.CreatedAt = r.CreatedAt.UTC()
		t.st.refunds[r.OrderID] = append(t.st.refunds[r.OrderID], r)
		return nil
	})
}

// CompleteRefund implements service.RefundRepository.
func (s *Store) CompleteRefund(ctx context.Context, r model.Refund) (bool, error) {
	sessionID, err := s.sessionOf(ctx, s.orders, r.OrderID, model.ErrOrderNotFound)
	if err != nil {
		return false, err
	}
	changed := false
	err = s.withSession(ctx, sessionID, func(t *txn) error {
		refunds := t.st.refunds[r.OrderID]
		for i, cur := range refunds {
			if cur.ID == r.ID && cur.ResultStatus == model.RefundPending {
				cur.ResultStatus = r.ResultStatus
				cur.ProviderRefundID = r.ProviderRefundID
				refunds[i] = cur
				changed = true
				return nil
			}
		}
		return nil
	})
	return changed, err
}

// DiscardRefund implements service.RefundRepository.
func (s *Store) DiscardRefund(ctx context.Context, r model.Refund) error {
	sessionID, err := s.sessionOf(ctx, s.orders, r.OrderID, model.ErrOrderNotFound)
	if err != nil {
		return err
	}
	return s.withSession(ctx, sessionID, func(t *txn) error {
		t.st.refunds[r.OrderID] = slices.DeleteFunc(t.st.refunds[r.OrderID], func(cur model.Refund) bool {
			return cur.ID == r.ID && cur.ResultStatus == model.RefundPending
		})
		return nil
	})
}

// ListRefunds implements service.RefundRepository.
func (s *Store) ListRefunds(ctx context.Context, orderID string) ([]model.Refund, error) {
	sessionID, err := s.sessionOf(ctx, s.orders, orderID, model.ErrOrderNotFound)
	if err != nil {
		return nil, err
	}
	refunds := []model.Refund{}
	err = s.withSession(ctx, sessionID, func(t *txn) error {
		refunds = append(refunds, t.st.refunds[orderID]...)
		return nil
	})
	return refunds, err
}

func hasApproved(payments []model.Payment) bool {
	for _, p := range payments {
		if p.Status == model.PaymentApproved {
			return true
		}
	}
	return false
}

func sortOrders(orders []model.Order) {
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
}

func truncate[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
