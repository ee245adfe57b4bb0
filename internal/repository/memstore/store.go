// Package memstore is an in-process implementation of the checkout storage
// ports. Each session is owned by a single writer: a unit of work locks the
// session's shard, works on a private copy of its state and swaps the copy
// in only when the work succeeds. Sessions never contend with each other.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/iliyamo/ticketing-core/internal/clock"
	"github.com/iliyamo/ticketing-core/internal/model"
)

// Store keeps every session in its own shard.
type Store struct {
	mu       sync.RWMutex
	shards   map[string]*shard // session id -> shard
	holds    map[string]string // hold id -> session id
	orders   map[string]string // order id -> session id
	payments map[string]string // payment id -> session id
	clock    clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp seat updates.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

type shard struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	session  model.Session
	seats    map[string]model.Seat
	holds    map[string]model.Hold
	orders   map[string]model.Order
	byHold   map[string]string // hold id -> order id
	items    map[string][]model.OrderItem
	payments map[string][]model.Payment // order id -> attempts in creation order
	refunds  map[string][]model.Refund  // order id -> refunds
}

func (st *state) clone() *state {
	payments := make(map[string][]model.Payment, len(st.payments))
	for k, v := range st.payments {
		payments[k] = slices.Clone(v)
	}
	refunds := make(map[string][]model.Refund, len(st.refunds))
	for k, v := range st.refunds {
		refunds[k] = slices.Clone(v)
	}
	return &state{
		session:  st.session,
		seats:    maps.Clone(st.seats),
		holds:    maps.Clone(st.holds),
		orders:   maps.Clone(st.orders),
		byHold:   maps.Clone(st.byHold),
		items:    maps.Clone(st.items),
		payments: payments,
		refunds:  refunds,
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		shards:   map[string]*shard{},
		holds:    map[string]string{},
		orders:   map[string]string{},
		payments: map[string]string{},
		clock:    clock.NewSystem(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddSession registers a session together with its seats. Seats default to
// AVAILABLE when no status is given.
func (s *Store) AddSession(sess model.Session, seats []model.Seat) {
	st := &state{
		session:  sess,
		seats:    make(map[string]model.Seat, len(seats)),
		holds:    map[string]model.Hold{},
		orders:   map[string]model.Order{},
		byHold:   map[string]string{},
		items:    map[string][]model.OrderItem{},
		payments: map[string][]model.Payment{},
		refunds:  map[string][]model.Refund{},
	}
	for _, seat := range seats {
		seat.SessionID = sess.ID
		if seat.Status == "" {
			seat.Status = model.SeatAvailable
		}
		st.seats[seat.ID] = seat
	}
	s.mu.Lock()
	s.shards[sess.ID] = &shard{state: st}
	s.mu.Unlock()
}

// SetSessionStatus changes the publication status of a session.
func (s *Store) SetSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	return s.withSession(ctx, sessionID, func(t *txn) error {
		t.st.session.Status = status
		return nil
	})
}

type txKey struct{}

// txn is the unit of work of one session. New ids are indexed only when the
// unit commits.
type txn struct {
	sessionID string
	st        *state
	holds     []string
	orders    []string
	payments  []string
}

func txFromContext(ctx context.Context) (*txn, bool) {
	t, ok := ctx.Value(txKey{}).(*txn)
	return t, ok
}

// WithinSession runs fn as one unit of work on the session's state.
func (s *Store) WithinSession(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	return s.withSession(ctx, sessionID, func(t *txn) error {
		return fn(context.WithValue(ctx, txKey{}, t))
	})
}

func (s *Store) withSession(ctx context.Context, sessionID string, fn func(t *txn) error) error {
	if t, ok := txFromContext(ctx); ok {
		if t.sessionID != sessionID {
			return fmt.Errorf("memstore: unit of work for session %s cannot touch session %s", t.sessionID, sessionID)
		}
		return fn(t)
	}
	s.mu.RLock()
	sh, ok := s.shards[sessionID]
	s.mu.RUnlock()
	if !ok {
		return model.ErrSessionNotFound
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	t := &txn{sessionID: sessionID, st: sh.state.clone()}
	if err := fn(t); err != nil {
		return err
	}
	sh.state = t.st

	if len(t.holds)+len(t.orders)+len(t.payments) > 0 {
		s.mu.Lock()
		for _, id := range t.holds {
			s.holds[id] = sessionID
		}
		for _, id := range t.orders {
			s.orders[id] = sessionID
		}
		for _, id := range t.payments {
			s.payments[id] = sessionID
		}
		s.mu.Unlock()
	}
	return nil
}

// sessionOf resolves the session owning a record id. Inside a unit of work
// the unit's own session is used so that records created by it are visible.
func (s *Store) sessionOf(ctx context.Context, index map[string]string, id string, notFound error) (string, error) {
	if t, ok := txFromContext(ctx); ok {
		return t.sessionID, nil
	}
	s.mu.RLock()
	sessionID, ok := index[id]
	s.mu.RUnlock()
	if !ok {
		return "", notFound
	}
	return sessionID, nil
}

// snapshot calls fn with each shard's committed state, one shard at a time.
func (s *Store) snapshot(fn func(st *state)) {
	s.mu.RLock()
	shards := make([]*shard, 0, len(s.shards))
	for _, sh := range s.shards {
		shards = append(shards, sh)
	}
	s.mu.RUnlock()
	for _, sh := range shards {
		sh.mu.Lock()
		fn(sh.state)
		sh.mu.Unlock()
	}
}

// GetSession implements service.SessionReader.
func (s *Store) GetSession(ctx context.Context, id string) (model.Session, error) {
	var sess model.Session
	err := s.withSession(ctx, id, func(t *txn) error {
		sess = t.st.session
		return nil
	})
	return sess, err
}

// ListSeats implements service.SeatReader.
func (s *Store) ListSeats(ctx context.Context, sessionID string) ([]model.Seat, error) {
	var seats []model.Seat
	err := s.withSession(ctx, sessionID, func(t *txn) error {
		seats = make([]model.Seat, 0, len(t.st.seats))
		for _, seat := range t.st.seats {
			seats = append(seats, seat)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(seats, func(i, j int) bool {
		a, b := seats[i], seats[j]
		if a.SectorCode != b.SectorCode {
			return a.SectorCode < b.SectorCode
		}
		if a.RowLabel != b.RowLabel {
			return a.RowLabel < b.RowLabel
		}
		return a.SeatNumber < b.SeatNumber
	})
	return seats, nil
}

// GetSeats implements service.SeatReader.
func (s *Store) GetSeats(ctx context.Context, sessionID string, seatIDs []string) ([]model.Seat, error) {
	seats := []model.Seat{}
	err := s.withSession(ctx, sessionID, func(t *txn) error {
		for _, id := range seatIDs {
			if seat, ok := t.st.seats[id]; ok {
				seats = append(seats, seat)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seats, nil
}

func (s *Store) touch(seat model.Seat, to model.SeatStatus, holdID string) model.Seat {
	seat.Status = to
	seat.HoldID = holdID
	seat.Version++
	seat.UpdatedAt = s.clock.Now().UTC()
	return seat
}

// TryReserve implements service.Ledger.
func (s *Store) TryReserve(ctx context.Context, sessionID, holdID string, seatIDs []string) error {
	return s.withSession(ctx, sessionID, func(t *txn) error {
		for _, id := range seatIDs {
			seat, ok := t.st.seats[id]
			if !ok || seat.Status != model.SeatAvailable {
				return model.ErrSeatUnavailable
			}
		}
		for _, id := range seatIDs {
			t.st.seats[id] = s.touch(t.st.seats[id], model.SeatHeld, holdID)
		}
		return nil
	})
}

// Commit implements service.Ledger.
func (s *Store) Commit(ctx context.Context, holdID string, seatIDs []string) error {
	sessionID, err := s.sessionOf(ctx, s.holds, holdID, model.ErrInvalidHoldState)
	if err != nil {
		return err
	}
	return s.withSession(ctx, sessionID, func(t *txn) error {
		for _, id := range seatIDs {
			seat, ok := t.st.seats[id]
			if !ok || seat.Status != model.SeatHeld || seat.HoldID != holdID {
				return fmt.Errorf("commit hold %s: %w", holdID, model.ErrInvalidHoldState)
			}
		}
		for _, id := range seatIDs {
			t.st.seats[id] = s.touch(t.st.seats[id], model.SeatSold, holdID)
		}
		return nil
	})
}

// Release implements service.Ledger.
func (s *Store) Release(ctx context.Context, holdID string, seatIDs []string) error {
	return s.untag(ctx, holdID, seatIDs, model.SeatHeld)
}

// Revert implements service.Ledger.
func (s *Store) Revert(ctx context.Context, holdID string, seatIDs []string) error {
	return s.untag(ctx, holdID, seatIDs, model.SeatSold)
}

func (s *Store) untag(ctx context.Context, holdID string, seatIDs []string, from model.SeatStatus) error {
	sessionID, err := s.sessionOf(ctx, s.holds, holdID, nil)
	if err != nil || sessionID == "" {
		return nil
	}
	return s.withSession(ctx, sessionID, func(t *txn) error {
		for _, id := range seatIDs {
			seat, ok := t.st.seats[id]
			if ok && seat.Status == from && seat.HoldID == holdID {
				t.st.seats[id] = s.touch(seat, model.SeatAvailable, "")
			}
		}
		return nil
	})
}
