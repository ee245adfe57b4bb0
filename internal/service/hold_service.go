package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/ticketing-core/internal/clock"
	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/queue"
)

const (
	defaultHoldTTL      = 10 * time.Minute
	defaultMaxHoldSeats = 10
)

// HoldService issues and releases time-boxed leases on seat sets.
type HoldService struct {
	tx       Transactor
	ledger   Ledger
	sessions SessionReader
	seats    SeatReader
	holds    HoldRepository
	events   EventPublisher
	clock    clock.Clock
	ttl      time.Duration
	maxSeats int
}

// HoldServiceOption configures a HoldService.
type HoldServiceOption func(*HoldService)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithMaxHoldSeats caps the number of seats of a single hold.
func WithMaxHoldSeats(n int) HoldServiceOption {
	return func(s *HoldService) {
		if n > 0 {
			s.maxSeats = n
		}
	}
}

// WithHoldEvents sets the publisher of hold events.
func WithHoldEvents(p EventPublisher) HoldServiceOption {
	return func(s *HoldService) { s.events = p }
}

func NewHoldService(tx Transactor, ledger Ledger, sessions SessionReader, seats SeatReader, holds HoldRepository, clk clock.Clock, opts ...HoldServiceOption) *HoldService {
	s := &HoldService{
		tx:       tx,
		ledger:   ledger,
		sessions: sessions,
		seats:    seats,
		holds:    holds,
		events:   NopPublisher{},
		clock:    clk,
		ttl:      defaultHoldTTL,
		maxSeats: defaultMaxHoldSeats,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateHoldInput struct {
	TenantID  string
	SessionID string
	SeatIDs   []string
	// TTL overrides the service default when positive.
	TTL time.Duration
}

// HoldView is a hold together with the seats it leases, in hold order.
type HoldView struct {
	Hold  model.Hold
	Seats []model.Seat
}

// CreateHold reserves every requested seat for a new hold or none of them.
// A failed reservation leaves no hold record behind.
func (s *HoldService) CreateHold(ctx context.Context, in CreateHoldInput) (view HoldView, err error) {
	ctx, span := startSpan(ctx, "HoldService.CreateHold",
		attribute.String("session.id", in.SessionID), attribute.Int("seats.requested", len(in.SeatIDs)))
	defer func() { endSpan(span, err) }()

	seatIDs := dedupe(in.SeatIDs)
	switch {
	case strings.TrimSpace(in.SessionID) == "":
		return HoldView{}, model.Invalid("sessionId", "is required")
	case len(seatIDs) == 0:
		return HoldView{}, model.Invalid("seatIds", "must not be empty")
	case len(seatIDs) > s.maxSeats:
		return HoldView{}, model.Invalid("seatIds", "at most %d seats per hold", s.maxSeats)
	case in.TTL < 0:
		return HoldView{}, model.Invalid("ttl", "must be positive")
	}
	ttl := s.ttl
	if in.TTL > 0 {
		ttl = in.TTL
	}

	now := s.clock.Now()
	session, err := s.sessions.GetSession(ctx, in.SessionID)
	if err != nil {
		return HoldView{}, err
	}
	if session.TenantID != in.TenantID {
		return HoldView{}, model.ErrSessionNotFound
	}
	if !session.SalesOpen(now) {
		return HoldView{}, model.ErrSalesClosed
	}

	seats, err := s.seats.GetSeats(ctx, session.ID, seatIDs)
	if err != nil {
		return HoldView{}, err
	}
	if len(seats) != len(seatIDs) {
		return HoldView{}, model.Invalid("seatIds", "%s", missingSeat(seatIDs, seats, session.ID))
	}

	hold := model.Hold{
		ID:        uuid.NewString(),
		TenantID:  session.TenantID,
		SessionID: session.ID,
		SeatIDs:   seatIDs,
		Status:    model.HoldActive,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		UpdatedAt: now,
	}
	err = s.tx.WithinSession(ctx, session.ID, func(ctx context.Context) error {
		if err := s.ledger.TryReserve(ctx, session.ID, hold.ID, seatIDs); err != nil {
			return err
		}
		return s.holds.CreateHold(ctx, hold)
	})
	if err != nil {
		return HoldView{}, err
	}

	ev := queue.NewEvent(queue.HoldCreated, now)
	ev.TenantID, ev.SessionID, ev.HoldID, ev.SeatIDs = hold.TenantID, hold.SessionID, hold.ID, hold.SeatIDs
	publish(ctx, s.events, ev)

	return HoldView{Hold: hold, Seats: orderSeats(seatIDs, seats, model.SeatHeld, hold.ID)}, nil
}

// GetHold returns a hold of the tenant with its seats.
func (s *HoldService) GetHold(ctx context.Context, tenantID, holdID string) (HoldView, error) {
	hold, err := s.holds.GetHold(ctx, holdID)
	if err != nil {
		return HoldView{}, err
	}
	if hold.TenantID != tenantID {
		return HoldView{}, model.ErrHoldNotFound
	}
	seats, err := s.seats.GetSeats(ctx, hold.SessionID, hold.SeatIDs)
	if err != nil {
		return HoldView{}, err
	}
	return HoldView{Hold: hold, Seats: orderSeats(hold.SeatIDs, seats, "", "")}, nil
}

// Release ends an ACTIVE hold on the client's request and frees its seats.
func (s *HoldService) Release(ctx context.Context, tenantID, holdID string) (hold model.Hold, err error) {
	ctx, span := startSpan(ctx, "HoldService.Release", attribute.String("hold.id", holdID))
	defer func() { endSpan(span, err) }()

	hold, err = s.holds.GetHold(ctx, holdID)
	if err != nil {
		return model.Hold{}, err
	}
	if hold.TenantID != tenantID {
		return model.Hold{}, model.ErrHoldNotFound
	}

	now := s.clock.Now()
	err = s.tx.WithinSession(ctx, hold.SessionID, func(ctx context.Context) error {
		cur, err := s.holds.GetHoldForUpdate(ctx, holdID)
		if err != nil {
			return err
		}
		if !cur.Status.CanTransitionTo(model.HoldReleased) {
			return fmt.Errorf("release hold in status %s: %w", cur.Status, model.ErrHoldNotActive)
		}
		if err := s.ledger.Release(ctx, cur.ID, cur.SeatIDs); err != nil {
			return err
		}
		ok, err := s.holds.TransitionHold(ctx, cur.ID, model.HoldActive, model.HoldReleased, now)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrHoldNotActive
		}
		hold = cur
		hold.Status = model.HoldReleased
		hold.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.Hold{}, err
	}

	log.Printf("[holds] released hold_id=%s session_id=%s seats=%d", hold.ID, hold.SessionID, len(hold.SeatIDs))
	ev := queue.NewEvent(queue.HoldReleased, now)
	ev.TenantID, ev.SessionID, ev.HoldID, ev.SeatIDs = hold.TenantID, hold.SessionID, hold.ID, hold.SeatIDs
	publish(ctx, s.events, ev)
	return hold, nil
}

// Availability lists the seats of a session with their effective price.
func (s *HoldService) Availability(ctx context.Context, tenantID, sessionID string) (model.Session, []model.Seat, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, nil, err
	}
	if session.TenantID != tenantID {
		return model.Session{}, nil, model.ErrSessionNotFound
	}
	seats, err := s.seats.ListSeats(ctx, sessionID)
	if err != nil {
		return model.Session{}, nil, err
	}
	return session, seats, nil
}

// orderSeats returns seats in the order of ids. When status is set the
// returned copies reflect the state just written by the caller.
func orderSeats(ids []string, seats []model.Seat, status model.SeatStatus, holdID string) []model.Seat {
	byID := make(map[string]model.Seat, len(seats))
	for _, seat := range seats {
		byID[seat.ID] = seat
	}
	out := make([]model.Seat, 0, len(ids))
	for _, id := range ids {
		seat, ok := byID[id]
		if !ok {
			continue
		}
		if status != "" {
			seat.Status = status
			seat.HoldID = holdID
		}
		out = append(out, seat)
	}
	return out
}

func missingSeat(ids []string, found []model.Seat, sessionID string) string {
	have := make(map[string]bool, len(found))
	for _, seat := range found {
		have[seat.ID] = true
	}
	for _, id := range ids {
		if !have[id] {
			return fmt.Sprintf("seat %s does not belong to session %s", id, sessionID)
		}
	}
	return "unknown seat"
}
