package model

import "time"

// SeatStatus is the closed set of states a seat can be in. A seat has
// exactly one status at any instant.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHeld      SeatStatus = "HELD"
	SeatSold      SeatStatus = "SOLD"
	SeatBlocked   SeatStatus = "BLOCKED"
)

// Valid reports whether s is one of the known seat statuses.
func (s SeatStatus) Valid() bool {
	switch s {
	case SeatAvailable, SeatHeld, SeatSold, SeatBlocked:
		return true
	}
	return false
}

// CanTransitionTo reports whether the ledger may move a seat from s to next.
// BLOCKED is administrative and never entered or left by the checkout flow.
func (s SeatStatus) CanTransitionTo(next SeatStatus) bool {
	switch s {
	case SeatAvailable:
		return next == SeatHeld
	case SeatHeld:
		return next == SeatSold || next == SeatAvailable
	case SeatSold:
		return next == SeatAvailable
	case SeatBlocked:
		return false
	}
	return false
}

// Seat is one sellable position of a session.
//
// Fields:
//
//	HoldID     – ownership tag; set while HELD and kept while SOLD so the
//	             seat can only be committed or reverted by the hold that took it.
//	PriceCents – per-seat override; nil means the session default applies.
//	Version    – incremented on every ledger transition.
type Seat struct {
	ID         string     // seats.id
	SessionID  string     // seats.session_id
	SectorCode string     // seats.sector_code
	RowLabel   string     // seats.row_label
	SeatNumber string     // seats.seat_number
	Status     SeatStatus // seats.status
	HoldID     string     // seats.hold_id (empty when untagged)
	PriceCents *int64     // seats.price_cents (nullable)
	Version    uint32     // seats.version
	UpdatedAt  time.Time  // seats.updated_at
}

// EffectivePrice returns the seat's override price or the given default.
func (s Seat) EffectivePrice(defaultCents int64) int64 {
	if s.PriceCents != nil {
		return *s.PriceCents
	}
	return defaultCents
}
