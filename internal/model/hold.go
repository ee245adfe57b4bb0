package model

import "time"

// HoldStatus is the lifecycle state of a hold. Every state other than
// ACTIVE is terminal.
type HoldStatus string

const (
	HoldActive   HoldStatus = "ACTIVE"
	HoldConsumed HoldStatus = "CONSUMED"
	HoldExpired  HoldStatus = "EXPIRED"
	HoldReleased HoldStatus = "RELEASED"
)

// Valid reports whether s is one of the known hold statuses.
func (s HoldStatus) Valid() bool {
	switch s {
	case HoldActive, HoldConsumed, HoldExpired, HoldReleased:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s HoldStatus) Terminal() bool {
	switch s {
	case HoldActive:
		return false
	case HoldConsumed, HoldExpired, HoldReleased:
		return true
	}
	return true
}

// CanTransitionTo reports whether a hold may move from s to next.
func (s HoldStatus) CanTransitionTo(next HoldStatus) bool {
	switch s {
	case HoldActive:
		return next == HoldConsumed || next == HoldExpired || next == HoldReleased
	case HoldConsumed, HoldExpired, HoldReleased:
		return false
	}
	return false
}

// Hold is a time-boxed exclusive lease on an ordered set of seats of one
// session. While ACTIVE every seat in SeatIDs is HELD and tagged with ID.
type Hold struct {
	ID        string     // holds.id
	TenantID  string     // holds.tenant_id
	SessionID string     // holds.session_id
	SeatIDs   []string   // hold_seats.seat_id ordered by position
	Status    HoldStatus // holds.status
	CreatedAt time.Time  // holds.created_at
	ExpiresAt time.Time  // holds.expires_at, strictly after CreatedAt
	UpdatedAt time.Time  // holds.updated_at
}

// ExpiredAt reports whether the lease is over at now.
func (h Hold) ExpiredAt(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}
