package model

import "time"

// SessionStatus is the publication state of a session.
type SessionStatus string

const (
	SessionDraft     SessionStatus = "DRAFT"
	SessionPublished SessionStatus = "PUBLISHED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// Valid reports whether s is one of the known session statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionDraft, SessionPublished, SessionCancelled:
		return true
	}
	return false
}

// Session is a scheduled performance whose seats are sold by this core.
// Seats are created together with the session; capacity is informational
// and is not enforced beyond seat existence.
//
// Fields:
//
//	ID                – primary key identifier.
//	TenantID          – tenant that owns the session; holds and orders inherit it.
//	SalesStartsAt     – first instant at which holds may be placed.
//	SalesEndsAt       – instant at which sales close (exclusive).
//	DefaultPriceCents – price applied to seats without an override.
//	CurrencyCode      – ISO-4217 code used for every order of the session.
type Session struct {
	ID                string        // sessions.id
	TenantID          string        // sessions.tenant_id
	Name              string        // sessions.name
	SalesStartsAt     time.Time     // sessions.sales_starts_at
	SalesEndsAt       time.Time     // sessions.sales_ends_at
	Capacity          int           // sessions.capacity
	Status            SessionStatus // sessions.status
	DefaultPriceCents int64         // sessions.default_price_cents
	CurrencyCode      string        // sessions.currency_code
	CreatedAt         time.Time     // sessions.created_at
}

// SalesOpen reports whether holds may be placed on the session at now.
func (s Session) SalesOpen(now time.Time) bool {
	if s.Status != SessionPublished {
		return false
	}
	return !now.Before(s.SalesStartsAt) && now.Before(s.SalesEndsAt)
}
