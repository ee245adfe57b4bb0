package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ticketing-core/internal/model"
)

// SessionRepo reads sessions. Sessions and their seats are created by the
// catalogue side of the platform; the checkout core never writes them.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a new SessionRepo bound to the provided database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `id, tenant_id, name, sales_starts_at, sales_ends_at, capacity, status, default_price_cents, currency_code, created_at`

// GetSession loads a session by id or returns model.ErrSessionNotFound.
func (r *SessionRepo) GetSession(ctx context.Context, id string) (model.Session, error) {
	var s model.Session
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.TenantID, &s.Name, &s.SalesStartsAt, &s.SalesEndsAt, &s.Capacity,
		&s.Status, &s.DefaultPriceCents, &s.CurrencyCode, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, err
	}
	return s, nil
}
