package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticketing-core/internal/model"
)

// HoldRepo provides data access to the holds and hold_seats tables. All
// timestamps are written and compared in UTC.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a new HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

const holdColumns = `id, tenant_id, session_id, status, created_at, expires_at, updated_at`

// CreateHold inserts the hold row and one hold_seats row per seat, keeping
// the caller's seat order in the position column.
func (r *HoldRepo) CreateHold(ctx context.Context, h model.Hold) error {
	return withTx(ctx, r.db, func(ctx context.Context) error {
		q := conn(ctx, r.db)
		if _, err := q.ExecContext(ctx,
			`INSERT INTO holds (`+holdColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.TenantID, h.SessionID, string(h.Status), h.CreatedAt.UTC(), h.ExpiresAt.UTC(), h.CreatedAt.UTC(),
		); err != nil {
			return err
		}
		if len(h.SeatIDs) == 0 {
			return nil
		}
		query := `INSERT INTO hold_seats (hold_id, seat_id, position) VALUES `
		args := make([]any, 0, len(h.SeatIDs)*3)
		for i, seatID := range h.SeatIDs {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?)"
			args = append(args, h.ID, seatID, i)
		}
		_, err := q.ExecContext(ctx, query, args...)
		return err
	})
}

// GetHold loads a hold with its seat ids or returns model.ErrHoldNotFound.
func (r *HoldRepo) GetHold(ctx context.Context, id string) (model.Hold, error) {
	return r.get(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = ?`, id)
}

// GetHoldForUpdate is GetHold with a row lock held until the surrounding
// transaction ends. Concurrent callers for the same hold queue up behind it.
func (r *HoldRepo) GetHoldForUpdate(ctx context.Context, id string) (model.Hold, error) {
	return r.get(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = ? FOR UPDATE`, id)
}

func (r *HoldRepo) get(ctx context.Context, query, id string) (model.Hold, error) {
	var h model.Hold
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).
		Scan(&h.ID, &h.TenantID, &h.SessionID, &h.Status, &h.CreatedAt, &h.ExpiresAt, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Hold{}, model.ErrHoldNotFound
	}
	if err != nil {
		return model.Hold{}, err
	}
	if h.SeatIDs, err = r.seatIDs(ctx, h.ID); err != nil {
		return model.Hold{}, err
	}
	return h, nil
}

func (r *HoldRepo) seatIDs(ctx context.Context, holdID string) ([]string, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT seat_id FROM hold_seats WHERE hold_id = ? ORDER BY position`, holdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TransitionHold performs a compare-and-set on the hold status.
func (r *HoldRepo) TransitionHold(ctx context.Context, id string, from, to model.HoldStatus, at time.Time) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE holds SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), at.UTC(), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListExpiredHolds returns up to limit ACTIVE holds whose lease ended at or
// before now, oldest first.
func (r *HoldRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
	return r.list(ctx,
		`SELECT `+holdColumns+` FROM holds WHERE status = 'ACTIVE' AND expires_at <= ? ORDER BY expires_at LIMIT ?`,
		now.UTC(), limit)
}

// ListActiveHoldsOfCancelledSessions returns up to limit ACTIVE holds whose
// session has been cancelled.
func (r *HoldRepo) ListActiveHoldsOfCancelledSessions(ctx context.Context, limit int) ([]model.Hold, error) {
	return r.list(ctx,
		`SELECT h.id, h.tenant_id, h.session_id, h.status, h.created_at, h.expires_at, h.updated_at
		 FROM holds h JOIN sessions s ON s.id = h.session_id
		 WHERE h.status = 'ACTIVE' AND s.status = 'CANCELLED' ORDER BY h.created_at LIMIT ?`,
		limit)
}

func (r *HoldRepo) list(ctx context.Context, query string, args ...any) ([]model.Hold, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var holds []model.Hold
	for rows.Next() {
		var h model.Hold
		if err := rows.Scan(&h.ID, &h.TenantID, &h.SessionID, &h.Status, &h.CreatedAt, &h.ExpiresAt, &h.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		holds = append(holds, h)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range holds {
		if holds[i].SeatIDs, err = r.seatIDs(ctx, holds[i].ID); err != nil {
			return nil, err
		}
	}
	return holds, nil
}
