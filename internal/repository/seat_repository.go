package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/ticketing-core/internal/model"
)

// SeatRepo is the MySQL seat ledger. Each transition is a single
// conditional UPDATE whose WHERE clause encodes the required pre-state and
// ownership tag; the number of affected rows tells whether every seat in
// the set moved. When a set moves only partially the surrounding
// transaction is rolled back, so no seat is ever left half-reserved.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo returns a new SeatRepo bound to the provided database.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

const seatColumns = `id, session_id, sector_code, row_label, seat_number, status, hold_id, price_cents, version, updated_at`

// ListSeats returns every seat of a session ordered by sector, row and number.
func (r *SeatRepo) ListSeats(ctx context.Context, sessionID string) ([]model.Seat, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE session_id = ? ORDER BY sector_code, row_label, seat_number`,
		sessionID)
	if err != nil {
		return nil, err
	}
	return scanSeats(rows)
}

// GetSeats returns the seats among seatIDs that belong to sessionID. Ids of
// other sessions or unknown ids are silently absent from the result.
func (r *SeatRepo) GetSeats(ctx context.Context, sessionID string, seatIDs []string) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return []model.Seat{}, nil
	}
	args := append([]any{sessionID}, stringArgs(seatIDs)...)
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE session_id = ? AND id IN (`+placeholders(len(seatIDs))+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	return scanSeats(rows)
}

func scanSeats(rows *sql.Rows) ([]model.Seat, error) {
	defer rows.Close()
	seats := []model.Seat{}
	for rows.Next() {
		var (
			s      model.Seat
			holdID sql.NullString
			price  sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.SessionID, &s.SectorCode, &s.RowLabel, &s.SeatNumber,
			&s.Status, &holdID, &price, &s.Version, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.HoldID = holdID.String
		if price.Valid {
			p := price.Int64
			s.PriceCents = &p
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return seats, nil
}

// TryReserve marks every seat HELD by holdID if all of them are AVAILABLE.
// A concurrent transaction that already moved one of the seats makes the
// update match fewer rows, in which case nothing is kept.
func (r *SeatRepo) TryReserve(ctx context.Context, sessionID, holdID string, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	err := withTx(ctx, r.db, func(ctx context.Context) error {
		args := append([]any{holdID, sessionID}, stringArgs(seatIDs)...)
		res, err := conn(ctx, r.db).ExecContext(ctx,
			`UPDATE seats SET status = 'HELD', hold_id = ?, version = version + 1, updated_at = UTC_TIMESTAMP(6)
			 WHERE session_id = ? AND status = 'AVAILABLE' AND id IN (`+placeholders(len(seatIDs))+`)`,
			args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != int64(len(seatIDs)) {
			return model.ErrSeatUnavailable
		}
		return nil
	})
	if isLockConflict(err) {
		return model.ErrSeatUnavailable
	}
	return err
}

// Commit moves the seats HELD by holdID to SOLD. The ownership tag stays on
// the seat so that only the same hold can later revert it.
func (r *SeatRepo) Commit(ctx context.Context, holdID string, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	return withTx(ctx, r.db, func(ctx context.Context) error {
		n, err := r.transition(ctx, holdID, seatIDs, model.SeatHeld, model.SeatSold)
		if err != nil {
			return err
		}
		if n != int64(len(seatIDs)) {
			return fmt.Errorf("commit hold %s: %w", holdID, model.ErrInvalidHoldState)
		}
		return nil
	})
}

// Release returns the seats HELD by holdID to AVAILABLE and clears the tag.
func (r *SeatRepo) Release(ctx context.Context, holdID string, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	_, err := r.transition(ctx, holdID, seatIDs, model.SeatHeld, model.SeatAvailable)
	return err
}

// Revert returns the seats SOLD under holdID to AVAILABLE and clears the tag.
func (r *SeatRepo) Revert(ctx context.Context, holdID string, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	_, err := r.transition(ctx, holdID, seatIDs, model.SeatSold, model.SeatAvailable)
	return err
}

// transition runs the conditional update shared by Commit, Release and
// Revert and returns the number of seats that moved.
func (r *SeatRepo) transition(ctx context.Context, holdID string, seatIDs []string, from, to model.SeatStatus) (int64, error) {
	if !from.CanTransitionTo(to) {
		return 0, fmt.Errorf("seat transition %s -> %s not allowed", from, to)
	}
	tag := "hold_id"
	if to == model.SeatAvailable {
		tag = "NULL"
	}
	args := append([]any{string(to), holdID, string(from)}, stringArgs(seatIDs)...)
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE seats SET status = ?, hold_id = `+tag+`, version = version + 1, updated_at = UTC_TIMESTAMP(6)
		 WHERE hold_id = ? AND status = ? AND id IN (`+placeholders(len(seatIDs))+`)`,
		args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
