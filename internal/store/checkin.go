package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/maycafe/internal/model"
)

// DateLayout is the calendar-date format stored in check_ins.check_in_date.
const DateLayout = "2006-01-02"

type CheckInStore struct {
	db DBTX
}

func NewCheckInStore(db DBTX) *CheckInStore {
	return &CheckInStore{db: db}
}

func (s *CheckInStore) WithTx(tx *sql.Tx) *CheckInStore {
	return &CheckInStore{db: tx}
}

const checkInCols = `id, member_id, check_in_date, points_earned, continuous_days, created_at`

func scanCheckIn(sc scanner) (*model.CheckIn, error) {
	var c model.CheckIn
	if err := sc.Scan(&c.ID, &c.MemberID, &c.Date, &c.PointsEarned, &c.ContinuousDays, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create records a check-in. The (member_id, check_in_date) unique key
// rejects a second row for the same day.
func (s *CheckInStore) Create(ctx context.Context, memberID int64, date string, points, continuousDays int) (*model.CheckIn, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO check_ins (member_id, check_in_date, points_earned, continuous_days) VALUES (?, ?, ?, ?) RETURNING `+checkInCols,
		memberID, date, points, continuousDays,
	)
	c, err := scanCheckIn(row)
	if err != nil {
		return nil, fmt.Errorf("insert check-in: %w", err)
	}
	return c, nil
}

func (s *CheckInStore) GetByDate(ctx context.Context, memberID int64, date string) (*model.CheckIn, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+checkInCols+` FROM check_ins WHERE member_id = ? AND check_in_date = ?`,
		memberID, date,
	)
	c, err := scanCheckIn(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get check-in: %w", err)
	}
	return c, nil
}

// ListSince returns check-ins on or after the given date, newest first.
func (s *CheckInStore) ListSince(ctx context.Context, memberID int64, since string) ([]model.CheckIn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+checkInCols+` FROM check_ins WHERE member_id = ? AND check_in_date >= ? ORDER BY check_in_date DESC`,
		memberID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	defer rows.Close()

	var checkIns []model.CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		checkIns = append(checkIns, *c)
	}
	return checkIns, rows.Err()
}
