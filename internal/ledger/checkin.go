package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/maycafe/internal/apperr"
	"github.com/dukerupert/maycafe/internal/model"
	"github.com/dukerupert/maycafe/internal/store"
)

const statusWindowDays = 7

// CheckInReward is the number of points a check-in earns at the given streak.
func CheckInReward(streak int) int {
	switch {
	case streak >= 30:
		return 10
	case streak >= 7:
		return 5
	default:
		return 2
	}
}

// CheckIn records today's visit. A check-in yesterday extends the streak;
// any gap starts it again at one.
func (s *Service) CheckIn(ctx context.Context, memberID int64) (*model.CheckIn, error) {
	today, yesterday := s.today()

	var created *model.CheckIn
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		checkIns := s.checkIns.WithTx(tx)

		existing, err := checkIns.GetByDate(ctx, memberID, today)
		if err != nil {
			return apperr.Wrap(err, "get check-in")
		}
		if existing != nil {
			return apperr.E(apperr.Conflict, "already checked in today")
		}

		prev, err := checkIns.GetByDate(ctx, memberID, yesterday)
		if err != nil {
			return apperr.Wrap(err, "get check-in")
		}
		streak := 1
		if prev != nil {
			streak = prev.ContinuousDays + 1
		}
		reward := CheckInReward(streak)

		created, err = checkIns.Create(ctx, memberID, today, reward, streak)
		if store.IsUniqueViolation(err) {
			return apperr.E(apperr.Conflict, "already checked in today")
		}
		if err != nil {
			return apperr.Wrap(err, "create check-in")
		}

		_, err = s.AddPoints(ctx, tx, memberID, reward, fmt.Sprintf("daily check-in (streak %d)", streak))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.observer.CheckedIn(created.ContinuousDays)
	return created, nil
}

// CheckInStatus reports whether the member checked in today, the streak that
// is still alive, and the check-ins of the last seven days.
func (s *Service) CheckInStatus(ctx context.Context, memberID int64) (*model.CheckInStatus, error) {
	today, yesterday := s.today()
	since := s.now().AddDate(0, 0, -(statusWindowDays - 1)).Format(store.DateLayout)

	recent, err := s.checkIns.ListSince(ctx, memberID, since)
	if err != nil {
		return nil, apperr.Wrap(err, "list check-ins")
	}

	status := &model.CheckInStatus{Recent: []model.CheckIn{}}
	for _, c := range recent {
		if c.Date > today {
			continue
		}
		status.Recent = append(status.Recent, c)
		switch c.Date {
		case today:
			status.CheckedInToday = true
			status.ContinuousDays = c.ContinuousDays
		case yesterday:
			if !status.CheckedInToday {
				status.ContinuousDays = c.ContinuousDays
			}
		}
	}
	return status, nil
}
