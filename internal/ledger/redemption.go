package ledger

import (
	"context"
	"database/sql"

	"github.com/dukerupert/maycafe/internal/apperr"
	"github.com/dukerupert/maycafe/internal/model"
	"github.com/dukerupert/maycafe/internal/store"
)

// ListRedemptionItems returns the active catalog, cheapest first.
func (s *Service) ListRedemptionItems(ctx context.Context) ([]model.RedemptionItem, error) {
	items, err := s.redemptions.ListActiveItems(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "list redemption items")
	}
	if items == nil {
		items = []model.RedemptionItem{}
	}
	return items, nil
}

// Redeem exchanges points for one unit of an item. Stock, balance, the point
// record and the redemption row change together or not at all.
func (s *Service) Redeem(ctx context.Context, memberID, itemID int64) (*model.Redemption, error) {
	var redemption *model.Redemption
	var itemName string

	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		redemptions := s.redemptions.WithTx(tx)

		item, err := redemptions.GetItem(ctx, itemID)
		if err != nil {
			return apperr.Wrap(err, "get redemption item")
		}
		if item == nil {
			return apperr.E(apperr.NotFound, "item not found")
		}
		if !item.Active {
			return apperr.E(apperr.Validation, "item is not available")
		}
		if item.Stock <= 0 {
			return apperr.E(apperr.Validation, "item is out of stock")
		}

		m, err := s.members.WithTx(tx).GetByID(ctx, memberID)
		if err != nil {
			return apperr.Wrap(err, "get member")
		}
		if m == nil {
			return apperr.E(apperr.NotFound, "member not found")
		}
		if m.Points < item.PointsRequired {
			return apperr.E(apperr.InsufficientFunds, "insufficient points: need %d, have %d", item.PointsRequired, m.Points)
		}

		ok, err := redemptions.DecrementStock(ctx, item.ID)
		if err != nil {
			return apperr.Wrap(err, "decrement stock")
		}
		if !ok {
			return apperr.E(apperr.Validation, "item is out of stock")
		}
		if s.afterStockDecrement != nil {
			if err := s.afterStockDecrement(ctx); err != nil {
				return apperr.Wrap(err, "redeem")
			}
		}

		if _, err := s.AddPoints(ctx, tx, memberID, -item.PointsRequired, "redeemed "+item.Name); err != nil {
			return err
		}

		redemption, err = redemptions.Create(ctx, memberID, item.ID, item.PointsRequired)
		if err != nil {
			return apperr.Wrap(err, "create redemption")
		}
		itemName = item.Name
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.observer.Redeemed(itemName)
	s.logger.Info("points redeemed", "member_id", memberID, "item", itemName, "points", redemption.PointsSpent)
	return redemption, nil
}

func (s *Service) MyRedemptions(ctx context.Context, memberID int64) ([]model.Redemption, error) {
	list, err := s.redemptions.ListByMember(ctx, memberID)
	if err != nil {
		return nil, apperr.Wrap(err, "list redemptions")
	}
	if list == nil {
		list = []model.Redemption{}
	}
	return list, nil
}

func (s *Service) ListAllRedemptions(ctx context.Context) ([]model.Redemption, error) {
	list, err := s.redemptions.ListAll(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "list redemptions")
	}
	if list == nil {
		list = []model.Redemption{}
	}
	return list, nil
}

// SetRedemptionStatus settles a pending redemption as claimed or cancelled.
// Settled redemptions cannot change again.
func (s *Service) SetRedemptionStatus(ctx context.Context, id int64, status string) (*model.Redemption, error) {
	if status != model.RedemptionClaimed && status != model.RedemptionCancelled {
		return nil, apperr.E(apperr.Validation, "status must be %q or %q", model.RedemptionClaimed, model.RedemptionCancelled)
	}

	r, err := s.redemptions.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "get redemption")
	}
	if r == nil {
		return nil, apperr.E(apperr.NotFound, "redemption not found")
	}

	ok, err := s.redemptions.TransitionStatus(ctx, id, model.RedemptionPending, status)
	if err != nil {
		return nil, apperr.Wrap(err, "update redemption")
	}
	if !ok {
		return nil, apperr.E(apperr.Validation, "redemption is already %s", r.Status)
	}
	r.Status = status
	return r, nil
}
