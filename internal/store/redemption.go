package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/maycafe/internal/model"
)

type RedemptionStore struct {
	db DBTX
}

func NewRedemptionStore(db DBTX) *RedemptionStore {
	return &RedemptionStore{db: db}
}

func (s *RedemptionStore) WithTx(tx *sql.Tx) *RedemptionStore {
	return &RedemptionStore{db: tx}
}

// --- Item methods ---

func scanItem(sc scanner) (*model.RedemptionItem, error) {
	var it model.RedemptionItem
	var active int

	err := sc.Scan(&it.ID, &it.Name, &it.PointsRequired, &it.Description, &it.Image, &it.Stock, &active, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	it.Active = active != 0
	return &it, nil
}

const itemCols = `id, name, points_required, description, image, stock, active, created_at`

func (s *RedemptionStore) CreateItem(ctx context.Context, it model.RedemptionItem) (*model.RedemptionItem, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO redemption_items (name, points_required, description, image, stock, active) VALUES (?, ?, ?, ?, ?, ?)`,
		it.Name, it.PointsRequired, it.Description, it.Image, it.Stock, boolToInt(it.Active),
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetItem(ctx, id)
}

func (s *RedemptionStore) GetItem(ctx context.Context, id int64) (*model.RedemptionItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemCols+` FROM redemption_items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption item: %w", err)
	}
	return it, nil
}

func (s *RedemptionStore) GetItemByName(ctx context.Context, name string) (*model.RedemptionItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemCols+` FROM redemption_items WHERE name = ? ORDER BY id DESC LIMIT 1`, name)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption item by name: %w", err)
	}
	return it, nil
}

// ListActiveItems returns active items, cheapest first.
func (s *RedemptionStore) ListActiveItems(ctx context.Context) ([]model.RedemptionItem, error) {
	return s.listItems(ctx, `SELECT `+itemCols+` FROM redemption_items WHERE active = 1 ORDER BY points_required ASC, id ASC`)
}

func (s *RedemptionStore) ListItems(ctx context.Context) ([]model.RedemptionItem, error) {
	return s.listItems(ctx, `SELECT `+itemCols+` FROM redemption_items ORDER BY active DESC, points_required ASC, id ASC`)
}

func (s *RedemptionStore) listItems(ctx context.Context, query string) ([]model.RedemptionItem, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list redemption items: %w", err)
	}
	defer rows.Close()

	var items []model.RedemptionItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *RedemptionStore) UpdateItem(ctx context.Context, id int64, pointsRequired int, description, image string, stock int, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE redemption_items SET points_required = ?, description = ?, image = ?, stock = ?, active = ? WHERE id = ?`,
		pointsRequired, description, image, stock, boolToInt(active), id,
	)
	if err != nil {
		return fmt.Errorf("update redemption item: %w", err)
	}
	return nil
}

// DeactivateAllItems hides the whole catalog. Items stay in place because
// past redemptions reference them.
func (s *RedemptionStore) DeactivateAllItems(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE redemption_items SET active = 0 WHERE active = 1`)
	if err != nil {
		return 0, fmt.Errorf("deactivate redemption items: %w", err)
	}
	return result.RowsAffected()
}

// DecrementStock takes one unit of stock. It reports false when the item is
// out of stock or inactive.
func (s *RedemptionStore) DecrementStock(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE redemption_items SET stock = stock - 1 WHERE id = ? AND stock > 0 AND active = 1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// --- Redemption methods ---

func scanRedemption(sc scanner) (*model.Redemption, error) {
	var r model.Redemption
	err := sc.Scan(&r.ID, &r.MemberID, &r.ItemID, &r.ItemName, &r.PointsSpent, &r.Status, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const redemptionCols = `r.id, r.member_id, r.item_id, it.name, r.points_spent, r.status, r.created_at`

const redemptionFrom = ` FROM redemptions r JOIN redemption_items it ON it.id = r.item_id`

func (s *RedemptionStore) Create(ctx context.Context, memberID, itemID int64, pointsSpent int) (*model.Redemption, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO redemptions (member_id, item_id, points_spent, status) VALUES (?, ?, ?, ?)`,
		memberID, itemID, pointsSpent, model.RedemptionPending,
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RedemptionStore) GetByID(ctx context.Context, id int64) (*model.Redemption, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+redemptionCols+redemptionFrom+` WHERE r.id = ?`, id)
	r, err := scanRedemption(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	return r, nil
}

func (s *RedemptionStore) ListByMember(ctx context.Context, memberID int64) ([]model.Redemption, error) {
	return s.listRedemptions(ctx,
		`SELECT `+redemptionCols+redemptionFrom+` WHERE r.member_id = ? ORDER BY r.created_at DESC, r.id DESC`,
		memberID,
	)
}

func (s *RedemptionStore) ListAll(ctx context.Context) ([]model.Redemption, error) {
	return s.listRedemptions(ctx, `SELECT `+redemptionCols+redemptionFrom+` ORDER BY r.created_at DESC, r.id DESC`)
}

func (s *RedemptionStore) listRedemptions(ctx context.Context, query string, args ...any) ([]model.Redemption, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []model.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}

// TransitionStatus moves a redemption out of `from`. It reports false when the
// redemption is no longer in that state.
func (s *RedemptionStore) TransitionStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE redemptions SET status = ? WHERE id = ? AND status = ?`,
		to, id, from,
	)
	if err != nil {
		return false, fmt.Errorf("update redemption status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
