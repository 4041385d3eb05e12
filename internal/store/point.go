package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/maycafe/internal/model"
)

// PointStore is the append-only points ledger. It has no update or delete.
type PointStore struct {
	db DBTX
}

func NewPointStore(db DBTX) *PointStore {
	return &PointStore{db: db}
}

func (s *PointStore) WithTx(tx *sql.Tx) *PointStore {
	return &PointStore{db: tx}
}

const pointRecordCols = `id, member_id, points, reason, created_at`

func scanPointRecord(sc scanner) (*model.PointRecord, error) {
	var r model.PointRecord
	if err := sc.Scan(&r.ID, &r.MemberID, &r.Points, &r.Reason, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PointStore) Append(ctx context.Context, memberID int64, points int, reason string) (*model.PointRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO point_records (member_id, points, reason) VALUES (?, ?, ?) RETURNING `+pointRecordCols,
		memberID, points, reason,
	)
	r, err := scanPointRecord(row)
	if err != nil {
		return nil, fmt.Errorf("insert point record: %w", err)
	}
	return r, nil
}

// ListByMember returns the newest records first. A limit <= 0 returns all of them.
func (s *PointStore) ListByMember(ctx context.Context, memberID int64, limit int) ([]model.PointRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pointRecordCols+` FROM point_records WHERE member_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		memberID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list point records: %w", err)
	}
	defer rows.Close()

	var records []model.PointRecord
	for rows.Next() {
		r, err := scanPointRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan point record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// Sum returns the total of all ledger entries for a member.
func (s *PointStore) Sum(ctx context.Context, memberID int64) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM point_records WHERE member_id = ?`,
		memberID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum point records: %w", err)
	}
	return total, nil
}
