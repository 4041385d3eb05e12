package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/maycafe/internal/model"
)

type InvitationStore struct {
	db DBTX
}

func NewInvitationStore(db DBTX) *InvitationStore {
	return &InvitationStore{db: db}
}

func (s *InvitationStore) WithTx(tx *sql.Tx) *InvitationStore {
	return &InvitationStore{db: tx}
}

const invitationCols = `i.id, i.inviter_id, i.invitee_id, m.username, i.code, i.status, i.points_awarded, i.created_at, i.used_at`

const invitationFrom = ` FROM invitations i LEFT JOIN members m ON m.id = i.invitee_id`

func scanInvitation(sc scanner) (*model.Invitation, error) {
	var inv model.Invitation
	var inviteeID sql.NullInt64
	var inviteeName sql.NullString
	var usedAt sql.NullTime

	err := sc.Scan(&inv.ID, &inv.InviterID, &inviteeID, &inviteeName, &inv.Code, &inv.Status, &inv.PointsAwarded, &inv.CreatedAt, &usedAt)
	if err != nil {
		return nil, err
	}
	if inviteeID.Valid {
		inv.InviteeID = &inviteeID.Int64
	}
	inv.InviteeUsername = stringPtr(inviteeName)
	if usedAt.Valid {
		inv.UsedAt = &usedAt.Time
	}
	return &inv, nil
}

func (s *InvitationStore) Create(ctx context.Context, inviterID int64, code string) (*model.Invitation, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO invitations (inviter_id, code, status, points_awarded) VALUES (?, ?, ?, 0)`,
		inviterID, code, model.InvitationUnused,
	)
	if err != nil {
		return nil, fmt.Errorf("insert invitation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+invitationCols+invitationFrom+` WHERE i.id = ?`, id)
	return scanInvitation(row)
}

func (s *InvitationStore) GetByCode(ctx context.Context, code string) (*model.Invitation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invitationCols+invitationFrom+` WHERE i.code = ?`, code)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (s *InvitationStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM invitations WHERE code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check invitation code: %w", err)
	}
	return exists, nil
}

// MarkUsed flips an unused invitation to used. It reports false when the
// invitation was already used, so two registrations cannot share one code.
func (s *InvitationStore) MarkUsed(ctx context.Context, id, inviteeID int64, pointsAwarded int, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invitations SET status = ?, invitee_id = ?, points_awarded = ?, used_at = ?
		 WHERE id = ? AND status = ?`,
		model.InvitationUsed, inviteeID, pointsAwarded, at.UTC(), id, model.InvitationUnused,
	)
	if err != nil {
		return false, fmt.Errorf("mark invitation used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ListByInviter returns the inviter's codes, newest first.
func (s *InvitationStore) ListByInviter(ctx context.Context, inviterID int64) ([]model.Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+invitationCols+invitationFrom+` WHERE i.inviter_id = ? ORDER BY i.created_at DESC, i.id DESC`,
		inviterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	return invitations, rows.Err()
}
