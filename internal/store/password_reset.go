package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/maycafe/internal/model"
)

type PasswordResetStore struct {
	db DBTX
}

func NewPasswordResetStore(db DBTX) *PasswordResetStore {
	return &PasswordResetStore{db: db}
}

func (s *PasswordResetStore) WithTx(tx *sql.Tx) *PasswordResetStore {
	return &PasswordResetStore{db: tx}
}

const resetTokenCols = `id, member_id, token, expires_at, used, created_at`

func scanResetToken(sc scanner) (*model.PasswordResetToken, error) {
	var t model.PasswordResetToken
	var used int
	if err := sc.Scan(&t.ID, &t.MemberID, &t.Token, &t.ExpiresAt, &used, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Used = used != 0
	return &t, nil
}

// InvalidateForMember marks every outstanding token of the member as used.
func (s *PasswordResetStore) InvalidateForMember(ctx context.Context, memberID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used = 1 WHERE member_id = ? AND used = 0`,
		memberID,
	)
	if err != nil {
		return fmt.Errorf("invalidate reset tokens: %w", err)
	}
	return nil
}

func (s *PasswordResetStore) Create(ctx context.Context, memberID int64, token string, expiresAt time.Time) (*model.PasswordResetToken, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO password_reset_tokens (member_id, token, expires_at) VALUES (?, ?, ?) RETURNING `+resetTokenCols,
		memberID, token, expiresAt.UTC(),
	)
	t, err := scanResetToken(row)
	if err != nil {
		return nil, fmt.Errorf("insert reset token: %w", err)
	}
	return t, nil
}

func (s *PasswordResetStore) GetByToken(ctx context.Context, token string) (*model.PasswordResetToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resetTokenCols+` FROM password_reset_tokens WHERE token = ?`, token)
	t, err := scanResetToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reset token: %w", err)
	}
	return t, nil
}

// Consume marks the token used. Only the first caller gets true.
func (s *PasswordResetStore) Consume(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE password_reset_tokens SET used = 1 WHERE id = ? AND used = 0`, id)
	if err != nil {
		return false, fmt.Errorf("consume reset token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *PasswordResetStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired reset tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
