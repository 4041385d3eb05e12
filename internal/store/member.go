package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/maycafe/internal/model"
)

type MemberStore struct {
	db DBTX
}

func NewMemberStore(db DBTX) *MemberStore {
	return &MemberStore{db: db}
}

func (s *MemberStore) WithTx(tx *sql.Tx) *MemberStore {
	return &MemberStore{db: tx}
}

func scanMember(sc scanner) (*model.Member, error) {
	var m model.Member
	var lastLogin sql.NullTime

	err := sc.Scan(&m.ID, &m.Username, &m.Email, &m.PasswordHash, &m.Phone, &m.Points, &m.Level, &m.Avatar, &m.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		m.LastLogin = &lastLogin.Time
	}
	return &m, nil
}

const memberCols = `id, username, email, password_hash, phone, points, level, avatar, created_at, last_login`

// Create inserts a member with the given opening balance. A duplicate username
// or email surfaces as a unique violation; see IsUniqueViolation.
func (s *MemberStore) Create(ctx context.Context, username, email, passwordHash, phone string, points int, level string) (*model.Member, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO members (username, email, password_hash, phone, points, level, avatar) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		username, email, passwordHash, phone, points, level, model.DefaultAvatar,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *MemberStore) GetByID(ctx context.Context, id int64) (*model.Member, error) {
	return s.getOne(ctx, `SELECT `+memberCols+` FROM members WHERE id = ?`, id)
}

func (s *MemberStore) GetByUsername(ctx context.Context, username string) (*model.Member, error) {
	return s.getOne(ctx, `SELECT `+memberCols+` FROM members WHERE username = ?`, username)
}

func (s *MemberStore) GetByEmail(ctx context.Context, email string) (*model.Member, error) {
	return s.getOne(ctx, `SELECT `+memberCols+` FROM members WHERE email = ?`, email)
}

func (s *MemberStore) getOne(ctx context.Context, query string, arg any) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// Taken reports whether the username or the email is already registered.
func (s *MemberStore) Taken(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT
			EXISTS(SELECT 1 FROM members WHERE username = ?),
			EXISTS(SELECT 1 FROM members WHERE email = ?)`,
		username, email,
	).Scan(&usernameTaken, &emailTaken)
	if err != nil {
		return false, false, fmt.Errorf("check member uniqueness: %w", err)
	}
	return usernameTaken, emailTaken, nil
}

// AdjustPoints adds delta to the balance and returns the new balance.
func (s *MemberStore) AdjustPoints(ctx context.Context, id int64, delta int) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx,
		`UPDATE members SET points = points + ? WHERE id = ? RETURNING points`,
		delta, id,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("adjust points: member %d not found", id)
	}
	if err != nil {
		return 0, fmt.Errorf("adjust points: %w", err)
	}
	return balance, nil
}

func (s *MemberStore) SetLevel(ctx context.Context, id int64, level string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE members SET level = ? WHERE id = ?`, level, id)
	if err != nil {
		return fmt.Errorf("set level: %w", err)
	}
	return nil
}

func (s *MemberStore) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE members SET last_login = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func (s *MemberStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE members SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *MemberStore) UpdateAvatar(ctx context.Context, id int64, avatar string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE members SET avatar = ? WHERE id = ?`, avatar, id)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return nil
}
