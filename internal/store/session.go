package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dukerupert/maycafe/internal/model"
)

const (
	MemberSessionTTL = 30 * 24 * time.Hour
	AdminSessionTTL  = 12 * time.Hour
)

// NewToken returns 32 crypto-random bytes, hex encoded.
func NewToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(tokenBytes), nil
}

type SessionStore struct {
	db DBTX
}

func NewSessionStore(db DBTX) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) WithTx(tx *sql.Tx) *SessionStore {
	return &SessionStore{db: tx}
}

func scanSession(sc scanner) (*model.Session, error) {
	var sess model.Session
	if err := sc.Scan(&sess.ID, &sess.Token, &sess.MemberID, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		return nil, err
	}
	return &sess, nil
}

const sessionCols = `id, token, member_id, expires_at, created_at`

// Create generates a new member session with a crypto-random token.
func (s *SessionStore) Create(ctx context.Context, memberID int64) (*model.Session, error) {
	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(MemberSessionTTL)

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO sessions (token, member_id, expires_at) VALUES (?, ?, ?) RETURNING `+sessionCols,
		token, memberID, expiresAt,
	)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// GetByToken returns the session for the given token, or nil if expired or not found.
func (s *SessionStore) GetByToken(ctx context.Context, token string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE token = ?`, token)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by token: %w", err)
	}
	if !sess.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return sess, nil
}

func (s *SessionStore) DeleteByToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteByMemberID(ctx context.Context, memberID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE member_id = ?`, memberID)
	if err != nil {
		return fmt.Errorf("delete sessions by member: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

// --- Admin sessions ---

type AdminSessionStore struct {
	db DBTX
}

func NewAdminSessionStore(db DBTX) *AdminSessionStore {
	return &AdminSessionStore{db: db}
}

const adminSessionCols = `id, token, expires_at, created_at`

func (s *AdminSessionStore) Create(ctx context.Context) (*model.AdminSession, error) {
	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(AdminSessionTTL)

	var sess model.AdminSession
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO admin_sessions (token, expires_at) VALUES (?, ?) RETURNING `+adminSessionCols,
		token, expiresAt,
	).Scan(&sess.ID, &sess.Token, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert admin session: %w", err)
	}
	return &sess, nil
}

func (s *AdminSessionStore) GetByToken(ctx context.Context, token string) (*model.AdminSession, error) {
	var sess model.AdminSession
	err := s.db.QueryRowContext(ctx,
		`SELECT `+adminSessionCols+` FROM admin_sessions WHERE token = ?`,
		token,
	).Scan(&sess.ID, &sess.Token, &sess.ExpiresAt, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get admin session: %w", err)
	}
	if !sess.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &sess, nil
}

func (s *AdminSessionStore) DeleteByToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete admin session: %w", err)
	}
	return nil
}

func (s *AdminSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired admin sessions: %w", err)
	}
	return result.RowsAffected()
}
