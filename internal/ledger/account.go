package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/maycafe/internal/apperr"
	"github.com/dukerupert/maycafe/internal/model"
	"github.com/dukerupert/maycafe/internal/store"
)

type RegisterInput struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Phone          string `json:"phone"`
	InvitationCode string `json:"invitation_code"`
}

// Register creates a member with the registration bonus. A valid invitation
// code also rewards the inviter and gives the new member an extra bonus; the
// whole registration commits or fails as one.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.Member, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.InvitationCode = strings.ToUpper(strings.TrimSpace(in.InvitationCode))

	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, apperr.E(apperr.Validation, "username, email and password are required")
	}
	if len(in.Password) < MinPasswordLen {
		return nil, apperr.E(apperr.Validation, "password must be at least %d characters", MinPasswordLen)
	}

	userTaken, emailTaken, err := s.members.Taken(ctx, in.Username, in.Email)
	if err != nil {
		return nil, apperr.Wrap(err, "check member")
	}
	if userTaken {
		return nil, apperr.E(apperr.Conflict, "username already exists")
	}
	if emailTaken {
		return nil, apperr.E(apperr.Conflict, "email already registered")
	}

	var inv *model.Invitation
	if in.InvitationCode != "" {
		inv, err = s.invitations.GetByCode(ctx, in.InvitationCode)
		if err != nil {
			return nil, apperr.Wrap(err, "get invitation")
		}
		if inv == nil || inv.Status != model.InvitationUnused {
			return nil, apperr.E(apperr.Validation, "invalid invitation code")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, apperr.Wrap(err, "hash password")
	}

	var member *model.Member
	err = store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		members := s.members.WithTx(tx)

		m, err := members.Create(ctx, in.Username, in.Email, string(hash), in.Phone, 0, model.LevelRegular)
		if store.IsUniqueViolation(err) {
			return apperr.E(apperr.Conflict, "username or email already registered")
		}
		if err != nil {
			return apperr.Wrap(err, "create member")
		}
		if _, err := s.AddPoints(ctx, tx, m.ID, RegistrationPoints, "registration bonus"); err != nil {
			return err
		}

		if inv != nil {
			ok, err := s.invitations.WithTx(tx).MarkUsed(ctx, inv.ID, m.ID, InviterPoints, s.now())
			if err != nil {
				return apperr.Wrap(err, "use invitation")
			}
			if !ok {
				return apperr.E(apperr.Validation, "invalid invitation code")
			}
			if _, err := s.AddPoints(ctx, tx, inv.InviterID, InviterPoints, fmt.Sprintf("invited %s", m.Username)); err != nil {
				return err
			}
			if _, err := s.AddPoints(ctx, tx, m.ID, InviteePoints, "invitation bonus"); err != nil {
				return err
			}
		}

		member, err = members.GetByID(ctx, m.ID)
		if err != nil {
			return apperr.Wrap(err, "get member")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.observer.Registered(inv != nil)
	s.logger.Info("member registered", "member_id", member.ID, "invited", inv != nil)
	return member, nil
}

// Login checks credentials and opens a new session for the member.
func (s *Service) Login(ctx context.Context, username, password string) (*model.Member, *model.Session, error) {
	m, err := s.members.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, nil, apperr.Wrap(err, "get member")
	}
	if m == nil {
		return nil, nil, apperr.E(apperr.Auth, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, nil, apperr.E(apperr.Auth, "invalid credentials")
		}
		return nil, nil, apperr.Wrap(err, "compare password")
	}

	at := s.now()
	if err := s.members.TouchLastLogin(ctx, m.ID, at); err != nil {
		return nil, nil, apperr.Wrap(err, "update last login")
	}
	m.LastLogin = &at

	sess, err := s.sessions.Create(ctx, m.ID)
	if err != nil {
		return nil, nil, apperr.Wrap(err, "create session")
	}
	return m, sess, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.DeleteByToken(ctx, token); err != nil {
		return apperr.Wrap(err, "delete session")
	}
	return nil
}

// RequestPasswordReset issues a one-hour reset token when the email belongs to
// a member. It reports success either way so callers cannot probe for
// registered addresses.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	m, err := s.members.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return apperr.Wrap(err, "get member")
	}
	if m == nil {
		return nil
	}

	token, err := store.NewToken()
	if err != nil {
		return apperr.Wrap(err, "generate reset token")
	}
	err = store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		resets := s.resets.WithTx(tx)
		if err := resets.InvalidateForMember(ctx, m.ID); err != nil {
			return apperr.Wrap(err, "invalidate reset tokens")
		}
		if _, err := resets.Create(ctx, m.ID, token, s.now().Add(ResetTokenTTL)); err != nil {
			return apperr.Wrap(err, "create reset token")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("password reset requested", "member_id", m.ID)
	if s.mailer != nil && s.mailer.Configured() {
		go s.sendResetMail(m.Email, m.Username, token)
	}
	return nil
}

func (s *Service) sendResetMail(to, username, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
	defer cancel()
	if err := s.mailer.SendPasswordReset(ctx, to, username, token); err != nil {
		s.logger.Warn("send password reset mail", "error", err)
	}
}

// ResetPassword sets a new password using a reset token. A token works once;
// every open session of the member is ended.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < MinPasswordLen {
		return apperr.E(apperr.Validation, "password must be at least %d characters", MinPasswordLen)
	}

	t, err := s.resets.GetByToken(ctx, token)
	if err != nil {
		return apperr.Wrap(err, "get reset token")
	}
	if t == nil || t.Used {
		return apperr.E(apperr.Auth, "invalid or already used reset token")
	}
	if s.now().After(t.ExpiresAt) {
		return apperr.E(apperr.Expired, "reset token has expired")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return apperr.Wrap(err, "hash password")
	}

	return store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		ok, err := s.resets.WithTx(tx).Consume(ctx, t.ID)
		if err != nil {
			return apperr.Wrap(err, "consume reset token")
		}
		if !ok {
			return apperr.E(apperr.Auth, "invalid or already used reset token")
		}
		if err := s.members.WithTx(tx).UpdatePassword(ctx, t.MemberID, string(hash)); err != nil {
			return apperr.Wrap(err, "update password")
		}
		if err := s.sessions.WithTx(tx).DeleteByMemberID(ctx, t.MemberID); err != nil {
			return apperr.Wrap(err, "end sessions")
		}
		return nil
	})
}
