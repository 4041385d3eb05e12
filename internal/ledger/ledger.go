// Package ledger implements the member loyalty program: accounts, points,
// levels, daily check-ins, invitations, redemptions and password resets.
//
// Every balance change goes through AddPoints inside a transaction, so the
// member's balance always equals the sum of their point records.
package ledger

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/maycafe/internal/apperr"
	"github.com/dukerupert/maycafe/internal/blob"
	"github.com/dukerupert/maycafe/internal/model"
	"github.com/dukerupert/maycafe/internal/store"
)

const (
	RegistrationPoints = 10
	InviterPoints      = 20
	InviteePoints      = 10
	MinPasswordLen     = 6
	ResetTokenTTL      = time.Hour
	pointRecordLimit   = 50
	mailTimeout        = 10 * time.Second
)

// Mailer delivers password reset links. *email.Client satisfies it.
type Mailer interface {
	Configured() bool
	SendPasswordReset(ctx context.Context, toEmail, username, token string) error
}

// Observer is told about completed ledger operations, for metrics.
type Observer interface {
	Registered(invited bool)
	CheckedIn(streak int)
	Redeemed(item string)
}

type nopObserver struct{}

func (nopObserver) Registered(bool) {}
func (nopObserver) CheckedIn(int) {}
func (nopObserver) Redeemed(string) {}

type Service struct {
	db          *sql.DB
	members     *store.MemberStore
	points      *store.PointStore
	checkIns    *store.CheckInStore
	invitations *store.InvitationStore
	redemptions *store.RedemptionStore
	resets      *store.PasswordResetStore
	sessions    *store.SessionStore
	blobs       blob.Store
	mailer      Mailer
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
	bcryptCost  int

	// afterStockDecrement runs inside the redemption transaction once stock
	// has been taken. Tests use it to inject failures.
	afterStockDecrement func(ctx context.Context) error
}

type Option func(*Service)

func WithMailer(m Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithClock replaces time.Now. Check-in days are taken in the clock's location.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func NewService(db *sql.DB, blobs blob.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		db:          db,
		members:     store.NewMemberStore(db),
		points:      store.NewPointStore(db),
		checkIns:    store.NewCheckInStore(db),
		invitations: store.NewInvitationStore(db),
		redemptions: store.NewRedemptionStore(db),
		resets:      store.NewPasswordResetStore(db),
		sessions:    store.NewSessionStore(db),
		blobs:       blobs,
		observer:    nopObserver{},
		logger:      logger,
		now:         time.Now,
		bcryptCost:  bcrypt.DefaultCost,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LevelFor maps a balance to a membership level. Each threshold is inclusive.
func LevelFor(balance int) string {
	switch {
	case balance >= 1000:
		return model.LevelDiamond
	case balance >= 500:
		return model.LevelGold
	case balance >= 200:
		return model.LevelSilver
	default:
		return model.LevelRegular
	}
}

// AddPoints changes a member's balance by delta, appends the matching point
// record and recomputes the level. It must run inside tx.
func (s *Service) AddPoints(ctx context.Context, tx *sql.Tx, memberID int64, delta int, reason string) (int, error) {
	members := s.members.WithTx(tx)

	balance, err := members.AdjustPoints(ctx, memberID, delta)
	if err != nil {
		return 0, apperr.Wrap(err, "adjust points")
	}
	if _, err := s.points.WithTx(tx).Append(ctx, memberID, delta, reason); err != nil {
		return 0, apperr.Wrap(err, "append point record")
	}
	if err := members.SetLevel(ctx, memberID, LevelFor(balance)); err != nil {
		return 0, apperr.Wrap(err, "set level")
	}
	return balance, nil
}

func (s *Service) Info(ctx context.Context, memberID int64) (*model.Member, error) {
	m, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, apperr.Wrap(err, "get member")
	}
	if m == nil {
		return nil, apperr.E(apperr.NotFound, "member not found")
	}
	return m, nil
}

// PointRecords returns the member's most recent ledger entries, newest first.
func (s *Service) PointRecords(ctx context.Context, memberID int64) ([]model.PointRecord, error) {
	records, err := s.points.ListByMember(ctx, memberID, pointRecordLimit)
	if err != nil {
		return nil, apperr.Wrap(err, "list point records")
	}
	if records == nil {
		records = []model.PointRecord{}
	}
	return records, nil
}

// UploadAvatar replaces the member's avatar image. The previous image is
// deleted unless it is the shared placeholder.
func (s *Service) UploadAvatar(ctx context.Context, memberID int64, up blob.Upload) (string, error) {
	if up.Filename == "" || up.Body == nil {
		return "", apperr.E(apperr.Validation, "no file uploaded")
	}
	if !blob.Allowed(up.Filename, blob.ImageExts) {
		return "", apperr.E(apperr.Validation, "avatar must be a png, jpg, jpeg or gif image")
	}
	m, err := s.Info(ctx, memberID)
	if err != nil {
		return "", err
	}

	p, err := s.blobs.Save(ctx, blob.GenerateName(s.now(), up.Filename), up.Body)
	if err != nil {
		return "", apperr.Wrap(err, "save avatar")
	}
	if err := s.members.UpdateAvatar(ctx, memberID, p); err != nil {
		s.deleteBlob(p)
		return "", apperr.Wrap(err, "update avatar")
	}

	if m.Avatar != "" && m.Avatar != model.DefaultAvatar {
		s.deleteBlob(m.Avatar)
	}
	return p, nil
}

func (s *Service) deleteBlob(p string) {
	if err := s.blobs.Delete(context.Background(), p); err != nil {
		s.logger.Warn("delete blob", "path", p, "error", err)
	}
}

func (s *Service) today() (today, yesterday string) {
	now := s.now()
	return now.Format(store.DateLayout), now.AddDate(0, 0, -1).Format(store.DateLayout)
}
