package ledger

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/maycafe/internal/apperr"
	"github.com/dukerupert/maycafe/internal/blob"
	"github.com/dukerupert/maycafe/internal/database"
	"github.com/dukerupert/maycafe/internal/model"
	"github.com/dukerupert/maycafe/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	svc   *Service
	db    *sql.DB
	clock *fakeClock
	root  string
}

func setupService(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	root := t.TempDir()
	opts = append([]Option{WithClock(clock.Now), WithBcryptCost(bcrypt.MinCost)}, opts...)
	svc := NewService(db, blob.NewLocalStore(root), slog.Default(), opts...)
	return &testEnv{svc: svc, db: db, clock: clock, root: root}
}

func register(t *testing.T, svc *Service, username, code string) *model.Member {
	t.Helper()
	m, err := svc.Register(context.Background(), RegisterInput{
		Username:       username,
		Email:          username + "@example.com",
		Password:       "secret1",
		InvitationCode: code,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return m
}

func grant(t *testing.T, env *testEnv, memberID int64, delta int) {
	t.Helper()
	err := store.InTx(context.Background(), env.db, func(tx *sql.Tx) error {
		_, err := env.svc.AddPoints(context.Background(), tx, memberID, delta, "test grant")
		return err
	})
	if err != nil {
		t.Fatalf("grant points: %v", err)
	}
}

// assertBalanced checks that the stored balance equals the sum of the
// member's point records.
func assertBalanced(t *testing.T, env *testEnv, memberID int64) int {
	t.Helper()
	m, err := env.svc.Info(context.Background(), memberID)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	sum, err := store.NewPointStore(env.db).Sum(context.Background(), memberID)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != m.Points {
		t.Errorf("balance %d != ledger sum %d", m.Points, sum)
	}
	return m.Points
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		balance int
		want    string
	}{
		{-5, model.LevelRegular},
		{0, model.LevelRegular},
		{199, model.LevelRegular},
		{200, model.LevelSilver},
		{499, model.LevelSilver},
		{500, model.LevelGold},
		{999, model.LevelGold},
		{1000, model.LevelDiamond},
		{5000, model.LevelDiamond},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.balance); got != tt.want {
			t.Errorf("LevelFor(%d) = %q, want %q", tt.balance, got, tt.want)
		}
	}
}

func TestAddPointsRecomputesLevel(t *testing.T) {
	env := setupService(t)
	m := register(t, env.svc, "alice", "")

	grant(t, env, m.ID, 990)
	got, _ := env.svc.Info(context.Background(), m.ID)
	if got.Points != 1000 || got.Level != model.LevelDiamond {
		t.Fatalf("after +990: %d %s", got.Points, got.Level)
	}

	grant(t, env, m.ID, -600)
	got, _ = env.svc.Info(context.Background(), m.ID)
	if got.Points != 400 || got.Level != model.LevelSilver {
		t.Errorf("after -600: %d %s, want 400 silver", got.Points, got.Level)
	}
	assertBalanced(t, env, m.ID)
}

func TestRegister(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m := register(t, env.svc, "alice", "")

	if m.Points != RegistrationPoints || m.Level != model.LevelRegular || m.Avatar != model.DefaultAvatar {
		t.Errorf("member = %+v", m)
	}
	if m.PasswordHash == "secret1" {
		t.Error("password stored in plain text")
	}
	records, _ := env.svc.PointRecords(ctx, m.ID)
	if len(records) != 1 || records[0].Points != 10 || records[0].Reason != "registration bonus" {
		t.Errorf("records = %+v", records)
	}

	tests := []struct {
		name string
		in   RegisterInput
		kind apperr.Kind
	}{
		{"duplicate username", RegisterInput{Username: "alice", Email: "other@example.com", Password: "secret1"}, apperr.Conflict},
		{"duplicate email", RegisterInput{Username: "bob", Email: "alice@example.com", Password: "secret1"}, apperr.Conflict},
		{"short password", RegisterInput{Username: "bob", Email: "bob@example.com", Password: "12345"}, apperr.Validation},
		{"missing username", RegisterInput{Username: " ", Email: "bob@example.com", Password: "secret1"}, apperr.Validation},
		{"unknown invitation", RegisterInput{Username: "bob", Email: "bob@example.com", Password: "secret1", InvitationCode: "NOPE0000"}, apperr.Validation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Register(ctx, tt.in)
			if !apperr.Is(err, tt.kind) {
				t.Errorf("err = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestRegisterWithInvitation(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	inviter := register(t, env.svc, "alice", "")

	inv, err := env.svc.GenerateInvitationCode(ctx, inviter.ID)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}

	bob := register(t, env.svc, "bob", strings.ToLower(inv.Code))
	if bob.Points != 20 {
		t.Errorf("registrant points = %d, want 20", bob.Points)
	}
	bobRecords, _ := env.svc.PointRecords(ctx, bob.ID)
	if len(bobRecords) != 2 {
		t.Errorf("registrant records = %d, want 2", len(bobRecords))
	}

	alice, _ := env.svc.Info(ctx, inviter.ID)
	if alice.Points != 30 {
		t.Errorf("inviter points = %d, want 30", alice.Points)
	}
	aliceRecords, _ := env.svc.PointRecords(ctx, inviter.ID)
	if len(aliceRecords) != 2 || aliceRecords[0].Points != 20 || aliceRecords[0].Reason != "invited bob" {
		t.Errorf("inviter records = %+v", aliceRecords)
	}

	list, stats, err := env.svc.MyInvitations(ctx, inviter.ID)
	if err != nil {
		t.Fatalf("my invitations: %v", err)
	}
	if len(list) != 1 || list[0].Status != model.InvitationUsed || list[0].InviteeID == nil || *list[0].InviteeID != bob.ID {
		t.Errorf("invitations = %+v", list)
	}
	if stats != (model.InvitationStats{Total: 1, Used: 1, PointsEarned: 20}) {
		t.Errorf("stats = %+v", stats)
	}

	_, err = env.svc.Register(ctx, RegisterInput{Username: "carol", Email: "carol@example.com", Password: "secret1", InvitationCode: inv.Code})
	if !apperr.Is(err, apperr.Validation) {
		t.Errorf("reused code err = %v, want validation", err)
	}
	if m, _ := store.NewMemberStore(env.db).GetByUsername(ctx, "carol"); m != nil {
		t.Error("failed registration left a member behind")
	}
	assertBalanced(t, env, inviter.ID)
	assertBalanced(t, env, bob.ID)
}

func TestLogin(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	register(t, env.svc, "alice", "")

	if _, _, err := env.svc.Login(ctx, "alice", "wrong-pass"); !apperr.Is(err, apperr.Auth) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, _, err := env.svc.Login(ctx, "nobody", "secret1"); !apperr.Is(err, apperr.Auth) {
		t.Errorf("unknown user err = %v", err)
	}

	m, sess, err := env.svc.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.MemberID != m.ID || sess.Token == "" {
		t.Errorf("session = %+v", sess)
	}
	if m.LastLogin == nil || !m.LastLogin.Equal(env.clock.Now()) {
		t.Errorf("last login = %v", m.LastLogin)
	}

	if err := env.svc.Logout(ctx, sess.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if got, _ := store.NewSessionStore(env.db).GetByToken(ctx, sess.Token); got != nil {
		t.Error("session survived logout")
	}
}

func TestInvitationCodeFormat(t *testing.T) {
	env := setupService(t)
	m := register(t, env.svc, "alice", "")
	re := regexp.MustCompile(`^[A-Z0-9]{8}$`)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		inv, err := env.svc.GenerateInvitationCode(context.Background(), m.ID)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !re.MatchString(inv.Code) {
			t.Errorf("code %q does not match format", inv.Code)
		}
		if inv.Status != model.InvitationUnused || inv.PointsAwarded != 0 {
			t.Errorf("invitation = %+v", inv)
		}
		if seen[inv.Code] {
			t.Errorf("duplicate code %q", inv.Code)
		}
		seen[inv.Code] = true
	}
}

type fakeMailer struct {
	sent chan string
}

func (f *fakeMailer) Configured() bool { return true }

func (f *fakeMailer) SendPasswordReset(_ context.Context, to, _, token string) error {
	f.sent <- to + " " + token
	return nil
}

func TestPasswordResetFlow(t *testing.T) {
	mailer := &fakeMailer{sent: make(chan string, 4)}
	env := setupService(t, WithMailer(mailer))
	ctx := context.Background()
	register(t, env.svc, "alice", "")
	_, sess, _ := env.svc.Login(ctx, "alice", "secret1")

	if err := env.svc.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Errorf("unknown email should look like success, got %v", err)
	}
	if err := env.svc.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}

	var token string
	select {
	case got := <-mailer.sent:
		parts := strings.Fields(got)
		if parts[0] != "alice@example.com" {
			t.Errorf("mailed to %q", parts[0])
		}
		token = parts[1]
	case <-time.After(2 * time.Second):
		t.Fatal("reset mail not sent")
	}

	if err := env.svc.ResetPassword(ctx, token, "123"); !apperr.Is(err, apperr.Validation) {
		t.Errorf("short password err = %v", err)
	}
	if err := env.svc.ResetPassword(ctx, token, "newsecret"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := env.svc.ResetPassword(ctx, token, "another1"); !apperr.Is(err, apperr.Auth) {
		t.Errorf("reused token err = %v, want auth", err)
	}
	if err := env.svc.ResetPassword(ctx, "bogus", "another1"); !apperr.Is(err, apperr.Auth) {
		t.Errorf("unknown token err = %v, want auth", err)
	}

	if _, _, err := env.svc.Login(ctx, "alice", "newsecret"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	if got, _ := store.NewSessionStore(env.db).GetByToken(ctx, sess.Token); got != nil {
		t.Error("old session survived password reset")
	}
}

func resetTokenFor(t *testing.T, db *sql.DB, memberID int64) string {
	t.Helper()
	var token string
	err := db.QueryRow(`SELECT token FROM password_reset_tokens WHERE member_id = ? AND used = 0 ORDER BY id DESC LIMIT 1`, memberID).Scan(&token)
	if err != nil {
		t.Fatalf("find reset token: %v", err)
	}
	return token
}

func TestPasswordResetExpiry(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m := register(t, env.svc, "alice", "")

	env.svc.RequestPasswordReset(ctx, "alice@example.com")
	token := resetTokenFor(t, env.db, m.ID)

	env.clock.Advance(ResetTokenTTL + time.Minute)
	if err := env.svc.ResetPassword(ctx, token, "newsecret"); !apperr.Is(err, apperr.Expired) {
		t.Errorf("expired token err = %v, want expired", err)
	}
}

func TestPasswordResetInvalidatesPriorTokens(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m := register(t, env.svc, "alice", "")

	env.svc.RequestPasswordReset(ctx, "alice@example.com")
	first := resetTokenFor(t, env.db, m.ID)
	env.svc.RequestPasswordReset(ctx, "alice@example.com")
	second := resetTokenFor(t, env.db, m.ID)

	if err := env.svc.ResetPassword(ctx, first, "newsecret"); !apperr.Is(err, apperr.Auth) {
		t.Errorf("superseded token err = %v, want auth", err)
	}
	if err := env.svc.ResetPassword(ctx, second, "newsecret"); err != nil {
		t.Errorf("latest token: %v", err)
	}
}

func TestConcurrentPasswordResetSingleUse(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m := register(t, env.svc, "alice", "")
	env.svc.RequestPasswordReset(ctx, "alice@example.com")
	token := resetTokenFor(t, env.db, m.ID)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := env.svc.ResetPassword(ctx, token, "newsecret"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Errorf("successful resets = %d, want 1", successes)
	}
}

func TestUploadAvatar(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m := register(t, env.svc, "alice", "")

	_, err := env.svc.UploadAvatar(ctx, m.ID, blob.Upload{Filename: "me.bmp", Body: strings.NewReader("x")})
	if !apperr.Is(err, apperr.Validation) {
		t.Errorf("bmp avatar err = %v, want validation", err)
	}

	first, err := env.svc.UploadAvatar(ctx, m.ID, blob.Upload{Filename: "me.png", Body: strings.NewReader("1")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	env.clock.Advance(time.Second)
	second, err := env.svc.UploadAvatar(ctx, m.ID, blob.Upload{Filename: "me.jpg", Body: strings.NewReader("2")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if _, err := os.Stat(filepath.Join(env.root, filepath.FromSlash(first))); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("previous avatar %q not deleted", first)
	}
	if _, err := os.Stat(filepath.Join(env.root, filepath.FromSlash(second))); err != nil {
		t.Errorf("new avatar missing: %v", err)
	}
	got, _ := env.svc.Info(ctx, m.ID)
	if got.Avatar != second {
		t.Errorf("avatar = %q, want %q", got.Avatar, second)
	}
}
