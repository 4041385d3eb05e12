package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/maycafe/internal/blob"
	"github.com/dukerupert/maycafe/internal/board"
	"github.com/dukerupert/maycafe/internal/config"
	"github.com/dukerupert/maycafe/internal/email"
	"github.com/dukerupert/maycafe/internal/handler"
	"github.com/dukerupert/maycafe/internal/ledger"
	"github.com/dukerupert/maycafe/internal/metrics"
	"github.com/dukerupert/maycafe/internal/middleware"
	"github.com/dukerupert/maycafe/internal/notify"
	"github.com/dukerupert/maycafe/internal/store"
	ws "github.com/dukerupert/maycafe/internal/websocket"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	dispatcher    *notify.Dispatcher
	metrics       *metrics.Metrics
	blobs         blob.Store
	messageH      *handler.MessageHandler
	memberH       *handler.MemberHandler
	redemptionH   *handler.RedemptionHandler
	adminH        *handler.AdminHandler
	sessionStore  *store.SessionStore
	adminSessions *store.AdminSessionStore
	resetStore    *store.PasswordResetStore
	limiter       *middleware.Limiter
	wsOrigins     []string
	logger        *slog.Logger
}

// Option adjusts how New builds the services.
type Option func(*options)

type options struct {
	ledgerOpts []ledger.Option
	boardOpts  []board.Option
	sinks      []notify.Sink
}

// WithLedgerOptions passes extra options to the ledger service.
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(o *options) { o.ledgerOpts = append(o.ledgerOpts, opts...) }
}

func WithBoardOptions(opts ...board.Option) Option {
	return func(o *options) { o.boardOpts = append(o.boardOpts, opts...) }
}

// WithSinks adds notification sinks next to the websocket feed.
func WithSinks(sinks ...notify.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

func New(db *sql.DB, cfg *config.Config, blobs blob.Store, emailClient *email.Client, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	sinks := []notify.Sink{notify.NewHubSink(hub)}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL))
	}
	sinks = append(sinks, o.sinks...)
	dispatcher := notify.NewDispatcher(logger.With("component", "notify"), sinks...)
	dispatcher.OnResult(m.NotifyResult)

	boardSvc := board.NewService(db, blobs, dispatcher, logger.With("component", "board"), o.boardOpts...)

	ledgerOpts := []ledger.Option{ledger.WithObserver(m)}
	if emailClient.Configured() {
		ledgerOpts = append(ledgerOpts, ledger.WithMailer(emailClient))
	}
	ledgerOpts = append(ledgerOpts, o.ledgerOpts...)
	ledgerSvc := ledger.NewService(db, blobs, logger.With("component", "ledger"), ledgerOpts...)

	adminSessions := store.NewAdminSessionStore(db)

	return &Server{
		db:            db,
		hub:           hub,
		dispatcher:    dispatcher,
		metrics:       m,
		blobs:         blobs,
		messageH:      handler.NewMessageHandler(boardSvc, logger.With("component", "message")),
		memberH:       handler.NewMemberHandler(ledgerSvc, cfg.SecureCookies, logger.With("component", "member")),
		redemptionH:   handler.NewRedemptionHandler(ledgerSvc, logger.With("component", "redemption")),
		adminH:        handler.NewAdminHandler(adminSessions, cfg.AdminPasswordHash, cfg.SecureCookies, logger.With("component", "admin")),
		sessionStore:  store.NewSessionStore(db),
		adminSessions: adminSessions,
		resetStore:    store.NewPasswordResetStore(db),
		limiter:       middleware.NewLimiter(cfg.RateLimitWindow),
		wsOrigins:     cfg.Origins(),
		logger:        logger,
	}
}

// Start launches the notification worker.
func (s *Server) Start(ctx context.Context) {
	s.dispatcher.Start(ctx)
}

// Stop drains pending notifications and closes live connections.
func (s *Server) Stop() {
	s.dispatcher.Stop()
	s.hub.Close()
}

// Cleanup removes expired sessions and reset tokens and stale rate limit
// entries.
func (s *Server) Cleanup(ctx context.Context) {
	if n, err := s.sessionStore.DeleteExpired(ctx); err != nil {
		s.logger.Error("session cleanup", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned expired sessions", "count", n)
	}
	if n, err := s.adminSessions.DeleteExpired(ctx); err != nil {
		s.logger.Error("admin session cleanup", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned expired admin sessions", "count", n)
	}
	if n, err := s.resetStore.DeleteExpired(ctx, time.Now().UTC()); err != nil {
		s.logger.Error("reset token cleanup", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned expired reset tokens", "count", n)
	}
	if n := s.limiter.Prune(); n > 0 {
		s.logger.Debug("pruned rate limit buckets", "count", n)
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	member := middleware.RequireMember(s.sessionStore)
	admin := middleware.RequireAdmin(s.adminSessions)

	// Board
	mux.HandleFunc("GET /api/messages", s.messageH.List)
	mux.HandleFunc("POST /api/messages", s.rateLimited(s.messageH.Create, 20))
	mux.HandleFunc("PUT /api/messages/{id}", s.messageH.Update)
	mux.HandleFunc("DELETE /api/messages/{id}", s.messageH.Delete)
	mux.HandleFunc("GET /api/messages/{id}/replies", s.messageH.ListReplies)
	mux.HandleFunc("POST /api/messages/{id}/replies", s.rateLimited(s.messageH.CreateReply, 30))

	// Admin
	mux.HandleFunc("POST /api/admin/login", s.rateLimited(s.adminH.Login, 10))
	mux.HandleFunc("POST /api/admin/logout", s.adminH.Logout)
	mux.Handle("GET /api/admin/messages", admin(http.HandlerFunc(s.messageH.ListAll)))
	mux.Handle("POST /api/admin/messages/{id}/approve", admin(http.HandlerFunc(s.messageH.Approve)))
	mux.Handle("PUT /api/admin/messages/{id}", admin(http.HandlerFunc(s.messageH.Update)))
	mux.Handle("DELETE /api/admin/messages/{id}", admin(http.HandlerFunc(s.messageH.Delete)))
	mux.Handle("GET /api/admin/redemptions", admin(http.HandlerFunc(s.redemptionH.ListAll)))
	mux.Handle("PUT /api/admin/redemptions/{id}", admin(http.HandlerFunc(s.redemptionH.SetStatus)))

	// Members
	mux.HandleFunc("POST /api/member/register", s.rateLimited(s.memberH.Register, 10))
	mux.HandleFunc("POST /api/member/login", s.rateLimited(s.memberH.Login, 10))
	mux.Handle("POST /api/member/logout", member(http.HandlerFunc(s.memberH.Logout)))
	mux.Handle("GET /api/member/info", member(http.HandlerFunc(s.memberH.Info)))
	mux.Handle("GET /api/member/points/records", member(http.HandlerFunc(s.memberH.PointRecords)))
	mux.Handle("GET /api/member/redemptions", member(http.HandlerFunc(s.memberH.MyRedemptions)))
	mux.Handle("POST /api/member/checkin", member(http.HandlerFunc(s.memberH.CheckIn)))
	mux.Handle("GET /api/member/checkin/status", member(http.HandlerFunc(s.memberH.CheckInStatus)))
	mux.Handle("POST /api/member/invitation/generate", member(http.HandlerFunc(s.memberH.GenerateInvitation)))
	mux.Handle("GET /api/member/invitation/my", member(http.HandlerFunc(s.memberH.MyInvitations)))
	mux.Handle("POST /api/member/avatar", member(http.HandlerFunc(s.memberH.UploadAvatar)))
	mux.HandleFunc("POST /api/member/password/request-reset", s.rateLimited(s.memberH.RequestPasswordReset, 5))
	mux.HandleFunc("POST /api/member/password/reset", s.rateLimited(s.memberH.ResetPassword, 10))

	// Redemption
	mux.HandleFunc("GET /api/redemption/items", s.redemptionH.Items)
	mux.Handle("POST /api/redemption/redeem", member(http.HandlerFunc(s.redemptionH.Redeem)))

	// Files, live feed, ops
	mux.HandleFunc("GET /uploads/{name}", handler.ServeUploads(s.blobs, s.logger.With("component", "uploads")))
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.wsOrigins))
	mux.HandleFunc("GET /health", handler.Health(s.db))
	mux.Handle("GET /metrics", s.metrics.Handler())

	instrumented := s.metrics.InstrumentHandler(mux)
	return middleware.RequestLogger(s.logger.With("component", "http"))(instrumented)
}

// rateLimited gives h a budget of requests per limiter window for each
// client.
func (s *Server) rateLimited(h http.HandlerFunc, budget int) http.HandlerFunc {
	return s.limiter.Throttle(budget)(h).ServeHTTP
}
