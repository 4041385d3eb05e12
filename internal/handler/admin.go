package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/maycafe/internal/middleware"
	"github.com/dukerupert/maycafe/internal/store"
)

type AdminHandler struct {
	sessions      *store.AdminSessionStore
	passwordHash  []byte
	secureCookies bool
	logger        *slog.Logger
}

// NewAdminHandler takes the bcrypt hash of the admin password. An empty hash
// disables admin login.
func NewAdminHandler(sessions *store.AdminSessionStore, passwordHash string, secureCookies bool, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		sessions:      sessions,
		passwordHash:  []byte(passwordHash),
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(h.passwordHash) == 0 {
		writeErrorMsg(w, http.StatusUnauthorized, "admin login is not configured")
		return
	}

	if err := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			h.logger.Error("compare admin password", "error", err)
		}
		h.logger.Warn("admin login failed", "remote", middleware.RealIP(r))
		writeErrorMsg(w, http.StatusUnauthorized, "invalid password")
		return
	}

	sess, err := h.sessions.Create(r.Context())
	if err != nil {
		h.logger.Error("create admin session", "error", err)
		writeErrorMsg(w, http.StatusInternalServerError, "internal server error")
		return
	}
	setSessionCookie(w, middleware.AdminCookieName, sess.Token, sess.ExpiresAt, h.secureCookies)
	h.logger.Info("admin logged in", "remote", middleware.RealIP(r))
	writeSuccess(w, http.StatusOK, nil)
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.AdminCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.DeleteByToken(r.Context(), cookie.Value); err != nil {
			h.logger.Error("delete admin session", "error", err)
		}
	}
	clearSessionCookie(w, middleware.AdminCookieName, h.secureCookies)
	writeSuccess(w, http.StatusOK, nil)
}
