package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/maycafe/internal/auth"
	"github.com/dukerupert/maycafe/internal/ledger"
	"github.com/dukerupert/maycafe/internal/middleware"
	"github.com/dukerupert/maycafe/internal/model"
)

type MemberHandler struct {
	ledger        *ledger.Service
	secureCookies bool
	logger        *slog.Logger
}

func NewMemberHandler(l *ledger.Service, secureCookies bool, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{ledger: l, secureCookies: secureCookies, logger: logger}
}

func (h *MemberHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req ledger.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.ledger.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"message": "registration successful", "member": m})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *MemberHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, sess, err := h.ledger.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	setSessionCookie(w, middleware.MemberCookieName, sess.Token, sess.ExpiresAt, h.secureCookies)
	writeSuccess(w, http.StatusOK, map[string]any{"member": m})
}

func (h *MemberHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.MemberCookieName); err == nil && cookie.Value != "" {
		if err := h.ledger.Logout(r.Context(), cookie.Value); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	clearSessionCookie(w, middleware.MemberCookieName, h.secureCookies)
	writeSuccess(w, http.StatusOK, nil)
}

func (h *MemberHandler) Info(w http.ResponseWriter, r *http.Request) {
	m, err := h.ledger.Info(r.Context(), auth.MemberID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"member": m})
}

func (h *MemberHandler) PointRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.PointRecords(r.Context(), auth.MemberID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if records == nil {
		records = []model.PointRecord{}
	}
	writeSuccess(w, http.StatusOK, map[string]any{"records": records})
}

func (h *MemberHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	c, err := h.ledger.CheckIn(r.Context(), auth.MemberID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"points_earned":   c.PointsEarned,
		"continuous_days": c.ContinuousDays,
		"check_in":        c,
	})
}

func (h *MemberHandler) CheckInStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.ledger.CheckInStatus(r.Context(), auth.MemberID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"checked_in_today": st.CheckedInToday,
		"continuous_days":  st.ContinuousDays,
		"recent":           st.Recent,
	})
}

func (h *MemberHandler) GenerateInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := h.ledger.GenerateInvitationCode(r.Context(), auth.MemberID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"code": inv.Code, "invitation": inv})
}

func (h *MemberHandler) MyInvitations(w http.ResponseWriter, r *http.Request) {
	list, stats, err := h.ledger.MyInvitations(r.Context(), auth.MemberID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Invitation{}
	}
	writeSuccess(w, http.StatusOK, map[string]any{"invitations": list, "stats": stats})
}

func (h *MemberHandler) MyRedemptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.MyRedemptions(r.Context(), auth.MemberID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Redemption{}
	}
	writeSuccess(w, http.StatusOK, map[string]any{"redemptions": list})
}

func (h *MemberHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	var files formFiles
	defer files.Close()

	up, err := files.one(r, "avatar")
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "could not read uploaded avatar")
		return
	}
	if up == nil {
		writeErrorMsg(w, http.StatusBadRequest, "no file uploaded")
		return
	}

	p, err := h.ledger.UploadAvatar(r.Context(), auth.MemberID(r.Context()), *up)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"avatar": p})
}

type resetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset answers the same way whether or not the address is known.
func (h *MemberHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.ledger.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"message": "if that email is registered, a reset link has been sent",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *MemberHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.ledger.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": "password updated, please log in again"})
}

func setSessionCookie(w http.ResponseWriter, name, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
