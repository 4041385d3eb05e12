package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/dukerupert/maycafe/internal/auth"
	"github.com/dukerupert/maycafe/internal/store"
)

const (
	MemberCookieName = "maycafe_session"
	AdminCookieName  = "maycafe_admin"
)

// RequireMember validates the member session cookie and puts the session in
// the request context.
func RequireMember(sessions *store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(MemberCookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w, "please log in first")
				return
			}

			sess, err := sessions.GetByToken(r.Context(), cookie.Value)
			if err != nil || sess == nil {
				unauthorized(w, "session expired, please log in again")
				return
			}

			ctx := auth.WithSession(r.Context(), auth.Session{
				MemberID:  sess.MemberID,
				SessionID: sess.ID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin validates the admin session cookie.
func RequireAdmin(sessions *store.AdminSessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(AdminCookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w, "admin login required")
				return
			}

			sess, err := sessions.GetByToken(r.Context(), cookie.Value)
			if err != nil || sess == nil {
				unauthorized(w, "admin login required")
				return
			}

			ctx := auth.WithSession(r.Context(), auth.Session{Admin: true, SessionID: sess.ID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusUnauthorized, msg)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
