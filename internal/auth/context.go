package auth

import "context"

type contextKey struct{}

// Session is the capability a request carries once a gate has accepted its
// cookie. Member and admin sessions are separate; a request may hold either.
type Session struct {
	MemberID  int64
	Admin     bool
	SessionID int64
}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// MemberID returns 0 when the request has no member session.
func MemberID(ctx context.Context) int64 {
	s, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return s.MemberID
}

func IsAdmin(ctx context.Context) bool {
	s, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return s.Admin
}
