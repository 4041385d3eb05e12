package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultWindow is used when a Limiter is built with a zero window.
const DefaultWindow = time.Minute

type bucket struct {
	used    int
	resetAt time.Time
}

// Limiter hands out fixed-window request budgets. One Limiter is shared by
// every throttled route; buckets are keyed by RouteKey so each route keeps
// its own count per client.
type Limiter struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewLimiter(window time.Duration) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Window reports the length of one budget period.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Take spends one request from key's budget. When the budget is used up it
// returns false and the time left until the window resets.
func (l *Limiter) Take(key string, budget int) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(l.window)}
		l.buckets[key] = b
	}
	if b.used >= budget {
		return false, b.resetAt.Sub(now)
	}
	b.used++
	return true, 0
}

// Prune drops buckets whose window has ended and returns how many went.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// RouteKey identifies a client on the mux pattern that matched the request.
func RouteKey(r *http.Request) string {
	return RealIP(r) + " " + r.Pattern
}

// Throttle allows budget requests per window for each RouteKey and answers
// the rest with a JSON 429.
func (l *Limiter) Throttle(budget int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.Take(RouteKey(r), budget)
			if !ok {
				w.Header().Set("Retry-After", retryAfter(wait))
				writeJSONError(w, http.StatusTooManyRequests, "too many requests, please slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter rounds up to whole seconds, never below one.
func retryAfter(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
