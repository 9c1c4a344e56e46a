package app

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"examconsole/internal/app/apiresp"
	"examconsole/internal/console"

	"github.com/google/uuid"
)

const csrfCookieName = "examconsole_csrf"
const csrfHeaderName = "X-CSRF-Token"

type rateBucket struct {
	Count      int
	WindowEnds time.Time
}

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	now    func() time.Time
	store  map[string]rateBucket
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		max:    max,
		window: window,
		now:    time.Now,
		store:  make(map[string]rateBucket),
	}
}

func (l *RateLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.store[key]
	if now.After(b.WindowEnds) {
		if len(l.store) > 4096 {
			l.sweepLocked(now)
		}
		b = rateBucket{Count: 0, WindowEnds: now.Add(l.window)}
	}
	if b.Count >= l.max {
		l.store[key] = b
		return false
	}
	b.Count++
	l.store[key] = b
	return true
}

func (l *RateLimiter) sweepLocked(now time.Time) {
	for k, b := range l.store {
		if now.After(b.WindowEnds) {
			delete(l.store, k)
		}
	}
}

// RateLimitMiddleware limits mutations per console session, falling back to
// the client address for requests without one.
func RateLimitMiddleware(l *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(rateKey(r)) {
				apiresp.Write(w, r, http.StatusTooManyRequests, false, nil, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateKey(r *http.Request) string {
	if c, err := r.Cookie(console.SessionCookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return "session|" + strings.TrimSpace(c.Value)
	}
	return "ip|" + strings.TrimSpace(r.RemoteAddr)
}

func CSRFMiddleware(enforced bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enforced {
				next.ServeHTTP(w, r)
				return
			}
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			c, err := r.Cookie(csrfCookieName)
			if err != nil || strings.TrimSpace(c.Value) == "" {
				apiresp.Write(w, r, http.StatusForbidden, false, nil, "csrf token missing")
				return
			}
			h := strings.TrimSpace(r.Header.Get(csrfHeaderName))
			if h == "" || h != c.Value {
				apiresp.Write(w, r, http.StatusForbidden, false, nil, "csrf token invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IssueCSRFToken sets a fresh double-submit cookie and returns the token the
// browser echoes in X-CSRF-Token.
func IssueCSRFToken(secure bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     csrfCookieName,
			Value:    token,
			Path:     "/",
			Secure:   secure,
			SameSite: http.SameSiteStrictMode,
		})
		apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"token": token, "header": csrfHeaderName})
	}
}
