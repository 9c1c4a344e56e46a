package console

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"examconsole/internal/app/observability"
	"examconsole/internal/content"

	"github.com/google/uuid"
)

const SessionCookieName = "examconsole_session"

const (
	defaultSessionIdle = time.Hour
	defaultMaxSessions = 1000
)

// ScreenFactory builds a fresh, unmounted screen for a new session.
type ScreenFactory func() *content.Screen

// workspace joins a screen with its mutation coordinator so one value serves
// every console route.
type workspace struct {
	*content.Screen
	*content.MutationCoordinator
}

type session struct {
	ws       workspace
	lastSeen time.Time
	mount    sync.Once
}

// Sessions maps browser sessions to their screens. Each screen is mounted on
// first use and dropped after the idle timeout.
type Sessions struct {
	factory ScreenFactory
	idle    time.Duration
	max     int
	secure  bool
	now     func() time.Time
	logger  *log.Logger

	mu    sync.Mutex
	store map[string]*session
}

type SessionsConfig struct {
	Factory ScreenFactory
	Idle    time.Duration
	// MaxSessions caps live sessions. Starting one more evicts the least
	// recently seen.
	MaxSessions int
	// Secure marks the session cookie Secure.
	Secure bool
	Clock  func() time.Time
	Logger *log.Logger
}

func NewSessions(cfg SessionsConfig) *Sessions {
	if cfg.Idle <= 0 {
		cfg.Idle = defaultSessionIdle
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Sessions{
		factory: cfg.Factory,
		idle:    cfg.Idle,
		max:     cfg.MaxSessions,
		secure:  cfg.Secure,
		now:     cfg.Clock,
		logger:  cfg.Logger,
		store:   make(map[string]*session),
	}
}

// Workspace returns the caller's workspace, starting a session and setting
// the cookie when the request carries no live one.
func (s *Sessions) Workspace(w http.ResponseWriter, r *http.Request) Workspace {
	sess := s.acquire(w, r)
	sess.mount.Do(func() {
		// Runs once per session, so a client that goes away mid-mount must
		// not leave the tree half primed.
		sess.ws.Mount(context.WithoutCancel(r.Context()))
	})
	return sess.ws
}

func (s *Sessions) acquire(w http.ResponseWriter, r *http.Request) *session {
	now := s.now()
	id := ""
	if c, err := r.Cookie(SessionCookieName); err == nil {
		id = strings.TrimSpace(c.Value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.store[id]; ok && now.Sub(sess.lastSeen) < s.idle {
		sess.lastSeen = now
		return sess
	}

	s.sweepLocked(now)
	for len(s.store) >= s.max {
		s.evictOldestLocked()
	}
	id = uuid.NewString()
	screen := s.factory()
	sess := &session{
		ws:       workspace{Screen: screen, MutationCoordinator: screen.Mutations()},
		lastSeen: now,
	}
	s.store[id] = sess

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	observability.LogEvent(s.logger, "console_session_started", map[string]any{
		"sessions": len(s.store),
	})
	return sess
}

func (s *Sessions) sweepLocked(now time.Time) {
	for id, sess := range s.store {
		if now.Sub(sess.lastSeen) >= s.idle {
			delete(s.store, id)
		}
	}
}

func (s *Sessions) evictOldestLocked() {
	oldest := ""
	var seen time.Time
	for id, sess := range s.store {
		if oldest == "" || sess.lastSeen.Before(seen) {
			oldest, seen = id, sess.lastSeen
		}
	}
	delete(s.store, oldest)
	observability.LogEvent(s.logger, "console_session_evicted", map[string]any{
		"idle_seconds": int(s.now().Sub(seen).Seconds()),
	})
}

// Len reports live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := s.now()
	for _, sess := range s.store {
		if now.Sub(sess.lastSeen) < s.idle {
			n++
		}
	}
	return n
}

// End drops the caller's session, if any, and expires the cookie.
func (s *Sessions) End(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		s.mu.Lock()
		delete(s.store, strings.TrimSpace(c.Value))
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
