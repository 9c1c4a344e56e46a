package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"examconsole/internal/console"
)

func TestRateLimiterAllow(t *testing.T) {
	l := NewRateLimiter(2, 0)
	if !l.Allow("k") || !l.Allow("k") {
		t.Fatalf("first two requests should pass")
	}
	if l.Allow("k") {
		t.Fatalf("third request should be blocked")
	}
	if !l.Allow("other") {
		t.Fatalf("keys must not share a bucket")
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("k") || l.Allow("k") {
		t.Fatalf("expected one request per window")
	}
	now = now.Add(61 * time.Second)
	if !l.Allow("k") {
		t.Fatalf("expected a fresh window")
	}
}

func TestRateLimitKeyPrefersSession(t *testing.T) {
	mw := RateLimitMiddleware(NewRateLimiter(1, time.Minute))
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(session string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/answer-options", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		if session != "" {
			req.AddCookie(&http.Cookie{Name: console.SessionCookieName, Value: session})
		}
		w := httptest.NewRecorder()
		next.ServeHTTP(w, req)
		return w.Code
	}

	if send("a") != http.StatusOK || send("b") != http.StatusOK {
		t.Fatalf("distinct sessions behind one address must not share a bucket")
	}
	if send("a") != http.StatusTooManyRequests {
		t.Fatalf("expected session a limited")
	}
}

func TestCSRFMiddlewareEnforced(t *testing.T) {
	mw := CSRFMiddleware(true)
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions/1/duplicate", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "abc"})
	req.Header.Set(csrfHeaderName, "abc")
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCSRFMiddlewareRejectsMissingToken(t *testing.T) {
	mw := CSRFMiddleware(true)
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions/1/duplicate", nil)
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestIssueCSRFTokenRoundTrip(t *testing.T) {
	w := httptest.NewRecorder()
	IssueCSRFToken(false)(w, httptest.NewRequest(http.MethodGet, "/api/v1/csrf", nil))

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == csrfCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" {
		t.Fatalf("expected csrf cookie")
	}

	next := CSRFMiddleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/exams/1", nil)
	req.AddCookie(cookie)
	req.Header.Set(csrfHeaderName, cookie.Value)
	rr := httptest.NewRecorder()
	next.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("issued token should pass, got %d", rr.Code)
	}
}
