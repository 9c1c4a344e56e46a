package observability

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizedPath(t *testing.T) {
	got := normalizedPath("/api/v1/exam-tree/exams/123/toggle")
	want := "/api/v1/exam-tree/exams/{id}/toggle"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
}

func TestExtractID(t *testing.T) {
	if id := extractID("/api/v1/exams/456", "exams"); id != 456 {
		t.Fatalf("expected 456, got %d", id)
	}
	if id := extractID("/api/v1/questions/1", "exams"); id != 0 {
		t.Fatalf("expected 0 for non-exam path, got %d", id)
	}
}

func TestLogEventWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	LogEvent(log.New(&buf, "", 0), "content_loaded", map[string]any{"parent_id": 7})

	line := strings.TrimSpace(buf.String())
	if line != `{"event":"content_loaded","parent_id":7}` {
		t.Fatalf("unexpected log line: %s", line)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTransportCountsUpstreamCalls(t *testing.T) {
	c := NewCollector(log.New(&bytes.Buffer{}, "", 0))
	rt := c.Transport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if strings.HasSuffix(r.URL.Path, "/fail") {
			return nil, errors.New("dial refused")
		}
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}))

	for _, target := range []string{"http://api/exams/1/questions", "http://api/exams/2/questions", "http://api/fail"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		_, _ = rt.RoundTrip(req)
	}

	w := httptest.NewRecorder()
	c.MetricsHandler(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()

	if !strings.Contains(body, `examconsole_upstream_requests_total{method="GET",path="/exams/{id}/questions",status="200"} 2`) {
		t.Fatalf("missing grouped upstream counter:\n%s", body)
	}
	if !strings.Contains(body, `examconsole_upstream_requests_total{method="GET",path="/fail",status="0"} 1`) {
		t.Fatalf("missing failed upstream counter:\n%s", body)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	c := NewCollector(log.New(&bytes.Buffer{}, "", 0))
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/exams", nil))

	w := httptest.NewRecorder()
	c.MetricsHandler(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `examconsole_http_requests_total{method="POST",path="/api/v1/exams",status="502"} 1`) {
		t.Fatalf("missing request counter:\n%s", w.Body.String())
	}
}
