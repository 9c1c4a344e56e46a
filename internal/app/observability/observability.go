package observability

import (
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

// Collector aggregates console request stats and content API call stats.
type Collector struct {
	logger *log.Logger

	mu            sync.RWMutex
	requestStats  map[key]stat
	upstreamStats map[key]stat
	startedAt     time.Time
}

func NewCollector(logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.Default()
	}
	return &Collector{
		logger:        logger,
		requestStats:  make(map[key]stat),
		upstreamStats: make(map[key]stat),
		startedAt:     time.Now(),
	}
}

// LogEvent writes one JSON object per line. A nil logger writes to the
// standard logger.
func LogEvent(l *log.Logger, event string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		entry[k] = v
	}
	entry["event"] = event
	b, _ := json.Marshal(entry)
	if l == nil {
		log.Printf("%s", string(b))
		return
	}
	l.Printf("%s", string(b))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)
		c.record(c.requestStats, key{Method: r.Method, Path: path, Status: rec.status}, latencyMS)

		LogEvent(c.logger, "http_request", map[string]any{
			"request_id": middleware.GetReqID(r.Context()),
			"exam_id":    extractID(r.URL.Path, "exams"),
			"method":     r.Method,
			"path":       path,
			"status":     rec.status,
			"latency_ms": latencyMS,
			"remote_ip":  strings.TrimSpace(r.RemoteAddr),
		})
	})
}

type upstreamTransport struct {
	c    *Collector
	next http.RoundTripper
}

// Transport wraps next so every content API call is counted. Transport
// failures are recorded with status 0.
func (c *Collector) Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &upstreamTransport{c: c, next: next}
}

func (t *upstreamTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	res, err := t.next.RoundTrip(req)
	latencyMS := float64(time.Since(start).Microseconds()) / 1000.0

	status := 0
	if res != nil {
		status = res.StatusCode
	}
	t.c.record(t.c.upstreamStats, key{Method: req.Method, Path: normalizedPath(req.URL.Path), Status: status}, latencyMS)
	if err != nil {
		LogEvent(t.c.logger, "upstream_error", map[string]any{
			"method":     req.Method,
			"path":       req.URL.Path,
			"latency_ms": latencyMS,
			"error":      err.Error(),
		})
	}
	return res, err
}

func (c *Collector) record(into map[key]stat, k key, latencyMS float64) {
	c.mu.Lock()
	s := into[k]
	s.Count++
	s.LatencyMS += latencyMS
	into[k] = s
	c.mu.Unlock()
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	requests := copyStats(c.requestStats)
	upstream := copyStats(c.upstreamStats)
	startedAt := c.startedAt
	c.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("# examconsole observability metrics\n")
	sb.WriteString("# TYPE examconsole_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("examconsole_uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))
	writeStats(&sb, "examconsole_http_request", requests)
	writeStats(&sb, "examconsole_upstream_request", upstream)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

func copyStats(in map[key]stat) map[key]stat {
	out := make(map[key]stat, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func writeStats(sb *strings.Builder, prefix string, stats map[key]stat) {
	keys := make([]key, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	sb.WriteString(fmt.Sprintf("# TYPE %ss_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_latency_ms_sum counter\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_latency_ms_avg gauge\n", prefix))
	for _, k := range keys {
		s := stats[k]
		labels := fmt.Sprintf("method=\"%s\",path=\"%s\",status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf("%ss_total{%s} %d\n", prefix, labels, s.Count))
		sb.WriteString(fmt.Sprintf("%s_latency_ms_sum{%s} %.3f\n", prefix, labels, s.LatencyMS))
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		sb.WriteString(fmt.Sprintf("%s_latency_ms_avg{%s} %.3f\n", prefix, labels, avg))
	}
}

func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// extractID returns the numeric path segment following segment, or 0.
func extractID(path, segment string) int64 {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == segment {
			if id, err := strconv.ParseInt(parts[i+1], 10, 64); err == nil {
				return id
			}
		}
	}
	return 0
}
