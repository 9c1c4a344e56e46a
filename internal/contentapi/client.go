package contentapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 16 << 20
)

var ErrInvalidConfig = errors.New("invalid content api config")

type Config struct {
	BaseURL string
	Token   string
	// Timeout bounds every request, including reading the body.
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *log.Logger
}

// Client talks to the platform's per-entity CRUD API.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  *log.Logger
}

// APIError is a non-2xx answer from the content API.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

type errorEnvelope struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidConfig, cfg.BaseURL)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(cfg.Token),
		http:    &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		logger:  cfg.Logger,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, parseAPIError(method, path, res.StatusCode, raw)
	}
	return raw, nil
}

// parseAPIError reads {"error":{"code","message"}}, {"error":"..."} or
// {"message":"..."}; anything else keeps only the status.
func parseAPIError(method, path string, status int, raw []byte) *APIError {
	out := &APIError{Method: method, Path: path, Status: status}

	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return out
	}
	out.Message = env.Message
	if len(env.Error) == 0 {
		return out
	}
	var payload errorPayload
	if err := json.Unmarshal(env.Error, &payload); err == nil {
		out.Code = payload.Code
		if payload.Message != "" {
			out.Message = payload.Message
		}
		return out
	}
	var msg string
	if err := json.Unmarshal(env.Error, &msg); err == nil && msg != "" {
		out.Message = msg
	}
	return out
}

// IsStatus reports whether err is an APIError with one of the statuses.
func IsStatus(err error, statuses ...int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, s := range statuses {
		if apiErr.Status == s {
			return true
		}
	}
	return false
}
