package contentapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"examconsole/internal/content"
	"examconsole/internal/contentapi/contentapitest"
)

func newTestClient(t *testing.T, backend *contentapitest.Backend) *Client {
	t.Helper()
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func seed(b *contentapitest.Backend) {
	b.AddExam(content.Exam{ID: 1, Title: "Placement"})
	b.AddExam(content.Exam{ID: 2, Title: "Grammar"})
	b.AddQuestion(content.Question{ID: 10, ExamID: 1, Content: "Capital of France?", OrderIndex: 1})
	b.AddQuestion(content.Question{ID: 11, ExamID: 1, Content: "Capital of Spain?", OrderIndex: 2})
	b.AddQuestion(content.Question{ID: 20, ExamID: 2, Content: "Past tense of go?", OrderIndex: 1})
	b.AddAnswerOption(content.AnswerOption{ID: 100, QuestionID: 10, Content: "Paris", IsCorrect: true, OptionLabel: "A"})
	b.AddAnswerOption(content.AnswerOption{ID: 101, QuestionID: 10, Content: "London", OptionLabel: "B"})
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative"} {
		if _, err := New(Config{BaseURL: raw}); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("base url %q: expected ErrInvalidConfig, got %v", raw, err)
		}
	}
}

func TestListByParentAcrossShapes(t *testing.T) {
	for _, shape := range []contentapitest.Shape{contentapitest.ShapeBare, contentapitest.ShapeData, contentapitest.ShapeNestedData} {
		backend := contentapitest.New()
		seed(backend)
		backend.SetShape(shape)
		c := newTestClient(t, backend)

		got, err := c.Questions().ListByParent(context.Background(), 1)
		if err != nil {
			t.Fatalf("shape %d: list: %v", shape, err)
		}
		if len(got) != 2 || got[0].ID != 10 || got[1].ID != 11 {
			t.Fatalf("shape %d: unexpected questions %+v", shape, got)
		}
	}
}

func TestListByParentFallsBackToFiltering(t *testing.T) {
	backend := contentapitest.New()
	seed(backend)
	backend.DisableNested()
	c := newTestClient(t, backend)
	res := c.Questions()

	got, err := res.ListByParent(context.Background(), 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != 20 {
		t.Fatalf("unexpected questions %+v", got)
	}

	if _, err := res.ListByParent(context.Background(), 1); err != nil {
		t.Fatalf("second list: %v", err)
	}
	if n := backend.Hits(http.MethodGet, "/exams/1/questions"); n != 0 {
		t.Fatalf("expected nested route skipped after 405, got %d hits", n)
	}
	if n := backend.Hits(http.MethodGet, "/questions"); n != 2 {
		t.Fatalf("expected 2 full list calls, got %d", n)
	}
}

func TestListByParentPropagatesServerErrors(t *testing.T) {
	backend := contentapitest.New()
	seed(backend)
	backend.Fail(http.MethodGet, "/questions/10/answer-options", http.StatusInternalServerError, 0, 1)
	c := newTestClient(t, backend)

	_, err := c.AnswerOptions().ListByParent(context.Background(), 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Message != "injected failure" || apiErr.Code != "error" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if n := backend.Hits(http.MethodGet, "/answer-options"); n != 0 {
		t.Fatalf("5xx must not trigger the fallback, got %d full list calls", n)
	}
}

func TestCreateExtractsID(t *testing.T) {
	for _, shape := range []contentapitest.Shape{contentapitest.ShapeBare, contentapitest.ShapeData} {
		backend := contentapitest.New()
		seed(backend)
		backend.SetShape(shape)
		c := newTestClient(t, backend)

		rec, err := c.AnswerOptions().Create(context.Background(), content.AnswerOption{QuestionID: 11, Content: "Madrid", IsCorrect: true, OptionLabel: "A"})
		if err != nil {
			t.Fatalf("shape %d: create: %v", shape, err)
		}
		if rec.ID <= 0 || rec.QuestionID != 11 || rec.Content != "Madrid" {
			t.Fatalf("shape %d: unexpected record %+v", shape, rec)
		}
	}
}

func TestCreateReadsIDFromRawBodies(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantID  int64
		missing bool
	}{
		{name: "string id", body: `{"data":{"id":"42","examId":1,"content":"x"}}`, wantID: 42},
		{name: "number id", body: `{"id":43,"examId":1,"content":"x"}`, wantID: 43},
		{name: "non numeric id", body: `{"data":{"id":"q-1","examId":1,"content":"x"}}`, missing: true},
		{name: "no id", body: `{"data":{"examId":1,"content":"x"}}`, missing: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(srv.Close)
			c, err := New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
			if err != nil {
				t.Fatalf("new client: %v", err)
			}

			rec, err := c.Questions().Create(context.Background(), content.Question{ExamID: 1, Content: "x"})
			if tc.missing {
				if !errors.Is(err, content.ErrMissingRecordID) {
					t.Fatalf("expected ErrMissingRecordID, got %v", err)
				}
				if rec == nil || rec.ID != 0 {
					t.Fatalf("unexpected record %+v", rec)
				}
				return
			}
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if rec.ID != tc.wantID || rec.ExamID != 1 || rec.Content != "x" {
				t.Fatalf("unexpected record %+v", rec)
			}
		})
	}
}

func TestCreateWithoutIDReportsMissingRecordID(t *testing.T) {
	backend := contentapitest.New()
	seed(backend)
	backend.OmitCreatedID()
	c := newTestClient(t, backend)

	rec, err := c.Exams().Create(context.Background(), content.Exam{Title: "Listening"})
	if !errors.Is(err, content.ErrMissingRecordID) {
		t.Fatalf("expected ErrMissingRecordID, got %v", err)
	}
	if rec == nil || rec.Title != "Listening" || rec.ID != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	backend := contentapitest.New()
	seed(backend)
	c := newTestClient(t, backend)
	ctx := context.Background()

	rec, err := c.Questions().Update(ctx, 11, content.Question{ExamID: 2, Content: "Capital of Italy?", OrderIndex: 2})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.ID != 11 || rec.ExamID != 2 {
		t.Fatalf("unexpected record %+v", rec)
	}

	if err := c.AnswerOptions().Delete(ctx, 101); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = c.AnswerOptions().Delete(ctx, 101)
	if !IsStatus(err, http.StatusNotFound) {
		t.Fatalf("expected 404 on second delete, got %v", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	backend := contentapitest.New()
	seed(backend)
	release := make(chan struct{})
	backend.SetHook(func(r *http.Request) { <-release })

	srv := httptest.NewServer(backend.Handler())
	defer srv.Close()
	defer close(release)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Exams().List(context.Background()); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestBearerToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/api/", Token: " secret "})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Exams().List(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
	if got != "Bearer secret" {
		t.Fatalf("unexpected authorization header %q", got)
	}
}
