package contentapi

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"examconsole/internal/app/observability"
	"examconsole/internal/content"
)

const (
	examsPath         = "/exams"
	questionsPath     = "/questions"
	answerOptionsPath = "/answer-options"
)

var (
	_ content.ExamService         = (*Resource[content.Exam])(nil)
	_ content.QuestionService     = (*Resource[content.Question])(nil)
	_ content.AnswerOptionService = (*Resource[content.AnswerOption])(nil)
)

// Resource is the CRUD endpoint set of one entity type.
type Resource[T any] struct {
	c          *Client
	collection string
	// parent is the owning collection for nested listing
	// (GET {parent}/{id}{collection}). Empty for root entities.
	parent   string
	parentOf func(T) int64
	setID    func(*T, int64)

	// nestedUnsupported is set once the backend rejects the nested route,
	// after which ListByParent filters the full list.
	nestedUnsupported atomic.Bool
}

func (c *Client) Exams() *Resource[content.Exam] {
	return &Resource[content.Exam]{
		c:          c,
		collection: examsPath,
		parentOf:   func(content.Exam) int64 { return content.RootKey },
		setID:      func(e *content.Exam, id int64) { e.ID = id },
	}
}

func (c *Client) Questions() *Resource[content.Question] {
	return &Resource[content.Question]{
		c:          c,
		collection: questionsPath,
		parent:     examsPath,
		parentOf:   func(q content.Question) int64 { return q.ExamID },
		setID:      func(q *content.Question, id int64) { q.ID = id },
	}
}

func (c *Client) AnswerOptions() *Resource[content.AnswerOption] {
	return &Resource[content.AnswerOption]{
		c:          c,
		collection: answerOptionsPath,
		parent:     questionsPath,
		parentOf:   func(o content.AnswerOption) int64 { return o.QuestionID },
		setID:      func(o *content.AnswerOption, id int64) { o.ID = id },
	}
}

func (r *Resource[T]) List(ctx context.Context) ([]T, error) {
	return r.list(ctx, r.collection)
}

// ListByParent uses the nested route and falls back to filtering the full
// list when the backend answers it with 404 or 405.
func (r *Resource[T]) ListByParent(ctx context.Context, parentID int64) ([]T, error) {
	if r.parent == "" {
		return r.List(ctx)
	}
	if !r.nestedUnsupported.Load() {
		path := fmt.Sprintf("%s/%d%s", r.parent, parentID, r.collection)
		items, err := r.list(ctx, path)
		if err == nil {
			return items, nil
		}
		if !IsStatus(err, http.StatusNotFound, http.StatusMethodNotAllowed) {
			return nil, err
		}
		if IsStatus(err, http.StatusMethodNotAllowed) {
			r.nestedUnsupported.Store(true)
		}
		observability.LogEvent(r.c.logger, "contentapi_nested_fallback", map[string]any{
			"path":      path,
			"parent_id": parentID,
		})
	}

	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(all))
	for _, item := range all {
		if r.parentOf(item) == parentID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *Resource[T]) list(ctx context.Context, path string) ([]T, error) {
	raw, err := r.c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	items, ok := decodeCollection[T](raw)
	if !ok {
		observability.LogEvent(r.c.logger, "contentapi_unrecognized_collection", map[string]any{
			"path":  path,
			"bytes": len(raw),
		})
	}
	return items, nil
}

// Create returns the stored record. If the response carries no usable id the
// decoded payload is returned together with content.ErrMissingRecordID.
func (r *Resource[T]) Create(ctx context.Context, payload T) (*T, error) {
	raw, err := r.c.do(ctx, http.MethodPost, r.collection, payload)
	if err != nil {
		return nil, err
	}

	rec, id := unwrapRecord(raw)
	out := payload
	if len(rec) > 0 {
		if err := decodeRecord(rec, &out); err != nil {
			out = payload
		}
	}
	r.setID(&out, id)
	if id <= 0 {
		return &out, fmt.Errorf("POST %s: %w", r.collection, content.ErrMissingRecordID)
	}
	return &out, nil
}

// Update returns the stored record, or the payload with id set when the
// backend answers without a body.
func (r *Resource[T]) Update(ctx context.Context, id int64, payload T) (*T, error) {
	r.setID(&payload, id)
	raw, err := r.c.do(ctx, http.MethodPut, fmt.Sprintf("%s/%d", r.collection, id), payload)
	if err != nil {
		return nil, err
	}

	out := payload
	if rec, _ := unwrapRecord(raw); len(rec) > 0 {
		if err := decodeRecord(rec, &out); err != nil {
			out = payload
		}
	}
	r.setID(&out, id)
	return &out, nil
}

func (r *Resource[T]) Delete(ctx context.Context, id int64) error {
	_, err := r.c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", r.collection, id), nil)
	return err
}
