// Package contentapitest provides an in-memory content API for tests.
package contentapitest

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"examconsole/internal/content"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
)

// Shape selects how list and record responses are wrapped.
type Shape int

const (
	ShapeBare Shape = iota
	ShapeData
	ShapeNestedData
)

type failRule struct {
	method  string
	path    string
	status  int
	skip    int
	times   int
	forever bool
}

// Backend is an in-memory CRUD service for exams, questions and answer
// options with failure injection and per-request counters.
type Backend struct {
	mu        sync.Mutex
	nextID    int64
	exams     map[int64]content.Exam
	questions map[int64]content.Question
	options   map[int64]content.AnswerOption

	shape          Shape
	nestedDisabled bool
	omitCreatedID  bool
	rules          []*failRule
	hits           map[string]int
	hook           func(r *http.Request)
}

func New() *Backend {
	return &Backend{
		exams:     make(map[int64]content.Exam),
		questions: make(map[int64]content.Question),
		options:   make(map[int64]content.AnswerOption),
		hits:      make(map[string]int),
	}
}

func (b *Backend) SetShape(s Shape) {
	b.mu.Lock()
	b.shape = s
	b.mu.Unlock()
}

// DisableNested makes the by-parent routes answer 405.
func (b *Backend) DisableNested() {
	b.mu.Lock()
	b.nestedDisabled = true
	b.mu.Unlock()
}

// OmitCreatedID strips the id from create responses.
func (b *Backend) OmitCreatedID() {
	b.mu.Lock()
	b.omitCreatedID = true
	b.mu.Unlock()
}

// Fail answers `times` requests matching method and exact path with status,
// after letting the first `skip` matching requests through. times <= 0
// fails forever.
func (b *Backend) Fail(method, path string, status, skip, times int) {
	b.mu.Lock()
	b.rules = append(b.rules, &failRule{method: method, path: path, status: status, skip: skip, times: times, forever: times <= 0})
	b.mu.Unlock()
}

func (b *Backend) ClearFailures() {
	b.mu.Lock()
	b.rules = nil
	b.mu.Unlock()
}

// SetHook installs a func run before every request is handled. Tests use
// it to hold requests in flight.
func (b *Backend) SetHook(fn func(r *http.Request)) {
	b.mu.Lock()
	b.hook = fn
	b.mu.Unlock()
}

// Hits returns how many requests reached method + exact path, failed ones
// included.
func (b *Backend) Hits(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[method+" "+path]
}

func (b *Backend) ResetHits() {
	b.mu.Lock()
	b.hits = make(map[string]int)
	b.mu.Unlock()
}

func (b *Backend) AddExam(e content.Exam) content.Exam {
	b.mu.Lock()
	defer b.mu.Unlock()
	e.ID = b.assignID(e.ID)
	b.exams[e.ID] = e
	return e
}

func (b *Backend) AddQuestion(q content.Question) content.Question {
	b.mu.Lock()
	defer b.mu.Unlock()
	q.ID = b.assignID(q.ID)
	b.questions[q.ID] = q
	return q
}

func (b *Backend) AddAnswerOption(o content.AnswerOption) content.AnswerOption {
	b.mu.Lock()
	defer b.mu.Unlock()
	o.ID = b.assignID(o.ID)
	b.options[o.ID] = o
	return o
}

func (b *Backend) Questions() []content.Question {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedValues(b.questions, func(q content.Question) int64 { return q.ID })
}

func (b *Backend) AnswerOptions() []content.AnswerOption {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedValues(b.options, func(o content.AnswerOption) int64 { return o.ID })
}

func (b *Backend) assignID(id int64) int64 {
	if id <= 0 {
		b.nextID++
		return b.nextID
	}
	if id > b.nextID {
		b.nextID = id
	}
	return id
}

func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(b.intercept)

	r.Get("/exams", b.listExams)
	r.Post("/exams", b.createExam)
	r.Put("/exams/{id}", b.updateExam)
	r.Delete("/exams/{id}", b.deleteExam)
	r.Get("/exams/{id}/questions", b.nested(b.listQuestionsByExam))

	r.Get("/questions", b.listQuestions)
	r.Post("/questions", b.createQuestion)
	r.Put("/questions/{id}", b.updateQuestion)
	r.Delete("/questions/{id}", b.deleteQuestion)
	r.Get("/questions/{id}/answer-options", b.nested(b.listOptionsByQuestion))

	r.Get("/answer-options", b.listOptions)
	r.Post("/answer-options", b.createOption)
	r.Put("/answer-options/{id}", b.updateOption)
	r.Delete("/answer-options/{id}", b.deleteOption)
	return r
}

func (b *Backend) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.Method+" "+r.URL.Path]++
		hook := b.hook
		status := b.matchFailure(r.Method, r.URL.Path)
		b.mu.Unlock()

		if hook != nil {
			hook(r)
		}
		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) matchFailure(method, path string) int {
	for _, rule := range b.rules {
		if rule.method != method || rule.path != path {
			continue
		}
		if rule.skip > 0 {
			rule.skip--
			continue
		}
		if rule.forever {
			return rule.status
		}
		if rule.times > 0 {
			rule.times--
			return rule.status
		}
	}
	return 0
}

func (b *Backend) nested(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		disabled := b.nestedDisabled
		b.mu.Unlock()
		if disabled {
			writeError(w, http.StatusMethodNotAllowed, "nested listing not supported")
			return
		}
		h(w, r)
	}
}

func (b *Backend) listExams(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	items := sortedValues(b.exams, func(e content.Exam) int64 { return e.ID })
	b.mu.Unlock()
	b.writeCollection(w, items)
}

func (b *Backend) listQuestions(w http.ResponseWriter, r *http.Request) {
	b.writeCollection(w, b.Questions())
}

func (b *Backend) listOptions(w http.ResponseWriter, r *http.Request) {
	b.writeCollection(w, b.AnswerOptions())
}

func (b *Backend) listQuestionsByExam(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	_, exists := b.exams[examID]
	b.mu.Unlock()
	if !exists {
		writeError(w, http.StatusNotFound, "exam not found")
		return
	}

	out := []content.Question{}
	for _, q := range b.Questions() {
		if q.ExamID == examID {
			out = append(out, q)
		}
	}
	b.writeCollection(w, out)
}

func (b *Backend) listOptionsByQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r)
	if !ok {
		return
	}
	out := []content.AnswerOption{}
	for _, o := range b.AnswerOptions() {
		if o.QuestionID == questionID {
			out = append(out, o)
		}
	}
	b.writeCollection(w, out)
}

func (b *Backend) createExam(w http.ResponseWriter, r *http.Request) {
	var in content.Exam
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		writeError(w, http.StatusUnprocessableEntity, "title is required")
		return
	}
	in.ID = 0
	b.writeRecord(w, http.StatusCreated, b.AddExam(in))
}

func (b *Backend) updateExam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in content.Exam
	if !decode(w, r, &in) {
		return
	}
	b.mu.Lock()
	_, exists := b.exams[id]
	if exists {
		in.ID = id
		b.exams[id] = in
	}
	b.mu.Unlock()
	if !exists {
		writeError(w, http.StatusNotFound, "exam not found")
		return
	}
	b.writeRecord(w, http.StatusOK, in)
}

func (b *Backend) deleteExam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	_, exists := b.exams[id]
	delete(b.exams, id)
	for qid, q := range b.questions {
		if q.ExamID != id {
			continue
		}
		delete(b.questions, qid)
		for oid, o := range b.options {
			if o.QuestionID == qid {
				delete(b.options, oid)
			}
		}
	}
	b.mu.Unlock()
	if !exists {
		writeError(w, http.StatusNotFound, "exam not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) createQuestion(w http.ResponseWriter, r *http.Request) {
	var in content.Question
	if !decode(w, r, &in) {
		return
	}
	b.mu.Lock()
	_, exists := b.exams[in.ExamID]
	b.mu.Unlock()
	if !exists {
		writeError(w, http.StatusUnprocessableEntity, "exam not found")
		return
	}
	in.ID = 0
	b.writeRecord(w, http.StatusCreated, b.AddQuestion(in))
}

func (b *Backend) updateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in content.Question
	if !decode(w, r, &in) {
		return
	}
	b.mu.Lock()
	_, exists := b.questions[id]
	if exists {
		in.ID = id
		b.questions[id] = in
	}
	b.mu.Unlock()
	if !exists {
		writeError(w, http.StatusNotFound, "question not found")
		return
	}
	b.writeRecord(w, http.StatusOK, in)
}

func (b *Backend) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	_, exists := b.questions[id]
	delete(b.questions, id)
	for oid, o := range b.options {
		if o.QuestionID == id {
			delete(b.options, oid)
		}
	}
	b.mu.Unlock()
	if !exists {
		writeError(w, http.StatusNotFound, "question not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) createOption(w http.ResponseWriter, r *http.Request) {
	var in content.AnswerOption
	if !decode(w, r, &in) {
		return
	}
	b.mu.Lock()
	_, exists := b.questions[in.QuestionID]
	b.mu.Unlock()
	if !exists {
		writeError(w, http.StatusUnprocessableEntity, "question not found")
		return
	}
	in.ID = 0
	b.writeRecord(w, http.StatusCreated, b.AddAnswerOption(in))
}

func (b *Backend) updateOption(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in content.AnswerOption
	if !decode(w, r, &in) {
		return
	}
	b.mu.Lock()
	_, exists := b.options[id]
	if exists {
		in.ID = id
		b.options[id] = in
	}
	b.mu.Unlock()
	if !exists {
		writeError(w, http.StatusNotFound, "answer option not found")
		return
	}
	b.writeRecord(w, http.StatusOK, in)
}

func (b *Backend) deleteOption(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	_, exists := b.options[id]
	delete(b.options, id)
	b.mu.Unlock()
	if !exists {
		writeError(w, http.StatusNotFound, "answer option not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) writeCollection(w http.ResponseWriter, items any) {
	b.mu.Lock()
	shape := b.shape
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, wrap(shape, items))
}

func (b *Backend) writeRecord(w http.ResponseWriter, status int, rec any) {
	b.mu.Lock()
	shape := b.shape
	omitID := b.omitCreatedID && status == http.StatusCreated
	b.mu.Unlock()

	var body any = rec
	if omitID {
		var m map[string]any
		raw, _ := json.Marshal(rec)
		_ = json.Unmarshal(raw, &m)
		delete(m, "id")
		body = m
	}
	writeJSON(w, status, wrap(shape, body))
}

func wrap(shape Shape, v any) any {
	switch shape {
	case ShapeData:
		return map[string]any{"ok": true, "data": v}
	case ShapeNestedData:
		return map[string]any{"data": map[string]any{"data": v, "total": 0}}
	default:
		return v
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"ok":    false,
		"error": map[string]string{"code": "error", "message": msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sortedValues[T any](m map[int64]T, idOf func(T) int64) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return idOf(out[i]) < idOf(out[j]) })
	return out
}
