package console

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"examconsole/internal/app/apiresp"
	"examconsole/internal/content"
	"examconsole/internal/contentapi"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

// Workspace is the per-session surface the console drives: the exam tree
// and the mutations that keep it consistent.
type Workspace interface {
	View() content.TreeView
	Refresh(ctx context.Context)
	ToggleExam(ctx context.Context, examID int64) content.Toggle
	ToggleQuestion(ctx context.Context, questionID int64) content.Toggle

	CreateExam(ctx context.Context, payload content.Exam) (*content.Exam, error)
	UpdateExam(ctx context.Context, id int64, payload content.Exam) (*content.Exam, error)
	DeleteExam(ctx context.Context, id int64) error

	CreateQuestion(ctx context.Context, payload content.Question) (*content.Question, error)
	UpdateQuestion(ctx context.Context, id int64, payload content.Question) (*content.Question, error)
	DeleteQuestion(ctx context.Context, id int64) error
	DuplicateQuestion(ctx context.Context, id int64) (*content.Question, error)

	CreateAnswerOption(ctx context.Context, payload content.AnswerOption) (*content.AnswerOption, error)
	UpdateAnswerOption(ctx context.Context, id int64, payload content.AnswerOption) (*content.AnswerOption, error)
	DeleteAnswerOption(ctx context.Context, id int64) error
}

type workspaceSource interface {
	Workspace(w http.ResponseWriter, r *http.Request) Workspace
}

type Handler struct {
	src      workspaceSource
	validate *validator.Validate
}

type examRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Duration    int    `json:"duration" validate:"gte=0"`
	Difficulty  string `json:"difficulty"`
	IsActive    *bool  `json:"isActive"`
}

type questionRequest struct {
	ExamID       int64   `json:"examId" validate:"required,gt=0"`
	Content      string  `json:"content" validate:"required"`
	QuestionType string  `json:"questionType"`
	OrderIndex   int     `json:"orderIndex" validate:"gte=0"`
	Points       float64 `json:"points" validate:"gte=0"`
}

type answerOptionRequest struct {
	QuestionID  int64  `json:"questionId" validate:"required,gt=0"`
	Content     string `json:"content" validate:"required"`
	IsCorrect   bool   `json:"isCorrect"`
	OptionLabel string `json:"optionLabel" validate:"required,max=8"`
}

type toggleResponse struct {
	Toggle content.Toggle   `json:"toggle"`
	Tree   content.TreeView `json:"tree"`
}

func NewHandler(src workspaceSource) *Handler {
	v := validator.New()
	// Report fields by their json names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{src: src, validate: v}
}

func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	ws := h.src.Workspace(w, r)
	apiresp.WriteOK(w, r, http.StatusOK, ws.View())
}

func (h *Handler) RefreshTree(w http.ResponseWriter, r *http.Request) {
	ws := h.src.Workspace(w, r)
	ws.Refresh(r.Context())
	apiresp.WriteOK(w, r, http.StatusOK, ws.View())
}

func (h *Handler) ToggleExam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "exam")
	if !ok {
		return
	}
	ws := h.src.Workspace(w, r)
	tg := ws.ToggleExam(r.Context(), id)
	apiresp.WriteOK(w, r, http.StatusOK, toggleResponse{Toggle: tg, Tree: ws.View()})
}

func (h *Handler) ToggleQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "question")
	if !ok {
		return
	}
	ws := h.src.Workspace(w, r)
	tg := ws.ToggleQuestion(r.Context(), id)
	apiresp.WriteOK(w, r, http.StatusOK, toggleResponse{Toggle: tg, Tree: ws.View()})
}

func (h *Handler) CreateExam(w http.ResponseWriter, r *http.Request) {
	var req examRequest
	if !h.bind(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		active := true
		req.IsActive = &active
	}
	rec, err := h.src.Workspace(w, r).CreateExam(r.Context(), req.toExam())
	if err != nil && !errors.Is(err, content.ErrMissingRecordID) {
		writeMutationError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, rec)
}

func (h *Handler) UpdateExam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "exam")
	if !ok {
		return
	}
	var req examRequest
	if !h.bind(w, r, &req) {
		return
	}
	// PUT replaces the record, so an omitted flag would deactivate the exam.
	if req.IsActive == nil {
		apiresp.WriteInvalid(w, r, "validation failed", map[string]string{"isActive": "required"})
		return
	}
	rec, err := h.src.Workspace(w, r).UpdateExam(r.Context(), id, req.toExam())
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, rec)
}

func (h *Handler) DeleteExam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "exam")
	if !ok {
		return
	}
	if err := h.src.Workspace(w, r).DeleteExam(r.Context(), id); err != nil {
		writeMutationError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !h.bind(w, r, &req) {
		return
	}
	rec, err := h.src.Workspace(w, r).CreateQuestion(r.Context(), req.toQuestion())
	if err != nil && !errors.Is(err, content.ErrMissingRecordID) {
		writeMutationError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, rec)
}

func (h *Handler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "question")
	if !ok {
		return
	}
	var req questionRequest
	if !h.bind(w, r, &req) {
		return
	}
	rec, err := h.src.Workspace(w, r).UpdateQuestion(r.Context(), id, req.toQuestion())
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, rec)
}

func (h *Handler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "question")
	if !ok {
		return
	}
	if err := h.src.Workspace(w, r).DeleteQuestion(r.Context(), id); err != nil {
		writeMutationError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) DuplicateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "question")
	if !ok {
		return
	}
	rec, err := h.src.Workspace(w, r).DuplicateQuestion(r.Context(), id)
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, rec)
}

func (h *Handler) CreateAnswerOption(w http.ResponseWriter, r *http.Request) {
	var req answerOptionRequest
	if !h.bind(w, r, &req) {
		return
	}
	rec, err := h.src.Workspace(w, r).CreateAnswerOption(r.Context(), req.toAnswerOption())
	if err != nil && !errors.Is(err, content.ErrMissingRecordID) {
		writeMutationError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, rec)
}

func (h *Handler) UpdateAnswerOption(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "answer option")
	if !ok {
		return
	}
	var req answerOptionRequest
	if !h.bind(w, r, &req) {
		return
	}
	rec, err := h.src.Workspace(w, r).UpdateAnswerOption(r.Context(), id, req.toAnswerOption())
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, rec)
}

func (h *Handler) DeleteAnswerOption(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "answer option")
	if !ok {
		return
	}
	if err := h.src.Workspace(w, r).DeleteAnswerOption(r.Context(), id); err != nil {
		writeMutationError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// bind decodes the body into dst and runs its validate tags.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
			return false
		}
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		apiresp.WriteInvalid(w, r, "validation failed", fields)
		return false
	}
	return true
}

// writeMutationError turns a failed mutation into the alert payload. Client
// errors reported by the content API pass through; anything else is a bad
// gateway.
func writeMutationError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *contentapi.APIError
	switch {
	case errors.Is(err, content.ErrQuestionNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 && !errors.Is(err, content.ErrDuplicateIncomplete):
		msg := apiErr.Message
		if msg == "" {
			msg = err.Error()
		}
		apiresp.WriteError(w, r, apiErr.Status, msg)
	default:
		apiresp.WriteError(w, r, http.StatusBadGateway, err.Error())
	}
}

func pathID(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid "+what+" id")
		return 0, false
	}
	return id, true
}

func (req examRequest) toExam() content.Exam {
	return content.Exam{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Duration:    req.Duration,
		Difficulty:  req.Difficulty,
		IsActive:    req.IsActive != nil && *req.IsActive,
	}
}

func (req questionRequest) toQuestion() content.Question {
	return content.Question{
		ExamID:       req.ExamID,
		Content:      req.Content,
		QuestionType: req.QuestionType,
		OrderIndex:   req.OrderIndex,
		Points:       req.Points,
	}
}

func (req answerOptionRequest) toAnswerOption() content.AnswerOption {
	return content.AnswerOption{
		QuestionID:  req.QuestionID,
		Content:     req.Content,
		IsCorrect:   req.IsCorrect,
		OptionLabel: req.OptionLabel,
	}
}
