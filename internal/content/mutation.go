package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"examconsole/internal/app/observability"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrMissingRecordID is returned by services when the backend confirmed a
	// create but no id could be read from the response.
	ErrMissingRecordID     = errors.New("created record has no id")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrDuplicateIncomplete = errors.New("question duplication incomplete")
)

const defaultDuplicateParallelism = 4

// MutationCoordinator runs create/update/delete against the backend and, once
// the backend confirms, invalidates and reloads the cache entries of the
// owning parents. A failed mutation leaves every cache untouched.
type MutationCoordinator struct {
	exams     ExamService
	questions QuestionService
	options   AnswerOptionService

	examLoader     *LevelLoader[Exam]
	questionLoader *LevelLoader[Question]
	optionLoader   *LevelLoader[AnswerOption]

	expandedExams     *ExpansionTracker
	expandedQuestions *ExpansionTracker

	logger      *log.Logger
	parallelism int
}

type CoordinatorDeps struct {
	Exams     ExamService
	Questions QuestionService
	Options   AnswerOptionService

	ExamLoader     *LevelLoader[Exam]
	QuestionLoader *LevelLoader[Question]
	OptionLoader   *LevelLoader[AnswerOption]

	ExpandedExams     *ExpansionTracker
	ExpandedQuestions *ExpansionTracker

	Logger *log.Logger
	// DuplicateParallelism bounds concurrent option creates while
	// duplicating a question.
	DuplicateParallelism int
}

func NewMutationCoordinator(d CoordinatorDeps) *MutationCoordinator {
	if d.Logger == nil {
		d.Logger = log.New(io.Discard, "", 0)
	}
	if d.DuplicateParallelism <= 0 {
		d.DuplicateParallelism = defaultDuplicateParallelism
	}
	if d.ExpandedExams == nil {
		d.ExpandedExams = NewExpansionTracker()
	}
	if d.ExpandedQuestions == nil {
		d.ExpandedQuestions = NewExpansionTracker()
	}
	return &MutationCoordinator{
		exams:             d.Exams,
		questions:         d.Questions,
		options:           d.Options,
		examLoader:        d.ExamLoader,
		questionLoader:    d.QuestionLoader,
		optionLoader:      d.OptionLoader,
		expandedExams:     d.ExpandedExams,
		expandedQuestions: d.ExpandedQuestions,
		logger:            d.Logger,
		parallelism:       d.DuplicateParallelism,
	}
}

func (m *MutationCoordinator) CreateExam(ctx context.Context, payload Exam) (*Exam, error) {
	rec, err := m.exams.Create(ctx, payload)
	if err != nil && !errors.Is(err, ErrMissingRecordID) {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	m.reloadExams(ctx)
	return rec, err
}

func (m *MutationCoordinator) UpdateExam(ctx context.Context, id int64, payload Exam) (*Exam, error) {
	rec, err := m.exams.Update(ctx, id, payload)
	if err != nil {
		return nil, fmt.Errorf("update exam %d: %w", id, err)
	}
	m.reloadExams(ctx)
	return rec, nil
}

// DeleteExam also drops the exam's subtree: its question list and the
// option lists of its cached questions.
func (m *MutationCoordinator) DeleteExam(ctx context.Context, id int64) error {
	if err := m.exams.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete exam %d: %w", id, err)
	}

	if questions, ok := m.questionLoader.Cache().Get(id); ok {
		for _, q := range questions {
			m.optionLoader.Invalidate(q.ID)
			m.expandedQuestions.Collapse(q.ID)
		}
	}
	m.questionLoader.Invalidate(id)
	m.expandedExams.Collapse(id)

	m.reloadExams(ctx)
	return nil
}

func (m *MutationCoordinator) CreateQuestion(ctx context.Context, payload Question) (*Question, error) {
	rec, err := m.questions.Create(ctx, payload)
	if err != nil && !errors.Is(err, ErrMissingRecordID) {
		return nil, fmt.Errorf("create question: %w", err)
	}
	owner := payload.ExamID
	if rec != nil && rec.ExamID > 0 {
		owner = rec.ExamID
	}
	m.reloadQuestions(ctx, owner)
	return rec, err
}

// UpdateQuestion reloads the new owning exam and, when the question moved,
// the previous one.
func (m *MutationCoordinator) UpdateQuestion(ctx context.Context, id int64, payload Question) (*Question, error) {
	_, prevExam, known := m.findQuestion(id)

	rec, err := m.questions.Update(ctx, id, payload)
	if err != nil {
		return nil, fmt.Errorf("update question %d: %w", id, err)
	}

	owner := payload.ExamID
	if rec != nil && rec.ExamID > 0 {
		owner = rec.ExamID
	}
	for _, examID := range owners(owner, knownKey(prevExam, known)) {
		m.reloadQuestions(ctx, examID)
	}
	return rec, nil
}

func (m *MutationCoordinator) DeleteQuestion(ctx context.Context, id int64) error {
	_, examID, known := m.findQuestion(id)

	if err := m.questions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete question %d: %w", id, err)
	}

	m.optionLoader.Invalidate(id)
	m.expandedQuestions.Collapse(id)
	if known {
		m.reloadQuestions(ctx, examID)
	}
	return nil
}

func (m *MutationCoordinator) CreateAnswerOption(ctx context.Context, payload AnswerOption) (*AnswerOption, error) {
	rec, err := m.options.Create(ctx, payload)
	if err != nil && !errors.Is(err, ErrMissingRecordID) {
		return nil, fmt.Errorf("create answer option: %w", err)
	}
	owner := payload.QuestionID
	if rec != nil && rec.QuestionID > 0 {
		owner = rec.QuestionID
	}
	m.reloadOptions(ctx, owner)
	return rec, err
}

func (m *MutationCoordinator) UpdateAnswerOption(ctx context.Context, id int64, payload AnswerOption) (*AnswerOption, error) {
	_, prevQuestion, known := m.findAnswerOption(id)

	rec, err := m.options.Update(ctx, id, payload)
	if err != nil {
		return nil, fmt.Errorf("update answer option %d: %w", id, err)
	}

	owner := payload.QuestionID
	if rec != nil && rec.QuestionID > 0 {
		owner = rec.QuestionID
	}
	for _, questionID := range owners(owner, knownKey(prevQuestion, known)) {
		m.reloadOptions(ctx, questionID)
	}
	return rec, nil
}

func (m *MutationCoordinator) DeleteAnswerOption(ctx context.Context, id int64) error {
	_, questionID, known := m.findAnswerOption(id)

	if err := m.options.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete answer option %d: %w", id, err)
	}
	if known {
		m.reloadOptions(ctx, questionID)
	}
	return nil
}

// DuplicateQuestion copies a cached question right after the original and
// recreates its answer options on the copy. If any option create fails the
// options created so far and the copy are deleted again, and the returned
// error wraps ErrDuplicateIncomplete.
func (m *MutationCoordinator) DuplicateQuestion(ctx context.Context, id int64) (*Question, error) {
	src, _, ok := m.findQuestion(id)
	if !ok {
		return nil, fmt.Errorf("duplicate question %d: %w", id, ErrQuestionNotFound)
	}

	opts, ok := m.optionLoader.Cache().Get(id)
	if !ok {
		var err error
		opts, err = m.optionLoader.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("duplicate question %d: read options: %w", id, err)
		}
	}

	draft := src
	draft.ID = 0
	draft.OrderIndex = src.OrderIndex + 1

	created, err := m.questions.Create(ctx, draft)
	if err != nil {
		if errors.Is(err, ErrMissingRecordID) {
			// The copy exists but cannot be addressed, so options cannot be
			// attached and there is nothing to roll back by id.
			m.reloadQuestions(ctx, src.ExamID)
			return nil, fmt.Errorf("duplicate question %d: %w: %w", id, ErrDuplicateIncomplete, err)
		}
		return nil, fmt.Errorf("duplicate question %d: %w", id, err)
	}
	if created == nil || created.ID <= 0 {
		m.reloadQuestions(ctx, src.ExamID)
		return nil, fmt.Errorf("duplicate question %d: %w: %w", id, ErrDuplicateIncomplete, ErrMissingRecordID)
	}

	createdOptions, err := m.recreateOptions(ctx, created.ID, opts)
	if err != nil {
		cleanupErr := m.rollbackDuplicate(context.WithoutCancel(ctx), created.ID, createdOptions)
		if cleanupErr != nil {
			// Leftovers are visible on the backend now; show them.
			m.reloadQuestions(ctx, src.ExamID)
			return nil, fmt.Errorf("duplicate question %d: %w: %w (cleanup: %v)", id, ErrDuplicateIncomplete, err, cleanupErr)
		}
		return nil, fmt.Errorf("duplicate question %d: %w: %w", id, ErrDuplicateIncomplete, err)
	}

	m.reloadQuestions(ctx, src.ExamID)
	m.reloadOptions(ctx, created.ID)
	return created, nil
}

func (m *MutationCoordinator) recreateOptions(ctx context.Context, questionID int64, opts []AnswerOption) ([]int64, error) {
	var (
		mu      sync.Mutex
		created []int64
	)
	// The first failure cancels gctx so queued creates are skipped. Creates
	// already sent keep ctx: a cancelled POST may still land upstream with an
	// id the rollback never learns.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)

	for _, opt := range opts {
		opt := opt
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			opt.ID = 0
			opt.QuestionID = questionID
			rec, err := m.options.Create(ctx, opt)
			if err != nil {
				return fmt.Errorf("create option %q: %w", opt.OptionLabel, err)
			}
			mu.Lock()
			created = append(created, rec.ID)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return created, err
}

func (m *MutationCoordinator) rollbackDuplicate(ctx context.Context, questionID int64, optionIDs []int64) error {
	var errs []error
	for _, optID := range optionIDs {
		if err := m.options.Delete(ctx, optID); err != nil {
			errs = append(errs, fmt.Errorf("delete option %d: %w", optID, err))
		}
	}
	if err := m.questions.Delete(ctx, questionID); err != nil {
		errs = append(errs, fmt.Errorf("delete question %d: %w", questionID, err))
	}

	observability.LogEvent(m.logger, "content_duplicate_rollback", map[string]any{
		"question_id": questionID,
		"options":     len(optionIDs),
		"failures":    len(errs),
	})
	return errors.Join(errs...)
}

// refreshLevel invalidates the parent entry and loads it again. A failed reload
// is logged and leaves the entry absent so the next expansion refetches.
func refreshLevel[T any](ctx context.Context, l *LevelLoader[T], logger *log.Logger, parentID int64) {
	l.Invalidate(parentID)
	if _, err := l.Reload(ctx, parentID); err != nil {
		observability.LogEvent(logger, "content_reload_failed", map[string]any{
			"level":     l.Level(),
			"parent_id": parentID,
			"error":     err.Error(),
		})
	}
}

func (m *MutationCoordinator) reloadExams(ctx context.Context) {
	refreshLevel(ctx, m.examLoader, m.logger, RootKey)
}

func (m *MutationCoordinator) reloadQuestions(ctx context.Context, examID int64) {
	if examID > 0 {
		refreshLevel(ctx, m.questionLoader, m.logger, examID)
	}
}

func (m *MutationCoordinator) reloadOptions(ctx context.Context, questionID int64) {
	if questionID > 0 {
		refreshLevel(ctx, m.optionLoader, m.logger, questionID)
	}
}

func (m *MutationCoordinator) findQuestion(id int64) (Question, int64, bool) {
	return m.questionLoader.Cache().Find(func(q Question) bool { return q.ID == id })
}

func (m *MutationCoordinator) findAnswerOption(id int64) (AnswerOption, int64, bool) {
	return m.optionLoader.Cache().Find(func(o AnswerOption) bool { return o.ID == id })
}

func knownKey(key int64, known bool) int64 {
	if !known {
		return 0
	}
	return key
}

// owners returns the distinct positive keys in order.
func owners(keys ...int64) []int64 {
	out := make([]int64, 0, len(keys))
	for _, k := range keys {
		if k <= 0 {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen == k {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, k)
		}
	}
	return out
}
