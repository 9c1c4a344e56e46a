package content

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"examconsole/internal/app/observability"

	"golang.org/x/sync/errgroup"
)

// CollapsePolicy decides what collapsing a node does to its cached subtree.
type CollapsePolicy int

const (
	// RetainOnCollapse keeps children cached; only max age or a mutation of
	// the owning parent drops them.
	RetainOnCollapse CollapsePolicy = iota
	// DiscardOnCollapse clears the subtree caches when a node collapses.
	DiscardOnCollapse
)

func ParseCollapsePolicy(v string) (CollapsePolicy, error) {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "", "retain":
		return RetainOnCollapse, nil
	case "discard":
		return DiscardOnCollapse, nil
	default:
		return RetainOnCollapse, fmt.Errorf("unknown collapse policy %q", v)
	}
}

func (p CollapsePolicy) String() string {
	if p == DiscardOnCollapse {
		return "discard"
	}
	return "retain"
}

type ScreenDeps struct {
	Exams     ExamService
	Questions QuestionService
	Options   AnswerOptionService

	Logger         *log.Logger
	CollapsePolicy CollapsePolicy
	// CacheMaxAge expires cached question and option lists. Zero keeps them
	// until invalidated.
	CacheMaxAge time.Duration
	Clock       func() time.Time

	// DuplicateParallelism is passed to the mutation coordinator.
	DuplicateParallelism int
}

// Screen is the state of one exam-management session: the exam list, the
// lazily loaded questions and options, and which nodes are expanded.
type Screen struct {
	examCache     *EntityCache[Exam]
	questionCache *EntityCache[Question]
	optionCache   *EntityCache[AnswerOption]

	expandedExams     *ExpansionTracker
	expandedQuestions *ExpansionTracker

	exams     *LevelLoader[Exam]
	questions *LevelLoader[Question]
	options   *LevelLoader[AnswerOption]

	primer    *BulkPrimer
	mutations *MutationCoordinator

	policy CollapsePolicy
	logger *log.Logger
}

func NewScreen(d ScreenDeps) *Screen {
	if d.Logger == nil {
		d.Logger = log.New(io.Discard, "", 0)
	}
	cacheOpts := []CacheOption{WithMaxAge(d.CacheMaxAge)}
	if d.Clock != nil {
		cacheOpts = append(cacheOpts, WithClock(d.Clock))
	}

	s := &Screen{
		examCache:         NewEntityCache[Exam](),
		questionCache:     NewEntityCache[Question](cacheOpts...),
		optionCache:       NewEntityCache[AnswerOption](cacheOpts...),
		expandedExams:     NewExpansionTracker(),
		expandedQuestions: NewExpansionTracker(),
		policy:            d.CollapsePolicy,
		logger:            d.Logger,
	}

	s.exams = NewLevelLoader(LevelExams, s.examCache, func(ctx context.Context, _ int64) ([]Exam, error) {
		return d.Exams.List(ctx)
	}, d.Logger)
	s.questions = NewLevelLoader(LevelQuestions, s.questionCache, d.Questions.ListByParent, d.Logger)
	s.options = NewLevelLoader(LevelAnswerOptions, s.optionCache, d.Options.ListByParent, d.Logger)

	s.primer = NewBulkPrimer(d.Options, s.options, d.Logger)
	s.mutations = NewMutationCoordinator(CoordinatorDeps{
		Exams:             d.Exams,
		Questions:         d.Questions,
		Options:           d.Options,
		ExamLoader:        s.exams,
		QuestionLoader:    s.questions,
		OptionLoader:      s.options,
		ExpandedExams:     s.expandedExams,
		ExpandedQuestions: s.expandedQuestions,
		Logger:            d.Logger,

		DuplicateParallelism: d.DuplicateParallelism,
	})
	return s
}

func (s *Screen) Mutations() *MutationCoordinator {
	return s.mutations
}

// Mount loads the exam list and primes every answer option concurrently.
// Failures are logged; the screen stays usable with whatever loaded.
func (s *Screen) Mount(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		_, _ = s.exams.Load(ctx, RootKey)
		return nil
	})
	g.Go(func() error {
		_, _ = s.primer.PrimeAll(ctx)
		return nil
	})
	_ = g.Wait()
}

// ToggleExam expands or collapses an exam. Expanding loads its questions
// unless they are cached.
func (s *Screen) ToggleExam(ctx context.Context, examID int64) Toggle {
	t := s.expandedExams.Toggle(examID)
	if !t.Expanded {
		if s.policy == DiscardOnCollapse {
			s.discardExam(examID)
		}
		return t
	}

	if _, ok := s.questionCache.Get(examID); !ok {
		_, _ = s.questions.Load(ctx, examID)
	}
	s.expandedExams.Settle(examID)
	return t
}

// ToggleQuestion expands or collapses a question. Expanding loads its
// options unless they are cached, typically by the mount-time prime.
func (s *Screen) ToggleQuestion(ctx context.Context, questionID int64) Toggle {
	t := s.expandedQuestions.Toggle(questionID)
	if !t.Expanded {
		if s.policy == DiscardOnCollapse {
			s.options.Invalidate(questionID)
		}
		return t
	}

	if _, ok := s.optionCache.Get(questionID); !ok {
		_, _ = s.options.Load(ctx, questionID)
	}
	s.expandedQuestions.Settle(questionID)
	return t
}

func (s *Screen) discardExam(examID int64) {
	if questions, ok := s.questionCache.Get(examID); ok {
		for _, q := range questions {
			s.expandedQuestions.Collapse(q.ID)
			s.options.Invalidate(q.ID)
		}
	}
	s.questions.Invalidate(examID)
}

// Refresh reloads the exam list and every expanded subtree.
func (s *Screen) Refresh(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	g.Go(func() error {
		_, _ = s.exams.Reload(gctx, RootKey)
		return nil
	})
	for _, examID := range s.expandedExams.IDs() {
		examID := examID
		g.Go(func() error {
			_, _ = s.questions.Reload(gctx, examID)
			return nil
		})
	}
	for _, questionID := range s.expandedQuestions.IDs() {
		questionID := questionID
		g.Go(func() error {
			_, _ = s.options.Reload(gctx, questionID)
			return nil
		})
	}
	_ = g.Wait()

	observability.LogEvent(s.logger, "content_refreshed", map[string]any{
		"exams":     len(s.expandedExams.IDs()),
		"questions": len(s.expandedQuestions.IDs()),
	})
}

// CachedExams returns the cached exam list; ok is false until it loads.
func (s *Screen) CachedExams() ([]Exam, bool) {
	return s.examCache.Get(RootKey)
}

func (s *Screen) CachedQuestions(examID int64) ([]Question, bool) {
	return s.questionCache.Get(examID)
}

func (s *Screen) CachedAnswerOptions(questionID int64) ([]AnswerOption, bool) {
	return s.optionCache.Get(questionID)
}

// Question looks a question up among the cached question lists.
func (s *Screen) Question(id int64) (Question, bool) {
	q, _, ok := s.questionCache.Find(func(q Question) bool { return q.ID == id })
	return q, ok
}

// AnswerOption looks an option up among the cached option lists.
func (s *Screen) AnswerOption(id int64) (AnswerOption, bool) {
	o, _, ok := s.optionCache.Find(func(o AnswerOption) bool { return o.ID == id })
	return o, ok
}

type TreeView struct {
	Loaded bool       `json:"loaded"`
	Exams  []ExamNode `json:"exams"`
}

type ExamNode struct {
	Exam
	Expanded  bool           `json:"expanded"`
	Loaded    bool           `json:"loaded"`
	Questions []QuestionNode `json:"questions"`
}

type QuestionNode struct {
	Question
	Expanded bool           `json:"expanded"`
	Loaded   bool           `json:"loaded"`
	Options  []AnswerOption `json:"options"`
}

// View renders the current cache contents. Children are only materialized
// under expanded nodes; an unloaded expanded node renders with no children.
func (s *Screen) View() TreeView {
	exams, loaded := s.examCache.Get(RootKey)
	view := TreeView{Loaded: loaded, Exams: make([]ExamNode, 0, len(exams))}

	for _, e := range exams {
		node := ExamNode{Exam: e, Expanded: s.expandedExams.IsExpanded(e.ID), Questions: []QuestionNode{}}
		if node.Expanded {
			questions, ok := s.questionCache.Get(e.ID)
			node.Loaded = ok
			sort.SliceStable(questions, func(i, j int) bool { return questions[i].OrderIndex < questions[j].OrderIndex })
			for _, q := range questions {
				node.Questions = append(node.Questions, s.questionNode(q))
			}
		}
		view.Exams = append(view.Exams, node)
	}
	return view
}

func (s *Screen) questionNode(q Question) QuestionNode {
	node := QuestionNode{Question: q, Expanded: s.expandedQuestions.IsExpanded(q.ID), Options: []AnswerOption{}}
	if !node.Expanded {
		return node
	}
	options, ok := s.optionCache.Get(q.ID)
	node.Loaded = ok
	sort.SliceStable(options, func(i, j int) bool { return options[i].OptionLabel < options[j].OptionLabel })
	node.Options = append(node.Options, options...)
	return node
}
