package content

import (
	"context"
	"fmt"
	"io"
	"log"

	"examconsole/internal/app/observability"
)

// BulkPrimer loads every answer option in one request at mount time and
// fills the option cache grouped by question.
type BulkPrimer struct {
	svc    AnswerOptionService
	loader *LevelLoader[AnswerOption]
	logger *log.Logger
}

func NewBulkPrimer(svc AnswerOptionService, loader *LevelLoader[AnswerOption], logger *log.Logger) *BulkPrimer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &BulkPrimer{svc: svc, loader: loader, logger: logger}
}

// PrimeAll returns the number of questions primed. A failed request leaves
// the cache untouched. Questions loaded or invalidated while the bulk
// request was in flight keep their newer state.
func (p *BulkPrimer) PrimeAll(ctx context.Context) (int, error) {
	mark := p.loader.Mark()

	all, err := p.svc.List(ctx)
	if err != nil {
		observability.LogEvent(p.logger, "content_prime_failed", map[string]any{
			"level": p.loader.Level(),
			"error": err.Error(),
		})
		return 0, fmt.Errorf("prime answer options: %w", err)
	}

	groups := GroupByQuestion(all)
	primed := 0
	for questionID, options := range groups {
		if p.loader.SeedIfCurrent(mark, questionID, options) {
			primed++
		}
	}

	observability.LogEvent(p.logger, "content_primed", map[string]any{
		"level":     p.loader.Level(),
		"options":   len(all),
		"questions": primed,
	})
	return primed, nil
}

// GroupByQuestion partitions options by owning question, keeping input order
// within each group. Options without a question id are dropped.
func GroupByQuestion(options []AnswerOption) map[int64][]AnswerOption {
	out := make(map[int64][]AnswerOption)
	for _, opt := range options {
		if opt.QuestionID <= 0 {
			continue
		}
		out[opt.QuestionID] = append(out[opt.QuestionID], opt)
	}
	return out
}
