package content

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"

	"examconsole/internal/app/observability"

	"golang.org/x/sync/singleflight"
)

const (
	LevelExams         = "exams"
	LevelQuestions     = "questions"
	LevelAnswerOptions = "answer_options"
)

type FetchFunc[T any] func(ctx context.Context, parentID int64) ([]T, error)

// LevelLoader fetches the children of one parent and stores them in its
// cache. Concurrent loads for the same parent share one request, and a
// response is only stored if no newer request or invalidation for that
// parent started after it.
type LevelLoader[T any] struct {
	level  string
	cache  *EntityCache[T]
	fetch  FetchFunc[T]
	logger *log.Logger

	group singleflight.Group

	mu  sync.Mutex
	seq map[int64]uint64
}

func NewLevelLoader[T any](level string, cache *EntityCache[T], fetch FetchFunc[T], logger *log.Logger) *LevelLoader[T] {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &LevelLoader[T]{
		level:  level,
		cache:  cache,
		fetch:  fetch,
		logger: logger,
		seq:    make(map[int64]uint64),
	}
}

func (l *LevelLoader[T]) Level() string {
	return l.level
}

func (l *LevelLoader[T]) Cache() *EntityCache[T] {
	return l.cache
}

// Load returns the children of parentID, joining a pending request for the
// same parent when there is one.
func (l *LevelLoader[T]) Load(ctx context.Context, parentID int64) ([]T, error) {
	return l.do(ctx, parentID, false)
}

// Reload always issues a new request. Pending requests for the parent are
// left to finish, but their responses are discarded.
func (l *LevelLoader[T]) Reload(ctx context.Context, parentID int64) ([]T, error) {
	return l.do(ctx, parentID, true)
}

// Invalidate drops the cached entry and fences out responses of requests
// that started before the call.
func (l *LevelLoader[T]) Invalidate(parentID int64) {
	l.mu.Lock()
	l.seq[parentID]++
	l.group.Forget(l.flightKey(parentID))
	l.cache.Invalidate(parentID)
	l.mu.Unlock()
}

func (l *LevelLoader[T]) do(ctx context.Context, parentID int64, fresh bool) ([]T, error) {
	key := l.flightKey(parentID)
	if fresh {
		l.group.Forget(key)
	}

	// The shared request must not be cancelled by whichever caller happened
	// to start it; the transport timeout bounds it instead.
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (interface{}, error) {
		return l.fetchAndStore(fetchCtx, parentID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		items := res.Val.([]T)
		out := make([]T, len(items))
		copy(out, items)
		return out, nil
	}
}

func (l *LevelLoader[T]) fetchAndStore(ctx context.Context, parentID int64) ([]T, error) {
	n := l.begin(parentID)

	items, err := l.fetch(ctx, parentID)
	if err != nil {
		observability.LogEvent(l.logger, "content_load_failed", map[string]any{
			"level":     l.level,
			"parent_id": parentID,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("load %s for %d: %w", l.level, parentID, err)
	}
	if items == nil {
		items = []T{}
	}

	if !l.commit(parentID, n, items) {
		observability.LogEvent(l.logger, "content_load_stale", map[string]any{
			"level":     l.level,
			"parent_id": parentID,
			"seq":       n,
		})
	}
	return items, nil
}

func (l *LevelLoader[T]) begin(parentID int64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq[parentID]++
	return l.seq[parentID]
}

func (l *LevelLoader[T]) commit(parentID int64, n uint64, items []T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seq[parentID] != n {
		return false
	}
	l.cache.Set(parentID, items)
	return true
}

// Mark snapshots the request sequence so results fetched out of band can be
// stored with SeedIfCurrent without overwriting newer loads.
func (l *LevelLoader[T]) Mark() map[int64]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int64]uint64, len(l.seq))
	for k, v := range l.seq {
		out[k] = v
	}
	return out
}

// SeedIfCurrent stores items for parentID unless a request or invalidation
// for it started after mark was taken.
func (l *LevelLoader[T]) SeedIfCurrent(mark map[int64]uint64, parentID int64, items []T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seq[parentID] != mark[parentID] {
		return false
	}
	l.cache.Set(parentID, items)
	return true
}

func (l *LevelLoader[T]) flightKey(parentID int64) string {
	return l.level + ":" + strconv.FormatInt(parentID, 10)
}
