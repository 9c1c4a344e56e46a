package content

import (
	"context"
	"errors"
	"sync"
)

type fakeService[T any] struct {
	mu    sync.Mutex
	calls map[string]int

	listFn         func(ctx context.Context) ([]T, error)
	listByParentFn func(ctx context.Context, parentID int64) ([]T, error)
	createFn       func(ctx context.Context, payload T) (*T, error)
	updateFn       func(ctx context.Context, id int64, payload T) (*T, error)
	deleteFn       func(ctx context.Context, id int64) error
}

func (f *fakeService[T]) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeService[T]) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeService[T]) List(ctx context.Context) ([]T, error) {
	f.count("list")
	if f.listFn == nil {
		return nil, errors.New("not implemented")
	}
	return f.listFn(ctx)
}

func (f *fakeService[T]) ListByParent(ctx context.Context, parentID int64) ([]T, error) {
	f.count("listByParent")
	if f.listByParentFn == nil {
		return nil, errors.New("not implemented")
	}
	return f.listByParentFn(ctx, parentID)
}

func (f *fakeService[T]) Create(ctx context.Context, payload T) (*T, error) {
	f.count("create")
	if f.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return f.createFn(ctx, payload)
}

func (f *fakeService[T]) Update(ctx context.Context, id int64, payload T) (*T, error) {
	f.count("update")
	if f.updateFn == nil {
		return nil, errors.New("not implemented")
	}
	return f.updateFn(ctx, id, payload)
}

func (f *fakeService[T]) Delete(ctx context.Context, id int64) error {
	f.count("delete")
	if f.deleteFn == nil {
		return errors.New("not implemented")
	}
	return f.deleteFn(ctx, id)
}
