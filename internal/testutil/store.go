package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// FilterFunc decides whether item matches filter
type FilterFunc[T any] func(ctx context.Context, item T, filter interface{}) bool

// SortFunc orders two items, the way an ORDER BY clause would
type SortFunc[T any] func(i, j T) bool

// InMemoryStore is the map behind every fake repository. It returns the same
// marked errors as the postgres repositories, so services cannot tell the
// two apart.
type InMemoryStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewInMemoryStore[T any]() *InMemoryStore[T] {
	return &InMemoryStore[T]{items: map[string]T{}}
}

// Create fails with ErrAlreadyExists like a unique violation would
func (s *InMemoryStore[T]) Create(_ context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; ok {
		return alreadyExists(id)
	}
	s.items[id] = item
	return nil
}

func (s *InMemoryStore[T]) Get(_ context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return item, notFound(id)
	}
	return item, nil
}

// List matches, orders and then pages the items. Paging only applies when
// filter is a types.BaseFilter.
func (s *InMemoryStore[T]) List(ctx context.Context, filter interface{}, filterFn FilterFunc[T], sortFn SortFunc[T]) ([]T, error) {
	s.mu.RLock()
	matched := s.match(ctx, filter, filterFn)
	s.mu.RUnlock()

	if sortFn != nil {
		sort.SliceStable(matched, func(i, j int) bool { return sortFn(matched[i], matched[j]) })
	}

	page, ok := filter.(types.BaseFilter)
	if !ok || page.IsUnlimited() {
		return matched, nil
	}
	return lo.Slice(matched, page.GetOffset(), page.GetOffset()+page.GetLimit()), nil
}

// Count ignores paging, like SELECT COUNT(*)
func (s *InMemoryStore[T]) Count(ctx context.Context, filter interface{}, filterFn FilterFunc[T]) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.match(ctx, filter, filterFn)), nil
}

// Update replaces an existing item, it never inserts
func (s *InMemoryStore[T]) Update(_ context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return notFound(id)
	}
	s.items[id] = item
	return nil
}

func (s *InMemoryStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = map[string]T{}
}

// match must be called with the lock held
func (s *InMemoryStore[T]) match(ctx context.Context, filter interface{}, filterFn FilterFunc[T]) []T {
	return lo.Filter(lo.Values(s.items), func(item T, _ int) bool {
		return filterFn == nil || filterFn(ctx, item, filter)
	})
}

func notFound(id string) error {
	return ierr.NewErrorf("item %s not found", id).
		WithHint("Resource not found").
		Mark(ierr.ErrNotFound)
}

func alreadyExists(id string) error {
	return ierr.NewErrorf("item %s already exists", id).
		WithHint("Resource already exists").
		Mark(ierr.ErrAlreadyExists)
}

// clone copies a struct so callers never share a pointer with the store,
// the way rows read from postgres never alias each other
func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
