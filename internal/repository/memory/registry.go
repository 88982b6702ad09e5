// Package memory implements the repository contracts with maps guarded by
// mutexes. Nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"booking/internal/domain/entities"
	"booking/internal/repository"
)

// Registry is an ordered, keyed in-memory store.
//
// Go Learning Note (Copy-on-Read):
// Values (not pointers) are stored and returned. A caller that gets a Book
// holds its own copy; mutating it changes nothing until Update writes it
// back. Readers therefore never observe a half-applied change, and the
// RWMutex only has to protect the map and the order slice, not the entities.
// Slices inside an entity (Book.Authors) are still shared, so callers treat
// them as read-only.
type Registry[T repository.Keyed] struct {
	name  string
	mu    sync.RWMutex
	items map[string]T
	order []string
}

// NewRegistry creates an empty registry; name only appears in errors.
func NewRegistry[T repository.Keyed](name string) *Registry[T] {
	return &Registry[T]{
		name:  name,
		items: make(map[string]T),
	}
}

// Register adds v. An existing key is rejected and the stored value kept.
func (r *Registry[T]) Register(ctx context.Context, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := v.Key()
	if key == "" {
		return errors.Wrapf(entities.ErrInvalidArgument, "%s: empty key", r.name)
	}
	if _, exists := r.items[key]; exists {
		return errors.Wrapf(entities.ErrDuplicateKey, "%s %s", r.name, key)
	}
	r.items[key] = v
	r.order = append(r.order, key)
	return nil
}

func (r *Registry[T]) Get(ctx context.Context, key string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, exists := r.items[key]
	if !exists {
		var zero T
		return zero, errors.Wrapf(entities.ErrNotFound, "%s %s", r.name, key)
	}
	return v, nil
}

// Update replaces the stored value with the same key.
func (r *Registry[T]) Update(ctx context.Context, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := v.Key()
	if _, exists := r.items[key]; !exists {
		return errors.Wrapf(entities.ErrNotFound, "%s %s", r.name, key)
	}
	r.items[key] = v
	return nil
}

func (r *Registry[T]) Remove(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[key]; !exists {
		return errors.Wrapf(entities.ErrNotFound, "%s %s", r.name, key)
	}
	delete(r.items, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns a snapshot in registration order. It is never nil.
func (r *Registry[T]) List(ctx context.Context) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.items[k])
	}
	return out
}

// Scan calls fn on a snapshot in registration order until fn returns false.
// fn runs without the lock held, so it may call back into the registry.
func (r *Registry[T]) Scan(ctx context.Context, fn func(T) bool) {
	for _, v := range r.List(ctx) {
		if !fn(v) {
			return
		}
	}
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// filter collects the values matching keep, in registration order.
func filter[T repository.Keyed](ctx context.Context, r *Registry[T], keep func(T) bool) []T {
	out := []T{}
	r.Scan(ctx, func(v T) bool {
		if keep(v) {
			out = append(out, v)
		}
		return true
	})
	return out
}

// first returns the first value matching keep.
func first[T repository.Keyed](ctx context.Context, r *Registry[T], keep func(T) bool) (T, bool) {
	var (
		found T
		ok    bool
	)
	r.Scan(ctx, func(v T) bool {
		if keep(v) {
			found, ok = v, true
			return false
		}
		return true
	})
	return found, ok
}
