// Package handle provides an arena of values addressed by opaque integer IDs.
//
// It lets a value cross an API boundary that only carries an integer
// (a native engine's connection reference) without exposing its address.
// Reclaiming a value is a single Remove call, which succeeds at most once
// per ID.
package handle

import (
	"errors"
	"sync"
)

// ErrUnknownID is returned when an ID is not (or no longer) registered.
var ErrUnknownID = errors.New("handle: unknown id")

// ID identifies a registered value. Zero is never issued.
type ID uint64

// Registry maps IDs to values. It is safe for concurrent use.
type Registry[T any] struct {
	mu     sync.Mutex
	next   ID
	values map[ID]T
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{values: make(map[ID]T)}
}

// Insert stores v and returns its new ID. IDs are never reused.
func (r *Registry[T]) Insert(v T) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.values[r.next] = v
	return r.next
}

// Get returns the value for id.
func (r *Registry[T]) Get(id ID) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.values[id]
	return v, ok
}

// Remove deletes id and returns its value. Only the first Remove for an ID
// succeeds; later calls return ErrUnknownID.
func (r *Registry[T]) Remove(id ID) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.values[id]
	if !ok {
		var zero T
		return zero, ErrUnknownID
	}
	delete(r.values, id)
	return v, nil
}

// Len returns the number of registered values.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.values)
}
