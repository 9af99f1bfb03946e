// Package presence tracks which users currently hold a live connection.
package presence

import (
	"slices"
	"sync"

	"github.com/prudhvinik1/edgerelay/internal/models"
	"github.com/samber/lo"
)

// Registry maps each online user to the handle of their latest connection.
//
// At most one handle is held per user: registering again replaces the previous
// handle. Removal is keyed by handle and only succeeds while that handle is still
// the current one, so a late disconnect of a superseded connection cannot evict
// the user's newer connection.
//
// Registry is safe for concurrent use.
type Registry[H comparable] struct {
	mu       sync.RWMutex
	byUser   map[models.UserID]H
	byHandle map[H]models.UserID
}

func NewRegistry[H comparable]() *Registry[H] {
	return &Registry[H]{
		byUser:   make(map[models.UserID]H),
		byHandle: make(map[H]models.UserID),
	}
}

// Register binds id to handle, replacing any handle id held before. It returns
// the replaced handle, if any.
func (r *Registry[H]) Register(id models.UserID, handle H) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A handle belongs to one identity at a time.
	if owner, ok := r.byHandle[handle]; ok && owner != id {
		delete(r.byUser, owner)
	}

	previous, replaced := r.byUser[id]
	if replaced {
		delete(r.byHandle, previous)
	}

	r.byUser[id] = handle
	r.byHandle[handle] = id

	if replaced && previous == handle {
		var zero H
		return zero, false
	}
	return previous, replaced
}

// Unregister removes handle if it is still the current handle of its user and
// reports which user went offline. It is a no-op for unknown or superseded handles.
func (r *Registry[H]) Unregister(handle H) (models.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byHandle[handle]
	if !ok {
		return "", false
	}

	delete(r.byHandle, handle)
	if current, ok := r.byUser[id]; ok && current == handle {
		delete(r.byUser, id)
	}
	return id, true
}

// Lookup returns the current handle for id.
func (r *Registry[H]) Lookup(id models.UserID) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.byUser[id]
	return handle, ok
}

// Snapshot returns every online identity in ascending order.
func (r *Registry[H]) Snapshot() []models.UserID {
	r.mu.RLock()
	ids := lo.Keys(r.byUser)
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
