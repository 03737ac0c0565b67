package engine

import (
	"sync"

	"github.com/google/uuid"
)

// Registry enforces the "at most one active session per user" invariant.
// Register and Release are atomic check-and-set operations, so two
// concurrent StartSession calls for the same user cannot both succeed.
type Registry struct {
	mu     sync.Mutex
	active map[int]uuid.UUID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[int]uuid.UUID)}
}

// Register claims the active slot for userID. Returns
// ErrSessionAlreadyActive if a different session already holds it.
func (r *Registry) Register(userID int, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.active[userID]; ok && existing != sessionID {
		return ErrSessionAlreadyActive
	}
	r.active[userID] = sessionID
	return nil
}

// Release frees the active slot, but only if it is still held by sessionID.
func (r *Registry) Release(userID int, sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.active[userID]; ok && existing == sessionID {
		delete(r.active, userID)
	}
}

// Active returns the session currently holding the user's active slot.
func (r *Registry) Active(userID int) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.active[userID]
	return id, ok
}
