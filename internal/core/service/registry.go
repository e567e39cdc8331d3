package service

import (
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// Registry is the process-local bidirectional map between users and their
// live connection handle. Both directions change under one lock, so readers
// never see half of a mapping.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[domain.UserID]domain.ConnectionHandle
	byHandle map[domain.ConnectionHandle]domain.UserID
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[domain.UserID]domain.ConnectionHandle),
		byHandle: make(map[domain.ConnectionHandle]domain.UserID),
	}
}

// Register maps user to handle in both directions. If the user already had a
// different handle, that handle is dropped from the inverse map and returned.
// Register never touches the old connection itself.
func (r *Registry) Register(user domain.UserID, handle domain.ConnectionHandle) (domain.ConnectionHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// a handle belongs to exactly one user
	if owner, ok := r.byHandle[handle]; ok && owner != user {
		delete(r.byUser, owner)
	}

	prev, had := r.byUser[user]
	if had && prev != handle {
		delete(r.byHandle, prev)
	}

	r.byUser[user] = handle
	r.byHandle[handle] = user

	if had && prev != handle {
		return prev, true
	}
	return domain.ConnectionHandle{}, false
}

func (r *Registry) ResolveHandle(user domain.UserID) (domain.ConnectionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byUser[user]
	return h, ok
}

func (r *Registry) ResolveUser(handle domain.ConnectionHandle) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byHandle[handle]
	return u, ok
}

// Remove deletes the mapping owned by handle. Unknown handles are ignored so
// duplicate or late disconnects are harmless. It reports the user that owned
// the handle.
func (r *Registry) Remove(handle domain.ConnectionHandle) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byHandle[handle]
	if !ok {
		return "", false
	}
	delete(r.byHandle, handle)
	if r.byUser[user] == handle {
		delete(r.byUser, user)
	}
	return user, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *Registry) Users() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]domain.UserID, 0, len(r.byUser))
	for u := range r.byUser {
		users = append(users, u)
	}
	return users
}
