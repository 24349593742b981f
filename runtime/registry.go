package runtime

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

var _ contract.IRegistry = (*Registry)(nil)

type Set map[string]struct{}

// RegistryStats is a point-in-time view of presence.
type RegistryStats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

// Registry maps each online user to its live connections.
// Only identifiers are stored, the transport owns the connections themselves.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]Set    // map user -> connection ids
	owners      map[string]string // map connection id -> user
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]Set),
		owners:      make(map[string]string),
	}
}

// Register binds a connection to a user.
// Registering the same pair twice is a no-op. A connection already bound to
// another user is rejected: it must disconnect before identifying again.
func (r *Registry) Register(userID, connectionID string) error {
	if userID == "" || connectionID == "" {
		return errors.ErrInvalidIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.owners[connectionID]; ok {
		if owner == userID {
			return nil
		}
		return fmt.Errorf("%w: %s", errors.ErrAlreadyBound, owner)
	}

	if _, ok := r.connections[userID]; !ok {
		r.connections[userID] = make(Set)
	}
	r.connections[userID][connectionID] = struct{}{}
	r.owners[connectionID] = userID
	return nil
}

// Unregister removes a connection and returns the user it was bound to.
// The user entry disappears with its last connection.
func (r *Registry) Unregister(connectionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[connectionID]
	if !ok {
		return "", false
	}
	delete(r.owners, connectionID)

	if set, exists := r.connections[userID]; exists {
		delete(set, connectionID)
		if len(set) == 0 {
			delete(r.connections, userID)
		}
	}
	return userID, true
}

func (r *Registry) IsReachable(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections[userID]) > 0
}

// ConnectionsFor returns a sorted copy of the user's connection ids.
// Callers may keep it after the registry changes.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.connections[userID]
	if !ok {
		return []string{}
	}
	return slices.Sorted(maps.Keys(set))
}

func (r *Registry) OwnerOf(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.owners[connectionID]
	return userID, ok
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RegistryStats{Users: len(r.connections), Connections: len(r.owners)}
}
