package permission

import (
	"context"
	"sync"
)

// InMemoryRoleStore is an in-memory RoleStore. Thread-safe via RWMutex.
type InMemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]Role
}

// NewInMemoryRoleStore creates an empty in-memory role store.
func NewInMemoryRoleStore() *InMemoryRoleStore {
	return &InMemoryRoleStore{roles: make(map[string]Role)}
}

// SetRole records a user's role.
func (s *InMemoryRoleStore) SetRole(userID string, role Role) {
	s.mu.Lock()
	s.roles[userID] = role
	s.mu.Unlock()
}

// RoleOf returns the role recorded for userID.
func (s *InMemoryRoleStore) RoleOf(_ context.Context, userID string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[userID]
	if !ok {
		return "", ErrRoleNotFound
	}
	return role, nil
}

// InMemoryRelationshipStore is an in-memory RelationshipStore.
// Thread-safe via RWMutex.
type InMemoryRelationshipStore struct {
	mu    sync.RWMutex
	links map[string]map[string]bool
}

// NewInMemoryRelationshipStore creates an empty in-memory relationship store.
func NewInMemoryRelationshipStore() *InMemoryRelationshipStore {
	return &InMemoryRelationshipStore{links: make(map[string]map[string]bool)}
}

// Link records a coach-athlete assignment.
func (s *InMemoryRelationshipStore) Link(coachID, athleteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.links[coachID] == nil {
		s.links[coachID] = make(map[string]bool)
	}
	s.links[coachID][athleteID] = true
}

// Unlink removes a coach-athlete assignment.
func (s *InMemoryRelationshipStore) Unlink(coachID, athleteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.links[coachID] != nil {
		delete(s.links[coachID], athleteID)
	}
}

// Linked reports whether a coach-athlete relationship record exists.
func (s *InMemoryRelationshipStore) Linked(_ context.Context, coachID, athleteID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.links[coachID][athleteID], nil
}
