package permission

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

type failingRoleStore struct{ err error }

func (s failingRoleStore) RoleOf(context.Context, string) (Role, error) { return "", s.err }

type failingRelationshipStore struct{ err error }

func (s failingRelationshipStore) Linked(context.Context, string, string) (bool, error) {
	return false, s.err
}

func newTestResolver() (*Resolver, *InMemoryRoleStore, *InMemoryRelationshipStore) {
	roles := NewInMemoryRoleStore()
	rels := NewInMemoryRelationshipStore()
	return NewResolver(roles, rels, slog.Default()), roles, rels
}

func TestResolveRole(t *testing.T) {
	resolver, roles, _ := newTestResolver()
	roles.SetRole("coach-1", RoleCoach)
	roles.SetRole("admin-1", RoleAdmin)
	roles.SetRole("weird-1", Role("superuser"))

	tests := []struct {
		name   string
		userID string
		want   Role
	}{
		{"known coach", "coach-1", RoleCoach},
		{"known admin", "admin-1", RoleAdmin},
		{"no role record defaults to athlete", "unknown", RoleAthlete},
		{"unrecognised role defaults to athlete", "weird-1", RoleAthlete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolver.ResolveRole(context.Background(), tt.userID); got != tt.want {
				t.Errorf("ResolveRole(%s) = %q, want %q", tt.userID, got, tt.want)
			}
		})
	}
}

func TestResolveRole_StoreFailureDefaultsToAthlete(t *testing.T) {
	resolver := NewResolver(failingRoleStore{err: errors.New("db down")}, NewInMemoryRelationshipStore(), slog.Default())

	if got := resolver.ResolveRole(context.Background(), "anyone"); got != RoleAthlete {
		t.Errorf("ResolveRole() = %q, want athlete on lookup failure", got)
	}
}

func TestCanWrite(t *testing.T) {
	resolver, roles, rels := newTestResolver()
	roles.SetRole("coach-1", RoleCoach)
	roles.SetRole("coach-2", RoleCoach)
	roles.SetRole("admin-1", RoleAdmin)
	rels.Link("coach-1", "athlete-1")

	tests := []struct {
		name      string
		actorID   string
		athleteID string
		want      bool
	}{
		{"athlete writes own records", "athlete-1", "athlete-1", true},
		{"athlete cannot write another's records", "athlete-2", "athlete-1", false},
		{"admin writes anywhere", "admin-1", "athlete-1", true},
		{"assigned coach writes", "coach-1", "athlete-1", true},
		{"unassigned coach cannot write", "coach-2", "athlete-1", false},
		{"coach assignment is per athlete", "coach-1", "athlete-2", false},
		{"unknown actor cannot write", "stranger", "athlete-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.CanWrite(context.Background(), tt.actorID, tt.athleteID)
			if err != nil {
				t.Fatalf("CanWrite() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanWrite(%s, %s) = %v, want %v", tt.actorID, tt.athleteID, got, tt.want)
			}
		})
	}
}

func TestCanWrite_UnlinkRevokes(t *testing.T) {
	resolver, roles, rels := newTestResolver()
	roles.SetRole("coach-1", RoleCoach)
	rels.Link("coach-1", "athlete-1")
	rels.Unlink("coach-1", "athlete-1")

	got, err := resolver.CanWrite(context.Background(), "coach-1", "athlete-1")
	if err != nil {
		t.Fatalf("CanWrite() error = %v", err)
	}
	if got {
		t.Error("CanWrite() = true after assignment removed")
	}
}

func TestCanWrite_RelationshipStoreError(t *testing.T) {
	roles := NewInMemoryRoleStore()
	roles.SetRole("coach-1", RoleCoach)
	resolver := NewResolver(roles, failingRelationshipStore{err: errors.New("db down")}, slog.Default())

	got, err := resolver.CanWrite(context.Background(), "coach-1", "athlete-1")
	if err == nil {
		t.Fatal("CanWrite() error = nil, want store error surfaced")
	}
	if got {
		t.Error("CanWrite() = true alongside error")
	}
}

func TestCanRead(t *testing.T) {
	resolver, roles, _ := newTestResolver()
	roles.SetRole("coach-1", RoleCoach)
	roles.SetRole("admin-1", RoleAdmin)

	tests := []struct {
		name      string
		actorID   string
		athleteID string
		want      bool
	}{
		{"athlete reads own records", "athlete-1", "athlete-1", true},
		{"athlete cannot read another's records", "athlete-2", "athlete-1", false},
		{"coach reads without assignment", "coach-1", "athlete-1", true},
		{"admin reads anywhere", "admin-1", "athlete-1", true},
		{"unknown actor cannot read others", "stranger", "athlete-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.CanRead(context.Background(), tt.actorID, tt.athleteID)
			if err != nil {
				t.Fatalf("CanRead() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanRead(%s, %s) = %v, want %v", tt.actorID, tt.athleteID, got, tt.want)
			}
		})
	}
}
