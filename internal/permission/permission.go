// Package permission decides whether an actor may read or write an
// athlete's logbook records based on role and coach assignment.
package permission

import (
	"context"
	"errors"
	"log/slog"
)

// Role is the closed set of user roles. Permission branching over roles
// is exhaustive; anything unrecognised is treated as an athlete.
type Role string

// User roles, least privileged first.
const (
	RoleAthlete Role = "athlete"
	RoleCoach   Role = "coach"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a recognised role.
func (r Role) Valid() bool {
	switch r {
	case RoleAthlete, RoleCoach, RoleAdmin:
		return true
	}
	return false
}

// ErrRoleNotFound is returned by a RoleStore when a user has no role record.
var ErrRoleNotFound = errors.New("role not found")

// RoleStore resolves a user's role.
type RoleStore interface {
	// RoleOf returns the role recorded for userID.
	// Returns ErrRoleNotFound when the user has no role record.
	RoleOf(ctx context.Context, userID string) (Role, error)
}

// RelationshipStore answers whether a coach is assigned to an athlete.
type RelationshipStore interface {
	// Linked reports whether a coach-athlete relationship record exists.
	Linked(ctx context.Context, coachID, athleteID string) (bool, error)
}

// Resolver applies the access rules. Write access requires an explicit
// assignment for coaches; read access is deliberately more permissive so
// coaches and admins can review any athlete's data.
type Resolver struct {
	roles         RoleStore
	relationships RelationshipStore
	logger        *slog.Logger
}

// NewResolver creates a permission resolver.
func NewResolver(roles RoleStore, relationships RelationshipStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{roles: roles, relationships: relationships, logger: logger}
}

// ResolveRole returns the actor's role, defaulting to athlete when no role
// record exists or the lookup fails. Athlete is the least privileged role,
// so the default fails closed.
func (r *Resolver) ResolveRole(ctx context.Context, userID string) Role {
	role, err := r.roles.RoleOf(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrRoleNotFound) {
			r.logger.Warn("role lookup failed, defaulting to athlete", "user_id", userID, "error", err)
		}
		return RoleAthlete
	}
	if !role.Valid() {
		return RoleAthlete
	}
	return role
}

// CanWrite reports whether actorID may create or modify entries belonging
// to athleteID. Athletes own their records; admins may write anywhere;
// coaches only where an assignment record links them to the athlete.
func (r *Resolver) CanWrite(ctx context.Context, actorID, athleteID string) (bool, error) {
	if actorID == athleteID {
		return true, nil
	}

	switch r.ResolveRole(ctx, actorID) {
	case RoleAdmin:
		return true, nil
	case RoleCoach:
		linked, err := r.relationships.Linked(ctx, actorID, athleteID)
		if err != nil {
			return false, err
		}
		return linked, nil
	default:
		return false, nil
	}
}

// CanRead reports whether actorID may view entries belonging to athleteID.
// Coaches and admins read any athlete's data without an assignment record.
func (r *Resolver) CanRead(ctx context.Context, actorID, athleteID string) (bool, error) {
	if actorID == athleteID {
		return true, nil
	}

	switch r.ResolveRole(ctx, actorID) {
	case RoleAdmin, RoleCoach:
		return true, nil
	default:
		return false, nil
	}
}
