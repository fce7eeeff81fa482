package permission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// PostgresRoleStore resolves roles from the user_roles table.
type PostgresRoleStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRoleStore creates a Postgres-backed role store.
func NewPostgresRoleStore(db *sql.DB, logger *slog.Logger) *PostgresRoleStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRoleStore{db: db, logger: logger}
}

// RoleOf returns the role recorded for userID.
func (s *PostgresRoleStore) RoleOf(ctx context.Context, userID string) (Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM user_roles WHERE user_id = $1
	`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRoleNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup role: %w", err)
	}
	return Role(role), nil
}

// PostgresRelationshipStore answers coach assignments from the
// coach_athlete_relationships table.
type PostgresRelationshipStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRelationshipStore creates a Postgres-backed relationship store.
func NewPostgresRelationshipStore(db *sql.DB, logger *slog.Logger) *PostgresRelationshipStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRelationshipStore{db: db, logger: logger}
}

// Linked reports whether a coach-athlete relationship record exists.
func (s *PostgresRelationshipStore) Linked(ctx context.Context, coachID, athleteID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM coach_athlete_relationships
			WHERE coach_id = $1 AND athlete_id = $2
		)
	`, coachID, athleteID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup coach assignment: %w", err)
	}
	return exists, nil
}
