package entry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cleansport/logbook/internal/tracing"
)

// PostgresRepository implements Repository over the secure_logbook_entries
// table. Security metadata is stored as JSONB so the audit trail rides
// with its row.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a Postgres-backed entry repository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

const entryColumns = `
	id, athlete_id, supplement_id, amount, unit, ts, notes,
	verified, verified_at, verified_by, deleted,
	verification_data, security_metadata, created_at, updated_at`

// Insert stores a new record, generating its ID and audit timestamps.
func (r *PostgresRepository) Insert(ctx context.Context, record *Record) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "secure_logbook_entries", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	security, err := json.Marshal(record.Security)
	if err != nil {
		return fmt.Errorf("marshal security metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO secure_logbook_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		record.ID, record.AthleteID, record.SupplementID, record.Amount,
		string(record.Unit), record.Timestamp, nullString(record.Notes),
		record.Verified, record.VerifiedAt, nullString(record.VerifiedBy),
		record.Deleted, nullString(record.VerificationData), security,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// Update replaces an existing record by ID and bumps UpdatedAt.
func (r *PostgresRepository) Update(ctx context.Context, record *Record) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "secure_logbook_entries", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	record.UpdatedAt = time.Now().UTC()

	security, err := json.Marshal(record.Security)
	if err != nil {
		return fmt.Errorf("marshal security metadata: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE secure_logbook_entries
		SET athlete_id = $2, supplement_id = $3, amount = $4, unit = $5,
			ts = $6, notes = $7, verified = $8, verified_at = $9,
			verified_by = $10, deleted = $11, verification_data = $12,
			security_metadata = $13, updated_at = $14
		WHERE id = $1
	`,
		record.ID, record.AthleteID, record.SupplementID, record.Amount,
		string(record.Unit), record.Timestamp, nullString(record.Notes),
		record.Verified, record.VerifiedAt, nullString(record.VerifiedBy),
		record.Deleted, nullString(record.VerificationData), security,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// GetByID retrieves a record by its UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (rec *Record, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "secure_logbook_entries", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM secure_logbook_entries
		WHERE id = $1
	`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry by id: %w", err)
	}
	return record, nil
}

// ListByAthlete retrieves an athlete's records, newest entry timestamp first.
func (r *PostgresRepository) ListByAthlete(ctx context.Context, athleteID string, filter Filter) (records []*Record, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "secure_logbook_entries", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT ` + entryColumns + `
		FROM secure_logbook_entries
		WHERE athlete_id = $1`
	args := []any{athleteID}

	if !filter.Start.IsZero() {
		args = append(args, filter.Start)
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if !filter.End.IsZero() {
		args = append(args, filter.End)
		query += fmt.Sprintf(" AND ts <= $%d", len(args))
	}

	query += " ORDER BY ts DESC, id ASC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries by athlete: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return records, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record           Record
		unit             string
		notes            sql.NullString
		verifiedBy       sql.NullString
		verificationData sql.NullString
		security         []byte
	)
	err := row.Scan(
		&record.ID, &record.AthleteID, &record.SupplementID, &record.Amount,
		&unit, &record.Timestamp, &notes, &record.Verified,
		&record.VerifiedAt, &verifiedBy, &record.Deleted,
		&verificationData, &security, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Unit = Unit(unit)
	record.Notes = notes.String
	record.VerifiedBy = verifiedBy.String
	record.VerificationData = verificationData.String

	if len(security) > 0 {
		if err := json.Unmarshal(security, &record.Security); err != nil {
			return nil, fmt.Errorf("unmarshal security metadata: %w", err)
		}
	}

	return &record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
