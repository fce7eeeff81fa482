package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrSupplementNotFound is returned when no supplement matches a barcode.
var ErrSupplementNotFound = errors.New("supplement not found")

// SupplementSource resolves descriptive metadata for a barcode. It doubles
// as the best-effort fallback when every authority query fails.
type SupplementSource interface {
	// LookupByBarcode returns the supplement registered under barcode and
	// any certifications known for it locally.
	// Returns ErrSupplementNotFound when the barcode is unknown.
	LookupByBarcode(ctx context.Context, barcode string) (*Supplement, []Certification, error)
}

// InMemorySupplementSource is an in-memory SupplementSource.
// Thread-safe via RWMutex.
type InMemorySupplementSource struct {
	mu             sync.RWMutex
	supplements    map[string]Supplement
	certifications map[string][]Certification
}

// NewInMemorySupplementSource creates an empty in-memory supplement source.
func NewInMemorySupplementSource() *InMemorySupplementSource {
	return &InMemorySupplementSource{
		supplements:    make(map[string]Supplement),
		certifications: make(map[string][]Certification),
	}
}

// Add registers a supplement and its known certifications under barcode.
func (s *InMemorySupplementSource) Add(barcode string, supplement Supplement, certs []Certification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supplements[barcode] = supplement
	s.certifications[barcode] = append([]Certification(nil), certs...)
}

// LookupByBarcode returns the supplement registered under barcode.
func (s *InMemorySupplementSource) LookupByBarcode(_ context.Context, barcode string) (*Supplement, []Certification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplement, ok := s.supplements[barcode]
	if !ok {
		return nil, nil, ErrSupplementNotFound
	}
	supplementCopy := supplement
	certs := append([]Certification(nil), s.certifications[barcode]...)
	return &supplementCopy, certs, nil
}

// PostgresSupplementSource resolves supplements from the supplements and
// supplement_certifications tables.
type PostgresSupplementSource struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSupplementSource creates a Postgres-backed supplement source.
func NewPostgresSupplementSource(db *sql.DB, logger *slog.Logger) *PostgresSupplementSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSupplementSource{db: db, logger: logger}
}

// LookupByBarcode returns the supplement registered under barcode.
func (s *PostgresSupplementSource) LookupByBarcode(ctx context.Context, barcode string) (*Supplement, []Certification, error) {
	var (
		id         string
		supplement Supplement
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, brand, COALESCE(description, '')
		FROM supplements
		WHERE barcode = $1
	`, barcode).Scan(&id, &supplement.Name, &supplement.Brand, &supplement.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrSupplementNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup supplement by barcode: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, issuer, type, valid_until
		FROM supplement_certifications
		WHERE supplement_id = $1
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list supplement certifications: %w", err)
	}
	defer rows.Close()

	var certs []Certification
	for rows.Next() {
		var cert Certification
		if err := rows.Scan(&cert.ID, &cert.Name, &cert.Issuer, &cert.Type, &cert.ValidUntil); err != nil {
			return nil, nil, fmt.Errorf("scan supplement certification: %w", err)
		}
		certs = append(certs, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate supplement certifications: %w", err)
	}

	return &supplement, certs, nil
}
