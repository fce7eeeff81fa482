package entry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Filter narrows and pages a ListByAthlete query. A zero Start or End
// leaves that side of the window open.
type Filter struct {
	Limit  int
	Offset int
	Start  time.Time
	End    time.Time
}

// Repository defines the interface for secure entry persistence. It stores
// at-rest records; encoding and decoding of sensitive fields happens in
// the service layer above.
type Repository interface {
	// Insert stores a new record, generating its ID and audit timestamps.
	Insert(ctx context.Context, record *Record) error

	// Update replaces an existing record by ID and bumps UpdatedAt.
	// Returns ErrEntryNotFound if no record matches.
	Update(ctx context.Context, record *Record) error

	// GetByID retrieves a record by its UUID.
	// Returns ErrEntryNotFound if no record matches.
	GetByID(ctx context.Context, id string) (*Record, error)

	// ListByAthlete retrieves an athlete's records ordered by entry
	// timestamp, newest first.
	ListByAthlete(ctx context.Context, athleteID string, filter Filter) ([]*Record, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewInMemoryRepository creates a new in-memory entry repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

func copyRecord(record *Record) *Record {
	recordCopy := *record
	recordCopy.Security.AuditTrail = append([]AuditEvent(nil), record.Security.AuditTrail...)
	if record.VerifiedAt != nil {
		verifiedAt := *record.VerifiedAt
		recordCopy.VerifiedAt = &verifiedAt
	}
	return &recordCopy
}

// Insert stores a new record, generating its ID and audit timestamps.
func (r *InMemoryRepository) Insert(_ context.Context, record *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	r.records[record.ID] = copyRecord(record)
	return nil
}

// Update replaces an existing record by ID and bumps UpdatedAt.
func (r *InMemoryRepository) Update(_ context.Context, record *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[record.ID]
	if !ok {
		return ErrEntryNotFound
	}
	record.CreatedAt = existing.CreatedAt
	record.UpdatedAt = r.now().UTC()

	r.records[record.ID] = copyRecord(record)
	return nil
}

// GetByID retrieves a record by its UUID.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return copyRecord(record), nil
}

// ListByAthlete retrieves an athlete's records, newest entry timestamp first.
func (r *InMemoryRepository) ListByAthlete(_ context.Context, athleteID string, filter Filter) ([]*Record, error) {
	r.mu.RLock()
	var matched []*Record
	for _, record := range r.records {
		if record.AthleteID != athleteID {
			continue
		}
		if !filter.Start.IsZero() && record.Timestamp.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && record.Timestamp.After(filter.End) {
			continue
		}
		matched = append(matched, copyRecord(record))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			// Tie-break on ID for stable pagination.
			return matched[i].ID < matched[j].ID
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}
