// Package logbook implements the secure entry store: permissioned,
// audited CRUD over supplement logbook entries with optional barcode
// verification.
package logbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cleansport/logbook/internal/entry"
	"github.com/cleansport/logbook/internal/identity"
	"github.com/cleansport/logbook/internal/middleware"
	"github.com/cleansport/logbook/internal/permission"
	"github.com/cleansport/logbook/internal/verification"
)

// Common errors for logbook operations.
var (
	// ErrAuthRequired is returned when no authenticated actor can be resolved.
	ErrAuthRequired = errors.New("authentication required")

	// ErrPermissionDenied is returned when the resolved actor lacks
	// read or write rights for the target athlete's records.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotAffirmed is returned by Verify when the authorities answered
	// but none affirmed the barcode, so the entry stays unverified.
	ErrNotAffirmed = errors.New("no certification authority affirmed the barcode")
)

// BarcodeVerifier is the slice of the verification package the service
// needs. Narrowed to an interface so tests can stub it.
type BarcodeVerifier interface {
	Verify(ctx context.Context, barcode string) (verification.Result, error)
}

// CreateInput carries the caller-supplied fields of a new entry.
type CreateInput struct {
	AthleteID    string     `json:"athlete_id"`
	SupplementID string     `json:"supplement_id"`
	Amount       float64    `json:"amount"`
	Unit         entry.Unit `json:"unit"`
	Timestamp    time.Time  `json:"timestamp"`
	Notes        string     `json:"notes,omitempty"`
}

// VerificationHint requests barcode verification during Create.
type VerificationHint struct {
	Barcode string                   `json:"barcode"`
	Method  entry.VerificationMethod `json:"verification_method,omitempty"`
}

// Update carries the fields of a partial entry update. Nil fields are
// untouched; the audit event records exactly the fields that changed.
type Update struct {
	SupplementID *string     `json:"supplement_id,omitempty"`
	Amount       *float64    `json:"amount,omitempty"`
	Unit         *entry.Unit `json:"unit,omitempty"`
	Timestamp    *time.Time  `json:"timestamp,omitempty"`
	Notes        *string     `json:"notes,omitempty"`
}

// ListFilter narrows a List query.
type ListFilter struct {
	Limit        int
	Offset       int
	Start        time.Time
	End          time.Time
	IncludeAudit bool
}

// Service is the secure entry store. Every mutation appends exactly one
// audit event; sensitive fields are encoded before persistence and decoded
// on every read path.
type Service struct {
	repo     entry.Repository
	perms    *permission.Resolver
	verifier BarcodeVerifier
	users    identity.Provider
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
	newID    func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics attaches logbook metrics.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the service clock. Used in tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides audit event ID generation. Used in tests.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

// NewService creates the secure entry store.
func NewService(repo entry.Repository, perms *permission.Resolver, verifier BarcodeVerifier, users identity.Provider, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		perms:    perms,
		verifier: verifier,
		users:    users,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create persists a new secure entry for input.AthleteID. When hint names
// a barcode the certification verifier runs first and a successful,
// affirming answer marks the entry verified; verification failure degrades
// gracefully and the entry persists unverified. Permission and auth
// failures abort before any side effect.
func (s *Service) Create(ctx context.Context, input CreateInput, hint *VerificationHint) (*entry.SecureEntry, error) {
	user, err := s.users.CurrentUser(ctx)
	if err != nil {
		return nil, s.fail("create", fmt.Errorf("%w: %v", ErrAuthRequired, err))
	}

	allowed, err := s.perms.CanWrite(ctx, user.ID, input.AthleteID)
	if err != nil {
		return nil, s.fail("create", fmt.Errorf("resolve write permission: %w", err))
	}
	if !allowed {
		return nil, s.fail("create", fmt.Errorf("%w: %s may not write entries for %s", ErrPermissionDenied, user.ID, input.AthleteID))
	}

	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now().UTC()
	}

	e := entry.SecureEntry{
		Entry: entry.Entry{
			AthleteID:    input.AthleteID,
			SupplementID: input.SupplementID,
			Amount:       input.Amount,
			Unit:         input.Unit,
			Timestamp:    timestamp,
			Notes:        input.Notes,
		},
	}
	if err := e.Validate(); err != nil {
		return nil, s.fail("create", err)
	}

	if hint != nil && hint.Barcode != "" {
		s.attachVerification(ctx, &e, user, hint)
	}

	changes := map[string]any{
		"athlete_id":    input.AthleteID,
		"supplement_id": input.SupplementID,
		"amount":        input.Amount,
		"unit":          string(input.Unit),
		"timestamp":     timestamp,
	}
	if input.Notes != "" {
		changes["notes"] = input.Notes
	}

	e.Security = entry.SecurityMetadata{
		EncodingVersion: entry.EncodingVersion,
		AuditTrail: []entry.AuditEvent{
			s.auditEvent(ctx, entry.ActionCreate, user, changes),
		},
	}

	record, err := entry.Seal(e)
	if err != nil {
		return nil, s.fail("create", err)
	}
	if err := s.repo.Insert(ctx, &record); err != nil {
		return nil, s.fail("create", fmt.Errorf("insert entry: %w", err))
	}

	return s.finish("create", record)
}

// List returns athleteID's entries, newest first, with sensitive fields
// decoded. Unless filter.IncludeAudit is set, the audit trail is stripped
// from the returned copies.
func (s *Service) List(ctx context.Context, athleteID string, filter ListFilter) ([]*entry.SecureEntry, error) {
	user, err := s.users.CurrentUser(ctx)
	if err != nil {
		return nil, s.fail("list", fmt.Errorf("%w: %v", ErrAuthRequired, err))
	}

	allowed, err := s.perms.CanRead(ctx, user.ID, athleteID)
	if err != nil {
		return nil, s.fail("list", fmt.Errorf("resolve read permission: %w", err))
	}
	if !allowed {
		return nil, s.fail("list", fmt.Errorf("%w: %s may not view entries for %s", ErrPermissionDenied, user.ID, athleteID))
	}

	records, err := s.repo.ListByAthlete(ctx, athleteID, entry.Filter{
		Limit:  filter.Limit,
		Offset: filter.Offset,
		Start:  filter.Start,
		End:    filter.End,
	})
	if err != nil {
		return nil, s.fail("list", fmt.Errorf("list entries: %w", err))
	}

	entries := make([]*entry.SecureEntry, 0, len(records))
	for _, record := range records {
		decoded, err := entry.Open(*record)
		if err != nil {
			return nil, s.fail("list", err)
		}
		if !filter.IncludeAudit {
			decoded.Security.AuditTrail = nil
		}
		entries = append(entries, &decoded)
	}

	if s.metrics != nil {
		s.metrics.IncOperation("list", outcomeOK)
	}
	return entries, nil
}

// Get returns a single decoded entry by ID after a read permission check
// against its owning athlete.
func (s *Service) Get(ctx context.Context, entryID string) (*entry.SecureEntry, error) {
	user, err := s.users.CurrentUser(ctx)
	if err != nil {
		return nil, s.fail("get", fmt.Errorf("%w: %v", ErrAuthRequired, err))
	}

	record, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, s.fail("get", err)
	}

	allowed, err := s.perms.CanRead(ctx, user.ID, record.AthleteID)
	if err != nil {
		return nil, s.fail("get", fmt.Errorf("resolve read permission: %w", err))
	}
	if !allowed {
		return nil, s.fail("get", fmt.Errorf("%w: %s may not view entries for %s", ErrPermissionDenied, user.ID, record.AthleteID))
	}

	decoded, err := entry.Open(*record)
	if err != nil {
		return nil, s.fail("get", err)
	}

	if s.metrics != nil {
		s.metrics.IncOperation("get", outcomeOK)
	}
	return &decoded, nil
}

// Apply writes upd's non-nil fields onto e and returns the change-set the
// audit event records.
func (upd Update) apply(e *entry.SecureEntry) map[string]any {
	changes := make(map[string]any)
	if upd.SupplementID != nil {
		e.SupplementID = *upd.SupplementID
		changes["supplement_id"] = *upd.SupplementID
	}
	if upd.Amount != nil {
		e.Amount = *upd.Amount
		changes["amount"] = *upd.Amount
	}
	if upd.Unit != nil {
		e.Unit = *upd.Unit
		changes["unit"] = string(*upd.Unit)
	}
	if upd.Timestamp != nil {
		e.Timestamp = *upd.Timestamp
		changes["timestamp"] = *upd.Timestamp
	}
	if upd.Notes != nil {
		e.Notes = *upd.Notes
		changes["notes"] = *upd.Notes
	}
	return changes
}

// UpdateEntry applies a partial update to an existing entry, appending a
// single update audit event that records exactly the changed fields.
func (s *Service) UpdateEntry(ctx context.Context, entryID string, upd Update) (*entry.SecureEntry, error) {
	user, err := s.users.CurrentUser(ctx)
	if err != nil {
		return nil, s.fail("update", fmt.Errorf("%w: %v", ErrAuthRequired, err))
	}

	decoded, err := s.loadForWrite(ctx, entryID, user, "update")
	if err != nil {
		return nil, err
	}

	changes := upd.apply(decoded)
	if len(changes) == 0 {
		return nil, s.fail("update", fmt.Errorf("%w: no fields to update", entry.ErrValidation))
	}
	if err := decoded.Validate(); err != nil {
		return nil, s.fail("update", err)
	}

	return s.persistMutation(ctx, "update", decoded, s.auditEvent(ctx, entry.ActionUpdate, user, changes))
}

// VerifyEntry runs barcode verification for an existing entry and, when an
// authority affirms, marks it verified with the certification outcome and
// appends a verify audit event. A non-affirming answer leaves the entry
// untouched and returns ErrNotAffirmed.
func (s *Service) VerifyEntry(ctx context.Context, entryID, barcode string) (*entry.SecureEntry, error) {
	user, err := s.users.CurrentUser(ctx)
	if err != nil {
		return nil, s.fail("verify", fmt.Errorf("%w: %v", ErrAuthRequired, err))
	}

	decoded, err := s.loadForWrite(ctx, entryID, user, "verify")
	if err != nil {
		return nil, err
	}

	result, err := s.verifier.Verify(ctx, barcode)
	if err != nil {
		return nil, s.fail("verify", fmt.Errorf("verify barcode %s: %w", barcode, err))
	}
	if !result.Verified {
		return nil, s.fail("verify", fmt.Errorf("%w: barcode %s", ErrNotAffirmed, barcode))
	}

	now := s.now().UTC()
	decoded.Verified = true
	decoded.VerifiedAt = &now
	decoded.VerifiedBy = user.ID
	decoded.VerificationData = &entry.VerificationData{
		Certifications: result.Certifications,
		VerifiedAt:     now,
		VerifiedBy:     user.ID,
		Method:         entry.MethodBarcodeScan,
	}

	changes := map[string]any{
		"verified": true,
		"barcode":  barcode,
	}
	return s.persistMutation(ctx, "verify", decoded, s.auditEvent(ctx, entry.ActionVerify, user, changes))
}

// DeleteEntry tombstones an entry. Nothing is ever removed from storage:
// the record is flagged deleted and a delete audit event is appended, so
// the trail stays reviewable.
func (s *Service) DeleteEntry(ctx context.Context, entryID string) (*entry.SecureEntry, error) {
	user, err := s.users.CurrentUser(ctx)
	if err != nil {
		return nil, s.fail("delete", fmt.Errorf("%w: %v", ErrAuthRequired, err))
	}

	decoded, err := s.loadForWrite(ctx, entryID, user, "delete")
	if err != nil {
		return nil, err
	}

	decoded.Deleted = true
	changes := map[string]any{"deleted": true}
	return s.persistMutation(ctx, "delete", decoded, s.auditEvent(ctx, entry.ActionDelete, user, changes))
}

// loadForWrite fetches and decodes an entry, then gates on write
// permission against its owning athlete.
func (s *Service) loadForWrite(ctx context.Context, entryID string, user identity.User, op string) (*entry.SecureEntry, error) {
	record, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, s.fail(op, err)
	}

	allowed, err := s.perms.CanWrite(ctx, user.ID, record.AthleteID)
	if err != nil {
		return nil, s.fail(op, fmt.Errorf("resolve write permission: %w", err))
	}
	if !allowed {
		return nil, s.fail(op, fmt.Errorf("%w: %s may not write entries for %s", ErrPermissionDenied, user.ID, record.AthleteID))
	}

	decoded, err := entry.Open(*record)
	if err != nil {
		return nil, s.fail(op, err)
	}
	return &decoded, nil
}

// persistMutation appends the audit event, re-encodes, persists, and
// returns the decoded result.
func (s *Service) persistMutation(ctx context.Context, op string, decoded *entry.SecureEntry, event entry.AuditEvent) (*entry.SecureEntry, error) {
	decoded.Security.AuditTrail = entry.AppendAudit(decoded.Security.AuditTrail, event)

	record, err := entry.Seal(*decoded)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if err := s.repo.Update(ctx, &record); err != nil {
		return nil, s.fail(op, fmt.Errorf("persist entry: %w", err))
	}
	return s.finish(op, record)
}

// attachVerification runs the verifier for a create hint. Failure is
// logged and swallowed; the entry persists unverified.
func (s *Service) attachVerification(ctx context.Context, e *entry.SecureEntry, user identity.User, hint *VerificationHint) {
	result, err := s.verifier.Verify(ctx, hint.Barcode)
	if err != nil {
		s.logger.Warn("barcode verification failed, persisting entry unverified",
			"barcode", hint.Barcode, "athlete_id", e.AthleteID, "error", err)
		return
	}
	if !result.Verified {
		return
	}

	method := hint.Method
	if method == "" {
		method = entry.MethodBarcodeScan
	}

	now := s.now().UTC()
	e.Verified = true
	e.VerifiedAt = &now
	e.VerifiedBy = user.ID
	e.VerificationData = &entry.VerificationData{
		Certifications: result.Certifications,
		VerifiedAt:     now,
		VerifiedBy:     user.ID,
		Method:         method,
	}
}

// auditEvent builds a change record carrying the acting user, a role
// snapshot, and the request's network origin when known.
func (s *Service) auditEvent(ctx context.Context, action entry.AuditAction, user identity.User, changes map[string]any) entry.AuditEvent {
	return entry.AuditEvent{
		ID:        s.newID(),
		Timestamp: s.now().UTC(),
		Action:    action,
		UserID:    user.ID,
		UserRole:  string(s.perms.ResolveRole(ctx, user.ID)),
		Changes:   changes,
		IPAddress: middleware.GetClientIP(ctx),
	}
}

func (s *Service) fail(op string, err error) error {
	if s.metrics != nil {
		s.metrics.IncOperation(op, outcomeError)
	}
	return err
}

func (s *Service) finish(op string, record entry.Record) (*entry.SecureEntry, error) {
	decoded, err := entry.Open(record)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if s.metrics != nil {
		s.metrics.IncOperation(op, outcomeOK)
		s.metrics.ObserveAuditTrail(len(record.Security.AuditTrail))
	}
	return &decoded, nil
}
