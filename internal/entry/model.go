// Package entry provides models and repositories for supplement logbook
// entries with embedded, append-only audit trails.
package entry

import (
	"errors"
	"fmt"
	"time"

	"github.com/cleansport/logbook/internal/verification"
)

// Common errors for entry operations.
var (
	ErrEntryNotFound = errors.New("entry not found")

	// ErrValidation wraps all field-level validation failures so callers can
	// match the whole class with errors.Is.
	ErrValidation = errors.New("entry validation failed")
)

// Unit is the closed set of dosage units accepted on a logbook entry.
type Unit string

// Accepted dosage units.
const (
	UnitMilligram  Unit = "mg"
	UnitGram       Unit = "g"
	UnitMilliliter Unit = "ml"
	UnitCapsules   Unit = "capsules"
	UnitTablets    Unit = "tablets"
)

// Valid reports whether u is one of the accepted dosage units.
func (u Unit) Valid() bool {
	switch u {
	case UnitMilligram, UnitGram, UnitMilliliter, UnitCapsules, UnitTablets:
		return true
	}
	return false
}

// AuditAction is the kind of mutation recorded by an audit event.
type AuditAction string

// Audit actions. Every mutation of a secure entry appends exactly one
// event carrying one of these actions.
const (
	ActionCreate AuditAction = "create"
	ActionUpdate AuditAction = "update"
	ActionDelete AuditAction = "delete"
	ActionVerify AuditAction = "verify"
)

// VerificationMethod records how an entry's certification was confirmed.
type VerificationMethod string

// Verification methods.
const (
	MethodManual          VerificationMethod = "manual"
	MethodBarcodeScan     VerificationMethod = "barcode_scan"
	MethodAPIVerification VerificationMethod = "api_verification"
)

// AuditEvent is a single change record on an entry's audit trail.
// Events are immutable once appended.
type AuditEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    AuditAction    `json:"action"`
	UserID    string         `json:"user_id"`
	UserRole  string         `json:"user_role"`
	Changes   map[string]any `json:"changes"`
	IPAddress string         `json:"ip_address,omitempty"`
}

// SecurityMetadata travels with every secure entry. AuditTrail is
// append-only: events are never truncated or reordered.
type SecurityMetadata struct {
	EncodingVersion string       `json:"encoding_version"`
	AuditTrail      []AuditEvent `json:"audit_trail"`
}

// VerificationData captures the outcome of a successful certification
// check attached to an entry.
type VerificationData struct {
	Certifications []verification.Certification `json:"certifications"`
	VerifiedAt     time.Time                    `json:"verified_at"`
	VerifiedBy     string                       `json:"verified_by"`
	Method         VerificationMethod           `json:"verification_method"`
}

// Entry is a single supplement intake record for an athlete.
type Entry struct {
	ID           string     `json:"id"`
	AthleteID    string     `json:"athlete_id"`
	SupplementID string     `json:"supplement_id"`
	Amount       float64    `json:"amount"`
	Unit         Unit       `json:"unit"`
	Timestamp    time.Time  `json:"timestamp"`
	Notes        string     `json:"notes,omitempty"`
	Verified     bool       `json:"verified"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	VerifiedBy   string     `json:"verified_by,omitempty"`

	// Deleted marks a tombstoned entry. Entries are never removed from
	// storage; removal is modelled as a flagged update so the audit trail
	// survives.
	Deleted bool `json:"deleted,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SecureEntry is an Entry with its verification outcome and security
// metadata in decoded (caller-facing) form.
type SecureEntry struct {
	Entry
	VerificationData *VerificationData `json:"verification_data,omitempty"`
	Security         SecurityMetadata  `json:"security_metadata"`
}

// Validate checks the field invariants of an entry. All violations are
// wrapped in ErrValidation.
func (e *Entry) Validate() error {
	if e.AthleteID == "" {
		return fmt.Errorf("%w: athlete_id is required", ErrValidation)
	}
	if e.SupplementID == "" {
		return fmt.Errorf("%w: supplement_id is required", ErrValidation)
	}
	if e.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative, got %v", ErrValidation, e.Amount)
	}
	if !e.Unit.Valid() {
		return fmt.Errorf("%w: unknown unit %q", ErrValidation, e.Unit)
	}
	return nil
}

// AppendAudit returns a copy of the trail with event appended. The input
// slice is never mutated so shared references cannot observe reordering.
func AppendAudit(trail []AuditEvent, event AuditEvent) []AuditEvent {
	out := make([]AuditEvent, len(trail), len(trail)+1)
	copy(out, trail)
	return append(out, event)
}
