// Package verification checks supplement barcodes against third-party
// certification authorities and caches the aggregated outcome.
package verification

import (
	"errors"
	"time"
)

// ErrVerificationFailed is returned when every authority and the fallback
// source failed to produce an answer for a barcode.
var ErrVerificationFailed = errors.New("verification failed")

// CertificationType identifies the certifying programme.
type CertificationType string

// Recognised certification programmes.
const (
	TypeNSF           CertificationType = "NSF"
	TypeInformedSport CertificationType = "Informed_Sport"
	TypeISO17025      CertificationType = "ISO_17025"
	TypeWADACompliant CertificationType = "WADA_Compliant"
)

// Certification is a certifying body's attestation for a supplement batch.
type Certification struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Issuer     string            `json:"issuer"`
	Type       CertificationType `json:"type"`
	ValidUntil *time.Time        `json:"valid_until,omitempty"`
}

// Expired reports whether the certification's validity window has passed.
// A certification with no expiry is treated as perpetually valid.
func (c Certification) Expired(now time.Time) bool {
	return c.ValidUntil != nil && c.ValidUntil.Before(now)
}

// Supplement holds descriptive metadata resolved for a barcode.
type Supplement struct {
	Name        string `json:"name"`
	Brand       string `json:"brand"`
	Description string `json:"description,omitempty"`
}

// Source records where a verification result came from.
type Source string

// Result sources. Fallback is deliberately distinct from cache: a
// fallback answer was produced from local data after every authority
// failed, and carries degraded confidence.
const (
	SourceLive     Source = "live"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// AuthorityResult is a single authority's answer for a barcode.
type AuthorityResult struct {
	Verified   bool       `json:"verified"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// Result is the aggregated verification outcome for a barcode.
type Result struct {
	Verified       bool            `json:"verified"`
	Certifications []Certification `json:"certifications"`
	Supplement     *Supplement     `json:"supplement,omitempty"`
	Source         Source          `json:"source"`
	CheckedAt      time.Time       `json:"checked_at"`
	Error          string          `json:"error,omitempty"`
}
