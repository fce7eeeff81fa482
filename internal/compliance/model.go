// Package compliance computes derived compliance summaries over an
// athlete's logbook entries. Summaries are never persisted; every call
// recomputes from the entry store.
package compliance

import "time"

// AlertKind identifies what triggered a compliance alert.
type AlertKind string

const (
	// KindUnverifiedEntry flags an entry with no affirming verification.
	KindUnverifiedEntry AlertKind = "unverified_entry"
	// KindVerificationExpired flags a certification whose validity window
	// has passed. One alert per expired certification.
	KindVerificationExpired AlertKind = "verification_expired"
	// KindComplianceBreach is reserved for policy-threshold alerts. No
	// rule currently generates it; the kind stays in the enum so stored
	// alert consumers can already handle it.
	KindComplianceBreach AlertKind = "compliance_breach"
)

// Severity grades a compliance alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is a single compliance finding, optionally tied to the entry
// that produced it.
type Alert struct {
	ID        string    `json:"id"`
	Kind      AlertKind `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	EntryID   string    `json:"entry_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Period is the half-open time window a summary covers.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Metrics holds the derived counts of a compliance summary.
// ComplianceRate is a percentage in [0, 100] and is 0 when the window
// holds no entries.
type Metrics struct {
	TotalEntries        int     `json:"total_entries"`
	VerifiedEntries     int     `json:"verified_entries"`
	ComplianceRate      float64 `json:"compliance_rate"`
	UniqueSupplements   int     `json:"unique_supplements"`
	CertificationsCount int     `json:"certifications_count"`
}

// Summary is the full compliance report for one athlete and window.
type Summary struct {
	AthleteID string  `json:"athlete_id"`
	Period    Period  `json:"period"`
	Metrics   Metrics `json:"metrics"`
	Alerts    []Alert `json:"alerts"`
}
