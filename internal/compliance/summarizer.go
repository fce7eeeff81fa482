package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cleansport/logbook/internal/entry"
	"github.com/cleansport/logbook/internal/logbook"
	"github.com/cleansport/logbook/internal/tracing"
)

// DefaultWindow is the summary window applied when the caller gives none.
const DefaultWindow = 30 * 24 * time.Hour

// EntryReader is the slice of the secure entry store the summarizer
// needs. Reads go through the store so its permission checks apply to
// compliance data too. Satisfied by *logbook.Service.
type EntryReader interface {
	List(ctx context.Context, athleteID string, filter logbook.ListFilter) ([]*entry.SecureEntry, error)
}

// Summarizer computes compliance summaries and alerts from logbook
// entries.
type Summarizer struct {
	entries EntryReader
	logger  *slog.Logger
	metrics *SummaryMetrics
	now     func() time.Time
	newID   func() string
}

// SummarizerOption configures a Summarizer.
type SummarizerOption func(*Summarizer)

// WithMetrics attaches compliance metrics.
func WithMetrics(m *SummaryMetrics) SummarizerOption {
	return func(s *Summarizer) { s.metrics = m }
}

// WithClock overrides the summarizer clock. Used in tests.
func WithClock(now func() time.Time) SummarizerOption {
	return func(s *Summarizer) { s.now = now }
}

// WithIDGenerator overrides alert ID generation. Used in tests.
func WithIDGenerator(newID func() string) SummarizerOption {
	return func(s *Summarizer) { s.newID = newID }
}

// NewSummarizer creates a compliance summarizer backed by the given
// entry reader.
func NewSummarizer(entries EntryReader, logger *slog.Logger, opts ...SummarizerOption) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Summarizer{
		entries: entries,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize computes the compliance summary for athleteID over window.
// Zero window bounds default to the last 30 days ending now. Permission
// and auth failures from the entry store propagate unchanged, so the
// summary is exactly as visible as the entries themselves.
func (s *Summarizer) Summarize(ctx context.Context, athleteID string, window Period) (summary *Summary, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "compute_compliance_summary")
	defer func() { endSpan(err) }()

	now := s.now().UTC()
	if window.End.IsZero() {
		window.End = now
	}
	if window.Start.IsZero() {
		window.Start = window.End.Add(-DefaultWindow)
	}

	entries, err := s.entries.List(ctx, athleteID, logbook.ListFilter{
		Start: window.Start,
		End:   window.End,
	})
	if err != nil {
		return nil, fmt.Errorf("load entries for summary: %w", err)
	}

	verified := 0
	supplements := make(map[string]struct{})
	certifications := 0
	for _, e := range entries {
		supplements[e.SupplementID] = struct{}{}
		if !e.Verified {
			continue
		}
		verified++
		if e.VerificationData != nil {
			certifications += len(e.VerificationData.Certifications)
		}
	}

	rate := 0.0
	if len(entries) > 0 {
		rate = float64(verified) / float64(len(entries)) * 100
	}

	summary = &Summary{
		AthleteID: athleteID,
		Period:    window,
		Metrics: Metrics{
			TotalEntries:        len(entries),
			VerifiedEntries:     verified,
			ComplianceRate:      rate,
			UniqueSupplements:   len(supplements),
			CertificationsCount: certifications,
		},
		Alerts: s.generateAlerts(entries, now),
	}

	if s.metrics != nil {
		s.metrics.ObserveSummary(summary)
	}
	s.logger.Debug("compliance summary computed",
		"athlete_id", athleteID,
		"total_entries", summary.Metrics.TotalEntries,
		"compliance_rate", summary.Metrics.ComplianceRate,
		"alerts", len(summary.Alerts))

	return summary, nil
}

// generateAlerts walks the entries and emits one unverified_entry alert
// per unverified entry and one verification_expired alert per expired
// certification on verified entries.
func (s *Summarizer) generateAlerts(entries []*entry.SecureEntry, now time.Time) []Alert {
	alerts := []Alert{}
	for _, e := range entries {
		if !e.Verified {
			alerts = append(alerts, Alert{
				ID:        s.newID(),
				Kind:      KindUnverifiedEntry,
				Severity:  SeverityMedium,
				Message:   fmt.Sprintf("entry for %s is not verified", e.SupplementID),
				EntryID:   e.ID,
				CreatedAt: now,
			})
			continue
		}
		if e.VerificationData == nil {
			continue
		}
		for _, cert := range e.VerificationData.Certifications {
			if cert.Expired(now) {
				alerts = append(alerts, Alert{
					ID:        s.newID(),
					Kind:      KindVerificationExpired,
					Severity:  SeverityHigh,
					Message:   fmt.Sprintf("%s certification has expired", cert.Name),
					EntryID:   e.ID,
					CreatedAt: now,
				})
			}
		}
	}
	return alerts
}
