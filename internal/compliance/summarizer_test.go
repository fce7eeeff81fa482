package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/cleansport/logbook/internal/entry"
	"github.com/cleansport/logbook/internal/logbook"
	"github.com/cleansport/logbook/internal/verification"
)

// stubReader serves canned entries and records the filter it was asked for.
type stubReader struct {
	entries []*entry.SecureEntry
	err     error
	filter  logbook.ListFilter
}

func (r *stubReader) List(_ context.Context, _ string, filter logbook.ListFilter) ([]*entry.SecureEntry, error) {
	r.filter = filter
	if r.err != nil {
		return nil, r.err
	}
	return r.entries, nil
}

func newTestSummarizer(reader EntryReader, now time.Time) *Summarizer {
	counter := 0
	return NewSummarizer(reader, slog.Default(),
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string {
			counter++
			return fmt.Sprintf("alert-%d", counter)
		}),
	)
}

func verifiedEntry(id, supplementID string, certs []verification.Certification) *entry.SecureEntry {
	e := &entry.SecureEntry{
		Entry: entry.Entry{
			ID:           id,
			AthleteID:    "athlete-1",
			SupplementID: supplementID,
			Verified:     true,
		},
	}
	e.VerificationData = &entry.VerificationData{Certifications: certs}
	return e
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-24 * time.Hour)
	valid := now.Add(24 * time.Hour)

	reader := &stubReader{entries: []*entry.SecureEntry{
		verifiedEntry("entry-1", "supp-1", []verification.Certification{
			{ID: "cert-1", Name: "nsf", ValidUntil: &valid},
		}),
		verifiedEntry("entry-2", "supp-2", []verification.Certification{
			{ID: "cert-2", Name: "informed_sport", ValidUntil: &expired},
		}),
		{Entry: entry.Entry{ID: "entry-3", AthleteID: "athlete-1", SupplementID: "supp-1"}},
	}}

	summary, err := newTestSummarizer(reader, now).Summarize(context.Background(), "athlete-1", Period{})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	m := summary.Metrics
	if m.TotalEntries != 3 {
		t.Errorf("TotalEntries = %d, want 3", m.TotalEntries)
	}
	if m.VerifiedEntries != 2 {
		t.Errorf("VerifiedEntries = %d, want 2", m.VerifiedEntries)
	}
	if math.Abs(m.ComplianceRate-66.666) > 0.01 {
		t.Errorf("ComplianceRate = %v, want ~66.67", m.ComplianceRate)
	}
	if m.UniqueSupplements != 2 {
		t.Errorf("UniqueSupplements = %d, want 2", m.UniqueSupplements)
	}
	if m.CertificationsCount != 2 {
		t.Errorf("CertificationsCount = %d, want 2", m.CertificationsCount)
	}

	if len(summary.Alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(summary.Alerts))
	}
	byKind := make(map[AlertKind]Alert)
	for _, alert := range summary.Alerts {
		byKind[alert.Kind] = alert
	}

	expiredAlert, ok := byKind[KindVerificationExpired]
	if !ok {
		t.Fatal("missing verification_expired alert")
	}
	if expiredAlert.Severity != SeverityHigh {
		t.Errorf("expired alert severity = %q, want high", expiredAlert.Severity)
	}
	if expiredAlert.EntryID != "entry-2" {
		t.Errorf("expired alert entry = %q, want entry-2", expiredAlert.EntryID)
	}

	unverifiedAlert, ok := byKind[KindUnverifiedEntry]
	if !ok {
		t.Fatal("missing unverified_entry alert")
	}
	if unverifiedAlert.Severity != SeverityMedium {
		t.Errorf("unverified alert severity = %q, want medium", unverifiedAlert.Severity)
	}
	if unverifiedAlert.EntryID != "entry-3" {
		t.Errorf("unverified alert entry = %q, want entry-3", unverifiedAlert.EntryID)
	}
}

func TestSummarize_DefaultWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reader := &stubReader{}

	if _, err := newTestSummarizer(reader, now).Summarize(context.Background(), "athlete-1", Period{}); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if !reader.filter.End.Equal(now) {
		t.Errorf("filter end = %v, want now %v", reader.filter.End, now)
	}
	wantStart := now.Add(-DefaultWindow)
	if !reader.filter.Start.Equal(wantStart) {
		t.Errorf("filter start = %v, want 30 days before end %v", reader.filter.Start, wantStart)
	}
}

func TestSummarize_ExplicitWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reader := &stubReader{}
	window := Period{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	summary, err := newTestSummarizer(reader, now).Summarize(context.Background(), "athlete-1", window)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if !reader.filter.Start.Equal(window.Start) || !reader.filter.End.Equal(window.End) {
		t.Errorf("filter = %v..%v, want caller window", reader.filter.Start, reader.filter.End)
	}
	if !summary.Period.Start.Equal(window.Start) || !summary.Period.End.Equal(window.End) {
		t.Errorf("summary period = %+v, want caller window", summary.Period)
	}
}

func TestSummarize_EmptyWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	summary, err := newTestSummarizer(&stubReader{}, now).Summarize(context.Background(), "athlete-1", Period{})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if summary.Metrics.TotalEntries != 0 {
		t.Errorf("TotalEntries = %d, want 0", summary.Metrics.TotalEntries)
	}
	if summary.Metrics.ComplianceRate != 0 {
		t.Errorf("ComplianceRate = %v, want 0 for an empty window", summary.Metrics.ComplianceRate)
	}
	if len(summary.Alerts) != 0 {
		t.Errorf("alerts = %d, want 0", len(summary.Alerts))
	}
}

func TestSummarize_ReaderErrorPropagates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reader := &stubReader{err: logbook.ErrPermissionDenied}

	if _, err := newTestSummarizer(reader, now).Summarize(context.Background(), "athlete-1", Period{}); !errors.Is(err, logbook.ErrPermissionDenied) {
		t.Errorf("Summarize() error = %v, want permission error propagated", err)
	}
}

func TestSummarize_CertWithoutExpiryNeverAlerts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reader := &stubReader{entries: []*entry.SecureEntry{
		verifiedEntry("entry-1", "supp-1", []verification.Certification{
			{ID: "cert-1", Name: "nsf"},
		}),
	}}

	summary, err := newTestSummarizer(reader, now).Summarize(context.Background(), "athlete-1", Period{})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(summary.Alerts) != 0 {
		t.Errorf("alerts = %d, want 0 for a perpetual certification", len(summary.Alerts))
	}
}
