package compliance

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"
)

func sampleSummary() *Summary {
	return &Summary{
		AthleteID: "athlete-1",
		Period: Period{
			Start: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		Metrics: Metrics{
			TotalEntries:        3,
			VerifiedEntries:     2,
			ComplianceRate:      66.7,
			UniqueSupplements:   2,
			CertificationsCount: 2,
		},
		Alerts: []Alert{
			{ID: "alert-1", Kind: KindUnverifiedEntry, Severity: SeverityMedium, Message: "entry for supp-1 is not verified", EntryID: "entry-3"},
			{ID: "alert-2", Kind: KindVerificationExpired, Severity: SeverityHigh, Message: "nsf certification has expired", EntryID: "entry-2"},
		},
	}
}

func TestExport_CSV(t *testing.T) {
	data, err := Export(sampleSummary(), ExportFormatCSV)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse exported CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("CSV rows = %d, want header plus one row per alert", len(rows))
	}
	if rows[0][0] != "Athlete ID" || rows[0][7] != "Alert Kind" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	for i, row := range rows[1:] {
		if row[0] != "athlete-1" {
			t.Errorf("row %d athlete = %q, want athlete-1", i, row[0])
		}
		if row[3] != "3" || row[4] != "2" || row[5] != "66.7" {
			t.Errorf("row %d metrics = %v, want 3/2/66.7", i, row[3:6])
		}
	}
	if rows[1][7] != string(KindUnverifiedEntry) || rows[2][7] != string(KindVerificationExpired) {
		t.Errorf("alert kinds = %q, %q, want summary order preserved", rows[1][7], rows[2][7])
	}
}

func TestExport_CSVWithoutAlerts(t *testing.T) {
	summary := sampleSummary()
	summary.Alerts = nil

	data, err := Export(summary, ExportFormatCSV)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse exported CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("CSV rows = %d, want header plus one metrics row", len(rows))
	}
	if rows[1][6] != "" || rows[1][7] != "" {
		t.Errorf("alert columns = %v, want empty without alerts", rows[1][6:])
	}
}

func TestExport_JSON(t *testing.T) {
	summary := sampleSummary()
	data, err := Export(summary, ExportFormatJSON)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var decoded Summary
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal exported JSON: %v", err)
	}
	if decoded.AthleteID != summary.AthleteID {
		t.Errorf("athlete = %q, want %q", decoded.AthleteID, summary.AthleteID)
	}
	if decoded.Metrics != summary.Metrics {
		t.Errorf("metrics = %+v, want %+v", decoded.Metrics, summary.Metrics)
	}
	if len(decoded.Alerts) != 2 {
		t.Errorf("alerts = %d, want 2", len(decoded.Alerts))
	}
}

func TestExport_UnsupportedFormat(t *testing.T) {
	if _, err := Export(sampleSummary(), ExportFormat("xml")); err == nil {
		t.Fatal("Export() error = nil, want unsupported format error")
	}
}
