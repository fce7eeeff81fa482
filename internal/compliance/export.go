package compliance

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ExportFormat defines supported export formats.
type ExportFormat string

const (
	// ExportFormatCSV exports a summary as comma-separated values.
	ExportFormatCSV ExportFormat = "csv"
	// ExportFormatJSON exports a summary as an indented JSON document.
	ExportFormatJSON ExportFormat = "json"
)

// Export serializes a compliance summary in the requested format for
// review outside the service. JSON carries the full summary; CSV emits
// one row per alert with the summary context repeated, which flattens
// cleanly into spreadsheet tooling.
func Export(summary *Summary, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatCSV:
		return exportToCSV(summary)
	case ExportFormatJSON:
		return exportToJSON(summary)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// exportToCSV flattens the summary into alert rows. A summary without
// alerts still produces a single row carrying the metrics.
func exportToCSV(summary *Summary) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	header := []string{
		"Athlete ID",
		"Period Start (UTC)",
		"Period End (UTC)",
		"Total Entries",
		"Verified Entries",
		"Compliance Rate",
		"Alert ID",
		"Alert Kind",
		"Severity",
		"Message",
		"Entry ID",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	base := []string{
		summary.AthleteID,
		summary.Period.Start.UTC().Format(time.RFC3339),
		summary.Period.End.UTC().Format(time.RFC3339),
		strconv.Itoa(summary.Metrics.TotalEntries),
		strconv.Itoa(summary.Metrics.VerifiedEntries),
		strconv.FormatFloat(summary.Metrics.ComplianceRate, 'f', 1, 64),
	}

	if len(summary.Alerts) == 0 {
		row := append(append([]string{}, base...), "", "", "", "", "")
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	for _, alert := range summary.Alerts {
		row := append(append([]string{}, base...),
			alert.ID,
			string(alert.Kind),
			string(alert.Severity),
			alert.Message,
			alert.EntryID,
		)
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

func exportToJSON(summary *Summary) ([]byte, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}
