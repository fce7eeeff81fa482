package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cleansport/logbook/internal/compliance"
	"github.com/cleansport/logbook/internal/middleware"
)

// ComplianceHandlers holds dependencies for compliance HTTP handlers.
type ComplianceHandlers struct {
	summarizer *compliance.Summarizer
}

// NewComplianceHandlers creates a new ComplianceHandlers instance.
func NewComplianceHandlers(summarizer *compliance.Summarizer) *ComplianceHandlers {
	return &ComplianceHandlers{summarizer: summarizer}
}

// Summary computes the compliance summary for an athlete. Without start
// and end parameters the window defaults to the trailing 30 days.
// GET /athletes/{id}/compliance
func (h *ComplianceHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	window, ok := parsePeriod(w, r)
	if !ok {
		return
	}

	summary, err := h.summarizer.Summarize(ctx, r.PathValue("id"), window)
	if err != nil {
		writeServiceError(w, ctx, err)
		return
	}

	writeJSON(w, ctx, http.StatusOK, summary)
}

// Export serializes the compliance summary as CSV or JSON for review
// outside the service. The format query parameter defaults to csv.
// GET /athletes/{id}/compliance/export
func (h *ComplianceHandlers) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	format := compliance.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = compliance.ExportFormatCSV
	}
	if format != compliance.ExportFormatCSV && format != compliance.ExportFormatJSON {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnsupportedFormat)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnsupportedFormat, fmt.Sprintf("unsupported export format: %s", format))
		return
	}

	window, ok := parsePeriod(w, r)
	if !ok {
		return
	}

	athleteID := r.PathValue("id")
	summary, err := h.summarizer.Summarize(ctx, athleteID, window)
	if err != nil {
		writeServiceError(w, ctx, err)
		return
	}

	data, err := compliance.Export(summary, format)
	if err != nil {
		writeServiceError(w, ctx, err)
		return
	}

	switch format {
	case compliance.ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=compliance-%s.csv", athleteID))
	case compliance.ExportFormatJSON:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write export response", "error", err)
	}
}

// parsePeriod reads optional start and end query parameters. It writes
// the error response itself and returns ok=false on a malformed value.
func parsePeriod(w http.ResponseWriter, r *http.Request) (compliance.Period, bool) {
	ctx := r.Context()
	var window compliance.Period

	if raw := r.URL.Query().Get("start"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "start must be an RFC3339 timestamp")
			return window, false
		}
		window.Start = start
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "end must be an RFC3339 timestamp")
			return window, false
		}
		window.End = end
	}

	return window, true
}
