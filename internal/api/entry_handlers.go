package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cleansport/logbook/internal/entry"
	"github.com/cleansport/logbook/internal/logbook"
	"github.com/cleansport/logbook/internal/middleware"
	"github.com/cleansport/logbook/internal/verification"
)

// EntryHandlers holds dependencies for logbook entry HTTP handlers.
type EntryHandlers struct {
	service *logbook.Service
}

// NewEntryHandlers creates a new EntryHandlers instance.
func NewEntryHandlers(service *logbook.Service) *EntryHandlers {
	return &EntryHandlers{service: service}
}

// CreateEntryRequest represents the request body for creating an entry.
// A non-empty barcode requests certification verification during create.
type CreateEntryRequest struct {
	AthleteID    string     `json:"athlete_id"`
	SupplementID string     `json:"supplement_id"`
	Amount       float64    `json:"amount"`
	Unit         entry.Unit `json:"unit"`
	Timestamp    time.Time  `json:"timestamp"`
	Notes        string     `json:"notes,omitempty"`
	Barcode      string     `json:"barcode,omitempty"`
}

// CreateEntry persists a new logbook entry for an athlete.
// POST /entries
func (h *EntryHandlers) CreateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	input := logbook.CreateInput{
		AthleteID:    req.AthleteID,
		SupplementID: req.SupplementID,
		Amount:       req.Amount,
		Unit:         req.Unit,
		Timestamp:    req.Timestamp,
		Notes:        req.Notes,
	}
	var hint *logbook.VerificationHint
	if req.Barcode != "" {
		hint = &logbook.VerificationHint{Barcode: req.Barcode}
	}

	created, err := h.service.Create(ctx, input, hint)
	if err != nil {
		writeServiceError(w, ctx, err)
		return
	}

	writeJSON(w, ctx, http.StatusCreated, created)
}

// GetEntry returns a single decoded entry.
// GET /entries/{id}
func (h *EntryHandlers) GetEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	e, err := h.service.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, ctx, err)
		return
	}

	writeJSON(w, ctx, http.StatusOK, e)
}

// UpdateEntryRequest represents the request body for a partial update.
// Absent fields are untouched.
type UpdateEntryRequest struct {
	SupplementID *string     `json:"supplement_id,omitempty"`
	Amount       *float64    `json:"amount,omitempty"`
	Unit         *entry.Unit `json:"unit,omitempty"`
	Timestamp    *time.Time  `json:"timestamp,omitempty"`
	Notes        *string     `json:"notes,omitempty"`
}

// UpdateEntry applies a partial update to an entry.
// PATCH /entries/{id}
func (h *EntryHandlers) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	updated, err := h.service.UpdateEntry(ctx, r.PathValue("id"), logbook.Update{
		SupplementID: req.SupplementID,
		Amount:       req.Amount,
		Unit:         req.Unit,
		Timestamp:    req.Timestamp,
		Notes:        req.Notes,
	})
	if err != nil {
		writeServiceError(w, ctx, err)
		return
	}

	writeJSON(w, ctx, http.StatusOK, updated)
}

// DeleteEntry tombstones an entry. The record and its audit trail are
// retained; only the deleted flag is set.
// DELETE /entries/{id}
func (h *EntryHandlers) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deleted, err := h.service.DeleteEntry(ctx, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, ctx, err)
		return
	}

	writeJSON(w, ctx, http.StatusOK, deleted)
}

// VerifyEntryRequest represents the request body for entry verification.
type VerifyEntryRequest struct {
	Barcode string `json:"barcode"`
}

// VerifyEntry runs barcode verification for an existing entry.
// POST /entries/{id}/verify
func (h *EntryHandlers) VerifyEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifyEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.Barcode == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "barcode is required")
		return
	}

	verified, err := h.service.VerifyEntry(ctx, r.PathValue("id"), req.Barcode)
	if err != nil {
		writeServiceError(w, ctx, err)
		return
	}

	writeJSON(w, ctx, http.StatusOK, verified)
}

// ListEntries returns an athlete's entries, newest first.
// GET /athletes/{id}/entries
func (h *EntryHandlers) ListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, ok := parseListFilter(w, r)
	if !ok {
		return
	}

	entries, err := h.service.List(ctx, r.PathValue("id"), filter)
	if err != nil {
		writeServiceError(w, ctx, err)
		return
	}

	writeJSON(w, ctx, http.StatusOK, map[string]any{"entries": entries})
}

// parseListFilter reads paging and window query parameters. It writes the
// error response itself and returns ok=false on a malformed parameter.
func parseListFilter(w http.ResponseWriter, r *http.Request) (logbook.ListFilter, bool) {
	ctx := r.Context()
	var filter logbook.ListFilter

	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a non-negative integer")
			return filter, false
		}
		filter.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "offset must be a non-negative integer")
			return filter, false
		}
		filter.Offset = offset
	}
	if raw := query.Get("start"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "start must be an RFC3339 timestamp")
			return filter, false
		}
		filter.Start = start
	}
	if raw := query.Get("end"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "end must be an RFC3339 timestamp")
			return filter, false
		}
		filter.End = end
	}
	filter.IncludeAudit = query.Get("include_audit") == "true"

	return filter, true
}

// writeServiceError maps logbook service errors onto the API error
// envelope. Unrecognized errors become opaque 500s; the detail goes to
// the log, not the client.
func writeServiceError(w http.ResponseWriter, ctx context.Context, err error) {
	switch {
	case errors.Is(err, logbook.ErrAuthRequired):
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "authentication required")
	case errors.Is(err, logbook.ErrPermissionDenied):
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "not permitted for this athlete's records")
	case errors.Is(err, entry.ErrEntryNotFound):
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "entry not found")
	case errors.Is(err, entry.ErrValidation):
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, logbook.ErrNotAffirmed):
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotAffirmed)
		WriteError(w, ctx, http.StatusUnprocessableEntity, ErrCodeNotAffirmed, "no certification authority affirmed the barcode")
	case errors.Is(err, verification.ErrVerificationFailed):
		ctx = middleware.SetErrorCode(ctx, ErrCodeVerificationUnavailable)
		WriteError(w, ctx, http.StatusBadGateway, ErrCodeVerificationUnavailable, "certification authorities unavailable")
	default:
		slog.ErrorContext(ctx, "logbook operation failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
