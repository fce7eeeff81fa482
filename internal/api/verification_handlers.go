package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cleansport/logbook/internal/middleware"
	"github.com/cleansport/logbook/internal/verification"
)

// BarcodeVerifier is the slice of the verification package the handlers
// need.
type BarcodeVerifier interface {
	Verify(ctx context.Context, barcode string) (verification.Result, error)
	ClearCache(ctx context.Context) error
}

// VerificationHandlers holds dependencies for standalone barcode
// verification, independent of any logbook entry.
type VerificationHandlers struct {
	verifier BarcodeVerifier
}

// NewVerificationHandlers creates a new VerificationHandlers instance.
func NewVerificationHandlers(verifier BarcodeVerifier) *VerificationHandlers {
	return &VerificationHandlers{verifier: verifier}
}

// VerifySupplementRequest represents the request body for a barcode check.
type VerifySupplementRequest struct {
	Barcode string `json:"barcode"`
}

// VerifySupplement resolves the certification status for a barcode
// without touching any entry. Useful for checking a product before
// logging it.
// POST /supplements/verify
func (h *VerificationHandlers) VerifySupplement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifySupplementRequest
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

	result, err := h.verifier.Verify(ctx, req.Barcode)
	if err != nil {
		if errors.Is(err, verification.ErrVerificationFailed) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeVerificationUnavailable)
			WriteError(w, ctx, http.StatusBadGateway, ErrCodeVerificationUnavailable, "certification authorities unavailable")
			return
		}
		writeServiceError(w, ctx, err)
		return
	}

	writeJSON(w, ctx, http.StatusOK, result)
}

// ClearCache drops every cached verification so the next scans hit the
// authorities again.
// DELETE /supplements/verify/cache
func (h *VerificationHandlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.verifier.ClearCache(ctx); err != nil {
		writeServiceError(w, ctx, err)
		return
	}

	writeJSON(w, ctx, http.StatusOK, map[string]string{"status": "cleared"})
}
