package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cleansport/logbook/internal/idempotency"
)

func idempotentEntryRoutes() map[string]bool {
	return map[string]bool{"/entries": true}
}

func TestIdempotency_MissingKeyRejected(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	handler := Idempotency(repo, idempotentEntryRoutes())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/entries", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestIdempotency_ReplaysCachedResponse(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	calls := 0
	handler := Idempotency(repo, idempotentEntryRoutes())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"entry-1"}`))
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/entries", strings.NewReader(`{}`))
		req.Header.Set(IdempotencyKeyHeader, "retry-key-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("request %d: got status %d, want %d", i+1, rec.Code, http.StatusCreated)
		}
		if body := rec.Body.String(); body != `{"id":"entry-1"}` {
			t.Fatalf("request %d: got body %q", i+1, body)
		}
	}

	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}

func TestIdempotency_ErrorResponsesNotCached(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	calls := 0
	handler := Idempotency(repo, idempotentEntryRoutes())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/entries", strings.NewReader(`{}`))
		req.Header.Set(IdempotencyKeyHeader, "retry-key-2")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	// The failed first attempt must not be replayed; the retry runs the
	// handler again.
	if calls != 2 {
		t.Errorf("handler ran %d times, want 2", calls)
	}
}

func TestIdempotency_IgnoresOtherRoutesAndMethods(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	handler := Idempotency(repo, idempotentEntryRoutes())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"GET on idempotent route", http.MethodGet, "/entries"},
		{"POST on unlisted route", http.MethodPost, "/supplements/verify"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No Idempotency-Key header: these must pass through anyway.
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("got status %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}

func TestIdempotency_RejectsOverlongKey(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	handler := Idempotency(repo, idempotentEntryRoutes())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/entries", strings.NewReader(`{}`))
	req.Header.Set(IdempotencyKeyHeader, strings.Repeat("k", 65))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
