package api

import "net/http"

// RouterConfig carries the handler groups the router mounts. Nil groups
// are skipped, so a deployment can run without the verification or
// compliance surface.
type RouterConfig struct {
	Entries      *EntryHandlers
	Compliance   *ComplianceHandlers
	Verification *VerificationHandlers
	Health       *HealthHandlers
}

// NewRouter builds the API route table. Method routing happens here;
// handlers assume the method already matched.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	if cfg.Entries != nil {
		mux.HandleFunc("POST /entries", cfg.Entries.CreateEntry)
		mux.HandleFunc("GET /entries/{id}", cfg.Entries.GetEntry)
		mux.HandleFunc("PATCH /entries/{id}", cfg.Entries.UpdateEntry)
		mux.HandleFunc("DELETE /entries/{id}", cfg.Entries.DeleteEntry)
		mux.HandleFunc("POST /entries/{id}/verify", cfg.Entries.VerifyEntry)
		mux.HandleFunc("GET /athletes/{id}/entries", cfg.Entries.ListEntries)
	}

	if cfg.Compliance != nil {
		mux.HandleFunc("GET /athletes/{id}/compliance", cfg.Compliance.Summary)
		mux.HandleFunc("GET /athletes/{id}/compliance/export", cfg.Compliance.Export)
	}

	if cfg.Verification != nil {
		mux.HandleFunc("POST /supplements/verify", cfg.Verification.VerifySupplement)
		mux.HandleFunc("DELETE /supplements/verify/cache", cfg.Verification.ClearCache)
	}

	if cfg.Health != nil {
		mux.HandleFunc("GET /health", cfg.Health.Health)
		mux.HandleFunc("GET /ready", cfg.Health.Ready)
	}

	return mux
}
