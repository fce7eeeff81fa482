package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cleansport/logbook/internal/tracing"
)

// DefaultAuthorityTimeout bounds a single authority lookup. A slow
// authority must not hold up the aggregate decision indefinitely.
const DefaultAuthorityTimeout = 5 * time.Second

// Authority is an external certifying body queried for a barcode.
// Implementations must honour ctx cancellation; a returned error is
// treated as a non-affirming answer by the verifier.
type Authority interface {
	// Name identifies the authority in results, logs, and metrics.
	Name() string

	// Issuer is the certifying organisation recorded on certifications.
	Issuer() string

	// Type is the certification programme the authority attests to.
	Type() CertificationType

	// Check queries the authority for the given barcode.
	Check(ctx context.Context, barcode string) (AuthorityResult, error)
}

// HTTPAuthority queries a certification registry over HTTP. The endpoint
// is expected to accept a barcode query parameter and answer with a JSON
// body of the form {"verified": bool, "valid_until": RFC3339 timestamp}.
type HTTPAuthority struct {
	name    string
	issuer  string
	ctype   CertificationType
	baseURL string
	client  *http.Client
}

// HTTPAuthorityConfig configures an HTTP-backed certification authority.
type HTTPAuthorityConfig struct {
	Name    string
	Issuer  string
	Type    CertificationType
	BaseURL string
	Timeout time.Duration // zero means DefaultAuthorityTimeout
}

// NewHTTPAuthority creates an authority backed by an HTTP registry.
func NewHTTPAuthority(cfg HTTPAuthorityConfig) *HTTPAuthority {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultAuthorityTimeout
	}
	return &HTTPAuthority{
		name:    cfg.Name,
		issuer:  cfg.Issuer,
		ctype:   cfg.Type,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name identifies the authority.
func (a *HTTPAuthority) Name() string { return a.name }

// Issuer is the certifying organisation.
func (a *HTTPAuthority) Issuer() string { return a.issuer }

// Type is the certification programme.
func (a *HTTPAuthority) Type() CertificationType { return a.ctype }

// Check queries the registry endpoint for the barcode.
func (a *HTTPAuthority) Check(ctx context.Context, barcode string) (result AuthorityResult, err error) {
	ctx, endSpan := tracing.StartAuthoritySpan(ctx, a.name)
	defer func() { endSpan(err) }()

	endpoint := fmt.Sprintf("%s?barcode=%s", a.baseURL, url.QueryEscape(barcode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return AuthorityResult{}, fmt.Errorf("build request for %s: %w", a.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return AuthorityResult{}, fmt.Errorf("query %s: %w", a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Unknown barcode is a definitive non-affirming answer, not a failure.
		return AuthorityResult{Verified: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return AuthorityResult{}, fmt.Errorf("query %s: unexpected status %d", a.name, resp.StatusCode)
	}

	var body struct {
		Verified   bool       `json:"verified"`
		ValidUntil *time.Time `json:"valid_until"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return AuthorityResult{}, fmt.Errorf("decode %s response: %w", a.name, err)
	}

	return AuthorityResult{Verified: body.Verified, ValidUntil: body.ValidUntil}, nil
}

// NewNSFAuthority creates the NSF Certified for Sport registry client.
func NewNSFAuthority(baseURL string, timeout time.Duration) *HTTPAuthority {
	return NewHTTPAuthority(HTTPAuthorityConfig{
		Name:    "nsf",
		Issuer:  "NSF International",
		Type:    TypeNSF,
		BaseURL: baseURL,
		Timeout: timeout,
	})
}

// NewInformedSportAuthority creates the Informed Sport registry client.
func NewInformedSportAuthority(baseURL string, timeout time.Duration) *HTTPAuthority {
	return NewHTTPAuthority(HTTPAuthorityConfig{
		Name:    "informed_sport",
		Issuer:  "LGC Group",
		Type:    TypeInformedSport,
		BaseURL: baseURL,
		Timeout: timeout,
	})
}

// NewGlobalDROAuthority creates the Global DRO registry client. Global DRO
// answers are recorded as WADA-compliance attestations.
func NewGlobalDROAuthority(baseURL string, timeout time.Duration) *HTTPAuthority {
	return NewHTTPAuthority(HTTPAuthorityConfig{
		Name:    "global_dro",
		Issuer:  "Global DRO",
		Type:    TypeWADACompliant,
		BaseURL: baseURL,
		Timeout: timeout,
	})
}
