package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Verifier aggregates certification checks for a barcode across multiple
// authorities, with a TTL'd cache in front and a local fallback behind.
type Verifier struct {
	authorities []Authority
	cache       Cache
	supplements SupplementSource
	logger      *slog.Logger
	metrics     *Metrics
	now         func() time.Time
	newID       func() string
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithMetrics attaches verification metrics.
func WithMetrics(m *Metrics) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

// WithClock overrides the verifier's clock. Used in tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier. The supplement source may be nil when no
// local fallback is available; the cache and at least one authority are
// expected for useful results, but nil values degrade gracefully.
func NewVerifier(authorities []Authority, cache Cache, supplements SupplementSource, logger *slog.Logger, opts ...VerifierOption) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Verifier{
		authorities: authorities,
		cache:       cache,
		supplements: supplements,
		logger:      logger,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify resolves the certification status for a barcode.
//
// The cache is consulted first; a fresh hit answers without touching any
// authority. On a miss every authority is queried concurrently, individual
// failures counting as non-affirming. The aggregate is verified when any
// authority affirms, and the union of affirming answers becomes the
// certification list. When every authority fails, the local supplement
// source answers best-effort with Source set to fallback. Only a total
// failure of authorities and fallback returns ErrVerificationFailed; the
// cache is never written in that case.
func (v *Verifier) Verify(ctx context.Context, barcode string) (Result, error) {
	start := v.now()

	if v.cache != nil {
		cached, err := v.cache.Get(ctx, barcode)
		if err == nil {
			cached.Source = SourceCache
			v.observe(SourceCache, start)
			return *cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			// Cache trouble is not fatal; fall through to a live check.
			v.logger.Warn("verification cache read failed", "barcode", barcode, "error", err)
		}
	}

	outcomes := v.queryAuthorities(ctx, barcode)

	var (
		certifications []Certification
		verified       bool
		failures       int
	)
	for _, outcome := range outcomes {
		if outcome.err != nil {
			failures++
			v.logger.Warn("authority query failed",
				"authority", outcome.authority.Name(),
				"barcode", barcode,
				"error", outcome.err)
			if v.metrics != nil {
				v.metrics.IncAuthorityError(outcome.authority.Name())
			}
			continue
		}
		if outcome.result.Verified {
			verified = true
			certifications = append(certifications, Certification{
				ID:         v.newID(),
				Name:       outcome.authority.Name(),
				Issuer:     outcome.authority.Issuer(),
				Type:       outcome.authority.Type(),
				ValidUntil: outcome.result.ValidUntil,
			})
		}
	}

	if failures == len(v.authorities) {
		return v.fallback(ctx, barcode, start)
	}

	result := Result{
		Verified:       verified,
		Certifications: certifications,
		Source:         SourceLive,
		CheckedAt:      v.now(),
	}

	if v.supplements != nil {
		supplement, _, err := v.supplements.LookupByBarcode(ctx, barcode)
		if err == nil {
			result.Supplement = supplement
		} else if !errors.Is(err, ErrSupplementNotFound) {
			v.logger.Warn("supplement lookup failed", "barcode", barcode, "error", err)
		}
	}

	if v.cache != nil {
		if err := v.cache.Put(ctx, barcode, result); err != nil {
			v.logger.Warn("verification cache write failed", "barcode", barcode, "error", err)
		}
	}

	v.observe(SourceLive, start)
	return result, nil
}

// ClearCache drops every cached verification.
func (v *Verifier) ClearCache(ctx context.Context) error {
	if v.cache == nil {
		return nil
	}
	return v.cache.Clear(ctx)
}

// authorityOutcome pairs an authority with its answer or failure.
type authorityOutcome struct {
	authority Authority
	result    AuthorityResult
	err       error
}

// queryAuthorities fans out to every authority concurrently and waits for
// all outcomes. A slow or failing authority never delays the others beyond
// its own timeout.
func (v *Verifier) queryAuthorities(ctx context.Context, barcode string) []authorityOutcome {
	outcomes := make([]authorityOutcome, len(v.authorities))

	var wg sync.WaitGroup
	for i, authority := range v.authorities {
		wg.Add(1)
		go func(i int, authority Authority) {
			defer wg.Done()
			result, err := authority.Check(ctx, barcode)
			outcomes[i] = authorityOutcome{authority: authority, result: result, err: err}
		}(i, authority)
	}
	wg.Wait()

	return outcomes
}

// fallback answers from the local supplement source after every authority
// failed. The result is marked with the fallback source so callers can see
// the degraded confidence; it is not written to the cache.
func (v *Verifier) fallback(ctx context.Context, barcode string, start time.Time) (Result, error) {
	if v.supplements == nil {
		return Result{
			Verified:  false,
			Source:    SourceFallback,
			CheckedAt: v.now(),
			Error:     "all certification authorities unavailable",
		}, fmt.Errorf("%w: all authorities unavailable and no fallback source", ErrVerificationFailed)
	}

	supplement, certs, err := v.supplements.LookupByBarcode(ctx, barcode)
	if err != nil {
		result := Result{
			Verified:  false,
			Source:    SourceFallback,
			CheckedAt: v.now(),
			Error:     "all certification authorities unavailable",
		}
		if errors.Is(err, ErrSupplementNotFound) {
			return result, fmt.Errorf("%w: all authorities unavailable and barcode unknown locally", ErrVerificationFailed)
		}
		return result, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	v.logger.Info("answering verification from local fallback", "barcode", barcode)
	result := Result{
		Verified:       len(certs) > 0,
		Certifications: certs,
		Supplement:     supplement,
		Source:         SourceFallback,
		CheckedAt:      v.now(),
	}
	v.observe(SourceFallback, start)
	return result, nil
}

func (v *Verifier) observe(source Source, start time.Time) {
	if v.metrics != nil {
		v.metrics.ObserveVerify(source, v.now().Sub(start).Seconds())
	}
}
