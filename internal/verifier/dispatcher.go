package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"dafny-verifier-bridge/internal/config"
	"dafny-verifier-bridge/internal/monitor"
)

// Service is the externally visible entry point of the core: it validates
// requests, deduplicates them through the result cache, and turns raw
// verifier output into reports. Safe for concurrent use.
type Service struct {
	backend Backend
	cache   *Cache
	metrics *monitor.Metrics
	tracer  *monitor.Tracer

	defaultTimeout time.Duration
	maxTimeout     time.Duration
}

// NewService wires the dispatcher from its collaborators.
func NewService(backend Backend, cache *Cache, metrics *monitor.Metrics, cfg config.VerifierConfig) *Service {
	return &Service{
		backend:        backend,
		cache:          cache,
		metrics:        metrics,
		tracer:         monitor.NewTracer(),
		defaultTimeout: cfg.DefaultTimeout,
		maxTimeout:     cfg.MaxTimeout,
	}
}

// Verify runs one verification request end to end. The bool reports whether
// the result was served from the cache or a shared in-flight run.
//
// Only environment failures return errors: a malformed request, an
// unreachable verifier. Everything the verifier itself does to the subject
// program — including crashing on it — comes back as a Report, because the
// caller must always receive an answer about the program, not an internal
// exception.
func (s *Service) Verify(ctx context.Context, req Request) (*Report, bool, error) {
	if req.Mode == "" {
		req.Mode = ModeVerify
	}
	if req.Timeout == 0 {
		req.Timeout = s.defaultTimeout
	}
	if req.Timeout > s.maxTimeout {
		return nil, false, fmt.Errorf("%w: timeout exceeds %s maximum", ErrInvalidRequest, s.maxTimeout)
	}

	if err := req.Validate(); err != nil {
		s.metrics.RecordError("invalid_request")
		return nil, false, err
	}

	ctx, span := s.tracer.StartSpan(ctx, "verify",
		monitor.AttrMode.String(string(req.Mode)),
	)
	defer span.End()

	// The version participates in the fingerprint so cached results never
	// survive a verifier upgrade. Probing also surfaces a misconfigured
	// binary before any temp file is written.
	version, err := s.backend.Version(ctx)
	if err != nil {
		s.metrics.RecordError("launch")
		return nil, false, err
	}

	fp := req.Fingerprint(version)
	span.SetAttributes(monitor.AttrFingerprint.String(fp.Short()))

	logger := log.With().
		Str("fingerprint", fp.Short()).
		Str("mode", string(req.Mode)).
		Logger()

	report, cached, err := s.cache.GetOrCompute(ctx, fp, func() (*Report, error) {
		r, err := s.compute(ctx, req)
		if err != nil {
			return nil, err
		}
		r.Fingerprint = string(fp)
		return r, nil
	})
	s.metrics.RecordCache(cached)
	if err != nil {
		return nil, false, err
	}

	span.SetAttributes(
		monitor.AttrRunID.String(report.RunID),
		monitor.AttrOutcome.String(string(report.Outcome)),
		monitor.AttrCached.Bool(cached),
		monitor.AttrDurationMS.Int64(report.WallClock.Milliseconds()),
	)

	logger.Info().
		Str("run_id", report.RunID).
		Str("outcome", string(report.Outcome)).
		Bool("cached", cached).
		Int("diagnostics", len(report.Diagnostics)).
		Msg("verification completed")

	return report, cached, nil
}

// compute performs one uncached run: invoke the backend, normalize the raw
// output. Runs at most once per fingerprint under GetOrCompute.
func (s *Service) compute(ctx context.Context, req Request) (*Report, error) {
	s.metrics.ActiveVerifications.Inc()
	defer s.metrics.ActiveVerifications.Dec()

	s.metrics.SourceSizeBytes.Observe(float64(len(req.Source)))

	raw, err := s.backend.Run(ctx, RunRequest{
		Source:  req.Source,
		Args:    req.Options.Args(req.Mode),
		Timeout: req.Timeout,
	})
	if err != nil {
		if IsLaunchFailure(err) {
			s.metrics.RecordError("launch")
		} else {
			s.metrics.RecordError("run")
		}
		return nil, err
	}

	s.metrics.OutputSizeBytes.Observe(float64(len(raw.Stdout) + len(raw.Stderr)))

	report := Parse(raw, req.Options.JSONOutput)
	s.metrics.RecordVerification(string(req.Mode), string(report.Outcome), report.WallClock.Seconds())
	s.metrics.DiagnosticsPerRun.Observe(float64(len(report.Diagnostics)))

	return report, nil
}

// Close releases the backend.
func (s *Service) Close() error {
	return s.backend.Close()
}
