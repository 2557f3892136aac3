package verifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dafny-verifier-bridge/internal/config"
	"dafny-verifier-bridge/internal/monitor"
)

// fakeBackend replays a canned RawResult and counts invocations.
type fakeBackend struct {
	runs    atomic.Int64
	delay   time.Duration
	result  RawResult
	runErr  error
	version string
	verErr  error
}

func (f *fakeBackend) Run(ctx context.Context, req RunRequest) (*RawResult, error) {
	f.runs.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	out := f.result
	out.RunID = fmt.Sprintf("fake-%d", f.runs.Load())
	return &out, nil
}

func (f *fakeBackend) Version(ctx context.Context) (string, error) {
	if f.verErr != nil {
		return "", f.verErr
	}
	if f.version == "" {
		return "Dafny 4.4.0.0", nil
	}
	return f.version, nil
}

func (f *fakeBackend) Close() error { return nil }

func newTestService(backend Backend) *Service {
	return NewService(backend, NewCache(16), monitor.NewMetrics(), config.VerifierConfig{
		DefaultTimeout: 30 * time.Second,
		MaxTimeout:     5 * time.Minute,
	})
}

func TestService_VerifySuccess(t *testing.T) {
	backend := &fakeBackend{result: RawResult{
		Stdout:   "Dafny program verifier finished with 1 verified, 0 errors\n",
		ExitCode: 0,
	}}
	svc := newTestService(backend)

	report, cached, err := svc.Verify(context.Background(), Request{Source: "method M() {}"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if cached {
		t.Error("first call should not be cached")
	}
	if report.Outcome != OutcomeVerified {
		t.Errorf("Outcome = %q, want %q", report.Outcome, OutcomeVerified)
	}
	if report.Fingerprint == "" {
		t.Error("report missing fingerprint")
	}
}

func TestService_SecondCallCached(t *testing.T) {
	backend := &fakeBackend{result: RawResult{
		Stdout:   "Dafny program verifier finished with 1 verified, 0 errors\n",
		ExitCode: 0,
	}}
	svc := newTestService(backend)
	req := Request{Source: "method M() {}"}

	first, _, err := svc.Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	second, cached, err := svc.Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if !cached {
		t.Error("second call should be cached")
	}
	if second.RunID != first.RunID {
		t.Error("cached report is not the original")
	}
	if n := backend.runs.Load(); n != 1 {
		t.Errorf("backend ran %d times, want 1", n)
	}
}

func TestService_ConcurrentIdenticalRequestsShareOneRun(t *testing.T) {
	backend := &fakeBackend{
		delay: 100 * time.Millisecond,
		result: RawResult{
			Stdout:   "Dafny program verifier finished with 1 verified, 0 errors\n",
			ExitCode: 0,
		},
	}
	svc := newTestService(backend)
	req := Request{Source: "method Shared() {}"}

	const callers = 8
	var wg sync.WaitGroup
	outcomes := make([]Outcome, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			report, _, err := svc.Verify(context.Background(), req)
			errs[i] = err
			if report != nil {
				outcomes[i] = report.Outcome
			}
		}(i)
	}
	wg.Wait()

	if n := backend.runs.Load(); n != 1 {
		t.Errorf("backend ran %d times for identical concurrent requests, want 1", n)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d: %v", i, errs[i])
		}
		if outcomes[i] != OutcomeVerified {
			t.Errorf("caller %d: outcome %q, want %q", i, outcomes[i], OutcomeVerified)
		}
	}
}

func TestService_DistinctOptionsDistinctRuns(t *testing.T) {
	backend := &fakeBackend{result: RawResult{
		Stdout:   "Dafny program verifier finished with 1 verified, 0 errors\n",
		ExitCode: 0,
	}}
	svc := newTestService(backend)

	if _, _, err := svc.Verify(context.Background(), Request{Source: "method M() {}"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Verify(context.Background(), Request{
		Source:  "method M() {}",
		Options: Options{Cores: 2},
	}); err != nil {
		t.Fatal(err)
	}

	if n := backend.runs.Load(); n != 2 {
		t.Errorf("backend ran %d times, want 2 (options differ)", n)
	}
}

func TestService_InvalidRequest(t *testing.T) {
	svc := newTestService(&fakeBackend{})

	tests := []struct {
		name string
		req  Request
	}{
		{"empty source", Request{Source: ""}},
		{"bad mode", Request{Source: "method M() {}", Mode: "compile"}},
		{"timeout over max", Request{Source: "method M() {}", Timeout: time.Hour}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Verify(context.Background(), tt.req)
			if !IsInvalidRequest(err) {
				t.Errorf("err = %v, want an invalid-request error", err)
			}
		})
	}
}

func TestService_LaunchFailureSurfacesBeforeRun(t *testing.T) {
	backend := &fakeBackend{verErr: fmt.Errorf("%w: dafny", ErrVerifierNotFound)}
	svc := newTestService(backend)

	_, _, err := svc.Verify(context.Background(), Request{Source: "method M() {}"})
	if !IsLaunchFailure(err) {
		t.Errorf("err = %v, want a launch failure", err)
	}
	if n := backend.runs.Load(); n != 0 {
		t.Errorf("backend ran %d times, want 0 (version probe failed first)", n)
	}
}

func TestService_RunErrorsNotCached(t *testing.T) {
	backend := &fakeBackend{runErr: errors.New("transient failure")}
	svc := newTestService(backend)
	req := Request{Source: "method M() {}"}

	if _, _, err := svc.Verify(context.Background(), req); err == nil {
		t.Fatal("expected an error")
	}

	backend.runErr = nil
	backend.result = RawResult{
		Stdout:   "Dafny program verifier finished with 1 verified, 0 errors\n",
		ExitCode: 0,
	}

	report, cached, err := svc.Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("Verify after transient failure: %v", err)
	}
	if cached {
		t.Error("failed attempt must not be served from cache")
	}
	if report.Outcome != OutcomeVerified {
		t.Errorf("Outcome = %q, want %q", report.Outcome, OutcomeVerified)
	}
}

func TestService_CrashComesBackAsReport(t *testing.T) {
	backend := &fakeBackend{result: RawResult{
		Stdout:   "Unhandled exception. System.OutOfMemoryException\n",
		ExitCode: 137,
	}}
	svc := newTestService(backend)

	report, _, err := svc.Verify(context.Background(), Request{Source: "method M() {}"})
	if err != nil {
		t.Fatalf("a verifier crash must produce a report, got error %v", err)
	}
	if report.Outcome != OutcomeCrashed {
		t.Errorf("Outcome = %q, want %q", report.Outcome, OutcomeCrashed)
	}
}
