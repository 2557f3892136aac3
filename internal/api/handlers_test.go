package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dafny-verifier-bridge/internal/monitor"
	"dafny-verifier-bridge/internal/verifier"
)

// fakeVerifyService returns a canned report or error and records the last
// request it saw.
type fakeVerifyService struct {
	report  *verifier.Report
	cached  bool
	err     error
	lastReq verifier.Request
}

func (f *fakeVerifyService) Verify(ctx context.Context, req verifier.Request) (*verifier.Report, bool, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, false, f.err
	}
	return f.report, f.cached, nil
}

func newTestHandlers(svc VerifyService) *Handlers {
	return NewHandlers(svc, nil, nil, monitor.NewMetrics())
}

func postVerify(t *testing.T, h *Handlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/verify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleVerify(rec, req)
	return rec
}

func TestHandleVerify_Success(t *testing.T) {
	svc := &fakeVerifyService{
		report: &verifier.Report{
			RunID:   "run-abc",
			Outcome: verifier.OutcomeFailed,
			Diagnostics: []verifier.Diagnostic{
				{Severity: verifier.SeverityError, Line: 10, Column: 3, Message: "assertion might not hold"},
			},
			WallClock: 1500 * time.Millisecond,
			ExitCode:  4,
		},
	}
	h := newTestHandlers(svc)

	rec := postVerify(t, h, `{"source": "method M() { assert false; }", "timeout_millis": 30000}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp VerifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	if resp.RunID != "run-abc" {
		t.Errorf("RunID = %q, want %q", resp.RunID, "run-abc")
	}
	if resp.Outcome != "failed" {
		t.Errorf("Outcome = %q, want %q", resp.Outcome, "failed")
	}
	if len(resp.Diagnostics) != 1 || resp.Diagnostics[0].Line != 10 {
		t.Errorf("Diagnostics = %+v", resp.Diagnostics)
	}
	if resp.WallClockMillis != 1500 {
		t.Errorf("WallClockMillis = %d, want 1500", resp.WallClockMillis)
	}
	if resp.ExitCode != 4 {
		t.Errorf("ExitCode = %d, want 4", resp.ExitCode)
	}

	if svc.lastReq.Timeout != 30*time.Second {
		t.Errorf("service saw timeout %v, want 30s", svc.lastReq.Timeout)
	}
}

func TestHandleVerify_CachedFlag(t *testing.T) {
	svc := &fakeVerifyService{
		report: &verifier.Report{RunID: "run-1", Outcome: verifier.OutcomeVerified},
		cached: true,
	}
	h := newTestHandlers(svc)

	rec := postVerify(t, h, `{"source": "method M() {}"}`)

	var resp VerifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Cached {
		t.Error("Cached = false, want true")
	}
}

func TestHandleVerify_OptionsForwarded(t *testing.T) {
	svc := &fakeVerifyService{
		report: &verifier.Report{RunID: "run-1", Outcome: verifier.OutcomeVerified},
	}
	h := newTestHandlers(svc)

	postVerify(t, h, `{
		"source": "method M() {}",
		"mode": "resolve",
		"options": {"cores": 2, "verification_time_limit": 20, "json_output": true}
	}`)

	if svc.lastReq.Mode != verifier.ModeResolve {
		t.Errorf("Mode = %q, want resolve", svc.lastReq.Mode)
	}
	if svc.lastReq.Options.Cores != 2 {
		t.Errorf("Cores = %d, want 2", svc.lastReq.Options.Cores)
	}
	if svc.lastReq.Options.VerificationTimeLimit != 20 {
		t.Errorf("VerificationTimeLimit = %d, want 20", svc.lastReq.Options.VerificationTimeLimit)
	}
	if !svc.lastReq.Options.JSONOutput {
		t.Error("JSONOutput = false, want true")
	}
}

func TestHandleVerify_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed JSON",
			body:       `{"source": `,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "missing source",
			body:       `{"mode": "verify"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "invalid request from core",
			body:       `{"source": "method M() {}", "mode": "compile"}`,
			svcErr:     fmt.Errorf("%w: \"compile\"", verifier.ErrUnsupportedMode),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "verifier missing",
			body:       `{"source": "method M() {}"}`,
			svcErr:     fmt.Errorf("%w: dafny", verifier.ErrVerifierNotFound),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "VERIFIER_UNAVAILABLE",
		},
		{
			name:       "internal failure",
			body:       `{"source": "method M() {}"}`,
			svcErr:     fmt.Errorf("pipe burst"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandlers(&fakeVerifyService{err: tt.svcErr})
			rec := postVerify(t, h, tt.body)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding error response: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestHandleGetRun_NoDatabase(t *testing.T) {
	h := newTestHandlers(&fakeVerifyService{})

	req := httptest.NewRequest("GET", "/runs/some-id", nil)
	req.SetPathValue("id", "some-id")
	rec := httptest.NewRecorder()
	h.HandleGetRun(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleListRuns_NoDatabase(t *testing.T) {
	h := newTestHandlers(&fakeVerifyService{})

	rec := httptest.NewRecorder()
	h.HandleListRuns(rec, httptest.NewRequest("GET", "/runs", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
