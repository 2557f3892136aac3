package api

import "encoding/json"

// VerifyRequest is the API-level request to verify source text.
type VerifyRequest struct {
	Source string `json:"source"`
	// Mode is "verify" (default) or "resolve" (parse and type-check only).
	Mode          string        `json:"mode,omitempty"`
	Options       VerifyOptions `json:"options,omitempty"`
	TimeoutMillis int64         `json:"timeout_millis,omitempty"`
}

// VerifyOptions are the verifier flags the API exposes.
type VerifyOptions struct {
	Cores                 int      `json:"cores,omitempty"`
	VerificationTimeLimit int      `json:"verification_time_limit,omitempty"`
	ResourceLimit         int      `json:"resource_limit,omitempty"`
	JSONOutput            bool     `json:"json_output,omitempty"`
	ExtraArgs             []string `json:"extra_args,omitempty"`
}

// DiagnosticPayload is one reported problem with a 1-based source position.
type DiagnosticPayload struct {
	Severity  string `json:"severity"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	Message   string `json:"message"`
	Assertion string `json:"assertion,omitempty"`
}

// VerifyResponse is the API-level response after a verification run.
type VerifyResponse struct {
	RunID           string              `json:"run_id"`
	Outcome         string              `json:"outcome"`
	Diagnostics     []DiagnosticPayload `json:"diagnostics"`
	WallClockMillis int64               `json:"wall_clock_millis"`
	ExitCode        int                 `json:"exit_code"`
	Cached          bool                `json:"cached,omitempty"`
	RawJSON         json.RawMessage     `json:"raw_json,omitempty"`
	DebugOutput     string              `json:"debug_output,omitempty"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status          string `json:"status"`
	Verifier        bool   `json:"verifier"`
	VerifierVersion string `json:"verifier_version,omitempty"`
	Database        bool   `json:"database"`
	Uptime          string `json:"uptime"`
}
