package verifier

import "time"

// Outcome is the top-level classification of a verification run.
type Outcome string

const (
	OutcomeVerified    Outcome = "verified"
	OutcomeFailed      Outcome = "failed"
	OutcomeSyntaxError Outcome = "syntax_error"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeCrashed     Outcome = "crashed"
)

// Severity of a single diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one problem reported by the verifier. Line and Column are
// 1-based, matching Dafny's own convention.
type Diagnostic struct {
	Severity  Severity `json:"severity"`
	Line      int      `json:"line"`
	Column    int      `json:"column"`
	Message   string   `json:"message"`
	Assertion string   `json:"assertion,omitempty"`
}

// Report is the normalized result of one verification run. Diagnostics
// preserve the verifier's emission order: the first reported failure is
// conventionally the most actionable one.
type Report struct {
	RunID       string        `json:"run_id"`
	Fingerprint string        `json:"fingerprint"`
	Outcome     Outcome       `json:"outcome"`
	Diagnostics []Diagnostic  `json:"diagnostics"`
	WallClock   time.Duration `json:"-"`
	ExitCode    int           `json:"exit_code"`

	// RawJSON holds the verifier's own JSON document when json output was
	// requested and stdout decoded cleanly. Opaque: classification never
	// depends on it.
	RawJSON []byte `json:"raw_json,omitempty"`

	// DebugOutput preserves unrecognized verifier output for operator
	// inspection when the outcome is Crashed.
	DebugOutput string `json:"debug_output,omitempty"`
}

// Verified reports whether the run proved every obligation.
func (r *Report) Verified() bool {
	return r.Outcome == OutcomeVerified
}
