package verifier

import (
	"fmt"
	"strconv"
)

// Mode selects the verifier subcommand.
type Mode string

const (
	// ModeVerify runs full verification: parse, type-check, prove.
	ModeVerify Mode = "verify"
	// ModeResolve only parses and type-checks. Faster than verification
	// when the caller just wants syntax and type errors.
	ModeResolve Mode = "resolve"
)

func (m Mode) Valid() bool {
	return m == ModeVerify || m == ModeResolve
}

// Options control how the verifier is invoked. Zero values mean "let the
// verifier decide". The rendered flag order is fixed so that identical
// option sets always fingerprint identically.
type Options struct {
	// Cores limits the number of cores the verifier uses.
	Cores int `json:"cores,omitempty"`
	// VerificationTimeLimit is the per-assertion-batch time limit in
	// seconds, enforced by the verifier itself (distinct from the process
	// deadline, which bounds the whole run).
	VerificationTimeLimit int `json:"verification_time_limit,omitempty"`
	// ResourceLimit caps the solver's resource count, a deterministic
	// alternative to the time limit.
	ResourceLimit int `json:"resource_limit,omitempty"`
	// JSONOutput asks the verifier for machine-readable output. The raw
	// document is attached to the report when it parses.
	JSONOutput bool `json:"json_output,omitempty"`
	// ExtraArgs are appended verbatim after the mapped flags.
	ExtraArgs []string `json:"extra_args,omitempty"`
}

func (o Options) Validate() error {
	if o.Cores < 0 {
		return fmt.Errorf("%w: cores must be >= 0, got %d", ErrInvalidRequest, o.Cores)
	}
	if o.VerificationTimeLimit < 0 {
		return fmt.Errorf("%w: verification_time_limit must be >= 0", ErrInvalidRequest)
	}
	if o.ResourceLimit < 0 {
		return fmt.Errorf("%w: resource_limit must be >= 0", ErrInvalidRequest)
	}
	return nil
}

// Args renders the option set as verifier CLI arguments for the given mode,
// excluding the input path. Mapped flags come first in a fixed order, then
// extra args.
func (o Options) Args(mode Mode) []string {
	args := []string{string(mode)}

	if o.Cores > 0 {
		args = append(args, "--cores", strconv.Itoa(o.Cores))
	}
	if o.VerificationTimeLimit > 0 {
		args = append(args, "--verification-time-limit", strconv.Itoa(o.VerificationTimeLimit))
	}
	if o.ResourceLimit > 0 {
		args = append(args, "--resource-limit", strconv.Itoa(o.ResourceLimit))
	}
	if o.JSONOutput {
		args = append(args, "--json-output")
	}

	args = append(args, o.ExtraArgs...)
	return args
}
