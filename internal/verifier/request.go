package verifier

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MaxSourceBytes bounds submitted source text. Matches the transport-level
// request body cap.
const MaxSourceBytes = 1 << 20

// Request is one verification request. Immutable once constructed; the
// dispatcher owns it for the request's lifetime.
type Request struct {
	Source  string
	Mode    Mode
	Options Options
	Timeout time.Duration
}

// Validate checks the request before any process is spawned.
func (r Request) Validate() error {
	if r.Source == "" {
		return fmt.Errorf("%w: source is empty", ErrInvalidRequest)
	}
	if len(r.Source) > MaxSourceBytes {
		return fmt.Errorf("%w: source exceeds %d byte limit", ErrInvalidRequest, MaxSourceBytes)
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedMode, r.Mode)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidRequest)
	}
	return r.Options.Validate()
}

// Fingerprint is the cache and single-flight key: a deterministic hash over
// everything that can change the verifier's answer. The timeout is excluded
// deliberately — it changes when an answer arrives, not what the answer is.
type Fingerprint string

// Fingerprint computes the request's cache key for a given verifier version.
// Options contribute in rendered order: flag order can change verifier
// behavior, so reordered flags are distinct requests.
func (r Request) Fingerprint(verifierVersion string) Fingerprint {
	h := sha256.New()
	writeField := func(s string) {
		fmt.Fprintf(h, "%d:%s", len(s), s)
	}

	writeField(verifierVersion)
	writeField(string(r.Mode))
	for _, arg := range r.Options.Args(r.Mode) {
		writeField(arg)
	}
	writeField(r.Source)

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Short returns a log-friendly prefix of the fingerprint.
func (f Fingerprint) Short() string {
	if len(f) > 16 {
		return string(f[:16])
	}
	return string(f)
}
