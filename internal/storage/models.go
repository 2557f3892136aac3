package storage

import "time"

// Run represents a stored verification run record.
type Run struct {
	ID          string     `json:"id" db:"id"`
	Fingerprint string     `json:"fingerprint" db:"fingerprint"`
	Mode        string     `json:"mode" db:"mode"`
	Outcome     string     `json:"outcome" db:"outcome"`
	ExitCode    int        `json:"exit_code" db:"exit_code"`
	DurationMS  int64      `json:"duration_ms" db:"duration_ms"`
	Diagnostics int        `json:"diagnostics" db:"diagnostics"`
	FirstError  string     `json:"first_error,omitempty" db:"first_error"`
	SourceBytes int        `json:"source_bytes" db:"source_bytes"`
	Cached      bool       `json:"cached" db:"cached"`
	RequestIP   string     `json:"request_ip" db:"request_ip"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// RunFilter provides criteria for querying runs.
type RunFilter struct {
	Mode    string
	Outcome string
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}
