package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	maxStdoutBytes = 1 << 20
	maxStderrBytes = 256 * 1024

	// killGracePeriod is how long Wait may block after the process group
	// has been signalled before the runner gives up on stream copiers.
	killGracePeriod = 5 * time.Second

	versionProbeTimeout = 10 * time.Second
)

// RunRequest is one raw verifier invocation: rendered CLI args plus the
// source text to verify.
type RunRequest struct {
	Source  string
	Args    []string // args excluding the input path, e.g. ["verify", "--cores", "2"]
	Timeout time.Duration
}

// RawResult is the unparsed outcome of one invocation. Killed marks a run
// terminated by the deadline; its partial output must not be trusted.
type RawResult struct {
	RunID     string
	Stdout    string
	Stderr    string
	ExitCode  int
	Killed    bool
	WallClock time.Duration
}

// ProcessRunner invokes the verifier binary as a bounded child process. One
// invocation owns one temp dir and one process group; both are destroyed on
// every exit path.
type ProcessRunner struct {
	bin    string
	sem    chan struct{} // concurrency limiter
	active atomic.Int64
	wg     sync.WaitGroup

	mu      sync.Mutex
	version string // cached --version output
	closed  bool
}

// NewProcessRunner creates a runner for the verifier binary at bin.
func NewProcessRunner(bin string, maxConcurrent int) *ProcessRunner {
	if maxConcurrent < 1 {
		maxConcurrent = 16
	}
	return &ProcessRunner{
		bin: bin,
		sem: make(chan struct{}, maxConcurrent),
	}
}

// Run executes one verifier invocation. Deadline expiry returns a RawResult
// with Killed set rather than an error: a timed-out run is an answer about
// the subject program, not a failure of the runner. Only environment
// problems (binary missing, temp dir unwritable, caller cancellation)
// return errors.
func (r *ProcessRunner) Run(ctx context.Context, req RunRequest) (*RawResult, error) {
	runID := uuid.New().String()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, &RunError{RunID: runID, Op: "run", Err: ErrClosed}
	}
	r.mu.Unlock()

	logger := log.With().
		Str("run_id", runID).
		Str("bin", r.bin).
		Int("source_bytes", len(req.Source)).
		Logger()

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return nil, &RunError{RunID: runID, Op: "acquire_slot", Err: ctx.Err()}
	}

	r.wg.Add(1)
	defer r.wg.Done()
	r.active.Add(1)
	defer r.active.Add(-1)

	workDir, err := os.MkdirTemp("", "dafny-run-"+runID+"-*")
	if err != nil {
		return nil, &RunError{RunID: runID, Op: "create_temp_dir", Err: err}
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			logger.Error().Err(rmErr).Str("dir", workDir).Msg("temp dir cleanup failed")
		}
	}()

	inputPath := filepath.Join(workDir, "input.dfy")
	if err := os.WriteFile(inputPath, []byte(req.Source), 0600); err != nil {
		return nil, &RunError{RunID: runID, Op: "write_source", Err: err}
	}

	execCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	args := append(append([]string{}, req.Args...), inputPath)
	cmd := exec.CommandContext(execCtx, r.bin, args...) // #nosec G204 -- args built by Options.Args, not raw user input
	cmd.Dir = workDir

	// Own process group so a deadline kill reaches the solver processes the
	// verifier spawns, not just the verifier itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killGracePeriod

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	logger.Info().Strs("args", req.Args).Msg("verifier run starting")

	start := time.Now()
	runErr := cmd.Run()
	wall := time.Since(start)

	if runErr != nil && isLaunchFailure(runErr) {
		logger.Error().Err(runErr).Msg("verifier could not be started")
		return nil, &RunError{
			RunID: runID,
			Op:    "launch",
			Err:   fmt.Errorf("%w: %s: %v", ErrVerifierNotFound, r.bin, runErr),
		}
	}

	if ctx.Err() != nil {
		// Caller cancellation took the same kill path as the deadline; the
		// caller is gone, so there is no report to build.
		logger.Warn().Dur("wall", wall).Msg("verifier run cancelled")
		return nil, &RunError{RunID: runID, Op: "cancelled", Err: ctx.Err()}
	}

	if execCtx.Err() == context.DeadlineExceeded {
		logger.Warn().
			Dur("timeout", req.Timeout).
			Dur("wall", wall).
			Msg("verifier run killed by deadline")
		return &RawResult{
			RunID:     runID,
			Stdout:    truncateOutput(stdoutBuf.String(), maxStdoutBytes),
			Stderr:    truncateOutput(stderrBuf.String(), maxStderrBytes),
			ExitCode:  -1,
			Killed:    true,
			WallClock: wall,
		}, nil
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, &RunError{RunID: runID, Op: "run", Err: runErr}
		}
	}

	logger.Info().
		Int("exit_code", exitCode).
		Dur("wall", wall).
		Msg("verifier run completed")

	return &RawResult{
		RunID:     runID,
		Stdout:    truncateOutput(stdoutBuf.String(), maxStdoutBytes),
		Stderr:    truncateOutput(stderrBuf.String(), maxStderrBytes),
		ExitCode:  exitCode,
		WallClock: wall,
	}, nil
}

// Version probes the verifier binary for its version string, cached after
// the first successful probe. Failures are not cached: a missing binary may
// be installed later without restarting the service.
func (r *ProcessRunner) Version(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.version != "" {
		v := r.version
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, r.bin, "--version").Output() // #nosec G204 -- bin from config
	if err != nil {
		if isLaunchFailure(err) {
			return "", fmt.Errorf("%w: %s: %v", ErrVerifierNotFound, r.bin, err)
		}
		return "", fmt.Errorf("probing verifier version: %w", err)
	}

	version := strings.TrimSpace(string(out))
	if i := strings.IndexByte(version, '\n'); i >= 0 {
		version = version[:i]
	}
	if version == "" {
		version = "unknown"
	}

	r.mu.Lock()
	r.version = version
	r.mu.Unlock()

	log.Info().Str("version", version).Msg("verifier version probed")
	return version, nil
}

// ActiveCount returns the number of currently running invocations.
func (r *ProcessRunner) ActiveCount() int64 {
	return r.active.Load()
}

// Close waits for active invocations to drain, bounded at 30s.
func (r *ProcessRunner) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("all verifier runs drained")
	case <-time.After(30 * time.Second):
		log.Warn().Int64("active", r.active.Load()).Msg("timed out waiting for verifier runs to drain")
	}
	return nil
}

// isLaunchFailure distinguishes "the binary could not start" from "the
// binary ran and failed". A missing executable will not appear on retry, so
// callers surface this immediately instead of reporting a crash.
func isLaunchFailure(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}

func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n... [output truncated]"
}
