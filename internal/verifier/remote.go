package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RemoteRunner delegates invocations to a remote verifier service over HTTP.
// The service is assumed to expose the same textual output contract as the
// local binary: the raw (stdout, stderr, exit code) triple comes back
// unchanged and feeds the same parser.
type RemoteRunner struct {
	baseURL string
	client  *http.Client
	sem     chan struct{}

	mu      sync.Mutex
	version string
}

type remoteRunPayload struct {
	Source  string   `json:"source"`
	Args    []string `json:"args"`
	Timeout string   `json:"timeout"`
}

type remoteRunReply struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  int    `json:"exit_code"`
	Killed    bool   `json:"killed"`
	WallClock int64  `json:"wall_clock_millis"`
}

// NewRemoteRunner creates a runner for a remote verifier service.
func NewRemoteRunner(baseURL string, maxConcurrent int) *RemoteRunner {
	if maxConcurrent < 1 {
		maxConcurrent = 16
	}
	return &RemoteRunner{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{}, // per-request deadlines via context
		sem:     make(chan struct{}, maxConcurrent),
	}
}

func (r *RemoteRunner) Run(ctx context.Context, req RunRequest) (*RawResult, error) {
	runID := uuid.New().String()

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return nil, &RunError{RunID: runID, Op: "acquire_slot", Err: ctx.Err()}
	}

	payload, err := json.Marshal(remoteRunPayload{
		Source:  req.Source,
		Args:    req.Args,
		Timeout: req.Timeout.String(),
	})
	if err != nil {
		return nil, &RunError{RunID: runID, Op: "encode_request", Err: err}
	}

	// The remote service enforces the run deadline itself; pad the HTTP
	// deadline so a timed-out run still comes back as a classified result.
	httpCtx, cancel := context.WithTimeout(ctx, req.Timeout+30*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(httpCtx, http.MethodPost, r.baseURL+"/run", bytes.NewReader(payload))
	if err != nil {
		return nil, &RunError{RunID: runID, Op: "build_request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &RunError{RunID: runID, Op: "cancelled", Err: ctx.Err()}
		}
		if isUnreachable(err) {
			return nil, &RunError{
				RunID: runID,
				Op:    "launch",
				Err:   fmt.Errorf("%w: remote verifier %s: %v", ErrVerifierNotFound, r.baseURL, err),
			}
		}
		return nil, &RunError{RunID: runID, Op: "remote_run", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &RunError{
			RunID: runID,
			Op:    "remote_run",
			Err:   fmt.Errorf("remote verifier returned status %d", resp.StatusCode),
		}
	}

	var reply remoteRunReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, &RunError{RunID: runID, Op: "decode_response", Err: err}
	}

	wall := time.Since(start)
	if reply.WallClock > 0 {
		wall = time.Duration(reply.WallClock) * time.Millisecond
	}

	log.Info().
		Str("run_id", runID).
		Int("exit_code", reply.ExitCode).
		Bool("killed", reply.Killed).
		Dur("wall", wall).
		Msg("remote verifier run completed")

	return &RawResult{
		RunID:     runID,
		Stdout:    truncateOutput(reply.Stdout, maxStdoutBytes),
		Stderr:    truncateOutput(reply.Stderr, maxStderrBytes),
		ExitCode:  reply.ExitCode,
		Killed:    reply.Killed,
		WallClock: wall,
	}, nil
}

func (r *RemoteRunner) Version(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.version != "" {
		v := r.version
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, r.baseURL+"/version", nil)
	if err != nil {
		return "", fmt.Errorf("building version request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if isUnreachable(err) {
			return "", fmt.Errorf("%w: remote verifier %s: %v", ErrVerifierNotFound, r.baseURL, err)
		}
		return "", fmt.Errorf("probing remote verifier version: %w", err)
	}
	defer resp.Body.Close()

	var reply struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decoding version response: %w", err)
	}
	if reply.Version == "" {
		reply.Version = "unknown"
	}

	r.mu.Lock()
	r.version = reply.Version
	r.mu.Unlock()

	return reply.Version, nil
}

func (r *RemoteRunner) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// isUnreachable treats connection-level failures like a missing executable:
// the environment is misconfigured and a retry will not help.
func isUnreachable(err error) bool {
	var netErr *net.OpError
	return errors.As(err, &netErr)
}
