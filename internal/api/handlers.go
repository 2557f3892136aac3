package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"dafny-verifier-bridge/internal/monitor"
	"dafny-verifier-bridge/internal/storage"
	"dafny-verifier-bridge/internal/verifier"
)

// VerifyService is the core entry point the transport builds responses from.
type VerifyService interface {
	Verify(ctx context.Context, req verifier.Request) (*verifier.Report, bool, error)
}

type Handlers struct {
	svc     VerifyService
	db      *storage.DB
	history *storage.HistoryWriter
	metrics *monitor.Metrics
}

func NewHandlers(svc VerifyService, db *storage.DB, history *storage.HistoryWriter, metrics *monitor.Metrics) *Handlers {
	return &Handlers{
		svc:     svc,
		db:      db,
		history: history,
		metrics: metrics,
	}
}

func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if req.Source == "" {
		writeError(w, "source is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	coreReq := verifier.Request{
		Source: req.Source,
		Mode:   verifier.Mode(req.Mode),
		Options: verifier.Options{
			Cores:                 req.Options.Cores,
			VerificationTimeLimit: req.Options.VerificationTimeLimit,
			ResourceLimit:         req.Options.ResourceLimit,
			JSONOutput:            req.Options.JSONOutput,
			ExtraArgs:             req.Options.ExtraArgs,
		},
		Timeout: time.Duration(req.TimeoutMillis) * time.Millisecond,
	}

	if h.svc == nil {
		writeError(w, "verifier backend unavailable", "VERIFIER_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	start := time.Now()
	report, cached, err := h.svc.Verify(r.Context(), coreReq)
	if err != nil {
		switch {
		case verifier.IsInvalidRequest(err):
			writeError(w, err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		case verifier.IsLaunchFailure(err):
			log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("verifier launch failed")
			writeError(w, "verifier unavailable", "VERIFIER_UNAVAILABLE", http.StatusServiceUnavailable, r)
		case r.Context().Err() != nil:
			// Client went away; nothing useful to write.
			log.Debug().Str("request_id", RequestIDFromContext(r.Context())).Msg("verification cancelled by client")
		default:
			log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("verification failed")
			writeError(w, "verification failed", "INTERNAL", http.StatusInternalServerError, r)
		}
		return
	}

	resp := buildVerifyResponse(report, cached)
	h.logHistory(report, coreReq, cached, start, r)
	writeJSON(w, http.StatusOK, resp)
}

func buildVerifyResponse(report *verifier.Report, cached bool) VerifyResponse {
	diags := make([]DiagnosticPayload, 0, len(report.Diagnostics))
	for _, d := range report.Diagnostics {
		diags = append(diags, DiagnosticPayload{
			Severity:  string(d.Severity),
			Line:      d.Line,
			Column:    d.Column,
			Message:   d.Message,
			Assertion: d.Assertion,
		})
	}

	return VerifyResponse{
		RunID:           report.RunID,
		Outcome:         string(report.Outcome),
		Diagnostics:     diags,
		WallClockMillis: report.WallClock.Milliseconds(),
		ExitCode:        report.ExitCode,
		Cached:          cached,
		RawJSON:         json.RawMessage(report.RawJSON),
		DebugOutput:     report.DebugOutput,
	}
}

func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "run ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	run, err := h.db.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, "run not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	filter := storage.RunFilter{
		Mode:    r.URL.Query().Get("mode"),
		Outcome: r.URL.Query().Get("outcome"),
		Limit:   100,
	}

	runs, err := h.db.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

func (h *Handlers) logHistory(report *verifier.Report, req verifier.Request, cached bool, start time.Time, r *http.Request) {
	if h.history == nil {
		return
	}

	firstError := ""
	for _, d := range report.Diagnostics {
		if d.Severity == verifier.SeverityError {
			firstError = d.Message
			break
		}
	}

	completedAt := time.Now()
	h.history.Log(&storage.Run{
		ID:          report.RunID,
		Fingerprint: report.Fingerprint,
		Mode:        string(req.Mode),
		Outcome:     string(report.Outcome),
		ExitCode:    report.ExitCode,
		DurationMS:  report.WallClock.Milliseconds(),
		Diagnostics: len(report.Diagnostics),
		FirstError:  firstError,
		SourceBytes: len(req.Source),
		Cached:      cached,
		RequestIP:   r.RemoteAddr,
		CreatedAt:   start,
		CompletedAt: &completedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
