package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"dafny-verifier-bridge/internal/config"
	"dafny-verifier-bridge/internal/monitor"
	"dafny-verifier-bridge/internal/storage"
	"dafny-verifier-bridge/internal/verifier"
)

// Server is the main HTTP server for the verifier bridge API.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	cfg        *config.Config
	backend    verifier.Backend
	startTime  time.Time
}

// NewServer creates and configures the HTTP server with all routes and middleware.
func NewServer(cfg *config.Config, svc VerifyService, backend verifier.Backend, db *storage.DB, history *storage.HistoryWriter, metrics *monitor.Metrics) *Server {
	handlers := NewHandlers(svc, db, history, metrics)

	s := &Server{
		handlers:  handlers,
		cfg:       cfg,
		backend:   backend,
		startTime: time.Now(),
	}

	if len(cfg.Security.AllowedKeys) == 0 {
		log.Warn().Msg("no API keys configured, all requests will be accepted")
	}

	// Verification API — wrapped with auth
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /verify", handlers.HandleVerify)
	apiMux.HandleFunc("GET /runs", handlers.HandleListRuns)
	apiMux.HandleFunc("GET /runs/{id}", handlers.HandleGetRun)

	authedAPI := AuthMiddleware(cfg.Security.AllowedKeys)(apiMux)

	// Top-level mux: health/metrics bypass auth, everything else goes through auth
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth(db))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/", authedAPI)

	// Apply middleware chain (outermost first)
	var handler http.Handler = mux
	handler = MetricsMiddleware(metrics)(handler)
	handler = RateLimitMiddleware(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)(handler)
	handler = MaxBodyMiddleware(cfg.Server.MaxRequestBody)(handler)
	handler = SecurityHeadersMiddleware(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start begins listening for requests.
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbOK := db == nil || db.Healthy(r.Context())

		resp := HealthResponse{
			Status:   "ok",
			Database: dbOK,
			Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		}

		if s.backend != nil {
			if version, err := s.backend.Version(r.Context()); err == nil {
				resp.Verifier = true
				resp.VerifierVersion = version
			}
		}

		if !dbOK || !resp.Verifier {
			resp.Status = "degraded"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, resp)
	}
}
