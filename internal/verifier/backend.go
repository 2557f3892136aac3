package verifier

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"dafny-verifier-bridge/internal/config"
)

// Backend runs raw verifier invocations. The local subprocess runner and the
// remote HTTP variant sit behind the same interface; both feed the same
// parser downstream.
type Backend interface {
	Run(ctx context.Context, req RunRequest) (*RawResult, error)
	Version(ctx context.Context) (string, error)
	Close() error
}

// NewBackend picks the verifier backend: a remote service when one is
// configured, the local binary otherwise.
func NewBackend(cfg *config.Config) (Backend, error) {
	preference := cfg.Verifier.Backend
	if preference == "" {
		preference = "auto"
	}

	switch preference {
	case "local":
		log.Info().Str("bin", cfg.Verifier.Bin).Msg("using local verifier backend")
		return NewProcessRunner(cfg.Verifier.Bin, cfg.Verifier.MaxConcurrent), nil
	case "remote":
		log.Info().Str("url", cfg.Verifier.RemoteURL).Msg("using remote verifier backend")
		return NewRemoteRunner(cfg.Verifier.RemoteURL, cfg.Verifier.MaxConcurrent), nil
	case "auto":
		if cfg.Verifier.RemoteURL != "" {
			log.Info().Str("url", cfg.Verifier.RemoteURL).Msg("using remote verifier backend")
			return NewRemoteRunner(cfg.Verifier.RemoteURL, cfg.Verifier.MaxConcurrent), nil
		}
		log.Info().Str("bin", cfg.Verifier.Bin).Msg("using local verifier backend")
		return NewProcessRunner(cfg.Verifier.Bin, cfg.Verifier.MaxConcurrent), nil
	default:
		return nil, fmt.Errorf("unknown backend %q: must be auto, local, or remote", preference)
	}
}
