package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"cgm-alerts/internal/logging"
)

// Server serves the Prometheus endpoint and a health probe.
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer builds a metrics server listening on addr.
func NewServer(addr, path string, logger zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           Handler(path),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logging.Component(logger, "metrics_server"),
	}
}

// Handler returns the mux with the metrics and health routes.
func Handler(path string) http.Handler {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("metrics server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
