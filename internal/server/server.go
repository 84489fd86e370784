// Package server runs the HTTP server hosting the API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/akilapilapitiya/TrueGate-sub001/internal/shutdown"
)

// Config holds the listener settings.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLSEnabled   bool
	CertFile     string
	KeyFile      string
}

type Server struct {
	httpServer *http.Server
	config     Config
	logger     *zap.Logger
	shutdown   *shutdown.Manager
}

func New(cfg Config, handler http.Handler, sd *shutdown.Manager, logger *zap.Logger) *Server {
	srv := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		config:   cfg,
		logger:   logger,
		shutdown: sd,
	}

	sd.Register("http server", srv.httpServer.Shutdown)

	return srv
}

// Run serves until the context is cancelled or the listener fails, then
// executes the shutdown steps with a bounded grace period.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("server listening",
			zap.String("addr", s.httpServer.Addr),
			zap.Bool("tls", s.config.TLSEnabled))

		var err error
		if s.config.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.shutdown.Shutdown(shutdownCtx)
}
