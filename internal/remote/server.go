// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package remote

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/robovox/internal/config"
	"github.com/tomtom215/robovox/internal/logging"
)

// shutdownGrace bounds graceful shutdown; MJPEG clients are cut after it.
const shutdownGrace = 5 * time.Second

// Server runs the supervision HTTP listener as a supervised service.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// NewServer builds the listener. WriteTimeout is deliberately unset so
// MJPEG streams can outlive any fixed deadline; slow-client protection
// comes from ReadHeaderTimeout and the per-part write error handling.
func NewServer(cfg config.RemoteConfig, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: logging.With().Str("component", "remote-server").Logger(),
	}
}

// String names the server in supervisor logs.
func (s *Server) String() string {
	return "remote-server"
}

// Serve listens until the context is canceled, then shuts down
// gracefully. A listen failure is returned to the supervisor.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("supervision server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("forced shutdown")
			//nolint:errcheck // best-effort close after failed graceful shutdown
			s.srv.Close()
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
