// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package remote

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/robovox/internal/config"
	"github.com/tomtom215/robovox/internal/logging"
	"github.com/tomtom215/robovox/internal/middleware"
)

// NewRouter builds the supervision HTTP routing tree. The CIDR
// allow-list gates everything, including /metrics.
func NewRouter(cfg config.RemoteConfig, h *Handler) (http.Handler, error) {
	allowList, err := middleware.CIDRAllowList(cfg.AllowedCIDRs)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(jsonRecoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(allowList)
	r.Use(middleware.PrometheusMetrics)

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
	r.Get("/telemetry", h.Status)
	r.With(httprate.LimitByIP(cfg.IntentRateLimit, time.Minute)).Post("/intent", h.Intent)
	r.Get("/stream/mjpeg", h.StreamMJPEG)
	r.Handle("/metrics", promhttp.Handler())

	return r, nil
}

// jsonRecoverer converts handler panics into a 500 with a JSON error
// body; the server keeps serving.
func jsonRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("handler panic recovered")
				writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
