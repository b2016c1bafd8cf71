// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package api is the HTTP surface of serve: predictions and model info for
// clients, research submissions, and admin routes that drive the retrain
// lifecycle.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/shearguard/internal/auth"
)

// RouterConfig configures NewRouter. Admin routes are mounted only when
// Admin is set.
type RouterConfig struct {
	Middleware MiddlewareConfig
	Admin      *auth.BasicAuthenticator
	Mutations  *auth.MutationLimiter
}

// NewRouter builds the chi router.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg.Middleware))
	r.Use(PrometheusMetrics)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SecurityHeaders())
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(cfg.Middleware))
			r.Post("/predict", h.Predict)
			r.Post("/submissions", h.Submit)
		})
		r.Get("/model-info", h.ModelInfo)
		r.Get("/versions", h.Versions)

		if cfg.Admin == nil {
			return
		}
		mutations := cfg.Mutations
		if mutations == nil {
			mutations = auth.NewMutationLimiter(12)
		}

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin(cfg.Admin))

			r.Get("/versions", h.Versions)
			r.Get("/attempts", h.Attempts)
			r.Get("/submissions", h.Submissions)
			r.Post("/submissions/{id}/review", h.Review)

			r.Group(func(r chi.Router) {
				r.Use(LimitMutations(mutations))
				r.Post("/retrain", h.Retrain)
				r.Post("/rollback", h.Rollback)
				r.Post("/reset", h.Reset)
			})
		})
	})

	return r
}
