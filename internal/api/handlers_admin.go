// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/shearguard/internal/auth"
	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/submissions"
	"github.com/tomtom215/shearguard/internal/validation"
)

// RollbackRequest is the body of POST /api/v1/admin/rollback.
type RollbackRequest struct {
	Version string `json:"version" validate:"required,version_id"`
}

// ReviewRequest is the body of POST /api/v1/admin/submissions/{id}/review.
type ReviewRequest struct {
	Approve bool `json:"approve"`
}

const (
	defaultAttemptLimit = 50
	maxAttemptLimit     = 1000
)

// mutationContext detaches a model mutation from the client connection so
// that a dropped request cannot abandon a retrain between backup and
// promote. The configured timeout still applies.
func (h *Handler) mutationContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), h.mutationTimeout)
}

// Retrain handles POST /api/v1/admin/retrain. A rejected candidate is a
// successful call with promoted=false.
func (h *Handler) Retrain(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx, cancel := h.mutationContext(r)
	defer cancel()

	logging.Ctx(ctx).Info().Str("admin", auth.AdminFromContext(ctx)).Msg("Retrain requested")
	res, err := h.lifecycle.Retrain(ctx)
	if err != nil {
		writeServiceError(rw, r, err)
		return
	}
	rw.Success(res)
}

// Rollback handles POST /api/v1/admin/rollback.
func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req RollbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if err := validation.Validate(&req); err != nil {
		writeServiceError(rw, r, err)
		return
	}

	ctx, cancel := h.mutationContext(r)
	defer cancel()

	logging.Ctx(ctx).Info().
		Str("admin", auth.AdminFromContext(ctx)).
		Str("version", req.Version).
		Msg("Rollback requested")
	res, err := h.lifecycle.Rollback(ctx, req.Version)
	if err != nil {
		writeServiceError(rw, r, err)
		return
	}
	rw.Success(res)
}

// Reset handles POST /api/v1/admin/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx, cancel := h.mutationContext(r)
	defer cancel()

	logging.Ctx(ctx).Warn().Str("admin", auth.AdminFromContext(ctx)).Msg("Reset to origin requested")
	res, err := h.lifecycle.ResetToOrigin(ctx)
	if err != nil {
		writeServiceError(rw, r, err)
		return
	}
	rw.Success(res)
}

// Attempts handles GET /api/v1/admin/attempts?limit=N.
func (h *Handler) Attempts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.attempts == nil {
		rw.ServiceUnavailable("attempt journal is disabled")
		return
	}

	limit := defaultAttemptLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxAttemptLimit {
			rw.BadRequest("limit must be between 1 and " + strconv.Itoa(maxAttemptLimit))
			return
		}
		limit = n
	}

	attempts, err := h.attempts.List(r.Context(), limit)
	if err != nil {
		writeServiceError(rw, r, err)
		return
	}
	rw.List(attempts, len(attempts))
}

// Submissions handles GET /api/v1/admin/submissions?status=pending.
func (h *Handler) Submissions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.submissions == nil {
		rw.ServiceUnavailable("submissions are disabled")
		return
	}

	status := submissions.Status(r.URL.Query().Get("status"))
	switch status {
	case "", submissions.StatusPending, submissions.StatusApproved, submissions.StatusRejected:
	default:
		rw.BadRequest("status must be pending, approved or rejected")
		return
	}

	subs, err := h.submissions.List(r.Context(), status)
	if err != nil {
		writeServiceError(rw, r, err)
		return
	}
	rw.List(subs, len(subs))
}

// Review handles POST /api/v1/admin/submissions/{id}/review.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.submissions == nil {
		rw.ServiceUnavailable("submissions are disabled")
		return
	}

	var req ReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	sub, err := h.submissions.Review(r.Context(), chi.URLParam(r, "id"), req.Approve, auth.AdminFromContext(r.Context()))
	if err != nil {
		writeServiceError(rw, r, err)
		return
	}
	rw.Success(sub)
}
