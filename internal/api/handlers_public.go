// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/shearguard/internal/orchestrator"
	"github.com/tomtom215/shearguard/internal/predict"
	"github.com/tomtom215/shearguard/internal/submissions"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	ModelVersion string `json:"model_version,omitempty"`
	State        string `json:"state"`
	Uptime       string `json:"uptime"`
}

// Health reports liveness and the served version. It answers 503 while no
// model can be read.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	resp := HealthResponse{
		Status: "ok",
		State:  h.lifecycle.State().String(),
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
	}

	info, err := h.lifecycle.CurrentModelInfo(r.Context())
	if err != nil {
		resp.Status = "degraded"
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "no model available", resp)
		return
	}
	resp.ModelVersion = info.Record.Version
	rw.Success(resp)
}

// Predict handles POST /api/v1/predict.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var in predict.Input
	if err := decodeJSON(w, r, &in); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	out, err := h.predictor.Predict(r.Context(), &in)
	if err != nil {
		if orchestrator.IsNotFound(err) {
			rw.ServiceUnavailable("no model has been trained yet")
			return
		}
		writeServiceError(rw, r, err)
		return
	}
	rw.Success(out)
}

// ModelInfo handles GET /api/v1/model-info.
func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	info, err := h.lifecycle.CurrentModelInfo(r.Context())
	if err != nil {
		writeServiceError(rw, r, err)
		return
	}
	rw.Success(info)
}

// Versions handles GET /api/v1/versions.
func (h *Handler) Versions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	versions, err := h.lifecycle.ListVersions(r.Context())
	if err != nil {
		writeServiceError(rw, r, err)
		return
	}
	rw.List(versions, len(versions))
}

// Submit handles POST /api/v1/submissions.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.submissions == nil {
		rw.ServiceUnavailable("submissions are disabled")
		return
	}

	var in submissions.NewSubmission
	if err := decodeJSON(w, r, &in); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	sub, err := h.submissions.Submit(r.Context(), in)
	if err != nil {
		writeServiceError(rw, r, err)
		return
	}
	rw.Created(sub)
}
