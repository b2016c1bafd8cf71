// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the model lifecycle:
// - retrain attempts, phases and rollbacks
// - the quality of the currently served model
// - prediction traffic
// - off-host mirror uploads
// - HTTP API requests

var (
	// Retrain Metrics
	RetrainAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shearguard_retrain_attempts_total",
			Help: "Total number of retrain attempts by outcome",
		},
		[]string{"outcome"}, // "promoted", "rejected", "no_data", "failed", "rollback_failed"
	)

	RetrainPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shearguard_retrain_duration_seconds",
			Help:    "Duration of retrain phases in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"phase"}, // "backing_up", "training", "validating", "promoting", "total"
	)

	Rollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shearguard_rollbacks_total",
			Help: "Total number of artifact restores by triggering error kind",
		},
		[]string{"reason"},
	)

	ManualRollbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shearguard_manual_rollbacks_total",
			Help: "Total number of operator-requested version activations",
		},
	)

	Resets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shearguard_resets_total",
			Help: "Total number of reset-to-origin operations",
		},
	)

	// Current Model Metrics
	CurrentModelR2 = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shearguard_current_model_r2",
			Help: "Validation R² of the currently active model",
		},
	)

	CurrentModelOOB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shearguard_current_model_oob",
			Help: "Out-of-bag score of the currently active model",
		},
	)

	CurrentModelInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shearguard_current_model_info",
			Help: "Always 1; the version label names the active model",
		},
		[]string{"version"},
	)

	RegistryVersions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shearguard_registry_versions",
			Help: "Number of version records in the registry",
		},
	)

	// Prediction Metrics
	Predictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shearguard_predictions_total",
			Help: "Total number of predictions by status",
		},
		[]string{"status"}, // "success", "invalid", "error"
	)

	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shearguard_prediction_duration_seconds",
			Help:    "Duration of predictions in seconds, including artifact reloads",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	ArtifactReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shearguard_artifact_reloads_total",
			Help: "Total number of times the prediction service re-opened the current artifact",
		},
	)

	// Mirror Metrics
	MirrorUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shearguard_mirror_uploads_total",
			Help: "Total number of off-host mirror uploads by result",
		},
		[]string{"result"}, // "success", "error", "circuit_open"
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shearguard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shearguard_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordRetrain records the outcome and total duration of a retrain attempt.
func RecordRetrain(outcome string, duration time.Duration) {
	RetrainAttempts.WithLabelValues(outcome).Inc()
	RetrainPhaseDuration.WithLabelValues("total").Observe(duration.Seconds())
}

// ObservePhase records how long one orchestrator phase took.
func ObservePhase(phase string, duration time.Duration) {
	RetrainPhaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// SetCurrentModel publishes the active model's version and scores.
func SetCurrentModel(version string, r2, oob float64, registryVersions int) {
	CurrentModelInfo.Reset()
	CurrentModelInfo.WithLabelValues(version).Set(1)
	CurrentModelR2.Set(r2)
	CurrentModelOOB.Set(oob)
	RegistryVersions.Set(float64(registryVersions))
}

// RecordPrediction records a prediction outcome.
func RecordPrediction(status string, duration time.Duration) {
	Predictions.WithLabelValues(status).Inc()
	PredictionDuration.Observe(duration.Seconds())
}

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
