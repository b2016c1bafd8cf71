// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shearguard/internal/journal"
	"github.com/tomtom215/shearguard/internal/orchestrator"
	"github.com/tomtom215/shearguard/internal/predict"
	"github.com/tomtom215/shearguard/internal/registry"
	"github.com/tomtom215/shearguard/internal/submissions"
)

// Lifecycle is the slice of the orchestrator the HTTP surface drives.
type Lifecycle interface {
	Retrain(ctx context.Context) (*orchestrator.Result, error)
	Rollback(ctx context.Context, version string) (*orchestrator.RollbackResult, error)
	ResetToOrigin(ctx context.Context) (*orchestrator.ResetResult, error)
	CurrentModelInfo(ctx context.Context) (*orchestrator.ModelInfo, error)
	ListVersions(ctx context.Context) ([]registry.VersionRecord, error)
	State() orchestrator.State
}

// Predictor serves predictions from the current artifact.
type Predictor interface {
	Predict(ctx context.Context, in *predict.Input) (*predict.Prediction, error)
}

// SubmissionQueue is the research-submission review queue.
type SubmissionQueue interface {
	Submit(ctx context.Context, in submissions.NewSubmission) (*submissions.Submission, error)
	List(ctx context.Context, status submissions.Status) ([]submissions.Submission, error)
	Review(ctx context.Context, id string, approve bool, reviewer string) (*submissions.Submission, error)
}

// AttemptLister reads the retrain journal.
type AttemptLister interface {
	List(ctx context.Context, limit int) ([]journal.Attempt, error)
}

// Handler holds the collaborators behind every route.
//
// Handler methods are split across files:
//   - handlers_public.go: health, predict, model info, versions, submit
//   - handlers_admin.go: retrain, rollback, reset, attempts, review
type Handler struct {
	lifecycle   Lifecycle
	predictor   Predictor
	submissions SubmissionQueue
	attempts    AttemptLister

	// mutationTimeout bounds retrain and reset started over HTTP.
	mutationTimeout time.Duration
	startTime       time.Time
}

// HandlerDeps groups NewHandler arguments. Submissions and Attempts may be
// nil; their routes then answer 503.
type HandlerDeps struct {
	Lifecycle       Lifecycle
	Predictor       Predictor
	Submissions     SubmissionQueue
	Attempts        AttemptLister
	MutationTimeout time.Duration
}

// NewHandler creates a Handler.
func NewHandler(deps HandlerDeps) *Handler {
	timeout := deps.MutationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Handler{
		lifecycle:       deps.Lifecycle,
		predictor:       deps.Predictor,
		submissions:     deps.Submissions,
		attempts:        deps.Attempts,
		mutationTimeout: timeout,
		startTime:       time.Now(),
	}
}

const maxBodyBytes = 1 << 20

// decodeJSON reads one JSON object from the request body. Unknown fields are
// rejected so that typos in feature names do not silently read as missing.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
