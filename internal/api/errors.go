// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/orchestrator"
	"github.com/tomtom215/shearguard/internal/submissions"
	"github.com/tomtom215/shearguard/internal/validation"
)

// writeServiceError maps a lifecycle error onto a status code. Messages for
// 5xx responses stay generic; the cause is logged with the request's IDs.
func writeServiceError(rw *ResponseWriter, r *http.Request, err error) {
	var verr *validation.RequestValidationError
	switch {
	case errors.As(err, &verr):
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	case errors.Is(err, orchestrator.ErrNoData):
		rw.Error(http.StatusUnprocessableEntity, ErrCodeNoData, "no additional training data")
		return
	case errors.Is(err, submissions.ErrAlreadyReviewed):
		rw.Conflict(err.Error())
		return
	case errors.Is(err, submissions.ErrNotFound), orchestrator.IsNotFound(err):
		rw.NotFound(err.Error())
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		rw.ServiceUnavailable("operation did not finish in time")
		return
	}

	logging.Ctx(r.Context()).Error().Err(err).
		Str("error_kind", orchestrator.Kind(err)).
		Str("path", r.URL.Path).
		Msg("Request failed")

	switch orchestrator.Kind(err) {
	case orchestrator.KindRollbackFailed:
		rw.Error(http.StatusInternalServerError, ErrCodeRollbackFailed,
			"operation failed and the previous model could not be restored")
	case orchestrator.KindCorruptState:
		rw.Error(http.StatusInternalServerError, ErrCodeCorruptState, "model store is in an inconsistent state")
	case orchestrator.KindTraining:
		rw.Error(http.StatusInternalServerError, ErrCodeTrainingFailed, "training failed; previous model restored")
	default:
		rw.InternalError("internal error")
	}
}
