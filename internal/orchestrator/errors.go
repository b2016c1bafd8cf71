// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package orchestrator

import (
	"errors"
	"fmt"

	"github.com/tomtom215/shearguard/internal/artifact"
	"github.com/tomtom215/shearguard/internal/fsutil"
	"github.com/tomtom215/shearguard/internal/registry"
	"github.com/tomtom215/shearguard/internal/trainer"
)

var (
	// ErrNoData is returned when a retrain is requested without additional
	// samples. Nothing is mutated.
	ErrNoData = errors.New("no additional training data")

	// ErrRollbackFailed marks a failed restore of the pre-attempt artifact.
	// The current artifact may no longer match the registry.
	ErrRollbackFailed = errors.New("rollback failed")
)

// Error kinds reported in the journal and in metrics labels.
const (
	KindNoData         = "no_data"
	KindNotFound       = "not_found"
	KindCorruptState   = "corrupt_state"
	KindIO             = "io"
	KindTraining       = "training"
	KindRollbackFailed = "rollback_failed"
	KindUnknown        = "unknown"
)

// RollbackError reports that restoring the backup failed after another
// failure. Both errors stay reachable through errors.Is and errors.As.
type RollbackError struct {
	Cause         error
	RollbackErr   error
	BackupVersion string
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback to %s failed: %v (after: %v)", e.BackupVersion, e.RollbackErr, e.Cause)
}

func (e *RollbackError) Unwrap() []error {
	return []error{ErrRollbackFailed, e.RollbackErr, e.Cause}
}

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRollbackFailed):
		return KindRollbackFailed
	case errors.Is(err, ErrNoData):
		return KindNoData
	case errors.Is(err, registry.ErrCorruptState), errors.Is(err, artifact.ErrCorrupt):
		return KindCorruptState
	case errors.Is(err, trainer.ErrTraining):
		return KindTraining
	case IsNotFound(err):
		return KindNotFound
	case errors.Is(err, fsutil.ErrIO):
		return KindIO
	default:
		return KindUnknown
	}
}

// IsNotFound reports whether err means a version is missing from the
// registry or the artifact store.
func IsNotFound(err error) bool {
	return errors.Is(err, registry.ErrNotFound) || errors.Is(err, artifact.ErrNotFound)
}
