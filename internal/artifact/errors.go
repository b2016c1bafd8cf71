// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package artifact

import (
	"errors"

	"github.com/tomtom215/shearguard/internal/fsutil"
)

var (
	// ErrNotFound is returned when no blob exists for a version.
	ErrNotFound = errors.New("artifact not found")

	// ErrIO marks durable-storage failures.
	ErrIO = fsutil.ErrIO

	// ErrInvalidVersion is returned for version keys that cannot name a file.
	ErrInvalidVersion = errors.New("invalid artifact version")

	// ErrCorrupt is returned when a blob fails its checksum or shape checks.
	ErrCorrupt = errors.New("artifact corrupt")
)

// IOError describes a failed filesystem operation on the artifact store.
type IOError = fsutil.IOError
