// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package registry

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a version is not in the registry.
	ErrNotFound = errors.New("version not found")

	// ErrNotInitialized is returned when the registry document does not exist yet.
	ErrNotInitialized = fmt.Errorf("registry not initialized: %w", ErrNotFound)

	// ErrCorruptState is returned when the registry document is unreadable or
	// current_version does not resolve to the single ACTIVE record. Callers
	// must halt rather than guess which version is current.
	ErrCorruptState = errors.New("registry state corrupt")

	// ErrDuplicateVersion is returned when inserting a version that already exists.
	ErrDuplicateVersion = errors.New("version already registered")
)

// Status is the lifecycle status of a version record.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// VersionRecord identifies one artifact generation.
type VersionRecord struct {
	Version           string    `json:"version" validate:"required,version_id"`
	CreatedAt         time.Time `json:"created_at" validate:"required"`
	TrainingSamples   int       `json:"training_samples" validate:"gte=0"`
	AdditionalSamples int       `json:"additional_samples" validate:"gte=0"`
	R2Score           float64   `json:"r2_score"`
	OOBScore          float64   `json:"oob_score"`
	Description       string    `json:"description"`
	Status            Status    `json:"status" validate:"oneof=active inactive"`
}

// Document is the persisted registry: the current version id plus every
// record in creation order.
type Document struct {
	CurrentVersion string          `json:"current_version"`
	Versions       []VersionRecord `json:"versions"`
}

func (d *Document) index(version string) int {
	for i := range d.Versions {
		if d.Versions[i].Version == version {
			return i
		}
	}
	return -1
}

// checkInvariant verifies that exactly one record is ACTIVE and that it is
// the one named by CurrentVersion.
func (d *Document) checkInvariant() error {
	active := -1
	for i := range d.Versions {
		if d.Versions[i].Status != StatusActive {
			continue
		}
		if active >= 0 {
			return fmt.Errorf("%w: versions %s and %s are both active",
				ErrCorruptState, d.Versions[active].Version, d.Versions[i].Version)
		}
		active = i
	}

	if active < 0 {
		return fmt.Errorf("%w: no active version", ErrCorruptState)
	}
	if d.Versions[active].Version != d.CurrentVersion {
		return fmt.Errorf("%w: current_version %q but active record is %q",
			ErrCorruptState, d.CurrentVersion, d.Versions[active].Version)
	}
	return nil
}
