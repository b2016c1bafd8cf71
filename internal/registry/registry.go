// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package registry is the durable version registry: which artifact versions
// exist, in what order they were created, and which one is current.
//
// The registry document is re-read from disk on every call and rewritten as
// a whole via temp-file-then-rename on every mutation, so a crash can never
// leave a readable document that violates the single-ACTIVE invariant.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shearguard/internal/fsutil"
	"github.com/tomtom215/shearguard/internal/validation"
)

const fileMode = 0o640

// Registry is a file-backed VersionRegistry.
type Registry struct {
	path string
	mu   sync.RWMutex
}

// New returns a registry persisted at path. The file is not touched until
// Initialize or Reset is called.
func New(path string) *Registry {
	return &Registry{path: path}
}

// Path returns the registry document location.
func (r *Registry) Path() string {
	return r.path
}

// Exists reports whether the registry document has been created.
func (r *Registry) Exists() bool {
	_, err := os.Stat(r.path)
	return err == nil
}

// Initialize creates the registry with seed as its only, ACTIVE record.
// It is a no-op when the registry already exists; created reports which
// case applied.
func (r *Registry) Initialize(seed VersionRecord) (created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fsutil.WrapIO("stat", r.path, err)
	}

	if err := r.writeSeedLocked(seed); err != nil {
		return false, err
	}
	return true, nil
}

// GetCurrent returns the ACTIVE record named by current_version.
func (r *Registry) GetCurrent() (VersionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, err := r.loadLocked()
	if err != nil {
		return VersionRecord{}, err
	}
	if err := doc.checkInvariant(); err != nil {
		return VersionRecord{}, err
	}
	return doc.Versions[doc.index(doc.CurrentVersion)], nil
}

// Get returns the record for version.
func (r *Registry) Get(version string) (VersionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, err := r.loadLocked()
	if err != nil {
		return VersionRecord{}, err
	}
	i := doc.index(version)
	if i < 0 {
		return VersionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, version)
	}
	return doc.Versions[i], nil
}

// Has reports whether version is registered. A missing or unreadable
// registry reports false.
func (r *Registry) Has(version string) bool {
	_, err := r.Get(version)
	return err == nil
}

// ListAll returns every record in creation order.
func (r *Registry) ListAll() ([]VersionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, err := r.loadLocked()
	if err != nil {
		return nil, err
	}
	out := make([]VersionRecord, len(doc.Versions))
	copy(out, doc.Versions)
	return out, nil
}

// Snapshot returns the raw registry document bytes.
func (r *Registry) Snapshot() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fsutil.WrapIO("read", r.path, err)
	}
	return data, nil
}

// Promote makes rec the new current version: the previous current record
// flips to INACTIVE, rec is appended as ACTIVE and current_version is set,
// all persisted in one atomic write.
func (r *Registry) Promote(rec VersionRecord) error {
	rec.Status = StatusActive
	if err := validation.Validate(&rec); err != nil {
		return fmt.Errorf("invalid version record: %w", err)
	}

	return r.mutate(func(doc *Document) error {
		if err := doc.checkInvariant(); err != nil {
			return err
		}
		if doc.index(rec.Version) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateVersion, rec.Version)
		}

		doc.Versions[doc.index(doc.CurrentVersion)].Status = StatusInactive
		doc.Versions = append(doc.Versions, rec)
		doc.CurrentVersion = rec.Version
		return nil
	})
}

// RecordBackup appends rec as an INACTIVE record without touching the
// current version.
func (r *Registry) RecordBackup(rec VersionRecord) error {
	rec.Status = StatusInactive
	if err := validation.Validate(&rec); err != nil {
		return fmt.Errorf("invalid version record: %w", err)
	}

	return r.mutate(func(doc *Document) error {
		if err := doc.checkInvariant(); err != nil {
			return err
		}
		if doc.index(rec.Version) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateVersion, rec.Version)
		}
		doc.Versions = append(doc.Versions, rec)
		return nil
	})
}

// Activate makes an already registered version current. Activating the
// current version is a no-op.
func (r *Registry) Activate(version string) error {
	return r.mutate(func(doc *Document) error {
		if err := doc.checkInvariant(); err != nil {
			return err
		}
		target := doc.index(version)
		if target < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, version)
		}
		if version == doc.CurrentVersion {
			return nil
		}

		doc.Versions[doc.index(doc.CurrentVersion)].Status = StatusInactive
		doc.Versions[target].Status = StatusActive
		doc.CurrentVersion = version
		return nil
	})
}

// Reset discards every record and leaves seed as the only, ACTIVE record.
// It works on a missing or corrupt registry as well.
func (r *Registry) Reset(seed VersionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeSeedLocked(seed)
}

func (r *Registry) writeSeedLocked(seed VersionRecord) error {
	seed.Status = StatusActive
	if err := validation.Validate(&seed); err != nil {
		return fmt.Errorf("invalid seed record: %w", err)
	}
	return r.saveLocked(&Document{
		CurrentVersion: seed.Version,
		Versions:       []VersionRecord{seed},
	})
}

// mutate loads the document, applies fn and persists the result. Nothing is
// written when fn fails.
func (r *Registry) mutate(fn func(doc *Document) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.loadLocked()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return r.saveLocked(doc)
}

func (r *Registry) loadLocked() (*Document, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fsutil.WrapIO("read", r.path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrCorruptState, r.path, err)
	}

	seen := make(map[string]struct{}, len(doc.Versions))
	for _, rec := range doc.Versions {
		if _, dup := seen[rec.Version]; dup {
			return nil, fmt.Errorf("%w: duplicate version %s", ErrCorruptState, rec.Version)
		}
		seen[rec.Version] = struct{}{}
	}
	return &doc, nil
}

func (r *Registry) saveLocked(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	data = append(data, '\n')
	return fsutil.WriteFileAtomic(r.path, data, fileMode)
}
