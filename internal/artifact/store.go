// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package artifact stores serialized model artifacts keyed by version.
//
// Every versioned blob lives at <dir>/<version>.model. One distinguished
// location, addressed with CurrentKey, holds the artifact that is actively
// served; it always mirrors the ACTIVE registry version.
//
// # Atomicity
//
// All writes go to a temporary file in the destination directory which is
// then renamed over the final path. A crash mid-write leaves at most a stray
// temporary file, never a truncated artifact at the final path, and readers
// observe either the old or the new bytes.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tomtom215/shearguard/internal/fsutil"
	"github.com/tomtom215/shearguard/internal/validation"
)

// CurrentKey addresses the actively served artifact instead of a versioned blob.
const CurrentKey = "current"

const (
	blobExt  = ".model"
	fileMode = 0o640
	dirMode  = 0o750
)

// Store is a filesystem-backed ArtifactStore.
type Store struct {
	dir         string
	currentPath string

	// mu orders writers against each other; readers never see partial
	// files regardless, because of rename-into-place.
	mu sync.RWMutex
}

// NewStore creates a store rooted at dir with the current artifact at
// currentPath. Both parent directories are created if missing.
func NewStore(dir, currentPath string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if currentPath == "" {
		currentPath = filepath.Join(dir, CurrentKey+blobExt)
	}

	for _, d := range []string{dir, filepath.Dir(currentPath)} {
		if err := os.MkdirAll(d, dirMode); err != nil {
			return nil, fsutil.WrapIO("mkdir", d, err)
		}
	}

	return &Store{dir: dir, currentPath: currentPath}, nil
}

// Dir returns the directory holding versioned blobs.
func (s *Store) Dir() string {
	return s.dir
}

// Path resolves a version key to its file path.
func (s *Store) Path(version string) (string, error) {
	if version == CurrentKey {
		return s.currentPath, nil
	}
	if !validation.IsVersionID(version) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	return filepath.Join(s.dir, version+blobExt), nil
}

// Save durably persists blob under version, replacing any existing blob.
func (s *Store) Save(version string, blob []byte) error {
	path, err := s.Path(version)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(path, blob)
}

// Load returns the blob stored under version.
func (s *Store) Load(version string) ([]byte, error) {
	path, err := s.Path(version)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return readBlob(version, path)
}

// Copy duplicates the blob at src onto dst, overwriting dst if present.
// Used both for taking backups (current -> backup version) and restoring
// them (backup version -> current).
func (s *Store) Copy(src, dst string) error {
	srcPath, err := s.Path(src)
	if err != nil {
		return err
	}
	dstPath, err := s.Path(dst)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := readBlob(src, srcPath)
	if err != nil {
		return err
	}
	return writeFileAtomic(dstPath, data)
}

// Exists reports whether a blob is stored under version. It has no side effects.
func (s *Store) Exists(version string) bool {
	path, err := s.Path(version)
	if err != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Stat returns file info for the blob stored under version.
func (s *Store) Stat(version string) (fs.FileInfo, error) {
	path, err := s.Path(version)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, version)
	}
	if err != nil {
		return nil, fsutil.WrapIO("stat", path, err)
	}
	return info, nil
}

// Checksum returns the hex SHA-256 of the blob stored under version.
func (s *Store) Checksum(version string) (string, error) {
	data, err := s.Load(version)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Versions lists the versioned blobs present on disk, sorted by name.
func (s *Store) Versions() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fsutil.WrapIO("readdir", s.dir, err)
	}

	var versions []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, blobExt) {
			continue
		}
		v := strings.TrimSuffix(name, blobExt)
		if validation.IsVersionID(v) {
			versions = append(versions, v)
		}
	}
	sort.Strings(versions)
	return versions, nil
}

func readBlob(version, path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from a validated version key
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, version)
	}
	if err != nil {
		return nil, fsutil.WrapIO("read", path, err)
	}
	return data, nil
}

func writeFileAtomic(path string, data []byte) error {
	return fsutil.WriteFileAtomic(path, data, fileMode)
}
