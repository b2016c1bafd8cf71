// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package fsutil holds the durable-write primitive shared by the artifact
// store, the version registry and the dataset files.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ErrIO marks durable-storage failures. Every *IOError unwraps to it.
var ErrIO = errors.New("storage I/O failure")

// IOError describes a failed filesystem operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns both ErrIO and the underlying cause so that
// errors.Is(err, ErrIO) and errors.Is(err, fs.ErrPermission) both hold.
func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// WrapIO wraps err as an *IOError. A nil err returns nil.
func WrapIO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// WriteFileAtomic writes data to a temporary file beside path, fsyncs it,
// renames it into place and fsyncs the parent directory so the rename
// survives power loss. The parent directory is created if needed. The
// temporary file is removed on every failure before the rename, so path
// holds either the previous content or data, never a mix.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o750); err != nil {
		return WrapIO("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return WrapIO("create temp", dir, err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return WrapIO("write", tmpPath, err)
	}
	if err = tmp.Sync(); err != nil {
		return WrapIO("sync", tmpPath, err)
	}
	if err = tmp.Close(); err != nil {
		return WrapIO("close", tmpPath, err)
	}
	if err = os.Chmod(tmpPath, perm); err != nil {
		return WrapIO("chmod", tmpPath, err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return WrapIO("rename", path, err)
	}
	if serr := syncDir(dir); serr != nil {
		return WrapIO("sync dir", dir, serr)
	}
	return nil
}

// syncDir flushes a directory entry change to disk. Windows cannot fsync a
// directory handle.
var syncDir = func(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir) //nolint:gosec // dir is the parent of a caller-owned path
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return err
	}
	return d.Close()
}
