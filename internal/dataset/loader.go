// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package dataset loads the training data: the immutable base dataset the
// seed model was fitted on, and the growing list of additional samples
// approved since.
//
// The base dataset is read through an in-memory DuckDB connection so that
// CSV, Parquet and JSON exports all work without a bespoke parser. The
// additional samples are a JSON array rewritten atomically on every change.
package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	// DuckDB driver registration.
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/shearguard/internal/fsutil"
	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/validation"
)

// ErrEmpty is returned when the base dataset has no usable rows.
var ErrEmpty = errors.New("dataset is empty")

// Loader reads the base dataset and manages the additional-samples file.
type Loader struct {
	basePath       string
	additionalPath string

	// mu serializes read-modify-write cycles on the additional file.
	mu sync.Mutex
}

// NewLoader creates a loader for the given files.
func NewLoader(basePath, additionalPath string) *Loader {
	return &Loader{basePath: basePath, additionalPath: additionalPath}
}

// BasePath returns the base dataset location.
func (l *Loader) BasePath() string {
	return l.basePath
}

// LoadBase reads every complete row of the base dataset. Rows with a NULL
// in any feature or the target are skipped, matching how the seed model
// was fitted.
func (l *Loader) LoadBase(ctx context.Context) ([]Sample, error) {
	if _, err := os.Stat(l.basePath); err != nil {
		return nil, fsutil.WrapIO("stat", l.basePath, err)
	}

	query, err := baseQuery(l.basePath)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("duckdb", ":memory:?autoinstall_known_extensions=false&autoload_known_extensions=false")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = conn.Close() }() //nolint:errcheck // in-memory database, nothing to flush

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query base dataset %s: %w", l.basePath, err)
	}
	defer func() { _ = rows.Close() }() //nolint:errcheck // rows.Err is checked below

	var samples []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(
			&s.HMM, &s.DMM, &s.BMM, &s.AMM, &s.AByD, &s.FckMpa,
			&s.Rho, &s.FykMpa, &s.DaMM, &s.PlateTopMM, &s.PlateBottomMM,
			&s.VKn,
		); err != nil {
			return nil, fmt.Errorf("scan base dataset row: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read base dataset: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, l.basePath)
	}

	logging.Debug().Str("path", l.basePath).Int("rows", len(samples)).Msg("Loaded base dataset")
	return samples, nil
}

// baseQuery builds the DuckDB query for the file, picking the table
// function from its extension.
func baseQuery(path string) (string, error) {
	var reader string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		reader = "read_csv_auto"
	case ".parquet":
		reader = "read_parquet"
	case ".json", ".ndjson":
		reader = "read_json_auto"
	default:
		return "", fmt.Errorf("unsupported base dataset format %q", filepath.Ext(path))
	}

	columns := append(append([]string{}, FeatureNames...), TargetName)
	selects := make([]string, len(columns))
	filters := make([]string, len(columns))
	for i, c := range columns {
		selects[i] = fmt.Sprintf(`CAST(%q AS DOUBLE)`, c)
		filters[i] = fmt.Sprintf(`%q IS NOT NULL`, c)
	}

	literal := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	return fmt.Sprintf("SELECT %s FROM %s(%s) WHERE %s",
		strings.Join(selects, ", "), reader, literal, strings.Join(filters, " AND ")), nil
}

// LoadAdditional returns the additional samples in insertion order. A
// missing file means no additional samples.
func (l *Loader) LoadAdditional(_ context.Context) ([]Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAdditionalLocked()
}

// AppendAdditional validates and appends samples, returning the new total.
func (l *Loader) AppendAdditional(_ context.Context, samples ...Sample) (int, error) {
	for i := range samples {
		if err := validation.Validate(&samples[i]); err != nil {
			return 0, fmt.Errorf("sample %d: %w", i, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.readAdditionalLocked()
	if err != nil {
		return 0, err
	}
	existing = append(existing, samples...)
	if err := l.writeAdditionalLocked(existing); err != nil {
		return 0, err
	}
	return len(existing), nil
}

// ClearAdditional empties the additional-samples file.
func (l *Loader) ClearAdditional(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeAdditionalLocked([]Sample{})
}

func (l *Loader) readAdditionalLocked() ([]Sample, error) {
	data, err := os.ReadFile(l.additionalPath)
	if errors.Is(err, fs.ErrNotExist) {
		return []Sample{}, nil
	}
	if err != nil {
		return nil, fsutil.WrapIO("read", l.additionalPath, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []Sample{}, nil
	}

	var samples []Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("parse additional samples %s: %w", l.additionalPath, err)
	}
	return samples, nil
}

func (l *Loader) writeAdditionalLocked(samples []Sample) error {
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal additional samples: %w", err)
	}
	return fsutil.WriteFileAtomic(l.additionalPath, append(data, '\n'), 0o640)
}

// ReadSamplesFile parses a JSON array of samples from path and validates
// each one. Used by the CLI to accept retrain input files.
func ReadSamplesFile(path string) ([]Sample, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied input file
	if err != nil {
		return nil, fsutil.WrapIO("read", path, err)
	}

	var samples []Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("parse samples %s: %w", path, err)
	}
	for i := range samples {
		if err := validation.Validate(&samples[i]); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return samples, nil
}
