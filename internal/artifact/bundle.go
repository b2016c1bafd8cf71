// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package artifact

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// bundleFormat is bumped whenever the gob layout of Bundle changes.
const bundleFormat = 1

// LinearModel is one fitted estimator over standardized features.
type LinearModel struct {
	Coef      []float64
	Intercept float64
}

// EnsembleState is the fitted model: the prediction is the mean of every
// estimator's output.
type EnsembleState struct {
	Estimators []LinearModel
	Lambda     float64
}

// Bundle is the decoded content of an artifact blob: fitted model state,
// the standardization vectors and provenance metadata.
type Bundle struct {
	Version           string
	CreatedAt         time.Time
	TrainingSamples   int
	AdditionalSamples int
	R2Score           float64
	R2Train           float64
	OOBScore          float64

	FeatureNames []string
	Mu           []float64
	Sigma        []float64

	Model EnsembleState
}

// Meta is the subset of Bundle fields stamped onto a candidate at promotion.
type Meta struct {
	Version           string
	CreatedAt         time.Time
	AdditionalSamples int
}

// envelope is the on-disk format: the gob+gzip payload plus its checksum.
type envelope struct {
	Format         int
	Checksum       string
	CompressedData []byte
}

// Validate checks the shape invariants of a bundle.
func (b *Bundle) Validate() error {
	n := len(b.FeatureNames)
	if n == 0 {
		return fmt.Errorf("%w: no feature names", ErrCorrupt)
	}
	if len(b.Mu) != n || len(b.Sigma) != n {
		return fmt.Errorf("%w: mu/sigma length %d/%d, want %d", ErrCorrupt, len(b.Mu), len(b.Sigma), n)
	}
	if len(b.Model.Estimators) == 0 {
		return fmt.Errorf("%w: model has no estimators", ErrCorrupt)
	}
	for i, est := range b.Model.Estimators {
		if len(est.Coef) != n {
			return fmt.Errorf("%w: estimator %d has %d coefficients, want %d", ErrCorrupt, i, len(est.Coef), n)
		}
	}
	return nil
}

// Predict standardizes x with (x-mu)/sigma and returns the ensemble mean.
func (b *Bundle) Predict(x []float64) (float64, error) {
	if len(x) != len(b.Mu) {
		return 0, fmt.Errorf("feature dimension mismatch: got %d, model expects %d", len(x), len(b.Mu))
	}
	if len(b.Model.Estimators) == 0 {
		return 0, fmt.Errorf("%w: model has no estimators", ErrCorrupt)
	}

	z := make([]float64, len(x))
	for i := range x {
		z[i] = (x[i] - b.Mu[i]) / b.Sigma[i]
	}

	var sum float64
	for _, est := range b.Model.Estimators {
		sum += est.Eval(z)
	}
	return sum / float64(len(b.Model.Estimators)), nil
}

// Eval returns the estimator output for an already standardized row.
func (m LinearModel) Eval(z []float64) float64 {
	y := m.Intercept
	for i, c := range m.Coef {
		y += c * z[i]
	}
	return y
}

// Encode serializes a bundle into an artifact blob.
func Encode(b *Bundle) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(b); err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}

	sum := sha256.Sum256(raw.Bytes())

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("compress bundle: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}

	var out bytes.Buffer
	env := envelope{
		Format:         bundleFormat,
		Checksum:       hex.EncodeToString(sum[:]),
		CompressedData: compressed.Bytes(),
	}
	if err := gob.NewEncoder(&out).Encode(env); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return out.Bytes(), nil
}

// Decode parses and verifies an artifact blob.
func Decode(blob []byte) (*Bundle, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: read envelope: %v", ErrCorrupt, err)
	}
	if env.Format != bundleFormat {
		return nil, fmt.Errorf("%w: unsupported format %d", ErrCorrupt, env.Format)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(env.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // close after full read is not actionable

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
	}

	sum := sha256.Sum256(raw)
	if got := hex.EncodeToString(sum[:]); got != env.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch: expected %s, got %s", ErrCorrupt, env.Checksum, got)
	}

	var b Bundle
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: decode bundle: %v", ErrCorrupt, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Stamp rewrites the provenance fields of a blob and re-encodes it.
func Stamp(blob []byte, meta Meta) ([]byte, error) {
	b, err := Decode(blob)
	if err != nil {
		return nil, err
	}
	b.Version = meta.Version
	b.CreatedAt = meta.CreatedAt
	b.AdditionalSamples = meta.AdditionalSamples
	return Encode(b)
}
