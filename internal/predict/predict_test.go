// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package predict

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/shearguard/internal/artifact"
	"github.com/tomtom215/shearguard/internal/dataset"
	"github.com/tomtom215/shearguard/internal/validation"
)

func testBundle(version string, intercept float64) *artifact.Bundle {
	n := len(dataset.FeatureNames)
	sigma := make([]float64, n)
	coef := make([]float64, n)
	for i := range sigma {
		sigma[i] = 1
	}
	coef[0] = 0.5 // h_mm
	return &artifact.Bundle{
		Version:      version,
		OOBScore:     0.8,
		FeatureNames: dataset.FeatureNames,
		Mu:           make([]float64, n),
		Sigma:        sigma,
		Model:        artifact.EnsembleState{Estimators: []artifact.LinearModel{{Coef: coef, Intercept: intercept}}},
	}
}

func install(t *testing.T, store *artifact.Store, currentPath string, b *artifact.Bundle, mtime time.Time) {
	t.Helper()
	blob, err := artifact.Encode(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(artifact.CurrentKey, blob); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(currentPath, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func validInput() *Input {
	in := InputFromFeatures(dataset.Features{
		HMM: 400, DMM: 360, BMM: 200, AMM: 900, AByD: 2.5, FckMpa: 35,
		Rho: 0.015, FykMpa: 500, DaMM: 16, PlateTopMM: 100, PlateBottomMM: 100,
	})
	return &in
}

func TestPredictReloadsOnChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	currentPath := filepath.Join(dir, "current.model")
	store, err := artifact.NewStore(filepath.Join(dir, "versions"), currentPath)
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(store)
	ctx := context.Background()

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	install(t, store, currentPath, testBundle("v1.0.0", 10), t0)

	got, err := svc.Predict(ctx, validInput())
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if math.Abs(got.ShearStrengthKN-210) > 1e-9 {
		t.Errorf("prediction = %v, want 210", got.ShearStrengthKN)
	}
	if got.ModelVersion != "v1.0.0" || got.Confidence != 0.8 {
		t.Errorf("prediction = %+v", got)
	}

	install(t, store, currentPath, testBundle("v1.1.4", 20), t0.Add(time.Minute))
	got, err = svc.Predict(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	if got.ModelVersion != "v1.1.4" || math.Abs(got.ShearStrengthKN-220) > 1e-9 {
		t.Errorf("promoted model not picked up: %+v", got)
	}
}

func TestPredictValidation(t *testing.T) {
	t.Parallel()
	svc := NewService(nil)

	missing := validInput()
	missing.Rho = nil
	outOfRange := validInput()
	big := 50.0
	outOfRange.AByD = &big

	for name, in := range map[string]*Input{"missing": missing, "out of range": outOfRange} {
		_, err := svc.Predict(context.Background(), in)
		var verr *validation.RequestValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: error = %v, want validation error", name, err)
		}
	}
}

func TestPredictWithoutModel(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := artifact.NewStore(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewService(store).Predict(context.Background(), validInput())
	if !errors.Is(err, artifact.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
