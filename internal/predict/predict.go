// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package predict serves shear strength predictions from the current
// artifact.
//
// Nothing notifies the service of a promotion. Each call stats the current
// artifact and re-opens it when its modification time or size changed;
// promotions are atomic renames, so a reader sees the old or the new model
// and never a mix.
package predict

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/shearguard/internal/artifact"
	"github.com/tomtom215/shearguard/internal/dataset"
	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/metrics"
	"github.com/tomtom215/shearguard/internal/validation"
)

// Input is a prediction request. Every feature is required; pointers tell
// a missing field apart from a zero.
type Input struct {
	HMM           *float64 `json:"h_mm" validate:"required,gte=0,lte=10000"`
	DMM           *float64 `json:"d_mm" validate:"required,gte=0,lte=10000"`
	BMM           *float64 `json:"b_mm" validate:"required,gte=0,lte=10000"`
	AMM           *float64 `json:"a_mm" validate:"required,gte=0,lte=10000"`
	AByD          *float64 `json:"abyd" validate:"required,gte=0,lte=10"`
	FckMpa        *float64 `json:"fck_Mpa" validate:"required,gte=0,lte=200"`
	Rho           *float64 `json:"rho" validate:"required,gte=0,lte=0.1"`
	FykMpa        *float64 `json:"fyk_Mpa" validate:"required,gte=0,lte=1000"`
	DaMM          *float64 `json:"da_mm" validate:"required,gte=0,lte=200"`
	PlateTopMM    *float64 `json:"Plate_Top_mm" validate:"required,gte=0,lte=1000"`
	PlateBottomMM *float64 `json:"Plate_Bottom_mm" validate:"required,gte=0,lte=1000"`
}

// InputFromFeatures builds a complete Input.
func InputFromFeatures(f dataset.Features) Input {
	return Input{
		HMM: &f.HMM, DMM: &f.DMM, BMM: &f.BMM, AMM: &f.AMM, AByD: &f.AByD,
		FckMpa: &f.FckMpa, Rho: &f.Rho, FykMpa: &f.FykMpa, DaMM: &f.DaMM,
		PlateTopMM: &f.PlateTopMM, PlateBottomMM: &f.PlateBottomMM,
	}
}

// Features converts a validated Input. Missing fields read as zero.
func (in *Input) Features() dataset.Features {
	v := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	return dataset.Features{
		HMM: v(in.HMM), DMM: v(in.DMM), BMM: v(in.BMM), AMM: v(in.AMM), AByD: v(in.AByD),
		FckMpa: v(in.FckMpa), Rho: v(in.Rho), FykMpa: v(in.FykMpa), DaMM: v(in.DaMM),
		PlateTopMM: v(in.PlateTopMM), PlateBottomMM: v(in.PlateBottomMM),
	}
}

// Prediction is the service response.
type Prediction struct {
	ShearStrengthKN float64          `json:"shear_strength_kn"`
	Confidence      float64          `json:"confidence"`
	ModelVersion    string           `json:"model_version"`
	Input           dataset.Features `json:"input"`
}

type loaded struct {
	bundle  *artifact.Bundle
	modTime time.Time
	size    int64
}

// Service predicts with the current artifact.
type Service struct {
	store *artifact.Store

	mu      sync.RWMutex
	current *loaded
}

// NewService creates a service reading from store. The artifact is opened
// lazily on the first prediction.
func NewService(store *artifact.Store) *Service {
	return &Service{store: store}
}

// Predict validates in and returns the ensemble prediction.
func (s *Service) Predict(ctx context.Context, in *Input) (*Prediction, error) {
	start := time.Now()

	if err := validation.Validate(in); err != nil {
		metrics.RecordPrediction("invalid", time.Since(start))
		return nil, err
	}

	bundle, err := s.Bundle(ctx)
	if err != nil {
		metrics.RecordPrediction("error", time.Since(start))
		return nil, err
	}

	features := in.Features()
	y, err := bundle.Predict(features.Vector())
	if err != nil {
		metrics.RecordPrediction("error", time.Since(start))
		return nil, err
	}

	metrics.RecordPrediction("ok", time.Since(start))
	return &Prediction{
		ShearStrengthKN: y,
		Confidence:      bundle.OOBScore,
		ModelVersion:    bundle.Version,
		Input:           features,
	}, nil
}

// Bundle returns the current artifact, re-opening it if the file changed
// since the last call.
func (s *Service) Bundle(ctx context.Context) (*artifact.Bundle, error) {
	info, err := s.store.Stat(artifact.CurrentKey)
	if err != nil {
		return nil, fmt.Errorf("current model unavailable: %w", err)
	}

	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur != nil && cur.modTime.Equal(info.ModTime()) && cur.size == info.Size() {
		return cur.bundle, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have reloaded while we waited.
	if s.current != nil && s.current.modTime.Equal(info.ModTime()) && s.current.size == info.Size() {
		return s.current.bundle, nil
	}

	blob, err := s.store.Load(artifact.CurrentKey)
	if err != nil {
		return nil, fmt.Errorf("current model unavailable: %w", err)
	}
	bundle, err := artifact.Decode(blob)
	if err != nil {
		return nil, err
	}

	previous := ""
	if s.current != nil {
		previous = s.current.bundle.Version
	}
	s.current = &loaded{bundle: bundle, modTime: info.ModTime(), size: info.Size()}
	metrics.ArtifactReloads.Inc()

	logging.Ctx(ctx).Info().
		Str("version", bundle.Version).
		Str("previous_version", previous).
		Msg("Current model loaded")
	return bundle, nil
}
