// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package trainer fits the shear-strength model.
//
// The model is a bagged ensemble of ridge regressions over standardized
// features. Each estimator is fitted on a bootstrap resample of the
// training partition; the rows it never saw give the out-of-bag (OOB)
// score. Given the same samples, split ratio and seed the trainer is fully
// deterministic, including when estimators are fitted in parallel.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/shearguard/internal/artifact"
	"github.com/tomtom215/shearguard/internal/dataset"
	"github.com/tomtom215/shearguard/internal/logging"
)

// ErrTraining is returned for every fit failure, including insufficient data.
var ErrTraining = errors.New("training failed")

// Config holds ensemble hyperparameters.
type Config struct {
	Estimators int
	Lambda     float64
	Workers    int
	MinSamples int
}

// DefaultConfig returns the production hyperparameters.
func DefaultConfig() Config {
	return Config{
		Estimators: 100,
		Lambda:     1.0,
		Workers:    runtime.GOMAXPROCS(0),
		MinSamples: 10,
	}
}

// Request is one training job.
type Request struct {
	Samples      []dataset.Sample
	FeatureOrder []string
	SplitRatio   float64
	Seed         int64
}

// Metrics are the quality scores of a fitted candidate.
type Metrics struct {
	R2Train      float64 `json:"r2_train"`
	R2Test       float64 `json:"r2_test"`
	OOBScore     float64 `json:"oob_score"`
	TrainSamples int     `json:"train_samples"`
	TestSamples  int     `json:"test_samples"`
}

// Ensemble is the production Trainer.
type Ensemble struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a trainer. Zero config fields take their defaults.
func New(cfg Config) *Ensemble {
	def := DefaultConfig()
	if cfg.Estimators <= 0 {
		cfg.Estimators = def.Estimators
	}
	if cfg.Lambda <= 0 {
		cfg.Lambda = def.Lambda
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	return &Ensemble{
		cfg:    cfg,
		logger: logging.WithComponent("trainer"),
		now:    time.Now,
	}
}

type fitted struct {
	model artifact.LinearModel
	inBag []bool
}

// Train fits a candidate on req and returns its encoded artifact and metrics.
func (e *Ensemble) Train(ctx context.Context, req Request) ([]byte, Metrics, error) {
	if !slices.Equal(req.FeatureOrder, dataset.FeatureNames) {
		return nil, Metrics{}, fmt.Errorf("%w: unsupported feature order %v", ErrTraining, req.FeatureOrder)
	}
	if req.SplitRatio <= 0 || req.SplitRatio >= 1 {
		return nil, Metrics{}, fmt.Errorf("%w: split ratio %v outside (0,1)", ErrTraining, req.SplitRatio)
	}
	n := len(req.Samples)
	if n < e.cfg.MinSamples {
		return nil, Metrics{}, fmt.Errorf("%w: %d samples, need at least %d", ErrTraining, n, e.cfg.MinSamples)
	}

	start := time.Now()
	x, y := dataset.Matrix(req.Samples)

	trainIdx, testIdx := split(n, req.SplitRatio, req.Seed)
	if len(trainIdx) < 2 || len(testIdx) < 1 {
		return nil, Metrics{}, fmt.Errorf("%w: split %v leaves %d/%d rows", ErrTraining, req.SplitRatio, len(trainIdx), len(testIdx))
	}

	xTrain := pick(x, trainIdx)
	mu, sigma, constant := standardize(xTrain)
	if constant == len(mu) {
		return nil, Metrics{}, fmt.Errorf("%w: every feature is constant", ErrTraining)
	}

	z := make([][]float64, n)
	for i := range x {
		z[i] = make([]float64, len(mu))
		for j := range mu {
			z[i][j] = (x[i][j] - mu[j]) / sigma[j]
		}
	}
	zTrain := pick(z, trainIdx)
	yTrain := pickVec(y, trainIdx)

	models, err := e.fitAll(ctx, zTrain, yTrain, req.Seed)
	if err != nil {
		return nil, Metrics{}, err
	}

	ensemble := artifact.EnsembleState{Lambda: e.cfg.Lambda, Estimators: make([]artifact.LinearModel, len(models))}
	for i, f := range models {
		ensemble.Estimators[i] = f.model
	}

	oob, err := oobScore(models, zTrain, yTrain)
	if err != nil {
		return nil, Metrics{}, err
	}

	metrics := Metrics{
		R2Train:      r2Score(yTrain, predictAll(ensemble, zTrain)),
		R2Test:       r2Score(pickVec(y, testIdx), predictAll(ensemble, pick(z, testIdx))),
		OOBScore:     oob,
		TrainSamples: len(trainIdx),
		TestSamples:  len(testIdx),
	}

	bundle := &artifact.Bundle{
		CreatedAt:       e.now().UTC(),
		TrainingSamples: n,
		R2Score:         metrics.R2Test,
		R2Train:         metrics.R2Train,
		OOBScore:        metrics.OOBScore,
		FeatureNames:    slices.Clone(dataset.FeatureNames),
		Mu:              mu,
		Sigma:           sigma,
		Model:           ensemble,
	}
	blob, err := artifact.Encode(bundle)
	if err != nil {
		return nil, Metrics{}, fmt.Errorf("%w: %v", ErrTraining, err)
	}

	e.logger.Info().
		Int("samples", n).
		Int("estimators", len(models)).
		Float64("r2_train", metrics.R2Train).
		Float64("r2_test", metrics.R2Test).
		Float64("oob_score", metrics.OOBScore).
		Dur("duration", time.Since(start)).
		Msg("Model fitted")

	return blob, metrics, nil
}

// fitAll fits every estimator with a bounded worker group. Estimator i
// always uses seed+i+1, so results do not depend on scheduling.
func (e *Ensemble) fitAll(ctx context.Context, z [][]float64, y []float64, seed int64) ([]fitted, error) {
	models := make([]fitted, e.cfg.Estimators)
	n := len(z)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for b := 0; b < e.cfg.Estimators; b++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rng := rand.New(rand.NewSource(seed + int64(b) + 1)) //nolint:gosec // reproducible resampling, not security
			idx := make([]int, n)
			inBag := make([]bool, n)
			for i := range idx {
				idx[i] = rng.Intn(n)
				inBag[idx[i]] = true
			}

			coef, intercept, err := fitRidge(z, y, idx, e.cfg.Lambda)
			if err != nil {
				return fmt.Errorf("%w: estimator %d: %v", ErrTraining, b, err)
			}
			models[b] = fitted{
				model: artifact.LinearModel{Coef: coef, Intercept: intercept},
				inBag: inBag,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrTraining) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTraining, err)
	}
	return models, nil
}

// oobScore computes R² of each training row predicted only by the
// estimators whose bootstrap sample excluded it.
func oobScore(models []fitted, z [][]float64, y []float64) (float64, error) {
	var yOOB, predOOB []float64
	for i := range z {
		var sum float64
		var count int
		for _, f := range models {
			if f.inBag[i] {
				continue
			}
			sum += f.model.Eval(z[i])
			count++
		}
		if count > 0 {
			yOOB = append(yOOB, y[i])
			predOOB = append(predOOB, sum/float64(count))
		}
	}

	if len(yOOB) < 2 {
		return 0, fmt.Errorf("%w: too few out-of-bag rows (%d) for an OOB score", ErrTraining, len(yOOB))
	}
	score := r2Score(yOOB, predOOB)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: OOB score is not finite", ErrTraining)
	}
	return score, nil
}

func predictAll(m artifact.EnsembleState, z [][]float64) []float64 {
	out := make([]float64, len(z))
	for i, row := range z {
		var sum float64
		for _, est := range m.Estimators {
			sum += est.Eval(row)
		}
		out[i] = sum / float64(len(m.Estimators))
	}
	return out
}

// split shuffles row indices with seed and cuts them into train and test
// partitions. The test size is ceil((1-ratio)*n).
func split(n int, ratio float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n) //nolint:gosec // reproducible split, not security
	nTest := int(math.Ceil((1-ratio)*float64(n) - 1e-9))
	if nTest >= n {
		nTest = n - 1
	}
	return perm[nTest:], perm[:nTest]
}

func pick(rows [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func pickVec(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}
