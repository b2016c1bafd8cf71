// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/shearguard/internal/artifact"
	"github.com/tomtom215/shearguard/internal/dataset"
	"github.com/tomtom215/shearguard/internal/journal"
	"github.com/tomtom215/shearguard/internal/registry"
	"github.com/tomtom215/shearguard/internal/trainer"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// makeBlob encodes a minimal valid bundle. marker ends up as the intercept
// so that blobs with equal scores still differ.
func makeBlob(t *testing.T, r2, oob, marker float64) []byte {
	t.Helper()
	n := len(dataset.FeatureNames)
	sigma := make([]float64, n)
	for i := range sigma {
		sigma[i] = 1
	}
	blob, err := artifact.Encode(&artifact.Bundle{
		CreatedAt:    testNow,
		R2Score:      r2,
		OOBScore:     oob,
		FeatureNames: dataset.FeatureNames,
		Mu:           make([]float64, n),
		Sigma:        sigma,
		Model: artifact.EnsembleState{
			Estimators: []artifact.LinearModel{{Coef: make([]float64, n), Intercept: marker}},
			Lambda:     1,
		},
	})
	if err != nil {
		t.Fatalf("encode test bundle: %v", err)
	}
	return blob
}

type trainResult struct {
	r2, oob float64
	err     error
	panics  bool
}

// fakeTrainer returns scripted results in order; the last one repeats.
type fakeTrainer struct {
	t       *testing.T
	results []trainResult
	delay   time.Duration
	during  func()

	mu          sync.Mutex
	calls       int
	lastSamples int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeTrainer) Train(_ context.Context, req trainer.Request) ([]byte, trainer.Metrics, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	f.mu.Lock()
	res := f.results[min(f.calls, len(f.results)-1)]
	f.calls++
	call := f.calls
	f.lastSamples = len(req.Samples)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.during != nil {
		f.during()
	}
	if res.panics {
		panic("estimator diverged")
	}
	if res.err != nil {
		return nil, trainer.Metrics{}, res.err
	}
	return makeBlob(f.t, res.r2, res.oob, float64(call)), trainer.Metrics{R2Test: res.r2, OOBScore: res.oob, R2Train: res.r2 + 0.05}, nil
}

func (f *fakeTrainer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDataset struct {
	mu         sync.Mutex
	base       []dataset.Sample
	additional []dataset.Sample
	baseErr    error
	clearErr   error
}

func samples(n int) []dataset.Sample {
	out := make([]dataset.Sample, n)
	for i := range out {
		out[i] = dataset.Sample{Features: dataset.Features{HMM: float64(300 + i), DMM: 250}, VKn: float64(100 + i)}
	}
	return out
}

func (d *fakeDataset) LoadBase(context.Context) ([]dataset.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.base, d.baseErr
}

func (d *fakeDataset) LoadAdditional(context.Context) ([]dataset.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.additional, nil
}

func (d *fakeDataset) ClearAdditional(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.clearErr != nil {
		return d.clearErr
	}
	d.additional = nil
	return nil
}

func (d *fakeDataset) setAdditional(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.additional = samples(n)
}

type memJournal struct {
	mu       sync.Mutex
	attempts []journal.Attempt
}

func (j *memJournal) Record(_ context.Context, a journal.Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts = append(j.attempts, a)
	return nil
}

func (j *memJournal) outcomes() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.attempts))
	for i, a := range j.attempts {
		out[i] = a.Outcome
	}
	return out
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, []byte, []byte) error {
	return errors.New("bucket unreachable")
}

type harness struct {
	orch     *Orchestrator
	store    *artifact.Store
	registry *registry.Registry
	trainer  *fakeTrainer
	data     *fakeDataset
	journal  *memJournal
	dir      string
}

type harnessOpt func(*Deps)

// newHarness builds an orchestrator on temp dirs. Unless seeded is false,
// a current artifact scoring 0.794/0.794 is installed so the registry
// bootstraps from the default seed record.
func newHarness(t *testing.T, seeded bool, results []trainResult, opts ...harnessOpt) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := artifact.NewStore(filepath.Join(dir, "versions"), filepath.Join(dir, "current.model"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if seeded {
		if err := store.Save(artifact.CurrentKey, makeBlob(t, 0.794, 0.794, 0)); err != nil {
			t.Fatal(err)
		}
	}

	h := &harness{
		store:    store,
		registry: registry.New(filepath.Join(dir, "model_versions.json")),
		trainer:  &fakeTrainer{t: t, results: results},
		data:     &fakeDataset{base: samples(20)},
		journal:  &memJournal{},
		dir:      dir,
	}

	deps := Deps{
		Store:    h.store,
		Registry: h.registry,
		Trainer:  h.trainer,
		Dataset:  h.data,
		Journal:  h.journal,
	}
	for _, o := range opts {
		o(&deps)
	}

	options := DefaultOptions()
	options.Now = func() time.Time { return testNow }
	h.orch, err = New(deps, options)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func (h *harness) currentBytes(t *testing.T) []byte {
	t.Helper()
	blob, err := h.store.Load(artifact.CurrentKey)
	if err != nil {
		t.Fatalf("load current artifact: %v", err)
	}
	return blob
}

func (h *harness) currentVersion(t *testing.T) string {
	t.Helper()
	rec, err := h.registry.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent() error = %v", err)
	}
	return rec.Version
}

func assertSingleActive(t *testing.T, reg *registry.Registry) {
	t.Helper()
	all, err := reg.ListAll()
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	current, err := reg.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent() error = %v", err)
	}
	active := 0
	for _, r := range all {
		if r.Status == registry.StatusActive {
			active++
			if r.Version != current.Version {
				t.Errorf("active record %s is not current %s", r.Version, current.Version)
			}
		}
	}
	if active != 1 {
		t.Errorf("%d active records, want exactly 1", active)
	}
}
