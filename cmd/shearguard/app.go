// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/shearguard/internal/artifact"
	"github.com/tomtom215/shearguard/internal/config"
	"github.com/tomtom215/shearguard/internal/dataset"
	"github.com/tomtom215/shearguard/internal/journal"
	"github.com/tomtom215/shearguard/internal/kv"
	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/mirror"
	"github.com/tomtom215/shearguard/internal/orchestrator"
	"github.com/tomtom215/shearguard/internal/predict"
	"github.com/tomtom215/shearguard/internal/registry"
	"github.com/tomtom215/shearguard/internal/submissions"
	"github.com/tomtom215/shearguard/internal/trainer"
)

// kvMode says how much a command depends on the KV store.
type kvMode int

const (
	// kvOptional opens the store for the journal but carries on without it,
	// for example while serve holds the lock.
	kvOptional kvMode = iota

	// kvRequired fails the command when the store cannot be opened.
	kvRequired
)

// app is the wired set of components for one command.
type app struct {
	cfg       *config.Config
	store     *artifact.Store
	registry  *registry.Registry
	loader    *dataset.Loader
	db        *kv.DB
	journal   *journal.Journal
	queue     *submissions.Queue
	mirror    *mirror.Mirror
	orch      *orchestrator.Orchestrator
	predictor *predict.Service
}

// openApp wires every component from cfg.
func openApp(ctx context.Context, cfg *config.Config, mode kvMode) (*app, error) {
	store, err := artifact.NewStore(cfg.Storage.ArtifactDir, cfg.Storage.CurrentArtifact)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		store:     store,
		registry:  registry.New(cfg.Storage.RegistryPath),
		loader:    dataset.NewLoader(cfg.Dataset.BasePath, cfg.Dataset.AdditionalPath),
		predictor: predict.NewService(store),
	}

	kvCfg := kv.DefaultConfig(cfg.KV.Path)
	kvCfg.SyncWrites = cfg.KV.SyncWrites
	kvCfg.GCRatio = cfg.KV.GCRatio
	db, err := kv.Open(kvCfg)
	switch {
	case err == nil:
		a.db = db
		a.journal = journal.New(db)
		a.queue = submissions.NewQueue(db, a.loader)
	case mode == kvRequired:
		return nil, fmt.Errorf("open kv store %s: %w", cfg.KV.Path, err)
	default:
		logging.Warn().Err(err).Str("path", cfg.KV.Path).Msg("KV store unavailable; attempts will not be journaled")
	}

	if cfg.Mirror.Enabled() {
		m, err := mirror.New(ctx, cfg.Mirror)
		if err != nil {
			logging.Warn().Err(err).Str("endpoint", cfg.Mirror.Endpoint).Msg("Mirror unavailable; promotions stay local")
		} else {
			a.mirror = m
		}
	}

	seedCreated, err := cfg.Seed.CreatedAtTime()
	if err != nil {
		a.close()
		return nil, err
	}
	deps := orchestrator.Deps{
		Store:    store,
		Registry: a.registry,
		Trainer: trainer.New(trainer.Config{
			Estimators: cfg.Training.Estimators,
			Lambda:     cfg.Training.Lambda,
			Workers:    cfg.Training.Workers,
			MinSamples: cfg.Training.MinSamples,
		}),
		Dataset: a.loader,
	}
	// Interfaces stay nil when the component is absent.
	if a.journal != nil {
		deps.Journal = a.journal
	}
	if a.mirror != nil {
		deps.Publisher = a.mirror
	}

	a.orch, err = orchestrator.New(deps, orchestrator.Options{
		Threshold:  cfg.Training.Threshold,
		SplitRatio: cfg.Training.SplitRatio,
		Seed:       cfg.Training.Seed,
		SeedRecord: registry.VersionRecord{
			Version:         cfg.Seed.Version,
			CreatedAt:       seedCreated,
			TrainingSamples: cfg.Seed.TrainingSamples,
			R2Score:         cfg.Seed.R2Score,
			OOBScore:        cfg.Seed.OOBScore,
			Description:     cfg.Seed.Description,
			Status:          registry.StatusActive,
		},
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// requireQueue fails when the submission queue is not available.
func (a *app) requireQueue() (*submissions.Queue, error) {
	if a.queue == nil {
		return nil, errors.New("submission queue needs the kv store")
	}
	return a.queue, nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close kv store")
	}
}
