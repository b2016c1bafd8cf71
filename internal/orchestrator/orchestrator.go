// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package orchestrator sequences the model lifecycle: backing up the
// current artifact, training a candidate, gating it against the current
// version and promoting it or restoring the backup.
//
// # State Machine
//
//	IDLE -> BACKING_UP -> TRAINING -> VALIDATING -> PROMOTING -> IDLE
//	                                             -> REJECTED  -> IDLE
//	BACKING_UP | TRAINING | VALIDATING | PROMOTING -> ERROR_ROLLBACK -> IDLE
//
// Retrain, Rollback and ResetToOrigin all hold one mutex for their whole
// run, so no two mutations of the artifact/registry pair interleave. A
// second caller blocks until the first returns.
//
// # Failure Handling
//
// Any failure after the backup has been taken restores the backup over the
// current artifact. The registry is never touched on that path: its
// current_version was not changed before the failure, so it still matches
// the restored bytes. If the restore itself fails a *RollbackError is
// returned, which wraps ErrRollbackFailed together with both errors.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/shearguard/internal/artifact"
	"github.com/tomtom215/shearguard/internal/dataset"
	"github.com/tomtom215/shearguard/internal/gate"
	"github.com/tomtom215/shearguard/internal/journal"
	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/metrics"
	"github.com/tomtom215/shearguard/internal/registry"
	"github.com/tomtom215/shearguard/internal/trainer"
)

// Trainer fits a candidate artifact.
type Trainer interface {
	Train(ctx context.Context, req trainer.Request) ([]byte, trainer.Metrics, error)
}

// Dataset supplies training samples.
type Dataset interface {
	LoadBase(ctx context.Context) ([]dataset.Sample, error)
	LoadAdditional(ctx context.Context) ([]dataset.Sample, error)
	ClearAdditional(ctx context.Context) error
}

// Journal records finished attempts.
type Journal interface {
	Record(ctx context.Context, a journal.Attempt) error
}

// Publisher copies the current artifact and registry document somewhere
// off-host. Failures are logged, never fatal.
type Publisher interface {
	Publish(ctx context.Context, version string, blob, registryDoc []byte) error
}

// Deps are the collaborators of an Orchestrator. Journal and Publisher
// are optional.
type Deps struct {
	Store     *artifact.Store
	Registry  *registry.Registry
	Trainer   Trainer
	Dataset   Dataset
	Journal   Journal
	Publisher Publisher
}

// Options tune the retrain flow.
type Options struct {
	// Threshold is the minimum R² or OOB gain a candidate needs. Zero
	// promotes any candidate that is not worse on one metric; a negative
	// value selects gate.DefaultThreshold. Unlike the other fields, zero is
	// not replaced, so start from DefaultOptions.
	Threshold float64

	// SplitRatio is the training share of the train/validation split.
	SplitRatio float64

	// Seed fixes the split and the ensemble for reproducibility.
	Seed int64

	// SeedRecord describes the shipped baseline. It is only used when the
	// registry is created next to an existing current artifact.
	SeedRecord registry.VersionRecord

	// Now is the clock for version ids and record timestamps.
	Now func() time.Time
}

// DefaultSeedRecord is the baseline that shipped with the first model.
func DefaultSeedRecord() registry.VersionRecord {
	return registry.VersionRecord{
		Version:         "v1.0.0",
		CreatedAt:       time.Date(2025, 9, 12, 19, 47, 22, 0, time.UTC),
		TrainingSamples: 978,
		R2Score:         0.794,
		OOBScore:        0.794,
		Description:     "Original model trained on 978 samples",
		Status:          registry.StatusActive,
	}
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		Threshold:  gate.DefaultThreshold,
		SplitRatio: 0.8,
		Seed:       43,
		SeedRecord: DefaultSeedRecord(),
		Now:        time.Now,
	}
}

// Outcome is the non-error result of a retrain.
type Outcome string

const (
	OutcomePromoted Outcome = "promoted"
	OutcomeRejected Outcome = "rejected"
)

// Result describes a completed retrain, promoted or rejected.
type Result struct {
	Outcome           Outcome         `json:"outcome"`
	Promoted          bool            `json:"promoted"`
	Version           string          `json:"version"`
	PreviousVersion   string          `json:"previous_version"`
	BackupVersion     string          `json:"backup_version"`
	Candidate         trainer.Metrics `json:"candidate"`
	Current           gate.Metrics    `json:"current"`
	Gate              gate.Result     `json:"gate"`
	TrainingSamples   int             `json:"training_samples"`
	AdditionalSamples int             `json:"additional_samples"`
	CorrelationID     string          `json:"correlation_id"`
	Duration          time.Duration   `json:"duration_ns"`
	Warnings          []string        `json:"warnings,omitempty"`
}

// Orchestrator owns every mutation of the artifact store and registry.
type Orchestrator struct {
	store     *artifact.Store
	registry  *registry.Registry
	trainer   Trainer
	data      Dataset
	journal   Journal
	publisher Publisher
	opts      Options
	logger    zerolog.Logger

	mu    sync.Mutex
	state atomic.Int32
}

// New creates an orchestrator. Zero option fields other than Threshold
// take their defaults.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Store == nil || deps.Registry == nil || deps.Trainer == nil || deps.Dataset == nil {
		return nil, errors.New("orchestrator requires store, registry, trainer and dataset")
	}

	def := DefaultOptions()
	if opts.Threshold < 0 {
		opts.Threshold = def.Threshold
	}
	if opts.SplitRatio <= 0 || opts.SplitRatio >= 1 {
		opts.SplitRatio = def.SplitRatio
	}
	if opts.SeedRecord.Version == "" {
		opts.SeedRecord = def.SeedRecord
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}

	return &Orchestrator{
		store:     deps.Store,
		registry:  deps.Registry,
		trainer:   deps.Trainer,
		data:      deps.Dataset,
		journal:   deps.Journal,
		publisher: deps.Publisher,
		opts:      opts,
		logger:    logging.WithComponent("orchestrator"),
	}, nil
}

// State returns the current state machine position.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

func (o *Orchestrator) log(ctx context.Context) *zerolog.Logger {
	l := o.logger.With().Str("correlation_id", logging.CorrelationIDFromContext(ctx)).Logger()
	return &l
}

// Retrain runs one backup, train, validate, promote-or-reject cycle over
// the base dataset plus every additional sample. It returns ErrNoData
// without mutating anything when there are no additional samples. A
// rejected candidate is a normal result, not an error.
func (o *Orchestrator) Retrain(ctx context.Context) (*Result, error) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	start := time.Now()
	attempt := journal.Attempt{
		Kind:          journal.KindRetrain,
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		StartedAt:     o.opts.Now().UTC(),
	}

	res, err := o.retrain(ctx, &attempt)

	switch {
	case err == nil:
		res.CorrelationID = attempt.CorrelationID
		res.Duration = time.Since(start)
		attempt.Outcome = string(res.Outcome)
	case errors.Is(err, ErrNoData):
		attempt.Outcome = journal.OutcomeNoData
	case attempt.Outcome == "":
		attempt.Outcome = journal.OutcomeFailed
	}
	metrics.RecordRetrain(attempt.Outcome, time.Since(start))
	o.record(ctx, &attempt, err)

	return res, err
}

func (o *Orchestrator) retrain(ctx context.Context, a *journal.Attempt) (*Result, error) {
	log := o.log(ctx)

	// Additional samples are read under the lock; a reset queued ahead of
	// this call may have cleared them.
	o.mu.Lock()
	defer func() {
		o.setState(StateIdle)
		o.mu.Unlock()
	}()

	additional, err := o.data.LoadAdditional(ctx)
	if err != nil {
		return nil, fmt.Errorf("load additional data: %w", err)
	}
	if len(additional) == 0 {
		log.Info().Msg("No additional training data, nothing to retrain")
		return nil, ErrNoData
	}
	a.AdditionalSamples = len(additional)

	if err := o.bootstrapLocked(ctx); err != nil {
		return nil, err
	}
	current, err := o.currentLocked()
	if err != nil {
		return nil, err
	}
	a.PreviousVersion = current.Version
	a.CurrentR2, a.CurrentOOB = current.R2Score, current.OOBScore

	// BACKING_UP
	o.setState(StateBackingUp)
	phase := time.Now()
	backup := unique(backupID(current.Version, o.opts.Now()), "_", o.taken)
	if err := o.store.Copy(artifact.CurrentKey, backup); err != nil {
		return nil, fmt.Errorf("back up current artifact: %w", err)
	}
	a.BackupVersion = backup
	err = o.registry.RecordBackup(registry.VersionRecord{
		Version:           backup,
		CreatedAt:         o.opts.Now().UTC(),
		TrainingSamples:   current.TrainingSamples,
		AdditionalSamples: current.AdditionalSamples,
		R2Score:           current.R2Score,
		OOBScore:          current.OOBScore,
		Description:       fmt.Sprintf("Backup of %s before retraining", current.Version),
	})
	if err != nil {
		return nil, o.rollbackLocked(ctx, a, fmt.Errorf("record backup: %w", err))
	}
	metrics.ObservePhase("backup", time.Since(phase))
	log.Info().Str("backup_version", backup).Str("current_version", current.Version).Msg("Current artifact backed up")

	// TRAINING
	o.setState(StateTraining)
	phase = time.Now()
	base, err := o.data.LoadBase(ctx)
	if err != nil {
		return nil, o.rollbackLocked(ctx, a, fmt.Errorf("load base dataset: %w", err))
	}
	combined := make([]dataset.Sample, 0, len(base)+len(additional))
	combined = append(combined, base...)
	combined = append(combined, additional...)

	blob, candidate, err := o.train(ctx, combined)
	if err != nil {
		return nil, o.rollbackLocked(ctx, a, err)
	}
	a.CandidateR2, a.CandidateOOB = candidate.R2Test, candidate.OOBScore
	metrics.ObservePhase("train", time.Since(phase))

	// VALIDATING
	o.setState(StateValidating)
	current, err = o.registry.GetCurrent()
	if err != nil {
		return nil, o.rollbackLocked(ctx, a, fmt.Errorf("reload current record: %w", err))
	}
	currentMetrics := gate.Metrics{R2: current.R2Score, OOB: current.OOBScore}
	decision := gate.Decide(gate.Metrics{R2: candidate.R2Test, OOB: candidate.OOBScore}, currentMetrics, o.opts.Threshold)

	res := &Result{
		Version:           current.Version,
		PreviousVersion:   current.Version,
		BackupVersion:     backup,
		Candidate:         candidate,
		Current:           currentMetrics,
		Gate:              decision,
		TrainingSamples:   len(combined),
		AdditionalSamples: len(additional),
	}

	if decision.Decision == gate.Reject {
		o.setState(StateRejected)
		res.Outcome = OutcomeRejected
		log.Info().
			Str("current_version", current.Version).
			Str("gate", decision.String()).
			Msg("Candidate rejected, current model kept")
		return res, nil
	}

	// PROMOTING
	o.setState(StatePromoting)
	phase = time.Now()
	newVersion := unique(promotedID(current.Version, len(additional)), "-", o.taken)
	now := o.opts.Now().UTC()

	stamped, err := artifact.Stamp(blob, artifact.Meta{Version: newVersion, CreatedAt: now, AdditionalSamples: len(additional)})
	if err != nil {
		return nil, o.rollbackLocked(ctx, a, fmt.Errorf("stamp candidate: %w", err))
	}
	if err := o.store.Save(newVersion, stamped); err != nil {
		return nil, o.rollbackLocked(ctx, a, fmt.Errorf("save candidate: %w", err))
	}
	if err := o.store.Copy(newVersion, artifact.CurrentKey); err != nil {
		return nil, o.rollbackLocked(ctx, a, fmt.Errorf("install candidate: %w", err))
	}
	err = o.registry.Promote(registry.VersionRecord{
		Version:           newVersion,
		CreatedAt:         now,
		TrainingSamples:   len(combined),
		AdditionalSamples: len(additional),
		R2Score:           candidate.R2Test,
		OOBScore:          candidate.OOBScore,
		Description:       fmt.Sprintf("Retrained with %d additional samples", len(additional)),
	})
	if err != nil {
		return nil, o.rollbackLocked(ctx, a, fmt.Errorf("promote %s: %w", newVersion, err))
	}
	metrics.ObservePhase("promote", time.Since(phase))

	a.NewVersion = newVersion
	res.Outcome = OutcomePromoted
	res.Promoted = true
	res.Version = newVersion
	res.Warnings = o.publish(ctx, newVersion, stamped)
	o.refreshMetrics()

	log.Info().
		Str("version", newVersion).
		Str("previous_version", current.Version).
		Str("gate", decision.String()).
		Msg("Candidate promoted")
	return res, nil
}

// rollbackLocked restores the attempt's backup over the current artifact
// and returns cause, or a *RollbackError when the restore fails.
func (o *Orchestrator) rollbackLocked(ctx context.Context, a *journal.Attempt, cause error) error {
	o.setState(StateErrorRollback)
	log := o.log(ctx)
	log.Warn().Err(cause).Str("backup_version", a.BackupVersion).Msg("Attempt failed, restoring backup")

	if err := o.store.Copy(a.BackupVersion, artifact.CurrentKey); err != nil {
		metrics.Rollbacks.WithLabelValues(KindRollbackFailed).Inc()
		log.Error().Err(err).Str("backup_version", a.BackupVersion).Msg("Restoring backup failed, current artifact may not match registry")
		return &RollbackError{Cause: cause, RollbackErr: err, BackupVersion: a.BackupVersion}
	}

	metrics.Rollbacks.WithLabelValues(Kind(cause)).Inc()
	a.Outcome = journal.OutcomeRolledBack
	log.Info().Str("backup_version", a.BackupVersion).Msg("Backup restored")
	return fmt.Errorf("restored backup %s: %w", a.BackupVersion, cause)
}

// train calls the trainer, converting panics and foreign errors into
// trainer.ErrTraining.
func (o *Orchestrator) train(ctx context.Context, samples []dataset.Sample) (blob []byte, m trainer.Metrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: trainer panic: %v", trainer.ErrTraining, r)
		}
	}()

	blob, m, err = o.trainer.Train(ctx, trainer.Request{
		Samples:      samples,
		FeatureOrder: dataset.FeatureNames,
		SplitRatio:   o.opts.SplitRatio,
		Seed:         o.opts.Seed,
	})
	if err != nil && !errors.Is(err, trainer.ErrTraining) {
		err = fmt.Errorf("%w: %w", trainer.ErrTraining, err)
	}
	return blob, m, err
}

// currentLocked returns the current record after checking that its blob
// exists.
func (o *Orchestrator) currentLocked() (registry.VersionRecord, error) {
	current, err := o.registry.GetCurrent()
	if err != nil {
		return current, err
	}
	if !o.store.Exists(current.Version) {
		return current, fmt.Errorf("%w: no artifact stored for current version %s", registry.ErrCorruptState, current.Version)
	}
	return current, nil
}

// bootstrapLocked makes sure a registry and a current artifact exist.
//
// With neither present a seed model is fitted on the base dataset. With
// only the artifact present the registry is created from the configured
// seed record and the artifact is kept as that version's blob. A registry
// without a current artifact is corrupt.
func (o *Orchestrator) bootstrapLocked(ctx context.Context) error {
	hasCurrent := o.store.Exists(artifact.CurrentKey)
	hasRegistry := o.registry.Exists()

	switch {
	case !hasCurrent && hasRegistry:
		return fmt.Errorf("%w: registry %s exists but the current artifact is missing", registry.ErrCorruptState, o.registry.Path())
	case !hasCurrent:
		_, err := o.fitSeedLocked(ctx, false)
		return err
	}

	seed := o.opts.SeedRecord
	created, err := o.registry.Initialize(seed)
	if err != nil {
		return fmt.Errorf("initialize registry: %w", err)
	}
	if !created {
		return nil
	}
	if !o.store.Exists(seed.Version) {
		if err := o.store.Copy(artifact.CurrentKey, seed.Version); err != nil {
			return fmt.Errorf("store seed artifact: %w", err)
		}
	}
	o.log(ctx).Info().Str("version", seed.Version).Msg("Registry initialized from existing artifact")
	return nil
}

// fitSeedLocked trains on the base dataset alone and installs the result
// as the seed version. With reset set the registry is truncated to the new
// seed; otherwise it is created.
func (o *Orchestrator) fitSeedLocked(ctx context.Context, reset bool) (registry.VersionRecord, error) {
	seed := o.opts.SeedRecord

	base, err := o.data.LoadBase(ctx)
	if err != nil {
		return registry.VersionRecord{}, fmt.Errorf("load base dataset: %w", err)
	}
	blob, m, err := o.train(ctx, base)
	if err != nil {
		return registry.VersionRecord{}, err
	}

	now := o.opts.Now().UTC()
	stamped, err := artifact.Stamp(blob, artifact.Meta{Version: seed.Version, CreatedAt: now})
	if err != nil {
		return registry.VersionRecord{}, fmt.Errorf("stamp seed: %w", err)
	}
	rec := registry.VersionRecord{
		Version:         seed.Version,
		CreatedAt:       now,
		TrainingSamples: len(base),
		R2Score:         m.R2Test,
		OOBScore:        m.OOBScore,
		Description:     fmt.Sprintf("Original model trained on %d samples", len(base)),
		Status:          registry.StatusActive,
	}

	if reset {
		return rec, o.installResetLocked(ctx, rec, stamped)
	}

	if err := o.store.Save(seed.Version, stamped); err != nil {
		return rec, err
	}
	if err := o.store.Save(artifact.CurrentKey, stamped); err != nil {
		return rec, err
	}
	if _, err := o.registry.Initialize(rec); err != nil {
		return rec, fmt.Errorf("initialize registry: %w", err)
	}
	o.log(ctx).Info().
		Str("version", rec.Version).
		Int("samples", rec.TrainingSamples).
		Float64("r2_score", rec.R2Score).
		Float64("oob_score", rec.OOBScore).
		Msg("Seed model trained")
	return rec, nil
}

func (o *Orchestrator) publish(ctx context.Context, version string, blob []byte) []string {
	if o.publisher == nil {
		return nil
	}
	doc, err := o.registry.Snapshot()
	if err == nil {
		err = o.publisher.Publish(ctx, version, blob, doc)
	}
	if err != nil {
		o.log(ctx).Warn().Err(err).Str("version", version).Msg("Publishing to mirror failed")
		return []string{fmt.Sprintf("mirror publish failed: %v", err)}
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, a *journal.Attempt, err error) {
	a.FinishedAt = o.opts.Now().UTC()
	if err != nil {
		a.Error = err.Error()
		a.ErrorKind = Kind(err)
	}
	if o.journal == nil {
		return
	}
	if jerr := o.journal.Record(context.WithoutCancel(ctx), *a); jerr != nil {
		o.log(ctx).Warn().Err(jerr).Str("kind", string(a.Kind)).Msg("Failed to journal attempt")
	}
}

// refreshMetrics publishes the current record's gauges. A registry read
// failure leaves them at their last values until the next operation.
func (o *Orchestrator) refreshMetrics() {
	current, err := o.registry.GetCurrent()
	if err != nil {
		o.logger.Debug().Err(err).Msg("Model gauges not refreshed: no current record")
		return
	}
	all, err := o.registry.ListAll()
	if err != nil {
		o.logger.Debug().Err(err).Msg("Model gauges not refreshed: registry unreadable")
		return
	}
	metrics.SetCurrentModel(current.Version, current.R2Score, current.OOBScore, len(all))
}
