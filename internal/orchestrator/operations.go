// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tomtom215/shearguard/internal/artifact"
	"github.com/tomtom215/shearguard/internal/journal"
	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/metrics"
	"github.com/tomtom215/shearguard/internal/registry"
)

// Init bootstraps the registry and current artifact if needed and returns
// the current record.
func (o *Orchestrator) Init(ctx context.Context) (registry.VersionRecord, error) {
	ctx = logging.ContextWithNewCorrelationID(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.bootstrapLocked(ctx); err != nil {
		return registry.VersionRecord{}, err
	}
	current, err := o.currentLocked()
	if err == nil {
		o.refreshMetrics()
	}
	return current, err
}

// RollbackResult describes a manual rollback.
type RollbackResult struct {
	Version         string `json:"version"`
	PreviousVersion string `json:"previous_version"`
	Noop            bool   `json:"noop"`
}

// Rollback makes a registered version current again: its blob is copied
// over the current artifact, then the registry is activated. Rolling back
// to the current version changes nothing.
func (o *Orchestrator) Rollback(ctx context.Context, version string) (*RollbackResult, error) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	attempt := journal.Attempt{
		Kind:          journal.KindRollback,
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		StartedAt:     o.opts.Now().UTC(),
		NewVersion:    version,
	}

	res, err := o.rollback(ctx, version, &attempt)
	switch {
	case err != nil:
		attempt.Outcome = journal.OutcomeFailed
	case res.Noop:
		attempt.Outcome = journal.OutcomeNoop
	default:
		attempt.Outcome = journal.OutcomeSucceeded
		metrics.ManualRollbacks.Inc()
	}
	o.record(ctx, &attempt, err)
	return res, err
}

func (o *Orchestrator) rollback(ctx context.Context, version string, a *journal.Attempt) (*RollbackResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	current, err := o.currentLocked()
	if err != nil {
		return nil, err
	}
	a.PreviousVersion = current.Version

	if _, err := o.registry.Get(version); err != nil {
		return nil, err
	}
	if !o.store.Exists(version) {
		return nil, fmt.Errorf("%w: %s", artifact.ErrNotFound, version)
	}

	res := &RollbackResult{Version: version, PreviousVersion: current.Version}
	if version == current.Version {
		res.Noop = true
		return res, nil
	}

	if err := o.store.Copy(version, artifact.CurrentKey); err != nil {
		return nil, fmt.Errorf("install %s: %w", version, err)
	}
	if err := o.registry.Activate(version); err != nil {
		if rerr := o.store.Copy(current.Version, artifact.CurrentKey); rerr != nil {
			return nil, &RollbackError{Cause: err, RollbackErr: rerr, BackupVersion: current.Version}
		}
		return nil, fmt.Errorf("activate %s: %w", version, err)
	}

	blob, err := o.store.Load(artifact.CurrentKey)
	if err == nil {
		o.publish(ctx, version, blob)
	}
	o.refreshMetrics()

	o.log(ctx).Info().
		Str("version", version).
		Str("previous_version", current.Version).
		Msg("Rolled back to version")
	return res, nil
}

// ResetResult describes a reset to origin.
type ResetResult struct {
	Record         registry.VersionRecord `json:"record"`
	ClearedSamples int                    `json:"cleared_samples"`
	Warnings       []string               `json:"warnings,omitempty"`
}

// ResetToOrigin refits on the base dataset alone, installs the result as
// the seed version unconditionally and truncates the registry to that one
// record. The additional samples are cleared afterwards. The gate is not
// consulted.
func (o *Orchestrator) ResetToOrigin(ctx context.Context) (*ResetResult, error) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	attempt := journal.Attempt{
		Kind:          journal.KindReset,
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		StartedAt:     o.opts.Now().UTC(),
	}
	if current, err := o.registry.GetCurrent(); err == nil {
		attempt.PreviousVersion = current.Version
	}

	res, err := o.reset(ctx)
	if err != nil {
		attempt.Outcome = journal.OutcomeFailed
	} else {
		attempt.Outcome = journal.OutcomeSucceeded
		attempt.NewVersion = res.Record.Version
		attempt.CandidateR2 = res.Record.R2Score
		attempt.CandidateOOB = res.Record.OOBScore
		metrics.Resets.Inc()
	}
	o.record(ctx, &attempt, err)
	return res, err
}

func (o *Orchestrator) reset(ctx context.Context) (*ResetResult, error) {
	o.mu.Lock()
	defer func() {
		o.setState(StateIdle)
		o.mu.Unlock()
	}()

	o.setState(StateTraining)
	rec, err := o.fitSeedLocked(ctx, true)
	if err != nil {
		return nil, err
	}

	res := &ResetResult{Record: rec}
	if pending, err := o.data.LoadAdditional(ctx); err == nil {
		res.ClearedSamples = len(pending)
	}
	if err := o.data.ClearAdditional(ctx); err != nil {
		o.log(ctx).Warn().Err(err).Msg("Failed to clear additional training data")
		res.Warnings = append(res.Warnings, fmt.Sprintf("additional data not cleared: %v", err))
	}

	if blob, err := o.store.Load(artifact.CurrentKey); err == nil {
		res.Warnings = append(res.Warnings, o.publish(ctx, rec.Version, blob)...)
	}
	o.refreshMetrics()

	o.log(ctx).Info().
		Str("version", rec.Version).
		Int("samples", rec.TrainingSamples).
		Int("cleared_samples", res.ClearedSamples).
		Msg("Reset to origin")
	return res, nil
}

// installResetLocked writes the seed blob to its version and to current,
// then truncates the registry. A failure restores the previous blobs.
func (o *Orchestrator) installResetLocked(ctx context.Context, rec registry.VersionRecord, blob []byte) error {
	o.setState(StatePromoting)

	prevCurrent, err := o.loadOptional(artifact.CurrentKey)
	if err != nil {
		return err
	}
	prevSeed, err := o.loadOptional(rec.Version)
	if err != nil {
		return err
	}

	restore := func(cause error) error {
		o.setState(StateErrorRollback)
		o.log(ctx).Warn().Err(cause).Msg("Reset failed, restoring previous artifacts")
		for _, b := range []struct {
			version string
			data    []byte
		}{{rec.Version, prevSeed}, {artifact.CurrentKey, prevCurrent}} {
			if b.data == nil {
				continue
			}
			if err := o.store.Save(b.version, b.data); err != nil {
				return &RollbackError{Cause: cause, RollbackErr: err, BackupVersion: b.version}
			}
		}
		return cause
	}

	if err := o.store.Save(rec.Version, blob); err != nil {
		return err
	}
	if err := o.store.Save(artifact.CurrentKey, blob); err != nil {
		return restore(err)
	}
	if err := o.registry.Reset(rec); err != nil {
		return restore(fmt.Errorf("reset registry: %w", err))
	}
	return nil
}

func (o *Orchestrator) loadOptional(version string) ([]byte, error) {
	blob, err := o.store.Load(version)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, nil
	}
	return blob, err
}

// ModelInfo describes the model currently served.
type ModelInfo struct {
	Record            registry.VersionRecord `json:"record"`
	ArtifactVersion   string                 `json:"artifact_version"`
	ArtifactCreatedAt time.Time              `json:"artifact_created_at"`
	FeatureNames      []string               `json:"feature_names"`
	Estimators        int                    `json:"estimators"`
	Checksum          string                 `json:"checksum"`
	Consistent        bool                   `json:"consistent"`
	PendingSamples    int                    `json:"pending_samples"`
	State             string                 `json:"state"`
}

// CurrentModelInfo reports the current record together with what the
// current artifact actually contains. Consistent is false when the current
// artifact's bytes differ from the blob of the current version.
func (o *Orchestrator) CurrentModelInfo(ctx context.Context) (*ModelInfo, error) {
	current, err := o.registry.GetCurrent()
	if err != nil {
		return nil, err
	}
	blob, err := o.store.Load(artifact.CurrentKey)
	if err != nil {
		return nil, err
	}
	bundle, err := artifact.Decode(blob)
	if err != nil {
		return nil, err
	}
	sum, err := o.store.Checksum(artifact.CurrentKey)
	if err != nil {
		return nil, err
	}

	info := &ModelInfo{
		Record:            current,
		ArtifactVersion:   bundle.Version,
		ArtifactCreatedAt: bundle.CreatedAt,
		FeatureNames:      slices.Clone(bundle.FeatureNames),
		Estimators:        len(bundle.Model.Estimators),
		Checksum:          sum,
		State:             o.State().String(),
	}
	if versionSum, err := o.store.Checksum(current.Version); err == nil {
		info.Consistent = versionSum == sum
	}
	if pending, err := o.data.LoadAdditional(ctx); err == nil {
		info.PendingSamples = len(pending)
	}
	return info, nil
}

// ListVersions returns every registry record in creation order.
func (o *Orchestrator) ListVersions(_ context.Context) ([]registry.VersionRecord, error) {
	return o.registry.ListAll()
}

// PendingSamples returns how many additional samples the next retrain
// would use.
func (o *Orchestrator) PendingSamples(ctx context.Context) (int, error) {
	samples, err := o.data.LoadAdditional(ctx)
	if err != nil {
		return 0, err
	}
	return len(samples), nil
}
