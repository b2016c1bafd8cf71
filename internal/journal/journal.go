// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package journal keeps an append-only history of lifecycle attempts
// (retrain, rollback, reset) in the KV store, including rejected and
// failed ones that never reach the version registry.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/shearguard/internal/kv"
)

const keyPrefix = "attempt:"

// Kind names the lifecycle operation an attempt performed.
type Kind string

const (
	KindRetrain  Kind = "retrain"
	KindRollback Kind = "rollback"
	KindReset    Kind = "reset"
)

// Outcome values recorded for attempts.
const (
	OutcomePromoted   = "promoted"
	OutcomeRejected   = "rejected"
	OutcomeRolledBack = "rolled_back"
	OutcomeNoData     = "no_data"
	OutcomeFailed     = "failed"
	OutcomeSucceeded  = "succeeded"
	OutcomeNoop       = "noop"
)

// Attempt is one journaled lifecycle operation.
type Attempt struct {
	ID                string    `json:"id"`
	Kind              Kind      `json:"kind"`
	CorrelationID     string    `json:"correlation_id,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Outcome           string    `json:"outcome"`
	Error             string    `json:"error,omitempty"`
	ErrorKind         string    `json:"error_kind,omitempty"`
	PreviousVersion   string    `json:"previous_version,omitempty"`
	NewVersion        string    `json:"new_version,omitempty"`
	BackupVersion     string    `json:"backup_version,omitempty"`
	AdditionalSamples int       `json:"additional_samples,omitempty"`
	CandidateR2       float64   `json:"candidate_r2,omitempty"`
	CandidateOOB      float64   `json:"candidate_oob,omitempty"`
	CurrentR2         float64   `json:"current_r2,omitempty"`
	CurrentOOB        float64   `json:"current_oob,omitempty"`
}

// Duration is the wall time the attempt took.
func (a *Attempt) Duration() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}

// Journal records attempts in a kv.DB.
type Journal struct {
	db *kv.DB
}

// New creates a journal on db.
func New(db *kv.DB) *Journal {
	return &Journal{db: db}
}

func key(a *Attempt) string {
	// Zero-padded nanoseconds keep lexical order equal to time order.
	return fmt.Sprintf("%s%020d:%s", keyPrefix, a.StartedAt.UnixNano(), a.ID)
}

// Record stores a. A missing ID is generated and a zero StartedAt is set
// to now.
func (j *Journal) Record(ctx context.Context, a Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
	if a.FinishedAt.IsZero() {
		a.FinishedAt = a.StartedAt
	}
	return j.db.PutJSON(key(&a), &a)
}

// List returns up to limit attempts, newest first. A limit <= 0 returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]Attempt, error) {
	var out []Attempt
	err := kv.Scan(ctx, j.db, keyPrefix, true, func(_ string, a Attempt) bool {
		out = append(out, a)
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return out, nil
}
