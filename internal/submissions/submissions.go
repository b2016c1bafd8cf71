// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package submissions queues beam test results sent in by researchers
// until an administrator reviews them. Approved results become additional
// training samples; nothing reaches the training data unreviewed.
package submissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/shearguard/internal/dataset"
	"github.com/tomtom215/shearguard/internal/kv"
	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/validation"
)

const keyPrefix = "submission:"

var (
	// ErrNotFound is returned for an unknown submission ID.
	ErrNotFound = errors.New("submission not found")

	// ErrAlreadyReviewed is returned when reviewing a non-pending submission.
	ErrAlreadyReviewed = errors.New("submission already reviewed")
)

// Status is the review state of a submission.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Researcher identifies who sent the data.
type Researcher struct {
	Name        string `json:"name" validate:"required,max=200"`
	Email       string `json:"email" validate:"required,email"`
	Institution string `json:"institution,omitempty" validate:"max=200"`
}

// Submission is one queued beam test result.
type Submission struct {
	ID          string         `json:"id"`
	Researcher  Researcher     `json:"researcher"`
	Notes       string         `json:"notes,omitempty"`
	Sample      dataset.Sample `json:"beam"`
	Status      Status         `json:"status"`
	SubmittedAt time.Time      `json:"submitted_at"`
	ReviewedAt  *time.Time     `json:"reviewed_at,omitempty"`
	Reviewer    string         `json:"reviewer,omitempty"`
}

// NewSubmission is the caller-supplied part of a submission.
type NewSubmission struct {
	Researcher Researcher     `json:"researcher" validate:"required"`
	Notes      string         `json:"notes,omitempty" validate:"max=2000"`
	Sample     dataset.Sample `json:"beam" validate:"required"`
}

// Appender receives approved samples.
type Appender interface {
	AppendAdditional(ctx context.Context, samples ...dataset.Sample) (int, error)
}

// Queue stores submissions in the KV store.
type Queue struct {
	db       *kv.DB
	appender Appender
	now      func() time.Time
}

// NewQueue creates a queue whose approvals are appended through appender.
func NewQueue(db *kv.DB, appender Appender) *Queue {
	return &Queue{db: db, appender: appender, now: func() time.Time { return time.Now().UTC() }}
}

func key(id string) string {
	return keyPrefix + id
}

// Submit validates and stores a new pending submission.
func (q *Queue) Submit(ctx context.Context, in NewSubmission) (*Submission, error) {
	if err := validation.Validate(&in); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Submission{
		ID:          uuid.NewString(),
		Researcher:  in.Researcher,
		Notes:       in.Notes,
		Sample:      in.Sample,
		Status:      StatusPending,
		SubmittedAt: q.now(),
	}
	if s.Sample.Timestamp == "" {
		s.Sample.Timestamp = s.SubmittedAt.Format(time.RFC3339)
	}
	if err := q.db.PutJSON(key(s.ID), s); err != nil {
		return nil, fmt.Errorf("store submission: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("submission_id", s.ID).
		Str("institution", s.Researcher.Institution).
		Msg("Submission queued for review")
	return s, nil
}

// Get returns one submission.
func (q *Queue) Get(_ context.Context, id string) (*Submission, error) {
	var s Submission
	if err := q.db.GetJSON(key(id), &s); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &s, nil
}

// List returns submissions in ID order, filtered by status when status is
// non-empty.
func (q *Queue) List(ctx context.Context, status Status) ([]Submission, error) {
	var out []Submission
	err := kv.Scan(ctx, q.db, keyPrefix, false, func(_ string, s Submission) bool {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return out, nil
}

// Review approves or rejects a pending submission. On approval the sample
// is appended to the additional data; if that append fails the submission
// is returned to pending.
func (q *Queue) Review(ctx context.Context, id string, approve bool, reviewer string) (*Submission, error) {
	status := StatusRejected
	if approve {
		status = StatusApproved
	}
	reviewedAt := q.now()

	var reviewed Submission
	err := kv.UpdateJSON(q.db, key(id), func(s *Submission) error {
		if s.Status != StatusPending {
			return fmt.Errorf("%s is %s: %w", id, s.Status, ErrAlreadyReviewed)
		}
		s.Status = status
		s.ReviewedAt = &reviewedAt
		s.Reviewer = reviewer
		reviewed = *s
		return nil
	})
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if approve {
		if _, err := q.appender.AppendAdditional(ctx, reviewed.Sample); err != nil {
			revertErr := kv.UpdateJSON(q.db, key(id), func(s *Submission) error {
				s.Status = StatusPending
				s.ReviewedAt = nil
				s.Reviewer = ""
				return nil
			})
			if revertErr != nil {
				logging.Ctx(ctx).Error().Err(revertErr).Str("submission_id", id).Msg("Failed to revert submission to pending")
			}
			return nil, fmt.Errorf("append approved sample: %w", err)
		}
	}

	logging.Ctx(ctx).Info().
		Str("submission_id", id).
		Str("status", string(status)).
		Str("reviewer", reviewer).
		Msg("Submission reviewed")
	return &reviewed, nil
}
