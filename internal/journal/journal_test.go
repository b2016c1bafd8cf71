// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package journal

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/shearguard/internal/kv"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := kv.Open(kv.Config{InMemory: true})
	if err != nil {
		t.Fatalf("kv.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestRecordAndListNewestFirst(t *testing.T) {
	t.Parallel()
	j := newTestJournal(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outcomes := []string{OutcomePromoted, OutcomeRejected, OutcomeRolledBack}
	for i, o := range outcomes {
		err := j.Record(ctx, Attempt{
			Kind:       KindRetrain,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 3*time.Second),
			Outcome:    o,
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	all, err := j.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d attempts, want 3", len(all))
	}
	want := []string{OutcomeRolledBack, OutcomeRejected, OutcomePromoted}
	for i, a := range all {
		if a.Outcome != want[i] {
			t.Errorf("attempt %d outcome = %s, want %s", i, a.Outcome, want[i])
		}
		if a.ID == "" {
			t.Errorf("attempt %d has no generated id", i)
		}
		if a.Duration() != 3*time.Second {
			t.Errorf("attempt %d duration = %v", i, a.Duration())
		}
	}

	limited, err := j.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 || limited[0].Outcome != OutcomeRolledBack {
		t.Errorf("List(2) = %+v", limited)
	}
}

func TestRecordCanceledContext(t *testing.T) {
	t.Parallel()
	j := newTestJournal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := j.Record(ctx, Attempt{Kind: KindReset}); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestListEmpty(t *testing.T) {
	t.Parallel()
	j := newTestJournal(t)
	got, err := j.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List() = %v, want empty", got)
	}
}
