// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/shearguard/internal/logging"
)

// GarbageCollector is satisfied by *kv.DB.
type GarbageCollector interface {
	RunGC() error
}

// KVGCService runs BadgerDB value-log GC on a fixed interval. A failed GC
// pass is returned so that suture restarts the loop with backoff.
type KVGCService struct {
	db       GarbageCollector
	interval time.Duration
}

// NewKVGCService creates the service. A non-positive interval means ten
// minutes.
func NewKVGCService(db GarbageCollector, interval time.Duration) *KVGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &KVGCService{db: db, interval: interval}
}

// Serve implements suture.Service.
func (s *KVGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.db.RunGC(); err != nil {
				return fmt.Errorf("kv value log gc: %w", err)
			}
			logging.Debug().Dur("took", time.Since(start)).Msg("KV value log GC pass finished")
		}
	}
}

// String names the service in suture events.
func (s *KVGCService) String() string {
	return "kv-gc"
}
