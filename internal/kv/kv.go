// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package kv wraps the embedded BadgerDB database that holds operational
// records: the retrain attempt journal and queued sample submissions.
//
// Model artifacts and the version registry do not live here; they stay as
// plain files so that an operator can inspect them without tooling.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/shearguard/internal/logging"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("kv store is closed")

	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("key not found")
)

// Config controls how the database is opened.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// GCRatio is the discard ratio passed to value log GC.
	GCRatio float64

	// CloseTimeout bounds how long Close waits for BadgerDB.
	CloseTimeout time.Duration
}

// DefaultConfig returns production defaults for the database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		SyncWrites:   true,
		GCRatio:      0.5,
		CloseTimeout: 30 * time.Second,
	}
}

// DB is a handle to the shared BadgerDB instance.
type DB struct {
	db     *badger.DB
	config Config

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the database.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("kv path is required")
	}
	if cfg.GCRatio <= 0 || cfg.GCRatio >= 1 {
		cfg.GCRatio = 0.5
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 30 * time.Second
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Debug().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("KV store opened")

	return &DB{db: db, config: cfg}, nil
}

func (d *DB) check() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}

// PutJSON stores v under key as JSON.
func (d *DB) PutJSON(key string, v any) error {
	if err := d.check(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	err = d.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data))
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes the value stored under key into v.
func (d *DB) GetJSON(key string, v any) error {
	if err := d.check(); err != nil {
		return err
	}
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	return nil
}

// UpdateJSON runs fn on the decoded value under key inside one transaction
// and writes the result back. A missing key returns ErrNotFound.
func UpdateJSON[T any](d *DB, key string, fn func(*T) error) error {
	if err := d.check(); err != nil {
		return err
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		var v T
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return err
		}
		if err := fn(&v); err != nil {
			return err
		}
		data, err := json.Marshal(&v)
		if err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(key), data))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return err
}

// Scan visits every key with prefix in key order, or reverse key order when
// reverse is set, until fn returns false. Values that fail to decode are
// logged and skipped.
func Scan[T any](ctx context.Context, d *DB, prefix string, reverse bool, fn func(key string, v T) bool) error {
	if err := d.check(); err != nil {
		return err
	}

	return d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = reverse
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		start := []byte(prefix)
		if reverse {
			// Seek lands on the last key <= start in reverse mode.
			start = append(start, 0xFF)
		}

		for it.Seek(start); it.ValidForPrefix([]byte(prefix)); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var v T
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("KV failed to unmarshal entry")
				continue
			}
			if !fn(string(item.KeyCopy(nil)), v) {
				return nil
			}
		}
		return nil
	})
}

// RunGC reclaims value log space until BadgerDB reports nothing left to rewrite.
func (d *DB) RunGC() error {
	if err := d.check(); err != nil {
		return err
	}
	if d.config.InMemory {
		return nil
	}
	for {
		err := d.db.RunValueLogGC(d.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close shuts the database down, giving up after the configured timeout.
func (d *DB) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- d.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		return nil
	case <-time.After(d.config.CloseTimeout):
		logging.Warn().Dur("timeout", d.config.CloseTimeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", d.config.CloseTimeout)
	}
}
