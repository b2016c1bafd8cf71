// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package config loads Shearguard configuration.
//
// Values are layered, later sources winning:
//
//  1. built-in defaults (defaultConfig)
//  2. a YAML file: CONFIG_PATH, ./config.yaml, ./config.yml or /etc/shearguard/config.yaml
//  3. environment variables mapped through envTransformFunc
//
// Paths left empty under storage, dataset and kv are derived from
// storage.data_dir.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/mirror"
	"github.com/tomtom215/shearguard/internal/validation"
)

// Config is the complete Shearguard configuration.
type Config struct {
	Storage  StorageConfig  `koanf:"storage"`
	Dataset  DatasetConfig  `koanf:"dataset"`
	Training TrainingConfig `koanf:"training"`
	Seed     SeedConfig     `koanf:"seed"`
	KV       KVConfig       `koanf:"kv"`
	Mirror   mirror.Config  `koanf:"mirror"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// StorageConfig locates the artifact store and the registry document.
type StorageConfig struct {
	DataDir         string `koanf:"data_dir" validate:"required"`
	ArtifactDir     string `koanf:"artifact_dir"`
	CurrentArtifact string `koanf:"current_artifact"`
	RegistryPath    string `koanf:"registry_path"`
}

// DatasetConfig locates the training data.
type DatasetConfig struct {
	// BasePath is the immutable base dataset (CSV, Parquet or JSON).
	BasePath string `koanf:"base_path"`

	// AdditionalPath is the JSON array of approved additional samples.
	AdditionalPath string `koanf:"additional_path"`
}

// TrainingConfig holds the gate threshold and ensemble settings.
type TrainingConfig struct {
	// Threshold of 0 promotes any candidate that is not worse on one metric.
	Threshold  float64 `koanf:"threshold" validate:"gte=0,lt=1"`
	SplitRatio float64 `koanf:"split_ratio" validate:"gt=0,lt=1"`
	Seed       int64   `koanf:"seed"`
	Estimators int     `koanf:"estimators" validate:"gte=1,lte=10000"`
	Lambda     float64 `koanf:"lambda" validate:"gt=0"`
	Workers    int     `koanf:"workers" validate:"gte=0"`
	MinSamples int     `koanf:"min_samples" validate:"gte=2"`
}

// SeedConfig is the baseline record used when a registry is created next
// to an already shipped model.
type SeedConfig struct {
	Version         string  `koanf:"version" validate:"required,version_id"`
	CreatedAt       string  `koanf:"created_at" validate:"required"`
	TrainingSamples int     `koanf:"training_samples" validate:"gte=0"`
	R2Score         float64 `koanf:"r2_score"`
	OOBScore        float64 `koanf:"oob_score"`
	Description     string  `koanf:"description"`
}

// CreatedAtTime parses CreatedAt as RFC 3339.
func (s *SeedConfig) CreatedAtTime() (time.Time, error) {
	return time.Parse(time.RFC3339, s.CreatedAt)
}

// KVConfig controls the embedded BadgerDB holding the journal and
// submissions.
type KVConfig struct {
	Path       string        `koanf:"path"`
	SyncWrites bool          `koanf:"sync_writes"`
	GCInterval time.Duration `koanf:"gc_interval" validate:"gte=0"`
	GCRatio    float64       `koanf:"gc_ratio" validate:"gt=0,lt=1"`
}

// ServerConfig holds HTTP settings for serve.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// RetrainTimeout bounds a retrain or reset started over HTTP.
	RetrainTimeout time.Duration `koanf:"retrain_timeout" validate:"gt=0"`

	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitRequests per RateLimitWindow per client IP on public routes.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`

	// AdminMutationsPerHour caps retrain, rollback and reset calls across
	// all admins.
	AdminMutationsPerHour int `koanf:"admin_mutations_per_hour" validate:"gte=1"`

	AdminUsername string `koanf:"admin_username"`

	// AdminPasswordHash is a bcrypt hash. AdminPassword is accepted for
	// convenience and hashed at startup.
	AdminPasswordHash string `koanf:"admin_password_hash"`
	AdminPassword     string `koanf:"admin_password"`
}

// Addr returns host:port.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AdminEnabled reports whether admin routes should be mounted.
func (s *ServerConfig) AdminEnabled() bool {
	return s.AdminUsername != "" && (s.AdminPasswordHash != "" || s.AdminPassword != "")
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// LoggingOptions converts to the logging package configuration.
func (l *LoggingConfig) LoggingOptions() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}

// resolvePaths fills empty paths from Storage.DataDir.
func (c *Config) resolvePaths() {
	dir := c.Storage.DataDir
	fill := func(p *string, name string) {
		if *p == "" {
			*p = filepath.Join(dir, name)
		}
	}
	fill(&c.Storage.ArtifactDir, "versions")
	fill(&c.Storage.CurrentArtifact, "current.model")
	fill(&c.Storage.RegistryPath, "model_versions.json")
	fill(&c.Dataset.BasePath, "Inputs.csv")
	fill(&c.Dataset.AdditionalPath, "additional_training_data.json")
	fill(&c.KV.Path, "kv")
}

// Validate checks field ranges and cross-field rules.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	if _, err := c.Seed.CreatedAtTime(); err != nil {
		return fmt.Errorf("seed.created_at: %w", err)
	}
	if c.Mirror.Enabled() {
		if err := c.Mirror.Validate(); err != nil {
			return fmt.Errorf("mirror: %w", err)
		}
	}
	if c.Server.AdminUsername == "" && (c.Server.AdminPassword != "" || c.Server.AdminPasswordHash != "") {
		return errors.New("server.admin_username is required when an admin password is set")
	}
	return nil
}
