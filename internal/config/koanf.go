// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/shearguard/internal/mirror"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/shearguard/config.yaml",
	"/etc/shearguard/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: "data",
		},
		Training: TrainingConfig{
			Threshold:  0.01,
			SplitRatio: 0.8,
			Seed:       43,
			Estimators: 100,
			Lambda:     1.0,
			Workers:    0, // 0 = GOMAXPROCS
			MinSamples: 10,
		},
		Seed: SeedConfig{
			Version:         "v1.0.0",
			CreatedAt:       "2025-09-12T19:47:22Z",
			TrainingSamples: 978,
			R2Score:         0.794,
			OOBScore:        0.794,
			Description:     "Original model trained on 978 samples",
		},
		KV: KVConfig{
			SyncWrites: true,
			GCInterval: 10 * time.Minute,
			GCRatio:    0.5,
		},
		Mirror: mirror.Config{
			Bucket:           "shearguard",
			FailureThreshold: 3,
			OpenTimeout:      time.Minute,
			UploadTimeout:    30 * time.Second,
		},
		Server: ServerConfig{
			Host:                  "0.0.0.0",
			Port:                  8080,
			ReadTimeout:           15 * time.Second,
			WriteTimeout:          30 * time.Minute,
			ShutdownTimeout:       30 * time.Second,
			RetrainTimeout:        30 * time.Minute,
			CORSOrigins:           []string{"*"},
			RateLimitRequests:     60,
			RateLimitWindow:       time.Minute,
			AdminMutationsPerHour: 12,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in configuration with derived paths filled in.
func Default() *Config {
	cfg := defaultConfig()
	cfg.resolvePaths()
	return cfg
}

// Load builds the configuration from defaults, the config file and the
// environment. A non-empty path overrides the config file search.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is Load with a final layer of koanf keys, such as
// "training.threshold", set from command line flags. Overrides apply before
// paths are derived, so "storage.data_dir" moves every derived path.
func LoadWithOverrides(path string, overrides map[string]interface{}) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := path
	if configPath == "" {
		configPath = findConfigFile()
	} else if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to apply override %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as a single string
// from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"shearguard_data_dir":         "storage.data_dir",
	"shearguard_artifact_dir":     "storage.artifact_dir",
	"shearguard_current_artifact": "storage.current_artifact",
	"shearguard_registry_path":    "storage.registry_path",

	"base_dataset_path":    "dataset.base_path",
	"additional_data_path": "dataset.additional_path",

	"training_threshold":   "training.threshold",
	"training_split_ratio": "training.split_ratio",
	"training_seed":        "training.seed",
	"training_estimators":  "training.estimators",
	"training_workers":     "training.workers",

	"kv_path":        "kv.path",
	"kv_sync_writes": "kv.sync_writes",
	"kv_gc_interval": "kv.gc_interval",

	"mirror_endpoint":   "mirror.endpoint",
	"mirror_access_key": "mirror.access_key",
	"mirror_secret_key": "mirror.secret_key",
	"mirror_bucket":     "mirror.bucket",
	"mirror_region":     "mirror.region",
	"mirror_prefix":     "mirror.prefix",
	"mirror_use_ssl":    "mirror.use_ssl",

	"http_host":                "server.host",
	"http_port":                "server.port",
	"cors_origins":             "server.cors_origins",
	"rate_limit_requests":      "server.rate_limit_requests",
	"rate_limit_window":        "server.rate_limit_window",
	"admin_mutations_per_hour": "server.admin_mutations_per_hour",
	"admin_username":           "server.admin_username",
	"admin_password":           "server.admin_password",
	"admin_password_hash":      "server.admin_password_hash",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its koanf key. Unknown
// variables map to "" and are ignored.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
