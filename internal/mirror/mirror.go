// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package mirror copies promoted artifacts and the registry document to an
// S3-compatible bucket so a host loss does not lose model history.
//
// Uploads are best effort. A circuit breaker stops hammering an unreachable
// endpoint; while it is open Publish fails fast and the orchestrator logs a
// warning.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/metrics"
)

// Config describes the mirror bucket.
type Config struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	Prefix    string `koanf:"prefix"`
	UseSSL    bool   `koanf:"use_ssl"`

	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32 `koanf:"failure_threshold"`

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration `koanf:"open_timeout"`

	// UploadTimeout bounds one Publish call.
	UploadTimeout time.Duration `koanf:"upload_timeout"`
}

// Enabled reports whether an endpoint is configured.
func (c *Config) Enabled() bool {
	return c.Endpoint != ""
}

// Validate checks the settings needed to connect.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("mirror endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("mirror bucket is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return errors.New("mirror access_key and secret_key are required")
	}
	return nil
}

// ObjectPutter uploads one object.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

type minioPutter struct {
	client *minio.Client
}

func (p minioPutter) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := p.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// Mirror implements the orchestrator's Publisher.
type Mirror struct {
	cfg     Config
	putter  ObjectPutter
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// New connects to the configured endpoint and makes sure the bucket exists.
func New(ctx context.Context, cfg Config) (*Mirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return NewWithPutter(cfg, minioPutter{client: client}), nil
}

// NewWithPutter builds a mirror on an arbitrary uploader.
func NewWithPutter(cfg Config, putter ObjectPutter) *Mirror {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}

	m := &Mirror{cfg: cfg, putter: putter}
	m.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "mirror",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Mirror circuit breaker state changed")
		},
	})
	return m
}

// Keys returns the object keys Publish writes for version.
func (m *Mirror) Keys(version string) (versionKey, currentKey, registryKey string) {
	return path.Join(m.cfg.Prefix, "models", version+".model"),
		path.Join(m.cfg.Prefix, "current.model"),
		path.Join(m.cfg.Prefix, "model_versions.json")
}

// Publish uploads the version blob, the current artifact and the registry
// document.
func (m *Mirror) Publish(ctx context.Context, version string, blob, registryDoc []byte) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.UploadTimeout)
	defer cancel()

	versionKey, currentKey, registryKey := m.Keys(version)
	_, err := m.breaker.Execute(func() (struct{}, error) {
		uploads := []struct {
			key, contentType string
			data             []byte
		}{
			{versionKey, "application/octet-stream", blob},
			{currentKey, "application/octet-stream", blob},
			{registryKey, "application/json", registryDoc},
		}
		for _, u := range uploads {
			if err := m.putter.PutObject(ctx, m.cfg.Bucket, u.key, u.data, u.contentType); err != nil {
				return struct{}{}, fmt.Errorf("upload %s: %w", u.key, err)
			}
		}
		return struct{}{}, nil
	})

	switch {
	case err == nil:
		metrics.MirrorUploads.WithLabelValues("ok").Inc()
		logging.Ctx(ctx).Debug().Str("version", version).Str("bucket", m.cfg.Bucket).Msg("Mirrored artifact")
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.MirrorUploads.WithLabelValues("skipped").Inc()
	default:
		metrics.MirrorUploads.WithLabelValues("error").Inc()
	}
	return err
}

// State returns the breaker state for health reporting.
func (m *Mirror) State() string {
	return m.breaker.State().String()
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

