// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

//go:build integration

package mirror

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tomtom215/shearguard/internal/testinfra"
)

func TestMirrorAgainstMinIO(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testinfra.NewMinIOContainer(ctx)
	if err != nil {
		t.Fatalf("start minio: %v", err)
	}
	defer testinfra.CleanupContainer(t, context.Background(), container)

	cfg := Config{
		Endpoint:  container.Endpoint,
		AccessKey: container.AccessKey,
		SecretKey: container.SecretKey,
		Bucket:    "shearguard-models",
	}
	m, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := m.Publish(ctx, "v1.1.3", []byte("model-bytes"), []byte(`{"current_version":"v1.1.3"}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{Creds: credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")})
	if err != nil {
		t.Fatal(err)
	}
	versionKey, _, _ := m.Keys("v1.1.3")
	obj, err := client.GetObject(ctx, cfg.Bucket, versionKey, minio.GetObjectOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "model-bytes" {
		t.Errorf("mirrored blob = %q", data)
	}
}
