// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

//go:build integration

// Package testinfra starts throwaway containers for integration tests.
//
//	func TestMirrorUpload(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    minio, err := testinfra.NewMinIOContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, minio)
//	    // minio.Endpoint, minio.AccessKey, minio.SecretKey
//	}
//
// Run with:
//
//	go test -tags integration ./...
package testinfra
