// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRetrain(t *testing.T) {
	before := testutil.ToFloat64(RetrainAttempts.WithLabelValues("promoted"))
	RecordRetrain("promoted", 2*time.Second)
	after := testutil.ToFloat64(RetrainAttempts.WithLabelValues("promoted"))

	if after-before != 1 {
		t.Errorf("promoted counter delta = %v, want 1", after-before)
	}
}

func TestSetCurrentModel(t *testing.T) {
	SetCurrentModel("v1.0.0", 0.794, 0.794, 1)
	SetCurrentModel("v1.1.12", 0.81, 0.80, 3)

	if got := testutil.ToFloat64(CurrentModelInfo.WithLabelValues("v1.1.12")); got != 1 {
		t.Errorf("info gauge for v1.1.12 = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(CurrentModelInfo); got != 1 {
		t.Errorf("info gauge has %d series, want 1 after version change", got)
	}
	if got := testutil.ToFloat64(CurrentModelR2); got != 0.81 {
		t.Errorf("r2 gauge = %v", got)
	}
	if got := testutil.ToFloat64(RegistryVersions); got != 3 {
		t.Errorf("registry versions gauge = %v", got)
	}
}

func TestRecordPredictionAndAPI(t *testing.T) {
	before := testutil.ToFloat64(Predictions.WithLabelValues("invalid"))
	RecordPrediction("invalid", time.Millisecond)
	if got := testutil.ToFloat64(Predictions.WithLabelValues("invalid")) - before; got != 1 {
		t.Errorf("invalid prediction delta = %v", got)
	}

	beforeAPI := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/health", "200"))
	RecordAPIRequest("GET", "/health", "200", time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/health", "200")) - beforeAPI; got != 1 {
		t.Errorf("api request delta = %v", got)
	}
}
