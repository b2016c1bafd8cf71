// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package gate

import (
	"testing"

	"pgregory.net/rapid"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	current := Metrics{R2: 0.794, OOB: 0.794}

	tests := []struct {
		name      string
		candidate Metrics
		threshold float64
		want      Decision
	}{
		{"both improve", Metrics{R2: 0.81, OOB: 0.80}, 0.01, Promote},
		{"both marginal", Metrics{R2: 0.795, OOB: 0.795}, 0.01, Reject},
		{"r2 boundary", Metrics{R2: 0.804, OOB: 0.794}, 0.01, Promote},
		{"oob boundary", Metrics{R2: 0.794, OOB: 0.804}, 0.01, Promote},
		{"just below boundary", Metrics{R2: 0.8039, OOB: 0.8039}, 0.01, Reject},
		{"r2 regresses oob gains", Metrics{R2: 0.70, OOB: 0.82}, 0.01, Promote},
		{"oob regresses r2 gains", Metrics{R2: 0.90, OOB: 0.60}, 0.01, Promote},
		{"both regress", Metrics{R2: 0.70, OOB: 0.70}, 0.01, Reject},
		{"identical", current, 0.01, Reject},
		{"custom threshold rejects", Metrics{R2: 0.81, OOB: 0.80}, 0.05, Reject},
		{"custom threshold promotes", Metrics{R2: 0.85, OOB: 0.80}, 0.05, Promote},
		{"zero threshold promotes equal", current, 0, Promote},
		{"zero threshold promotes one metric held", Metrics{R2: 0.70, OOB: 0.794}, 0, Promote},
		{"zero threshold rejects regression", Metrics{R2: 0.79, OOB: 0.79}, 0, Reject},
		{"negative threshold uses default", Metrics{R2: 0.795, OOB: 0.795}, -1, Reject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Decide(tt.candidate, current, tt.threshold)
			if got.Decision != tt.want {
				t.Errorf("Decide() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecideReportsDeltas(t *testing.T) {
	t.Parallel()

	res := Decide(Metrics{R2: 0.81, OOB: 0.80}, Metrics{R2: 0.794, OOB: 0.794}, DefaultThreshold)
	if res.DeltaR2 < 0.0159 || res.DeltaR2 > 0.0161 {
		t.Errorf("DeltaR2 = %v, want ~0.016", res.DeltaR2)
	}
	if res.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %v", res.Threshold)
	}
}

// TestDecideMatchesRule checks the OR rule over random metric pairs away
// from the float tolerance band.
func TestDecideMatchesRule(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		cur := Metrics{
			R2:  rapid.Float64Range(-1, 1).Draw(rt, "curR2"),
			OOB: rapid.Float64Range(-1, 1).Draw(rt, "curOOB"),
		}
		cand := Metrics{
			R2:  rapid.Float64Range(-1, 1).Draw(rt, "candR2"),
			OOB: rapid.Float64Range(-1, 1).Draw(rt, "candOOB"),
		}
		threshold := rapid.Float64Range(0.001, 0.2).Draw(rt, "threshold")

		dr2 := cand.R2 - cur.R2
		doob := cand.OOB - cur.OOB
		near := func(d float64) bool { return d > threshold-2*tolerance && d < threshold+2*tolerance }
		if near(dr2) || near(doob) {
			rt.Skip("inside tolerance band")
		}

		want := Reject
		if dr2 >= threshold || doob >= threshold {
			want = Promote
		}
		if got := Decide(cand, cur, threshold).Decision; got != want {
			rt.Fatalf("Decide(%+v, %+v, %v) = %s, want %s", cand, cur, threshold, got, want)
		}
	})
}
