// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Package gate decides whether a freshly trained candidate model is good
// enough to replace the current one.
package gate

import "fmt"

// DefaultThreshold is the minimum improvement on either metric required to promote.
const DefaultThreshold = 0.01

// tolerance absorbs float64 subtraction error so that a delta which is
// exactly the threshold in decimal (0.804 - 0.794) still promotes.
const tolerance = 1e-9

// Decision is the outcome of the gate.
type Decision string

const (
	Promote Decision = "PROMOTE"
	Reject  Decision = "REJECT"
)

// Metrics are the quality scores compared by the gate.
type Metrics struct {
	R2  float64 `json:"r2_score"`
	OOB float64 `json:"oob_score"`
}

// Result carries the decision together with the deltas that produced it.
type Result struct {
	Decision  Decision `json:"decision"`
	DeltaR2   float64  `json:"delta_r2"`
	DeltaOOB  float64  `json:"delta_oob"`
	Threshold float64  `json:"threshold"`
}

// String renders the result for logs and CLI output.
func (r Result) String() string {
	return fmt.Sprintf("%s (Δr2=%+.4f, Δoob=%+.4f, threshold=%.4f)", r.Decision, r.DeltaR2, r.DeltaOOB, r.Threshold)
}

// Decide returns Promote when the candidate improves R² or OOB score by at
// least threshold over current. The metrics are checked independently, so a
// candidate that regresses on one but gains enough on the other still
// promotes. A zero threshold promotes any candidate that is not worse on
// at least one metric; a negative threshold falls back to DefaultThreshold.
func Decide(candidate, current Metrics, threshold float64) Result {
	if threshold < 0 {
		threshold = DefaultThreshold
	}

	res := Result{
		Decision:  Reject,
		DeltaR2:   candidate.R2 - current.R2,
		DeltaOOB:  candidate.OOB - current.OOB,
		Threshold: threshold,
	}
	if res.DeltaR2 >= threshold-tolerance || res.DeltaOOB >= threshold-tolerance {
		res.Decision = Promote
	}
	return res
}
