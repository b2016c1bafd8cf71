// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package orchestrator

// State is the orchestrator's position in the retrain state machine.
type State int32

const (
	StateIdle State = iota
	StateBackingUp
	StateTraining
	StateValidating
	StatePromoting
	StateRejected
	StateErrorRollback
)

var stateNames = [...]string{
	StateIdle:          "IDLE",
	StateBackingUp:     "BACKING_UP",
	StateTraining:      "TRAINING",
	StateValidating:    "VALIDATING",
	StatePromoting:     "PROMOTING",
	StateRejected:      "REJECTED",
	StateErrorRollback: "ERROR_ROLLBACK",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}
