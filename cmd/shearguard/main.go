// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

// Command shearguard manages the lifecycle of the beam shear strength
// model: retraining with a validation gate, version history, rollback,
// reset to origin, predictions and the research submission queue.
//
// # Commands
//
//	shearguard init                 create the registry and seed model if missing
//	shearguard retrain [--file f]   retrain with additional samples
//	shearguard rollback <version>   make a registered version current
//	shearguard versions             list registered versions
//	shearguard info                 describe the current model
//	shearguard reset --yes          refit on the base dataset and truncate history
//	shearguard predict ...          predict V_Kn for one beam
//	shearguard add-samples <file>   append samples to the additional data
//	shearguard attempts             show the retrain journal
//	shearguard submissions ...      review research submissions
//	shearguard serve                run the HTTP API
//	shearguard hash-password        print a bcrypt hash for the admin password
//
// # Exit codes
//
//	0  success, or candidate promoted
//	2  candidate rejected by the validation gate
//	3  no additional training data
//	1  any other failure
//
// # Configuration
//
// Settings are layered: built-in defaults, then a YAML file (--config,
// CONFIG_PATH, ./config.yaml or /etc/shearguard/config.yaml), then
// environment variables such as SHEARGUARD_DATA_DIR, TRAINING_THRESHOLD and
// LOG_LEVEL. Command line flags override all three.
package main

import (
	"os"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}
