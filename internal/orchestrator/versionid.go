// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package orchestrator

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var versionPrefix = regexp.MustCompile(`^v(\d+)\.(\d+)\.`)

// parseMajorMinor extracts the leading major and minor numbers of a
// version id. Unparseable ids are treated as v1.0.
func parseMajorMinor(version string) (major, minor int) {
	m := versionPrefix.FindStringSubmatch(version)
	if m == nil {
		return 1, 0
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor
}

// backupID names the backup taken of current at now:
// v<major>.<minor>.<YYYYmmdd_HHMMSS>.
func backupID(current string, now time.Time) string {
	major, minor := parseMajorMinor(current)
	return fmt.Sprintf("v%d.%d.%s", major, minor, now.UTC().Format("20060102_150405"))
}

// promotedID names a candidate promoted over current after training with
// additional extra samples: v<major>.<minor+1>.<additional>.
func promotedID(current string, additional int) string {
	major, minor := parseMajorMinor(current)
	return fmt.Sprintf("v%d.%d.%d", major, minor+1, additional)
}

// unique returns base, or base followed by sep and the smallest n >= 2
// that taken rejects.
func unique(base, sep string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		id := base + sep + strconv.Itoa(n)
		if !taken(id) {
			return id
		}
	}
}

// taken reports whether version is used by the registry or the store.
func (o *Orchestrator) taken(version string) bool {
	return o.registry.Has(version) || o.store.Exists(version)
}
