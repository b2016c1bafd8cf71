// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package validation

import (
	"strings"
	"testing"
)

type sampleRequest struct {
	Version string  `json:"version" validate:"required,version_id"`
	Rho     float64 `json:"rho" validate:"gte=0,lte=0.1"`
	Note    string  `json:"note" validate:"max=5"`
}

func TestIsVersionID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"v1.0.0", true},
		{"v1.2.37", true},
		{"v1.1.5-2", true},
		{"v1.0.20261017_153000", true},
		{"v1.0.20261017_153000_2", true},
		{"1.0.0", false},
		{"v1.0", false},
		{"v1.0.x", false},
		{"v1.0.0/../../etc", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsVersionID(tt.input); got != tt.want {
			t.Errorf("IsVersionID(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		req       sampleRequest
		wantErr   bool
		wantField string
	}{
		{"valid", sampleRequest{Version: "v1.1.3", Rho: 0.02}, false, ""},
		{"missing version", sampleRequest{Rho: 0.02}, true, "version"},
		{"bad version", sampleRequest{Version: "latest", Rho: 0.02}, true, "version"},
		{"rho out of range", sampleRequest{Version: "v1.0.0", Rho: 0.5}, true, "rho"},
		{"note too long", sampleRequest{Version: "v1.0.0", Note: "abcdefg"}, true, "note"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateStruct(&tt.req)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := err.Errors()[0].Field(); got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestToAPIErrorMultipleFields(t *testing.T) {
	t.Parallel()

	err := ValidateStruct(&sampleRequest{Rho: -1})
	if err == nil {
		t.Fatal("expected validation error")
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "version is required") {
		t.Errorf("message %q should mention version", apiErr.Message)
	}
	if !strings.Contains(apiErr.Message, "rho must be greater than or equal to 0") {
		t.Errorf("message %q should mention rho", apiErr.Message)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Error("expected fields detail for multiple errors")
	}
}

func TestValidateReturnsNilOnSuccess(t *testing.T) {
	t.Parallel()

	if err := Validate(&sampleRequest{Version: "v1.0.0"}); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}
