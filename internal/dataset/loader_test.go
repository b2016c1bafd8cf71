// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const csvHeader = "Beam_Number,h_mm,d_mm,b_mm,a_mm,abyd,fck_Mpa,rho,fyk_Mpa,da_mm,Plate_Top_mm,Plate_Bottom_mm,V_Kn\n"

func validSample(v float64) Sample {
	return Sample{
		Features: Features{
			HMM: 450, DMM: 400, BMM: 200, AMM: 1000, AByD: 2.5, FckMpa: 30,
			Rho: 0.015, FykMpa: 500, DaMM: 20, PlateTopMM: 100, PlateBottomMM: 100,
		},
		VKn: v,
	}
}

func TestLoadBaseCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "base.csv")
	content := csvHeader +
		"1,450,400,200,1000,2.5,30,0.015,500,20,100,100,120.5\n" +
		"2,500,450,250,1200,2.67,35,0.02,500,16,150,150,180\n" +
		"3,,450,250,1200,2.67,35,0.02,500,16,150,150,99\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	l := NewLoader(path, filepath.Join(dir, "additional.json"))
	samples, err := l.LoadBase(context.Background())
	if err != nil {
		t.Fatalf("LoadBase() error = %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("LoadBase() returned %d rows, want 2 (row with NULL skipped)", len(samples))
	}
	if samples[0].HMM != 450 || samples[0].VKn != 120.5 {
		t.Errorf("first row = %+v", samples[0])
	}
	if samples[1].Rho != 0.02 {
		t.Errorf("second row rho = %v", samples[1].Rho)
	}
}

func TestLoadBaseMissingFile(t *testing.T) {
	t.Parallel()

	l := NewLoader(filepath.Join(t.TempDir(), "nope.csv"), "")
	if _, err := l.LoadBase(context.Background()); err == nil {
		t.Fatal("expected error for missing base dataset")
	}
}

func TestBaseQueryFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    string
		reader  string
		wantErr bool
	}{
		{"/data/base.csv", "read_csv_auto", false},
		{"/data/base.parquet", "read_parquet", false},
		{"/data/base.json", "read_json_auto", false},
		{"/data/base.xlsx", "", true},
	}

	for _, tt := range tests {
		q, err := baseQuery(tt.path)
		if tt.wantErr {
			if err == nil {
				t.Errorf("baseQuery(%s) expected error", tt.path)
			}
			continue
		}
		if err != nil {
			t.Fatalf("baseQuery(%s) error = %v", tt.path, err)
		}
		if !strings.Contains(q, tt.reader+"('"+tt.path+"')") {
			t.Errorf("query %q missing reader %s", q, tt.reader)
		}
	}

	q, _ := baseQuery("/data/o'brien.csv")
	if !strings.Contains(q, "'/data/o''brien.csv'") {
		t.Errorf("quote not escaped: %s", q)
	}
}

func TestAdditionalLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewLoader("", filepath.Join(t.TempDir(), "data", "additional.json"))

	got, err := l.LoadAdditional(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("LoadAdditional() on missing file = %v, %v", got, err)
	}

	total, err := l.AppendAdditional(ctx, validSample(100), validSample(110))
	if err != nil || total != 2 {
		t.Fatalf("AppendAdditional() = %d, %v", total, err)
	}
	total, err = l.AppendAdditional(ctx, validSample(120))
	if err != nil || total != 3 {
		t.Fatalf("AppendAdditional() = %d, %v", total, err)
	}

	got, _ = l.LoadAdditional(ctx)
	if len(got) != 3 || got[2].VKn != 120 {
		t.Errorf("LoadAdditional() = %+v", got)
	}

	if err := l.ClearAdditional(ctx); err != nil {
		t.Fatalf("ClearAdditional() error = %v", err)
	}
	got, _ = l.LoadAdditional(ctx)
	if len(got) != 0 {
		t.Errorf("after clear got %d samples", len(got))
	}
}

func TestAppendAdditionalValidates(t *testing.T) {
	t.Parallel()

	l := NewLoader("", filepath.Join(t.TempDir(), "additional.json"))
	bad := validSample(100)
	bad.Rho = 0.5

	if _, err := l.AppendAdditional(context.Background(), bad); err == nil {
		t.Fatal("expected validation error for rho out of range")
	}
	got, _ := l.LoadAdditional(context.Background())
	if len(got) != 0 {
		t.Error("invalid sample was persisted")
	}
}

func TestReadSamplesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	_ = os.WriteFile(good, []byte(`[{"h_mm":450,"d_mm":400,"b_mm":200,"a_mm":1000,"abyd":2.5,"fck_Mpa":30,"rho":0.015,"fyk_Mpa":500,"da_mm":20,"Plate_Top_mm":100,"Plate_Bottom_mm":100,"V_Kn":130}]`), 0o600)

	samples, err := ReadSamplesFile(good)
	if err != nil {
		t.Fatalf("ReadSamplesFile() error = %v", err)
	}
	if len(samples) != 1 || samples[0].FckMpa != 30 || samples[0].VKn != 130 {
		t.Errorf("samples = %+v", samples)
	}

	missingTarget := filepath.Join(dir, "bad.json")
	_ = os.WriteFile(missingTarget, []byte(`[{"h_mm":450}]`), 0o600)
	if _, err := ReadSamplesFile(missingTarget); err == nil {
		t.Error("expected error for sample without V_Kn")
	}

	if _, err := ReadSamplesFile(filepath.Join(dir, "none.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMatrix(t *testing.T) {
	t.Parallel()

	x, y := Matrix([]Sample{validSample(1), validSample(2)})
	if len(x) != 2 || len(x[0]) != len(FeatureNames) {
		t.Fatalf("matrix shape %dx%d", len(x), len(x[0]))
	}
	if y[1] != 2 || x[0][6] != 0.015 {
		t.Errorf("unexpected values x[0]=%v y=%v", x[0], y)
	}
}
