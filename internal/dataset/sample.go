// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package dataset

// TargetName is the column predicted by the model: shear capacity in kN.
const TargetName = "V_Kn"

// FeatureNames is the fixed feature ordering used for training and
// prediction. Artifacts record it; callers must never reorder it.
var FeatureNames = []string{
	"h_mm", "d_mm", "b_mm", "a_mm", "abyd", "fck_Mpa",
	"rho", "fyk_Mpa", "da_mm", "Plate_Top_mm", "Plate_Bottom_mm",
}

// Features are the 11 geometric and material properties of a beam.
type Features struct {
	HMM           float64 `json:"h_mm" validate:"gte=0,lte=10000"`
	DMM           float64 `json:"d_mm" validate:"gte=0,lte=10000"`
	BMM           float64 `json:"b_mm" validate:"gte=0,lte=10000"`
	AMM           float64 `json:"a_mm" validate:"gte=0,lte=10000"`
	AByD          float64 `json:"abyd" validate:"gte=0,lte=10"`
	FckMpa        float64 `json:"fck_Mpa" validate:"gte=0,lte=200"`
	Rho           float64 `json:"rho" validate:"gte=0,lte=0.1"`
	FykMpa        float64 `json:"fyk_Mpa" validate:"gte=0,lte=1000"`
	DaMM          float64 `json:"da_mm" validate:"gte=0,lte=200"`
	PlateTopMM    float64 `json:"Plate_Top_mm" validate:"gte=0,lte=1000"`
	PlateBottomMM float64 `json:"Plate_Bottom_mm" validate:"gte=0,lte=1000"`
}

// Vector returns the features in FeatureNames order.
func (f *Features) Vector() []float64 {
	return []float64{
		f.HMM, f.DMM, f.BMM, f.AMM, f.AByD, f.FckMpa,
		f.Rho, f.FykMpa, f.DaMM, f.PlateTopMM, f.PlateBottomMM,
	}
}

// Sample is one labelled training record.
type Sample struct {
	Features
	VKn float64 `json:"V_Kn" validate:"gt=0"`

	// BeamNumber and Timestamp are provenance carried by approved
	// submissions; training ignores them.
	BeamNumber int    `json:"Beam_Number,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// Matrix splits samples into a feature matrix and target vector.
func Matrix(samples []Sample) (x [][]float64, y []float64) {
	x = make([][]float64, len(samples))
	y = make([]float64, len(samples))
	for i := range samples {
		x[i] = samples[i].Vector()
		y[i] = samples[i].VKn
	}
	return x, y
}
