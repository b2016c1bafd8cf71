// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package trainer

import (
	"errors"
	"math"
)

var errSingular = errors.New("singular system")

// solve solves a·x = b in place by Gaussian elimination with partial
// pivoting. a is p×p and is destroyed.
func solve(a [][]float64, b []float64) ([]float64, error) {
	p := len(b)
	for col := 0; col < p; col++ {
		pivot := col
		for r := col + 1; r < p; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, errSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < p; r++ {
			f := a[r][col] / a[col][col]
			if f == 0 {
				continue
			}
			for c := col; c < p; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	x := make([]float64, p)
	for r := p - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < p; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}

// fitRidge fits y ≈ intercept + z·w on the rows listed in idx, with L2
// penalty lambda on w. Rows may repeat (bootstrap samples).
func fitRidge(z [][]float64, y []float64, idx []int, lambda float64) (coef []float64, intercept float64, err error) {
	p := len(z[0])
	n := float64(len(idx))

	zMean := make([]float64, p)
	var yMean float64
	for _, i := range idx {
		for j := 0; j < p; j++ {
			zMean[j] += z[i][j]
		}
		yMean += y[i]
	}
	for j := range zMean {
		zMean[j] /= n
	}
	yMean /= n

	gram := make([][]float64, p)
	for j := range gram {
		gram[j] = make([]float64, p)
	}
	rhs := make([]float64, p)

	row := make([]float64, p)
	for _, i := range idx {
		for j := 0; j < p; j++ {
			row[j] = z[i][j] - zMean[j]
		}
		dy := y[i] - yMean
		for j := 0; j < p; j++ {
			rhs[j] += row[j] * dy
			for k := j; k < p; k++ {
				gram[j][k] += row[j] * row[k]
			}
		}
	}
	for j := 0; j < p; j++ {
		gram[j][j] += lambda
		for k := 0; k < j; k++ {
			gram[j][k] = gram[k][j]
		}
	}

	coef, err = solve(gram, rhs)
	if err != nil {
		return nil, 0, err
	}

	intercept = yMean
	for j := 0; j < p; j++ {
		intercept -= coef[j] * zMean[j]
	}
	return coef, intercept, nil
}

// r2Score is the coefficient of determination. A constant target yields 0.
func r2Score(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ssRes, ssTot float64
	for i := range y {
		ssRes += (y[i] - pred[i]) * (y[i] - pred[i])
		ssTot += (y[i] - mean) * (y[i] - mean)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// standardize returns per-column mean and population standard deviation.
// Zero-variance columns get sigma 1 so they standardize to 0.
func standardize(x [][]float64) (mu, sigma []float64, constant int) {
	p := len(x[0])
	n := float64(len(x))
	mu = make([]float64, p)
	sigma = make([]float64, p)

	for _, row := range x {
		for j, v := range row {
			mu[j] += v
		}
	}
	for j := range mu {
		mu[j] /= n
	}
	for _, row := range x {
		for j, v := range row {
			d := v - mu[j]
			sigma[j] += d * d
		}
	}
	for j := range sigma {
		sigma[j] = math.Sqrt(sigma[j] / n)
		if sigma[j] == 0 {
			sigma[j] = 1
			constant++
		}
	}
	return mu, sigma, constant
}
