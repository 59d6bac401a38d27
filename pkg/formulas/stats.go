// Package formulas holds small numerical helpers over gonum used by the frontier pipeline.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// LogReturns converts prices to continuously compounded returns.
// Returns[i] = ln(Price[i+1] / Price[i])
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = math.Log(prices[i] / prices[i-1])
	}
	return returns
}

// CovarianceMatrix returns the sample covariance (N-1 denominator) of the columns of x,
// where rows are observations.
func CovarianceMatrix(x mat.Matrix) *mat.SymDense {
	_, c := x.Dims()
	cov := mat.NewSymDense(c, nil)
	stat.CovarianceMatrix(cov, x, nil)
	return cov
}

// QuadraticForm computes wᵀ·Σ·w.
func QuadraticForm(w []float64, sigma mat.Symmetric) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, sigma, v)
}

// Softmax writes exp(z) / Σexp(z) into dst, shifted by max(z) to avoid overflow.
func Softmax(dst, z []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(z))
	}
	if len(z) == 0 {
		return dst
	}
	shift := floats.Max(z)
	for i, v := range z {
		dst[i] = math.Exp(v - shift)
	}
	floats.Scale(1/floats.Sum(dst), dst)
	return dst
}

// NormalizeToSimplex clamps negative components to zero and rescales so the sum is 1.
// It reports false when nothing positive is left to rescale.
func NormalizeToSimplex(w []float64) bool {
	for i, v := range w {
		if v < 0 || math.IsNaN(v) {
			w[i] = 0
		}
	}
	sum := floats.Sum(w)
	if sum <= 0 || math.IsInf(sum, 0) {
		return false
	}
	floats.Scale(1/sum, w)
	return true
}

// OnSimplex reports whether every component is in [0,1] and the components sum to 1 within tol.
func OnSimplex(w []float64, tol float64) bool {
	if len(w) == 0 {
		return false
	}
	for _, v := range w {
		if v < -tol || v > 1+tol || math.IsNaN(v) {
			return false
		}
	}
	return math.Abs(floats.Sum(w)-1) <= tol
}
