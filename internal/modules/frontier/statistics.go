package frontier

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/pkg/formulas"
)

// DefaultTradingDays annualizes daily statistics.
const DefaultTradingDays = 252

// minVariance is the annualized variance below which a portfolio is treated as riskless.
const minVariance = 1e-20

// Stats is the annualized (return, volatility, Sharpe) triple of one weight vector.
// The risk-free rate is zero.
type Stats struct {
	Return     float64 `json:"return"`
	Volatility float64 `json:"volatility"`
	Sharpe     float64 `json:"sharpe"`
}

// Degenerate reports whether the volatility was zero, in which case Sharpe is undefined and
// reported as 0.
func (s Stats) Degenerate() bool {
	return s.Volatility == 0
}

// Moments are the daily mean log return per asset and the daily sample covariance matrix.
// They depend only on the return table, so a run computes them once and evaluates every
// weight vector against them.
type Moments struct {
	Mean []float64
	Cov  *mat.SymDense
}

// ComputeMoments derives means and sample covariance (N-1 denominator) from a return table.
func ComputeMoments(returns *ReturnTable) (*Moments, error) {
	if err := returns.validate(); err != nil {
		return nil, err
	}
	if returns.Len() < 2 {
		return nil, fmt.Errorf("%w: need at least 2 return rows for a covariance, got %d", ErrNoData, returns.Len())
	}

	mean := make([]float64, returns.NumAssets())
	for a, col := range returns.Values {
		mean[a] = formulas.Mean(col)
	}

	return &Moments{
		Mean: mean,
		Cov:  formulas.CovarianceMatrix(returns.Matrix()),
	}, nil
}

// NumAssets is the dimension of the moments.
func (m *Moments) NumAssets() int {
	return len(m.Mean)
}

// Evaluate computes annualized statistics for w:
//
//	return     = T * meanᵀw
//	volatility = sqrt(wᵀ (T * cov) w)
//	sharpe     = return / volatility
//
// This is the only place the formula lives; the sampler and the optimizer objective both
// call it.
func (m *Moments) Evaluate(w []float64, tradingDays float64) (Stats, error) {
	if len(w) != m.NumAssets() {
		return Stats{}, fmt.Errorf("%w: weight vector has %d components for %d assets", ErrShapeMismatch, len(w), m.NumAssets())
	}
	return m.evaluate(w, tradingDays), nil
}

// evaluate is Evaluate without the shape check, for hot loops that already checked it.
func (m *Moments) evaluate(w []float64, tradingDays float64) Stats {
	ret := floats.Dot(m.Mean, w) * tradingDays
	variance := formulas.QuadraticForm(w, m.Cov) * tradingDays

	if !(variance > minVariance) || math.IsInf(variance, 0) {
		return Stats{Return: ret}
	}
	vol := math.Sqrt(variance)
	return Stats{
		Return:     ret,
		Volatility: vol,
		Sharpe:     ret / vol,
	}
}

// Statistics is the pure convenience form of Moments.Evaluate for a single weight vector.
func Statistics(w []float64, returns *ReturnTable, tradingDays float64) (Stats, error) {
	if tradingDays <= 0 {
		return Stats{}, fmt.Errorf("%w: trading days must be positive, got %v", ErrInvalidOptions, tradingDays)
	}
	m, err := ComputeMoments(returns)
	if err != nil {
		return Stats{}, err
	}
	return m.Evaluate(w, tradingDays)
}
