package frontier

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/frontier/pkg/formulas"
)

const (
	// DefaultMaxIterations bounds the solver's major iterations.
	DefaultMaxIterations = 1000

	// DefaultOptimizerTimeout bounds the solver's wall-clock time.
	DefaultOptimizerTimeout = 30 * time.Second

	// zeroVolatilityPenalty is the objective value at riskless candidates, where the Sharpe
	// ratio is undefined.
	zeroVolatilityPenalty = 1e10

	// minSeedWeight keeps ln(w) finite when mapping a seed with zero components.
	minSeedWeight = 1e-12

	// seedTolerance is how far a seed may sit off the simplex.
	seedTolerance = 1e-6

	gradientThreshold = 1e-9

	// Convergence is also judged on the objective stalling relative to its own magnitude,
	// since annualized Sharpe ratios of low-volatility inputs can be in the thousands.
	functionTolerance  = 1e-10
	functionStallIters = 20
)

// StatusTrivial is reported for single-asset problems, which are solved without a search.
const StatusTrivial = "Trivial"

// OptimizeOptions configures one optimizer run.
type OptimizeOptions struct {
	TradingDays   float64       // T, defaults to DefaultTradingDays
	MaxIterations int           // defaults to DefaultMaxIterations
	Timeout       time.Duration // defaults to DefaultOptimizerTimeout
}

func (o OptimizeOptions) withDefaults() OptimizeOptions {
	if o.TradingDays == 0 {
		o.TradingDays = DefaultTradingDays
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultOptimizerTimeout
	}
	return o
}

// OptimizationResult is the optimizer's answer. A result with Success == false still carries
// the best point the solver reached; callers decide whether to show or discard it.
type OptimizationResult struct {
	Weights         []float64     `json:"weights"`
	Stats           Stats         `json:"stats"`
	Success         bool          `json:"success"`
	Status          string        `json:"status"`
	Message         string        `json:"message"`
	Method          string        `json:"method"`
	Iterations      int           `json:"iterations"`
	FuncEvaluations int           `json:"func_evaluations"`
	Runtime         time.Duration `json:"runtime"`
}

// Optimizer finds the long-only weight vector with the highest Sharpe ratio.
type Optimizer struct {
	log zerolog.Logger
}

// NewOptimizer creates a new max-Sharpe optimizer.
func NewOptimizer(log zerolog.Logger) *Optimizer {
	return &Optimizer{
		log: log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize minimizes -Sharpe(w) subject to sum(w) = 1 and 0 <= w_i <= 1, starting at seed.
func (o *Optimizer) Optimize(ctx context.Context, seed []float64, returns *ReturnTable, opts OptimizeOptions) (*OptimizationResult, error) {
	moments, err := ComputeMoments(returns)
	if err != nil {
		return nil, err
	}
	return o.OptimizeMoments(ctx, seed, moments, opts)
}

// OptimizeMoments is Optimize against precomputed moments.
//
// The simplex constraints are enforced by construction: the solver searches over
// unconstrained z and evaluates w = softmax(z), which always has components in (0,1) summing
// to 1. The reparameterized problem is solved with BFGS on the analytic gradient, falling back
// to Nelder-Mead when BFGS errors or stops without converging.
func (o *Optimizer) OptimizeMoments(ctx context.Context, seed []float64, moments *Moments, opts OptimizeOptions) (*OptimizationResult, error) {
	opts = opts.withDefaults()
	if !(opts.TradingDays > 0) {
		return nil, fmt.Errorf("%w: trading days must be positive, got %v", ErrInvalidOptions, opts.TradingDays)
	}
	n := moments.NumAssets()
	if len(seed) != n {
		return nil, fmt.Errorf("%w: seed has %d weights for %d assets", ErrShapeMismatch, len(seed), n)
	}
	if !formulas.OnSimplex(seed, seedTolerance) {
		return nil, fmt.Errorf("%w: seed %v is not a long-only weight vector summing to 1", ErrInvalidOptions, seed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if n == 1 {
		w := []float64{1}
		return &OptimizationResult{
			Weights: w,
			Stats:   moments.evaluate(w, opts.TradingDays),
			Success: true,
			Status:  StatusTrivial,
			Message: "single asset portfolio",
		}, nil
	}

	z0 := make([]float64, n)
	for i, w := range seed {
		z0[i] = math.Log(math.Max(w, minSeedWeight))
	}

	problem := sharpeProblem(moments, opts.TradingDays)
	settings := &optimize.Settings{
		GradientThreshold: gradientThreshold,
		Converger: &optimize.FunctionConverge{
			Absolute:   functionTolerance,
			Relative:   functionTolerance,
			Iterations: functionStallIters,
		},
		MajorIterations: opts.MaxIterations,
		Runtime:         opts.Timeout,
	}

	method := "BFGS"
	result, err := optimize.Minimize(problem, z0, settings, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		o.log.Debug().
			Err(err).
			Str("status", statusString(result)).
			Msg("BFGS did not converge, retrying with Nelder-Mead")

		method = "NelderMead"
		result, err = optimize.Minimize(problem, z0, settings, &optimize.NelderMead{})
	}

	return o.buildResult(seed, moments, opts.TradingDays, method, result, err), nil
}

// sharpeProblem is -Sharpe(softmax(z)) with its analytic gradient.
//
// With S(w) = μᵀw / σ(w), σ(w) = sqrt(wᵀΣw) (annualized μ, Σ):
//
//	dS/dw   = μ/σ - S·Σw/σ²
//	dS/dz_i = w_i·(g_i - gᵀw)    for g = dS/dw
func sharpeProblem(moments *Moments, tradingDays float64) optimize.Problem {
	n := moments.NumAssets()

	at := func(z []float64) ([]float64, Stats) {
		w := formulas.Softmax(nil, z)
		return w, moments.evaluate(w, tradingDays)
	}

	return optimize.Problem{
		Func: func(z []float64) float64 {
			_, stats := at(z)
			if stats.Degenerate() {
				return zeroVolatilityPenalty
			}
			return -stats.Sharpe
		},
		Grad: func(grad, z []float64) {
			w, stats := at(z)
			if stats.Degenerate() {
				for i := range grad {
					grad[i] = 0
				}
				return
			}

			sigmaW := mat.NewVecDense(n, nil)
			sigmaW.MulVec(moments.Cov, mat.NewVecDense(n, w))

			variance := stats.Volatility * stats.Volatility
			g := make([]float64, n)
			for i := range g {
				mu := moments.Mean[i] * tradingDays
				g[i] = mu/stats.Volatility - stats.Sharpe*tradingDays*sigmaW.AtVec(i)/variance
			}
			gw := floats.Dot(g, w)
			for i := range grad {
				grad[i] = -w[i] * (g[i] - gw)
			}
		},
	}
}

func (o *Optimizer) buildResult(seed []float64, moments *Moments, tradingDays float64, method string, result *optimize.Result, err error) *OptimizationResult {
	res := &OptimizationResult{Method: method}

	if result != nil {
		res.Weights = formulas.Softmax(nil, result.X)
		res.Status = result.Status.String()
		res.Success = converged(result.Status)
		res.Iterations = result.Stats.MajorIterations
		res.FuncEvaluations = result.Stats.FuncEvaluations
		res.Runtime = result.Stats.Runtime
	}
	if res.Weights == nil || !formulas.NormalizeToSimplex(res.Weights) {
		res.Weights = append([]float64(nil), seed...)
		formulas.NormalizeToSimplex(res.Weights)
		res.Success = false
	}
	res.Stats = moments.evaluate(res.Weights, tradingDays)

	switch {
	case res.Stats.Degenerate():
		res.Success = false
		res.Message = "optimum has zero volatility, Sharpe ratio is undefined"
	case err != nil:
		res.Success = false
		res.Message = fmt.Sprintf("optimization failed: %v", err)
	case res.Success:
		res.Message = "optimization converged"
	default:
		res.Message = fmt.Sprintf("optimization did not converge: status=%s", res.Status)
	}
	if res.Status == "" {
		res.Status = optimize.Failure.String()
	}

	event := o.log.Debug()
	if !res.Success {
		event = o.log.Warn()
	}
	event.
		Str("method", res.Method).
		Str("status", res.Status).
		Int("iterations", res.Iterations).
		Float64("sharpe", res.Stats.Sharpe).
		Msg(res.Message)

	return res
}

// converged accepts the gonum statuses that indicate a local optimum was reached.
func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}

func statusString(result *optimize.Result) string {
	if result == nil {
		return "none"
	}
	return result.Status.String()
}
