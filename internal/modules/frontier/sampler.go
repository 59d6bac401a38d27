package frontier

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultNumPortfolios is the Monte Carlo sample count.
const DefaultNumPortfolios = 10000

// MaxNumPortfolios is the default upper bound on the sample count. Every sample keeps its
// weight vector, so K is what sizes a run's memory.
const MaxNumPortfolios = 1_000_000

// ctxCheckInterval is how many samples a worker draws between cancellation checks.
const ctxCheckInterval = 1024

// SampleOptions configures one sampler run.
type SampleOptions struct {
	NumPortfolios int     // K, defaults to DefaultNumPortfolios
	TradingDays   float64 // T, defaults to DefaultTradingDays
	Seed          uint64  // Output is reproducible for a fixed (Seed, Workers, NumPortfolios)
	Workers       int     // Defaults to GOMAXPROCS, capped at NumPortfolios
	MaxPortfolios int     // Upper bound on NumPortfolios, defaults to MaxNumPortfolios
}

func (o SampleOptions) withDefaults() SampleOptions {
	if o.NumPortfolios == 0 {
		o.NumPortfolios = DefaultNumPortfolios
	}
	if o.TradingDays == 0 {
		o.TradingDays = DefaultTradingDays
	}
	if o.MaxPortfolios <= 0 {
		o.MaxPortfolios = MaxNumPortfolios
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Workers > o.NumPortfolios {
		o.Workers = o.NumPortfolios
	}
	return o
}

func (o SampleOptions) validate() error {
	if o.NumPortfolios < 1 {
		return fmt.Errorf("%w: num portfolios must be positive, got %d", ErrInvalidOptions, o.NumPortfolios)
	}
	if o.NumPortfolios > o.MaxPortfolios {
		return fmt.Errorf("%w: num portfolios must be at most %d, got %d", ErrInvalidOptions, o.MaxPortfolios, o.NumPortfolios)
	}
	if !(o.TradingDays > 0) {
		return fmt.Errorf("%w: trading days must be positive, got %v", ErrInvalidOptions, o.TradingDays)
	}
	return nil
}

// SampleSet holds the weights, annualized means and annualized risks of every sampled
// portfolio, index-aligned.
type SampleSet struct {
	Weights [][]float64 `json:"weights"`
	Means   []float64   `json:"means"`
	Risks   []float64   `json:"risks"`
}

// Len is the number of sampled portfolios.
func (s *SampleSet) Len() int {
	return len(s.Weights)
}

// Sharpes returns mean/risk per sample, 0 where the risk is 0.
func (s *SampleSet) Sharpes() []float64 {
	out := make([]float64, len(s.Means))
	for i := range s.Means {
		if s.Risks[i] > 0 {
			out[i] = s.Means[i] / s.Risks[i]
		}
	}
	return out
}

// Best returns the index of the highest-Sharpe sample, or -1 for an empty set.
func (s *SampleSet) Best() int {
	best, bestSharpe := -1, math.Inf(-1)
	for i, sharpe := range s.Sharpes() {
		if sharpe > bestSharpe {
			best, bestSharpe = i, sharpe
		}
	}
	return best
}

// FrontierPoint is one point of the sampled efficient frontier.
type FrontierPoint struct {
	Risk   float64 `json:"risk"`
	Return float64 `json:"return"`
	Index  int     `json:"index"`
}

// Frontier approximates the efficient frontier from the sample cloud: the risk range is cut
// into bins, the highest-return sample of each bin is taken, and points that do not improve
// on the return of a lower-risk point are dropped.
func (s *SampleSet) Frontier(bins int) []FrontierPoint {
	if s.Len() == 0 || bins < 1 {
		return nil
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range s.Risks {
		lo = math.Min(lo, r)
		hi = math.Max(hi, r)
	}
	width := (hi - lo) / float64(bins)

	best := make([]int, bins)
	for b := range best {
		best[b] = -1
	}
	for i, r := range s.Risks {
		b := 0
		if width > 0 {
			b = int((r - lo) / width)
		}
		if b >= bins {
			b = bins - 1
		}
		if best[b] < 0 || s.Means[i] > s.Means[best[b]] {
			best[b] = i
		}
	}

	points := make([]FrontierPoint, 0, bins)
	for _, i := range best {
		if i < 0 {
			continue
		}
		points = append(points, FrontierPoint{Risk: s.Risks[i], Return: s.Means[i], Index: i})
	}
	sort.Slice(points, func(a, b int) bool { return points[a].Risk < points[b].Risk })

	efficient := points[:0]
	top := math.Inf(-1)
	for _, p := range points {
		if p.Return > top {
			efficient = append(efficient, p)
			top = p.Return
		}
	}
	return efficient
}

// Sampler draws random long-only portfolios.
type Sampler struct {
	log zerolog.Logger
}

// NewSampler creates a new portfolio sampler.
func NewSampler(log zerolog.Logger) *Sampler {
	return &Sampler{
		log: log.With().Str("component", "sampler").Logger(),
	}
}

// Sample draws opts.NumPortfolios weight vectors for the assets of returns and evaluates
// each one.
func (s *Sampler) Sample(ctx context.Context, returns *ReturnTable, opts SampleOptions) (*SampleSet, error) {
	moments, err := ComputeMoments(returns)
	if err != nil {
		return nil, err
	}
	return s.SampleMoments(ctx, moments, opts)
}

// SampleMoments is Sample against precomputed moments.
//
// Weights are drawn as M independent uniforms on [0,1) divided by their sum. This is the
// normalize-uniform scheme; it is biased towards the centre of the simplex and is not the
// uniform Dirichlet(1,...,1) distribution. Every vector still lies exactly on the simplex.
//
// The K draws are split across opts.Workers goroutines. Worker i owns its own PCG stream
// derived from (Seed, i) and writes into its own index range, so the output does not depend
// on scheduling.
func (s *Sampler) SampleMoments(ctx context.Context, moments *Moments, opts SampleOptions) (*SampleSet, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	n := moments.NumAssets()
	if n == 0 {
		return nil, fmt.Errorf("%w: no assets to sample", ErrNoData)
	}

	k := opts.NumPortfolios
	set := &SampleSet{
		Weights: make([][]float64, k),
		Means:   make([]float64, k),
		Risks:   make([]float64, k),
	}

	s.log.Debug().
		Int("num_assets", n).
		Int("num_portfolios", k).
		Int("workers", opts.Workers).
		Uint64("seed", opts.Seed).
		Msg("Sampling portfolios")

	chunk := (k + opts.Workers - 1) / opts.Workers
	g, gctx := errgroup.WithContext(ctx)
	for worker := 0; worker < opts.Workers; worker++ {
		start := worker * chunk
		end := min(start+chunk, k)
		if start >= end {
			break
		}
		rng := rand.New(rand.NewPCG(opts.Seed, uint64(worker)))

		g.Go(func() error {
			for i := start; i < end; i++ {
				if (i-start)%ctxCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				w := drawWeights(rng, n)
				stats := moments.evaluate(w, opts.TradingDays)
				set.Weights[i] = w
				set.Means[i] = stats.Return
				set.Risks[i] = stats.Volatility
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sampling aborted: %w", err)
	}

	return set, nil
}

// drawWeights returns n uniforms normalized to sum to 1. A single asset always gets [1].
func drawWeights(rng *rand.Rand, n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for {
		var sum float64
		for i := range w {
			w[i] = rng.Float64()
			sum += w[i]
		}
		if sum > 0 {
			for i := range w {
				w[i] /= sum
			}
			return w
		}
	}
}
