package frontier

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

// PriceSource supplies aligned closing prices for a set of tickers over [start, end).
type PriceSource interface {
	FetchPrices(ctx context.Context, tickers []string, start, end time.Time) (*PriceTable, error)
}

// SeedStrategy picks which sampled portfolio starts the optimizer.
type SeedStrategy string

const (
	// SeedFirst starts from the first sample drawn. It is the default.
	SeedFirst SeedStrategy = "first"
	// SeedBest starts from the highest-Sharpe sample.
	SeedBest SeedStrategy = "best"
)

// RunOptions are the numerical parameters of one pipeline run.
type RunOptions struct {
	NumPortfolios    int
	MaxNumPortfolios int // 0 means the package MaxNumPortfolios
	TradingDays      float64
	Seed             *uint64 // nil draws a fresh seed, recorded on the Run
	Workers          int
	SeedStrategy     SeedStrategy
	MaxIterations    int
	Timeout          time.Duration
}

func (o RunOptions) sampleOptions(seed uint64) SampleOptions {
	return SampleOptions{
		NumPortfolios: o.NumPortfolios,
		TradingDays:   o.TradingDays,
		Seed:          seed,
		Workers:       o.Workers,
		MaxPortfolios: o.MaxNumPortfolios,
	}
}

// RunRequest asks for a full run: download, then RunOptions over the downloaded prices.
type RunRequest struct {
	Tickers []string
	Start   time.Time
	End     time.Time
	Options RunOptions
}

// Allocation is the share of capital the optimum puts into one asset.
type Allocation struct {
	Asset   string  `json:"asset"`
	Weight  float64 `json:"weight"`
	Percent float64 `json:"percent"`
}

// Run is everything one pipeline execution produced. It is built once and then only read.
type Run struct {
	ID          string              `json:"id"`
	CreatedAt   time.Time           `json:"created_at"`
	Seed        uint64              `json:"seed"`
	SeedIndex   int                 `json:"seed_index"`
	TradingDays float64             `json:"trading_days"`
	Prices      *PriceTable         `json:"-"`
	Returns     *ReturnTable        `json:"-"`
	Samples     *SampleSet          `json:"-"`
	Optimum     *OptimizationResult `json:"optimum"`
	Allocations []Allocation        `json:"allocations"`
}

// Converged reports whether the optimizer reached a local optimum.
func (r *Run) Converged() bool {
	return r.Optimum != nil && r.Optimum.Success
}

// Service runs the frontier pipeline: prices -> returns -> samples -> optimum.
type Service struct {
	source    PriceSource
	sampler   *Sampler
	optimizer *Optimizer
	defaults  RunOptions
	log       zerolog.Logger
}

// NewService creates a new frontier service. defaults fill any zero field of a request's
// options.
func NewService(source PriceSource, sampler *Sampler, optimizer *Optimizer, defaults RunOptions, log zerolog.Logger) *Service {
	return &Service{
		source:    source,
		sampler:   sampler,
		optimizer: optimizer,
		defaults:  defaults,
		log:       log.With().Str("service", "frontier").Logger(),
	}
}

// Run downloads prices for the request and runs the pipeline over them.
func (s *Service) Run(ctx context.Context, req RunRequest) (*Run, error) {
	if len(req.Tickers) == 0 {
		return nil, fmt.Errorf("%w: no tickers", ErrInvalidOptions)
	}
	if !req.End.After(req.Start) {
		return nil, fmt.Errorf("%w: end date %s is not after start date %s", ErrInvalidOptions,
			req.End.Format(time.DateOnly), req.Start.Format(time.DateOnly))
	}
	if s.source == nil {
		return nil, fmt.Errorf("no price source configured")
	}
	// Reject bad sampler options before paying for the download.
	if err := s.withDefaults(req.Options).sampleOptions(0).withDefaults().validate(); err != nil {
		return nil, err
	}

	s.log.Info().
		Strs("tickers", req.Tickers).
		Str("start", req.Start.Format(time.DateOnly)).
		Str("end", req.End.Format(time.DateOnly)).
		Msg("Downloading prices")

	prices, err := s.source.FetchPrices(ctx, req.Tickers, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}

	return s.RunPrices(ctx, prices, req.Options)
}

// RunPrices runs the numerical pipeline over an already aligned price table. A run whose
// optimizer did not converge is still returned; check Run.Converged.
func (s *Service) RunPrices(ctx context.Context, prices *PriceTable, opts RunOptions) (*Run, error) {
	opts = s.withDefaults(opts)

	seed := rand.Uint64()
	if opts.Seed != nil {
		seed = *opts.Seed
	}

	returns, err := LogReturns(prices)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate returns: %w", err)
	}
	moments, err := ComputeMoments(returns)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate moments: %w", err)
	}

	s.log.Info().
		Int("num_assets", returns.NumAssets()).
		Int("num_returns", returns.Len()).
		Msg("Calculated returns")

	samples, err := s.sampler.SampleMoments(ctx, moments, opts.sampleOptions(seed))
	if err != nil {
		return nil, fmt.Errorf("failed to generate portfolios: %w", err)
	}

	seedIndex := 0
	if opts.SeedStrategy == SeedBest {
		seedIndex = samples.Best()
	}

	s.log.Info().
		Int("num_portfolios", samples.Len()).
		Int("seed_index", seedIndex).
		Msg("Generated portfolios")

	optimum, err := s.optimizer.OptimizeMoments(ctx, samples.Weights[seedIndex], moments, OptimizeOptions{
		TradingDays:   opts.TradingDays,
		MaxIterations: opts.MaxIterations,
		Timeout:       opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to optimize portfolio: %w", err)
	}

	run := &Run{
		CreatedAt:   time.Now(),
		Seed:        seed,
		SeedIndex:   seedIndex,
		TradingDays: opts.TradingDays,
		Prices:      prices,
		Returns:     returns,
		Samples:     samples,
		Optimum:     optimum,
		Allocations: allocations(prices.Assets, optimum.Weights),
	}

	event := s.log.Info()
	if !run.Converged() {
		event = s.log.Warn()
	}
	event.
		Bool("converged", run.Converged()).
		Float64("expected_return", optimum.Stats.Return).
		Float64("volatility", optimum.Stats.Volatility).
		Float64("sharpe", optimum.Stats.Sharpe).
		Msg("Optimized portfolio")

	return run, nil
}

func (s *Service) withDefaults(opts RunOptions) RunOptions {
	if opts.NumPortfolios == 0 {
		opts.NumPortfolios = s.defaults.NumPortfolios
	}
	if opts.MaxNumPortfolios == 0 {
		opts.MaxNumPortfolios = s.defaults.MaxNumPortfolios
	}
	if opts.TradingDays == 0 {
		opts.TradingDays = s.defaults.TradingDays
	}
	if opts.Seed == nil {
		opts.Seed = s.defaults.Seed
	}
	if opts.Workers == 0 {
		opts.Workers = s.defaults.Workers
	}
	if opts.SeedStrategy == "" {
		opts.SeedStrategy = s.defaults.SeedStrategy
	}
	if opts.MaxIterations == 0 {
		opts.MaxIterations = s.defaults.MaxIterations
	}
	if opts.Timeout == 0 {
		opts.Timeout = s.defaults.Timeout
	}
	return opts
}

func allocations(assets []string, weights []float64) []Allocation {
	out := make([]Allocation, len(assets))
	for i, asset := range assets {
		out[i] = Allocation{
			Asset:   asset,
			Weight:  weights[i],
			Percent: weights[i] * 100,
		}
	}
	return out
}
