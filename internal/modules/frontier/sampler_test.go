package frontier

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/aristath/frontier/pkg/formulas"
)

func threeAssetReturns(t *testing.T) *ReturnTable {
	t.Helper()
	return returnTable(t, []string{"A", "B", "C"},
		[]float64{0.010, -0.004, 0.007, 0.002, -0.001, 0.006},
		[]float64{0.002, 0.003, -0.001, 0.004, 0.001, 0.000},
		[]float64{-0.006, 0.012, 0.003, -0.008, 0.009, 0.004},
	)
}

func TestSampler_WeightsStayOnSimplex(t *testing.T) {
	sampler := NewSampler(zerolog.Nop())

	set, err := sampler.Sample(context.Background(), threeAssetReturns(t), SampleOptions{
		NumPortfolios: 2000,
		Seed:          7,
		Workers:       3,
	})
	require.NoError(t, err)
	require.Equal(t, 2000, set.Len())
	require.Len(t, set.Means, 2000)
	require.Len(t, set.Risks, 2000)

	for i, w := range set.Weights {
		require.Len(t, w, 3)
		assert.InDelta(t, 1.0, floats.Sum(w), 1e-9, "sample %d", i)
		for _, v := range w {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestSampler_MeansAndRisksUseSharedStatistics(t *testing.T) {
	returns := threeAssetReturns(t)
	moments, err := ComputeMoments(returns)
	require.NoError(t, err)

	set, err := NewSampler(zerolog.Nop()).SampleMoments(context.Background(), moments, SampleOptions{
		NumPortfolios: 50,
		TradingDays:   252,
		Seed:          1,
	})
	require.NoError(t, err)

	for i, w := range set.Weights {
		stats, err := Statistics(w, returns, 252)
		require.NoError(t, err)
		assert.Equal(t, stats.Return, set.Means[i])
		assert.Equal(t, stats.Volatility, set.Risks[i])
	}
}

func TestSampler_SeedIsReproducible(t *testing.T) {
	sampler := NewSampler(zerolog.Nop())
	returns := threeAssetReturns(t)
	opts := SampleOptions{NumPortfolios: 300, Seed: 42, Workers: 4}

	first, err := sampler.Sample(context.Background(), returns, opts)
	require.NoError(t, err)
	second, err := sampler.Sample(context.Background(), returns, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	opts.Seed = 43
	third, err := sampler.Sample(context.Background(), returns, opts)
	require.NoError(t, err)
	assert.NotEqual(t, first.Weights, third.Weights)
}

func TestSampler_SingleAsset(t *testing.T) {
	returns := returnTable(t, []string{"ONLY"}, []float64{0.01, -0.02, 0.015})

	set, err := NewSampler(zerolog.Nop()).Sample(context.Background(), returns, SampleOptions{
		NumPortfolios: 100,
		Seed:          3,
	})
	require.NoError(t, err)

	for _, w := range set.Weights {
		assert.Equal(t, []float64{1.0}, w)
	}
}

func TestSampler_DefaultsAndValidation(t *testing.T) {
	sampler := NewSampler(zerolog.Nop())
	returns := threeAssetReturns(t)

	set, err := sampler.Sample(context.Background(), returns, SampleOptions{Seed: 9})
	require.NoError(t, err)
	assert.Equal(t, DefaultNumPortfolios, set.Len())

	_, err = sampler.Sample(context.Background(), returns, SampleOptions{NumPortfolios: -5})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = sampler.Sample(context.Background(), returns, SampleOptions{NumPortfolios: 10, TradingDays: -1})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = sampler.Sample(context.Background(), &ReturnTable{}, SampleOptions{NumPortfolios: 10})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSampler_RejectsTooManyPortfolios(t *testing.T) {
	sampler := NewSampler(zerolog.Nop())
	returns := threeAssetReturns(t)

	for _, k := range []int{MaxNumPortfolios + 1, 1 << 60} {
		set, err := sampler.Sample(context.Background(), returns, SampleOptions{NumPortfolios: k})
		assert.ErrorIs(t, err, ErrInvalidOptions, "k=%d", k)
		assert.Nil(t, set)
	}

	_, err := sampler.Sample(context.Background(), returns, SampleOptions{NumPortfolios: 11, MaxPortfolios: 10})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	set, err := sampler.Sample(context.Background(), returns, SampleOptions{NumPortfolios: 10, MaxPortfolios: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, set.Len())
}

func TestSampler_MoreWorkersThanSamples(t *testing.T) {
	set, err := NewSampler(zerolog.Nop()).Sample(context.Background(), threeAssetReturns(t), SampleOptions{
		NumPortfolios: 3,
		Workers:       16,
	})
	require.NoError(t, err)
	for _, w := range set.Weights {
		assert.True(t, formulas.OnSimplex(w, 1e-9))
	}
}

func TestSampler_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSampler(zerolog.Nop()).Sample(ctx, threeAssetReturns(t), SampleOptions{NumPortfolios: 100})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSampleSet_BestAndFrontier(t *testing.T) {
	set := &SampleSet{
		Weights: [][]float64{{1, 0}, {0, 1}, {0.5, 0.5}, {0.2, 0.8}},
		Means:   []float64{0.10, 0.20, 0.15, 0.05},
		Risks:   []float64{0.20, 0.20, 0.30, 0.05},
	}

	assert.InDeltaSlice(t, []float64{0.5, 1, 0.5, 1}, set.Sharpes(), 1e-12)
	assert.Equal(t, 1, set.Best(), "ties keep the first maximum")

	// bins: [0.05, 0.133) [0.133, 0.217) [0.217, 0.3]
	frontier := set.Frontier(3)
	require.Len(t, frontier, 2)
	assert.Equal(t, FrontierPoint{Risk: 0.05, Return: 0.05, Index: 3}, frontier[0])
	assert.Equal(t, FrontierPoint{Risk: 0.20, Return: 0.20, Index: 1}, frontier[1])

	zeroRisk := &SampleSet{Weights: [][]float64{{1}}, Means: []float64{0.1}, Risks: []float64{0}}
	assert.Equal(t, []float64{0}, zeroRisk.Sharpes())

	empty := &SampleSet{}
	assert.Equal(t, -1, empty.Best())
	assert.Nil(t, empty.Frontier(10))
}
