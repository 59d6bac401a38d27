package plots

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/modules/frontier"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func testPrices(t *testing.T, rows int) *frontier.PriceTable {
	t.Helper()
	dates := make([]time.Time, rows)
	x := make([]float64, rows)
	y := make([]float64, rows)
	for i := range dates {
		dates[i] = time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		x[i] = 100 + float64(i)
		y[i] = 50 + float64(i%7)
	}
	table, err := frontier.NewPriceTable([]string{"X", "Y"}, dates, [][]float64{x, y})
	require.NoError(t, err)
	return table
}

func newTestRenderer() *Renderer {
	return NewRenderer(0, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestNewRenderer_Defaults(t *testing.T) {
	assert.Equal(t, DefaultFrontierBins, newTestRenderer().bins)
	assert.Equal(t, 5, NewRenderer(5, zerolog.Nop()).bins)
}

func TestRenderer_PriceTrend(t *testing.T) {
	r := newTestRenderer()

	img, err := r.PriceTrend(testPrices(t, 30))
	require.NoError(t, err)
	assert.Equal(t, pngSignature, img[:len(pngSignature)])
}

func TestRenderer_PriceTrend_StridesLongTables(t *testing.T) {
	r := newTestRenderer()

	img, err := r.PriceTrend(testPrices(t, 3*maxLinePoints+1))
	require.NoError(t, err)
	assert.Equal(t, pngSignature, img[:len(pngSignature)])
}

func TestRenderer_PriceTrend_NotEnoughData(t *testing.T) {
	_, err := newTestRenderer().PriceTrend(nil)
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestRenderer_Frontier(t *testing.T) {
	r := newTestRenderer()
	samples := &frontier.SampleSet{
		Weights: [][]float64{{1, 0}, {0.5, 0.5}, {0.2, 0.8}, {0, 1}},
		Means:   []float64{0.05, 0.08, 0.11, 0.12},
		Risks:   []float64{0.10, 0.12, 0.18, 0.25},
	}
	optimum := &frontier.OptimizationResult{
		Weights: []float64{0.4, 0.6},
		Stats:   frontier.Stats{Return: 0.09, Volatility: 0.13, Sharpe: 0.69},
		Success: true,
	}

	img, err := r.Frontier(samples, optimum)
	require.NoError(t, err)
	assert.Equal(t, pngSignature, img[:len(pngSignature)])

	img, err = r.Frontier(samples, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, img)
}

func TestRenderer_Frontier_LargeCloud(t *testing.T) {
	r := newTestRenderer()
	k := 2*maxScatterPoints + 3
	samples := &frontier.SampleSet{
		Weights: make([][]float64, k),
		Means:   make([]float64, k),
		Risks:   make([]float64, k),
	}
	for i := 0; i < k; i++ {
		a := float64(i) / float64(k)
		samples.Weights[i] = []float64{a, 1 - a}
		samples.Risks[i] = 0.1 + 0.2*a
		samples.Means[i] = 0.05 + 0.1*a - 0.08*a*a
	}
	optimum := &frontier.OptimizationResult{
		Weights: []float64{0.5, 0.5},
		Stats:   frontier.Stats{Return: 0.08, Volatility: 0.2, Sharpe: 0.4},
	}

	img, err := r.Frontier(samples, optimum)
	require.NoError(t, err)
	assert.Equal(t, pngSignature, img[:len(pngSignature)])
}

func TestRenderer_Frontier_EqualSharpes(t *testing.T) {
	samples := &frontier.SampleSet{
		Weights: [][]float64{{1, 0}, {0.5, 0.5}, {0, 1}},
		Means:   []float64{0.05, 0.10, 0.15},
		Risks:   []float64{0.10, 0.20, 0.30},
	}

	img, err := newTestRenderer().Frontier(samples, nil)
	require.NoError(t, err)
	assert.Equal(t, pngSignature, img[:len(pngSignature)])
}

func TestRenderer_Frontier_NotEnoughData(t *testing.T) {
	r := newTestRenderer()

	_, err := r.Frontier(nil, nil)
	assert.ErrorIs(t, err, ErrNotEnoughData)

	_, err = r.Frontier(&frontier.SampleSet{}, nil)
	assert.ErrorIs(t, err, ErrNotEnoughData)

	single := &frontier.SampleSet{
		Weights: [][]float64{{1}, {1}},
		Means:   []float64{0.1, 0.1},
		Risks:   []float64{0.2, 0.2},
	}
	_, err = r.Frontier(single, nil)
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestRenderer_Weights(t *testing.T) {
	r := newTestRenderer()

	img, err := r.Weights([]frontier.Allocation{
		{Asset: "X", Weight: 0.25, Percent: 25},
		{Asset: "Y", Weight: 0.75, Percent: 75},
	})
	require.NoError(t, err)
	assert.Equal(t, pngSignature, img[:len(pngSignature)])

	_, err = r.Weights(nil)
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestPaddedRange(t *testing.T) {
	tests := []struct {
		name           string
		values         []float64
		wantLo, wantHi float64
	}{
		{name: "positive", values: []float64{10, 20}, wantLo: 9.5, wantHi: 20.5},
		{name: "clamped at zero", values: []float64{0.1, 100}, wantLo: 0, wantHi: 104.995},
		{name: "negative kept", values: []float64{-1, 1}, wantLo: -1.1, wantHi: 1.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := paddedRange(tt.values)
			assert.InDelta(t, tt.wantLo, lo, 1e-9)
			assert.InDelta(t, tt.wantHi, hi, 1e-9)
		})
	}

	lo, hi := paddedRange([]float64{5, 5})
	assert.Less(t, lo, hi)
}
