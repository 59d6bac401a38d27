// Package plots renders frontier runs as PNG images.
package plots

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/vicanso/go-charts/v2"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"gonum.org/v1/gonum/floats"

	"github.com/aristath/frontier/internal/modules/frontier"
)

const (
	// DefaultFrontierBins is how many risk buckets the frontier envelope is cut into.
	DefaultFrontierBins = 40

	// maxLinePoints caps the rows drawn for a price trend; longer tables are strided.
	maxLinePoints = 600

	// maxScatterPoints caps the dots drawn for the sample cloud.
	maxScatterPoints = 20000

	width  = 1000
	height = 600
)

// ErrNotEnoughData is returned when there is nothing meaningful to draw.
var ErrNotEnoughData = errors.New("not enough data points")

// Renderer draws the price trend, the sampled frontier and the optimal allocation of a run.
type Renderer struct {
	bins int
	log  zerolog.Logger
}

// NewRenderer creates a chart renderer. bins <= 0 uses DefaultFrontierBins.
func NewRenderer(bins int, log zerolog.Logger) *Renderer {
	if bins <= 0 {
		bins = DefaultFrontierBins
	}
	return &Renderer{
		bins: bins,
		log:  log.With().Str("component", "charts").Logger(),
	}
}

// PriceTrend plots the closing price of every asset over time.
func (r *Renderer) PriceTrend(prices *frontier.PriceTable) ([]byte, error) {
	if prices == nil || prices.Len() < 2 {
		return nil, ErrNotEnoughData
	}

	stride := (prices.Len() + maxLinePoints - 1) / maxLinePoints
	var rows []int
	for t := 0; t < prices.Len(); t += stride {
		rows = append(rows, t)
	}
	if last := prices.Len() - 1; rows[len(rows)-1] != last {
		rows = append(rows, last)
	}

	xLabels := make([]string, len(rows))
	for i, t := range rows {
		xLabels[i] = prices.Dates[t].Format("2006-01-02")
	}

	values := make([][]float64, len(prices.Assets))
	var all []float64
	for a := range prices.Assets {
		col := make([]float64, len(rows))
		for i, t := range rows {
			col[i] = prices.Closes[a][t]
		}
		values[a] = col
		all = append(all, col...)
	}
	yMin, yMax := paddedRange(all)

	p, err := charts.LineRender(
		values,
		charts.TitleTextOptionFunc("Price Trend", fmt.Sprintf("%s to %s",
			xLabels[0], xLabels[len(xLabels)-1])),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        xLabels,
			SplitNumber: splitNumber(len(xLabels)),
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.LegendOptionFunc(charts.LegendOption{
			Data: prices.Assets,
			Top:  charts.PositionTop,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(width),
		charts.HeightOptionFunc(height),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render price chart: %w", err)
	}
	return encode(p)
}

// Frontier plots every sampled portfolio as a dot at (volatility, expected return), coloured
// by its Sharpe ratio, with the efficient envelope drawn over the cloud and the optimum, when
// given, marked on top.
func (r *Renderer) Frontier(samples *frontier.SampleSet, optimum *frontier.OptimizationResult) ([]byte, error) {
	if samples == nil {
		return nil, ErrNotEnoughData
	}
	points := samples.Frontier(r.bins)
	if len(points) < 2 {
		return nil, ErrNotEnoughData
	}

	stride := (samples.Len() + maxScatterPoints - 1) / maxScatterPoints
	risks := make([]float64, 0, samples.Len()/stride+1)
	means := make([]float64, 0, cap(risks))
	sharpes := make([]float64, 0, cap(risks))
	all := samples.Sharpes()
	for i := 0; i < samples.Len(); i += stride {
		risks = append(risks, samples.Risks[i])
		means = append(means, samples.Means[i])
		sharpes = append(sharpes, all[i])
	}
	lo, hi := floats.Min(sharpes), floats.Max(sharpes)
	if hi <= lo {
		hi = lo + 1
	}

	envelopeX := make([]float64, len(points))
	envelopeY := make([]float64, len(points))
	for i, pt := range points {
		envelopeX[i] = pt.Risk
		envelopeY[i] = pt.Return
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name: fmt.Sprintf("%d portfolios, coloured by Sharpe", samples.Len()),
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    2,
				DotColorProvider: func(_, _ chart.Range, index int, _, _ float64) drawing.Color {
					return chart.Viridis(sharpes[index], lo, hi)
				},
			},
			XValues: risks,
			YValues: means,
		},
		chart.ContinuousSeries{
			Name: "efficient frontier",
			Style: chart.Style{
				StrokeWidth: 2,
				StrokeColor: drawing.ColorBlack,
			},
			XValues: envelopeX,
			YValues: envelopeY,
		},
	}
	if optimum != nil {
		name := fmt.Sprintf("max Sharpe %.4f (return %.4f, volatility %.4f)",
			optimum.Stats.Sharpe, optimum.Stats.Return, optimum.Stats.Volatility)
		if !optimum.Success {
			name += " not converged"
		}
		series = append(series, chart.ContinuousSeries{
			Name: name,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				StrokeColor: drawing.ColorRed,
				DotWidth:    8,
				DotColor:    drawing.ColorRed,
			},
			XValues: []float64{optimum.Stats.Volatility},
			YValues: []float64{optimum.Stats.Return},
		})
	}

	graph := chart.Chart{
		Title:  "Efficient Frontier",
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 60, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:           "Expected Volatility",
			ValueFormatter: decimalFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Expected Return",
			ValueFormatter: decimalFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render frontier chart: %w", err)
	}

	r.log.Debug().
		Int("samples", len(risks)).
		Int("frontier_points", len(points)).
		Msg("Rendered frontier")
	return buf.Bytes(), nil
}

func decimalFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.3f", f)
	}
	return ""
}

// Weights plots the optimal allocation as a pie, one slice per asset.
func (r *Renderer) Weights(allocations []frontier.Allocation) ([]byte, error) {
	if len(allocations) == 0 {
		return nil, ErrNotEnoughData
	}

	values := make([]float64, len(allocations))
	labels := make([]string, len(allocations))
	for i, a := range allocations {
		values[i] = a.Weight
		labels[i] = fmt.Sprintf("%s (%.2f%%)", a.Asset, a.Percent)
	}

	p, err := charts.PieRender(
		values,
		charts.TitleTextOptionFunc("Optimal Allocation"),
		charts.LegendOptionFunc(charts.LegendOption{
			Data: labels,
			Top:  charts.PositionTop,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(800),
		charts.HeightOptionFunc(height),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render allocation chart: %w", err)
	}
	return encode(p)
}

func encode(p *charts.Painter) ([]byte, error) {
	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}

// paddedRange returns the min and max of values widened by 5% of the span, never below 0
// unless the data is.
func paddedRange(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pad := (hi - lo) * 0.05
	if floor := math.Abs(hi) * 0.002; pad < floor {
		pad = floor
	}
	if pad == 0 {
		pad = 1e-6
	}
	yMin, yMax := lo-pad, hi+pad
	if lo >= 0 && yMin < 0 {
		yMin = 0
	}
	return yMin, yMax
}

func splitNumber(n int) int {
	if n <= 30 {
		return max(n/3, 3)
	}
	return 8
}
