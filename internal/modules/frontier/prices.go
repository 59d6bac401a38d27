// Package frontier estimates the efficient frontier of a long-only portfolio by Monte Carlo
// sampling and refines the best sample into a maximum-Sharpe portfolio.
//
// The pipeline is strictly forward:
//
//	prices -> log returns -> sampled portfolios -> optimizer -> statistics
//
// Every stage takes what it needs as arguments; nothing is read from package state.
package frontier

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// PricePoint is a single dated close as delivered by a price source.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// PriceTable holds aligned closing prices. Closes[a][t] is the close of Assets[a] on Dates[t].
type PriceTable struct {
	Assets []string
	Dates  []time.Time
	Closes [][]float64
}

// NewPriceTable validates and wraps aligned closes.
// Every asset must have one strictly positive, finite close per date, and there must be at
// least two dates so that one return can be computed.
func NewPriceTable(assets []string, dates []time.Time, closes [][]float64) (*PriceTable, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrNoData)
	}
	if len(closes) != len(assets) {
		return nil, fmt.Errorf("%w: %d price columns for %d assets", ErrShapeMismatch, len(closes), len(assets))
	}
	if len(dates) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 dated rows, got %d", ErrNoData, len(dates))
	}

	seen := make(map[string]struct{}, len(assets))
	for a, asset := range assets {
		if asset == "" {
			return nil, fmt.Errorf("%w: empty asset identifier at column %d", ErrInvalidOptions, a)
		}
		if _, dup := seen[asset]; dup {
			return nil, fmt.Errorf("%w: duplicate asset %s", ErrInvalidOptions, asset)
		}
		seen[asset] = struct{}{}

		if len(closes[a]) != len(dates) {
			return nil, fmt.Errorf("%w: asset %s has %d prices for %d dates", ErrShapeMismatch, asset, len(closes[a]), len(dates))
		}
		for t, p := range closes[a] {
			if !(p > 0) || math.IsInf(p, 0) {
				return nil, fmt.Errorf("%w: asset %s has price %v on row %d", ErrNonPositivePrice, asset, p, t)
			}
		}
	}

	return &PriceTable{
		Assets: assets,
		Dates:  dates,
		Closes: closes,
	}, nil
}

// AlignSeries inner-joins per-asset series on their dates and builds a validated PriceTable.
// Columns follow the order of assets. Dates missing for any asset are dropped rather than
// filled, so no NaN ever enters the table.
func AlignSeries(assets []string, series map[string][]PricePoint) (*PriceTable, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrNoData)
	}

	// day -> close per asset
	byAsset := make([]map[time.Time]float64, len(assets))
	for a, asset := range assets {
		points := series[asset]
		if len(points) == 0 {
			return nil, fmt.Errorf("%w: no prices for %s", ErrNoData, asset)
		}
		m := make(map[time.Time]float64, len(points))
		for _, p := range points {
			m[truncateDay(p.Date)] = p.Close
		}
		byAsset[a] = m
	}

	var dates []time.Time
	for day := range byAsset[0] {
		common := true
		for _, m := range byAsset[1:] {
			if _, ok := m[day]; !ok {
				common = false
				break
			}
		}
		if common {
			dates = append(dates, day)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: assets %s share no trading dates", ErrNoData, strings.Join(assets, ", "))
	}

	closes := make([][]float64, len(assets))
	for a := range assets {
		col := make([]float64, len(dates))
		for t, day := range dates {
			col[t] = byAsset[a][day]
		}
		closes[a] = col
	}

	return NewPriceTable(assets, dates, closes)
}

// Len is the number of dated rows.
func (p *PriceTable) Len() int {
	return len(p.Dates)
}

// Tail returns a table with the last n rows (the whole table when n >= Len).
// The returned table shares no slices with p.
func (p *PriceTable) Tail(n int) *PriceTable {
	if n > p.Len() {
		n = p.Len()
	}
	if n < 0 {
		n = 0
	}
	start := p.Len() - n

	out := &PriceTable{
		Assets: append([]string(nil), p.Assets...),
		Dates:  append([]time.Time(nil), p.Dates[start:]...),
		Closes: make([][]float64, len(p.Closes)),
	}
	for a := range p.Closes {
		out.Closes[a] = append([]float64(nil), p.Closes[a][start:]...)
	}
	return out
}

// ParseTickers splits a comma-separated ticker list, trimming blanks and dropping empty
// entries. Duplicates are rejected.
func ParseTickers(input string) ([]string, error) {
	var tickers []string
	seen := make(map[string]struct{})
	for _, raw := range strings.Split(input, ",") {
		t := strings.TrimSpace(raw)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			return nil, fmt.Errorf("%w: duplicate ticker %s", ErrInvalidOptions, t)
		}
		seen[t] = struct{}{}
		tickers = append(tickers, t)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: no tickers in %q", ErrInvalidOptions, input)
	}
	return tickers, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
