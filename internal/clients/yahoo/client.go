// Package yahoo supplies daily closing prices from Yahoo Finance.
package yahoo

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/frontier/internal/modules/frontier"
)

// HistoryFunc downloads the daily history of one symbol over a Yahoo period ("1y", "max", ...).
type HistoryFunc func(symbol, period string) ([]frontier.PricePoint, error)

// historyPeriods are the Yahoo lookback periods, shortest first.
var historyPeriods = []struct {
	name          string
	years, months int
}{
	{"1mo", 0, 1},
	{"3mo", 0, 3},
	{"6mo", 0, 6},
	{"1y", 1, 0},
	{"2y", 2, 0},
	{"5y", 5, 0},
	{"10y", 10, 0},
}

// periodSlack keeps a few extra days in front of start so a period boundary never clips the
// first requested bar.
const periodSlack = 7 * 24 * time.Hour

// periodFor returns the shortest Yahoo period that reaches back from now to start.
func periodFor(start, now time.Time) string {
	from := start.Add(-periodSlack)
	for _, p := range historyPeriods {
		if !from.Before(now.AddDate(-p.years, -p.months, 0)) {
			return p.name
		}
	}
	return "max"
}

// Client implements frontier.PriceSource on top of go-yfinance.
type Client struct {
	history HistoryFunc
	now     func() time.Time
	group   singleflight.Group
	log     zerolog.Logger
}

// NewClient creates a Yahoo Finance price client.
func NewClient(log zerolog.Logger) *Client {
	return NewClientWithHistory(fetchHistory, log)
}

// NewClientWithHistory creates a client that downloads through history instead of Yahoo.
func NewClientWithHistory(history HistoryFunc, log zerolog.Logger) *Client {
	return &Client{
		history: history,
		now:     time.Now,
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// FetchPrices downloads every ticker over the shortest period covering start, keeps the closes
// dated in [start, end) and aligns them on their common trading days. Concurrent requests for
// the same symbol and period share one download.
func (c *Client) FetchPrices(ctx context.Context, tickers []string, start, end time.Time) (*frontier.PriceTable, error) {
	series := make([][]frontier.PricePoint, len(tickers))
	period := periodFor(start, c.now())

	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range tickers {
		g.Go(func() error {
			points, err := c.download(gctx, symbol, period)
			if err != nil {
				return fmt.Errorf("failed to get historical prices for %s: %w", symbol, err)
			}
			series[i] = filterRange(points, start, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bySymbol := make(map[string][]frontier.PricePoint, len(tickers))
	for i, symbol := range tickers {
		bySymbol[symbol] = series[i]
		c.log.Debug().
			Str("symbol", symbol).
			Int("bars", len(series[i])).
			Msg("Downloaded price history")
	}

	return frontier.AlignSeries(tickers, bySymbol)
}

func (c *Client) download(ctx context.Context, symbol, period string) ([]frontier.PricePoint, error) {
	ch := c.group.DoChan(symbol+"|"+period, func() (interface{}, error) {
		return c.history(symbol, period)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.log.Debug().Str("symbol", symbol).Msg("Shared in-flight download")
		}
		return res.Val.([]frontier.PricePoint), nil
	}
}

// filterRange keeps points dated in [start, end). Bars with a missing close are dropped;
// any other bad value is left for the price table to reject.
func filterRange(points []frontier.PricePoint, start, end time.Time) []frontier.PricePoint {
	out := make([]frontier.PricePoint, 0, len(points))
	for _, p := range points {
		if p.Date.Before(start) || !p.Date.Before(end) {
			continue
		}
		if math.IsNaN(p.Close) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func fetchHistory(symbol, period string) ([]frontier.PricePoint, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	bars, err := t.History(models.HistoryParams{
		Period:     period,
		Interval:   "1d",
		AutoAdjust: true,
	})
	if err != nil {
		return nil, err
	}

	points := make([]frontier.PricePoint, 0, len(bars))
	for _, bar := range bars {
		points = append(points, frontier.PricePoint{
			Date:  bar.Date,
			Close: bar.Close,
		})
	}
	return points, nil
}
