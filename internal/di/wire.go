// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/clients/yahoo"
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/frontier"
	"github.com/aristath/frontier/internal/modules/plots"
)

// Wire initializes all dependencies and returns a fully configured container.
// source may be nil, in which case prices come from Yahoo Finance.
func Wire(cfg *config.Config, source frontier.PriceSource, log zerolog.Logger) (*Container, error) {
	if cfg == nil || cfg.Frontier == nil {
		return nil, fmt.Errorf("frontier configuration is required")
	}

	container := &Container{}

	if source == nil {
		container.YahooClient = yahoo.NewClient(log)
		source = container.YahooClient
	}

	container.Sampler = frontier.NewSampler(log)
	container.Optimizer = frontier.NewOptimizer(log)
	container.Service = frontier.NewService(
		source,
		container.Sampler,
		container.Optimizer,
		cfg.Frontier.RunOptions(),
		log,
	)
	container.RunStore = frontier.NewRunStore(cfg.Frontier.RunCacheSize)
	container.Renderer = plots.NewRenderer(plots.DefaultFrontierBins, log)

	log.Info().
		Strs("default_tickers", cfg.Frontier.Tickers).
		Int("num_portfolios", cfg.Frontier.NumPortfolios).
		Int("workers", cfg.Frontier.Workers).
		Msg("Services initialized")

	return container, nil
}
