package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/frontier/internal/modules/frontier"
)

// Config holds application configuration
type Config struct {
	Port     int
	LogLevel string
	DevMode  bool
	Frontier *FrontierConfig
}

// FrontierConfig holds the defaults of a frontier run. Requests may override any of them.
type FrontierConfig struct {
	Tickers          []string
	StartDate        time.Time
	EndDate          time.Time
	NumPortfolios    int
	MaxNumPortfolios int
	TradingDays      float64
	Workers          int
	Seed             uint64 // 0 draws a fresh seed per run
	SeedStrategy     frontier.SeedStrategy
	MaxIterations    int
	Timeout          time.Duration
	RunCacheSize     int
}

// RunOptions converts the defaults into pipeline options.
func (c *FrontierConfig) RunOptions() frontier.RunOptions {
	opts := frontier.RunOptions{
		NumPortfolios:    c.NumPortfolios,
		MaxNumPortfolios: c.MaxNumPortfolios,
		TradingDays:      c.TradingDays,
		Workers:          c.Workers,
		SeedStrategy:     c.SeedStrategy,
		MaxIterations:    c.MaxIterations,
		Timeout:          c.Timeout,
	}
	if c.Seed != 0 {
		seed := c.Seed
		opts.Seed = &seed
	}
	return opts
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	frontierCfg, err := loadFrontierConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:     getEnvAsInt("GO_PORT", 8001),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Frontier: frontierCfg,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFrontierConfig() (*FrontierConfig, error) {
	start, err := getEnvAsDate("FRONTIER_START_DATE", "2010-01-01")
	if err != nil {
		return nil, err
	}
	end, err := getEnvAsDate("FRONTIER_END_DATE", "2017-01-01")
	if err != nil {
		return nil, err
	}

	tradingDays, err := strconv.ParseFloat(getEnv("FRONTIER_TRADING_DAYS", "252"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid FRONTIER_TRADING_DAYS: %w", err)
	}

	return &FrontierConfig{
		Tickers:          getEnvAsList("FRONTIER_TICKERS", []string{"^BSESN"}),
		StartDate:        start,
		EndDate:          end,
		NumPortfolios:    getEnvAsInt("FRONTIER_NUM_PORTFOLIOS", frontier.DefaultNumPortfolios),
		MaxNumPortfolios: getEnvAsInt("FRONTIER_MAX_NUM_PORTFOLIOS", frontier.MaxNumPortfolios),
		TradingDays:      tradingDays,
		Workers:          getEnvAsInt("FRONTIER_WORKERS", runtime.GOMAXPROCS(0)),
		Seed:             uint64(getEnvAsInt64("FRONTIER_SEED", 0)),
		SeedStrategy:     frontier.SeedStrategy(getEnv("FRONTIER_SEED_STRATEGY", string(frontier.SeedFirst))),
		MaxIterations:    getEnvAsInt("FRONTIER_OPTIMIZER_MAX_ITERATIONS", frontier.DefaultMaxIterations),
		Timeout:          getEnvAsDuration("FRONTIER_OPTIMIZER_TIMEOUT", frontier.DefaultOptimizerTimeout),
		RunCacheSize:     getEnvAsInt("FRONTIER_RUN_CACHE_SIZE", frontier.DefaultRunCacheSize),
	}, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT must be between 1 and 65535, got %d", c.Port)
	}

	f := c.Frontier
	if f == nil {
		return fmt.Errorf("frontier configuration is missing")
	}
	if len(f.Tickers) == 0 {
		return fmt.Errorf("FRONTIER_TICKERS must name at least one ticker")
	}
	if !f.EndDate.After(f.StartDate) {
		return fmt.Errorf("FRONTIER_END_DATE (%s) must be after FRONTIER_START_DATE (%s)",
			f.EndDate.Format(time.DateOnly), f.StartDate.Format(time.DateOnly))
	}
	if f.NumPortfolios <= 0 {
		return fmt.Errorf("FRONTIER_NUM_PORTFOLIOS must be positive, got %d", f.NumPortfolios)
	}
	if f.MaxNumPortfolios <= 0 {
		return fmt.Errorf("FRONTIER_MAX_NUM_PORTFOLIOS must be positive, got %d", f.MaxNumPortfolios)
	}
	if f.NumPortfolios > f.MaxNumPortfolios {
		return fmt.Errorf("FRONTIER_NUM_PORTFOLIOS (%d) must not exceed FRONTIER_MAX_NUM_PORTFOLIOS (%d)",
			f.NumPortfolios, f.MaxNumPortfolios)
	}
	switch f.SeedStrategy {
	case frontier.SeedFirst, frontier.SeedBest:
	default:
		return fmt.Errorf("FRONTIER_SEED_STRATEGY must be %q or %q, got %q",
			frontier.SeedFirst, frontier.SeedBest, f.SeedStrategy)
	}
	if !(f.TradingDays > 0) {
		return fmt.Errorf("FRONTIER_TRADING_DAYS must be positive, got %v", f.TradingDays)
	}
	if f.Workers <= 0 {
		return fmt.Errorf("FRONTIER_WORKERS must be positive, got %d", f.Workers)
	}
	if f.MaxIterations <= 0 {
		return fmt.Errorf("FRONTIER_OPTIMIZER_MAX_ITERATIONS must be positive, got %d", f.MaxIterations)
	}
	if f.Timeout <= 0 {
		return fmt.Errorf("FRONTIER_OPTIMIZER_TIMEOUT must be positive, got %s", f.Timeout)
	}
	if f.RunCacheSize <= 0 {
		return fmt.Errorf("FRONTIER_RUN_CACHE_SIZE must be positive, got %d", f.RunCacheSize)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList reads a comma-separated list, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsDate(key, defaultValue string) (time.Time, error) {
	value := getEnv(key, defaultValue)
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return t, nil
}
