// Package handlers provides HTTP handlers for frontier runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/frontier/internal/modules/frontier"
	"github.com/aristath/frontier/internal/modules/plots"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"

	// tailRows is how many of the most recent price rows a run summary shows.
	tailRows = 5

	// maxRequestBodyBytes bounds a run request body.
	maxRequestBodyBytes = 64 << 10
)

// Runner executes one frontier run.
type Runner interface {
	Run(ctx context.Context, req frontier.RunRequest) (*frontier.Run, error)
}

// Defaults fill the fields a run request leaves empty.
type Defaults struct {
	Tickers []string
	Start   time.Time
	End     time.Time
}

// Handler handles frontier run HTTP requests
type Handler struct {
	runner   Runner
	store    *frontier.RunStore
	renderer *plots.Renderer
	defaults Defaults
	log      zerolog.Logger
}

// NewHandler creates a new frontier handler
func NewHandler(
	runner Runner,
	store *frontier.RunStore,
	renderer *plots.Renderer,
	defaults Defaults,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		runner:   runner,
		store:    store,
		renderer: renderer,
		defaults: defaults,
		log:      log.With().Str("handler", "frontier").Logger(),
	}
}

type createRunRequest struct {
	Tickers       string  `json:"tickers"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	NumPortfolios int     `json:"num_portfolios"`
	TradingDays   float64 `json:"trading_days"`
	Seed          *uint64 `json:"seed"`
	SeedStrategy  string  `json:"seed_strategy"`
}

func (req createRunRequest) toRunRequest(defaults Defaults) (frontier.RunRequest, error) {
	tickers := defaults.Tickers
	if req.Tickers != "" {
		parsed, err := frontier.ParseTickers(req.Tickers)
		if err != nil {
			return frontier.RunRequest{}, err
		}
		tickers = parsed
	}

	start, end := defaults.Start, defaults.End
	if req.StartDate != "" {
		t, err := time.Parse(time.DateOnly, req.StartDate)
		if err != nil {
			return frontier.RunRequest{}, fmt.Errorf("%w: invalid start_date %q", frontier.ErrInvalidOptions, req.StartDate)
		}
		start = t
	}
	if req.EndDate != "" {
		t, err := time.Parse(time.DateOnly, req.EndDate)
		if err != nil {
			return frontier.RunRequest{}, fmt.Errorf("%w: invalid end_date %q", frontier.ErrInvalidOptions, req.EndDate)
		}
		end = t
	}

	strategy := frontier.SeedStrategy(req.SeedStrategy)
	switch strategy {
	case "", frontier.SeedBest, frontier.SeedFirst:
	default:
		return frontier.RunRequest{}, fmt.Errorf("%w: unknown seed_strategy %q", frontier.ErrInvalidOptions, req.SeedStrategy)
	}

	return frontier.RunRequest{
		Tickers: tickers,
		Start:   start,
		End:     end,
		Options: frontier.RunOptions{
			NumPortfolios: req.NumPortfolios,
			TradingDays:   req.TradingDays,
			Seed:          req.Seed,
			SeedStrategy:  strategy,
		},
	}, nil
}

type priceRow struct {
	Date   string             `json:"date"`
	Closes map[string]float64 `json:"closes"`
}

type runResponse struct {
	ID          string                       `json:"id"`
	CreatedAt   string                       `json:"created_at"`
	Assets      []string                     `json:"assets"`
	StartDate   string                       `json:"start_date"`
	EndDate     string                       `json:"end_date"`
	Seed        uint64                       `json:"seed"`
	SeedIndex   int                          `json:"seed_index"`
	TradingDays float64                      `json:"trading_days"`
	NumReturns  int                          `json:"num_returns"`
	Converged   bool                         `json:"converged"`
	Optimum     *frontier.OptimizationResult `json:"optimum"`
	Allocations []frontier.Allocation        `json:"allocations"`
	PriceTail   []priceRow                   `json:"price_tail"`
	Frontier    []frontier.FrontierPoint     `json:"frontier"`
	Samples     *frontier.SampleSet          `json:"samples,omitempty"`
}

func newRunResponse(run *frontier.Run, withSamples bool) runResponse {
	resp := runResponse{
		ID:          run.ID,
		CreatedAt:   run.CreatedAt.Format(time.RFC3339),
		Seed:        run.Seed,
		SeedIndex:   run.SeedIndex,
		TradingDays: run.TradingDays,
		Converged:   run.Converged(),
		Optimum:     run.Optimum,
		Allocations: run.Allocations,
	}

	if p := run.Prices; p != nil && p.Len() > 0 {
		resp.Assets = p.Assets
		resp.StartDate = p.Dates[0].Format(time.DateOnly)
		resp.EndDate = p.Dates[p.Len()-1].Format(time.DateOnly)

		tail := p.Tail(tailRows)
		resp.PriceTail = make([]priceRow, tail.Len())
		for t, date := range tail.Dates {
			closes := make(map[string]float64, len(tail.Assets))
			for a, asset := range tail.Assets {
				closes[asset] = tail.Closes[a][t]
			}
			resp.PriceTail[t] = priceRow{Date: date.Format(time.DateOnly), Closes: closes}
		}
	}
	if run.Returns != nil {
		resp.NumReturns = run.Returns.Len()
	}
	if run.Samples != nil {
		resp.Frontier = run.Samples.Frontier(plots.DefaultFrontierBins)
		if withSamples {
			resp.Samples = run.Samples
		}
	}
	return resp
}

// HandleCreateRun handles POST /api/frontier/runs
func (h *Handler) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	var body createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	req, err := body.toRunRequest(h.defaults)
	if err != nil {
		h.writeError(w, r, statusFor(err), err.Error())
		return
	}

	run, err := h.runner.Run(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Strs("tickers", req.Tickers).Msg("Frontier run failed")
			h.writeError(w, r, status, "Frontier run failed")
			return
		}
		h.writeError(w, r, status, err.Error())
		return
	}

	id := h.store.Put(run)
	h.log.Info().
		Str("run_id", id).
		Bool("converged", run.Converged()).
		Msg("Stored frontier run")

	h.write(w, r, http.StatusCreated, map[string]interface{}{
		"data": newRunResponse(run, false),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetDefaults handles GET /api/frontier/defaults
func (h *Handler) HandleGetDefaults(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"tickers":    h.defaults.Tickers,
			"start_date": h.defaults.Start.Format(time.DateOnly),
			"end_date":   h.defaults.End.Format(time.DateOnly),
		},
	})
}

// HandleGetRun handles GET /api/frontier/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		h.writeError(w, r, http.StatusNotFound, "Run not found")
		return
	}

	withSamples := r.URL.Query().Get("samples") == "true"
	h.write(w, r, http.StatusOK, map[string]interface{}{
		"data": newRunResponse(run, withSamples),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetChart handles GET /api/frontier/runs/{id}/charts/{chart}.png
func (h *Handler) HandleGetChart(w http.ResponseWriter, r *http.Request) {
	run, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		h.writeError(w, r, http.StatusNotFound, "Run not found")
		return
	}

	var (
		img []byte
		err error
	)
	chart := chi.URLParam(r, "chart")
	switch chart {
	case "prices":
		img, err = h.renderer.PriceTrend(run.Prices)
	case "frontier":
		img, err = h.renderer.Frontier(run.Samples, run.Optimum)
	case "weights":
		img, err = h.renderer.Weights(run.Allocations)
	default:
		h.writeError(w, r, http.StatusNotFound, "Unknown chart")
		return
	}
	if err != nil {
		if errors.Is(err, plots.ErrNotEnoughData) {
			h.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.log.Error().Err(err).Str("chart", chart).Str("run_id", run.ID).Msg("Failed to render chart")
		h.writeError(w, r, http.StatusInternalServerError, "Failed to render chart")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img); err != nil {
		h.log.Error().Err(err).Msg("Failed to write chart")
	}
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, frontier.ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.Is(err, frontier.ErrNoData),
		errors.Is(err, frontier.ErrShapeMismatch),
		errors.Is(err, frontier.ErrNonPositivePrice):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.write(w, r, status, map[string]interface{}{
		"error": message,
	})
}

// write encodes data as msgpack when the client asks for it, JSON otherwise.
func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if strings.Contains(r.Header.Get("Accept"), contentTypeMsgpack) {
		h.writeMsgpack(w, status, data)
		return
	}
	h.writeJSON(w, status, data)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeMsgpack(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeMsgpack)
	w.WriteHeader(status)

	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode msgpack response")
	}
}
