package yahoo

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/modules/frontier"
)

func day(n int) time.Time {
	return time.Date(2015, time.March, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func points(closes map[int]float64) []frontier.PricePoint {
	out := make([]frontier.PricePoint, 0, len(closes))
	for d := 0; d < 30; d++ {
		if c, ok := closes[d]; ok {
			out = append(out, frontier.PricePoint{Date: day(d), Close: c})
		}
	}
	return out
}

func TestNewClient(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	client := NewClient(log)

	assert.NotNil(t, client)
	assert.NotNil(t, client.history)

	var _ frontier.PriceSource = client
}

func TestClient_FetchPrices_AlignsAndFilters(t *testing.T) {
	history := map[string][]frontier.PricePoint{
		"AAA": points(map[int]float64{0: 10, 1: 11, 2: 12, 3: 13, 4: 14, 5: 15}),
		"BBB": points(map[int]float64{1: 20, 2: 21, 3: math.NaN(), 4: 23, 5: 24}),
	}
	client := NewClientWithHistory(func(symbol, _ string) ([]frontier.PricePoint, error) {
		return history[symbol], nil
	}, zerolog.Nop())

	table, err := client.FetchPrices(context.Background(), []string{"AAA", "BBB"}, day(1), day(5))
	require.NoError(t, err)

	// day 0 is before start, day 5 is the exclusive end, day 3 has no close for BBB
	assert.Equal(t, []time.Time{day(1), day(2), day(4)}, table.Dates)
	assert.Equal(t, []string{"AAA", "BBB"}, table.Assets)
	assert.Equal(t, []float64{11, 12, 14}, table.Closes[0])
	assert.Equal(t, []float64{20, 21, 23}, table.Closes[1])
}

func TestClient_FetchPrices_DownloadError(t *testing.T) {
	boom := errors.New("rate limited")
	client := NewClientWithHistory(func(symbol, _ string) ([]frontier.PricePoint, error) {
		if symbol == "BAD" {
			return nil, boom
		}
		return points(map[int]float64{0: 1, 1: 2}), nil
	}, zerolog.Nop())

	_, err := client.FetchPrices(context.Background(), []string{"OK", "BAD"}, day(0), day(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "BAD")
}

func TestClient_FetchPrices_NoRowsInRange(t *testing.T) {
	client := NewClientWithHistory(func(string, string) ([]frontier.PricePoint, error) {
		return points(map[int]float64{0: 1, 1: 2}), nil
	}, zerolog.Nop())

	_, err := client.FetchPrices(context.Background(), []string{"AAA"}, day(10), day(20))
	assert.ErrorIs(t, err, frontier.ErrNoData)
}

func TestClient_FetchPrices_RejectsNonPositiveClose(t *testing.T) {
	client := NewClientWithHistory(func(string, string) ([]frontier.PricePoint, error) {
		return points(map[int]float64{0: 1, 1: 0, 2: 3}), nil
	}, zerolog.Nop())

	_, err := client.FetchPrices(context.Background(), []string{"AAA"}, day(0), day(10))
	assert.ErrorIs(t, err, frontier.ErrNonPositivePrice)
}

func TestClient_FetchPrices_CoalescesConcurrentDownloads(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	client := NewClientWithHistory(func(string, string) ([]frontier.PricePoint, error) {
		calls.Add(1)
		<-release
		return points(map[int]float64{0: 1, 1: 2, 2: 3}), nil
	}, zerolog.Nop())

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = client.FetchPrices(context.Background(), []string{"AAA"}, day(0), day(10))
		}()
	}

	// Wait until the first download is in flight before letting it finish.
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Less(t, calls.Load(), int32(callers))
}

func TestClient_FetchPrices_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	client := NewClientWithHistory(func(string, string) ([]frontier.PricePoint, error) {
		<-release
		return nil, nil
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchPrices(ctx, []string{"AAA"}, day(0), day(10))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPeriodFor(t *testing.T) {
	now := time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		want  string
	}{
		{name: "two weeks", start: time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC), want: "1mo"},
		{name: "half a year", start: time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC), want: "6mo"},
		{name: "exactly a year widens", start: time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC), want: "2y"},
		{name: "six years", start: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), want: "10y"},
		{name: "beyond ten years", start: time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC), want: "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, periodFor(tt.start, now))
		})
	}
}

func TestClient_FetchPrices_RequestsCoveringPeriod(t *testing.T) {
	var requested []string
	var mu sync.Mutex
	client := NewClientWithHistory(func(_, period string) ([]frontier.PricePoint, error) {
		mu.Lock()
		requested = append(requested, period)
		mu.Unlock()
		return points(map[int]float64{1: 10, 2: 11, 3: 12}), nil
	}, zerolog.Nop())
	client.now = func() time.Time { return day(40) }

	_, err := client.FetchPrices(context.Background(), []string{"AAA", "BBB"}, day(1), day(5))
	require.NoError(t, err)
	assert.Equal(t, []string{"3mo", "3mo"}, requested)
}
