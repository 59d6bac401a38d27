package frontier

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/pkg/formulas"
)

// ReturnTable holds daily log returns. Values[a][t] = ln(close[t+1]/close[t]) for Assets[a],
// and Dates[t] is the date of the later close.
type ReturnTable struct {
	Assets []string
	Dates  []time.Time
	Values [][]float64
}

// LogReturns converts a price table into a return table with one row fewer.
// Prices are already validated positive by NewPriceTable, so no NaN or Inf can appear.
func LogReturns(prices *PriceTable) (*ReturnTable, error) {
	if prices == nil || prices.Len() < 2 || len(prices.Assets) == 0 {
		return nil, fmt.Errorf("%w: need at least 2 price rows to compute returns", ErrNoData)
	}

	if len(prices.Closes) != len(prices.Assets) {
		return nil, fmt.Errorf("%w: %d price columns for %d assets", ErrShapeMismatch, len(prices.Closes), len(prices.Assets))
	}

	values := make([][]float64, len(prices.Assets))
	for a, col := range prices.Closes {
		if len(col) != prices.Len() {
			return nil, fmt.Errorf("%w: asset %s has %d prices for %d dates", ErrShapeMismatch, prices.Assets[a], len(col), prices.Len())
		}
		values[a] = formulas.LogReturns(col)
	}

	return &ReturnTable{
		Assets: append([]string(nil), prices.Assets...),
		Dates:  append([]time.Time(nil), prices.Dates[1:]...),
		Values: values,
	}, nil
}

// Len is the number of return rows.
func (r *ReturnTable) Len() int {
	if len(r.Values) == 0 {
		return 0
	}
	return len(r.Values[0])
}

// NumAssets is the number of columns.
func (r *ReturnTable) NumAssets() int {
	return len(r.Assets)
}

// Matrix lays the table out as a dense days x assets matrix.
func (r *ReturnTable) Matrix() *mat.Dense {
	rows, cols := r.Len(), r.NumAssets()
	m := mat.NewDense(rows, cols, nil)
	for a := 0; a < cols; a++ {
		m.SetCol(a, r.Values[a])
	}
	return m
}

func (r *ReturnTable) validate() error {
	if r == nil || r.NumAssets() == 0 || r.Len() == 0 {
		return fmt.Errorf("%w: empty return table", ErrNoData)
	}
	if len(r.Values) != r.NumAssets() {
		return fmt.Errorf("%w: %d return columns for %d assets", ErrShapeMismatch, len(r.Values), r.NumAssets())
	}
	for a, col := range r.Values {
		if len(col) != r.Len() {
			return fmt.Errorf("%w: asset %s has %d returns, expected %d", ErrShapeMismatch, r.Assets[a], len(col), r.Len())
		}
	}
	return nil
}
