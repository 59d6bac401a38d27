package frontier

import "errors"

var (
	// ErrNoData is returned when a price or return table has nothing usable in it
	// (unknown ticker, empty date range, fewer than two aligned rows).
	ErrNoData = errors.New("no data")
	// ErrShapeMismatch is returned when sequences that must line up do not
	// (column lengths, weight vector length vs asset count).
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrNonPositivePrice is returned for prices that cannot be log-differenced.
	ErrNonPositivePrice = errors.New("non-positive price")
	// ErrInvalidOptions is returned for out-of-range run parameters.
	ErrInvalidOptions = errors.New("invalid options")
)
