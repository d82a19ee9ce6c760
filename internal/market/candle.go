package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput tags any malformed market-data input. Callers should check
// with errors.Is and treat a match as fatal for that run - the core never
// substitutes synthetic data for bad input.
var ErrInvalidInput = errors.New("invalid market data input")

type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate checks basic OHLC consistency for a single candle.
func (c Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("%w: candle has zero timestamp", ErrInvalidInput)
	}
	if c.High < c.Open || c.High < c.Close {
		return fmt.Errorf("%w: high %.8f below open/close at %s", ErrInvalidInput, c.High, c.Timestamp.Format(time.RFC3339))
	}
	if c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("%w: low %.8f above open/close at %s", ErrInvalidInput, c.Low, c.Timestamp.Format(time.RFC3339))
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: negative volume at %s", ErrInvalidInput, c.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// Series is a time-ordered candle sequence for one (symbol, timeframe) pair.
// Gaps are tolerated but never filled here - filling is the data provider's job.
type Series struct {
	Symbol    string
	Timeframe Timeframe
	Candles   []Candle
}

func NewSeries(symbol string, tf Timeframe, candles []Candle) (*Series, error) {
	s := &Series{Symbol: symbol, Timeframe: tf, Candles: candles}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks every candle and enforces strictly increasing timestamps.
func (s *Series) Validate() error {
	if len(s.Candles) == 0 {
		return fmt.Errorf("%w: empty series for %s %s", ErrInvalidInput, s.Symbol, s.Timeframe)
	}
	for i, c := range s.Candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("series %s %s index %d: %w", s.Symbol, s.Timeframe, i, err)
		}
		if i > 0 && !c.Timestamp.After(s.Candles[i-1].Timestamp) {
			return fmt.Errorf("%w: timestamps not strictly increasing at index %d (%s)",
				ErrInvalidInput, i, c.Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

func (s *Series) Len() int {
	return len(s.Candles)
}

// Closes returns the close prices as a dense slice aligned to the series.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// NearestIndex finds the index of the latest candle at or before t.
// Returns -1 if no candle qualifies, or if the best match is staler than
// tolerance. This is the single alignment join used when mapping a base
// timeframe step onto higher timeframe series.
func (s *Series) NearestIndex(t time.Time, tolerance time.Duration) int {
	// Binary search for the first candle after t
	lo, hi := 0, len(s.Candles)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.Candles[mid].Timestamp.After(t) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	idx := lo - 1
	if idx < 0 {
		return -1
	}
	if tolerance > 0 && t.Sub(s.Candles[idx].Timestamp) > tolerance {
		return -1
	}
	return idx
}
