package market

import (
	"fmt"
	"time"
)

type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
}

func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("%w: unknown timeframe %q", ErrInvalidInput, s)
	}
	return tf, nil
}

func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// AlignmentTolerance is how stale a higher timeframe candle may be when joined
// against a base timeframe step. One full bar plus slack for provider gaps.
func (tf Timeframe) AlignmentTolerance() time.Duration {
	return 2 * tf.Duration()
}
