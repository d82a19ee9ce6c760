package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtf-simulator/internal/indicator"
	"mtf-simulator/internal/market"
)

func buildSeries(t *testing.T, closes []float64, volumes []float64) (*market.Series, *indicator.Set) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		high := c
		if open > c {
			high = open
		}
		low := c
		if open < c {
			low = open
		}
		vol := 1000.0
		if volumes != nil {
			vol = volumes[i]
		}
		candles[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      open, High: high, Low: low, Close: c,
			Volume: vol,
		}
	}
	series, err := market.NewSeries("TEST", market.TF1h, candles)
	require.NoError(t, err)

	set, err := indicator.Compute(series, indicator.DefaultParams())
	require.NoError(t, err)
	return series, set
}

func flatCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1.0
	}
	return out
}

func risingCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1.0 + 0.5*float64(i)/float64(n-1)
	}
	return out
}

func TestScoreAt_InsufficientWarmupShortCircuits(t *testing.T) {
	series, set := buildSeries(t, risingCloses(60), nil)

	for _, i := range []int{-1, 0, set.Params.Warmup() - 1} {
		analysis := ScoreAt(series, set, i)
		assert.Equal(t, 0.0, analysis.Score, "index %d", i)
		assert.Equal(t, TrendNeutral, analysis.Trend, "index %d", i)
		assert.Equal(t, 0.0, analysis.Confidence, "index %d", i)
		require.Len(t, analysis.Signals, 1, "warm-up must be the only reason at index %d", i)
		assert.Contains(t, analysis.Signals[0], "insufficient data")
	}

	// Out of range behaves the same as warm-up
	analysis := ScoreAt(series, set, series.Len())
	assert.Equal(t, TrendNeutral, analysis.Trend)
}

func TestScoreAt_FlatSeriesScoresZero(t *testing.T) {
	series, set := buildSeries(t, flatCloses(40), nil)

	for i := set.Params.Warmup(); i < series.Len(); i++ {
		analysis := ScoreAt(series, set, i)
		assert.Equal(t, 0.0, analysis.Score, "flat series must contribute nothing at index %d", i)
		assert.Equal(t, TrendNeutral, analysis.Trend)
		assert.Empty(t, analysis.Signals)
	}
}

func TestScoreAt_RisingSeriesIsBullish(t *testing.T) {
	series, set := buildSeries(t, risingCloses(60), nil)

	analysis := ScoreAt(series, set, series.Len()-1)
	assert.Greater(t, analysis.Score, bullishThreshold)
	assert.Equal(t, TrendBullish, analysis.Trend)
	assert.Equal(t, analysis.Score, analysis.Confidence, "confidence is |score| for positive scores")
	assert.NotEmpty(t, analysis.Signals, "each contributing rule appends a reason")
}

func TestScoreAt_FallingSeriesIsBearish(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 1.5 - 0.5*float64(i)/float64(len(closes)-1)
	}
	series, set := buildSeries(t, closes, nil)

	analysis := ScoreAt(series, set, series.Len()-1)
	assert.Less(t, analysis.Score, bearishThreshold)
	assert.Equal(t, TrendBearish, analysis.Trend)
	assert.Equal(t, -analysis.Score, analysis.Confidence)
}

func TestScoreAt_ScoreAlwaysBounded(t *testing.T) {
	series, set := buildSeries(t, risingCloses(200), nil)

	for i := 0; i < series.Len(); i++ {
		analysis := ScoreAt(series, set, i)
		assert.GreaterOrEqual(t, analysis.Score, -1.0, "index %d", i)
		assert.LessOrEqual(t, analysis.Score, 1.0, "index %d", i)
		assert.GreaterOrEqual(t, analysis.Confidence, 0.0)
		assert.LessOrEqual(t, analysis.Confidence, 1.0)
	}
}

func TestScoreAt_VolumeSpikeContributes(t *testing.T) {
	closes := risingCloses(60)
	volumes := make([]float64, len(closes))
	for i := range volumes {
		volumes[i] = 1000
	}
	volumes[len(volumes)-1] = 5000

	series, set := buildSeries(t, closes, volumes)
	spiked := ScoreAt(series, set, series.Len()-1)

	seriesFlatVol, setFlatVol := buildSeries(t, closes, nil)
	calm := ScoreAt(seriesFlatVol, setFlatVol, seriesFlatVol.Len()-1)

	assert.Greater(t, spiked.Score, calm.Score, "bullish volume spike should add to a bullish candle")
}
