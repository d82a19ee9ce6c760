package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtf-simulator/internal/confluence"
	"mtf-simulator/internal/market"
	"mtf-simulator/internal/position"
)

var simStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// seriesFromCloses builds a series where each candle opens at the previous
// close, with constant volume.
func seriesFromCloses(tf market.Timeframe, closes []float64) *market.Series {
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		high, low := open, c
		if c > open {
			high, low = c, open
		}
		candles[i] = market.Candle{
			Timestamp: simStart.Add(time.Duration(i) * tf.Duration()),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     c,
			Volume:    1000,
		}
	}
	return &market.Series{Symbol: "TESTUSDT", Timeframe: tf, Candles: candles}
}

func flatCloses(n int, price float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return closes
}

func risingCloses(n int, from, to float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = from + (to-from)*float64(i)/float64(n-1)
	}
	return closes
}

func singleTFConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseTimeframe = string(market.TF1h)
	cfg.TimeframeWeights = map[string]float64{string(market.TF1h): 1.0}
	return cfg
}

func TestNewDriver_ConfigValidation(t *testing.T) {
	cfg := singleTFConfig()
	cfg.InitialCapital = 0
	_, err := NewDriver(cfg)
	assert.ErrorIs(t, err, confluence.ErrInvalidConfig)

	cfg = singleTFConfig()
	cfg.TimeframeWeights = map[string]float64{string(market.TF1h): 0.6, string(market.TF4h): 0.6}
	_, err = NewDriver(cfg)
	assert.ErrorIs(t, err, confluence.ErrInvalidConfig, "weights must sum to 1")

	cfg = singleTFConfig()
	cfg.TimeframeWeights = map[string]float64{string(market.TF4h): 1.0}
	_, err = NewDriver(cfg)
	assert.ErrorIs(t, err, confluence.ErrInvalidConfig, "base timeframe needs a weight")

	cfg = DefaultConfig()
	cfg.BaseTimeframe = string(market.TF4h)
	_, err = NewDriver(cfg)
	assert.ErrorIs(t, err, confluence.ErrInvalidConfig, "no configured timeframe may be shorter than base")

	cfg = singleTFConfig()
	cfg.BaseTimeframe = "7m"
	_, err = NewDriver(cfg)
	assert.ErrorIs(t, err, confluence.ErrInvalidConfig)
}

func TestRun_MissingSeriesFails(t *testing.T) {
	d, err := NewDriver(DefaultConfig())
	require.NoError(t, err)

	series := map[market.Timeframe]*market.Series{
		market.TF1h: seriesFromCloses(market.TF1h, flatCloses(30, 100)),
	}
	_, err = d.Run(series)
	assert.ErrorIs(t, err, market.ErrInvalidInput)
}

func TestRun_MislabeledSeriesFails(t *testing.T) {
	d, err := NewDriver(singleTFConfig())
	require.NoError(t, err)

	series := map[market.Timeframe]*market.Series{
		market.TF1h: seriesFromCloses(market.TF4h, flatCloses(30, 100)),
	}
	_, err = d.Run(series)
	assert.ErrorIs(t, err, market.ErrInvalidInput)
}

func TestRun_FlatSeriesProducesNoTrades(t *testing.T) {
	d, err := NewDriver(singleTFConfig())
	require.NoError(t, err)

	series := map[market.Timeframe]*market.Series{
		market.TF1h: seriesFromCloses(market.TF1h, flatCloses(30, 100)),
	}
	result, err := d.Run(series)
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	require.Len(t, result.EquityCurve, 30)
	for _, equity := range result.EquityCurve {
		assert.InDelta(t, 10000.0, equity, 1e-9, "equity never moves without trades")
	}
	assert.Zero(t, result.Summary.TotalTrades)
	assert.Zero(t, result.Summary.MaxDrawdown)
	assert.InDelta(t, 10000.0, result.Summary.FinalCapital, 1e-9)
}

func TestRun_SteadyRiseEntersOneTrendLong(t *testing.T) {
	d, err := NewDriver(singleTFConfig())
	require.NoError(t, err)

	series := map[market.Timeframe]*market.Series{
		market.TF1h: seriesFromCloses(market.TF1h, risingCloses(60, 1.00, 1.50)),
	}
	result, err := d.Run(series)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1, "a sustained rise is one crossing, not many")
	trade := result.Trades[0]
	assert.Equal(t, confluence.SideLong, trade.Side)
	assert.Equal(t, confluence.StyleTrend, trade.Style)
	assert.NotEqual(t, position.ExitStopLoss, trade.ExitReason, "price never retraces to the stop")
	assert.Contains(t, []string{position.ExitTakeProfit, position.ExitEndOfData}, trade.ExitReason)
	assert.Greater(t, trade.PnL, 0.0)
	assert.InDelta(t, 10000.0+trade.PnL, result.Summary.FinalCapital, 1e-9)
}

func TestRun_FinalCapitalMatchesTradeSum(t *testing.T) {
	cfg := singleTFConfig()
	d, err := NewDriver(cfg)
	require.NoError(t, err)

	// Rise then fall: the long opened on the rise exits on the way down.
	closes := append(risingCloses(40, 1.00, 1.40), risingCloses(40, 1.40, 1.05)...)
	series := map[market.Timeframe]*market.Series{
		market.TF1h: seriesFromCloses(market.TF1h, closes),
	}
	result, err := d.Run(series)
	require.NoError(t, err)

	var sum float64
	for _, trade := range result.Trades {
		sum += trade.PnL
	}
	assert.InDelta(t, cfg.InitialCapital+sum, result.Summary.FinalCapital, 1e-9)
	assert.InDelta(t, result.EquityCurve[len(result.EquityCurve)-1], result.Summary.FinalCapital, 1e-9)
}

func TestRun_Deterministic(t *testing.T) {
	cfg := singleTFConfig()

	run := func() *Result {
		d, err := NewDriver(cfg)
		require.NoError(t, err)
		closes := append(risingCloses(50, 1.00, 1.35), risingCloses(50, 1.35, 1.10)...)
		series := map[market.Timeframe]*market.Series{
			market.TF1h: seriesFromCloses(market.TF1h, closes),
		}
		result, err := d.Run(series)
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()

	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.EquityCurve, second.EquityCurve)
	assert.Equal(t, first.Summary, second.Summary)
}

func TestRun_MultiTimeframeFlat(t *testing.T) {
	d, err := NewDriver(DefaultConfig())
	require.NoError(t, err)

	// 25 flat days across all three timeframes.
	series := map[market.Timeframe]*market.Series{
		market.TF1h: seriesFromCloses(market.TF1h, flatCloses(600, 100)),
		market.TF4h: seriesFromCloses(market.TF4h, flatCloses(150, 100)),
		market.TF1d: seriesFromCloses(market.TF1d, flatCloses(25, 100)),
	}
	result, err := d.Run(series)
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.InDelta(t, 10000.0, result.Summary.FinalCapital, 1e-9)
}

func TestRun_ShortSeriesFailsIndicatorValidation(t *testing.T) {
	d, err := NewDriver(singleTFConfig())
	require.NoError(t, err)

	series := map[market.Timeframe]*market.Series{
		market.TF1h: seriesFromCloses(market.TF1h, flatCloses(10, 100)),
	}
	_, err = d.Run(series)
	assert.ErrorIs(t, err, market.ErrInvalidInput, "series shorter than the indicator windows is rejected")
}
