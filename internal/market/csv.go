package market

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gocarina/gocsv"
)

// candleDTO is the on-disk CSV row shape. Timestamps are epoch seconds, the
// format exchange exports and the downloader scripts both produce.
type candleDTO struct {
	Timestamp int64   `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

// LoadSeriesCSV reads a candle series from a CSV file and validates it.
// Any malformed row fails the whole load - short or broken data must surface
// as an error, not a partial series.
func LoadSeriesCSV(path, symbol string, tf Timeframe) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrInvalidInput, path, err)
	}
	defer f.Close()

	var rows []candleDTO
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidInput, path, err)
	}

	candles := make([]Candle, len(rows))
	for i, r := range rows {
		candles[i] = Candle{
			Timestamp: time.Unix(r.Timestamp, 0).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}

	series, err := NewSeries(symbol, tf, candles)
	if err != nil {
		return nil, err
	}

	slog.Info("Loaded candle series", "path", path, "symbol", symbol, "timeframe", tf, "count", series.Len())
	return series, nil
}
