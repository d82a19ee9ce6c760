package market

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadSeriesCSV(t *testing.T) {
	path := writeCSV(t, `timestamp,open,high,low,close,volume
1704067200,1.00,1.05,0.99,1.04,1000
1704070800,1.04,1.10,1.03,1.08,1200
`)

	series, err := LoadSeriesCSV(path, "ADAUSDT", TF1h)
	require.NoError(t, err)
	assert.Equal(t, 2, series.Len())
	assert.Equal(t, "ADAUSDT", series.Symbol)
	assert.Equal(t, 1.04, series.Candles[0].Close)
	assert.True(t, series.Candles[1].Timestamp.After(series.Candles[0].Timestamp))
}

func TestLoadSeriesCSV_RejectsBadData(t *testing.T) {
	// Second row has high below close
	path := writeCSV(t, `timestamp,open,high,low,close,volume
1704067200,1.00,1.05,0.99,1.04,1000
1704070800,1.04,1.05,1.03,1.08,1200
`)

	_, err := LoadSeriesCSV(path, "ADAUSDT", TF1h)
	assert.ErrorIs(t, err, ErrInvalidInput, "a malformed row must fail the whole load")

	_, err = LoadSeriesCSV(filepath.Join(t.TempDir(), "missing.csv"), "ADAUSDT", TF1h)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
