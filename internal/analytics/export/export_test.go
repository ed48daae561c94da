package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
)

func TestWriteRows(t *testing.T) {
	rows := [][]string{
		{"date", "income"},
		{"2025-03-01", "10.00"},
		{"total", "10.00"},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteRows(buf, rows))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Equal(t, rows, records)
}

func TestWriteAgingCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteAgingCSV(buf, []analytics.AgingBucket{
		{Range: analytics.AgingCurrent, Amount: 150.5, Count: 2},
		{Range: analytics.AgingOver90},
	}))
	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"range", "amount", "count"},
		{"0-30 Days", "150.50", "2"},
		{"91+ Days", "0.00", "0"},
	}, records)
}

func TestFilename(t *testing.T) {
	w := analytics.Window{
		Start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC),
	}
	require.Equal(t, "timeline_20250301_20250331.csv", Filename("timeline", w))
}
