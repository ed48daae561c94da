// Package export renders analytics reports as CSV.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
)

// WriteRows streams pre-formatted rows, such as those from
// Service.ExportRows, as CSV.
func WriteRows(w io.Writer, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

// WriteAgingCSV prints aging buckets to CSV.
func WriteAgingCSV(w io.Writer, buckets []analytics.AgingBucket) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"range", "amount", "count"}); err != nil {
		return err
	}
	for _, bucket := range buckets {
		if err := writer.Write([]string{bucket.Range, formatFloat(bucket.Amount), strconv.Itoa(bucket.Count)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Filename builds the attachment name of an export.
func Filename(report string, window analytics.Window) string {
	return report + "_" + window.Start.Format("20060102") + "_" + window.End.Format("20060102") + ".csv"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
