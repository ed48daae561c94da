package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

const (
	dateLayout = "2006-01-02"
	endOfDay   = 24*time.Hour - time.Millisecond
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ResolveWindow normalises optional start/end strings. A missing start is the
// first instant of the current month and a missing end is the last millisecond
// of the current day, both in loc. Date-only values resolve to the start of the
// day for start and the last millisecond of the day for end.
func ResolveWindow(start, end string, now time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)

	var w Window
	if s := strings.TrimSpace(start); s != "" {
		parsed, _, err := parseBound(s, loc)
		if err != nil {
			return Window{}, fmt.Errorf("%w: start %q", ErrInvalidDateRange, start)
		}
		w.Start = parsed
	} else {
		w.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	}

	if e := strings.TrimSpace(end); e != "" {
		parsed, dateOnly, err := parseBound(e, loc)
		if err != nil {
			return Window{}, fmt.Errorf("%w: end %q", ErrInvalidDateRange, end)
		}
		if dateOnly {
			parsed = parsed.Add(endOfDay)
		}
		w.End = parsed
	} else {
		w.End = startOfDay(now, loc).Add(endOfDay)
	}

	if w.Start.After(w.End) {
		return Window{}, fmt.Errorf("%w: start %s after end %s", ErrInvalidDateRange,
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return w, nil
}

func parseBound(value string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.In(loc), false, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Previous returns the window of equal length ending exactly at w.Start.
func (w Window) Previous() Window {
	return Window{Start: w.Start.Add(-w.Duration()), End: w.Start}
}

// Contains reports whether t falls inside [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Today returns [00:00 today, 00:00 tomorrow) in the window's location.
func (w Window) Today(now time.Time) Window {
	loc := w.Start.Location()
	start := startOfDay(now, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Lookback returns the window of the given length ending at w.End.
func (w Window) Lookback(d time.Duration) Window {
	return Window{Start: w.End.Add(-d), End: w.End}
}

// TrailingMonths returns the n calendar months ending with the month of w.End.
func (w Window) TrailingMonths(n int) Window {
	if n < 1 {
		n = 1
	}
	last := pipeline.Truncate(w.End.Add(-time.Nanosecond), pipeline.GranularityMonth, w.Start.Location())
	return Window{Start: last.AddDate(0, -(n - 1), 0), End: last.AddDate(0, 1, 0)}
}

// ResolveInterval picks a bucket granularity. An explicit interval wins; "auto"
// or empty derives one from the window span.
func ResolveInterval(interval string, w Window) (pipeline.Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "day":
		return pipeline.GranularityDay, nil
	case "week":
		return pipeline.GranularityWeek, nil
	case "month":
		return pipeline.GranularityMonth, nil
	case "year":
		return pipeline.GranularityYear, nil
	case "", "auto":
	default:
		return pipeline.GranularityNone, fmt.Errorf("%w: interval %q", ErrInvalidParams, interval)
	}
	days := w.Duration().Hours() / 24
	switch {
	case days > 365:
		return pipeline.GranularityYear, nil
	case days > 90:
		return pipeline.GranularityMonth, nil
	case days > 30:
		return pipeline.GranularityWeek, nil
	default:
		return pipeline.GranularityDay, nil
	}
}
