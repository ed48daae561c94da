package pipeline

import "time"

// Truncate returns the start of the bucket containing t, evaluated in loc.
// Weeks start on Monday.
func Truncate(t time.Time, g Granularity, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	switch g {
	case GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	case GranularityWeek:
		offset := (int(t.Weekday()) + 6) % 7
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case GranularityYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, loc)
	default:
		return time.Time{}
	}
}

// Next returns the start of the bucket following start.
func Next(start time.Time, g Granularity) time.Time {
	switch g {
	case GranularityDay:
		return start.AddDate(0, 0, 1)
	case GranularityWeek:
		return start.AddDate(0, 0, 7)
	case GranularityMonth:
		return start.AddDate(0, 1, 0)
	case GranularityYear:
		return start.AddDate(1, 0, 0)
	default:
		return start
	}
}

// Label formats a bucket start for presentation.
func Label(start time.Time, g Granularity) string {
	switch g {
	case GranularityMonth:
		return start.Format("2006-01")
	case GranularityYear:
		return start.Format("2006")
	default:
		return start.Format("2006-01-02")
	}
}

// Buckets enumerates the bucket starts overlapping the half-open window
// [from, to).
func Buckets(from, to time.Time, g Granularity, loc *time.Location) []time.Time {
	if g == GranularityNone || !from.Before(to) {
		return nil
	}
	var out []time.Time
	for current := Truncate(from, g, loc); current.Before(to); current = Next(current, g) {
		out = append(out, current)
	}
	return out
}
