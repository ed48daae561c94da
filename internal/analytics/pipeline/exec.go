package pipeline

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Fact is one flattened record of a source.
type Fact struct {
	TenantID string
	BranchID string
	At       time.Time
	Status   string
	Keys     map[Field]string
	Values   map[Field]decimal.Decimal
}

// Row is one group of an executed query. Missing measures read as zero.
type Row struct {
	Bucket time.Time
	Key    string
	Values map[string]decimal.Decimal
	Times  map[string]time.Time
}

// Decimal returns a numeric measure, zero when absent.
func (r Row) Decimal(name string) decimal.Decimal {
	if r.Values == nil {
		return decimal.Zero
	}
	return r.Values[name]
}

// Float returns a numeric measure as float64.
func (r Row) Float(name string) float64 {
	return r.Decimal(name).InexactFloat64()
}

// Int returns a numeric measure truncated to int64.
func (r Row) Int(name string) int64 {
	return r.Decimal(name).IntPart()
}

// Time returns a time measure, zero when absent.
func (r Row) Time(name string) time.Time {
	if r.Times == nil {
		return time.Time{}
	}
	return r.Times[name]
}

// First returns the first row or a zero-valued row for empty results.
func First(rows []Row) Row {
	if len(rows) == 0 {
		return Row{}
	}
	return rows[0]
}

// Index maps rows by bucket start (unix seconds) for zero-filling lookups.
func Index(rows []Row) map[int64]Row {
	out := make(map[int64]Row, len(rows))
	for _, row := range rows {
		out[row.Bucket.Unix()] = row
	}
	return out
}

// Match reports whether a fact passes the filter stage for src.
func Match(src Source, f Filter, fact Fact) bool {
	if fact.TenantID != f.TenantID {
		return false
	}
	if f.BranchID != "" && HasBranch(src) && fact.BranchID != f.BranchID {
		return false
	}
	if !f.From.IsZero() && fact.At.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !fact.At.Before(f.To) {
		return false
	}
	if HasStatus(src) {
		switch f.Status {
		case StatusActive, "":
			if Excluded(fact.Status) {
				return false
			}
		case StatusCancelled:
			if !Excluded(fact.Status) {
				return false
			}
		}
	}
	for _, cond := range f.Conditions {
		if cond.Positive {
			if !fact.Values[cond.Field].IsPositive() {
				return false
			}
			continue
		}
		if fact.Keys[cond.Field] != cond.Equals {
			return false
		}
	}
	return true
}

type groupKey struct {
	bucket time.Time
	key    string
}

type accumulator struct {
	values   map[string]decimal.Decimal
	distinct map[string]map[string]struct{}
	times    map[string]time.Time
}

// Run executes the query over in-memory facts.
func Run(q Query, facts []Fact) ([]Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	loc := q.Group.Loc()
	groups := make(map[groupKey]*accumulator)
	for _, fact := range facts {
		if !Match(q.Source, q.Filter, fact) {
			continue
		}
		gk := groupKey{}
		if q.Group.Bucket != GranularityNone {
			gk.bucket = Truncate(fact.At, q.Group.Bucket, loc)
		}
		if q.Group.Key != "" {
			gk.key = fact.Keys[q.Group.Key]
		}
		acc, ok := groups[gk]
		if !ok {
			acc = &accumulator{
				values:   make(map[string]decimal.Decimal, len(q.Measures)),
				distinct: make(map[string]map[string]struct{}),
				times:    make(map[string]time.Time),
			}
			groups[gk] = acc
		}
		for _, m := range q.Measures {
			switch m.Op {
			case OpSum:
				acc.values[m.Name] = acc.values[m.Name].Add(fact.Values[m.Field])
			case OpCount:
				acc.values[m.Name] = acc.values[m.Name].Add(decimal.NewFromInt(1))
			case OpCountDistinct:
				set, ok := acc.distinct[m.Name]
				if !ok {
					set = make(map[string]struct{})
					acc.distinct[m.Name] = set
				}
				if v := fact.Keys[m.Field]; v != "" {
					set[v] = struct{}{}
				}
			case OpMinTime:
				if cur, ok := acc.times[m.Name]; !ok || fact.At.Before(cur) {
					acc.times[m.Name] = fact.At
				}
			case OpMaxTime:
				if cur, ok := acc.times[m.Name]; !ok || fact.At.After(cur) {
					acc.times[m.Name] = fact.At
				}
			}
		}
	}

	rows := make([]Row, 0, len(groups))
	for gk, acc := range groups {
		row := Row{Bucket: gk.bucket, Key: gk.key, Values: acc.values, Times: acc.times}
		for name, set := range acc.distinct {
			row.Values[name] = decimal.NewFromInt(int64(len(set)))
		}
		rows = append(rows, row)
	}
	SortRows(rows, q.Order)
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

// SortRows applies the deterministic row order shared by every executor:
// the requested measure order first, then bucket and key ascending.
func SortRows(rows []Row, order *Order) {
	sort.SliceStable(rows, func(i, j int) bool {
		if order != nil {
			a, b := rows[i].Decimal(order.Measure), rows[j].Decimal(order.Measure)
			if cmp := a.Cmp(b); cmp != 0 {
				if order.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		if !rows[i].Bucket.Equal(rows[j].Bucket) {
			return rows[i].Bucket.Before(rows[j].Bucket)
		}
		return rows[i].Key < rows[j].Key
	})
}
