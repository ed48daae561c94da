package pipeline

import "time"

// Builder assembles a Query fluently. Errors surface from Build.
type Builder struct {
	q Query
}

// From starts a query over src. Status defaults to StatusActive.
func From(src Source) *Builder {
	return &Builder{q: Query{Source: src, Filter: Filter{Status: StatusActive}}}
}

// Scope restricts the query to a tenant and, when non-empty, a branch.
func (b *Builder) Scope(tenantID, branchID string) *Builder {
	b.q.Filter.TenantID = tenantID
	b.q.Filter.BranchID = branchID
	return b
}

// Between restricts the query to the half-open window [from, to).
func (b *Builder) Between(from, to time.Time) *Builder {
	b.q.Filter.From = from
	b.q.Filter.To = to
	return b
}

// Status overrides the lifecycle filter.
func (b *Builder) Status(status Status) *Builder {
	b.q.Filter.Status = status
	return b
}

// Eq keeps facts whose key field equals value.
func (b *Builder) Eq(field Field, value string) *Builder {
	b.q.Filter.Conditions = append(b.q.Filter.Conditions, Condition{Field: field, Equals: value})
	return b
}

// Positive keeps facts whose value field is greater than zero.
func (b *Builder) Positive(field Field) *Builder {
	b.q.Filter.Conditions = append(b.q.Filter.Conditions, Condition{Field: field, Positive: true})
	return b
}

// Bucket groups by a time bucket evaluated in loc.
func (b *Builder) Bucket(g Granularity, loc *time.Location) *Builder {
	b.q.Group.Bucket = g
	b.q.Group.Location = loc
	return b
}

// By groups by a key field.
func (b *Builder) By(key Field) *Builder {
	b.q.Group.Key = key
	return b
}

// Sum projects the sum of a value field.
func (b *Builder) Sum(name string, field Field) *Builder {
	return b.measure(Measure{Name: name, Op: OpSum, Field: field})
}

// Count projects the number of matching facts.
func (b *Builder) Count(name string) *Builder {
	return b.measure(Measure{Name: name, Op: OpCount})
}

// CountDistinct projects the number of distinct key values.
func (b *Builder) CountDistinct(name string, field Field) *Builder {
	return b.measure(Measure{Name: name, Op: OpCountDistinct, Field: field})
}

// MinTime projects the earliest fact timestamp.
func (b *Builder) MinTime(name string) *Builder {
	return b.measure(Measure{Name: name, Op: OpMinTime})
}

// MaxTime projects the latest fact timestamp.
func (b *Builder) MaxTime(name string) *Builder {
	return b.measure(Measure{Name: name, Op: OpMaxTime})
}

// OrderBy sorts rows by a projected measure.
func (b *Builder) OrderBy(measure string, desc bool) *Builder {
	b.q.Order = &Order{Measure: measure, Desc: desc}
	return b
}

// Limit caps the number of returned rows.
func (b *Builder) Limit(n int) *Builder {
	b.q.Limit = n
	return b
}

// Build validates and returns the query.
func (b *Builder) Build() (Query, error) {
	q := b.q
	q.Measures = append([]Measure(nil), b.q.Measures...)
	q.Filter.Conditions = append([]Condition(nil), b.q.Filter.Conditions...)
	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

func (b *Builder) measure(m Measure) *Builder {
	b.q.Measures = append(b.q.Measures, m)
	return b
}
