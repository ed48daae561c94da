// Package pipeline describes grouped aggregations as filter, group and project
// stages. Queries are storage neutral: Run executes them over in-memory facts
// and the store package compiles the same Query to SQL.
package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Source names a fact collection.
type Source string

const (
	SourceSales     Source = "sales"
	SourceSaleItems Source = "sale_items"
	SourcePurchases Source = "purchases"
	SourcePayments  Source = "payments"
	SourceCustomers Source = "customers"
)

// Field names either a grouping key or a summable value of a source.
type Field string

// Key fields.
const (
	FieldSaleID     Field = "sale_id"
	FieldPurchaseID Field = "purchase_id"
	FieldCustomerID Field = "customer_id"
	FieldProductID  Field = "product_id"
	FieldSupplierID Field = "supplier_id"
	FieldMethod     Field = "method"
	FieldDirection  Field = "direction"
)

// Value fields.
const (
	FieldTotalAmount Field = "total_amount"
	FieldDueAmount   Field = "due_amount"
	FieldQuantity    Field = "quantity"
	FieldLineTotal   Field = "line_total"
	FieldCost        Field = "cost"
	FieldProfit      Field = "profit"
	FieldAmount      Field = "amount"
	FieldOutstanding Field = "outstanding_balance"
	FieldCreditLimit Field = "credit_limit"
)

// Status selects records by lifecycle state.
type Status string

const (
	// StatusActive keeps everything that is not cancelled or void.
	StatusActive Status = "active"
	// StatusCancelled keeps only cancelled or void records.
	StatusCancelled Status = "cancelled"
	// StatusAny disables status filtering.
	StatusAny Status = "any"
)

// Op is an aggregation operator.
type Op string

const (
	OpSum           Op = "sum"
	OpCount         Op = "count"
	OpCountDistinct Op = "count_distinct"
	OpMinTime       Op = "min_time"
	OpMaxTime       Op = "max_time"
)

// Granularity is a time bucket width.
type Granularity string

const (
	GranularityNone  Granularity = ""
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// Measure is one projected aggregate.
type Measure struct {
	Name  string
	Op    Op
	Field Field
}

// Condition restricts facts beyond scope and window. Equals applies to key
// fields, Positive to value fields.
type Condition struct {
	Field    Field
	Equals   string
	Positive bool
}

// Filter is the match stage. From/To form a half-open window; zero values
// leave that side unbounded.
type Filter struct {
	TenantID   string
	BranchID   string
	From       time.Time
	To         time.Time
	Status     Status
	Conditions []Condition
}

// Grouping is the group stage.
type Grouping struct {
	Bucket   Granularity
	Key      Field
	Location *time.Location
}

// Order sorts grouped rows by a measure.
type Order struct {
	Measure string
	Desc    bool
}

// Query is a complete filter → group → project description.
type Query struct {
	Source   Source
	Filter   Filter
	Group    Grouping
	Measures []Measure
	Order    *Order
	Limit    int
}

var (
	// ErrInvalidQuery is returned for queries that cannot be executed.
	ErrInvalidQuery = errors.New("pipeline: invalid query")
)

type sourceSchema struct {
	keys      map[Field]bool
	values    map[Field]bool
	hasBranch bool
	hasStatus bool
}

var schemas = map[Source]sourceSchema{
	SourceSales: {
		keys:      fieldSet(FieldSaleID, FieldCustomerID),
		values:    fieldSet(FieldTotalAmount, FieldDueAmount),
		hasBranch: true,
		hasStatus: true,
	},
	SourceSaleItems: {
		keys:      fieldSet(FieldSaleID, FieldCustomerID, FieldProductID),
		values:    fieldSet(FieldQuantity, FieldLineTotal, FieldCost, FieldProfit),
		hasBranch: true,
		hasStatus: true,
	},
	SourcePurchases: {
		keys:      fieldSet(FieldPurchaseID, FieldSupplierID),
		values:    fieldSet(FieldTotalAmount, FieldDueAmount),
		hasBranch: true,
		hasStatus: true,
	},
	SourcePayments: {
		keys:      fieldSet(FieldMethod, FieldDirection),
		values:    fieldSet(FieldAmount),
		hasBranch: true,
	},
	SourceCustomers: {
		keys:   fieldSet(FieldCustomerID),
		values: fieldSet(FieldOutstanding, FieldCreditLimit),
	},
}

func fieldSet(fields ...Field) map[Field]bool {
	set := make(map[Field]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// HasBranch reports whether the source is scoped per branch. Tenant-level
// sources ignore the branch filter.
func HasBranch(src Source) bool {
	return schemas[src].hasBranch
}

// HasStatus reports whether the source carries a lifecycle status.
func HasStatus(src Source) bool {
	return schemas[src].hasStatus
}

// IsKey reports whether f is a grouping key of src.
func IsKey(src Source, f Field) bool {
	return schemas[src].keys[f]
}

// IsValue reports whether f is a summable value of src.
func IsValue(src Source, f Field) bool {
	return schemas[src].values[f]
}

// Excluded reports whether a raw status marks a record as cancelled or void.
func Excluded(status string) bool {
	switch status {
	case "cancelled", "canceled", "void":
		return true
	}
	return false
}

// Validate checks the query against the source schema.
func (q Query) Validate() error {
	schema, ok := schemas[q.Source]
	if !ok {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidQuery, q.Source)
	}
	if q.Filter.TenantID == "" {
		return fmt.Errorf("%w: tenant scope required", ErrInvalidQuery)
	}
	if !q.Filter.From.IsZero() && !q.Filter.To.IsZero() && q.Filter.To.Before(q.Filter.From) {
		return fmt.Errorf("%w: window end before start", ErrInvalidQuery)
	}
	for _, cond := range q.Filter.Conditions {
		if cond.Positive && !schema.values[cond.Field] {
			return fmt.Errorf("%w: %s is not a value of %s", ErrInvalidQuery, cond.Field, q.Source)
		}
		if !cond.Positive && !schema.keys[cond.Field] {
			return fmt.Errorf("%w: %s is not a key of %s", ErrInvalidQuery, cond.Field, q.Source)
		}
	}
	if q.Group.Key != "" && !schema.keys[q.Group.Key] {
		return fmt.Errorf("%w: cannot group %s by %s", ErrInvalidQuery, q.Source, q.Group.Key)
	}
	switch q.Group.Bucket {
	case GranularityNone, GranularityDay, GranularityWeek, GranularityMonth, GranularityYear:
	default:
		return fmt.Errorf("%w: unknown bucket %q", ErrInvalidQuery, q.Group.Bucket)
	}
	if len(q.Measures) == 0 {
		return fmt.Errorf("%w: at least one measure required", ErrInvalidQuery)
	}
	names := make(map[string]bool, len(q.Measures))
	for _, m := range q.Measures {
		if m.Name == "" || names[m.Name] {
			return fmt.Errorf("%w: measure name %q empty or duplicated", ErrInvalidQuery, m.Name)
		}
		names[m.Name] = true
		switch m.Op {
		case OpSum:
			if !schema.values[m.Field] {
				return fmt.Errorf("%w: cannot sum %s on %s", ErrInvalidQuery, m.Field, q.Source)
			}
		case OpCountDistinct:
			if !schema.keys[m.Field] {
				return fmt.Errorf("%w: cannot count distinct %s on %s", ErrInvalidQuery, m.Field, q.Source)
			}
		case OpCount, OpMinTime, OpMaxTime:
		default:
			return fmt.Errorf("%w: unknown op %q", ErrInvalidQuery, m.Op)
		}
	}
	if q.Order != nil && !names[q.Order.Measure] {
		return fmt.Errorf("%w: order by unknown measure %q", ErrInvalidQuery, q.Order.Measure)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

// Loc returns the bucketing location, defaulting to UTC.
func (g Grouping) Loc() *time.Location {
	if g.Location == nil {
		return time.UTC
	}
	return g.Location
}
