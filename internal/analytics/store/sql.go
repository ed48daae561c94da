package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

// table maps a pipeline source onto SQL expressions.
type table struct {
	from   string
	ts     string
	tenant string
	branch string
	status string
	keys   map[pipeline.Field]string
	values map[pipeline.Field]string
}

var tables = map[pipeline.Source]table{
	pipeline.SourceSales: {
		from:   "sales s",
		ts:     "s.sold_at",
		tenant: "s.tenant_id::text",
		branch: "s.branch_id::text",
		status: "s.status",
		keys: map[pipeline.Field]string{
			pipeline.FieldSaleID:     "s.id::text",
			pipeline.FieldCustomerID: "COALESCE(s.customer_id::text, '')",
		},
		values: map[pipeline.Field]string{
			pipeline.FieldTotalAmount: "s.total_amount",
			pipeline.FieldDueAmount:   "s.due_amount",
		},
	},
	pipeline.SourceSaleItems: {
		from:   "sale_items i JOIN sales s ON s.id = i.sale_id",
		ts:     "s.sold_at",
		tenant: "s.tenant_id::text",
		branch: "s.branch_id::text",
		status: "s.status",
		keys: map[pipeline.Field]string{
			pipeline.FieldSaleID:     "s.id::text",
			pipeline.FieldCustomerID: "COALESCE(s.customer_id::text, '')",
			pipeline.FieldProductID:  "i.product_id::text",
		},
		values: map[pipeline.Field]string{
			pipeline.FieldQuantity:  "i.quantity",
			pipeline.FieldLineTotal: "i.line_total",
			pipeline.FieldCost:      "i.quantity * i.cost_at_sale",
			pipeline.FieldProfit:    "i.quantity * (i.unit_price - i.cost_at_sale)",
		},
	},
	pipeline.SourcePurchases: {
		from:   "purchases p",
		ts:     "p.purchased_at",
		tenant: "p.tenant_id::text",
		branch: "p.branch_id::text",
		status: "p.status",
		keys: map[pipeline.Field]string{
			pipeline.FieldPurchaseID: "p.id::text",
			pipeline.FieldSupplierID: "COALESCE(p.supplier_id::text, '')",
		},
		values: map[pipeline.Field]string{
			pipeline.FieldTotalAmount: "p.total_amount",
			pipeline.FieldDueAmount:   "p.due_amount",
		},
	},
	pipeline.SourcePayments: {
		from:   "payments y",
		ts:     "y.paid_at",
		tenant: "y.tenant_id::text",
		branch: "y.branch_id::text",
		keys: map[pipeline.Field]string{
			pipeline.FieldMethod:    "y.method",
			pipeline.FieldDirection: "y.direction",
		},
		values: map[pipeline.Field]string{
			pipeline.FieldAmount: "y.amount",
		},
	},
	pipeline.SourceCustomers: {
		from:   "customers c",
		ts:     "c.created_at",
		tenant: "c.tenant_id::text",
		keys: map[pipeline.Field]string{
			pipeline.FieldCustomerID: "c.id::text",
		},
		values: map[pipeline.Field]string{
			pipeline.FieldOutstanding: "c.outstanding_balance",
			pipeline.FieldCreditLimit: "c.credit_limit",
		},
	},
}

const excludedStatuses = "('cancelled', 'canceled', 'void')"

// compiled is a query ready for pgx. Columns come back as bucket (when
// bucketed), key (when keyed), then one column per measure in order.
type compiled struct {
	sql      string
	args     []any
	bucketed bool
	keyed    bool
}

type argList struct {
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return "$" + strconv.Itoa(len(a.args))
}

func compile(q pipeline.Query) (compiled, error) {
	if err := q.Validate(); err != nil {
		return compiled{}, err
	}
	t, ok := tables[q.Source]
	if !ok {
		return compiled{}, fmt.Errorf("%w: no table for %s", pipeline.ErrInvalidQuery, q.Source)
	}
	var args argList
	where := []string{t.tenant + " = " + args.add(q.Filter.TenantID)}
	if q.Filter.BranchID != "" && t.branch != "" {
		where = append(where, t.branch+" = "+args.add(q.Filter.BranchID))
	}
	if !q.Filter.From.IsZero() {
		where = append(where, t.ts+" >= "+args.add(q.Filter.From))
	}
	if !q.Filter.To.IsZero() {
		where = append(where, t.ts+" < "+args.add(q.Filter.To))
	}
	if t.status != "" {
		switch q.Filter.Status {
		case pipeline.StatusActive, "":
			where = append(where, "lower("+t.status+") NOT IN "+excludedStatuses)
		case pipeline.StatusCancelled:
			where = append(where, "lower("+t.status+") IN "+excludedStatuses)
		}
	}
	for _, cond := range q.Filter.Conditions {
		if cond.Positive {
			where = append(where, t.values[cond.Field]+" > 0")
			continue
		}
		where = append(where, t.keys[cond.Field]+" = "+args.add(cond.Equals))
	}

	var (
		selects []string
		groups  []string
		orders  []string
	)
	out := compiled{}
	if q.Group.Bucket != pipeline.GranularityNone {
		expr := fmt.Sprintf("date_trunc('%s', %s AT TIME ZONE %s)", q.Group.Bucket, t.ts, args.add(q.Group.Loc().String()))
		selects = append(selects, expr+" AS bucket")
		out.bucketed = true
	}
	if q.Group.Key != "" {
		selects = append(selects, t.keys[q.Group.Key]+" AS key")
		out.keyed = true
	}
	for i := range selects {
		groups = append(groups, strconv.Itoa(i+1))
	}
	orderCol := ""
	for i, m := range q.Measures {
		alias := "m" + strconv.Itoa(i)
		var expr string
		switch m.Op {
		case pipeline.OpSum:
			expr = "COALESCE(SUM(" + t.values[m.Field] + "), 0)::numeric"
		case pipeline.OpCount:
			expr = "COUNT(*)::numeric"
		case pipeline.OpCountDistinct:
			expr = "COUNT(DISTINCT NULLIF(" + t.keys[m.Field] + ", ''))::numeric"
		case pipeline.OpMinTime:
			expr = "MIN(" + t.ts + ")"
		case pipeline.OpMaxTime:
			expr = "MAX(" + t.ts + ")"
		}
		selects = append(selects, expr+" AS "+alias)
		if q.Order != nil && q.Order.Measure == m.Name {
			orderCol = alias
		}
	}
	if orderCol != "" {
		dir := " ASC"
		if q.Order.Desc {
			dir = " DESC"
		}
		orders = append(orders, orderCol+dir)
	}
	orders = append(orders, groups...)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(t.from)
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(where, " AND "))
	if len(groups) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groups, ", "))
	}
	if len(orders) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orders, ", "))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(args.add(q.Limit))
	}
	out.sql = sb.String()
	out.args = args.args
	return out, nil
}
