package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

func TestCompileGroupedSalesQuery(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, loc)
	to := time.Date(2025, 4, 1, 0, 0, 0, 0, loc)
	q, err := pipeline.From(pipeline.SourceSales).
		Scope("t1", "b1").
		Between(from, to).
		Bucket(pipeline.GranularityMonth, loc).
		Sum("revenue", pipeline.FieldTotalAmount).
		Count("orders").
		Build()
	require.NoError(t, err)

	c, err := compile(q)
	require.NoError(t, err)
	require.True(t, c.bucketed)
	require.False(t, c.keyed)
	require.Equal(t, "SELECT date_trunc('month', s.sold_at AT TIME ZONE $5) AS bucket, "+
		"COALESCE(SUM(s.total_amount), 0)::numeric AS m0, COUNT(*)::numeric AS m1 "+
		"FROM sales s WHERE s.tenant_id::text = $1 AND s.branch_id::text = $2 AND s.sold_at >= $3 AND s.sold_at < $4 "+
		"AND lower(s.status) NOT IN ('cancelled', 'canceled', 'void') GROUP BY 1 ORDER BY 1", c.sql)
	require.Equal(t, []any{"t1", "b1", from, to, "Asia/Jakarta"}, c.args)
}

func TestCompileOrderedItemsQuery(t *testing.T) {
	q, err := pipeline.From(pipeline.SourceSaleItems).
		Scope("t1", "").
		By(pipeline.FieldProductID).
		Sum("revenue", pipeline.FieldLineTotal).
		Sum("profit", pipeline.FieldProfit).
		OrderBy("revenue", true).
		Limit(5).
		Build()
	require.NoError(t, err)

	c, err := compile(q)
	require.NoError(t, err)
	require.Contains(t, c.sql, "FROM sale_items i JOIN sales s ON s.id = i.sale_id")
	require.Contains(t, c.sql, "COALESCE(SUM(i.quantity * (i.unit_price - i.cost_at_sale)), 0)::numeric AS m1")
	require.Contains(t, c.sql, "GROUP BY 1 ORDER BY m0 DESC, 1 LIMIT $2")
	require.Equal(t, []any{"t1", 5}, c.args)
}

func TestCompileStatusAndConditions(t *testing.T) {
	q, err := pipeline.From(pipeline.SourceSales).Scope("t1", "").Status(pipeline.StatusCancelled).Count("n").Build()
	require.NoError(t, err)
	c, err := compile(q)
	require.NoError(t, err)
	require.Contains(t, c.sql, "lower(s.status) IN ('cancelled', 'canceled', 'void')")

	q, err = pipeline.From(pipeline.SourcePayments).Scope("t1", "b2").
		Eq(pipeline.FieldDirection, "inflow").
		By(pipeline.FieldMethod).
		Sum("amount", pipeline.FieldAmount).
		Build()
	require.NoError(t, err)
	c, err = compile(q)
	require.NoError(t, err)
	require.NotContains(t, c.sql, "status")
	require.Contains(t, c.sql, "y.direction = $3")
	require.Equal(t, []any{"t1", "b2", "inflow"}, c.args)

	q, err = pipeline.From(pipeline.SourceCustomers).Scope("t1", "b9").Count("n").Build()
	require.NoError(t, err)
	c, err = compile(q)
	require.NoError(t, err)
	require.NotContains(t, c.sql, "branch_id")
}

func TestCompileRejectsInvalidQuery(t *testing.T) {
	_, err := compile(pipeline.Query{Source: pipeline.SourceSales})
	require.ErrorIs(t, err, pipeline.ErrInvalidQuery)
}
