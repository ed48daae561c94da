package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

func seededMemory() *Memory {
	m := NewMemory()
	day := func(d int) time.Time { return time.Date(2025, 3, d, 10, 0, 0, 0, time.UTC) }
	m.AddSales(
		analytics.SaleTransaction{
			ID: "s1", TenantID: "t1", BranchID: "b1", CustomerID: "c1", Date: day(2), Status: analytics.StatusActive,
			TotalAmount: decimal.NewFromInt(100), DueAmount: decimal.NewFromInt(40),
			Items: []analytics.SaleItem{{
				ProductID: "p1", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50),
				CostAtSale: decimal.NewFromInt(30), LineTotal: decimal.NewFromInt(100),
			}},
		},
		analytics.SaleTransaction{
			ID: "s2", TenantID: "t1", BranchID: "b2", Date: day(1), Status: analytics.StatusActive,
			TotalAmount: decimal.NewFromInt(60),
		},
		analytics.SaleTransaction{
			ID: "s3", TenantID: "t1", BranchID: "b1", Date: day(3), Status: analytics.StatusCancelled,
			TotalAmount: decimal.NewFromInt(500), DueAmount: decimal.NewFromInt(500),
		},
		analytics.SaleTransaction{
			ID: "s4", TenantID: "t2", BranchID: "b9", Date: day(3), Status: analytics.StatusActive,
			TotalAmount: decimal.NewFromInt(7),
		},
	)
	return m
}

func TestMemorySalesFilters(t *testing.T) {
	m := seededMemory()
	ctx := context.Background()

	all, err := m.Sales(ctx, analytics.RecordFilter{Scope: analytics.Scope{TenantID: "t1"}})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "s2", all[0].ID, "ordered by date")

	branch, err := m.Sales(ctx, analytics.RecordFilter{Scope: analytics.Scope{TenantID: "t1", BranchID: "b1"}})
	require.NoError(t, err)
	require.Len(t, branch, 2)

	open, err := m.Sales(ctx, analytics.RecordFilter{Scope: analytics.Scope{TenantID: "t1"}, OnlyOpen: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "s1", open[0].ID)

	windowed, err := m.Sales(ctx, analytics.RecordFilter{
		Scope:  analytics.Scope{TenantID: "t1"},
		Window: analytics.Window{Start: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	require.Equal(t, "s1", windowed[0].ID)
}

func TestMemoryAggregateItems(t *testing.T) {
	m := seededMemory()
	q, err := pipeline.From(pipeline.SourceSaleItems).
		Scope("t1", "").
		By(pipeline.FieldProductID).
		Sum("profit", pipeline.FieldProfit).
		Sum("units", pipeline.FieldQuantity).
		Build()
	require.NoError(t, err)

	rows, err := m.Aggregate(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "p1", rows[0].Key)
	require.True(t, rows[0].Decimal("profit").Equal(decimal.NewFromInt(40)))
	require.True(t, rows[0].Decimal("units").Equal(decimal.NewFromInt(2)))
}

func TestMemoryActiveScopes(t *testing.T) {
	scopes, err := seededMemory().ActiveScopes(context.Background())
	require.NoError(t, err)
	require.Equal(t, []analytics.Scope{
		{TenantID: "t1"},
		{TenantID: "t1", BranchID: "b1"},
		{TenantID: "t1", BranchID: "b2"},
		{TenantID: "t2"},
		{TenantID: "t2", BranchID: "b9"},
	}, scopes)
}

func TestMemoryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := seededMemory().Sales(ctx, analytics.RecordFilter{Scope: analytics.Scope{TenantID: "t1"}})
	require.ErrorIs(t, err, context.Canceled)
}
