package analytics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

// RevenueStats summarises active sales.
type RevenueStats struct {
	Value  float64 `json:"value"`
	Count  int64   `json:"count"`
	Growth float64 `json:"growth"`
	Today  float64 `json:"today"`
}

// ExpenseStats summarises active purchases.
type ExpenseStats struct {
	Value  float64 `json:"value"`
	Count  int64   `json:"count"`
	Growth float64 `json:"growth"`
}

// ProfitStats is gross profit from cost-at-sale snapshots.
type ProfitStats struct {
	Value  float64 `json:"value"`
	Margin float64 `json:"margin"`
	Status string  `json:"status"`
}

// CustomerStats counts buying and newly created customers.
type CustomerStats struct {
	Active int64 `json:"active"`
	New    int64 `json:"new"`
}

// ProductStats counts units sold and distinct products sold.
type ProductStats struct {
	Sold   float64 `json:"sold"`
	Unique int64   `json:"unique"`
}

// OutstandingStats is the open receivable and payable balance.
type OutstandingStats struct {
	Receivables float64 `json:"receivables"`
	Payables    float64 `json:"payables"`
}

// ExecutiveStats is the dashboard headline report.
type ExecutiveStats struct {
	Revenue     RevenueStats     `json:"revenue"`
	Expense     ExpenseStats     `json:"expense"`
	Profit      ProfitStats      `json:"profit"`
	Customers   CustomerStats    `json:"customers"`
	Products    ProductStats     `json:"products"`
	Outstanding OutstandingStats `json:"outstanding"`
	Health      float64          `json:"health"`
}

// ExecutiveStats compares the window against the previous one of equal length.
func (s *Service) ExecutiveStats(ctx context.Context, p Params) (ExecutiveStats, error) {
	req, err := s.resolve(p)
	if err != nil {
		return ExecutiveStats{}, err
	}
	return cached(ctx, s, "stats", req, nil, func(ctx context.Context) (ExecutiveStats, error) {
		return s.buildExecutiveStats(ctx, req)
	})
}

func (s *Service) buildExecutiveStats(ctx context.Context, req request) (ExecutiveStats, error) {
	current, previous := req.window, req.window.Previous()
	today := req.window.Today(s.now())
	var (
		curSales, prevSales, todaySales pipeline.Row
		curBuys, prevBuys               pipeline.Row
		items, newCustomers             pipeline.Row
		receivable, payable             pipeline.Row
	)
	salesQuery := func(w Window) *pipeline.Builder {
		return s.scoped(pipeline.SourceSales, req.scope, w).
			Sum("revenue", pipeline.FieldTotalAmount).
			Sum("due", pipeline.FieldDueAmount).
			Count("orders").
			CountDistinct("customers", pipeline.FieldCustomerID)
	}
	purchaseQuery := func(w Window) *pipeline.Builder {
		return s.scoped(pipeline.SourcePurchases, req.scope, w).
			Sum("expense", pipeline.FieldTotalAmount).
			Count("orders")
	}
	// Open balances are not windowed.
	openQuery := func(src pipeline.Source) *pipeline.Builder {
		return pipeline.From(src).Scope(req.scope.TenantID, req.scope.BranchID).
			Positive(pipeline.FieldDueAmount).
			Sum("due", pipeline.FieldDueAmount)
	}

	g, gctx := errgroup.WithContext(ctx)
	one := func(dst *pipeline.Row, b *pipeline.Builder) {
		g.Go(func() error {
			rows, err := s.aggregate(gctx, b)
			if err != nil {
				return err
			}
			*dst = pipeline.First(rows)
			return nil
		})
	}
	one(&curSales, salesQuery(current))
	one(&prevSales, salesQuery(previous))
	one(&todaySales, salesQuery(today))
	one(&curBuys, purchaseQuery(current))
	one(&prevBuys, purchaseQuery(previous))
	one(&items, s.scoped(pipeline.SourceSaleItems, req.scope, current).
		Sum("profit", pipeline.FieldProfit).
		Sum("quantity", pipeline.FieldQuantity).
		CountDistinct("products", pipeline.FieldProductID))
	one(&newCustomers, s.scoped(pipeline.SourceCustomers, req.scope, current).Count("created"))
	one(&receivable, openQuery(pipeline.SourceSales))
	one(&payable, openQuery(pipeline.SourcePurchases))
	if err := g.Wait(); err != nil {
		return ExecutiveStats{}, err
	}

	revenue := curSales.Float("revenue")
	expense := curBuys.Float("expense")
	profit := items.Float("profit")
	margin := Margin(profit, revenue)
	revenueGrowth := Growth(revenue, prevSales.Float("revenue"))
	collected := Percentage(revenue-curSales.Float("due"), revenue)

	return ExecutiveStats{
		Revenue: RevenueStats{
			Value:  Round2(revenue),
			Count:  curSales.Int("orders"),
			Growth: revenueGrowth,
			Today:  Round2(todaySales.Float("revenue")),
		},
		Expense: ExpenseStats{
			Value:  Round2(expense),
			Count:  curBuys.Int("orders"),
			Growth: Growth(expense, prevBuys.Float("expense")),
		},
		Profit: ProfitStats{
			Value:  Round2(profit),
			Margin: margin,
			Status: ProfitStatus(profit),
		},
		Customers: CustomerStats{
			Active: curSales.Int("customers"),
			New:    newCustomers.Int("created"),
		},
		Products: ProductStats{
			Sold:   Round2(items.Float("quantity")),
			Unique: items.Int("products"),
		},
		Outstanding: OutstandingStats{
			Receivables: Round2(receivable.Float("due")),
			Payables:    Round2(payable.Float("due")),
		},
		Health: HealthScore(margin, revenueGrowth, collected),
	}, nil
}
