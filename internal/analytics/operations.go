package analytics

import (
	"context"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

const (
	creditExposureThreshold = 80
	slowestPayers           = 5
	paymentReference        = "payment"
	paymentLookbackFactor   = 12
)

// TopProduct ranks a product by revenue inside the window.
type TopProduct struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	Revenue   float64 `json:"revenue"`
	Profit    float64 `json:"profit"`
	Margin    float64 `json:"margin"`
}

// EfficiencyReport measures order quality. Cancelled and void sales are
// counted here but never summed into revenue.
type EfficiencyReport struct {
	Orders            int64   `json:"orders"`
	Cancelled         int64   `json:"cancelled"`
	CancellationRate  float64 `json:"cancellationRate"`
	AverageOrderValue float64 `json:"averageOrderValue"`
	ItemsPerOrder     float64 `json:"itemsPerOrder"`
}

// PaymentMethodSummary totals payments per method.
type PaymentMethodSummary struct {
	Method  string  `json:"method"`
	Inflow  float64 `json:"inflow"`
	Outflow float64 `json:"outflow"`
	Net     float64 `json:"net"`
	Count   int64   `json:"count"`
}

// SlowPayer is a customer with a high average days-to-pay.
type SlowPayer struct {
	CustomerID  string  `json:"customerId"`
	AverageDays float64 `json:"averageDays"`
	Invoices    int     `json:"invoices"`
}

// PaymentBehaviorReport summarises how quickly invoices get paid.
type PaymentBehaviorReport struct {
	AverageDaysToPay float64     `json:"averageDaysToPay"`
	PaidInvoices     int         `json:"paidInvoices"`
	Slowest          []SlowPayer `json:"slowest"`
}

// CreditExposure is a customer close to or over their credit limit.
type CreditExposure struct {
	CustomerID  string  `json:"customerId"`
	Name        string  `json:"name"`
	Outstanding float64 `json:"outstanding"`
	CreditLimit float64 `json:"creditLimit"`
	Utilization float64 `json:"utilization"`
}

// TopProducts ranks products by revenue. limit <= 0 uses 10.
func (s *Service) TopProducts(ctx context.Context, p Params, limit int) ([]TopProduct, error) {
	req, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTopProduct
	}
	return cached(ctx, s, "top_products", req, []string{itoa(limit)}, func(ctx context.Context) ([]TopProduct, error) {
		var (
			rows     []pipeline.Row
			products []Product
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			rows, err = s.aggregate(gctx, s.scoped(pipeline.SourceSaleItems, req.scope, req.window).
				By(pipeline.FieldProductID).
				Sum("quantity", pipeline.FieldQuantity).
				Sum("revenue", pipeline.FieldLineTotal).
				Sum("profit", pipeline.FieldProfit).
				OrderBy("revenue", true).
				Limit(limit))
			return err
		})
		g.Go(func() error {
			var err error
			products, err = s.repo.Products(gctx, req.scope)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		names := productNames(products)
		out := make([]TopProduct, 0, len(rows))
		for _, row := range rows {
			revenue := row.Float("revenue")
			profit := row.Float("profit")
			out = append(out, TopProduct{
				ProductID: row.Key,
				Name:      names[row.Key],
				Quantity:  Round2(row.Float("quantity")),
				Revenue:   Round2(revenue),
				Profit:    Round2(profit),
				Margin:    Margin(profit, revenue),
			})
		}
		return out, nil
	})
}

// Efficiency reports cancellation rate, average order value and basket size.
func (s *Service) Efficiency(ctx context.Context, p Params) (EfficiencyReport, error) {
	req, err := s.resolve(p)
	if err != nil {
		return EfficiencyReport{}, err
	}
	return cached(ctx, s, "efficiency", req, nil, func(ctx context.Context) (EfficiencyReport, error) {
		var all, cancelled, active, items pipeline.Row
		g, gctx := errgroup.WithContext(ctx)
		one := func(dst *pipeline.Row, b *pipeline.Builder) {
			g.Go(func() error {
				rows, err := s.aggregate(gctx, b)
				*dst = pipeline.First(rows)
				return err
			})
		}
		one(&all, s.scoped(pipeline.SourceSales, req.scope, req.window).Status(pipeline.StatusAny).Count("orders"))
		one(&cancelled, s.scoped(pipeline.SourceSales, req.scope, req.window).Status(pipeline.StatusCancelled).Count("orders"))
		one(&active, s.scoped(pipeline.SourceSales, req.scope, req.window).Sum("revenue", pipeline.FieldTotalAmount).Count("orders"))
		one(&items, s.scoped(pipeline.SourceSaleItems, req.scope, req.window).Sum("quantity", pipeline.FieldQuantity))
		if err := g.Wait(); err != nil {
			return EfficiencyReport{}, err
		}
		activeOrders := float64(active.Int("orders"))
		return EfficiencyReport{
			Orders:            all.Int("orders"),
			Cancelled:         cancelled.Int("orders"),
			CancellationRate:  Percentage(float64(cancelled.Int("orders")), float64(all.Int("orders"))),
			AverageOrderValue: Round2(SafeDiv(active.Float("revenue"), activeOrders)),
			ItemsPerOrder:     Round2(SafeDiv(items.Float("quantity"), activeOrders)),
		}, nil
	})
}

// PaymentMethods totals inflow and outflow per payment method.
func (s *Service) PaymentMethods(ctx context.Context, p Params) ([]PaymentMethodSummary, error) {
	req, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, "payment_methods", req, nil, func(ctx context.Context) ([]PaymentMethodSummary, error) {
		var inflow, outflow []pipeline.Row
		direction := func(dir string) *pipeline.Builder {
			return s.scoped(pipeline.SourcePayments, req.scope, req.window).
				Eq(pipeline.FieldDirection, dir).
				By(pipeline.FieldMethod).
				Sum("amount", pipeline.FieldAmount).
				Count("count")
		}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			inflow, err = s.aggregate(gctx, direction(DirectionInflow))
			return err
		})
		g.Go(func() error {
			var err error
			outflow, err = s.aggregate(gctx, direction(DirectionOutflow))
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		byMethod := make(map[string]*PaymentMethodSummary)
		get := func(method string) *PaymentMethodSummary {
			summary, ok := byMethod[method]
			if !ok {
				summary = &PaymentMethodSummary{Method: method}
				byMethod[method] = summary
			}
			return summary
		}
		for _, row := range inflow {
			summary := get(row.Key)
			summary.Inflow += row.Float("amount")
			summary.Count += row.Int("count")
		}
		for _, row := range outflow {
			summary := get(row.Key)
			summary.Outflow += row.Float("amount")
			summary.Count += row.Int("count")
		}
		out := make([]PaymentMethodSummary, 0, len(byMethod))
		for _, summary := range byMethod {
			summary.Inflow = Round2(summary.Inflow)
			summary.Outflow = Round2(summary.Outflow)
			summary.Net = Round2(summary.Inflow - summary.Outflow)
			out = append(out, *summary)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
		return out, nil
	})
}

// PaymentBehavior derives days-to-pay from payment ledger entries posted in
// the window against sale invoices. An invoice counts as paid on its latest
// payment entry.
func (s *Service) PaymentBehavior(ctx context.Context, p Params) (PaymentBehaviorReport, error) {
	req, err := s.resolve(p)
	if err != nil {
		return PaymentBehaviorReport{}, err
	}
	return cached(ctx, s, "payment_behavior", req, nil, func(ctx context.Context) (PaymentBehaviorReport, error) {
		var (
			entries []AccountingEntry
			sales   []SaleTransaction
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			entries, err = s.repo.LedgerEntries(gctx, RecordFilter{Scope: req.scope, Window: req.window})
			return err
		})
		g.Go(func() error {
			var err error
			// Invoices may predate the payments by up to a year.
			invoices := Window{Start: req.window.Start.AddDate(0, -paymentLookbackFactor, 0), End: req.window.End}
			sales, err = s.repo.Sales(gctx, RecordFilter{Scope: req.scope, Window: invoices})
			return err
		})
		if err := g.Wait(); err != nil {
			return PaymentBehaviorReport{}, err
		}
		return summarisePayments(entries, sales), nil
	})
}

func summarisePayments(entries []AccountingEntry, sales []SaleTransaction) PaymentBehaviorReport {
	invoices := make(map[string]SaleTransaction, len(sales))
	for _, sale := range sales {
		if !sale.Excluded() {
			invoices[sale.ID] = sale
		}
	}
	type payment struct {
		customer string
		days     float64
	}
	paid := make(map[string]payment)
	for _, entry := range entries {
		if !strings.EqualFold(entry.ReferenceType, paymentReference) || entry.InvoiceID == "" {
			continue
		}
		sale, ok := invoices[entry.InvoiceID]
		if !ok {
			continue
		}
		days := math.Max(0, math.Floor(entry.Date.Sub(sale.Date).Hours()/24))
		customer := entry.CustomerID
		if customer == "" {
			customer = sale.CustomerID
		}
		if prev, ok := paid[entry.InvoiceID]; !ok || days > prev.days {
			paid[entry.InvoiceID] = payment{customer: customer, days: days}
		}
	}

	report := PaymentBehaviorReport{Slowest: []SlowPayer{}}
	type agg struct {
		total float64
		count int
	}
	perCustomer := make(map[string]*agg)
	var total float64
	for _, p := range paid {
		total += p.days
		if p.customer == "" {
			continue
		}
		a, ok := perCustomer[p.customer]
		if !ok {
			a = &agg{}
			perCustomer[p.customer] = a
		}
		a.total += p.days
		a.count++
	}
	report.PaidInvoices = len(paid)
	report.AverageDaysToPay = Round1(SafeDiv(total, float64(len(paid))))
	for customer, a := range perCustomer {
		report.Slowest = append(report.Slowest, SlowPayer{
			CustomerID:  customer,
			AverageDays: Round1(a.total / float64(a.count)),
			Invoices:    a.count,
		})
	}
	sort.Slice(report.Slowest, func(i, j int) bool {
		if report.Slowest[i].AverageDays != report.Slowest[j].AverageDays {
			return report.Slowest[i].AverageDays > report.Slowest[j].AverageDays
		}
		return report.Slowest[i].CustomerID < report.Slowest[j].CustomerID
	})
	if len(report.Slowest) > slowestPayers {
		report.Slowest = report.Slowest[:slowestPayers]
	}
	return report
}

// CreditExposure lists customers using at least 80% of their credit limit.
func (s *Service) CreditExposure(ctx context.Context, p Params) ([]CreditExposure, error) {
	req, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, "credit_exposure", req, nil, func(ctx context.Context) ([]CreditExposure, error) {
		customers, err := s.repo.Customers(ctx, req.scope.TenantID)
		if err != nil {
			return nil, err
		}
		return exposedCustomers(customers), nil
	})
}

func exposedCustomers(customers []Customer) []CreditExposure {
	out := make([]CreditExposure, 0)
	for _, c := range customers {
		limit := c.CreditLimit.InexactFloat64()
		if limit <= 0 {
			continue
		}
		outstanding := c.OutstandingBalance.InexactFloat64()
		utilization := Percentage(outstanding, limit)
		if utilization < creditExposureThreshold {
			continue
		}
		out = append(out, CreditExposure{
			CustomerID:  c.ID,
			Name:        c.Name,
			Outstanding: Round2(outstanding),
			CreditLimit: Round2(limit),
			Utilization: utilization,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Utilization != out[j].Utilization {
			return out[i].Utilization > out[j].Utilization
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out
}
