// Package store provides the record stores behind the analytics engine: an
// in-memory store used for tests and demos, and a PostgreSQL store that
// compiles pipeline queries to SQL.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

// Memory keeps records in process. It is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	sales     []analytics.SaleTransaction
	purchases []analytics.PurchaseTransaction
	payments  []analytics.PaymentRecord
	entries   []analytics.AccountingEntry
	customers []analytics.Customer
	products  []analytics.Product
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

// AddSales appends sales.
func (m *Memory) AddSales(sales ...analytics.SaleTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales = append(m.sales, sales...)
}

// AddPurchases appends purchases.
func (m *Memory) AddPurchases(purchases ...analytics.PurchaseTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases = append(m.purchases, purchases...)
}

// AddPayments appends payments.
func (m *Memory) AddPayments(payments ...analytics.PaymentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, payments...)
}

// AddEntries appends ledger entries.
func (m *Memory) AddEntries(entries ...analytics.AccountingEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
}

// AddCustomers appends customers.
func (m *Memory) AddCustomers(customers ...analytics.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers = append(m.customers, customers...)
}

// AddProducts appends products.
func (m *Memory) AddProducts(products ...analytics.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append(m.products, products...)
}

// Aggregate runs the query over the flattened records of its source.
func (m *Memory) Aggregate(ctx context.Context, q pipeline.Query) ([]pipeline.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	facts := m.facts(q.Source)
	m.mu.RUnlock()
	return pipeline.Run(q, facts)
}

func (m *Memory) facts(src pipeline.Source) []pipeline.Fact {
	switch src {
	case pipeline.SourceSales:
		out := make([]pipeline.Fact, 0, len(m.sales))
		for _, s := range m.sales {
			out = append(out, pipeline.Fact{
				TenantID: s.TenantID,
				BranchID: s.BranchID,
				At:       s.Date,
				Status:   s.Status,
				Keys:     map[pipeline.Field]string{pipeline.FieldSaleID: s.ID, pipeline.FieldCustomerID: s.CustomerID},
				Values: map[pipeline.Field]decimal.Decimal{
					pipeline.FieldTotalAmount: s.TotalAmount,
					pipeline.FieldDueAmount:   s.DueAmount,
				},
			})
		}
		return out
	case pipeline.SourceSaleItems:
		var out []pipeline.Fact
		for _, s := range m.sales {
			for _, item := range s.Items {
				out = append(out, pipeline.Fact{
					TenantID: s.TenantID,
					BranchID: s.BranchID,
					At:       s.Date,
					Status:   s.Status,
					Keys: map[pipeline.Field]string{
						pipeline.FieldSaleID:     s.ID,
						pipeline.FieldCustomerID: s.CustomerID,
						pipeline.FieldProductID:  item.ProductID,
					},
					Values: map[pipeline.Field]decimal.Decimal{
						pipeline.FieldQuantity:  item.Quantity,
						pipeline.FieldLineTotal: item.LineTotal,
						pipeline.FieldCost:      item.Cost(),
						pipeline.FieldProfit:    item.Profit(),
					},
				})
			}
		}
		return out
	case pipeline.SourcePurchases:
		out := make([]pipeline.Fact, 0, len(m.purchases))
		for _, p := range m.purchases {
			out = append(out, pipeline.Fact{
				TenantID: p.TenantID,
				BranchID: p.BranchID,
				At:       p.Date,
				Status:   p.Status,
				Keys:     map[pipeline.Field]string{pipeline.FieldPurchaseID: p.ID, pipeline.FieldSupplierID: p.SupplierID},
				Values: map[pipeline.Field]decimal.Decimal{
					pipeline.FieldTotalAmount: p.TotalAmount,
					pipeline.FieldDueAmount:   p.DueAmount,
				},
			})
		}
		return out
	case pipeline.SourcePayments:
		out := make([]pipeline.Fact, 0, len(m.payments))
		for _, p := range m.payments {
			out = append(out, pipeline.Fact{
				TenantID: p.TenantID,
				BranchID: p.BranchID,
				At:       p.Date,
				Keys:     map[pipeline.Field]string{pipeline.FieldMethod: p.Method, pipeline.FieldDirection: p.Direction},
				Values:   map[pipeline.Field]decimal.Decimal{pipeline.FieldAmount: p.Amount},
			})
		}
		return out
	case pipeline.SourceCustomers:
		out := make([]pipeline.Fact, 0, len(m.customers))
		for _, c := range m.customers {
			out = append(out, pipeline.Fact{
				TenantID: c.TenantID,
				At:       c.CreatedAt,
				Keys:     map[pipeline.Field]string{pipeline.FieldCustomerID: c.ID},
				Values: map[pipeline.Field]decimal.Decimal{
					pipeline.FieldOutstanding: c.OutstandingBalance,
					pipeline.FieldCreditLimit: c.CreditLimit,
				},
			})
		}
		return out
	default:
		return nil
	}
}

// Sales returns sales matching the filter ordered by date.
func (m *Memory) Sales(ctx context.Context, f analytics.RecordFilter) ([]analytics.SaleTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]analytics.SaleTransaction, 0)
	for _, s := range m.sales {
		if !inScope(f, s.TenantID, s.BranchID) || !inWindow(f.Window, s.Date) {
			continue
		}
		if f.OnlyOpen && (s.Excluded() || !s.DueAmount.IsPositive()) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Purchases returns purchases matching the filter ordered by date.
func (m *Memory) Purchases(ctx context.Context, f analytics.RecordFilter) ([]analytics.PurchaseTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]analytics.PurchaseTransaction, 0)
	for _, p := range m.purchases {
		if !inScope(f, p.TenantID, p.BranchID) || !inWindow(f.Window, p.Date) {
			continue
		}
		if f.OnlyOpen && (p.Excluded() || !p.DueAmount.IsPositive()) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Products returns the tenant's products. Inventory is left per branch;
// callers pick the branch through Product.Stock.
func (m *Memory) Products(ctx context.Context, scope analytics.Scope) ([]analytics.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]analytics.Product, 0)
	for _, p := range m.products {
		if p.TenantID == scope.TenantID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Customers returns the tenant's customers.
func (m *Memory) Customers(ctx context.Context, tenantID string) ([]analytics.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]analytics.Customer, 0)
	for _, c := range m.customers {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LedgerEntries returns ledger entries matching the filter ordered by date.
func (m *Memory) LedgerEntries(ctx context.Context, f analytics.RecordFilter) ([]analytics.AccountingEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]analytics.AccountingEntry, 0)
	for _, e := range m.entries {
		if !inScope(f, e.TenantID, e.BranchID) || !inWindow(f.Window, e.Date) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// ActiveScopes lists every tenant/branch pair with sales, plus a
// tenant-wide scope per tenant.
func (m *Memory) ActiveScopes(ctx context.Context) ([]analytics.Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[analytics.Scope]struct{})
	for _, s := range m.sales {
		seen[analytics.Scope{TenantID: s.TenantID}] = struct{}{}
		if s.BranchID != "" {
			seen[analytics.Scope{TenantID: s.TenantID, BranchID: s.BranchID}] = struct{}{}
		}
	}
	out := make([]analytics.Scope, 0, len(seen))
	for scope := range seen {
		out = append(out, scope)
	}
	sortScopes(out)
	return out, nil
}

func inScope(f analytics.RecordFilter, tenantID, branchID string) bool {
	if tenantID != f.TenantID {
		return false
	}
	return f.BranchID == "" || branchID == f.BranchID
}

// inWindow treats a zero bound as open.
func inWindow(w analytics.Window, t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	return w.End.IsZero() || t.Before(w.End)
}

func sortScopes(scopes []analytics.Scope) {
	sort.Slice(scopes, func(i, j int) bool {
		if scopes[i].TenantID != scopes[j].TenantID {
			return scopes[i].TenantID < scopes[j].TenantID
		}
		return scopes[i].BranchID < scopes[j].BranchID
	})
}

var (
	_ analytics.Repository = (*Memory)(nil)
	_ analytics.Repository = (*Postgres)(nil)
)
