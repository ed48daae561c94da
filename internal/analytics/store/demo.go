package store

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
)

// demoNamespace roots the deterministic ids of demo records.
var demoNamespace = uuid.MustParse("5b0f7c1e-4f0e-4c55-9a39-0d3c2f1e8a77")

// DemoOptions shapes a generated demo dataset.
type DemoOptions struct {
	Tenants   []string
	Branches  int
	Customers int
	Products  int
	Months    int
	Seed      uint64
}

func (o DemoOptions) withDefaults() DemoOptions {
	if len(o.Tenants) == 0 {
		o.Tenants = []string{"demo"}
	}
	if o.Branches <= 0 {
		o.Branches = 2
	}
	if o.Customers <= 0 {
		o.Customers = 25
	}
	if o.Products <= 0 {
		o.Products = 20
	}
	if o.Months <= 0 {
		o.Months = 12
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	return o
}

var (
	paymentMethods = []string{"cash", "card", "transfer", "e-wallet"}
	productNames   = []string{"Kopi Arabika", "Teh Melati", "Gula Aren", "Beras Premium", "Minyak Kelapa",
		"Sambal Bawang", "Kecap Manis", "Mie Instan", "Susu UHT", "Roti Tawar"}
)

// LoadDemo fills m with a deterministic retail history ending at now. The
// same options always produce the same records.
func LoadDemo(m *Memory, now time.Time, opts DemoOptions) {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	for _, tenant := range opts.Tenants {
		loadTenant(m, rng, tenant, now, opts)
	}
}

func demoID(parts ...any) string {
	return uuid.NewSHA1(demoNamespace, []byte(fmt.Sprint(parts...))).String()
}

func loadTenant(m *Memory, rng *rand.Rand, tenant string, now time.Time, opts DemoOptions) {
	branches := make([]string, opts.Branches)
	for i := range branches {
		branches[i] = demoID(tenant, "branch", i)
	}
	start := now.AddDate(0, -opts.Months, 0)

	products := make([]analytics.Product, opts.Products)
	for i := range products {
		cost := decimal.NewFromInt(int64(5_000 + rng.IntN(45_000)))
		markup := decimal.NewFromFloat(1.2 + rng.Float64()*0.6).Round(2)
		p := analytics.Product{
			ID:            demoID(tenant, "product", i),
			TenantID:      tenant,
			Name:          fmt.Sprintf("%s %d", productNames[i%len(productNames)], i/len(productNames)+1),
			PurchasePrice: cost,
			SellingPrice:  cost.Mul(markup).Round(0),
		}
		for _, b := range branches {
			p.Inventory = append(p.Inventory, analytics.BranchStock{
				BranchID:     b,
				Quantity:     decimal.NewFromInt(int64(rng.IntN(120))),
				ReorderLevel: decimal.NewFromInt(int64(5 + rng.IntN(20))),
			})
		}
		products[i] = p
	}
	m.AddProducts(products...)

	customers := make([]analytics.Customer, opts.Customers)
	for i := range customers {
		limit := decimal.NewFromInt(int64(1+rng.IntN(10)) * 1_000_000)
		customers[i] = analytics.Customer{
			ID:                 demoID(tenant, "customer", i),
			TenantID:           tenant,
			Name:               fmt.Sprintf("Pelanggan %02d", i+1),
			CreditLimit:        limit,
			OutstandingBalance: limit.Mul(decimal.NewFromFloat(rng.Float64())).Round(0),
			CreatedAt:          start.Add(time.Duration(rng.Int64N(int64(now.Sub(start)/2)))),
		}
	}
	m.AddCustomers(customers...)

	// Only the first half of the catalogue sells so dead stock has something to report.
	selling := products[:max(1, len(products)/2)]
	var seq int
	for day := start; day.Before(now); day = day.AddDate(0, 0, 1) {
		orders := 1 + rng.IntN(4)
		for range orders {
			seq++
			sale := demoSale(rng, tenant, branches, customers, selling, day, seq)
			if sale.Excluded() {
				m.AddSales(sale)
				continue
			}
			paidAt, paid := demoPayment(rng, sale, now)
			if paid {
				sale.DueAmount = decimal.Zero
			}
			m.AddSales(sale)
			if paid {
				m.AddPayments(analytics.PaymentRecord{
					ID:        demoID(tenant, "payment", seq),
					TenantID:  tenant,
					BranchID:  sale.BranchID,
					Direction: analytics.DirectionInflow,
					Method:    paymentMethods[rng.IntN(len(paymentMethods))],
					Amount:    sale.TotalAmount,
					Date:      paidAt,
					InvoiceID: sale.ID,
				})
				m.AddEntries(analytics.AccountingEntry{
					ID:            demoID(tenant, "entry", seq),
					TenantID:      tenant,
					BranchID:      sale.BranchID,
					Debit:         sale.TotalAmount,
					ReferenceType: "payment",
					ReferenceID:   demoID(tenant, "payment", seq),
					Date:          paidAt,
					CustomerID:    sale.CustomerID,
					InvoiceID:     sale.ID,
				})
			}
		}
		if day.Weekday() == time.Monday {
			seq++
			m.AddPurchases(demoPurchase(rng, tenant, branches, day, now, seq))
		}
	}
}

func demoSale(rng *rand.Rand, tenant string, branches []string, customers []analytics.Customer, products []analytics.Product, day time.Time, seq int) analytics.SaleTransaction {
	at := day.Add(time.Duration(8+rng.IntN(12)) * time.Hour).Add(time.Duration(rng.IntN(60)) * time.Minute)
	sale := analytics.SaleTransaction{
		ID:       demoID(tenant, "sale", seq),
		TenantID: tenant,
		BranchID: branches[rng.IntN(len(branches))],
		Date:     at,
		Status:   "completed",
	}
	if rng.IntN(5) > 0 {
		sale.CustomerID = customers[rng.IntN(len(customers))].ID
	}
	if rng.IntN(40) == 0 {
		sale.Status = analytics.StatusCancelled
	}
	lines := 1 + rng.IntN(3)
	used := make(map[int]struct{}, lines)
	total := decimal.Zero
	for range lines {
		idx := rng.IntN(len(products))
		if _, dup := used[idx]; dup {
			continue
		}
		used[idx] = struct{}{}
		p := products[idx]
		qty := decimal.NewFromInt(int64(1 + rng.IntN(5)))
		line := qty.Mul(p.SellingPrice)
		sale.Items = append(sale.Items, analytics.SaleItem{
			ProductID:  p.ID,
			Quantity:   qty,
			UnitPrice:  p.SellingPrice,
			CostAtSale: p.PurchasePrice,
			LineTotal:  line,
		})
		total = total.Add(line)
	}
	sale.TotalAmount = total
	if sale.CustomerID != "" && rng.IntN(3) == 0 {
		due := at.AddDate(0, 0, 30)
		sale.DueDate = &due
		sale.DueAmount = total
	}
	return sale
}

// demoPayment settles credit sales 0 to 75 days after the sale; cash sales
// settle immediately. Credit sales still open at now stay unpaid.
func demoPayment(rng *rand.Rand, sale analytics.SaleTransaction, now time.Time) (time.Time, bool) {
	if sale.DueDate == nil {
		return sale.Date, true
	}
	paidAt := sale.Date.AddDate(0, 0, rng.IntN(76))
	if !paidAt.Before(now) {
		return time.Time{}, false
	}
	return paidAt, true
}

func demoPurchase(rng *rand.Rand, tenant string, branches []string, day, now time.Time, seq int) analytics.PurchaseTransaction {
	total := decimal.NewFromInt(int64(500_000 + rng.IntN(4_500_000)))
	due := day.AddDate(0, 0, 45)
	p := analytics.PurchaseTransaction{
		ID:          demoID(tenant, "purchase", seq),
		TenantID:    tenant,
		BranchID:    branches[rng.IntN(len(branches))],
		SupplierID:  demoID(tenant, "supplier", rng.IntN(5)),
		Date:        day.Add(10 * time.Hour),
		DueDate:     &due,
		Status:      "received",
		TotalAmount: total,
	}
	if now.Sub(day) < 120*24*time.Hour && rng.IntN(2) == 0 {
		p.DueAmount = total
	}
	return p
}
