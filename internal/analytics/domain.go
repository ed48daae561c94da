package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

// Record lifecycle states.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusVoid      = "void"
)

// Payment directions.
const (
	DirectionInflow  = "inflow"
	DirectionOutflow = "outflow"
)

// SaleItem is one line of a sale. CostAtSale is the unit cost snapshot taken
// when the sale was recorded.
type SaleItem struct {
	ProductID  string
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	CostAtSale decimal.Decimal
	LineTotal  decimal.Decimal
}

// Profit returns quantity * (unit price - cost at sale).
func (i SaleItem) Profit() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice.Sub(i.CostAtSale))
}

// Cost returns quantity * cost at sale.
func (i SaleItem) Cost() decimal.Decimal {
	return i.Quantity.Mul(i.CostAtSale)
}

// SaleTransaction is a recorded sale.
type SaleTransaction struct {
	ID          string
	TenantID    string
	BranchID    string
	CustomerID  string
	Date        time.Time
	DueDate     *time.Time
	Status      string
	Items       []SaleItem
	TotalAmount decimal.Decimal
	DueAmount   decimal.Decimal
}

// Excluded reports whether the sale is cancelled or void.
func (s SaleTransaction) Excluded() bool {
	return pipeline.Excluded(s.Status)
}

// PurchaseTransaction is a recorded purchase from a supplier.
type PurchaseTransaction struct {
	ID          string
	TenantID    string
	BranchID    string
	SupplierID  string
	Date        time.Time
	DueDate     *time.Time
	Status      string
	TotalAmount decimal.Decimal
	DueAmount   decimal.Decimal
}

// Excluded reports whether the purchase is cancelled or void.
func (p PurchaseTransaction) Excluded() bool {
	return pipeline.Excluded(p.Status)
}

// PaymentRecord is money moving in or out of a branch.
type PaymentRecord struct {
	ID        string
	TenantID  string
	BranchID  string
	Direction string
	Method    string
	Amount    decimal.Decimal
	Date      time.Time
	InvoiceID string
}

// AccountingEntry is a ledger posting. Entries referencing a sale invoice are
// used to derive days-to-pay.
type AccountingEntry struct {
	ID            string
	TenantID      string
	BranchID      string
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	ReferenceType string
	ReferenceID   string
	Date          time.Time
	CustomerID    string
	InvoiceID     string
}

// Customer is a tenant's customer account.
type Customer struct {
	ID                 string
	TenantID           string
	Name               string
	OutstandingBalance decimal.Decimal
	CreditLimit        decimal.Decimal
	CreatedAt          time.Time
}

// BranchStock is a product's stock position in one branch.
type BranchStock struct {
	BranchID     string
	Quantity     decimal.Decimal
	ReorderLevel decimal.Decimal
}

// Product is a sellable item with per-branch inventory.
type Product struct {
	ID            string
	TenantID      string
	Name          string
	PurchasePrice decimal.Decimal
	SellingPrice  decimal.Decimal
	Inventory     []BranchStock
}

// Stock returns the quantity on hand in branchID, or across all branches when
// branchID is empty.
func (p Product) Stock(branchID string) decimal.Decimal {
	total := decimal.Zero
	for _, stock := range p.Inventory {
		if branchID != "" && stock.BranchID != branchID {
			continue
		}
		total = total.Add(stock.Quantity)
	}
	return total
}

// ReorderLevel returns the reorder threshold for branchID, summed across
// branches when branchID is empty.
func (p Product) ReorderLevel(branchID string) decimal.Decimal {
	total := decimal.Zero
	for _, stock := range p.Inventory {
		if branchID != "" && stock.BranchID != branchID {
			continue
		}
		total = total.Add(stock.ReorderLevel)
	}
	return total
}

// Scope identifies a tenant and optional branch.
type Scope struct {
	TenantID string
	BranchID string
}
