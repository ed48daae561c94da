package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
	"github.com/odyssey-erp/odyssey-analytics/internal/platform/db"
)

// Postgres reads records and runs pipeline queries against PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps a pgx pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Aggregate compiles q to SQL and scans the grouped rows.
func (p *Postgres) Aggregate(ctx context.Context, q pipeline.Query) ([]pipeline.Row, error) {
	c, err := compile(q)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, c.sql, c.args...)
	if err != nil {
		return nil, fmt.Errorf("store: aggregate %s: %w", q.Source, err)
	}
	defer rows.Close()

	loc := q.Group.Loc()
	var out []pipeline.Row
	for rows.Next() {
		var (
			bucket pgtype.Timestamp
			key    pgtype.Text
		)
		dest := make([]any, 0, len(q.Measures)+2)
		if c.bucketed {
			dest = append(dest, &bucket)
		}
		if c.keyed {
			dest = append(dest, &key)
		}
		numerics := make([]pgtype.Numeric, len(q.Measures))
		times := make([]pgtype.Timestamptz, len(q.Measures))
		for i, m := range q.Measures {
			switch m.Op {
			case pipeline.OpMinTime, pipeline.OpMaxTime:
				dest = append(dest, &times[i])
			default:
				dest = append(dest, &numerics[i])
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", q.Source, err)
		}
		row := pipeline.Row{
			Values: make(map[string]decimal.Decimal, len(q.Measures)),
			Times:  make(map[string]time.Time),
		}
		if c.bucketed && bucket.Valid {
			// date_trunc returns wall time in loc.
			w := bucket.Time
			local := time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), 0, loc)
			row.Bucket = pipeline.Truncate(local, q.Group.Bucket, loc)
		}
		if c.keyed {
			row.Key = key.String
		}
		for i, m := range q.Measures {
			switch m.Op {
			case pipeline.OpMinTime, pipeline.OpMaxTime:
				if times[i].Valid {
					row.Times[m.Name] = times[i].Time
				}
			default:
				row.Values[m.Name] = numericToDecimal(numerics[i])
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: aggregate %s: %w", q.Source, err)
	}
	pipeline.SortRows(out, q.Order)
	return out, nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func nullableTime(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// recordQuery appends scope, window and open-item predicates to base.
func recordQuery(base, alias, ts string, f analytics.RecordFilter, status bool) (string, []any) {
	var args argList
	where := []string{alias + ".tenant_id::text = " + args.add(f.TenantID)}
	if f.BranchID != "" {
		where = append(where, alias+".branch_id::text = "+args.add(f.BranchID))
	}
	if !f.Window.Start.IsZero() {
		where = append(where, ts+" >= "+args.add(f.Window.Start))
	}
	if !f.Window.End.IsZero() {
		where = append(where, ts+" < "+args.add(f.Window.End))
	}
	if f.OnlyOpen && status {
		where = append(where, alias+".due_amount > 0", "lower("+alias+".status) NOT IN "+excludedStatuses)
	}
	return base + " WHERE " + strings.Join(where, " AND ") + " ORDER BY " + ts + ", " + alias + ".id", args.args
}

const salesSelect = `SELECT s.id::text, s.tenant_id::text, COALESCE(s.branch_id::text, ''), COALESCE(s.customer_id::text, ''),
	s.sold_at, s.due_date, s.status, s.total_amount, s.due_amount
FROM sales s`

const saleItemsSelect = `SELECT i.sale_id::text, i.product_id::text, i.quantity, i.unit_price, i.cost_at_sale, i.line_total
FROM sale_items i
WHERE i.sale_id::text = ANY($1)
ORDER BY i.sale_id, i.product_id`

// Sales loads sales with their items from one read-only snapshot. Open-item
// queries skip the items.
func (p *Postgres) Sales(ctx context.Context, f analytics.RecordFilter) ([]analytics.SaleTransaction, error) {
	var sales []analytics.SaleTransaction
	err := db.ReadOnly(ctx, p.pool, func(tx pgx.Tx) error {
		var err error
		sales, err = querySales(ctx, tx, f)
		if err != nil || f.OnlyOpen || len(sales) == 0 {
			return err
		}
		return attachItems(ctx, tx, sales)
	})
	if err != nil {
		return nil, err
	}
	return sales, nil
}

func querySales(ctx context.Context, tx pgx.Tx, f analytics.RecordFilter) ([]analytics.SaleTransaction, error) {
	sql, args := recordQuery(salesSelect, "s", "s.sold_at", f, true)
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: sales: %w", err)
	}
	sales, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.SaleTransaction, error) {
		var (
			s          analytics.SaleTransaction
			due        pgtype.Timestamptz
			total, owe pgtype.Numeric
		)
		if err := row.Scan(&s.ID, &s.TenantID, &s.BranchID, &s.CustomerID, &s.Date, &due, &s.Status, &total, &owe); err != nil {
			return s, err
		}
		s.DueDate = nullableTime(due)
		s.TotalAmount = numericToDecimal(total)
		s.DueAmount = numericToDecimal(owe)
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: sales: %w", err)
	}
	return sales, nil
}

func attachItems(ctx context.Context, tx pgx.Tx, sales []analytics.SaleTransaction) error {
	index := make(map[string]int, len(sales))
	ids := make([]string, len(sales))
	for i, s := range sales {
		index[s.ID] = i
		ids[i] = s.ID
	}
	rows, err := tx.Query(ctx, saleItemsSelect, ids)
	if err != nil {
		return fmt.Errorf("store: sale items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			saleID                      string
			item                        analytics.SaleItem
			qty, price, cost, lineTotal pgtype.Numeric
		)
		if err := rows.Scan(&saleID, &item.ProductID, &qty, &price, &cost, &lineTotal); err != nil {
			return fmt.Errorf("store: scan sale item: %w", err)
		}
		item.Quantity = numericToDecimal(qty)
		item.UnitPrice = numericToDecimal(price)
		item.CostAtSale = numericToDecimal(cost)
		item.LineTotal = numericToDecimal(lineTotal)
		if i, ok := index[saleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: sale items: %w", err)
	}
	return nil
}

const purchasesSelect = `SELECT p.id::text, p.tenant_id::text, COALESCE(p.branch_id::text, ''), COALESCE(p.supplier_id::text, ''),
	p.purchased_at, p.due_date, p.status, p.total_amount, p.due_amount
FROM purchases p`

// Purchases loads purchases matching the filter.
func (p *Postgres) Purchases(ctx context.Context, f analytics.RecordFilter) ([]analytics.PurchaseTransaction, error) {
	sql, args := recordQuery(purchasesSelect, "p", "p.purchased_at", f, true)
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: purchases: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.PurchaseTransaction, error) {
		var (
			pt         analytics.PurchaseTransaction
			due        pgtype.Timestamptz
			total, owe pgtype.Numeric
		)
		if err := row.Scan(&pt.ID, &pt.TenantID, &pt.BranchID, &pt.SupplierID, &pt.Date, &due, &pt.Status, &total, &owe); err != nil {
			return pt, err
		}
		pt.DueDate = nullableTime(due)
		pt.TotalAmount = numericToDecimal(total)
		pt.DueAmount = numericToDecimal(owe)
		return pt, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: purchases: %w", err)
	}
	return out, nil
}

const productsSelect = `SELECT pr.id::text, pr.tenant_id::text, pr.name, pr.purchase_price, pr.selling_price,
	COALESCE(st.branch_id::text, ''), COALESCE(st.quantity, 0), COALESCE(st.reorder_level, 0)
FROM products pr
LEFT JOIN product_stock st ON st.product_id = pr.id
WHERE pr.tenant_id::text = $1
ORDER BY pr.id, st.branch_id`

// Products loads the tenant's products with per-branch stock.
func (p *Postgres) Products(ctx context.Context, scope analytics.Scope) ([]analytics.Product, error) {
	rows, err := p.pool.Query(ctx, productsSelect, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("store: products: %w", err)
	}
	defer rows.Close()
	var out []analytics.Product
	index := make(map[string]int)
	for rows.Next() {
		var (
			product                    analytics.Product
			branchID                   string
			buy, sell, qty, reorderLvl pgtype.Numeric
		)
		if err := rows.Scan(&product.ID, &product.TenantID, &product.Name, &buy, &sell, &branchID, &qty, &reorderLvl); err != nil {
			return nil, fmt.Errorf("store: scan product: %w", err)
		}
		i, ok := index[product.ID]
		if !ok {
			product.PurchasePrice = numericToDecimal(buy)
			product.SellingPrice = numericToDecimal(sell)
			out = append(out, product)
			i = len(out) - 1
			index[product.ID] = i
		}
		if branchID != "" {
			out[i].Inventory = append(out[i].Inventory, analytics.BranchStock{
				BranchID:     branchID,
				Quantity:     numericToDecimal(qty),
				ReorderLevel: numericToDecimal(reorderLvl),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: products: %w", err)
	}
	return out, nil
}

const customersSelect = `SELECT c.id::text, c.tenant_id::text, c.name, c.outstanding_balance, c.credit_limit, c.created_at
FROM customers c
WHERE c.tenant_id::text = $1
ORDER BY c.id`

// Customers loads the tenant's customers.
func (p *Postgres) Customers(ctx context.Context, tenantID string) ([]analytics.Customer, error) {
	rows, err := p.pool.Query(ctx, customersSelect, tenantID)
	if err != nil {
		return nil, fmt.Errorf("store: customers: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.Customer, error) {
		var (
			c                  analytics.Customer
			outstanding, limit pgtype.Numeric
		)
		if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &outstanding, &limit, &c.CreatedAt); err != nil {
			return c, err
		}
		c.OutstandingBalance = numericToDecimal(outstanding)
		c.CreditLimit = numericToDecimal(limit)
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: customers: %w", err)
	}
	return out, nil
}

const ledgerSelect = `SELECT e.id::text, e.tenant_id::text, COALESCE(e.branch_id::text, ''), e.debit, e.credit,
	e.reference_type, COALESCE(e.reference_id::text, ''), e.posted_at, COALESCE(e.customer_id::text, ''), COALESCE(e.invoice_id::text, '')
FROM ledger_entries e`

// LedgerEntries loads ledger postings matching the filter.
func (p *Postgres) LedgerEntries(ctx context.Context, f analytics.RecordFilter) ([]analytics.AccountingEntry, error) {
	sql, args := recordQuery(ledgerSelect, "e", "e.posted_at", f, false)
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: ledger entries: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.AccountingEntry, error) {
		var (
			e             analytics.AccountingEntry
			debit, credit pgtype.Numeric
		)
		if err := row.Scan(&e.ID, &e.TenantID, &e.BranchID, &debit, &credit, &e.ReferenceType, &e.ReferenceID, &e.Date, &e.CustomerID, &e.InvoiceID); err != nil {
			return e, err
		}
		e.Debit = numericToDecimal(debit)
		e.Credit = numericToDecimal(credit)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: ledger entries: %w", err)
	}
	return out, nil
}

const activeScopesSQL = `SELECT DISTINCT s.tenant_id::text, COALESCE(s.branch_id::text, '')
FROM sales s
WHERE s.sold_at >= $1
ORDER BY 1, 2`

// ActiveScopes lists tenant/branch pairs with sales in the last 90 days, plus
// a tenant-wide scope per tenant.
func (p *Postgres) ActiveScopes(ctx context.Context) ([]analytics.Scope, error) {
	rows, err := p.pool.Query(ctx, activeScopesSQL, time.Now().AddDate(0, 0, -activeScopeDays))
	if err != nil {
		return nil, fmt.Errorf("store: active scopes: %w", err)
	}
	pairs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.Scope, error) {
		var scope analytics.Scope
		err := row.Scan(&scope.TenantID, &scope.BranchID)
		return scope, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: active scopes: %w", err)
	}
	seen := make(map[analytics.Scope]struct{}, len(pairs))
	out := make([]analytics.Scope, 0, len(pairs))
	for _, scope := range pairs {
		for _, candidate := range []analytics.Scope{{TenantID: scope.TenantID}, scope} {
			if _, ok := seen[candidate]; ok {
				continue
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
		}
	}
	sortScopes(out)
	return out, nil
}

const activeScopeDays = 90
