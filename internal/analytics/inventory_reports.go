package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

const day = 24 * time.Hour

// MarketBasket mines product pairs from active sales in the six months ending
// at the window end.
func (s *Service) MarketBasket(ctx context.Context, p Params, opts BasketOptions) ([]ProductPair, error) {
	req, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	extras := []string{itoa(opts.MinSupport), itoa(opts.TopK)}
	return cached(ctx, s, "basket", req, extras, func(ctx context.Context) ([]ProductPair, error) {
		lookback := monthsBack(req.window, basketLookbackMonths)
		var (
			sales    []SaleTransaction
			products []Product
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			sales, err = s.repo.Sales(gctx, RecordFilter{Scope: req.scope, Window: lookback})
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
		return MinePairs(basketsFrom(sales, lookback), productNames(products), opts), nil
	})
}

// DeadStock lists stocked products without sales in the trailing threshold
// days ending at the window end. thresholdDays <= 0 uses 90.
func (s *Service) DeadStock(ctx context.Context, p Params, thresholdDays int) ([]DeadStockItem, error) {
	req, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	if thresholdDays <= 0 {
		thresholdDays = deadStockDays
	}
	return cached(ctx, s, "dead_stock", req, []string{itoa(thresholdDays)}, func(ctx context.Context) ([]DeadStockItem, error) {
		lookback := req.window.Lookback(time.Duration(thresholdDays) * day)
		var (
			sold     []pipeline.Row
			products []Product
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			rows, err := s.aggregate(gctx, s.scoped(pipeline.SourceSaleItems, req.scope, lookback).
				By(pipeline.FieldProductID).
				Count("lines"))
			sold = rows
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
		recent := make(map[string]struct{}, len(sold))
		for _, row := range sold {
			recent[row.Key] = struct{}{}
		}
		return FindDeadStock(products, recent, req.scope.BranchID, thresholdDays), nil
	})
}

// StockoutRisk projects days until stockout from 30-day sales velocity.
func (s *Service) StockoutRisk(ctx context.Context, p Params) ([]StockoutItem, error) {
	req, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, "stockout", req, nil, func(ctx context.Context) ([]StockoutItem, error) {
		lookback := req.window.Lookback(velocityDays * day)
		var (
			sold     []pipeline.Row
			products []Product
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			rows, err := s.aggregate(gctx, s.scoped(pipeline.SourceSaleItems, req.scope, lookback).
				By(pipeline.FieldProductID).
				Sum("units", pipeline.FieldQuantity))
			sold = rows
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
		units := make(map[string]float64, len(sold))
		for _, row := range sold {
			units[row.Key] = row.Float("units")
		}
		return ProjectStockouts(products, units, req.scope.BranchID, velocityDays, stockoutHorizon), nil
	})
}

// DebtorAging buckets open receivables by days overdue as of now.
func (s *Service) DebtorAging(ctx context.Context, p Params) ([]AgingBucket, error) {
	req, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	asOf := s.now()
	return cached(ctx, s, "aging_debtors", req, []string{asOf.In(s.loc).Format(dateLayout)}, func(ctx context.Context) ([]AgingBucket, error) {
		sales, err := s.repo.Sales(ctx, RecordFilter{Scope: req.scope, OnlyOpen: true})
		if err != nil {
			return nil, err
		}
		return BucketAging(receivableItems(sales), asOf), nil
	})
}

// CreditorAging buckets open payables by days overdue as of now.
func (s *Service) CreditorAging(ctx context.Context, p Params) ([]AgingBucket, error) {
	req, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	asOf := s.now()
	return cached(ctx, s, "aging_creditors", req, []string{asOf.In(s.loc).Format(dateLayout)}, func(ctx context.Context) ([]AgingBucket, error) {
		purchases, err := s.repo.Purchases(ctx, RecordFilter{Scope: req.scope, OnlyOpen: true})
		if err != nil {
			return nil, err
		}
		return BucketAging(payableItems(purchases), asOf), nil
	})
}

func productNames(products []Product) map[string]string {
	names := make(map[string]string, len(products))
	for _, product := range products {
		names[product.ID] = product.Name
	}
	return names
}
