package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

// RFMSegments scores customers over the 365 days ending at the window end.
func (s *Service) RFMSegments(ctx context.Context, p Params) (RFMSegments, error) {
	req, err := s.resolve(p)
	if err != nil {
		return RFMSegments{}, err
	}
	return cached(ctx, s, "rfm", req, nil, func(ctx context.Context) (RFMSegments, error) {
		lookback := req.window.Lookback(rfmLookback)
		rows, err := s.aggregate(ctx, s.scoped(pipeline.SourceSales, req.scope, lookback).
			By(pipeline.FieldCustomerID).
			Count("purchases").
			Sum("spend", pipeline.FieldTotalAmount).
			MaxTime("last"))
		if err != nil {
			return RFMSegments{}, err
		}
		activity := make([]CustomerActivity, 0, len(rows))
		for _, row := range rows {
			activity = append(activity, CustomerActivity{
				CustomerID:   row.Key,
				LastPurchase: row.Time("last"),
				Purchases:    row.Int("purchases"),
				Spend:        row.Float("spend"),
			})
		}
		return SegmentCustomers(activity, req.window.End), nil
	})
}

// CohortMatrix builds the retention matrix for cohorts that started within the
// twelve months ending at the window end.
func (s *Service) CohortMatrix(ctx context.Context, p Params) ([]CohortCell, error) {
	req, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, "cohort", req, nil, func(ctx context.Context) ([]CohortCell, error) {
		lookback := req.window.TrailingMonths(cohortLookbackMonths)
		var firsts, monthly []pipeline.Row
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			// First purchase ever, so the lower bound stays open.
			rows, err := s.aggregate(gctx, pipeline.From(pipeline.SourceSales).
				Scope(req.scope.TenantID, req.scope.BranchID).
				Between(time.Time{}, req.window.End).
				By(pipeline.FieldCustomerID).
				MinTime("first"))
			firsts = rows
			return err
		})
		g.Go(func() error {
			rows, err := s.aggregate(gctx, s.scoped(pipeline.SourceSales, req.scope, Window{Start: lookback.Start, End: req.window.End}).
				Bucket(pipeline.GranularityMonth, s.loc).
				By(pipeline.FieldCustomerID).
				Count("orders"))
			monthly = rows
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		first := make(map[string]time.Time, len(firsts))
		for _, row := range firsts {
			first[row.Key] = row.Time("first")
		}
		activity := make([]MonthlyActivity, 0, len(monthly))
		for _, row := range monthly {
			activity = append(activity, MonthlyActivity{CustomerID: row.Key, Month: row.Bucket})
		}
		return BuildCohortMatrix(first, activity, lookback.Start, s.loc), nil
	})
}
