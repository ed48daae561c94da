package analytics

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

// TimelinePoint is one bucket of the income/expense timeline.
type TimelinePoint struct {
	Date              string  `json:"date"`
	Income            float64 `json:"income"`
	Expense           float64 `json:"expense"`
	Profit            float64 `json:"profit"`
	Margin            float64 `json:"margin"`
	CumulativeIncome  float64 `json:"cumulativeIncome"`
	CumulativeExpense float64 `json:"cumulativeExpense"`
	NetCashFlow       float64 `json:"netCashFlow"`
}

// TimelineSummary totals the timeline.
type TimelineSummary struct {
	TotalIncome  float64 `json:"totalIncome"`
	TotalExpense float64 `json:"totalExpense"`
	TotalProfit  float64 `json:"totalProfit"`
	AvgMargin    float64 `json:"avgMargin"`
}

// TimelineReport is the bucketed chart report.
type TimelineReport struct {
	Interval string          `json:"interval"`
	Timeline []TimelinePoint `json:"timeline"`
	Summary  TimelineSummary `json:"summary"`
}

// Timeline buckets income (active sales) and expense (active purchases) over
// the window. Empty buckets are emitted with zeros.
func (s *Service) Timeline(ctx context.Context, p Params) (TimelineReport, error) {
	req, err := s.resolve(p)
	if err != nil {
		return TimelineReport{}, err
	}
	granularity, err := ResolveInterval(p.Interval, req.window)
	if err != nil {
		return TimelineReport{}, err
	}
	return cached(ctx, s, "timeline", req, []string{string(granularity)}, func(ctx context.Context) (TimelineReport, error) {
		return s.buildTimeline(ctx, req, granularity)
	})
}

func (s *Service) buildTimeline(ctx context.Context, req request, granularity pipeline.Granularity) (TimelineReport, error) {
	var income, expense []pipeline.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.aggregate(gctx, s.scoped(pipeline.SourceSales, req.scope, req.window).
			Bucket(granularity, s.loc).
			Sum("amount", pipeline.FieldTotalAmount))
		income = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.aggregate(gctx, s.scoped(pipeline.SourcePurchases, req.scope, req.window).
			Bucket(granularity, s.loc).
			Sum("amount", pipeline.FieldTotalAmount))
		expense = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return TimelineReport{}, err
	}
	return assembleTimeline(granularity, pipeline.Buckets(req.window.Start, req.window.End, granularity, s.loc), pipeline.Index(income), pipeline.Index(expense)), nil
}

func assembleTimeline(granularity pipeline.Granularity, buckets []time.Time, income, expense map[int64]pipeline.Row) TimelineReport {
	report := TimelineReport{Interval: string(granularity), Timeline: make([]TimelinePoint, 0, len(buckets))}
	var cumIncome, cumExpense, marginSum float64
	marginBuckets := 0
	for _, bucket := range buckets {
		in := income[bucket.Unix()].Float("amount")
		out := expense[bucket.Unix()].Float("amount")
		profit := in - out
		cumIncome += in
		cumExpense += out
		margin := Margin(profit, in)
		if !almostZero(in) {
			marginSum += margin
			marginBuckets++
		}
		report.Timeline = append(report.Timeline, TimelinePoint{
			Date:              pipeline.Label(bucket, granularity),
			Income:            Round2(in),
			Expense:           Round2(out),
			Profit:            Round2(profit),
			Margin:            margin,
			CumulativeIncome:  Round2(cumIncome),
			CumulativeExpense: Round2(cumExpense),
			NetCashFlow:       Round2(cumIncome - cumExpense),
		})
	}
	report.Summary = TimelineSummary{
		TotalIncome:  Round2(cumIncome),
		TotalExpense: Round2(cumExpense),
		TotalProfit:  Round2(cumIncome - cumExpense),
		AvgMargin:    Round1(SafeDiv(marginSum, float64(marginBuckets))),
	}
	return report
}

// ExportRows renders the timeline report as a header row plus one row per
// bucket and a trailing totals row.
func (s *Service) ExportRows(ctx context.Context, p Params) ([][]string, error) {
	report, err := s.Timeline(ctx, p)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(report.Timeline)+2)
	rows = append(rows, []string{"date", "income", "expense", "profit", "margin", "cumulative_income", "cumulative_expense", "net_cash_flow"})
	for _, point := range report.Timeline {
		rows = append(rows, []string{
			point.Date,
			formatAmount(point.Income),
			formatAmount(point.Expense),
			formatAmount(point.Profit),
			strconv.FormatFloat(point.Margin, 'f', 1, 64),
			formatAmount(point.CumulativeIncome),
			formatAmount(point.CumulativeExpense),
			formatAmount(point.NetCashFlow),
		})
	}
	rows = append(rows, []string{
		"total",
		formatAmount(report.Summary.TotalIncome),
		formatAmount(report.Summary.TotalExpense),
		formatAmount(report.Summary.TotalProfit),
		strconv.FormatFloat(report.Summary.AvgMargin, 'f', 1, 64),
		"", "", "",
	})
	return rows, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
