package analytichttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/export"
	"github.com/odyssey-erp/odyssey-analytics/internal/platform/httpx"
)

// TenantHeader carries the tenant resolved by the upstream gateway.
const TenantHeader = "X-Tenant-ID"

const (
	defaultRequestTimeout = 10 * time.Second
	defaultExportLimit    = 10
)

// Service is the report façade used by the handler.
type Service interface {
	ExecutiveStats(ctx context.Context, p analytics.Params) (analytics.ExecutiveStats, error)
	Timeline(ctx context.Context, p analytics.Params) (analytics.TimelineReport, error)
	Forecast(ctx context.Context, p analytics.Params) (analytics.ForecastReport, error)
	AdvancedForecast(ctx context.Context, p analytics.Params) (analytics.AdvancedForecastReport, error)
	RFMSegments(ctx context.Context, p analytics.Params) (analytics.RFMSegments, error)
	CohortMatrix(ctx context.Context, p analytics.Params) ([]analytics.CohortCell, error)
	MarketBasket(ctx context.Context, p analytics.Params, opts analytics.BasketOptions) ([]analytics.ProductPair, error)
	DeadStock(ctx context.Context, p analytics.Params, thresholdDays int) ([]analytics.DeadStockItem, error)
	StockoutRisk(ctx context.Context, p analytics.Params) ([]analytics.StockoutItem, error)
	DebtorAging(ctx context.Context, p analytics.Params) ([]analytics.AgingBucket, error)
	CreditorAging(ctx context.Context, p analytics.Params) ([]analytics.AgingBucket, error)
	TopProducts(ctx context.Context, p analytics.Params, limit int) ([]analytics.TopProduct, error)
	Efficiency(ctx context.Context, p analytics.Params) (analytics.EfficiencyReport, error)
	PaymentMethods(ctx context.Context, p analytics.Params) ([]analytics.PaymentMethodSummary, error)
	PaymentBehavior(ctx context.Context, p analytics.Params) (analytics.PaymentBehaviorReport, error)
	CreditExposure(ctx context.Context, p analytics.Params) ([]analytics.CreditExposure, error)
	ExportRows(ctx context.Context, p analytics.Params) ([][]string, error)
	Invalidate(ctx context.Context, tenantID string) error
	Location() *time.Location
}

// Handler serves analytics reports as JSON.
type Handler struct {
	logger      *slog.Logger
	service     Service
	timeout     time.Duration
	exportLimit int
	csvPool     sync.Pool
	now         func() time.Time
}

// Option customises a Handler.
type Option func(*Handler)

// WithRequestTimeout bounds every report computation.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithExportLimit sets the CSV exports allowed per tenant and minute.
func WithExportLimit(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.exportLimit = n
		}
	}
}

// WithNow overrides the handler clock for testing.
func WithNow(fn func() time.Time) Option {
	return func(h *Handler) {
		if fn != nil {
			h.now = fn
		}
	}
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service Service, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:      logger,
		service:     service,
		timeout:     defaultRequestTimeout,
		exportLimit: defaultExportLimit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// plain adapts a report method that takes no query options.
func plain[T any](fn func(context.Context, analytics.Params) (T, error)) func(context.Context, analytics.Params, url.Values) (T, error) {
	return func(ctx context.Context, p analytics.Params, _ url.Values) (T, error) {
		return fn(ctx, p)
	}
}

func serve[T any](h *Handler, report string, load func(context.Context, analytics.Params, url.Values) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		out, err := load(ctx, paramsFrom(r), r.URL.Query())
		if err != nil {
			h.fail(w, report, err)
			return
		}
		httpx.JSON(w, http.StatusOK, out)
	}
}

func (h *Handler) topProducts(ctx context.Context, p analytics.Params, q url.Values) ([]analytics.TopProduct, error) {
	limit, err := intParam(q, "limit")
	if err != nil {
		return nil, err
	}
	return h.service.TopProducts(ctx, p, limit)
}

func (h *Handler) marketBasket(ctx context.Context, p analytics.Params, q url.Values) ([]analytics.ProductPair, error) {
	minSupport, err := intParam(q, "minSupport")
	if err != nil {
		return nil, err
	}
	topK, err := intParam(q, "topK")
	if err != nil {
		return nil, err
	}
	return h.service.MarketBasket(ctx, p, analytics.BasketOptions{MinSupport: minSupport, TopK: topK})
}

func (h *Handler) deadStock(ctx context.Context, p analytics.Params, q url.Values) ([]analytics.DeadStockItem, error) {
	days, err := intParam(q, "thresholdDays")
	if err != nil {
		return nil, err
	}
	return h.service.DeadStock(ctx, p, days)
}

// aging serves buckets as JSON, or as CSV when format=csv.
func (h *Handler) aging(report string, fn func(context.Context, analytics.Params) ([]analytics.AgingBucket, error)) http.HandlerFunc {
	asJSON := serve(h, report, plain(fn))
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(r.URL.Query().Get("format"), "csv") {
			asJSON(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		buckets, err := fn(ctx, paramsFrom(r))
		if err != nil {
			h.fail(w, report, err)
			return
		}
		h.writeCSV(w, report+".csv", func(buf *bytes.Buffer) error {
			return export.WriteAgingCSV(buf, buckets)
		})
	}
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	p := paramsFrom(r)
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rows, err := h.service.ExportRows(ctx, p)
	if err != nil {
		h.fail(w, "timeline", err)
		return
	}
	window, err := analytics.ResolveWindow(p.StartDate, p.EndDate, h.now(), h.service.Location())
	if err != nil {
		h.fail(w, "timeline", err)
		return
	}
	h.writeCSV(w, export.Filename("timeline", window), func(buf *bytes.Buffer) error {
		return export.WriteRows(buf, rows)
	})
}

func (h *Handler) writeCSV(w http.ResponseWriter, filename string, write func(*bytes.Buffer) error) {
	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := write(buf); err != nil {
		h.fail(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

type invalidateResponse struct {
	TenantID string `json:"tenantId"`
	Status   string `json:"status"`
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	if err := h.service.Invalidate(r.Context(), tenant); err != nil {
		h.fail(w, "invalidate", err)
		return
	}
	h.logger.Info("analytics cache invalidated", slog.String("tenant", tenant))
	httpx.JSON(w, http.StatusAccepted, invalidateResponse{TenantID: tenant, Status: "invalidated"})
}

func (h *Handler) fail(w http.ResponseWriter, report string, err error) {
	switch {
	case analytics.IsValidation(err):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("analytics report timed out", slog.String("report", report), slog.Any("error", err))
		httpx.RespondError(w, err)
	case errors.Is(err, analytics.ErrUpstreamQuery):
		h.logger.Error("analytics report failed", slog.String("report", report), slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: report %s", httpx.ErrUpstream, report))
	default:
		h.logError(report, err)
		httpx.RespondError(w, err)
	}
}

func (h *Handler) logError(msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
}

func tenantFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(TenantHeader))
}

func paramsFrom(r *http.Request) analytics.Params {
	q := r.URL.Query()
	return analytics.Params{
		TenantID:  tenantFrom(r),
		BranchID:  strings.TrimSpace(q.Get("branchId")),
		StartDate: strings.TrimSpace(q.Get("startDate")),
		EndDate:   strings.TrimSpace(q.Get("endDate")),
		Interval:  strings.TrimSpace(q.Get("interval")),
	}
}

// intParam reads an optional non-negative integer. Absent means zero, which
// the service treats as its default.
func intParam(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", analytics.ErrInvalidParams, name)
	}
	return v, nil
}
