package analytichttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-analytics/internal/platform/httpx"
)

// MountRoutes registers the analytics endpoints under /analytics.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(h.exportLimit, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.RespondError(w, httpx.ErrTooMany)
		}),
	)

	svc := h.service
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/stats", serve(h, "stats", plain(svc.ExecutiveStats)))
		r.Get("/timeline", serve(h, "timeline", plain(svc.Timeline)))
		r.Get("/forecast", serve(h, "forecast", plain(svc.Forecast)))
		r.Get("/forecast/advanced", serve(h, "forecast_advanced", plain(svc.AdvancedForecast)))
		r.Get("/segments/rfm", serve(h, "rfm", plain(svc.RFMSegments)))
		r.Get("/cohorts", serve(h, "cohort", plain(svc.CohortMatrix)))
		r.Get("/basket", serve(h, "basket", h.marketBasket))
		r.Get("/inventory/dead-stock", serve(h, "dead_stock", h.deadStock))
		r.Get("/inventory/stockout", serve(h, "stockout", plain(svc.StockoutRisk)))
		r.Get("/aging/debtors", h.aging("aging_debtors", svc.DebtorAging))
		r.Get("/aging/creditors", h.aging("aging_creditors", svc.CreditorAging))
		r.Get("/products/top", serve(h, "top_products", h.topProducts))
		r.Get("/efficiency", serve(h, "efficiency", plain(svc.Efficiency)))
		r.Get("/payments/methods", serve(h, "payment_methods", plain(svc.PaymentMethods)))
		r.Get("/payments/behavior", serve(h, "payment_behavior", plain(svc.PaymentBehavior)))
		r.Get("/customers/credit-exposure", serve(h, "credit_exposure", plain(svc.CreditExposure)))
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/export.csv", h.handleExportCSV)
		})
		r.Post("/cache/invalidate", h.handleInvalidate)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if tenant := tenantFrom(r); tenant != "" {
		return "tenant:" + tenant, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
