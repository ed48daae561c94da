package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes report caching and build latency. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	hits        *prometheus.CounterVec
	misses      *prometheus.CounterVec
	errors      *prometheus.CounterVec
	buildTiming *prometheus.HistogramVec
}

// NewMetrics registers the analytics collectors on reg, reusing collectors that
// are already registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_analytics_cache_hits_total",
			Help: "Number of analytics reports served from cache.",
		}, []string{"report"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_analytics_cache_miss_total",
			Help: "Number of analytics reports computed on a cache miss.",
		}, []string{"report"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_analytics_cache_errors_total",
			Help: "Number of cache backend failures degraded to a miss or no-op.",
		}, []string{"op"}),
		buildTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_analytics_report_build_duration_seconds",
			Help:    "Duration required to build analytics reports.",
			Buckets: prometheus.DefBuckets,
		}, []string{"report", "status"}),
	}
	var err error
	m.hits, err = registerCounter(reg, m.hits)
	if err != nil {
		return nil, err
	}
	m.misses, err = registerCounter(reg, m.misses)
	if err != nil {
		return nil, err
	}
	m.errors, err = registerCounter(reg, m.errors)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(m.buildTiming); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("analytics metrics: unexpected collector type %T", already.ExistingCollector)
		}
		m.buildTiming = existing
	}
	return m, nil
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("analytics metrics: unexpected collector type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

func (m *Metrics) cacheHit(report string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(report).Inc()
}

func (m *Metrics) cacheMiss(report string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(report).Inc()
}

func (m *Metrics) cacheError(op string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(op).Inc()
}

func (m *Metrics) observeBuild(report string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.buildTiming.WithLabelValues(report, status).Observe(d.Seconds())
}
