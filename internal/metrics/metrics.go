package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the scraper collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	PagesTotal           *prometheus.CounterVec
	ProductsTotal        *prometheus.CounterVec
	SessionsTotal        *prometheus.CounterVec
	NavigationDuration   prometheus.Histogram
	JobsTotal            *prometheus.CounterVec
	JobsRunning          prometheus.Gauge
	EventsPublishedTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_pages_total",
				Help: "Page navigations by page kind and outcome.",
			},
			[]string{"kind", "status"},
		),
		ProductsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_products_total",
				Help: "Product records by outcome (accepted, rejected, discarded) and filter reason.",
			},
			[]string{"outcome", "reason"},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_sessions_total",
				Help: "Browser session creations by status.",
			},
			[]string{"status"},
		),
		NavigationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracker_navigation_duration_seconds",
				Help:    "Duration of page navigations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 15, 30},
			},
		),
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_jobs_total",
				Help: "Finished scrape jobs by final state.",
			},
			[]string{"state"},
		),
		JobsRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracker_jobs_running",
				Help: "Scrape jobs currently running.",
			},
		),
		EventsPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_events_published_total",
				Help: "Job events forwarded to external sinks.",
			},
			[]string{"type", "status"},
		),
	}
}

func (m *Metrics) Page(kind string, ok bool) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(kind, status(ok)).Inc()
}

func (m *Metrics) Product(outcome, reason string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) Session(ok bool) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(status(ok)).Inc()
}

func (m *Metrics) Navigation(seconds float64) {
	if m == nil {
		return
	}
	m.NavigationDuration.Observe(seconds)
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.JobsRunning.Inc()
}

func (m *Metrics) JobFinished(state string) {
	if m == nil {
		return
	}
	m.JobsRunning.Dec()
	m.JobsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) EventPublished(eventType string, ok bool) {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.WithLabelValues(eventType, status(ok)).Inc()
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
