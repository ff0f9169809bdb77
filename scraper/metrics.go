package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the collector run.
type Metrics struct {
	Registry             *prometheus.Registry
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      prometheus.Histogram
	ProductsScrapedTotal prometheus.Counter
	ImagesDownloaded     prometheus.Counter
	ErrorsTotal          *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_requests_total",
			Help: "Total HTTP requests issued, by phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collector_request_duration_seconds",
			Help:    "HTTP request latency for site requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	products := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_products_scraped_total",
			Help: "Total product pages scraped successfully.",
		},
	)
	images := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_images_downloaded_total",
			Help: "Total product images stored locally.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_errors_total",
			Help: "Total collection errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, products, images, errorsTotal)

	return &Metrics{
		Registry:             registry,
		RequestsTotal:        requests,
		RequestDuration:      requestDuration,
		ProductsScrapedTotal: products,
		ImagesDownloaded:     images,
		ErrorsTotal:          errorsTotal,
	}
}

// IncRequest increments the requests total counter for a phase.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncProduct increments the scraped products counter.
func (m *Metrics) IncProduct() {
	if m == nil {
		return
	}
	m.ProductsScrapedTotal.Inc()
}

// IncImage increments the stored images counter.
func (m *Metrics) IncImage() {
	if m == nil {
		return
	}
	m.ImagesDownloaded.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
