package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	WebhookRequests *prometheus.CounterVec // labels: provider, outcome={accepted,forbidden,bad_request,error}
	JobsEnqueued    prometheus.Counter
	JobsProcessed   *prometheus.CounterVec // labels: outcome={stored,duplicate,dropped,retried,deadlettered}
	DedupHits       prometheus.Counter
	PipelineRunning prometheus.Gauge

	JobProcessingDuration prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeEnabled  prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		WebhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_ingest",
			Name:      "webhook_requests_total",
			Help:      "Inbound webhook requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		JobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_ingest",
			Name:      "jobs_enqueued_total",
			Help:      "Total jobs accepted onto the ingestion queue.",
		}),
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_ingest",
			Name:      "jobs_processed_total",
			Help:      "Dequeued jobs by processing outcome.",
		}, []string{"outcome"}),
		DedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_ingest",
			Name:      "dedup_hits_total",
			Help:      "Jobs short-circuited because the event was already stored.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "disaster_ingest",
			Name:      "pipeline_running",
			Help:      "1 when the consumer loop is active, 0 when shut down.",
		}),
		JobProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "disaster_ingest",
			Name:      "job_processing_duration_seconds",
			Help:      "Duration of a complete dequeue-process-commit cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_ingest",
			Name:      "geocode_requests_total",
			Help:      "Reverse-geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_ingest",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "disaster_ingest",
			Name:      "geocode_enabled",
			Help:      "1 when geocoding enrichment is enabled, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.WebhookRequests,
		m.JobsEnqueued,
		m.JobsProcessed,
		m.DedupHits,
		m.PipelineRunning,
		m.JobProcessingDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		WebhookRequests:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "disaster_ingest", Name: "webhook_requests_total"}, []string{"provider", "outcome"}),
		JobsEnqueued:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "disaster_ingest", Name: "jobs_enqueued_total"}),
		JobsProcessed:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "disaster_ingest", Name: "jobs_processed_total"}, []string{"outcome"}),
		DedupHits:             prometheus.NewCounter(prometheus.CounterOpts{Namespace: "disaster_ingest", Name: "dedup_hits_total"}),
		PipelineRunning:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "disaster_ingest", Name: "pipeline_running"}),
		JobProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "disaster_ingest", Name: "job_processing_duration_seconds"}),
		GeocodeRequests:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "disaster_ingest", Name: "geocode_requests_total"}, []string{"outcome"}),
		GeocodeCache:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "disaster_ingest", Name: "geocode_cache_total"}, []string{"result"}),
		GeocodeEnabled:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "disaster_ingest", Name: "geocode_enabled"}),
	}
}
