// Package metrics provides Prometheus metrics for the skillboard rating service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Rating engine
	reportsProcessed  prometheus.Counter
	reportsNoop       prometheus.Counter
	reportsFailed     prometheus.Counter
	playersCreated    prometheus.Counter
	playersDecayed    prometheus.Counter
	reportLatency     prometheus.Histogram
	playersTotal      prometheus.Gauge
	messagesDuplicate prometheus.Counter
	messagesIgnored   *prometheus.CounterVec

	// Replay
	rebuildsTotal   *prometheus.CounterVec
	rebuildDuration prometheus.Histogram
	rebuildReports  prometheus.Gauge

	// Mailbox
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors *prometheus.CounterVec
	jobLatency         *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Notifier
	notifications *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "skillboard",
		subsystem:        "rating",
		histogramBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.reportsProcessed = m.counter("reports_processed_total", "Reports applied to the rating store")
	m.reportsNoop = m.counter("reports_noop_total", "Reports that produced no tiers")
	m.reportsFailed = m.counter("reports_failed_total", "Reports whose transaction rolled back")
	m.playersCreated = m.counter("players_created_total", "Players inserted with default ratings")
	m.playersDecayed = m.counter("players_decayed_total", "Inactivity decays applied to absent players")
	m.playersTotal = m.gauge("players_total", "Players currently in the rating store")
	m.messagesDuplicate = m.counter("messages_duplicate_total", "Inbound messages dropped as duplicates")
	m.reportLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "report_latency_milliseconds",
		Help:      "Time to apply one report, in milliseconds",
		Buckets:   m.histogramBuckets,
	})
	m.messagesIgnored = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "messages_ignored_total",
		Help:      "Inbound messages not routed to the engine, by reason",
	}, []string{"reason"})

	m.rebuildsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rebuilds_total",
		Help:      "Full history rebuilds by outcome",
	}, []string{"outcome"})
	m.rebuildDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rebuild_duration_seconds",
		Help:      "Wall-clock duration of a full rebuild",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})
	m.rebuildReports = m.gauge("rebuild_last_reports", "Reports replayed by the most recent rebuild")

	m.queueSize = m.gauge("queue_size", "Jobs waiting in the single-writer mailbox")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the single-writer mailbox")
	m.queueEnqueueErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Rejected enqueue attempts by reason",
	}, []string{"reason"})
	m.jobLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "job_latency_milliseconds",
		Help:      "Job execution time by kind and outcome",
		Buckets:   m.histogramBuckets,
	}, []string{"kind", "outcome"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_total",
		Help:      "Outbound chat notifications by outcome",
	}, []string{"outcome"})
}

// RecordReportProcessed counts an applied report and its latency.
func RecordReportProcessed(latencyMs float64) {
	globalManager.reportsProcessed.Inc()
	globalManager.reportLatency.Observe(latencyMs)
}

// RecordReportNoop counts a report that carried no tiers.
func RecordReportNoop() { globalManager.reportsNoop.Inc() }

// RecordReportFailed counts a rolled back report.
func RecordReportFailed() { globalManager.reportsFailed.Inc() }

// RecordPlayersCreated adds n newly defaulted players.
func RecordPlayersCreated(n int) { globalManager.playersCreated.Add(float64(n)) }

// RecordPlayersDecayed adds n decayed players.
func RecordPlayersDecayed(n int) { globalManager.playersDecayed.Add(float64(n)) }

// UpdatePlayersTotal sets the number of stored players.
func UpdatePlayersTotal(n int) { globalManager.playersTotal.Set(float64(n)) }

// RecordMessageDuplicate counts a redelivered inbound message.
func RecordMessageDuplicate() { globalManager.messagesDuplicate.Inc() }

// RecordMessageIgnored counts an inbound message that was not a report.
func RecordMessageIgnored(reason string) { globalManager.messagesIgnored.WithLabelValues(reason).Inc() }

// RecordRebuild records a finished rebuild.
func RecordRebuild(outcome string, seconds float64, reports int) {
	globalManager.rebuildsTotal.WithLabelValues(outcome).Inc()
	globalManager.rebuildDuration.Observe(seconds)
	globalManager.rebuildReports.Set(float64(reports))
}

// UpdateQueueSize sets the current mailbox length.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the mailbox capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// RecordJob records one executed job.
func RecordJob(kind, outcome string, latencyMs float64) {
	globalManager.jobLatency.WithLabelValues(kind, outcome).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordNotification counts an outbound notification.
func RecordNotification(outcome string) { globalManager.notifications.WithLabelValues(outcome).Inc() }

// GetRegistry returns the registry that holds the service metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
