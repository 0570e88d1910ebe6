package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Order metrics
	OrdersTotal      *prometheus.CounterVec
	SagaStepOutcomes *prometheus.CounterVec
	SagaDuration     *prometheus.HistogramVec
	CompensationsRun *prometheus.CounterVec
	StaleOrdersSwept prometheus.Counter

	// Outbox relay metrics
	OutboxPublished     *prometheus.CounterVec
	OutboxPublishErrors *prometheus.CounterVec
	OutboxBacklog       *prometheus.GaugeVec
	RelayBatchDuration  prometheus.Histogram

	// Coupon queue metrics
	QueueJoins          *prometheus.CounterVec
	QueueEntriesDrained *prometheus.CounterVec
	QueueDrainDuration  prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec

	// Consumer metrics
	EventsConsumed             *prometheus.CounterVec
	ConsumerProcessingDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_total",
				Help:      "Total number of orders by terminal status",
			},
			[]string{"status"},
		),
		SagaStepOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saga_step_outcomes_total",
				Help:      "Saga step outcomes by step and result",
			},
			[]string{"step", "result"},
		),
		SagaDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "saga_duration_seconds",
				Help:      "Time from order creation to terminal state",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		CompensationsRun: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compensations_total",
				Help:      "Compensation actions executed by step",
			},
			[]string{"step"},
		),
		StaleOrdersSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_orders_swept_total",
				Help:      "Pending orders force-failed by the reconciliation sweep",
			},
		),
		OutboxPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "Outbox records published by event type",
			},
			[]string{"event_type"},
		),
		OutboxPublishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_publish_errors_total",
				Help:      "Outbox publish attempts that failed",
			},
			[]string{"event_type"},
		),
		OutboxBacklog: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_backlog",
				Help:      "Outbox records by status",
			},
			[]string{"status"},
		),
		RelayBatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "relay_batch_duration_seconds",
				Help:      "Duration of one relay poll-and-publish batch",
				Buckets:   prometheus.DefBuckets,
			},
		),
		QueueJoins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_joins_total",
				Help:      "Admission queue join attempts by result",
			},
			[]string{"result"},
		),
		QueueEntriesDrained: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_entries_drained_total",
				Help:      "Admission queue entries drained by outcome",
			},
			[]string{"outcome"},
		),
		QueueDrainDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "queue_drain_duration_seconds",
				Help:      "Duration of one queue drain pass",
				Buckets:   prometheus.DefBuckets,
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
		EventsConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_consumed_total",
				Help:      "Events consumed by topic and status",
			},
			[]string{"topic", "status"},
		),
		ConsumerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "consumer_processing_duration_seconds",
				Help:      "Event handling duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"topic"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.OrdersTotal,
		m.SagaStepOutcomes,
		m.SagaDuration,
		m.CompensationsRun,
		m.StaleOrdersSwept,
		m.OutboxPublished,
		m.OutboxPublishErrors,
		m.OutboxBacklog,
		m.RelayBatchDuration,
		m.QueueJoins,
		m.QueueEntriesDrained,
		m.QueueDrainDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
		m.EventsConsumed,
		m.ConsumerProcessingDuration,
	)

	return m
}
