package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vereinsportal"

type Metrics struct {
	Kafka     KafkaMetrics
	API       APIMetrics
	Outbox    OutboxMetrics
	Mail      MailMetrics
	RateLimit RateLimitMetrics
	Upstream  UpstreamMetrics
}

type KafkaMetrics struct {
	// Producer
	ProducerAttemptLatencySeconds *prometheus.HistogramVec
	ProducerOperationsTotal       *prometheus.CounterVec

	// Consumer (входящие заявки на письма)
	ConsumerMessagesTotal   *prometheus.CounterVec
	ConsumerProcessDuration *prometheus.HistogramVec
	ConsumerRebalancesTotal *prometheus.CounterVec
}

type APIMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

type OutboxMetrics struct {
	EnqueuedTotal *prometheus.CounterVec
	ClaimedTotal  prometheus.Counter
	SentTotal     *prometheus.CounterVec
	RetriedTotal  *prometheus.CounterVec
	FailedTotal   *prometheus.CounterVec
}

type MailMetrics struct {
	SendDurationSeconds *prometheus.HistogramVec
}

type RateLimitMetrics struct {
	BlockedTotal     *prometheus.CounterVec
	StoreErrorsTotal *prometheus.CounterVec
}

// UpstreamMetrics — исходящие запросы к внешним API, каждая попытка отдельно
type UpstreamMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Kafka: KafkaMetrics{
			ProducerAttemptLatencySeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "kafka",
				Name:      "producer_attempt_latency_seconds",
				Help:      "Latency per single produce attempt.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"topic", "result"}), // ok|error

			ProducerOperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kafka",
				Name:      "producer_operations_total",
				Help:      "Total produce operations (one call) by result.",
			}, []string{"topic", "result"}), // success|failed|permanent|canceled

			ConsumerMessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kafka",
				Name:      "consumer_messages_total",
				Help:      "Total consumed Kafka messages by topic and result.",
			}, []string{"topic", "result"}), // enqueued|rejected|error

			ConsumerProcessDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "kafka",
				Name:      "consumer_process_duration_seconds",
				Help:      "Kafka message processing duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"topic"}),

			ConsumerRebalancesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kafka",
				Name:      "consumer_rebalances_total",
				Help:      "Consumer rebalance lifecycle events.",
			}, []string{"event"}),
		},

		API: APIMetrics{
			HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, path and status.",
			}, []string{"method", "path", "status"}),

			HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"method", "path", "status"}),
		},

		Outbox: OutboxMetrics{
			EnqueuedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "enqueued_total",
				Help:      "Emails written to the outbox by template.",
			}, []string{"template"}),

			ClaimedTotal: f.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "claimed_total",
				Help:      "Outbox rows claimed by the dispatcher.",
			}),

			SentTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "sent_total",
				Help:      "Emails accepted by the mail transport.",
			}, []string{"template"}),

			RetriedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "retried_total",
				Help:      "Transient send failures rescheduled with backoff.",
			}, []string{"template"}),

			FailedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "failed_total",
				Help:      "Emails moved to FAILED by reason.",
			}, []string{"template", "reason"}), // exhausted|render
		},

		Mail: MailMetrics{
			SendDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "mail",
				Name:      "send_duration_seconds",
				Help:      "Mail transport send latency.",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
			}, []string{"transport", "result"}),
		},

		RateLimit: RateLimitMetrics{
			BlockedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "blocked_total",
				Help:      "Requests rejected by the attempt limiter.",
			}, []string{"resource"}),

			StoreErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "store_errors_total",
				Help:      "Counter store failures by resource and applied policy.",
			}, []string{"resource", "policy"}),
		},

		Upstream: UpstreamMetrics{
			RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Outgoing HTTP attempts by upstream and result.",
			}, []string{"upstream", "result"}), // 2xx|4xx|5xx|error

			AttemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "attempt_duration_seconds",
				Help:      "Latency of a single outgoing HTTP attempt.",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			}, []string{"upstream"}),
		},
	}
}
