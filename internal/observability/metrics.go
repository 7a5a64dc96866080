package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_http_requests_total",
			Help: "Total number of HTTP requests processed by the messaging service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"direction", "event"},
	)
	wsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_ws_dropped_frames_total",
			Help: "Frames dropped because a client's send buffer was full.",
		},
	)
	messagesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_messages_ingested_total",
			Help: "Messages accepted by the ingestion pipeline.",
		},
		[]string{"content_type", "result"},
	)
	storeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_store_operation_duration_seconds",
			Help:    "Latency of storage operations issued by the service layer.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	unreadResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_unread_resets_total",
			Help: "Unread counters reset by readers.",
		},
	)
	unreadRecomputeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_unread_recompute_total",
			Help: "Unread counter repairs run by the reconciler.",
		},
		[]string{"result"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		wsDroppedTotal,
		messagesIngestedTotal,
		storeDuration,
		unreadResetsTotal,
		unreadRecomputeTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

// IncWSEvent counts a frame or lifecycle event; direction is "in", "out" or
// "conn".
func IncWSEvent(direction, event string) {
	wsEventsTotal.WithLabelValues(direction, event).Inc()
}

func IncWSDropped() {
	wsDroppedTotal.Inc()
}

func IncMessageIngested(contentType, result string) {
	messagesIngestedTotal.WithLabelValues(contentType, result).Inc()
}

// ObserveStore records how long a storage operation took.
func ObserveStore(operation string, start time.Time) {
	storeDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func IncUnreadReset() {
	unreadResetsTotal.Inc()
}

func IncUnreadRecompute(result string) {
	unreadRecomputeTotal.WithLabelValues(result).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
