package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"event-dispatcher/internal/core/domain"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evd"

// Sources are read at scrape time.
type Sources struct {
	Targets func() int
	Dropped func() uint64
}

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	DeliveriesTotal   *prometheus.CounterVec
	DeliveryDuration  *prometheus.HistogramVec
	RetriesScheduled  prometheus.Counter
	RetriesExhausted  prometheus.Counter
	DispatchErrors    prometheus.Counter
	LifecycleTotal    *prometheus.CounterVec
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on registry.
func NewMetrics(registry *prometheus.Registry, src Sources) *Metrics {
	m := &Metrics{
		registry: registry,
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Delivery attempts by outcome",
			},
			[]string{"state"},
		),
		DeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_duration_seconds",
				Help:      "Transport call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"state"},
		),
		RetriesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Retries scheduled after a failed delivery",
		}),
		RetriesExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_exhausted_total",
			Help:      "Delivery chains that ran out of retries",
		}),
		DispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Errors raised inside the dispatch path",
		}),
		LifecycleTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "target_lifecycle_total",
				Help:      "Target registry changes by type",
			},
			[]string{"type"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	registry.MustRegister(
		m.DeliveriesTotal,
		m.DeliveryDuration,
		m.RetriesScheduled,
		m.RetriesExhausted,
		m.DispatchErrors,
		m.LifecycleTotal,
		m.HTTPRequestsTotal,
		m.HTTPDuration,
	)
	if src.Targets != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "targets",
			Help:      "Targets currently registered",
		}, func() float64 { return float64(src.Targets()) }))
	}
	if src.Dropped != nil {
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications lost to full subscriber buffers",
		}, func() float64 { return float64(src.Dropped()) }))
	}
	return m
}

// Run observes notifications until the channel closes or ctx is done.
func (m *Metrics) Run(ctx context.Context, notes <-chan domain.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notes:
			if !ok {
				return
			}
			m.Observe(n)
		}
	}
}

func (m *Metrics) Observe(n domain.Notification) {
	switch n.Type {
	case domain.NotifyDelivered, domain.NotifyFailed, domain.NotifyRateLimited:
		if n.Result == nil {
			return
		}
		state := string(n.Result.State)
		m.DeliveriesTotal.WithLabelValues(state).Inc()
		if n.Result.State != domain.DeliveryRateLimited {
			m.DeliveryDuration.WithLabelValues(state).Observe(n.Result.Duration.Seconds())
		}
	case domain.NotifyRetryScheduled:
		m.RetriesScheduled.Inc()
	case domain.NotifyRetryExhausted:
		m.RetriesExhausted.Inc()
	case domain.NotifyDispatchError:
		m.DispatchErrors.Inc()
	case domain.NotifyRegistered, domain.NotifyUnregistered, domain.NotifyUpdated:
		m.LifecycleTotal.WithLabelValues(string(n.Type)).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latency by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
