package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	// Status is left out to keep histogram cardinality low.
	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "Current number of in-flight HTTP requests.",
	})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight)
}

// Metrics instruments requests by method, registered route and status.
// Handler errors are rendered here so the recorded status is final.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		renderError(c, c.Next())

		status := c.Response().StatusCode()
		path := routePath(c)
		httpReqs.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		httpLat.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return nil
	}
}
