// Package metrics holds the business-level Prometheus collectors. HTTP
// traffic metrics live in the middleware package.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// OrdersCreated counts successful checkouts.
	OrdersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shop_orders_created_total",
		Help: "Orders created from carts.",
	})

	// OrdersCanceled counts cancellations by who initiated them (customer|admin).
	OrdersCanceled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_orders_canceled_total",
		Help: "Orders canceled with stock restored.",
	}, []string{"by"})

	// CheckoutFailures counts rejected checkouts by reason.
	CheckoutFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_checkout_failures_total",
		Help: "Checkouts rejected before or during stock reservation.",
	}, []string{"reason"})

	// Recommendations counts recommendation requests by outcome.
	Recommendations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_recommendations_total",
		Help: "Recommendation requests by outcome (ok|invalid|no_candidates|ai_failure|error).",
	}, []string{"outcome"})

	// RecommendationLatency observes the ranking model round trip.
	RecommendationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shop_recommendation_model_seconds",
		Help:    "Latency of the ranking model call.",
		Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
	})

	// AITokens accumulates tokens reported by the ranking model.
	AITokens = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shop_ai_tokens_total",
		Help: "Tokens consumed by recommendation requests.",
	})

	// NotificationsFailed counts notifier errors by kind.
	NotificationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_notifications_failed_total",
		Help: "Order notifications that could not be delivered.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		OrdersCreated,
		OrdersCanceled,
		CheckoutFailures,
		Recommendations,
		RecommendationLatency,
		AITokens,
		NotificationsFailed,
	)
}
