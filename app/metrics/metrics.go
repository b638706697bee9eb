// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "billing"

var (
	// Reconciliations counts reconciler invocations by provider and result
	// (applied, noop, ignored, not_found, error).
	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliations_total",
		Help:      "Payment outcomes processed by the reconciler",
	}, []string{"provider", "outcome", "result"})

	AmountMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amount_mismatches_total",
		Help:      "Completed payments whose amount or currency differs from the plan price",
	}, []string{"provider"})

	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_calls_total",
		Help:      "Outbound gateway calls by provider, operation and result",
	}, []string{"provider", "operation", "result"})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_call_duration_seconds",
		Help:      "Outbound gateway call latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	CallbackRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "callback_rejections_total",
		Help:      "Provider callbacks that failed authenticity checks",
	}, []string{"provider"})

	SweepExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_expired_total",
		Help:      "Subscriptions deactivated by the expiration sweep",
	})

	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_failures_total",
		Help:      "Per-subscription failures during the expiration sweep",
	})

	ExpiryNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "expiry_notifications_total",
		Help:      "Expiry warnings sent, by horizon in days and result",
	}, []string{"horizon_days", "result"})

	PendingRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pending_recovery_total",
		Help:      "Stale pending payments examined by the recovery job",
	}, []string{"result"})

	QuotaChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_checks_total",
		Help:      "Employee limit checks by decision",
	}, []string{"allowed"})

	// HTTPRequests is labelled by route template, not raw URI.
	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method, route and status",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Background job run time",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job", "result"})

	GRPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grpc_requests_total",
		Help:      "gRPC requests by method and status code",
	}, []string{"method", "code"})
)
