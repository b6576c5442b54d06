// Package metrics registers the Prometheus metrics exported by the admin
// server. Metrics are registered with the default registry on package init.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hradmin"

// HTTPRequestsTotal counts served requests by method, matched route and
// status code.
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests served.",
	},
	[]string{"method", "route", "status"},
)

var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)

var RateLimitedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the rate limiter.",
	},
)

// GateDecisionsTotal counts access decisions.
// Label:
//   - outcome: "allow", "redirect" or "loading"
var GateDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Total number of access gate decisions, labelled by outcome.",
	},
	[]string{"outcome"},
)

// SessionResolutionsTotal counts session resolutions.
// Label:
//   - outcome: "signed_in", "anonymous", "invalid" or "stale"
var SessionResolutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_resolutions_total",
		Help:      "Total number of session resolutions, labelled by outcome.",
	},
	[]string{"outcome"},
)

// ResourceOperationsTotal counts resource manager operations.
// Labels:
//   - kind: the managed entity kind (e.g. "department")
//   - op: "list", "create", "update" or "delete"
//   - outcome: "ok", "validation", "referenced", "busy" or "store_error"
var ResourceOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resource_operations_total",
		Help:      "Total number of resource manager operations.",
	},
	[]string{"kind", "op", "outcome"},
)

var WorkspacesActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workspaces_active",
		Help:      "Current number of sessions holding a resource workspace.",
	},
)

var JobRunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Total number of background job runs, labelled by job and status.",
	},
	[]string{"job", "status"},
)

// ObserveRequest records one served request.
func ObserveRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	if status == http.StatusTooManyRequests {
		RateLimitedTotal.Inc()
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
