// Package metrics exports anchoring and reconciliation counters to
// Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "certanchor"

// Submission kinds.
const (
	KindSingle = "single"
	KindBulk   = "bulk"
)

// Metrics holds the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	submissions  *prometheus.CounterVec
	failures     *prometheus.CounterVec
	certificates prometheus.Counter
	fees         prometheus.Counter
	rebuilds     prometheus.Counter

	reconcileRuns      prometheus.Counter
	reconcileConfirmed prometheus.Counter
	reconcileErrors    *prometheus.CounterVec
	reconcilePending   prometheus.Gauge
	reconcileDuration  prometheus.Histogram
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Anchoring transactions accepted by the provider.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anchor_failures_total",
			Help:      "Failed anchoring requests by reason.",
		}, []string{"reason"}),
		certificates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_anchored_total",
			Help:      "Certificates carried by accepted transactions.",
		}),
		fees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_lovelace_total",
			Help:      "Fees paid by accepted transactions, in lovelace.",
		}),
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebuilds_total",
			Help:      "Transactions rebuilt after their input was spent.",
		}),
		reconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Completed reconciliation passes.",
		}),
		reconcileConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "confirmed_total",
			Help:      "Records moved from pending to a block reference.",
		}),
		reconcileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "errors_total",
			Help:      "Reconciliation errors by scope.",
		}, []string{"scope"}),
		reconcilePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "pending",
			Help:      "Records still pending after the last pass.",
		}),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}

	startTime := time.Now()
	reg.MustRegister(
		m.submissions, m.failures, m.certificates, m.fees, m.rebuilds,
		m.reconcileRuns, m.reconcileConfirmed, m.reconcileErrors,
		m.reconcilePending, m.reconcileDuration,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started.",
		}, func() float64 {
			return time.Since(startTime).Seconds()
		}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Submitted records an accepted transaction.
func (m *Metrics) Submitted(kind string, certificates int, fee uint64) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind).Inc()
	m.certificates.Add(float64(certificates))
	m.fees.Add(float64(fee))
}

// Failed records a failed anchoring request.
func (m *Metrics) Failed(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}

// Rebuilt records a rebuild after spent inputs.
func (m *Metrics) Rebuilt() {
	if m == nil {
		return
	}
	m.rebuilds.Inc()
}

// ReconcileRun records a finished pass.
func (m *Metrics) ReconcileRun(d time.Duration, confirmed, pending, certErrors, tenantErrors int) {
	if m == nil {
		return
	}
	m.reconcileRuns.Inc()
	m.reconcileDuration.Observe(d.Seconds())
	m.reconcileConfirmed.Add(float64(confirmed))
	m.reconcilePending.Set(float64(pending))
	m.reconcileErrors.WithLabelValues("certificate").Add(float64(certErrors))
	m.reconcileErrors.WithLabelValues("tenant").Add(float64(tenantErrors))
}
