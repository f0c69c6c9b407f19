// Package metrics exposes the node's Prometheus instrumentation: HTTP
// request counters/latencies plus chain-level gauges (height, mempool
// depth, consensus events), all served from a single registry at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the node's Prometheus registry and instruments.
type Metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec

	chainHeight       prometheus.Gauge
	mempoolDepth      prometheus.Gauge
	consensusReached  *prometheus.CounterVec
	disbursementsPaid prometheus.Counter
}

// New builds a fresh registry with every opschain instrument registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opschain",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed by the node's RPC server.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opschain",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests served by the node's RPC server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		chainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opschain",
			Name:      "chain_height",
			Help:      "Number of blocks in the chain, including genesis.",
		}),
		mempoolDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opschain",
			Name:      "mempool_depth",
			Help:      "Number of transactions currently pending in the mempool.",
		}),
		consensusReached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opschain",
			Name:      "consensus_reached_total",
			Help:      "Number of root-cause proposals that have reached consensus, by outcome.",
		}, []string{"outcome"}),
		disbursementsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opschain",
			Name:      "reward_disbursements_total",
			Help:      "Number of reward/penalty disbursement transactions mined.",
		}),
	}

	registry.MustRegister(m.requests, m.durations, m.chainHeight, m.mempoolDepth, m.consensusReached, m.disbursementsPaid)
	return m
}

// Handler serves the registry in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetChainHeight records the current block count.
func (m *Metrics) SetChainHeight(height uint64) {
	m.chainHeight.Set(float64(height))
}

// SetMempoolDepth records the current mempool size.
func (m *Metrics) SetMempoolDepth(depth int) {
	m.mempoolDepth.Set(float64(depth))
}

// ObserveConsensusReached increments the counter for the given outcome
// ("passed" or "rejected").
func (m *Metrics) ObserveConsensusReached(outcome string) {
	m.consensusReached.WithLabelValues(outcome).Inc()
}

// ObserveDisbursements increments the disbursement counter by count.
func (m *Metrics) ObserveDisbursements(count int) {
	m.disbursementsPaid.Add(float64(count))
}

// Middleware wraps an http.Handler, recording request count and latency
// labelled by route and method.
func (m *Metrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start).Seconds()
			m.requests.WithLabelValues(route, r.Method, http.StatusText(recorder.status)).Inc()
			m.durations.WithLabelValues(route, r.Method).Observe(duration)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
