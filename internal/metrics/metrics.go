// Package metrics defines the prometheus collectors for agentdesk.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all prometheus collectors.
type Metrics struct {
	// Agent list
	AgentSyncs   *prometheus.CounterVec
	AgentsLoaded prometheus.Gauge

	// Auto-save
	Autosaves *prometheus.CounterVec

	// App id resolution
	AppIDResolutions *prometheus.CounterVec

	// Calls
	CallsActive  prometheus.Gauge
	CallDuration prometheus.Histogram

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// New creates and registers the collectors once per process; later calls
// return the same instance.
func New() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			AgentSyncs: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentdesk_agent_syncs_total",
					Help: "Agent list fetches by result",
				},
				[]string{"result"},
			),
			AgentsLoaded: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "agentdesk_agents_loaded",
					Help: "Agents in the current list",
				},
			),
			Autosaves: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentdesk_autosave_total",
					Help: "Configuration saves by result",
				},
				[]string{"result"},
			),
			AppIDResolutions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentdesk_appid_resolutions_total",
					Help: "Application id resolutions by source",
				},
				[]string{"source"},
			),
			CallsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "agentdesk_calls_active",
					Help: "Voice calls currently active",
				},
			),
			CallDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agentdesk_call_duration_seconds",
					Help:    "Duration of finished voice calls",
					Buckets: prometheus.ExponentialBuckets(5, 2, 10), // 5s to ~42min
				},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentdesk_http_requests_total",
					Help: "Gateway HTTP requests",
				},
				[]string{"method", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agentdesk_http_request_duration_seconds",
					Help:    "Gateway HTTP request latency",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method"},
			),
		}
	})
	return sharedMetrics
}

// Result labels.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultEmpty    = "empty"
	ResultAborted  = "aborted"
	ResultFallback = "fallback"
)

// RecordSync records one finished agent list fetch.
func (m *Metrics) RecordSync(result string, agents int) {
	if m == nil {
		return
	}
	m.AgentSyncs.WithLabelValues(result).Inc()
	if result != ResultAborted {
		m.AgentsLoaded.Set(float64(agents))
	}
}

// RecordSave records one remote save attempt.
func (m *Metrics) RecordSave(err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.Autosaves.WithLabelValues(result).Inc()
}

// RecordResolution records where an application id came from.
func (m *Metrics) RecordResolution(source string) {
	if m == nil {
		return
	}
	m.AppIDResolutions.WithLabelValues(source).Inc()
}

// CallStarted marks a call as active.
func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.CallsActive.Inc()
}

// CallEnded marks a call as finished after d.
func (m *Metrics) CallEnded(d time.Duration) {
	if m == nil {
		return
	}
	m.CallsActive.Dec()
	m.CallDuration.Observe(d.Seconds())
}

// RecordHTTPRequest records one gateway request.
func (m *Metrics) RecordHTTPRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
