// Package audit implements the telemetry and optional persistence surface
// of §4.G: Prometheus counters/histograms for actions, packets, and the
// HTTP connector, plus an optional SQL sink for the File_operations audit
// table. The structured JSON event log §4.G also calls for is internal/logger
// already emitting every action's context keys (connection_id, peer,
// action_id, action_type, share_name, path, http_request_id) as JSON when
// configured with format=json; this package does not duplicate it.
package audit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/seekscale/smbcacheproxy/pkg/fscache"
	"github.com/seekscale/smbcacheproxy/pkg/httpconn"
)

// Metrics is the Prometheus-backed recorder for every namespace §4.G
// describes. A nil *Metrics is valid and every method becomes a no-op,
// mirroring the teacher's nil-able metrics convention.
type Metrics struct {
	actionStarted   *prometheus.CounterVec
	actionSucceeded *prometheus.CounterVec
	actionFailed    *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec

	packetCount     *prometheus.CounterVec
	packetProcessMs *prometheus.HistogramVec

	httpPending   prometheus.Gauge
	httpSucceeded prometheus.Counter
	httpFailed    prometheus.Counter
	httpGivenUp   prometheus.Counter

	// lastSuccess/lastFailure/lastGivenUp hold the previous snapshot so
	// SetHTTPCounters can translate httpconn's running totals into counter
	// increments.
	lastSuccess, lastFailure, lastGivenUp float64

	// sink is the optional File_operations SQL persistence of §4.G; nil
	// disables it.
	sink *SQLSink
}

// NewMetrics registers the action/packet/http namespaces with reg and
// returns a Metrics. Pass nil to disable metrics entirely.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	return &Metrics{
		actionStarted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "smbcacheproxy_action_started_total",
			Help: "Cache actions started, by action type.",
		}, []string{"action_type"}),
		actionSucceeded: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "smbcacheproxy_action_succeeded_total",
			Help: "Cache actions that completed successfully, by action type.",
		}, []string{"action_type"}),
		actionFailed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "smbcacheproxy_action_failed_total",
			Help: "Cache actions that returned an error, by action type.",
		}, []string{"action_type"}),
		actionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smbcacheproxy_action_duration_milliseconds",
			Help:    "Cache action duration in milliseconds, by action type.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 15000, 60000},
		}, []string{"action_type"}),
		packetCount: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "smbcacheproxy_packet_total",
			Help: "SMB2 packets processed, by direction.",
		}, []string{"direction"}),
		packetProcessMs: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smbcacheproxy_packet_processing_milliseconds",
			Help:    "Packet processing time in milliseconds, by direction.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
		}, []string{"direction"}),
		httpPending: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "smbcacheproxy_http_requests_pending",
			Help: "In-flight HTTP requests held by the connector semaphore.",
		}),
		httpSucceeded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "smbcacheproxy_http_requests_succeeded_total",
			Help: "HTTP requests that completed with a 2xx status.",
		}),
		httpFailed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "smbcacheproxy_http_requests_failed_total",
			Help: "HTTP requests that failed (non-2xx or exhausted retries).",
		}),
		httpGivenUp: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "smbcacheproxy_http_requests_given_up_total",
			Help: "HTTP requests that exhausted the retry budget.",
		}),
	}
}

// RecordAction implements fscache.AuditRecorder. Start is counted here
// alongside the terminal outcome since the recorder only ever sees an
// action once it has already finished (§4.E's do() wrapper calls this
// after fn returns); started and terminal counters move together as a
// result.
func (m *Metrics) RecordAction(ctx context.Context, rec fscache.ActionRecord) {
	if m == nil {
		return
	}
	actionType := string(rec.ActionType)
	m.actionStarted.WithLabelValues(actionType).Inc()
	m.actionDuration.WithLabelValues(actionType).Observe(float64(rec.Duration.Milliseconds()))
	if rec.Status == fscache.StatusSuccess {
		m.actionSucceeded.WithLabelValues(actionType).Inc()
	} else {
		m.actionFailed.WithLabelValues(actionType).Inc()
	}
	if m.sink != nil {
		m.sink.Record(ctx, rec)
	}
}

// ObservePacket implements proxy.PacketMetrics.
func (m *Metrics) ObservePacket(direction string, dur time.Duration) {
	if m == nil {
		return
	}
	m.packetCount.WithLabelValues(direction).Inc()
	m.packetProcessMs.WithLabelValues(direction).Observe(float64(dur.Milliseconds()))
}

// WithSink attaches the optional File_operations SQL sink.
func (m *Metrics) WithSink(sink *SQLSink) *Metrics {
	if m != nil {
		m.sink = sink
	}
	return m
}

// SetHTTPCounters snapshots an httpconn.Connector's counters into the
// http.requests.* gauges/counters. Called once a second by the start
// command's stats ticker, since httpconn keeps its own running totals
// rather than pushing per-request events.
func (m *Metrics) SetHTTPCounters(c httpconn.Counters) {
	if m == nil {
		return
	}
	m.httpPending.Set(float64(c.Pending))
	m.httpSucceeded.Add(float64(c.Success) - m.lastSuccess)
	m.lastSuccess = float64(c.Success)
	m.httpFailed.Add(float64(c.Failure) - m.lastFailure)
	m.lastFailure = float64(c.Failure)
	m.httpGivenUp.Add(float64(c.TotalFailure) - m.lastGivenUp)
	m.lastGivenUp = float64(c.TotalFailure)
}
