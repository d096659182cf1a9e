package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekscale/smbcacheproxy/pkg/audit"
	"github.com/seekscale/smbcacheproxy/pkg/fscache"
	"github.com/seekscale/smbcacheproxy/pkg/httpconn"
)

func TestNewMetricsReturnsNilWhenDisabled(t *testing.T) {
	assert.Nil(t, audit.NewMetrics(nil))
}

func TestNilMetricsMethodsAreNoOps(t *testing.T) {
	var m *audit.Metrics
	assert.NotPanics(t, func() {
		m.RecordAction(context.Background(), fscache.ActionRecord{ActionType: fscache.KindSync})
		m.ObservePacket("inbound", time.Millisecond)
		m.SetHTTPCounters(httpconn.Counters{})
		m.WithSink(nil)
	})
}

func TestRecordActionIncrementsSucceededAndFailedSeparately(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := audit.NewMetrics(reg)
	require.NotNil(t, m)

	m.RecordAction(context.Background(), fscache.ActionRecord{
		ActionType: fscache.KindSync, Status: fscache.StatusSuccess, Duration: 10 * time.Millisecond,
	})
	m.RecordAction(context.Background(), fscache.ActionRecord{
		ActionType: fscache.KindSync, Status: fscache.StatusFailure, Duration: 5 * time.Millisecond,
	})

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var started, succeeded, failed float64
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "smbcacheproxy_action_started_total":
			started = mf.GetMetric()[0].GetCounter().GetValue()
		case "smbcacheproxy_action_succeeded_total":
			succeeded = mf.GetMetric()[0].GetCounter().GetValue()
		case "smbcacheproxy_action_failed_total":
			failed = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), started)
	assert.Equal(t, float64(1), succeeded)
	assert.Equal(t, float64(1), failed)
}

func TestSetHTTPCountersTracksDeltasAcrossCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := audit.NewMetrics(reg)
	require.NotNil(t, m)

	m.SetHTTPCounters(httpconn.Counters{Pending: 3, Success: 5, Failure: 1, TotalFailure: 0})
	m.SetHTTPCounters(httpconn.Counters{Pending: 1, Success: 8, Failure: 2, TotalFailure: 1})

	succeededCounter, err := testutil.GatherAndCount(reg, "smbcacheproxy_http_requests_succeeded_total")
	require.NoError(t, err)
	assert.Equal(t, 1, succeededCounter, "one metric series should exist regardless of call count")

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	var succeeded, failed, givenUp float64
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "smbcacheproxy_http_requests_succeeded_total":
			succeeded = mf.GetMetric()[0].GetCounter().GetValue()
		case "smbcacheproxy_http_requests_failed_total":
			failed = mf.GetMetric()[0].GetCounter().GetValue()
		case "smbcacheproxy_http_requests_given_up_total":
			givenUp = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(8), succeeded, "totals accumulate across both snapshots (5 then +3)")
	assert.Equal(t, float64(2), failed)
	assert.Equal(t, float64(1), givenUp)
}

func TestWithNilSinkLeavesRecordActionSafe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := audit.NewMetrics(reg)
	require.NotNil(t, m)

	m.WithSink(nil) // nil sink must stay safely unset

	m.RecordAction(context.Background(), fscache.ActionRecord{
		ActionType: fscache.KindTouch, Status: fscache.StatusSuccess,
	})
}
