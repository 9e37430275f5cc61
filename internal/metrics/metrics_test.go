package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/civic-triage/internal/domain/jobs"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.JobHandled("completed")
	m.JobHandled("completed")
	m.BackendCall("local", "ok", 20*time.Millisecond)
	m.BackendCall("external-api", "unavailable", 0)
	m.CacheLookup("hit")
	m.QueueDepth(jobs.Stats{Queued: 4, Dead: 1})
	m.HTTPRequest("GET", "/v1/jobs/stats", 503, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsProcessed.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendCalls.WithLabelValues("external-api", "unavailable")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("queued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/v1/jobs/stats", "5xx")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobHandled("dead")
		m.BackendCall("local", "error", time.Second)
		m.CacheLookup("miss")
		m.Notification("sent")
		m.QueueDepth(jobs.Stats{})
		m.HTTPRequest("POST", "/", 200, 0)
	})
}
