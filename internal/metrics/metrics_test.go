package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestCollector_RecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest("/api/group", http.MethodGet, http.StatusOK, 10*time.Millisecond)
	c.RecordRequest("/api/group/{groupUuid}", http.MethodDelete, http.StatusForbidden, time.Millisecond)

	assert.Equal(t, 2.0, gatherValue(t, reg, "grouplan_http_requests_total"))
	assert.Equal(t, 2.0, gatherValue(t, reg, "grouplan_http_request_duration_seconds"))
	assert.Equal(t, 1.0, gatherValue(t, reg, "grouplan_access_denied_total"))
}

func TestCollector_RecordAggregationAndRateLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAggregation("priority", 12)
	c.RecordAggregation("range", 0)
	c.RecordRateLimited("u1")

	assert.Equal(t, 2.0, gatherValue(t, reg, "grouplan_agenda_schedules"))
	assert.Equal(t, 1.0, gatherValue(t, reg, "grouplan_rate_limited_total"))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRateLimited("u1")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "grouplan_rate_limited_total 1")
}
