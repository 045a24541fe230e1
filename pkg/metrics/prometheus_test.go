package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_Counters(t *testing.T) {
	pc := NewPrometheusCollector("test")

	pc.LaunchCompleted("docA", OutcomeSuccess, 2*time.Second)
	pc.LaunchCompleted("docA", "launch_failed", time.Second)
	pc.StopCompleted("docA", "graceful", 100*time.Millisecond)
	pc.PortReconciled("forced")
	pc.ProbeCompleted("docA", true, 10*time.Millisecond)
	pc.ProbeCompleted("docA", false, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(pc.launches.WithLabelValues("docA", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.launches.WithLabelValues("docA", "launch_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.stops.WithLabelValues("docA", "graceful")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.reconciled.WithLabelValues("forced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.probes.WithLabelValues("docA", "healthy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.probes.WithLabelValues("docA", "unhealthy")))
}

func TestPrometheusCollector_InstancesReplacePreviousValues(t *testing.T) {
	pc := NewPrometheusCollector("test")

	pc.InstancesObserved(map[string]int{"docA": 2, "docB": 1}, map[string]int{"docB": 1})
	assert.Equal(t, 3, testutil.CollectAndCount(pc.instances))

	pc.InstancesObserved(map[string]int{"docA": 1}, nil)
	assert.Equal(t, 1, testutil.CollectAndCount(pc.instances))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.instances.WithLabelValues("docA", "live")))
}

func TestPrometheusCollector_Handler(t *testing.T) {
	pc := NewPrometheusCollector("")
	pc.LaunchCompleted("docA", OutcomeSuccess, time.Second)

	recorder := httptest.NewRecorder()
	pc.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(recorder.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `devlauncher_launches_total{outcome="success",service="docA"} 1`)
}

func TestNoopCollector(t *testing.T) {
	collector := NewNoopCollector()

	assert.NotPanics(t, func() {
		collector.LaunchCompleted("docA", OutcomeSuccess, time.Second)
		collector.InstancesObserved(nil, nil)
	})
}
