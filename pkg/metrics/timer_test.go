package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()

	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)

	assert.GreaterOrEqual(t, timer.Duration(), 5*time.Millisecond)
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_observe_duration_seconds",
	})

	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDuration(histogram)

	assert.Equal(t, uint64(1), sampleCount(t, histogram))
}

func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_observe_duration_vec_seconds",
	}, []string{"operation"})

	timer := NewTimer()
	timer.ObserveDurationVec(histogramVec, "launch")
	timer.ObserveDurationVec(histogramVec, "destroy")

	assert.Equal(t, uint64(1), sampleCount(t, histogramVec.WithLabelValues("launch")))
	assert.Equal(t, uint64(1), sampleCount(t, histogramVec.WithLabelValues("destroy")))
}

func sampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

// TestInstancesAllocatedByRole exercises the provider counter Flintrock
// increments once per EC2 instance it allocates (pkg/provider/ec2's
// Allocate calls InstancesAllocated.WithLabelValues("master"/"slave")
// .Add with the number of instances it launched).
func TestInstancesAllocatedByRole(t *testing.T) {
	before := testutil.ToFloat64(InstancesAllocated.WithLabelValues("slave"))

	InstancesAllocated.WithLabelValues("slave").Inc()
	InstancesAllocated.WithLabelValues("slave").Inc()

	after := testutil.ToFloat64(InstancesAllocated.WithLabelValues("slave"))
	assert.Equal(t, float64(2), after-before)
}

// TestOperationsTotalByOutcome exercises the counter orchestrator
// operations increment on completion, split by operation and outcome
// (e.g. "launch"/"success" vs "launch"/"failure").
func TestOperationsTotalByOutcome(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("launch", "failure"))

	OperationsTotal.WithLabelValues("launch", "failure").Inc()

	after := testutil.ToFloat64(OperationsTotal.WithLabelValues("launch", "failure"))
	assert.Equal(t, float64(1), after-before)
}

// TestRollbacksTotalByReason exercises the counter incremented once per
// distinct rollback reason a failed launch records.
func TestRollbacksTotalByReason(t *testing.T) {
	before := testutil.ToFloat64(RollbacksTotal.WithLabelValues("health-check-failed"))

	RollbacksTotal.WithLabelValues("health-check-failed").Inc()

	after := testutil.ToFloat64(RollbacksTotal.WithLabelValues("health-check-failed"))
	assert.Equal(t, float64(1), after-before)
}

func TestSSHConnectRetriesCounter(t *testing.T) {
	before := testutil.ToFloat64(SSHConnectRetries)

	SSHConnectRetries.Inc()

	after := testutil.ToFloat64(SSHConnectRetries)
	assert.Equal(t, float64(1), after-before)
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	SSHCommandFailures.Add(0) // ensure the series exists even if untouched elsewhere

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	Handler().ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "flintrock_ssh_command_failures_total")
}
