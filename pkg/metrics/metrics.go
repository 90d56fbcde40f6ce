package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Provider metrics
	InstancesAllocated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flintrock_instances_allocated_total",
			Help: "Total number of EC2 instances allocated, by role",
		},
		[]string{"role"},
	)

	InstancesTerminated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flintrock_instances_terminated_total",
			Help: "Total number of EC2 instances terminated, by role",
		},
		[]string{"role"},
	)

	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flintrock_provider_call_duration_seconds",
			Help:    "Time taken by provider adapter calls, by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ProviderCallFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flintrock_provider_call_failures_total",
			Help: "Total number of failed provider adapter calls, by operation",
		},
		[]string{"operation"},
	)

	// SSH Executor metrics
	SSHCommandDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flintrock_ssh_command_duration_seconds",
			Help:    "Time taken to run a command over SSH",
			Buckets: prometheus.DefBuckets,
		},
	)

	SSHCommandFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flintrock_ssh_command_failures_total",
			Help: "Total number of SSH commands that returned a non-zero exit status",
		},
	)

	SSHConnectRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flintrock_ssh_connect_retries_total",
			Help: "Total number of SSH connection attempts that were retried",
		},
	)

	// Health check metrics
	HealthCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flintrock_health_check_duration_seconds",
			Help:    "Time taken for a service health check, by service",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	HealthCheckFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flintrock_health_check_failures_total",
			Help: "Total number of failed service health checks, by service",
		},
		[]string{"service"},
	)

	// Orchestrator operation metrics
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flintrock_operation_duration_seconds",
			Help:    "Time taken for a top-level cluster operation, by operation",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"operation"},
	)

	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flintrock_operations_total",
			Help: "Total number of cluster operations, by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flintrock_rollbacks_total",
			Help: "Total number of launch rollbacks, by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(InstancesAllocated)
	prometheus.MustRegister(InstancesTerminated)
	prometheus.MustRegister(ProviderCallDuration)
	prometheus.MustRegister(ProviderCallFailures)
	prometheus.MustRegister(SSHCommandDuration)
	prometheus.MustRegister(SSHCommandFailures)
	prometheus.MustRegister(SSHConnectRetries)
	prometheus.MustRegister(HealthCheckDuration)
	prometheus.MustRegister(HealthCheckFailures)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(RollbacksTotal)
}

// Handler returns the Prometheus HTTP handler. Flintrock doesn't run a
// long-lived metrics server itself, but cmd/flintrock can mount this on
// an ad hoc listener when --metrics-addr is set, for operators who want
// to scrape a single long `launch` invocation.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
