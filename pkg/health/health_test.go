package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestStatusFlipsHealthyOnFirstSuccess matches orchestrator.waitHealthy's
// use of Config{Retries: 1}: the wait only cares whether the check has
// succeeded at least once, so a single healthy Result must flip Healthy
// immediately regardless of how many failures came before it.
func TestStatusFlipsHealthyOnFirstSuccess(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retries = 1
	status := NewStatus(false)

	status.Update(Result{Healthy: false, Message: "not ready"}, cfg)
	assert.False(t, status.Healthy)
	assert.Equal(t, 1, status.ConsecutiveFailures)

	status.Update(Result{Healthy: true, Message: "ready"}, cfg)
	assert.True(t, status.Healthy)
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Equal(t, 1, status.ConsecutiveSuccesses)
}

func TestStatusRequiresConfiguredConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retries = 3
	status := NewStatus(true)

	status.Update(Result{Healthy: false}, cfg)
	assert.True(t, status.Healthy, "should stay healthy below the retry threshold")

	status.Update(Result{Healthy: false}, cfg)
	assert.True(t, status.Healthy)

	status.Update(Result{Healthy: false}, cfg)
	assert.False(t, status.Healthy, "should flip unhealthy once ConsecutiveFailures reaches Retries")
}

func TestStatusInStartPeriod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartPeriod = 50 * time.Millisecond
	status := NewStatus(false)

	assert.True(t, status.InStartPeriod(cfg))
	time.Sleep(60 * time.Millisecond)
	assert.False(t, status.InStartPeriod(cfg))
}

func TestStatusInStartPeriodDisabledByDefault(t *testing.T) {
	status := NewStatus(false)
	assert.False(t, status.InStartPeriod(DefaultConfig()))
}

func TestNewStatusInitialHealth(t *testing.T) {
	assert.False(t, NewStatus(false).Healthy)
	assert.True(t, NewStatus(true).Healthy)
}
