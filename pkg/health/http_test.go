package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPCheckerStatusRange(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		healthy bool
	}{
		{"ok", http.StatusOK, true},
		{"redirect in default range", http.StatusTemporaryRedirect, true},
		{"server error", http.StatusInternalServerError, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			checker := NewHTTPChecker(server.URL)
			result := checker.Check(context.Background())

			assert.Equal(t, tt.healthy, result.Healthy)
			assert.Equal(t, CheckTypeHTTP, checker.Type())
		})
	}
}

func TestHTTPCheckerCustomStatusRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).WithStatusRange(200, 202)
	result := checker.Check(context.Background())
	assert.True(t, result.Healthy)

	checker.WithStatusRange(200, 200)
	result = checker.Check(context.Background())
	assert.False(t, result.Healthy)
}

func TestHTTPCheckerCustomHeaders(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).WithHeader("Authorization", "Bearer token")
	result := checker.Check(context.Background())

	require.True(t, result.Healthy)
	assert.Equal(t, "Bearer token", gotAuth)
}

func TestHTTPCheckerTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).WithTimeout(1 * time.Millisecond)
	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "request failed")
}

func TestHTTPCheckerContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checker := NewHTTPChecker(server.URL)
	result := checker.Check(ctx)

	assert.False(t, result.Healthy)
}

// sparkWorkerBodyPredicate mirrors pkg/service/spark's HealthCheck
// BodyPredicate: the master's web UI answers 200 well before every worker
// has registered, so the body's worker count is what actually decides
// readiness.
func sparkWorkerBodyPredicate(expectedWorkers int) func(body []byte) (bool, string) {
	return func(body []byte) (bool, string) {
		var status struct {
			Workers []struct {
				State string `json:"state"`
			} `json:"workers"`
		}
		if err := json.Unmarshal(body, &status); err != nil {
			return false, fmt.Sprintf("failed to parse master status json: %v", err)
		}
		alive := 0
		for _, w := range status.Workers {
			if w.State == "ALIVE" {
				alive++
			}
		}
		message := fmt.Sprintf("master reports %d/%d workers alive", alive, expectedWorkers)
		return alive >= expectedWorkers, message
	}
}

func TestHTTPCheckerBodyPredicate(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		healthy     bool
		wantMessage string
	}{
		{
			name:        "all workers alive",
			body:        `{"workers":[{"state":"ALIVE"},{"state":"ALIVE"}]}`,
			healthy:     true,
			wantMessage: "2/2",
		},
		{
			name:        "one worker still starting",
			body:        `{"workers":[{"state":"ALIVE"},{"state":"STARTING"}]}`,
			healthy:     false,
			wantMessage: "1/2",
		},
		{
			name:        "no workers registered yet",
			body:        `{"workers":[]}`,
			healthy:     false,
			wantMessage: "0/2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			checker := NewHTTPChecker(server.URL)
			checker.BodyPredicate = sparkWorkerBodyPredicate(2)

			result := checker.Check(context.Background())

			assert.Equal(t, tt.healthy, result.Healthy)
			assert.Contains(t, result.Message, tt.wantMessage)
		})
	}
}

func TestHTTPCheckerBodyPredicateMalformedBodyIsUnhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)
	checker.BodyPredicate = sparkWorkerBodyPredicate(1)

	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "failed to parse master status json")
}

func TestHTTPCheckerBodyPredicateNotConsultedOnBadStatus(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)
	checker.BodyPredicate = func(body []byte) (bool, string) {
		called = true
		return true, "ok"
	}

	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.False(t, called, "BodyPredicate must not run once the status range already failed the check")
}
