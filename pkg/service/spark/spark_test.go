package spark

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nchammas/flintrock/pkg/health"
	"github.com/nchammas/flintrock/pkg/service"
	"github.com/nchammas/flintrock/pkg/types"
)

func TestSparkEnvTemplateRendersMasterAndStorage(t *testing.T) {
	var buf bytes.Buffer
	err := sparkEnvTemplate.Execute(&buf, envData{
		MasterPrivateAddress: "10.0.0.1",
		StoragePath:          "/media/ephemeral0",
		LocalDirs:            "/media/ephemeral0/spark/local,/media/ephemeral1/spark/local",
		InstallDir:           "/usr/local/spark",
		WorkerCores:          4,
		ExecutorCores:        4,
		ExecutorInstances:    1,
	})

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "SPARK_MASTER_HOST=10.0.0.1")
	assert.Contains(t, out, "SPARK_LOCAL_DIRS=/media/ephemeral0/spark/local,/media/ephemeral1/spark/local")
	assert.Contains(t, out, "SPARK_WORKER_CORES=4")
	assert.Contains(t, out, "PYSPARK_PYTHON=python3")
	assert.NotContains(t, out, "HADOOP_CONF_DIR")
	assert.NotContains(t, out, "SPARK_PUBLIC_DNS")
}

func TestSlavesTemplateOnePerLine(t *testing.T) {
	var buf bytes.Buffer
	err := slavesTemplate.Execute(&buf, slavesData{SlavePrivateAddresses: []string{"10.0.0.2", "10.0.0.3"}})

	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2\n10.0.0.3\n", buf.String())
}

func TestResolveSourcePrefersTarball(t *testing.T) {
	s := New(Version{TarballURL: "https://example.com/spark.tgz", GitRepo: "apache/spark", GitRef: "latest"})

	source, err := s.resolveSource(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/spark.tgz", source.tarballURL)
}

func TestResolveSourcePinnedGitRefSkipsGitHubAPI(t *testing.T) {
	s := New(Version{GitRepo: "apache/spark", GitRef: "abc123"})

	source, err := s.resolveSource(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "abc123", source.gitRef)
	assert.Equal(t, "https://github.com/apache/spark.git", source.cloneURL)
}

func TestResolveSourceLatestFailsClosedOnGitHubAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := New(Version{GitRepo: "apache/spark", GitRef: "latest"})
	s.httpClient = server.Client()
	s.githubAPI = server.URL

	_, err := s.resolveSource(context.Background())

	assert.Error(t, err)
}

func TestResolveSourceLatestResolvesCommitSHA(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sha": "deadbeef"}`))
	}))
	defer server.Close()

	s := New(Version{GitRepo: "apache/spark", GitRef: "latest"})
	s.httpClient = server.Client()
	s.githubAPI = server.URL

	source, err := s.resolveSource(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "deadbeef", source.gitRef)
}

func TestJavaVersionPrefixMapsEightToLegacyScheme(t *testing.T) {
	assert.Equal(t, "1.8", javaVersionPrefix("8"))
	assert.Equal(t, "11", javaVersionPrefix("11"))
}

func TestRequiredPortsIncludesWebUIAndRPC(t *testing.T) {
	s := New(Version{TarballURL: "https://example.com/spark.tgz"})
	ports := s.RequiredPorts()

	assert.Len(t, ports, 3)
}

func TestHealthCheckMasterBodyPredicateRequiresAllWorkersAlive(t *testing.T) {
	s := New(Version{TarballURL: "https://example.com/spark.tgz"})
	master := &types.Node{PrivateAddress: "10.0.0.1"}
	sctx := &service.Context{
		Master: service.Node{Node: master},
		Slaves: []service.Node{{Node: &types.Node{PrivateAddress: "10.0.0.2"}}, {Node: &types.Node{PrivateAddress: "10.0.0.3"}}},
	}

	checker, ok := s.HealthCheck(sctx, sctx.Master).(*health.HTTPChecker)
	require.True(t, ok)
	require.NotNil(t, checker.BodyPredicate)

	ok, _ = checker.BodyPredicate([]byte(`{"workers":[{"state":"ALIVE"},{"state":"ALIVE"}]}`))
	assert.True(t, ok)

	ok, _ = checker.BodyPredicate([]byte(`{"workers":[{"state":"ALIVE"},{"state":"DEAD"}]}`))
	assert.False(t, ok)
}
