package hdfs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nchammas/flintrock/pkg/service"
)

func TestCoreSiteTemplateRendersMaster(t *testing.T) {
	var buf bytes.Buffer
	err := coreSiteTemplate.Execute(&buf, siteData{MasterPrivateAddress: "10.0.0.1"})

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "hdfs://10.0.0.1:9000")
}

func TestHDFSSiteTemplateRendersReplicationAndPaths(t *testing.T) {
	var buf bytes.Buffer
	err := hdfsSiteTemplate.Execute(&buf, siteData{
		NamenodeDataDirs: "file:///media/ephemeral0/hdfs/namenode,file:///media/ephemeral1/hdfs/namenode",
		DatanodeDataDirs: "file:///media/ephemeral0/hdfs/datanode,file:///media/ephemeral1/hdfs/datanode",
		Replication:      2,
	})

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "<value>2</value>")
	assert.Contains(t, out, "/media/ephemeral0/hdfs/namenode")
	assert.Contains(t, out, "/media/ephemeral1/hdfs/datanode")
}

func TestNewDefaultsToReplicationTwo(t *testing.T) {
	s := New("https://example.com/hadoop.tgz")
	assert.Equal(t, 2, s.Replication)
}

func TestNamenodeDataDirDerivedFromStoragePath(t *testing.T) {
	s := New("https://example.com/hadoop.tgz")
	sctx := &service.Context{StoragePath: "/media/ephemeral0"}

	assert.Equal(t, "/media/ephemeral0/hdfs/namenode", s.namenodeDataDir(sctx))
}

func TestNamenodeDataDirPrefersDiscoveredMount(t *testing.T) {
	s := New("https://example.com/hadoop.tgz")
	sctx := &service.Context{
		StoragePath: "/media/ephemeral0",
		Master:      service.Node{Mounts: []string{"/media/ephemeral1", "/media/ephemeral2"}},
	}

	assert.Equal(t, "/media/ephemeral1/hdfs/namenode", s.namenodeDataDir(sctx))
}

func TestLiveDatanodeCountParsesReportHeader(t *testing.T) {
	report := "Configured Capacity: 100\nLive datanodes (3):\n\nName: 10.0.0.2:9864"
	assert.Equal(t, 3, liveDatanodeCount(report))
}

func TestLiveDatanodeCountZeroWhenHeaderMissing(t *testing.T) {
	assert.Equal(t, 0, liveDatanodeCount("garbage output"))
}

func TestRequiredPortsIncludesNamenodeWebUI(t *testing.T) {
	s := New("https://example.com/hadoop.tgz")
	ports := s.RequiredPorts()

	found := false
	for _, p := range ports {
		if p.FromPort == namenodeWebPort {
			found = true
		}
	}
	assert.True(t, found)
}
