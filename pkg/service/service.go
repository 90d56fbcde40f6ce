// Package service defines the Service Plugin contract that pkg/service/spark
// and pkg/service/hdfs implement, and the fixed ordering the orchestrator
// uses to drive them across a cluster's nodes.
package service

import (
	"context"

	"github.com/nchammas/flintrock/pkg/health"
	"github.com/nchammas/flintrock/pkg/provider"
	"github.com/nchammas/flintrock/pkg/sshexec"
	"github.com/nchammas/flintrock/pkg/types"
)

// Node bundles the addressing and role information a Service needs to act
// on one cluster member, together with the connection it should use.
type Node struct {
	Node *types.Node
	Conn *sshexec.Connection

	// Mounts, CPUCount, and PublicDNS are facts the orchestrator probes
	// over SSH between Install and Configure; they are empty/zero until
	// then. Mounts holds the node's formatted ephemeral device mount
	// paths, filtered to provider.MinEphemeralDeviceSize and larger.
	// PublicDNS is "" when IMDS is unreachable or the instance has no
	// public DNS name.
	Mounts    []string
	CPUCount  int
	PublicDNS string
}

// Context carries everything a Service method needs beyond the nodes
// themselves: the Executor to run commands with, and the rest of the
// cluster so a service can reference, say, the master's private address
// when configuring a slave.
type Context struct {
	ClusterName string
	Master      Node
	Slaves      []Node
	Executor    *sshexec.Executor
	StoragePath string // ephemeral device mount root
}

// AllNodes returns the master followed by the slaves, the order every
// Service method processes nodes in.
func (c *Context) AllNodes() []Node {
	nodes := make([]Node, 0, len(c.Slaves)+1)
	nodes = append(nodes, c.Master)
	nodes = append(nodes, c.Slaves...)
	return nodes
}

// Service is the plugin contract a cluster service (Spark, HDFS) must
// implement. The orchestrator calls its methods across a cluster's
// nodes, often in parallel through sshexec.FanOut; a Service
// implementation itself only has to handle one node at a time.
type Service interface {
	// Name identifies the service for logging, tagging, and the
	// "installed services" list Describe reports.
	Name() string

	// RequiredPorts lists the security group ingress rules this service
	// needs once installed, so Launch can open them in the cluster's
	// security group.
	RequiredPorts() []provider.PortRule

	// Install places the service's software on node, idempotently. It
	// does not start anything.
	Install(ctx context.Context, sctx *Context, node Node) error

	// Configure renders and uploads the service's configuration files
	// to node. Configure runs after Install on every node, and again
	// whenever cluster membership changes (AddSlaves, RemoveSlaves),
	// since most of these services distribute a full member list to
	// every node.
	Configure(ctx context.Context, sctx *Context, node Node) error

	// StartMaster starts the service's master-role daemon(s). Called
	// once, on the master node only.
	StartMaster(ctx context.Context, sctx *Context) error

	// StartSlave starts the service's slave-role daemon(s) on node.
	StartSlave(ctx context.Context, sctx *Context, node Node) error

	// Stop stops whatever daemons this service started on node,
	// regardless of role.
	Stop(ctx context.Context, sctx *Context, node Node) error

	// HealthCheck returns a health.Checker that reports whether the
	// service is accepting work on node.
	HealthCheck(sctx *Context, node Node) health.Checker
}

// Order is the fixed sequence services are installed, configured, and
// started in. HDFS must be serving before Spark starts, since any Spark
// job that reads or writes HDFS paths will fail to resolve the namenode
// otherwise.
var Order = []string{"hdfs", "spark"}

// Sort returns services reordered to match Order; services is expected
// to contain each name in Order at most once.
func Sort(services []Service) []Service {
	byName := make(map[string]Service, len(services))
	for _, s := range services {
		byName[s.Name()] = s
	}
	sorted := make([]Service, 0, len(services))
	for _, name := range Order {
		if s, ok := byName[name]; ok {
			sorted = append(sorted, s)
		}
	}
	return sorted
}
