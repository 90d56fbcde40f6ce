package types

import "time"

// NodeRole identifies whether a node runs the Spark/HDFS master processes
// or is a worker in the cluster.
type NodeRole string

const (
	NodeRoleMaster NodeRole = "master"
	NodeRoleSlave  NodeRole = "slave"
)

// NodeState tracks an individual EC2 instance through the lifecycle
// described in the cluster state machine: an instance starts Pending in
// the provider, becomes Reachable once the SSH Executor can connect,
// Configured once services are installed and rendered, and Serving once
// the master/slave service processes have been started. Stopping moves a
// node from Serving to Stopped, and starting moves it from Stopped back
// to Reachable; a node never skips Reachable on the way to Serving.
type NodeState string

const (
	NodeStatePending      NodeState = "pending"
	NodeStateReachable    NodeState = "reachable"
	NodeStateConfigured   NodeState = "configured"
	NodeStateServing      NodeState = "serving"
	NodeStateStopped      NodeState = "stopped"
	NodeStateTerminated   NodeState = "terminated"
	NodeStateInconsistent NodeState = "inconsistent"
)

// ClusterState summarizes the aggregate state of a cluster as reported by
// Describe. It is derived from the individual node states on every
// invocation; Flintrock keeps no side-file recording it.
type ClusterState string

const (
	ClusterStatePending      ClusterState = "pending"
	ClusterStateRunning      ClusterState = "running"
	ClusterStateStopping     ClusterState = "stopping"
	ClusterStateStopped      ClusterState = "stopped"
	ClusterStateStarting     ClusterState = "starting"
	ClusterStateTerminating  ClusterState = "terminating"
	ClusterStateTerminated   ClusterState = "terminated"
	ClusterStateInconsistent ClusterState = "inconsistent"
)

// Node is a single EC2 instance participating in a cluster.
type Node struct {
	InstanceID     string
	Role           NodeRole
	State          NodeState
	PrivateAddress string
	PublicAddress  string
	LaunchedAt     time.Time

	// SpotRequestID is set when the instance was allocated via a spot
	// request that has not yet been fulfilled or cancelled. Empty for
	// on-demand instances and for spot instances once fulfilled.
	SpotRequestID string
}

// Reachable reports whether the SSH Executor can be expected to reach
// this node, i.e. it has progressed at least to NodeStateReachable and
// has not since moved to a terminal or pre-reachable state.
func (n *Node) Reachable() bool {
	switch n.State {
	case NodeStateReachable, NodeStateConfigured, NodeStateServing, NodeStateStopped:
		return n.PrivateAddress != ""
	default:
		return false
	}
}

// ServiceVersion describes how to obtain a service's install artifacts:
// either a released tarball at a URL, or a git repository pinned to a
// ref (a branch, tag, or commit SHA). GitRef == "latest" is resolved to
// a concrete commit SHA when the Spark service installs; see
// spark.Service's resolveSource.
type ServiceVersion struct {
	TarballURL string
	GitRepo    string
	GitRef     string
}

// ServiceDescriptor names a service plugin and the version of it to
// install, e.g. {Name: "spark", Version: {TarballURL: ...}}.
type ServiceDescriptor struct {
	Name    string
	Version ServiceVersion
}

// Cluster is a named group of EC2 instances discovered through provider
// tags (flintrock-cluster-name, flintrock-role) and security group
// membership. Flintrock never persists this struct; every command
// reconstructs it fresh from the provider.
type Cluster struct {
	Name            string
	Master          *Node
	Slaves          []*Node
	State           ClusterState
	Services        []ServiceDescriptor
	SecurityGroupID string
	SSHUser         string
	SSHKeyName      string
	StoragePath     string // ephemeral device mount root, e.g. /media/ephemeral0
}

// Nodes returns the master followed by all slaves; the master is omitted
// if it has not yet been allocated.
func (c *Cluster) Nodes() []*Node {
	nodes := make([]*Node, 0, len(c.Slaves)+1)
	if c.Master != nil {
		nodes = append(nodes, c.Master)
	}
	nodes = append(nodes, c.Slaves...)
	return nodes
}

// NumSlaves returns the number of slave nodes, regardless of their
// individual state.
func (c *Cluster) NumSlaves() int {
	return len(c.Slaves)
}
