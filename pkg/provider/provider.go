// Package provider defines the cloud provider adapter contract the
// orchestrator drives to allocate, describe, and tear down cluster
// nodes. pkg/provider/ec2 is the only implementation, but the
// orchestrator and its tests depend only on this interface so a second
// cloud could be added without touching orchestration logic.
package provider

import (
	"context"
	"time"

	"github.com/nchammas/flintrock/pkg/types"
)

// MinEphemeralDeviceSize is the minimum size, in bytes, an instance
// store block device must report before Flintrock will mount and
// format it as cluster storage. Smaller devices are typically swap or
// metadata partitions the instance type exposes alongside its real
// ephemeral disks. This resolves Open Question Q2: the threshold is a
// documented constant rather than a magic number, and it is never
// silently adjusted per instance type.
const MinEphemeralDeviceSize = 8 * 1024 * 1024 * 1024 // 8 GiB

// ClusterNameTag and RoleTag are the tag keys Flintrock uses to
// reconstruct cluster membership and node role entirely from the
// provider's own bookkeeping; see spec §3 and §6.
const (
	ClusterNameTag = "flintrock-cluster-name"
	RoleTag        = "flintrock-role"
)

// AllocateRequest describes a batch of identical nodes to launch. A
// Launch operation issues one AllocateRequest for the master (Count: 1)
// and one for the slaves; AddSlaves issues a single request for the
// additional slaves.
type AllocateRequest struct {
	ClusterName      string
	Role             types.NodeRole
	Count            int
	InstanceType     string
	AMI              string
	KeyName          string
	SecurityGroupID  string
	AvailabilityZone string
	SubnetID         string

	// SpotPrice, if non-empty, requests spot instances at this maximum
	// bid instead of on-demand instances.
	SpotPrice string
}

// PortRule describes one security group ingress rule Flintrock requires
// for its services. EnsureSecurityGroup adds the rules implied by a
// cluster's installed services plus the fixed SSH rule to the cluster's
// security group; rules already on the group are not removed.
type PortRule struct {
	FromPort int32
	ToPort   int32
	Protocol string // "tcp" or "udp"
	CIDR     string // e.g. "0.0.0.0/0", or "" to mean "the group itself" (cluster-internal traffic)
}

// Provider is the cloud adapter contract described in spec §4.1:
// allocate, describe, wait-until-reachable, start, stop, terminate, and
// the security-group management Launch/AddSlaves/RemoveSlaves need.
type Provider interface {
	// Allocate launches Count new instances matching req and returns
	// them in NodeStatePending. It does not wait for them to become
	// reachable; call WaitReachable for that.
	Allocate(ctx context.Context, req AllocateRequest) ([]*types.Node, error)

	// Describe reconstructs a Cluster from provider tags and security
	// group membership. It returns an error wrapping errs.KindConfig if
	// no instances carry the given cluster name tag.
	Describe(ctx context.Context, clusterName string) (*types.Cluster, error)

	// WaitReachable blocks until every node in nodes has a private
	// address, a provider-reported pending or running state, and accepts
	// TCP connections on the SSH port, or until timeout elapses. It does
	// not open an SSH session; the orchestrator's SSH dial afterward is
	// what confirms a session can be opened.
	WaitReachable(ctx context.Context, nodes []*types.Node, timeout time.Duration) error

	// Start transitions stopped instances back to running.
	Start(ctx context.Context, nodes []*types.Node) error

	// Stop transitions running instances to stopped. EBS-backed
	// instances preserve their root volume; any data on ephemeral
	// instance store is lost, matching real EC2 behavior.
	Stop(ctx context.Context, nodes []*types.Node) error

	// Terminate permanently destroys instances. Called on Destroy and
	// on rollback after a failed Launch.
	Terminate(ctx context.Context, nodes []*types.Node) error

	// EnsureSecurityGroup creates the cluster's firewall group if it
	// doesn't exist and authorizes rules on it, returning the group ID.
	// Rules are only added: ingress rules already on the group that are
	// not in rules stay in place.
	EnsureSecurityGroup(ctx context.Context, clusterName string, rules []PortRule) (string, error)

	// VerifyIngressRules reports which of rules are missing from the
	// cluster's security group without modifying anything; it never
	// repairs drift. Describe and the describe command do not call it.
	VerifyIngressRules(ctx context.Context, clusterName string, rules []PortRule) (missing []PortRule, err error)

	// CancelSpotRequests cancels any spot instance requests that have
	// not yet been fulfilled. Used during launch rollback so an
	// in-flight spot request doesn't silently hand back an instance
	// after the rest of the launch has already been torn down.
	CancelSpotRequests(ctx context.Context, requestIDs []string) error

	// DeleteSecurityGroup destroys the cluster-owned firewall group
	// identified by groupID. Callers must wait until the cluster's
	// instances have fully terminated first, since a non-empty group
	// still referenced by a running or terminating instance cannot be
	// deleted. Deleting an already-gone group is not an error, so
	// Destroy stays idempotent.
	DeleteSecurityGroup(ctx context.Context, groupID string) error
}
