// Package cluster implements the Cluster Model: deriving a cluster's
// aggregate state from its nodes' individual states, validating state
// transitions, and reconstructing a Cluster entirely from the cloud
// provider's own bookkeeping (tags and security groups), since Flintrock
// keeps no local database of its own.
package cluster

import (
	"context"
	"fmt"

	"github.com/nchammas/flintrock/pkg/errs"
	"github.com/nchammas/flintrock/pkg/provider"
	"github.com/nchammas/flintrock/pkg/types"
)

// IsNotFound reports whether err is the "no cluster with this name"
// error Describe returns. Describe's only KindConfig case is exactly
// this condition, so checking the kind is sufficient without needing a
// dedicated sentinel error.
func IsNotFound(err error) bool {
	kind, ok := errs.KindOf(err)
	return ok && kind == errs.KindConfig
}

// Discover reconstructs a cluster's current state by asking provider for
// every instance tagged with clusterName. This is the only source of
// truth Flintrock ever consults for "what clusters exist and what state
// are they in" — there is no cache or database to fall out of sync with
// it.
func Discover(ctx context.Context, p provider.Provider, clusterName string) (*types.Cluster, error) {
	c, err := p.Describe(ctx, clusterName)
	if err != nil {
		return nil, err
	}
	c.State = AggregateState(c)
	return c, nil
}

// AggregateState derives a cluster's overall state from its nodes'
// individual states. A cluster is Inconsistent if its nodes disagree
// about what stage of the lifecycle they're in, which can happen if a
// previous operation was interrupted partway through (for example, the
// process was killed midway through stopping a cluster, leaving some
// nodes stopped and others still running).
func AggregateState(c *types.Cluster) types.ClusterState {
	nodes := c.Nodes()
	if len(nodes) == 0 {
		return types.ClusterStateTerminated
	}

	counts := make(map[types.NodeState]int)
	for _, n := range nodes {
		counts[n.State]++
	}

	switch {
	case counts[types.NodeStatePending] == len(nodes):
		return types.ClusterStatePending
	case counts[types.NodeStateServing] == len(nodes):
		return types.ClusterStateRunning
	case counts[types.NodeStateStopped] == len(nodes):
		return types.ClusterStateStopped
	case counts[types.NodeStateTerminated] == len(nodes):
		return types.ClusterStateTerminated
	case counts[types.NodeStateServing]+counts[types.NodeStateConfigured]+counts[types.NodeStateReachable] == len(nodes):
		return types.ClusterStateStarting
	default:
		return types.ClusterStateInconsistent
	}
}

// nodeTransitions enumerates the node states each state may legally
// advance to. It does not include Terminated, since every non-terminal
// state may move there (a node can always be torn down, even mid-launch).
var nodeTransitions = map[types.NodeState][]types.NodeState{
	types.NodeStatePending:    {types.NodeStateReachable},
	types.NodeStateReachable:  {types.NodeStateConfigured},
	types.NodeStateConfigured: {types.NodeStateServing},
	types.NodeStateServing:    {types.NodeStateStopped},
	types.NodeStateStopped:    {types.NodeStateReachable}, // restart rejoins at Reachable, not Serving, until re-verified
}

// ValidateNodeTransition returns an error wrapping errs.KindWrongState if
// moving node from its current state to next is not a legal transition.
func ValidateNodeTransition(node *types.Node, next types.NodeState) error {
	if next == types.NodeStateTerminated {
		return nil
	}
	for _, allowed := range nodeTransitions[node.State] {
		if allowed == next {
			return nil
		}
	}
	return errs.New(errs.KindWrongState, fmt.Sprintf(
		"node %s cannot move from %s to %s", node.InstanceID, node.State, next,
	))
}

// clusterTransitions is the aggregate-level equivalent of
// nodeTransitions, used by the orchestrator to reject operations that
// don't make sense for a cluster's current state (for example, Stop on
// a cluster that is already Stopped).
var clusterTransitions = map[types.ClusterState][]types.ClusterState{
	types.ClusterStatePending:     {types.ClusterStateRunning},
	types.ClusterStateRunning:     {types.ClusterStateStopping, types.ClusterStateTerminating},
	types.ClusterStateStopping:    {types.ClusterStateStopped},
	types.ClusterStateStopped:     {types.ClusterStateStarting, types.ClusterStateTerminating},
	types.ClusterStateStarting:    {types.ClusterStateRunning},
	types.ClusterStateTerminating: {types.ClusterStateTerminated},
}

// ValidateClusterTransition returns an error wrapping errs.KindWrongState
// if moving c from its current state to next is not a legal operation.
// Inconsistent clusters accept no transitions; an operator must resolve
// the disagreement (for instance by destroying the cluster) before
// Flintrock will act on it again.
func ValidateClusterTransition(c *types.Cluster, next types.ClusterState) error {
	if c.State == types.ClusterStateInconsistent {
		return errs.New(errs.KindInconsistent, fmt.Sprintf(
			"cluster %s is in an inconsistent state and must be inspected manually", c.Name,
		))
	}
	for _, allowed := range clusterTransitions[c.State] {
		if allowed == next {
			return nil
		}
	}
	return errs.New(errs.KindWrongState, fmt.Sprintf(
		"cluster %s cannot move from %s to %s", c.Name, c.State, next,
	))
}

// SelectSlavesToRemove picks count slaves to remove from c, choosing the
// slaves with the lexicographically lowest instance IDs. Among
// otherwise-interchangeable slaves this gives RemoveSlaves deterministic,
// repeatable behavior rather than depending on provider-returned
// ordering, which EC2 does not guarantee is stable across calls.
func SelectSlavesToRemove(c *types.Cluster, count int) ([]*types.Node, error) {
	if count > len(c.Slaves) {
		return nil, errs.New(errs.KindConfig, fmt.Sprintf(
			"cannot remove %d slaves from a cluster with only %d", count, len(c.Slaves),
		))
	}

	sorted := make([]*types.Node, len(c.Slaves))
	copy(sorted, c.Slaves)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].InstanceID < sorted[j-1].InstanceID; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	return sorted[:count], nil
}
