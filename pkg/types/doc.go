/*
Package types defines the core data structures shared by Flintrock's
cluster orchestration engine.

This package contains the domain model: clusters, nodes, service
descriptors, and the state machines that track them. Every other engine
package — sshexec, provider, service, cluster, orchestrator — builds on
these types. Flintrock keeps no local database; a Cluster is always
reconstructed from provider tags and security group membership rather
than loaded from disk, so these types are plain in-memory structs with
no persistence concerns of their own.

# State Machines

Nodes move through:

	Pending → Reachable → Configured → Serving
	              ▲                        │
	              └─────── Stopped ◄───────┘
	Any non-terminal state → Terminated

Clusters report an aggregate state computed from their nodes, never
stored independently:

	Pending → Running → Stopping → Stopped → Starting → Running
	                                                   ↘ Terminating → Terminated

A cluster whose nodes disagree about where they are in this machine
(e.g. one slave Serving while another is Stopped) reports
ClusterStateInconsistent rather than guessing.
*/
package types
