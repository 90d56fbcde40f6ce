/*
Package log provides structured logging for Flintrock using zerolog.

The log package wraps zerolog to give every engine component a
component-scoped logger, a configurable level, and either JSON or
console-formatted output. Since Flintrock runs as a single short-lived
CLI invocation rather than a long-lived daemon, there is no log rotation
or aggregation concern here — logs go to stdout/stderr for the invoking
terminal or its process supervisor to capture.

# Architecture

	┌──────────────── LOGGING SYSTEM ────────────────┐
	│  Global Logger (zerolog.Logger)                 │
	│    initialized once via log.Init()              │
	│           │                                     │
	│           ▼                                     │
	│  Config{Level, JSONOutput, Output}               │
	│           │                                     │
	│           ▼                                     │
	│  Component loggers                              │
	│    WithComponent("orchestrator")                │
	│    WithClusterName("my-cluster")                │
	│    WithNodeID("i-0abc123")                       │
	│    WithOperation("launch")                       │
	└─────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stderr})

	clusterLog := log.WithClusterName(cluster.Name)
	clusterLog.Info().Str("node_id", node.InstanceID).Msg("node reachable")

	if err != nil {
		clusterLog.Error().Err(err).Msg("health check failed")
	}

Never log SSH private key material or provider credentials through this
package; every call site in this repository passes only cluster names,
instance IDs, and operation names.
*/
package log
