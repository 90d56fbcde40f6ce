/*
Package sshexec is Flintrock's SSH Executor: the component responsible
for connecting to cluster nodes, running commands, and copying rendered
config files onto them. Every install/configure/start/stop operation the
orchestrator performs against a node goes through this package. The
only other connections to a node are health checks and the provider's
port-22 reachability probe, which dial it through pkg/health.

	Executor
	  Connect(ctx, address) (*Connection, error)   — dial + retry/backoff
	  Run(ctx, conn, command) (Result, error)       — run a remote command
	  Copy(ctx, conn, content, path, mode) error     — write a remote file
	  Close(conn) error

# Concurrency

FanOut runs a function against a set of nodes with bounded concurrency,
following the same goroutine-per-unit-of-work-plus-WaitGroup shape the
rest of this codebase's concurrent fan-out code uses: a semaphore channel
caps in-flight connections, and errors are collected into a slice indexed
by node rather than the first error winning, so a caller can decide
whether a partial failure should roll back the whole operation or just
that one node.

# Retry

Connect retries on dial failure (the node may not have finished booting)
with linear backoff, up to Config.MaxRetries attempts, but Run and Copy do not
retry — a command that fails after a successful connection is a real
failure, not a transient one, and retrying it silently would hide
real configuration errors from the caller.
*/
package sshexec
