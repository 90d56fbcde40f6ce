/*
Package metrics registers Flintrock's Prometheus instrumentation:
provider call latency and failures, SSH command latency and retries,
health check outcomes, and top-level operation (launch/destroy/...)
duration and outcome counts.

Flintrock is a CLI, not a daemon, so nothing in this package runs a
background collection loop — metrics are point-in-time counters and
histograms updated inline by the packages that do the work, and
Handler() is only mounted if an operator explicitly asks cmd/flintrock
to expose it for the duration of a single long-running invocation.
*/
package metrics
