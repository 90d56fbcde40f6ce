/*
Package health implements the three health check mechanisms Flintrock
drives against a node over its lifetime: HTTP (Spark web UIs, used by
the Service Plugin health check in pkg/service/spark), TCP (raw port reachability, used by
pkg/provider/ec2's WaitReachable to confirm sshd is actually accepting
connections on port 22 before the orchestrator tries to dial it), and
SSH-command (running a check command on the node itself, e.g. HDFS's
dfsadmin -report).

	Checker interface
	  Check(ctx) Result
	  Type() CheckType
	       │
	       ├── HTTPChecker  — GET a URL, check status range, optional BodyPredicate
	       ├── TCPChecker   — dial a TCP address
	       └── SSHChecker   — run a command, check exit code

Status/Config back orchestrator.waitHealthy's bounded wait for a
service's HealthCheck to first report healthy: Update folds a Result
into a running Status. The first healthy Result sets Status.Healthy;
Retries is how many consecutive failed Results it takes to clear it
again (the orchestrator sets Retries to 1 and stops waiting at the
first success, since spec §4.6 only requires the check to succeed once
within its budget).
*/
package health
