/*
Package orchestrator drives the lifecycle operations described in
spec §4.6: Launch, AddSlaves, RemoveSlaves, Start, Stop, Destroy, and
Describe. It is the one package that talks to both pkg/provider and
pkg/service/pkg/sshexec at once; every other package only knows about
one side of that boundary.

	Launch
	  check not-exists → ensure security group → allocate master + slaves
	  → wait reachable → connect SSH → install (HDFS, then Spark)
	  → configure → start master → start slaves → health check
	  → on any failure from allocate onward: roll back (terminate +
	    cancel unfulfilled spot requests + once the instances are
	    terminated, best-effort remove the cluster's security group,
	    whether this launch created it or found it already in place)

Launch's and Start's per-node steps fan out through sshexec.FanOut with
a concurrency bound equal to the node count, matching the "bounded
pool" strategy spec §9 leaves as implementation freedom. AddSlaves
installs, starts and RemoveSlaves stops the added or removed nodes one
at a time. The SSH dial step is the one
place a live network dependency is unavoidable for testing, so it sits
behind the small Dialer interface below; everything else in this
package is driven through pkg/provider.Provider and service.Service,
both already interfaces.
*/
package orchestrator
