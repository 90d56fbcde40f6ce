package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nchammas/flintrock/pkg/errs"
	"github.com/nchammas/flintrock/pkg/provider"
	"github.com/nchammas/flintrock/pkg/service"
	"github.com/nchammas/flintrock/pkg/sshexec"
)

// ephemeralDiscoveryScript lists every whole disk on the instance that
// isn't the root device and isn't already mounted, one "<device> <size>"
// pair per line. blockdev --getsize64 reports bytes, which is what
// discoverEphemeralMounts compares against provider.MinEphemeralDeviceSize.
const ephemeralDiscoveryScript = `
root_dev=$(findmnt -n -o SOURCE / | sed 's/[0-9]*$//')
for dev in $(lsblk -ndo NAME,TYPE | awk '$2 == "disk" {print $1}'); do
  devpath="/dev/$dev"
  [ "$devpath" = "$root_dev" ] && continue
  mountpoint -q "$devpath" 2>/dev/null && continue
  grep -q "^$devpath " /proc/mounts 2>/dev/null && continue
  size=$(blockdev --getsize64 "$devpath" 2>/dev/null) || continue
  echo "$devpath $size"
done
`

// discoverEphemeralMounts finds the node's unmounted ephemeral instance
// store devices, formats and mounts any at or above
// provider.MinEphemeralDeviceSize at storageRoot with a running index
// appended (storageRoot+"0", storageRoot+"1", ...), and returns their
// mount paths in device order. Smaller devices are skipped outright: on
// M5-family instance types, one of the store "devices" lsblk reports is
// actually a small stub the hypervisor never backs with real storage,
// and mounting it only produces a disk that looks usable but silently
// fills up.
func (o *Orchestrator) discoverEphemeralMounts(ctx context.Context, conn *sshexec.Connection, storageRoot string) ([]string, error) {
	result, err := o.Executor.Run(ctx, conn, ephemeralDiscoveryScript)
	if err != nil {
		return nil, errs.Wrap(errs.KindRemoteCommand, err, "failed to list block devices")
	}
	if result.ExitCode != 0 {
		return nil, errs.New(errs.KindRemoteCommand, fmt.Sprintf("block device discovery exited %d: %s", result.ExitCode, result.Stderr))
	}

	var mounts []string
	idx := 0
	for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || size < provider.MinEphemeralDeviceSize {
			continue
		}

		device := fields[0]
		mountPath := fmt.Sprintf("%s%d", storageRoot, idx)
		mountCmd := fmt.Sprintf(
			"sudo mkdir -p %s && (sudo mkfs.ext4 -F %s || true) && sudo mount %s %s && sudo chown -R $(whoami) %s",
			shQuote(mountPath), shQuote(device), shQuote(device), shQuote(mountPath), shQuote(mountPath),
		)
		mountResult, err := o.Executor.Run(ctx, conn, mountCmd)
		if err != nil {
			return nil, errs.Wrap(errs.KindRemoteCommand, err, fmt.Sprintf("failed to mount ephemeral device %s", device))
		}
		if mountResult.ExitCode != 0 {
			return nil, errs.New(errs.KindRemoteCommand, fmt.Sprintf("mounting %s exited %d: %s", device, mountResult.ExitCode, mountResult.Stderr))
		}

		mounts = append(mounts, mountPath)
		idx++
	}
	return mounts, nil
}

// discoverCPUCount returns the node's logical CPU count via nproc, used
// to size SPARK_EXECUTOR_INSTANCES/SPARK_EXECUTOR_CORES/SPARK_WORKER_CORES.
func (o *Orchestrator) discoverCPUCount(ctx context.Context, conn *sshexec.Connection) (int, error) {
	result, err := o.Executor.Run(ctx, conn, "nproc")
	if err != nil {
		return 0, errs.Wrap(errs.KindRemoteCommand, err, "failed to determine cpu count")
	}
	if result.ExitCode != 0 {
		return 0, errs.New(errs.KindRemoteCommand, fmt.Sprintf("nproc exited %d: %s", result.ExitCode, result.Stderr))
	}
	count, err := strconv.Atoi(strings.TrimSpace(result.Stdout))
	if err != nil || count <= 0 {
		return 1, nil
	}
	return count, nil
}

// publicDNSDiscoveryScript resolves the instance's public DNS name from
// its own metadata service: IMDSv1 first since it's a plain GET with no
// round trip for a token, then IMDSv2 for instances that require it. It
// never errors; an instance with IMDS blocked or no public DNS (e.g. one
// launched without a public IP) just prints nothing, and the caller
// leaves SPARK_PUBLIC_DNS unset rather than writing "unset" to garbage.
const publicDNSDiscoveryScript = `
dns=$(curl -s -m 2 http://169.254.169.254/latest/meta-data/public-hostname 2>/dev/null || true)
if [ -z "$dns" ]; then
  token=$(curl -s -m 2 -X PUT http://169.254.169.254/latest/api/token -H 'X-aws-ec2-metadata-token-ttl-seconds: 21600' 2>/dev/null || true)
  if [ -n "$token" ]; then
    dns=$(curl -s -m 2 -H "X-aws-ec2-metadata-token: $token" http://169.254.169.254/latest/meta-data/public-hostname 2>/dev/null || true)
  fi
fi
echo "$dns"
`

// discoverPublicDNS is best-effort: any failure to reach IMDS or an
// empty response resolves to "", and Configure leaves SPARK_PUBLIC_DNS
// unset rather than failing the launch over it.
func (o *Orchestrator) discoverPublicDNS(ctx context.Context, conn *sshexec.Connection) string {
	result, err := o.Executor.Run(ctx, conn, publicDNSDiscoveryScript)
	if err != nil || result.ExitCode != 0 {
		return ""
	}
	return strings.TrimSpace(result.Stdout)
}

// nodeFacts holds what discoverNodeFacts learns about one node.
type nodeFacts struct {
	mounts    []string
	cpuCount  int
	publicDNS string
}

type indexedNode struct {
	idx  int
	node service.Node
}

// discoverNodeFacts probes every node in sctx for the facts Configure
// needs (ephemeral mounts, CPU count, public DNS) and rewrites sctx's
// Master/Slaves with the populated service.Node values. It runs after
// Install and before Configure, per the cluster-parameter-collection
// step of the launch sequence.
func (o *Orchestrator) discoverNodeFacts(ctx context.Context, sctx *service.Context, storageRoot string) error {
	if o.Executor == nil {
		// No SSH executor configured: the caller (tests, or a
		// provider-only command path) isn't driving real services
		// that would need these facts either.
		return nil
	}

	nodes := sctx.AllNodes()
	items := make([]indexedNode, len(nodes))
	for i, n := range nodes {
		items[i] = indexedNode{idx: i, node: n}
	}

	facts := make([]nodeFacts, len(nodes))
	errors := sshexec.FanOut(ctx, items, len(items), func(ctx context.Context, it indexedNode) error {
		mounts, err := o.discoverEphemeralMounts(ctx, it.node.Conn, storageRoot)
		if err != nil {
			return err
		}
		cpus, err := o.discoverCPUCount(ctx, it.node.Conn)
		if err != nil {
			return err
		}
		facts[it.idx] = nodeFacts{
			mounts:    mounts,
			cpuCount:  cpus,
			publicDNS: o.discoverPublicDNS(ctx, it.node.Conn),
		}
		return nil
	})
	if err := firstError(errors); err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to probe node facts")
	}

	for i, n := range nodes {
		n.Mounts = facts[i].mounts
		n.CPUCount = facts[i].cpuCount
		n.PublicDNS = facts[i].publicDNS
		nodes[i] = n
	}
	for _, n := range nodes {
		if n.Node == sctx.Master.Node {
			sctx.Master = n
		}
	}
	slaves := make([]service.Node, 0, len(sctx.Slaves))
	for _, n := range nodes {
		if n.Node != sctx.Master.Node {
			slaves = append(slaves, n)
		}
	}
	sctx.Slaves = slaves
	return nil
}

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
