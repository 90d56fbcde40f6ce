// Package hdfs implements the HDFS service.Service plugin: installing a
// Hadoop distribution, rendering its site configuration, formatting the
// namenode exactly once, and starting and health-checking the namenode
// and datanode daemons.
package hdfs

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/nchammas/flintrock/pkg/errs"
	"github.com/nchammas/flintrock/pkg/health"
	"github.com/nchammas/flintrock/pkg/provider"
	"github.com/nchammas/flintrock/pkg/service"
)

const (
	namenodeRPCPort  = 9000
	namenodeWebPort  = 9870
	datanodeWebPort  = 9864
	defaultReplication = 2
)

// Service installs and operates an HDFS cluster.
type Service struct {
	TarballURL  string
	InstallDir  string // e.g. /usr/local/hadoop
	Replication int
}

// New returns an HDFS Service with sane defaults. Replication defaults
// to 2 rather than Hadoop's usual 3, since Flintrock clusters rarely run
// more than a handful of slaves and a replication factor above the
// slave count just produces perpetually under-replicated blocks.
func New(tarballURL string) *Service {
	return &Service{
		TarballURL:  tarballURL,
		InstallDir:  "/usr/local/hadoop",
		Replication: defaultReplication,
	}
}

func (s *Service) Name() string { return "hdfs" }

func (s *Service) RequiredPorts() []provider.PortRule {
	return []provider.PortRule{
		{FromPort: namenodeWebPort, ToPort: namenodeWebPort, Protocol: "tcp", CIDR: "0.0.0.0/0"},
		{FromPort: namenodeRPCPort, ToPort: namenodeRPCPort, Protocol: "tcp", CIDR: ""},
		{FromPort: datanodeWebPort, ToPort: datanodeWebPort, Protocol: "tcp", CIDR: ""},
	}
}

func (s *Service) Install(ctx context.Context, sctx *service.Context, node service.Node) error {
	cmd := fmt.Sprintf(
		"mkdir -p %s && curl -sL %s | tar xz -C %s --strip-components=1",
		shQuote(s.InstallDir), shQuote(s.TarballURL), shQuote(s.InstallDir),
	)
	result, err := sctx.Executor.Run(ctx, node.Conn, cmd)
	if err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to install hadoop")
	}
	if result.ExitCode != 0 {
		return errs.New(errs.KindRemoteCommand, fmt.Sprintf("hadoop install exited %d: %s", result.ExitCode, result.Stderr))
	}
	return nil
}

func (s *Service) Configure(ctx context.Context, sctx *service.Context, node service.Node) error {
	var core bytes.Buffer
	if err := coreSiteTemplate.Execute(&core, siteData{MasterPrivateAddress: sctx.Master.Node.PrivateAddress}); err != nil {
		return fmt.Errorf("failed to render core-site.xml: %w", err)
	}
	if err := sctx.Executor.Copy(ctx, node.Conn, core.Bytes(), s.InstallDir+"/etc/hadoop/core-site.xml", 0644); err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to upload core-site.xml")
	}

	dataDirs := node.Mounts
	if len(dataDirs) == 0 {
		dataDirs = []string{sctx.StoragePath}
	}
	namenodeDirs := make([]string, len(dataDirs))
	datanodeDirs := make([]string, len(dataDirs))
	for i, dir := range dataDirs {
		namenodeDirs[i] = "file://" + dir + "/hdfs/namenode"
		datanodeDirs[i] = "file://" + dir + "/hdfs/datanode"
	}

	var site bytes.Buffer
	if err := hdfsSiteTemplate.Execute(&site, siteData{
		NamenodeDataDirs: strings.Join(namenodeDirs, ","),
		DatanodeDataDirs: strings.Join(datanodeDirs, ","),
		Replication:      s.Replication,
	}); err != nil {
		return fmt.Errorf("failed to render hdfs-site.xml: %w", err)
	}
	if err := sctx.Executor.Copy(ctx, node.Conn, site.Bytes(), s.InstallDir+"/etc/hadoop/hdfs-site.xml", 0644); err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to upload hdfs-site.xml")
	}

	addresses := make([]string, 0, len(sctx.Slaves))
	for _, slave := range sctx.Slaves {
		addresses = append(addresses, slave.Node.PrivateAddress)
	}
	var slaves bytes.Buffer
	if err := slavesTemplate.Execute(&slaves, slavesData{SlavePrivateAddresses: addresses}); err != nil {
		return fmt.Errorf("failed to render slaves file: %w", err)
	}
	if err := sctx.Executor.Copy(ctx, node.Conn, slaves.Bytes(), s.InstallDir+"/etc/hadoop/slaves", 0644); err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to upload slaves file")
	}

	return nil
}

// namenodeDataDir is the directory format's VERSION-file idempotence
// check inspects, derived the same way hdfs-site.xml's dfs.namenode.name.dir
// is rendered: the master's first discovered ephemeral mount, or
// StoragePath if none were discovered (e.g. in tests).
func (s *Service) namenodeDataDir(sctx *service.Context) string {
	if len(sctx.Master.Mounts) > 0 {
		return sctx.Master.Mounts[0] + "/hdfs/namenode"
	}
	return sctx.StoragePath + "/hdfs/namenode"
}

// StartMaster formats the namenode's storage directory if it hasn't
// been formatted yet, then starts the namenode daemon. Re-running
// "hdfs namenode -format" against an already-formatted directory
// destroys its block map, so Flintrock checks for the VERSION file
// format writes on success and skips formatting if it's already there;
// this makes StartMaster safe to call again after, for example, a
// stop/start round trip.
func (s *Service) StartMaster(ctx context.Context, sctx *service.Context) error {
	dataDir := s.namenodeDataDir(sctx)
	checkCmd := fmt.Sprintf("test -f %s/current/VERSION", shQuote(dataDir))
	result, err := sctx.Executor.Run(ctx, sctx.Master.Conn, checkCmd)
	if err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to check namenode format state")
	}

	if result.ExitCode != 0 {
		formatCmd := fmt.Sprintf("%s/bin/hdfs namenode -format -force -nonInteractive", s.InstallDir)
		formatResult, err := sctx.Executor.Run(ctx, sctx.Master.Conn, formatCmd)
		if err != nil {
			return errs.Wrap(errs.KindRemoteCommand, err, "failed to format namenode")
		}
		if formatResult.ExitCode != 0 {
			return errs.New(errs.KindRemoteCommand, fmt.Sprintf("namenode format exited %d: %s", formatResult.ExitCode, formatResult.Stderr))
		}
	}

	startResult, err := sctx.Executor.Run(ctx, sctx.Master.Conn, s.InstallDir+"/sbin/hadoop-daemon.sh start namenode")
	if err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to start namenode")
	}
	if startResult.ExitCode != 0 {
		return errs.New(errs.KindRemoteCommand, fmt.Sprintf("namenode start exited %d: %s", startResult.ExitCode, startResult.Stderr))
	}
	return nil
}

func (s *Service) StartSlave(ctx context.Context, sctx *service.Context, node service.Node) error {
	result, err := sctx.Executor.Run(ctx, node.Conn, s.InstallDir+"/sbin/hadoop-daemon.sh start datanode")
	if err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to start datanode")
	}
	if result.ExitCode != 0 {
		return errs.New(errs.KindRemoteCommand, fmt.Sprintf("datanode start exited %d: %s", result.ExitCode, result.Stderr))
	}
	return nil
}

func (s *Service) Stop(ctx context.Context, sctx *service.Context, node service.Node) error {
	daemon := "datanode"
	if node.Node == sctx.Master.Node {
		daemon = "namenode"
	}
	_, err := sctx.Executor.Run(ctx, node.Conn, s.InstallDir+"/sbin/hadoop-daemon.sh stop "+daemon)
	if err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to stop hadoop daemon")
	}
	return nil
}

// HealthCheck runs "hdfs dfsadmin -report" through the SSH executor
// rather than polling a web port, since an HDFS node can accept RPC
// connections well before its web UI finishes initializing, and the
// web UI is not part of the contract callers actually depend on. It
// reports healthy once the report's live datanode count reaches the
// number of slaves in the cluster.
func (s *Service) HealthCheck(sctx *service.Context, node service.Node) health.Checker {
	expectedDatanodes := len(sctx.Slaves)
	cmd := s.InstallDir + "/bin/hdfs dfsadmin -report"
	runner := func(ctx context.Context, command string) (string, int, error) {
		result, err := sctx.Executor.Run(ctx, node.Conn, command)
		if err != nil {
			return "", -1, err
		}
		if result.ExitCode != 0 {
			return result.Stdout, result.ExitCode, nil
		}
		live := liveDatanodeCount(result.Stdout)
		if live < expectedDatanodes {
			return fmt.Sprintf("%s\n%d/%d datanodes live", result.Stdout, live, expectedDatanodes), 1, nil
		}
		return result.Stdout, 0, nil
	}
	return health.NewSSHChecker(cmd, runner)
}

// liveDatanodeCount extracts the count from dfsadmin -report's
// "Live datanodes (N):" header line.
func liveDatanodeCount(report string) int {
	idx := strings.Index(report, "Live datanodes (")
	if idx == -1 {
		return 0
	}
	var count int
	if _, err := fmt.Sscanf(report[idx:], "Live datanodes (%d)", &count); err != nil {
		return 0
	}
	return count
}

func shQuote(s string) string {
	return "'" + s + "'"
}
