package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nchammas/flintrock/pkg/cluster"
	"github.com/nchammas/flintrock/pkg/errs"
	"github.com/nchammas/flintrock/pkg/health"
	"github.com/nchammas/flintrock/pkg/log"
	"github.com/nchammas/flintrock/pkg/metrics"
	"github.com/nchammas/flintrock/pkg/provider"
	"github.com/nchammas/flintrock/pkg/service"
	"github.com/nchammas/flintrock/pkg/sshexec"
	"github.com/nchammas/flintrock/pkg/types"
)

const (
	defaultSecurityGroupCIDR = "0.0.0.0/0"
	defaultSSHPort           = 22
	reachabilityTimeout      = 5 * time.Minute
	healthCheckBudget        = 90 * time.Second
	healthCheckInterval      = 5 * time.Second
)

// Dialer is the subset of sshexec.Executor the orchestrator needs to
// open and close node connections. Pulling it out as an interface lets
// tests substitute a fake that never touches the network; service
// installation itself is exercised through fake service.Service values
// instead, since *sshexec.Executor's Run/Copy methods are concrete and
// not worth wrapping a second time here.
type Dialer interface {
	Connect(ctx context.Context, address string) (*sshexec.Connection, error)
	Close(conn *sshexec.Connection) error
}

// LaunchSpec describes a cluster to bring up. cmd/flintrock builds one
// from the LaunchConfig its --config YAML file decodes into.
type LaunchSpec struct {
	ClusterName      string
	NumSlaves        int
	InstanceType     string
	AMI              string
	KeyName          string
	IdentityFilePath string
	SSHUser          string
	AvailabilityZone string
	SubnetID         string
	SpotPrice        string
	StoragePath      string
	Services         []service.Service

	// AssumeYes skips the rollback confirmation prompt. When false and
	// Confirm is non-nil, Confirm is called once before rolling back a
	// failed launch; a false return leaves the partially-launched
	// instances in place for the operator to inspect.
	AssumeYes bool
	Confirm   func() bool
}

// Orchestrator ties a Provider and an SSH Dialer together to implement
// cluster lifecycle operations. Outside tests, Dialer and Executor are
// the same *sshexec.Executor value; cmd/flintrock builds it once from
// the cluster's identity file and passes it in here.
type Orchestrator struct {
	Provider provider.Provider
	Dialer   Dialer
	Executor *sshexec.Executor
}

// New returns an Orchestrator.
func New(p provider.Provider, dialer Dialer, executor *sshexec.Executor) *Orchestrator {
	return &Orchestrator{
		Provider: p,
		Dialer:   dialer,
		Executor: executor,
	}
}

func (o *Orchestrator) logger(clusterName, operation string) zerolog.Logger {
	return log.Logger.With().
		Str("component", "orchestrator").
		Str("cluster_name", clusterName).
		Str("operation", operation).
		Logger()
}

// Launch provisions a new cluster per spec §4.6. On any failure from
// security-group creation onward, it rolls back everything this call
// allocated.
func (o *Orchestrator) Launch(ctx context.Context, spec LaunchSpec) (*types.Cluster, error) {
	logger := o.logger(spec.ClusterName, "launch")
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.OperationDuration, "launch")

	if _, err := o.Provider.Describe(ctx, spec.ClusterName); err == nil {
		return nil, errs.New(errs.KindWrongState, fmt.Sprintf("cluster %s already exists", spec.ClusterName))
	} else if !cluster.IsNotFound(err) {
		return nil, err
	}

	services := service.Sort(spec.Services)
	rules := append([]provider.PortRule{{FromPort: defaultSSHPort, ToPort: defaultSSHPort, Protocol: "tcp", CIDR: defaultSecurityGroupCIDR}})
	for _, svc := range services {
		rules = append(rules, svc.RequiredPorts()...)
	}

	groupID, err := o.Provider.EnsureSecurityGroup(ctx, spec.ClusterName, rules)
	if err != nil {
		metrics.OperationsTotal.WithLabelValues("launch", "failure").Inc()
		return nil, err
	}

	var allocated []*types.Node
	rollback := func(cause error) (*types.Cluster, error) {
		o.rollbackLaunch(ctx, spec, allocated, groupID, cause)
		metrics.OperationsTotal.WithLabelValues("launch", "failure").Inc()
		return nil, cause
	}

	master, err := o.Provider.Allocate(ctx, provider.AllocateRequest{
		ClusterName:      spec.ClusterName,
		Role:             types.NodeRoleMaster,
		Count:            1,
		InstanceType:     spec.InstanceType,
		AMI:              spec.AMI,
		KeyName:          spec.KeyName,
		SecurityGroupID:  groupID,
		AvailabilityZone: spec.AvailabilityZone,
		SubnetID:         spec.SubnetID,
		SpotPrice:        spec.SpotPrice,
	})
	if err != nil {
		return rollback(err)
	}
	allocated = append(allocated, master...)

	var slaves []*types.Node
	if spec.NumSlaves > 0 {
		slaves, err = o.Provider.Allocate(ctx, provider.AllocateRequest{
			ClusterName:      spec.ClusterName,
			Role:             types.NodeRoleSlave,
			Count:            spec.NumSlaves,
			InstanceType:     spec.InstanceType,
			AMI:              spec.AMI,
			KeyName:          spec.KeyName,
			SecurityGroupID:  groupID,
			AvailabilityZone: spec.AvailabilityZone,
			SubnetID:         spec.SubnetID,
			SpotPrice:        spec.SpotPrice,
		})
		if err != nil {
			return rollback(err)
		}
		allocated = append(allocated, slaves...)
	}

	c := &types.Cluster{
		Name:            spec.ClusterName,
		Master:          master[0],
		Slaves:          slaves,
		SecurityGroupID: groupID,
		SSHUser:         spec.SSHUser,
		SSHKeyName:      spec.KeyName,
		StoragePath:     spec.StoragePath,
		State:           types.ClusterStatePending,
	}

	if err := o.Provider.WaitReachable(ctx, c.Nodes(), reachabilityTimeout); err != nil {
		return rollback(err)
	}

	sctx, conns, err := o.connectAll(ctx, c)
	if err != nil {
		return rollback(err)
	}
	defer o.closeAll(conns)

	for _, n := range c.Nodes() {
		n.State = types.NodeStateReachable
	}

	if err := o.installAndStart(ctx, sctx, services, c); err != nil {
		return rollback(err)
	}

	for _, n := range c.Nodes() {
		n.State = types.NodeStateServing
	}
	c.State = types.ClusterStateRunning
	for _, svc := range services {
		c.Services = append(c.Services, types.ServiceDescriptor{Name: svc.Name()})
	}

	logger.Info().Int("slaves", len(c.Slaves)).Msg("cluster launched")
	metrics.OperationsTotal.WithLabelValues("launch", "success").Inc()
	return c, nil
}

// installAndStart runs install, configure, and the start sequence for
// every service in order, then waits for each to report healthy.
func (o *Orchestrator) installAndStart(ctx context.Context, sctx *service.Context, services []service.Service, c *types.Cluster) error {
	for _, svc := range services {
		if err := o.runOnAllNodes(ctx, sctx, func(n service.Node) error {
			return svc.Install(ctx, sctx, n)
		}); err != nil {
			return errs.Wrap(errs.KindRemoteCommand, err, fmt.Sprintf("failed to install %s", svc.Name()))
		}
	}

	if err := o.discoverNodeFacts(ctx, sctx, c.StoragePath); err != nil {
		return err
	}

	for _, svc := range services {
		if err := o.runOnAllNodes(ctx, sctx, func(n service.Node) error {
			return svc.Configure(ctx, sctx, n)
		}); err != nil {
			return errs.Wrap(errs.KindRemoteCommand, err, fmt.Sprintf("failed to configure %s", svc.Name()))
		}
	}

	for _, svc := range services {
		if err := svc.StartMaster(ctx, sctx); err != nil {
			return err
		}
		if err := o.runOnSlaves(ctx, sctx, func(n service.Node) error {
			return svc.StartSlave(ctx, sctx, n)
		}); err != nil {
			return err
		}
		if err := o.waitHealthy(ctx, sctx, svc); err != nil {
			return err
		}
	}

	return nil
}

// waitHealthy polls svc's health check against the master until it first
// reports healthy or cfg.Timeout elapses. The Status/Config bookkeeping
// comes from pkg/health; Status.Healthy turns true on the first
// successful check whatever Retries is, so this wait ends as soon as the
// check has succeeded once.
func (o *Orchestrator) waitHealthy(ctx context.Context, sctx *service.Context, svc service.Service) error {
	cfg := health.DefaultConfig()
	cfg.Interval = healthCheckInterval
	cfg.Timeout = healthCheckBudget
	cfg.Retries = 1

	status := health.NewStatus(false)
	checker := svc.HealthCheck(sctx, sctx.Master)
	deadline := time.Now().Add(cfg.Timeout)

	for {
		result := checker.Check(ctx)
		status.Update(result, cfg)
		if status.Healthy {
			return nil
		}
		if !status.InStartPeriod(cfg) && time.Now().After(deadline) {
			return errs.New(errs.KindHealthCheck, fmt.Sprintf("%s did not become healthy within %s: %s", svc.Name(), cfg.Timeout, result.Message))
		}
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.KindHealthCheck, ctx.Err(), fmt.Sprintf("health check for %s cancelled", svc.Name()))
		case <-time.After(cfg.Interval):
		}
	}
}

func (o *Orchestrator) rollbackLaunch(ctx context.Context, spec LaunchSpec, allocated []*types.Node, groupID string, cause error) {
	logger := o.logger(spec.ClusterName, "launch")
	logger.Error().Err(cause).Msg("launch failed, rolling back")
	metrics.RollbacksTotal.WithLabelValues("launch-failed").Inc()

	if !spec.AssumeYes && spec.Confirm != nil {
		if !spec.Confirm() {
			logger.Warn().Msg("rollback declined, leaving partially-launched instances in place")
			return
		}
	}

	var spotRequestIDs []string
	for _, n := range allocated {
		if n.InstanceID == "" && n.SpotRequestID != "" {
			spotRequestIDs = append(spotRequestIDs, n.SpotRequestID)
		}
	}
	if len(spotRequestIDs) > 0 {
		if err := o.Provider.CancelSpotRequests(ctx, spotRequestIDs); err != nil {
			logger.Error().Err(err).Msg("failed to cancel spot requests during rollback")
		}
	}

	if err := o.Provider.Terminate(ctx, allocated); err != nil {
		logger.Error().Err(err).Msg("failed to terminate instances during rollback")
		// Do not attempt to delete the security group if termination
		// itself failed to report success: instances may still be
		// attached to it, and DeleteSecurityGroup's own retry budget
		// would just be spent failing the same way.
		return
	}

	if err := o.Provider.DeleteSecurityGroup(ctx, groupID); err != nil {
		logger.Error().Err(err).Msg("rollback failed to delete cluster-owned security group")
	}
}

// connectAll opens an SSH connection to every node in c and returns a
// service.Context ready to drive plugin operations, plus the raw
// connections so the caller can close them afterward.
func (o *Orchestrator) connectAll(ctx context.Context, c *types.Cluster) (*service.Context, []*sshexec.Connection, error) {
	nodes := c.Nodes()
	conns := make([]*sshexec.Connection, len(nodes))
	errors := sshexec.FanOut(ctx, nodes, len(nodes), func(ctx context.Context, n *types.Node) error {
		conn, err := o.Dialer.Connect(ctx, n.PrivateAddress)
		if err != nil {
			return err
		}
		for i, candidate := range nodes {
			if candidate == n {
				conns[i] = conn
			}
		}
		return nil
	})
	for _, err := range errors {
		if err != nil {
			o.closeAll(conns)
			return nil, nil, errs.Wrap(errs.KindNetwork, err, "failed to connect to one or more nodes")
		}
	}

	sctx := &service.Context{
		ClusterName: c.Name,
		Executor:    o.Executor,
		StoragePath: c.StoragePath,
	}
	for i, n := range nodes {
		sn := service.Node{Node: n, Conn: conns[i]}
		if n == c.Master {
			sctx.Master = sn
		} else {
			sctx.Slaves = append(sctx.Slaves, sn)
		}
	}
	return sctx, conns, nil
}

func (o *Orchestrator) closeAll(conns []*sshexec.Connection) {
	for _, conn := range conns {
		if conn != nil {
			_ = o.Dialer.Close(conn)
		}
	}
}

func (o *Orchestrator) runOnAllNodes(ctx context.Context, sctx *service.Context, fn func(service.Node) error) error {
	nodes := sctx.AllNodes()
	errors := sshexec.FanOut(ctx, nodes, len(nodes), func(ctx context.Context, n service.Node) error {
		return fn(n)
	})
	return firstError(errors)
}

func (o *Orchestrator) runOnSlaves(ctx context.Context, sctx *service.Context, fn func(service.Node) error) error {
	errors := sshexec.FanOut(ctx, sctx.Slaves, len(sctx.Slaves), func(ctx context.Context, n service.Node) error {
		return fn(n)
	})
	return firstError(errors)
}

func firstError(errors []error) error {
	for _, err := range errors {
		if err != nil {
			return err
		}
	}
	return nil
}

// Describe reconstructs a cluster's current state from the provider.
func (o *Orchestrator) Describe(ctx context.Context, clusterName string) (*types.Cluster, error) {
	return cluster.Discover(ctx, o.Provider, clusterName)
}

// Start brings a stopped cluster back to running, per spec §4.6: wait
// reachable (addresses may have changed), re-render configuration since
// public addresses change on restart, start services in order, health
// check.
func (o *Orchestrator) Start(ctx context.Context, clusterName string, services []service.Service) (*types.Cluster, error) {
	logger := o.logger(clusterName, "start")
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.OperationDuration, "start")

	c, err := cluster.Discover(ctx, o.Provider, clusterName)
	if err != nil {
		return nil, err
	}
	if err := cluster.ValidateClusterTransition(c, types.ClusterStateStarting); err != nil {
		return nil, err
	}

	if err := o.Provider.Start(ctx, c.Nodes()); err != nil {
		metrics.OperationsTotal.WithLabelValues("start", "failure").Inc()
		return nil, err
	}
	if err := o.Provider.WaitReachable(ctx, c.Nodes(), reachabilityTimeout); err != nil {
		metrics.OperationsTotal.WithLabelValues("start", "failure").Inc()
		return nil, err
	}

	sctx, conns, err := o.connectAll(ctx, c)
	if err != nil {
		metrics.OperationsTotal.WithLabelValues("start", "failure").Inc()
		return nil, err
	}
	defer o.closeAll(conns)

	sorted := service.Sort(services)
	for _, svc := range sorted {
		if err := o.runOnAllNodes(ctx, sctx, func(n service.Node) error { return svc.Configure(ctx, sctx, n) }); err != nil {
			metrics.OperationsTotal.WithLabelValues("start", "failure").Inc()
			return nil, errs.Wrap(errs.KindRemoteCommand, err, fmt.Sprintf("failed to reconfigure %s", svc.Name()))
		}
		if err := svc.StartMaster(ctx, sctx); err != nil {
			metrics.OperationsTotal.WithLabelValues("start", "failure").Inc()
			return nil, err
		}
		if err := o.runOnSlaves(ctx, sctx, func(n service.Node) error { return svc.StartSlave(ctx, sctx, n) }); err != nil {
			metrics.OperationsTotal.WithLabelValues("start", "failure").Inc()
			return nil, err
		}
		if err := o.waitHealthy(ctx, sctx, svc); err != nil {
			metrics.OperationsTotal.WithLabelValues("start", "failure").Inc()
			return nil, err
		}
	}

	for _, n := range c.Nodes() {
		n.State = types.NodeStateServing
	}
	c.State = types.ClusterStateRunning
	logger.Info().Msg("cluster started")
	metrics.OperationsTotal.WithLabelValues("start", "success").Inc()
	return c, nil
}

// Stop stops every service on every node, then stops the instances.
// EBS volumes and the security group are retained.
func (o *Orchestrator) Stop(ctx context.Context, clusterName string, services []service.Service) (*types.Cluster, error) {
	logger := o.logger(clusterName, "stop")
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.OperationDuration, "stop")

	c, err := cluster.Discover(ctx, o.Provider, clusterName)
	if err != nil {
		return nil, err
	}
	if err := cluster.ValidateClusterTransition(c, types.ClusterStateStopping); err != nil {
		return nil, err
	}

	sctx, conns, err := o.connectAll(ctx, c)
	if err != nil {
		metrics.OperationsTotal.WithLabelValues("stop", "failure").Inc()
		return nil, err
	}
	defer o.closeAll(conns)

	sorted := service.Sort(services)
	for i := len(sorted) - 1; i >= 0; i-- {
		svc := sorted[i]
		_ = o.runOnAllNodes(ctx, sctx, func(n service.Node) error { return svc.Stop(ctx, sctx, n) })
	}

	if err := o.Provider.Stop(ctx, c.Nodes()); err != nil {
		metrics.OperationsTotal.WithLabelValues("stop", "failure").Inc()
		return nil, err
	}

	for _, n := range c.Nodes() {
		n.State = types.NodeStateStopped
	}
	c.State = types.ClusterStateStopped
	logger.Info().Msg("cluster stopped")
	metrics.OperationsTotal.WithLabelValues("stop", "success").Inc()
	return c, nil
}

// Destroy terminates every instance in the cluster and removes its
// security group. It is idempotent: a not-found cluster is a no-op.
func (o *Orchestrator) Destroy(ctx context.Context, clusterName string) error {
	logger := o.logger(clusterName, "destroy")
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.OperationDuration, "destroy")

	c, err := cluster.Discover(ctx, o.Provider, clusterName)
	if err != nil {
		if cluster.IsNotFound(err) {
			logger.Info().Msg("cluster not found, nothing to destroy")
			return nil
		}
		return err
	}

	if err := o.Provider.Terminate(ctx, c.Nodes()); err != nil {
		metrics.OperationsTotal.WithLabelValues("destroy", "failure").Inc()
		return err
	}

	if err := o.Provider.DeleteSecurityGroup(ctx, c.SecurityGroupID); err != nil {
		logger.Error().Err(err).Msg("instances terminated but failed to delete cluster-owned security group")
		metrics.OperationsTotal.WithLabelValues("destroy", "failure").Inc()
		return err
	}

	logger.Info().Msg("cluster destroyed")
	metrics.OperationsTotal.WithLabelValues("destroy", "success").Inc()
	return nil
}

// AddSlaves allocates n additional slaves, installs and configures
// every currently-installed service on them, and asks the master to
// pick up the larger slave set. At-least-once semantics: a partial
// failure leaves successfully-added slaves in place.
func (o *Orchestrator) AddSlaves(ctx context.Context, clusterName string, n int, services []service.Service) (*types.Cluster, error) {
	logger := o.logger(clusterName, "add-slaves")
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.OperationDuration, "add-slaves")

	c, err := cluster.Discover(ctx, o.Provider, clusterName)
	if err != nil {
		return nil, err
	}
	if c.State != types.ClusterStateRunning {
		return nil, errs.New(errs.KindWrongState, fmt.Sprintf("cluster %s must be running to add slaves, is %s", clusterName, c.State))
	}

	newNodes, err := o.Provider.Allocate(ctx, provider.AllocateRequest{
		ClusterName:     clusterName,
		Role:            types.NodeRoleSlave,
		Count:           n,
		SecurityGroupID: c.SecurityGroupID,
	})
	if err != nil {
		metrics.OperationsTotal.WithLabelValues("add-slaves", "failure").Inc()
		return nil, err
	}

	if err := o.Provider.WaitReachable(ctx, newNodes, reachabilityTimeout); err != nil {
		metrics.OperationsTotal.WithLabelValues("add-slaves", "failure").Inc()
		return nil, err
	}

	c.Slaves = append(c.Slaves, newNodes...)

	sctx, conns, err := o.connectAll(ctx, c)
	if err != nil {
		metrics.OperationsTotal.WithLabelValues("add-slaves", "failure").Inc()
		return nil, err
	}
	defer o.closeAll(conns)

	sorted := service.Sort(services)
	for _, svc := range sorted {
		for _, n := range newSctxNodes(sctx, newNodes) {
			if err := svc.Install(ctx, sctx, n); err != nil {
				metrics.OperationsTotal.WithLabelValues("add-slaves", "failure").Inc()
				return nil, errs.Wrap(errs.KindRemoteCommand, err, fmt.Sprintf("failed to install %s on new slave", svc.Name()))
			}
		}
	}

	if err := o.discoverNodeFacts(ctx, sctx, c.StoragePath); err != nil {
		metrics.OperationsTotal.WithLabelValues("add-slaves", "failure").Inc()
		return nil, err
	}

	// Re-run Configure on every node (not just the new ones), since
	// every existing node's slaves file now needs to list the new
	// members too.
	for _, svc := range sorted {
		if err := o.runOnAllNodes(ctx, sctx, func(n service.Node) error { return svc.Configure(ctx, sctx, n) }); err != nil {
			metrics.OperationsTotal.WithLabelValues("add-slaves", "failure").Inc()
			return nil, errs.Wrap(errs.KindRemoteCommand, err, fmt.Sprintf("failed to reconfigure %s", svc.Name()))
		}
		for _, n := range newSctxNodes(sctx, newNodes) {
			if err := svc.StartSlave(ctx, sctx, n); err != nil {
				metrics.OperationsTotal.WithLabelValues("add-slaves", "failure").Inc()
				return nil, errs.Wrap(errs.KindRemoteCommand, err, fmt.Sprintf("failed to start %s on new slave", svc.Name()))
			}
		}
	}

	for _, n := range newNodes {
		n.State = types.NodeStateServing
	}
	logger.Info().Int("added", len(newNodes)).Msg("slaves added")
	metrics.OperationsTotal.WithLabelValues("add-slaves", "success").Inc()
	return c, nil
}

// targetNodes resolves the run-command/copy-file/login node-selection
// argument ("master", "slaves", or "all") against a connected
// service.Context.
func targetNodes(sctx *service.Context, target string) ([]service.Node, error) {
	switch target {
	case "master":
		return []service.Node{sctx.Master}, nil
	case "slaves":
		return sctx.Slaves, nil
	case "all", "":
		return sctx.AllNodes(), nil
	default:
		return nil, errs.New(errs.KindConfig, fmt.Sprintf("unknown node target %q, must be master, slaves, or all", target))
	}
}

// MasterAddress reconstructs clusterName and returns its master's public
// address, for the login subcommand to exec ssh against directly.
func (o *Orchestrator) MasterAddress(ctx context.Context, clusterName string) (string, error) {
	c, err := cluster.Discover(ctx, o.Provider, clusterName)
	if err != nil {
		return "", err
	}
	if c.Master == nil || c.Master.PublicAddress == "" {
		return "", errs.New(errs.KindWrongState, fmt.Sprintf("cluster %s has no reachable master", clusterName))
	}
	return c.Master.PublicAddress, nil
}

// RunCommand runs command on target ("master", "slaves", or "all") nodes
// of clusterName in parallel and returns each node's result keyed by
// instance id. A non-zero exit code on some nodes is not itself an
// error; the caller inspects the returned Results.
func (o *Orchestrator) RunCommand(ctx context.Context, clusterName, target, command string) (map[string]sshexec.Result, error) {
	c, err := cluster.Discover(ctx, o.Provider, clusterName)
	if err != nil {
		return nil, err
	}

	sctx, conns, err := o.connectAll(ctx, c)
	if err != nil {
		return nil, err
	}
	defer o.closeAll(conns)

	nodes, err := targetNodes(sctx, target)
	if err != nil {
		return nil, err
	}

	results := make(map[string]sshexec.Result, len(nodes))
	var mu sync.Mutex
	errorsOut := sshexec.FanOut(ctx, nodes, len(nodes), func(ctx context.Context, n service.Node) error {
		result, err := o.Executor.Run(ctx, n.Conn, command)
		if err != nil {
			return err
		}
		mu.Lock()
		results[n.Node.InstanceID] = result
		mu.Unlock()
		return nil
	})
	if err := firstError(errorsOut); err != nil {
		return results, errs.Wrap(errs.KindRemoteCommand, err, "run-command failed on one or more nodes")
	}
	return results, nil
}

// CopyFile uploads content to remotePath on every node matching target.
func (o *Orchestrator) CopyFile(ctx context.Context, clusterName, target string, content []byte, remotePath string, mode uint32) error {
	c, err := cluster.Discover(ctx, o.Provider, clusterName)
	if err != nil {
		return err
	}

	sctx, conns, err := o.connectAll(ctx, c)
	if err != nil {
		return err
	}
	defer o.closeAll(conns)

	nodes, err := targetNodes(sctx, target)
	if err != nil {
		return err
	}

	errorsOut := sshexec.FanOut(ctx, nodes, len(nodes), func(ctx context.Context, n service.Node) error {
		return o.Executor.Copy(ctx, n.Conn, content, remotePath, mode)
	})
	if err := firstError(errorsOut); err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "copy-file failed on one or more nodes")
	}
	return nil
}

func newSctxNodes(sctx *service.Context, nodes []*types.Node) []service.Node {
	byID := make(map[string]service.Node, len(sctx.Slaves))
	for _, sn := range sctx.Slaves {
		byID[sn.Node.InstanceID] = sn
	}
	result := make([]service.Node, 0, len(nodes))
	for _, n := range nodes {
		if sn, ok := byID[n.InstanceID]; ok {
			result = append(result, sn)
		}
	}
	return result
}

// RemoveSlaves terminates n slaves chosen deterministically (ascending
// instance id order is preferred, meaning the lowest ids go first; see
// cluster.SelectSlavesToRemove) and asks the master to pick up the
// smaller slave set.
func (o *Orchestrator) RemoveSlaves(ctx context.Context, clusterName string, n int, services []service.Service) (*types.Cluster, error) {
	logger := o.logger(clusterName, "remove-slaves")
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.OperationDuration, "remove-slaves")

	c, err := cluster.Discover(ctx, o.Provider, clusterName)
	if err != nil {
		return nil, err
	}
	if c.State != types.ClusterStateRunning {
		return nil, errs.New(errs.KindWrongState, fmt.Sprintf("cluster %s must be running to remove slaves, is %s", clusterName, c.State))
	}

	toRemove, err := cluster.SelectSlavesToRemove(c, n)
	if err != nil {
		return nil, err
	}
	removeSet := make(map[string]bool, len(toRemove))
	for _, node := range toRemove {
		removeSet[node.InstanceID] = true
	}

	var remaining []*types.Node
	for _, s := range c.Slaves {
		if !removeSet[s.InstanceID] {
			remaining = append(remaining, s)
		}
	}

	sctx, conns, err := o.connectAll(ctx, c)
	if err != nil {
		metrics.OperationsTotal.WithLabelValues("remove-slaves", "failure").Inc()
		return nil, err
	}
	defer o.closeAll(conns)

	sorted := service.Sort(services)
	for i := len(sorted) - 1; i >= 0; i-- {
		svc := sorted[i]
		for _, n := range newSctxNodes(sctx, toRemove) {
			_ = svc.Stop(ctx, sctx, n)
		}
	}

	if err := o.Provider.Terminate(ctx, toRemove); err != nil {
		metrics.OperationsTotal.WithLabelValues("remove-slaves", "failure").Inc()
		return nil, err
	}

	c.Slaves = remaining

	remainingSctx := &service.Context{ClusterName: c.Name, Executor: o.Executor, StoragePath: c.StoragePath, Master: sctx.Master}
	for _, sn := range sctx.Slaves {
		if !removeSet[sn.Node.InstanceID] {
			remainingSctx.Slaves = append(remainingSctx.Slaves, sn)
		}
	}
	for _, svc := range sorted {
		if err := o.runOnAllNodes(ctx, remainingSctx, func(n service.Node) error { return svc.Configure(ctx, remainingSctx, n) }); err != nil {
			metrics.OperationsTotal.WithLabelValues("remove-slaves", "failure").Inc()
			return nil, errs.Wrap(errs.KindRemoteCommand, err, fmt.Sprintf("failed to reconfigure %s after removing slaves", svc.Name()))
		}
	}

	logger.Info().Int("removed", len(toRemove)).Msg("slaves removed")
	metrics.OperationsTotal.WithLabelValues("remove-slaves", "success").Inc()
	return c, nil
}
