package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nchammas/flintrock/pkg/errs"
	"github.com/nchammas/flintrock/pkg/health"
	"github.com/nchammas/flintrock/pkg/provider"
	"github.com/nchammas/flintrock/pkg/service"
	"github.com/nchammas/flintrock/pkg/sshexec"
	"github.com/nchammas/flintrock/pkg/types"
)

// fakeProvider is a hand-written stand-in for provider.Provider.
type fakeProvider struct {
	existing        *types.Cluster
	terminated      []*types.Node
	cancelledSpot   []string
	deletedGroupIDs []string
	nextID          int
	allocateErr     error
}

func (f *fakeProvider) Allocate(ctx context.Context, req provider.AllocateRequest) ([]*types.Node, error) {
	if f.allocateErr != nil {
		return nil, f.allocateErr
	}
	nodes := make([]*types.Node, req.Count)
	for i := range nodes {
		f.nextID++
		nodes[i] = &types.Node{
			InstanceID:     idOf(f.nextID),
			Role:           req.Role,
			State:          types.NodeStatePending,
			PrivateAddress: "10.0.0." + idOf(f.nextID),
		}
	}
	return nodes, nil
}

func idOf(n int) string { return "i-" + string(rune('0'+n)) }

func (f *fakeProvider) Describe(ctx context.Context, clusterName string) (*types.Cluster, error) {
	if f.existing == nil {
		return nil, errs.New(errs.KindConfig, "no cluster named \""+clusterName+"\" found")
	}
	return f.existing, nil
}

func (f *fakeProvider) WaitReachable(ctx context.Context, nodes []*types.Node, timeout time.Duration) error {
	return nil
}

func (f *fakeProvider) Start(ctx context.Context, nodes []*types.Node) error { return nil }
func (f *fakeProvider) Stop(ctx context.Context, nodes []*types.Node) error  { return nil }

func (f *fakeProvider) Terminate(ctx context.Context, nodes []*types.Node) error {
	f.terminated = append(f.terminated, nodes...)
	return nil
}

func (f *fakeProvider) EnsureSecurityGroup(ctx context.Context, clusterName string, rules []provider.PortRule) (string, error) {
	return "sg-test", nil
}

func (f *fakeProvider) VerifyIngressRules(ctx context.Context, clusterName string, rules []provider.PortRule) ([]provider.PortRule, error) {
	return nil, nil
}

func (f *fakeProvider) CancelSpotRequests(ctx context.Context, requestIDs []string) error {
	f.cancelledSpot = append(f.cancelledSpot, requestIDs...)
	return nil
}

func (f *fakeProvider) DeleteSecurityGroup(ctx context.Context, groupID string) error {
	f.deletedGroupIDs = append(f.deletedGroupIDs, groupID)
	return nil
}

// fakeDialer never touches the network.
type fakeDialer struct {
	connectErr error
}

func (d *fakeDialer) Connect(ctx context.Context, address string) (*sshexec.Connection, error) {
	if d.connectErr != nil {
		return nil, d.connectErr
	}
	return &sshexec.Connection{Address: address}, nil
}

func (d *fakeDialer) Close(conn *sshexec.Connection) error { return nil }

// fakeService is a no-op service.Service that records which methods ran.
type fakeService struct {
	name        string
	installed   []string
	healthyFrom int
	calls       int
}

func (s *fakeService) Name() string                            { return s.name }
func (s *fakeService) RequiredPorts() []provider.PortRule       { return nil }
func (s *fakeService) Install(ctx context.Context, sctx *service.Context, n service.Node) error {
	s.installed = append(s.installed, n.Node.InstanceID)
	return nil
}
func (s *fakeService) Configure(ctx context.Context, sctx *service.Context, n service.Node) error {
	return nil
}
func (s *fakeService) StartMaster(ctx context.Context, sctx *service.Context) error { return nil }
func (s *fakeService) StartSlave(ctx context.Context, sctx *service.Context, n service.Node) error {
	return nil
}
func (s *fakeService) Stop(ctx context.Context, sctx *service.Context, n service.Node) error {
	return nil
}
func (s *fakeService) HealthCheck(sctx *service.Context, n service.Node) health.Checker {
	s.calls++
	return fakeChecker{healthy: s.calls > s.healthyFrom}
}

type fakeChecker struct{ healthy bool }

func (c fakeChecker) Check(ctx context.Context) health.Result {
	return health.Result{Healthy: c.healthy, Message: "fake"}
}
func (c fakeChecker) Type() health.CheckType { return health.CheckTypeHTTP }

func newTestOrchestrator(p *fakeProvider, d *fakeDialer) *Orchestrator {
	return New(p, d, nil)
}

func TestLaunchHappyPath(t *testing.T) {
	p := &fakeProvider{}
	o := newTestOrchestrator(p, &fakeDialer{})
	svc := &fakeService{name: "spark"}

	c, err := o.Launch(context.Background(), LaunchSpec{
		ClusterName: "demo",
		NumSlaves:   2,
		Services:    []service.Service{svc},
		AssumeYes:   true,
	})

	require.NoError(t, err)
	assert.Equal(t, types.ClusterStateRunning, c.State)
	assert.Len(t, c.Slaves, 2)
	assert.Equal(t, types.NodeStateServing, c.Master.State)
	for _, s := range c.Slaves {
		assert.Equal(t, types.NodeStateServing, s.State)
	}
}

func TestLaunchRejectsExistingCluster(t *testing.T) {
	p := &fakeProvider{existing: &types.Cluster{Name: "demo", State: types.ClusterStateRunning}}
	o := newTestOrchestrator(p, &fakeDialer{})

	_, err := o.Launch(context.Background(), LaunchSpec{ClusterName: "demo", AssumeYes: true})

	assert.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindWrongState, kind)
}

func TestLaunchRollsBackOnAllocateFailure(t *testing.T) {
	p := &fakeProvider{allocateErr: errs.New(errs.KindProvider, "capacity exceeded")}
	o := newTestOrchestrator(p, &fakeDialer{})

	_, err := o.Launch(context.Background(), LaunchSpec{ClusterName: "demo", NumSlaves: 2, AssumeYes: true})

	assert.Error(t, err)
	assert.Empty(t, p.terminated)
	assert.Contains(t, p.deletedGroupIDs, "sg-test")
}

func TestDestroyIsIdempotentWhenClusterMissing(t *testing.T) {
	p := &fakeProvider{}
	o := newTestOrchestrator(p, &fakeDialer{})

	err := o.Destroy(context.Background(), "ghost")

	assert.NoError(t, err)
}

func TestDestroyTerminatesExistingCluster(t *testing.T) {
	master := &types.Node{InstanceID: "i-master"}
	p := &fakeProvider{existing: &types.Cluster{Name: "demo", Master: master, SecurityGroupID: "sg-demo"}}
	o := newTestOrchestrator(p, &fakeDialer{})

	err := o.Destroy(context.Background(), "demo")

	require.NoError(t, err)
	assert.Contains(t, p.terminated, master)
	assert.Contains(t, p.deletedGroupIDs, "sg-demo")
}

func TestRemoveSlavesRejectsNonRunningCluster(t *testing.T) {
	p := &fakeProvider{existing: &types.Cluster{
		Name:  "demo",
		State: types.ClusterStateStopped,
		Slaves: []*types.Node{{InstanceID: "i-1"}},
	}}
	o := newTestOrchestrator(p, &fakeDialer{})

	_, err := o.RemoveSlaves(context.Background(), "demo", 1, nil)

	assert.Error(t, err)
}
