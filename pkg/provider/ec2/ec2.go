package ec2

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"

	"github.com/nchammas/flintrock/pkg/errs"
	"github.com/nchammas/flintrock/pkg/health"
	"github.com/nchammas/flintrock/pkg/log"
	"github.com/nchammas/flintrock/pkg/metrics"
	"github.com/nchammas/flintrock/pkg/provider"
	"github.com/nchammas/flintrock/pkg/types"
)

// sshReachabilityPort is the TCP port WaitReachable dials per spec
// §4.1's "wait_reachable([Node], port=22, timeout)" — instances report
// "running" in the EC2 API well before sshd inside them is actually
// accepting connections, so a provider-state check alone is not
// sufficient to call a node reachable.
const sshReachabilityPort = 22

// client is the subset of *ec2.Client this package calls, so tests can
// substitute a fake without standing up a full AWS SDK client.
type client interface {
	RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	RequestSpotInstances(ctx context.Context, in *ec2.RequestSpotInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RequestSpotInstancesOutput, error)
	DescribeSpotInstanceRequests(ctx context.Context, in *ec2.DescribeSpotInstanceRequestsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotInstanceRequestsOutput, error)
	CancelSpotInstanceRequests(ctx context.Context, in *ec2.CancelSpotInstanceRequestsInput, optFns ...func(*ec2.Options)) (*ec2.CancelSpotInstanceRequestsOutput, error)
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, in *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, in *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	CreateTags(ctx context.Context, in *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DescribeSecurityGroups(ctx context.Context, in *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	CreateSecurityGroup(ctx context.Context, in *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	DeleteSecurityGroup(ctx context.Context, in *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error)
}

// Provider implements provider.Provider against Amazon EC2.
type Provider struct {
	client client
	vpcID  string // empty means "default VPC"
}

// New wraps an existing EC2 client, primarily for tests.
func New(c client, vpcID string) *Provider {
	return &Provider{client: c, vpcID: vpcID}
}

// NewFromDefaultConfig loads AWS credentials and region the same way
// the AWS CLI does (environment, shared config file, EC2 instance
// role) and returns a Provider backed by a real EC2 client.
func NewFromDefaultConfig(ctx context.Context, region, vpcID string) (*Provider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "failed to load AWS configuration")
	}
	return &Provider{client: ec2.NewFromConfig(cfg), vpcID: vpcID}, nil
}

func (p *Provider) Allocate(ctx context.Context, req provider.AllocateRequest) ([]*types.Node, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ProviderCallDuration, "allocate")

	tags := []ec2types.Tag{
		{Key: aws.String(provider.ClusterNameTag), Value: aws.String(req.ClusterName)},
		{Key: aws.String(provider.RoleTag), Value: aws.String(string(req.Role))},
		{Key: aws.String("Name"), Value: aws.String(fmt.Sprintf("%s-%s", req.ClusterName, req.Role))},
	}
	tagSpec := []ec2types.TagSpecification{{ResourceType: ec2types.ResourceTypeInstance, Tags: tags}}

	var nodes []*types.Node
	var err error
	if req.SpotPrice != "" {
		nodes, err = p.allocateSpot(ctx, req)
	} else {
		nodes, err = p.allocateOnDemand(ctx, req, tagSpec)
	}
	if err != nil {
		metrics.ProviderCallFailures.WithLabelValues("allocate").Inc()
		return nil, err
	}

	metrics.InstancesAllocated.WithLabelValues(string(req.Role)).Add(float64(len(nodes)))
	return nodes, nil
}

func (p *Provider) allocateOnDemand(ctx context.Context, req provider.AllocateRequest, tagSpec []ec2types.TagSpecification) ([]*types.Node, error) {
	input := &ec2.RunInstancesInput{
		ImageId:           aws.String(req.AMI),
		InstanceType:      ec2types.InstanceType(req.InstanceType),
		MinCount:          aws.Int32(int32(req.Count)),
		MaxCount:          aws.Int32(int32(req.Count)),
		KeyName:           aws.String(req.KeyName),
		SecurityGroupIds:  []string{req.SecurityGroupID},
		TagSpecifications: tagSpec,
		// The SDK's own retries of this request reuse the token, and
		// EC2 de-dupes RunInstances calls that carry the same token,
		// so a retried request never double-launches instances. Each
		// Allocate call mints a new token.
		ClientToken: aws.String(uuid.NewString()),
	}
	if req.SubnetID != "" {
		input.SubnetId = aws.String(req.SubnetID)
	}
	if req.AvailabilityZone != "" {
		input.Placement = &ec2types.Placement{AvailabilityZone: aws.String(req.AvailabilityZone)}
	}

	out, err := p.client.RunInstances(ctx, input)
	if err != nil {
		return nil, errs.Wrap(errs.KindProvider, err, "failed to run instances")
	}

	nodes := make([]*types.Node, 0, len(out.Instances))
	for _, inst := range out.Instances {
		nodes = append(nodes, instanceToNode(inst, req.Role))
	}
	return nodes, nil
}

func (p *Provider) allocateSpot(ctx context.Context, req provider.AllocateRequest) ([]*types.Node, error) {
	spec := &ec2types.RequestSpotLaunchSpecification{
		ImageId:          aws.String(req.AMI),
		InstanceType:     ec2types.InstanceType(req.InstanceType),
		KeyName:          aws.String(req.KeyName),
		SecurityGroupIds: []string{req.SecurityGroupID},
	}
	if req.SubnetID != "" {
		spec.SubnetId = aws.String(req.SubnetID)
	}

	out, err := p.client.RequestSpotInstances(ctx, &ec2.RequestSpotInstancesInput{
		SpotPrice:           aws.String(req.SpotPrice),
		InstanceCount:       aws.Int32(int32(req.Count)),
		LaunchSpecification: spec,
		Type:                ec2types.SpotInstanceTypeOneTime,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindProvider, err, "failed to request spot instances")
	}

	nodes := make([]*types.Node, 0, len(out.SpotInstanceRequests))
	for _, r := range out.SpotInstanceRequests {
		nodes = append(nodes, &types.Node{
			Role:          req.Role,
			State:         types.NodeStatePending,
			SpotRequestID: aws.ToString(r.SpotInstanceRequestId),
		})
	}
	return nodes, nil
}

// resolveSpotInstances fills in InstanceID for any node still waiting
// on a spot fulfillment, and tags the now-known instance once resolved.
func (p *Provider) resolveSpotInstances(ctx context.Context, clusterName string, nodes []*types.Node) error {
	var pendingIDs []string
	for _, n := range nodes {
		if n.InstanceID == "" && n.SpotRequestID != "" {
			pendingIDs = append(pendingIDs, n.SpotRequestID)
		}
	}
	if len(pendingIDs) == 0 {
		return nil
	}

	out, err := p.client.DescribeSpotInstanceRequests(ctx, &ec2.DescribeSpotInstanceRequestsInput{
		SpotInstanceRequestIds: pendingIDs,
	})
	if err != nil {
		return errs.Wrap(errs.KindProvider, err, "failed to describe spot instance requests")
	}

	byRequestID := make(map[string]string, len(out.SpotInstanceRequests))
	for _, r := range out.SpotInstanceRequests {
		if r.InstanceId != nil {
			byRequestID[aws.ToString(r.SpotInstanceRequestId)] = aws.ToString(r.InstanceId)
		}
	}

	var newlyFulfilled []string
	for _, n := range nodes {
		if n.InstanceID == "" {
			if id, ok := byRequestID[n.SpotRequestID]; ok {
				n.InstanceID = id
				newlyFulfilled = append(newlyFulfilled, id)
			}
		}
	}

	if len(newlyFulfilled) > 0 {
		tags := []ec2types.Tag{{Key: aws.String(provider.ClusterNameTag), Value: aws.String(clusterName)}}
		if _, err := p.client.CreateTags(ctx, &ec2.CreateTagsInput{Resources: newlyFulfilled, Tags: tags}); err != nil {
			return errs.Wrap(errs.KindProvider, err, "failed to tag fulfilled spot instances")
		}
	}
	return nil
}

func (p *Provider) Describe(ctx context.Context, clusterName string) (*types.Cluster, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ProviderCallDuration, "describe")

	out, err := p.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:" + provider.ClusterNameTag), Values: []string{clusterName}},
			{Name: aws.String("instance-state-name"), Values: []string{
				string(ec2types.InstanceStateNamePending),
				string(ec2types.InstanceStateNameRunning),
				string(ec2types.InstanceStateNameStopping),
				string(ec2types.InstanceStateNameStopped),
			}},
		},
	})
	if err != nil {
		metrics.ProviderCallFailures.WithLabelValues("describe").Inc()
		return nil, errs.Wrap(errs.KindProvider, err, "failed to describe instances")
	}

	cluster := &types.Cluster{Name: clusterName}
	var masters []*types.Node
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			role := roleFromTags(inst.Tags)
			node := instanceToNode(inst, role)
			switch role {
			case types.NodeRoleMaster:
				masters = append(masters, node)
			case types.NodeRoleSlave:
				cluster.Slaves = append(cluster.Slaves, node)
			}
		}
	}

	if len(masters) == 0 && len(cluster.Slaves) == 0 {
		return nil, errs.New(errs.KindConfig, fmt.Sprintf("no cluster named %q found", clusterName))
	}

	master, err := selectMaster(masters)
	if err != nil {
		return nil, err
	}
	cluster.Master = master

	groupID, err := p.findSecurityGroup(ctx, clusterName)
	if err != nil {
		return nil, err
	}
	cluster.SecurityGroupID = groupID

	return cluster, nil
}

// selectMaster applies the tie-break rule for when more than one
// instance is tagged as a cluster's master: this can happen if a
// relaunch attempt allocated a new master before an old one finished
// terminating. A still-running node wins over a stopped one, since the
// stopped instance is the stale leftover. If more than one master is
// simultaneously running (or more than one is simultaneously stopped
// with none running), there's no way to pick a winner automatically and
// the cluster is reported inconsistent.
func selectMaster(masters []*types.Node) (*types.Node, error) {
	if len(masters) == 0 {
		return nil, nil
	}
	if len(masters) == 1 {
		return masters[0], nil
	}

	var running []*types.Node
	for _, m := range masters {
		if m.State != types.NodeStateStopped && m.State != types.NodeStateTerminated {
			running = append(running, m)
		}
	}
	if len(running) == 1 {
		return running[0], nil
	}
	return nil, errs.New(errs.KindInconsistent, fmt.Sprintf("found %d master instances, cluster is in an inconsistent state", len(masters)))
}

func (p *Provider) WaitReachable(ctx context.Context, nodes []*types.Node, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var clusterName string
	for {
		if err := p.resolveSpotInstances(ctx, clusterName, nodes); err != nil {
			return err
		}

		var ids []string
		for _, n := range nodes {
			if n.InstanceID != "" {
				ids = append(ids, n.InstanceID)
			}
		}

		if len(ids) == len(nodes) {
			out, err := p.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: ids})
			if err != nil {
				return errs.Wrap(errs.KindProvider, err, "failed to describe instances while waiting for reachability")
			}

			byID := make(map[string]ec2types.Instance)
			for _, res := range out.Reservations {
				for _, inst := range res.Instances {
					byID[aws.ToString(inst.InstanceId)] = inst
				}
			}

			allReady := true
			var dialable []*types.Node
			for _, n := range nodes {
				inst, ok := byID[n.InstanceID]
				if !ok {
					allReady = false
					continue
				}
				applyInstanceFields(n, inst)
				if n.State != types.NodeStatePending && n.State != types.NodeStateReachable {
					allReady = false
					continue
				}
				if n.PrivateAddress == "" {
					allReady = false
					continue
				}
				dialable = append(dialable, n)
			}
			if allReady && p.allSSHReachable(ctx, dialable) {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return errs.New(errs.KindNetwork, fmt.Sprintf("timed out after %s waiting for %d node(s) to become reachable", timeout, len(nodes)))
		}

		select {
		case <-ctx.Done():
			return errs.Wrap(errs.KindNetwork, ctx.Err(), "wait for reachability cancelled")
		case <-time.After(5 * time.Second):
		}
	}
}

// allSSHReachable dials sshReachabilityPort on every node concurrently
// and reports whether all of them accept a connection. It is the actual
// "accepts connections" half of spec §4.1's wait_reachable contract; the
// provider-state check above only tells us EC2 considers the instance
// running, not that anything inside it is listening yet.
func (p *Provider) allSSHReachable(ctx context.Context, nodes []*types.Node) bool {
	if len(nodes) == 0 {
		return false
	}
	results := make([]bool, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		i, n := i, n
		wg.Add(1)
		go func() {
			defer wg.Done()
			checker := health.NewTCPChecker(net.JoinHostPort(n.PrivateAddress, strconv.Itoa(sshReachabilityPort)))
			checker.WithTimeout(3 * time.Second)
			results[i] = checker.Check(ctx).Healthy
		}()
	}
	wg.Wait()
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

func (p *Provider) Start(ctx context.Context, nodes []*types.Node) error {
	_, err := p.client.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: instanceIDs(nodes)})
	if err != nil {
		metrics.ProviderCallFailures.WithLabelValues("start").Inc()
		return errs.Wrap(errs.KindProvider, err, "failed to start instances")
	}
	return nil
}

func (p *Provider) Stop(ctx context.Context, nodes []*types.Node) error {
	_, err := p.client.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: instanceIDs(nodes)})
	if err != nil {
		metrics.ProviderCallFailures.WithLabelValues("stop").Inc()
		return errs.Wrap(errs.KindProvider, err, "failed to stop instances")
	}
	return nil
}

func (p *Provider) Terminate(ctx context.Context, nodes []*types.Node) error {
	ids := instanceIDs(nodes)
	if len(ids) == 0 {
		return nil
	}
	_, err := p.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids})
	if err != nil {
		metrics.ProviderCallFailures.WithLabelValues("terminate").Inc()
		return errs.Wrap(errs.KindProvider, err, "failed to terminate instances")
	}
	byRole := make(map[types.NodeRole]int)
	for _, n := range nodes {
		byRole[n.Role]++
	}
	for role, count := range byRole {
		metrics.InstancesTerminated.WithLabelValues(string(role)).Add(float64(count))
	}
	return nil
}

func (p *Provider) EnsureSecurityGroup(ctx context.Context, clusterName string, rules []provider.PortRule) (string, error) {
	groupID, err := p.findSecurityGroup(ctx, clusterName)
	if err != nil {
		return "", err
	}

	if groupID == "" {
		out, err := p.client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
			GroupName:   aws.String(fmt.Sprintf("flintrock-%s", clusterName)),
			Description: aws.String(fmt.Sprintf("Flintrock cluster %s", clusterName)),
			VpcId:       optionalString(p.vpcID),
			TagSpecifications: []ec2types.TagSpecification{{
				ResourceType: ec2types.ResourceTypeSecurityGroup,
				Tags: []ec2types.Tag{
					{Key: aws.String(provider.ClusterNameTag), Value: aws.String(clusterName)},
				},
			}},
		})
		if err != nil {
			return "", errs.Wrap(errs.KindProvider, err, "failed to create security group")
		}
		groupID = aws.ToString(out.GroupId)
	}

	perms := make([]ec2types.IpPermission, 0, len(rules))
	for _, r := range rules {
		perm := ec2types.IpPermission{
			IpProtocol: aws.String(r.Protocol),
			FromPort:   aws.Int32(r.FromPort),
			ToPort:     aws.Int32(r.ToPort),
		}
		if r.CIDR != "" {
			perm.IpRanges = []ec2types.IpRange{{CidrIp: aws.String(r.CIDR)}}
		} else {
			perm.UserIdGroupPairs = []ec2types.UserIdGroupPair{{GroupId: aws.String(groupID)}}
		}
		perms = append(perms, perm)
	}

	if len(perms) > 0 {
		if _, err := p.client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: perms,
		}); err != nil {
			// An authorize error is logged and not returned, whatever
			// its cause; EC2 rejects a call that repeats a rule
			// already on the group, as when Launch reuses a group.
			log.WithComponent("provider/ec2").Debug().Err(err).Msg("authorize ingress returned an error, rules may already exist")
		}
	}

	return groupID, nil
}

func (p *Provider) VerifyIngressRules(ctx context.Context, clusterName string, rules []provider.PortRule) ([]provider.PortRule, error) {
	groupID, err := p.findSecurityGroup(ctx, clusterName)
	if err != nil {
		return nil, err
	}
	if groupID == "" {
		return rules, nil
	}

	out, err := p.client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{groupID}})
	if err != nil {
		return nil, errs.Wrap(errs.KindProvider, err, "failed to describe security group")
	}
	if len(out.SecurityGroups) == 0 {
		return rules, nil
	}

	present := make(map[string]bool)
	for _, perm := range out.SecurityGroups[0].IpPermissions {
		for _, r := range perm.IpRanges {
			present[ruleKey(aws.ToInt32(perm.FromPort), aws.ToInt32(perm.ToPort), aws.ToString(perm.IpProtocol), aws.ToString(r.CidrIp))] = true
		}
		if len(perm.UserIdGroupPairs) > 0 {
			present[ruleKey(aws.ToInt32(perm.FromPort), aws.ToInt32(perm.ToPort), aws.ToString(perm.IpProtocol), "")] = true
		}
	}

	var missing []provider.PortRule
	for _, r := range rules {
		if !present[ruleKey(r.FromPort, r.ToPort, r.Protocol, r.CIDR)] {
			missing = append(missing, r)
		}
	}
	return missing, nil
}

func (p *Provider) CancelSpotRequests(ctx context.Context, requestIDs []string) error {
	if len(requestIDs) == 0 {
		return nil
	}
	_, err := p.client.CancelSpotInstanceRequests(ctx, &ec2.CancelSpotInstanceRequestsInput{
		SpotInstanceRequestIds: requestIDs,
	})
	if err != nil {
		return errs.Wrap(errs.KindProvider, err, "failed to cancel spot instance requests")
	}
	return nil
}

// deleteSecurityGroupRetries and deleteSecurityGroupBackoff bound how
// long DeleteSecurityGroup waits out EC2's "DependencyViolation" error,
// which it returns for a short window after TerminateInstances while
// the instances' network interfaces are still detaching from the
// group.
const (
	deleteSecurityGroupRetries = 6
	deleteSecurityGroupBackoff = 10 * time.Second
)

func (p *Provider) DeleteSecurityGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt < deleteSecurityGroupRetries; attempt++ {
		_, err := p.client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(groupID)})
		if err == nil {
			return nil
		}
		if isSecurityGroupNotFound(err) {
			return nil
		}
		lastErr = err
		if !isDependencyViolation(err) {
			return errs.Wrap(errs.KindProvider, err, "failed to delete security group")
		}
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.KindProvider, ctx.Err(), "cancelled while waiting to delete security group")
		case <-time.After(deleteSecurityGroupBackoff):
		}
	}
	return errs.Wrap(errs.KindProvider, lastErr, "failed to delete security group after waiting for instances to detach")
}

func isSecurityGroupNotFound(err error) bool {
	return strings.Contains(err.Error(), "InvalidGroup.NotFound")
}

func isDependencyViolation(err error) bool {
	return strings.Contains(err.Error(), "DependencyViolation")
}

func (p *Provider) findSecurityGroup(ctx context.Context, clusterName string) (string, error) {
	out, err := p.client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:" + provider.ClusterNameTag), Values: []string{clusterName}},
		},
	})
	if err != nil {
		return "", errs.Wrap(errs.KindProvider, err, "failed to describe security groups")
	}
	if len(out.SecurityGroups) == 0 {
		return "", nil
	}
	return aws.ToString(out.SecurityGroups[0].GroupId), nil
}

func ruleKey(fromPort, toPort int32, protocol, cidr string) string {
	return fmt.Sprintf("%d-%d-%s-%s", fromPort, toPort, protocol, cidr)
}

func instanceIDs(nodes []*types.Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.InstanceID != "" {
			ids = append(ids, n.InstanceID)
		}
	}
	return ids
}

func roleFromTags(tags []ec2types.Tag) types.NodeRole {
	for _, t := range tags {
		if aws.ToString(t.Key) == provider.RoleTag {
			return types.NodeRole(aws.ToString(t.Value))
		}
	}
	return ""
}

func instanceToNode(inst ec2types.Instance, role types.NodeRole) *types.Node {
	n := &types.Node{
		InstanceID: aws.ToString(inst.InstanceId),
		Role:       role,
	}
	applyInstanceFields(n, inst)
	return n
}

func applyInstanceFields(n *types.Node, inst ec2types.Instance) {
	n.PrivateAddress = aws.ToString(inst.PrivateIpAddress)
	n.PublicAddress = aws.ToString(inst.PublicIpAddress)
	if inst.LaunchTime != nil {
		n.LaunchedAt = *inst.LaunchTime
	}
	n.State = stateFromEC2(inst.State, n.State)
}

func stateFromEC2(state *ec2types.InstanceState, previous types.NodeState) types.NodeState {
	if state == nil {
		return previous
	}
	switch state.Name {
	case ec2types.InstanceStateNamePending:
		return types.NodeStatePending
	case ec2types.InstanceStateNameRunning:
		if previous == types.NodeStatePending || previous == "" {
			return types.NodeStateReachable
		}
		return previous
	case ec2types.InstanceStateNameStopping, ec2types.InstanceStateNameStopped:
		return types.NodeStateStopped
	case ec2types.InstanceStateNameShuttingDown, ec2types.InstanceStateNameTerminated:
		return types.NodeStateTerminated
	default:
		return types.NodeStateInconsistent
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
