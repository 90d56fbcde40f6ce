package ec2

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nchammas/flintrock/pkg/errs"
	"github.com/nchammas/flintrock/pkg/provider"
	"github.com/nchammas/flintrock/pkg/types"
)

// fakeClient is a hand-written stand-in for *ec2.Client covering only
// the calls this package makes.
type fakeClient struct {
	runInstancesOut                  *ec2.RunInstancesOutput
	runInstancesErr                  error
	requestSpotInstancesOut          *ec2.RequestSpotInstancesOutput
	describeSpotInstanceRequestsOut  *ec2.DescribeSpotInstanceRequestsOutput
	describeInstancesOut             *ec2.DescribeInstancesOutput
	describeInstancesErr             error
	describeSecurityGroupsOut        *ec2.DescribeSecurityGroupsOutput
	createSecurityGroupOut           *ec2.CreateSecurityGroupOutput
	deleteSecurityGroupErr           error
	terminateCalls                   []ec2.TerminateInstancesInput
	startCalls                       []ec2.StartInstancesInput
	stopCalls                        []ec2.StopInstancesInput
	cancelSpotCalls                  []ec2.CancelSpotInstanceRequestsInput
	createTagsCalls                  []ec2.CreateTagsInput
	authorizeIngressCalls            []ec2.AuthorizeSecurityGroupIngressInput
	deleteSecurityGroupCalls         []ec2.DeleteSecurityGroupInput
}

func (f *fakeClient) RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	return f.runInstancesOut, f.runInstancesErr
}

func (f *fakeClient) RequestSpotInstances(ctx context.Context, in *ec2.RequestSpotInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RequestSpotInstancesOutput, error) {
	return f.requestSpotInstancesOut, nil
}

func (f *fakeClient) DescribeSpotInstanceRequests(ctx context.Context, in *ec2.DescribeSpotInstanceRequestsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotInstanceRequestsOutput, error) {
	return f.describeSpotInstanceRequestsOut, nil
}

func (f *fakeClient) CancelSpotInstanceRequests(ctx context.Context, in *ec2.CancelSpotInstanceRequestsInput, optFns ...func(*ec2.Options)) (*ec2.CancelSpotInstanceRequestsOutput, error) {
	f.cancelSpotCalls = append(f.cancelSpotCalls, *in)
	return &ec2.CancelSpotInstanceRequestsOutput{}, nil
}

func (f *fakeClient) DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return f.describeInstancesOut, f.describeInstancesErr
}

func (f *fakeClient) StartInstances(ctx context.Context, in *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	f.startCalls = append(f.startCalls, *in)
	return &ec2.StartInstancesOutput{}, nil
}

func (f *fakeClient) StopInstances(ctx context.Context, in *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	f.stopCalls = append(f.stopCalls, *in)
	return &ec2.StopInstancesOutput{}, nil
}

func (f *fakeClient) TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.terminateCalls = append(f.terminateCalls, *in)
	return &ec2.TerminateInstancesOutput{}, nil
}

func (f *fakeClient) CreateTags(ctx context.Context, in *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	f.createTagsCalls = append(f.createTagsCalls, *in)
	return &ec2.CreateTagsOutput{}, nil
}

func (f *fakeClient) DescribeSecurityGroups(ctx context.Context, in *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	if f.describeSecurityGroupsOut == nil {
		return &ec2.DescribeSecurityGroupsOutput{}, nil
	}
	return f.describeSecurityGroupsOut, nil
}

func (f *fakeClient) CreateSecurityGroup(ctx context.Context, in *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	return f.createSecurityGroupOut, nil
}

func (f *fakeClient) AuthorizeSecurityGroupIngress(ctx context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	f.authorizeIngressCalls = append(f.authorizeIngressCalls, *in)
	return &ec2.AuthorizeSecurityGroupIngressOutput{}, nil
}

func (f *fakeClient) DeleteSecurityGroup(ctx context.Context, in *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	f.deleteSecurityGroupCalls = append(f.deleteSecurityGroupCalls, *in)
	return &ec2.DeleteSecurityGroupOutput{}, f.deleteSecurityGroupErr
}

func instance(id, state, private, public string) ec2types.Instance {
	return ec2types.Instance{
		InstanceId:       aws.String(id),
		PrivateIpAddress: aws.String(private),
		PublicIpAddress:  aws.String(public),
		State:            &ec2types.InstanceState{Name: ec2types.InstanceStateName(state)},
		Tags: []ec2types.Tag{
			{Key: aws.String(provider.RoleTag), Value: aws.String("slave")},
		},
	}
}

func TestAllocateOnDemand(t *testing.T) {
	fc := &fakeClient{
		runInstancesOut: &ec2.RunInstancesOutput{
			Instances: []ec2types.Instance{
				instance("i-1", "pending", "", ""),
				instance("i-2", "pending", "", ""),
			},
		},
	}
	p := New(fc, "")

	nodes, err := p.Allocate(context.Background(), provider.AllocateRequest{
		ClusterName:     "test",
		Role:            types.NodeRoleSlave,
		Count:           2,
		InstanceType:    "m5.large",
		AMI:             "ami-123",
		KeyName:         "key",
		SecurityGroupID: "sg-1",
	})

	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	assert.Equal(t, "i-1", nodes[0].InstanceID)
	assert.Equal(t, types.NodeStatePending, nodes[0].State)
}

func TestAllocateSpotTracksRequestIDs(t *testing.T) {
	fc := &fakeClient{
		requestSpotInstancesOut: &ec2.RequestSpotInstancesOutput{
			SpotInstanceRequests: []ec2types.SpotInstanceRequest{
				{SpotInstanceRequestId: aws.String("sir-1")},
			},
		},
	}
	p := New(fc, "")

	nodes, err := p.Allocate(context.Background(), provider.AllocateRequest{
		ClusterName:     "test",
		Role:            types.NodeRoleSlave,
		Count:           1,
		InstanceType:    "m5.large",
		AMI:             "ami-123",
		KeyName:         "key",
		SecurityGroupID: "sg-1",
		SpotPrice:       "0.10",
	})

	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "sir-1", nodes[0].SpotRequestID)
	assert.Empty(t, nodes[0].InstanceID)
}

func TestDescribeSplitsMasterAndSlaves(t *testing.T) {
	masterInst := instance("i-master", "running", "10.0.0.1", "1.2.3.4")
	masterInst.Tags = []ec2types.Tag{{Key: aws.String(provider.RoleTag), Value: aws.String("master")}}
	fc := &fakeClient{
		describeInstancesOut: &ec2.DescribeInstancesOutput{
			Reservations: []ec2types.Reservation{
				{Instances: []ec2types.Instance{
					masterInst,
					instance("i-slave-1", "running", "10.0.0.2", "1.2.3.5"),
				}},
			},
		},
	}
	p := New(fc, "")

	cluster, err := p.Describe(context.Background(), "test")

	require.NoError(t, err)
	require.NotNil(t, cluster.Master)
	assert.Equal(t, "i-master", cluster.Master.InstanceID)
	require.Len(t, cluster.Slaves, 1)
	assert.Equal(t, "i-slave-1", cluster.Slaves[0].InstanceID)
}

func TestDescribePrefersRunningMasterOverStopped(t *testing.T) {
	staleMaster := instance("i-master-old", "stopped", "10.0.0.9", "")
	staleMaster.Tags = []ec2types.Tag{{Key: aws.String(provider.RoleTag), Value: aws.String("master")}}
	freshMaster := instance("i-master-new", "running", "10.0.0.1", "1.2.3.4")
	freshMaster.Tags = []ec2types.Tag{{Key: aws.String(provider.RoleTag), Value: aws.String("master")}}
	fc := &fakeClient{
		describeInstancesOut: &ec2.DescribeInstancesOutput{
			Reservations: []ec2types.Reservation{
				{Instances: []ec2types.Instance{staleMaster, freshMaster}},
			},
		},
	}
	p := New(fc, "")

	cluster, err := p.Describe(context.Background(), "test")

	require.NoError(t, err)
	require.NotNil(t, cluster.Master)
	assert.Equal(t, "i-master-new", cluster.Master.InstanceID)
}

func TestDescribeReportsInconsistentWithTwoRunningMasters(t *testing.T) {
	masterA := instance("i-master-a", "running", "10.0.0.1", "1.2.3.4")
	masterA.Tags = []ec2types.Tag{{Key: aws.String(provider.RoleTag), Value: aws.String("master")}}
	masterB := instance("i-master-b", "running", "10.0.0.2", "1.2.3.5")
	masterB.Tags = []ec2types.Tag{{Key: aws.String(provider.RoleTag), Value: aws.String("master")}}
	fc := &fakeClient{
		describeInstancesOut: &ec2.DescribeInstancesOutput{
			Reservations: []ec2types.Reservation{
				{Instances: []ec2types.Instance{masterA, masterB}},
			},
		},
	}
	p := New(fc, "")

	_, err := p.Describe(context.Background(), "test")

	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindInconsistent, kind)
}

func TestDescribeErrorsWhenClusterNotFound(t *testing.T) {
	fc := &fakeClient{describeInstancesOut: &ec2.DescribeInstancesOutput{}}
	p := New(fc, "")

	_, err := p.Describe(context.Background(), "missing")

	assert.Error(t, err)
}

func TestVerifyIngressRulesReportsMissingOnly(t *testing.T) {
	fc := &fakeClient{
		describeSecurityGroupsOut: &ec2.DescribeSecurityGroupsOutput{
			SecurityGroups: []ec2types.SecurityGroup{{
				GroupId: aws.String("sg-1"),
				IpPermissions: []ec2types.IpPermission{{
					FromPort:   aws.Int32(22),
					ToPort:     aws.Int32(22),
					IpProtocol: aws.String("tcp"),
					IpRanges:   []ec2types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
				}},
			}},
		},
	}
	p := New(fc, "")

	missing, err := p.VerifyIngressRules(context.Background(), "test", []provider.PortRule{
		{FromPort: 22, ToPort: 22, Protocol: "tcp", CIDR: "0.0.0.0/0"},
		{FromPort: 8080, ToPort: 8080, Protocol: "tcp", CIDR: "0.0.0.0/0"},
	})

	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, int32(8080), missing[0].FromPort)
}

func TestCancelSpotRequestsSkipsEmptyInput(t *testing.T) {
	fc := &fakeClient{}
	p := New(fc, "")

	err := p.CancelSpotRequests(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, fc.cancelSpotCalls)
}

func TestDeleteSecurityGroupIsIdempotent(t *testing.T) {
	fc := &fakeClient{deleteSecurityGroupErr: &smithyStatusError{message: "InvalidGroup.NotFound: The security group 'sg-1' does not exist"}}
	p := New(fc, "")

	err := p.DeleteSecurityGroup(context.Background(), "sg-1")

	require.NoError(t, err)
	assert.Len(t, fc.deleteSecurityGroupCalls, 1)
}

func TestDeleteSecurityGroupSkipsEmptyGroupID(t *testing.T) {
	fc := &fakeClient{}
	p := New(fc, "")

	err := p.DeleteSecurityGroup(context.Background(), "")

	require.NoError(t, err)
	assert.Empty(t, fc.deleteSecurityGroupCalls)
}

// smithyStatusError is a minimal stand-in for the AWS SDK's generated
// error types; DeleteSecurityGroup only inspects Error() text.
type smithyStatusError struct{ message string }

func (e *smithyStatusError) Error() string { return e.message }

func TestTerminateSkipsNodesWithoutInstanceID(t *testing.T) {
	fc := &fakeClient{}
	p := New(fc, "")

	err := p.Terminate(context.Background(), []*types.Node{{Role: types.NodeRoleSlave, SpotRequestID: "sir-1"}})

	require.NoError(t, err)
	assert.Empty(t, fc.terminateCalls)
}
