/*
Package ec2 implements provider.Provider against Amazon EC2 using
aws-sdk-go-v2. It is Flintrock's only shipped Provider Adapter.

	Adapter
	  Allocate            → ec2:RunInstances (on-demand) or
	                         ec2:RequestSpotInstances (spot)
	  Describe            → ec2:DescribeInstances filtered by
	                         tag:flintrock-cluster-name
	  WaitReachable       → poll DescribeInstances until addresses
	                         are assigned, then TCP-dial port 22
	  Start/Stop/Terminate → ec2:{Start,Stop,Terminate}Instances
	  EnsureSecurityGroup → ec2:CreateSecurityGroup +
	                         ec2:AuthorizeSecurityGroupIngress
	  VerifyIngressRules  → ec2:DescribeSecurityGroups, diff only
	  CancelSpotRequests  → ec2:CancelSpotInstanceRequests

Every instance is tagged with flintrock-cluster-name and
flintrock-role, and the cluster's security group with
flintrock-cluster-name; Describe trusts only these
tags and never consults any local state, per the no-local-database
design in spec §9.
*/
package ec2
