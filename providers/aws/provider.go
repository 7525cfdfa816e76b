// Package aws implements the AWS provider over aws-sdk-go-v2. It covers the
// networking, compute, EKS, IAM, and CloudWatch Logs resource types used by
// typical lab topologies.
package aws

import (
	"context"
	"fmt"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/cairnhq/cairn/pkg/provider"
)

type Provider struct {
	mu      sync.Mutex
	region  string
	profile string

	ec2Client  *ec2.Client
	eksClient  *eks.Client
	iamClient  *iam.Client
	logsClient *cloudwatchlogs.Client
}

func New() *Provider {
	return &Provider{region: "us-east-1"}
}

func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if region := settings["region"]; region != "" {
		p.region = region
	}
	p.profile = settings["profile"]
	return nil
}

func (p *Provider) ensureClients(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ec2Client != nil {
		return nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(p.region))
	if p.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(p.profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	p.ec2Client = ec2.NewFromConfig(cfg)
	p.eksClient = eks.NewFromConfig(cfg)
	p.iamClient = iam.NewFromConfig(cfg)
	p.logsClient = cloudwatchlogs.NewFromConfig(cfg)
	return nil
}

func (p *Provider) Schema(resourceType string) (*provider.ResourceSchema, error) {
	switch resourceType {
	case "aws_vpc":
		return &provider.ResourceSchema{
			ForcesReplacement: []string{"cidr_block"},
			Computed:          []string{"id"},
		}, nil
	case "aws_subnet":
		return &provider.ResourceSchema{
			ForcesReplacement: []string{"vpc_id", "cidr_block", "availability_zone"},
			Computed:          []string{"id"},
		}, nil
	case "aws_security_group":
		return &provider.ResourceSchema{
			ForcesReplacement: []string{"name", "vpc_id", "description"},
			Computed:          []string{"id"},
		}, nil
	case "aws_internet_gateway":
		return &provider.ResourceSchema{
			ForcesReplacement: []string{"vpc_id"},
			Computed:          []string{"id"},
		}, nil
	case "aws_transit_gateway_attachment":
		return &provider.ResourceSchema{
			ForcesReplacement: []string{"transit_gateway_id", "vpc_id", "subnet_ids"},
			Computed:          []string{"id"},
		}, nil
	case "aws_instance":
		return &provider.ResourceSchema{
			ForcesReplacement: []string{"ami", "subnet_id", "availability_zone", "key_name"},
			Computed:          []string{"id", "private_ip", "public_ip"},
		}, nil
	case "aws_eks_cluster":
		return &provider.ResourceSchema{
			ForcesReplacement: []string{"name", "role_arn", "subnet_ids"},
			Computed:          []string{"id", "arn", "endpoint", "status"},
		}, nil
	case "aws_iam_role":
		return &provider.ResourceSchema{
			ForcesReplacement: []string{"name"},
			Computed:          []string{"id", "arn", "unique_id"},
		}, nil
	case "aws_cloudwatch_log_group":
		return &provider.ResourceSchema{
			ForcesReplacement: []string{"name"},
			Computed:          []string{"id", "arn"},
		}, nil
	default:
		return nil, fmt.Errorf("aws provider does not support resource type %q", resourceType)
	}
}

func (p *Provider) Create(ctx context.Context, resourceType string, desired map[string]any) (map[string]any, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, provider.NewTransient(err)
	}

	switch resourceType {
	case "aws_vpc":
		return p.createVpc(ctx, desired)
	case "aws_subnet":
		return p.createSubnet(ctx, desired)
	case "aws_security_group":
		return p.createSecurityGroup(ctx, desired)
	case "aws_internet_gateway":
		return p.createInternetGateway(ctx, desired)
	case "aws_transit_gateway_attachment":
		return p.createTransitGatewayAttachment(ctx, desired)
	case "aws_instance":
		return p.createInstance(ctx, desired)
	case "aws_eks_cluster":
		return p.createEKSCluster(ctx, desired)
	case "aws_iam_role":
		return p.createRole(ctx, desired)
	case "aws_cloudwatch_log_group":
		return p.createLogGroup(ctx, desired)
	}
	return nil, fmt.Errorf("aws provider does not support resource type %q", resourceType)
}

func (p *Provider) Read(ctx context.Context, resourceType, id string, prior map[string]any) (map[string]any, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, provider.NewTransient(err)
	}

	switch resourceType {
	case "aws_vpc":
		return p.readVpc(ctx, id)
	case "aws_subnet":
		return p.readSubnet(ctx, id)
	case "aws_security_group":
		return p.readSecurityGroup(ctx, id)
	case "aws_internet_gateway":
		return p.readInternetGateway(ctx, id)
	case "aws_transit_gateway_attachment":
		return p.readTransitGatewayAttachment(ctx, id)
	case "aws_instance":
		return p.readInstance(ctx, id)
	case "aws_eks_cluster":
		return p.readEKSCluster(ctx, id)
	case "aws_iam_role":
		return p.readRole(ctx, id)
	case "aws_cloudwatch_log_group":
		return p.readLogGroup(ctx, id)
	}
	return nil, fmt.Errorf("aws provider does not support resource type %q", resourceType)
}

func (p *Provider) Update(ctx context.Context, resourceType, id string, desired, prior map[string]any) (map[string]any, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, provider.NewTransient(err)
	}

	switch resourceType {
	case "aws_vpc":
		return p.updateVpc(ctx, id, desired, prior)
	case "aws_subnet":
		return p.updateSubnet(ctx, id, desired, prior)
	case "aws_security_group":
		return p.updateSecurityGroup(ctx, id, desired, prior)
	case "aws_instance":
		return p.updateInstance(ctx, id, desired, prior)
	case "aws_eks_cluster":
		return p.updateEKSCluster(ctx, id, desired, prior)
	case "aws_iam_role":
		return p.updateRole(ctx, id, desired, prior)
	case "aws_cloudwatch_log_group":
		return p.updateLogGroup(ctx, id, desired, prior)
	case "aws_internet_gateway", "aws_transit_gateway_attachment":
		// Every mutable attribute forces replacement; only tags remain.
		return p.updateTagsOnly(ctx, id, desired, prior)
	}
	return nil, fmt.Errorf("aws provider does not support resource type %q", resourceType)
}

func (p *Provider) Delete(ctx context.Context, resourceType, id string, prior map[string]any) error {
	if err := p.ensureClients(ctx); err != nil {
		return provider.NewTransient(err)
	}

	switch resourceType {
	case "aws_vpc":
		return p.deleteVpc(ctx, id)
	case "aws_subnet":
		return p.deleteSubnet(ctx, id)
	case "aws_security_group":
		return p.deleteSecurityGroup(ctx, id)
	case "aws_internet_gateway":
		return p.deleteInternetGateway(ctx, id, prior)
	case "aws_transit_gateway_attachment":
		return p.deleteTransitGatewayAttachment(ctx, id)
	case "aws_instance":
		return p.deleteInstance(ctx, id)
	case "aws_eks_cluster":
		return p.deleteEKSCluster(ctx, id)
	case "aws_iam_role":
		return p.deleteRole(ctx, id)
	case "aws_cloudwatch_log_group":
		return p.deleteLogGroup(ctx, id)
	}
	return fmt.Errorf("aws provider does not support resource type %q", resourceType)
}
