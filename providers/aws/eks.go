package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
)

// EKS control planes take double-digit minutes to come up.
const eksClusterActiveTimeout = 30 * time.Minute

func (p *Provider) createEKSCluster(ctx context.Context, desired map[string]any) (map[string]any, error) {
	name := strAttr(desired, "name")

	input := &eks.CreateClusterInput{
		Name:    aws.String(name),
		RoleArn: aws.String(strAttr(desired, "role_arn")),
		ResourcesVpcConfig: &ekstypes.VpcConfigRequest{
			SubnetIds: strListAttr(desired, "subnet_ids"),
		},
	}
	if version := strAttr(desired, "version"); version != "" {
		input.Version = aws.String(version)
	}
	if sgs := strListAttr(desired, "security_group_ids"); len(sgs) > 0 {
		input.ResourcesVpcConfig.SecurityGroupIds = sgs
	}
	if tags := tagsAttr(desired); len(tags) > 0 {
		input.Tags = tags
	}

	_, err := p.eksClient.CreateCluster(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create EKS cluster %s: %w", name, err))
	}

	waiter := eks.NewClusterActiveWaiter(p.eksClient)
	err = waiter.Wait(ctx, &eks.DescribeClusterInput{Name: aws.String(name)}, eksClusterActiveTimeout)
	if err != nil {
		return nil, wrapPartial(fmt.Errorf("EKS cluster %s did not become active: %w", name, err), name)
	}

	return p.readEKSCluster(ctx, name)
}

func (p *Provider) readEKSCluster(ctx context.Context, name string) (map[string]any, error) {
	resp, err := p.eksClient.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to describe EKS cluster %s: %w", name, err))
	}
	c := resp.Cluster
	out := map[string]any{
		"id":     aws.ToString(c.Name),
		"name":   aws.ToString(c.Name),
		"arn":    aws.ToString(c.Arn),
		"status": string(c.Status),
	}
	if c.Endpoint != nil {
		out["endpoint"] = aws.ToString(c.Endpoint)
	}
	if c.Version != nil {
		out["version"] = aws.ToString(c.Version)
	}
	if c.RoleArn != nil {
		out["role_arn"] = aws.ToString(c.RoleArn)
	}
	return out, nil
}

func (p *Provider) updateEKSCluster(ctx context.Context, id string, desired, prior map[string]any) (map[string]any, error) {
	if want, have := strAttr(desired, "version"), strAttr(prior, "version"); want != "" && want != have {
		_, err := p.eksClient.UpdateClusterVersion(ctx, &eks.UpdateClusterVersionInput{
			Name:    aws.String(id),
			Version: aws.String(want),
		})
		if err != nil {
			return nil, classify(fmt.Errorf("failed to update EKS cluster %s version: %w", id, err))
		}
		waiter := eks.NewClusterActiveWaiter(p.eksClient)
		if err := waiter.Wait(ctx, &eks.DescribeClusterInput{Name: aws.String(id)}, eksClusterActiveTimeout); err != nil {
			return nil, classify(fmt.Errorf("EKS cluster %s did not settle after version update: %w", id, err))
		}
	}

	if tags := tagsAttr(desired); len(tags) > 0 {
		arn := strAttr(prior, "arn")
		if arn != "" {
			_, err := p.eksClient.TagResource(ctx, &eks.TagResourceInput{
				ResourceArn: aws.String(arn),
				Tags:        tags,
			})
			if err != nil {
				return nil, classify(fmt.Errorf("failed to tag EKS cluster %s: %w", id, err))
			}
		}
	}

	return p.readEKSCluster(ctx, id)
}

func (p *Provider) deleteEKSCluster(ctx context.Context, id string) error {
	_, err := p.eksClient.DeleteCluster(ctx, &eks.DeleteClusterInput{Name: aws.String(id)})
	if err != nil && !isNotFound(err) {
		return classify(fmt.Errorf("failed to delete EKS cluster %s: %w", id, err))
	}
	return nil
}
