package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

const instanceStartTimeout = 5 * time.Minute

func (p *Provider) createInstance(ctx context.Context, desired map[string]any) (map[string]any, error) {
	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(strAttr(desired, "ami")),
		InstanceType: ec2types.InstanceType(strAttr(desired, "instance_type")),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
	}
	if subnetID := strAttr(desired, "subnet_id"); subnetID != "" {
		input.SubnetId = aws.String(subnetID)
	}
	if keyName := strAttr(desired, "key_name"); keyName != "" {
		input.KeyName = aws.String(keyName)
	}
	if sgs := strListAttr(desired, "security_group_ids"); len(sgs) > 0 {
		input.SecurityGroupIds = sgs
	}
	if userData := strAttr(desired, "user_data"); userData != "" {
		input.UserData = aws.String(userData)
	}
	if tags := tagsAttr(desired); len(tags) > 0 {
		input.TagSpecifications = []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags:         ec2Tags(tags),
		}}
	}

	resp, err := p.ec2Client.RunInstances(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to launch instance: %w", err))
	}
	if len(resp.Instances) == 0 {
		return nil, fmt.Errorf("RunInstances returned no instances")
	}
	inst := resp.Instances[0]
	id := aws.ToString(inst.InstanceId)

	// The instance is pending at this point. Wait for it to start so the
	// addresses we record are the ones it keeps.
	waiter := ec2.NewInstanceRunningWaiter(p.ec2Client)
	err = waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, instanceStartTimeout)
	if err != nil {
		return nil, wrapPartial(fmt.Errorf("instance %s did not reach running state: %w", id, err), id)
	}

	return p.readInstance(ctx, id)
}

func (p *Provider) readInstance(ctx context.Context, id string) (map[string]any, error) {
	resp, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to describe instance %s: %w", id, err))
	}
	for _, res := range resp.Reservations {
		for _, inst := range res.Instances {
			if aws.ToString(inst.InstanceId) != id {
				continue
			}
			if inst.State != nil && inst.State.Name == ec2types.InstanceStateNameTerminated {
				return nil, nil
			}
			out := map[string]any{
				"id":            id,
				"ami":           aws.ToString(inst.ImageId),
				"instance_type": string(inst.InstanceType),
			}
			if inst.SubnetId != nil {
				out["subnet_id"] = aws.ToString(inst.SubnetId)
			}
			if inst.PrivateIpAddress != nil {
				out["private_ip"] = aws.ToString(inst.PrivateIpAddress)
			}
			if inst.PublicIpAddress != nil {
				out["public_ip"] = aws.ToString(inst.PublicIpAddress)
			}
			return out, nil
		}
	}
	return nil, nil
}

func (p *Provider) updateInstance(ctx context.Context, id string, desired, prior map[string]any) (map[string]any, error) {
	if want, have := strAttr(desired, "instance_type"), strAttr(prior, "instance_type"); want != "" && want != have {
		// Requires a stopped instance; AWS rejects it otherwise and the
		// error surfaces as-is.
		_, err := p.ec2Client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
			InstanceId:   aws.String(id),
			InstanceType: &ec2types.AttributeValue{Value: aws.String(want)},
		})
		if err != nil {
			return nil, classify(fmt.Errorf("failed to change instance type of %s: %w", id, err))
		}
	}
	if err := p.applyTags(ctx, id, tagsAttr(desired)); err != nil {
		return nil, err
	}
	return p.readInstance(ctx, id)
}

func (p *Provider) deleteInstance(ctx context.Context, id string) error {
	_, err := p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{id}})
	if err != nil && !isNotFound(err) {
		return classify(fmt.Errorf("failed to terminate instance %s: %w", id, err))
	}
	return nil
}
