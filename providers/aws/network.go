package aws

import (
	"context"
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// VPC

func (p *Provider) createVpc(ctx context.Context, desired map[string]any) (map[string]any, error) {
	resp, err := p.ec2Client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock: aws.String(strAttr(desired, "cidr_block")),
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create VPC: %w", err))
	}
	id := aws.ToString(resp.Vpc.VpcId)

	if boolAttr(desired, "enable_dns_hostnames") {
		_, err := p.ec2Client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:              aws.String(id),
			EnableDnsHostnames: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
		})
		if err != nil {
			// The VPC exists; surface its id so state tracks it.
			return nil, wrapPartial(fmt.Errorf("failed to enable DNS hostnames on %s: %w", id, err), id)
		}
	}

	if err := p.applyTags(ctx, id, tagsAttr(desired)); err != nil {
		return nil, wrapPartial(err, id)
	}

	return map[string]any{
		"id":         id,
		"cidr_block": aws.ToString(resp.Vpc.CidrBlock),
	}, nil
}

func (p *Provider) readVpc(ctx context.Context, id string) (map[string]any, error) {
	resp, err := p.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{id}})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to describe VPC %s: %w", id, err))
	}
	if len(resp.Vpcs) == 0 {
		return nil, nil
	}
	vpc := resp.Vpcs[0]
	return map[string]any{
		"id":         aws.ToString(vpc.VpcId),
		"cidr_block": aws.ToString(vpc.CidrBlock),
		"state":      string(vpc.State),
	}, nil
}

func (p *Provider) updateVpc(ctx context.Context, id string, desired, prior map[string]any) (map[string]any, error) {
	if err := p.applyTags(ctx, id, tagsAttr(desired)); err != nil {
		return nil, err
	}
	out := map[string]any{"id": id}
	if cidr := strAttr(prior, "cidr_block"); cidr != "" {
		out["cidr_block"] = cidr
	}
	return out, nil
}

func (p *Provider) deleteVpc(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(id)})
	if err != nil && !isNotFound(err) {
		return classify(fmt.Errorf("failed to delete VPC %s: %w", id, err))
	}
	return nil
}

// Subnet

func (p *Provider) createSubnet(ctx context.Context, desired map[string]any) (map[string]any, error) {
	input := &ec2.CreateSubnetInput{
		VpcId:     aws.String(strAttr(desired, "vpc_id")),
		CidrBlock: aws.String(strAttr(desired, "cidr_block")),
	}
	if az := strAttr(desired, "availability_zone"); az != "" {
		input.AvailabilityZone = aws.String(az)
	}

	resp, err := p.ec2Client.CreateSubnet(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create subnet: %w", err))
	}
	id := aws.ToString(resp.Subnet.SubnetId)

	if boolAttr(desired, "map_public_ip_on_launch") {
		_, err := p.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            aws.String(id),
			MapPublicIpOnLaunch: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
		})
		if err != nil {
			return nil, wrapPartial(fmt.Errorf("failed to set public IP mapping on %s: %w", id, err), id)
		}
	}

	if err := p.applyTags(ctx, id, tagsAttr(desired)); err != nil {
		return nil, wrapPartial(err, id)
	}

	return map[string]any{
		"id":                aws.ToString(resp.Subnet.SubnetId),
		"vpc_id":            aws.ToString(resp.Subnet.VpcId),
		"cidr_block":        aws.ToString(resp.Subnet.CidrBlock),
		"availability_zone": aws.ToString(resp.Subnet.AvailabilityZone),
	}, nil
}

func (p *Provider) readSubnet(ctx context.Context, id string) (map[string]any, error) {
	resp, err := p.ec2Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: []string{id}})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to describe subnet %s: %w", id, err))
	}
	if len(resp.Subnets) == 0 {
		return nil, nil
	}
	sn := resp.Subnets[0]
	return map[string]any{
		"id":                aws.ToString(sn.SubnetId),
		"vpc_id":            aws.ToString(sn.VpcId),
		"cidr_block":        aws.ToString(sn.CidrBlock),
		"availability_zone": aws.ToString(sn.AvailabilityZone),
	}, nil
}

func (p *Provider) updateSubnet(ctx context.Context, id string, desired, prior map[string]any) (map[string]any, error) {
	if boolAttr(desired, "map_public_ip_on_launch") != boolAttr(prior, "map_public_ip_on_launch") {
		_, err := p.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            aws.String(id),
			MapPublicIpOnLaunch: &ec2types.AttributeBooleanValue{Value: aws.Bool(boolAttr(desired, "map_public_ip_on_launch"))},
		})
		if err != nil {
			return nil, classify(fmt.Errorf("failed to modify subnet %s: %w", id, err))
		}
	}
	if err := p.applyTags(ctx, id, tagsAttr(desired)); err != nil {
		return nil, err
	}
	out := map[string]any{"id": id}
	for _, k := range []string{"vpc_id", "cidr_block", "availability_zone"} {
		if v := strAttr(prior, k); v != "" {
			out[k] = v
		}
	}
	return out, nil
}

func (p *Provider) deleteSubnet(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(id)})
	if err != nil && !isNotFound(err) {
		return classify(fmt.Errorf("failed to delete subnet %s: %w", id, err))
	}
	return nil
}

// Security group

func (p *Provider) createSecurityGroup(ctx context.Context, desired map[string]any) (map[string]any, error) {
	input := &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(strAttr(desired, "name")),
		Description: aws.String(strAttr(desired, "description")),
	}
	if vpcID := strAttr(desired, "vpc_id"); vpcID != "" {
		input.VpcId = aws.String(vpcID)
	}

	resp, err := p.ec2Client.CreateSecurityGroup(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create security group: %w", err))
	}
	id := aws.ToString(resp.GroupId)

	if perms := ipPermissions(mapListAttr(desired, "ingress")); len(perms) > 0 {
		_, err := p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(id),
			IpPermissions: perms,
		})
		if err != nil {
			return nil, wrapPartial(fmt.Errorf("failed to authorize ingress on %s: %w", id, err), id)
		}
	}
	if perms := ipPermissions(mapListAttr(desired, "egress")); len(perms) > 0 {
		_, err := p.ec2Client.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       aws.String(id),
			IpPermissions: perms,
		})
		if err != nil {
			return nil, wrapPartial(fmt.Errorf("failed to authorize egress on %s: %w", id, err), id)
		}
	}

	if err := p.applyTags(ctx, id, tagsAttr(desired)); err != nil {
		return nil, wrapPartial(err, id)
	}

	return map[string]any{
		"id":   id,
		"name": strAttr(desired, "name"),
	}, nil
}

func (p *Provider) readSecurityGroup(ctx context.Context, id string) (map[string]any, error) {
	resp, err := p.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{id}})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to describe security group %s: %w", id, err))
	}
	if len(resp.SecurityGroups) == 0 {
		return nil, nil
	}
	sg := resp.SecurityGroups[0]
	return map[string]any{
		"id":     aws.ToString(sg.GroupId),
		"name":   aws.ToString(sg.GroupName),
		"vpc_id": aws.ToString(sg.VpcId),
	}, nil
}

func (p *Provider) updateSecurityGroup(ctx context.Context, id string, desired, prior map[string]any) (map[string]any, error) {
	// Rule updates are revoke-old, authorize-new. AWS has no in-place rule
	// edit on this API surface.
	if !reflect.DeepEqual(desired["ingress"], prior["ingress"]) {
		if old := ipPermissions(mapListAttr(prior, "ingress")); len(old) > 0 {
			_, err := p.ec2Client.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
				GroupId:       aws.String(id),
				IpPermissions: old,
			})
			if err != nil && !isNotFound(err) {
				return nil, classify(fmt.Errorf("failed to revoke ingress on %s: %w", id, err))
			}
		}
		if perms := ipPermissions(mapListAttr(desired, "ingress")); len(perms) > 0 {
			_, err := p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
				GroupId:       aws.String(id),
				IpPermissions: perms,
			})
			if err != nil {
				return nil, classify(fmt.Errorf("failed to authorize ingress on %s: %w", id, err))
			}
		}
	}
	if !reflect.DeepEqual(desired["egress"], prior["egress"]) {
		if old := ipPermissions(mapListAttr(prior, "egress")); len(old) > 0 {
			_, err := p.ec2Client.RevokeSecurityGroupEgress(ctx, &ec2.RevokeSecurityGroupEgressInput{
				GroupId:       aws.String(id),
				IpPermissions: old,
			})
			if err != nil && !isNotFound(err) {
				return nil, classify(fmt.Errorf("failed to revoke egress on %s: %w", id, err))
			}
		}
		if perms := ipPermissions(mapListAttr(desired, "egress")); len(perms) > 0 {
			_, err := p.ec2Client.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
				GroupId:       aws.String(id),
				IpPermissions: perms,
			})
			if err != nil {
				return nil, classify(fmt.Errorf("failed to authorize egress on %s: %w", id, err))
			}
		}
	}

	if err := p.applyTags(ctx, id, tagsAttr(desired)); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "name": strAttr(prior, "name")}, nil
}

func (p *Provider) deleteSecurityGroup(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(id)})
	if err != nil && !isNotFound(err) {
		return classify(fmt.Errorf("failed to delete security group %s: %w", id, err))
	}
	return nil
}

func ipPermissions(rules []map[string]any) []ec2types.IpPermission {
	perms := make([]ec2types.IpPermission, 0, len(rules))
	for _, rule := range rules {
		perm := ec2types.IpPermission{
			FromPort:   aws.Int32(intAttr(rule, "from_port")),
			ToPort:     aws.Int32(intAttr(rule, "to_port")),
			IpProtocol: aws.String(strAttr(rule, "protocol")),
		}
		for _, cidr := range strListAttr(rule, "cidr_blocks") {
			perm.IpRanges = append(perm.IpRanges, ec2types.IpRange{CidrIp: aws.String(cidr)})
		}
		perms = append(perms, perm)
	}
	return perms
}

// Internet gateway

func (p *Provider) createInternetGateway(ctx context.Context, desired map[string]any) (map[string]any, error) {
	resp, err := p.ec2Client.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create internet gateway: %w", err))
	}
	id := aws.ToString(resp.InternetGateway.InternetGatewayId)

	if vpcID := strAttr(desired, "vpc_id"); vpcID != "" {
		_, err := p.ec2Client.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
			InternetGatewayId: aws.String(id),
			VpcId:             aws.String(vpcID),
		})
		if err != nil {
			return nil, wrapPartial(fmt.Errorf("failed to attach internet gateway %s: %w", id, err), id)
		}
	}

	if err := p.applyTags(ctx, id, tagsAttr(desired)); err != nil {
		return nil, wrapPartial(err, id)
	}

	return map[string]any{"id": id, "vpc_id": strAttr(desired, "vpc_id")}, nil
}

func (p *Provider) readInternetGateway(ctx context.Context, id string) (map[string]any, error) {
	resp, err := p.ec2Client.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		InternetGatewayIds: []string{id},
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to describe internet gateway %s: %w", id, err))
	}
	if len(resp.InternetGateways) == 0 {
		return nil, nil
	}
	igw := resp.InternetGateways[0]
	out := map[string]any{"id": aws.ToString(igw.InternetGatewayId)}
	if len(igw.Attachments) > 0 {
		out["vpc_id"] = aws.ToString(igw.Attachments[0].VpcId)
	}
	return out, nil
}

func (p *Provider) deleteInternetGateway(ctx context.Context, id string, prior map[string]any) error {
	if vpcID := strAttr(prior, "vpc_id"); vpcID != "" {
		_, err := p.ec2Client.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
			InternetGatewayId: aws.String(id),
			VpcId:             aws.String(vpcID),
		})
		if err != nil && !isNotFound(err) {
			return classify(fmt.Errorf("failed to detach internet gateway %s: %w", id, err))
		}
	}
	_, err := p.ec2Client.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
		InternetGatewayId: aws.String(id),
	})
	if err != nil && !isNotFound(err) {
		return classify(fmt.Errorf("failed to delete internet gateway %s: %w", id, err))
	}
	return nil
}

// Transit gateway VPC attachment

func (p *Provider) createTransitGatewayAttachment(ctx context.Context, desired map[string]any) (map[string]any, error) {
	resp, err := p.ec2Client.CreateTransitGatewayVpcAttachment(ctx, &ec2.CreateTransitGatewayVpcAttachmentInput{
		TransitGatewayId: aws.String(strAttr(desired, "transit_gateway_id")),
		VpcId:            aws.String(strAttr(desired, "vpc_id")),
		SubnetIds:        strListAttr(desired, "subnet_ids"),
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create transit gateway attachment: %w", err))
	}
	att := resp.TransitGatewayVpcAttachment
	id := aws.ToString(att.TransitGatewayAttachmentId)

	if err := p.applyTags(ctx, id, tagsAttr(desired)); err != nil {
		return nil, wrapPartial(err, id)
	}

	return map[string]any{
		"id":                 id,
		"transit_gateway_id": aws.ToString(att.TransitGatewayId),
		"vpc_id":             aws.ToString(att.VpcId),
		"state":              string(att.State),
	}, nil
}

func (p *Provider) readTransitGatewayAttachment(ctx context.Context, id string) (map[string]any, error) {
	resp, err := p.ec2Client.DescribeTransitGatewayVpcAttachments(ctx, &ec2.DescribeTransitGatewayVpcAttachmentsInput{
		TransitGatewayAttachmentIds: []string{id},
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to describe transit gateway attachment %s: %w", id, err))
	}
	if len(resp.TransitGatewayVpcAttachments) == 0 {
		return nil, nil
	}
	att := resp.TransitGatewayVpcAttachments[0]
	if att.State == ec2types.TransitGatewayAttachmentStateDeleted {
		return nil, nil
	}
	return map[string]any{
		"id":                 aws.ToString(att.TransitGatewayAttachmentId),
		"transit_gateway_id": aws.ToString(att.TransitGatewayId),
		"vpc_id":             aws.ToString(att.VpcId),
		"state":              string(att.State),
	}, nil
}

func (p *Provider) deleteTransitGatewayAttachment(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteTransitGatewayVpcAttachment(ctx, &ec2.DeleteTransitGatewayVpcAttachmentInput{
		TransitGatewayAttachmentId: aws.String(id),
	})
	if err != nil && !isNotFound(err) {
		return classify(fmt.Errorf("failed to delete transit gateway attachment %s: %w", id, err))
	}
	return nil
}

// Shared helpers

func (p *Provider) applyTags(ctx context.Context, id string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := p.ec2Client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id},
		Tags:      ec2Tags(tags),
	})
	if err != nil {
		return classify(fmt.Errorf("failed to tag %s: %w", id, err))
	}
	return nil
}

func (p *Provider) updateTagsOnly(ctx context.Context, id string, desired, prior map[string]any) (map[string]any, error) {
	if err := p.applyTags(ctx, id, tagsAttr(desired)); err != nil {
		return nil, err
	}
	out := map[string]any{"id": id}
	for k, v := range prior {
		if k != "tags" {
			out[k] = v
		}
	}
	return out, nil
}
