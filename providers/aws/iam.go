package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
)

func (p *Provider) createRole(ctx context.Context, desired map[string]any) (map[string]any, error) {
	name := strAttr(desired, "name")

	input := &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(strAttr(desired, "assume_role_policy")),
	}
	if desc := strAttr(desired, "description"); desc != "" {
		input.Description = aws.String(desc)
	}
	if tags := tagsAttr(desired); len(tags) > 0 {
		input.Tags = iamTags(tags)
	}

	resp, err := p.iamClient.CreateRole(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create IAM role %s: %w", name, err))
	}

	for _, arn := range strListAttr(desired, "managed_policy_arns") {
		_, err := p.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(name),
			PolicyArn: aws.String(arn),
		})
		if err != nil {
			return nil, wrapPartial(fmt.Errorf("failed to attach policy %s to role %s: %w", arn, name, err), name)
		}
	}

	return map[string]any{
		"id":        name,
		"name":      name,
		"arn":       aws.ToString(resp.Role.Arn),
		"unique_id": aws.ToString(resp.Role.RoleId),
	}, nil
}

func (p *Provider) readRole(ctx context.Context, name string) (map[string]any, error) {
	resp, err := p.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to get IAM role %s: %w", name, err))
	}
	return map[string]any{
		"id":        name,
		"name":      name,
		"arn":       aws.ToString(resp.Role.Arn),
		"unique_id": aws.ToString(resp.Role.RoleId),
	}, nil
}

func (p *Provider) updateRole(ctx context.Context, name string, desired, prior map[string]any) (map[string]any, error) {
	if want, have := strAttr(desired, "assume_role_policy"), strAttr(prior, "assume_role_policy"); want != "" && want != have {
		_, err := p.iamClient.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
			RoleName:       aws.String(name),
			PolicyDocument: aws.String(want),
		})
		if err != nil {
			return nil, classify(fmt.Errorf("failed to update trust policy of role %s: %w", name, err))
		}
	}

	wantPolicies := toSet(strListAttr(desired, "managed_policy_arns"))
	havePolicies := toSet(strListAttr(prior, "managed_policy_arns"))
	for arn := range wantPolicies {
		if havePolicies[arn] {
			continue
		}
		_, err := p.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(name),
			PolicyArn: aws.String(arn),
		})
		if err != nil {
			return nil, classify(fmt.Errorf("failed to attach policy %s to role %s: %w", arn, name, err))
		}
	}
	for arn := range havePolicies {
		if wantPolicies[arn] {
			continue
		}
		_, err := p.iamClient.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName:  aws.String(name),
			PolicyArn: aws.String(arn),
		})
		if err != nil && !isNotFound(err) {
			return nil, classify(fmt.Errorf("failed to detach policy %s from role %s: %w", arn, name, err))
		}
	}

	return p.readRole(ctx, name)
}

func (p *Provider) deleteRole(ctx context.Context, name string) error {
	// Attached managed policies block deletion; detach them first.
	attached, err := p.iamClient.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify(fmt.Errorf("failed to list policies of role %s: %w", name, err))
	}
	for _, policy := range attached.AttachedPolicies {
		_, err := p.iamClient.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName:  aws.String(name),
			PolicyArn: policy.PolicyArn,
		})
		if err != nil && !isNotFound(err) {
			return classify(fmt.Errorf("failed to detach policy %s from role %s: %w", aws.ToString(policy.PolicyArn), name, err))
		}
	}

	_, err = p.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(name)})
	if err != nil && !isNotFound(err) {
		return classify(fmt.Errorf("failed to delete IAM role %s: %w", name, err))
	}
	return nil
}

func iamTags(tags map[string]string) []iamtypes.Tag {
	out := make([]iamtypes.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, iamtypes.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
