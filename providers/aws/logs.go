package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
)

func (p *Provider) createLogGroup(ctx context.Context, desired map[string]any) (map[string]any, error) {
	name := strAttr(desired, "name")

	input := &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(name),
	}
	if tags := tagsAttr(desired); len(tags) > 0 {
		input.Tags = tags
	}
	if _, err := p.logsClient.CreateLogGroup(ctx, input); err != nil {
		return nil, classify(fmt.Errorf("failed to create log group %s: %w", name, err))
	}

	if days := intAttr(desired, "retention_in_days"); days > 0 {
		_, err := p.logsClient.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
			LogGroupName:    aws.String(name),
			RetentionInDays: aws.Int32(days),
		})
		if err != nil {
			return nil, wrapPartial(fmt.Errorf("failed to set retention on log group %s: %w", name, err), name)
		}
	}

	return p.readLogGroup(ctx, name)
}

func (p *Provider) readLogGroup(ctx context.Context, name string) (map[string]any, error) {
	resp, err := p.logsClient.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{
		LogGroupNamePrefix: aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to describe log group %s: %w", name, err))
	}

	// The prefix query can match siblings; pick the exact name.
	for _, lg := range resp.LogGroups {
		if aws.ToString(lg.LogGroupName) != name {
			continue
		}
		out := map[string]any{
			"id":   name,
			"name": name,
			"arn":  aws.ToString(lg.Arn),
		}
		if lg.RetentionInDays != nil {
			out["retention_in_days"] = float64(*lg.RetentionInDays)
		}
		return out, nil
	}
	return nil, nil
}

func (p *Provider) updateLogGroup(ctx context.Context, name string, desired, prior map[string]any) (map[string]any, error) {
	if days := intAttr(desired, "retention_in_days"); days > 0 {
		_, err := p.logsClient.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
			LogGroupName:    aws.String(name),
			RetentionInDays: aws.Int32(days),
		})
		if err != nil {
			return nil, classify(fmt.Errorf("failed to set retention on log group %s: %w", name, err))
		}
	} else if intAttr(prior, "retention_in_days") > 0 {
		_, err := p.logsClient.DeleteRetentionPolicy(ctx, &cloudwatchlogs.DeleteRetentionPolicyInput{
			LogGroupName: aws.String(name),
		})
		if err != nil {
			return nil, classify(fmt.Errorf("failed to clear retention on log group %s: %w", name, err))
		}
	}

	if tags := tagsAttr(desired); len(tags) > 0 {
		arn := strAttr(prior, "arn")
		_, err := p.logsClient.TagResource(ctx, &cloudwatchlogs.TagResourceInput{
			ResourceArn: aws.String(arn),
			Tags:        tags,
		})
		if err != nil {
			return nil, classify(fmt.Errorf("failed to tag log group %s: %w", name, err))
		}
	}

	return p.readLogGroup(ctx, name)
}

func (p *Provider) deleteLogGroup(ctx context.Context, name string) error {
	_, err := p.logsClient.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{
		LogGroupName: aws.String(name),
	})
	if err != nil && !isNotFound(err) {
		return classify(fmt.Errorf("failed to delete log group %s: %w", name, err))
	}
	return nil
}
