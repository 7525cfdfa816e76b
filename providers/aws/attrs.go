package aws

import (
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Attribute maps arrive from the evaluator as JSON-shaped values: strings,
// float64 numbers, bools, []any, map[string]any. These helpers narrow them.

func strAttr(attrs map[string]any, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func boolAttr(attrs map[string]any, key string) bool {
	b, _ := attrs[key].(bool)
	return b
}

func intAttr(attrs map[string]any, key string) int32 {
	f, _ := attrs[key].(float64)
	return int32(f)
}

func strListAttr(attrs map[string]any, key string) []string {
	raw, _ := attrs[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapListAttr(attrs map[string]any, key string) []map[string]any {
	raw, _ := attrs[key].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func tagsAttr(attrs map[string]any) map[string]string {
	raw, _ := attrs["tags"].(map[string]any)
	tags := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			tags[k] = s
		}
	}
	return tags
}

// ec2Tags converts a tag map to the SDK type, sorted for deterministic
// request bodies.
func ec2Tags(tags map[string]string) []ec2types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]ec2types.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, ec2types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}
