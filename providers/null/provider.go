// Package null implements a provider with no real backing service. Its
// resources exist only in state, which makes it useful for wiring graphs
// together and for exercising the engine end to end without credentials.
package null

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/cairnhq/cairn/pkg/provider"
)

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	return nil
}

func (p *Provider) Schema(resourceType string) (*provider.ResourceSchema, error) {
	switch resourceType {
	case "null_resource":
		return &provider.ResourceSchema{
			// Any change to triggers tears the resource down and recreates
			// it; that is the whole point of the attribute.
			ForcesReplacement: []string{"triggers"},
			Computed:          []string{"id"},
		}, nil
	default:
		return nil, fmt.Errorf("null provider does not support resource type %q", resourceType)
	}
}

func (p *Provider) Create(ctx context.Context, resourceType string, desired map[string]any) (map[string]any, error) {
	if resourceType != "null_resource" {
		return nil, fmt.Errorf("null provider does not support resource type %q", resourceType)
	}

	outputs := map[string]any{
		"id": "null-" + uuid.NewString(),
	}
	if triggers, ok := desired["triggers"]; ok {
		outputs["triggers"] = triggers
	}
	return outputs, nil
}

func (p *Provider) Read(ctx context.Context, resourceType, id string, prior map[string]any) (map[string]any, error) {
	// Nothing external to observe; whatever state says is the truth.
	return prior, nil
}

func (p *Provider) Update(ctx context.Context, resourceType, id string, desired, prior map[string]any) (map[string]any, error) {
	// Triggers force replacement, and there are no other attributes, so an
	// in-place update never changes anything observable.
	if !reflect.DeepEqual(desired["triggers"], prior["triggers"]) {
		return nil, fmt.Errorf("null_resource triggers cannot be updated in place")
	}
	return prior, nil
}

func (p *Provider) Delete(ctx context.Context, resourceType, id string, prior map[string]any) error {
	return nil
}
