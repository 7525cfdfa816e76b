// Package provider defines the generic capability set every resource
// provider implements. The engine treats all vendor APIs as opaque
// implementations of this interface, selected by resource type prefix at
// graph-build time.
package provider

import "context"

// Interface is the contract between the engine and a provider.
type Interface interface {
	// Configure prepares the provider with backend settings (region,
	// endpoints, credentials profile). Called once before any operation.
	Configure(ctx context.Context, settings map[string]string) error

	// Schema describes a resource type: which attribute changes force
	// replacement, and which attributes are assigned by the provider.
	Schema(resourceType string) (*ResourceSchema, error)

	// Create provisions a new resource and returns its provider-assigned
	// attributes. The returned map must include "id".
	Create(ctx context.Context, resourceType string, desired map[string]any) (map[string]any, error)

	// Read fetches the observed attributes of an existing resource.
	// A (nil, nil) return means the resource no longer exists.
	Read(ctx context.Context, resourceType, id string, prior map[string]any) (map[string]any, error)

	// Update applies an in-place change and returns refreshed attributes.
	Update(ctx context.Context, resourceType, id string, desired, prior map[string]any) (map[string]any, error)

	// Delete removes the resource.
	Delete(ctx context.Context, resourceType, id string, prior map[string]any) error
}

// ResourceSchema carries the engine-relevant metadata for a resource type.
type ResourceSchema struct {
	// ForcesReplacement lists attributes whose change cannot be applied in
	// place: the planner emits destroy+create instead of update.
	ForcesReplacement []string

	// Computed lists attributes assigned by the provider on apply (ids,
	// ARNs, endpoints). They are unknown at plan time for new resources.
	Computed []string
}

// ForcesReplacementOn reports whether a change to attr requires replacement.
func (s *ResourceSchema) ForcesReplacementOn(attr string) bool {
	if s == nil {
		return false
	}
	for _, a := range s.ForcesReplacement {
		if a == attr {
			return true
		}
	}
	return false
}
