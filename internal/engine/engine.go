// Package engine turns declarations into action: it diffs desired
// configuration against recorded state to produce a plan, and executes plans
// with bounded parallelism, retries, and crash-safe state persistence.
package engine

import (
	"context"
	"fmt"

	"github.com/cairnhq/cairn/internal/config"
	"github.com/cairnhq/cairn/internal/eval"
	"github.com/cairnhq/cairn/internal/graph"
	registry "github.com/cairnhq/cairn/internal/provider"
)

// DefaultParallelism bounds concurrent provider operations.
const DefaultParallelism = 10

type Engine struct {
	registry  *registry.Registry
	evaluator *eval.Evaluator

	// Parallelism caps concurrent provider operations during apply.
	Parallelism int
	// Retry governs transient-error retries for provider operations.
	Retry *RetryPolicy
	// ProviderSettings carries per-provider configuration (region, profile).
	ProviderSettings map[string]map[string]string
}

func New(reg *registry.Registry) *Engine {
	return &Engine{
		registry:    reg,
		evaluator:   eval.New(),
		Parallelism: DefaultParallelism,
		Retry:       DefaultRetryPolicy(),
	}
}

// ensureProviders loads and configures every provider the graph needs.
func (e *Engine) ensureProviders(ctx context.Context, g *graph.Graph) error {
	seen := make(map[string]bool)
	for _, node := range g.Nodes() {
		if seen[node.Provider] {
			continue
		}
		seen[node.Provider] = true

		if err := e.registry.LoadProvider(node.Provider); err != nil {
			return err
		}
		p, err := e.registry.Get(node.Provider)
		if err != nil {
			return err
		}
		if err := p.Configure(ctx, e.ProviderSettings[node.Provider]); err != nil {
			return fmt.Errorf("failed to configure provider %s: %w", node.Provider, err)
		}
	}
	return nil
}

// computedFunc returns the evaluator hook that reports provider-computed
// attributes per resource type.
func (e *Engine) computedFunc(mod *config.Module) eval.ComputedFunc {
	providerOf := make(map[string]string, len(mod.Resources))
	for _, r := range mod.Resources {
		providerOf[r.Type] = r.Provider
	}
	return func(resourceType string) []string {
		p, err := e.registry.Get(providerOf[resourceType])
		if err != nil {
			return nil
		}
		schema, err := p.Schema(resourceType)
		if err != nil {
			return nil
		}
		return schema.Computed
	}
}
