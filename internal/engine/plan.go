package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/cairnhq/cairn/internal/config"
	"github.com/cairnhq/cairn/internal/graph"
	"github.com/cairnhq/cairn/internal/ir"
	"github.com/cairnhq/cairn/internal/logging"
	"github.com/cairnhq/cairn/pkg/provider"
)

// Plan computes the set of changes that would bring recorded state in line
// with the declared configuration. Changes appear in execution order:
// creates and updates in dependency order, then destroys of undeclared
// resources in reverse dependency order.
func (e *Engine) Plan(ctx context.Context, mod *config.Module, snap *ir.State, vars map[string]cty.Value) (*ir.Plan, error) {
	g, err := graph.Build(mod, e.registry.Known)
	if err != nil {
		return nil, err
	}
	if err := e.ensureProviders(ctx, g); err != nil {
		return nil, err
	}

	res, err := e.evaluator.ResolveAll(mod, g, snap, vars, e.computedFunc(mod))
	if err != nil {
		return nil, err
	}

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{Timestamp: time.Now().UTC().Format(time.RFC3339)},
		Summary:  &ir.PlanSummary{Skipped: len(res.Skipped)},
	}

	for _, addr := range g.CreationOrder() {
		if _, skipped := res.Skipped[addr]; skipped {
			continue
		}
		r := mod.ResourceByAddress(addr)
		if r == nil {
			continue
		}

		change, err := e.planResource(r, res.Attrs[addr], snap.Resource(addr))
		if err != nil {
			return nil, err
		}
		switch change.Action {
		case ir.ActionNoOp:
			plan.Summary.NoOp++
		case ir.ActionCreate:
			plan.Summary.Create++
			plan.Changes = append(plan.Changes, change)
		case ir.ActionUpdate:
			plan.Summary.Update++
			plan.Changes = append(plan.Changes, change)
		case ir.ActionReplace:
			plan.Summary.Replace++
			plan.Changes = append(plan.Changes, change)
		}
	}

	destroys, err := e.planDestroys(mod, snap)
	if err != nil {
		return nil, err
	}
	plan.Summary.Destroy = len(destroys)
	plan.Changes = append(plan.Changes, destroys...)

	logging.Debug("plan calculated",
		"create", plan.Summary.Create, "update", plan.Summary.Update,
		"replace", plan.Summary.Replace, "destroy", plan.Summary.Destroy,
		"noop", plan.Summary.NoOp, "skipped", plan.Summary.Skipped)
	return plan, nil
}

// PlanDestroy computes a plan that tears down every recorded resource, in
// reverse dependency order. prevent_destroy in the current configuration
// blocks the whole plan.
func (e *Engine) PlanDestroy(ctx context.Context, mod *config.Module, snap *ir.State) (*ir.Plan, error) {
	for _, rec := range snap.Resources {
		if r := mod.ResourceByAddress(rec.Address()); r != nil && r.Lifecycle != nil && r.Lifecycle.PreventDestroy {
			return nil, &PlanError{Addr: rec.Address(), Reason: "resource has prevent_destroy set and cannot be destroyed"}
		}
	}

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{Timestamp: time.Now().UTC().Format(time.RFC3339)},
		Summary:  &ir.PlanSummary{Destroy: len(snap.Resources)},
	}
	for _, rec := range orderDestroys(snap.Resources) {
		plan.Changes = append(plan.Changes, destroyChange(rec))
	}
	return plan, nil
}

// planResource classifies a single declared resource against its state
// record.
func (e *Engine) planResource(r *config.Resource, desired map[string]any, rec *ir.ResourceState) (*ir.ResourceChange, error) {
	change := &ir.ResourceChange{
		Address:  r.Address(),
		Type:     r.Type,
		Name:     r.Name,
		Provider: r.Provider,
		Desired:  desired,
	}
	if r.Lifecycle != nil {
		change.CreateBeforeDestroy = r.Lifecycle.CreateBeforeDestroy
	}

	schema := e.schemaFor(r.Provider, r.Type)

	if rec == nil {
		change.Action = ir.ActionCreate
		change.Diff = make(map[string]*ir.AttributeDiff, len(desired))
		for k, v := range desired {
			change.Diff[k] = &ir.AttributeDiff{After: v, Action: ir.ActionCreate}
		}
		return change, nil
	}

	change.Prior = rec.Inputs
	var ignore []string
	if r.Lifecycle != nil {
		ignore = r.Lifecycle.IgnoreChanges
	}
	change.Diff = diffAttrs(rec.Inputs, desired, schema, ignore)

	if len(change.Diff) == 0 {
		change.Action = ir.ActionNoOp
		return change, nil
	}

	change.Action = ir.ActionUpdate
	for _, d := range change.Diff {
		if d.ForcesReplacement {
			change.Action = ir.ActionReplace
			break
		}
	}

	if change.Action == ir.ActionReplace && r.Lifecycle != nil && r.Lifecycle.PreventDestroy {
		return nil, &PlanError{
			Addr:   r.Address(),
			Reason: "planned changes require replacement, but the resource has prevent_destroy set",
		}
	}
	return change, nil
}

// planDestroys finds state records with no matching declaration. A record
// still depended on by a surviving record blocks the plan.
func (e *Engine) planDestroys(mod *config.Module, snap *ir.State) ([]*ir.ResourceChange, error) {
	doomed := make(map[string]bool)
	var recs []*ir.ResourceState
	for _, rec := range snap.Resources {
		if mod.ResourceByAddress(rec.Address()) == nil {
			doomed[rec.Address()] = true
			recs = append(recs, rec)
		}
	}
	if len(recs) == 0 {
		return nil, nil
	}

	for _, rec := range snap.Resources {
		if doomed[rec.Address()] {
			continue
		}
		for _, dep := range rec.Dependencies {
			if doomed[dep] {
				return nil, &PlanError{
					Addr:   dep,
					Reason: fmt.Sprintf("cannot be destroyed: %s still depends on it", rec.Address()),
				}
			}
		}
	}

	changes := make([]*ir.ResourceChange, 0, len(recs))
	for _, rec := range orderDestroys(recs) {
		changes = append(changes, destroyChange(rec))
	}
	return changes, nil
}

func destroyChange(rec *ir.ResourceState) *ir.ResourceChange {
	return &ir.ResourceChange{
		Address:  rec.Address(),
		Type:     rec.Type,
		Name:     rec.Name,
		Provider: rec.Provider,
		Action:   ir.ActionDestroy,
		Prior:    rec.Inputs,
	}
}

func (e *Engine) schemaFor(providerName, resourceType string) *provider.ResourceSchema {
	p, err := e.registry.Get(providerName)
	if err != nil {
		return nil
	}
	schema, err := p.Schema(resourceType)
	if err != nil {
		return nil
	}
	return schema
}

// diffAttrs compares last-applied inputs with the desired attribute set.
// Attributes in ignore are excluded from the comparison entirely.
func diffAttrs(prior, desired map[string]any, schema *provider.ResourceSchema, ignore []string) map[string]*ir.AttributeDiff {
	ignored := make(map[string]bool, len(ignore))
	for _, k := range ignore {
		ignored[k] = true
	}

	keys := make(map[string]bool, len(prior)+len(desired))
	for k := range prior {
		keys[k] = true
	}
	for k := range desired {
		keys[k] = true
	}

	diff := make(map[string]*ir.AttributeDiff)
	for k := range keys {
		if ignored[k] {
			continue
		}
		before, hasBefore := prior[k]
		after, hasAfter := desired[k]
		if reflect.DeepEqual(normalize(before), normalize(after)) {
			continue
		}

		d := &ir.AttributeDiff{
			Before:            before,
			After:             after,
			ForcesReplacement: schema.ForcesReplacementOn(k),
		}
		switch {
		case !hasBefore:
			d.Action = ir.ActionCreate
		case !hasAfter:
			d.Action = ir.ActionDestroy
		default:
			d.Action = ir.ActionUpdate
		}
		diff[k] = d
	}
	return diff
}

// normalize round-trips a value through JSON so that values loaded from
// state and values fresh from evaluation compare on shape, not on Go type.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// orderDestroys sorts records so dependents come before their dependencies.
// Only edges between the doomed records matter.
func orderDestroys(recs []*ir.ResourceState) []*ir.ResourceState {
	index := make(map[string]int, len(recs))
	for i, rec := range recs {
		index[rec.Address()] = i
	}

	// Kahn's algorithm over in-set dependency edges yields creation order;
	// the reverse is destruction order.
	inDegree := make([]int, len(recs))
	dependents := make([][]int, len(recs))
	for i, rec := range recs {
		for _, dep := range rec.Dependencies {
			if j, ok := index[dep]; ok {
				inDegree[i]++
				dependents[j] = append(dependents[j], i)
			}
		}
	}

	var queue []int
	for i := range recs {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	sort.Ints(queue)

	order := make([]int, 0, len(recs))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, i)
		for _, dep := range dependents[i] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	// State records can't form cycles, but if one slips through, append the
	// leftovers rather than dropping them.
	if len(order) < len(recs) {
		seen := make(map[int]bool, len(order))
		for _, i := range order {
			seen[i] = true
		}
		for i := range recs {
			if !seen[i] {
				order = append(order, i)
			}
		}
	}

	out := make([]*ir.ResourceState, len(recs))
	for i, idx := range order {
		out[len(recs)-1-i] = recs[idx]
	}
	return out
}
