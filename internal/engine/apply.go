package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/cairnhq/cairn/internal/config"
	"github.com/cairnhq/cairn/internal/graph"
	"github.com/cairnhq/cairn/internal/ir"
	"github.com/cairnhq/cairn/internal/logging"
	"github.com/cairnhq/cairn/internal/state"
	"github.com/cairnhq/cairn/pkg/provider"
)

// ApplyEvent reports progress of a single change to the caller.
type ApplyEvent struct {
	Address  string
	Action   ir.Action
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Error    error
}

// Summary is the outcome of executing a plan.
type Summary struct {
	Applied   int
	Failed    int
	Skipped   int
	Unchanged int
	Failures  []Failure
}

type Failure struct {
	Address string
	Err     error
}

// Apply executes a plan with bounded parallelism. Creates, updates and
// replacements run first in dependency order; destroys follow in reverse
// dependency order. Each completed operation is persisted to state
// immediately, so an interrupted run never loses track of what it did.
// Cancelling ctx stops dispatching new operations; in-flight ones finish.
func (e *Engine) Apply(ctx context.Context, mod *config.Module, plan *ir.Plan, snap *ir.State, vars map[string]cty.Value, store state.Store, emit func(ApplyEvent)) (*Summary, error) {
	if emit == nil {
		emit = func(ApplyEvent) {}
	}

	g, err := graph.Build(mod, e.registry.Known)
	if err != nil {
		return nil, err
	}
	if err := e.ensureProviders(ctx, g); err != nil {
		return nil, err
	}

	summary := &Summary{
		Unchanged: plan.Summary.NoOp,
		Skipped:   plan.Summary.Skipped,
	}

	var forward, destroys []*ir.ResourceChange
	for _, c := range plan.Changes {
		if c.Action == ir.ActionDestroy {
			destroys = append(destroys, c)
		} else {
			forward = append(forward, c)
		}
	}

	run := &applyRun{
		engine:  e,
		mod:     mod,
		graph:   g,
		snap:    snap,
		vars:    vars,
		store:   store,
		summary: summary,
		emit:    emit,
	}

	run.executeGroup(ctx, forward, forwardDeps(g, forward))
	run.executeGroup(ctx, destroys, destroyDeps(snap, destroys))

	// Module outputs resolve against whatever state the run produced, even
	// a partial one.
	outputs, outputErrs := e.evaluator.ResolveOutputs(mod, snap, vars)
	for name, err := range outputErrs {
		logging.Warn("output could not be resolved", "output", name, "error", err)
	}
	snap.Outputs = outputs
	if err := store.SetOutputs(ctx, outputs); err != nil {
		return summary, fmt.Errorf("failed to persist outputs: %w", err)
	}

	if summary.Failed > 0 {
		errs := make([]error, 0, len(summary.Failures))
		for _, f := range summary.Failures {
			errs = append(errs, fmt.Errorf("%s: %w", f.Address, f.Err))
		}
		return summary, fmt.Errorf("%d resource(s) failed: %w", summary.Failed, errors.Join(errs...))
	}
	return summary, nil
}

// applyRun carries the shared mutable pieces of one Apply invocation.
type applyRun struct {
	engine  *Engine
	mod     *config.Module
	graph   *graph.Graph
	snap    *ir.State
	vars    map[string]cty.Value
	store   state.Store
	summary *Summary
	emit    func(ApplyEvent)

	mu sync.Mutex // guards snap and summary
}

// forwardDeps maps each change to the addresses it must wait for, limited to
// changes in the same group. Dependencies outside the group are either
// unchanged or already applied.
func forwardDeps(g *graph.Graph, changes []*ir.ResourceChange) map[string][]string {
	inGroup := make(map[string]bool, len(changes))
	for _, c := range changes {
		inGroup[c.Address] = true
	}
	deps := make(map[string][]string, len(changes))
	for _, c := range changes {
		for _, dep := range g.Dependencies(c.Address) {
			if inGroup[dep] {
				deps[c.Address] = append(deps[c.Address], dep)
			}
		}
	}
	return deps
}

// destroyDeps inverts the dependency direction: a record is destroyed only
// after every doomed record that depends on it is gone. Dependency info for
// destroys lives in the state records, not the graph.
func destroyDeps(snap *ir.State, changes []*ir.ResourceChange) map[string][]string {
	inGroup := make(map[string]bool, len(changes))
	for _, c := range changes {
		inGroup[c.Address] = true
	}
	deps := make(map[string][]string, len(changes))
	for _, c := range changes {
		rec := snap.Resource(c.Address)
		if rec == nil {
			continue
		}
		for _, dep := range rec.Dependencies {
			if inGroup[dep] {
				deps[dep] = append(deps[dep], c.Address)
			}
		}
	}
	return deps
}

// executeGroup runs one group of changes with dependency tracking: a worker
// per change, gated on a condition variable until its dependencies complete,
// bounded by a semaphore.
func (r *applyRun) executeGroup(ctx context.Context, changes []*ir.ResourceChange, deps map[string][]string) {
	if len(changes) == 0 {
		return
	}

	completed := make(map[string]bool)
	failed := make(map[string]bool)
	var trackMu sync.Mutex
	cond := sync.NewCond(&trackMu)
	sem := make(chan struct{}, r.engine.Parallelism)

	var wg sync.WaitGroup
	for _, change := range changes {
		wg.Add(1)
		go func(c *ir.ResourceChange) {
			defer wg.Done()

			trackMu.Lock()
			for {
				depFailed := false
				ready := true
				for _, dep := range deps[c.Address] {
					if failed[dep] {
						depFailed = true
						break
					}
					if !completed[dep] {
						ready = false
						break
					}
				}
				if depFailed {
					failed[c.Address] = true
					trackMu.Unlock()
					cond.Broadcast()
					r.recordSkip(c)
					return
				}
				if ready {
					break
				}
				cond.Wait()
			}
			trackMu.Unlock()

			if ctx.Err() != nil {
				trackMu.Lock()
				failed[c.Address] = true
				trackMu.Unlock()
				cond.Broadcast()
				r.recordSkip(c)
				return
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "started"})

			if err := r.applyChange(ctx, c); err != nil {
				r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "failed", Duration: time.Since(start), Error: err})
				r.recordFailure(c, err)
				trackMu.Lock()
				failed[c.Address] = true
				trackMu.Unlock()
				cond.Broadcast()
				return
			}

			r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "completed", Duration: time.Since(start)})
			r.recordSuccess()
			trackMu.Lock()
			completed[c.Address] = true
			trackMu.Unlock()
			cond.Broadcast()
		}(change)
	}
	wg.Wait()
}

func (r *applyRun) recordSuccess() {
	r.mu.Lock()
	r.summary.Applied++
	r.mu.Unlock()
}

func (r *applyRun) recordFailure(c *ir.ResourceChange, err error) {
	r.mu.Lock()
	r.summary.Failed++
	r.summary.Failures = append(r.summary.Failures, Failure{Address: c.Address, Err: err})
	r.mu.Unlock()
}

func (r *applyRun) recordSkip(c *ir.ResourceChange) {
	r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "skipped"})
	r.mu.Lock()
	r.summary.Skipped++
	r.mu.Unlock()
}

// applyChange executes a single change and persists its result. The
// operation context is detached from run cancellation: once an operation is
// dispatched it runs to completion (bounded by the per-resource timeout), so
// a half-created resource never goes untracked because the run was
// interrupted.
func (r *applyRun) applyChange(ctx context.Context, c *ir.ResourceChange) error {
	opCtx, cancel := WithTimeout(context.WithoutCancel(ctx), 0)
	defer cancel()

	logging.Debug("applying change", "address", c.Address, "action", c.Action)

	prov, err := r.engine.registry.Get(c.Provider)
	if err != nil {
		return err
	}

	switch c.Action {
	case ir.ActionCreate:
		return r.createResource(opCtx, prov, c)
	case ir.ActionUpdate:
		return r.updateResource(opCtx, prov, c)
	case ir.ActionReplace:
		return r.replaceResource(opCtx, prov, c)
	case ir.ActionDestroy:
		return r.destroyResource(opCtx, prov, c)
	}
	return fmt.Errorf("unsupported action %q for %s", c.Action, c.Address)
}

func (r *applyRun) createResource(ctx context.Context, prov provider.Interface, c *ir.ResourceChange) error {
	desired, err := r.resolveDesired(c)
	if err != nil {
		return err
	}

	var outputs map[string]any
	err = r.runOp(ctx, c.Address, func() error {
		var opErr error
		outputs, opErr = prov.Create(ctx, c.Type, desired)
		return opErr
	})
	if err != nil {
		// A failed create may still have produced something real. Persist
		// whatever identifiers the provider reported so nothing leaks.
		if partial := provider.PartialState(err); partial != nil {
			if saveErr := r.persist(ctx, c, desired, partial); saveErr != nil {
				logging.Error("failed to persist partial state", "address", c.Address, "error", saveErr)
			}
		}
		return err
	}
	return r.persist(ctx, c, desired, outputs)
}

func (r *applyRun) updateResource(ctx context.Context, prov provider.Interface, c *ir.ResourceChange) error {
	desired, err := r.resolveDesired(c)
	if err != nil {
		return err
	}

	r.mu.Lock()
	rec := r.snap.Resource(c.Address)
	r.mu.Unlock()
	if rec == nil {
		return fmt.Errorf("no state record for %s", c.Address)
	}

	var outputs map[string]any
	err = r.runOp(ctx, c.Address, func() error {
		var opErr error
		outputs, opErr = prov.Update(ctx, c.Type, rec.ID(), desired, mergedPrior(rec))
		return opErr
	})
	if err != nil {
		return err
	}
	return r.persist(ctx, c, desired, outputs)
}

// replaceResource executes the two-phase replacement. Default order is
// destroy-then-create; create_before_destroy flips it.
func (r *applyRun) replaceResource(ctx context.Context, prov provider.Interface, c *ir.ResourceChange) error {
	r.mu.Lock()
	rec := r.snap.Resource(c.Address)
	r.mu.Unlock()
	if rec == nil {
		return fmt.Errorf("no state record for %s", c.Address)
	}
	oldID := rec.ID()
	oldPrior := mergedPrior(rec)

	if c.CreateBeforeDestroy {
		if err := r.createResource(ctx, prov, c); err != nil {
			return err
		}
		err := r.runOp(ctx, c.Address, func() error {
			return prov.Delete(ctx, c.Type, oldID, oldPrior)
		})
		if err != nil {
			return fmt.Errorf("replacement created, but the old resource %s could not be destroyed: %w", oldID, err)
		}
		return nil
	}

	err := r.runOp(ctx, c.Address, func() error {
		return prov.Delete(ctx, c.Type, oldID, oldPrior)
	})
	if err != nil {
		return err
	}
	// The old resource is gone; drop its record before attempting the
	// create so a crash in between leaves state truthful.
	r.mu.Lock()
	removeRecord(r.snap, c.Address)
	r.mu.Unlock()
	if err := r.store.Remove(ctx, c.Address); err != nil {
		return fmt.Errorf("failed to persist state after destroying %s: %w", c.Address, err)
	}

	return r.createResource(ctx, prov, c)
}

func (r *applyRun) destroyResource(ctx context.Context, prov provider.Interface, c *ir.ResourceChange) error {
	r.mu.Lock()
	rec := r.snap.Resource(c.Address)
	r.mu.Unlock()
	if rec == nil {
		return nil
	}

	err := r.runOp(ctx, c.Address, func() error {
		return prov.Delete(ctx, c.Type, rec.ID(), mergedPrior(rec))
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	removeRecord(r.snap, c.Address)
	r.mu.Unlock()
	return r.store.Remove(ctx, c.Address)
}

// resolveDesired re-evaluates the resource's expressions against the live
// snapshot. By now every dependency has been applied and its outputs
// recorded, so plan-time unknowns resolve to concrete values.
func (r *applyRun) resolveDesired(c *ir.ResourceChange) (map[string]any, error) {
	res := r.mod.ResourceByAddress(c.Address)
	if res == nil {
		return nil, fmt.Errorf("no declaration for %s", c.Address)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.evaluator.ResolveResource(r.mod, res, r.snap, r.vars)
}

// persist writes the new record for a completed operation and flushes it.
func (r *applyRun) persist(ctx context.Context, c *ir.ResourceChange, inputs, outputs map[string]any) error {
	rec := &ir.ResourceState{
		Type:         c.Type,
		Name:         c.Name,
		Provider:     c.Provider,
		Inputs:       inputs,
		Outputs:      outputs,
		Dependencies: r.graph.Dependencies(c.Address),
		AppliedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	r.mu.Lock()
	upsertRecord(r.snap, c.Address, rec)
	r.mu.Unlock()

	if err := r.store.Save(ctx, c.Address, rec); err != nil {
		return fmt.Errorf("failed to persist state for %s: %w", c.Address, err)
	}
	return nil
}

// runOp executes a provider operation with the engine's retry policy.
func (r *applyRun) runOp(ctx context.Context, addr string, fn func() error) error {
	attempt := 0
	return RetryWithBackoff(ctx, r.engine.Retry, func() error {
		attempt++
		err := fn()
		if err != nil && provider.IsTransient(err) {
			logging.Warn("transient provider error, will retry", "address", addr, "attempt", attempt, "error", err)
		}
		return err
	}, provider.IsTransient)
}

// mergedPrior flattens a record into the prior attribute view providers
// expect: last-applied inputs overlaid with provider-assigned outputs.
func mergedPrior(rec *ir.ResourceState) map[string]any {
	merged := make(map[string]any, len(rec.Inputs)+len(rec.Outputs))
	for k, v := range rec.Inputs {
		merged[k] = v
	}
	for k, v := range rec.Outputs {
		merged[k] = v
	}
	return merged
}

func upsertRecord(snap *ir.State, addr string, rec *ir.ResourceState) {
	for i, existing := range snap.Resources {
		if existing.Address() == addr {
			snap.Resources[i] = rec
			return
		}
	}
	snap.Resources = append(snap.Resources, rec)
}

func removeRecord(snap *ir.State, addr string) {
	for i, existing := range snap.Resources {
		if existing.Address() == addr {
			snap.Resources = append(snap.Resources[:i], snap.Resources[i+1:]...)
			return
		}
	}
}
