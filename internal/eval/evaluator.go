// Package eval resolves declaration expressions into concrete values,
// lazily, in dependency order. References to other resources resolve
// against already-evaluated desired attributes first and the state snapshot
// second; computed attributes of not-yet-created resources stay unknown
// until apply.
package eval

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/cairnhq/cairn/internal/config"
	"github.com/cairnhq/cairn/internal/graph"
	"github.com/cairnhq/cairn/internal/ir"
	"github.com/cairnhq/cairn/internal/logging"
)

// ComputedFunc reports the provider-declared computed attribute names for a
// resource type (ids, ARNs and other values assigned only on apply).
type ComputedFunc func(resourceType string) []string

// Evaluator resolves resource attribute expressions. It is stateless apart
// from its function table and safe to re-run any number of times.
type Evaluator struct {
	funcs map[string]function.Function
}

func New() *Evaluator {
	return &Evaluator{funcs: Functions()}
}

// Resolution is the outcome of evaluating every node in a module.
type Resolution struct {
	// Attrs holds the fully resolved desired attribute set per address.
	Attrs map[string]map[string]any
	// Skipped maps addresses that could not be resolved to the cause: an
	// *Error for the failing node itself, a *SkipError for its dependents.
	Skipped map[string]error

	values map[string]cty.Value // per-address object values for scopes
}

// ResolveAll evaluates every resource in reverse topological order
// (dependencies before dependents). A node whose expressions fail to
// evaluate is recorded in Skipped together with all its transitive
// dependents; independent subgraphs are unaffected.
func (e *Evaluator) ResolveAll(mod *config.Module, g *graph.Graph, snap *ir.State, vars map[string]cty.Value, computed ComputedFunc) (*Resolution, error) {
	base, err := e.baseScope(mod, vars)
	if err != nil {
		return nil, err
	}

	res := &Resolution{
		Attrs:   make(map[string]map[string]any),
		Skipped: make(map[string]error),
		values:  make(map[string]cty.Value),
	}

	for _, addr := range g.CreationOrder() {
		if _, skipped := res.Skipped[addr]; skipped {
			continue
		}
		r := mod.ResourceByAddress(addr)
		if r == nil {
			continue
		}

		ctx := e.scopeContext(base, mod, res.values)
		attrVals, evalErr := evaluateAttrs(r, ctx)
		if evalErr != nil {
			cause := &Error{Addr: addr, Err: evalErr}
			res.Skipped[addr] = cause
			for _, dep := range g.TransitiveDependents(addr) {
				if _, already := res.Skipped[dep]; !already {
					res.Skipped[dep] = &SkipError{Addr: dep, Upstream: addr}
				}
			}
			logging.Warn("skipping node and dependents after evaluation failure", "address", addr, "error", evalErr)
			continue
		}

		res.Attrs[addr] = make(map[string]any, len(attrVals))
		for k, v := range attrVals {
			res.Attrs[addr][k] = ctyToGo(v)
		}
		res.values[addr] = nodeValue(attrVals, snap.Resource(addr), computedFor(computed, r.Type))
	}

	return res, nil
}

// ResolveResource evaluates a single resource against the current state
// snapshot. Used at apply time, when every dependency has already been
// applied and its outputs recorded; any value still unknown here is an
// error.
func (e *Evaluator) ResolveResource(mod *config.Module, r *config.Resource, snap *ir.State, vars map[string]cty.Value) (map[string]any, error) {
	base, err := e.baseScope(mod, vars)
	if err != nil {
		return nil, err
	}

	ctx := e.scopeContext(base, mod, stateValues(snap))
	attrVals, evalErr := evaluateAttrs(r, ctx)
	if evalErr != nil {
		return nil, &Error{Addr: r.Address(), Err: evalErr}
	}

	out := make(map[string]any, len(attrVals))
	for k, v := range attrVals {
		if !v.IsWhollyKnown() {
			return nil, &Error{Addr: r.Address(), Err: fmt.Errorf("attribute %q is still unknown at apply time", k)}
		}
		out[k] = ctyToGo(v)
	}
	return out, nil
}

// ResolveOutputs evaluates the module's output expressions against the
// state snapshot. Failing outputs are reported individually, not fatally.
func (e *Evaluator) ResolveOutputs(mod *config.Module, snap *ir.State, vars map[string]cty.Value) (map[string]any, map[string]error) {
	outs := make(map[string]any)
	errs := make(map[string]error)

	base, err := e.baseScope(mod, vars)
	if err != nil {
		for name := range mod.Outputs {
			errs[name] = err
		}
		return outs, errs
	}
	ctx := e.scopeContext(base, mod, stateValues(snap))

	for name, out := range mod.Outputs {
		val, diags := out.Expr.Value(ctx)
		if diags.HasErrors() {
			errs[name] = fmt.Errorf("output %q: %w", name, diags)
			continue
		}
		outs[name] = ctyToGo(val)
	}
	return outs, errs
}

// BuildVariables merges declared variable defaults with override values.
// Overrides are parsed as HCL expressions so lists and maps work, falling
// back to plain strings.
func BuildVariables(mod *config.Module, overrides map[string]string) (map[string]cty.Value, error) {
	vars := make(map[string]cty.Value, len(mod.Variables))
	for name, v := range mod.Variables {
		if v.HasDefault {
			vars[name] = v.Default
		}
	}
	for name, raw := range overrides {
		if _, declared := mod.Variables[name]; !declared {
			return nil, fmt.Errorf("value supplied for undeclared variable %q", name)
		}
		vars[name] = parseVariableValue(raw)
	}
	for name := range mod.Variables {
		if _, ok := vars[name]; !ok {
			return nil, fmt.Errorf("no value for required variable %q", name)
		}
	}
	return vars, nil
}

func parseVariableValue(raw string) cty.Value {
	expr, diags := hclsyntax.ParseExpression([]byte(raw), "<variable>", hcl.InitialPos)
	if !diags.HasErrors() {
		if val, diags := expr.Value(nil); !diags.HasErrors() {
			return val
		}
	}
	return cty.StringVal(raw)
}

// baseScope evaluates variables and locals. Locals may reference variables
// and other locals; resolution iterates to a fixed point so declaration
// order does not matter.
func (e *Evaluator) baseScope(mod *config.Module, vars map[string]cty.Value) (map[string]cty.Value, error) {
	scope := make(map[string]cty.Value)
	if len(vars) > 0 {
		scope["var"] = cty.ObjectVal(vars)
	}

	pending := make(map[string]hcl.Expression, len(mod.Locals))
	for name, expr := range mod.Locals {
		pending[name] = expr
	}
	resolved := make(map[string]cty.Value)

	for len(pending) > 0 {
		progress := false
		for name, expr := range pending {
			ctx := &hcl.EvalContext{Variables: cloneScope(scope, resolved), Functions: e.funcs}
			val, diags := expr.Value(ctx)
			if diags.HasErrors() {
				continue
			}
			resolved[name] = val
			delete(pending, name)
			progress = true
		}
		if !progress {
			for name, expr := range pending {
				ctx := &hcl.EvalContext{Variables: cloneScope(scope, resolved), Functions: e.funcs}
				_, diags := expr.Value(ctx)
				return nil, fmt.Errorf("local value %q cannot be resolved: %w", name, diags)
			}
		}
	}
	if len(resolved) > 0 {
		scope["local"] = cty.ObjectVal(resolved)
	}
	return scope, nil
}

func cloneScope(scope map[string]cty.Value, locals map[string]cty.Value) map[string]cty.Value {
	out := make(map[string]cty.Value, len(scope)+1)
	for k, v := range scope {
		out[k] = v
	}
	if len(locals) > 0 {
		out["local"] = cty.ObjectVal(locals)
	}
	return out
}

// scopeContext builds the evaluation context: var and local values plus one
// object per resource type holding each resolved node keyed by name.
func (e *Evaluator) scopeContext(base map[string]cty.Value, mod *config.Module, nodeValues map[string]cty.Value) *hcl.EvalContext {
	variables := make(map[string]cty.Value, len(base))
	for k, v := range base {
		variables[k] = v
	}

	byType := make(map[string]map[string]cty.Value)
	for _, r := range mod.Resources {
		val, ok := nodeValues[r.Address()]
		if !ok {
			continue
		}
		if byType[r.Type] == nil {
			byType[r.Type] = make(map[string]cty.Value)
		}
		byType[r.Type][r.Name] = val
	}
	for typ, names := range byType {
		variables[typ] = cty.ObjectVal(names)
	}

	return &hcl.EvalContext{Variables: variables, Functions: e.funcs}
}

func evaluateAttrs(r *config.Resource, ctx *hcl.EvalContext) (map[string]cty.Value, error) {
	out := make(map[string]cty.Value, len(r.Attrs))
	for name, expr := range r.Attrs {
		val, diags := expr.Value(ctx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: %w", name, diags)
		}
		out[name] = val
	}
	return out, nil
}

// nodeValue builds the object other expressions see when they reference
// this node: resolved attributes, overlaid with state outputs when a record
// exists, with remaining computed attributes left unknown.
func nodeValue(attrs map[string]cty.Value, rec *ir.ResourceState, computed []string) cty.Value {
	vals := make(map[string]cty.Value, len(attrs))
	for k, v := range attrs {
		vals[k] = v
	}
	if rec != nil {
		for k, v := range rec.Outputs {
			if _, ok := vals[k]; !ok {
				vals[k] = goToCty(v)
			}
		}
	}
	for _, name := range computed {
		if _, ok := vals[name]; !ok {
			vals[name] = cty.DynamicVal
		}
	}
	if len(vals) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(vals)
}

// stateValues builds per-address object values from state records alone,
// merging last-applied inputs with provider-assigned outputs.
func stateValues(snap *ir.State) map[string]cty.Value {
	out := make(map[string]cty.Value, len(snap.Resources))
	for _, rec := range snap.Resources {
		vals := make(map[string]cty.Value, len(rec.Inputs)+len(rec.Outputs))
		for k, v := range rec.Inputs {
			vals[k] = goToCty(v)
		}
		for k, v := range rec.Outputs {
			vals[k] = goToCty(v)
		}
		if len(vals) == 0 {
			out[rec.Address()] = cty.EmptyObjectVal
			continue
		}
		out[rec.Address()] = cty.ObjectVal(vals)
	}
	return out
}

func computedFor(fn ComputedFunc, typ string) []string {
	if fn == nil {
		return nil
	}
	return fn(typ)
}
