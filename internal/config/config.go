// Package config loads declaration files into an unevaluated module: resource
// blocks keep their attribute expressions so the graph builder can scan them
// for references and the evaluator can resolve them lazily.
package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/cairnhq/cairn/internal/ir"
)

// Module is the merged content of all declaration files in a directory.
type Module struct {
	Resources []*Resource
	Variables map[string]*Variable
	Locals    map[string]hcl.Expression
	Outputs   map[string]*Output
}

// Resource is a single resource declaration. Attributes are held as
// unevaluated expressions until planning.
type Resource struct {
	Type     string
	Name     string
	Provider string

	Attrs     map[string]hcl.Expression
	DependsOn []string
	Lifecycle *ir.Lifecycle

	DeclRange hcl.Range
}

// Address returns the resource's address (type.name).
func (r *Resource) Address() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Name)
}

// Expressions returns all attribute expressions, for reference scanning.
func (r *Resource) Expressions() []hcl.Expression {
	exprs := make([]hcl.Expression, 0, len(r.Attrs))
	for _, e := range r.Attrs {
		exprs = append(exprs, e)
	}
	return exprs
}

type Variable struct {
	Name        string
	Default     cty.Value
	HasDefault  bool
	Description string
	DeclRange   hcl.Range
}

type Output struct {
	Name      string
	Expr      hcl.Expression
	DeclRange hcl.Range
}

// ResourceByAddress returns the declared resource for addr, or nil.
func (m *Module) ResourceByAddress(addr string) *Resource {
	for _, r := range m.Resources {
		if r.Address() == addr {
			return r
		}
	}
	return nil
}

// providerForType derives the provider name from a resource type tag:
// everything before the first underscore ("aws_vpc" -> "aws"). An explicit
// provider attribute on the block overrides this.
func providerForType(typ string) string {
	if i := strings.Index(typ, "_"); i > 0 {
		return typ[:i]
	}
	return typ
}
