package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/cairnhq/cairn/internal/ir"
)

// LoadDir parses every .hcl file in dir and merges the result into a single
// module. Syntax errors abort loading before anything else runs.
func LoadDir(dir string) (*Module, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".hcl" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl configuration files found in %s", dir)
	}
	sort.Strings(files)

	parser := hclparse.NewParser()
	mod := newModule()
	for _, f := range files {
		hclFile, diags := parser.ParseHCLFile(f)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %w", f, diags)
		}
		if err := appendFile(mod, hclFile); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

// Parse parses a single in-memory declaration source. Used by tests and by
// callers that stream declarations rather than reading a directory.
func Parse(filename string, src []byte) (*Module, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}
	mod := newModule()
	if err := appendFile(mod, hclFile); err != nil {
		return nil, err
	}
	return mod, nil
}

func newModule() *Module {
	return &Module{
		Variables: make(map[string]*Variable),
		Locals:    make(map[string]hcl.Expression),
		Outputs:   make(map[string]*Output),
	}
}

func appendFile(mod *Module, file *hcl.File) error {
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return fmt.Errorf("unsupported declaration syntax")
	}

	for _, block := range body.Blocks {
		switch block.Type {
		case "resource":
			res, err := decodeResource(block)
			if err != nil {
				return err
			}
			mod.Resources = append(mod.Resources, res)

		case "variable":
			v, err := decodeVariable(block)
			if err != nil {
				return err
			}
			if _, exists := mod.Variables[v.Name]; exists {
				return fmt.Errorf("%s: duplicate variable %q", block.DefRange().String(), v.Name)
			}
			mod.Variables[v.Name] = v

		case "locals":
			for name, attr := range block.Body.Attributes {
				if _, exists := mod.Locals[name]; exists {
					return fmt.Errorf("%s: duplicate local value %q", attr.SrcRange.String(), name)
				}
				mod.Locals[name] = attr.Expr
			}

		case "output":
			o, err := decodeOutput(block)
			if err != nil {
				return err
			}
			if _, exists := mod.Outputs[o.Name]; exists {
				return fmt.Errorf("%s: duplicate output %q", block.DefRange().String(), o.Name)
			}
			mod.Outputs[o.Name] = o

		default:
			return fmt.Errorf("%s: unsupported block type %q", block.DefRange().String(), block.Type)
		}
	}
	return nil
}

func decodeResource(block *hclsyntax.Block) (*Resource, error) {
	if len(block.Labels) != 2 {
		return nil, fmt.Errorf("%s: resource block requires type and name labels", block.DefRange().String())
	}

	res := &Resource{
		Type:      block.Labels[0],
		Name:      block.Labels[1],
		Attrs:     make(map[string]hcl.Expression),
		DeclRange: block.DefRange(),
	}
	res.Provider = providerForType(res.Type)

	for name, attr := range block.Body.Attributes {
		switch name {
		case "provider":
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() || val.Type() != cty.String {
				return nil, fmt.Errorf("%s: provider must be a literal string", attr.SrcRange.String())
			}
			res.Provider = val.AsString()
		case "depends_on":
			deps, err := decodeDependsOn(attr.Expr)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", attr.SrcRange.String(), err)
			}
			res.DependsOn = deps
		default:
			res.Attrs[name] = attr.Expr
		}
	}

	for _, inner := range block.Body.Blocks {
		switch inner.Type {
		case "lifecycle":
			lc, err := decodeLifecycle(inner)
			if err != nil {
				return nil, err
			}
			res.Lifecycle = lc
		default:
			return nil, fmt.Errorf("%s: unsupported block %q inside resource", inner.DefRange().String(), inner.Type)
		}
	}

	return res, nil
}

// decodeDependsOn accepts a list of bare resource references, e.g.
// depends_on = [aws_vpc.lab, aws_iam_role.cluster].
func decodeDependsOn(expr hcl.Expression) ([]string, error) {
	items, diags := hcl.ExprList(expr)
	if diags.HasErrors() {
		return nil, fmt.Errorf("depends_on must be a list of resource references")
	}
	var deps []string
	for _, item := range items {
		trav, diags := hcl.AbsTraversalForExpr(item)
		if diags.HasErrors() || len(trav) < 2 {
			return nil, fmt.Errorf("depends_on entries must be type.name references")
		}
		typ := trav.RootName()
		attrStep, ok := trav[1].(hcl.TraverseAttr)
		if !ok {
			return nil, fmt.Errorf("depends_on entries must be type.name references")
		}
		deps = append(deps, fmt.Sprintf("%s.%s", typ, attrStep.Name))
	}
	return deps, nil
}

func decodeLifecycle(block *hclsyntax.Block) (*ir.Lifecycle, error) {
	lc := &ir.Lifecycle{}
	for name, attr := range block.Body.Attributes {
		switch name {
		case "create_before_destroy", "prevent_destroy":
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() || val.Type() != cty.Bool {
				return nil, fmt.Errorf("%s: %s must be a literal bool", attr.SrcRange.String(), name)
			}
			if name == "create_before_destroy" {
				lc.CreateBeforeDestroy = val.True()
			} else {
				lc.PreventDestroy = val.True()
			}
		case "ignore_changes":
			items, diags := hcl.ExprList(attr.Expr)
			if diags.HasErrors() {
				return nil, fmt.Errorf("%s: ignore_changes must be a list of attribute names", attr.SrcRange.String())
			}
			for _, item := range items {
				// Accept both quoted names and bare identifiers.
				if trav, diags := hcl.AbsTraversalForExpr(item); !diags.HasErrors() && len(trav) == 1 {
					lc.IgnoreChanges = append(lc.IgnoreChanges, trav.RootName())
					continue
				}
				val, diags := item.Value(nil)
				if diags.HasErrors() || val.Type() != cty.String {
					return nil, fmt.Errorf("%s: ignore_changes entries must be attribute names", attr.SrcRange.String())
				}
				lc.IgnoreChanges = append(lc.IgnoreChanges, val.AsString())
			}
		default:
			return nil, fmt.Errorf("%s: unsupported lifecycle argument %q", attr.SrcRange.String(), name)
		}
	}
	return lc, nil
}

func decodeVariable(block *hclsyntax.Block) (*Variable, error) {
	if len(block.Labels) != 1 {
		return nil, fmt.Errorf("%s: variable block requires a name label", block.DefRange().String())
	}
	v := &Variable{Name: block.Labels[0], DeclRange: block.DefRange()}
	for name, attr := range block.Body.Attributes {
		switch name {
		case "default":
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("%s: variable default must be a literal value", attr.SrcRange.String())
			}
			v.Default = val
			v.HasDefault = true
		case "description":
			val, diags := attr.Expr.Value(nil)
			if !diags.HasErrors() && val.Type() == cty.String {
				v.Description = val.AsString()
			}
		default:
			return nil, fmt.Errorf("%s: unsupported variable argument %q", attr.SrcRange.String(), name)
		}
	}
	return v, nil
}

func decodeOutput(block *hclsyntax.Block) (*Output, error) {
	if len(block.Labels) != 1 {
		return nil, fmt.Errorf("%s: output block requires a name label", block.DefRange().String())
	}
	o := &Output{Name: block.Labels[0], DeclRange: block.DefRange()}
	attr, ok := block.Body.Attributes["value"]
	if !ok {
		return nil, fmt.Errorf("%s: output block requires a value argument", block.DefRange().String())
	}
	o.Expr = attr.Expr
	return o, nil
}
