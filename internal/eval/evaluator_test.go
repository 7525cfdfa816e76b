package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnhq/cairn/internal/config"
	"github.com/cairnhq/cairn/internal/graph"
	"github.com/cairnhq/cairn/internal/ir"
)

func parseModule(t *testing.T, src string) (*config.Module, *graph.Graph) {
	t.Helper()
	mod, err := config.Parse("test.hcl", []byte(src))
	require.NoError(t, err)
	g, err := graph.Build(mod, func(string) bool { return true })
	require.NoError(t, err)
	return mod, g
}

func TestResolveAll_VariablesLocalsAndFunctions(t *testing.T) {
	mod, g := parseModule(t, `
variable "prefix" {
  default = "lab"
}

locals {
  tags = { managed = "cairn" }
  name = format("%s-vpc", var.prefix)
}

resource "aws_vpc" "main" {
  cidr_block = "10.0.0.0/16"
  tags       = merge(local.tags, { Name = local.name })
}
`)
	vars, err := BuildVariables(mod, nil)
	require.NoError(t, err)

	res, err := New().ResolveAll(mod, g, ir.NewState(), vars, nil)
	require.NoError(t, err)
	require.Empty(t, res.Skipped)

	attrs := res.Attrs["aws_vpc.main"]
	require.NotNil(t, attrs)
	assert.Equal(t, "10.0.0.0/16", attrs["cidr_block"])
	assert.Equal(t, map[string]any{"managed": "cairn", "Name": "lab-vpc"}, attrs["tags"])
}

func TestResolveAll_ReferenceResolvesFromState(t *testing.T) {
	mod, g := parseModule(t, `
resource "aws_vpc" "main" {
  cidr_block = "10.0.0.0/16"
}

resource "aws_subnet" "a" {
  vpc_id     = aws_vpc.main.id
  cidr_block = "10.0.1.0/24"
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources, &ir.ResourceState{
		Type: "aws_vpc", Name: "main", Provider: "aws",
		Inputs:  map[string]any{"cidr_block": "10.0.0.0/16"},
		Outputs: map[string]any{"id": "vpc-123"},
	})

	res, err := New().ResolveAll(mod, g, snap, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "vpc-123", res.Attrs["aws_subnet.a"]["vpc_id"])
}

func TestResolveAll_ComputedAttrUnknownBeforeCreate(t *testing.T) {
	mod, g := parseModule(t, `
resource "aws_vpc" "main" {
  cidr_block = "10.0.0.0/16"
}

resource "aws_subnet" "a" {
  vpc_id = aws_vpc.main.id
}
`)
	computed := func(typ string) []string {
		if typ == "aws_vpc" {
			return []string{"id"}
		}
		return nil
	}

	res, err := New().ResolveAll(mod, g, ir.NewState(), nil, computed)
	require.NoError(t, err)
	require.Empty(t, res.Skipped)
	assert.Equal(t, UnknownPlaceholder, res.Attrs["aws_subnet.a"]["vpc_id"])
}

func TestResolveAll_FailurePropagatesToDependents(t *testing.T) {
	mod, g := parseModule(t, `
resource "null_resource" "broken" {
  triggers = { x = lookup("not-a-map") }
}

resource "null_resource" "dependent" {
  triggers = { y = null_resource.broken.id }
}

resource "null_resource" "independent" {
  triggers = { z = "ok" }
}
`)
	res, err := New().ResolveAll(mod, g, ir.NewState(), nil, nil)
	require.NoError(t, err)

	require.Contains(t, res.Skipped, "null_resource.broken")
	var evalErr *Error
	assert.ErrorAs(t, res.Skipped["null_resource.broken"], &evalErr)

	require.Contains(t, res.Skipped, "null_resource.dependent")
	var skipErr *SkipError
	require.ErrorAs(t, res.Skipped["null_resource.dependent"], &skipErr)
	assert.Equal(t, "null_resource.broken", skipErr.Upstream)

	// Independent subgraphs still resolve.
	assert.NotContains(t, res.Skipped, "null_resource.independent")
	assert.Equal(t, map[string]any{"z": "ok"}, res.Attrs["null_resource.independent"]["triggers"])
}

func TestResolveResource_RejectsUnknownAtApplyTime(t *testing.T) {
	mod, _ := parseModule(t, `
resource "aws_vpc" "main" {
  cidr_block = "10.0.0.0/16"
}

resource "aws_subnet" "a" {
  vpc_id = aws_vpc.main.id
}
`)
	// No state record for the VPC, so its id cannot be known.
	subnet := mod.ResourceByAddress("aws_subnet.a")
	_, err := New().ResolveResource(mod, subnet, ir.NewState(), nil)
	require.Error(t, err)
	var evalErr *Error
	assert.ErrorAs(t, err, &evalErr)
}

func TestResolveResource_ResolvesOnceDependencyApplied(t *testing.T) {
	mod, _ := parseModule(t, `
resource "aws_vpc" "main" {
  cidr_block = "10.0.0.0/16"
}

resource "aws_subnet" "a" {
  vpc_id = aws_vpc.main.id
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources, &ir.ResourceState{
		Type: "aws_vpc", Name: "main", Provider: "aws",
		Outputs: map[string]any{"id": "vpc-9"},
	})

	subnet := mod.ResourceByAddress("aws_subnet.a")
	attrs, err := New().ResolveResource(mod, subnet, snap, nil)
	require.NoError(t, err)
	assert.Equal(t, "vpc-9", attrs["vpc_id"])
}

func TestResolveOutputs(t *testing.T) {
	mod, _ := parseModule(t, `
resource "aws_vpc" "main" {
  cidr_block = "10.0.0.0/16"
}

output "vpc_id" {
  value = aws_vpc.main.id
}

output "region" {
  value = upper("us-east-1")
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources, &ir.ResourceState{
		Type: "aws_vpc", Name: "main", Provider: "aws",
		Outputs: map[string]any{"id": "vpc-42"},
	})

	outs, errs := New().ResolveOutputs(mod, snap, nil)
	assert.Empty(t, errs)
	assert.Equal(t, "vpc-42", outs["vpc_id"])
	assert.Equal(t, "US-EAST-1", outs["region"])
}

func TestBuildVariables_RequiredAndOverrides(t *testing.T) {
	mod, _ := parseModule(t, `
variable "required_name" {}
variable "count_hint" {
  default = 2
}
`)
	_, err := BuildVariables(mod, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required_name")

	vars, err := BuildVariables(mod, map[string]string{"required_name": "lab"})
	require.NoError(t, err)
	assert.Equal(t, "lab", vars["required_name"].AsString())

	_, err = BuildVariables(mod, map[string]string{"required_name": "lab", "bogus": "x"})
	assert.Error(t, err)
}
