package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnhq/cairn/internal/config"
)

func parseModule(t *testing.T, src string) *config.Module {
	t.Helper()
	mod, err := config.Parse("test.hcl", []byte(src))
	require.NoError(t, err)
	return mod
}

func anyProvider(string) bool { return true }

func indexOf(order []string, addr string) int {
	for i, a := range order {
		if a == addr {
			return i
		}
	}
	return -1
}

func TestBuild_NoDependencies(t *testing.T) {
	mod := parseModule(t, `
resource "null_resource" "a" {}
resource "null_resource" "b" {}
resource "null_resource" "c" {}
`)
	g, err := Build(mod, anyProvider)
	require.NoError(t, err)
	assert.Len(t, g.CreationOrder(), 3)
}

func TestBuild_ImplicitReferenceOrdering(t *testing.T) {
	mod := parseModule(t, `
resource "aws_vpc" "main" {
  cidr_block = "10.0.0.0/16"
}

resource "aws_subnet" "a" {
  vpc_id = aws_vpc.main.id
}

resource "aws_instance" "vm" {
  subnet_id = aws_subnet.a.id
}
`)
	g, err := Build(mod, anyProvider)
	require.NoError(t, err)

	order := g.CreationOrder()
	require.Len(t, order, 3)
	assert.Less(t, indexOf(order, "aws_vpc.main"), indexOf(order, "aws_subnet.a"))
	assert.Less(t, indexOf(order, "aws_subnet.a"), indexOf(order, "aws_instance.vm"))

	// Destruction order is the exact reverse.
	destruction := g.DestructionOrder()
	assert.Greater(t, indexOf(destruction, "aws_vpc.main"), indexOf(destruction, "aws_subnet.a"))
}

func TestBuild_ExplicitDependsOn(t *testing.T) {
	mod := parseModule(t, `
resource "null_resource" "a" {
  depends_on = [null_resource.b]
}
resource "null_resource" "b" {}
`)
	g, err := Build(mod, anyProvider)
	require.NoError(t, err)

	order := g.CreationOrder()
	assert.Less(t, indexOf(order, "null_resource.b"), indexOf(order, "null_resource.a"))
	assert.Equal(t, []string{"null_resource.b"}, g.Dependencies("null_resource.a"))
}

func TestBuild_DuplicateAddress(t *testing.T) {
	mod := parseModule(t, `
resource "null_resource" "a" {}
resource "null_resource" "a" {}
`)
	_, err := Build(mod, anyProvider)
	var berr *BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, DuplicateIdentifier, berr.Kind)
	assert.Equal(t, "null_resource.a", berr.Addr)
}

func TestBuild_UnknownProvider(t *testing.T) {
	mod := parseModule(t, `resource "gcp_bucket" "b" {}`)
	_, err := Build(mod, func(name string) bool { return name == "aws" })
	var berr *BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, UnknownProviderType, berr.Kind)
}

func TestBuild_UnknownResourceReference(t *testing.T) {
	mod := parseModule(t, `
resource "null_resource" "a" {
  triggers = { id = null_resource.ghost.id }
}
`)
	_, err := Build(mod, anyProvider)
	var berr *BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, UnknownReference, berr.Kind)
	assert.Contains(t, berr.Detail, "null_resource.ghost")
}

func TestBuild_UnknownVariableReference(t *testing.T) {
	mod := parseModule(t, `
resource "null_resource" "a" {
  triggers = { v = var.missing }
}
`)
	_, err := Build(mod, anyProvider)
	var berr *BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, UnknownReference, berr.Kind)
}

func TestBuild_OutputReferencesAreValidated(t *testing.T) {
	mod := parseModule(t, `output "x" { value = aws_vpc.ghost.id }`)
	_, err := Build(mod, anyProvider)
	var berr *BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, UnknownReference, berr.Kind)
	assert.Equal(t, "output.x", berr.Addr)
}

func TestBuild_CycleDetection(t *testing.T) {
	mod := parseModule(t, `
resource "null_resource" "a" {
  depends_on = [null_resource.b]
}
resource "null_resource" "b" {
  depends_on = [null_resource.c]
}
resource "null_resource" "c" {
  depends_on = [null_resource.a]
}
`)
	_, err := Build(mod, anyProvider)
	var berr *BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, CyclicDependency, berr.Kind)
	// The error names every participant of the loop.
	assert.Contains(t, err.Error(), "null_resource.a")
	assert.Contains(t, err.Error(), "null_resource.b")
	assert.Contains(t, err.Error(), "null_resource.c")
}

func TestBuild_SelfReferenceIsNotACycle(t *testing.T) {
	// A resource referencing its own address contributes no edge.
	mod := parseModule(t, `
resource "null_resource" "a" {
  depends_on = [null_resource.a]
}
`)
	g, err := Build(mod, anyProvider)
	require.NoError(t, err)
	assert.Len(t, g.CreationOrder(), 1)
}

func TestTransitiveDependents(t *testing.T) {
	mod := parseModule(t, `
resource "aws_vpc" "main" {
  cidr_block = "10.0.0.0/16"
}
resource "aws_subnet" "a" {
  vpc_id = aws_vpc.main.id
}
resource "aws_instance" "vm" {
  subnet_id = aws_subnet.a.id
}
resource "null_resource" "unrelated" {}
`)
	g, err := Build(mod, anyProvider)
	require.NoError(t, err)

	deps := g.TransitiveDependents("aws_vpc.main")
	assert.ElementsMatch(t, []string{"aws_subnet.a", "aws_instance.vm"}, deps)
	assert.Empty(t, g.TransitiveDependents("null_resource.unrelated"))
}

func TestDOT_ContainsNodesAndEdges(t *testing.T) {
	mod := parseModule(t, `
resource "aws_vpc" "main" {
  cidr_block = "10.0.0.0/16"
}
resource "aws_subnet" "a" {
  vpc_id = aws_vpc.main.id
}
`)
	g, err := Build(mod, anyProvider)
	require.NoError(t, err)

	dot := g.DOT()
	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, `"aws_vpc.main"`)
	assert.Contains(t, dot, `"aws_subnet.a"`)
}
