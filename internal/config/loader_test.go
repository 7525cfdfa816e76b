package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
variable "cidr" {
  default     = "10.0.0.0/16"
  description = "Network range"
}

locals {
  tags = { managed = "cairn" }
}

resource "aws_vpc" "main" {
  cidr_block = var.cidr
  tags       = local.tags
}

resource "aws_subnet" "a" {
  vpc_id     = aws_vpc.main.id
  cidr_block = "10.0.1.0/24"

  depends_on = [aws_vpc.main]

  lifecycle {
    create_before_destroy = true
    ignore_changes        = [tags]
  }
}

output "vpc_id" {
  value = aws_vpc.main.id
}
`

func TestParse_FullModule(t *testing.T) {
	mod, err := Parse("main.hcl", []byte(sampleConfig))
	require.NoError(t, err)

	require.Len(t, mod.Resources, 2)
	require.Len(t, mod.Variables, 1)
	require.Len(t, mod.Locals, 1)
	require.Len(t, mod.Outputs, 1)

	vpc := mod.ResourceByAddress("aws_vpc.main")
	require.NotNil(t, vpc)
	assert.Equal(t, "aws_vpc", vpc.Type)
	assert.Equal(t, "main", vpc.Name)
	assert.Equal(t, "aws", vpc.Provider)
	assert.Contains(t, vpc.Attrs, "cidr_block")
	assert.Contains(t, vpc.Attrs, "tags")

	v := mod.Variables["cidr"]
	require.NotNil(t, v)
	assert.True(t, v.HasDefault)
	assert.Equal(t, "Network range", v.Description)
}

func TestParse_DependsOnAndLifecycle(t *testing.T) {
	mod, err := Parse("main.hcl", []byte(sampleConfig))
	require.NoError(t, err)

	subnet := mod.ResourceByAddress("aws_subnet.a")
	require.NotNil(t, subnet)
	assert.Equal(t, []string{"aws_vpc.main"}, subnet.DependsOn)

	require.NotNil(t, subnet.Lifecycle)
	assert.True(t, subnet.Lifecycle.CreateBeforeDestroy)
	assert.False(t, subnet.Lifecycle.PreventDestroy)
	assert.Equal(t, []string{"tags"}, subnet.Lifecycle.IgnoreChanges)
}

func TestParse_ProviderOverride(t *testing.T) {
	src := `
resource "custom_widget" "w" {
  provider = "null"
  size     = 3
}
`
	mod, err := Parse("main.hcl", []byte(src))
	require.NoError(t, err)

	w := mod.ResourceByAddress("custom_widget.w")
	require.NotNil(t, w)
	assert.Equal(t, "null", w.Provider)
	// The provider meta-attribute must not leak into resource attrs.
	assert.NotContains(t, w.Attrs, "provider")
}

func TestParse_ProviderInferredFromTypePrefix(t *testing.T) {
	src := `
resource "docker_container" "web" {
  image = "nginx:1.27"
}
`
	mod, err := Parse("main.hcl", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "docker", mod.Resources[0].Provider)
}

func TestParse_SyntaxErrorFailsLoading(t *testing.T) {
	_, err := Parse("main.hcl", []byte(`resource "a" {`))
	assert.Error(t, err)
}

func TestParse_OutputRequiresValue(t *testing.T) {
	_, err := Parse("main.hcl", []byte(`output "x" {}`))
	assert.Error(t, err)
}

func TestLoadDir_MergesFilesInLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hcl"),
		[]byte(`resource "null_resource" "two" {}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"),
		[]byte(`resource "null_resource" "one" {}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"),
		[]byte(`not hcl`), 0o644))

	mod, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, mod.Resources, 2)
	assert.Equal(t, "one", mod.Resources[0].Name)
	assert.Equal(t, "two", mod.Resources[1].Name)
}

func TestLoadDir_EmptyDirFails(t *testing.T) {
	_, err := LoadDir(t.TempDir())
	assert.Error(t, err)
}
