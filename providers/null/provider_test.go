package null

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_NullResource(t *testing.T) {
	p := New()

	schema, err := p.Schema("null_resource")
	require.NoError(t, err)
	assert.Equal(t, []string{"triggers"}, schema.ForcesReplacement)
	assert.Equal(t, []string{"id"}, schema.Computed)

	_, err = p.Schema("null_bucket")
	assert.Error(t, err)
}

func TestCreate_AssignsUniqueID(t *testing.T) {
	p := New()
	ctx := context.Background()

	first, err := p.Create(ctx, "null_resource", map[string]any{"triggers": map[string]any{"rev": "1"}})
	require.NoError(t, err)
	second, err := p.Create(ctx, "null_resource", map[string]any{"triggers": map[string]any{"rev": "1"}})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first["id"].(string), "null-"))
	assert.NotEqual(t, first["id"], second["id"])
	assert.Equal(t, map[string]any{"rev": "1"}, first["triggers"])
}

func TestRead_ReturnsPriorUnchanged(t *testing.T) {
	p := New()
	prior := map[string]any{"id": "null-abc", "triggers": map[string]any{"rev": "1"}}

	observed, err := p.Read(context.Background(), "null_resource", "null-abc", prior)
	require.NoError(t, err)
	assert.Equal(t, prior, observed)
}

func TestUpdate_RejectsTriggerChanges(t *testing.T) {
	p := New()
	ctx := context.Background()
	prior := map[string]any{"id": "null-abc", "triggers": map[string]any{"rev": "1"}}

	_, err := p.Update(ctx, "null_resource", "null-abc", map[string]any{"triggers": map[string]any{"rev": "2"}}, prior)
	assert.Error(t, err)

	out, err := p.Update(ctx, "null_resource", "null-abc", map[string]any{"triggers": map[string]any{"rev": "1"}}, prior)
	require.NoError(t, err)
	assert.Equal(t, prior, out)
}

func TestDelete_AlwaysSucceeds(t *testing.T) {
	assert.NoError(t, New().Delete(context.Background(), "null_resource", "null-abc", nil))
}
