package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnhq/cairn/internal/eval"
	"github.com/cairnhq/cairn/internal/ir"
	"github.com/cairnhq/cairn/pkg/provider"
)

func TestPlan_CreatesEverythingOnEmptyState(t *testing.T) {
	mod := parseConfig(t, `
resource "fake_net" "main" {
  cidr = "10.0.0.0/16"
}

resource "fake_vm" "web" {
  net_id = fake_net.main.id
  size   = "small"
}
`)
	eng := newTestEngine(newFakeProvider())

	plan, err := eng.Plan(context.Background(), mod, ir.NewState(), nil)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "fake_net.main", plan.Changes[0].Address)
	assert.Equal(t, "fake_vm.web", plan.Changes[1].Address)
	for _, c := range plan.Changes {
		assert.Equal(t, ir.ActionCreate, c.Action)
		assert.Nil(t, c.Prior)
	}

	// The net's id is provider-assigned, so the vm's reference to it stays
	// unknown until apply.
	assert.Equal(t, eval.UnknownPlaceholder, plan.Changes[1].Desired["net_id"])

	assert.Equal(t, 2, plan.Summary.Create)
	assert.True(t, plan.HasChanges())
}

func TestPlan_UnchangedResourceIsNoOp(t *testing.T) {
	mod := parseConfig(t, `
resource "fake_net" "main" {
  cidr = "10.0.0.0/16"
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources, &ir.ResourceState{
		Type: "fake_net", Name: "main", Provider: "fake",
		Inputs:  map[string]any{"cidr": "10.0.0.0/16"},
		Outputs: map[string]any{"id": "fake_net-1"},
	})
	eng := newTestEngine(newFakeProvider())

	plan, err := eng.Plan(context.Background(), mod, snap, nil)
	require.NoError(t, err)

	assert.False(t, plan.HasChanges())
	assert.Equal(t, 1, plan.Summary.NoOp)
	assert.Zero(t, plan.Summary.Create)
}

func TestPlan_ChangedAttributeIsUpdate(t *testing.T) {
	mod := parseConfig(t, `
resource "fake_net" "main" {
  cidr = "10.1.0.0/16"
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources, &ir.ResourceState{
		Type: "fake_net", Name: "main", Provider: "fake",
		Inputs:  map[string]any{"cidr": "10.0.0.0/16"},
		Outputs: map[string]any{"id": "fake_net-1"},
	})
	eng := newTestEngine(newFakeProvider())

	plan, err := eng.Plan(context.Background(), mod, snap, nil)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	c := plan.Changes[0]
	assert.Equal(t, ir.ActionUpdate, c.Action)
	require.Contains(t, c.Diff, "cidr")
	assert.Equal(t, "10.0.0.0/16", c.Diff["cidr"].Before)
	assert.Equal(t, "10.1.0.0/16", c.Diff["cidr"].After)
	assert.False(t, c.Diff["cidr"].ForcesReplacement)
}

func TestPlan_ForcedAttributeIsReplace(t *testing.T) {
	mod := parseConfig(t, `
resource "fake_vm" "web" {
  size = "large"
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources, &ir.ResourceState{
		Type: "fake_vm", Name: "web", Provider: "fake",
		Inputs:  map[string]any{"size": "small"},
		Outputs: map[string]any{"id": "fake_vm-1"},
	})
	fp := newFakeProvider()
	fp.schemas["fake_vm"] = &provider.ResourceSchema{
		ForcesReplacement: []string{"size"},
		Computed:          []string{"id"},
	}
	eng := newTestEngine(fp)

	plan, err := eng.Plan(context.Background(), mod, snap, nil)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	c := plan.Changes[0]
	assert.Equal(t, ir.ActionReplace, c.Action)
	assert.True(t, c.Diff["size"].ForcesReplacement)
	assert.False(t, c.CreateBeforeDestroy)
	assert.Equal(t, 1, plan.Summary.Replace)
}

func TestPlan_CreateBeforeDestroyFlagCarriesThrough(t *testing.T) {
	mod := parseConfig(t, `
resource "fake_vm" "web" {
  size = "large"
  lifecycle {
    create_before_destroy = true
  }
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources, &ir.ResourceState{
		Type: "fake_vm", Name: "web", Provider: "fake",
		Inputs:  map[string]any{"size": "small"},
		Outputs: map[string]any{"id": "fake_vm-1"},
	})
	fp := newFakeProvider()
	fp.schemas["fake_vm"] = &provider.ResourceSchema{
		ForcesReplacement: []string{"size"},
		Computed:          []string{"id"},
	}
	eng := newTestEngine(fp)

	plan, err := eng.Plan(context.Background(), mod, snap, nil)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, ir.ActionReplace, plan.Changes[0].Action)
	assert.True(t, plan.Changes[0].CreateBeforeDestroy)
}

func TestPlan_IgnoreChangesSuppressesDiff(t *testing.T) {
	mod := parseConfig(t, `
resource "fake_net" "main" {
  cidr = "10.0.0.0/16"
  tags = { env = "prod" }
  lifecycle {
    ignore_changes = [tags]
  }
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources, &ir.ResourceState{
		Type: "fake_net", Name: "main", Provider: "fake",
		Inputs:  map[string]any{"cidr": "10.0.0.0/16", "tags": map[string]any{"env": "dev"}},
		Outputs: map[string]any{"id": "fake_net-1"},
	})
	eng := newTestEngine(newFakeProvider())

	plan, err := eng.Plan(context.Background(), mod, snap, nil)
	require.NoError(t, err)
	assert.False(t, plan.HasChanges())
	assert.Equal(t, 1, plan.Summary.NoOp)
}

func TestPlan_PreventDestroyBlocksReplacement(t *testing.T) {
	mod := parseConfig(t, `
resource "fake_vm" "web" {
  size = "large"
  lifecycle {
    prevent_destroy = true
  }
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources, &ir.ResourceState{
		Type: "fake_vm", Name: "web", Provider: "fake",
		Inputs:  map[string]any{"size": "small"},
		Outputs: map[string]any{"id": "fake_vm-1"},
	})
	fp := newFakeProvider()
	fp.schemas["fake_vm"] = &provider.ResourceSchema{
		ForcesReplacement: []string{"size"},
		Computed:          []string{"id"},
	}
	eng := newTestEngine(fp)

	_, err := eng.Plan(context.Background(), mod, snap, nil)
	require.Error(t, err)
	var planErr *PlanError
	require.ErrorAs(t, err, &planErr)
	assert.Equal(t, "fake_vm.web", planErr.Addr)
}

func TestPlan_RemovedResourceIsDestroyed(t *testing.T) {
	mod := parseConfig(t, `
resource "fake_net" "main" {
  cidr = "10.0.0.0/16"
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources,
		&ir.ResourceState{
			Type: "fake_net", Name: "main", Provider: "fake",
			Inputs:  map[string]any{"cidr": "10.0.0.0/16"},
			Outputs: map[string]any{"id": "fake_net-1"},
		},
		&ir.ResourceState{
			Type: "fake_vm", Name: "old", Provider: "fake",
			Inputs:  map[string]any{"size": "small"},
			Outputs: map[string]any{"id": "fake_vm-9"},
		},
	)
	eng := newTestEngine(newFakeProvider())

	plan, err := eng.Plan(context.Background(), mod, snap, nil)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "fake_vm.old", plan.Changes[0].Address)
	assert.Equal(t, ir.ActionDestroy, plan.Changes[0].Action)
	assert.Equal(t, 1, plan.Summary.Destroy)
	assert.Equal(t, 1, plan.Summary.NoOp)
}

func TestPlan_DestroysRunInReverseDependencyOrder(t *testing.T) {
	mod := parseConfig(t, ``)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources,
		&ir.ResourceState{
			Type: "fake_net", Name: "main", Provider: "fake",
			Outputs: map[string]any{"id": "fake_net-1"},
		},
		&ir.ResourceState{
			Type: "fake_vm", Name: "web", Provider: "fake",
			Outputs:      map[string]any{"id": "fake_vm-1"},
			Dependencies: []string{"fake_net.main"},
		},
	)
	eng := newTestEngine(newFakeProvider())

	plan, err := eng.Plan(context.Background(), mod, snap, nil)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "fake_vm.web", plan.Changes[0].Address)
	assert.Equal(t, "fake_net.main", plan.Changes[1].Address)
}

func TestPlan_OrphanedDependencyBlocksPlan(t *testing.T) {
	// fake_vm.web survives in config but its recorded dependency does not.
	mod := parseConfig(t, `
resource "fake_vm" "web" {
  size = "small"
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources,
		&ir.ResourceState{
			Type: "fake_net", Name: "main", Provider: "fake",
			Outputs: map[string]any{"id": "fake_net-1"},
		},
		&ir.ResourceState{
			Type: "fake_vm", Name: "web", Provider: "fake",
			Inputs:       map[string]any{"size": "small"},
			Outputs:      map[string]any{"id": "fake_vm-1"},
			Dependencies: []string{"fake_net.main"},
		},
	)
	eng := newTestEngine(newFakeProvider())

	_, err := eng.Plan(context.Background(), mod, snap, nil)
	require.Error(t, err)
	var planErr *PlanError
	require.ErrorAs(t, err, &planErr)
	assert.Equal(t, "fake_net.main", planErr.Addr)
}

func TestPlanDestroy_TearsDownEverythingInReverseOrder(t *testing.T) {
	mod := parseConfig(t, `
resource "fake_net" "main" {
  cidr = "10.0.0.0/16"
}

resource "fake_vm" "web" {
  net_id = fake_net.main.id
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources,
		&ir.ResourceState{
			Type: "fake_net", Name: "main", Provider: "fake",
			Outputs: map[string]any{"id": "fake_net-1"},
		},
		&ir.ResourceState{
			Type: "fake_vm", Name: "web", Provider: "fake",
			Outputs:      map[string]any{"id": "fake_vm-1"},
			Dependencies: []string{"fake_net.main"},
		},
	)
	eng := newTestEngine(newFakeProvider())

	plan, err := eng.PlanDestroy(context.Background(), mod, snap)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "fake_vm.web", plan.Changes[0].Address)
	assert.Equal(t, "fake_net.main", plan.Changes[1].Address)
	assert.Equal(t, 2, plan.Summary.Destroy)
}

func TestPlanDestroy_PreventDestroyBlocks(t *testing.T) {
	mod := parseConfig(t, `
resource "fake_net" "main" {
  cidr = "10.0.0.0/16"
  lifecycle {
    prevent_destroy = true
  }
}
`)
	snap := ir.NewState()
	snap.Resources = append(snap.Resources, &ir.ResourceState{
		Type: "fake_net", Name: "main", Provider: "fake",
		Outputs: map[string]any{"id": "fake_net-1"},
	})
	eng := newTestEngine(newFakeProvider())

	_, err := eng.PlanDestroy(context.Background(), mod, snap)
	require.Error(t, err)
	var planErr *PlanError
	assert.ErrorAs(t, err, &planErr)
}
