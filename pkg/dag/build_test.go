package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/planrunner/pkg/contracts"
	"github.com/quietloop/planrunner/pkg/plan"
)

func registry() *contracts.Registry {
	return contracts.NewDefaultRegistry()
}

func TestBuildInferred_IndependentCreatesHaveNoEdge(t *testing.T) {
	p := plan.Plan{
		{ID: "a", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "alice", "email": "a@x.com"}},
		{ID: "b", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "bob", "email": "b@x.com"}},
	}
	g, err := BuildInferred(p, registry())
	require.NoError(t, err)
	assert.Empty(t, g.Forward[0])
	assert.Empty(t, g.Forward[1])
}

func TestBuildInferred_ListAfterCreateIsReadAfterWrite(t *testing.T) {
	p := plan.Plan{
		{ID: "a", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "alice", "email": "a@x.com"}},
		{ID: "b", Type: plan.StepTool, Server: "db", Tool: "list_users"},
	}
	g, err := BuildInferred(p, registry())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, g.Forward[0])
}

func TestBuildInferred_UpdatesOfSameUserConflict(t *testing.T) {
	p := plan.Plan{
		{ID: "a", Type: plan.StepTool, Server: "db", Tool: "update_user",
			Args: map[string]any{"user_id": float64(1), "name": "x"}},
		{ID: "b", Type: plan.StepTool, Server: "db", Tool: "update_user",
			Args: map[string]any{"user_id": float64(1), "name": "y"}},
	}
	g, err := BuildInferred(p, registry())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, g.Forward[0])
}

func TestBuildInferred_CrossServerConservativeEdge(t *testing.T) {
	p := plan.Plan{
		{ID: "a", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "alice", "email": "a@x.com"}},
		{ID: "b", Type: plan.StepTool, Server: "file", Tool: "write_file",
			Args: map[string]any{"path": "/tmp/report.txt", "content": "hi"}},
	}
	g, err := BuildInferred(p, registry())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, g.Forward[0])
}

func TestBuildExplicit_UsesFromOnly(t *testing.T) {
	p := plan.Plan{
		{ID: "a", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "alice", "email": "a@x.com"}},
		{ID: "b", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "bob", "email": "b@x.com"}},
		{ID: "c", Type: plan.StepTool, Server: "db", Tool: "list_users", From: []string{"a", "b"}},
	}
	g, err := BuildExplicit(p)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{2}, g.Forward[0])
	assert.ElementsMatch(t, []int{2}, g.Forward[1])
}

func TestBuild_CycleDetected(t *testing.T) {
	g := newGraph(2)
	g.addEdge(0, 1)
	g.addEdge(1, 0)
	err := g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestBuild_DispatchesExplicitWhenAnyStepHasFrom(t *testing.T) {
	p := plan.Plan{
		{ID: "a", Type: plan.StepTool, Server: "db", Tool: "create_user",
			Args: map[string]any{"name": "alice", "email": "a@x.com"}},
		{ID: "b", Type: plan.StepTool, Server: "db", Tool: "list_users", From: []string{"a"}},
	}
	g, err := Build(p, registry())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, g.Forward[0])
}
