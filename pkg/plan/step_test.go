package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalFromString(t *testing.T) {
	var s Step
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","type":"tool","server":"db","tool":"create_user","arguments":{"name":"alice"},"$from":"x"}`), &s))
	assert.Equal(t, []string{"x"}, s.From)
	assert.False(t, s.FromWasList)
	assert.Equal(t, "alice", s.Args["name"])
}

func TestUnmarshalFromList(t *testing.T) {
	var s Step
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","type":"tool","server":"db","tool":"x","$from":["x","y"]}`), &s))
	assert.Equal(t, []string{"x", "y"}, s.From)
	assert.True(t, s.FromWasList)
}

func TestUnmarshalFromEmptyList(t *testing.T) {
	var s Step
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","type":"tool","server":"db","tool":"x","$from":[]}`), &s))
	assert.Empty(t, s.From)
	assert.True(t, s.FromWasList)
}

func TestIsFromPlaceholder(t *testing.T) {
	refs, isList, ok := IsFromPlaceholder(map[string]any{"$from": "step_a"})
	require.True(t, ok)
	assert.False(t, isList)
	assert.Equal(t, []string{"step_a"}, refs)

	refs, isList, ok = IsFromPlaceholder(map[string]any{"$from": []any{"a", "b"}})
	require.True(t, ok)
	assert.True(t, isList)
	assert.Equal(t, []string{"a", "b"}, refs)

	_, _, ok = IsFromPlaceholder("literal")
	assert.False(t, ok)

	_, _, ok = IsFromPlaceholder(map[string]any{"other": 1})
	assert.False(t, ok)
}

func TestPlanByID(t *testing.T) {
	p := Plan{{ID: "a"}, {ID: "b"}}
	assert.Equal(t, 0, p.ByID("a"))
	assert.Equal(t, 1, p.ByID("b"))
	assert.Equal(t, -1, p.ByID("missing"))
}
