package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySetIntersects(t *testing.T) {
	a := NewKeySet("db.users")
	b := NewKeySet("db.users", "fs.file:/tmp/x")
	assert.True(t, a.Intersects(b))
	assert.True(t, b.Intersects(a))

	c := NewKeySet("fs.file:/tmp/y")
	assert.False(t, a.Intersects(c))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&ToolContract{Name: "create_user"}))
	err := r.Register(&ToolContract{Name: "create_user"})
	assert.Error(t, err)
}

func TestDefaultRegistryHasExpectedTools(t *testing.T) {
	r := NewDefaultRegistry()
	for _, name := range []string{
		"create_user", "update_user", "delete_user",
		"list_users", "get_user_by_id", "write_file", "read_file",
	} {
		c, ok := r.Get(name)
		require.Truef(t, ok, "expected tool %q to be registered", name)
		assert.Equal(t, name, c.Name)
	}

	wf, _ := r.Get("write_file")
	reads, writes, err := wf.EffectiveKeys(map[string]any{"path": "/tmp/report.txt"})
	require.NoError(t, err)
	assert.True(t, reads.Empty())
	assert.Contains(t, writes, StateKey("fs.file:/tmp/report.txt"))

	create, _ := r.Get("create_user")
	assert.True(t, create.Commutative)
	update, _ := r.Get("update_user")
	assert.False(t, update.Commutative)
}
