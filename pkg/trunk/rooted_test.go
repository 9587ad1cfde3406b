package trunk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/acorndb/pkg/nut"
	"github.com/cuemby/acorndb/pkg/root"
)

type user struct {
	Name string `json:"name"`
}

func TestRootedTrunk_SaveLoadRoundTrip(t *testing.T) {
	backing := NewMemoryTrunk[[]byte]()
	pipeline := root.NewPipeline(root.NewGzipRoot(0, -1))
	rt := NewRootedTrunk[user](backing, pipeline)

	payload := user{Name: "Alice"}
	n := nut.New("u1", &payload, time.Now())
	require.NoError(t, rt.Save("u1", n))

	loaded, ok, err := rt.Load("u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Alice", loaded.Payload.Name)
}

func TestRootedTrunk_DeleteDelegates(t *testing.T) {
	backing := NewMemoryTrunk[[]byte]()
	pipeline := root.NewPipeline(root.NewNoneRoot(0))
	rt := NewRootedTrunk[user](backing, pipeline)

	payload := user{Name: "Bob"}
	require.NoError(t, rt.Save("u1", nut.New("u1", &payload, time.Now())))

	existed, err := rt.Delete("u1")
	require.NoError(t, err)
	assert.True(t, existed)

	_, ok, err := rt.Load("u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRootedTrunk_LoadAllSkipsUndecodableEntries(t *testing.T) {
	backing := NewMemoryTrunk[[]byte]()
	pipeline := root.NewPipeline(root.NewNoneRoot(0))
	rt := NewRootedTrunk[user](backing, pipeline)

	alice := user{Name: "Alice"}
	require.NoError(t, rt.Save("u1", nut.New("u1", &alice, time.Now())))

	garbage := []byte("not an envelope")
	require.NoError(t, backing.Save("u2", nut.New("u2", &garbage, time.Now())))

	var names []string
	for n := range rt.LoadAll() {
		names = append(names, n.Payload.Name)
	}
	assert.Equal(t, []string{"Alice"}, names)
}

func TestRootedTrunk_Capabilities(t *testing.T) {
	backing := NewMemoryTrunk[[]byte]()
	pipeline := root.NewPipeline(root.NewNoneRoot(0))
	rt := NewRootedTrunk[user](backing, pipeline)

	assert.Equal(t, "rooted(memory)", rt.Capabilities().TypeID)
}
