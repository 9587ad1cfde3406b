package trunk

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/acorndb/pkg/nut"
)

func TestBTreeTrunk_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.db")
	bt, err := NewBTreeTrunk[string](path, false)
	require.NoError(t, err)
	defer bt.Close()

	payload := "alice"
	require.NoError(t, bt.Save("u1", nut.New("u1", &payload, time.Now())))

	loaded, ok, err := bt.Load("u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", *loaded.Payload)
}

func TestBTreeTrunk_HistoryDisabledByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.db")
	bt, err := NewBTreeTrunk[string](path, false)
	require.NoError(t, err)
	defer bt.Close()

	assert.Nil(t, bt.History("anything"))
	assert.False(t, bt.Capabilities().SupportsHistory)
}

func TestBTreeTrunk_HistoryOrderedOldestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.db")
	bt, err := NewBTreeTrunk[string](path, true)
	require.NoError(t, err)
	defer bt.Close()

	v0, v1, v2 := "v0", "v1", "v2"
	n0 := nut.New("k", &v0, time.Now())
	require.NoError(t, bt.Save("k", n0))
	n1 := n0.Next(&v1, time.Now().Add(time.Second))
	require.NoError(t, bt.Save("k", n1))
	n2 := n1.Next(&v2, time.Now().Add(2*time.Second))
	require.NoError(t, bt.Save("k", n2))

	var versions []string
	for n := range bt.History("k") {
		versions = append(versions, *n.Payload)
	}
	assert.Equal(t, []string{"v0", "v1", "v2"}, versions)
}

func TestBTreeTrunk_DeleteReportsPriorExistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.db")
	bt, err := NewBTreeTrunk[string](path, false)
	require.NoError(t, err)
	defer bt.Close()

	existed, err := bt.Delete("missing")
	require.NoError(t, err)
	assert.False(t, existed)

	payload := "x"
	require.NoError(t, bt.Save("a", nut.New("a", &payload, time.Now())))
	existed, err = bt.Delete("a")
	require.NoError(t, err)
	assert.True(t, existed)
}
