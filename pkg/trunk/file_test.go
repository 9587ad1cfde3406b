package trunk

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/acorndb/pkg/nut"
)

func TestFileTrunk_SaveLoadReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.log")

	ft, err := OpenFileTrunk[string](path)
	require.NoError(t, err)

	payload := "alice"
	require.NoError(t, ft.Save("u1", nut.New("u1", &payload, time.Now())))
	require.NoError(t, ft.Close())

	reopened, err := OpenFileTrunk[string](path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, ok, err := reopened.Load("u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", *loaded.Payload)
}

func TestFileTrunk_DeleteReplays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.log")
	ft, err := OpenFileTrunk[string](path)
	require.NoError(t, err)

	payload := "x"
	require.NoError(t, ft.Save("a", nut.New("a", &payload, time.Now())))
	existed, err := ft.Delete("a")
	require.NoError(t, err)
	assert.True(t, existed)
	require.NoError(t, ft.Close())

	reopened, err := OpenFileTrunk[string](path)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok, err := reopened.Load("a")
	require.NoError(t, err)
	assert.False(t, ok, "delete record must replay")
}

func TestFileTrunk_History(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.log")
	ft, err := OpenFileTrunk[string](path)
	require.NoError(t, err)
	defer ft.Close()

	v0, v1 := "v0", "v1"
	n0 := nut.New("k", &v0, time.Now())
	require.NoError(t, ft.Save("k", n0))
	n1 := n0.Next(&v1, time.Now().Add(time.Second))
	require.NoError(t, ft.Save("k", n1))

	var versions []string
	for n := range ft.History("k") {
		versions = append(versions, *n.Payload)
	}
	assert.Equal(t, []string{"v0", "v1"}, versions, "history is oldest to newest")
}

func TestFileTrunk_Compact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.log")
	ft, err := OpenFileTrunk[string](path)
	require.NoError(t, err)
	defer ft.Close()

	v0, v1 := "v0", "v1"
	n0 := nut.New("k", &v0, time.Now())
	require.NoError(t, ft.Save("k", n0))
	require.NoError(t, ft.Save("k", n0.Next(&v1, time.Now().Add(time.Second))))

	require.NoError(t, ft.Compact())

	var versions int
	for range ft.History("k") {
		versions++
	}
	assert.Equal(t, 1, versions, "compact rewrites the log from the live set only")

	loaded, ok, err := ft.Load("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", *loaded.Payload)
}

func TestFileTrunk_Capabilities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.log")
	ft, err := OpenFileTrunk[string](path)
	require.NoError(t, err)
	defer ft.Close()

	caps := ft.Capabilities()
	assert.True(t, caps.IsDurable)
	assert.True(t, caps.SupportsHistory)
	assert.Equal(t, "file", caps.TypeID)
}
