package tiered

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/acorndb/pkg/nut"
	"github.com/cuemby/acorndb/pkg/trunk"
)

func TestTieredTrunk_WritesGoToHot(t *testing.T) {
	hot := trunk.NewMemoryTrunk[string]()
	cold := trunk.NewMemoryTrunk[string]()
	tt := New[string](hot, cold, Options{})
	defer tt.Stop()

	payload := "v"
	require.NoError(t, tt.Save("k", nut.New("k", &payload, time.Now())))

	_, ok, err := hot.Load("k")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = cold.Load("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTieredTrunk_CrunchDemotesAndRestoreOnReadPromotes(t *testing.T) {
	hot := trunk.NewMemoryTrunk[string]()
	cold := trunk.NewMemoryTrunk[string]()
	tt := New[string](hot, cold, Options{RestoreOnRead: true})
	defer tt.Stop()

	payload := "v"
	require.NoError(t, tt.Save("k", nut.New("k", &payload, time.Now())))
	require.NoError(t, tt.Crunch("k"))

	_, ok, err := hot.Load("k")
	require.NoError(t, err)
	assert.False(t, ok, "crunch must demote out of hot")
	_, ok, err = cold.Load("k")
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, ok, err := tt.Load("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", *loaded.Payload)

	assert.Eventually(t, func() bool {
		_, ok, _ := hot.Load("k")
		return ok
	}, time.Second, 5*time.Millisecond, "restore_on_read promotes hot synchronously")

	_, ok, err = cold.Load("k")
	require.NoError(t, err)
	assert.False(t, ok, "cold copy must be removed after restore")
}

func TestTieredTrunk_LoadAllHotShadowsCold(t *testing.T) {
	hot := trunk.NewMemoryTrunk[string]()
	cold := trunk.NewMemoryTrunk[string]()
	tt := New[string](hot, cold, Options{})
	defer tt.Stop()

	hotPayload, coldPayload := "hot-version", "cold-version"
	require.NoError(t, cold.Save("k", nut.New("k", &coldPayload, time.Now())))
	require.NoError(t, hot.Save("k", nut.New("k", &hotPayload, time.Now())))

	var seen []string
	for n := range tt.LoadAll() {
		seen = append(seen, *n.Payload)
	}
	assert.Equal(t, []string{"hot-version"}, seen)
}

func TestTieredTrunk_DeleteRemovesFromBothTiers(t *testing.T) {
	hot := trunk.NewMemoryTrunk[string]()
	cold := trunk.NewMemoryTrunk[string]()
	tt := New[string](hot, cold, Options{})
	defer tt.Stop()

	payload := "v"
	require.NoError(t, tt.Save("k", nut.New("k", &payload, time.Now())))
	require.NoError(t, tt.Crunch("k"))

	existed, err := tt.Delete("k")
	require.NoError(t, err)
	assert.True(t, existed)

	_, ok, _ := hot.Load("k")
	assert.False(t, ok)
	_, ok, _ = cold.Load("k")
	assert.False(t, ok)
}

func TestTieredTrunk_SweepArchivesPastArchiveAfter(t *testing.T) {
	hot := trunk.NewMemoryTrunk[string]()
	cold := trunk.NewMemoryTrunk[string]()
	tt := New[string](hot, cold, Options{
		ArchiveAfter:  10 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	})
	defer tt.Stop()

	payload := "v"
	require.NoError(t, tt.Save("k", nut.New("k", &payload, time.Now())))

	assert.Eventually(t, func() bool {
		_, ok, _ := cold.Load("k")
		return ok
	}, time.Second, 5*time.Millisecond, "background sweep should archive stale hot entries")
}

func TestTieredTrunk_Capabilities(t *testing.T) {
	hot := trunk.NewMemoryTrunk[string]()
	cold := trunk.NewMemoryTrunk[string]()
	tt := New[string](hot, cold, Options{})
	defer tt.Stop()

	caps := tt.Capabilities()
	assert.Equal(t, "tiered(memory,memory)", caps.TypeID)
}
