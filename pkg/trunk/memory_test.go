package trunk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/acorndb/pkg/nut"
)

func TestMemoryTrunk_SaveLoad(t *testing.T) {
	m := NewMemoryTrunk[string]()
	payload := "alice"
	n := nut.New("u1", &payload, time.Now())

	assert.NoError(t, m.Save("u1", n))

	loaded, ok, err := m.Load("u1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", *loaded.Payload)
}

func TestMemoryTrunk_LoadMissing(t *testing.T) {
	m := NewMemoryTrunk[string]()
	_, ok, err := m.Load("absent")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryTrunk_DeleteIdempotent(t *testing.T) {
	m := NewMemoryTrunk[string]()
	payload := "x"
	assert.NoError(t, m.Save("a", nut.New("a", &payload, time.Now())))

	existed, err := m.Delete("a")
	assert.NoError(t, err)
	assert.True(t, existed)

	existed, err = m.Delete("a")
	assert.NoError(t, err)
	assert.False(t, existed, "second delete reports the id no longer existed")
}

func TestMemoryTrunk_LoadAllEnumeratesEachIDOnce(t *testing.T) {
	m := NewMemoryTrunk[string]()
	for _, id := range []string{"a", "b", "c"} {
		payload := id
		assert.NoError(t, m.Save(id, nut.New(id, &payload, time.Now())))
	}

	seen := map[string]int{}
	for n := range m.LoadAll() {
		seen[n.ID]++
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestMemoryTrunk_HistoryUnsupported(t *testing.T) {
	m := NewMemoryTrunk[string]()
	assert.Nil(t, m.History("anything"))
}

func TestMemoryTrunk_Capabilities(t *testing.T) {
	m := NewMemoryTrunk[string]()
	caps := m.Capabilities()
	assert.False(t, caps.IsDurable)
	assert.False(t, caps.SupportsHistory)
	assert.Equal(t, "memory", caps.TypeID)
}
