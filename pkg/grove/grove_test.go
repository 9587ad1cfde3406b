package grove

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/acorndb/pkg/acorn"
	"github.com/cuemby/acorndb/pkg/judge"
	"github.com/cuemby/acorndb/pkg/trunk"
	"github.com/cuemby/acorndb/pkg/tree"
)

type note struct {
	Body string `json:"body"`
}

func newTestGrove(t *testing.T) (*Grove, *tree.Tree[note]) {
	t.Helper()
	tr := tree.New[note]("Note", trunk.NewMemoryTrunk[note](), judge.Timestamp[note], nil)
	t.Cleanup(tr.Close)
	g := New()
	require.NoError(t, g.Plant(Plant(tr)))
	return g, tr
}

func TestGrove_PlantRejectsDuplicateType(t *testing.T) {
	g, tr := newTestGrove(t)
	err := g.Plant(Plant(tr))
	assert.ErrorIs(t, err, acorn.ErrDuplicateType)
}

func TestGrove_TryStashAndTryCrack(t *testing.T) {
	g, _ := newTestGrove(t)

	payload, err := json.Marshal(note{Body: "hello"})
	require.NoError(t, err)
	require.NoError(t, g.TryStash("Note", "n1", payload))

	got, ok, err := g.TryCrack("Note", "n1")
	require.NoError(t, err)
	require.True(t, ok)

	var decoded note
	require.NoError(t, json.Unmarshal(got, &decoded))
	assert.Equal(t, "hello", decoded.Body)
}

func TestGrove_TryStashUnknownTypeFails(t *testing.T) {
	g, _ := newTestGrove(t)
	err := g.TryStash("Ghost", "n1", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, acorn.ErrNotFound)
}

func TestGrove_TryStashPayloadMismatch(t *testing.T) {
	g, _ := newTestGrove(t)
	err := g.TryStash("Note", "n1", json.RawMessage(`not json`))
	require.Error(t, err)
	assert.ErrorIs(t, err, acorn.ErrTypeMismatch)
}

func TestGrove_TryTossIdempotent(t *testing.T) {
	g, _ := newTestGrove(t)
	payload, _ := json.Marshal(note{Body: "hello"})
	require.NoError(t, g.TryStash("Note", "n1", payload))

	existed, err := g.TryToss("Note", "n1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = g.TryToss("Note", "n1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestGrove_ShakeAllAggregates(t *testing.T) {
	g, _ := newTestGrove(t)
	payload, _ := json.Marshal(note{Body: "hello"})
	require.NoError(t, g.TryStash("Note", "n1", payload))

	swept, err := g.ShakeAll()
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestGrove_GetNutStatsAndTreeInfo(t *testing.T) {
	g, _ := newTestGrove(t)
	payload, _ := json.Marshal(note{Body: "hello"})
	require.NoError(t, g.TryStash("Note", "n1", payload))

	stats := g.GetNutStats()
	require.Contains(t, stats, "Note")
	assert.Equal(t, uint64(1), stats["Note"].TotalStashed)

	infos := g.GetTreeInfo()
	require.Len(t, infos, 1)
	assert.Equal(t, "Note", infos[0].TypeName)
	assert.Equal(t, 1, infos[0].NutCount)
}

func TestGrove_HTTPSurface(t *testing.T) {
	g, _ := newTestGrove(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	body, err := json.Marshal(note{Body: "hi"})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/stash/Note/n1", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/crack/Note/n1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var got note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.Equal(t, "hi", got.Body)

	resp, err = http.Get(srv.URL + "/describe")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var desc describeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&desc))
	resp.Body.Close()
	require.Len(t, desc.Trees, 1)
	assert.Equal(t, "Note", desc.Trees[0].Type)

	resp, err = http.Get(srv.URL + "/crack/Note/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/shake")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/stash/Note/n1", "application/json", bytes.NewReader([]byte("not json")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
