package tangle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/acorndb/pkg/judge"
	"github.com/cuemby/acorndb/pkg/trunk"
	"github.com/cuemby/acorndb/pkg/tree"
)

func TestEntangle_PushForwardsStash(t *testing.T) {
	a := tree.New[string]("Note", trunk.NewMemoryTrunk[string](), judge.Timestamp[string], nil)
	b := tree.New[string]("Note", trunk.NewMemoryTrunk[string](), judge.Timestamp[string], nil)
	defer a.Close()
	defer b.Close()

	tg := Entangle[string](a, InProcessPeer[string]{Tree: b}, Push, Options{ReconcileInterval: time.Hour})
	defer tg.Stop()

	require.NoError(t, a.Stash("n1", "hi"))

	assert.Eventually(t, func() bool {
		got, ok, _ := b.Crack("n1")
		return ok && got == "hi"
	}, time.Second, 5*time.Millisecond, "push tangle should forward the stash to the remote tree")
}

func TestEntangle_PullReconciles(t *testing.T) {
	a := tree.New[string]("Note", trunk.NewMemoryTrunk[string](), judge.Timestamp[string], nil)
	b := tree.New[string]("Note", trunk.NewMemoryTrunk[string](), judge.Timestamp[string], nil)
	defer a.Close()
	defer b.Close()

	require.NoError(t, b.Stash("n1", "from-b"))

	tg := Entangle[string](a, InProcessPeer[string]{Tree: b}, Pull, Options{ReconcileInterval: 10 * time.Millisecond})
	defer tg.Stop()

	assert.Eventually(t, func() bool {
		got, ok, _ := a.Crack("n1")
		return ok && got == "from-b"
	}, time.Second, 5*time.Millisecond, "pull tangle should reconcile b's state into a")
}

func TestEntangle_BidirectionalConvergence(t *testing.T) {
	a := tree.New[string]("Note", trunk.NewMemoryTrunk[string](), judge.Timestamp[string], nil)
	b := tree.New[string]("Note", trunk.NewMemoryTrunk[string](), judge.Timestamp[string], nil)
	defer a.Close()
	defer b.Close()

	tgAB := Entangle[string](a, InProcessPeer[string]{Tree: b}, Bidirectional, Options{ReconcileInterval: 10 * time.Millisecond})
	tgBA := Entangle[string](b, InProcessPeer[string]{Tree: a}, Bidirectional, Options{ReconcileInterval: 10 * time.Millisecond})
	defer tgAB.Stop()
	defer tgBA.Stop()

	require.NoError(t, a.Stash("n1", "hi"))

	assert.Eventually(t, func() bool {
		gotA, okA, _ := a.Crack("n1")
		gotB, okB, _ := b.Crack("n1")
		return okA && okB && gotA == gotB
	}, time.Second, 5*time.Millisecond, "bidirectional tangles should converge to the same value")
}

func TestEntangle_BidirectionalDoesNotAmplify(t *testing.T) {
	a := tree.New[string]("Note", trunk.NewMemoryTrunk[string](), judge.Timestamp[string], nil)
	b := tree.New[string]("Note", trunk.NewMemoryTrunk[string](), judge.Timestamp[string], nil)
	defer a.Close()
	defer b.Close()

	tgAB := Entangle[string](a, InProcessPeer[string]{Tree: b}, Bidirectional, Options{ReconcileInterval: 10 * time.Millisecond})
	tgBA := Entangle[string](b, InProcessPeer[string]{Tree: a}, Bidirectional, Options{ReconcileInterval: 10 * time.Millisecond})
	defer tgAB.Stop()
	defer tgBA.Stop()

	require.NoError(t, a.Stash("n1", "hi"))

	require.Eventually(t, func() bool {
		gotA, okA, _ := a.Crack("n1")
		gotB, okB, _ := b.Crack("n1")
		return okA && okB && gotA == gotB
	}, time.Second, 5*time.Millisecond, "bidirectional tangles should converge to the same value")

	// A single Stash echoing forever around the a<->b cycle would keep
	// minting new versions; once converged, the version must settle rather
	// than climb without bound.
	settle := func() uint64 {
		n, ok, err := a.LoadNut("n1")
		require.NoError(t, err)
		require.True(t, ok)
		return n.Version
	}
	first := settle()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, first, settle(), "version should stop changing once the Stash has propagated")
}

func TestTangle_StatusStartsConnected(t *testing.T) {
	a := tree.New[string]("Note", trunk.NewMemoryTrunk[string](), judge.Timestamp[string], nil)
	b := tree.New[string]("Note", trunk.NewMemoryTrunk[string](), judge.Timestamp[string], nil)
	defer a.Close()
	defer b.Close()

	tg := Entangle[string](a, InProcessPeer[string]{Tree: b}, Push, Options{ReconcileInterval: time.Hour})
	defer tg.Stop()

	assert.Equal(t, StatusConnected, tg.Status())
}
