// Package tree implements Tree[T], the typed document store that owns a
// single Trunk, arbitrates writes through a Judge, counts activity, and
// emits lifecycle events for attached Tangles to replicate.
package tree

import (
	"fmt"
	"hash/fnv"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/acorndb/pkg/acorn"
	"github.com/cuemby/acorndb/pkg/events"
	"github.com/cuemby/acorndb/pkg/judge"
	"github.com/cuemby/acorndb/pkg/log"
	"github.com/cuemby/acorndb/pkg/nut"
	"github.com/cuemby/acorndb/pkg/trunk"
)

// stripeCount is the number of per-id lock stripes. A single map-level lock
// would serialize unrelated ids unnecessarily; a small striped table keeps
// independent ids concurrent without a lock per id.
const stripeCount = 64

// Counters is a snapshot of a Tree's activity counts.
type Counters struct {
	TotalStashed      uint64
	TotalTossed       uint64
	SquabblesResolved uint64
	SmushesPerformed  uint64
}

// Cruncher is implemented by trunks that support a forced hot→cold
// demotion outside the background sweep (tiered.TieredTrunk). Trees that
// sit over a trunk without this capability treat Crunch as a no-op.
type Cruncher interface {
	Crunch(id string) error
}

// Tree owns a single Trunk instance and serves Stash/Crack/Toss over it,
// arbitrating concurrent writes to the same id through Judge and emitting
// events for every externally visible state change.
type Tree[T any] struct {
	name   string
	trunkP trunk.Trunk[T]
	judge  judge.Judge[T]
	broker *events.Broker
	clock  func() time.Time

	stripes [stripeCount]sync.Mutex

	totalStashed      atomic.Uint64
	totalTossed       atomic.Uint64
	squabblesResolved atomic.Uint64
	smushesPerformed  atomic.Uint64
}

// New builds a Tree named name (the payload type name, used to label
// events and HTTP routes at the Grove boundary) over backing, arbitrated by
// j. If clock is nil, time.Now is used; tests may inject a fake clock.
func New[T any](name string, backing trunk.Trunk[T], j judge.Judge[T], clock func() time.Time) *Tree[T] {
	if clock == nil {
		clock = time.Now
	}
	return &Tree[T]{
		name:   name,
		trunkP: backing,
		judge:  j,
		broker: events.NewBroker(),
		clock:  clock,
	}
}

// Close stops the Tree's event broker. The underlying Trunk is not closed —
// the Tree never owns its Trunk's lifecycle beyond using it.
func (t *Tree[T]) Close() {
	t.broker.Stop()
}

func (t *Tree[T]) stripe(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &t.stripes[h.Sum32()%stripeCount]
}

// Stash creates or updates id with payload. The new Nut's version is
// prior.version+1 (or 0 for a new id). If the Judge prefers the currently
// stored Nut over the new one, the write is a no-op "smush" and Stash
// returns without touching the Trunk.
func (t *Tree[T]) Stash(id string, payload T) error {
	if id == "" {
		return acorn.ErrEmptyID
	}

	mu := t.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	current, ok, err := t.trunkP.Load(id)
	if err != nil {
		return fmt.Errorf("stash %s: %w", id, err)
	}

	var next nut.Nut[T]
	if ok {
		next = current.Next(&payload, t.clock())
	} else {
		next = nut.New(id, &payload, t.clock())
	}

	if ok {
		kept := t.judge(current, next)
		if kept.Version == current.Version && kept.Timestamp.Equal(current.Timestamp) {
			t.smushesPerformed.Add(1)
			return nil
		}
	}

	if err := t.trunkP.Save(id, next); err != nil {
		return fmt.Errorf("stash %s: %w", id, err)
	}

	t.totalStashed.Add(1)
	t.broker.Publish(events.Event{Kind: events.KindStashed, Tree: t.name, ID: id, Version: next.Version})
	return nil
}

// LoadNut returns the full stored Nut for id — including its real Version
// and Timestamp — or false if id has never been stashed or was hard-deleted
// by Toss. Unlike Crack, a tombstoned or expired entry is still returned:
// callers that need to replicate the exact stored state (e.g. a Tangle
// forwarding an emitted event) must not synthesize a fresh version/timestamp
// the way a local Stash would.
func (t *Tree[T]) LoadNut(id string) (nut.Nut[T], bool, error) {
	mu := t.stripe(id)
	mu.Lock()
	defer mu.Unlock()
	return t.trunkP.Load(id)
}

// Crack returns id's current payload, or false if absent, tombstoned, or
// expired.
func (t *Tree[T]) Crack(id string) (T, bool, error) {
	var zero T
	if id == "" {
		return zero, false, acorn.ErrEmptyID
	}

	mu := t.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	n, ok, err := t.trunkP.Load(id)
	if err != nil {
		return zero, false, fmt.Errorf("crack %s: %w", id, err)
	}
	if !ok || n.Tombstone() {
		return zero, false, nil
	}
	if n.Expired(t.clock()) {
		return zero, false, nil
	}
	return *n.Payload, true, nil
}

// Toss deletes id, reporting whether it previously existed. A second Toss
// of the same id is idempotent and returns false.
func (t *Tree[T]) Toss(id string) (bool, error) {
	if id == "" {
		return false, acorn.ErrEmptyID
	}

	mu := t.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	existed, err := t.trunkP.Delete(id)
	if err != nil {
		return false, fmt.Errorf("toss %s: %w", id, err)
	}
	if !existed {
		return false, nil
	}

	t.totalTossed.Add(1)
	t.broker.Publish(events.Event{Kind: events.KindTossed, Tree: t.name, ID: id})
	return true, nil
}

// Shake sweeps every live entry for expired payloads and deletes them,
// emitting one Shaken summary event for the whole pass.
func (t *Tree[T]) Shake() (swept int, err error) {
	now := t.clock()
	var expiredIDs []string
	for n := range t.trunkP.LoadAll() {
		if n.Expired(now) {
			expiredIDs = append(expiredIDs, n.ID)
		}
	}

	for _, id := range expiredIDs {
		mu := t.stripe(id)
		mu.Lock()
		existed, delErr := t.trunkP.Delete(id)
		mu.Unlock()
		if delErr != nil {
			log.WithTree(t.name).Error().Err(delErr).Str("id", id).Msg("shake delete failed")
			continue
		}
		if existed {
			swept++
		}
	}

	t.broker.Publish(events.Event{Kind: events.KindShaken, Tree: t.name, Version: uint64(swept)})
	return swept, nil
}

// Crunch forces a hot→cold demotion of id when the backing Trunk supports
// it (tiered.TieredTrunk); otherwise it is a no-op.
func (t *Tree[T]) Crunch(id string) error {
	if c, ok := t.trunkP.(Cruncher); ok {
		return c.Crunch(id)
	}
	return nil
}

// History returns id's prior versions oldest-first, or nil if the backing
// Trunk does not support history.
func (t *Tree[T]) History(id string) iter.Seq[nut.Nut[T]] {
	return t.trunkP.History(id)
}

// VersionVector maps id to the highest version already known by the caller
// of ExportChanges, e.g. a Tangle peer.
type VersionVector map[string]uint64

// ExportChanges yields every Nut whose (id, version) exceeds the
// corresponding since entry; every Nut for an id absent from since
// (including a version-0 Nut) is exported.
func (t *Tree[T]) ExportChanges(since VersionVector) iter.Seq[nut.Nut[T]] {
	return func(yield func(nut.Nut[T]) bool) {
		for n := range t.trunkP.LoadAll() {
			if v, seen := since[n.ID]; !seen || n.Version > v {
				if !yield(n) {
					return
				}
			}
		}
	}
}

// ImportChanges applies each incoming Nut from a replication peer, judging
// it against the current local Nut for the same id. Each id is applied
// atomically under its stripe lock. An id with no local Nut is saved and
// published as Stashed. Otherwise squabbles_resolved is incremented and a
// Squabble event published when the judge picks the incoming Nut (which is
// then saved), or when it keeps the local Nut although the incoming one is
// at least as new by version.
func (t *Tree[T]) ImportChanges(incoming iter.Seq[nut.Nut[T]]) error {
	if incoming == nil {
		return nil
	}
	for n := range incoming {
		if err := t.importOne(n); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree[T]) importOne(incoming nut.Nut[T]) error {
	mu := t.stripe(incoming.ID)
	mu.Lock()
	defer mu.Unlock()

	current, ok, err := t.trunkP.Load(incoming.ID)
	if err != nil {
		return fmt.Errorf("import %s: %w", incoming.ID, err)
	}

	if !ok {
		if err := t.trunkP.Save(incoming.ID, incoming); err != nil {
			return fmt.Errorf("import %s: %w", incoming.ID, err)
		}
		t.broker.Publish(events.Event{Kind: events.KindStashed, Tree: t.name, ID: incoming.ID, Version: incoming.Version})
		return nil
	}

	kept := t.judge(current, incoming)
	if kept.Version == current.Version && kept.Timestamp.Equal(current.Timestamp) {
		if incoming.Version >= current.Version {
			t.squabblesResolved.Add(1)
			t.broker.Publish(events.Event{Kind: events.KindSquabble, Tree: t.name, ID: incoming.ID, Version: current.Version})
		}
		return nil
	}

	if err := t.trunkP.Save(incoming.ID, kept); err != nil {
		return fmt.Errorf("import %s: %w", incoming.ID, err)
	}
	t.squabblesResolved.Add(1)
	t.broker.Publish(events.Event{Kind: events.KindSquabble, Tree: t.name, ID: incoming.ID, Version: kept.Version})
	return nil
}

// Subscribe returns a lazy stream of events for this Tree, closed when
// Unsubscribe is called or the Tree itself is Closed.
func (t *Tree[T]) Subscribe() events.Subscriber {
	return t.broker.Subscribe()
}

// Unsubscribe detaches sub from the event stream.
func (t *Tree[T]) Unsubscribe(sub events.Subscriber) {
	t.broker.Unsubscribe(sub)
}

// Counters returns a snapshot of this Tree's activity counts.
func (t *Tree[T]) Counters() Counters {
	return Counters{
		TotalStashed:      t.totalStashed.Load(),
		TotalTossed:       t.totalTossed.Load(),
		SquabblesResolved: t.squabblesResolved.Load(),
		SmushesPerformed:  t.smushesPerformed.Load(),
	}
}

// Name returns the payload type name this Tree was constructed with.
func (t *Tree[T]) Name() string { return t.name }

// Capabilities exposes the backing Trunk's static capabilities.
func (t *Tree[T]) Capabilities() trunk.Capabilities {
	return t.trunkP.Capabilities()
}
