// Package nearfar wraps any Trunk with a bounded, LRU "near" in-process
// cache and an optional "far" trunk (e.g. a distributed cache). It composes
// with pkg/tiered rather than replacing it: a
// NearFarTrunk's "backing" can itself be a TieredTrunk.
package nearfar

import (
	"iter"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cuemby/acorndb/pkg/log"
	"github.com/cuemby/acorndb/pkg/nut"
	"github.com/cuemby/acorndb/pkg/trunk"
)

// WritePolicy selects how Save propagates to the near cache versus the
// backing/far trunks.
type WritePolicy int

const (
	WriteThrough WritePolicy = iota
	WriteBack
	WriteAround
)

// ReadPolicy names a read strategy. Load behaves the same under both
// values: a near hit is returned, and a miss is read from far (when set) or
// backing and then cached in near.
type ReadPolicy int

const (
	ReadThrough ReadPolicy = iota
	ReadCacheAside
)

// Options configures a NearFarTrunk.
type Options struct {
	NearCapacity int
	NearTTL      time.Duration // zero disables TTL eviction
	WritePolicy  WritePolicy
	ReadPolicy   ReadPolicy
	// FlushInterval is how often the write-back flusher runs. Ignored
	// unless WritePolicy is WriteBack.
	FlushInterval time.Duration
}

type nearEntry[T any] struct {
	value   nut.Nut[T]
	stored  time.Time
	dirty   bool
}

// NearFarTrunk wraps backing with a bounded near cache and an optional far
// trunk. At steady state near ⊆ far ∪ backing and far ⊆ backing, up to
// in-flight writes.
type NearFarTrunk[T any] struct {
	opts    Options
	backing trunk.Trunk[T]
	far     trunk.Trunk[T]

	mu      sync.Mutex
	near    *lru.Cache
	entries map[string]*nearEntry[T]

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a NearFarTrunk. far may be nil, in which case reads/writes
// fall through directly to backing on a near miss.
func New[T any](backing, far trunk.Trunk[T], opts Options) (*NearFarTrunk[T], error) {
	if opts.NearCapacity <= 0 {
		opts.NearCapacity = 1024
	}

	nft := &NearFarTrunk[T]{
		opts:    opts,
		backing: backing,
		far:     far,
		entries: make(map[string]*nearEntry[T]),
		stopCh:  make(chan struct{}),
	}

	cache, err := lru.NewWithEvict(opts.NearCapacity, nft.onEvict)
	if err != nil {
		return nil, err
	}
	nft.near = cache

	if opts.WritePolicy == WriteBack {
		interval := opts.FlushInterval
		if interval <= 0 {
			interval = 5 * time.Second
		}
		nft.wg.Add(1)
		go nft.flushLoop(interval)
	}

	return nft, nil
}

// onEvict is the LRU eviction callback. The LRU calls it from Add and
// Remove, which only run with nft.mu held, so it does not lock. A dirty
// entry under write-back is flushed before it is dropped; if that flush
// fails the entry stays in entries, still dirty, for the flusher to retry.
func (nft *NearFarTrunk[T]) onEvict(key, value interface{}) {
	id := key.(string)
	entry := value.(*nearEntry[T])
	if entry.dirty {
		if err := nft.persist(id, entry.value); err != nil {
			return
		}
	}
	delete(nft.entries, id)
}

// persist writes n to far (when set) and then to backing.
func (nft *NearFarTrunk[T]) persist(id string, n nut.Nut[T]) error {
	target := nft.backing
	if nft.far != nil {
		target = nft.far
	}
	if err := target.Save(id, n); err != nil {
		log.WithComponent("nearfar").Error().Err(err).Str("id", id).Msg("write-back flush failed, entry stays dirty")
		return err
	}
	if nft.far != nil {
		if err := nft.backing.Save(id, n); err != nil {
			log.WithComponent("nearfar").Error().Err(err).Str("id", id).Msg("backing write failed after far write")
			return err
		}
	}
	return nil
}

func (nft *NearFarTrunk[T]) flushLoop(interval time.Duration) {
	defer nft.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			nft.flushDirty()
		case <-nft.stopCh:
			nft.flushDirty()
			return
		}
	}
}

// flushDirty persists every dirty near entry. A failed flush leaves the
// entry dirty for the next tick — never dropped.
func (nft *NearFarTrunk[T]) flushDirty() {
	nft.mu.Lock()
	dirty := make(map[string]nut.Nut[T])
	for id, e := range nft.entries {
		if e.dirty {
			dirty[id] = e.value
		}
	}
	nft.mu.Unlock()

	for id, n := range dirty {
		if err := nft.persist(id, n); err != nil {
			continue
		}
		nft.mu.Lock()
		if e, ok := nft.entries[id]; ok && e.value.Version == n.Version {
			e.dirty = false
		}
		nft.mu.Unlock()
	}
}

// Stop halts the write-back flusher, flushing any remaining dirty entries
// first.
func (nft *NearFarTrunk[T]) Stop() {
	select {
	case <-nft.stopCh:
	default:
		close(nft.stopCh)
	}
	nft.wg.Wait()
}

func (nft *NearFarTrunk[T]) Save(id string, n nut.Nut[T]) error {
	switch nft.opts.WritePolicy {
	case WriteAround:
		if err := nft.backing.Save(id, n); err != nil {
			return err
		}
		if nft.far != nil {
			_ = nft.far.Save(id, n)
		}
		return nil
	case WriteBack:
		nft.mu.Lock()
		nft.near.Add(id, &nearEntry[T]{value: n, stored: time.Now(), dirty: true})
		nft.entries[id] = &nearEntry[T]{value: n, stored: time.Now(), dirty: true}
		nft.mu.Unlock()
		return nil
	default: // WriteThrough
		if nft.far != nil {
			if err := nft.far.Save(id, n); err != nil {
				return err
			}
		}
		if err := nft.backing.Save(id, n); err != nil {
			return err
		}
		nft.mu.Lock()
		nft.near.Add(id, &nearEntry[T]{value: n, stored: time.Now(), dirty: false})
		nft.entries[id] = &nearEntry[T]{value: n, stored: time.Now(), dirty: false}
		nft.mu.Unlock()
		return nil
	}
}

func (nft *NearFarTrunk[T]) Load(id string) (nut.Nut[T], bool, error) {
	if cached, ok := nft.lookupNear(id); ok {
		return cached, true, nil
	}

	if nft.opts.ReadPolicy == ReadCacheAside {
		return nft.loadAndCache(id)
	}
	return nft.loadAndCache(id)
}

func (nft *NearFarTrunk[T]) lookupNear(id string) (nut.Nut[T], bool) {
	nft.mu.Lock()
	defer nft.mu.Unlock()

	v, ok := nft.near.Get(id)
	if !ok {
		return nut.Nut[T]{}, false
	}
	entry := v.(*nearEntry[T])
	if nft.opts.NearTTL > 0 && time.Since(entry.stored) > nft.opts.NearTTL {
		nft.near.Remove(id)
		return nut.Nut[T]{}, false
	}
	return entry.value, true
}

func (nft *NearFarTrunk[T]) loadAndCache(id string) (nut.Nut[T], bool, error) {
	if nft.far != nil {
		if n, ok, err := nft.far.Load(id); err == nil && ok {
			nft.cache(id, n, false)
			return n, true, nil
		}
	}

	n, ok, err := nft.backing.Load(id)
	if err != nil {
		return nut.Nut[T]{}, false, err
	}
	if !ok {
		return nut.Nut[T]{}, false, nil
	}

	if nft.far != nil {
		_ = nft.far.Save(id, n)
	}
	nft.cache(id, n, false)
	return n, true, nil
}

func (nft *NearFarTrunk[T]) cache(id string, n nut.Nut[T], dirty bool) {
	nft.mu.Lock()
	defer nft.mu.Unlock()
	entry := &nearEntry[T]{value: n, stored: time.Now(), dirty: dirty}
	nft.near.Add(id, entry)
	nft.entries[id] = entry
}

func (nft *NearFarTrunk[T]) Delete(id string) (bool, error) {
	nft.mu.Lock()
	nft.near.Remove(id)
	delete(nft.entries, id)
	nft.mu.Unlock()

	existed, err := nft.backing.Delete(id)
	if err != nil {
		return false, err
	}
	if nft.far != nil {
		_, _ = nft.far.Delete(id)
	}
	return existed, nil
}

func (nft *NearFarTrunk[T]) LoadAll() iter.Seq[nut.Nut[T]] {
	return nft.backing.LoadAll()
}

func (nft *NearFarTrunk[T]) History(id string) iter.Seq[nut.Nut[T]] {
	return nft.backing.History(id)
}

func (nft *NearFarTrunk[T]) Capabilities() trunk.Capabilities {
	caps := nft.backing.Capabilities()
	caps.TypeID = "nearfar(" + caps.TypeID + ")"
	return caps
}
