// Package tiered implements a hot/cold TieredTrunk: recently-touched Nuts
// stay in a fast "hot" trunk, older ones migrate to a cheaper "cold" trunk
// under a background sweep, and are restored to hot on read when
// configured to do so.
package tiered

import (
	"fmt"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cuemby/acorndb/pkg/log"
	"github.com/cuemby/acorndb/pkg/nut"
	"github.com/cuemby/acorndb/pkg/trunk"
)

// Options configures a TieredTrunk's sweep and restore behavior.
type Options struct {
	// ArchiveAfter is how long a Nut sits untouched in hot before the sweep
	// moves it to cold. Zero disables archiving (hot grows unbounded).
	ArchiveAfter time.Duration
	// RestoreOnRead moves a cold-found Nut back to hot on Load.
	RestoreOnRead bool
	// MaxHotEntries bounds hot independently of ArchiveAfter; the sweep
	// evicts the oldest-touched entries first once hot exceeds this. Zero
	// disables the bound.
	MaxHotEntries int
	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration
}

type touch struct {
	last time.Time
}

// TieredTrunk presents a single Trunk[T] façade over a hot and a cold
// trunk. Both must support the same T; cold is typically a durable,
// slower trunk (file, btree) while hot is memory or a fast btree.
type TieredTrunk[T any] struct {
	opts Options
	hot  trunk.Trunk[T]
	cold trunk.Trunk[T]

	mu      sync.Mutex
	touched map[string]touch

	// promote coalesces concurrent restore-on-read promotions for the same
	// id so a burst of readers triggers at most one hot write + cold delete.
	promote singleflight.Group

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a TieredTrunk and starts its background sweep goroutine.
// Stop must be called to release it.
func New[T any](hot, cold trunk.Trunk[T], opts Options) *TieredTrunk[T] {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}

	tt := &TieredTrunk[T]{
		opts:    opts,
		hot:     hot,
		cold:    cold,
		touched: make(map[string]touch),
		stopCh:  make(chan struct{}),
	}

	if opts.ArchiveAfter > 0 || opts.MaxHotEntries > 0 {
		tt.wg.Add(1)
		go tt.sweepLoop()
	}

	return tt
}

// Stop halts the background sweep goroutine.
func (tt *TieredTrunk[T]) Stop() {
	select {
	case <-tt.stopCh:
	default:
		close(tt.stopCh)
	}
	tt.wg.Wait()
}

func (tt *TieredTrunk[T]) sweepLoop() {
	defer tt.wg.Done()
	ticker := time.NewTicker(tt.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tt.sweep()
		case <-tt.stopCh:
			return
		}
	}
}

// sweep archives hot entries past ArchiveAfter, then evicts the
// oldest-touched remainder if hot still exceeds MaxHotEntries.
func (tt *TieredTrunk[T]) sweep() {
	logger := log.WithComponent("tiered")
	now := time.Now()

	type candidate struct {
		id   string
		last time.Time
	}
	var candidates []candidate

	tt.mu.Lock()
	for id, t := range tt.touched {
		candidates = append(candidates, candidate{id: id, last: t.last})
	}
	tt.mu.Unlock()

	var toArchive []string
	if tt.opts.ArchiveAfter > 0 {
		for _, c := range candidates {
			if now.Sub(c.last) >= tt.opts.ArchiveAfter {
				toArchive = append(toArchive, c.id)
			}
		}
	}

	if tt.opts.MaxHotEntries > 0 && len(candidates)-len(toArchive) > tt.opts.MaxHotEntries {
		archived := make(map[string]bool, len(toArchive))
		for _, id := range toArchive {
			archived[id] = true
		}
		var remaining []candidate
		for _, c := range candidates {
			if !archived[c.id] {
				remaining = append(remaining, c)
			}
		}
		for i := 0; i < len(remaining); i++ {
			for j := i + 1; j < len(remaining); j++ {
				if remaining[j].last.Before(remaining[i].last) {
					remaining[i], remaining[j] = remaining[j], remaining[i]
				}
			}
		}
		excess := len(remaining) - tt.opts.MaxHotEntries
		for i := 0; i < excess; i++ {
			toArchive = append(toArchive, remaining[i].id)
		}
	}

	for _, id := range toArchive {
		if err := tt.archive(id); err != nil {
			logger.Error().Err(err).Str("id", id).Msg("archive failed, entry stays hot")
		}
	}
}

// archive migrates a single id from hot to cold. A partial failure (cold
// write succeeds but hot delete fails, or vice versa) leaves the id present
// in both trunks rather than in neither; the next sweep's Load-then-archive
// path de-duplicates by always preferring hot as the read source until the
// hot copy is actually gone.
func (tt *TieredTrunk[T]) archive(id string) error {
	n, ok, err := tt.hot.Load(id)
	if err != nil {
		return err
	}
	if !ok {
		tt.forget(id)
		return nil
	}

	if err := tt.cold.Save(id, n); err != nil {
		return fmt.Errorf("archive %s to cold: %w", id, err)
	}
	if _, err := tt.hot.Delete(id); err != nil {
		return fmt.Errorf("archive %s: evict from hot: %w", id, err)
	}
	tt.forget(id)
	return nil
}

// Crunch forces id's hot→cold demotion outside the background sweep.
func (tt *TieredTrunk[T]) Crunch(id string) error {
	return tt.archive(id)
}

func (tt *TieredTrunk[T]) touchNow(id string) {
	tt.mu.Lock()
	tt.touched[id] = touch{last: time.Now()}
	tt.mu.Unlock()
}

func (tt *TieredTrunk[T]) forget(id string) {
	tt.mu.Lock()
	delete(tt.touched, id)
	tt.mu.Unlock()
}

func (tt *TieredTrunk[T]) Save(id string, n nut.Nut[T]) error {
	if err := tt.hot.Save(id, n); err != nil {
		return err
	}
	tt.touchNow(id)
	return nil
}

func (tt *TieredTrunk[T]) Load(id string) (nut.Nut[T], bool, error) {
	n, ok, err := tt.hot.Load(id)
	if err != nil {
		return nut.Nut[T]{}, false, err
	}
	if ok {
		tt.touchNow(id)
		return n, true, nil
	}

	n, ok, err = tt.cold.Load(id)
	if err != nil || !ok {
		return n, ok, err
	}

	if tt.opts.RestoreOnRead {
		_, _, _ = tt.promote.Do(id, func() (interface{}, error) {
			if err := tt.hot.Save(id, n); err != nil {
				log.WithComponent("tiered").Error().Err(err).Str("id", id).Msg("restore-on-read failed, serving from cold")
				return nil, nil
			}
			tt.touchNow(id)
			if _, err := tt.cold.Delete(id); err != nil {
				log.WithComponent("tiered").Error().Err(err).Str("id", id).Msg("cold cleanup after restore failed")
			}
			return nil, nil
		})
	}
	return n, true, nil
}

func (tt *TieredTrunk[T]) Delete(id string) (bool, error) {
	tt.forget(id)
	hotExisted, err := tt.hot.Delete(id)
	if err != nil {
		return false, err
	}
	coldExisted, err := tt.cold.Delete(id)
	if err != nil {
		return false, err
	}
	return hotExisted || coldExisted, nil
}

// LoadAll yields every hot entry, then every cold entry whose id was not
// also present in hot (hot always shadows cold for a given id).
func (tt *TieredTrunk[T]) LoadAll() iter.Seq[nut.Nut[T]] {
	return func(yield func(nut.Nut[T]) bool) {
		seen := make(map[string]bool)
		for n := range tt.hot.LoadAll() {
			seen[n.ID] = true
			if !yield(n) {
				return
			}
		}
		for n := range tt.cold.LoadAll() {
			if seen[n.ID] {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}

// History merges hot and cold history for id. Cold is assumed to hold the
// older tail since archiving moves the current version, not a log.
func (tt *TieredTrunk[T]) History(id string) iter.Seq[nut.Nut[T]] {
	hotHist := tt.hot.History(id)
	coldHist := tt.cold.History(id)
	if hotHist == nil && coldHist == nil {
		return nil
	}
	return func(yield func(nut.Nut[T]) bool) {
		if hotHist != nil {
			for n := range hotHist {
				if !yield(n) {
					return
				}
			}
		}
		if coldHist != nil {
			for n := range coldHist {
				if !yield(n) {
					return
				}
			}
		}
	}
}

func (tt *TieredTrunk[T]) Capabilities() trunk.Capabilities {
	hotCaps := tt.hot.Capabilities()
	coldCaps := tt.cold.Capabilities()
	return trunk.Capabilities{
		IsDurable:       coldCaps.IsDurable,
		SupportsHistory: hotCaps.SupportsHistory || coldCaps.SupportsHistory,
		SupportsSync:    true,
		TypeID:          "tiered(" + hotCaps.TypeID + "," + coldCaps.TypeID + ")",
	}
}
