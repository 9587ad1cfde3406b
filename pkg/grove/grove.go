// Package grove implements the type-erased multi-tree registry: Grove maps
// payload-type name to a typed Tree hidden behind the Planter boundary, and
// owns the process-wide Tangle list.
package grove

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuemby/acorndb/pkg/acorn"
	"golang.org/x/sync/errgroup"
)

// NutStats mirrors tree.Counters without importing pkg/tree's generic
// Tree type into the type-erased boundary.
type NutStats struct {
	TotalStashed      uint64
	TotalTossed       uint64
	SquabblesResolved uint64
	SmushesPerformed  uint64
}

// TreeInfo describes one planted Tree for GET /describe.
type TreeInfo struct {
	TypeName string
	NutCount int
	IsRemote bool
}

// TangleInfo describes one Tangle for GET /describe.
type TangleInfo struct {
	FromTreeID string
	ToTreeID   string
	URL        string
	Status     string
}

// Planter is the type-erased boundary a concrete Tree[T] is wrapped behind
// before it can be planted into a Grove. Grove operations work in terms of
// opaque json.RawMessage payloads; each Planter carries its own (de)serializer
// by holding a closure over its concrete T.
type Planter interface {
	TypeName() string
	TryStash(id string, payload json.RawMessage) error
	TryCrack(id string) (json.RawMessage, bool, error)
	TryToss(id string) (bool, error)
	Shake() (int, error)
	Stats() NutStats
	NutCount() int
	// EntangleHTTP creates a bidirectional Tangle between this Planter's Tree and the
	// remote node at baseURL, returning a handle the caller can Stop.
	EntangleHTTP(baseURL string) Stopper
}

// Stopper is the minimal handle Grove needs back from an entangled peer —
// satisfied by *tangle.Tangle[T] for any T.
type Stopper interface {
	Stop()
}

// Grove maps payload-type name to Tree and owns the global Tangle list.
// Invariant: at most one Tree per type name.
type Grove struct {
	mu    sync.RWMutex
	trees map[string]Planter

	tangleMu sync.Mutex
	tangles  []TangleInfo
	stoppers []Stopper
}

// New constructs an empty Grove.
func New() *Grove {
	return &Grove{trees: make(map[string]Planter)}
}

// Plant registers p under its TypeName. Fails with acorn.ErrDuplicateType if
// a Tree of that type is already planted.
func (g *Grove) Plant(p Planter) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.trees[p.TypeName()]; exists {
		return fmt.Errorf("%w: %s", acorn.ErrDuplicateType, p.TypeName())
	}
	g.trees[p.TypeName()] = p
	return nil
}

func (g *Grove) lookup(typeName string) (Planter, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.trees[typeName]
	return p, ok
}

// TryStash parses payload against typeName's Tree and dispatches Stash.
func (g *Grove) TryStash(typeName, id string, payload json.RawMessage) error {
	p, ok := g.lookup(typeName)
	if !ok {
		return fmt.Errorf("%w: unknown type %s", acorn.ErrNotFound, typeName)
	}
	return p.TryStash(id, payload)
}

// TryCrack parses and dispatches Crack for typeName.
func (g *Grove) TryCrack(typeName, id string) (json.RawMessage, bool, error) {
	p, ok := g.lookup(typeName)
	if !ok {
		return nil, false, fmt.Errorf("%w: unknown type %s", acorn.ErrNotFound, typeName)
	}
	return p.TryCrack(id)
}

// TryToss dispatches Toss for typeName.
func (g *Grove) TryToss(typeName, id string) (bool, error) {
	p, ok := g.lookup(typeName)
	if !ok {
		return false, fmt.Errorf("%w: unknown type %s", acorn.ErrNotFound, typeName)
	}
	return p.TryToss(id)
}

// ShakeAll sweeps expired entries across every planted Tree, returning the
// total count swept.
func (g *Grove) ShakeAll() (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	total := 0
	for _, p := range g.trees {
		swept, err := p.Shake()
		if err != nil {
			return total, err
		}
		total += swept
	}
	return total, nil
}

// GetNutStats returns each planted Tree's activity counters by type name.
func (g *Grove) GetNutStats() map[string]NutStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]NutStats, len(g.trees))
	for name, p := range g.trees {
		out[name] = p.Stats()
	}
	return out
}

// GetTreeInfo lists every planted Tree's topology summary.
func (g *Grove) GetTreeInfo() []TreeInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	infos := make([]TreeInfo, 0, len(g.trees))
	for name, p := range g.trees {
		infos = append(infos, TreeInfo{TypeName: name, NutCount: p.NutCount()})
	}
	return infos
}

// GetTangleStats returns the process-wide Tangle list.
func (g *Grove) GetTangleStats() []TangleInfo {
	g.tangleMu.Lock()
	defer g.tangleMu.Unlock()
	out := make([]TangleInfo, len(g.tangles))
	copy(out, g.tangles)
	return out
}

// RegisterTangle records a TangleInfo for GET /describe and GetTangleStats.
// EntangleAll registers the Tangles it creates through each Planter;
// callers constructing Tangles directly via pkg/tangle.Entangle call this
// themselves, since Grove does not know the concrete T a Tangle replicates.
func (g *Grove) RegisterTangle(info TangleInfo) {
	g.tangleMu.Lock()
	defer g.tangleMu.Unlock()
	g.tangles = append(g.tangles, info)
}

// EntangleAll entangles every planted Tree against the remote Grove at url,
// bidirectionally, concurrently, and records a TangleInfo per Tree. One
// failed Tree does not stop the rest; the first failure is returned.
func (g *Grove) EntangleAll(url string) error {
	g.mu.RLock()
	trees := make(map[string]Planter, len(g.trees))
	for name, p := range g.trees {
		trees[name] = p
	}
	g.mu.RUnlock()

	grp, _ := errgroup.WithContext(context.Background())
	for name, p := range trees {
		grp.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("entangle %s against %s: %v", name, url, r)
				}
			}()
			stopper := p.EntangleHTTP(url)
			g.tangleMu.Lock()
			g.stoppers = append(g.stoppers, stopper)
			g.tangleMu.Unlock()
			g.RegisterTangle(TangleInfo{FromTreeID: name, ToTreeID: url, URL: url, Status: "connected"})
			return nil
		})
	}
	return grp.Wait()
}

// Close stops every Tangle created by EntangleAll.
func (g *Grove) Close() {
	g.tangleMu.Lock()
	defer g.tangleMu.Unlock()
	for _, s := range g.stoppers {
		s.Stop()
	}
	g.stoppers = nil
}

// TypeNames lists every planted type name, for EntangleAll callers that need
// to iterate the Grove generically.
func (g *Grove) TypeNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.trees))
	for name := range g.trees {
		names = append(names, name)
	}
	return names
}
