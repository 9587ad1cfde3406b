package grove

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/acorndb/pkg/acorn"
	"github.com/cuemby/acorndb/pkg/tangle"
	"github.com/cuemby/acorndb/pkg/tree"
)

// TreePlanter adapts a concrete *tree.Tree[T] to the type-erased Planter
// interface, carrying T's (de)serializer as its own closure.
type TreePlanter[T any] struct {
	tree *tree.Tree[T]
}

// Plant wraps t in a TreePlanter so it can be registered with a Grove.
func Plant[T any](t *tree.Tree[T]) *TreePlanter[T] {
	return &TreePlanter[T]{tree: t}
}

// Tree returns the wrapped, strongly-typed Tree for callers that already
// know T (e.g. Entangle construction, which needs the concrete type).
func (p *TreePlanter[T]) Tree() *tree.Tree[T] { return p.tree }

func (p *TreePlanter[T]) TypeName() string { return p.tree.Name() }

func (p *TreePlanter[T]) TryStash(id string, payload json.RawMessage) error {
	var typed T
	if err := json.Unmarshal(payload, &typed); err != nil {
		return fmt.Errorf("%w: %s: %v", acorn.ErrTypeMismatch, p.tree.Name(), err)
	}
	return p.tree.Stash(id, typed)
}

func (p *TreePlanter[T]) TryCrack(id string) (json.RawMessage, bool, error) {
	payload, ok, err := p.tree.Crack(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("encode payload for %s: %w", p.tree.Name(), err)
	}
	return raw, true, nil
}

func (p *TreePlanter[T]) TryToss(id string) (bool, error) {
	return p.tree.Toss(id)
}

func (p *TreePlanter[T]) Shake() (int, error) {
	return p.tree.Shake()
}

func (p *TreePlanter[T]) Stats() NutStats {
	c := p.tree.Counters()
	return NutStats{
		TotalStashed:      c.TotalStashed,
		TotalTossed:       c.TotalTossed,
		SquabblesResolved: c.SquabblesResolved,
		SmushesPerformed:  c.SmushesPerformed,
	}
}

func (p *TreePlanter[T]) NutCount() int {
	count := 0
	for range p.tree.ExportChanges(nil) {
		count++
	}
	return count
}

// EntangleHTTP entangles this Planter's Tree against the remote node at
// baseURL, bidirectionally, and returns the resulting Tangle as an opaque
// Stopper — Grove never learns T, only that the handle can be stopped.
func (p *TreePlanter[T]) EntangleHTTP(baseURL string) Stopper {
	peer := tangle.NewHTTPPeer[T](baseURL, p.tree.Name())
	return tangle.Entangle[T](p.tree, peer, tangle.Bidirectional, tangle.Options{})
}
