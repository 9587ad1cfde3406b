// Package root implements the ordered byte-transform pipeline that wraps a
// byte-level Trunk beneath a typed Tree: compression, encryption and policy
// enforcement roots, composed ascending on write and descending on read so
// the stack inverts cleanly. The canonical pipeline is policy (innermost),
// then compression, then encryption (outermost on disk).
package root

import (
	"fmt"

	"github.com/cuemby/acorndb/pkg/acorn"
)

// Context carries per-call metadata through a Pipeline invocation so
// downstream roots and, eventually, the Tree can verify provenance.
type Context struct {
	DocumentID string
	Operation  string // "stash" or "crack"
	Signatures []string

	// MarkedExpired is set by a Policy root during Crack when the injected
	// policy engine decides the payload should be treated as expired.
	MarkedExpired bool
}

// Root is one ordered stage of the byte pipeline. Sequence determines
// ordering: ascending on Stash, descending on Crack. Signature must be
// stable across process restarts — it is persisted alongside the encoded
// payload and checked on read.
type Root interface {
	Signature() string
	Sequence() int
	OnStash(data []byte, ctx *Context) ([]byte, error)
	OnCrack(data []byte, ctx *Context) ([]byte, error)
}

// Pipeline composes a fixed, sequence-ordered set of Roots around a
// byte-level Trunk.
type Pipeline struct {
	ascending  []Root // sorted by Sequence ascending
	descending []Root // sorted by Sequence descending
	bySig      map[string]Root
}

// NewPipeline builds a Pipeline from an unordered set of Roots.
func NewPipeline(roots ...Root) *Pipeline {
	asc := make([]Root, len(roots))
	copy(asc, roots)
	for i := 1; i < len(asc); i++ {
		for j := i; j > 0 && asc[j-1].Sequence() > asc[j].Sequence(); j-- {
			asc[j-1], asc[j] = asc[j], asc[j-1]
		}
	}
	desc := make([]Root, len(asc))
	for i, r := range asc {
		desc[len(asc)-1-i] = r
	}
	bySig := make(map[string]Root, len(asc))
	for _, r := range asc {
		bySig[r.Signature()] = r
	}
	return &Pipeline{ascending: asc, descending: desc, bySig: bySig}
}

// Signatures returns the pipeline's configured signatures in write order —
// the order that gets persisted alongside an encoded payload.
func (p *Pipeline) Signatures() []string {
	sigs := make([]string, len(p.ascending))
	for i, r := range p.ascending {
		sigs[i] = r.Signature()
	}
	return sigs
}

// Stash runs data through every root ascending, accumulating the applied
// signatures on ctx.
func (p *Pipeline) Stash(data []byte, ctx *Context) ([]byte, error) {
	ctx.Operation = "stash"
	for _, r := range p.ascending {
		var err error
		data, err = r.OnStash(data, ctx)
		if err != nil {
			return nil, fmt.Errorf("root %s on stash: %w", r.Signature(), err)
		}
		ctx.Signatures = append(ctx.Signatures, r.Signature())
	}
	return data, nil
}

// Crack runs data through every root descending. ctx.Signatures must
// already hold the signatures recorded at stash time (read from disk); any
// signature not present in the configured pipeline fails closed: Crack
// returns an error wrapping acorn.ErrRootMismatch.
func (p *Pipeline) Crack(data []byte, ctx *Context) ([]byte, error) {
	ctx.Operation = "crack"
	recorded := ctx.Signatures
	if err := p.verifySignatures(recorded); err != nil {
		return nil, err
	}
	for _, r := range p.descending {
		found := false
		for _, sig := range recorded {
			if sig == r.Signature() {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		var err error
		data, err = r.OnCrack(data, ctx)
		if err != nil {
			return nil, fmt.Errorf("root %s on crack: %w", r.Signature(), err)
		}
	}
	return data, nil
}

func (p *Pipeline) verifySignatures(recorded []string) error {
	for _, sig := range recorded {
		if _, ok := p.bySig[sig]; !ok {
			return fmt.Errorf("%s: %w", sig, acorn.ErrRootMismatch)
		}
	}
	return nil
}
