package trunk

import (
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/cuemby/acorndb/pkg/acorn"
	"github.com/cuemby/acorndb/pkg/nut"
	"github.com/cuemby/acorndb/pkg/root"
)

// envelope is the byte-level record a RootedTrunk stores in its backing
// trunk: the root signatures applied at stash time plus the transformed
// payload bytes. Storing the signature list alongside the data is what lets
// Crack fail closed (acorn.ErrRootMismatch) if the configured pipeline no
// longer matches what is on disk.
type envelope struct {
	Signatures []string `json:"signatures"`
	Data       []byte   `json:"data"`
}

// RootedTrunk composes a root.Pipeline around a byte-level backing trunk
// (any Trunk[[]byte] — memory, file or bbolt all qualify), presenting a
// typed Trunk[T] to the Tree above it. Metadata (timestamp, version,
// expiry, tags) is kept in plaintext at the envelope's outer Nut so the
// Tree can sweep expirations without running the pipeline.
type RootedTrunk[T any] struct {
	backing  Trunk[[]byte]
	pipeline *root.Pipeline
}

// NewRootedTrunk wraps backing with pipeline.
func NewRootedTrunk[T any](backing Trunk[[]byte], pipeline *root.Pipeline) *RootedTrunk[T] {
	return &RootedTrunk[T]{backing: backing, pipeline: pipeline}
}

func (rt *RootedTrunk[T]) Save(id string, n nut.Nut[T]) error {
	payloadBytes, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", acorn.ErrStorageUnavailable, err)
	}

	ctx := &root.Context{DocumentID: id}
	transformed, err := rt.pipeline.Stash(payloadBytes, ctx)
	if err != nil {
		return err
	}

	env := envelope{Signatures: ctx.Signatures, Data: transformed}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %v", acorn.ErrStorageUnavailable, err)
	}

	byteNut := nut.Nut[[]byte]{
		ID:        id,
		Payload:   &envBytes,
		Timestamp: n.Timestamp,
		Version:   n.Version,
		ExpiresAt: n.ExpiresAt,
		Tags:      n.Tags,
	}
	return rt.backing.Save(id, byteNut)
}

func (rt *RootedTrunk[T]) Load(id string) (nut.Nut[T], bool, error) {
	var zero nut.Nut[T]

	byteNut, ok, err := rt.backing.Load(id)
	if err != nil || !ok {
		return zero, ok, err
	}

	decoded, expired, err := rt.decode(id, byteNut)
	if err != nil {
		return zero, false, err
	}

	result := nut.Nut[T]{
		ID:        id,
		Payload:   decoded,
		Timestamp: byteNut.Timestamp,
		Version:   byteNut.Version,
		ExpiresAt: byteNut.ExpiresAt,
		Tags:      byteNut.Tags,
	}
	if expired {
		past := time.Unix(0, 0)
		result.ExpiresAt = &past
	}
	return result, true, nil
}

func (rt *RootedTrunk[T]) decode(id string, byteNut nut.Nut[[]byte]) (*T, bool, error) {
	if byteNut.Tombstone() {
		return nil, false, nil
	}

	var env envelope
	if err := json.Unmarshal(*byteNut.Payload, &env); err != nil {
		return nil, false, fmt.Errorf("%w: decode envelope for %s: %v", acorn.ErrRootMismatch, id, err)
	}

	ctx := &root.Context{DocumentID: id, Signatures: env.Signatures}
	raw, err := rt.pipeline.Crack(env.Data, ctx)
	if err != nil {
		return nil, false, err
	}

	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false, fmt.Errorf("%w: decode payload for %s: %v", acorn.ErrStorageUnavailable, id, err)
	}
	return &payload, ctx.MarkedExpired, nil
}

func (rt *RootedTrunk[T]) Delete(id string) (bool, error) {
	return rt.backing.Delete(id)
}

func (rt *RootedTrunk[T]) LoadAll() iter.Seq[nut.Nut[T]] {
	return func(yield func(nut.Nut[T]) bool) {
		for byteNut := range rt.backing.LoadAll() {
			decoded, expired, err := rt.decode(byteNut.ID, byteNut)
			if err != nil {
				continue
			}
			n := nut.Nut[T]{
				ID:        byteNut.ID,
				Payload:   decoded,
				Timestamp: byteNut.Timestamp,
				Version:   byteNut.Version,
				ExpiresAt: byteNut.ExpiresAt,
				Tags:      byteNut.Tags,
			}
			if expired {
				past := time.Unix(0, 0)
				n.ExpiresAt = &past
			}
			if !yield(n) {
				return
			}
		}
	}
}

func (rt *RootedTrunk[T]) History(id string) iter.Seq[nut.Nut[T]] {
	history := rt.backing.History(id)
	if history == nil {
		return nil
	}
	return func(yield func(nut.Nut[T]) bool) {
		for byteNut := range history {
			decoded, _, err := rt.decode(id, byteNut)
			if err != nil {
				continue
			}
			n := nut.Nut[T]{
				ID:        id,
				Payload:   decoded,
				Timestamp: byteNut.Timestamp,
				Version:   byteNut.Version,
				ExpiresAt: byteNut.ExpiresAt,
				Tags:      byteNut.Tags,
			}
			if !yield(n) {
				return
			}
		}
	}
}

func (rt *RootedTrunk[T]) Capabilities() Capabilities {
	caps := rt.backing.Capabilities()
	caps.TypeID = "rooted(" + caps.TypeID + ")"
	return caps
}
