// Package trunk defines the pluggable persistence contract beneath a Tree,
// plus the built-in memory, append-only-file and bbolt-backed
// implementations. Every Trunk conforms to the same byte-level contract:
// Save/Load/Delete/LoadAll, optionally History, and a static Capabilities
// record.
package trunk

import (
	"iter"

	"github.com/cuemby/acorndb/pkg/nut"
)

// Capabilities is a static, post-construction description of what a Trunk
// supports. Trees and root pipelines consult it rather than type-asserting
// concrete Trunk implementations.
type Capabilities struct {
	IsDurable       bool
	SupportsHistory bool
	SupportsSync    bool
	SupportsAsync   bool
	TypeID          string
}

// Trunk is the storage contract a Tree[T] is built on. Implementations must
// uphold: a successful Save implies Load returns an equal Nut until a later
// Save or Delete; Delete reports the prior existence state; LoadAll
// enumerates every live id exactly once.
type Trunk[T any] interface {
	Save(id string, n nut.Nut[T]) error
	Load(id string) (nut.Nut[T], bool, error)
	Delete(id string) (bool, error)
	LoadAll() iter.Seq[nut.Nut[T]]
	// History returns nil if the trunk does not support history (see
	// Capabilities.SupportsHistory) rather than an error.
	History(id string) iter.Seq[nut.Nut[T]]
	Capabilities() Capabilities
}
