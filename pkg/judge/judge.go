// Package judge provides the pure, total conflict resolvers that arbitrate
// between two Nuts for the same id — both during Tangle replication and for
// local Stash idempotency (a Stash that loses to the judge is a "smush").
package judge

import "github.com/cuemby/acorndb/pkg/nut"

// Judge decides which of two Nuts for the same id is kept. Implementations
// must be deterministic (Judge(a,b) always returns the same result) and
// total (never panic, never consult external state) — Judge(a, a) must
// return a.
type Judge[T any] func(local, incoming nut.Nut[T]) nut.Nut[T]

// Timestamp keeps whichever Nut has the newer Timestamp; ties keep local.
func Timestamp[T any](local, incoming nut.Nut[T]) nut.Nut[T] {
	if incoming.Timestamp.After(local.Timestamp) {
		return incoming
	}
	return local
}

// Version keeps whichever Nut has the higher Version; ties fall through to
// Timestamp.
func Version[T any](local, incoming nut.Nut[T]) nut.Nut[T] {
	switch {
	case incoming.Version > local.Version:
		return incoming
	case incoming.Version < local.Version:
		return local
	default:
		return Timestamp(local, incoming)
	}
}

// LocalWins always keeps local, regardless of incoming.
func LocalWins[T any](local, _ nut.Nut[T]) nut.Nut[T] {
	return local
}

// RemoteWins always keeps incoming, regardless of local.
func RemoteWins[T any](_, incoming nut.Nut[T]) nut.Nut[T] {
	return incoming
}
