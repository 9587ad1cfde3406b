package trunk

import (
	"iter"
	"sync"

	"github.com/cuemby/acorndb/pkg/nut"
)

// MemoryTrunk is a single in-process map: non-durable, no history. It is the
// default Trunk for tests.
type MemoryTrunk[T any] struct {
	mu   sync.RWMutex
	data map[string]nut.Nut[T]
}

// NewMemoryTrunk constructs an empty MemoryTrunk.
func NewMemoryTrunk[T any]() *MemoryTrunk[T] {
	return &MemoryTrunk[T]{data: make(map[string]nut.Nut[T])}
}

func (m *MemoryTrunk[T]) Save(id string, n nut.Nut[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = n
	return nil
}

func (m *MemoryTrunk[T]) Load(id string) (nut.Nut[T], bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.data[id]
	return n, ok, nil
}

func (m *MemoryTrunk[T]) Delete(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.data[id]
	delete(m.data, id)
	return existed, nil
}

// LoadAll snapshots the current id set before yielding, so callers may
// safely mutate the trunk while consuming the sequence.
func (m *MemoryTrunk[T]) LoadAll() iter.Seq[nut.Nut[T]] {
	m.mu.RLock()
	snapshot := make([]nut.Nut[T], 0, len(m.data))
	for _, n := range m.data {
		snapshot = append(snapshot, n)
	}
	m.mu.RUnlock()

	return func(yield func(nut.Nut[T]) bool) {
		for _, n := range snapshot {
			if !yield(n) {
				return
			}
		}
	}
}

// History always returns nil: the memory trunk keeps only the latest Nut per id.
func (m *MemoryTrunk[T]) History(string) iter.Seq[nut.Nut[T]] {
	return nil
}

func (m *MemoryTrunk[T]) Capabilities() Capabilities {
	return Capabilities{
		IsDurable:       false,
		SupportsHistory: false,
		SupportsSync:    true,
		SupportsAsync:   false,
		TypeID:          "memory",
	}
}
