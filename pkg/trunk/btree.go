package trunk

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"iter"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/acorndb/pkg/acorn"
	"github.com/cuemby/acorndb/pkg/nut"
)

var (
	bucketCurrent = []byte("current")
	bucketHistory = []byte("history")
)

// BTreeTrunk is a durable, ordered key/value trunk backed by bbolt (an
// on-disk B+tree): one bucket of JSON-encoded current values, plus an
// optional history bucket keyed "id\x00<version>" so History can range-scan
// a single id's versions in order.
type BTreeTrunk[T any] struct {
	db          *bolt.DB
	keepHistory bool
}

// NewBTreeTrunk opens (or creates) a bbolt database at path. When
// keepHistory is true every Save also appends to the history bucket.
func NewBTreeTrunk[T any](path string, keepHistory bool) (*BTreeTrunk[T], error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open bbolt %s: %v", acorn.ErrStorageUnavailable, path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCurrent); err != nil {
			return err
		}
		if keepHistory {
			if _, err := tx.CreateBucketIfNotExists(bucketHistory); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create buckets: %v", acorn.ErrStorageUnavailable, err)
	}

	return &BTreeTrunk[T]{db: db, keepHistory: keepHistory}, nil
}

func historyKey(id string, version uint64) []byte {
	key := make([]byte, len(id)+1+8)
	copy(key, id)
	binary.BigEndian.PutUint64(key[len(id)+1:], version)
	return key
}

func (b *BTreeTrunk[T]) Save(id string, n nut.Nut[T]) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("%w: encode nut: %v", acorn.ErrStorageUnavailable, err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketCurrent).Put([]byte(id), data); err != nil {
			return err
		}
		if b.keepHistory {
			return tx.Bucket(bucketHistory).Put(historyKey(id, n.Version), data)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save %s: %v", acorn.ErrStorageUnavailable, id, err)
	}
	return nil
}

func (b *BTreeTrunk[T]) Load(id string) (nut.Nut[T], bool, error) {
	var n nut.Nut[T]
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCurrent).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &n)
	})
	if err != nil {
		return n, false, fmt.Errorf("%w: load %s: %v", acorn.ErrStorageUnavailable, id, err)
	}
	return n, found, nil
}

func (b *BTreeTrunk[T]) Delete(id string) (bool, error) {
	var existed bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCurrent)
		existed = bucket.Get([]byte(id)) != nil
		return bucket.Delete([]byte(id))
	})
	if err != nil {
		return false, fmt.Errorf("%w: delete %s: %v", acorn.ErrStorageUnavailable, id, err)
	}
	return existed, nil
}

func (b *BTreeTrunk[T]) LoadAll() iter.Seq[nut.Nut[T]] {
	var snapshot []nut.Nut[T]
	_ = b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCurrent).ForEach(func(_, v []byte) error {
			var n nut.Nut[T]
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			snapshot = append(snapshot, n)
			return nil
		})
	})

	return func(yield func(nut.Nut[T]) bool) {
		for _, n := range snapshot {
			if !yield(n) {
				return
			}
		}
	}
}

// History returns nil when the trunk was opened without keepHistory.
func (b *BTreeTrunk[T]) History(id string) iter.Seq[nut.Nut[T]] {
	if !b.keepHistory {
		return nil
	}

	prefix := append([]byte(id), 0x00)
	var versions []nut.Nut[T]
	_ = b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var n nut.Nut[T]
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			versions = append(versions, n)
		}
		return nil
	})

	return func(yield func(nut.Nut[T]) bool) {
		for _, n := range versions {
			if !yield(n) {
				return
			}
		}
	}
}

func hasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == string(prefix)
}

func (b *BTreeTrunk[T]) Capabilities() Capabilities {
	return Capabilities{
		IsDurable:       true,
		SupportsHistory: b.keepHistory,
		SupportsSync:    true,
		SupportsAsync:   false,
		TypeID:          "btree",
	}
}

// Close releases the underlying database file handle.
func (b *BTreeTrunk[T]) Close() error {
	return b.db.Close()
}
