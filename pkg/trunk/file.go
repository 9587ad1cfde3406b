package trunk

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"sync"

	"github.com/cuemby/acorndb/pkg/acorn"
	"github.com/cuemby/acorndb/pkg/nut"
)

// record is the on-disk shape of one append-only log entry: a sequence of
// length-prefixed JSON records, replayed on open.
type record[T any] struct {
	Op  string    `json:"op"` // "save" or "delete"
	ID  string    `json:"id"`
	Nut *nut.Nut[T] `json:"nut,omitempty"`
}

// FileTrunk is an append-only change log on disk, replayed into an
// in-memory index on open. History is supported by re-scanning the log for
// every record that touched an id. Save is durable: each record is fsync'd
// before Save returns.
type FileTrunk[T any] struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	current map[string]nut.Nut[T]
}

// OpenFileTrunk opens (or creates) the log at path and replays it to
// reconstruct current state.
func OpenFileTrunk[T any](path string) (*FileTrunk[T], error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", acorn.ErrStorageUnavailable, path, err)
	}

	ft := &FileTrunk[T]{
		path:    path,
		file:    f,
		current: make(map[string]nut.Nut[T]),
	}
	if err := ft.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return ft, nil
}

func (ft *FileTrunk[T]) replay() error {
	if _, err := ft.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek: %v", acorn.ErrStorageUnavailable, err)
	}
	r := bufio.NewReader(ft.file)
	for {
		rec, err := readRecord[T](r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: replay %s: %v", acorn.ErrRootMismatch, ft.path, err)
		}
		switch rec.Op {
		case "save":
			ft.current[rec.ID] = *rec.Nut
		case "delete":
			delete(ft.current, rec.ID)
		}
	}
	if _, err := ft.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("%w: seek end: %v", acorn.ErrStorageUnavailable, err)
	}
	return nil
}

func readRecord[T any](r *bufio.Reader) (record[T], error) {
	var rec record[T]
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return rec, err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return rec, err
	}
	if err := json.Unmarshal(buf, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (ft *FileTrunk[T]) appendRecord(rec record[T]) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", acorn.ErrStorageUnavailable, err)
	}

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(buf)))

	if _, err := ft.file.Write(length[:]); err != nil {
		return fmt.Errorf("%w: write length: %v", acorn.ErrStorageUnavailable, err)
	}
	if _, err := ft.file.Write(buf); err != nil {
		return fmt.Errorf("%w: write record: %v", acorn.ErrStorageUnavailable, err)
	}
	if err := ft.file.Sync(); err != nil {
		return fmt.Errorf("%w: fsync: %v", acorn.ErrStorageUnavailable, err)
	}
	return nil
}

func (ft *FileTrunk[T]) Save(id string, n nut.Nut[T]) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	nCopy := n
	if err := ft.appendRecord(record[T]{Op: "save", ID: id, Nut: &nCopy}); err != nil {
		return err
	}
	ft.current[id] = n
	return nil
}

func (ft *FileTrunk[T]) Load(id string) (nut.Nut[T], bool, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	n, ok := ft.current[id]
	return n, ok, nil
}

func (ft *FileTrunk[T]) Delete(id string) (bool, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	_, existed := ft.current[id]
	if err := ft.appendRecord(record[T]{Op: "delete", ID: id}); err != nil {
		return false, err
	}
	delete(ft.current, id)
	return existed, nil
}

func (ft *FileTrunk[T]) LoadAll() iter.Seq[nut.Nut[T]] {
	ft.mu.Lock()
	snapshot := make([]nut.Nut[T], 0, len(ft.current))
	for _, n := range ft.current {
		snapshot = append(snapshot, n)
	}
	ft.mu.Unlock()

	return func(yield func(nut.Nut[T]) bool) {
		for _, n := range snapshot {
			if !yield(n) {
				return
			}
		}
	}
}

// History replays the whole log and returns every version seen for id,
// oldest first. It is O(log size) — callers needing frequent history
// lookups should prefer BTreeTrunk.
func (ft *FileTrunk[T]) History(id string) iter.Seq[nut.Nut[T]] {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if _, err := ft.file.Seek(0, io.SeekStart); err != nil {
		return func(func(nut.Nut[T]) bool) {}
	}
	r := bufio.NewReader(ft.file)
	var versions []nut.Nut[T]
	for {
		rec, err := readRecord[T](r)
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if rec.ID != id {
			continue
		}
		switch rec.Op {
		case "save":
			versions = append(versions, *rec.Nut)
		case "delete":
			versions = append(versions, nut.Nut[T]{ID: id})
		}
	}
	ft.file.Seek(0, io.SeekEnd)

	return func(yield func(nut.Nut[T]) bool) {
		for _, n := range versions {
			if !yield(n) {
				return
			}
		}
	}
}

func (ft *FileTrunk[T]) Capabilities() Capabilities {
	return Capabilities{
		IsDurable:       true,
		SupportsHistory: true,
		SupportsSync:    true,
		SupportsAsync:   false,
		TypeID:          "file",
	}
}

// Compact rewrites the log from the current live set, truncating prior
// history. This is the only operation allowed to truncate the file.
func (ft *FileTrunk[T]) Compact() error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	tmpPath := ft.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: compact: %v", acorn.ErrStorageUnavailable, err)
	}

	compacted := &FileTrunk[T]{path: tmpPath, file: tmp, current: ft.current}
	for id, n := range ft.current {
		nCopy := n
		if err := compacted.appendRecord(record[T]{Op: "save", ID: id, Nut: &nCopy}); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close compacted file: %v", acorn.ErrStorageUnavailable, err)
	}
	if err := ft.file.Close(); err != nil {
		return fmt.Errorf("%w: close original file: %v", acorn.ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpPath, ft.path); err != nil {
		return fmt.Errorf("%w: rename compacted file: %v", acorn.ErrStorageUnavailable, err)
	}

	f, err := os.OpenFile(ft.path, os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("%w: reopen compacted file: %v", acorn.ErrStorageUnavailable, err)
	}
	ft.file = f
	return nil
}

// Close flushes and closes the underlying file handle.
func (ft *FileTrunk[T]) Close() error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.file.Close()
}
