package enumerator

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/mapindex/internal/fs"
)

const (
	magic      = "MIDXHASH"
	version    = 1
	headerSize = 12
)

var (
	// ErrInvalidHeader is returned when the file is not a side index or has
	// an unsupported version.
	ErrInvalidHeader = errors.New("enumerator: invalid header")
	// ErrLocked is returned when another process holds the file.
	ErrLocked = errors.New("enumerator: file is locked by another process")
	// ErrClosed is returned by operations on a closed enumerator.
	ErrClosed = errors.New("enumerator: closed")
)

// Enumerator is the persistent (hash, input id) enumerator.
// It is safe for concurrent use.
type Enumerator struct {
	mu     sync.Mutex
	file   fs.File
	w      *bufio.Writer
	path   string
	ids    map[Pair]uint32
	pairs  []Pair
	dirty  bool
	closed bool

	// truncated is the number of tail bytes dropped on open.
	truncated int64
}

// Open opens or creates the side index at path. A nil fsys selects the
// local file system.
func Open(fsys fs.FileSystem, path string) (*Enumerator, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	e := &Enumerator{
		file: f,
		path: path,
		ids:  make(map[Pair]uint32),
	}
	if err := e.replay(); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, err
	}
	e.w = bufio.NewWriter(f)
	return e, nil
}

// replay loads every valid record and positions the file for appends.
func (e *Enumerator) replay() error {
	stat, err := e.file.Stat()
	if err != nil {
		return err
	}
	size := stat.Size()

	if size == 0 {
		header := make([]byte, headerSize)
		copy(header[0:8], magic)
		binary.LittleEndian.PutUint32(header[8:12], version)
		if _, err := e.file.Write(header); err != nil {
			return err
		}
		return e.file.Sync()
	}

	if size < headerSize {
		return fmt.Errorf("%w: file too small (%d < %d)", ErrInvalidHeader, size, headerSize)
	}
	data := make([]byte, size)
	if _, err := e.file.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if string(data[0:8]) != magic {
		return fmt.Errorf("%w: invalid magic %q", ErrInvalidHeader, data[0:8])
	}
	if ver := binary.LittleEndian.Uint32(data[8:12]); ver != version {
		return fmt.Errorf("%w: version %d (expected %d)", ErrInvalidHeader, ver, version)
	}

	off := headerSize
	for off < len(data) {
		p, n, err := decodeRecord(data[off:])
		if err != nil {
			break
		}
		e.add(p)
		off += n
	}

	if int64(off) < size {
		e.truncated = size - int64(off)
		if err := e.file.Truncate(int64(off)); err != nil {
			return err
		}
		if err := e.file.Sync(); err != nil {
			return err
		}
	}
	_, err = e.file.Seek(int64(off), io.SeekStart)
	return err
}

func (e *Enumerator) add(p Pair) uint32 {
	if id, ok := e.ids[p]; ok {
		return id
	}
	e.pairs = append(e.pairs, p)
	id := uint32(len(e.pairs))
	e.ids[p] = id
	return id
}

// Enumerate returns the id of the pair, appending it when new.
func (e *Enumerator) Enumerate(hash int32, inputID uint32) (uint32, error) {
	p := Pair{Hash: hash, InputID: inputID}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, ErrClosed
	}
	if id, ok := e.ids[p]; ok {
		return id, nil
	}

	var buf [1 + maxPayload + crcSize]byte
	if _, err := e.w.Write(appendRecord(buf[:0], p)); err != nil {
		return 0, err
	}
	e.dirty = true
	return e.add(p), nil
}

// IterateData calls fn for every pair in id order until fn returns false.
// It reports whether iteration ran to completion. Pairs appended during
// iteration are not visited.
func (e *Enumerator) IterateData(fn func(hash int32, inputID uint32) bool) bool {
	e.mu.Lock()
	pairs := e.pairs
	e.mu.Unlock()

	for _, p := range pairs {
		if !fn(p.Hash, p.InputID) {
			return false
		}
	}
	return true
}

// LargestID returns the highest assigned id, which is also the number of pairs.
func (e *Enumerator) LargestID() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint32(len(e.pairs))
}

// Truncated returns how many corrupt tail bytes were dropped on open.
func (e *Enumerator) Truncated() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.truncated
}

// IsDirty reports whether appended pairs have not been forced yet.
func (e *Enumerator) IsDirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// Path returns the file path.
func (e *Enumerator) Path() string { return e.path }

// Force writes buffered records and syncs the file.
func (e *Enumerator) Force() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	return e.forceLocked()
}

func (e *Enumerator) forceLocked() error {
	if err := e.w.Flush(); err != nil {
		return err
	}
	if err := e.file.Sync(); err != nil {
		return err
	}
	e.dirty = false
	return nil
}

// Close forces pending records, releases the lock and closes the file.
// The file is closed even when forcing fails. Closing twice is a no-op.
func (e *Enumerator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.dirty {
		errs = append(errs, e.forceLocked())
	}
	errs = append(errs, unlockFile(e.file), e.file.Close())
	return errors.Join(errs...)
}
