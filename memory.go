package ember

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MEMORY SOURCE
// ═══════════════════════════════════════════════════════════════════════════════
// Indexes and WAND data are built offline, written once, and read many
// times. At query time they are byte blobs that cursors borrow slices
// of — nothing on the query path ever copies or owns index bytes.
//
// A MemorySource is the one owner: a byte slice plus (optionally) the
// mmap handle that keeps the slice alive. Whoever loads an index is
// responsible for keeping its source open for the lifetime of every
// cursor derived from it.
//
// All multi-byte reads elsewhere go through the explicit little-endian
// helpers in bits.go; a MemorySource is never reinterpreted as structs.
// ═══════════════════════════════════════════════════════════════════════════════

// MemorySource owns a read-only byte region backing an index.
type MemorySource struct {
	data   []byte
	mapped bool
}

// NewByteSource wraps an in-memory buffer (tests, in-process builds).
func NewByteSource(data []byte) *MemorySource {
	return &MemorySource{data: data}
}

// OpenMappedFile maps path read-only.
func OpenMappedFile(path string) (*MemorySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s: empty index file: %w", path, ErrCorruptIndex)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &MemorySource{data: data, mapped: true}, nil
}

// Bytes returns the backing region. Callers slice it, never mutate it.
func (s *MemorySource) Bytes() []byte { return s.data }

// Close releases the mapping. Every cursor borrowed from this source
// must be dropped first.
func (s *MemorySource) Close() error {
	if !s.mapped || s.data == nil {
		s.data = nil
		return nil
	}
	data := s.data
	s.data = nil
	s.mapped = false
	return unix.Munmap(data)
}
