package ember

import (
	"fmt"
	"log/slog"
)

// ═══════════════════════════════════════════════════════════════════════════════
// INVERTED INDEX
// ═══════════════════════════════════════════════════════════════════════════════
// An ordered collection of block posting lists, addressed by term-id.
//
// STRUCTURE:
// ----------
//
//	InvertedIndex
//	├── codec      → the block codec every list was written with
//	├── numDocs    → the docid universe D
//	├── endpoints  → Elias–Fano sequence of n+1 byte offsets
//	└── lists      → one concatenated byte blob of all posting lists
//
// Lookup is two endpoint reads plus a cursor constructor: list i spans
// lists[endpoints[i] : endpoints[i+1]]. The index owns nothing at query
// time beyond the blob; cursors borrow slices of it.
//
// The write side is a builder that accumulates list blobs in term order
// and seals the endpoint directory on Build — write once, read many.
// ═══════════════════════════════════════════════════════════════════════════════
type InvertedIndex struct {
	codec     BlockCodec
	numDocs   uint32
	endpoints *EliasFano // n+1 offsets into lists
	lists     []byte
}

// NumTerms returns the number of posting lists.
func (idx *InvertedIndex) NumTerms() int { return idx.endpoints.Len() - 1 }

// NumDocs returns the docid universe D.
func (idx *InvertedIndex) NumDocs() uint32 { return idx.numDocs }

// Codec returns the block codec the index was written with.
func (idx *InvertedIndex) Codec() BlockCodec { return idx.codec }

// PostingCursor opens a cursor over term's posting list.
//
// The cursor borrows the index's byte blob: it stays valid for as long
// as the index (and its MemorySource, if mapped) is alive.
func (idx *InvertedIndex) PostingCursor(term TermID) (*PostingCursor, error) {
	if int(term) >= idx.NumTerms() {
		return nil, fmt.Errorf("term %d of %d: %w", term, idx.NumTerms(), ErrOutOfRange)
	}
	start := idx.endpoints.Access(int(term))
	end := idx.endpoints.Access(int(term) + 1)
	return NewPostingCursor(idx.codec, idx.lists[start:end], idx.numDocs), nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// INDEX BUILDER
// ═══════════════════════════════════════════════════════════════════════════════

// IndexBuilder accumulates posting lists in term order.
//
// USAGE:
// ------
//
//	b := NewIndexBuilder(codec, numDocs)
//	for each term (ascending):
//	    b.AddPostingList(docs, freqs)
//	idx, err := b.Build()
type IndexBuilder struct {
	codec     BlockCodec
	numDocs   uint32
	endpoints []uint64
	lists     []byte
	built     bool
}

// NewIndexBuilder starts a builder for an index over [0, numDocs).
func NewIndexBuilder(codec BlockCodec, numDocs uint32) *IndexBuilder {
	return &IndexBuilder{
		codec:     codec,
		numDocs:   numDocs,
		endpoints: []uint64{0},
	}
}

// AddPostingList encodes and appends the next term's postings.
//
// Validation happens in WritePostingList — a rejected list leaves the
// builder exactly as it was (no partial output).
func (b *IndexBuilder) AddPostingList(docs, freqs []uint32) error {
	if len(docs) > 0 && docs[len(docs)-1] >= b.numDocs {
		return fmt.Errorf("docid %d outside universe %d: %w", docs[len(docs)-1], b.numDocs, ErrOutOfRange)
	}
	lists, err := WritePostingList(b.codec, b.lists, docs, freqs)
	if err != nil {
		return err
	}
	b.lists = lists
	b.endpoints = append(b.endpoints, uint64(len(b.lists)))
	return nil
}

// AddPostingBlocks appends a list assembled from raw block descriptors
// (the re-encoding / reordering path).
func (b *IndexBuilder) AddPostingBlocks(n int, blocks []BlockData) error {
	lists, err := WritePostingBlocks(b.lists, n, blocks)
	if err != nil {
		return err
	}
	b.lists = lists
	b.endpoints = append(b.endpoints, uint64(len(b.lists)))
	return nil
}

// AddRawPostingList appends an already-encoded list blob verbatim.
// The blob must have been produced by WritePostingList with the same
// codec; no validation is performed here.
func (b *IndexBuilder) AddRawPostingList(data []byte) {
	b.lists = append(b.lists, data...)
	b.endpoints = append(b.endpoints, uint64(len(b.lists)))
}

// Build seals the endpoint directory and returns the finished index.
// The builder must not be reused afterwards.
func (b *IndexBuilder) Build() (*InvertedIndex, error) {
	if b.built {
		return nil, fmt.Errorf("builder already built: %w", ErrInvalidArgument)
	}
	b.built = true

	ef, err := EncodeEliasFano(b.endpoints, uint64(len(b.lists)))
	if err != nil {
		return nil, err
	}
	slog.Info("built inverted index",
		slog.Int("terms", len(b.endpoints)-1),
		slog.Int("bytes", len(b.lists)),
		slog.String("codec", b.codec.Name()))

	return &InvertedIndex{
		codec:     b.codec,
		numDocs:   b.numDocs,
		endpoints: ef,
		lists:     b.lists,
	}, nil
}
