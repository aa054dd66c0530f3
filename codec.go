package ember

import (
	"errors"
	"fmt"
	"sort"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ERROR TAXONOMY
// ═══════════════════════════════════════════════════════════════════════════════
// Package-level sentinel errors so callers can match with errors.Is.
//
// The split mirrors where each failure can happen:
//
//	ErrInvalidEncoding → a codec name nobody registered
//	ErrCorruptIndex    → decoded data inconsistent with its own header
//	ErrOutOfRange      → term-id / docid outside declared bounds
//	ErrInvalidArgument → caller handed the write path bad postings,
//	                     or the quantizer an out-of-range score
//
// Builders validate and fail BEFORE emitting partial output. Query
// processors never fail on a well-formed index; an inconsistency found
// mid-query is a bug, not a user error.
// ═══════════════════════════════════════════════════════════════════════════════
var (
	ErrInvalidEncoding = errors.New("no codec registered under that name")
	ErrCorruptIndex    = errors.New("index data is inconsistent with its header")
	ErrOutOfRange      = errors.New("lookup outside declared bounds")
	ErrInvalidArgument = errors.New("invalid argument")
)

// NoSum is the "sum of values unknown" sentinel passed to codecs.
//
// The decoder of a docid-gap block knows the exact sum of the gaps (it is
// the block's docid span), and codecs like interpolative exploit that to
// skip storing it. Frequency blocks have no such bound, so they pass
// NoSum and the codec stores whatever it needs.
//
// A typed Option would also work; the raw sentinel is kept because it is
// part of every codec's wire contract (an interpolative block literally
// starts with the sum IF AND ONLY IF the caller passed NoSum).
const NoSum = ^uint32(0)

// BlockSize is the number of postings per block for every shipped codec.
const BlockSize = 128

// ═══════════════════════════════════════════════════════════════════════════════
// THE BLOCK-CODEC CONTRACT
// ═══════════════════════════════════════════════════════════════════════════════
// A BlockCodec compresses runs of at most BlockSize() uint32 values.
//
// CONTRACT:
// ---------
//  1. Encode appends the codeword for in[:n] to out and returns the
//     extended slice. sumOfValues is the exact sum of in[:n] when the
//     caller knows it, NoSum otherwise.
//  2. Decode reads ONE codeword from in, writes exactly n values into
//     out[:n], and returns the unread tail. The caller must pass the
//     same n and sumOfValues it encoded with — block boundaries are
//     external knowledge, never stored by the codec.
//  3. Round-trip exactness: Decode(Encode(v)) == v for every valid v.
//
// SHORT TAILS:
// ------------
// When n < BlockSize() every codec delegates to the interpolative codec.
// Partial blocks are rare (one per list) and interpolative is the
// strongest coder at small n, so nothing is lost; crucially it means a
// decoder can detect "short tail" purely from the caller-supplied n.
// ═══════════════════════════════════════════════════════════════════════════════

// BlockCodec is the uniform contract every block codec implements.
type BlockCodec interface {
	// Name is the registry key, e.g. "block_optpfor".
	Name() string

	// BlockSize is the full block length N (128 for all shipped codecs).
	BlockSize() int

	// Encode appends the encoded form of in[:n] to out.
	// The caller guarantees 0 < n ≤ BlockSize().
	Encode(out []byte, in []uint32, sumOfValues uint32, n int) []byte

	// Decode reads one block into out[:n] and returns the unread tail.
	Decode(in []byte, out []uint32, sumOfValues uint32, n int) []byte
}

// ═══════════════════════════════════════════════════════════════════════════════
// CODEC REGISTRY
// ═══════════════════════════════════════════════════════════════════════════════
// The original keeps one generic index type per codec and enumerates the
// combinations with a preprocessor macro. Here the codecs are values
// behind one interface and a runtime lookup by name returns a handle;
// an index remembers the codec NAME it was built with and resolves it
// again at load time.
// ═══════════════════════════════════════════════════════════════════════════════

var blockCodecs = map[string]BlockCodec{}

// registerCodec adds a codec to the registry. Called from init()s below;
// panics on duplicates because that is always a programming error.
func registerCodec(c BlockCodec) {
	if _, dup := blockCodecs[c.Name()]; dup {
		panic("ember: duplicate codec " + c.Name())
	}
	blockCodecs[c.Name()] = c
}

// GetBlockCodec resolves a codec by registry name.
//
// Example:
//
//	codec, err := GetBlockCodec("block_simdbp")
//
// Returns ErrInvalidEncoding (wrapped with the offending name) when no
// codec is registered under name.
func GetBlockCodec(name string) (BlockCodec, error) {
	c, ok := blockCodecs[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidEncoding)
	}
	return c, nil
}

// BlockCodecNames lists every registered codec name in sorted order.
func BlockCodecNames() []string {
	names := make([]string, 0, len(blockCodecs))
	for name := range blockCodecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	registerCodec(interpolativeCodec{})
	registerCodec(varintGBCodec{})
	registerCodec(varintG8IUCodec{})
	registerCodec(streamVByteCodec{})
	registerCodec(maskedVByteCodec{})
	registerCodec(simple8bCodec{})
	registerCodec(simple16Codec{})
	registerCodec(optPForCodec{})
	registerCodec(simdBPCodec{})
	registerCodec(qmxCodec{})
	registerCodec(tightVByteCodec{})
}
