package ember

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ELIAS–FANO MONOTONE SEQUENCES
// ═══════════════════════════════════════════════════════════════════════════════
// The index stores every posting list in one concatenated byte blob and
// needs the start offset of list i. Those offsets are a non-decreasing
// sequence — exactly what Elias–Fano compresses to within half a bit per
// element of the information-theoretic optimum, while keeping O(1)-ish
// random access.
//
// HOW IT WORKS:
// -------------
// Split each value into LOW bits (fixed width ℓ ≈ log2(universe/n)) and
// HIGH bits. The low halves go into a plain packed array. The high
// halves are unary-coded into a bit vector: value i sets bit high(i)+i.
// Because the sequence is monotone, the set bits appear in order and
// Access(i) reduces to "find the i-th set bit".
//
// EXAMPLE (values [3, 5, 9, 13], universe 16, n 4 → ℓ = 2):
//
//	lows:  [11, 01, 01, 01]           (packed, 2 bits each)
//	highs: values>>2 = [0, 1, 2, 3] → bits at 0+0, 1+1, 2+2, 3+3
//	       = 1010101 0...             (unary "gaps" of the high halves)
//
// SELECT:
// -------
// Access(i) needs select₁(i) on the high bits. A position sample every
// 256-th set bit bounds the scan to four words of popcount on average.
// ═══════════════════════════════════════════════════════════════════════════════

// efSampleRate is the select-sample spacing (one sample per 256 set bits).
const efSampleRate = 256

// EliasFano is an immutable compressed monotone sequence.
type EliasFano struct {
	n        int
	universe uint64
	lowWidth uint
	lows     []uint64 // packed ℓ-bit halves
	highs    []uint64 // unary-coded high halves
	samples  []uint32 // bit position of every 256-th set bit
}

// EncodeEliasFano compresses values (non-decreasing, each ≤ universe).
func EncodeEliasFano(values []uint64, universe uint64) (*EliasFano, error) {
	n := len(values)
	if n == 0 {
		return nil, fmt.Errorf("empty sequence: %w", ErrInvalidArgument)
	}
	for i, v := range values {
		if v > universe || (i > 0 && v < values[i-1]) {
			return nil, fmt.Errorf("sequence not monotone within universe at %d: %w", i, ErrInvalidArgument)
		}
	}

	var lowWidth uint
	if universe/uint64(n) > 0 {
		lowWidth = uint(bits.Len64(universe/uint64(n))) - 1
	}

	ef := &EliasFano{
		n:        n,
		universe: universe,
		lowWidth: lowWidth,
		lows:     make([]uint64, (n*int(lowWidth)+63)/64),
		highs:    make([]uint64, int(uint64(n)+(universe>>lowWidth))/64+1),
	}

	ones := 0
	for i, v := range values {
		if lowWidth > 0 {
			setBitField(ef.lows, uint(i)*lowWidth, lowWidth, v&(1<<lowWidth-1))
		}
		pos := uint(v>>lowWidth) + uint(i)
		ef.highs[pos/64] |= 1 << (pos % 64)
		if ones%efSampleRate == 0 {
			ef.samples = append(ef.samples, uint32(pos))
		}
		ones++
	}
	return ef, nil
}

// Len returns the number of values in the sequence.
func (ef *EliasFano) Len() int { return ef.n }

// Access returns the i-th value.
func (ef *EliasFano) Access(i int) uint64 {
	// select₁(i): jump to the nearest sample, then popcount forward.
	pos := uint(ef.samples[i/efSampleRate])
	rank := i / efSampleRate * efSampleRate
	word := pos / 64
	cur := ef.highs[word] >> (pos % 64) << (pos % 64) // clear bits below pos
	for {
		count := bits.OnesCount64(cur)
		if rank+count > i {
			break
		}
		rank += count
		word++
		cur = ef.highs[word]
	}
	// The (i−rank)-th set bit of cur is the one we want.
	for ; rank < i; rank++ {
		cur &= cur - 1
	}
	bitPos := uint(word)*64 + uint(bits.TrailingZeros64(cur))

	high := uint64(bitPos - uint(i))
	if ef.lowWidth == 0 {
		return high
	}
	return high<<ef.lowWidth | getBitField(ef.lows, uint(i)*ef.lowWidth, ef.lowWidth)
}

// setBitField writes width bits of v at bit offset off (LSB-first words).
func setBitField(words []uint64, off, width uint, v uint64) {
	words[off/64] |= v << (off % 64)
	if off%64+width > 64 {
		words[off/64+1] |= v >> (64 - off%64)
	}
}

// getBitField reads width bits at bit offset off.
func getBitField(words []uint64, off, width uint) uint64 {
	v := words[off/64] >> (off % 64)
	if off%64+width > 64 {
		v |= words[off/64+1] << (64 - off%64)
	}
	return v & (1<<width - 1)
}

// ═══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE
// ═══════════════════════════════════════════════════════════════════════════════
// Fixed-width little-endian layout; writer and reader must stay
// byte-exact mirrors of each other:
//
//	[n: u64][universe: u64][lowWidth: u8]
//	[lows: u64 count + words][highs: u64 count + words]
//	[samples: u32 count + entries]
// ═══════════════════════════════════════════════════════════════════════════════

// AppendBytes serializes the sequence onto out.
func (ef *EliasFano) AppendBytes(out []byte) []byte {
	out = binary.LittleEndian.AppendUint64(out, uint64(ef.n))
	out = binary.LittleEndian.AppendUint64(out, ef.universe)
	out = append(out, byte(ef.lowWidth))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(ef.lows)))
	for _, w := range ef.lows {
		out = binary.LittleEndian.AppendUint64(out, w)
	}
	out = binary.LittleEndian.AppendUint64(out, uint64(len(ef.highs)))
	for _, w := range ef.highs {
		out = binary.LittleEndian.AppendUint64(out, w)
	}
	out = appendU32(out, uint32(len(ef.samples)))
	for _, s := range ef.samples {
		out = appendU32(out, s)
	}
	return out
}

// ParseEliasFano reads a sequence back and returns the unread tail.
func ParseEliasFano(data []byte) (*EliasFano, []byte, error) {
	if len(data) < 17 {
		return nil, nil, fmt.Errorf("elias-fano header truncated: %w", ErrCorruptIndex)
	}
	ef := &EliasFano{
		n:        int(binary.LittleEndian.Uint64(data[0:8])),
		universe: binary.LittleEndian.Uint64(data[8:16]),
		lowWidth: uint(data[16]),
	}
	data = data[17:]

	readWords := func(d []byte) ([]uint64, []byte, error) {
		if len(d) < 8 {
			return nil, nil, fmt.Errorf("elias-fano truncated: %w", ErrCorruptIndex)
		}
		count := int(binary.LittleEndian.Uint64(d[0:8]))
		d = d[8:]
		if len(d) < 8*count {
			return nil, nil, fmt.Errorf("elias-fano truncated: %w", ErrCorruptIndex)
		}
		words := make([]uint64, count)
		for i := range words {
			words[i] = binary.LittleEndian.Uint64(d[8*i : 8*i+8])
		}
		return words, d[8*count:], nil
	}

	var err error
	if ef.lows, data, err = readWords(data); err != nil {
		return nil, nil, err
	}
	if ef.highs, data, err = readWords(data); err != nil {
		return nil, nil, err
	}
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("elias-fano truncated: %w", ErrCorruptIndex)
	}
	count := int(readU32(data, 0))
	data = data[4:]
	if len(data) < 4*count {
		return nil, nil, fmt.Errorf("elias-fano truncated: %w", ErrCorruptIndex)
	}
	ef.samples = make([]uint32, count)
	for i := range ef.samples {
		ef.samples[i] = readU32(data, 4*i)
	}
	return ef, data[4*count:], nil
}
