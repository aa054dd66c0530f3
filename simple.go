package ember

import "encoding/binary"

// ═══════════════════════════════════════════════════════════════════════════════
// SIMPLE-FAMILY CODECS
// ═══════════════════════════════════════════════════════════════════════════════
// The "Simple" codecs pack as many values as possible into one machine
// word, spending 4 bits on a SELECTOR that says how the remaining bits
// are split:
//
//	Simple8b → 64-bit words: 4-bit selector + 60 data bits
//	Simple16 → 32-bit words: 4-bit selector + 28 data bits
//
// EXAMPLE (Simple8b):
// -------------------
// Sixty 1-bit values? One word (selector "60×1").
// Two 30-bit values?  One word (selector "2×30").
//
// The win over vbyte: decoding a word is selector-dispatch plus fixed
// shifts — no per-byte branches. The cost: a value's width is rounded up
// to the word's configuration.
//
// Reference: Anh & Moffat, "Index compression using 64-bit words",
// Software: Practice & Experience 40(2), 2010.
// ═══════════════════════════════════════════════════════════════════════════════

// simple8bSelectors lists (count, width) per selector. Selectors 0 and 1
// are run-of-zeros forms; the rest satisfy count·width ≤ 60.
var simple8bSelectors = [16]struct{ count, width int }{
	{240, 0}, {120, 0}, {60, 1}, {30, 2}, {20, 3}, {15, 4}, {12, 5}, {10, 6},
	{8, 7}, {7, 8}, {6, 10}, {5, 12}, {4, 15}, {3, 20}, {2, 30}, {1, 60},
}

type simple8bCodec struct{}

func (simple8bCodec) Name() string   { return "block_simple8b" }
func (simple8bCodec) BlockSize() int { return BlockSize }

func (simple8bCodec) Encode(out []byte, in []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeEncode(out, in, sumOfValues, n)
	}
	pos := 0
	for pos < n {
		// Greedy: first selector (densest first) whose full count of
		// values is available and fits its width.
		for sel, cfg := range simple8bSelectors {
			if cfg.count > n-pos {
				continue
			}
			fits := true
			for i := 0; i < cfg.count; i++ {
				if cfg.width == 0 {
					if in[pos+i] != 0 {
						fits = false
						break
					}
				} else if uint64(in[pos+i]) >= uint64(1)<<cfg.width {
					fits = false
					break
				}
			}
			if !fits {
				continue
			}
			word := uint64(sel) << 60
			for i := 0; i < cfg.count; i++ {
				word |= uint64(in[pos+i]) << (i * cfg.width)
			}
			out = binary.LittleEndian.AppendUint64(out, word)
			pos += cfg.count
			break
		}
	}
	return out
}

func (simple8bCodec) Decode(in []byte, out []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeDecode(in, out, sumOfValues, n)
	}
	pos := 0
	for pos < n {
		word := binary.LittleEndian.Uint64(in[:8])
		in = in[8:]
		cfg := simple8bSelectors[word>>60]
		if cfg.width == 0 {
			for i := 0; i < cfg.count; i++ {
				out[pos+i] = 0
			}
		} else {
			mask := uint64(1)<<cfg.width - 1
			for i := 0; i < cfg.count; i++ {
				out[pos+i] = uint32(word >> (i * cfg.width) & mask)
			}
		}
		pos += cfg.count
	}
	return in
}

// ───────────────────────────────────────────────────────────────────────────────
// SIMPLE16
// ───────────────────────────────────────────────────────────────────────────────
// Sixteen fixed splits of the 28 data bits. Unlike Simple8b the widths
// within one word may differ (e.g. "7×2 then 14×1"), which adapts better
// to the skewed gap distributions of posting lists.
//
// A partially filled word is allowed at the end of a block: the decoder
// knows how many values remain and reads only those slots.
//
// Values must fit in 28 bits — the posting write path never produces
// larger gaps for any universe this codec is paired with.

// simple16Widths holds the per-slot bit widths for each selector.
var simple16Widths = [16][]int{
	{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
	{2, 2, 2, 2, 2, 2, 2, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
	{1, 1, 1, 1, 1, 1, 1, 2, 2, 2, 2, 2, 2, 2, 1, 1, 1, 1, 1, 1, 1},
	{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 2, 2, 2, 2, 2, 2, 2},
	{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2},
	{4, 3, 3, 3, 3, 3, 3, 3, 3},
	{3, 4, 4, 4, 4, 3, 3, 3},
	{4, 4, 4, 4, 4, 4, 4},
	{5, 5, 5, 5, 4, 4},
	{4, 4, 5, 5, 5, 5},
	{6, 6, 6, 5, 5},
	{5, 5, 6, 6, 6},
	{7, 7, 7, 7},
	{10, 9, 9},
	{14, 14},
	{28},
}

type simple16Codec struct{}

func (simple16Codec) Name() string   { return "block_simple16" }
func (simple16Codec) BlockSize() int { return BlockSize }

func (simple16Codec) Encode(out []byte, in []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeEncode(out, in, sumOfValues, n)
	}
	pos := 0
	for pos < n {
		for sel, widths := range simple16Widths {
			take := len(widths)
			if take > n-pos {
				take = n - pos
			}
			fits := true
			for i := 0; i < take; i++ {
				if in[pos+i] >= 1<<widths[i] {
					fits = false
					break
				}
			}
			if !fits {
				continue
			}
			word := uint32(sel) << 28
			shift := 0
			for i := 0; i < take; i++ {
				word |= in[pos+i] << shift
				shift += widths[i]
			}
			out = appendU32(out, word)
			pos += take
			break
		}
	}
	return out
}

func (simple16Codec) Decode(in []byte, out []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeDecode(in, out, sumOfValues, n)
	}
	pos := 0
	for pos < n {
		word := readU32(in, 0)
		in = in[4:]
		widths := simple16Widths[word>>28]
		take := len(widths)
		if take > n-pos {
			take = n - pos
		}
		shift := 0
		for i := 0; i < take; i++ {
			out[pos+i] = word >> shift & (1<<widths[i] - 1)
			shift += widths[i]
		}
		pos += take
	}
	return in
}
