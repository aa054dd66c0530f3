package ember

// ═══════════════════════════════════════════════════════════════════════════════
// OPT-PFOR (patched frame of reference)
// ═══════════════════════════════════════════════════════════════════════════════
// PFor packs every value of a block at the SAME bit width b, and demotes
// the outliers that do not fit ("exceptions") to a side stream. OptPFor
// picks, per block, the b that minimises the total encoded size.
//
// WHY EXCEPTIONS?
// ---------------
// Gap distributions are skewed: most gaps are tiny, a few are huge. A
// plain frame-of-reference must pay the width of the WORST value for all
// 128; with a patch stream, one 20-bit outlier among 3-bit values costs
// a couple of side bytes instead of 17 extra bits × 128.
//
// BLOCK LAYOUT:
// -------------
//
//	[b: 1 byte][exceptions: 1 byte]
//	[128 low parts, b bits each, LSB-first packed]
//	[exception positions: 1 byte each]
//	[exception high parts (value >> b): tight vbyte each]
//
// The width is restricted to a preset log table (as the original's
// possLogs): widths outside the table buy nothing once exceptions exist.
// ═══════════════════════════════════════════════════════════════════════════════

// optPForLogs is the preset table of candidate widths.
var optPForLogs = []uint{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 16, 20, 32}

type optPForCodec struct{}

func (optPForCodec) Name() string   { return "block_optpfor" }
func (optPForCodec) BlockSize() int { return BlockSize }

// packBits appends n values at the given width, LSB-first, zero-padding
// the final byte. Shared with the SimdBp codec.
func packBits(out []byte, in []uint32, n int, width uint) []byte {
	if width == 0 {
		return out
	}
	var cur uint64
	var fill uint
	for i := 0; i < n; i++ {
		cur |= uint64(in[i]&(1<<width-1)) << fill
		fill += width
		for fill >= 8 {
			out = append(out, byte(cur))
			cur >>= 8
			fill -= 8
		}
	}
	if fill > 0 {
		out = append(out, byte(cur))
	}
	return out
}

// unpackBits reads n values at the given width and returns the unread
// tail of in.
func unpackBits(in []byte, out []uint32, n int, width uint) []byte {
	if width == 0 {
		for i := 0; i < n; i++ {
			out[i] = 0
		}
		return in
	}
	var cur uint64
	var fill uint
	pos := 0
	for i := 0; i < n; i++ {
		for fill < width {
			cur |= uint64(in[pos]) << fill
			pos++
			fill += 8
		}
		out[i] = uint32(cur & (1<<width - 1))
		cur >>= width
		fill -= width
	}
	return in[pos:]
}

// optPForCost returns the encoded size of in[:n] at width b, and whether
// the width is usable (at most 255 exceptions, positions fit a byte).
func optPForCost(in []uint32, n int, b uint) (int, bool) {
	cost := 2 + (n*int(b)+7)/8
	exceptions := 0
	for i := 0; i < n; i++ {
		var high uint32
		if b < 32 {
			high = in[i] >> b
		}
		if high != 0 || b == 0 && in[i] != 0 {
			if b == 0 {
				high = in[i]
			}
			exceptions++
			cost += 1 // position byte
			for v := high; ; v >>= 7 {
				cost++
				if v < 128 {
					break
				}
			}
		}
	}
	return cost, exceptions <= 255
}

func (optPForCodec) Encode(out []byte, in []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeEncode(out, in, sumOfValues, n)
	}

	// Pick the cheapest width from the log table. Ties go to the larger
	// width (fewer exceptions, cheaper decode).
	bestB := uint(32)
	bestCost := int(^uint(0) >> 1)
	for _, b := range optPForLogs {
		cost, ok := optPForCost(in, n, b)
		if ok && cost <= bestCost {
			bestB = b
			bestCost = cost
		}
	}

	var positions []byte
	var highs []byte
	for i := 0; i < n; i++ {
		var high uint32
		if bestB == 0 {
			high = in[i]
		} else if bestB < 32 {
			high = in[i] >> bestB
		}
		if high != 0 {
			positions = append(positions, byte(i))
			highs = vbyteAppend(highs, high)
		}
	}

	out = append(out, byte(bestB), byte(len(positions)))
	out = packBits(out, in, n, bestB)
	out = append(out, positions...)
	return append(out, highs...)
}

func (optPForCodec) Decode(in []byte, out []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeDecode(in, out, sumOfValues, n)
	}
	b := uint(in[0])
	exceptions := int(in[1])
	in = unpackBits(in[2:], out, n, b)

	positions := in[:exceptions]
	in = in[exceptions:]
	for _, pos := range positions {
		var high uint32
		high, in = vbyteRead(in)
		out[pos] |= high << b
	}
	return in
}
