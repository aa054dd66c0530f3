package ember

// ═══════════════════════════════════════════════════════════════════════════════
// QMX (quantities, multipliers, extractor)
// ═══════════════════════════════════════════════════════════════════════════════
// QMX splits a block into 16-value units, packs each unit at its own bit
// width, and run-length-compresses the width stream: a SELECTOR byte
// carries a width code in its high nibble and a repeat count in its low
// nibble, so a stretch of uniform units costs one selector for all of
// them.
//
// BLOCK LAYOUT:
// -------------
// A sequence of segments, each:
//
//	[selector: width index (high 4 bits) | run−1 (low 4 bits)]
//	[run × 16 values packed at that width]
//
// The width index points into a fixed 15-entry table; a unit's width is
// rounded UP to the nearest table entry. The decoder needs no length
// header: it stops after producing n values.
//
// EXAMPLE:
// --------
// 128 values where units 0–5 need ≤4 bits and units 6–7 need ≤10:
//
//	[sel w=4  run=6][96 values × 4 bits]
//	[sel w=10 run=2][32 values × 10 bits]
//
// Total: 2 + 48 + 40 = 90 bytes instead of 128 × 4 for raw u32.
//
// Reference: Trotman, "Compression, SIMD, and postings lists", ADCS 2014.
// The payload here is packed in scalar lanes; the selector/run structure
// and the unit granularity are the QMX shape.
// ═══════════════════════════════════════════════════════════════════════════════

// qmxUnit is the number of values packed per width decision.
const qmxUnit = 16

// qmxWidths is the width table indexed by the selector's high nibble.
var qmxWidths = [15]uint{0, 1, 2, 3, 4, 5, 6, 7, 8, 10, 12, 16, 20, 26, 32}

// qmxWidthIndex returns the smallest table index whose width covers w.
func qmxWidthIndex(w uint) int {
	for i, tw := range qmxWidths {
		if tw >= w {
			return i
		}
	}
	return len(qmxWidths) - 1
}

type qmxCodec struct{}

func (qmxCodec) Name() string   { return "block_qmx" }
func (qmxCodec) BlockSize() int { return BlockSize }

func (qmxCodec) Encode(out []byte, in []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeEncode(out, in, sumOfValues, n)
	}

	// Width index of each 16-value unit.
	units := n / qmxUnit
	var widthIdx [BlockSize / qmxUnit]int
	for u := 0; u < units; u++ {
		widthIdx[u] = qmxWidthIndex(maxBits(in[u*qmxUnit:], qmxUnit))
	}

	// Merge adjacent units with equal widths into runs of up to 16.
	for u := 0; u < units; {
		run := 1
		for u+run < units && widthIdx[u+run] == widthIdx[u] && run < 16 {
			run++
		}
		w := qmxWidths[widthIdx[u]]
		out = append(out, byte(widthIdx[u])<<4|byte(run-1))
		out = packBits(out, in[u*qmxUnit:], run*qmxUnit, w)
		u += run
	}
	return out
}

func (qmxCodec) Decode(in []byte, out []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeDecode(in, out, sumOfValues, n)
	}
	pos := 0
	for pos < n {
		sel := in[0]
		in = in[1:]
		w := qmxWidths[sel>>4]
		count := (int(sel&0x0F) + 1) * qmxUnit
		in = unpackBits(in, out[pos:], count, w)
		pos += count
	}
	return in
}
