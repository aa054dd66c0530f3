package ember

// ═══════════════════════════════════════════════════════════════════════════════
// SIMD-BP128
// ═══════════════════════════════════════════════════════════════════════════════
// The simplest possible full-block layout: one byte with the block's
// maximum bit width b, then all 128 values packed at exactly b bits.
//
//	[b: 1 byte][128 values × b bits = 16·b bytes]
//
// Every block therefore costs exactly 16·b + 1 bytes. The reference
// implementation fills 128-bit SIMD lanes; here the block size is the
// same, but the values are packed in order, LSB-first, by scalar code.
//
// No exceptions, no tuning: SimdBp trades compression (one outlier
// widens the whole block) for the fastest decode of the codec family.
//
// Reference: Lemire & Boytsov, "Decoding billions of integers per second
// through vectorization", Software: Practice & Experience 45(1), 2015.
// ═══════════════════════════════════════════════════════════════════════════════

import "math/bits"

type simdBPCodec struct{}

func (simdBPCodec) Name() string   { return "block_simdbp" }
func (simdBPCodec) BlockSize() int { return BlockSize }

// maxBits returns the width of the widest value in in[:n].
func maxBits(in []uint32, n int) uint {
	var or uint32
	for i := 0; i < n; i++ {
		or |= in[i]
	}
	return uint(bits.Len32(or))
}

func (simdBPCodec) Encode(out []byte, in []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeEncode(out, in, sumOfValues, n)
	}
	b := maxBits(in, n)
	out = append(out, byte(b))
	return packBits(out, in, n, b)
}

func (simdBPCodec) Decode(in []byte, out []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeDecode(in, out, sumOfValues, n)
	}
	b := uint(in[0])
	return unpackBits(in[1:], out, n, b)
}
