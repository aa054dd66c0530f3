package ember

// ═══════════════════════════════════════════════════════════════════════════════
// BINARY INTERPOLATIVE CODING
// ═══════════════════════════════════════════════════════════════════════════════
// Interpolative coding compresses a SORTED sequence by recursion:
//
//  1. Encode the middle element with a fixed binary code, using only as
//     many bits as its possible range [low, high] requires.
//  2. Recurse on the left half with the middle as the new high bound,
//     and the right half with the middle as the new low bound.
//
// The deeper the recursion, the narrower the ranges — dense runs can cost
// ZERO bits per element (when high == low the value is forced and nothing
// is written at all).
//
// EXAMPLE:
// --------
// Sorted values [3, 8, 9, 11] with known upper bound 11:
//
//	middle = 9, range [0, 11]  → write 9 in 4 bits
//	left  [3, 8], bound [0, 9] → write 8 in 4 bits, then 3 in 4 bits
//	right [11], bound [9, 11]  → write 11−9 = 2 in 2 bits
//
// HOW POSTING BLOCKS USE IT:
// --------------------------
// Blocks arrive as gap values, so we first take prefix sums (a sorted
// sequence), then code all but the LAST prefix sum: the last one equals
// the sum of the block, which the caller either supplied (docid gaps —
// the decoder knows the block's span) or which we store as a vbyte
// prefix (frequencies).
//
// Every other codec delegates partial blocks (n < 128) here, so this is
// also the codec that handles each list's tail block.
//
// Reference: Moffat & Stuiver, "Binary Interpolative Coding for Effective
// Index Compression", Information Retrieval 3(1), 2000.
// ═══════════════════════════════════════════════════════════════════════════════

// writeInterpolative encodes vals[:n] (sorted, all within [low, high])
// into w. n counts the values to code; callers pass the prefix-sum array
// with its final element excluded.
func writeInterpolative(w *bitWriter, vals []uint32, n int, low, high uint32) {
	if n == 0 {
		return
	}
	h := n / 2
	val := vals[h]
	w.writeBits(val-low, ceilLog2(high-low))
	writeInterpolative(w, vals, h, low, val)
	writeInterpolative(w, vals[h+1:], n-h-1, val, high)
}

// readInterpolative is the exact mirror of writeInterpolative.
func readInterpolative(r *bitReader, out []uint32, n int, low, high uint32) {
	if n == 0 {
		return
	}
	h := n / 2
	val := low + r.readBits(ceilLog2(high-low))
	out[h] = val
	readInterpolative(r, out, h, low, val)
	readInterpolative(r, out[h+1:], n-h-1, val, high)
}

// interpolativeCodec is the registry entry for interpolative blocks.
type interpolativeCodec struct{}

func (interpolativeCodec) Name() string   { return "block_interpolative" }
func (interpolativeCodec) BlockSize() int { return BlockSize }

func (interpolativeCodec) Encode(out []byte, in []uint32, sumOfValues uint32, n int) []byte {
	return interpolativeEncode(out, in, sumOfValues, n)
}

func (interpolativeCodec) Decode(in []byte, out []uint32, sumOfValues uint32, n int) []byte {
	return interpolativeDecode(in, out, sumOfValues, n)
}

// interpolativeEncode appends one interpolative codeword for in[:n].
//
// Free functions rather than methods so the other codecs can fall back
// here for short tails without going through the registry.
func interpolativeEncode(out []byte, in []uint32, sumOfValues uint32, n int) []byte {
	// Step 1: prefix sums — interpolative wants a sorted sequence.
	var prefix [BlockSize]uint32
	prefix[0] = in[0]
	for i := 1; i < n; i++ {
		prefix[i] = prefix[i-1] + in[i]
	}

	// Step 2: when the caller has no bound, the block's own sum becomes
	// the bound and travels as a vbyte prefix.
	if sumOfValues == NoSum {
		sumOfValues = prefix[n-1]
		out = vbyteAppend(out, sumOfValues)
	}

	// Step 3: code the first n−1 prefix sums against [0, sum]; the last
	// prefix sum IS the sum and costs nothing.
	w := newBitWriter(nil)
	writeInterpolative(w, prefix[:], n-1, 0, sumOfValues)
	return append(out, w.finish()...)
}

// interpolativeDecode reads one codeword into out[:n] and returns the
// unread tail of in.
func interpolativeDecode(in []byte, out []uint32, sumOfValues uint32, n int) []byte {
	if sumOfValues == NoSum {
		sumOfValues, in = vbyteRead(in)
	}

	out[n-1] = sumOfValues
	if n > 1 {
		r := newBitReader(in)
		readInterpolative(r, out, n-1, 0, sumOfValues)
		in = in[r.bytesConsumed():]

		// Undo the prefix sums, back to gaps.
		for i := n - 1; i > 0; i-- {
			out[i] -= out[i-1]
		}
	}
	return in
}
