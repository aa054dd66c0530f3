package ember

import (
	"errors"
	"math/rand"
	"testing"
)

// assertErrorIs fails the test when err does not wrap want.
func assertErrorIs(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want %v", err, want)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// BLOCK CODEC TESTS
// ═══════════════════════════════════════════════════════════════════════════════
// The one law every codec must obey: Decode(Encode(v)) == v, for full
// blocks, short tails, and every value shape a posting list produces.
// ═══════════════════════════════════════════════════════════════════════════════

// roundTrip encodes in with the codec, decodes it back, and checks both
// the values and that decode consumed exactly the encoded bytes.
func roundTrip(t *testing.T, codec BlockCodec, in []uint32, sumOfValues uint32) {
	t.Helper()
	n := len(in)

	// Surround the codeword with sentinel bytes so a codec reading past
	// its own output is caught by the tail check.
	encoded := codec.Encode([]byte{0xAB}, in, sumOfValues, n)
	encoded = append(encoded, 0xCD)

	out := make([]uint32, codec.BlockSize())
	tail := codec.Decode(encoded[1:], out, sumOfValues, n)

	if len(tail) != 1 || tail[0] != 0xCD {
		t.Fatalf("%s: decode consumed %d bytes, encoded %d",
			codec.Name(), len(encoded)-1-len(tail), len(encoded)-2)
	}
	for i := 0; i < n; i++ {
		if out[i] != in[i] {
			t.Fatalf("%s: value %d = %d, want %d", codec.Name(), i, out[i], in[i])
		}
	}
}

// sum returns the exact sum of values, as the posting writer computes it
// for docid-gap blocks.
func sum(values []uint32) uint32 {
	var s uint32
	for _, v := range values {
		s += v
	}
	return s
}

func TestBlockCodec_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, name := range BlockCodecNames() {
		codec, err := GetBlockCodec(name)
		if err != nil {
			t.Fatalf("GetBlockCodec(%q): %v", name, err)
		}

		t.Run(name, func(t *testing.T) {
			// Lengths that exercise both the fast path (n = B) and the
			// interpolative tail path (everything shorter).
			for _, n := range []int{1, 2, BlockSize - 1, BlockSize} {
				for trial := 0; trial < 10; trial++ {
					values := make([]uint32, n)
					for i := range values {
						values[i] = uint32(rng.Intn(1<<12-1) + 1)
					}
					// Both sum modes: known (docid gaps) and unknown (freqs).
					roundTrip(t, codec, values, sum(values))
					roundTrip(t, codec, values, NoSum)
				}
			}
		})
	}
}

func TestBlockCodec_RoundTrip_Zeros(t *testing.T) {
	// Frequency blocks are (freq−1) biased, so all-zero blocks are the
	// NORM for typical collections, not an edge case.
	for _, name := range BlockCodecNames() {
		codec, _ := GetBlockCodec(name)
		t.Run(name, func(t *testing.T) {
			for _, n := range []int{1, BlockSize} {
				values := make([]uint32, n)
				roundTrip(t, codec, values, NoSum)
				roundTrip(t, codec, values, sum(values))
			}
		})
	}
}

func TestBlockCodec_RoundTrip_WideValues(t *testing.T) {
	// Gap blocks of sparse terms in big collections carry large values;
	// make sure high bit widths survive.
	rng := rand.New(rand.NewSource(7))
	for _, name := range BlockCodecNames() {
		codec, _ := GetBlockCodec(name)
		t.Run(name, func(t *testing.T) {
			values := make([]uint32, BlockSize)
			for i := range values {
				// Up to 24 bits: the widest gaps a u32 universe block
				// can sum without overflowing the gap universe.
				values[i] = rng.Uint32() >> (8 + rng.Intn(16))
			}
			roundTrip(t, codec, values, NoSum)
			roundTrip(t, codec, values, sum(values))
		})
	}
}

func TestBlockCodec_ShortTailMatchesInterpolative(t *testing.T) {
	// Every codec delegates n < B to interpolative, byte for byte: a
	// short tail written by one codec must be readable as interpolative.
	interp, _ := GetBlockCodec("block_interpolative")
	values := []uint32{3, 0, 7, 1, 1, 0, 12}

	for _, name := range BlockCodecNames() {
		codec, _ := GetBlockCodec(name)
		got := codec.Encode(nil, values, NoSum, len(values))
		want := interp.Encode(nil, values, NoSum, len(values))
		if string(got) != string(want) {
			t.Errorf("%s: short-tail encoding differs from interpolative", name)
		}
	}
}

func TestGetBlockCodec_UnknownName(t *testing.T) {
	_, err := GetBlockCodec("block_nonexistent")
	if err == nil {
		t.Fatal("GetBlockCodec() should fail for unknown codec")
	}
	assertErrorIs(t, err, ErrInvalidEncoding)
}

func TestBlockCodecNames_Sorted(t *testing.T) {
	names := BlockCodecNames()
	if len(names) < 10 {
		t.Fatalf("registry holds %d codecs, want at least 10", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i] <= names[i-1] {
			t.Errorf("names not sorted: %q before %q", names[i-1], names[i])
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PRIMITIVE TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestVByte_RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 300, 16383, 16384, 1 << 20, ^uint32(0)} {
		buf := vbyteAppend(nil, v)
		got, tail := vbyteRead(buf)
		if got != v || len(tail) != 0 {
			t.Errorf("vbyte(%d) = %d with %d tail bytes", v, got, len(tail))
		}
	}
}

func TestBitWriter_RoundTrip(t *testing.T) {
	w := newBitWriter(nil)
	w.writeBits(5, 3)
	w.writeBits(0, 0) // zero-width writes nothing
	w.writeBits(1023, 10)
	w.writeBits(1, 1)
	buf := w.finish()

	r := newBitReader(buf)
	if got := r.readBits(3); got != 5 {
		t.Errorf("readBits(3) = %d, want 5", got)
	}
	if got := r.readBits(0); got != 0 {
		t.Errorf("readBits(0) = %d, want 0", got)
	}
	if got := r.readBits(10); got != 1023 {
		t.Errorf("readBits(10) = %d, want 1023", got)
	}
	if got := r.readBits(1); got != 1 {
		t.Errorf("readBits(1) = %d, want 1", got)
	}
	if r.bytesConsumed() != len(buf) {
		t.Errorf("bytesConsumed() = %d, want %d", r.bytesConsumed(), len(buf))
	}
}

func TestCeilLog2(t *testing.T) {
	cases := []struct {
		u    uint32
		want uint
	}{
		{0, 0}, {1, 1}, {2, 2}, {3, 2}, {4, 3}, {7, 3}, {8, 4}, {255, 8}, {256, 9},
	}
	for _, c := range cases {
		if got := ceilLog2(c.u); got != c.want {
			t.Errorf("ceilLog2(%d) = %d, want %d", c.u, got, c.want)
		}
	}
}
