package ember

// ═══════════════════════════════════════════════════════════════════════════════
// BYTE-ALIGNED CODECS
// ═══════════════════════════════════════════════════════════════════════════════
// Four members of the variable-byte family plus the plain tight-vbyte
// codec. They trade a little space for byte-aligned, branch-light
// decoding:
//
//	block_vbyte       → 7+1 bits per byte, one value at a time
//	block_maskedvbyte → classic continuation-bit vbyte stream
//	block_varintgb    → groups of 4 values, 1 key byte + 4..16 data bytes
//	block_streamvbyte → all key bytes first, then all data bytes
//	block_varintg8iu  → fixed 9-byte groups: 1 descriptor + 8 data bytes
//
// Every one of them delegates short tails (n < 128) to the interpolative
// codec, so only full blocks ever hit the fast layouts.
// ═══════════════════════════════════════════════════════════════════════════════

// ───────────────────────────────────────────────────────────────────────────────
// TIGHT VARIABLE-BYTE
// ───────────────────────────────────────────────────────────────────────────────

type tightVByteCodec struct{}

func (tightVByteCodec) Name() string   { return "block_vbyte" }
func (tightVByteCodec) BlockSize() int { return BlockSize }

func (tightVByteCodec) Encode(out []byte, in []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeEncode(out, in, sumOfValues, n)
	}
	for i := 0; i < n; i++ {
		out = vbyteAppend(out, in[i])
	}
	return out
}

func (tightVByteCodec) Decode(in []byte, out []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeDecode(in, out, sumOfValues, n)
	}
	for i := 0; i < n; i++ {
		out[i], in = vbyteRead(in)
	}
	return in
}

// ───────────────────────────────────────────────────────────────────────────────
// MASKED VBYTE
// ───────────────────────────────────────────────────────────────────────────────
// The MaskedVByte scheme keeps the classic vbyte wire format (low 7 bits
// per byte, HIGH BIT SET means "more bytes follow") and gets its speed
// from how it decodes, not from a different layout. That keeps the
// format here byte-identical to a plain continuation-bit vbyte stream.

type maskedVByteCodec struct{}

func (maskedVByteCodec) Name() string   { return "block_maskedvbyte" }
func (maskedVByteCodec) BlockSize() int { return BlockSize }

func (maskedVByteCodec) Encode(out []byte, in []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeEncode(out, in, sumOfValues, n)
	}
	for i := 0; i < n; i++ {
		v := in[i]
		for v >= 128 {
			out = append(out, byte(v)|0x80)
			v >>= 7
		}
		out = append(out, byte(v))
	}
	return out
}

func (maskedVByteCodec) Decode(in []byte, out []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeDecode(in, out, sumOfValues, n)
	}
	for i := 0; i < n; i++ {
		var v uint32
		var shift uint
		for {
			b := in[0]
			in = in[1:]
			v |= uint32(b&0x7F) << shift
			if b < 0x80 {
				break
			}
			shift += 7
		}
		out[i] = v
	}
	return in
}

// ───────────────────────────────────────────────────────────────────────────────
// VARINT-GB (group varint)
// ───────────────────────────────────────────────────────────────────────────────
// Values travel in groups of four. Each group starts with one KEY byte
// holding four 2-bit length codes (byte count − 1), followed by the
// 1–4 data bytes of each value in order.
//
// EXAMPLE:
// --------
// Values [5, 300, 70000, 9]:
//
//	lengths  [1, 2, 3, 1] → key = 0b00_10_01_00
//	payload  [05] [2C 01] [70 11 01] [09]
//
// One branch per value on decode, and the group length is known from
// the key byte alone.

type varintGBCodec struct{}

func (varintGBCodec) Name() string   { return "block_varintgb" }
func (varintGBCodec) BlockSize() int { return BlockSize }

// varintGBLen returns the 2-bit length code for v (stored bytes − 1).
func varintGBLen(v uint32) uint {
	switch {
	case v < 1<<8:
		return 0
	case v < 1<<16:
		return 1
	case v < 1<<24:
		return 2
	default:
		return 3
	}
}

func (varintGBCodec) Encode(out []byte, in []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeEncode(out, in, sumOfValues, n)
	}
	for k := 0; k < n; k += 4 {
		group := in[k : k+4]
		var key byte
		for j, v := range group {
			key |= byte(varintGBLen(v)) << (2 * j)
		}
		out = append(out, key)
		for _, v := range group {
			nbytes := varintGBLen(v) + 1
			for b := uint(0); b < nbytes; b++ {
				out = append(out, byte(v>>(8*b)))
			}
		}
	}
	return out
}

func (varintGBCodec) Decode(in []byte, out []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeDecode(in, out, sumOfValues, n)
	}
	for k := 0; k < n; k += 4 {
		key := in[0]
		in = in[1:]
		for j := 0; j < 4; j++ {
			nbytes := uint(key&3) + 1
			key >>= 2
			var v uint32
			for b := uint(0); b < nbytes; b++ {
				v |= uint32(in[b]) << (8 * b)
			}
			in = in[nbytes:]
			out[k+j] = v
		}
	}
	return in
}

// ───────────────────────────────────────────────────────────────────────────────
// STREAM VBYTE
// ───────────────────────────────────────────────────────────────────────────────
// Same 2-bit length codes as VarintGB, but ALL key bytes come first and
// all data bytes follow. Separating control from data is what lets the
// reference implementation decode with wide loads; the layout is the
// point, so it is preserved exactly:
//
//	[key bytes: ⌈n/4⌉] [data bytes: Σ(len_i)]

type streamVByteCodec struct{}

func (streamVByteCodec) Name() string   { return "block_streamvbyte" }
func (streamVByteCodec) BlockSize() int { return BlockSize }

func (streamVByteCodec) Encode(out []byte, in []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeEncode(out, in, sumOfValues, n)
	}
	// Control stream.
	for k := 0; k < n; k += 4 {
		var key byte
		for j := 0; j < 4; j++ {
			key |= byte(varintGBLen(in[k+j])) << (2 * j)
		}
		out = append(out, key)
	}
	// Data stream.
	for i := 0; i < n; i++ {
		v := in[i]
		nbytes := varintGBLen(v) + 1
		for b := uint(0); b < nbytes; b++ {
			out = append(out, byte(v>>(8*b)))
		}
	}
	return out
}

func (streamVByteCodec) Decode(in []byte, out []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeDecode(in, out, sumOfValues, n)
	}
	keys := in[:n/4]
	data := in[n/4:]
	for i := 0; i < n; i++ {
		nbytes := uint(keys[i/4]>>(2*(i%4))&3) + 1
		var v uint32
		for b := uint(0); b < nbytes; b++ {
			v |= uint32(data[b]) << (8 * b)
		}
		data = data[nbytes:]
		out[i] = v
	}
	return data
}

// ───────────────────────────────────────────────────────────────────────────────
// VARINT-G8IU
// ───────────────────────────────────────────────────────────────────────────────
// Fixed nine-byte groups: one descriptor byte, then exactly eight data
// bytes. Descriptor bit i is SET when data byte i is the last byte of a
// value. A value never spans two groups ("incomplete unary"): when the
// next value does not fit in the remaining data bytes, the rest of the
// group is padding (descriptor bits clear, bytes zero).
//
// EXAMPLE (values 5, 300, 70000):
//
//	data  [05 | 2C 01 | 70 11 01 | 00 00]
//	desc   1    0  1    0  0  1    0  0   → 0b00100101... bit per byte
//
// The decoder pops a whole group, walks its bits, and stops once n
// values have been produced.

type varintG8IUCodec struct{}

func (varintG8IUCodec) Name() string   { return "block_varintg8iu" }
func (varintG8IUCodec) BlockSize() int { return BlockSize }

func (varintG8IUCodec) Encode(out []byte, in []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeEncode(out, in, sumOfValues, n)
	}
	i := 0
	for i < n {
		var desc byte
		var data [8]byte
		pos := 0
		for i < n {
			nbytes := int(varintGBLen(in[i])) + 1
			if pos+nbytes > 8 {
				break // value does not fit; pad and start a new group
			}
			v := in[i]
			for b := 0; b < nbytes; b++ {
				data[pos+b] = byte(v >> (8 * b))
			}
			desc |= 1 << (pos + nbytes - 1)
			pos += nbytes
			i++
		}
		out = append(out, desc)
		out = append(out, data[:]...)
	}
	return out
}

func (varintG8IUCodec) Decode(in []byte, out []uint32, sumOfValues uint32, n int) []byte {
	if n < BlockSize {
		return interpolativeDecode(in, out, sumOfValues, n)
	}
	decoded := 0
	for decoded < n {
		desc := in[0]
		data := in[1:9]
		in = in[9:]
		var v uint32
		var shift uint
		for b := 0; b < 8 && decoded < n; b++ {
			v |= uint32(data[b]) << shift
			if desc&(1<<b) != 0 {
				out[decoded] = v
				decoded++
				v = 0
				shift = 0
			} else {
				shift += 8
			}
		}
	}
	return in
}
