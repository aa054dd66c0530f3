package ember

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SERIALIZATION: Saving and Loading Index Structures
// ═══════════════════════════════════════════════════════════════════════════════
// Both on-disk structures use a custom little-endian binary format.
// Byte-exact writer/reader compatibility is a hard requirement: the
// reader is these functions run in reverse, nothing is inferred.
//
// INVERTED INDEX FILE:
// --------------------
//
//	[magic "EMBRIDX1"]
//	[codec name: u32 length + bytes]
//	[numDocs: u32]
//	[endpoint sequence: Elias–Fano, see eliasfano.go]
//	[lists: u64 length + the posting-list blob]
//
// WAND DATA FILE:
// ---------------
//
//	[magic "EMBRWND1"]
//	[numDocs: u32][avgLen: f32][collectionLen: u64]
//	[docLens: numDocs × u32]
//	[scorer name: u32 length + bytes][quantBits: u8][quantMax: f32]
//	[numTerms: u32]
//	per term:
//	  [postingCount: u32][occurrenceCount: u32][maxScore: f32]
//	  [blockCount: u32] then per block [lastDocID: u32][maxScore: f32]
//
// A loaded index BORROWS the posting blob from the input buffer — load
// from a MemorySource and keep it open for the index's lifetime.
// ═══════════════════════════════════════════════════════════════════════════════

var (
	indexMagic = [8]byte{'E', 'M', 'B', 'R', 'I', 'D', 'X', '1'}
	wandMagic  = [8]byte{'E', 'M', 'B', 'R', 'W', 'N', 'D', '1'}
)

// ───────────────────────────────────────────────────────────────────────────────
// INVERTED INDEX
// ───────────────────────────────────────────────────────────────────────────────

// Encode serializes the index to its on-disk format.
func (idx *InvertedIndex) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(indexMagic[:])

	if err := writeString(buf, idx.codec.Name()); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, idx.numDocs); err != nil {
		return nil, err
	}
	buf.Write(idx.endpoints.AppendBytes(nil))

	if err := binary.Write(buf, binary.LittleEndian, uint64(len(idx.lists))); err != nil {
		return nil, err
	}
	buf.Write(idx.lists)
	return buf.Bytes(), nil
}

// DecodeInvertedIndex reconstructs an index from data. The returned
// index keeps references INTO data; the caller owns data's lifetime.
func DecodeInvertedIndex(data []byte) (*InvertedIndex, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], indexMagic[:]) {
		return nil, fmt.Errorf("bad index magic: %w", ErrCorruptIndex)
	}
	data = data[8:]

	codecName, data, err := readString(data)
	if err != nil {
		return nil, err
	}
	codec, err := GetBlockCodec(codecName)
	if err != nil {
		return nil, err
	}

	if len(data) < 4 {
		return nil, fmt.Errorf("index header truncated: %w", ErrCorruptIndex)
	}
	numDocs := readU32(data, 0)
	data = data[4:]

	endpoints, data, err := ParseEliasFano(data)
	if err != nil {
		return nil, err
	}

	if len(data) < 8 {
		return nil, fmt.Errorf("index lists truncated: %w", ErrCorruptIndex)
	}
	listLen := binary.LittleEndian.Uint64(data[0:8])
	data = data[8:]
	if uint64(len(data)) < listLen {
		return nil, fmt.Errorf("index lists truncated (%d of %d bytes): %w", len(data), listLen, ErrCorruptIndex)
	}

	return &InvertedIndex{
		codec:     codec,
		numDocs:   numDocs,
		endpoints: endpoints,
		lists:     data[:listLen],
	}, nil
}

// SaveInvertedIndex writes the index to path.
func SaveInvertedIndex(idx *InvertedIndex, path string) error {
	data, err := idx.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// OpenInvertedIndex memory-maps path and decodes the index over the
// mapping. Close the returned source only after dropping the index and
// every cursor derived from it.
func OpenInvertedIndex(path string) (*InvertedIndex, *MemorySource, error) {
	source, err := OpenMappedFile(path)
	if err != nil {
		return nil, nil, err
	}
	idx, err := DecodeInvertedIndex(source.Bytes())
	if err != nil {
		source.Close()
		return nil, nil, err
	}
	return idx, source, nil
}

// ───────────────────────────────────────────────────────────────────────────────
// WAND DATA
// ───────────────────────────────────────────────────────────────────────────────

// Encode serializes the WAND data to its on-disk format.
func (w *WandData) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(wandMagic[:])

	if err := binary.Write(buf, binary.LittleEndian, w.numDocs); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, math.Float32bits(w.avgLen)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, w.collectionLen); err != nil {
		return nil, err
	}
	for _, l := range w.docLens {
		if err := binary.Write(buf, binary.LittleEndian, l); err != nil {
			return nil, err
		}
	}

	if err := writeString(buf, w.scorerName); err != nil {
		return nil, err
	}
	buf.WriteByte(w.quantBits)
	if err := binary.Write(buf, binary.LittleEndian, math.Float32bits(w.quantMax)); err != nil {
		return nil, err
	}

	if err := binary.Write(buf, binary.LittleEndian, uint32(len(w.terms))); err != nil {
		return nil, err
	}
	for _, td := range w.terms {
		if err := binary.Write(buf, binary.LittleEndian, td.PostingCount); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, td.OccurrenceCount); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, math.Float32bits(td.MaxScore)); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(td.Blocks))); err != nil {
			return nil, err
		}
		for _, blk := range td.Blocks {
			if err := binary.Write(buf, binary.LittleEndian, blk.LastDocID); err != nil {
				return nil, err
			}
			if err := binary.Write(buf, binary.LittleEndian, math.Float32bits(blk.MaxScore)); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// DecodeWandData reconstructs WAND data from its on-disk format.
func DecodeWandData(data []byte) (*WandData, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], wandMagic[:]) {
		return nil, fmt.Errorf("bad wand-data magic: %w", ErrCorruptIndex)
	}
	d := &wandDecoder{data: data[8:]}

	w := &WandData{}
	w.numDocs = d.u32()
	w.avgLen = d.f32()
	w.collectionLen = d.u64()
	w.docLens = make([]uint32, w.numDocs)
	for i := range w.docLens {
		w.docLens[i] = d.u32()
	}

	w.scorerName = d.str()
	w.quantBits = d.u8()
	w.quantMax = d.f32()

	w.terms = make([]TermData, d.u32())
	for t := range w.terms {
		td := &w.terms[t]
		td.PostingCount = d.u32()
		td.OccurrenceCount = d.u32()
		td.MaxScore = d.f32()
		td.Blocks = make([]ScoreBlock, d.u32())
		for b := range td.Blocks {
			td.Blocks[b].LastDocID = d.u32()
			td.Blocks[b].MaxScore = d.f32()
		}
	}
	if d.failed {
		return nil, fmt.Errorf("wand data truncated: %w", ErrCorruptIndex)
	}
	return w, nil
}

// SaveWandData writes the WAND data to path.
func SaveWandData(w *WandData, path string) error {
	data, err := w.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadWandData reads and decodes WAND data from path.
func LoadWandData(path string) (*WandData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeWandData(data)
}

// ───────────────────────────────────────────────────────────────────────────────
// DECODER / FIELD HELPERS
// ───────────────────────────────────────────────────────────────────────────────

// wandDecoder tracks a read offset and latches the first underrun
// instead of forcing error plumbing through every field read.
type wandDecoder struct {
	data   []byte
	offset int
	failed bool
}

func (d *wandDecoder) take(n int) []byte {
	if d.failed || d.offset+n > len(d.data) {
		d.failed = true
		return make([]byte, n)
	}
	b := d.data[d.offset : d.offset+n]
	d.offset += n
	return b
}

func (d *wandDecoder) u8() uint8   { return d.take(1)[0] }
func (d *wandDecoder) u32() uint32 { return binary.LittleEndian.Uint32(d.take(4)) }
func (d *wandDecoder) u64() uint64 { return binary.LittleEndian.Uint64(d.take(8)) }
func (d *wandDecoder) f32() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(d.take(4)))
}

func (d *wandDecoder) str() string {
	n := int(d.u32())
	if d.failed || n > len(d.data)-d.offset {
		d.failed = true
		return ""
	}
	return string(d.take(n))
}

// writeString writes a length-prefixed string.
//
// Format: [length: 4 bytes][string: length bytes]
func writeString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

// readString reads a length-prefixed string and returns the tail.
func readString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("string header truncated: %w", ErrCorruptIndex)
	}
	n := int(readU32(data, 0))
	data = data[4:]
	if len(data) < n {
		return "", nil, fmt.Errorf("string truncated: %w", ErrCorruptIndex)
	}
	return string(data[:n]), data[n:], nil
}
