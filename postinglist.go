package ember

import "fmt"

// ═══════════════════════════════════════════════════════════════════════════════
// BLOCK POSTING LIST
// ═══════════════════════════════════════════════════════════════════════════════
// One term's postings — an ordered run of (docid, frequency) pairs — laid
// out as a single append-only byte string:
//
//	[n: tight vbyte]                     how many postings
//	[block maxes: ⌈n/B⌉ × u32]          last docid of each block
//	[block endpoints: (⌈n/B⌉−1) × u32]  byte offset of blocks 1.. within
//	                                     the data region (block 0 is at 0)
//	[blocks: per block, the docid-gap codeword then the freq codeword]
//
// WHAT GETS ENCODED:
// ------------------
// Document ids are stored as gaps minus one: gap_i = doc_i − doc_{i−1} − 1
// (with doc_{−1} = −1, so the first posting stores its docid verbatim).
// Frequencies are stored minus one. Both rewrites shave the guaranteed
// minimum off every value, which matters for bit-level codecs.
//
// WHY BLOCK MAXES UP FRONT?
// -------------------------
// NextGEQ can rule out whole blocks by scanning the max array — a plain
// u32 read per block — without touching any codeword. That array IS the
// skip structure; there is no separate skip list.
//
// INVARIANTS (for a list of length n over universe [0, D)):
//   - block maxes strictly increase
//   - within a block, Σ(gap+1) = blockMax − blockBase + 1
//   - frequencies ≥ 1
// ═══════════════════════════════════════════════════════════════════════════════

// WritePostingList appends the encoded posting list for docs/freqs to out
// and returns the extended slice.
//
// VALIDATION:
// -----------
// The write path is the trust boundary: it rejects what the read path
// will later assume. Empty lists, non-increasing docids (duplicates
// included) and zero frequencies all fail with ErrInvalidArgument before
// a single byte is emitted.
func WritePostingList(codec BlockCodec, out []byte, docs, freqs []uint32) ([]byte, error) {
	n := len(docs)
	if n == 0 {
		return out, fmt.Errorf("empty posting list: %w", ErrInvalidArgument)
	}
	if len(freqs) != n {
		return out, fmt.Errorf("docs/freqs length mismatch (%d vs %d): %w", n, len(freqs), ErrInvalidArgument)
	}
	for i := 0; i < n; i++ {
		if i > 0 && docs[i] <= docs[i-1] {
			return out, fmt.Errorf("docids not strictly increasing at %d: %w", i, ErrInvalidArgument)
		}
		if freqs[i] < 1 {
			return out, fmt.Errorf("zero frequency at %d: %w", i, ErrInvalidArgument)
		}
	}

	blockSize := codec.BlockSize()
	blocks := ceilDiv(n, blockSize)

	out = vbyteAppend(out, uint32(n))

	// Reserve the max and endpoint arrays; they are patched as each
	// block's true extent becomes known.
	beginBlockMaxs := len(out)
	beginBlockEndpoints := beginBlockMaxs + 4*blocks
	beginBlocks := beginBlockEndpoints + 4*(blocks-1)
	out = append(out, make([]byte, beginBlocks-beginBlockMaxs)...)

	docsBuf := make([]uint32, blockSize)
	freqsBuf := make([]uint32, blockSize)
	lastDoc := int64(-1) // doc_{−1}; the first gap is docs[0] itself
	blockBase := uint32(0)

	for b := 0; b < blocks; b++ {
		curBlockSize := blockSize
		if (b+1)*blockSize > n {
			curBlockSize = n % blockSize
		}

		for i := 0; i < curBlockSize; i++ {
			doc := docs[b*blockSize+i]
			docsBuf[i] = uint32(int64(doc) - lastDoc - 1)
			lastDoc = int64(doc)
			freqsBuf[i] = freqs[b*blockSize+i] - 1
		}
		blockMax := uint32(lastDoc)
		putU32(out, beginBlockMaxs+4*b, blockMax)

		// The gap sum of this block is fully determined by its span, so
		// the docid codeword never stores it. Frequencies get NoSum.
		out = codec.Encode(out, docsBuf, blockMax-blockBase-uint32(curBlockSize-1), curBlockSize)
		out = codec.Encode(out, freqsBuf, NoSum, curBlockSize)
		if b != blocks-1 {
			putU32(out, beginBlockEndpoints+4*b, uint32(len(out)-beginBlocks))
		}
		blockBase = blockMax + 1
	}
	return out, nil
}

// WritePostingBlocks rebuilds a posting list from raw block descriptors
// (as produced by PostingCursor.Blocks), copying codewords byte-for-byte
// instead of re-encoding.
//
// Blocks may arrive in any PHYSICAL order — the endpoint array maps each
// logical block to wherever its bytes landed — but the first descriptor
// must be logical block 0, which always sits at data offset 0.
func WritePostingBlocks(out []byte, n int, blocks []BlockData) ([]byte, error) {
	if len(blocks) == 0 || blocks[0].Index != 0 {
		return out, fmt.Errorf("first block must remain first: %w", ErrInvalidArgument)
	}

	out = vbyteAppend(out, uint32(n))

	beginBlockMaxs := len(out)
	beginBlockEndpoints := beginBlockMaxs + 4*len(blocks)
	beginBlocks := beginBlockEndpoints + 4*(len(blocks)-1)
	out = append(out, make([]byte, beginBlocks-beginBlockMaxs)...)

	for _, blk := range blocks {
		b := blk.Index
		// Endpoint slot b−1 holds the START of logical block b.
		if b != 0 {
			putU32(out, beginBlockEndpoints+4*(b-1), uint32(len(out)-beginBlocks))
		}
		putU32(out, beginBlockMaxs+4*b, blk.Max)
		out = blk.AppendDocsBlock(out)
		out = blk.AppendFreqsBlock(out)
	}
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// POSTING CURSOR
// ═══════════════════════════════════════════════════════════════════════════════
// A PostingCursor walks one posting list lazily. It borrows the byte
// blob (shared, read-only) and owns only its decode scratch: one block's
// worth of gaps, one block's worth of frequencies.
//
// CURSOR STATE MACHINE:
// ---------------------
//
//	Next()        → step one posting; decode the next block on overflow
//	NextGEQ(t)    → skip: scan block maxes forward, decode, scan in-block
//	Move(pos)     → positional access (used by the block rebuild path)
//	DocID()       → current docid, or the universe D when exhausted
//	Freq()        → current frequency; decodes the freq codeword on
//	                FIRST use per block (most queries never look)
//
// The freq stream of a block is only reachable after its doc stream has
// been decoded (the doc codeword's length is where the freqs start), so
// laziness costs one saved pointer, nothing more.
// ═══════════════════════════════════════════════════════════════════════════════
type PostingCursor struct {
	codec    BlockCodec
	data     []byte
	universe uint32

	n      int // posting count
	blocks int // block count

	blockMaxs      []byte // raw u32 array
	blockEndpoints []byte // raw u32 array
	blocksData     []byte

	curBlock     int
	posInBlock   int
	curBlockSize int
	curBlockMax  uint32
	curDocID     uint32

	freqsData    []byte // tail of the current block: its freq codeword
	freqsDecoded bool

	docsBuf  []uint32
	freqsBuf []uint32
}

// NewPostingCursor opens a cursor over the posting list starting at
// data[0], for an index whose docids live in [0, universe).
func NewPostingCursor(codec BlockCodec, data []byte, universe uint32) *PostingCursor {
	n, rest := vbyteRead(data)
	c := &PostingCursor{
		codec:    codec,
		data:     data,
		universe: universe,
		n:        int(n),
		blocks:   ceilDiv(int(n), codec.BlockSize()),
		docsBuf:  make([]uint32, codec.BlockSize()),
		freqsBuf: make([]uint32, codec.BlockSize()),
	}
	c.blockMaxs = rest
	c.blockEndpoints = rest[4*c.blocks:]
	c.blocksData = rest[4*c.blocks+4*(c.blocks-1):]
	c.Reset()
	return c
}

// Reset rewinds the cursor to the first posting.
func (c *PostingCursor) Reset() {
	c.decodeDocsBlock(0)
}

// Len returns the number of postings in the list.
func (c *PostingCursor) Len() int { return c.n }

// NumBlocks returns the number of blocks in the list.
func (c *PostingCursor) NumBlocks() int { return c.blocks }

// Universe returns the exclusive docid upper bound D.
func (c *PostingCursor) Universe() uint32 { return c.universe }

// DocID returns the current docid, or the universe when exhausted.
func (c *PostingCursor) DocID() uint32 { return c.curDocID }

// Position returns the ordinal of the current posting within the list.
func (c *PostingCursor) Position() int {
	return c.curBlock*c.codec.BlockSize() + c.posInBlock
}

// blockMax reads the last docid of block b — an O(1) array read.
func (c *PostingCursor) blockMax(b int) uint32 {
	return readU32(c.blockMaxs, 4*b)
}

// BlockMax exposes the per-block maximum docid.
func (c *PostingCursor) BlockMax(b int) uint32 { return c.blockMax(b) }

// Next advances to the following posting.
func (c *PostingCursor) Next() {
	c.posInBlock++
	if c.posInBlock == c.curBlockSize {
		if c.curBlock+1 == c.blocks {
			c.curDocID = c.universe // exhausted
			return
		}
		c.decodeDocsBlock(c.curBlock + 1)
	} else {
		c.curDocID += c.docsBuf[c.posInBlock] + 1
	}
}

// NextGEQ advances to the first posting with docid ≥ target.
//
// Calling it with a target below the current docid (except right after
// Reset) is a programmer error; the cursor only moves forward.
//
// TWO-LEVEL SKIP:
// ---------------
// 1. If the target is past the current block's max, scan the block-max
//    array forward for the first block that can contain it. The scan is
//    LINEAR: the next match is almost always within a handful of blocks,
//    and the original's measurements found binary search slower here.
// 2. Decode that block and walk it, accumulating (gap+1) per step.
func (c *PostingCursor) NextGEQ(target uint32) {
	if target > c.curBlockMax {
		if target > c.blockMax(c.blocks-1) {
			c.curDocID = c.universe
			return
		}
		block := c.curBlock + 1
		for c.blockMax(block) < target {
			block++
		}
		c.decodeDocsBlock(block)
	}
	for c.curDocID < target {
		c.posInBlock++
		c.curDocID += c.docsBuf[c.posInBlock] + 1
	}
}

// Move positions the cursor on the pos-th posting (forward only).
func (c *PostingCursor) Move(pos int) {
	block := pos / c.codec.BlockSize()
	if block != c.curBlock {
		c.decodeDocsBlock(block)
	}
	for c.Position() < pos {
		c.posInBlock++
		c.curDocID += c.docsBuf[c.posInBlock] + 1
	}
}

// Freq returns the frequency of the current posting, decoding the
// current block's frequency codeword on first use.
func (c *PostingCursor) Freq() uint32 {
	if !c.freqsDecoded {
		c.decodeFreqsBlock()
	}
	return c.freqsBuf[c.posInBlock] + 1
}

// decodeDocsBlock decodes block's docid gaps and repositions the cursor
// at its first posting.
//
// The ONLY thing the decoder knows about docid restarts is the base it
// derives here: base = previous block's max + 1 (0 for block 0). The
// codec is handed the gap universe blockMax − base − (size−1), which is
// the exact gap sum of the block.
func (c *PostingCursor) decodeDocsBlock(block int) {
	blockSize := c.codec.BlockSize()
	var endpoint uint32
	if block > 0 {
		endpoint = readU32(c.blockEndpoints, 4*(block-1))
	}
	blockData := c.blocksData[endpoint:]

	c.curBlockSize = blockSize
	if (block+1)*blockSize > c.n {
		c.curBlockSize = c.n % blockSize
	}
	var base uint32
	if block > 0 {
		base = c.blockMax(block-1) + 1
	}
	c.curBlockMax = c.blockMax(block)

	c.freqsData = c.codec.Decode(blockData, c.docsBuf,
		c.curBlockMax-base-uint32(c.curBlockSize-1), c.curBlockSize)

	c.docsBuf[0] += base

	c.curBlock = block
	c.posInBlock = 0
	c.curDocID = c.docsBuf[0]
	c.freqsDecoded = false
}

func (c *PostingCursor) decodeFreqsBlock() {
	c.codec.Decode(c.freqsData, c.freqsBuf, NoSum, c.curBlockSize)
	c.freqsDecoded = true
}

// ═══════════════════════════════════════════════════════════════════════════════
// BLOCK ITERATION
// ═══════════════════════════════════════════════════════════════════════════════
// Blocks() exposes the raw codewords of a list so it can be re-encoded
// with a different codec — or physically reordered — without decoding
// frequencies. Each descriptor carries enough to either copy its bytes
// verbatim or decode them in isolation.
// ═══════════════════════════════════════════════════════════════════════════════

// BlockData describes one block of a posting list.
type BlockData struct {
	Index       int    // logical block number
	Size        int    // postings in this block
	Max         uint32 // last docid of the block
	GapUniverse uint32 // gap sum handed to the docid codec

	codec     BlockCodec
	docBytes  []byte // the docid-gap codeword
	freqBytes []byte // the frequency codeword
}

// AppendDocsBlock copies the raw docid codeword into out.
func (b *BlockData) AppendDocsBlock(out []byte) []byte { return append(out, b.docBytes...) }

// AppendFreqsBlock copies the raw frequency codeword into out.
func (b *BlockData) AppendFreqsBlock(out []byte) []byte { return append(out, b.freqBytes...) }

// DecodeDocGaps decodes the block's docid gaps into out[:Size].
func (b *BlockData) DecodeDocGaps(out []uint32) {
	b.codec.Decode(b.docBytes, out, b.GapUniverse, b.Size)
}

// DecodeFreqs decodes the block's frequencies (still −1 biased) into out[:Size].
func (b *BlockData) DecodeFreqs(out []uint32) {
	b.codec.Decode(b.freqBytes, out, NoSum, b.Size)
}

// Blocks walks the list once, measuring each codeword, and returns the
// block descriptors in logical order. Frequencies are scanned (to find
// codeword ends) but never interpreted.
func (c *PostingCursor) Blocks() []BlockData {
	blockSize := c.codec.BlockSize()
	out := make([]BlockData, 0, c.blocks)
	scratch := make([]uint32, blockSize)

	data := c.blocksData
	for b := 0; b < c.blocks; b++ {
		curBlockSize := blockSize
		if (b+1)*blockSize > c.n {
			curBlockSize = c.n % blockSize
		}
		var base uint32
		if b > 0 {
			base = c.blockMax(b-1) + 1
		}
		gapUniverse := c.blockMax(b) - base - uint32(curBlockSize-1)

		freqData := c.codec.Decode(data, scratch, gapUniverse, curBlockSize)
		end := c.codec.Decode(freqData, scratch, NoSum, curBlockSize)

		out = append(out, BlockData{
			Index:       b,
			Size:        curBlockSize,
			Max:         c.blockMax(b),
			GapUniverse: gapUniverse,
			codec:       c.codec,
			docBytes:    data[:len(data)-len(freqData)],
			freqBytes:   freqData[:len(freqData)-len(end)],
		})
		data = end
	}
	return out
}
