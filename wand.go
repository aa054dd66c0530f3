package ember

import (
	"fmt"
	"log/slog"
)

// ═══════════════════════════════════════════════════════════════════════════════
// WAND DATA
// ═══════════════════════════════════════════════════════════════════════════════
// Everything the pruning processors need to know WITHOUT touching a
// posting list:
//
//	per term:  posting count, occurrence count, the maximum partial
//	           score any posting of the term can produce, and a list of
//	           (block-last-docid, block-max-score) pairs
//	corpus:    document count, average document length, collection
//	           length, the per-document length vector
//
// The per-term maximum drives WAND and MaxScore; the per-block maxima
// drive the BlockMax variants; the lengths and counts parameterise the
// scorers themselves.
//
// SCORE BLOCKS ≠ POSTING BLOCKS:
// ------------------------------
// The score-block partition is independent of the codec's 128-posting
// blocks. Two partitioners are provided:
//
//	FixedBlocks    → every block spans the same number of postings
//	VariableBlocks → a dynamic program picks boundaries minimising
//	                 Σ(block_cost + λ): block_cost charges each posting
//	                 the gap between its score and its block's max, so λ
//	                 trades table size against bound tightness
//
// Built once after the inverted index; LoadWandData reads it back into
// memory, and it is read-only at query time.
// ═══════════════════════════════════════════════════════════════════════════════

// ScoreBlock is one entry of a term's block-max table.
type ScoreBlock struct {
	LastDocID uint32  // last docid covered by this block
	MaxScore  float32 // max partial score over the block's postings
}

// TermData holds the per-term statistics and block-max table.
type TermData struct {
	PostingCount    uint32 // document frequency
	OccurrenceCount uint32 // total occurrences across the collection
	MaxScore        float32
	Blocks          []ScoreBlock
}

// WandData is the auxiliary score-bound structure for one index.
type WandData struct {
	numDocs       uint32
	avgLen        float32
	collectionLen uint64
	docLens       []uint32
	terms         []TermData

	// Quantisation record: when bits > 0, every stored score is the
	// output of LinearQuantizer(quantMax, bits) applied to the partial
	// scores of scorerName. Queries must then use the same quantiser.
	scorerName string
	quantBits  uint8
	quantMax   float32
}

// NumDocs returns the document count D.
func (w *WandData) NumDocs() uint32 { return w.numDocs }

// AvgLen returns the average document length L̄.
func (w *WandData) AvgLen() float32 { return w.avgLen }

// CollectionLen returns the total number of term occurrences.
func (w *WandData) CollectionLen() uint64 { return w.collectionLen }

// DocLen returns the length of document doc.
func (w *WandData) DocLen(doc uint32) uint32 { return w.docLens[doc] }

// TermPostingCount returns the document frequency of term.
func (w *WandData) TermPostingCount(term TermID) uint32 { return w.terms[term].PostingCount }

// TermOccurrenceCount returns the collection frequency of term.
func (w *WandData) TermOccurrenceCount(term TermID) uint32 { return w.terms[term].OccurrenceCount }

// MaxTermScore returns the global score upper bound of term.
func (w *WandData) MaxTermScore(term TermID) float32 { return w.terms[term].MaxScore }

// ScorerName returns the recorded scorer when scores are quantised.
func (w *WandData) ScorerName() string { return w.scorerName }

// QuantBits returns the quantiser width (0 when scores are raw floats).
func (w *WandData) QuantBits() uint8 { return w.quantBits }

// QuantMax returns the quantiser's input range maximum.
func (w *WandData) QuantMax() float32 { return w.quantMax }

// ═══════════════════════════════════════════════════════════════════════════════
// WAND CURSOR
// ═══════════════════════════════════════════════════════════════════════════════
// Walks a term's score-block table in lockstep LOGIC with a posting
// cursor: the caller advances it with NextGEQ to whatever docid the
// posting cursor is inspecting, and reads the block bound there.
// ═══════════════════════════════════════════════════════════════════════════════

// WandCursor iterates one term's score blocks.
type WandCursor struct {
	blocks   []ScoreBlock
	universe uint32
	pos      int
}

// WandCursor opens a block-max cursor for term.
func (w *WandData) WandCursor(term TermID) WandCursor {
	return WandCursor{blocks: w.terms[term].Blocks, universe: ^uint32(0)}
}

// DocID returns the current block's last docid, or a sentinel past every
// real docid once the table is exhausted.
func (w *WandCursor) DocID() uint32 {
	if w.pos >= len(w.blocks) {
		return w.universe
	}
	return w.blocks[w.pos].LastDocID
}

// Score returns the current block's max partial score (0 when exhausted:
// an exhausted term cannot contribute to any further document).
func (w *WandCursor) Score() float32 {
	if w.pos >= len(w.blocks) {
		return 0
	}
	return w.blocks[w.pos].MaxScore
}

// NextGEQ advances to the first block whose last docid is ≥ target.
func (w *WandCursor) NextGEQ(target uint32) {
	for w.pos < len(w.blocks) && w.blocks[w.pos].LastDocID < target {
		w.pos++
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// BLOCK PARTITIONERS
// ═══════════════════════════════════════════════════════════════════════════════

// BlockPartitioner chooses score-block boundaries for one term's scores.
// partition returns the EXCLUSIVE end position of every block, ascending,
// with the final entry equal to len(scores).
type BlockPartitioner interface {
	partition(scores []float32) []int
}

// FixedBlocks partitions every list into equal spans of Size postings.
type FixedBlocks struct {
	Size int
}

func (p FixedBlocks) partition(scores []float32) []int {
	ends := make([]int, 0, ceilDiv(len(scores), p.Size))
	for end := p.Size; end < len(scores); end += p.Size {
		ends = append(ends, end)
	}
	return append(ends, len(scores))
}

// VariableBlocks partitions by dynamic programming.
//
// COST MODEL:
// -----------
// A block [i, j) costs λ plus Σ_{p∈[i,j)} (max(block) − score_p): each
// posting is charged the amount by which its block's bound overestimates
// it. Small λ → many tight blocks; large λ → few coarse blocks.
//
// The DP is quadratic in the list length, so candidate blocks are capped
// at MaxSpan postings (bounds past that length are loose anyway).
type VariableBlocks struct {
	Lambda  float64
	MaxSpan int // candidate block length cap; 0 means 2048
}

func (p VariableBlocks) partition(scores []float32) []int {
	n := len(scores)
	maxSpan := p.MaxSpan
	if maxSpan <= 0 {
		maxSpan = 2048
	}

	// dp[j] = cheapest cost of partitioning scores[:j]; back[j] = the
	// start of the last block in that optimum.
	dp := make([]float64, n+1)
	back := make([]int, n+1)
	for j := 1; j <= n; j++ {
		best := -1
		bestCost := 0.0
		// Walk candidate starts backwards, extending one block leftward
		// and updating its max/sum incrementally.
		blockMax := float64(scores[j-1])
		blockSum := 0.0
		for i := j - 1; i >= 0 && j-i <= maxSpan; i-- {
			s := float64(scores[i])
			if s > blockMax {
				blockMax = s
			}
			blockSum += s
			cost := dp[i] + p.Lambda + blockMax*float64(j-i) - blockSum
			if best < 0 || cost < bestCost {
				best = i
				bestCost = cost
			}
		}
		dp[j] = bestCost
		back[j] = best
	}

	// Recover boundaries.
	var rev []int
	for j := n; j > 0; j = back[j] {
		rev = append(rev, j)
	}
	ends := make([]int, len(rev))
	for i, e := range rev {
		ends[len(rev)-1-i] = e
	}
	return ends
}

// ═══════════════════════════════════════════════════════════════════════════════
// BUILDING WAND DATA
// ═══════════════════════════════════════════════════════════════════════════════
// Two passes over the index:
//
//	Pass 1 — walk every list once collecting posting and occurrence
//	         counts; together with docLens this fully parameterises the
//	         scorer.
//	Pass 2 — walk every list again scoring each posting, partition the
//	         score sequence, record block maxima and the term max.
//
// Optional quantisation replaces every stored score with its quantised
// value and records (scorer, bits, max) so query time can reproduce the
// exact mapping.
// ═══════════════════════════════════════════════════════════════════════════════

// WandBuildParams configures BuildWandData.
type WandBuildParams struct {
	Scorer    ScorerParams
	Partition BlockPartitioner
	QuantBits uint8 // 0 disables quantisation; otherwise 8 or 16
}

// BuildWandData computes WAND data for idx. docLens must hold the length
// of every document in [0, NumDocs).
func BuildWandData(idx *InvertedIndex, docLens []uint32, params WandBuildParams) (*WandData, error) {
	if len(docLens) != int(idx.NumDocs()) {
		return nil, fmt.Errorf("docLens covers %d of %d documents: %w", len(docLens), idx.NumDocs(), ErrInvalidArgument)
	}
	if params.QuantBits != 0 && params.QuantBits != 8 && params.QuantBits != 16 {
		return nil, fmt.Errorf("quantiser width %d: %w", params.QuantBits, ErrInvalidArgument)
	}
	if params.Partition == nil {
		params.Partition = FixedBlocks{Size: 64}
	}

	w := &WandData{
		numDocs: idx.NumDocs(),
		docLens: docLens,
		terms:   make([]TermData, idx.NumTerms()),
	}
	for _, l := range docLens {
		w.collectionLen += uint64(l)
	}
	if w.numDocs > 0 {
		w.avgLen = float32(float64(w.collectionLen) / float64(w.numDocs))
	}

	// Pass 1: term statistics.
	for t := 0; t < idx.NumTerms(); t++ {
		cur, err := idx.PostingCursor(TermID(t))
		if err != nil {
			return nil, err
		}
		td := &w.terms[t]
		td.PostingCount = uint32(cur.Len())
		for cur.DocID() < idx.NumDocs() {
			td.OccurrenceCount += cur.Freq()
			cur.Next()
		}
	}

	// The scorer sees the stats-complete (but block-less) WandData.
	scorer, err := NewScorer(params.Scorer, w)
	if err != nil {
		return nil, err
	}

	// Pass 2: score blocks.
	for t := 0; t < idx.NumTerms(); t++ {
		cur, err := idx.PostingCursor(TermID(t))
		if err != nil {
			return nil, err
		}
		score := scorer.TermScorer(TermID(t))
		docs := make([]uint32, 0, cur.Len())
		scores := make([]float32, 0, cur.Len())
		var max float32
		for cur.DocID() < idx.NumDocs() {
			s := score(cur.DocID(), cur.Freq())
			docs = append(docs, cur.DocID())
			scores = append(scores, s)
			if s > max {
				max = s
			}
			cur.Next()
		}
		if max > w.quantMax {
			w.quantMax = max
		}

		td := &w.terms[t]
		td.MaxScore = max
		start := 0
		for _, end := range params.Partition.partition(scores) {
			var blockMax float32
			for _, s := range scores[start:end] {
				if s > blockMax {
					blockMax = s
				}
			}
			td.Blocks = append(td.Blocks, ScoreBlock{
				LastDocID: docs[end-1],
				MaxScore:  blockMax,
			})
			start = end
		}
	}

	// Optional quantisation of every stored score.
	if params.QuantBits > 0 {
		q, err := NewLinearQuantizer(w.quantMax, params.QuantBits)
		if err != nil {
			return nil, err
		}
		for t := range w.terms {
			td := &w.terms[t]
			qs, err := q.Quantize(td.MaxScore)
			if err != nil {
				return nil, err
			}
			td.MaxScore = float32(qs)
			for b := range td.Blocks {
				if qs, err = q.Quantize(td.Blocks[b].MaxScore); err != nil {
					return nil, err
				}
				td.Blocks[b].MaxScore = float32(qs)
			}
		}
		w.scorerName = params.Scorer.Name
		w.quantBits = params.QuantBits
	}

	slog.Info("built wand data",
		slog.Int("terms", len(w.terms)),
		slog.Uint64("collectionLen", w.collectionLen),
		slog.Bool("quantized", params.QuantBits > 0))
	return w, nil
}
