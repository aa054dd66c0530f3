package ember

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════════════════════════════════════
// WAND DATA TESTS
// ═══════════════════════════════════════════════════════════════════════════════

// buildTestWand builds wand data over idx with uniform doc lengths.
func buildTestWand(t *testing.T, idx *InvertedIndex, params WandBuildParams) *WandData {
	t.Helper()
	docLens := make([]uint32, idx.NumDocs())
	for i := range docLens {
		docLens[i] = 10 + uint32(i%7)
	}
	w, err := BuildWandData(idx, docLens, params)
	require.NoError(t, err)
	return w
}

func TestWandData_TermStats(t *testing.T) {
	lists := [][]uint32{
		{0, 2, 4, 6},
		{1, 2, 3},
	}
	freqs := [][]uint32{
		{1, 2, 1, 3},
		{5, 1, 1},
	}
	idx := buildTestIndex(t, "block_simdbp", 10, lists, freqs)
	w := buildTestWand(t, idx, WandBuildParams{Scorer: DefaultScorerParams("bm25")})

	assert.Equal(t, uint32(4), w.TermPostingCount(0))
	assert.Equal(t, uint32(7), w.TermOccurrenceCount(0))
	assert.Equal(t, uint32(3), w.TermPostingCount(1))
	assert.Equal(t, uint32(7), w.TermOccurrenceCount(1))
	assert.Equal(t, uint32(10), w.NumDocs())
	assert.InDelta(t, float64(w.CollectionLen())/10, float64(w.AvgLen()), 1e-6)
}

// checkWandInvariants verifies, per term: block last-docids strictly
// increase, the final one is the list's last docid, every block max is
// a true bound, and the term max equals the largest block max.
func checkWandInvariants(t *testing.T, idx *InvertedIndex, w *WandData, params ScorerParams) {
	t.Helper()
	scorer, err := NewScorer(params, w)
	require.NoError(t, err)

	for term := 0; term < idx.NumTerms(); term++ {
		cur, err := idx.PostingCursor(TermID(term))
		require.NoError(t, err)
		score := scorer.TermScorer(TermID(term))

		// Block boundaries strictly increase and end on the last docid.
		blocks := w.terms[term].Blocks
		require.NotEmpty(t, blocks)
		for b := 1; b < len(blocks); b++ {
			require.Greater(t, blocks[b].LastDocID, blocks[b-1].LastDocID)
		}

		// Every posting's score is covered by its block's bound and by
		// the term's global bound.
		wc := w.WandCursor(TermID(term))
		var termMax float32
		var lastDoc uint32
		for cur.DocID() < idx.NumDocs() {
			s := score(cur.DocID(), cur.Freq())
			wc.NextGEQ(cur.DocID())
			assert.LessOrEqual(t, s, wc.Score(), "term %d doc %d above its block bound", term, cur.DocID())
			assert.LessOrEqual(t, s, w.MaxTermScore(TermID(term)))
			if s > termMax {
				termMax = s
			}
			lastDoc = cur.DocID()
			cur.Next()
		}
		assert.Equal(t, lastDoc, blocks[len(blocks)-1].LastDocID, "term %d final boundary", term)
		assert.Equal(t, termMax, w.MaxTermScore(TermID(term)), "term %d global max", term)
	}
}

func TestWandData_FixedBlocks(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	lists := make([][]uint32, 8)
	freqs := make([][]uint32, 8)
	for i := range lists {
		lists[i], freqs[i] = randomPostings(rng, 30+rng.Intn(300), 2000)
	}
	idx := buildTestIndex(t, "block_simdbp", 2000, lists, freqs)

	params := DefaultScorerParams("bm25")
	w := buildTestWand(t, idx, WandBuildParams{Scorer: params, Partition: FixedBlocks{Size: 5}})
	checkWandInvariants(t, idx, w, params)
}

func TestWandData_VariableBlocks(t *testing.T) {
	rng := rand.New(rand.NewSource(18))
	lists := make([][]uint32, 6)
	freqs := make([][]uint32, 6)
	for i := range lists {
		lists[i], freqs[i] = randomPostings(rng, 200, 3000)
	}
	idx := buildTestIndex(t, "block_simdbp", 3000, lists, freqs)

	params := DefaultScorerParams("qld")
	w := buildTestWand(t, idx, WandBuildParams{Scorer: params, Partition: VariableBlocks{Lambda: 4}})
	checkWandInvariants(t, idx, w, params)
}

func TestVariableBlocks_LambdaTradesBlockCount(t *testing.T) {
	// Small λ buys granularity, large λ buys compactness.
	scores := make([]float32, 500)
	rng := rand.New(rand.NewSource(19))
	for i := range scores {
		scores[i] = rng.Float32() * 10
	}

	fine := VariableBlocks{Lambda: 0.5}.partition(scores)
	coarse := VariableBlocks{Lambda: 100}.partition(scores)
	assert.Greater(t, len(fine), len(coarse))

	// Both must be exact partitions.
	for _, ends := range [][]int{fine, coarse} {
		last := 0
		for _, e := range ends {
			require.Greater(t, e, last)
			last = e
		}
		require.Equal(t, len(scores), last)
	}
}

func TestWandCursor_NextGEQ(t *testing.T) {
	lists := [][]uint32{{1, 5, 9, 13, 17, 21}}
	idx := buildTestIndex(t, "block_simdbp", 30, lists, onesFreqs(lists))
	w := buildTestWand(t, idx, WandBuildParams{
		Scorer:    DefaultScorerParams("bm25"),
		Partition: FixedBlocks{Size: 2},
	})

	wc := w.WandCursor(0)
	assert.Equal(t, uint32(5), wc.DocID(), "first block covers {1, 5}")
	wc.NextGEQ(6)
	assert.Equal(t, uint32(13), wc.DocID())
	wc.NextGEQ(21)
	assert.Equal(t, uint32(21), wc.DocID())
	wc.NextGEQ(22)
	assert.Equal(t, ^uint32(0), wc.DocID(), "exhausted cursor parks at the sentinel")
	assert.Equal(t, float32(0), wc.Score(), "exhausted cursor bounds nothing")
}

func TestWandData_SerializationRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	lists := make([][]uint32, 5)
	freqs := make([][]uint32, 5)
	for i := range lists {
		lists[i], freqs[i] = randomPostings(rng, 100, 1000)
	}
	idx := buildTestIndex(t, "block_simdbp", 1000, lists, freqs)
	w := buildTestWand(t, idx, WandBuildParams{Scorer: DefaultScorerParams("bm25")})

	encoded, err := w.Encode()
	require.NoError(t, err)
	decoded, err := DecodeWandData(encoded)
	require.NoError(t, err)

	reencoded, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded, "decode-then-encode must be byte-identical")

	assert.Equal(t, w.NumDocs(), decoded.NumDocs())
	assert.Equal(t, w.CollectionLen(), decoded.CollectionLen())
	for term := 0; term < idx.NumTerms(); term++ {
		assert.Equal(t, w.MaxTermScore(TermID(term)), decoded.MaxTermScore(TermID(term)))
		assert.Equal(t, w.terms[term].Blocks, decoded.terms[term].Blocks)
	}
}

func TestWandData_Quantized(t *testing.T) {
	lists := [][]uint32{{0, 3, 7}, {1, 3}}
	freqs := [][]uint32{{2, 9, 1}, {4, 4}}
	idx := buildTestIndex(t, "block_simdbp", 10, lists, freqs)
	w := buildTestWand(t, idx, WandBuildParams{
		Scorer:    DefaultScorerParams("bm25"),
		QuantBits: 8,
	})

	assert.Equal(t, uint8(8), w.QuantBits())
	assert.Equal(t, "bm25", w.ScorerName())
	assert.Greater(t, w.QuantMax(), float32(0))

	// Quantised scores are integers in [1, 255], and the global max
	// maps to the top of the range.
	var top float32
	for term := range w.terms {
		for _, blk := range w.terms[term].Blocks {
			assert.Equal(t, blk.MaxScore, float32(uint32(blk.MaxScore)), "quantised score must be integral")
			assert.GreaterOrEqual(t, blk.MaxScore, float32(1))
			assert.LessOrEqual(t, blk.MaxScore, float32(255))
		}
		if w.terms[term].MaxScore > top {
			top = w.terms[term].MaxScore
		}
	}
	assert.Equal(t, float32(255), top)
}

func TestBuildWandData_Validation(t *testing.T) {
	lists := [][]uint32{{0, 1}}
	idx := buildTestIndex(t, "block_simdbp", 10, lists, onesFreqs(lists))

	_, err := BuildWandData(idx, make([]uint32, 3), WandBuildParams{})
	assertErrorIs(t, err, ErrInvalidArgument)

	docLens := make([]uint32, 10)
	for i := range docLens {
		docLens[i] = 5
	}
	_, err = BuildWandData(idx, docLens, WandBuildParams{QuantBits: 5})
	assertErrorIs(t, err, ErrInvalidArgument)
}
