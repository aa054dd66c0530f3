package ember

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════════════════════════════════════
// QUERY PROCESSOR TESTS
// ═══════════════════════════════════════════════════════════════════════════════
// Two layers:
//
//	1. Literal scenarios on a three-list fixture — results computed by
//	   hand from the posting data.
//	2. Equivalence sweeps on random collections — every pruned
//	   algorithm must reproduce the exhaustive Ranked-OR top-k (the
//	   pruning is an optimisation, never a semantics change).
// ═══════════════════════════════════════════════════════════════════════════════

// fixtureCollection is the S1/S2 index: three terms, universe 100,
// all frequencies 1.
//
//	P0 = {0, 2, 4, 6}
//	P1 = {1, 2, 3, 4}
//	P2 = {2, 4, 10}
func fixtureCollection(t *testing.T) (*InvertedIndex, *WandData, Scorer) {
	t.Helper()
	lists := [][]uint32{
		{0, 2, 4, 6},
		{1, 2, 3, 4},
		{2, 4, 10},
	}
	idx := buildTestIndex(t, "block_simdbp", 100, lists, onesFreqs(lists))

	docLens := make([]uint32, 100)
	for i := range docLens {
		docLens[i] = 10
	}
	wdata, err := BuildWandData(idx, docLens, WandBuildParams{
		Scorer:    DefaultScorerParams("bm25"),
		Partition: FixedBlocks{Size: 2},
	})
	require.NoError(t, err)
	scorer, err := NewScorer(DefaultScorerParams("bm25"), wdata)
	require.NoError(t, err)
	return idx, wdata, scorer
}

func fixtureQuery(k int) Query {
	q := NewQuery("", []TermID{0, 1, 2}, nil, 0)
	q.K = k
	return q
}

func postingCursors(t *testing.T, idx *InvertedIndex, terms ...TermID) []*PostingCursor {
	t.Helper()
	cursors := make([]*PostingCursor, len(terms))
	for i, term := range terms {
		cur, err := idx.PostingCursor(term)
		require.NoError(t, err)
		cursors[i] = cur
	}
	return cursors
}

func TestAndQuery_CountsConjunction(t *testing.T) {
	idx, _, _ := fixtureCollection(t)
	ctx := context.Background()

	// {0,2,4,6} ∩ {1,2,3,4} ∩ {2,4,10} = {2, 4}
	got := AndQuery{}.Run(ctx, postingCursors(t, idx, 0, 1, 2), idx.NumDocs())
	assert.Equal(t, uint64(2), got)

	// Frequency decoding must not change the count.
	got = AndQuery{WithFreqs: true}.Run(ctx, postingCursors(t, idx, 0, 1, 2), idx.NumDocs())
	assert.Equal(t, uint64(2), got)

	assert.Equal(t, uint64(0), AndQuery{}.Run(ctx, nil, idx.NumDocs()))
}

func TestOrQuery_CountsUnion(t *testing.T) {
	idx, _, _ := fixtureCollection(t)
	ctx := context.Background()

	// {0,2,4,6} ∪ {1,2,3,4} ∪ {2,4,10} = {0,1,2,3,4,6,10}
	got := OrQuery{}.Run(ctx, postingCursors(t, idx, 0, 1, 2), idx.NumDocs())
	assert.Equal(t, uint64(7), got)

	got = OrQuery{WithFreqs: true}.Run(ctx, postingCursors(t, idx, 0, 1, 2), idx.NumDocs())
	assert.Equal(t, uint64(7), got)
}

// TestRankedAnd_ScenarioS1: Ranked-AND over {0,1,2} with k=10 yields
// docids {2, 4}, each scored as the sum of the three BM25 scores.
func TestRankedAnd_ScenarioS1(t *testing.T) {
	idx, _, scorer := fixtureCollection(t)

	cursors, err := MakeScoredCursors(idx, scorer, fixtureQuery(10))
	require.NoError(t, err)

	topk := NewTopKQueue(10)
	and := RankedAndQuery{Topk: topk}
	and.Run(context.Background(), cursors, idx.NumDocs())
	topk.Finalize()

	results := topk.Results()
	require.Len(t, results, 2)

	expected := func(doc uint32) float32 {
		var s float32
		for term := TermID(0); term < 3; term++ {
			s += scorer.TermScorer(term)(doc, 1)
		}
		return s
	}
	// Docs 2 and 4 tie on score (same freqs, same lengths), so the
	// finalize order is docid ascending.
	assert.Equal(t, uint32(2), results[0].DocID)
	assert.Equal(t, uint32(4), results[1].DocID)
	assert.InDelta(t, expected(2), results[0].Score, 1e-6)
	assert.InDelta(t, expected(4), results[1].Score, 1e-6)
}

// TestRankedOr_ScenarioS2: Ranked-OR yields every docid of the union;
// doc 2's score is the sum of all three term scorers at (2, 1).
func TestRankedOr_ScenarioS2(t *testing.T) {
	idx, _, scorer := fixtureCollection(t)

	cursors, err := MakeScoredCursors(idx, scorer, fixtureQuery(20))
	require.NoError(t, err)

	topk := NewTopKQueue(20)
	or := RankedOrQuery{Topk: topk}
	or.Run(context.Background(), cursors, idx.NumDocs())
	topk.Finalize()

	results := topk.Results()
	require.Len(t, results, 7, "one entry per union docid")

	got := map[uint32]float32{}
	for _, r := range results {
		got[r.DocID] = r.Score
	}
	for _, doc := range []uint32{0, 1, 2, 3, 4, 6, 10} {
		assert.Contains(t, got, doc)
	}

	var wantDoc2 float32
	for term := TermID(0); term < 3; term++ {
		wantDoc2 += scorer.TermScorer(term)(2, 1)
	}
	assert.InDelta(t, wantDoc2, got[2], 1e-6)

	// Top-3 must be the highest score sums: docs 2 and 4 match all
	// three terms and dominate.
	assert.Equal(t, uint32(2), results[0].DocID)
	assert.Equal(t, uint32(4), results[1].DocID)
}

// TestRankedOr_ScenarioS3: a single-term query returns its postings in
// decreasing BM25 order, ties broken by docid ascending.
func TestRankedOr_ScenarioS3(t *testing.T) {
	lists := [][]uint32{{0, 2, 4, 6}}
	idx := buildTestIndex(t, "block_simdbp", 100, lists, onesFreqs(lists))
	docLens := make([]uint32, 100)
	for i := range docLens {
		docLens[i] = 10
	}
	wdata, err := BuildWandData(idx, docLens, WandBuildParams{Scorer: DefaultScorerParams("bm25")})
	require.NoError(t, err)
	scorer, err := NewScorer(DefaultScorerParams("bm25"), wdata)
	require.NoError(t, err)

	q := NewQuery("", []TermID{0}, nil, 0)
	cursors, err := MakeScoredCursors(idx, scorer, q)
	require.NoError(t, err)

	topk := NewTopKQueue(10)
	or := RankedOrQuery{Topk: topk}
	or.Run(context.Background(), cursors, idx.NumDocs())
	topk.Finalize()

	results := topk.Results()
	require.Len(t, results, 4)
	// Equal freqs and lengths: all four scores tie, docid ascending.
	for i, want := range []uint32{0, 2, 4, 6} {
		assert.Equal(t, want, results[i].DocID)
	}
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// EQUIVALENCE SWEEPS
// ═══════════════════════════════════════════════════════════════════════════════

// randomCollection builds an index + wand data with the given shape.
func randomCollection(t *testing.T, rng *rand.Rand, numTerms int, universe uint32, scorerName string) (*InvertedIndex, *WandData, Scorer) {
	t.Helper()
	codec, _ := GetBlockCodec("block_simdbp")
	b := NewIndexBuilder(codec, universe)
	for term := 0; term < numTerms; term++ {
		n := 20 + rng.Intn(int(universe)/2)
		docs, freqs := randomPostings(rng, n, universe)
		require.NoError(t, b.AddPostingList(docs, freqs))
	}
	idx, err := b.Build()
	require.NoError(t, err)

	docLens := make([]uint32, universe)
	for i := range docLens {
		docLens[i] = 5 + uint32(rng.Intn(50))
	}
	wdata, err := BuildWandData(idx, docLens, WandBuildParams{
		Scorer:    DefaultScorerParams(scorerName),
		Partition: FixedBlocks{Size: 5},
	})
	require.NoError(t, err)
	scorer, err := NewScorer(DefaultScorerParams(scorerName), wdata)
	require.NoError(t, err)
	return idx, wdata, scorer
}

// runRankedOr is the reference result every optimised algorithm must
// reproduce.
func runRankedOr(t *testing.T, idx *InvertedIndex, scorer Scorer, q Query, k int) []Result {
	t.Helper()
	cursors, err := MakeScoredCursors(idx, scorer, q)
	require.NoError(t, err)
	topk := NewTopKQueue(k)
	or := RankedOrQuery{Topk: topk}
	or.Run(context.Background(), cursors, idx.NumDocs())
	topk.Finalize()
	return append([]Result(nil), topk.Results()...)
}

// assertSameTopK compares two finalized result lists, scores within 10%
// relative tolerance (floating-point reassociation across algorithms).
func assertSameTopK(t *testing.T, want, got []Result, label string) {
	t.Helper()
	require.Len(t, got, len(want), "%s: result count", label)
	for i := range want {
		if want[i].Score == 0 {
			assert.InDelta(t, 0, got[i].Score, 1e-6, "%s: rank %d", label, i)
		} else {
			assert.InEpsilon(t, want[i].Score, got[i].Score, 0.1, "%s: rank %d", label, i)
		}
	}
}

// TestRankedQuery_Equivalence is the top-k equivalence property: for
// every k and every query, the pruned disjunctive algorithms and both
// TAAT accumulators agree with exhaustive Ranked-OR.
func TestRankedQuery_Equivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(99))

	for _, scorerName := range []string{"bm25", "qld"} {
		idx, wdata, scorer := randomCollection(t, rng, 12, 2000, scorerName)

		for qi := 0; qi < 12; qi++ {
			numTerms := 1 + rng.Intn(4)
			terms := make([]TermID, numTerms)
			for i := range terms {
				terms[i] = TermID(rng.Intn(idx.NumTerms()))
			}
			q := NewQuery(fmt.Sprintf("q%d", qi), terms, nil, 0)

			for _, k := range []int{1, 5, 10} {
				label := fmt.Sprintf("%s/q%d/k%d", scorerName, qi, k)
				want := runRankedOr(t, idx, scorer, q, k)

				// WAND
				maxCursors, err := MakeMaxScoredCursors(idx, wdata, scorer, q)
				require.NoError(t, err)
				topk := NewTopKQueue(k)
				wand := WandQuery{Topk: topk}
				wand.Run(context.Background(), maxCursors, idx.NumDocs())
				topk.Finalize()
				assertSameTopK(t, want, topk.Results(), label+"/wand")

				// MaxScore
				maxCursors, err = MakeMaxScoredCursors(idx, wdata, scorer, q)
				require.NoError(t, err)
				topk = NewTopKQueue(k)
				maxscore := MaxScoreQuery{Topk: topk}
				maxscore.Run(context.Background(), maxCursors, idx.NumDocs())
				topk.Finalize()
				assertSameTopK(t, want, topk.Results(), label+"/maxscore")

				// BlockMax-WAND
				bmCursors, err := MakeBlockMaxScoredCursors(idx, wdata, scorer, q)
				require.NoError(t, err)
				topk = NewTopKQueue(k)
				bmw := BlockMaxWandQuery{Topk: topk}
				bmw.Run(context.Background(), bmCursors, idx.NumDocs())
				topk.Finalize()
				assertSameTopK(t, want, topk.Results(), label+"/bmw")
				if len(want) > 0 {
					assert.Equal(t, want[0].DocID, topk.Results()[0].DocID,
						"%s: BMW first element", label)
				}

				// BlockMax-MaxScore
				bmCursors, err = MakeBlockMaxScoredCursors(idx, wdata, scorer, q)
				require.NoError(t, err)
				topk = NewTopKQueue(k)
				bmm := BlockMaxMaxScoreQuery{Topk: topk}
				bmm.Run(context.Background(), bmCursors, idx.NumDocs())
				topk.Finalize()
				assertSameTopK(t, want, topk.Results(), label+"/bmm")

				// TAAT, both accumulators
				for accName, acc := range map[string]Accumulator{
					"simple": NewSimpleAccumulator(int(idx.NumDocs())),
					"lazy":   NewLazyAccumulator(int(idx.NumDocs()), 4),
				} {
					cursors, err := MakeScoredCursors(idx, scorer, q)
					require.NoError(t, err)
					topk = NewTopKQueue(k)
					taat := RankedOrTaatQuery{Topk: topk, Acc: acc}
					taat.Run(context.Background(), cursors, idx.NumDocs())
					topk.Finalize()
					assertSameTopK(t, want, topk.Results(), label+"/taat-"+accName)
				}
			}
		}
	}
}

// TestConjunction_Equivalence: Ranked-AND and BlockMax-Ranked-AND agree.
func TestConjunction_Equivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	idx, wdata, scorer := randomCollection(t, rng, 8, 1500, "bm25")

	for qi := 0; qi < 10; qi++ {
		numTerms := 2 + rng.Intn(3)
		terms := make([]TermID, numTerms)
		for i := range terms {
			terms[i] = TermID(rng.Intn(idx.NumTerms()))
		}
		q := NewQuery("", terms, nil, 0)

		for _, k := range []int{1, 10} {
			cursors, err := MakeScoredCursors(idx, scorer, q)
			require.NoError(t, err)
			topk1 := NewTopKQueue(k)
			and := RankedAndQuery{Topk: topk1}
			and.Run(context.Background(), cursors, idx.NumDocs())
			topk1.Finalize()

			bmCursors, err := MakeBlockMaxScoredCursors(idx, wdata, scorer, q)
			require.NoError(t, err)
			topk2 := NewTopKQueue(k)
			bmra := BlockMaxRankedAndQuery{Topk: topk2}
			bmra.Run(context.Background(), bmCursors, idx.NumDocs())
			topk2.Finalize()

			assertSameTopK(t, topk1.Results(), topk2.Results(),
				fmt.Sprintf("q%d/k%d", qi, k))
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONTRACT EDGES
// ═══════════════════════════════════════════════════════════════════════════════

func TestProcessors_EmptyCursorsAndZeroK(t *testing.T) {
	idx, wdata, scorer := fixtureCollection(t)
	ctx := context.Background()

	// Empty cursor slices: no results, no panic.
	topk := NewTopKQueue(10)
	(&RankedOrQuery{Topk: topk}).Run(ctx, nil, idx.NumDocs())
	(&RankedAndQuery{Topk: topk}).Run(ctx, nil, idx.NumDocs())
	(&WandQuery{Topk: topk}).Run(ctx, nil, idx.NumDocs())
	(&MaxScoreQuery{Topk: topk}).Run(ctx, nil, idx.NumDocs())
	(&BlockMaxWandQuery{Topk: topk}).Run(ctx, nil, idx.NumDocs())
	assert.Empty(t, topk.Results())

	// k = 0: no scanning, empty results.
	cursors, err := MakeMaxScoredCursors(idx, wdata, scorer, fixtureQuery(0))
	require.NoError(t, err)
	zero := NewTopKQueue(0)
	wand := WandQuery{Topk: zero}
	wand.Run(ctx, cursors, idx.NumDocs())
	assert.Empty(t, zero.Results())
	assert.Equal(t, uint32(0), cursors[0].DocID(), "k = 0 must not advance cursors")
}

func TestProcessors_Cancellation(t *testing.T) {
	idx, _, scorer := fixtureCollection(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled: the first outer-loop check fires

	cursors, err := MakeScoredCursors(idx, scorer, fixtureQuery(10))
	require.NoError(t, err)
	topk := NewTopKQueue(10)
	or := RankedOrQuery{Topk: topk}
	or.Run(ctx, cursors, idx.NumDocs())
	assert.Empty(t, topk.Results(), "a query cancelled before its first candidate returns nothing")
}

func TestWandQuery_SeededThresholdPrunes(t *testing.T) {
	// Seeding the queue with an unbeatable threshold must terminate
	// WAND immediately with no results.
	idx, wdata, scorer := fixtureCollection(t)
	cursors, err := MakeMaxScoredCursors(idx, wdata, scorer, fixtureQuery(10))
	require.NoError(t, err)

	topk := NewTopKQueue(10)
	topk.SetInitialThreshold(1e9)
	wand := WandQuery{Topk: topk}
	wand.Run(context.Background(), cursors, idx.NumDocs())
	assert.Empty(t, topk.Results())
}

func TestDoNotOptimize(t *testing.T) {
	DoNotOptimize(42) // must not panic, must not be elided
}
