package ember

import (
	"context"

	"github.com/RoaringBitmap/roaring"
	"github.com/bits-and-blooms/bitset"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TERM-SUBSET INTERSECTIONS
// ═══════════════════════════════════════════════════════════════════════════════
// A query's "selections" name subsets of its terms (as bitmasks over
// term POSITIONS, bit 0 = first term). For each selected subset the
// caller wants to know two things about the conjunction of those terms:
//
//	Length   → how many documents match all of them
//	MaxScore → the best summed partial score any matching document gets
//
// Selection data feeds cost models and intersection-aware processors;
// computing it is offline work, so clarity beats cleverness here:
//
//	- the LENGTH comes from Roaring bitmaps: materialise each term's
//	  document set once, AND them together, read the cardinality
//	- the MAX SCORE comes from a scored conjunction driven to k = 1
//
// EXAMPLE:
// --------
// Query terms [10, 25, 77], selection mask 0b101 → the subset {10, 77}.
// ═══════════════════════════════════════════════════════════════════════════════

// Intersection describes one term subset's conjunction.
type Intersection struct {
	Length   uint64  // matching document count
	MaxScore float32 // best summed partial score among matches
}

// FilterQuery returns a copy of q containing only the terms whose
// POSITIONS are set in mask (bit i selects q.Terms[i]).
func FilterQuery(q Query, mask uint64) Query {
	filtered := Query{ID: q.ID, K: q.K}
	bits := bitset.From([]uint64{mask})
	for pos, ok := bits.NextSet(0); ok; pos, ok = bits.NextSet(pos + 1) {
		if int(pos) < len(q.Terms) {
			filtered.Terms = append(filtered.Terms, q.Terms[pos])
		}
	}
	return filtered
}

// TermDocSet materialises a posting list's document set as a bitmap.
func TermDocSet(cur *PostingCursor) *roaring.Bitmap {
	docs := roaring.NewBitmap()
	for cur.DocID() < cur.Universe() {
		docs.Add(cur.DocID())
		cur.Next()
	}
	return docs
}

// ComputeIntersection evaluates the subset of q selected by mask
// (mask 0 selects the whole query).
func ComputeIntersection(idx *InvertedIndex, wdata *WandData, params ScorerParams, q Query, mask uint64) (Intersection, error) {
	filtered := q
	if mask != 0 {
		filtered = FilterQuery(q, mask)
	}
	if len(filtered.Terms) == 0 {
		return Intersection{}, nil
	}

	// Document count: bitmap AND across the subset's posting lists.
	var docs *roaring.Bitmap
	for _, t := range filtered.Terms {
		cur, err := idx.PostingCursor(t.ID)
		if err != nil {
			return Intersection{}, err
		}
		set := TermDocSet(cur)
		if docs == nil {
			docs = set
		} else {
			docs.And(set)
		}
	}

	// Max score: a scored conjunction with a single-slot queue.
	scorer, err := NewScorer(params, wdata)
	if err != nil {
		return Intersection{}, err
	}
	cursors, err := MakeScoredCursors(idx, scorer, filtered)
	if err != nil {
		return Intersection{}, err
	}
	topk := NewTopKQueue(1)
	and := RankedAndQuery{Topk: topk}
	and.Run(context.Background(), cursors, idx.NumDocs())
	topk.Finalize()

	var maxScore float32
	if results := topk.Results(); len(results) > 0 {
		maxScore = results[0].Score
	}
	return Intersection{Length: docs.GetCardinality(), MaxScore: maxScore}, nil
}

// ComputeIntersections evaluates every selection of q in order.
func ComputeIntersections(idx *InvertedIndex, wdata *WandData, params ScorerParams, q Query) ([]Intersection, error) {
	out := make([]Intersection, 0, len(q.Selections))
	for _, mask := range q.Selections {
		inter, err := ComputeIntersection(idx, wdata, params, q, mask)
		if err != nil {
			return nil, err
		}
		out = append(out, inter)
	}
	return out, nil
}
