package ember

import (
	"context"
	"sort"
	"sync/atomic"
)

// ═══════════════════════════════════════════════════════════════════════════════
// QUERY PROCESSORS
// ═══════════════════════════════════════════════════════════════════════════════
// Ten algorithms, one contract: take cursors (constructed by the
// factories in cursor.go), drive them over the docid space [0, D), and
// populate a top-k queue. All of them terminate because docids strictly
// increase and D is finite.
//
// THE FAMILY TREE:
// ----------------
//
//	unranked   AND, OR          count matches, no scoring
//	exhaustive Ranked-OR        score every candidate
//	           Ranked-AND       score every conjunctive candidate
//	           TAAT Ranked-OR   one term at a time, into an accumulator
//	pruned     WAND             skip via per-TERM score bounds
//	           MaxScore         partition terms into essential/optional
//	blockmax   BlockMax-WAND    refine WAND's bound with per-BLOCK maxima
//	           BlockMax-MaxScore, BlockMax-Ranked-AND
//
// The pruned processors are only correct because the queue's threshold
// never decreases and every bound they consult is a true upper bound —
// see topk.go and wand.go.
//
// CANCELLATION:
// -------------
// Every processor checks its context between outer iterations (between
// pivot selections, between candidates, between terms) so a caller can
// bound query latency. A cancelled query leaves whatever top-k has
// accumulated so far in the queue.
//
// Processors never fail on well-formed input: empty cursor slices mean
// "no results", k = 0 returns without scanning. Calling NextGEQ with a
// target below the current docid is a programmer error upstream of this
// file.
// ═══════════════════════════════════════════════════════════════════════════════

// doNotOptimizeSink receives values the optimiser must not elide.
var doNotOptimizeSink uint32

// DoNotOptimize forces the evaluation of v. The unranked processors use
// it so that "count matches while decoding frequencies" actually pays
// for the frequency decode in measurements.
func DoNotOptimize(v uint32) {
	atomic.StoreUint32(&doNotOptimizeSink, v)
}

// cancelled is the per-outer-iteration cooperative check.
func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// AND (unranked)
// ───────────────────────────────────────────────────────────────────────────────
// Pivot on the shortest list: every docid it yields is a CANDIDATE, and
// each other list votes with NextGEQ. The first mismatch becomes the
// next candidate — no docid is ever inspected twice.

// AndQuery counts documents containing every query term.
type AndQuery struct {
	// WithFreqs additionally decodes every match's frequencies,
	// defeating dead-code elimination in throughput measurements.
	WithFreqs bool
}

// Run returns the number of matching documents.
func (q AndQuery) Run(ctx context.Context, cursors []*PostingCursor, maxDocID uint32) uint64 {
	if len(cursors) == 0 {
		return 0
	}

	// Shortest list first: fewest candidates, cheapest veto order.
	ordered := make([]*PostingCursor, len(cursors))
	copy(ordered, cursors)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Len() < ordered[j].Len() })

	var results uint64
	candidate := ordered[0].DocID()
	i := 1
	for candidate < maxDocID {
		if cancelled(ctx) {
			return results
		}
		for ; i < len(ordered); i++ {
			ordered[i].NextGEQ(candidate)
			if ordered[i].DocID() != candidate {
				candidate = ordered[i].DocID()
				i = 0
				break
			}
		}
		if i == len(ordered) {
			results++
			if q.WithFreqs {
				for _, c := range ordered {
					DoNotOptimize(c.Freq())
				}
			}
			ordered[0].Next()
			candidate = ordered[0].DocID()
			i = 1
		}
	}
	return results
}

// ───────────────────────────────────────────────────────────────────────────────
// OR (unranked)
// ───────────────────────────────────────────────────────────────────────────────

// OrQuery counts documents containing at least one query term.
type OrQuery struct {
	WithFreqs bool
}

// Run returns the number of matching documents.
func (q OrQuery) Run(ctx context.Context, cursors []*PostingCursor, maxDocID uint32) uint64 {
	if len(cursors) == 0 {
		return 0
	}

	curDoc := maxDocID
	for _, c := range cursors {
		if c.DocID() < curDoc {
			curDoc = c.DocID()
		}
	}

	var results uint64
	for curDoc < maxDocID {
		if cancelled(ctx) {
			return results
		}
		results++
		nextDoc := maxDocID
		for _, c := range cursors {
			if c.DocID() == curDoc {
				if q.WithFreqs {
					DoNotOptimize(c.Freq())
				}
				c.Next()
			}
			if c.DocID() < nextDoc {
				nextDoc = c.DocID()
			}
		}
		curDoc = nextDoc
	}
	return results
}

// ───────────────────────────────────────────────────────────────────────────────
// RANKED OR
// ───────────────────────────────────────────────────────────────────────────────
// The exhaustive baseline every pruned algorithm is measured against:
// visit each candidate (the minimum docid across cursors), sum the
// partial scores of the cursors sitting on it, insert, advance them.

// RankedOrQuery scores the full disjunction.
type RankedOrQuery struct {
	Topk *TopKQueue
}

// Run drives cursors over [0, maxDocID) and fills the queue.
func (q *RankedOrQuery) Run(ctx context.Context, cursors []ScoredCursor, maxDocID uint32) {
	if len(cursors) == 0 || q.Topk.K() == 0 {
		return
	}

	curDoc := maxDocID
	for i := range cursors {
		if cursors[i].DocID() < curDoc {
			curDoc = cursors[i].DocID()
		}
	}

	for curDoc < maxDocID {
		if cancelled(ctx) {
			return
		}
		var score float32
		nextDoc := maxDocID
		for i := range cursors {
			c := &cursors[i]
			if c.DocID() == curDoc {
				score += c.Score()
				c.Next()
			}
			if c.DocID() < nextDoc {
				nextDoc = c.DocID()
			}
		}
		q.Topk.Insert(score, curDoc)
		curDoc = nextDoc
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// RANKED AND
// ───────────────────────────────────────────────────────────────────────────────

// RankedAndQuery scores the conjunction, with AND's skipping discipline.
type RankedAndQuery struct {
	Topk *TopKQueue
}

// Run drives cursors over [0, maxDocID) and fills the queue.
func (q *RankedAndQuery) Run(ctx context.Context, cursors []ScoredCursor, maxDocID uint32) {
	if len(cursors) == 0 || q.Topk.K() == 0 {
		return
	}

	ordered := orderByLen(cursors)

	candidate := ordered[0].DocID()
	i := 1
	for candidate < maxDocID {
		if cancelled(ctx) {
			return
		}
		for ; i < len(ordered); i++ {
			ordered[i].NextGEQ(candidate)
			if ordered[i].DocID() != candidate {
				candidate = ordered[i].DocID()
				i = 0
				break
			}
		}
		if i == len(ordered) {
			var score float32
			for _, c := range ordered {
				score += c.Score()
			}
			q.Topk.Insert(score, candidate)
			ordered[0].Next()
			candidate = ordered[0].DocID()
			i = 1
		}
	}
}

// orderByLen returns pointers to cursors sorted by list length.
func orderByLen(cursors []ScoredCursor) []*ScoredCursor {
	ordered := make([]*ScoredCursor, len(cursors))
	for i := range cursors {
		ordered[i] = &cursors[i]
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Postings.Len() < ordered[j].Postings.Len()
	})
	return ordered
}

// ───────────────────────────────────────────────────────────────────────────────
// WAND
// ───────────────────────────────────────────────────────────────────────────────
// Keep cursors sorted by current docid. Walk that order summing each
// term's GLOBAL max score until the running sum beats the queue's
// threshold: that cursor is the PIVOT, and its docid is the first
// document that could possibly enter the top k. Everything before the
// pivot either aligns on the pivot's docid (then score it fully) or
// gets leapfrogged straight to it.
//
// Broder, Carmel, Herscovici, Soffer, Zien: "Efficient query evaluation
// using a two-level retrieval process", CIKM 2003.

// WandQuery is term-bound max-score pruning.
type WandQuery struct {
	Topk *TopKQueue
}

// Run drives cursors over [0, maxDocID) and fills the queue.
func (q *WandQuery) Run(ctx context.Context, cursors []MaxScoredCursor, maxDocID uint32) {
	if len(cursors) == 0 || q.Topk.K() == 0 {
		return
	}

	ordered := make([]*MaxScoredCursor, len(cursors))
	for i := range cursors {
		ordered[i] = &cursors[i]
	}
	sortByDocID := func() {
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].DocID() < ordered[j].DocID()
		})
	}
	sortByDocID()

	for {
		if cancelled(ctx) {
			return
		}

		// Find the pivot: the shortest prefix whose bound sum beats the
		// threshold. No pivot → nothing left can enter → done.
		var upperBound float32
		pivot := -1
		for p, c := range ordered {
			if c.DocID() >= maxDocID {
				break
			}
			upperBound += c.MaxScore()
			if q.Topk.WouldEnter(upperBound) {
				pivot = p
				break
			}
		}
		if pivot < 0 {
			break
		}

		pivotID := ordered[pivot].DocID()
		if pivotID == ordered[0].DocID() {
			// All cursors before the pivot sit on pivotID: score it.
			var score float32
			for _, c := range ordered {
				if c.DocID() != pivotID {
					break
				}
				score += c.Score()
				c.Next()
			}
			q.Topk.Insert(score, pivotID)
			sortByDocID()
		} else {
			// Not aligned: leapfrog the laggard closest to the pivot.
			next := pivot
			for ordered[next].DocID() == pivotID {
				next--
			}
			ordered[next].NextGEQ(pivotID)
			bubbleDown(ordered, next, func(i, j int) bool {
				return ordered[i].DocID() < ordered[j].DocID()
			})
		}
	}
}

// bubbleDown restores sort order after ordered[idx] moved forward; a
// single pass suffices because only one element changed.
func bubbleDown[T any](ordered []T, idx int, less func(i, j int) bool) {
	for i := idx + 1; i < len(ordered); i++ {
		if less(i, i-1) {
			ordered[i], ordered[i-1] = ordered[i-1], ordered[i]
		} else {
			break
		}
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// MAXSCORE
// ───────────────────────────────────────────────────────────────────────────────
// Sort cursors by their global bound, ascending, and precompute prefix
// sums. The SUFFIX whose bounds can still beat the threshold is the
// ESSENTIAL set: it generates candidates. The prefix — the
// non-essential lists — is probed per candidate, highest bound first,
// and abandoned the moment the remaining bound cannot lift the
// candidate over the threshold. As the threshold rises, lists migrate
// from essential to non-essential and the candidate stream thins.
//
// Turtle & Flood: "Query evaluation: strategies and optimizations",
// Information Processing & Management 31(6), 1995.

// MaxScoreQuery is essential-list max-score pruning.
type MaxScoreQuery struct {
	Topk *TopKQueue
}

// Run drives cursors over [0, maxDocID) and fills the queue.
func (q *MaxScoreQuery) Run(ctx context.Context, cursors []MaxScoredCursor, maxDocID uint32) {
	if len(cursors) == 0 || q.Topk.K() == 0 {
		return
	}

	ordered := make([]*MaxScoredCursor, len(cursors))
	for i := range cursors {
		ordered[i] = &cursors[i]
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].MaxScore() < ordered[j].MaxScore()
	})

	upperBounds := make([]float32, len(ordered))
	upperBounds[0] = ordered[0].MaxScore()
	for i := 1; i < len(ordered); i++ {
		upperBounds[i] = upperBounds[i-1] + ordered[i].MaxScore()
	}

	nonEssential := 0
	curDoc := maxDocID
	for _, c := range ordered {
		if c.DocID() < curDoc {
			curDoc = c.DocID()
		}
	}

	for nonEssential < len(ordered) && curDoc < maxDocID {
		if cancelled(ctx) {
			return
		}

		// Essential lists: sum matches, find the next candidate.
		var score float32
		nextDoc := maxDocID
		for i := nonEssential; i < len(ordered); i++ {
			if ordered[i].DocID() == curDoc {
				score += ordered[i].Score()
				ordered[i].Next()
			}
			if ordered[i].DocID() < nextDoc {
				nextDoc = ordered[i].DocID()
			}
		}

		// Non-essential lists, richest bound first: stop as soon as
		// even a full match everywhere below cannot reach the top k.
		for i := nonEssential - 1; i >= 0; i-- {
			if !q.Topk.WouldEnter(score + upperBounds[i]) {
				break
			}
			ordered[i].NextGEQ(curDoc)
			if ordered[i].DocID() == curDoc {
				score += ordered[i].Score()
			}
		}

		if q.Topk.Insert(score, curDoc) {
			// The threshold may have risen: grow the non-essential set.
			for nonEssential < len(ordered) && !q.Topk.WouldEnter(upperBounds[nonEssential]) {
				nonEssential++
			}
		}
		curDoc = nextDoc
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// BLOCKMAX WAND
// ───────────────────────────────────────────────────────────────────────────────
// WAND with a second, tighter gate: before fully scoring a pivot,
// re-derive the bound from the PER-BLOCK maxima at the pivot's docid.
// When even that bound fails, no document in the current block
// configuration can enter — jump straight past it, to the closest block
// boundary + 1 (or the next cursor's docid, whichever is nearer).
//
// Ding & Suel: "Faster top-k document retrieval using block-max
// indexes", SIGIR 2011.

// BlockMaxWandQuery is WAND refined with block-level bounds.
type BlockMaxWandQuery struct {
	Topk *TopKQueue
}

// Run drives cursors over [0, maxDocID) and fills the queue.
func (q *BlockMaxWandQuery) Run(ctx context.Context, cursors []BlockMaxScoredCursor, maxDocID uint32) {
	if len(cursors) == 0 || q.Topk.K() == 0 {
		return
	}

	ordered := make([]*BlockMaxScoredCursor, len(cursors))
	for i := range cursors {
		ordered[i] = &cursors[i]
	}
	sortByDocID := func() {
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].DocID() < ordered[j].DocID()
		})
	}
	sortByDocID()

	for {
		if cancelled(ctx) {
			return
		}

		// Pivot selection, extended over every cursor already sitting
		// on the pivot docid (they all contribute to its block bound).
		var upperBound float32
		pivot := -1
		var pivotID uint32
		for p := 0; p < len(ordered); p++ {
			if ordered[p].DocID() >= maxDocID {
				break
			}
			upperBound += ordered[p].MaxScore()
			if q.Topk.WouldEnter(upperBound) {
				pivot = p
				pivotID = ordered[p].DocID()
				for pivot+1 < len(ordered) && ordered[pivot+1].DocID() == pivotID {
					pivot++
				}
				break
			}
		}
		if pivot < 0 {
			break
		}

		// Second gate: the block-level bound at pivotID.
		var blockUpperBound float32
		for i := 0; i <= pivot; i++ {
			if ordered[i].BlockMaxDocID() < pivotID {
				ordered[i].BlockMaxNextGEQ(pivotID)
			}
			blockUpperBound += ordered[i].BlockMaxScore()
		}

		if q.Topk.WouldEnter(blockUpperBound) {
			if pivotID == ordered[0].DocID() {
				// Aligned: score, tightening the block bound as real
				// scores replace block maxima, and bail early if it
				// drops under the threshold.
				var score float32
				for _, c := range ordered {
					if c.DocID() != pivotID {
						break
					}
					partScore := c.Score()
					score += partScore
					blockUpperBound -= c.BlockMaxScore() - partScore
					if !q.Topk.WouldEnter(blockUpperBound) {
						break
					}
				}
				for _, c := range ordered {
					if c.DocID() != pivotID {
						break
					}
					c.Next()
				}
				q.Topk.Insert(score, pivotID)
				sortByDocID()
			} else {
				next := pivot
				for ordered[next].DocID() == pivotID {
					next--
				}
				ordered[next].NextGEQ(pivotID)
				bubbleDown(ordered, next, func(i, j int) bool {
					return ordered[i].DocID() < ordered[j].DocID()
				})
			}
		} else {
			// Block bound failed: jump past the current blocks. Move
			// the heaviest list (by weight) among the pivot prefix.
			next := pivot
			weight := ordered[next].Weight
			for i := 0; i < pivot; i++ {
				if ordered[i].Weight > weight {
					next = i
					weight = ordered[i].Weight
				}
			}

			// The next interesting docid: one past the nearest block
			// boundary, clamped by the first cursor after the pivot.
			nextJump := uint64(maxDocID)
			for i := 0; i <= pivot; i++ {
				if d := uint64(ordered[i].BlockMaxDocID()); d < nextJump {
					nextJump = d
				}
			}
			target := nextJump + 1
			if pivot+1 < len(ordered) && uint64(ordered[pivot+1].DocID()) < target {
				target = uint64(ordered[pivot+1].DocID())
			}
			if target <= uint64(ordered[pivot].DocID()) {
				target = uint64(ordered[pivot].DocID()) + 1
			}
			if target > uint64(maxDocID) {
				target = uint64(maxDocID)
			}

			ordered[next].NextGEQ(uint32(target))
			bubbleDown(ordered, next, func(i, j int) bool {
				return ordered[i].DocID() < ordered[j].DocID()
			})
		}
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// BLOCKMAX MAXSCORE
// ───────────────────────────────────────────────────────────────────────────────
// MaxScore's essential/non-essential partition, with the non-essential
// probe gated by block-level bounds: before touching a non-essential
// posting list, check whether its CURRENT BLOCK's bound (instead of its
// global bound) keeps the candidate alive.

// BlockMaxMaxScoreQuery is MaxScore refined with block-level bounds.
type BlockMaxMaxScoreQuery struct {
	Topk *TopKQueue
}

// Run drives cursors over [0, maxDocID) and fills the queue.
func (q *BlockMaxMaxScoreQuery) Run(ctx context.Context, cursors []BlockMaxScoredCursor, maxDocID uint32) {
	if len(cursors) == 0 || q.Topk.K() == 0 {
		return
	}

	ordered := make([]*BlockMaxScoredCursor, len(cursors))
	for i := range cursors {
		ordered[i] = &cursors[i]
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].MaxScore() < ordered[j].MaxScore()
	})

	upperBounds := make([]float32, len(ordered))
	upperBounds[0] = ordered[0].MaxScore()
	for i := 1; i < len(ordered); i++ {
		upperBounds[i] = upperBounds[i-1] + ordered[i].MaxScore()
	}

	nonEssential := 0
	curDoc := maxDocID
	for _, c := range ordered {
		if c.DocID() < curDoc {
			curDoc = c.DocID()
		}
	}

	for nonEssential < len(ordered) && curDoc < maxDocID {
		if cancelled(ctx) {
			return
		}

		var score float32
		nextDoc := maxDocID
		for i := nonEssential; i < len(ordered); i++ {
			if ordered[i].DocID() == curDoc {
				score += ordered[i].Score()
				ordered[i].Next()
			}
			if ordered[i].DocID() < nextDoc {
				nextDoc = ordered[i].DocID()
			}
		}

		// Swap the non-essential GLOBAL bound for the sum of CURRENT
		// BLOCK bounds, list by list; abandon as soon as it sinks.
		var blockUpperBound float32
		if nonEssential > 0 {
			blockUpperBound = upperBounds[nonEssential-1]
		}
		alive := true
		for i := nonEssential - 1; i >= 0; i-- {
			if ordered[i].BlockMaxDocID() < curDoc {
				ordered[i].BlockMaxNextGEQ(curDoc)
			}
			blockUpperBound -= ordered[i].MaxScore() - ordered[i].BlockMaxScore()
			if !q.Topk.WouldEnter(score + blockUpperBound) {
				alive = false
				break
			}
		}
		if alive && q.Topk.WouldEnter(score+blockUpperBound) {
			// The candidate survived the block gate: resolve the
			// non-essential lists for real.
			for i := nonEssential - 1; i >= 0; i-- {
				ordered[i].NextGEQ(curDoc)
				if ordered[i].DocID() == curDoc {
					blockUpperBound += ordered[i].Score()
				}
				blockUpperBound -= ordered[i].BlockMaxScore()
				if !q.Topk.WouldEnter(score + blockUpperBound) {
					break
				}
			}
			score += blockUpperBound
		}

		if q.Topk.Insert(score, curDoc) {
			for nonEssential < len(ordered) && !q.Topk.WouldEnter(upperBounds[nonEssential]) {
				nonEssential++
			}
		}
		curDoc = nextDoc
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// BLOCKMAX RANKED AND
// ───────────────────────────────────────────────────────────────────────────────
// Ranked-AND's candidate stream with BlockMax-WAND's short-circuit: at
// every candidate, first sum the block bounds across ALL lists; when
// they cannot beat the threshold, hop to one past the nearest block
// boundary instead of resolving the conjunction posting by posting.

// BlockMaxRankedAndQuery is Ranked-AND refined with block-level bounds.
type BlockMaxRankedAndQuery struct {
	Topk *TopKQueue
}

// Run drives cursors over [0, maxDocID) and fills the queue.
func (q *BlockMaxRankedAndQuery) Run(ctx context.Context, cursors []BlockMaxScoredCursor, maxDocID uint32) {
	if len(cursors) == 0 || q.Topk.K() == 0 {
		return
	}

	ordered := make([]*BlockMaxScoredCursor, len(cursors))
	for i := range cursors {
		ordered[i] = &cursors[i]
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Postings.Len() < ordered[j].Postings.Len()
	})

	candidate := ordered[0].DocID()
	i := 1
	for candidate < maxDocID {
		if cancelled(ctx) {
			return
		}

		// Gate: block-level bound of the conjunction at the candidate.
		var blockUpperBound float32
		for _, c := range ordered {
			c.BlockMaxNextGEQ(candidate)
			blockUpperBound += c.BlockMaxScore()
		}

		if q.Topk.WouldEnter(blockUpperBound) {
			for ; i < len(ordered); i++ {
				ordered[i].NextGEQ(candidate)
				if ordered[i].DocID() != candidate {
					candidate = ordered[i].DocID()
					i = 0
					break
				}
			}
			if i == len(ordered) {
				var score float32
				for _, c := range ordered {
					score += c.Score()
				}
				q.Topk.Insert(score, candidate)
				ordered[0].Next()
				candidate = ordered[0].DocID()
				i = 1
			}
		} else {
			// Hop past the nearest block boundary; an exhausted block
			// table means the conjunction is over.
			nextJump := uint64(maxDocID)
			for _, c := range ordered {
				if d := uint64(c.BlockMaxDocID()); d < nextJump {
					nextJump = d
				}
			}
			if uint64(candidate) == nextJump+1 || nextJump+1 > uint64(maxDocID) {
				candidate = maxDocID
			} else {
				candidate = uint32(nextJump + 1)
			}
			// The jump target is synthetic: every list, the pivot
			// included, must re-verify it.
			i = 0
		}
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// TERM-AT-A-TIME RANKED OR
// ───────────────────────────────────────────────────────────────────────────────
// The oldest strategy in the book: walk each term's ENTIRE list in
// turn, adding partial scores into a docid-indexed accumulator, then
// sweep the accumulator into the queue. No skipping, no bounds — but
// perfectly sequential memory access per list.

// RankedOrTaatQuery scores the disjunction term-at-a-time.
type RankedOrTaatQuery struct {
	Topk *TopKQueue
	Acc  Accumulator
}

// Run walks each cursor fully, accumulating, then collects the top k.
func (q *RankedOrTaatQuery) Run(ctx context.Context, cursors []ScoredCursor, maxDocID uint32) {
	if len(cursors) == 0 || q.Topk.K() == 0 {
		return
	}

	q.Acc.Reset()
	for i := range cursors {
		if cancelled(ctx) {
			break // collect what accumulated so far
		}
		c := &cursors[i]
		for c.DocID() < maxDocID {
			q.Acc.Accumulate(c.DocID(), c.Score())
			c.Next()
		}
	}
	q.Acc.Collect(q.Topk)
}
