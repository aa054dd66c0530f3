package ember

import "github.com/bits-and-blooms/bitset"

// ═══════════════════════════════════════════════════════════════════════════════
// ACCUMULATORS
// ═══════════════════════════════════════════════════════════════════════════════
// Term-at-a-time processing scores documents in posting-list order, not
// docid order, so partial scores must be PARKED somewhere docid-indexed
// until every term has been processed. That somewhere is an accumulator.
//
// CONTRACT (both implementations):
// --------------------------------
// After any sequence of Accumulate calls since the last Reset, the
// stored value of a visited docid equals the SUM of the deltas applied
// to it. Collect pushes every live (docid, score) into a top-k queue.
//
// TWO TRADE-OFFS:
// ---------------
//
//	SimpleAccumulator → one float per document. Reset touches all D
//	                    entries; Accumulate is a single add.
//	LazyAccumulator   → documents grouped into buckets of w counters,
//	                    each bucket stamped with a GENERATION. Reset
//	                    just bumps the generation (plus an O(D/w)-bit
//	                    sweep of the dirty set); a stale bucket is
//	                    zeroed on first touch. Wins whenever queries
//	                    touch a sparse fraction of the collection.
// ═══════════════════════════════════════════════════════════════════════════════

// Accumulator is a docid-indexed partial-score store for TAAT retrieval.
type Accumulator interface {
	// Reset prepares the accumulator for the next query.
	Reset()
	// Accumulate adds delta to doc's score.
	Accumulate(doc uint32, delta float32)
	// Collect offers every live entry to the queue.
	Collect(topk *TopKQueue)
	// Size returns the docid capacity D.
	Size() int
}

// ───────────────────────────────────────────────────────────────────────────────
// SIMPLE ACCUMULATOR
// ───────────────────────────────────────────────────────────────────────────────

// SimpleAccumulator is a dense score array, one float32 per document.
type SimpleAccumulator struct {
	scores []float32
}

// NewSimpleAccumulator sizes an accumulator for docids in [0, size).
func NewSimpleAccumulator(size int) *SimpleAccumulator {
	return &SimpleAccumulator{scores: make([]float32, size)}
}

func (a *SimpleAccumulator) Reset() {
	clear(a.scores)
}

func (a *SimpleAccumulator) Accumulate(doc uint32, delta float32) {
	a.scores[doc] += delta
}

func (a *SimpleAccumulator) Collect(topk *TopKQueue) {
	// Zero means "never touched" (or clamped to nothing): not a result.
	for doc, score := range a.scores {
		if score > 0 && topk.WouldEnter(score) {
			topk.Insert(score, uint32(doc))
		}
	}
}

func (a *SimpleAccumulator) Size() int { return len(a.scores) }

// ───────────────────────────────────────────────────────────────────────────────
// LAZY ACCUMULATOR
// ───────────────────────────────────────────────────────────────────────────────
// EXAMPLE (w = 4, D = 16):
//
//	buckets:  [gen=7: s0 s1 s2 s3] [gen=3: ...] [gen=7: ...] [gen=5: ...]
//	current generation: 7
//
// Buckets stamped 7 are live; the others are logically zero and get
// physically zeroed only if this query touches them. The dirty bitset
// (one bit per bucket) makes Collect skip untouched ranges entirely.

// lazyBucketWidth is the default number of counters per bucket.
const lazyBucketWidth = 8

// LazyAccumulator is a generation-stamped bucketed score array.
type LazyAccumulator struct {
	width      int
	generation uint32
	stamps     []uint32
	scores     []float32
	dirty      *bitset.BitSet
}

// NewLazyAccumulator sizes an accumulator for docids in [0, size), with
// width counters per bucket (0 picks the default).
func NewLazyAccumulator(size, width int) *LazyAccumulator {
	if width <= 0 {
		width = lazyBucketWidth
	}
	buckets := ceilDiv(size, width)
	return &LazyAccumulator{
		width:      width,
		generation: 1,
		stamps:     make([]uint32, buckets),
		scores:     make([]float32, size),
		dirty:      bitset.New(uint(buckets)),
	}
}

func (a *LazyAccumulator) Reset() {
	a.generation++
	a.dirty.ClearAll()
}

func (a *LazyAccumulator) Accumulate(doc uint32, delta float32) {
	b := int(doc) / a.width
	if a.stamps[b] != a.generation {
		// First touch this query: zero the bucket and stamp it live.
		start := b * a.width
		end := start + a.width
		if end > len(a.scores) {
			end = len(a.scores)
		}
		clear(a.scores[start:end])
		a.stamps[b] = a.generation
		a.dirty.Set(uint(b))
	}
	a.scores[doc] += delta
}

func (a *LazyAccumulator) Collect(topk *TopKQueue) {
	for b, ok := a.dirty.NextSet(0); ok; b, ok = a.dirty.NextSet(b + 1) {
		start := int(b) * a.width
		end := start + a.width
		if end > len(a.scores) {
			end = len(a.scores)
		}
		for doc := start; doc < end; doc++ {
			if score := a.scores[doc]; score > 0 && topk.WouldEnter(score) {
				topk.Insert(score, uint32(doc))
			}
		}
	}
}

func (a *LazyAccumulator) Size() int { return len(a.scores) }
