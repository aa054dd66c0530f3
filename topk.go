package ember

import "sort"

// ═══════════════════════════════════════════════════════════════════════════════
// TOP-K QUEUE
// ═══════════════════════════════════════════════════════════════════════════════
// A bounded priority queue of the k best (score, docid) candidates seen
// so far, backed by a slice min-heap: the ROOT is the WORST retained
// result, so beating the root is the entry test and evicting it is O(log k).
//
// THE THRESHOLD IS THE WHOLE POINT:
// ---------------------------------
// Once the heap is full, Threshold() — the k-th best score — is a live
// lower bound that WAND, MaxScore and the BlockMax processors compare
// score UPPER bounds against. Every skip those algorithms make is
// justified by this queue's root. The threshold never decreases during
// a query (inserts only raise the minimum), which is what makes pruning
// sound.
//
// EXAMPLE (k = 3):
// ----------------
//
//	Insert(5.0, 10) Insert(2.0, 4) Insert(7.0, 8)   → heap {2, 5, 7}
//	Threshold() = 2.0
//	Insert(1.0, 2)  → rejected (1.0 ≤ 2.0), heap unchanged
//	Insert(3.0, 30) → evicts 2.0, heap {3, 5, 7}, threshold 3.0
//
// Heap order uses SCORE ONLY; equal-score ties are resolved at Finalize
// (score descending, then docid ascending), not during insertion.
// ═══════════════════════════════════════════════════════════════════════════════

// Result is one (score, docid) entry of a top-k answer.
type Result struct {
	Score float32
	DocID uint32
}

// TopKQueue keeps the best k results with a live score threshold.
type TopKQueue struct {
	k       int
	entries []Result
	initial float32 // caller-provided starting threshold
	seeded  bool    // whether initial was explicitly set
}

// NewTopKQueue creates a queue retaining the best k results.
func NewTopKQueue(k int) *TopKQueue {
	return &TopKQueue{k: k, entries: make([]Result, 0, k+1)}
}

// K returns the queue's capacity.
func (q *TopKQueue) K() int { return q.k }

// SetInitialThreshold seeds the threshold before a query runs, e.g.
// from a previously observed k-th score. Candidates at or below it are
// rejected even while the queue is filling, so an overestimated seed
// can cost recall — it is the caller's promise, not checked here.
func (q *TopKQueue) SetInitialThreshold(t float32) {
	q.initial = t
	q.seeded = true
}

// WouldEnter reports whether a candidate with this score would be kept:
// above the initial threshold while the queue is filling, strictly
// above the minimum once full. Processors use it to rule out candidates
// from bounds alone.
func (q *TopKQueue) WouldEnter(score float32) bool {
	if q.k <= 0 {
		return false
	}
	if len(q.entries) < q.k {
		return q.k > 0 && (!q.seeded || score > q.initial)
	}
	return score > q.entries[0].Score
}

// Insert offers a candidate; returns whether it was kept.
func (q *TopKQueue) Insert(score float32, docid uint32) bool {
	if !q.WouldEnter(score) {
		return false
	}
	q.entries = append(q.entries, Result{Score: score, DocID: docid})
	q.siftUp(len(q.entries) - 1)
	if len(q.entries) > q.k {
		q.popMin()
	}
	return true
}

// Threshold returns the k-th best score so far; while the queue is
// filling it is 0, or the seeded initial threshold if one was set.
func (q *TopKQueue) Threshold() float32 {
	if len(q.entries) < q.k || len(q.entries) == 0 {
		return q.initial
	}
	return q.entries[0].Score
}

// Finalize sorts the retained results for presentation: score
// descending, docid ascending on ties. The queue must be Cleared before
// further inserts.
func (q *TopKQueue) Finalize() {
	sort.Slice(q.entries, func(i, j int) bool {
		if q.entries[i].Score != q.entries[j].Score {
			return q.entries[i].Score > q.entries[j].Score
		}
		return q.entries[i].DocID < q.entries[j].DocID
	})
}

// Results returns the current entries (ordered only after Finalize).
func (q *TopKQueue) Results() []Result { return q.entries }

// Clear empties the queue (and drops any seeded threshold), keeping
// capacity for the next query.
func (q *TopKQueue) Clear() {
	q.entries = q.entries[:0]
	q.initial = 0
	q.seeded = false
}

// siftUp restores heap order from a freshly appended leaf.
func (q *TopKQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if q.entries[parent].Score <= q.entries[i].Score {
			break
		}
		q.entries[parent], q.entries[i] = q.entries[i], q.entries[parent]
		i = parent
	}
}

// popMin removes the root (the minimum score).
func (q *TopKQueue) popMin() {
	last := len(q.entries) - 1
	q.entries[0] = q.entries[last]
	q.entries = q.entries[:last]

	i := 0
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < len(q.entries) && q.entries[left].Score < q.entries[smallest].Score {
			smallest = left
		}
		if right < len(q.entries) && q.entries[right].Score < q.entries[smallest].Score {
			smallest = right
		}
		if smallest == i {
			return
		}
		q.entries[i], q.entries[smallest] = q.entries[smallest], q.entries[i]
		i = smallest
	}
}
