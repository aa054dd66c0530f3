package ember

import (
	"math/rand"
	"sort"
	"testing"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TOP-K QUEUE TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestTopKQueue_BasicInsertAndThreshold(t *testing.T) {
	q := NewTopKQueue(3)

	if q.Threshold() != 0 {
		t.Fatalf("empty Threshold() = %f, want 0", q.Threshold())
	}
	if !q.WouldEnter(0.001) {
		t.Fatal("any score should enter a filling queue")
	}

	q.Insert(5, 10)
	q.Insert(2, 4)
	if q.Threshold() != 0 {
		t.Fatalf("Threshold() = %f while filling, want 0", q.Threshold())
	}

	q.Insert(7, 8)
	if q.Threshold() != 2 {
		t.Fatalf("full Threshold() = %f, want 2", q.Threshold())
	}

	if q.WouldEnter(2) {
		t.Error("WouldEnter(threshold) must be false: strictly greater required")
	}
	if q.Insert(1, 2) {
		t.Error("Insert below threshold should be rejected")
	}
	if !q.Insert(3, 30) {
		t.Error("Insert above threshold should be accepted")
	}
	if q.Threshold() != 3 {
		t.Fatalf("Threshold() = %f after eviction, want 3", q.Threshold())
	}
}

func TestTopKQueue_ThresholdMonotone(t *testing.T) {
	// The entire pruning family is correct only because this never
	// decreases within a query.
	rng := rand.New(rand.NewSource(5))
	q := NewTopKQueue(10)

	last := float32(0)
	for i := 0; i < 1000; i++ {
		q.Insert(rng.Float32()*100, uint32(i))
		if th := q.Threshold(); th < last {
			t.Fatalf("threshold decreased: %f after %f", th, last)
		} else {
			last = th
		}
	}
}

func TestTopKQueue_FinalizeOrder(t *testing.T) {
	q := NewTopKQueue(4)
	q.Insert(1.5, 9)
	q.Insert(3.5, 2)
	q.Insert(1.5, 3)
	q.Insert(2.5, 7)
	q.Finalize()

	want := []Result{{3.5, 2}, {2.5, 7}, {1.5, 3}, {1.5, 9}}
	got := q.Results()
	if len(got) != len(want) {
		t.Fatalf("Results() has %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result[%d] = %+v, want %+v (score desc, docid asc on ties)", i, got[i], want[i])
		}
	}
}

func TestTopKQueue_KeepsTrueTopK(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	const k, total = 25, 5000

	q := NewTopKQueue(k)
	scores := make([]float32, total)
	for i := range scores {
		scores[i] = rng.Float32() * 1000
		q.Insert(scores[i], uint32(i))
	}
	q.Finalize()

	sort.Slice(scores, func(i, j int) bool { return scores[i] > scores[j] })
	results := q.Results()
	if len(results) != k {
		t.Fatalf("kept %d results, want %d", len(results), k)
	}
	for i := 0; i < k; i++ {
		if results[i].Score != scores[i] {
			t.Fatalf("rank %d score = %f, want %f", i, results[i].Score, scores[i])
		}
	}
}

func TestTopKQueue_ZeroK(t *testing.T) {
	q := NewTopKQueue(0)
	if q.WouldEnter(100) {
		t.Error("k = 0 queue must reject everything")
	}
	if q.Insert(100, 1) {
		t.Error("k = 0 queue must not keep entries")
	}
	if len(q.Results()) != 0 {
		t.Error("k = 0 queue must stay empty")
	}
}

func TestTopKQueue_InitialThreshold(t *testing.T) {
	q := NewTopKQueue(3)
	q.SetInitialThreshold(5)

	if q.WouldEnter(4) {
		t.Error("score below the seeded threshold must be rejected while filling")
	}
	if q.Insert(4, 1) {
		t.Error("Insert below the seeded threshold must fail")
	}
	if !q.Insert(6, 2) {
		t.Error("Insert above the seeded threshold must succeed")
	}
	if q.Threshold() != 5 {
		t.Errorf("Threshold() = %f while filling with seed, want 5", q.Threshold())
	}

	q.Clear()
	if !q.WouldEnter(0.5) {
		t.Error("Clear must drop the seeded threshold")
	}
}

func TestTopKQueue_ClearRetainsCapacity(t *testing.T) {
	q := NewTopKQueue(2)
	q.Insert(1, 1)
	q.Insert(2, 2)
	q.Clear()

	if len(q.Results()) != 0 {
		t.Fatal("Clear must empty the queue")
	}
	q.Insert(9, 9)
	q.Insert(8, 8)
	q.Insert(7, 7)
	q.Finalize()
	if len(q.Results()) != 2 || q.Results()[0].Score != 9 {
		t.Fatal("queue must be fully usable after Clear")
	}
}
