package query

import (
	"container/heap"
	"sort"
)

// scored pairs a dense id with its aggregate score during top-K selection.
type scored struct {
	id    uint32
	score uint64
}

// scoredHeap implements [container/heap.Interface] as a min-heap whose root
// is the current worst entry: lowest score first, and among equal scores the
// larger dense id, so that the smaller id survives a tie for the last slot.
type scoredHeap []scored

func (h scoredHeap) Len() int { return len(h) }

// Less reports whether element i is worse than element j.
func (h scoredHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].id > h[j].id
}

func (h scoredHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *scoredHeap) Push(x any) {
	*h = append(*h, x.(scored))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// topCollector selects the n best (score, id) entries from a stream using a
// bounded min-heap, O(log n) per offer. Zero-score entries are skipped.
type topCollector struct {
	n int
	h scoredHeap
}

func newTopCollector(n int) *topCollector {
	tc := &topCollector{n: n}
	if n > 0 {
		tc.h = make(scoredHeap, 0, n)
	}
	return tc
}

// offer considers one entry for the top set.
func (tc *topCollector) offer(id uint32, score uint64) {
	if tc.n == 0 || score == 0 {
		return
	}
	if len(tc.h) < tc.n {
		heap.Push(&tc.h, scored{id: id, score: score})
		return
	}
	worst := tc.h[0]
	if score > worst.score || (score == worst.score && id < worst.id) {
		tc.h[0] = scored{id: id, score: score}
		heap.Fix(&tc.h, 0)
	}
}

// results returns the collected entries ordered best first: descending score,
// ascending dense id on ties. The collector must not be reused afterwards.
func (tc *topCollector) results() []scored {
	out := make([]scored, len(tc.h))
	copy(out, tc.h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id < out[j].id
	})
	return out
}
