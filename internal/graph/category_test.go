package graph

import (
	"slices"
	"testing"
)

// smallTree builds C0 → {C1, C2}, C1 → C3.
func smallTree() *CategoryGraph {
	return NewCategoryGraph(4, []Edge{
		{From: 0, To: 1},
		{From: 0, To: 2},
		{From: 1, To: 3},
	})
}

func TestChildren_Ordering(t *testing.T) {
	t.Parallel()
	g := NewCategoryGraph(3, []Edge{
		{From: 0, To: 2},
		{From: 0, To: 1},
	})
	if got := g.Children(0); !slices.Equal(got, []uint32{1, 2}) {
		t.Errorf("Children(0): got %v, want [1 2]", got)
	}
}

func TestDepth_Tree(t *testing.T) {
	t.Parallel()
	g := smallTree()
	want := []int{0, 1, 1, 2}
	for c, d := range want {
		if got := g.Depth(uint32(c)); got != d {
			t.Errorf("Depth(%d): got %d, want %d", c, got, d)
		}
		if g.Orphan(uint32(c)) {
			t.Errorf("Orphan(%d): got true, want false", c)
		}
	}
	if s := g.Stats(); s.MaxObservedDepth != 2 {
		t.Errorf("MaxObservedDepth: got %d, want 2", s.MaxObservedDepth)
	}
}

// TestDepth_CycleWithEntry covers a cycle reachable from a root:
// R → A → B → C → A. The cycle edge back to A must not extend depths.
func TestDepth_CycleWithEntry(t *testing.T) {
	t.Parallel()
	g := NewCategoryGraph(4, []Edge{
		{From: 0, To: 1}, // R → A
		{From: 1, To: 2}, // A → B
		{From: 2, To: 3}, // B → C
		{From: 3, To: 1}, // C → A closes the cycle
	})
	want := []int{0, 1, 2, 3}
	for c, d := range want {
		if got := g.Depth(uint32(c)); got != d {
			t.Errorf("Depth(%d): got %d, want %d", c, got, d)
		}
	}
	if s := g.Stats(); s.Orphans != 0 {
		t.Errorf("Orphans: got %d, want 0", s.Orphans)
	}
}

// TestDepth_PureCycle covers an isolated cycle with no root: all members are
// orphans at depth 0.
func TestDepth_PureCycle(t *testing.T) {
	t.Parallel()
	g := NewCategoryGraph(3, []Edge{
		{From: 0, To: 1},
		{From: 1, To: 2},
		{From: 2, To: 0},
	})
	for c := uint32(0); c < 3; c++ {
		if !g.Orphan(c) {
			t.Errorf("Orphan(%d): got false, want true", c)
		}
		if g.Depth(c) != 0 {
			t.Errorf("Depth(%d): got %d, want 0", c, g.Depth(c))
		}
	}
	if s := g.Stats(); s.Orphans != 3 {
		t.Errorf("Orphans: got %d, want 3", s.Orphans)
	}
}

func TestDepth_Clamp(t *testing.T) {
	t.Parallel()
	// A chain of 70 categories: depths 0..69, everything past 63 clamps.
	const n = 70
	edges := make([]Edge, 0, n-1)
	for i := uint32(0); i < n-1; i++ {
		edges = append(edges, Edge{From: i, To: i + 1})
	}
	g := NewCategoryGraph(n, edges)

	if got := g.Depth(63); got != MaxDepth {
		t.Errorf("Depth(63): got %d, want %d", got, MaxDepth)
	}
	if got := g.Depth(69); got != MaxDepth {
		t.Errorf("Depth(69): got %d, want %d", got, MaxDepth)
	}
	if s := g.Stats(); s.DepthClamped != 6 {
		t.Errorf("DepthClamped: got %d, want 6 (layers 64..69)", s.DepthClamped)
	}
	if s := g.Stats(); s.MaxObservedDepth != MaxDepth {
		t.Errorf("MaxObservedDepth: got %d, want %d", s.MaxObservedDepth, MaxDepth)
	}
}

func TestDescendants_Bounded(t *testing.T) {
	t.Parallel()
	g := smallTree()

	if got := g.Descendants(0, 0); !slices.Equal(got, []uint32{0}) {
		t.Errorf("Descendants(0, 0): got %v, want [0]", got)
	}
	if got := g.Descendants(0, 1); !slices.Equal(got, []uint32{0, 1, 2}) {
		t.Errorf("Descendants(0, 1): got %v, want [0 1 2]", got)
	}
	if got := g.Descendants(0, 10); !slices.Equal(got, []uint32{0, 1, 2, 3}) {
		t.Errorf("Descendants(0, 10): got %v, want [0 1 2 3]", got)
	}
}

// TestDescendants_Cycle covers a pure rotation cycle: a→b→c→a yields
// exactly {a, b, c}.
func TestDescendants_Cycle(t *testing.T) {
	t.Parallel()
	g := NewCategoryGraph(3, []Edge{
		{From: 0, To: 1},
		{From: 1, To: 2},
		{From: 2, To: 0},
	})
	got := g.Descendants(0, 10)
	if !slices.Equal(got, []uint32{0, 1, 2}) {
		t.Errorf("Descendants(a, 10): got %v, want [0 1 2]", got)
	}
}

// TestDescendants_Diamond verifies that a node reachable through two parents
// is emitted once, in the layer of its first discovery.
func TestDescendants_Diamond(t *testing.T) {
	t.Parallel()
	g := NewCategoryGraph(4, []Edge{
		{From: 0, To: 1},
		{From: 0, To: 2},
		{From: 1, To: 3},
		{From: 2, To: 3},
	})
	got := g.Descendants(0, 5)
	if !slices.Equal(got, []uint32{0, 1, 2, 3}) {
		t.Errorf("Descendants: got %v, want [0 1 2 3]", got)
	}
}

func TestPropagateUp(t *testing.T) {
	t.Parallel()
	g := smallTree()
	scores := []uint64{0, 0, 5, 7}
	g.PropagateUp(scores)

	// C3's 7 flows into C1, then C1's 7 and C2's 5 flow into C0.
	want := []uint64{12, 7, 5, 7}
	if !slices.Equal(scores, want) {
		t.Errorf("PropagateUp: got %v, want %v", scores, want)
	}
}

// TestPropagateUp_Cycle verifies that cycle edges cannot inflate scores: only
// edges stepping exactly one layer up participate.
func TestPropagateUp_Cycle(t *testing.T) {
	t.Parallel()
	g := NewCategoryGraph(4, []Edge{
		{From: 0, To: 1},
		{From: 1, To: 2},
		{From: 2, To: 3},
		{From: 3, To: 1},
	})
	scores := []uint64{0, 0, 0, 10}
	g.PropagateUp(scores)

	// 10 climbs C3 → C2 → C1 → C0; the C3 → C1 cycle edge spans two layers
	// and is ignored.
	want := []uint64{10, 10, 10, 10}
	if !slices.Equal(scores, want) {
		t.Errorf("PropagateUp: got %v, want %v", scores, want)
	}
}

func TestPropagateUp_LengthMismatchPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for wrong accumulator length")
		}
	}()
	smallTree().PropagateUp(make([]uint64, 2))
}
