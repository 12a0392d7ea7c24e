package graph

import (
	"slices"
	"testing"
)

func TestBuildCSR_SortsAndDedupes(t *testing.T) {
	t.Parallel()
	edges := []Edge{
		{From: 0, To: 3},
		{From: 0, To: 1},
		{From: 0, To: 3}, // duplicate
		{From: 2, To: 0},
	}
	c, dropped := buildCSR(4, edges)

	if dropped != 1 {
		t.Errorf("dropped: got %d, want 1", dropped)
	}
	if got := c.row(0); !slices.Equal(got, []uint32{1, 3}) {
		t.Errorf("row(0): got %v, want [1 3]", got)
	}
	if got := c.row(1); len(got) != 0 {
		t.Errorf("row(1): got %v, want empty", got)
	}
	if got := c.row(2); !slices.Equal(got, []uint32{0}) {
		t.Errorf("row(2): got %v, want [0]", got)
	}
	if c.numEdges() != 3 {
		t.Errorf("numEdges: got %d, want 3", c.numEdges())
	}
}

// TestBuildCSR_Invariants checks offset monotonicity and strictly increasing
// rows on a denser random-ish graph.
func TestBuildCSR_Invariants(t *testing.T) {
	t.Parallel()
	const rows = 50
	var edges []Edge
	for i := uint32(0); i < rows; i++ {
		for j := uint32(0); j < rows; j += i%7 + 1 {
			edges = append(edges, Edge{From: i, To: (i*j + 13) % rows})
		}
	}
	c, _ := buildCSR(rows, edges)

	for i := 0; i < rows; i++ {
		if c.offsets[i] > c.offsets[i+1] {
			t.Fatalf("offsets not monotonic at %d: %d > %d", i, c.offsets[i], c.offsets[i+1])
		}
		row := c.row(uint32(i))
		for j := 1; j < len(row); j++ {
			if row[j] <= row[j-1] {
				t.Fatalf("row %d not strictly increasing: %v", i, row)
			}
		}
		for _, target := range row {
			if target >= rows {
				t.Fatalf("row %d target %d out of range", i, target)
			}
		}
	}
	if int(c.offsets[rows]) != c.numEdges() {
		t.Errorf("final offset %d != edge count %d", c.offsets[rows], c.numEdges())
	}
}

func TestInvert(t *testing.T) {
	t.Parallel()
	// Articles 0..2 into categories over a domain of 4.
	edges := []Edge{
		{From: 0, To: 1},
		{From: 0, To: 2},
		{From: 1, To: 2},
		{From: 2, To: 0},
	}
	c, _ := buildCSR(3, edges)
	inv := c.invert(4)

	want := map[uint32][]uint32{
		0: {2},
		1: {0},
		2: {0, 1},
		3: {},
	}
	for row, expected := range want {
		if got := inv.row(row); !slices.Equal(got, expected) && !(len(got) == 0 && len(expected) == 0) {
			t.Errorf("invert row(%d): got %v, want %v", row, got, expected)
		}
	}
	if inv.numEdges() != c.numEdges() {
		t.Errorf("invert edge count: got %d, want %d", inv.numEdges(), c.numEdges())
	}
}

func TestBuildCSR_Empty(t *testing.T) {
	t.Parallel()
	c, dropped := buildCSR(3, nil)
	if dropped != 0 || c.numEdges() != 0 {
		t.Fatalf("empty build: dropped=%d edges=%d", dropped, c.numEdges())
	}
	for i := uint32(0); i < 3; i++ {
		if len(c.row(i)) != 0 {
			t.Errorf("row(%d): expected empty", i)
		}
	}
}
