// Package graph holds the Compressed Sparse Row topology of a wiki corpus:
// the category→subcategory graph with its depth analysis, and the
// article→category membership index with its inverted form.
//
// Everything in this package is built once at corpus load and is immutable
// afterwards; all read operations are safe for concurrent use without locks.
// Dense ids passed to read operations must be in range; out-of-range ids are
// a programmer error and panic.
package graph

import "slices"

// Edge is a single directed edge between two dense ids.
type Edge struct {
	// From is the source dense id (parent category, or article).
	From uint32

	// To is the target dense id (child category, or category).
	To uint32
}

// csr is a Compressed Sparse Row adjacency list. The neighbours of row i are
// targets[offsets[i]:offsets[i+1]], sorted ascending and duplicate-free.
type csr struct {
	offsets []uint32
	targets []uint32
}

// buildCSR constructs a csr over numRows rows from the given edges.
// Duplicate edges are removed; the returned count reports how many were
// dropped. Edges are placed with a counting pass, a prefix sum, and a
// per-row sort+dedupe, so the build is O(E log deg) with no per-edge
// allocation.
func buildCSR(numRows int, edges []Edge) (csr, int) {
	offsets := make([]uint32, numRows+1)
	for _, e := range edges {
		offsets[e.From+1]++
	}
	for i := 1; i <= numRows; i++ {
		offsets[i] += offsets[i-1]
	}

	targets := make([]uint32, len(edges))
	next := make([]uint32, numRows)
	copy(next, offsets[:numRows])
	for _, e := range edges {
		targets[next[e.From]] = e.To
		next[e.From]++
	}

	// Sort and dedupe each row in place, compacting the arrays as we go.
	// write trails the read cursor; offsets are rewritten to the compacted
	// positions.
	var write uint32
	dropped := 0
	for i := 0; i < numRows; i++ {
		row := targets[offsets[i]:offsets[i+1]]
		slices.Sort(row)
		start := write
		for j, t := range row {
			if j > 0 && t == row[j-1] {
				dropped++
				continue
			}
			targets[write] = t
			write++
		}
		offsets[i] = start
	}
	offsets[numRows] = write

	return csr{offsets: offsets, targets: targets[:write]}, dropped
}

// row returns the neighbour slice of row i.
func (c csr) row(i uint32) []uint32 {
	return c.targets[c.offsets[i]:c.offsets[i+1]]
}

// numEdges returns the total edge count after deduplication.
func (c csr) numEdges() int {
	return len(c.targets)
}

// invert returns the transpose of c: an edge (i → j) becomes (j → i).
// numTargetRows is the size of the target id domain, which becomes the row
// count of the transposed csr.
func (c csr) invert(numTargetRows int) csr {
	offsets := make([]uint32, numTargetRows+1)
	for _, t := range c.targets {
		offsets[t+1]++
	}
	for i := 1; i <= numTargetRows; i++ {
		offsets[i] += offsets[i-1]
	}

	targets := make([]uint32, len(c.targets))
	next := make([]uint32, numTargetRows)
	copy(next, offsets[:numTargetRows])
	srcRows := len(c.offsets) - 1
	for i := 0; i < srcRows; i++ {
		for _, t := range c.row(uint32(i)) {
			targets[next[t]] = uint32(i)
			next[t]++
		}
	}
	// Rows of the source are visited in ascending order, so each inverted row
	// is already sorted and duplicate-free.
	return csr{offsets: offsets, targets: targets}
}
