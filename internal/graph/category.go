package graph

import "slices"

// MaxDepth is the depth cap for the category graph. Categories whose BFS
// layer from the root set exceeds it are clamped and counted.
const MaxDepth = 63

// CategoryGraph is the directed category→subcategory graph of one wiki,
// in CSR form, together with the per-category depth field used for
// cycle-safe propagation.
//
// The graph is immutable after construction; all methods are safe for
// concurrent use.
type CategoryGraph struct {
	children csr
	parents  csr

	// depth[c] is the BFS layer of c from the in-degree-zero root set,
	// clamped at MaxDepth. Orphans (nodes unreachable from any root, i.e.
	// pure cycle components) carry depth 0 with the orphan bit set.
	depth  []uint8
	orphan []bool

	stats CategoryStats
}

// CategoryStats reports build-time counters, exposed as health metrics.
type CategoryStats struct {
	// DuplicateEdges is the number of parent→child pairs dropped during
	// deduplication.
	DuplicateEdges int

	// DepthClamped is the number of categories whose depth exceeded MaxDepth
	// and was clamped.
	DepthClamped int

	// Orphans is the number of categories unreachable from any root.
	Orphans int

	// MaxObservedDepth is the deepest unclamped BFS layer reached.
	MaxObservedDepth int
}

// NewCategoryGraph builds the CSR representation and depth field from the
// given parent→child edges over numCategories dense ids. Duplicate edges are
// removed. Edges must reference dense ids < numCategories; the loader
// guarantees this by construction.
func NewCategoryGraph(numCategories int, edges []Edge) *CategoryGraph {
	g := &CategoryGraph{}
	var dropped int
	g.children, dropped = buildCSR(numCategories, edges)
	g.parents = g.children.invert(numCategories)
	g.stats.DuplicateEdges = dropped
	g.computeDepths(numCategories)
	return g
}

// computeDepths assigns each category its BFS layer from the root set.
//
// Roots are the in-degree-zero nodes. The BFS visits each node once; the
// layer at first visit is its depth. Edges that would revisit a discovered
// node are exactly the edges closing a cycle in the spanning DAG, and are
// skipped, so cycles cannot extend depths. Nodes never reached sit in pure
// cycle components: they keep depth 0 and are marked orphan.
func (g *CategoryGraph) computeDepths(numCategories int) {
	g.depth = make([]uint8, numCategories)
	g.orphan = make([]bool, numCategories)

	visited := make([]bool, numCategories)
	frontier := make([]uint32, 0, 1024)
	for c := 0; c < numCategories; c++ {
		if len(g.parents.row(uint32(c))) == 0 {
			frontier = append(frontier, uint32(c))
			visited[c] = true
		}
	}

	layer := 0
	next := make([]uint32, 0, 1024)
	for len(frontier) > 0 {
		d := layer
		if d > MaxDepth {
			d = MaxDepth
		}
		for _, c := range frontier {
			if layer > MaxDepth {
				g.stats.DepthClamped++
			} else if layer > g.stats.MaxObservedDepth {
				g.stats.MaxObservedDepth = layer
			}
			g.depth[c] = uint8(d)
			for _, child := range g.children.row(c) {
				if !visited[child] {
					visited[child] = true
					next = append(next, child)
				}
			}
		}
		frontier, next = next, frontier[:0]
		layer++
	}

	for c := 0; c < numCategories; c++ {
		if !visited[c] {
			g.orphan[c] = true
			g.stats.Orphans++
		}
	}
}

// NumCategories returns the number of category dense ids.
func (g *CategoryGraph) NumCategories() int {
	return len(g.depth)
}

// NumEdges returns the number of distinct parent→child edges.
func (g *CategoryGraph) NumEdges() int {
	return g.children.numEdges()
}

// Stats returns the build-time counters.
func (g *CategoryGraph) Stats() CategoryStats {
	return g.stats
}

// Children returns the direct subcategories of c, ascending by dense id.
// The returned slice aliases the CSR buffer and must not be modified.
func (g *CategoryGraph) Children(c uint32) []uint32 {
	return g.children.row(c)
}

// Parents returns the direct parent categories of c, ascending by dense id.
// The returned slice aliases the CSR buffer and must not be modified.
func (g *CategoryGraph) Parents(c uint32) []uint32 {
	return g.parents.row(c)
}

// Depth returns the BFS-layer depth of c.
func (g *CategoryGraph) Depth(c uint32) int {
	return int(g.depth[c])
}

// Orphan reports whether c is unreachable from every root.
func (g *CategoryGraph) Orphan(c uint32) bool {
	return g.orphan[c]
}

// Descendants returns c and every category reachable from it within maxDepth
// layers, visiting each node at most once. The result is in BFS layer order,
// ascending by dense id within a layer. maxDepth = 0 returns only c.
//
// A visited set makes the traversal cycle-safe: a cycle member is emitted
// once and its outgoing edges are expanded once.
func (g *CategoryGraph) Descendants(c uint32, maxDepth int) []uint32 {
	result := []uint32{c}
	if maxDepth <= 0 {
		return result
	}

	visited := map[uint32]bool{c: true}
	frontier := []uint32{c}
	var next []uint32
	for layer := 0; layer < maxDepth && len(frontier) > 0; layer++ {
		next = next[:0]
		for _, cur := range frontier {
			for _, child := range g.children.row(cur) {
				if !visited[child] {
					visited[child] = true
					next = append(next, child)
				}
			}
		}
		slices.Sort(next)
		result = append(result, next...)
		frontier, next = next, frontier
	}
	return result
}

// PropagateUp adds each category's score to its parents one layer up,
// iterating layers in descending depth order. Only edges whose parent sits
// exactly one layer above the child participate, so depth strictly decreases
// along every followed edge and each edge contributes at most once even
// inside cycles. Scores are accumulated in place.
func (g *CategoryGraph) PropagateUp(scores []uint64) {
	if len(scores) != len(g.depth) {
		panic("graph: PropagateUp scores length does not match category count")
	}

	// Bucket categories by depth once; the buckets are small relative to a
	// full sort and layers are processed deepest first.
	buckets := make([][]uint32, MaxDepth+1)
	for c, d := range g.depth {
		if g.orphan[c] {
			continue
		}
		buckets[d] = append(buckets[d], uint32(c))
	}

	for d := MaxDepth; d >= 1; d-- {
		for _, c := range buckets[d] {
			s := scores[c]
			if s == 0 {
				continue
			}
			for _, p := range g.parents.row(c) {
				if int(g.depth[p]) == d-1 && !g.orphan[p] {
					scores[p] += s
				}
			}
		}
	}
}
