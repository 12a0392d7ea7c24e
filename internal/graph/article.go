package graph

// ArticleWeight pairs an article dense id with a score, the sparse input of
// [ArticleCategoryIndex.Scatter].
type ArticleWeight struct {
	Article uint32
	Weight  uint64
}

// ArticleCategoryIndex is the CSR article→category membership map of one
// wiki, plus the inverted category→article CSR used for aggregation.
//
// The index is immutable after construction; all methods are safe for
// concurrent use.
type ArticleCategoryIndex struct {
	articles    csr // article → categories
	catArticles csr // category → articles (inverse)

	numArticles   int
	numCategories int
	duplicates    int
}

// NewArticleCategoryIndex builds the membership CSR and its inverse from
// article→category edges. Multi-set membership collapses to a set; the
// duplicate count is available via [ArticleCategoryIndex.DuplicateEdges].
func NewArticleCategoryIndex(numArticles, numCategories int, edges []Edge) *ArticleCategoryIndex {
	idx := &ArticleCategoryIndex{
		numArticles:   numArticles,
		numCategories: numCategories,
	}
	idx.articles, idx.duplicates = buildCSR(numArticles, edges)
	idx.catArticles = idx.articles.invert(numCategories)
	return idx
}

// NumArticles returns the number of article dense ids.
func (idx *ArticleCategoryIndex) NumArticles() int {
	return idx.numArticles
}

// NumCategories returns the number of category dense ids.
func (idx *ArticleCategoryIndex) NumCategories() int {
	return idx.numCategories
}

// NumEdges returns the number of distinct membership edges.
func (idx *ArticleCategoryIndex) NumEdges() int {
	return idx.articles.numEdges()
}

// DuplicateEdges returns the number of membership pairs dropped during
// deduplication.
func (idx *ArticleCategoryIndex) DuplicateEdges() int {
	return idx.duplicates
}

// CategoriesOf returns the categories article a belongs to, ascending by
// dense id. The returned slice aliases the CSR buffer and must not be
// modified.
func (idx *ArticleCategoryIndex) CategoriesOf(a uint32) []uint32 {
	return idx.articles.row(a)
}

// ArticlesOf returns the articles directly contained in category c, ascending
// by dense id. The returned slice aliases the CSR buffer and must not be
// modified.
func (idx *ArticleCategoryIndex) ArticlesOf(c uint32) []uint32 {
	return idx.catArticles.row(c)
}

// Scatter adds each weight to the accumulator of every category its article
// belongs to. out must have length NumCategories and is not zeroed here, so
// callers can scatter several inputs into one accumulator.
//
// The operation is linear in the membership edges of the weighted articles
// and allocates nothing.
func (idx *ArticleCategoryIndex) Scatter(weights []ArticleWeight, out []uint64) {
	if len(out) != idx.numCategories {
		panic("graph: Scatter accumulator length does not match category count")
	}
	for _, w := range weights {
		for _, c := range idx.articles.row(w.Article) {
			out[c] += w.Weight
		}
	}
}
