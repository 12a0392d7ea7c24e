package corpus

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/MrWong99/topictrends/internal/graph"
	"github.com/MrWong99/topictrends/internal/pageview"
)

// WikiCorpus is the immutable per-language bundle: dense id maps, category
// graph, article→category index, and the pageview store handle.
//
// All fields are read-only after Load; the corpus is shared by reference
// across reader goroutines without locks.
type WikiCorpus struct {
	// Wiki is the language edition code, e.g. "enwiki".
	Wiki string

	// Articles translates article QIDs to dense ids and back.
	Articles *DenseIdMap

	// Categories translates category QIDs to dense ids and back.
	Categories *DenseIdMap

	// Graph is the category→subcategory CSR with depth analysis.
	Graph *graph.CategoryGraph

	// Index is the article→category membership CSR with its inverse.
	Index *graph.ArticleCategoryIndex

	// Views reads the per-day pageview vectors of this wiki.
	Views *pageview.Store

	// Stats carries the load counters.
	Stats LoadStats

	// LoadedAt records when the corpus entered service.
	LoadedAt time.Time
}

// Load builds a WikiCorpus from <dataDir>/<wiki>/topology and wires the
// pageview store against the shared mmap cache. Malformed topology input is
// fatal for this corpus only.
func Load(dataDir, wiki string, cache *pageview.Cache) (*WikiCorpus, error) {
	start := time.Now()
	dir := filepath.Join(dataDir, wiki, "topology")

	articles, categories, g, idx, stats, err := loadTopology(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", wiki, err)
	}

	c := &WikiCorpus{
		Wiki:       wiki,
		Articles:   articles,
		Categories: categories,
		Graph:      g,
		Index:      idx,
		Views:      pageview.NewStore(cache, dataDir, wiki, articles.Len()),
		Stats:      stats,
		LoadedAt:   time.Now(),
	}

	gs := g.Stats()
	slog.Info("corpus loaded",
		"wiki", wiki,
		"articles", articles.Len(),
		"categories", categories.Len(),
		"graph_edges", g.NumEdges(),
		"membership_edges", idx.NumEdges(),
		"max_depth", gs.MaxObservedDepth,
		"depth_clamped", gs.DepthClamped,
		"orphans", gs.Orphans,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return c, nil
}
