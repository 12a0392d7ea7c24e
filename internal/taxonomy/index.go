// Package taxonomy maintains the process-wide semantic category index: one
// English-only vector collection mapping category QIDs to embeddings, served
// through an external vector store and projected to any wiki by QID.
//
// The engine holds no vectors itself. Indexing streams the English category
// titles through the embedding backend into the vector store; search embeds
// the query with an asymmetric instruction prefix, ranks by raw cosine
// similarity, and resolves titles in the target wiki through the title
// service. Pageview queries are independent of everything in this package: a
// down embedding server only affects semantic search.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"time"

	"github.com/MrWong99/topictrends/internal/observe"
	"github.com/MrWong99/topictrends/internal/resilience"
	"github.com/MrWong99/topictrends/pkg/provider/embeddings"
	"github.com/MrWong99/topictrends/pkg/titles"
	"github.com/MrWong99/topictrends/pkg/vectorstore"
)

// Collection is the vector store collection holding the English category
// points. The point id is the category QID.
const Collection = "enwiki-categories"

// Dimensions is the embedding dimensionality of the collection.
const Dimensions = 384

// DefaultMatchThreshold is the minimum raw cosine similarity a hit must
// reach. The raw score is compared as-is; see the package ordering contract.
const DefaultMatchThreshold = 0.6

// queryPrefix is the instruction marker prepended to query-role text for
// asymmetric retrieval models. Document-role text is embedded verbatim.
const queryPrefix = "query: "

// indexBatchSize is the number of categories embedded and upserted per batch
// during indexing.
const indexBatchSize = 100

// Default bounds on in-flight external calls.
const (
	defaultEmbedConcurrency  = 16
	defaultSearchConcurrency = 32
)

// ErrExternalUnavailable marks a failed embedding, vector-store, or title
// backend call. Only semantic search surfaces it; pageview queries have no
// external dependencies.
var ErrExternalUnavailable = errors.New("taxonomy: external backend unavailable")

// SearchResult is one semantic category hit.
type SearchResult struct {
	// QID is the category's Wikidata identifier.
	QID uint32

	// Title is the category title in the target wiki.
	Title string

	// TitleEN is the English category title the point was indexed under.
	TitleEN string

	// Score is the raw cosine similarity reported by the vector store.
	Score float64
}

// Index is the semantic category index. It is safe for concurrent use.
type Index struct {
	embed  embeddings.Provider
	store  vectorstore.Store
	titles titles.Service

	metrics   *observe.Metrics
	threshold float64

	embedSem  chan struct{}
	searchSem chan struct{}

	embedBreaker *resilience.CircuitBreaker
	storeBreaker *resilience.CircuitBreaker
}

// Option is a functional option for Index.
type Option func(*Index)

// WithThreshold overrides the default match threshold.
func WithThreshold(threshold float64) Option {
	return func(ix *Index) {
		if threshold > 0 {
			ix.threshold = threshold
		}
	}
}

// WithMetrics records indexing and error counters into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(ix *Index) {
		ix.metrics = m
	}
}

// WithConcurrency bounds the number of in-flight embedding and vector-store
// calls. Zero values keep the defaults (16 and 32).
func WithConcurrency(embedCalls, searchCalls int) Option {
	return func(ix *Index) {
		if embedCalls > 0 {
			ix.embedSem = make(chan struct{}, embedCalls)
		}
		if searchCalls > 0 {
			ix.searchSem = make(chan struct{}, searchCalls)
		}
	}
}

// New creates an Index over the given backends.
func New(embed embeddings.Provider, store vectorstore.Store, titleService titles.Service, opts ...Option) *Index {
	ix := &Index{
		embed:     embed,
		store:     store,
		titles:    titleService,
		threshold: DefaultMatchThreshold,
		embedSem:  make(chan struct{}, defaultEmbedConcurrency),
		searchSem: make(chan struct{}, defaultSearchConcurrency),
		embedBreaker: resilience.New(resilience.Config{
			Name: "embeddings",
		}),
		storeBreaker: resilience.New(resilience.Config{
			Name: "vectorstore",
		}),
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// acquire takes a semaphore slot, honouring ctx.
func acquire(ctx context.Context, sem chan struct{}) error {
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IndexCategories streams English categories into the collection in batches:
// embed with the document role, then upsert with the QID as point id.
// Returns the number of points written. The source iterator yields
// (qid, english title) pairs.
func (ix *Index) IndexCategories(ctx context.Context, categories iter.Seq2[uint32, string]) (int, error) {
	if err := ix.ensureCollection(ctx); err != nil {
		return 0, err
	}

	start := time.Now()
	indexed := 0
	batchQIDs := make([]uint32, 0, indexBatchSize)
	batchTitles := make([]string, 0, indexBatchSize)

	flush := func() error {
		if len(batchQIDs) == 0 {
			return nil
		}
		if err := ix.indexBatch(ctx, batchQIDs, batchTitles); err != nil {
			return err
		}
		indexed += len(batchQIDs)
		batchQIDs = batchQIDs[:0]
		batchTitles = batchTitles[:0]
		return nil
	}

	var loopErr error
	categories(func(qid uint32, title string) bool {
		if err := ctx.Err(); err != nil {
			loopErr = err
			return false
		}
		batchQIDs = append(batchQIDs, qid)
		batchTitles = append(batchTitles, title)
		if len(batchQIDs) == indexBatchSize {
			if err := flush(); err != nil {
				loopErr = err
				return false
			}
		}
		return true
	})
	if loopErr != nil {
		return indexed, loopErr
	}
	if err := flush(); err != nil {
		return indexed, err
	}

	slog.Info("taxonomy index built",
		"points", indexed,
		"model", ix.embed.ModelID(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return indexed, nil
}

// indexBatch embeds one batch of titles and upserts the resulting points.
func (ix *Index) indexBatch(ctx context.Context, qids []uint32, batchTitles []string) error {
	vectors, err := ix.embedBatch(ctx, batchTitles)
	if err != nil {
		return err
	}

	points := make([]vectorstore.Point, len(qids))
	for i, qid := range qids {
		points[i] = vectorstore.Point{
			ID:      uint64(qid),
			Vector:  vectors[i],
			Payload: vectorstore.Payload{QID: qid, TitleEN: batchTitles[i]},
		}
	}

	err = ix.storeBreaker.Execute(ctx, func(ctx context.Context) error {
		return ix.store.Upsert(ctx, Collection, points)
	})
	if err != nil {
		ix.metrics.CountExternalError(ctx, "vectorstore")
		return fmt.Errorf("%w: upsert: %v", ErrExternalUnavailable, err)
	}
	if ix.metrics != nil {
		ix.metrics.IndexedPoints.Add(ctx, int64(len(points)))
	}
	return nil
}

func (ix *Index) ensureCollection(ctx context.Context) error {
	err := ix.storeBreaker.Execute(ctx, func(ctx context.Context) error {
		return ix.store.EnsureCollection(ctx, Collection, Dimensions)
	})
	if err != nil {
		ix.metrics.CountExternalError(ctx, "vectorstore")
		return fmt.Errorf("%w: ensure collection: %v", ErrExternalUnavailable, err)
	}
	return nil
}

// embedBatch runs one document-role embedding call under the concurrency
// bound and breaker.
func (ix *Index) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := acquire(ctx, ix.embedSem); err != nil {
		return nil, err
	}
	defer func() { <-ix.embedSem }()

	var vectors [][]float32
	err := ix.embedBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = ix.embed.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		ix.metrics.CountExternalError(ctx, "embeddings")
		return nil, fmt.Errorf("%w: embed batch: %v", ErrExternalUnavailable, err)
	}
	return vectors, nil
}

// SearchCategories finds categories semantically matching the English query
// and projects them into targetWiki.
//
// threshold <= 0 selects the index default. Results are ordered strictly by
// descending score; exact ties resolve to the smaller QID. For non-English
// targets, QIDs with no page in the target wiki are dropped.
func (ix *Index) SearchCategories(ctx context.Context, queryEN, targetWiki string, threshold float64, limit int) ([]SearchResult, error) {
	if threshold <= 0 {
		threshold = ix.threshold
	}
	if limit <= 0 {
		return []SearchResult{}, nil
	}

	// 1. Encode the query with the asymmetric instruction prefix.
	if err := acquire(ctx, ix.embedSem); err != nil {
		return nil, err
	}
	var vector []float32
	err := ix.embedBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		vector, err = ix.embed.Embed(ctx, queryPrefix+queryEN)
		return err
	})
	<-ix.embedSem
	if err != nil {
		ix.metrics.CountExternalError(ctx, "embeddings")
		return nil, fmt.Errorf("%w: embed query: %v", ErrExternalUnavailable, err)
	}

	// 2. Nearest neighbours from the vector store.
	if err := acquire(ctx, ix.searchSem); err != nil {
		return nil, err
	}
	var hits []vectorstore.Result
	err = ix.storeBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		hits, err = ix.store.Search(ctx, Collection, vector, limit)
		return err
	})
	<-ix.searchSem
	if err != nil {
		ix.metrics.CountExternalError(ctx, "vectorstore")
		return nil, fmt.Errorf("%w: search: %v", ErrExternalUnavailable, err)
	}

	// 3. Threshold filter on the raw cosine score.
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < threshold {
			continue
		}
		results = append(results, SearchResult{
			QID:     hit.Payload.QID,
			Title:   hit.Payload.TitleEN,
			TitleEN: hit.Payload.TitleEN,
			Score:   hit.Score,
		})
	}

	// 4. Cross-lingual projection by QID.
	if targetWiki != "enwiki" && len(results) > 0 {
		results, err = ix.project(ctx, targetWiki, results)
		if err != nil {
			return nil, err
		}
	}

	// 5. Deterministic ordering: score descending, smaller QID on ties.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].QID < results[j].QID
	})
	return results, nil
}

// project resolves result titles in targetWiki, dropping QIDs that do not
// exist there.
func (ix *Index) project(ctx context.Context, targetWiki string, results []SearchResult) ([]SearchResult, error) {
	qids := make([]uint32, len(results))
	for i, r := range results {
		qids[i] = r.QID
	}
	translated, err := ix.titles.TitlesByQIDs(ctx, targetWiki, qids)
	if err != nil {
		ix.metrics.CountExternalError(ctx, "titles")
		return nil, fmt.Errorf("%w: project titles: %v", ErrExternalUnavailable, err)
	}

	projected := results[:0]
	for _, r := range results {
		title, ok := translated[r.QID]
		if !ok {
			continue
		}
		r.Title = title
		projected = append(projected, r)
	}
	return projected, nil
}
