// Package app wires all TopicTrends subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the health/metrics endpoints until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithVectorStore, WithEmbeddings, WithTitleService). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/topictrends/internal/config"
	"github.com/MrWong99/topictrends/internal/corpus"
	"github.com/MrWong99/topictrends/internal/health"
	"github.com/MrWong99/topictrends/internal/observe"
	"github.com/MrWong99/topictrends/internal/pageview"
	"github.com/MrWong99/topictrends/internal/query"
	"github.com/MrWong99/topictrends/internal/taxonomy"
	"github.com/MrWong99/topictrends/pkg/provider/embeddings"
	"github.com/MrWong99/topictrends/pkg/titles"
	"github.com/MrWong99/topictrends/pkg/vectorstore"
	pgvstore "github.com/MrWong99/topictrends/pkg/vectorstore/pgvector"
)

// App owns all subsystem lifetimes: the corpus registry, the query engine,
// and the optional taxonomy index.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	registry *corpus.Registry
	engine   *query.Engine
	taxonomy *taxonomy.Index

	// Injected or config-built externals.
	embeddings  embeddings.Provider
	vectorStore vectorstore.Store
	titleSvc    titles.Service

	server *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithEmbeddings injects an embeddings provider instead of creating one from
// config.
func WithEmbeddings(p embeddings.Provider) Option {
	return func(a *App) { a.embeddings = p }
}

// WithVectorStore injects a vector store instead of connecting to the
// configured pgvector database.
func WithVectorStore(s vectorstore.Store) Option {
	return func(a *App) { a.vectorStore = s }
}

// WithTitleService injects a title service instead of the Wikidata client.
func WithTitleService(s titles.Service) Option {
	return func(a *App) { a.titleSvc = s }
}

// New builds the application: loads all configured corpora in parallel and,
// when an embeddings provider and a vector store are available, wires the
// taxonomy index. A wiki failing to load is logged and skipped; New fails
// only when every configured wiki failed.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	cache, err := pageview.NewCache(cfg.Pageviews.MmapCacheSize)
	if err != nil {
		return nil, err
	}
	a.registry = corpus.NewRegistry(cfg.Data.Dir, cache)

	if err := a.registry.LoadAll(ctx, cfg.Data.Wikis); err != nil {
		if a.registry.Len() == 0 && len(cfg.Data.Wikis) > 0 {
			return nil, fmt.Errorf("app: no corpus loaded: %w", err)
		}
		slog.Warn("some corpora failed to load", "err", err)
	}
	a.metrics.LoadedCorpora.Add(ctx, int64(a.registry.Len()))
	a.recordLoadCounters(ctx)

	a.engine = query.New(a.registry, query.WithMetrics(a.metrics))

	if err := a.initTaxonomy(ctx, reg); err != nil {
		return nil, err
	}

	a.initServer()
	return a, nil
}

// recordLoadCounters exports each loaded corpus's build counters.
func (a *App) recordLoadCounters(ctx context.Context) {
	for _, wiki := range a.registry.Wikis() {
		c, err := a.registry.Get(wiki)
		if err != nil {
			continue
		}
		wikiAttr := metric.WithAttributes(observe.Attr("wiki", wiki))
		a.metrics.DroppedEdges.Add(ctx, int64(c.Stats.DroppedGraphEdges),
			metric.WithAttributes(observe.Attr("wiki", wiki), observe.Attr("table", "category_graph")))
		a.metrics.DroppedEdges.Add(ctx, int64(c.Stats.DroppedMembershipEdges),
			metric.WithAttributes(observe.Attr("wiki", wiki), observe.Attr("table", "article_category")))
		a.metrics.DepthClamped.Add(ctx, int64(c.Graph.Stats().DepthClamped), wikiAttr)
		c.Views.OnStale(func() {
			a.metrics.StalePageviewFiles.Add(context.Background(), 1, wikiAttr)
		})
	}
}

// initTaxonomy builds the semantic index wiring when configured. Missing
// configuration is not an error; semantic search is simply unavailable.
func (a *App) initTaxonomy(ctx context.Context, reg *config.Registry) error {
	if a.embeddings == nil {
		if a.cfg.Taxonomy.Embeddings.Name == "" {
			slog.Info("no embeddings provider configured; semantic search disabled")
			return nil
		}
		p, err := reg.CreateEmbeddings(a.cfg.Taxonomy.Embeddings)
		if err != nil {
			return fmt.Errorf("app: embeddings provider: %w", err)
		}
		a.embeddings = p
	}

	if a.vectorStore == nil {
		if a.cfg.Taxonomy.VectorStoreDSN == "" {
			slog.Info("no vector store configured; semantic search disabled")
			return nil
		}
		store, err := pgvstore.New(ctx, a.cfg.Taxonomy.VectorStoreDSN)
		if err != nil {
			return fmt.Errorf("app: vector store: %w", err)
		}
		a.vectorStore = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
	}

	if a.titleSvc == nil {
		a.titleSvc = titles.NewWikidataService(a.cfg.Taxonomy.TitleServiceURL,
			titles.WithTimeout(15*time.Second))
	}

	taxOpts := []taxonomy.Option{
		taxonomy.WithMetrics(a.metrics),
		taxonomy.WithThreshold(a.cfg.Taxonomy.MatchThreshold),
		taxonomy.WithConcurrency(a.cfg.Taxonomy.EmbedConcurrency, a.cfg.Taxonomy.SearchConcurrency),
	}
	a.taxonomy = taxonomy.New(a.embeddings, a.vectorStore, a.titleSvc, taxOpts...)
	return nil
}

// initServer assembles the health and metrics HTTP endpoints.
func (a *App) initServer() {
	checkers := []health.Checker{
		{Name: "corpora", Check: func(context.Context) error {
			if a.registry.Len() == 0 {
				return errors.New("no corpus in service")
			}
			return nil
		}},
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Engine returns the query engine.
func (a *App) Engine() *query.Engine { return a.engine }

// Registry returns the corpus registry.
func (a *App) Registry() *corpus.Registry { return a.registry }

// Taxonomy returns the semantic index, or nil when semantic search is not
// configured.
func (a *App) Taxonomy() *taxonomy.Index { return a.taxonomy }

// IndexTaxonomy streams the English corpus's categories into the vector
// store. Requires an enwiki corpus and a configured taxonomy index.
func (a *App) IndexTaxonomy(ctx context.Context) (int, error) {
	if a.taxonomy == nil {
		return 0, errors.New("app: semantic search is not configured")
	}
	c, err := a.registry.Get("enwiki")
	if err != nil {
		return 0, fmt.Errorf("app: taxonomy indexing needs the enwiki corpus: %w", err)
	}
	return a.taxonomy.IndexCategories(ctx, func(yield func(uint32, string) bool) {
		for dense := 0; dense < c.Categories.Len(); dense++ {
			if !yield(c.Categories.QID(uint32(dense)), c.Categories.Title(uint32(dense))) {
				return
			}
		}
	})
}

// Run serves the health/metrics endpoints until ctx is cancelled or the
// server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http endpoints listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server and closes all subsystems in order. Safe to
// call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		for _, closeFn := range a.closers {
			if err := closeFn(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
