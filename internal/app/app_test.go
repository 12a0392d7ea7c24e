package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/topictrends/internal/app"
	"github.com/MrWong99/topictrends/internal/config"
	"github.com/MrWong99/topictrends/internal/corpus/corpustest"
	"github.com/MrWong99/topictrends/internal/pageview"
	"github.com/MrWong99/topictrends/internal/query"
	embedmock "github.com/MrWong99/topictrends/pkg/provider/embeddings/mock"
	titlemock "github.com/MrWong99/topictrends/pkg/titles/mock"
	storemock "github.com/MrWong99/topictrends/pkg/vectorstore/mock"
)

func testFixture() corpustest.Fixture {
	return corpustest.Fixture{
		Categories: []corpustest.Page{
			{PageID: 101, QID: 1, Title: "Category:Science"},
			{PageID: 102, QID: 2, Title: "Category:Physics"},
		},
		Articles: []corpustest.Page{
			{PageID: 201, QID: 10, Title: "Quantum mechanics"},
		},
		GraphEdges:  [][2]uint32{{101, 102}},
		Memberships: [][2]uint32{{201, 102}},
		Views: map[pageview.Date][]uint64{
			pageview.NewDate(2025, time.January, 1): {100},
		},
	}
}

func newTestApp(t *testing.T, wiki string) *app.App {
	t.Helper()
	dataDir := t.TempDir()
	corpustest.Write(t, dataDir, wiki, testFixture())

	cfg := &config.Config{}
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Data.Dir = dataDir
	cfg.Data.Wikis = []string{wiki}

	a, err := app.New(context.Background(), cfg, config.NewRegistry(),
		app.WithEmbeddings(&embedmock.Provider{DimensionsValue: 3, EmbedResult: []float32{1, 0, 0}}),
		app.WithVectorStore(storemock.NewStore()),
		app.WithTitleService(&titlemock.Service{}),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func TestNew_LoadsCorpora(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, "enwiki")
	if a.Registry().Len() != 1 {
		t.Fatalf("corpora: got %d, want 1", a.Registry().Len())
	}
	if a.Taxonomy() == nil {
		t.Fatal("taxonomy: expected configured index with injected backends")
	}
}

func TestEngine_QueriesLoadedCorpus(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, "enwiki")

	day := pageview.NewDate(2025, time.January, 1)
	series, err := a.Engine().ArticleViews(context.Background(), "enwiki", 10,
		query.Range{From: day, To: day})
	if err != nil {
		t.Fatalf("ArticleViews: %v", err)
	}
	if len(series) != 1 || series[0].Views != 100 {
		t.Fatalf("series: got %+v, want one 100-view point", series)
	}
}

func TestIndexTaxonomy(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, "enwiki")

	n, err := a.IndexTaxonomy(context.Background())
	if err != nil {
		t.Fatalf("IndexTaxonomy: %v", err)
	}
	if n != 2 {
		t.Errorf("indexed: got %d, want 2 categories", n)
	}
}

func TestIndexTaxonomy_RequiresEnwiki(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, "frwiki")
	if _, err := a.IndexTaxonomy(context.Background()); err == nil {
		t.Fatal("IndexTaxonomy: expected error without an enwiki corpus")
	}
}

func TestNew_FailsWhenNoCorpusLoads(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Data.Dir = t.TempDir() // empty: no wiki directories exist
	cfg.Data.Wikis = []string{"enwiki"}

	if _, err := app.New(context.Background(), cfg, config.NewRegistry()); err == nil {
		t.Fatal("app.New: expected error when every wiki fails to load")
	}
}

func TestRunAndShutdown(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, "enwiki")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run: got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
