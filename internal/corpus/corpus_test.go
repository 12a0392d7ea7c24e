package corpus_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/MrWong99/topictrends/internal/corpus"
	"github.com/MrWong99/topictrends/internal/corpus/corpustest"
	"github.com/MrWong99/topictrends/internal/pageview"
)

// tinyFixture is the three-category, three-article corpus used across the
// loader tests: C1 → {C2, C3}, A10∈{C2}, A11∈{C3}, A12∈{C2, C3}.
func tinyFixture() corpustest.Fixture {
	return corpustest.Fixture{
		Categories: []corpustest.Page{
			{PageID: 101, QID: 1, Title: "Category:Science"},
			{PageID: 102, QID: 2, Title: "Category:Physics"},
			{PageID: 103, QID: 3, Title: "Category:Chemistry"},
		},
		Articles: []corpustest.Page{
			{PageID: 201, QID: 10, Title: "Quantum mechanics"},
			{PageID: 202, QID: 11, Title: "Benzene"},
			{PageID: 203, QID: 12, Title: "Spectroscopy"},
		},
		GraphEdges: [][2]uint32{
			{101, 102},
			{101, 103},
		},
		Memberships: [][2]uint32{
			{201, 102},
			{202, 103},
			{203, 102},
			{203, 103},
		},
		Views: map[pageview.Date][]uint64{
			pageview.NewDate(2025, time.January, 1): {100, 50, 10},
		},
	}
}

func TestLoad_DenseIDRoundTrip(t *testing.T) {
	t.Parallel()
	c := corpustest.Load(t, tinyFixture())

	if c.Articles.Len() != 3 || c.Categories.Len() != 3 {
		t.Fatalf("sizes: articles=%d categories=%d, want 3/3", c.Articles.Len(), c.Categories.Len())
	}
	for _, qid := range []uint32{10, 11, 12} {
		dense, err := c.Articles.Dense(qid)
		if err != nil {
			t.Fatalf("Dense(%d): %v", qid, err)
		}
		if got := c.Articles.QID(dense); got != qid {
			t.Errorf("round trip Q%d: got Q%d", qid, got)
		}
	}
	for _, qid := range []uint32{1, 2, 3} {
		dense, err := c.Categories.Dense(qid)
		if err != nil {
			t.Fatalf("Dense(%d): %v", qid, err)
		}
		if got := c.Categories.QID(dense); got != qid {
			t.Errorf("round trip Q%d: got Q%d", qid, got)
		}
	}
}

func TestLoad_UnknownQID(t *testing.T) {
	t.Parallel()
	c := corpustest.Load(t, tinyFixture())
	_, err := c.Articles.Dense(9999)
	if !errors.Is(err, corpus.ErrUnknownQID) {
		t.Fatalf("Dense(9999): expected ErrUnknownQID, got %v", err)
	}
}

func TestLoad_GraphAndIndex(t *testing.T) {
	t.Parallel()
	c := corpustest.Load(t, tinyFixture())

	root, err := c.Categories.Dense(1)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Graph.Children(root); len(got) != 2 {
		t.Errorf("Children(root): got %v, want 2 children", got)
	}

	a12, err := c.Articles.Dense(12)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Index.CategoriesOf(a12); len(got) != 2 {
		t.Errorf("CategoriesOf(A12): got %v, want 2 categories", got)
	}
}

func TestLoad_DropsUnknownPageIDs(t *testing.T) {
	t.Parallel()
	f := tinyFixture()
	f.GraphEdges = append(f.GraphEdges, [2]uint32{101, 9999})   // unknown child
	f.Memberships = append(f.Memberships, [2]uint32{9999, 102}) // unknown article
	c := corpustest.Load(t, f)

	if c.Stats.DroppedGraphEdges != 1 {
		t.Errorf("DroppedGraphEdges: got %d, want 1", c.Stats.DroppedGraphEdges)
	}
	if c.Stats.DroppedMembershipEdges != 1 {
		t.Errorf("DroppedMembershipEdges: got %d, want 1", c.Stats.DroppedMembershipEdges)
	}
	if c.Graph.NumEdges() != 2 {
		t.Errorf("NumEdges: got %d, want 2", c.Graph.NumEdges())
	}
}

func TestLoad_MalformedTable(t *testing.T) {
	t.Parallel()
	dataDir := t.TempDir()
	corpustest.Write(t, dataDir, "badwiki", corpustest.Fixture{
		Categories: []corpustest.Page{{PageID: 1, QID: 1, Title: "Category:X"}},
	})
	// Overwrite the articles table with a non-numeric page id.
	writeRawTable(t, dataDir, "badwiki", "articles.tsv.zst", "notanumber\t5\tBroken\n")

	cache, err := pageview.NewCache(4)
	if err != nil {
		t.Fatal(err)
	}
	_, err = corpus.Load(dataDir, "badwiki", cache)
	if !errors.Is(err, corpus.ErrMalformed) {
		t.Fatalf("Load: expected ErrMalformed, got %v", err)
	}
}

// writeRawTable replaces one topology table with arbitrary zstd-compressed
// content.
func writeRawTable(t *testing.T, dataDir, wiki, name, content string) {
	t.Helper()
	path := filepath.Join(dataDir, wiki, "topology", name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	w, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close %s: %v", name, err)
	}
}

func TestRegistry_GetAndRefresh(t *testing.T) {
	t.Parallel()
	dataDir := t.TempDir()
	corpustest.Write(t, dataDir, "enwiki", tinyFixture())

	cache, err := pageview.NewCache(4)
	if err != nil {
		t.Fatal(err)
	}
	reg := corpus.NewRegistry(dataDir, cache)

	if _, err := reg.Get("enwiki"); !errors.Is(err, corpus.ErrUnknownWiki) {
		t.Fatalf("Get before load: expected ErrUnknownWiki, got %v", err)
	}

	if err := reg.Refresh("enwiki"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	first, err := reg.Get("enwiki")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// A second refresh swaps the reference; the old corpus stays usable.
	if err := reg.Refresh("enwiki"); err != nil {
		t.Fatalf("Refresh (again): %v", err)
	}
	second, err := reg.Get("enwiki")
	if err != nil {
		t.Fatalf("Get (again): %v", err)
	}
	if first == second {
		t.Error("Refresh: expected a new corpus reference")
	}
	if first.Articles.Len() != second.Articles.Len() {
		t.Error("old corpus should remain intact after swap")
	}
}

func TestRegistry_LoadAll_PartialFailure(t *testing.T) {
	t.Parallel()
	dataDir := t.TempDir()
	corpustest.Write(t, dataDir, "enwiki", tinyFixture())
	// "nowiki" has no files on disk at all.

	cache, err := pageview.NewCache(4)
	if err != nil {
		t.Fatal(err)
	}
	reg := corpus.NewRegistry(dataDir, cache)

	err = reg.LoadAll(context.Background(), []string{"enwiki", "nowiki"})
	if err == nil {
		t.Fatal("LoadAll: expected error for the missing wiki")
	}
	// The healthy corpus still entered service.
	if _, err := reg.Get("enwiki"); err != nil {
		t.Errorf("Get(enwiki): %v", err)
	}
	if _, err := reg.Get("nowiki"); !errors.Is(err, corpus.ErrUnknownWiki) {
		t.Errorf("Get(nowiki): expected ErrUnknownWiki, got %v", err)
	}
}
