// Package corpustest builds tiny on-disk corpora for tests: zstd TSV
// topology tables plus per-day pageview files, loaded through the real
// corpus loader so tests exercise the same path production does.
package corpustest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/MrWong99/topictrends/internal/corpus"
	"github.com/MrWong99/topictrends/internal/pageview"
)

// Page is one row of an articles or categories table.
type Page struct {
	PageID uint32
	QID    uint32
	Title  string
}

// Fixture describes a corpus to write. Dense ids are assigned in slice
// order, so Articles[i] gets article dense id i and Categories[i] gets
// category dense id i.
type Fixture struct {
	Articles   []Page
	Categories []Page

	// GraphEdges are (parent page id, child page id) pairs.
	GraphEdges [][2]uint32

	// Memberships are (article page id, category page id) pairs.
	Memberships [][2]uint32

	// Views maps a day to per-article counts indexed by article dense id.
	// Rows shorter than len(Articles) are zero-padded.
	Views map[pageview.Date][]uint64
}

// Write materialises the fixture under <dataDir>/<wiki>.
func Write(t *testing.T, dataDir, wiki string, f Fixture) {
	t.Helper()
	topoDir := filepath.Join(dataDir, wiki, "topology")
	if err := os.MkdirAll(topoDir, 0o755); err != nil {
		t.Fatalf("corpustest: mkdir: %v", err)
	}

	var pages strings.Builder
	for _, p := range f.Categories {
		fmt.Fprintf(&pages, "%d\t%d\t%s\n", p.PageID, p.QID, p.Title)
	}
	writeTable(t, topoDir, "categories.tsv.zst", pages.String())

	pages.Reset()
	for _, p := range f.Articles {
		fmt.Fprintf(&pages, "%d\t%d\t%s\n", p.PageID, p.QID, p.Title)
	}
	writeTable(t, topoDir, "articles.tsv.zst", pages.String())

	writeTable(t, topoDir, "category_graph.tsv.zst", edgeRows(f.GraphEdges))
	writeTable(t, topoDir, "article_category.tsv.zst", edgeRows(f.Memberships))

	for day, counts := range f.Views {
		padded := make([]uint64, len(f.Articles))
		copy(padded, counts)
		path := filepath.Join(dataDir, wiki, "pageviews",
			fmt.Sprintf("%04d", day.Year),
			fmt.Sprintf("%02d", int(day.Month)),
			fmt.Sprintf("%02d.bin", day.Day))
		if err := pageview.WriteDayFile(path, padded); err != nil {
			t.Fatalf("corpustest: write day %s: %v", day, err)
		}
	}
}

// Load writes the fixture and loads it through the production loader.
func Load(t *testing.T, f Fixture) *corpus.WikiCorpus {
	t.Helper()
	dataDir := t.TempDir()
	const wiki = "testwiki"
	Write(t, dataDir, wiki, f)

	cache, err := pageview.NewCache(16)
	if err != nil {
		t.Fatalf("corpustest: cache: %v", err)
	}
	c, err := corpus.Load(dataDir, wiki, cache)
	if err != nil {
		t.Fatalf("corpustest: load: %v", err)
	}
	return c
}

func edgeRows(edges [][2]uint32) string {
	var b strings.Builder
	for _, e := range edges {
		fmt.Fprintf(&b, "%d\t%d\n", e[0], e[1])
	}
	return b.String()
}

func writeTable(t *testing.T, dir, name, content string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("corpustest: create %s: %v", name, err)
	}
	defer f.Close()
	w, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("corpustest: zstd writer: %v", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("corpustest: write %s: %v", name, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("corpustest: close %s: %v", name, err)
	}
}
