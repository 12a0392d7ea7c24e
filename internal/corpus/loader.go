package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/MrWong99/topictrends/internal/graph"
)

// ErrMalformed marks a corrupted topology file. Fatal at load for the
// affected corpus; other corpora proceed.
var ErrMalformed = errors.New("corpus: malformed topology file")

// Topology table file names under <dataDir>/<wiki>/topology.
const (
	articlesTable        = "articles.tsv.zst"
	categoriesTable      = "categories.tsv.zst"
	categoryGraphTable   = "category_graph.tsv.zst"
	articleCategoryTable = "article_category.tsv.zst"
)

// LoadStats reports per-corpus load counters, exposed as health metrics.
type LoadStats struct {
	// DroppedGraphEdges counts category edges referencing unknown page ids.
	DroppedGraphEdges int

	// DroppedMembershipEdges counts article-category pairs referencing
	// unknown page ids.
	DroppedMembershipEdges int
}

// tableScanner streams rows of one zstd-compressed TSV table.
type tableScanner struct {
	path    string
	file    *os.File
	decoder *zstd.Decoder
	scanner *bufio.Scanner
	line    int
}

// openTable opens the named table under dir.
func openTable(dir, name string) (*tableScanner, error) {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open table: %w", err)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	sc := bufio.NewScanner(dec)
	// Titles can be long; rows stay far below this.
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &tableScanner{path: path, file: f, decoder: dec, scanner: sc}, nil
}

// next returns the fields of the next non-empty row, or io.EOF.
func (t *tableScanner) next() ([]string, error) {
	for t.scanner.Scan() {
		t.line++
		row := t.scanner.Text()
		if row == "" {
			continue
		}
		return strings.Split(row, "\t"), nil
	}
	if err := t.scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, t.path, err)
	}
	return nil, io.EOF
}

// malformed builds a row-level error with file and line context.
func (t *tableScanner) malformed(detail string) error {
	return fmt.Errorf("%w: %s:%d: %s", ErrMalformed, t.path, t.line, detail)
}

func (t *tableScanner) close() {
	t.decoder.Close()
	t.file.Close()
}

// parseU32 parses an unsigned 32-bit column value.
func parseU32(s string) (uint32, bool) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// loadPages streams a pages table (page_id, qid, page_title), filling the
// dense map in row order and returning the page_id → dense translation used
// to resolve edge tables.
func loadPages(dir, table string, m *DenseIdMap) (map[uint32]uint32, error) {
	t, err := openTable(dir, table)
	if err != nil {
		return nil, err
	}
	defer t.close()

	pageToDense := make(map[uint32]uint32)
	for {
		fields, err := t.next()
		if errors.Is(err, io.EOF) {
			return pageToDense, nil
		}
		if err != nil {
			return nil, err
		}
		if len(fields) < 3 {
			return nil, t.malformed(fmt.Sprintf("expected 3 columns, got %d", len(fields)))
		}
		pageID, ok := parseU32(fields[0])
		if !ok {
			return nil, t.malformed("page_id is not a u32: " + fields[0])
		}
		qid, ok := parseU32(fields[1])
		if !ok {
			return nil, t.malformed("qid is not a u32: " + fields[1])
		}
		pageToDense[pageID] = m.add(qid, fields[2])
	}
}

// loadEdges streams a two-column page-id edge table, resolving both ends
// through the given translation maps. Edges referencing unknown page ids are
// dropped and counted.
func loadEdges(dir, table string, fromPages, toPages map[uint32]uint32) ([]graph.Edge, int, error) {
	t, err := openTable(dir, table)
	if err != nil {
		return nil, 0, err
	}
	defer t.close()

	var edges []graph.Edge
	dropped := 0
	for {
		fields, err := t.next()
		if errors.Is(err, io.EOF) {
			return edges, dropped, nil
		}
		if err != nil {
			return nil, 0, err
		}
		if len(fields) < 2 {
			return nil, 0, t.malformed(fmt.Sprintf("expected 2 columns, got %d", len(fields)))
		}
		fromPage, ok := parseU32(fields[0])
		if !ok {
			return nil, 0, t.malformed("page_id is not a u32: " + fields[0])
		}
		toPage, ok := parseU32(fields[1])
		if !ok {
			return nil, 0, t.malformed("page_id is not a u32: " + fields[1])
		}

		from, okFrom := fromPages[fromPage]
		to, okTo := toPages[toPage]
		if !okFrom || !okTo {
			dropped++
			continue
		}
		edges = append(edges, graph.Edge{From: from, To: to})
	}
}

// loadTopology reads all four tables of one wiki and returns the assembled
// maps, graph, and index.
func loadTopology(dir string) (*DenseIdMap, *DenseIdMap, *graph.CategoryGraph, *graph.ArticleCategoryIndex, LoadStats, error) {
	var stats LoadStats

	categories := newDenseIdMap(1 << 16)
	catPages, err := loadPages(dir, categoriesTable, categories)
	if err != nil {
		return nil, nil, nil, nil, stats, err
	}

	articles := newDenseIdMap(1 << 20)
	artPages, err := loadPages(dir, articlesTable, articles)
	if err != nil {
		return nil, nil, nil, nil, stats, err
	}

	graphEdges, droppedGraph, err := loadEdges(dir, categoryGraphTable, catPages, catPages)
	if err != nil {
		return nil, nil, nil, nil, stats, err
	}
	stats.DroppedGraphEdges = droppedGraph

	memberEdges, droppedMember, err := loadEdges(dir, articleCategoryTable, artPages, catPages)
	if err != nil {
		return nil, nil, nil, nil, stats, err
	}
	stats.DroppedMembershipEdges = droppedMember

	g := graph.NewCategoryGraph(categories.Len(), graphEdges)
	idx := graph.NewArticleCategoryIndex(articles.Len(), categories.Len(), memberEdges)

	if droppedGraph > 0 || droppedMember > 0 {
		slog.Warn("dropped edges referencing unknown page ids",
			"dir", dir,
			"graph_edges", droppedGraph,
			"membership_edges", droppedMember,
		)
	}
	return articles, categories, g, idx, stats, nil
}
