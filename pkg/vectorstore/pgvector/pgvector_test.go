package pgvector

import (
	"context"
	"os"
	"testing"

	"github.com/MrWong99/topictrends/pkg/vectorstore"
)

func TestTableName(t *testing.T) {
	t.Parallel()
	cases := []struct {
		collection string
		want       string
	}{
		{"enwiki-categories", "vs_enwiki_categories"},
		{"plain", "vs_plain"},
	}
	for _, tc := range cases {
		if got := tableName(tc.collection); got != tc.want {
			t.Errorf("tableName(%q) = %q, want %q", tc.collection, got, tc.want)
		}
	}
}

// testDSN returns the test database DSN from the environment, or skips the
// test if TOPICTRENDS_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TOPICTRENDS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TOPICTRENDS_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(store.Close)

	const collection = "test-categories"
	if _, err := store.pool.Exec(ctx, "DROP TABLE IF EXISTS "+tableName(collection)); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if err := store.EnsureCollection(ctx, collection, 3); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	// Second call must be a no-op.
	if err := store.EnsureCollection(ctx, collection, 3); err != nil {
		t.Fatalf("EnsureCollection (again): %v", err)
	}

	points := []vectorstore.Point{
		{ID: 1, Vector: []float32{1, 0, 0}, Payload: vectorstore.Payload{QID: 1, TitleEN: "Mathematics"}},
		{ID: 2, Vector: []float32{0, 1, 0}, Payload: vectorstore.Payload{QID: 2, TitleEN: "Physics"}},
		{ID: 3, Vector: []float32{0.9, 0.1, 0}, Payload: vectorstore.Payload{QID: 3, TitleEN: "Geometry"}},
	}
	if err := store.Upsert(ctx, collection, points); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := store.Search(ctx, collection, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Search: got %d hits, want 2", len(hits))
	}
	if hits[0].ID != 1 {
		t.Errorf("Search: top hit id = %d, want 1", hits[0].ID)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("Search: scores not descending: %v then %v", hits[0].Score, hits[1].Score)
	}
	if hits[0].Payload.TitleEN != "Mathematics" {
		t.Errorf("Search: top hit title = %q, want Mathematics", hits[0].Payload.TitleEN)
	}

	// Upsert with an existing ID replaces the point.
	if err := store.Upsert(ctx, collection, []vectorstore.Point{
		{ID: 1, Vector: []float32{0, 0, 1}, Payload: vectorstore.Payload{QID: 1, TitleEN: "Mathematics"}},
	}); err != nil {
		t.Fatalf("Upsert (replace): %v", err)
	}
	hits, err = store.Search(ctx, collection, []float32{0, 0, 1}, 1)
	if err != nil {
		t.Fatalf("Search (after replace): %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 1 {
		t.Fatalf("Search (after replace): got %+v, want point 1 on top", hits)
	}
}

func TestSearch_ZeroLimit(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(store.Close)

	hits, err := store.Search(ctx, "whatever", nil, 0)
	if err != nil {
		t.Fatalf("Search(limit=0): unexpected error: %v", err)
	}
	if hits != nil {
		t.Errorf("Search(limit=0): expected nil, got %v", hits)
	}
}
