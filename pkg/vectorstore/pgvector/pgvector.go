// Package pgvector provides a PostgreSQL-backed implementation of
// [vectorstore.Store] using the pgvector extension.
//
// Each collection maps to one table named vs_<collection> (dashes folded to
// underscores) with an HNSW index on the embedding column using cosine
// distance. The pgvector extension must be available in the target database;
// [New] installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := pgvector.New(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.EnsureCollection(ctx, "enwiki-categories", 384)
//	_ = store.Upsert(ctx, "enwiki-categories", points)
//	hits, _ := store.Search(ctx, "enwiki-categories", queryVec, 20)
package pgvector

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/topictrends/pkg/vectorstore"
)

// Ensure Store implements the vectorstore.Store interface at compile time.
var _ vectorstore.Store = (*Store)(nil)

// Store is the pgvector-backed collection store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and installs
// the vector extension.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector store: install extension: %w", err)
	}

	return &Store{pool: pool}, nil
}

// tableName maps a collection name to its backing table. Collection names come
// from engine code, not user input, but dashes still need folding for SQL
// identifiers.
func tableName(collection string) string {
	return "vs_" + strings.ReplaceAll(collection, "-", "_")
}

// EnsureCollection implements vectorstore.Store.
func (s *Store) EnsureCollection(ctx context.Context, collection string, dimensions int) error {
	table := tableName(collection)
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
		    id        BIGINT       PRIMARY KEY,
		    qid       BIGINT       NOT NULL,
		    title_en  TEXT         NOT NULL,
		    embedding VECTOR(%[2]d) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_embedding
		    ON %[1]s USING hnsw (embedding vector_cosine_ops)`, table, dimensions)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("pgvector store: ensure collection %q: %w", collection, err)
	}
	return nil
}

// Upsert implements vectorstore.Store.
func (s *Store) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (id, qid, title_en, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
		    qid       = EXCLUDED.qid,
		    title_en  = EXCLUDED.title_en,
		    embedding = EXCLUDED.embedding`, tableName(collection))

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(q, int64(p.ID), int64(p.Payload.QID), p.Payload.TitleEN, pgv.NewVector(p.Vector))
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("pgvector store: upsert into %q: %w", collection, err)
		}
	}
	return nil
}

// Search implements vectorstore.Store. The score is computed as
// 1 - cosine_distance, i.e. the raw cosine similarity.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int) ([]vectorstore.Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`
		SELECT id, qid, title_en, 1 - (embedding <=> $1) AS score
		FROM   %s
		ORDER  BY score DESC, id ASC
		LIMIT  $2`, tableName(collection))

	rows, err := s.pool.Query(ctx, q, pgv.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: search %q: %w", collection, err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectorstore.Result, error) {
		var (
			r   vectorstore.Result
			id  int64
			qid int64
		)
		if err := row.Scan(&id, &qid, &r.Payload.TitleEN, &r.Score); err != nil {
			return r, err
		}
		r.ID = uint64(id)
		r.Payload.QID = uint32(qid)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgvector store: collect search rows: %w", err)
	}
	return results, nil
}

// Close implements vectorstore.Store.
func (s *Store) Close() {
	s.pool.Close()
}
