// Package vectorstore defines the Store interface for vector-similarity backends.
//
// A vector store holds named collections of points, each point carrying a
// numeric id, a fixed-dimension float32 vector, and a small payload. The
// taxonomy index uses one collection ("enwiki-categories") keyed by category
// QID. The engine never holds vectors itself; everything flows through this
// interface.
//
// Implementations must be safe for concurrent use.
package vectorstore

import "context"

// Point is a single entry in a collection.
type Point struct {
	// ID is the caller-assigned point identifier. The taxonomy index uses the
	// category QID, so the same id written twice replaces the earlier point.
	ID uint64

	// Vector is the embedding. All points in a collection must share one
	// dimensionality.
	Vector []float32

	// Payload carries the non-vector fields stored alongside the point.
	Payload Payload
}

// Payload is the structured metadata stored with each point.
type Payload struct {
	// QID is the Wikidata identifier with the leading Q stripped.
	QID uint32

	// TitleEN is the English category title.
	TitleEN string
}

// Result is a single search hit.
type Result struct {
	// ID is the matched point's identifier.
	ID uint64

	// Score is the raw cosine similarity between the query vector and the
	// point's vector, in [-1, 1]. Callers must treat it as an ordering key
	// only; no normalisation is applied.
	Score float64

	// Payload is the stored metadata of the matched point.
	Payload Payload
}

// Store is the abstraction over any vector-similarity backend.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// EnsureCollection creates the named collection for vectors of the given
	// dimensionality if it does not exist yet. Calling it again with the same
	// arguments is a no-op.
	EnsureCollection(ctx context.Context, collection string, dimensions int) error

	// Upsert writes the given points into collection. Points whose ID already
	// exists are completely replaced.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to limit points of collection ordered by descending
	// cosine similarity to vector. Ties are broken by ascending point ID so
	// that repeated searches yield identical output.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]Result, error)

	// Close releases the backend connection. The Store must not be used
	// afterwards.
	Close()
}
