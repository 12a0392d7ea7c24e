// Package mock provides an in-memory test double for the vectorstore.Store
// interface.
//
// Unlike a pure stub, Store actually computes cosine similarity over the
// upserted points, so tests exercise real ordering and threshold behaviour
// without a database. Error injection fields allow failure-path testing.
package mock

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/MrWong99/topictrends/pkg/vectorstore"
)

// Ensure Store implements vectorstore.Store at compile time.
var _ vectorstore.Store = (*Store)(nil)

// Store is an in-memory mock implementation of vectorstore.Store.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[uint64]vectorstore.Point

	// UpsertErr, if non-nil, is returned from Upsert.
	UpsertErr error

	// SearchErr, if non-nil, is returned from Search.
	SearchErr error

	// SearchCalls counts Search invocations.
	SearchCalls int

	// UpsertCalls counts Upsert invocations.
	UpsertCalls int
}

// NewStore returns an empty in-memory Store.
func NewStore() *Store {
	return &Store{collections: make(map[string]map[uint64]vectorstore.Point)}
}

// EnsureCollection implements vectorstore.Store.
func (s *Store) EnsureCollection(_ context.Context, collection string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection]; !ok {
		s.collections[collection] = make(map[uint64]vectorstore.Point)
	}
	return nil
}

// Upsert implements vectorstore.Store.
func (s *Store) Upsert(_ context.Context, collection string, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertCalls++
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[uint64]vectorstore.Point)
		s.collections[collection] = col
	}
	for _, p := range points {
		col[p.ID] = p
	}
	return nil
}

// Search implements vectorstore.Store. It ranks all points of the collection
// by cosine similarity to vector, descending, ties broken by ascending ID.
func (s *Store) Search(_ context.Context, collection string, vector []float32, limit int) ([]vectorstore.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchCalls++
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	if limit <= 0 {
		return nil, nil
	}

	results := make([]vectorstore.Result, 0, len(s.collections[collection]))
	for _, p := range s.collections[collection] {
		results = append(results, vectorstore.Result{
			ID:      p.ID,
			Score:   cosine(vector, p.Vector),
			Payload: p.Payload,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of points stored in collection.
func (s *Store) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

// Close implements vectorstore.Store. It is a no-op.
func (s *Store) Close() {}

// cosine returns the cosine similarity between a and b, or 0 when either has
// zero magnitude or the lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
