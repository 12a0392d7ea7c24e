// Package corpus loads and holds the per-language in-memory bundle of the
// analytics engine: the dense id maps, the category graph, the
// article→category index, and the pageview store handle.
//
// A WikiCorpus is immutable once loaded. Refreshing a wiki means building a
// new corpus off to the side and swapping the reference in the [Registry];
// in-flight readers keep the corpus they started with.
package corpus

import (
	"errors"
	"fmt"
)

// ErrUnknownQID is returned when a QID is not present in the corpus.
// Surfaced to API callers as not-found.
var ErrUnknownQID = errors.New("corpus: unknown qid")

// DenseIdMap is the boundary translator between external QIDs and the
// contiguous dense ids used internally. Dense ids are assigned in append
// order during load and are not stable across refreshes; they must never
// leak outside the corpus.
//
// The map is immutable after load and safe for concurrent use.
type DenseIdMap struct {
	qidToDense map[uint32]uint32
	denseToQID []uint32

	// titles mirrors denseToQID for diagnostics and taxonomy indexing; the
	// query hot path never touches it.
	titles []string
}

// newDenseIdMap returns an empty map with capacity for sizeHint entries.
func newDenseIdMap(sizeHint int) *DenseIdMap {
	return &DenseIdMap{
		qidToDense: make(map[uint32]uint32, sizeHint),
		denseToQID: make([]uint32, 0, sizeHint),
		titles:     make([]string, 0, sizeHint),
	}
}

// add assigns the next dense id to qid, or returns the existing one when the
// qid was already seen.
func (m *DenseIdMap) add(qid uint32, title string) uint32 {
	if dense, ok := m.qidToDense[qid]; ok {
		return dense
	}
	dense := uint32(len(m.denseToQID))
	m.qidToDense[qid] = dense
	m.denseToQID = append(m.denseToQID, qid)
	m.titles = append(m.titles, title)
	return dense
}

// Dense resolves a QID to its dense id. Fails with [ErrUnknownQID] when the
// QID is not in the corpus.
func (m *DenseIdMap) Dense(qid uint32) (uint32, error) {
	dense, ok := m.qidToDense[qid]
	if !ok {
		return 0, fmt.Errorf("%w: Q%d", ErrUnknownQID, qid)
	}
	return dense, nil
}

// QID returns the QID of a dense id. Total over [0, Len()); out-of-range
// dense ids are a programmer error and panic.
func (m *DenseIdMap) QID(dense uint32) uint32 {
	return m.denseToQID[dense]
}

// Title returns the page title recorded for a dense id. Diagnostics only.
func (m *DenseIdMap) Title(dense uint32) string {
	return m.titles[dense]
}

// Len returns the number of entries.
func (m *DenseIdMap) Len() int {
	return len(m.denseToQID)
}
