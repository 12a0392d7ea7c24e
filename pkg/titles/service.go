// Package titles defines the Service interface for QID/title translation.
//
// The analytics core works exclusively in QIDs; translating between QIDs and
// per-wiki page titles is delegated to an external service backed by the
// Wikidata sitelink tables. The service is expected to be slow relative to
// in-memory traversal, so callers should cache results per wiki with a TTL
// matched to the topology refresh cadence. This package holds no such cache.
//
// Implementations must be safe for concurrent use.
package titles

import "context"

// Service is the abstraction over any QID/title translation backend.
type Service interface {
	// QIDByTitle resolves a page title in the given wiki to its QID. The
	// second return value is false when the title has no Wikidata item or
	// does not exist in that wiki.
	QIDByTitle(ctx context.Context, wiki, title string) (uint32, bool, error)

	// TitlesByQIDs resolves a batch of QIDs to their titles in the given
	// wiki. QIDs with no page in that wiki are simply absent from the
	// returned map; their absence is not an error.
	TitlesByQIDs(ctx context.Context, wiki string, qids []uint32) (map[uint32]string, error)
}
