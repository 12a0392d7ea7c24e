package corpus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/topictrends/internal/pageview"
)

// ErrUnknownWiki is returned when no corpus is loaded for the requested wiki.
var ErrUnknownWiki = errors.New("corpus: unknown wiki")

// Registry holds the live WikiCorpus reference per wiki code. Lookups return
// the corpus by reference; a refresh builds the replacement off-registry and
// swaps it in atomically, so in-flight readers keep their snapshot until they
// finish.
//
// Registry is safe for concurrent use.
type Registry struct {
	dataDir string
	cache   *pageview.Cache

	mu      sync.RWMutex
	corpora map[string]*WikiCorpus
}

// NewRegistry creates an empty registry rooted at dataDir, sharing one mmap
// cache across all corpora.
func NewRegistry(dataDir string, cache *pageview.Cache) *Registry {
	return &Registry{
		dataDir: dataDir,
		cache:   cache,
		corpora: make(map[string]*WikiCorpus),
	}
}

// Get returns the live corpus for wiki, or [ErrUnknownWiki].
func (r *Registry) Get(wiki string) (*WikiCorpus, error) {
	r.mu.RLock()
	c, ok := r.corpora[wiki]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWiki, wiki)
	}
	return c, nil
}

// Wikis returns the codes of all loaded corpora.
func (r *Registry) Wikis() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wikis := make([]string, 0, len(r.corpora))
	for wiki := range r.corpora {
		wikis = append(wikis, wiki)
	}
	return wikis
}

// Len returns the number of loaded corpora.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.corpora)
}

// Refresh loads wiki from disk and swaps the new corpus in. The old corpus,
// if any, stays valid for readers that already hold it.
func (r *Registry) Refresh(wiki string) error {
	c, err := Load(r.dataDir, wiki, r.cache)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.corpora[wiki] = c
	r.mu.Unlock()
	return nil
}

// LoadAll loads the given wikis in parallel. A wiki failing to load does not
// stop the others; the returned error joins the per-wiki failures, and every
// wiki that loaded cleanly is in service regardless.
func (r *Registry) LoadAll(ctx context.Context, wikis []string) error {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var errs []error
	for _, wiki := range wikis {
		wiki := wiki
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.Refresh(wiki); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}
