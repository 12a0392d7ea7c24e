// Package query implements the analytics algorithms of the engine: article
// pageview series, recursive category aggregation, trending-category
// discovery via reverse scatter, and baseline/impact delta analysis.
//
// All algorithms are pure reads over an immutable [corpus.WikiCorpus]
// snapshot. A request binds to one corpus reference and runs to completion;
// cancellation is checked at day-loop boundaries, so the worst-case cancel
// latency is one day's scan.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/topictrends/internal/corpus"
	"github.com/MrWong99/topictrends/internal/observe"
	"github.com/MrWong99/topictrends/internal/pageview"
)

// ErrDateOutOfRange is returned when a requested range precedes the earliest
// pageview day or exceeds today.
var ErrDateOutOfRange = errors.New("query: date out of range")

// MinBaseline is the minimum baseline view count a category or article needs
// to participate in delta analysis. Suppresses noise from near-zero bases.
const MinBaseline = 100

// DefaultTopArticles is the number of top articles reported per trending
// category.
const DefaultTopArticles = 10

// Range is an inclusive date range. A range whose To precedes From is empty;
// queries over an empty range return empty series rather than an error.
type Range struct {
	From pageview.Date
	To   pageview.Date
}

// Empty reports whether the range contains no days.
func (r Range) Empty() bool {
	return r.To.Before(r.From)
}

// DailyViews is one point of a gap-free daily series. Days without a
// pageview file carry zero views.
type DailyViews struct {
	Date  pageview.Date
	Views uint64
}

// ArticleScore pairs an article QID with its aggregate view count.
type ArticleScore struct {
	QID   uint32
	Views uint64
}

// CategoryScore is one trending-category result.
type CategoryScore struct {
	QID   uint32
	Views uint64

	// TopArticles lists the highest-viewed articles directly in this
	// category, descending by views.
	TopArticles []ArticleScore
}

// Delta is one baseline/impact comparison result, keyed by a category or
// article QID depending on the query.
type Delta struct {
	QID             uint32
	BaselineViews   uint64
	ImpactViews     uint64
	DeltaPercentage float64
}

// Engine runs the analytics algorithms against the live corpora of a
// [corpus.Registry]. It is safe for concurrent use.
type Engine struct {
	registry *corpus.Registry
	metrics  *observe.Metrics
	now      func() time.Time

	// scratch pools per-request accumulator buffers to avoid recurring heap
	// pressure on the hot path.
	scratch sync.Pool
}

// Option is a functional option for Engine.
type Option func(*Engine)

// WithMetrics records query latencies into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithNow overrides the engine's clock, used by range validation. Tests use
// this to pin "today".
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine over the given registry.
func New(registry *corpus.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		now:      time.Now,
	}
	e.scratch.New = func() any {
		return []uint64(nil)
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// getBuffer returns a zeroed uint64 buffer of length n from the pool.
func (e *Engine) getBuffer(n int) []uint64 {
	buf := e.scratch.Get().([]uint64)
	if cap(buf) < n {
		return make([]uint64, n)
	}
	buf = buf[:n]
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// putBuffer returns a buffer to the pool.
func (e *Engine) putBuffer(buf []uint64) {
	e.scratch.Put(buf[:0])
}

// validateRange checks r against the corpus's earliest pageview day and
// today. An empty range is valid and handled by the caller.
func (e *Engine) validateRange(c *corpus.WikiCorpus, r Range) error {
	if r.Empty() {
		return nil
	}
	today := pageview.DateOf(e.now())
	if r.To.After(today) {
		return fmt.Errorf("%w: %s exceeds today (%s)", ErrDateOutOfRange, r.To, today)
	}
	if earliest := c.Views.Earliest(); !earliest.IsZero() && r.From.Before(earliest) {
		return fmt.Errorf("%w: %s precedes earliest snapshot (%s)", ErrDateOutOfRange, r.From, earliest)
	}
	return nil
}

// observe records one query duration.
func (e *Engine) observe(ctx context.Context, algorithm string, start time.Time) {
	e.metrics.RecordQuery(ctx, algorithm, time.Since(start).Seconds())
}

// ArticleViews returns the gap-free daily view series of one article.
// Days without a usable pageview file are emitted with zero views.
func (e *Engine) ArticleViews(ctx context.Context, wiki string, qid uint32, r Range) ([]DailyViews, error) {
	defer e.observe(ctx, "article_views", time.Now())

	c, err := e.registry.Get(wiki)
	if err != nil {
		return nil, err
	}
	dense, err := c.Articles.Dense(qid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wiki, err)
	}
	if err := e.validateRange(c, r); err != nil {
		return nil, err
	}
	if r.Empty() {
		return []DailyViews{}, nil
	}

	series := make([]DailyViews, 0, 32)
	for d := r.From; !d.After(r.To); d = d.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		point := DailyViews{Date: d}
		if v, ok := c.Views.Day(d); ok {
			point.Views = v.At(dense)
			v.Release()
		}
		series = append(series, point)
	}
	return series, nil
}

// CategoryViews returns the daily view series of a category subtree: the sum
// over every article belonging to the category or any descendant within
// maxDepth layers. Each article contributes once regardless of how many
// member categories it has, and cycles in the graph cannot double count
// (descendants are collected by visited-set BFS, inclusion is a set).
func (e *Engine) CategoryViews(ctx context.Context, wiki string, qid uint32, r Range, maxDepth int) ([]DailyViews, error) {
	defer e.observe(ctx, "category_views", time.Now())

	c, err := e.registry.Get(wiki)
	if err != nil {
		return nil, err
	}
	root, err := c.Categories.Dense(qid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wiki, err)
	}
	if err := e.validateRange(c, r); err != nil {
		return nil, err
	}
	if r.Empty() {
		return []DailyViews{}, nil
	}

	included := e.inclusionSet(c, root, maxDepth)

	series := make([]DailyViews, 0, 32)
	for d := r.From; !d.After(r.To); d = d.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		point := DailyViews{Date: d}
		if v, ok := c.Views.Day(d); ok {
			var sum uint64
			for _, a := range included {
				sum += v.At(a)
			}
			point.Views = sum
			v.Release()
		}
		series = append(series, point)
	}
	return series, nil
}

// inclusionSet returns the deduplicated article dense ids belonging to the
// subtree of root bounded by maxDepth. Membership is resolved through the
// inverted category→article CSR; a seen-bitmap guarantees multiplicity 1.
func (e *Engine) inclusionSet(c *corpus.WikiCorpus, root uint32, maxDepth int) []uint32 {
	descendants := c.Graph.Descendants(root, maxDepth)

	seen := make([]bool, c.Articles.Len())
	var included []uint32
	for _, cat := range descendants {
		for _, a := range c.Index.ArticlesOf(cat) {
			if !seen[a] {
				seen[a] = true
				included = append(included, a)
			}
		}
	}
	return included
}
