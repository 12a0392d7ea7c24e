package query

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/topictrends/internal/corpus"
	"github.com/MrWong99/topictrends/internal/graph"
	"github.com/MrWong99/topictrends/internal/pageview"
)

// articleTotals sums each article's views over the range into a dense
// length-N buffer from the pool. Days are split into chunks processed in
// parallel with shared-nothing accumulators, combined by reduction.
// Cancellation is honoured at day boundaries.
func (e *Engine) articleTotals(ctx context.Context, c *corpus.WikiCorpus, r Range) ([]uint64, error) {
	n := c.Articles.Len()
	totals := e.getBuffer(n)
	days := pageview.Days(r.From, r.To)
	if len(days) == 0 {
		return totals, nil
	}

	workers := min(runtime.GOMAXPROCS(0), len(days))
	if workers == 1 {
		if err := sumDays(ctx, c, days, totals); err != nil {
			e.putBuffer(totals)
			return nil, err
		}
		return totals, nil
	}

	partials := make([][]uint64, workers)
	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(days) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		w := w
		start := w * chunk
		end := min(start+chunk, len(days))
		if start >= end {
			break
		}
		g.Go(func() error {
			buf := e.getBuffer(n)
			if err := sumDays(gctx, c, days[start:end], buf); err != nil {
				e.putBuffer(buf)
				return err
			}
			partials[w] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, p := range partials {
			if p != nil {
				e.putBuffer(p)
			}
		}
		e.putBuffer(totals)
		return nil, err
	}

	for _, p := range partials {
		if p == nil {
			continue
		}
		for i, v := range p {
			totals[i] += v
		}
		e.putBuffer(p)
	}
	return totals, nil
}

// sumDays accumulates the given days into buf, checking ctx between days.
func sumDays(ctx context.Context, c *corpus.WikiCorpus, days []pageview.Date, buf []uint64) error {
	for _, d := range days {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, ok := c.Views.Day(d)
		if !ok {
			continue
		}
		for a := range buf {
			buf[a] += v.At(uint32(a))
		}
		v.Release()
	}
	return nil
}

// categoryTotals runs the reverse scatter: article range totals pushed onto
// every category each article belongs to. Returns both buffers; the caller
// owns them and must return them to the pool.
func (e *Engine) categoryTotals(ctx context.Context, c *corpus.WikiCorpus, r Range) (artTotals, catTotals []uint64, err error) {
	artTotals, err = e.articleTotals(ctx, c, r)
	if err != nil {
		return nil, nil, err
	}

	weights := make([]graph.ArticleWeight, 0, 1024)
	for a, views := range artTotals {
		if views > 0 {
			weights = append(weights, graph.ArticleWeight{Article: uint32(a), Weight: views})
		}
	}

	catTotals = e.getBuffer(c.Categories.Len())
	c.Index.Scatter(weights, catTotals)
	return artTotals, catTotals, nil
}

// TopCategories returns the topN categories by aggregate views over the
// range, each with its highest-viewed member articles. topArticles <= 0
// selects [DefaultTopArticles]; topN == 0 yields an empty list.
func (e *Engine) TopCategories(ctx context.Context, wiki string, r Range, topN, topArticles int) ([]CategoryScore, error) {
	defer e.observe(ctx, "top_categories", time.Now())

	c, err := e.registry.Get(wiki)
	if err != nil {
		return nil, err
	}
	if err := e.validateRange(c, r); err != nil {
		return nil, err
	}
	if r.Empty() || topN <= 0 {
		return []CategoryScore{}, nil
	}
	if topArticles <= 0 {
		topArticles = DefaultTopArticles
	}

	artTotals, catTotals, err := e.categoryTotals(ctx, c, r)
	if err != nil {
		return nil, err
	}
	defer e.putBuffer(artTotals)
	defer e.putBuffer(catTotals)

	collector := newTopCollector(topN)
	for cat, views := range catTotals {
		collector.offer(uint32(cat), views)
	}

	top := collector.results()
	results := make([]CategoryScore, 0, len(top))
	for _, entry := range top {
		results = append(results, CategoryScore{
			QID:         c.Categories.QID(entry.id),
			Views:       entry.score,
			TopArticles: topMemberArticles(c, entry.id, artTotals, topArticles),
		})
	}
	return results, nil
}

// topMemberArticles ranks the directly-contained articles of cat by their
// range totals.
func topMemberArticles(c *corpus.WikiCorpus, cat uint32, artTotals []uint64, limit int) []ArticleScore {
	collector := newTopCollector(limit)
	for _, a := range c.Index.ArticlesOf(cat) {
		collector.offer(a, artTotals[a])
	}
	top := collector.results()
	articles := make([]ArticleScore, 0, len(top))
	for _, entry := range top {
		articles = append(articles, ArticleScore{QID: c.Articles.QID(entry.id), Views: entry.score})
	}
	return articles
}

// deltaCandidate carries one comparison row before ranking.
type deltaCandidate struct {
	dense    uint32
	baseline uint64
	impact   uint64
	delta    float64
}

// rankDeltas orders candidates by |delta| descending, breaking ties by larger
// impact then smaller dense id, and truncates to limit.
func rankDeltas(candidates []deltaCandidate, limit int) []deltaCandidate {
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := math.Abs(candidates[i].delta), math.Abs(candidates[j].delta)
		if di != dj {
			return di > dj
		}
		if candidates[i].impact != candidates[j].impact {
			return candidates[i].impact > candidates[j].impact
		}
		return candidates[i].dense < candidates[j].dense
	})
	if limit >= 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// deltaPercentage computes 100 * (impact - baseline) / baseline.
func deltaPercentage(baseline, impact uint64) float64 {
	return 100 * (float64(impact) - float64(baseline)) / float64(baseline)
}

// DeltaCategories compares aggregate category views between a baseline and
// an impact range. Categories below [MinBaseline] views in the baseline are
// excluded; results are ranked by absolute delta percentage.
func (e *Engine) DeltaCategories(ctx context.Context, wiki string, baseline, impact Range, limit int) ([]Delta, error) {
	defer e.observe(ctx, "delta_categories", time.Now())

	c, err := e.registry.Get(wiki)
	if err != nil {
		return nil, err
	}
	if err := e.validateRange(c, baseline); err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	if err := e.validateRange(c, impact); err != nil {
		return nil, fmt.Errorf("impact: %w", err)
	}
	if limit <= 0 {
		return []Delta{}, nil
	}

	artBase, catBase, err := e.categoryTotals(ctx, c, baseline)
	if err != nil {
		return nil, err
	}
	e.putBuffer(artBase)
	defer e.putBuffer(catBase)

	artImpact, catImpact, err := e.categoryTotals(ctx, c, impact)
	if err != nil {
		return nil, err
	}
	e.putBuffer(artImpact)
	defer e.putBuffer(catImpact)

	var candidates []deltaCandidate
	for cat, base := range catBase {
		if base < MinBaseline {
			continue
		}
		candidates = append(candidates, deltaCandidate{
			dense:    uint32(cat),
			baseline: base,
			impact:   catImpact[cat],
			delta:    deltaPercentage(base, catImpact[cat]),
		})
	}

	results := make([]Delta, 0, min(limit, len(candidates)))
	for _, cand := range rankDeltas(candidates, limit) {
		results = append(results, Delta{
			QID:             c.Categories.QID(cand.dense),
			BaselineViews:   cand.baseline,
			ImpactViews:     cand.impact,
			DeltaPercentage: cand.delta,
		})
	}
	return results, nil
}

// DeltaArticles runs the same baseline/impact comparison restricted to the
// articles included under one category subtree (the inclusion rule of
// CategoryViews).
func (e *Engine) DeltaArticles(ctx context.Context, wiki string, categoryQID uint32, baseline, impact Range, maxDepth, limit int) ([]Delta, error) {
	defer e.observe(ctx, "delta_articles", time.Now())

	c, err := e.registry.Get(wiki)
	if err != nil {
		return nil, err
	}
	root, err := c.Categories.Dense(categoryQID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wiki, err)
	}
	if err := e.validateRange(c, baseline); err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	if err := e.validateRange(c, impact); err != nil {
		return nil, fmt.Errorf("impact: %w", err)
	}
	if limit <= 0 {
		return []Delta{}, nil
	}

	artBase, err := e.articleTotals(ctx, c, baseline)
	if err != nil {
		return nil, err
	}
	defer e.putBuffer(artBase)

	artImpact, err := e.articleTotals(ctx, c, impact)
	if err != nil {
		return nil, err
	}
	defer e.putBuffer(artImpact)

	var candidates []deltaCandidate
	for _, a := range e.inclusionSet(c, root, maxDepth) {
		base := artBase[a]
		if base < MinBaseline {
			continue
		}
		candidates = append(candidates, deltaCandidate{
			dense:    a,
			baseline: base,
			impact:   artImpact[a],
			delta:    deltaPercentage(base, artImpact[a]),
		})
	}

	results := make([]Delta, 0, min(limit, len(candidates)))
	for _, cand := range rankDeltas(candidates, limit) {
		results = append(results, Delta{
			QID:             c.Articles.QID(cand.dense),
			BaselineViews:   cand.baseline,
			ImpactViews:     cand.impact,
			DeltaPercentage: cand.delta,
		})
	}
	return results, nil
}
