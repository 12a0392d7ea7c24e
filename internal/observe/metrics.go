// Package observe provides application-wide observability primitives for
// TopicTrends: OpenTelemetry metrics and the provider wiring that exposes
// them for Prometheus scraping.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all TopicTrends metrics.
const meterName = "github.com/MrWong99/topictrends"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// QueryDuration tracks analytics query latency. Use with attribute:
	//   attribute.String("algorithm", "article_views" | "category_views" |
	//   "top_categories" | "delta_categories" | "delta_articles" |
	//   "search_categories")
	QueryDuration metric.Float64Histogram

	// --- Load counters ---

	// DroppedEdges counts topology edges dropped for unknown page ids. Use
	// with attributes:
	//   attribute.String("wiki", ...), attribute.String("table", "category_graph" | "article_category")
	DroppedEdges metric.Int64Counter

	// DepthClamped counts categories whose depth hit the cap. Use with
	// attribute: attribute.String("wiki", ...)
	DepthClamped metric.Int64Counter

	// StalePageviewFiles counts day files rejected for a mismatched article
	// count. Use with attribute: attribute.String("wiki", ...)
	StalePageviewFiles metric.Int64Counter

	// --- Taxonomy counters ---

	// IndexedPoints counts category points upserted into the vector store.
	IndexedPoints metric.Int64Counter

	// ExternalErrors counts failed embedding/vector-store/title calls. Use
	// with attribute: attribute.String("backend", "embeddings" | "vectorstore" | "titles")
	ExternalErrors metric.Int64Counter

	// --- Gauges ---

	// LoadedCorpora tracks the number of corpora currently in service.
	LoadedCorpora metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// in-memory scans: sub-millisecond lookups through multi-second range
// aggregations.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.QueryDuration, err = m.Float64Histogram("topictrends.query.duration",
		metric.WithDescription("Latency of analytics queries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DroppedEdges, err = m.Int64Counter("topictrends.load.dropped_edges",
		metric.WithDescription("Topology edges dropped for unknown page ids."),
	); err != nil {
		return nil, err
	}
	if met.DepthClamped, err = m.Int64Counter("topictrends.load.depth_clamped",
		metric.WithDescription("Categories whose depth was clamped at the cap."),
	); err != nil {
		return nil, err
	}
	if met.StalePageviewFiles, err = m.Int64Counter("topictrends.pageviews.stale_files",
		metric.WithDescription("Pageview day files rejected for a mismatched article count."),
	); err != nil {
		return nil, err
	}
	if met.IndexedPoints, err = m.Int64Counter("topictrends.taxonomy.indexed_points",
		metric.WithDescription("Category points upserted into the vector store."),
	); err != nil {
		return nil, err
	}
	if met.ExternalErrors, err = m.Int64Counter("topictrends.external.errors",
		metric.WithDescription("Failed calls to external backends."),
	); err != nil {
		return nil, err
	}
	if met.LoadedCorpora, err = m.Int64UpDownCounter("topictrends.corpora.loaded",
		metric.WithDescription("Corpora currently in service."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordQuery records one query latency observation with its algorithm
// attribute. Nil-safe so callers can hold an optional *Metrics.
func (m *Metrics) RecordQuery(ctx context.Context, algorithm string, seconds float64) {
	if m == nil {
		return
	}
	m.QueryDuration.Record(ctx, seconds, metric.WithAttributes(Attr("algorithm", algorithm)))
}

// CountExternalError records a failed external backend call. Nil-safe.
func (m *Metrics) CountExternalError(ctx context.Context, backend string) {
	if m == nil {
		return
	}
	m.ExternalErrors.Add(ctx, 1, metric.WithAttributes(Attr("backend", backend)))
}
