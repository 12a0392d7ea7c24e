// Package tei provides an embeddings provider backed by a local
// text-embeddings-inference server.
//
// text-embeddings-inference (https://github.com/huggingface/text-embeddings-inference)
// serves sentence-transformer models such as all-MiniLM-L6-v2 and
// bge-small-en-v1.5 behind a small HTTP API. This package uses the native
// /embed endpoint to generate dense float32 vectors.
//
// Example usage:
//
//	p, err := tei.New("", "BAAI/bge-small-en-v1.5") // connects to http://localhost:8081
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vec, err := p.Embed(ctx, "query: artificial intelligence")
//
// Only standard library packages are used — no additional dependencies are
// required beyond Go's net/http and encoding/json.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/topictrends/pkg/provider/embeddings"
)

// DefaultBaseURL is the default base URL for a locally running
// text-embeddings-inference instance.
const DefaultBaseURL = "http://localhost:8081"

// Ensure Provider implements the embeddings.Provider interface at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider using a text-embeddings-inference server.
//
// Dimension resolution happens in this order:
//  1. Value supplied via WithDimensions option (highest priority).
//  2. Look-up in the built-in knownDimensions table for recognised model names.
//  3. Auto-detection: a single probe embed is issued on the first Dimensions
//     call and the length of the returned vector is cached for the lifetime of
//     the Provider.
//
// Provider is safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client

	// dimensions holds the resolved vector length. When zero after
	// construction, it is populated lazily by detectOnce.
	dimensions int
	detectOnce sync.Once
	detectErr  error
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout    time.Duration
	dimensions int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout on the underlying HTTP client.
// A zero or negative value means no timeout (the default).
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithDimensions pre-sets the embedding dimension, bypassing the look-up table
// and avoiding the probe request that Dimensions() would otherwise issue for
// unknown models on first call.
func WithDimensions(dims int) Option {
	return func(c *config) {
		c.dimensions = dims
	}
}

// knownDimensions maps recognised model names to their native vector length.
var knownDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-base-en-v1.5":                  768,
	"intfloat/e5-small-v2":                   384,
	"intfloat/multilingual-e5-small":         384,
}

// New constructs a new text-embeddings-inference Provider.
//
// baseURL is the base URL of the server (e.g., "http://localhost:8081").
// If empty, DefaultBaseURL is used. A trailing slash is stripped automatically.
//
// model is the model name the server was launched with; it is used only for
// dimension look-up and ModelID, since the server embeds with its single
// loaded model regardless.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("tei embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	client := &http.Client{}
	if cfg.timeout > 0 {
		client.Timeout = cfg.timeout
	}

	p := &Provider{
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		dimensions: cfg.dimensions,
	}
	if p.dimensions == 0 {
		p.dimensions = knownDimensions[model]
	}
	return p, nil
}

// embedRequest is the JSON body for the /embed endpoint.
type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return p.embed(ctx, texts)
}

// embed performs a single /embed round trip for the given inputs.
func (p *Provider) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("tei embeddings: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tei embeddings: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tei embeddings: embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tei embeddings: embed: server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var vecs [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vecs); err != nil {
		return nil, fmt.Errorf("tei embeddings: decode response: %w", err)
	}
	if len(vecs) != len(inputs) {
		return nil, fmt.Errorf("tei embeddings: expected %d embeddings, got %d", len(inputs), len(vecs))
	}
	return vecs, nil
}

// Dimensions implements embeddings.Provider. For models missing from the
// look-up table it issues a one-time probe request; a probe failure returns 0
// and the probe is not retried.
func (p *Provider) Dimensions() int {
	if p.dimensions > 0 {
		return p.dimensions
	}
	p.detectOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		vec, err := p.Embed(ctx, "dimension probe")
		if err != nil {
			p.detectErr = err
			return
		}
		p.dimensions = len(vec)
	})
	return p.dimensions
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return p.model
}
