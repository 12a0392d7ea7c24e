package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidEmbeddingsProviders lists known embedding backend names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidEmbeddingsProviders = []string{"openai", "tei"}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. It is a convenience wrapper
// around [LoadFromReader], [ApplyEnv], and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg fields from the process environment:
//
//   - DATA_DIR         -> Data.Dir
//   - EMBEDDING_SERVER -> Taxonomy.Embeddings.BaseURL
//   - VECTOR_STORE     -> Taxonomy.VectorStoreDSN
//
// These are the only environment variables the engine reads.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("EMBEDDING_SERVER"); v != "" {
		cfg.Taxonomy.Embeddings.BaseURL = v
	}
	if v := os.Getenv("VECTOR_STORE"); v != "" {
		cfg.Taxonomy.VectorStoreDSN = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Data.Dir == "" {
		errs = append(errs, fmt.Errorf("data.dir must be set (or DATA_DIR exported)"))
	}

	seen := make(map[string]int, len(cfg.Data.Wikis))
	for i, wiki := range cfg.Data.Wikis {
		if wiki == "" {
			errs = append(errs, fmt.Errorf("data.wikis[%d] is empty", i))
			continue
		}
		if prev, dup := seen[wiki]; dup {
			errs = append(errs, fmt.Errorf("data.wikis[%d] %q duplicates data.wikis[%d]", i, wiki, prev))
		}
		seen[wiki] = i
	}

	if cfg.Pageviews.MmapCacheSize < 0 {
		errs = append(errs, fmt.Errorf("pageviews.mmap_cache_size must not be negative"))
	}

	if n := cfg.Taxonomy.Embeddings.Name; n != "" && !slices.Contains(ValidEmbeddingsProviders, n) {
		slog.Warn("unrecognised embeddings provider name", "name", n, "known", ValidEmbeddingsProviders)
	}
	if cfg.Taxonomy.Embeddings.Name != "" && cfg.Taxonomy.VectorStoreDSN == "" {
		slog.Warn("taxonomy.embeddings is configured but taxonomy.vector_store_dsn is empty; semantic search will be unavailable")
	}
	if t := cfg.Taxonomy.MatchThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("taxonomy.match_threshold %v is outside [0, 1]", t))
	}
	if cfg.Taxonomy.EmbedConcurrency < 0 {
		errs = append(errs, fmt.Errorf("taxonomy.embed_concurrency must not be negative"))
	}
	if cfg.Taxonomy.SearchConcurrency < 0 {
		errs = append(errs, fmt.Errorf("taxonomy.search_concurrency must not be negative"))
	}

	return errors.Join(errs...)
}
