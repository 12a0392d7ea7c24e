package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/topictrends/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
data:
  dir: /srv/topictrends
  wikis: [enwiki, frwiki]
pageviews:
  mmap_cache_size: 256
taxonomy:
  embeddings:
    name: tei
    base_url: http://localhost:8081
    model: BAAI/bge-small-en-v1.5
  vector_store_dsn: postgres://localhost:5432/topictrends
  match_threshold: 0.6
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Data.Dir != "/srv/topictrends" {
		t.Errorf("data.dir: got %q, want %q", cfg.Data.Dir, "/srv/topictrends")
	}
	if len(cfg.Data.Wikis) != 2 || cfg.Data.Wikis[0] != "enwiki" {
		t.Errorf("data.wikis: got %v, want [enwiki frwiki]", cfg.Data.Wikis)
	}
	if cfg.Pageviews.MmapCacheSize != 256 {
		t.Errorf("pageviews.mmap_cache_size: got %d, want 256", cfg.Pageviews.MmapCacheSize)
	}
	if cfg.Taxonomy.Embeddings.Name != "tei" {
		t.Errorf("taxonomy.embeddings.name: got %q, want %q", cfg.Taxonomy.Embeddings.Name, "tei")
	}
	if cfg.Taxonomy.MatchThreshold != 0.6 {
		t.Errorf("taxonomy.match_threshold: got %v, want 0.6", cfg.Taxonomy.MatchThreshold)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("data:\n  dir: /x\n  wiki_list: [enwiki]\n"))
	if err == nil {
		t.Fatal("LoadFromReader: expected error for unknown field, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.LogLevel = "verbose"
	cfg.Data.Dir = "/x"
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate: expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("Validate: error %q does not mention log_level", err)
	}
}

func TestValidate_MissingDataDir(t *testing.T) {
	err := config.Validate(&config.Config{})
	if err == nil {
		t.Fatal("Validate: expected error for missing data.dir, got nil")
	}
}

func TestValidate_DuplicateWiki(t *testing.T) {
	cfg := &config.Config{}
	cfg.Data.Dir = "/x"
	cfg.Data.Wikis = []string{"enwiki", "dewiki", "enwiki"}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate: expected error for duplicate wiki, got nil")
	}
	if !strings.Contains(err.Error(), "duplicates") {
		t.Errorf("Validate: error %q does not mention the duplicate", err)
	}
}

func TestValidate_ThresholdRange(t *testing.T) {
	cfg := &config.Config{}
	cfg.Data.Dir = "/x"
	cfg.Taxonomy.MatchThreshold = 1.5
	if err := config.Validate(cfg); err == nil {
		t.Fatal("Validate: expected error for threshold outside [0, 1], got nil")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/data/override")
	t.Setenv("EMBEDDING_SERVER", "http://embed:8081")
	t.Setenv("VECTOR_STORE", "postgres://vec:5432/tt")

	cfg := &config.Config{}
	cfg.Data.Dir = "/data/original"
	config.ApplyEnv(cfg)

	if cfg.Data.Dir != "/data/override" {
		t.Errorf("DATA_DIR override: got %q, want %q", cfg.Data.Dir, "/data/override")
	}
	if cfg.Taxonomy.Embeddings.BaseURL != "http://embed:8081" {
		t.Errorf("EMBEDDING_SERVER override: got %q", cfg.Taxonomy.Embeddings.BaseURL)
	}
	if cfg.Taxonomy.VectorStoreDSN != "postgres://vec:5432/tt" {
		t.Errorf("VECTOR_STORE override: got %q", cfg.Taxonomy.VectorStoreDSN)
	}
}

func TestLogLevelSlog(t *testing.T) {
	t.Parallel()
	if config.LogDebug.Slog() >= config.LogError.Slog() {
		t.Error("Slog: debug should be below error")
	}
	if !config.LogWarn.IsValid() {
		t.Error("IsValid: warn should be valid")
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("IsValid: trace should be invalid")
	}
}
