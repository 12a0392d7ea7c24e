package tei_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/topictrends/pkg/provider/embeddings/tei"
)

// mockEmbedServer returns an httptest server emulating the /embed endpoint,
// answering every request with the given vectors (one per input).
func mockEmbedServer(t *testing.T, vecs [][]float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var req struct {
			Inputs []string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Inputs) != len(vecs) {
			t.Errorf("inputs: got %d, want %d", len(req.Inputs), len(vecs))
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(vecs); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestNew_RequiresModel(t *testing.T) {
	t.Parallel()
	if _, err := tei.New("", ""); err == nil {
		t.Fatal("New: expected error for empty model, got nil")
	}
}

func TestEmbed(t *testing.T) {
	want := []float32{0.1, 0.2, 0.3}
	srv := mockEmbedServer(t, [][]float32{want})
	defer srv.Close()

	p, err := tei.New(srv.URL, "BAAI/bge-small-en-v1.5")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("length: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("vec[%d]: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEmbedBatch(t *testing.T) {
	vecs := [][]float32{
		{0.1, 0.2},
		{0.3, 0.4},
		{0.5, 0.6},
	}
	srv := mockEmbedServer(t, vecs)
	defer srv.Close()

	p, err := tei.New(srv.URL, "BAAI/bge-small-en-v1.5")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(got) != len(vecs) {
		t.Fatalf("length: got %d, want %d", len(got), len(vecs))
	}
	for i, wantVec := range vecs {
		for j, wantVal := range wantVec {
			if got[i][j] != wantVal {
				t.Errorf("vec[%d][%d]: got %v, want %v", i, j, got[i][j], wantVal)
			}
		}
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	t.Parallel()
	// Use a port unlikely to be open so any accidental request would fail.
	p, err := tei.New("http://127.0.0.1:19999", "BAAI/bge-small-en-v1.5")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil): unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("EmbedBatch(nil): expected nil, got %v", got)
	}
}

func TestEmbed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := tei.New(srv.URL, "BAAI/bge-small-en-v1.5")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Embed(context.Background(), "x"); err == nil {
		t.Fatal("Embed: expected error for 503 response, got nil")
	}
}

func TestDimensions_KnownModels(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"sentence-transformers/all-MiniLM-L6-v2", 384},
		{"BAAI/bge-base-en-v1.5", 768},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			// Use an unreachable server — no request should be made.
			p, err := tei.New("http://127.0.0.1:19999", tt.model)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := p.Dimensions(); got != tt.want {
				t.Errorf("Dimensions(): got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDimensions_Override(t *testing.T) {
	t.Parallel()
	p, err := tei.New("http://127.0.0.1:19999", "custom/model", tei.WithDimensions(512))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Dimensions(); got != 512 {
		t.Errorf("Dimensions(): got %d, want 512", got)
	}
}
