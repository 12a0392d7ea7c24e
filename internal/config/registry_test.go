package config_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/topictrends/internal/config"
	"github.com/MrWong99/topictrends/pkg/provider/embeddings"
	"github.com/MrWong99/topictrends/pkg/provider/embeddings/mock"
)

func TestRegistry_CreateEmbeddings(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterEmbeddings("mock", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return &mock.Provider{ModelIDValue: entry.Model}, nil
	})

	p, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "mock", Model: "test-model"})
	if err != nil {
		t.Fatalf("CreateEmbeddings: %v", err)
	}
	if p.ModelID() != "test-model" {
		t.Errorf("ModelID: got %q, want %q", p.ModelID(), "test-model")
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
}
