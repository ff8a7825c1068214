package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/firm-distillery/internal/config"
	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/resilience"
)

func TestNewLLMProviderRejectsUnknownProvider(t *testing.T) {
	_, err := newLLMProvider(context.Background(), config.Config{LLMProvider: "openai"}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNewLLMProviderGeminiRequiresKey(t *testing.T) {
	_, err := newLLMProvider(context.Background(), config.Config{LLMProvider: config.ProviderGemini}, nil)
	if !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewLLMProviderOllama(t *testing.T) {
	p, err := newLLMProvider(context.Background(), config.Config{
		LLMProvider:      config.ProviderOllama,
		OllamaURL:        "http://localhost:11434",
		OllamaGenModel:   "llama3.1:8b",
		OllamaEmbedModel: "nomic-embed-text",
	}, resilience.NewExecutor(resilience.GenerationConfig()))
	if err != nil {
		t.Fatalf("newLLMProvider() error = %v", err)
	}
	if p.generator == nil || p.embedder == nil || p.name != config.ProviderOllama {
		t.Fatalf("unexpected provider %+v", p)
	}
}

func TestNewVectorBackendChromemInMemory(t *testing.T) {
	backend, err := newVectorBackend(context.Background(), config.Config{
		VectorBackend:     config.BackendChromem,
		ChromemCollection: "law_firm_chunks",
	}, nil)
	if err != nil {
		t.Fatalf("newVectorBackend() error = %v", err)
	}
	if backend.Name() != config.BackendChromem {
		t.Fatalf("expected chromem backend, got %q", backend.Name())
	}
}

func TestNewVectorBackendRejectsUnknown(t *testing.T) {
	if _, err := newVectorBackend(context.Background(), config.Config{VectorBackend: "faiss"}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestNewRateLimiter(t *testing.T) {
	if newRateLimiter(0, 5) != nil {
		t.Fatalf("zero rate must disable limiting")
	}
	limiter := newRateLimiter(2, 0)
	if limiter == nil || limiter.Burst() != 1 {
		t.Fatalf("expected limiter with burst 1, got %+v", limiter)
	}
}

func TestProbeReportsFailure(t *testing.T) {
	got := probe(context.Background(), "nats", func(context.Context) (string, error) {
		return "", errors.New("no servers available")
	})
	if got.OK || got.Detail != "no servers available" {
		t.Fatalf("unexpected probe result %+v", got)
	}
}
