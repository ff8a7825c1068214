package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/firm-distillery/internal/config"
	"github.com/kirillkom/firm-distillery/internal/core/ports"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/resilience"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/vector"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/vector/chromemdb"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/vector/pgvectordb"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/vector/qdrant"
)

type llmProvider struct {
	name      string
	model     string
	generator ports.Generator
	embedder  ports.Embedder
	ping      func(ctx context.Context) (string, error)
	close     func()
}

func newLLMProvider(ctx context.Context, cfg config.Config, executor *resilience.Executor) (*llmProvider, error) {
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
			ollama.WithExecutor(executor),
			ollama.WithContextWindow(cfg.OllamaNumCtx),
		)
		return &llmProvider{
			name:      config.ProviderOllama,
			model:     cfg.OllamaGenModel,
			generator: ollama.NewGenerator(client),
			embedder:  ollama.NewEmbedder(client),
			ping: func(ctx context.Context) (string, error) {
				models, err := client.Ping(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d local models", len(models)), nil
			},
			close: func() {},
		}, nil
	case config.ProviderGemini:
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiGenModel, cfg.GeminiEmbedModel, gemini.WithExecutor(executor))
		if err != nil {
			return nil, err
		}
		return &llmProvider{
			name:      config.ProviderGemini,
			model:     cfg.GeminiGenModel,
			generator: gemini.NewGenerator(client),
			embedder:  gemini.NewEmbedder(client),
			ping:      client.Ping,
			close:     func() { _ = client.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

func newVectorBackend(ctx context.Context, cfg config.Config, db *sql.DB) (vector.Backend, error) {
	switch strings.ToLower(cfg.VectorBackend) {
	case config.BackendPGVector:
		backend, err := pgvectordb.New(db, cfg.PGVectorTable, cfg.EmbeddingDimensions)
		if err != nil {
			return nil, err
		}
		if err := backend.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure pgvector schema: %w", err)
		}
		return backend, nil
	case config.BackendQdrant:
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection), nil
	case config.BackendChromem:
		return chromemdb.Open(cfg.ChromemPath, cfg.ChromemCollection, cfg.ChromemCompress)
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.VectorBackend)
	}
}
