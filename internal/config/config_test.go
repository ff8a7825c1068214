package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EXTRACTION_CHUNK_SIZE", "")
	t.Setenv("EXTRACTION_CHUNK_OVERLAP", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("VECTOR_BACKEND", "")
	t.Setenv("TARGET_TIMEOUT_SECONDS", "")

	cfg := Load()
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, BackendPGVector, cfg.VectorBackend)
	assert.Equal(t, 60*time.Second, cfg.TargetTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("EXTRACTION_CHUNK_SIZE", "800")
	t.Setenv("EXTRACTION_TEMPERATURE", "0.4")
	t.Setenv("VECTOR_BACKEND", "Qdrant")
	t.Setenv("CHROMEM_COMPRESS", "true")
	t.Setenv("EXTRACTION_SEED", "-1")

	cfg := Load()
	assert.Equal(t, 800, cfg.ChunkSize)
	assert.InDelta(t, 0.4, cfg.Temperature, 1e-9)
	assert.Equal(t, BackendQdrant, cfg.VectorBackend)
	assert.True(t, cfg.ChromemCompress)
	assert.Nil(t, cfg.GenerationOptions().Seed)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := Load()
	cases := map[string]func(*Config){
		"overlap equals size": func(c *Config) { c.ChunkOverlap = c.ChunkSize },
		"small chunks":        func(c *Config) { c.ChunkSize = 50; c.ChunkOverlap = 10 },
		"temperature":         func(c *Config) { c.Temperature = 2.5 },
		"top_p":               func(c *Config) { c.TopP = 1.2 },
		"max tokens":          func(c *Config) { c.MaxTokens = 20 },
		"k chunks":            func(c *Config) { c.KChunks = 0 },
		"threshold":           func(c *Config) { c.SimilarityThreshold = -0.1 },
		"provider":            func(c *Config) { c.LLMProvider = "openai" },
		"gemini without key":  func(c *Config) { c.LLMProvider = ProviderGemini; c.GeminiAPIKey = "" },
		"backend":             func(c *Config) { c.VectorBackend = "faiss" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			cfg.LLMProvider = ProviderOllama
			cfg.VectorBackend = BackendPGVector
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.ErrInvalidConfig))
		})
	}
}

func TestLoadExtractionTypesDefaults(t *testing.T) {
	table, err := LoadExtractionTypes("")
	require.NoError(t, err)
	assert.Len(t, table.Types, len(domain.DefaultExtractionTypes()))
	assert.Empty(t, table.PracticeAreaKeywords)
}

func TestLoadExtractionTypesMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extraction_types.yaml")
	content := `
extraction_types:
  - name: office_locations
    k: 6
  - name: year_founded
    boost: contains_money
    instructions: 'Return {"year": <int>}.'
  - name: awards
    query: award honor recognition super lawyers best lawyers
    k: 3
    max_tokens: 300
    schema: '{"type":"object"}'
practice_area_keywords:
  - maritime law
  - aviation accident
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := LoadExtractionTypes(path)
	require.NoError(t, err)

	byName := map[string]domain.ExtractionType{}
	for _, et := range table.Types {
		byName[et.Name] = et
	}
	require.Contains(t, byName, "awards")
	assert.Equal(t, 6, byName["office_locations"].K)
	assert.Equal(t, domain.BoostAddresses, byName["office_locations"].Boost)
	assert.Equal(t, domain.BoostMoney, byName["year_founded"].Boost)
	assert.Equal(t, 50, byName["year_founded"].MaxTokens)
	assert.Equal(t, `{"type":"object"}`, string(byName["awards"].Schema))
	assert.Equal(t, "awards", table.Types[len(table.Types)-1].Name)
	assert.Equal(t, []string{"maritime law", "aviation accident"}, table.PracticeAreaKeywords)
}

func TestLoadExtractionTypesRejectsInvalidEntries(t *testing.T) {
	_, err := mergeExtractionTypes(ExtractionTable{Types: domain.DefaultExtractionTypes()}, []byte(`
extraction_types:
  - name: partial
    k: 2
`))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidConfig))

	_, err = mergeExtractionTypes(ExtractionTable{Types: domain.DefaultExtractionTypes()}, []byte(`
extraction_types:
  - name: office_locations
    boost: fax
`))
	require.Error(t, err)

	_, err = LoadExtractionTypes(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, domain.IsKind(err, domain.ErrInvalidConfig))
}
