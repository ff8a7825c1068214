package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/core/ports"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/resilience"
)

// Backend is a concrete similarity index. Distances are cosine distances,
// smaller is closer.
type Backend interface {
	Name() string
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	Query(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
	Delete(ctx context.Context, filter domain.SearchFilter) error
}

// StatsBackend is implemented by backends able to count what they hold.
type StatsBackend interface {
	Stats(ctx context.Context, filter domain.SearchFilter) (domain.ChunkStats, error)
}

// Store puts embedding, resilience and ranking in front of a Backend.
type Store struct {
	backend    Backend
	embedder   ports.Embedder
	executor   *resilience.Executor
	classifier resilience.ErrorClassifier
}

type StoreOption func(*Store)

// WithClassifier overrides how backend errors are retried.
func WithClassifier(classifier resilience.ErrorClassifier) StoreOption {
	return func(s *Store) {
		if classifier != nil {
			s.classifier = classifier
		}
	}
}

func NewStore(backend Backend, embedder ports.Embedder, executor *resilience.Executor, opts ...StoreOption) *Store {
	s := &Store{
		backend:    backend,
		embedder:   embedder,
		executor:   executor,
		classifier: resilience.ClassifyTransient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Backend() string {
	return s.backend.Name()
}

// IndexChunks embeds chunks lacking a vector and upserts them. Chunks without
// an id get a fresh one.
func (s *Store) IndexChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	prepared := make([]domain.Chunk, len(chunks))
	copy(prepared, chunks)

	var missing []int
	for i := range prepared {
		if strings.TrimSpace(prepared[i].ID) == "" {
			prepared[i].ID = uuid.NewString()
		}
		if len(prepared[i].Embedding) == 0 {
			missing = append(missing, i)
		}
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for i, idx := range missing {
			texts[i] = prepared[idx].Content
		}
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(missing) {
			return fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(missing))
		}
		for i, idx := range missing {
			prepared[idx].Embedding = vectors[i]
		}
	}

	err := s.executor.Execute(ctx, s.operation("upsert"), func(ctx context.Context) error {
		return s.backend.Upsert(ctx, prepared)
	}, s.classifier)
	return resilience.WrapTemporary(s.operation("upsert"), err, s.classifier)
}

// Search returns at most k chunks nearest to query within filter. Any failure
// is logged and yields an empty result.
func (s *Store) Search(ctx context.Context, query string, k int, filter domain.SearchFilter) []domain.RetrievedChunk {
	results, err := s.query(ctx, query, k, k, filter)
	if err != nil {
		slog.Warn("vector_search_failed", "backend", s.backend.Name(), "k", k, "error", err)
		return []domain.RetrievedChunk{}
	}
	sortByDistance(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// SearchBoosted over-fetches candidates and ranks chunks carrying field first.
// BoostNone behaves like Search.
func (s *Store) SearchBoosted(ctx context.Context, query string, k int, filter domain.SearchFilter, field domain.BoostField) []domain.RetrievedChunk {
	if field == domain.BoostNone {
		return s.Search(ctx, query, k, filter)
	}
	candidates, err := s.query(ctx, query, k, OverFetchLimit(k), filter)
	if err != nil {
		slog.Warn("vector_search_failed",
			"backend", s.backend.Name(),
			"k", k,
			"boost", string(field),
			"error", err,
		)
		return []domain.RetrievedChunk{}
	}
	return RankBoosted(candidates, field, k)
}

func (s *Store) query(ctx context.Context, query string, k, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "vector search", fmt.Errorf("k must be positive, got %d", k))
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "vector search", errors.New("query is empty"))
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := resilience.Call(ctx, s.executor, s.operation("query"), func(ctx context.Context) ([]domain.RetrievedChunk, error) {
		return s.backend.Query(ctx, vec, limit, filter)
	}, s.classifier)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []domain.RetrievedChunk{}
	}
	return results, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	filter := domain.DocumentFilter(documentID)
	if err := filter.Validate(); err != nil {
		return err
	}
	return s.delete(ctx, filter)
}

func (s *Store) DeleteByDomain(ctx context.Context, domainName string) error {
	filter := domain.DomainFilter(domainName)
	if err := filter.Validate(); err != nil {
		return err
	}
	return s.delete(ctx, filter)
}

func (s *Store) delete(ctx context.Context, filter domain.SearchFilter) error {
	err := s.executor.Execute(ctx, s.operation("delete"), func(ctx context.Context) error {
		return s.backend.Delete(ctx, filter)
	}, s.classifier)
	return resilience.WrapTemporary(s.operation("delete"), err, s.classifier)
}

// Stats reports stored chunk and document counts. Backends that cannot count
// return an ErrNotFound-kind error.
func (s *Store) Stats(ctx context.Context, filter domain.SearchFilter) (domain.ChunkStats, error) {
	if err := filter.Validate(); err != nil {
		return domain.ChunkStats{}, err
	}
	sb, ok := s.backend.(StatsBackend)
	if !ok {
		return domain.ChunkStats{}, domain.WrapError(domain.ErrNotFound, "vector stats", fmt.Errorf("backend %s does not report stats", s.backend.Name()))
	}
	return resilience.Call(ctx, s.executor, s.operation("stats"), func(ctx context.Context) (domain.ChunkStats, error) {
		return sb.Stats(ctx, filter)
	}, s.classifier)
}

func (s *Store) operation(name string) string {
	return "vector." + s.backend.Name() + "." + name
}

var (
	_ ports.VectorStore      = (*Store)(nil)
	_ ports.BoostedSearcher  = (*Store)(nil)
	_ ports.ChunkStatsReader = (*Store)(nil)
)
