package ports

import (
	"context"
	"io"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

// ObjectStorage stores crawled source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// MessageQueue publishes/consumes asynchronous jobs.
type MessageQueue interface {
	PublishExtractionJob(ctx context.Context, job domain.ExtractionJob) error
	SubscribeExtractionJobs(ctx context.Context, handler func(context.Context, domain.ExtractionJob) error) error
	PublishEmbedJob(ctx context.Context, job domain.EmbedJob) error
	SubscribeEmbedJobs(ctx context.Context, handler func(context.Context, domain.EmbedJob) error) error
}

// TextExtractor turns a stored page into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, key string) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits a document into annotated chunks.
type Chunker interface {
	Chunk(content, documentID, domainName string) []domain.Chunk
}

// VectorStore indexes chunks and performs scoped similarity search.
// Search never fails: backend errors yield an empty result.
type VectorStore interface {
	IndexChunks(ctx context.Context, chunks []domain.Chunk) error
	Search(ctx context.Context, query string, k int, filter domain.SearchFilter) []domain.RetrievedChunk
	DeleteByDocument(ctx context.Context, documentID string) error
	DeleteByDomain(ctx context.Context, domainName string) error
}

// BoostedSearcher is implemented by stores able to rank by pattern signals.
type BoostedSearcher interface {
	SearchBoosted(ctx context.Context, query string, k int, filter domain.SearchFilter, field domain.BoostField) []domain.RetrievedChunk
}

// ChunkStatsReader reports how much is stored for a scope.
type ChunkStatsReader interface {
	Stats(ctx context.Context, filter domain.SearchFilter) (domain.ChunkStats, error)
}

// Generator is the LLM boundary.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error)
}

// ExtractionRepository persists extraction results.
type ExtractionRepository interface {
	SaveExtraction(ctx context.Context, record *domain.ExtractionRecord) error
	ListExtractions(ctx context.Context, domainName string, limit int) ([]domain.ExtractionRecord, error)
	Stats(ctx context.Context) (domain.ExtractionStats, error)
}
