package ports

import (
	"context"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

// Retriever is the inbound contract for scoped, optionally boosted retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, query, scope string, k int, boost domain.BoostField) ([]domain.RetrievedChunk, error)
}

// Extractor runs one extraction type against one target.
type Extractor interface {
	Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error)
}

// BatchExtractor runs extractions for many targets concurrently.
type BatchExtractor interface {
	Run(ctx context.Context, req domain.BatchRequest) domain.BatchReport
}

// DocumentEmbedder is the inbound contract for the embedding pipeline.
type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, key, domainName string, force bool) (domain.EmbedReport, error)
	EmbedDomain(ctx context.Context, domainName string, force bool) ([]domain.EmbedReport, error)
	EmbedTargets(ctx context.Context, targets []string, isDomain, force bool) ([]domain.EmbedReport, error)
	Verify(ctx context.Context, domainName string) (domain.ChunkStats, error)
	ClearDomain(ctx context.Context, domainName string) error
}
