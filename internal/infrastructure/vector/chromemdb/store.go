package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

// Backend keeps chunks in an embedded chromem collection, in memory or
// persisted under a directory.
type Backend struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// Open creates the backend. An empty path keeps everything in memory.
func Open(path, collection string, compress bool) (*Backend, error) {
	var (
		db  *chromem.DB
		err error
	)
	if strings.TrimSpace(path) == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db %s: %w", path, err)
		}
	}
	return newBackend(db, collection)
}

func newBackend(db *chromem.DB, name string) (*Backend, error) {
	collection, err := db.GetOrCreateCollection(name, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", name, err)
	}
	return &Backend{db: db, collection: collection}, nil
}

// precomputedOnly rejects text embedding; vectors always come from the store.
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem: embeddings must be precomputed")
}

func (b *Backend) Name() string {
	return "chromem"
}

func (b *Backend) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chromem upsert: chunk %q has no embedding", chunk.ID)
		}
		docs = append(docs, chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Content,
			Metadata:  chunkMetadata(chunk),
			Embedding: chunk.Embedding,
		})
	}
	if err := b.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("chromem add documents: %w", err)
	}
	return nil
}

func (b *Backend) Query(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	// chromem rejects nResults above the collection size.
	count := b.collection.Count()
	if count == 0 || limit <= 0 {
		return []domain.RetrievedChunk{}, nil
	}
	if limit > count {
		limit = count
	}

	key, value := filter.Key()
	results, err := b.collection.QueryEmbedding(ctx, vector, limit, map[string]string{key: value}, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]domain.RetrievedChunk, 0, len(results))
	for _, r := range results {
		out = append(out, domain.RetrievedChunk{
			Chunk:    chunkFromResult(r),
			Distance: 1 - float64(r.Similarity),
		})
	}
	return out, nil
}

func (b *Backend) Delete(ctx context.Context, filter domain.SearchFilter) error {
	key, value := filter.Key()
	if err := b.collection.Delete(ctx, map[string]string{key: value}, nil); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	return nil
}

func chunkMetadata(chunk domain.Chunk) map[string]string {
	meta := chunk.Patterns.StringMap()
	meta["document_id"] = chunk.DocumentID
	meta["domain"] = chunk.Domain
	meta["domain_id"] = chunk.DomainID
	meta["filename"] = chunk.Filename
	meta["chunk_index"] = strconv.Itoa(chunk.ChunkIndex)
	meta["total_chunks"] = strconv.Itoa(chunk.TotalChunks)
	return meta
}

func chunkFromResult(r chromem.Result) domain.Chunk {
	index, _ := strconv.Atoi(r.Metadata["chunk_index"])
	total, _ := strconv.Atoi(r.Metadata["total_chunks"])
	return domain.Chunk{
		ID:          r.ID,
		Content:     r.Content,
		DocumentID:  r.Metadata["document_id"],
		Domain:      r.Metadata["domain"],
		DomainID:    r.Metadata["domain_id"],
		Filename:    r.Metadata["filename"],
		ChunkIndex:  index,
		TotalChunks: total,
		Patterns:    domain.PatternSignalsFromStrings(r.Metadata),
	}
}
