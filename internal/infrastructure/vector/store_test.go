package vector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type fakeBackend struct {
	chunks     []domain.RetrievedChunk
	queryErr   error
	lastLimit  int
	lastFilter domain.SearchFilter
	upserted   []domain.Chunk
	deleted    []domain.SearchFilter
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Upsert(_ context.Context, chunks []domain.Chunk) error {
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *fakeBackend) Query(_ context.Context, _ []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	f.lastLimit = limit
	f.lastFilter = filter
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := f.chunks
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeBackend) Delete(_ context.Context, filter domain.SearchFilter) error {
	f.deleted = append(f.deleted, filter)
	return nil
}

func chunkWith(id string, distance float64, phones int) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		Chunk: domain.Chunk{
			ID:       id,
			Content:  "content " + id,
			Patterns: domain.PatternSignals{Phones: domain.NewPatternSignal(phones)},
		},
		Distance: distance,
	}
}

func TestSearchBoostedRanksPresenceThenCountThenDistance(t *testing.T) {
	backend := &fakeBackend{chunks: []domain.RetrievedChunk{
		chunkWith("A", 0.1, 0),
		chunkWith("B", 0.3, 2),
		chunkWith("C", 0.2, 1),
	}}
	store := NewStore(backend, &fakeEmbedder{}, nil)

	got := store.SearchBoosted(context.Background(), "phone", 2, domain.DomainFilter("smithlaw.com"), domain.BoostPhones)
	if len(got) != 2 || got[0].ID != "B" || got[1].ID != "C" {
		t.Fatalf("unexpected ranking: %+v", ids(got))
	}
	if backend.lastLimit != 100 {
		t.Fatalf("expected over-fetch of 100, got %d", backend.lastLimit)
	}

	plain := store.SearchBoosted(context.Background(), "phone", 3, domain.DomainFilter("smithlaw.com"), domain.BoostNone)
	if want := []string{"A", "C", "B"}; fmt.Sprint(ids(plain)) != fmt.Sprint(want) {
		t.Fatalf("expected distance order %v, got %v", want, ids(plain))
	}
}

func TestSearchBoostedFindsSignalBeyondTopK(t *testing.T) {
	var chunks []domain.RetrievedChunk
	for i := 0; i < 150; i++ {
		phones := 0
		if i >= 90 && i < 100 {
			phones = 1
		}
		chunks = append(chunks, chunkWith(fmt.Sprintf("c%03d", i), float64(i)/1000, phones))
	}
	store := NewStore(&fakeBackend{chunks: chunks}, &fakeEmbedder{}, nil)

	got := store.SearchBoosted(context.Background(), "q", 3, domain.DocumentFilter("doc.md"), domain.BoostPhones)
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	for _, c := range got {
		if !c.Patterns.Phones.Present {
			t.Fatalf("expected only phone chunks from over-fetched pool, got %v", ids(got))
		}
	}
	if got[0].ID != "c090" {
		t.Fatalf("expected nearest phone chunk first, got %s", got[0].ID)
	}
}

func TestSearchReturnsEmptyOnBackendError(t *testing.T) {
	store := NewStore(&fakeBackend{queryErr: errors.New("connection refused")}, &fakeEmbedder{}, nil)

	got := store.Search(context.Background(), "q", 5, domain.DomainFilter("smithlaw.com"))
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	boosted := store.SearchBoosted(context.Background(), "q", 5, domain.DomainFilter("smithlaw.com"), domain.BoostEmails)
	if boosted == nil || len(boosted) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", boosted)
	}
}

func TestSearchReturnsEmptyOnEmbedderErrorAndInvalidScope(t *testing.T) {
	store := NewStore(&fakeBackend{chunks: []domain.RetrievedChunk{chunkWith("A", 0.1, 0)}}, &fakeEmbedder{err: errors.New("down")}, nil)
	if got := store.Search(context.Background(), "q", 5, domain.DomainFilter("smithlaw.com")); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", ids(got))
	}

	ok := NewStore(&fakeBackend{chunks: []domain.RetrievedChunk{chunkWith("A", 0.1, 0)}}, &fakeEmbedder{}, nil)
	both := domain.SearchFilter{DomainID: "abc", DocumentID: "doc"}
	if got := ok.Search(context.Background(), "q", 5, both); len(got) != 0 {
		t.Fatalf("expected empty result for conflicting filter, got %v", ids(got))
	}
	if got := ok.Search(context.Background(), "q", 0, domain.DomainFilter("smithlaw.com")); len(got) != 0 {
		t.Fatalf("expected empty result for k=0, got %v", ids(got))
	}
}

func TestIndexChunksAssignsIDsAndEmbeds(t *testing.T) {
	backend := &fakeBackend{}
	embedder := &fakeEmbedder{}
	store := NewStore(backend, embedder, nil)

	err := store.IndexChunks(context.Background(), []domain.Chunk{
		{Content: "one"},
		{ID: "fixed", Content: "two", Embedding: []float32{0.5, 0.5}},
	})
	if err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}
	if len(backend.upserted) != 2 {
		t.Fatalf("expected 2 upserted chunks, got %d", len(backend.upserted))
	}
	if backend.upserted[0].ID == "" || backend.upserted[1].ID != "fixed" {
		t.Fatalf("unexpected ids %q %q", backend.upserted[0].ID, backend.upserted[1].ID)
	}
	if len(backend.upserted[0].Embedding) == 0 || backend.upserted[1].Embedding[0] != 0.5 {
		t.Fatalf("unexpected embeddings %+v", backend.upserted)
	}
	if embedder.calls != 1 {
		t.Fatalf("expected one batched embed call, got %d", embedder.calls)
	}
}

func TestDeleteByDomainUsesDomainID(t *testing.T) {
	backend := &fakeBackend{}
	store := NewStore(backend, &fakeEmbedder{}, nil)

	if err := store.DeleteByDomain(context.Background(), "https://www.SmithLaw.com/"); err != nil {
		t.Fatalf("DeleteByDomain() error = %v", err)
	}
	if len(backend.deleted) != 1 || backend.deleted[0].DomainID != domain.DomainID("smithlaw.com") {
		t.Fatalf("unexpected delete filter %+v", backend.deleted)
	}
	if err := store.DeleteByDomain(context.Background(), "  "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank domain, got %v", err)
	}
}

func TestStatsRequiresCapableBackend(t *testing.T) {
	store := NewStore(&fakeBackend{}, &fakeEmbedder{}, nil)
	if _, err := store.Stats(context.Background(), domain.DomainFilter("smithlaw.com")); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for backend without stats, got %v", err)
	}
}

func ids(chunks []domain.RetrievedChunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.ID)
	}
	return out
}
