package chromemdb

import (
	"context"
	"testing"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

func seed(t *testing.T) *Backend {
	t.Helper()
	b, err := Open("", "chunks", false)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	smith := domain.DomainID("smithlaw.com")
	jones := domain.DomainID("joneslaw.com")
	chunks := []domain.Chunk{
		{ID: "s1", Content: "Call 404-555-0100", DocumentID: "smithlaw.com/contact.md", Domain: "smithlaw.com", DomainID: smith, ChunkIndex: 0, TotalChunks: 2,
			Patterns: domain.PatternSignals{Phones: domain.NewPatternSignal(1), Contact: domain.NewPatternSignal(1)}, Embedding: []float32{1, 0, 0}},
		{ID: "s2", Content: "About the firm", DocumentID: "smithlaw.com/about.md", Domain: "smithlaw.com", DomainID: smith, ChunkIndex: 1, TotalChunks: 2,
			Embedding: []float32{0.6, 0.8, 0}},
		{ID: "j1", Content: "Jones office", DocumentID: "joneslaw.com/index.md", Domain: "joneslaw.com", DomainID: jones,
			Embedding: []float32{1, 0, 0}},
	}
	if err := b.Upsert(context.Background(), chunks); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return b
}

func TestQueryScopesByDomainAndOrdersByDistance(t *testing.T) {
	b := seed(t)

	got, err := b.Query(context.Background(), []float32{1, 0, 0}, 10, domain.DomainFilter("smithlaw.com"))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks in scope, got %d", len(got))
	}
	if got[0].ID != "s1" || got[1].ID != "s2" {
		t.Fatalf("unexpected order %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Distance > 0.001 || got[1].Distance < got[0].Distance {
		t.Fatalf("unexpected distances %f %f", got[0].Distance, got[1].Distance)
	}
	if !got[0].Patterns.Phones.Present || got[0].Patterns.Phones.Count != 1 || got[0].TotalChunks != 2 {
		t.Fatalf("metadata not restored: %+v", got[0].Chunk)
	}
}

func TestQueryByDocument(t *testing.T) {
	b := seed(t)

	got, err := b.Query(context.Background(), []float32{1, 0, 0}, 5, domain.DocumentFilter("joneslaw.com/index.md"))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "j1" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestDeleteByDomainKeepsOtherDomains(t *testing.T) {
	b := seed(t)

	if err := b.Delete(context.Background(), domain.DomainFilter("smithlaw.com")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	left, err := b.Query(context.Background(), []float32{1, 0, 0}, 5, domain.DomainFilter("smithlaw.com"))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected domain to be empty, got %d chunks", len(left))
	}
	other, _ := b.Query(context.Background(), []float32{1, 0, 0}, 5, domain.DomainFilter("joneslaw.com"))
	if len(other) != 1 {
		t.Fatalf("expected other domain untouched, got %d chunks", len(other))
	}
}

func TestQueryEmptyCollection(t *testing.T) {
	b, err := Open("", "empty", false)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, err := b.Query(context.Background(), []float32{1, 0}, 5, domain.DomainFilter("smithlaw.com"))
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v, %v", got, err)
	}
}
