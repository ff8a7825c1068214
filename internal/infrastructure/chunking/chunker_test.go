package chunking

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/patterns"
)

func sampleDocument() string {
	var b strings.Builder
	for p := 0; p < 12; p++ {
		for s := 0; s < 5; s++ {
			fmt.Fprintf(&b, "Paragraph %d sentence %d talks about personal injury claims in Georgia. ", p, s)
		}
		if p%3 == 0 {
			b.WriteString("\nVisit 100 Main Street or call 404-555-0100.\n")
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func sharedOverlap(a, b string) int {
	ar := []rune(a)
	for l := len(ar); l > 0; l-- {
		if strings.HasPrefix(b, string(ar[len(ar)-l:])) {
			return l
		}
	}
	return 0
}

func TestNewSplitterRejectsInvalidOverlap(t *testing.T) {
	cases := []struct {
		size, overlap int
	}{
		{100, 100},
		{100, 150},
		{100, -1},
		{99, 10},
		{0, 0},
	}
	for _, tc := range cases {
		if _, err := NewSplitter(tc.size, tc.overlap); !domain.IsKind(err, domain.ErrInvalidConfig) {
			t.Fatalf("NewSplitter(%d, %d) expected ErrInvalidConfig, got %v", tc.size, tc.overlap, err)
		}
	}
	if _, err := NewChunker(200, 200, nil); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("NewChunker expected ErrInvalidConfig, got %v", err)
	}
}

func TestSplitKeepsWindowBoundsAndOverlap(t *testing.T) {
	text := sampleDocument()
	configs := []struct {
		size, overlap int
	}{
		{1000, 100},
		{500, 50},
		{300, 0},
		{200, 150},
		{120, 119},
	}
	for _, cfg := range configs {
		s, err := NewSplitter(cfg.size, cfg.overlap)
		if err != nil {
			t.Fatalf("NewSplitter(%d, %d): %v", cfg.size, cfg.overlap, err)
		}
		chunks := s.Split(text)
		if len(chunks) < 2 {
			t.Fatalf("size=%d: expected several chunks, got %d", cfg.size, len(chunks))
		}
		for i, c := range chunks {
			if n := utf8.RuneCountInString(c); n > cfg.size {
				t.Fatalf("size=%d: chunk %d has %d runes", cfg.size, i, n)
			}
			if i > 0 {
				if got := sharedOverlap(chunks[i-1], c); got < cfg.overlap {
					t.Fatalf("size=%d overlap=%d: chunks %d/%d share only %d runes", cfg.size, cfg.overlap, i-1, i, got)
				}
			}
		}
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s, err := NewSplitter(100, 0)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}
	text := "First paragraph is short and sits on its own.\n\n" +
		"Second paragraph is also short and sits alone.\n\n" +
		"Third paragraph closes the page with a little more text."
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected split, got %q", chunks)
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Fatalf("expected first chunk to end at a paragraph break, got %q", chunks[0])
	}
}

func TestSplitFallsBackToHardCut(t *testing.T) {
	s, err := NewSplitter(100, 20)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}
	chunks := s.Split(strings.Repeat("x", 250))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 hard-cut chunks, got %d: %q", len(chunks), chunks)
	}
	for _, c := range chunks[:2] {
		if len(c) != 100 {
			t.Fatalf("expected full 100-rune windows, got %d", len(c))
		}
	}
}

func TestSplitEmptyText(t *testing.T) {
	s, _ := NewSplitter(100, 10)
	if got := s.Split(""); got != nil {
		t.Fatalf("expected nil, got %q", got)
	}
	if got := s.Split("   \n\n  "); len(got) != 0 {
		t.Fatalf("expected no chunks for blank text, got %q", got)
	}
}

func TestChunkAttachesMetadata(t *testing.T) {
	c, err := NewChunker(300, 30, patterns.NewDetector())
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	chunks := c.Chunk(sampleDocument(), "smithlaw.com/markdown/contact.md", "")
	if len(chunks) == 0 {
		t.Fatalf("expected chunks")
	}

	wantID := domain.DomainID("smithlaw.com")
	sawAddress := false
	for i, ch := range chunks {
		if ch.ChunkIndex != i || ch.TotalChunks != len(chunks) {
			t.Fatalf("chunk %d has index %d/%d", i, ch.ChunkIndex, ch.TotalChunks)
		}
		if ch.Domain != "smithlaw.com" || ch.DomainID != wantID {
			t.Fatalf("unexpected domain %q/%q", ch.Domain, ch.DomainID)
		}
		if ch.DocumentID != "smithlaw.com/markdown/contact.md" || ch.Filename != "contact.md" {
			t.Fatalf("unexpected identity %q/%q", ch.DocumentID, ch.Filename)
		}
		if ch.Patterns.Length != utf8.RuneCountInString(ch.Content) {
			t.Fatalf("chunk %d length metadata %d does not match content", i, ch.Patterns.Length)
		}
		if ch.Patterns.Addresses.Present {
			sawAddress = true
		}
	}
	if !sawAddress {
		t.Fatalf("expected at least one chunk flagged with an address")
	}
}

func TestChunkSharesDomainIDAcrossDocuments(t *testing.T) {
	c, err := NewChunker(200, 20, nil)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	a := c.Chunk("About our firm.", "smithlaw.com/about.md", "")
	b := c.Chunk("Contact our firm.", "https://www.smithlaw.com/contact", "")
	explicit := c.Chunk("Results.", "results.md", "SmithLaw.com")
	other := c.Chunk("Elsewhere.", "jones-law.com/index.md", "")

	if a[0].DomainID != b[0].DomainID || a[0].DomainID != explicit[0].DomainID {
		t.Fatalf("expected one domain id, got %q %q %q", a[0].DomainID, b[0].DomainID, explicit[0].DomainID)
	}
	if a[0].DomainID == other[0].DomainID {
		t.Fatalf("different domains must not share a domain id")
	}
}

func TestChunkUnknownDomain(t *testing.T) {
	c, _ := NewChunker(200, 20, nil)
	chunks := c.Chunk("Some text.", "doc-42", "")
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0].Domain != "" || chunks[0].DomainID != "" {
		t.Fatalf("expected unknown domain, got %q/%q", chunks[0].Domain, chunks[0].DomainID)
	}
}
