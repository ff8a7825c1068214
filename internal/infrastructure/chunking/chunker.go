package chunking

import (
	"path"
	"strings"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

// PatternDetector annotates chunk text with structural signals.
type PatternDetector interface {
	Detect(text string) domain.PatternSignals
}

// Chunker turns a document into annotated chunks ready for embedding.
type Chunker struct {
	splitter *Splitter
	detector PatternDetector
}

func NewChunker(chunkSize, overlap int, detector PatternDetector) (*Chunker, error) {
	splitter, err := NewSplitter(chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	return &Chunker{splitter: splitter, detector: detector}, nil
}

// Chunk splits content and attaches identity and pattern metadata. When
// domainName is empty the domain is inferred from documentID.
func (c *Chunker) Chunk(content, documentID, domainName string) []domain.Chunk {
	pieces := c.splitter.Split(content)
	if len(pieces) == 0 {
		return nil
	}

	normalized := domain.NormalizeDomain(domainName)
	if normalized == "" {
		normalized = domain.InferDomain(documentID)
	}
	domainID := domain.DomainID(normalized)
	filename := path.Base(strings.TrimRight(documentID, "/"))

	out := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunk := domain.Chunk{
			Content:     piece,
			DocumentID:  documentID,
			Domain:      normalized,
			DomainID:    domainID,
			Filename:    filename,
			ChunkIndex:  i,
			TotalChunks: len(pieces),
		}
		if c.detector != nil {
			chunk.Patterns = c.detector.Detect(piece)
		}
		out = append(out, chunk)
	}
	return out
}
