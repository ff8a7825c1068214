package chunking

import (
	"fmt"
	"strings"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

// MinChunkSize matches the configuration floor. Smaller windows can fall
// entirely inside a whitespace run, which would break the overlap chain.
const MinChunkSize = 100

// DefaultSeparators are tried in order; a hard cut is the last resort.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Splitter cuts text into windows of at most ChunkSize runes. Consecutive
// windows share at least Overlap runes, except when the text ends first.
type Splitter struct {
	ChunkSize  int
	Overlap    int
	Separators []string
}

func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize < MinChunkSize {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new splitter", fmt.Errorf("chunk size must be at least %d, got %d", MinChunkSize, chunkSize))
	}
	if overlap < 0 {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new splitter", fmt.Errorf("chunk overlap must not be negative, got %d", overlap))
	}
	if overlap >= chunkSize {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new splitter", fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, chunkSize))
	}
	return &Splitter{
		ChunkSize:  chunkSize,
		Overlap:    overlap,
		Separators: DefaultSeparators,
	}, nil
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/(s.ChunkSize-s.Overlap)+1)
	prevCut := 0
	for start := 0; start < len(runes); {
		end := start + s.ChunkSize
		if end >= len(runes) {
			out = appendNonBlank(out, string(runes[start:]))
			break
		}

		cut := s.breakPoint(runes, start, end, prevCut)
		out = appendNonBlank(out, string(runes[start:cut]))
		start = s.nextStart(runes, start, cut)
		prevCut = cut
	}
	return out
}

// breakPoint picks the end of the window starting at start: right after the
// last occurrence of the highest-priority separator, or a hard cut at end.
// The window is longer than the overlap and ends past prevCut, so each chunk
// advances and begins with the tail of the previous one.
func (s *Splitter) breakPoint(runes []rune, start, end, prevCut int) int {
	lo := max(start+s.Overlap+1, prevCut+1)
	if lo >= end {
		return end
	}
	window := string(runes[lo:end])
	for _, sep := range s.Separators {
		if sep == "" {
			continue
		}
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		return lo + len([]rune(window[:idx+len(sep)]))
	}
	return end
}

// nextStart steps back Overlap runes from cut, then a little further to a
// whitespace boundary when one is close, so the shared text starts on a word.
func (s *Splitter) nextStart(runes []rune, start, cut int) int {
	next := cut - s.Overlap
	if s.Overlap == 0 {
		return next
	}
	floor := max(next-s.Overlap/4, cut-s.ChunkSize, start)
	for i := next; i > floor; i-- {
		if isSpace(runes[i-1]) {
			return i
		}
	}
	return next
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

func appendNonBlank(out []string, chunk string) []string {
	if strings.TrimSpace(chunk) == "" {
		return out
	}
	return append(out, chunk)
}
