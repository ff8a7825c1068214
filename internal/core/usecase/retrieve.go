package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/core/ports"
)

// RetrievalEngine turns a free-form scope into a filter and picks plain or
// boosted search. Results come back in store order, unmodified, unless the
// opt-in similarity threshold is set. It holds no state of its own.
type RetrievalEngine struct {
	store     ports.VectorStore
	threshold float64
}

type RetrievalOption func(*RetrievalEngine)

// WithSimilarityThreshold drops chunks whose cosine similarity (1 - distance)
// is below threshold. Zero keeps everything.
func WithSimilarityThreshold(threshold float64) RetrievalOption {
	return func(e *RetrievalEngine) {
		if threshold > 0 {
			e.threshold = threshold
		}
	}
}

func NewRetrievalEngine(store ports.VectorStore, opts ...RetrievalOption) *RetrievalEngine {
	e := &RetrievalEngine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveScope reads scope as a domain when it looks like one and falls back
// to a literal document id otherwise.
func ResolveScope(scope string) (domain.SearchFilter, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return domain.SearchFilter{}, domain.WrapError(domain.ErrInvalidInput, "resolve scope", errors.New("scope is empty"))
	}
	if strings.ContainsAny(scope, "./") {
		if name := domain.InferDomain(scope); name != "" {
			return domain.DomainFilter(name), nil
		}
	}
	return domain.DocumentFilter(scope), nil
}

// ExplicitScope builds a filter from a scope the caller has already typed.
func ExplicitScope(scope string, isDomain bool) (domain.SearchFilter, error) {
	if !isDomain {
		return ResolveScope(scope)
	}
	filter := domain.DomainFilter(scope)
	if err := filter.Validate(); err != nil {
		return domain.SearchFilter{}, err
	}
	return filter, nil
}

func (e *RetrievalEngine) Retrieve(
	ctx context.Context,
	query string,
	scope string,
	k int,
	boost domain.BoostField,
) ([]domain.RetrievedChunk, error) {
	filter, err := ResolveScope(scope)
	if err != nil {
		return nil, err
	}
	return e.RetrieveScoped(ctx, domain.RetrievalQuery{
		Text:   query,
		Filter: filter,
		K:      k,
		Boost:  boost,
	})
}

// RetrieveScoped returns the store's chunks in store order, minus any below
// the opt-in threshold.
func (e *RetrievalEngine) RetrieveScoped(ctx context.Context, q domain.RetrievalQuery) ([]domain.RetrievedChunk, error) {
	if err := q.Filter.Validate(); err != nil {
		return nil, err
	}
	var chunks []domain.RetrievedChunk
	if boosted, ok := e.store.(ports.BoostedSearcher); ok && q.Boost != domain.BoostNone {
		chunks = boosted.SearchBoosted(ctx, q.Text, q.K, q.Filter, q.Boost)
	} else {
		chunks = e.store.Search(ctx, q.Text, q.K, q.Filter)
	}
	return e.applyThreshold(chunks), nil
}

func (e *RetrievalEngine) applyThreshold(chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	if e.threshold <= 0 {
		return chunks
	}
	out := make([]domain.RetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if 1-chunk.Distance >= e.threshold {
			out = append(out, chunk)
		}
	}
	return out
}
