package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/core/ports"
)

const (
	// MaxPromptChunks caps how many retrieved chunks reach the prompt.
	MaxPromptChunks = 10
	chunkSeparator  = "\n---\n"
)

const extractionSystemPrompt = `You extract structured facts from law firm website text.
Use only the provided context. Never invent values.
Answer with a single JSON object and nothing else.`

type scopedRetriever interface {
	RetrieveScoped(ctx context.Context, q domain.RetrievalQuery) ([]domain.RetrievedChunk, error)
}

type ExtractUseCase struct {
	retriever scopedRetriever
	generator ports.Generator
	catalog   *domain.ExtractionCatalog
	options   domain.GenerationOptions
	limiter   *rate.Limiter
	now       func() time.Time
}

type ExtractOption func(*ExtractUseCase)

// WithRateLimiter throttles LLM calls. The limiter may be shared by callers
// running extractions concurrently.
func WithRateLimiter(limiter *rate.Limiter) ExtractOption {
	return func(uc *ExtractUseCase) {
		uc.limiter = limiter
	}
}

func NewExtractUseCase(
	retriever scopedRetriever,
	generator ports.Generator,
	catalog *domain.ExtractionCatalog,
	options domain.GenerationOptions,
	opts ...ExtractOption,
) *ExtractUseCase {
	uc := &ExtractUseCase{
		retriever: retriever,
		generator: generator,
		catalog:   catalog,
		options:   options,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *ExtractUseCase) Catalog() *domain.ExtractionCatalog {
	return uc.catalog
}

// Extract runs one extraction type against one target. LLM and parsing
// failures come back as a failed result; the error return is reserved for
// invalid requests and a context that is already done.
func (uc *ExtractUseCase) Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	extractionType, filter, err := uc.prepare(req)
	if err != nil {
		return nil, err
	}

	chunks, err := uc.retriever.RetrieveScoped(ctx, domain.RetrievalQuery{
		Text:   extractionType.Query,
		Filter: filter,
		K:      extractionType.K,
		Boost:  extractionType.Boost,
	})
	if err != nil {
		return nil, err
	}

	selected := selectPromptChunks(chunks)
	result := &domain.ExtractionResult{
		Type:       extractionType.Name,
		Target:     req.Target,
		Provenance: make([]string, 0, len(selected)),
		RequestMeta: domain.RequestMeta{
			Temperature: uc.options.Temperature,
			TopP:        uc.options.TopP,
			MaxTokens:   extractionType.MaxTokens,
			ChunkCount:  len(selected),
			RequestedAt: uc.now().UTC(),
		},
	}
	for _, chunk := range selected {
		result.Provenance = append(result.Provenance, chunk.ID)
	}

	if len(selected) == 0 {
		result.Status = domain.StatusNoData
		return result, nil
	}

	prompt := buildExtractionPrompt(extractionType, req.Target, joinChunks(selected))
	result.RequestMeta.PromptChars = len(prompt)

	started := uc.now()
	generation, err := uc.generate(ctx, domain.GenerationRequest{
		Prompt:       prompt,
		SystemPrompt: extractionSystemPrompt,
		Schema:       extractionType.Schema,
		Options: domain.GenerationOptions{
			Temperature: uc.options.Temperature,
			TopP:        uc.options.TopP,
			MaxTokens:   extractionType.MaxTokens,
			Seed:        uc.options.Seed,
		},
	})
	result.RequestMeta.DurationMS = uc.now().Sub(started).Milliseconds()
	if err != nil {
		slog.Warn("extraction_failed",
			"type", extractionType.Name,
			"target", req.Target,
			"stage", "generate",
			"error", err,
		)
		result.Status = domain.StatusFailed
		result.Error = err.Error()
		return result, nil
	}

	result.RequestMeta.Provider = generation.Provider
	result.RequestMeta.Model = generation.Model
	result.RequestMeta.InputTokens = generation.InputTokens
	result.RequestMeta.OutputTokens = generation.OutputTokens

	payload, err := ParseJSONPayload(generation.Text)
	if err != nil {
		slog.Warn("extraction_failed",
			"type", extractionType.Name,
			"target", req.Target,
			"stage", "parse",
			"error", err,
		)
		result.Status = domain.StatusFailed
		result.Error = err.Error()
		result.RawText = generation.Text
		return result, nil
	}

	result.Status = domain.StatusSuccess
	result.Payload = payload
	return result, nil
}

func (uc *ExtractUseCase) prepare(req domain.ExtractionRequest) (domain.ExtractionType, domain.SearchFilter, error) {
	extractionType, ok := uc.catalog.Lookup(req.Type)
	if !ok {
		return domain.ExtractionType{}, domain.SearchFilter{}, domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("unknown extraction type %q", req.Type))
	}
	if req.K > 0 {
		extractionType.K = req.K
	}
	if req.Boost != nil {
		extractionType.Boost = *req.Boost
	}
	if q := strings.TrimSpace(req.Query); q != "" {
		extractionType.Query = q
	}

	if req.Scope != nil {
		if err := req.Scope.Validate(); err != nil {
			return domain.ExtractionType{}, domain.SearchFilter{}, err
		}
		return extractionType, *req.Scope, nil
	}
	if strings.TrimSpace(req.Target) == "" {
		return domain.ExtractionType{}, domain.SearchFilter{}, domain.WrapError(domain.ErrInvalidInput, "extract", errors.New("target is required"))
	}
	filter, err := ResolveScope(req.Target)
	if err != nil {
		return domain.ExtractionType{}, domain.SearchFilter{}, err
	}
	return extractionType, filter, nil
}

func (uc *ExtractUseCase) generate(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	if uc.limiter != nil {
		if err := uc.limiter.Wait(ctx); err != nil {
			return domain.Generation{}, fmt.Errorf("wait for llm rate limit: %w", err)
		}
	}
	return uc.generator.Generate(ctx, req)
}

// selectPromptChunks drops blank chunks and keeps retrieval order up to
// MaxPromptChunks.
func selectPromptChunks(chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	out := make([]domain.RetrievedChunk, 0, min(len(chunks), MaxPromptChunks))
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Content) == "" {
			continue
		}
		out = append(out, chunk)
		if len(out) == MaxPromptChunks {
			break
		}
	}
	return out
}

func joinChunks(chunks []domain.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, strings.TrimSpace(chunk.Content))
	}
	return strings.Join(parts, chunkSeparator)
}

func buildExtractionPrompt(t domain.ExtractionType, target, contextText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract %s for the law firm website %s.\n", strings.ReplaceAll(t.Name, "_", " "), target)
	if instructions := strings.TrimSpace(t.Instructions); instructions != "" {
		b.WriteString(instructions)
		b.WriteString("\n")
	}
	b.WriteString("If the context does not contain the information, return an empty JSON object.\n")
	if len(t.Schema) > 0 {
		b.WriteString("The JSON must follow this schema:\n")
		b.Write(t.Schema)
		b.WriteString("\n")
	}
	b.WriteString("\nContext:\n")
	b.WriteString(contextText)
	b.WriteString("\n")
	return b.String()
}

// ParseJSONPayload accepts a JSON object, or recovers one from surrounding
// prose by taking the text between the first "{" and the last "}".
func ParseJSONPayload(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if isJSONObject(trimmed) {
		return compactJSON(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if isJSONObject(candidate) {
			return compactJSON(candidate)
		}
	}
	return nil, domain.WrapError(domain.ErrMalformedOutput, "parse llm output", errors.New("no JSON object found in model output"))
}

func isJSONObject(s string) bool {
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}

func compactJSON(s string) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedOutput, "parse llm output", err)
	}
	return json.RawMessage(buf.Bytes()), nil
}
