package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/resilience"
)

const (
	providerName = "gemini"
	// maxEmbedBatch is the BatchEmbedContents request limit.
	maxEmbedBatch = 100
)

type Client struct {
	client     *genai.Client
	genModel   string
	embedModel string
	executor   *resilience.Executor
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func New(ctx context.Context, apiKey, genModel, embedModel string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "gemini client", errors.New("api key is required"))
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c := &Client{
		client:     client,
		genModel:   genModel,
		embedModel: embedModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Ping fetches model metadata for the embedding model.
func (c *Client) Ping(ctx context.Context) (string, error) {
	info, err := c.client.EmbeddingModel(c.embedModel).Info(ctx)
	if err != nil {
		return "", wrapTemporary("gemini.info", err)
	}
	return info.Name, nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	model := g.client.client.GenerativeModel(g.client.genModel)
	configureModel(model, req)

	resp, err := resilience.Call(ctx, g.client.executor, "gemini.generate", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return model.GenerateContent(ctx, genai.Text(req.Prompt))
	}, classifyGeminiError)
	if err != nil {
		return domain.Generation{}, wrapTemporary("gemini.generate", err)
	}
	return generationFromResponse(resp, g.client.genModel)
}

// configureModel applies request options. Gemini has no seed parameter, so
// Options.Seed is ignored.
func configureModel(model *genai.GenerativeModel, req domain.GenerationRequest) {
	model.SetTemperature(float32(req.Options.Temperature))
	if req.Options.TopP > 0 {
		model.SetTopP(float32(req.Options.TopP))
	}
	if req.Options.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.Options.MaxTokens))
	}
	model.ResponseMIMEType = "application/json"
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
}

func generationFromResponse(resp *genai.GenerateContentResponse, model string) (domain.Generation, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return domain.Generation{}, errors.New("gemini returned no candidates")
	}

	var b strings.Builder
	if content := resp.Candidates[0].Content; content != nil {
		for _, part := range content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}

	out := domain.Generation{
		Text:     strings.TrimSpace(b.String()),
		Model:    model,
		Provider: providerName,
	}
	if usage := resp.UsageMetadata; usage != nil {
		out.InputTokens = int(usage.PromptTokenCount)
		out.OutputTokens = int(usage.CandidatesTokenCount)
	}
	return out, nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := e.client.client.EmbeddingModel(e.client.embedModel)
	model.TaskType = genai.TaskTypeRetrievalDocument

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		batch := model.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}

		resp, err := resilience.Call(ctx, e.client.executor, "gemini.embed", func(ctx context.Context) (*genai.BatchEmbedContentsResponse, error) {
			return model.BatchEmbedContents(ctx, batch)
		}, classifyGeminiError)
		if err != nil {
			return nil, wrapTemporary("gemini.embed", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini embed: expected %d vectors, got %d", end-start, len(resp.Embeddings))
		}
		for _, embedding := range resp.Embeddings {
			out = append(out, embedding.Values)
		}
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	model := e.client.client.EmbeddingModel(e.client.embedModel)
	model.TaskType = genai.TaskTypeRetrievalQuery

	resp, err := resilience.Call(ctx, e.client.executor, "gemini.embed_query", func(ctx context.Context) (*genai.EmbedContentResponse, error) {
		return model.EmbedContent(ctx, genai.Text(text))
	}, classifyGeminiError)
	if err != nil {
		return nil, wrapTemporary("gemini.embed_query", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return resp.Embedding.Values, nil
}
