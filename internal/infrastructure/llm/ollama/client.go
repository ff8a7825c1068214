package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/resilience"
)

const (
	providerName     = "ollama"
	defaultNumCtx    = 8192
	defaultKeepAlive = 0
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	numCtx     int
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithContextWindow sets num_ctx for generation requests.
func WithContextWindow(numCtx int) Option {
	return func(c *Client) {
		if numCtx > 0 {
			c.numCtx = numCtx
		}
	}
}

func New(baseURL, genModel, embedModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		numCtx:     defaultNumCtx,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping checks that the server answers and lists its local models.
func (c *Client) Ping(ctx context.Context) ([]string, error) {
	var response struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/tags", &response, "tags"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(response.Models))
	for _, m := range response.Models {
		names = append(names, m.Name)
	}
	return names, nil
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

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate requests a single non-streamed JSON completion. The schema, when
// present, is passed as the structured output format.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	payload := map[string]any{
		"model":      g.client.genModel,
		"prompt":     req.Prompt,
		"stream":     false,
		"keep_alive": defaultKeepAlive,
		"format":     generationFormat(req.Schema),
		"options":    g.client.generationOptions(req.Options),
	}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		payload["system"] = system
	}

	var raw json.RawMessage
	if err := g.client.postJSON(ctx, "/api/generate", payload, &raw, "generate"); err != nil {
		return domain.Generation{}, err
	}

	var response generateResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return domain.Generation{}, fmt.Errorf("decode generate response: %w", err)
	}

	model := response.Model
	if model == "" {
		model = g.client.genModel
	}
	return domain.Generation{
		Text:         strings.TrimSpace(response.Response),
		InputTokens:  response.PromptEvalCount,
		OutputTokens: response.EvalCount,
		Model:        model,
		Provider:     providerName,
		Raw:          raw,
	}, nil
}

func (c *Client) generationOptions(opts domain.GenerationOptions) map[string]any {
	out := map[string]any{
		"temperature": opts.Temperature,
		"top_p":       opts.TopP,
		"num_ctx":     c.numCtx,
	}
	if opts.MaxTokens > 0 {
		out["num_predict"] = opts.MaxTokens
	}
	if opts.Seed != nil {
		out["seed"] = *opts.Seed
	}
	return out
}

func generationFormat(schema json.RawMessage) any {
	if len(schema) > 0 && json.Valid(schema) {
		return schema
	}
	return "json"
}
