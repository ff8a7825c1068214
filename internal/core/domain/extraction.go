package domain

import (
	"encoding/json"
	"time"
)

// ExtractionType is one row of the extraction table: what to search for and
// how much the model may write back.
type ExtractionType struct {
	Name         string          `yaml:"name" json:"name"`
	Query        string          `yaml:"query" json:"query"`
	K            int             `yaml:"k" json:"k"`
	Boost        BoostField      `yaml:"boost" json:"boost,omitempty"`
	MaxTokens    int             `yaml:"max_tokens" json:"max_tokens"`
	Instructions string          `yaml:"instructions" json:"instructions,omitempty"`
	Schema       json.RawMessage `yaml:"-" json:"schema,omitempty"`
}

type ExtractionStatus string

const (
	StatusSuccess ExtractionStatus = "success"
	StatusNoData  ExtractionStatus = "no_data"
	StatusFailed  ExtractionStatus = "failed"
)

type ExtractionRequest struct {
	Type   string
	Target string
	Scope  *SearchFilter

	// Optional overrides of the table entry.
	K     int
	Boost *BoostField
	Query string
}

type RequestMeta struct {
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model,omitempty"`
	Temperature  float64   `json:"temperature"`
	TopP         float64   `json:"top_p"`
	MaxTokens    int       `json:"max_tokens"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	ChunkCount   int       `json:"chunk_count"`
	PromptChars  int       `json:"prompt_chars"`
	RequestedAt  time.Time `json:"requested_at"`
	DurationMS   int64     `json:"duration_ms"`
}

// ExtractionResult keeps extracted facts, provenance and bookkeeping apart.
type ExtractionResult struct {
	Type        string           `json:"type"`
	Target      string           `json:"target"`
	Status      ExtractionStatus `json:"status"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	Provenance  []string         `json:"provenance"`
	RequestMeta RequestMeta      `json:"request_meta"`
	RawText     string           `json:"raw_text,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func (r *ExtractionResult) Failed() bool {
	return r == nil || r.Status == StatusFailed
}

type GenerationOptions struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Seed        *int
}

type GenerationRequest struct {
	Prompt       string
	SystemPrompt string
	Schema       json.RawMessage
	Options      GenerationOptions
}

type Generation struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
	Provider     string
	Raw          json.RawMessage
}

type ChunkStats struct {
	Chunks    int `json:"chunks"`
	Documents int `json:"documents"`
}

// ExtractionRecord is a persisted extraction result.
type ExtractionRecord struct {
	ID          string           `json:"id"`
	Domain      string           `json:"domain"`
	Name        string           `json:"extraction_name"`
	Status      ExtractionStatus `json:"status"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	Provenance  []string         `json:"provenance"`
	RequestMeta RequestMeta      `json:"request_meta"`
	Error       string           `json:"error,omitempty"`
	ExtractedAt time.Time        `json:"extracted_at"`
}

type ExtractionCount struct {
	Name  string `json:"extraction_name"`
	Count int    `json:"count"`
}

type ExtractionStats struct {
	ByType           []ExtractionCount  `json:"by_type"`
	Domains          int                `json:"domains"`
	TotalExtractions int                `json:"total_extractions"`
	Recent           []ExtractionRecord `json:"recent"`
}
