package domain

import "time"

type BatchRequest struct {
	Targets []string `json:"targets"`
	Types   []string `json:"types"`
	// IsDomain forces every target to domain scope instead of the heuristic.
	IsDomain bool `json:"is_domain"`
}

type TargetReport struct {
	Target   string             `json:"target"`
	Success  bool               `json:"success"`
	Error    string             `json:"error,omitempty"`
	Results  []ExtractionResult `json:"results"`
	Duration time.Duration      `json:"duration"`
}

type BatchReport struct {
	TotalTargets  int                     `json:"total_targets"`
	Successful    int                     `json:"successful"`
	Failed        int                     `json:"failed"`
	FailedTargets []string                `json:"failed_targets"`
	Targets       map[string]TargetReport `json:"targets"`
}

// ExtractionJob is the queued form of a batch request.
type ExtractionJob struct {
	ID         string       `json:"id"`
	Request    BatchRequest `json:"request"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

type EmbedJob struct {
	ID         string    `json:"id"`
	Targets    []string  `json:"targets"`
	IsDomain   bool      `json:"is_domain"`
	Force      bool      `json:"force"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type EmbedReport struct {
	DocumentID string `json:"document_id"`
	Domain     string `json:"domain,omitempty"`
	Chunks     int    `json:"chunks"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}
