package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/core/ports"
)

const (
	JobKindExtract = "extract"
	JobKindEmbed   = "embed"

	DefaultJobTimeout = 30 * time.Minute
)

// JobObserver receives per-job outcomes, typically to feed metrics.
type JobObserver interface {
	FinishJob(kind string, err error)
	ObserveQueueLag(kind string, lag time.Duration)
}

// JobRunner executes queued jobs with a per-job deadline.
type JobRunner struct {
	batch    ports.BatchExtractor
	embedder ports.DocumentEmbedder
	timeout  time.Duration
	observer JobObserver
	now      func() time.Time
}

type JobOption func(*JobRunner)

func WithJobTimeout(d time.Duration) JobOption {
	return func(r *JobRunner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithJobObserver(observer JobObserver) JobOption {
	return func(r *JobRunner) {
		r.observer = observer
	}
}

func NewJobRunner(batch ports.BatchExtractor, embedder ports.DocumentEmbedder, opts ...JobOption) *JobRunner {
	r := &JobRunner{
		batch:    batch,
		embedder: embedder,
		timeout:  DefaultJobTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleExtractionJob fails only when every target failed.
func (r *JobRunner) HandleExtractionJob(ctx context.Context, job domain.ExtractionJob) (err error) {
	r.started(JobKindExtract, job.EnqueuedAt)
	defer func() { r.finished(JobKindExtract, err) }()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	report := r.batch.Run(ctx, job.Request)
	slog.Info("extraction_job_finished",
		"job_id", job.ID,
		"targets", report.TotalTargets,
		"successful", report.Successful,
		"failed", report.Failed,
	)
	if report.TotalTargets > 0 && report.Successful == 0 {
		return fmt.Errorf("extraction job %s: all %d targets failed", job.ID, report.TotalTargets)
	}
	return nil
}

// HandleEmbedJob fails only when no document could be embedded.
func (r *JobRunner) HandleEmbedJob(ctx context.Context, job domain.EmbedJob) (err error) {
	r.started(JobKindEmbed, job.EnqueuedAt)
	defer func() { r.finished(JobKindEmbed, err) }()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reports, err := r.embedder.EmbedTargets(ctx, job.Targets, job.IsDomain, job.Force)
	if err != nil {
		return fmt.Errorf("embed job %s: %w", job.ID, err)
	}

	var embedded, failed int
	for _, report := range reports {
		if report.Error != "" {
			failed++
			continue
		}
		embedded++
	}
	slog.Info("embed_job_finished",
		"job_id", job.ID,
		"documents", len(reports),
		"embedded", embedded,
		"failed", failed,
	)
	if failed > 0 && embedded == 0 {
		return fmt.Errorf("embed job %s: all %d documents failed", job.ID, failed)
	}
	return nil
}

func (r *JobRunner) started(kind string, enqueuedAt time.Time) {
	if r.observer != nil && !enqueuedAt.IsZero() {
		r.observer.ObserveQueueLag(kind, r.now().Sub(enqueuedAt))
	}
}

func (r *JobRunner) finished(kind string, err error) {
	if r.observer != nil {
		r.observer.FinishJob(kind, err)
	}
}
