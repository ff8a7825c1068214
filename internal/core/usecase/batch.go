package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/core/ports"
)

const (
	DefaultBatchWorkers  = 4
	DefaultTargetTimeout = 60 * time.Second
)

// BatchObserver receives progress events, typically to feed metrics.
type BatchObserver interface {
	TargetStarted()
	TargetFinished(success bool, duration time.Duration)
	ExtractionFinished(result *domain.ExtractionResult, duration time.Duration)
}

type BatchExtractUseCase struct {
	extractor     ports.Extractor
	catalog       *domain.ExtractionCatalog
	repo          ports.ExtractionRepository
	observer      BatchObserver
	workers       int
	targetTimeout time.Duration
	now           func() time.Time
}

type BatchOption func(*BatchExtractUseCase)

func WithWorkers(n int) BatchOption {
	return func(uc *BatchExtractUseCase) {
		if n > 0 {
			uc.workers = n
		}
	}
}

func WithTargetTimeout(d time.Duration) BatchOption {
	return func(uc *BatchExtractUseCase) {
		if d > 0 {
			uc.targetTimeout = d
		}
	}
}

// WithExtractionRepository persists every result. Persistence failures are
// logged and never fail a target.
func WithExtractionRepository(repo ports.ExtractionRepository) BatchOption {
	return func(uc *BatchExtractUseCase) {
		uc.repo = repo
	}
}

func WithBatchObserver(observer BatchObserver) BatchOption {
	return func(uc *BatchExtractUseCase) {
		uc.observer = observer
	}
}

func NewBatchExtractUseCase(extractor ports.Extractor, catalog *domain.ExtractionCatalog, opts ...BatchOption) *BatchExtractUseCase {
	uc := &BatchExtractUseCase{
		extractor:     extractor,
		catalog:       catalog,
		workers:       DefaultBatchWorkers,
		targetTimeout: DefaultTargetTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Run processes targets on a bounded pool. A failing or slow target never
// stops the others; it is recorded in the report instead.
func (uc *BatchExtractUseCase) Run(ctx context.Context, req domain.BatchRequest) domain.BatchReport {
	targets := uniqueTargets(req.Targets)
	report := domain.BatchReport{
		TotalTargets:  len(targets),
		FailedTargets: []string{},
		Targets:       make(map[string]domain.TargetReport, len(targets)),
	}

	types, typesErr := uc.catalog.Resolve(req.Types)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(uc.workers)

	for _, target := range targets {
		g.Go(func() error {
			var tr domain.TargetReport
			if typesErr != nil {
				tr = domain.TargetReport{Target: target, Error: typesErr.Error(), Results: []domain.ExtractionResult{}}
			} else {
				tr = uc.runTarget(ctx, target, types, req.IsDomain)
			}

			mu.Lock()
			defer mu.Unlock()
			report.Targets[target] = tr
			if tr.Success {
				report.Successful++
			} else {
				report.Failed++
				report.FailedTargets = append(report.FailedTargets, target)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.FailedTargets)
	slog.Info("batch_extraction_finished",
		"targets", report.TotalTargets,
		"successful", report.Successful,
		"failed", report.Failed,
	)
	return report
}

func (uc *BatchExtractUseCase) runTarget(ctx context.Context, target string, types []string, isDomain bool) domain.TargetReport {
	started := uc.now()
	if uc.observer != nil {
		uc.observer.TargetStarted()
	}

	tctx, cancel := context.WithTimeout(ctx, uc.targetTimeout)
	defer cancel()

	tr := domain.TargetReport{Target: target, Results: make([]domain.ExtractionResult, 0, len(types))}
	var failures []string

	var scope *domain.SearchFilter
	if isDomain {
		filter, err := ExplicitScope(target, true)
		if err != nil {
			failures = append(failures, err.Error())
			types = nil
		}
		scope = &filter
	}

	for _, name := range types {
		extractStarted := uc.now()
		result, err := uc.extractor.Extract(tctx, domain.ExtractionRequest{
			Type:   name,
			Target: target,
			Scope:  scope,
		})
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			break
		}

		if uc.observer != nil {
			uc.observer.ExtractionFinished(result, uc.now().Sub(extractStarted))
		}
		tr.Results = append(tr.Results, *result)
		uc.persist(ctx, target, isDomain, result)

		if result.Failed() {
			failures = append(failures, fmt.Sprintf("%s: %s", name, result.Error))
		}
		if err := tctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				failures = append(failures, fmt.Sprintf("timed out after %s", uc.targetTimeout))
			} else {
				failures = append(failures, err.Error())
			}
			break
		}
	}

	tr.Success = len(failures) == 0
	tr.Error = strings.Join(failures, "; ")
	tr.Duration = uc.now().Sub(started)
	if !tr.Success {
		slog.Warn("target_failed", "target", target, "error", tr.Error)
	}
	if uc.observer != nil {
		uc.observer.TargetFinished(tr.Success, tr.Duration)
	}
	return tr
}

func (uc *BatchExtractUseCase) persist(ctx context.Context, target string, isDomain bool, result *domain.ExtractionResult) {
	if uc.repo == nil {
		return
	}
	record := &domain.ExtractionRecord{
		ID:          uuid.NewString(),
		Domain:      recordDomain(target, isDomain),
		Name:        result.Type,
		Status:      result.Status,
		Payload:     result.Payload,
		Provenance:  result.Provenance,
		RequestMeta: result.RequestMeta,
		Error:       result.Error,
		ExtractedAt: uc.now().UTC(),
	}
	// Persist even when the target context has expired.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := uc.repo.SaveExtraction(saveCtx, record); err != nil {
		slog.Error("extraction_persist_failed",
			"target", target,
			"type", result.Type,
			"error", err,
		)
	}
}

func recordDomain(target string, isDomain bool) string {
	if isDomain {
		return domain.NormalizeDomain(target)
	}
	if name := domain.InferDomain(target); name != "" {
		return name
	}
	return strings.TrimSpace(target)
}

func uniqueTargets(targets []string) []string {
	seen := make(map[string]struct{}, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
