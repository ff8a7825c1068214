package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/core/ports"
)

const crawlPagesDir = "/markdown/"

var embeddableExtensions = map[string]struct{}{
	".md":   {},
	".html": {},
	".htm":  {},
}

type EmbedUseCase struct {
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	chunker   ports.Chunker
	store     ports.VectorStore
	stats     ports.ChunkStatsReader
}

// NewEmbedUseCase wires the embedding pipeline. When the store also reports
// stats, already embedded documents are skipped unless forced.
func NewEmbedUseCase(
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	store ports.VectorStore,
) *EmbedUseCase {
	uc := &EmbedUseCase{
		storage:   storage,
		extractor: extractor,
		chunker:   chunker,
		store:     store,
	}
	if stats, ok := store.(ports.ChunkStatsReader); ok {
		uc.stats = stats
	}
	return uc
}

func (uc *EmbedUseCase) EmbedDocument(ctx context.Context, key, domainName string, force bool) (domain.EmbedReport, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.EmbedReport{}, domain.WrapError(domain.ErrInvalidInput, "embed document", errors.New("key is required"))
	}

	filename := documentName(key)
	if strings.TrimSpace(domainName) == "" {
		domainName = documentDomain(key)
	}
	domainName = domain.NormalizeDomain(domainName)
	if domainName == "" {
		return domain.EmbedReport{}, domain.WrapError(domain.ErrInvalidInput, "embed document", fmt.Errorf("cannot infer domain from %q", key))
	}

	report := domain.EmbedReport{
		DocumentID: domainName + "/" + filename,
		Domain:     domainName,
	}

	if force {
		if err := uc.store.DeleteByDocument(ctx, report.DocumentID); err != nil {
			return report, fmt.Errorf("delete previous chunks: %w", err)
		}
	} else if uc.stats != nil {
		stats, err := uc.stats.Stats(ctx, domain.DocumentFilter(report.DocumentID))
		if err == nil && stats.Chunks > 0 {
			report.Chunks = stats.Chunks
			report.Skipped = true
			return report, nil
		}
	}

	text, err := uc.extractor.Extract(ctx, key)
	if err != nil {
		return report, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return report, domain.WrapError(domain.ErrNoData, "embed document", fmt.Errorf("%s has no text", key))
	}

	chunks := uc.chunker.Chunk(text, report.DocumentID, domainName)
	if len(chunks) == 0 {
		return report, domain.WrapError(domain.ErrNoData, "embed document", fmt.Errorf("%s produced no chunks", key))
	}
	if err := uc.store.IndexChunks(ctx, chunks); err != nil {
		return report, fmt.Errorf("index chunks: %w", err)
	}

	report.Chunks = len(chunks)
	slog.Info("document_embedded",
		"document_id", report.DocumentID,
		"chunks", report.Chunks,
	)
	return report, nil
}

// EmbedDomain embeds every crawled page under {domain}/markdown/. Per-document
// failures land in the reports; only a missing or unreadable site is an error.
func (uc *EmbedUseCase) EmbedDomain(ctx context.Context, domainName string, force bool) ([]domain.EmbedReport, error) {
	normalized := domain.NormalizeDomain(domainName)
	if normalized == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed domain", errors.New("domain is required"))
	}

	keys, err := uc.storage.List(ctx, normalized+crawlPagesDir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	keys = filterEmbeddable(keys)
	if len(keys) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "embed domain", fmt.Errorf("no documents for %s", normalized))
	}

	if force {
		if err := uc.ClearDomain(ctx, normalized); err != nil {
			return nil, err
		}
	}

	reports := make([]domain.EmbedReport, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := uc.EmbedDocument(ctx, key, normalized, false)
		if err != nil {
			slog.Warn("document_embed_failed", "key", key, "error", err)
			report.Error = err.Error()
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// EmbedTargets embeds a mix of domains and document keys. A target is a
// document when it names an embeddable file, unless isDomain forces domain
// handling. Only a done context stops the loop early.
func (uc *EmbedUseCase) EmbedTargets(ctx context.Context, targets []string, isDomain, force bool) ([]domain.EmbedReport, error) {
	var reports []domain.EmbedReport
	for _, target := range uniqueTargets(targets) {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		if !isDomain && isEmbeddableKey(target) {
			report, err := uc.EmbedDocument(ctx, target, "", force)
			if err != nil {
				report.Error = err.Error()
				if report.DocumentID == "" {
					report.DocumentID = target
				}
			}
			reports = append(reports, report)
			continue
		}

		domainReports, err := uc.EmbedDomain(ctx, target, force)
		if err != nil {
			reports = append(reports, domain.EmbedReport{
				DocumentID: target,
				Domain:     domain.NormalizeDomain(target),
				Error:      err.Error(),
			})
			continue
		}
		reports = append(reports, domainReports...)
	}
	return reports, nil
}

func (uc *EmbedUseCase) Verify(ctx context.Context, domainName string) (domain.ChunkStats, error) {
	if uc.stats == nil {
		return domain.ChunkStats{}, domain.WrapError(domain.ErrNotFound, "verify domain", errors.New("vector backend does not report stats"))
	}
	filter := domain.DomainFilter(domainName)
	if err := filter.Validate(); err != nil {
		return domain.ChunkStats{}, err
	}
	return uc.stats.Stats(ctx, filter)
}

func (uc *EmbedUseCase) ClearDomain(ctx context.Context, domainName string) error {
	if err := uc.store.DeleteByDomain(ctx, domainName); err != nil {
		return fmt.Errorf("clear domain: %w", err)
	}
	return nil
}

// documentDomain reads "smithlaw.com_contact.md" style names first, then the
// key path.
func documentDomain(key string) string {
	base := path.Base(key)
	if prefix, _, found := strings.Cut(base, "_"); found && strings.Contains(prefix, ".") {
		return prefix
	}
	return domain.InferDomain(key)
}

func filterEmbeddable(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if isEmbeddableKey(key) {
			out = append(out, key)
		}
	}
	return out
}

func isEmbeddableKey(key string) bool {
	_, ok := embeddableExtensions[strings.ToLower(path.Ext(key))]
	return ok
}

// documentName keeps the page path below the crawl's markdown/ directory so
// nested pages sharing a basename stay distinct documents.
func documentName(key string) string {
	rel := path.Base(key)
	if _, after, found := strings.Cut(key, crawlPagesDir); found && strings.Trim(after, "/") != "" {
		rel = strings.Trim(after, "/")
	}
	segments := strings.Split(strings.TrimPrefix(path.Clean("/"+rel), "/"), "/")
	for i, segment := range segments {
		segments[i] = sanitizeFilename(segment)
	}
	return strings.Join(segments, "/")
}

func sanitizeFilename(name string) string {
	base := path.Base(strings.TrimSpace(name))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "/" {
		return "document.md"
	}
	return base
}
