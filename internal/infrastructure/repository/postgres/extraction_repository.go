package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

const (
	defaultListLimit = 100
	recentLimit      = 5
)

type ExtractionRepository struct {
	db *sql.DB
}

func NewExtractionRepository(db *sql.DB) *ExtractionRepository {
	return &ExtractionRepository{db: db}
}

func (r *ExtractionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101902)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS domain_extractions (
	id TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	extraction_name TEXT NOT NULL,
	status TEXT NOT NULL,
	payload JSONB,
	provenance JSONB NOT NULL DEFAULT '[]'::jsonb,
	request_meta JSONB NOT NULL DEFAULT '{}'::jsonb,
	error_message TEXT,
	extracted_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_domain_extractions_domain ON domain_extractions(domain);
CREATE INDEX IF NOT EXISTS idx_domain_extractions_name ON domain_extractions(extraction_name);
CREATE INDEX IF NOT EXISTS idx_domain_extractions_extracted_at ON domain_extractions(extracted_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ExtractionRepository) SaveExtraction(ctx context.Context, record *domain.ExtractionRecord) error {
	if record == nil || strings.TrimSpace(record.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save extraction", errors.New("record id is required"))
	}

	provenance := record.Provenance
	if provenance == nil {
		provenance = []string{}
	}
	provenanceJSON, err := json.Marshal(provenance)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}
	metaJSON, err := json.Marshal(record.RequestMeta)
	if err != nil {
		return fmt.Errorf("marshal request meta: %w", err)
	}
	var payload any
	if len(record.Payload) > 0 {
		payload = []byte(record.Payload)
	}

	const query = `
INSERT INTO domain_extractions (
	id, domain, extraction_name, status, payload, provenance, request_meta, error_message, extracted_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	payload = EXCLUDED.payload,
	provenance = EXCLUDED.provenance,
	request_meta = EXCLUDED.request_meta,
	error_message = EXCLUDED.error_message,
	extracted_at = EXCLUDED.extracted_at
`
	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.Domain,
		record.Name,
		string(record.Status),
		payload,
		provenanceJSON,
		metaJSON,
		nullIfEmpty(record.Error),
		record.ExtractedAt,
	)
	if err != nil {
		return fmt.Errorf("insert extraction: %w", err)
	}
	return nil
}

// ListExtractions returns the newest records first. An empty domain lists
// every domain.
func (r *ExtractionRepository) ListExtractions(ctx context.Context, domainName string, limit int) ([]domain.ExtractionRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	const query = `
SELECT id, domain, extraction_name, status, payload, provenance, request_meta, error_message, extracted_at
FROM domain_extractions
WHERE ($1 = '' OR domain = $1)
ORDER BY extracted_at DESC, id ASC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(domainName), limit)
	if err != nil {
		return nil, fmt.Errorf("query extractions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ExtractionRecord, 0)
	for rows.Next() {
		record, err := scanExtraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extractions: %w", err)
	}
	return out, nil
}

func (r *ExtractionRepository) Stats(ctx context.Context) (domain.ExtractionStats, error) {
	stats := domain.ExtractionStats{ByType: []domain.ExtractionCount{}}

	rows, err := r.db.QueryContext(ctx, `
SELECT extraction_name, COUNT(*)
FROM domain_extractions
GROUP BY extraction_name
ORDER BY extraction_name
`)
	if err != nil {
		return stats, fmt.Errorf("query extraction counts: %w", err)
	}
	for rows.Next() {
		var c domain.ExtractionCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			rows.Close()
			return stats, fmt.Errorf("scan extraction count: %w", err)
		}
		stats.ByType = append(stats.ByType, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, fmt.Errorf("iterate extraction counts: %w", err)
	}
	rows.Close()

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT domain), COUNT(*) FROM domain_extractions`).
		Scan(&stats.Domains, &stats.TotalExtractions); err != nil {
		return stats, fmt.Errorf("query extraction totals: %w", err)
	}

	recent, err := r.ListExtractions(ctx, "", recentLimit)
	if err != nil {
		return stats, err
	}
	stats.Recent = recent
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExtraction(row rowScanner) (domain.ExtractionRecord, error) {
	var (
		record     domain.ExtractionRecord
		status     string
		payload    []byte
		provenance []byte
		meta       []byte
		errMessage sql.NullString
	)
	if err := row.Scan(
		&record.ID,
		&record.Domain,
		&record.Name,
		&status,
		&payload,
		&provenance,
		&meta,
		&errMessage,
		&record.ExtractedAt,
	); err != nil {
		return domain.ExtractionRecord{}, fmt.Errorf("scan extraction: %w", err)
	}

	record.Status = domain.ExtractionStatus(status)
	if len(payload) > 0 {
		record.Payload = json.RawMessage(payload)
	}
	record.Provenance = []string{}
	if len(provenance) > 0 {
		if err := json.Unmarshal(provenance, &record.Provenance); err != nil {
			return domain.ExtractionRecord{}, fmt.Errorf("decode provenance: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &record.RequestMeta); err != nil {
			return domain.ExtractionRecord{}, fmt.Errorf("decode request meta: %w", err)
		}
	}
	record.Error = errMessage.String
	return record, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
