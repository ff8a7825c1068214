package pgvectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Backend stores chunks in a Postgres table with a pgvector column and
// answers queries with the cosine distance operator.
type Backend struct {
	db         *sql.DB
	table      string
	dimensions int
}

// New expects db to be opened with the pgx driver. dimensions may be zero
// when the embedding size is not known up front; the ANN index is then
// skipped.
func New(db *sql.DB, table string, dimensions int) (*Backend, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new pgvector backend", fmt.Errorf("invalid table name %q", table))
	}
	return &Backend{db: db, table: table, dimensions: dimensions}, nil
}

func (b *Backend) Name() string {
	return "pgvector"
}

func (b *Backend) EnsureSchema(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	column := "vector"
	if b.dimensions > 0 {
		column = fmt.Sprintf("vector(%d)", b.dimensions)
	}
	query := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	domain TEXT NOT NULL DEFAULT '',
	domain_id TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL DEFAULT '',
	chunk_index INTEGER NOT NULL,
	total_chunks INTEGER NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding %[2]s NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_domain_id ON %[1]s(domain_id);
CREATE INDEX IF NOT EXISTS idx_%[1]s_document_id ON %[1]s(document_id);
`, b.table, column)
	if b.dimensions > 0 {
		query += fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_embedding ON %[1]s USING hnsw (embedding vector_cosine_ops);\n", b.table)
	}

	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (b *Backend) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	id, document_id, domain, domain_id, filename, chunk_index, total_chunks, content, metadata, embedding
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	domain = EXCLUDED.domain,
	domain_id = EXCLUDED.domain_id,
	filename = EXCLUDED.filename,
	chunk_index = EXCLUDED.chunk_index,
	total_chunks = EXCLUDED.total_chunks,
	content = EXCLUDED.content,
	metadata = EXCLUDED.metadata,
	embedding = EXCLUDED.embedding
`, b.table))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		metadata, err := json.Marshal(chunk.Patterns)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.DocumentID, chunk.Domain, chunk.DomainID, chunk.Filename,
			chunk.ChunkIndex, chunk.TotalChunks, chunk.Content, metadata, pgvector.NewVector(chunk.Embedding),
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

func (b *Backend) Query(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	column, value := filter.Key()
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, document_id, domain, domain_id, filename, chunk_index, total_chunks, content, metadata, embedding <=> $1 AS distance
FROM %s
WHERE %s = $2
ORDER BY distance ASC, id ASC
LIMIT $3
`, b.table, column), pgvector.NewVector(vector), value, limit)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RetrievedChunk, 0, limit)
	for rows.Next() {
		var (
			item     domain.RetrievedChunk
			metadata []byte
		)
		if err := rows.Scan(
			&item.ID, &item.DocumentID, &item.Domain, &item.DomainID, &item.Filename,
			&item.ChunkIndex, &item.TotalChunks, &item.Content, &metadata, &item.Distance,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(metadata, &item.Patterns); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (b *Backend) Delete(ctx context.Context, filter domain.SearchFilter) error {
	column, value := filter.Key()
	if _, err := b.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, b.table, column), value); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (b *Backend) Stats(ctx context.Context, filter domain.SearchFilter) (domain.ChunkStats, error) {
	column, value := filter.Key()
	var stats domain.ChunkStats
	err := b.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT COUNT(*), COUNT(DISTINCT document_id)
FROM %s
WHERE %s = $1
`, b.table, column), value).Scan(&stats.Chunks, &stats.Documents)
	if err != nil {
		return domain.ChunkStats{}, fmt.Errorf("count chunks: %w", err)
	}
	return stats, nil
}
