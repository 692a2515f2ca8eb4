// Package postgres is a PostgreSQL-backed [codestore.Store]. Chunk embeddings
// live in a pgvector column with an HNSW index for cosine search.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.UpsertFile(ctx, file)
//	_ = store.ReplaceChunks(ctx, file.Path, chunks)
//	results, _ := store.Search(ctx, queryEmbedding, 5)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSourceFiles = `
CREATE TABLE IF NOT EXISTS source_files (
    path           TEXT         PRIMARY KEY,
    name           TEXT         NOT NULL,
    extension      TEXT         NOT NULL DEFAULT '',
    language       TEXT         NOT NULL DEFAULT '',
    class_name     TEXT         NOT NULL DEFAULT '',
    functions      JSONB        NOT NULL DEFAULT '[]',
    content        TEXT         NOT NULL,
    last_modified  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// ddlChunks returns the chunk DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddlChunks(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS code_chunks (
    id             TEXT         PRIMARY KEY,
    seq            BIGSERIAL,
    file_path      TEXT         NOT NULL,
    file_name      TEXT         NOT NULL DEFAULT '',
    function_name  TEXT         NOT NULL DEFAULT '',
    class_name     TEXT         NOT NULL DEFAULT '',
    language       TEXT         NOT NULL DEFAULT '',
    chunk_index    INT          NOT NULL DEFAULT 0,
    content        TEXT         NOT NULL,
    embedding      vector(%d)   NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_code_chunks_file_path
    ON code_chunks (file_path);

CREATE INDEX IF NOT EXISTS idx_code_chunks_embedding
    ON code_chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates the source_files and code_chunks tables if they do not
// exist. It is idempotent and safe to call on every start.
//
// embeddingDimensions must match the embedding model (e.g. 1536 for OpenAI
// text-embedding-3-small, 768 for nomic-embed-text). Changing it after the
// first migration requires dropping code_chunks.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("postgres migrate: embedding dimensions must be positive, got %d", embeddingDimensions)
	}
	for _, stmt := range []string{ddlSourceFiles, ddlChunks(embeddingDimensions)} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
