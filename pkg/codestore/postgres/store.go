package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/duckdebug/pkg/codestore"
)

var _ codestore.Store = (*Store)(nil)

// Store implements [codestore.Store] on a single [pgxpool.Pool].
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

// NewStore creates a connection pool to the database at dsn, registers
// pgvector types on every connection, and runs [Migrate].
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool, dims: embeddingDimensions}, nil
}

// Ping checks database connectivity. It backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// UpsertFile implements [codestore.Store].
func (s *Store) UpsertFile(ctx context.Context, f codestore.File) error {
	const q = `
		INSERT INTO source_files
		    (path, name, extension, language, class_name, functions, content, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (path) DO UPDATE SET
		    name          = EXCLUDED.name,
		    extension     = EXCLUDED.extension,
		    language      = EXCLUDED.language,
		    class_name    = EXCLUDED.class_name,
		    functions     = EXCLUDED.functions,
		    content       = EXCLUDED.content,
		    last_modified = EXCLUDED.last_modified`

	fns := f.Functions
	if fns == nil {
		fns = []codestore.Function{}
	}
	fnJSON, err := json.Marshal(fns)
	if err != nil {
		return fmt.Errorf("postgres store: marshal functions: %w", err)
	}
	if _, err := s.pool.Exec(ctx, q,
		f.Path, f.Name, f.Extension, f.Language, f.ClassName, fnJSON, f.Content, f.LastModified,
	); err != nil {
		return fmt.Errorf("postgres store: upsert file %q: %w", f.Path, err)
	}
	return nil
}

// Files implements [codestore.Store].
func (s *Store) Files(ctx context.Context) ([]codestore.File, error) {
	const q = `
		SELECT path, name, extension, language, class_name, functions, content, last_modified
		FROM   source_files
		ORDER  BY path`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list files: %w", err)
	}
	files, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (codestore.File, error) {
		var (
			f      codestore.File
			fnJSON []byte
		)
		if err := row.Scan(&f.Path, &f.Name, &f.Extension, &f.Language, &f.ClassName,
			&fnJSON, &f.Content, &f.LastModified); err != nil {
			return codestore.File{}, err
		}
		if err := json.Unmarshal(fnJSON, &f.Functions); err != nil {
			return codestore.File{}, fmt.Errorf("unmarshal functions of %q: %w", f.Path, err)
		}
		return f, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan files: %w", err)
	}
	if files == nil {
		files = []codestore.File{}
	}
	return files, nil
}

// ReplaceChunks implements [codestore.Store]. The delete and the inserts run
// in one transaction; the inserts are sent as a single batch.
func (s *Store) ReplaceChunks(ctx context.Context, path string, chunks []codestore.Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) != s.dims {
			return fmt.Errorf("postgres store: chunk %s: %w: want %d, got %d",
				c.ID, codestore.ErrDimensionMismatch, s.dims, len(c.Embedding))
		}
	}

	const insert = `
		INSERT INTO code_chunks
		    (id, file_path, file_name, function_name, class_name, language, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
		    file_path     = EXCLUDED.file_path,
		    file_name     = EXCLUDED.file_name,
		    function_name = EXCLUDED.function_name,
		    class_name    = EXCLUDED.class_name,
		    language      = EXCLUDED.language,
		    chunk_index   = EXCLUDED.chunk_index,
		    content       = EXCLUDED.content,
		    embedding     = EXCLUDED.embedding`

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM code_chunks WHERE file_path = $1`, path); err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, c := range chunks {
			batch.Queue(insert,
				c.ID, path, c.FileName, c.FunctionName, c.ClassName, c.Language,
				c.Index, c.Content, pgvector.NewVector(c.Embedding),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres store: replace chunks of %q: %w", path, err)
	}
	return nil
}

// Search implements [codestore.Store]. Ties are broken by insertion order.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]codestore.Result, error) {
	if topK <= 0 {
		return []codestore.Result{}, nil
	}
	if len(embedding) != s.dims {
		return nil, fmt.Errorf("postgres store: search: %w: want %d, got %d",
			codestore.ErrDimensionMismatch, s.dims, len(embedding))
	}

	const q = `
		SELECT id, file_path, file_name, function_name, class_name, language,
		       chunk_index, content, embedding,
		       embedding <=> $1 AS distance
		FROM   code_chunks
		ORDER  BY distance, seq
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (codestore.Result, error) {
		var (
			r   codestore.Result
			vec pgvector.Vector
		)
		if err := row.Scan(
			&r.Chunk.ID,
			&r.Chunk.FilePath,
			&r.Chunk.FileName,
			&r.Chunk.FunctionName,
			&r.Chunk.ClassName,
			&r.Chunk.Language,
			&r.Chunk.Index,
			&r.Chunk.Content,
			&vec,
			&r.Distance,
		); err != nil {
			return codestore.Result{}, err
		}
		r.Chunk.Embedding = vec.Slice()
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan results: %w", err)
	}
	if results == nil {
		results = []codestore.Result{}
	}
	return results, nil
}

// CountChunks implements [codestore.Store].
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM code_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres store: count chunks: %w", err)
	}
	return n, nil
}

// Reset implements [codestore.Store].
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE code_chunks, source_files`); err != nil {
		return fmt.Errorf("postgres store: reset: %w", err)
	}
	return nil
}
