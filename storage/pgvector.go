package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"videoChat/config"
	"videoChat/core"
)

// ---------------- PgVector implementation ----------------

type PgVectorStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPgVectorStore(ctx context.Context, cfg *config.Config) (*PgVectorStore, error) {
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("postgres url: %w", core.ErrNotConfigured)
	}
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgVectorStore{pool: pool, dim: cfg.EmbeddingDim}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) Backend() string { return "pgvector" }

func (s *PgVectorStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PgVectorStore) ensureTable(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	chunksQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS video_context_chunks (
			chunk_id VARCHAR(128) PRIMARY KEY,
			context_id VARCHAR(64) NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`, s.dim)
	if _, err := s.pool.Exec(ctx, chunksQuery); err != nil {
		return fmt.Errorf("failed to create video_context_chunks table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_video_context_chunks_context_id ON video_context_chunks(context_id);",
		"CREATE INDEX IF NOT EXISTS idx_video_context_chunks_embedding ON video_context_chunks USING hnsw (embedding vector_cosine_ops);",
	}
	for _, q := range indexes {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Upsert writes all chunks in one transaction so a context is either fully
// present or absent.
func (s *PgVectorStore) Upsert(ctx context.Context, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO video_context_chunks (chunk_id, context_id, text, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (chunk_id)
			DO UPDATE SET
				context_id = EXCLUDED.context_id,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding
		`, c.ID, c.ContextID, c.Text, pgvector.NewVector(c.Vector))
	}
	br := tx.SendBatch(ctx, batch)
	for _, c := range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PgVectorStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM video_context_chunks WHERE starts_with(chunk_id, $1)", prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgVectorStore) Exists(ctx context.Context, prefix string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM video_context_chunks WHERE starts_with(chunk_id, $1))", prefix).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check chunks: %w", err)
	}
	return exists, nil
}

func (s *PgVectorStore) Search(ctx context.Context, contextID string, vector []float32, topK int) ([]core.Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, text, 1 - (embedding <=> $1) AS similarity
		FROM video_context_chunks
		WHERE context_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(vector), contextID, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var hits []core.Hit
	for rows.Next() {
		h := core.Hit{ContextID: contextID}
		if err := rows.Scan(&h.ID, &h.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PgVectorStore) List(ctx context.Context, contextID string, limit int) ([]core.Hit, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, text FROM video_context_chunks
		WHERE context_id = $1
		ORDER BY chunk_id
		LIMIT $2
	`, contextID, limit)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	var hits []core.Hit
	for rows.Next() {
		h := core.Hit{ContextID: contextID}
		if err := rows.Scan(&h.ID, &h.Text); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
