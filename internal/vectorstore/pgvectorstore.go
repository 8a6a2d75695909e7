package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// NewPool creates a PostgreSQL connection pool configured for pgvector,
// adapted from the teacher's repository.NewPool.
func NewPool(ctx context.Context, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.NewPool: parse config: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MinConns = 2
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = 1 * time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute
	cfg.AfterConnect = pgxvector.RegisterTypes

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.NewPool: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectorstore.NewPool: ping: %w", err)
	}
	return pool, nil
}

// PGVectorStore implements Store against Postgres+pgvector, one table per
// collection name is avoided in favor of a single table with a collection
// column (matches the single-table-multi-tenant idiom the teacher uses for
// document_chunks, generalized with an extra discriminator column).
type PGVectorStore struct {
	pool *pgxpool.Pool
}

// NewPGVectorStore wraps an existing pgxpool.Pool.
func NewPGVectorStore(pool *pgxpool.Pool) *PGVectorStore {
	return &PGVectorStore{pool: pool}
}

var _ Store = (*PGVectorStore)(nil)

// EnsureCollection creates the knowledge_chunks table and its ivfflat
// index if absent. Postgres has no notion of "collection schema mismatch"
// the way Qdrant does. This method does not inspect an existing table and
// never returns a SchemaMismatchError; a mismatched vector dimension
// fails later, at insert time.
func (s *PGVectorStore) EnsureCollection(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS knowledge_chunks (
			id UUID PRIMARY KEY,
			collection TEXT NOT NULL,
			content TEXT NOT NULL,
			source TEXT NOT NULL,
			filename TEXT NOT NULL,
			type TEXT NOT NULL,
			chunk_index INT NOT NULL,
			total_chunks INT NOT NULL,
			date_added TIMESTAMPTZ NOT NULL,
			category TEXT,
			importance DOUBLE PRECISION,
			embedding vector(`+fmt.Sprint(model.Dim)+`) NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("vectorstore.EnsureCollection: create table: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS knowledge_chunks_collection_idx
		ON knowledge_chunks (collection)`)
	if err != nil {
		return fmt.Errorf("vectorstore.EnsureCollection: create index: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS knowledge_chunks_embedding_idx
		ON knowledge_chunks USING ivfflat (embedding vector_cosine_ops)`)
	if err != nil {
		return fmt.Errorf("vectorstore.EnsureCollection: create vector index: %w", err)
	}

	slog.Info("vectorstore pgvector collection ensured", "collection", name)
	return nil
}

// Upsert implements Store via pgx batching, grounded on the teacher's
// ChunkRepo.BulkInsert.
func (s *PGVectorStore) Upsert(ctx context.Context, collection string, items []UpsertItem) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		embedding := pgvector.NewVector(item.Vector)
		c := item.Chunk
		batch.Queue(`
			INSERT INTO knowledge_chunks
				(id, collection, content, source, filename, type, chunk_index, total_chunks, date_added, category, importance, embedding)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content, source = EXCLUDED.source, filename = EXCLUDED.filename,
				type = EXCLUDED.type, chunk_index = EXCLUDED.chunk_index, total_chunks = EXCLUDED.total_chunks,
				date_added = EXCLUDED.date_added, category = EXCLUDED.category, importance = EXCLUDED.importance,
				embedding = EXCLUDED.embedding`,
			c.ID, collection, c.Content, c.Metadata.Source, c.Metadata.Filename, string(c.Metadata.Type),
			c.Metadata.ChunkIndex, c.Metadata.TotalChunks, c.Metadata.DateAdded, nullIfEmpty(c.Metadata.Category), c.Metadata.Importance, embedding,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < len(items); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("vectorstore.Upsert: item %d: %w", i, err)
		}
	}
	return nil
}

// Search implements Store, mirroring the teacher's cosine-distance query
// shape (ChunkRepo.SimilaritySearch) generalized to a collection column
// instead of a user_id column.
func (s *PGVectorStore) Search(ctx context.Context, collection string, vector model.Embedding, k int) ([]model.SearchResult, error) {
	if k <= 0 {
		k = DefaultSearchK
	}
	embedding := pgvector.NewVector(vector)

	rows, err := s.pool.Query(ctx, `
		SELECT id, content, source, filename, type, chunk_index, total_chunks, date_added,
			COALESCE(category, ''), COALESCE(importance, 0),
			1 - (embedding <=> $1::vector) AS similarity
		FROM knowledge_chunks
		WHERE collection = $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3`, embedding, collection, k)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.Search: %w", err)
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		var chunkType string
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata.Source, &r.Metadata.Filename, &chunkType,
			&r.Metadata.ChunkIndex, &r.Metadata.TotalChunks, &r.Metadata.DateAdded,
			&r.Metadata.Category, &r.Metadata.Importance, &r.Score); err != nil {
			return nil, fmt.Errorf("vectorstore.Search: scan: %w", err)
		}
		r.Metadata.Type = model.ChunkType(chunkType)
		results = append(results, r)
	}
	return results, rows.Err()
}

// Scroll implements Store.
func (s *PGVectorStore) Scroll(ctx context.Context, collection string, limit int) ([]model.KnowledgeChunk, error) {
	if limit <= 0 {
		limit = DefaultSearchK
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, content, source, filename, type, chunk_index, total_chunks, date_added,
			COALESCE(category, ''), COALESCE(importance, 0)
		FROM knowledge_chunks
		WHERE collection = $1
		ORDER BY date_added DESC
		LIMIT $2`, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.Scroll: %w", err)
	}
	defer rows.Close()

	var chunks []model.KnowledgeChunk
	for rows.Next() {
		var c model.KnowledgeChunk
		var chunkType string
		if err := rows.Scan(&c.ID, &c.Content, &c.Metadata.Source, &c.Metadata.Filename, &chunkType,
			&c.Metadata.ChunkIndex, &c.Metadata.TotalChunks, &c.Metadata.DateAdded,
			&c.Metadata.Category, &c.Metadata.Importance); err != nil {
			return nil, fmt.Errorf("vectorstore.Scroll: scan: %w", err)
		}
		c.Metadata.Type = model.ChunkType(chunkType)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Delete implements Store, grounded on ChunkRepo.DeleteByDocumentID.
func (s *PGVectorStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM knowledge_chunks WHERE collection = $1 AND id = ANY($2)`, collection, ids)
	if err != nil {
		return fmt.Errorf("vectorstore.Delete: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
