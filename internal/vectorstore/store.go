// Package vectorstore implements C2, the vector store adapter: collection
// lifecycle, upsert, kNN search, scroll, and delete, bound to a Qdrant
// backend (github.com/qdrant/go-client). A Postgres/pgvector alternative
// (adapted from the teacher's own storage layer) is also provided for
// reimplementers who already run that stack — see pgvectorstore.go.
package vectorstore

import (
	"context"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// UpsertItem is one point to write: a chunk plus its embedding.
type UpsertItem struct {
	Chunk  model.KnowledgeChunk
	Vector model.Embedding
}

// Store is the C2 contract from spec.md §4.2. Failure modes are surfaced
// verbatim; no silent retries happen at this layer.
type Store interface {
	// EnsureCollection creates the named collection with
	// {size=model.Dim, distance=Cosine} if absent. It is a no-op if the
	// collection exists with a matching schema. QdrantStore returns a
	// *SchemaMismatchError if the collection exists with a mismatched
	// one; PGVectorStore does not check an existing table's schema.
	EnsureCollection(ctx context.Context, name string) error

	// Upsert writes items by id and does not return until they are
	// searchable ("wait for index" semantics).
	Upsert(ctx context.Context, collection string, items []UpsertItem) error

	// Search returns the top-k chunks by cosine similarity.
	Search(ctx context.Context, collection string, vector model.Embedding, k int) ([]model.SearchResult, error)

	// Scroll returns a page of chunks without their vector payload.
	Scroll(ctx context.Context, collection string, limit int) ([]model.KnowledgeChunk, error)

	// Delete removes points by id, with wait-for-index semantics.
	Delete(ctx context.Context, collection string, ids []string) error
}

// SchemaMismatchError is returned by EnsureCollection when a collection
// exists but its vector size or distance metric don't match model.Dim /
// cosine.
type SchemaMismatchError struct {
	Collection string
	Got        string
	Want       string
}

func (e *SchemaMismatchError) Error() string {
	return "vectorstore: collection " + e.Collection + " schema mismatch: got " + e.Got + ", want " + e.Want
}

// DefaultSearchK is the default number of results a caller should request
// when not otherwise specified (spec.md §4.2: "k defaults to 5 at the
// caller").
const DefaultSearchK = 5
