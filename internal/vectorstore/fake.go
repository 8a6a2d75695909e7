package vectorstore

import (
	"context"
	"math"
	"sort"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// FakeStore is an in-memory Store used by other packages' tests (C4-C7
// consumers) so they don't need a live Qdrant or Postgres instance.
type FakeStore struct {
	Collections map[string]bool
	Points      map[string]map[string]UpsertItem // collection -> id -> item
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Collections: make(map[string]bool),
		Points:      make(map[string]map[string]UpsertItem),
	}
}

var _ Store = (*FakeStore)(nil)

func (f *FakeStore) EnsureCollection(ctx context.Context, name string) error {
	f.Collections[name] = true
	if f.Points[name] == nil {
		f.Points[name] = make(map[string]UpsertItem)
	}
	return nil
}

func (f *FakeStore) Upsert(ctx context.Context, collection string, items []UpsertItem) error {
	if f.Points[collection] == nil {
		f.Points[collection] = make(map[string]UpsertItem)
	}
	for _, item := range items {
		f.Points[collection][item.Chunk.ID] = item
	}
	return nil
}

func (f *FakeStore) Search(ctx context.Context, collection string, vector model.Embedding, k int) ([]model.SearchResult, error) {
	if k <= 0 {
		k = DefaultSearchK
	}
	results := make([]model.SearchResult, 0, len(f.Points[collection]))
	for _, item := range f.Points[collection] {
		results = append(results, model.SearchResult{
			ID:       item.Chunk.ID,
			Content:  item.Chunk.Content,
			Metadata: item.Chunk.Metadata,
			Score:    cosineSimilarity(vector, item.Vector),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (f *FakeStore) Scroll(ctx context.Context, collection string, limit int) ([]model.KnowledgeChunk, error) {
	if limit <= 0 {
		limit = DefaultSearchK
	}
	chunks := make([]model.KnowledgeChunk, 0, len(f.Points[collection]))
	for _, item := range f.Points[collection] {
		chunks = append(chunks, item.Chunk)
		if len(chunks) >= limit {
			break
		}
	}
	return chunks, nil
}

func (f *FakeStore) Delete(ctx context.Context, collection string, ids []string) error {
	for _, id := range ids {
		delete(f.Points[collection], id)
	}
	return nil
}

func cosineSimilarity(a, b model.Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
