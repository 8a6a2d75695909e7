package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/embedclient"
	"github.com/connexus-ai/ragbox-backend/internal/llmclient"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/vectorstore"
)

type fakeEmbedClient struct{}

func (f *fakeEmbedClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, model.Dim)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

type erroringEmbedClient struct{}

func (e *erroringEmbedClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding runtime down")
}

// erroringSearchStore wraps a FakeStore but fails every Search call, to
// exercise the vector-store-unavailable fail-open branch independently
// of the embedding step.
type erroringSearchStore struct {
	*vectorstore.FakeStore
}

func (e *erroringSearchStore) Search(ctx context.Context, collection string, vector model.Embedding, k int) ([]model.SearchResult, error) {
	return nil, errors.New("vector store unreachable")
}

type stubLLM struct {
	completion string
	err        error
}

func (s *stubLLM) Health(ctx context.Context, modelName string) (llmclient.HealthStatus, error) {
	return llmclient.HealthStatus{Available: true}, nil
}

func (s *stubLLM) Chat(ctx context.Context, modelName string, messages []llmclient.Message, schema any, originalQuery string) (model.AgentDecision, error) {
	return model.AgentDecision{}, nil
}

func (s *stubLLM) Complete(ctx context.Context, modelName string, messages []llmclient.Message) (string, error) {
	return s.completion, s.err
}

func seededMemoryStore(t *testing.T, score float64, category model.MemoryCategory, content string) *vectorstore.FakeStore {
	t.Helper()
	store := vectorstore.NewFakeStore()
	store.EnsureCollection(context.Background(), "memories")

	// The embed client always returns the query vector {1,0,0,...}; mix
	// in a second axis so the stored vector's cosine similarity against
	// that query works out to exactly the target score.
	vec := make(model.Embedding, model.Dim)
	vec[0] = float32(score)
	if score < 1 {
		vec[1] = float32(math.Sqrt(1 - score*score))
	}
	store.Upsert(context.Background(), "memories", []vectorstore.UpsertItem{
		{
			Chunk: model.KnowledgeChunk{
				ID:      "existing-1",
				Content: content,
				Metadata: model.ChunkMetadata{
					Source:    "memory:factual",
					Category:  string(category),
					DateAdded: time.Now(),
				},
			},
			Vector: vec,
		},
	})
	return store
}

func newMemory(category model.MemoryCategory, content string) model.Memory {
	return model.Memory{ID: "new-1", Content: content, Category: category, CreatedAt: time.Now()}
}

func TestConsolidateStoresWhenVectorStoreUnavailable(t *testing.T) {
	store := &erroringSearchStore{FakeStore: vectorstore.NewFakeStore()}
	store.EnsureCollection(context.Background(), "memories")
	c := New(embedclient.New(&fakeEmbedClient{}), store, &stubLLM{})

	decision, err := c.Consolidate(context.Background(), "user-1", newMemory(model.CategoryFactual, "x"), "memories", "llama3.2:3b")
	if err != nil {
		t.Fatalf("expected fail-open, not an error: %v", err)
	}
	if decision.Action != ActionStore {
		t.Fatalf("expected store (fail-open) when vector store unavailable, got %v", decision)
	}
}

func TestConsolidateReturnsErrorOnEmbedFailure(t *testing.T) {
	c := New(embedclient.New(&erroringEmbedClient{}), vectorstore.NewFakeStore(), &stubLLM{})
	_, err := c.Consolidate(context.Background(), "user-1", newMemory(model.CategoryFactual, "x"), "memories", "llama3.2:3b")
	if err == nil {
		t.Fatal("expected embed error to propagate")
	}
}

func TestConsolidateStoresOnLowSimilarity(t *testing.T) {
	store := vectorstore.NewFakeStore()
	store.EnsureCollection(context.Background(), "memories")
	c := New(embedclient.New(&fakeEmbedClient{}), store, &stubLLM{})

	decision, err := c.Consolidate(context.Background(), "user-1", newMemory(model.CategoryFactual, "new fact"), "memories", "llama3.2:3b")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if decision.Action != ActionStore {
		t.Fatalf("expected store for empty collection, got %v", decision)
	}
}

func TestConsolidateSkipsOnHighSimilarity(t *testing.T) {
	store := seededMemoryStore(t, 0.95, model.CategoryFactual, "existing fact")
	c := New(embedclient.New(&fakeEmbedClient{}), store, &stubLLM{})

	decision, err := c.Consolidate(context.Background(), "user-1", newMemory(model.CategoryFactual, "existing fact"), "memories", "llama3.2:3b")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if decision.Action != ActionSkip {
		t.Fatalf("expected skip on high similarity, got %v", decision)
	}
	if decision.ExistingID != "existing-1" {
		t.Fatalf("expected existingId set, got %q", decision.ExistingID)
	}
}

func TestConsolidateStoresOnAmbiguousSimilarityDifferentCategory(t *testing.T) {
	store := seededMemoryStore(t, 0.75, model.CategoryPreference, "likes coffee")
	c := New(embedclient.New(&fakeEmbedClient{}), store, &stubLLM{})

	decision, err := c.Consolidate(context.Background(), "user-1", newMemory(model.CategoryFactual, "works at Acme"), "memories", "llama3.2:3b")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if decision.Action != ActionStore {
		t.Fatalf("expected store when categories differ, got %v", decision)
	}
}

func TestConsolidateSupersedesOnContradiction(t *testing.T) {
	store := seededMemoryStore(t, 0.75, model.CategoryFactual, "lives in Austin")
	c := New(embedclient.New(&fakeEmbedClient{}), store, &stubLLM{completion: "CONTRADICTION"})

	decision, err := c.Consolidate(context.Background(), "user-1", newMemory(model.CategoryFactual, "lives in Denver"), "memories", "llama3.2:3b")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if decision.Action != ActionSupersede {
		t.Fatalf("expected supersede on contradiction, got %v", decision)
	}
	if decision.ExistingID != "existing-1" {
		t.Fatal("expected existingId set for supersede")
	}
}

func TestConsolidateStoresOnCompatible(t *testing.T) {
	store := seededMemoryStore(t, 0.75, model.CategoryFactual, "works at Acme")
	c := New(embedclient.New(&fakeEmbedClient{}), store, &stubLLM{completion: "COMPATIBLE"})

	decision, err := c.Consolidate(context.Background(), "user-1", newMemory(model.CategoryFactual, "works remotely at Acme"), "memories", "llama3.2:3b")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if decision.Action != ActionStore {
		t.Fatalf("expected store on compatible, got %v", decision)
	}
}

func TestConsolidateFailsSafeOnContradictionCheckError(t *testing.T) {
	store := seededMemoryStore(t, 0.75, model.CategoryFactual, "lives in Austin")
	c := New(embedclient.New(&fakeEmbedClient{}), store, &stubLLM{err: errors.New("runtime down")})

	decision, err := c.Consolidate(context.Background(), "user-1", newMemory(model.CategoryFactual, "lives in Denver"), "memories", "llama3.2:3b")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if decision.Action != ActionStore {
		t.Fatalf("expected fail-safe store (treat as compatible) on C3 error, got %v", decision)
	}
}

func TestConsolidateRejectsConcurrentCallsForSameUser(t *testing.T) {
	store := vectorstore.NewFakeStore()
	store.EnsureCollection(context.Background(), "memories")
	c := New(embedclient.New(&fakeEmbedClient{}), store, &stubLLM{})

	c.processingMu.Lock()
	c.processing["user-1"] = true
	c.processingMu.Unlock()

	_, err := c.Consolidate(context.Background(), "user-1", newMemory(model.CategoryFactual, "x"), "memories", "llama3.2:3b")
	if err == nil {
		t.Fatal("expected error for concurrent consolidation of the same user")
	}
}

func TestNewMemoryAssignsIDAndTimestamps(t *testing.T) {
	m := NewMemory("likes dark mode", model.CategoryPreference, model.SourceMainChat, 0.5, nil)

	if m.ID == "" {
		t.Fatal("expected a non-empty generated ID")
	}
	if m.CreatedAt.IsZero() || m.LastAccessed.IsZero() {
		t.Fatal("expected CreatedAt and LastAccessed to be stamped")
	}
	if m.ExpiresAt != nil {
		t.Fatalf("expected no expiry for a non-temporal memory, got %v", m.ExpiresAt)
	}
}

func TestNewMemoryAppliesTemporalExpiryDefault(t *testing.T) {
	m := NewMemory("meeting is at 3pm today", model.CategoryTemporal, model.SourceSpotlight, 0.3, nil)

	if m.ExpiresAt == nil {
		t.Fatal("expected a default expiry for a temporal memory")
	}
	want := m.CreatedAt.Add(model.TemporalExpiry)
	if !m.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, *m.ExpiresAt)
	}
}
