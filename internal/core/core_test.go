package core

import (
	"context"
	"errors"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/agent"
	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/embedclient"
	"github.com/connexus-ai/ragbox-backend/internal/events"
	"github.com/connexus-ai/ragbox-backend/internal/llmclient"
	"github.com/connexus-ai/ragbox-backend/internal/memory"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerrors"
	"github.com/connexus-ai/ragbox-backend/internal/retrieval"
	"github.com/connexus-ai/ragbox-backend/internal/vectorstore"
)

type fakeLLM struct {
	healthy   bool
	healthErr error
	decision  model.AgentDecision
	chatErr   error
}

func (f *fakeLLM) Health(ctx context.Context, m string) (llmclient.HealthStatus, error) {
	if f.healthErr != nil {
		return llmclient.HealthStatus{}, f.healthErr
	}
	return llmclient.HealthStatus{Available: f.healthy}, nil
}

func (f *fakeLLM) Chat(ctx context.Context, m string, messages []llmclient.Message, schema any, originalQuery string) (model.AgentDecision, error) {
	return f.decision, f.chatErr
}

func (f *fakeLLM) Complete(ctx context.Context, m string, messages []llmclient.Message) (string, error) {
	return "", nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, model.Dim)
		vec[0] = 1
		vecs[i] = vec
	}
	return vecs, nil
}

func testSettings() config.RAG {
	return config.RAG{
		Enabled:           true,
		Model:             "llama3.2:3b",
		MaxQueries:        3,
		MaxContextChunks:  5,
		MinRelevanceScore: 0.1,
	}
}

func newTestCore(t *testing.T, llm *fakeLLM, store vectorstore.Store) *Core {
	t.Helper()
	embedder := embedclient.New(fakeEmbedder{})
	return New(Deps{
		Agent:        agent.New(llm, nil),
		Executor:     retrieval.New(embedder, store),
		Consolidator: memory.New(embedder, store, llm),
		LLM:          llm,
		Store:        store,
	})
}

func TestProcessRagQueryFailsOpenWhenLLMUnavailable(t *testing.T) {
	llm := &fakeLLM{healthErr: errors.New("dial tcp: connection refused")}
	c := newTestCore(t, llm, vectorstore.NewFakeStore())

	result := c.ProcessRagQuery(context.Background(), "turn-1", "What is MLP?", "kb", testSettings(), nil)

	if result.Decision.NeedsRetrieval {
		t.Fatal("expected fail-open NeedsRetrieval=false")
	}
	if len(result.Contexts) != 0 {
		t.Fatalf("expected no contexts, got %v", result.Contexts)
	}
	if result.Err == nil {
		t.Fatal("expected Err populated for telemetry (P8)")
	}
}

func TestProcessRagQuerySkipsRetrievalWhenNotNeeded(t *testing.T) {
	llm := &fakeLLM{
		healthy: true,
		decision: model.AgentDecision{
			NeedsRetrieval: false,
			Reasoning:      "general knowledge",
			QueryStrategy:  model.StrategyDirect,
			CleanedQuery:   "What is Python?",
		},
	}
	c := newTestCore(t, llm, vectorstore.NewFakeStore())

	result := c.ProcessRagQuery(context.Background(), "", "What is Python?", "kb", testSettings(), nil)

	if result.Decision.NeedsRetrieval {
		t.Fatal("expected NeedsRetrieval=false")
	}
	if result.Err != nil {
		t.Fatalf("expected no error, got %v", result.Err)
	}
	if len(result.Contexts) != 0 {
		t.Fatalf("expected no contexts, got %v", result.Contexts)
	}
}

func TestProcessRagQueryRunsRetrievalAndEmitsEvents(t *testing.T) {
	store := vectorstore.NewFakeStore()
	ctx := context.Background()
	store.EnsureCollection(ctx, "kb")
	vec := make(model.Embedding, model.Dim)
	vec[0] = 1
	store.Upsert(ctx, "kb", []vectorstore.UpsertItem{
		{Chunk: model.KnowledgeChunk{ID: "c1", Content: "MLP is a feedforward network.", Metadata: model.ChunkMetadata{Source: "doc1"}}, Vector: vec},
	})

	llm := &fakeLLM{
		healthy: true,
		decision: model.AgentDecision{
			NeedsRetrieval: true,
			Reasoning:      "self-referential",
			SearchQueries:  []string{"what is MLP"},
			QueryStrategy:  model.StrategyDirect,
			CleanedQuery:   "What is MLP?",
		},
	}
	c := newTestCore(t, llm, store)

	var seen []events.Event
	sink := events.Sink(func(e events.Event) { seen = append(seen, e) })

	result := c.ProcessRagQuery(ctx, "turn-2", "What is MLP according to my files?", "kb", testSettings(), sink)

	if !result.Decision.NeedsRetrieval {
		t.Fatal("expected NeedsRetrieval=true")
	}
	if len(result.Contexts) != 1 {
		t.Fatalf("expected 1 retrieved chunk, got %d", len(result.Contexts))
	}

	var statuses []events.Status
	for _, e := range seen {
		statuses = append(statuses, e.Status)
	}
	want := []events.Status{events.StatusAgentThinking, events.StatusSearching, events.StatusComplete}
	if len(statuses) != len(want) {
		t.Fatalf("expected events %v, got %v", want, statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, statuses)
		}
	}
}

func TestSendWebSessionRequestReturnsConfigErrorWhenDisabled(t *testing.T) {
	c := newTestCore(t, &fakeLLM{healthy: true}, vectorstore.NewFakeStore())

	_, err := c.SendWebSessionRequest(context.Background(), "hi", nil)
	if !ragerrors.Is(err, ragerrors.KindConfig) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestHealthAggregatesCollaborators(t *testing.T) {
	store := vectorstore.NewFakeStore()
	store.EnsureCollection(context.Background(), "kb")
	c := newTestCore(t, &fakeLLM{healthy: true}, store)

	report := c.Health(context.Background(), "kb", "llama3.2:3b")

	if report.Overall != "ok" {
		t.Fatalf("expected overall ok, got %s", report.Overall)
	}
	if report.VectorStore != "connected" || report.LocalLLM != "connected" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.WebSession != "disabled" {
		t.Fatalf("expected web session disabled, got %s", report.WebSession)
	}
}

func TestFormatContextForPromptDelegatesToRetrieval(t *testing.T) {
	c := newTestCore(t, &fakeLLM{healthy: true}, vectorstore.NewFakeStore())

	got := c.FormatContextForPrompt([]retrieval.RankedContext{{Content: "x", Source: "doc1", Score: 0.9}})
	want := retrieval.FormatContextForPrompt([]retrieval.RankedContext{{Content: "x", Source: "doc1", Score: 0.9}})
	if got != want {
		t.Fatalf("expected delegate to retrieval.FormatContextForPrompt, got %q want %q", got, want)
	}
}

func TestConsolidateMemoryDelegatesToConsolidator(t *testing.T) {
	store := vectorstore.NewFakeStore()
	ctx := context.Background()
	store.EnsureCollection(ctx, "memories")
	c := newTestCore(t, &fakeLLM{healthy: true}, store)

	mem := model.Memory{ID: "m1", Content: "User prefers TypeScript", Category: model.CategoryPreference}
	decision, err := c.ConsolidateMemory(ctx, "user-1", mem, "memories", "llama3.2:3b")
	if err != nil {
		t.Fatalf("ConsolidateMemory: %v", err)
	}
	if decision.Action != memory.ActionStore {
		t.Fatalf("expected ActionStore on empty collection, got %s", decision.Action)
	}
}

func TestHealthReportsDegradedWhenLLMUnreachable(t *testing.T) {
	store := vectorstore.NewFakeStore()
	store.EnsureCollection(context.Background(), "kb")
	c := newTestCore(t, &fakeLLM{healthErr: errors.New("unreachable")}, store)

	report := c.Health(context.Background(), "kb", "llama3.2:3b")

	if report.Overall != "degraded" {
		t.Fatalf("expected degraded overall, got %s", report.Overall)
	}
	if report.LocalLLM != "unreachable" {
		t.Fatalf("expected unreachable LLM, got %s", report.LocalLLM)
	}
}
