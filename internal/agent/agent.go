// Package agent implements C4, the RAG decision agent: a single
// operation, Decide, that asks the local LLM whether a user's turn
// needs retrieval and, if so, how to search for it.
package agent

import (
	"context"
	"encoding/json"

	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/llmclient"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// decisionSchema is the JSON schema passed to llmclient.Chat's
// format parameter so the runtime constrains its output shape.
var decisionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"needs_retrieval": map[string]any{"type": "boolean"},
		"reasoning":       map[string]any{"type": "string"},
		"search_queries":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"query_strategy":  map[string]any{"type": "string", "enum": []string{"direct", "multi_perspective", "decomposed"}},
		"cleaned_query":   map[string]any{"type": "string"},
	},
	"required": []string{"needs_retrieval", "reasoning", "search_queries", "query_strategy", "cleaned_query"},
}

// Agent decides, per user turn, whether retrieval is warranted.
type Agent struct {
	client       llmclient.Client
	systemPrompt string
}

// New creates an Agent. If loader is nil, DefaultSystemPrompt is used.
func New(client llmclient.Client, loader *PromptLoader) *Agent {
	prompt := DefaultSystemPrompt
	if loader != nil {
		if p := loader.SystemPrompt(); p != "" {
			prompt = p
		}
	}
	return &Agent{client: client, systemPrompt: prompt}
}

// Decide implements C4's single operation. It forwards nothing but the
// user's turn and the system prompt to C3 — it never sees retrieved
// context, so its classification cannot be biased by prior results.
func (a *Agent) Decide(ctx context.Context, userQuery string, cfg config.RAG) model.AgentDecision {
	messages := []llmclient.Message{
		{Role: "system", Content: a.systemPrompt},
		{Role: "user", Content: userQuery},
	}

	decision, err := a.client.Chat(ctx, cfg.Model, messages, decisionSchema, userQuery)
	if err != nil {
		// llmclient.Chat contractually never returns a non-nil error
		// alongside a usable decision; this branch only guards against a
		// future client implementation that doesn't honor that contract.
		return safeFallback(userQuery, err)
	}

	if !decision.Valid() {
		return safeFallback(userQuery, errInvalidDecision(decision))
	}
	return clampQueries(decision, cfg.MaxQueries)
}

func clampQueries(d model.AgentDecision, maxQueries int) model.AgentDecision {
	if maxQueries <= 0 || len(d.SearchQueries) <= maxQueries {
		return d
	}
	d.SearchQueries = d.SearchQueries[:maxQueries]
	return d
}

func safeFallback(originalQuery string, cause error) model.AgentDecision {
	return model.AgentDecision{
		NeedsRetrieval: false,
		Reasoning:      cause.Error(),
		SearchQueries:  nil,
		QueryStrategy:  model.StrategyDirect,
		CleanedQuery:   originalQuery,
	}
}

type invalidDecisionError struct {
	raw model.AgentDecision
}

func (e invalidDecisionError) Error() string {
	b, _ := json.Marshal(e.raw)
	return "agent: decision violated invariants: " + string(b)
}

func errInvalidDecision(d model.AgentDecision) error {
	return invalidDecisionError{raw: d}
}
