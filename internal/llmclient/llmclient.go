// Package llmclient implements C3, the local-LLM client: a health probe
// and a JSON-schema-constrained chat call against an Ollama-compatible
// REST surface (/api/tags, /api/chat).
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerrors"
)

const (
	healthTimeout = 5 * time.Second
	chatTimeout   = 30 * time.Second
	numPredict    = 512
)

// HealthStatus is the result of a health probe.
type HealthStatus struct {
	Available bool
	Models    []string
	Error     string
}

// Client is the C3 contract: a health probe, a structured decision
// chat call, and a plain-text completion call for collaborators (like
// C7's contradiction check) that need a short free-form answer rather
// than a schema-bound decision.
type Client interface {
	Health(ctx context.Context, model string) (HealthStatus, error)
	Chat(ctx context.Context, model string, messages []Message, jsonSchema any, originalQuery string) (model.AgentDecision, error)
	Complete(ctx context.Context, model string, messages []Message) (string, error)
}

// Message is one turn in a chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OllamaClient implements Client against an Ollama-compatible runtime.
type OllamaClient struct {
	baseURL string
	http    *http.Client
}

// NewOllamaClient creates an OllamaClient against baseURL (e.g.
// "http://localhost:11434").
func NewOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

var _ Client = (*OllamaClient)(nil)

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Health implements Client. It distinguishes "runtime unreachable"
// (connection refused / network error) from "model missing" (runtime up,
// requested model absent from the catalog), matching model names by the
// prefix before ':' so tagged variants both satisfy a bare request.
func (c *OllamaClient) Health(ctx context.Context, wantModel string) (HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("llmclient.Health: request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return HealthStatus{Available: false, Error: "runtime unreachable"}, ragerrors.NewUnavailable("llmclient.Health", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return HealthStatus{Available: false, Error: fmt.Sprintf("status %d", resp.StatusCode)}, ragerrors.NewUnavailable("llmclient.Health", fmt.Errorf("%s", body))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return HealthStatus{}, ragerrors.NewParseError("llmclient.Health: decode tags: " + err.Error())
	}

	names := make([]string, len(tags.Models))
	found := wantModel == ""
	wantPrefix := modelPrefix(wantModel)
	for i, m := range tags.Models {
		names[i] = m.Name
		if modelPrefix(m.Name) == wantPrefix {
			found = true
		}
	}

	if !found {
		return HealthStatus{Available: true, Models: names, Error: "model missing"}, nil
	}
	return HealthStatus{Available: true, Models: names}, nil
}

func modelPrefix(name string) string {
	if idx := strings.Index(name, ":"); idx >= 0 {
		return name[:idx]
	}
	return name
}

type chatRequest struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Format   any         `json:"format,omitempty"`
	Stream   bool        `json:"stream"`
	Options  chatOptions `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type chatResponse struct {
	Message Message `json:"message"`
}

// Chat implements Client. On parse failure or timeout it never raises to
// the caller — retrieval is an optimization — and instead returns the
// safe fallback decision naming the cause in Reasoning.
func (c *OllamaClient) Chat(ctx context.Context, modelName string, messages []Message, jsonSchema any, originalQuery string) (model.AgentDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	decision, err := c.doChat(ctx, modelName, messages, jsonSchema)
	if err != nil {
		slog.Warn("llmclient chat falling back", "error", err)
		return safeFallback(originalQuery, err), nil
	}
	return decision, nil
}

func (c *OllamaClient) doChat(ctx context.Context, modelName string, messages []Message, jsonSchema any) (model.AgentDecision, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:    modelName,
		Messages: messages,
		Format:   jsonSchema,
		Stream:   false,
		Options:  chatOptions{Temperature: 0, NumPredict: numPredict},
	})
	if err != nil {
		return model.AgentDecision{}, fmt.Errorf("llmclient.Chat: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return model.AgentDecision{}, fmt.Errorf("llmclient.Chat: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return model.AgentDecision{}, ragerrors.NewTimeout("llmclient.Chat", err)
		}
		return model.AgentDecision{}, ragerrors.NewUnavailable("llmclient.Chat", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Warn("llmclient chat non-200 response", "status", resp.StatusCode, "body", string(body))
		return model.AgentDecision{}, ragerrors.NewServerError(resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return model.AgentDecision{}, ragerrors.NewParseError("llmclient.Chat: decode: " + err.Error())
	}

	var decision model.AgentDecision
	if err := json.Unmarshal([]byte(chatResp.Message.Content), &decision); err != nil {
		return model.AgentDecision{}, ragerrors.NewParseError("llmclient.Chat: decision decode: " + err.Error())
	}
	return decision, nil
}

// Complete sends a plain-text completion request with no schema
// constraint, for callers that want a short free-form answer (e.g. a
// one-word classification) rather than a decision. Unlike Chat, errors
// are returned to the caller rather than masked by a fallback — a
// free-form caller decides for itself what "fail safe" means.
func (c *OllamaClient) Complete(ctx context.Context, modelName string, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	reqBody, err := json.Marshal(chatRequest{
		Model:    modelName,
		Messages: messages,
		Stream:   false,
		Options:  chatOptions{Temperature: 0, NumPredict: numPredict},
	})
	if err != nil {
		return "", fmt.Errorf("llmclient.Complete: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("llmclient.Complete: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ragerrors.NewTimeout("llmclient.Complete", err)
		}
		return "", ragerrors.NewUnavailable("llmclient.Complete", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Warn("llmclient complete non-200 response", "status", resp.StatusCode, "body", string(body))
		return "", ragerrors.NewServerError(resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", ragerrors.NewParseError("llmclient.Complete: decode: " + err.Error())
	}
	return chatResp.Message.Content, nil
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
