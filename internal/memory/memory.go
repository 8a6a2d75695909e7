// Package memory implements C7, the memory consolidator: a threshold
// state machine deciding whether a new memory should be stored,
// skipped as a duplicate, or superseded against an existing one.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/ragbox-backend/internal/embedclient"
	"github.com/connexus-ai/ragbox-backend/internal/llmclient"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/vectorstore"
)

// NewMemory builds a Memory ready to hand to Consolidate, assigning it a
// fresh row identity (grounded on the teacher's pervasive use of
// google/uuid for row identity) and stamping CreatedAt/LastAccessed from
// now. Category == CategoryTemporal gets model.TemporalExpiry applied
// unless the caller sets expiresAt explicitly.
func NewMemory(content string, category model.MemoryCategory, sourceType model.MemorySourceType, importance float64, expiresAt *time.Time) model.Memory {
	now := time.Now()
	if category == model.CategoryTemporal && expiresAt == nil {
		t := now.Add(model.TemporalExpiry)
		expiresAt = &t
	}
	return model.Memory{
		ID:           uuid.NewString(),
		Content:      content,
		Category:     category,
		Importance:   importance,
		SourceType:   sourceType,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
		LastAccessed: now,
	}
}

// Action is the consolidation outcome.
type Action string

const (
	ActionStore     Action = "store"
	ActionSkip      Action = "skip"
	ActionSupersede Action = "supersede"
)

// These thresholds are constants by design (spec.md §4.7): callers may
// not vary them without changing the documented semantics.
const (
	lowSimilarity  = 0.70
	highSimilarity = 0.85
)

// Decision is the result of Consolidate.
type Decision struct {
	Action     Action
	ExistingID string
	Reason     string
}

// Consolidator implements C7.
type Consolidator struct {
	embedder *embedclient.Service
	store    vectorstore.Store
	llm      llmclient.Client

	// processingMu + processing guard per-user serialization, mirroring
	// the teacher's package-level concurrency guard in pipeline.go,
	// generalized from a document-id key to a user-id key.
	processingMu sync.Mutex
	processing   map[string]bool
}

// New creates a Consolidator.
func New(embedder *embedclient.Service, store vectorstore.Store, llm llmclient.Client) *Consolidator {
	return &Consolidator{
		embedder:   embedder,
		store:      store,
		llm:        llm,
		processing: make(map[string]bool),
	}
}

// Consolidate implements C7's single operation. At most one consolidation
// runs at a time for a given user: a call made while another is in flight
// for the same user returns an error at once instead of waiting.
func (c *Consolidator) Consolidate(ctx context.Context, userID string, newMemory model.Memory, collectionName string, modelName string) (Decision, error) {
	c.processingMu.Lock()
	if c.processing[userID] {
		c.processingMu.Unlock()
		return Decision{}, fmt.Errorf("memory.Consolidate: already consolidating for user %s", userID)
	}
	c.processing[userID] = true
	c.processingMu.Unlock()
	defer func() {
		c.processingMu.Lock()
		delete(c.processing, userID)
		c.processingMu.Unlock()
	}()

	vecs, err := c.embedder.Embed(ctx, []string{newMemory.Content})
	if err != nil {
		return Decision{}, fmt.Errorf("memory.Consolidate: embed: %w", err)
	}

	results, err := c.store.Search(ctx, collectionName, vecs[0], 1)
	if err != nil {
		slog.Warn("memory.Consolidate: vector store unavailable, failing open to store", "error", err)
		return Decision{Action: ActionStore, Reason: "vector store unavailable"}, nil
	}

	if len(results) == 0 {
		return Decision{Action: ActionStore, Reason: "no similar memories found"}, nil
	}

	top := results[0]
	s := top.Score

	if s < lowSimilarity {
		return Decision{Action: ActionStore, Reason: "below similarity threshold"}, nil
	}

	if s >= highSimilarity {
		return Decision{Action: ActionSkip, ExistingID: top.ID, Reason: "duplicate of existing memory"}, nil
	}

	existingCategory := model.MemoryCategory(top.Metadata.Category)
	if existingCategory != newMemory.Category {
		return Decision{Action: ActionStore, Reason: "similarity ambiguous, categories differ"}, nil
	}

	contradiction := c.checkContradiction(ctx, modelName, top.Content, newMemory)
	if contradiction {
		return Decision{Action: ActionSupersede, ExistingID: top.ID, Reason: "contradicts existing memory"}, nil
	}
	return Decision{Action: ActionStore, Reason: "compatible with existing memory"}, nil
}

// checkContradiction asks C3 for exactly one word of output and
// interprets the case-insensitive substring "CONTRADICTION" as true.
// Any C3 error fails safe (false — keep both).
func (c *Consolidator) checkContradiction(ctx context.Context, modelName string, existing string, newMemory model.Memory) bool {
	prompt := fmt.Sprintf(
		"Category: %s\nExisting memory: %s\nNew memory: %s\nRespond with exactly one word: COMPATIBLE or CONTRADICTION.",
		newMemory.Category, existing, newMemory.Content,
	)
	messages := []llmclient.Message{{Role: "user", Content: prompt}}

	word, err := c.llm.Complete(ctx, modelName, messages)
	if err != nil {
		slog.Warn("memory.checkContradiction: C3 error, failing safe", "error", err)
		return false
	}
	return strings.Contains(strings.ToUpper(word), "CONTRADICTION")
}
