// Package retrieval implements C5 (multi-query executor) and C6
// (context formatter): fanning a decomposed set of search queries out
// across the embedding and vector-store collaborators, merging and
// ranking the results, and rendering them into a prompt-ready block.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/embedclient"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/vectorstore"
)

// RankedContext is one retrieved chunk ready for prompt formatting.
type RankedContext struct {
	Content string
	Source  string
	Score   float64
}

const unknownSource = "Unknown"

// Executor implements C5's execute operation.
type Executor struct {
	embedder *embedclient.Service
	store    vectorstore.Store
	cache    *cache.QueryCache
}

// Option configures an Executor at construction.
type Option func(*Executor)

// WithCache attaches a QueryCache so a repeated turn against the same
// collection, query set, and relevance floor skips the fan-out entirely.
// Nil (the default) disables caching.
func WithCache(c *cache.QueryCache) Option {
	return func(e *Executor) { e.cache = c }
}

// New creates an Executor.
func New(embedder *embedclient.Service, store vectorstore.Store, opts ...Option) *Executor {
	e := &Executor{embedder: embedder, store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute embeds and searches each query concurrently, merges by id
// keeping the higher score on collision, drops results below
// settings.MinRelevanceScore, and returns them sorted descending by
// score with (score desc, id asc) as the stable tie-break.
//
// Per-query failures (embed or search) are logged and skipped; they
// never fail the whole batch — unlike golang.org/x/sync/errgroup's
// fail-fast semantics, a single unreachable collaborator should not
// discard the queries that did succeed.
func (e *Executor) Execute(ctx context.Context, queries []string, collectionName string, settings config.RAG) []RankedContext {
	truncated := queries
	if settings.MaxQueries > 0 && len(truncated) > settings.MaxQueries {
		truncated = truncated[:settings.MaxQueries]
	}

	if e.cache != nil {
		if cached, ok := e.cache.Get(collectionName, truncated, settings.MinRelevanceScore); ok {
			return fromCacheContexts(cached)
		}
	}

	type scoredResult struct {
		id     string
		result RankedContext
	}

	resultsCh := make(chan []scoredResult, len(truncated))
	var wg sync.WaitGroup

	for _, query := range truncated {
		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			hits, err := e.searchOne(ctx, query, collectionName, settings)
			if err != nil {
				slog.Warn("retrieval query failed, skipping", "query", query, "error", err)
				resultsCh <- nil
				return
			}
			out := make([]scoredResult, len(hits))
			for i, h := range hits {
				out[i] = scoredResult{id: h.ID, result: toRankedContext(h)}
			}
			resultsCh <- out
		}(query)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	merged := make(map[string]RankedContext)
	for batch := range resultsCh {
		for _, sr := range batch {
			existing, ok := merged[sr.id]
			if !ok || sr.result.Score > existing.Score {
				merged[sr.id] = sr.result
			}
		}
	}

	type idAndContext struct {
		id      string
		context RankedContext
	}
	filtered := make([]idAndContext, 0, len(merged))
	for id, rc := range merged {
		if rc.Score < settings.MinRelevanceScore {
			continue
		}
		filtered = append(filtered, idAndContext{id: id, context: rc})
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].context.Score != filtered[j].context.Score {
			return filtered[i].context.Score > filtered[j].context.Score
		}
		return filtered[i].id < filtered[j].id
	})

	if settings.MaxContextChunks > 0 && len(filtered) > settings.MaxContextChunks {
		filtered = filtered[:settings.MaxContextChunks]
	}

	out := make([]RankedContext, len(filtered))
	for i, f := range filtered {
		out[i] = f.context
	}

	if e.cache != nil {
		e.cache.Set(collectionName, truncated, settings.MinRelevanceScore, toCacheContexts(out))
	}

	return out
}

func toCacheContexts(rs []RankedContext) []cache.RankedContext {
	out := make([]cache.RankedContext, len(rs))
	for i, r := range rs {
		out[i] = cache.RankedContext{Content: r.Content, Source: r.Source, Score: r.Score}
	}
	return out
}

func fromCacheContexts(rs []cache.RankedContext) []RankedContext {
	out := make([]RankedContext, len(rs))
	for i, r := range rs {
		out[i] = RankedContext{Content: r.Content, Source: r.Source, Score: r.Score}
	}
	return out
}

func (e *Executor) searchOne(ctx context.Context, query, collectionName string, settings config.RAG) ([]model.SearchResult, error) {
	vecs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retrieval.searchOne: embed: %w", err)
	}

	k := settings.MaxContextChunks
	if k <= 0 {
		k = vectorstore.DefaultSearchK
	}
	results, err := e.store.Search(ctx, collectionName, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("retrieval.searchOne: search: %w", err)
	}
	return results, nil
}

func toRankedContext(r model.SearchResult) RankedContext {
	source := r.Metadata.Source
	if source == "" {
		source = unknownSource
	}
	return RankedContext{Content: r.Content, Source: source, Score: r.Score}
}
