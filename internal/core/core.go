// Package core is the composition root: it wires C1–C9 together behind
// the four collaborator-facing operations spec.md §6 names
// (processRagQuery, formatContextForPrompt, consolidateMemory,
// sendWebSessionRequest), plus a supplemented health/readiness probe and
// Prometheus metrics. Nothing downstream of this package talks to the
// decision agent, the executor, or the consolidator directly — a host
// shell only ever calls through here.
package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/agent"
	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/events"
	"github.com/connexus-ai/ragbox-backend/internal/llmclient"
	"github.com/connexus-ai/ragbox-backend/internal/memory"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerrors"
	"github.com/connexus-ai/ragbox-backend/internal/retrieval"
	"github.com/connexus-ai/ragbox-backend/internal/vectorstore"
	"github.com/connexus-ai/ragbox-backend/internal/websession"
)

// CookieProbe reports whether the web-session collaborator currently
// considers the user authenticated, without attempting a send.
// *websession.Client satisfies it. Health calls IsAuthenticated on the
// wired client rather than Send, so a readiness check never spends a
// CSRF-token harvest or hits the provider's rate limit.
type CookieProbe interface {
	IsAuthenticated(ctx context.Context) bool
}

// Deps bundles every collaborator the core wires together. WebSession may
// be nil when config.WebSession.Enabled is false; every other field is
// required.
type Deps struct {
	Agent        *agent.Agent
	Executor     *retrieval.Executor
	Consolidator *memory.Consolidator
	LLM          llmclient.Client
	Store        vectorstore.Store
	WebSession   *websession.Client
	Metrics      *Metrics
}

// Core implements the collaborator-facing API of spec.md §6.
type Core struct {
	agent        *agent.Agent
	executor     *retrieval.Executor
	consolidator *memory.Consolidator
	llm          llmclient.Client
	store        vectorstore.Store
	webSession   *websession.Client
	metrics      *Metrics
}

// New creates a Core from its wired dependencies.
func New(deps Deps) *Core {
	return &Core{
		agent:        deps.Agent,
		executor:     deps.Executor,
		consolidator: deps.Consolidator,
		llm:          deps.LLM,
		store:        deps.Store,
		webSession:   deps.WebSession,
		metrics:      deps.Metrics,
	}
}

// QueryResult is the outcome of ProcessRagQuery.
type QueryResult struct {
	Decision         model.AgentDecision
	Contexts         []retrieval.RankedContext
	ProcessingTimeMs int64
	Err              error
}

// ProcessRagQuery implements spec.md §6's processRagQuery: the one
// operation the chat path invokes per turn. turnID is an optional
// caller-supplied identifier attached as "request_id" to the log lines
// ProcessRagQuery itself writes; it is not passed on to the agent or
// the executor (supplemented feature, grounded on the
// teacher's pervasive "request_id" slog field in
// internal/middleware/logging.go); pass "" if the caller has none. sink
// may be nil.
//
// P8 (fail-open): if the C3 health probe reports the local LLM runtime
// unreachable, ProcessRagQuery returns
// {Decision.NeedsRetrieval: false, Contexts: nil, Err: <cause>} and
// never panics or returns a second error value — callers that want to
// know why retrieval degraded read Err; callers that only want an
// assistant turn to proceed ignore it. Failures after that point do not
// set Err: agent.Decide falls back to a no-retrieval decision, and the
// executor logs and skips failed queries (possibly returning no
// contexts).
func (c *Core) ProcessRagQuery(ctx context.Context, turnID, userText, collectionName string, settings config.RAG, sink events.Sink) QueryResult {
	start := time.Now()
	log := slog.With("request_id", turnID)

	events.Emit(sink, events.Thinking())

	// P8: probe C3 before asking the agent to decide, so an unreachable
	// runtime degrades to "no retrieval" with Err populated for
	// telemetry, rather than relying on agent.Decide's internal
	// safe-fallback (which swallows the cause into Reasoning and never
	// surfaces it to this boundary).
	if health, err := c.llm.Health(ctx, settings.Model); err != nil || !health.Available {
		cause := err
		if cause == nil {
			cause = ragerrors.NewUnavailable("core.ProcessRagQuery", nil)
		}
		log.Warn("processRagQuery: local LLM runtime unavailable, failing open", "error", cause)
		events.Emit(sink, events.Errorf(cause.Error()))
		return c.finish(failOpenDecision(userText), nil, start, cause)
	}

	decision := c.agent.Decide(ctx, userText, settings)
	c.recordDecision(decision)

	if !decision.NeedsRetrieval {
		events.Emit(sink, events.Skipped())
		return c.finish(decision, nil, start, nil)
	}

	events.Emit(sink, events.Searching())
	contexts := c.executor.Execute(ctx, decision.SearchQueries, collectionName, settings)
	if len(contexts) == 0 && len(decision.SearchQueries) > 0 {
		log.Warn("processRagQuery: retrieval returned no context", "collection", collectionName)
	}

	result := c.finish(decision, contexts, start, nil)
	events.Emit(sink, events.Done(len(decision.SearchQueries), len(contexts), result.ProcessingTimeMs))
	return result
}

func failOpenDecision(userText string) model.AgentDecision {
	return model.AgentDecision{
		NeedsRetrieval: false,
		Reasoning:      "local LLM runtime unavailable",
		QueryStrategy:  model.StrategyDirect,
		CleanedQuery:   userText,
	}
}

func (c *Core) finish(decision model.AgentDecision, contexts []retrieval.RankedContext, start time.Time, err error) QueryResult {
	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.QueryLatencySeconds.Observe(elapsed.Seconds())
	}
	return QueryResult{
		Decision:         decision,
		Contexts:         contexts,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Err:              err,
	}
}

func (c *Core) recordDecision(d model.AgentDecision) {
	if c.metrics == nil {
		return
	}
	label := "false"
	if d.NeedsRetrieval {
		label = "true"
	}
	c.metrics.DecisionsTotal.WithLabelValues(label).Inc()
}

// FormatContextForPrompt implements spec.md §6's formatContextForPrompt,
// delegating to C6 (retrieval.FormatContextForPrompt).
func (c *Core) FormatContextForPrompt(contexts []retrieval.RankedContext) string {
	return retrieval.FormatContextForPrompt(contexts)
}

// ConsolidateMemory implements spec.md §6's consolidateMemory, delegating
// to C7 (memory.Consolidator.Consolidate) and recording the outcome.
func (c *Core) ConsolidateMemory(ctx context.Context, userID string, newMemory model.Memory, collectionName, modelName string) (memory.Decision, error) {
	decision, err := c.consolidator.Consolidate(ctx, userID, newMemory, collectionName, modelName)
	if c.metrics != nil && err == nil {
		c.metrics.MemoryActionsTotal.WithLabelValues(string(decision.Action)).Inc()
	}
	return decision, err
}

// SendWebSessionRequest implements spec.md §6's sendWebSessionRequest,
// delegating to C8 (websession.Client.Send) and recording the outcome.
// Returns a ConfigError if no web-session client was wired (the feature
// is disabled).
func (c *Core) SendWebSessionRequest(ctx context.Context, prompt string, onChunk websession.OnChunk) (websession.Response, error) {
	if c.webSession == nil {
		return websession.Response{}, ragerrors.NewConfigError("web session is not enabled")
	}

	resp, err := c.webSession.Send(ctx, prompt, onChunk)
	if c.metrics != nil {
		c.metrics.WebSessionRequestsTotal.WithLabelValues(statusLabel(err)).Inc()
	}
	return resp, err
}

// HealthReport aggregates the reachability of every external
// collaborator the core depends on. Grounded on the teacher's
// internal/handler/health.go (a bounded-timeout ping producing an
// overall/degraded status) generalized from one collaborator (the
// database) to three.
type HealthReport struct {
	Overall     string // "ok" or "degraded"
	VectorStore string // "connected" or "unreachable"
	LocalLLM    string // "connected" or "unreachable"
	WebSession  string // "authenticated", "unauthenticated", or "disabled"
}

const healthProbeTimeout = 3 * time.Second

// Health implements the supplemented health/readiness probe (SPEC_FULL.md
// §6): C2 reachability via a cheap Scroll, C3's own Health, and the
// web-session cookie-store probe. It never returns an error — an
// unreachable collaborator is reported, not raised, consistent with the
// rest of the core's fail-open posture.
func (c *Core) Health(ctx context.Context, collectionName, modelName string) *HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	report := &HealthReport{Overall: "ok", WebSession: "disabled"}

	if _, err := c.store.Scroll(ctx, collectionName, 1); err != nil {
		report.VectorStore = "unreachable"
		report.Overall = "degraded"
	} else {
		report.VectorStore = "connected"
	}

	if status, err := c.llm.Health(ctx, modelName); err != nil || !status.Available {
		report.LocalLLM = "unreachable"
		report.Overall = "degraded"
	} else {
		report.LocalLLM = "connected"
	}

	if c.webSession != nil {
		if c.webSession.IsAuthenticated(ctx) {
			report.WebSession = "authenticated"
		} else {
			report.WebSession = "unauthenticated"
		}
	}

	return report
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case ragerrors.Is(err, ragerrors.KindAuth):
		return "auth_error"
	case ragerrors.Is(err, ragerrors.KindRateLimit):
		return "rate_limited"
	case ragerrors.Is(err, ragerrors.KindUnavailable):
		return "unavailable"
	case ragerrors.Is(err, ragerrors.KindParse):
		return "parse_error"
	default:
		return "error"
	}
}
