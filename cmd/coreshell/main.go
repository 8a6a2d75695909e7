// Command coreshell wires every component (C1-C9) into a single process
// and exposes a minimal HTTP surface for a host desktop shell to drive:
// a bounded-timeout health probe and a Prometheus metrics endpoint. The
// core itself is library-shaped (spec.md §6) — this binary is the
// reference host, modeled on the teacher's cmd/server/main.go graceful
// start/shutdown shape, not a chat UI.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/ragbox-backend/internal/agent"
	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/core"
	"github.com/connexus-ai/ragbox-backend/internal/embedclient"
	"github.com/connexus-ai/ragbox-backend/internal/llmclient"
	"github.com/connexus-ai/ragbox-backend/internal/memory"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/retrieval"
	"github.com/connexus-ai/ragbox-backend/internal/vectorstore"
	"github.com/connexus-ai/ragbox-backend/internal/websession"
)

const version = "0.1.0"

// envCookieStore is a placeholder websession.CookieStore reading cookies
// from the process environment. A real desktop shell host supplies its
// own implementation backed by its browser-cookie store; this one exists
// so coreshell can wire and exercise C8 standalone.
type envCookieStore struct{}

func (envCookieStore) Cookies(ctx context.Context, domain string) (string, string, bool) {
	psid := os.Getenv("WEB_SESSION_PSID")
	psidts := os.Getenv("WEB_SESSION_PSIDTS")
	return psid, psidts, psid != "" && psidts != ""
}

func buildCore(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (*core.Core, error) {
	metrics := core.NewMetrics(reg)

	var embCacheOpts []cache.EmbeddingCacheOption
	var tokenCacheOpts []cache.TokenCacheOption
	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("coreshell: invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		embCacheOpts = append(embCacheOpts, cache.WithRemote(cache.NewRedisEmbeddingCache(rdb, cache.DefaultEmbeddingTTL())))
		tokenCacheOpts = append(tokenCacheOpts, cache.WithTokenRemote(cache.NewRedisTokenCache(rdb, model.TokenTTL)))
		slog.Info("coreshell: redis promotion layer enabled", "addr", opts.Addr)
	}

	embedder := embedclient.New(
		embedclient.NewOllamaClient(cfg.RAG.OllamaURL, cfg.RAG.EmbedModel),
		embedclient.WithCache(cache.NewEmbeddingCache(cache.DefaultEmbeddingTTL(), embCacheOpts...)),
	)

	store, err := newVectorStore(ctx, cfg.Knowledge)
	if err != nil {
		return nil, fmt.Errorf("coreshell: vector store: %w", err)
	}

	llm := llmclient.NewOllamaClient(cfg.RAG.OllamaURL)

	promptDir := os.Getenv("RAG_PROMPT_DIR")
	var loader *agent.PromptLoader
	if promptDir != "" {
		loader, err = agent.NewPromptLoader(promptDir)
		if err != nil {
			return nil, fmt.Errorf("coreshell: prompt loader: %w", err)
		}
	}

	deps := core.Deps{
		Agent:        agent.New(llm, loader),
		Executor:     retrieval.New(embedder, store, retrieval.WithCache(cache.NewQueryCache(cache.DefaultQueryCacheTTL()))),
		Consolidator: memory.New(embedder, store, llm),
		LLM:          llm,
		Store:        store,
		Metrics:      metrics,
	}

	if cfg.WebSession.Enabled {
		deps.WebSession = websession.New(websession.Config{
			RootURL:        cfg.WebSession.RootURL,
			SendURL:        cfg.WebSession.SendURL,
			Domain:         cfg.WebSession.Domain,
			TokenKey:       cfg.WebSession.TokenKey,
			Cookies:        envCookieStore{},
			TokenCacheOpts: tokenCacheOpts,
		})
	}

	return core.New(deps), nil
}

// newVectorStore picks the configured backend: Postgres/pgvector when
// Knowledge.DatabaseURL is set, Qdrant otherwise — parsing Knowledge.QdrantURL
// ("host:port" or a URL with an explicit scheme) into the host/port/TLS
// triple vectorstore.NewQdrantStore expects.
func newVectorStore(ctx context.Context, cfg config.Knowledge) (vectorstore.Store, error) {
	if cfg.DatabaseURL != "" {
		pool, err := vectorstore.NewPool(ctx, cfg.DatabaseURL, cfg.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("coreshell: pgvector pool: %w", err)
		}
		return vectorstore.NewPGVectorStore(pool), nil
	}

	host, port, useTLS, err := parseQdrantURL(cfg.QdrantURL)
	if err != nil {
		return nil, err
	}
	return vectorstore.NewQdrantStore(host, port, cfg.QdrantAPIKey, useTLS)
}

func parseQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	toParse := raw
	if !strings.Contains(toParse, "://") {
		toParse = "//" + toParse
	}
	u, err := url.Parse(toParse)
	if err != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("coreshell: invalid QDRANT_URL %q", raw)
	}

	useTLS = u.Scheme == "https" || u.Scheme == "grpcs"
	h := u.Hostname()
	p := u.Port()
	if p == "" {
		p = "6334"
	}
	portNum, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, false, fmt.Errorf("coreshell: invalid QDRANT_URL port %q", p)
	}
	return h, portNum, useTLS, nil
}

func newMux(c *core.Core, cfg *config.Config, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		report := c.Health(ctx, cfg.Knowledge.CollectionName, cfg.RAG.Model)
		status := http.StatusOK
		if report.Overall != "ok" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status":%q,"version":%q,"vectorStore":%q,"localLLM":%q,"webSession":%q}`,
			report.Overall, version, report.VectorStore, report.LocalLLM, report.WebSession)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return mux
}

func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("coreshell: config: %w", err)
	}

	registry := prometheus.NewRegistry()
	buildCtx, buildCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer buildCancel()
	c, err := buildCore(buildCtx, cfg, registry)
	if err != nil {
		return err
	}

	mux := newMux(c, cfg, registry)

	srv := &http.Server{
		Addr:         ":" + getPort(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("coreshell starting", "version", version, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received signal, shutting down gracefully", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("coreshell: server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("coreshell: graceful shutdown failed: %w", err)
	}

	slog.Info("coreshell stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
