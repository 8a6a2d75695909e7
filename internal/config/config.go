// Package config loads per-feature configuration from environment variables
// for the four subsystems of the retrieval core: RAG, Knowledge (vector
// store), Memory, and the Gemini-class web session.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// RAG holds settings for the decision agent and multi-query executor.
type RAG struct {
	Enabled           bool
	OllamaURL         string
	Model             string
	EmbedModel        string
	MaxQueries        int
	MaxContextChunks  int
	MinRelevanceScore float64
}

// Knowledge holds vector-store connection settings. Exactly one backend is
// active: DatabaseURL (Postgres/pgvector) takes precedence over
// QdrantURL when both are set, so a reimplementer can point this at an
// existing Postgres instance without also standing up Qdrant.
type Knowledge struct {
	QdrantURL      string
	QdrantAPIKey   string
	CollectionName string
	DatabaseURL    string
	MaxConns       int
}

// Memory holds settings for the memory consolidation pipeline's backing
// store (the MemoryRepo collaborator connects to these independently; the
// core itself never opens this connection).
type Memory struct {
	Enabled         bool
	SupabaseURL     string
	SupabaseAnonKey string
}

// WebSession holds settings for the Gemini-class web-session client.
type WebSession struct {
	Enabled  bool
	RootURL  string
	SendURL  string
	Domain   string
	TokenKey string
}

// Cache holds settings for the optional distributed promotion layer over
// the in-process embedding and token caches. RedisURL is empty by default,
// which keeps both caches purely in-process.
type Cache struct {
	RedisURL string
}

// Config is the immutable, fully-loaded configuration for all four
// subsystems.
type Config struct {
	RAG        RAG
	Knowledge  Knowledge
	Memory     Memory
	WebSession WebSession
	Cache      Cache
}

// Load reads configuration from environment variables. One of
// Knowledge.QdrantURL (QDRANT_URL) or Knowledge.DatabaseURL (DATABASE_URL)
// is required (retrieval is entirely disabled without a vector store
// target); every other field has a documented default.
func Load() (*Config, error) {
	qdrantURL := os.Getenv("QDRANT_URL")
	databaseURL := os.Getenv("DATABASE_URL")
	if qdrantURL == "" && databaseURL == "" {
		return nil, fmt.Errorf("config.Load: one of QDRANT_URL or DATABASE_URL is required")
	}

	cfg := &Config{
		RAG: RAG{
			Enabled:           envBool("RAG_ENABLED", true),
			OllamaURL:         envStr("OLLAMA_URL", "http://localhost:11434"),
			Model:             envStr("RAG_MODEL", "llama3.2:3b"),
			EmbedModel:        envStr("RAG_EMBED_MODEL", "nomic-embed-text"),
			MaxQueries:        clampInt(envInt("RAG_MAX_QUERIES", 3), 1, 3),
			MaxContextChunks:  clampInt(envInt("RAG_MAX_CONTEXT_CHUNKS", 5), 1, 20),
			MinRelevanceScore: clampFloat(envFloat("RAG_MIN_RELEVANCE_SCORE", 0.5), 0, 1),
		},
		Knowledge: Knowledge{
			QdrantURL:      qdrantURL,
			QdrantAPIKey:   envStr("QDRANT_API_KEY", ""),
			CollectionName: envStr("QDRANT_COLLECTION", "knowledge"),
			DatabaseURL:    databaseURL,
			MaxConns:       envInt("DATABASE_MAX_CONNS", 10),
		},
		Memory: Memory{
			Enabled:         envBool("MEMORY_ENABLED", false),
			SupabaseURL:     envStr("SUPABASE_URL", ""),
			SupabaseAnonKey: envStr("SUPABASE_ANON_KEY", ""),
		},
		WebSession: WebSession{
			Enabled:  envBool("WEB_SESSION_ENABLED", false),
			RootURL:  envStr("WEB_SESSION_ROOT_URL", "https://gemini.google.com/app"),
			SendURL:  envStr("WEB_SESSION_SEND_URL", "https://gemini.google.com/_/BardChatUi/data/assistant.lamda.BardFrontendService/StreamGenerate"),
			Domain:   envStr("WEB_SESSION_DOMAIN", "gemini.google.com"),
			TokenKey: envStr("WEB_SESSION_TOKEN_KEY", "SNlM0e"),
		},
		Cache: Cache{
			RedisURL: envStr("REDIS_URL", ""),
		},
	}

	if cfg.Memory.Enabled && cfg.Memory.SupabaseURL == "" {
		return nil, fmt.Errorf("config.Load: SUPABASE_URL is required when MEMORY_ENABLED=true")
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
