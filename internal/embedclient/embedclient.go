// Package embedclient implements C1, the embedding provider: mapping text
// to fixed-dimension, unit-norm vectors. It wraps concrete clients (Ollama,
// Vertex AI) with the batching and L2-normalization logic grounded on the
// teacher's EmbedderService.
package embedclient

import (
	"context"
	"fmt"
	"math"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerrors"
)

// maxBatchSize caps texts per underlying embedding call.
const maxBatchSize = 250

// Client abstracts a concrete embedding backend (Ollama REST, Vertex AI
// REST, ...). Implementations return one vector of model.Dim length per
// input text.
type Client interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Service generates vector embeddings, batching large inputs and
// L2-normalizing every vector so callers can treat cosine similarity as a
// dot product.
type Service struct {
	client Client
	cache  *cache.EmbeddingCache
}

// Option configures a Service at construction.
type Option func(*Service)

// WithCache attaches an EmbeddingCache so repeated or near-duplicate
// queries skip the underlying backend entirely. Nil (the default) disables
// caching.
func WithCache(c *cache.EmbeddingCache) Option {
	return func(s *Service) { s.cache = c }
}

// New creates a Service wrapping a concrete Client.
func New(client Client, opts ...Option) *Service {
	s := &Service{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Embed generates embeddings for a slice of texts, batching as needed.
// Returns one model.Dim-length, unit-norm vector per input text. A failed
// backend call is returned as a ragerrors Unavailable error wrapping the
// cause; callers treat this as "retrieval unavailable", not fatal
// (spec.md §4.1). Empty input and wrong-dimension vectors are reported
// with plain errors.
//
// When a cache is attached, each text is looked up by
// cache.EmbeddingQueryHash before hitting the backend; only cache misses
// are sent to the underlying Client, and freshly computed vectors are
// stored back for next time.
func (s *Service) Embed(ctx context.Context, texts []string) ([]model.Embedding, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embedclient.Embed: no texts provided")
	}

	result := make([]model.Embedding, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if s.cache != nil {
			if vec, ok := s.cache.Get(cache.EmbeddingQueryHash(text)); ok {
				result[i] = model.Embedding(vec)
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return result, nil
	}

	fetched, err := s.embedBatched(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, vec := range fetched {
		idx := missIdx[j]
		result[idx] = vec
		if s.cache != nil {
			s.cache.Set(cache.EmbeddingQueryHash(missTexts[j]), vec)
		}
	}

	return result, nil
}

// embedBatched calls the underlying Client in maxBatchSize-sized chunks and
// L2-normalizes every returned vector.
func (s *Service) embedBatched(ctx context.Context, texts []string) ([]model.Embedding, error) {
	all := make([]model.Embedding, 0, len(texts))

	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		vectors, err := s.client.EmbedTexts(ctx, batch)
		if err != nil {
			return nil, ragerrors.NewUnavailable(fmt.Sprintf("embedclient.Embed: batch %d-%d", i, end), err)
		}

		for j, vec := range vectors {
			if len(vec) != model.Dim {
				return nil, fmt.Errorf("embedclient.Embed: vector %d has %d dimensions, want %d", i+j, len(vec), model.Dim)
			}
			all = append(all, l2Normalize(vec))
		}
	}

	if len(all) != len(texts) {
		return nil, fmt.Errorf("embedclient.Embed: got %d vectors for %d texts", len(all), len(texts))
	}

	return all, nil
}

// l2Normalize normalizes a vector to unit length (L2 norm = 1).
func l2Normalize(vec []float32) model.Embedding {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return model.Embedding(vec)
	}

	result := make(model.Embedding, len(vec))
	for i, v := range vec {
		result[i] = float32(float64(v) / norm)
	}
	return result
}
