package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/google"

	"github.com/connexus-ai/ragbox-backend/internal/httpretry"
)

// VertexClient calls the Vertex AI text embedding REST API. This is the
// optional cloud-hosted C1 binding for deployments that already run a
// GCP-hosted embedding model rather than a local Ollama runtime.
type VertexClient struct {
	project  string
	location string
	model    string
	http     *http.Client
}

// NewVertexClient creates a VertexClient using Google application default
// credentials.
func NewVertexClient(ctx context.Context, project, location, model string) (*VertexClient, error) {
	httpClient, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("embedclient.NewVertexClient: default credentials: %w", err)
	}
	return &VertexClient{project: project, location: location, model: model, http: httpClient}, nil
}

type vertexEmbeddingRequest struct {
	Instances []vertexEmbeddingInstance `json:"instances"`
}

type vertexEmbeddingInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type vertexEmbeddingResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// EmbedTexts implements Client, using the RETRIEVAL_QUERY task type so the
// vector space matches the asymmetric retrieval model text-embedding-004
// was trained for. Retries on 429/RESOURCE_EXHAUSTED per httpretry.DefaultConfig.
func (c *VertexClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return httpretry.Do(ctx, httpretry.DefaultConfig, "embedclient.VertexClient.EmbedTexts", func() ([][]float32, error) {
		return c.doEmbed(ctx, texts)
	})
}

func (c *VertexClient) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	instances := make([]vertexEmbeddingInstance, len(texts))
	for i, t := range texts {
		instances[i] = vertexEmbeddingInstance{Content: t, TaskType: "RETRIEVAL_QUERY"}
	}

	reqBody, err := json.Marshal(vertexEmbeddingRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("embedclient.VertexClient.EmbedTexts: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedclient.VertexClient.EmbedTexts: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedclient.VertexClient.EmbedTexts: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedclient.VertexClient.EmbedTexts: status %d: %s", resp.StatusCode, body)
	}

	var embResp vertexEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("embedclient.VertexClient.EmbedTexts: decode: %w", err)
	}

	results := make([][]float32, len(embResp.Predictions))
	for i, p := range embResp.Predictions {
		results[i] = p.Embeddings.Values
	}
	return results, nil
}

func (c *VertexClient) endpointURL() string {
	if c.location == "global" {
		return fmt.Sprintf(
			"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:predict",
			c.project, c.model,
		)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		c.location, c.project, c.location, c.model,
	)
}
