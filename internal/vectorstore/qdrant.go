package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// payload keys, matching spec.md §6's persisted-state layout exactly.
const (
	payloadContent     = "content"
	payloadSource      = "source"
	payloadFilename    = "filename"
	payloadType        = "type"
	payloadChunkIndex  = "chunkIndex"
	payloadTotalChunks = "totalChunks"
	payloadDateAdded   = "dateAdded"
	payloadCategory    = "category"
	payloadImportance  = "importance"
)

// QdrantStore implements Store against a Qdrant collection.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore dials Qdrant's gRPC endpoint (host:port, no scheme).
func NewQdrantStore(host string, port int, apiKey string, useTLS bool) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore.NewQdrantStore: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

var _ Store = (*QdrantStore)(nil)

// EnsureCollection implements Store.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("vectorstore.EnsureCollection: exists check: %w", err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(model.Dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("vectorstore.EnsureCollection: create: %w", err)
		}
		slog.Info("vectorstore collection created", "collection", name, "dim", model.Dim)
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return fmt.Errorf("vectorstore.EnsureCollection: info: %w", err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return &SchemaMismatchError{Collection: name, Got: "unknown", Want: fmt.Sprintf("size=%d cosine", model.Dim)}
	}
	if params.GetSize() != uint64(model.Dim) || params.GetDistance() != qdrant.Distance_Cosine {
		return &SchemaMismatchError{
			Collection: name,
			Got:        fmt.Sprintf("size=%d distance=%s", params.GetSize(), params.GetDistance()),
			Want:       fmt.Sprintf("size=%d distance=Cosine", model.Dim),
		}
	}
	return nil
}

// Upsert implements Store.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, items []UpsertItem) error {
	if len(items) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(items))
	for i, item := range items {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(item.Chunk.ID),
			Vectors: qdrant.NewVectors(item.Vector...),
			Payload: qdrant.NewValueMap(chunkToPayload(item.Chunk)),
		}
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vectorstore.Upsert: %w", err)
	}
	return nil
}

// Search implements Store.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector model.Embedding, k int) ([]model.SearchResult, error) {
	if k <= 0 {
		k = DefaultSearchK
	}
	limit := uint64(k)

	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore.Search: %w", err)
	}

	results := make([]model.SearchResult, 0, len(resp))
	for _, point := range resp {
		chunk := payloadToChunk(idToString(point.GetId()), point.GetPayload())
		results = append(results, model.SearchResult{
			ID:       chunk.ID,
			Content:  chunk.Content,
			Metadata: chunk.Metadata,
			Score:    float64(point.GetScore()),
		})
	}
	return results, nil
}

// Scroll implements Store.
func (s *QdrantStore) Scroll(ctx context.Context, collection string, limit int) ([]model.KnowledgeChunk, error) {
	if limit <= 0 {
		limit = DefaultSearchK
	}
	lim := uint32(limit)

	resp, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore.Scroll: %w", err)
	}

	chunks := make([]model.KnowledgeChunk, 0, len(resp))
	for _, point := range resp {
		chunks = append(chunks, payloadToChunk(idToString(point.GetId()), point.GetPayload()))
	}
	return chunks, nil
}

// Delete implements Store.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorIDS(stringsToUUIDs(ids)),
	})
	if err != nil {
		return fmt.Errorf("vectorstore.Delete: %w", err)
	}
	return nil
}

func chunkToPayload(c model.KnowledgeChunk) map[string]any {
	payload := map[string]any{
		payloadContent:     c.Content,
		payloadSource:      c.Metadata.Source,
		payloadFilename:    c.Metadata.Filename,
		payloadType:        string(c.Metadata.Type),
		payloadChunkIndex:  int64(c.Metadata.ChunkIndex),
		payloadTotalChunks: int64(c.Metadata.TotalChunks),
		payloadDateAdded:   c.Metadata.DateAdded.Format(time.RFC3339),
	}
	if c.Metadata.Category != "" {
		payload[payloadCategory] = c.Metadata.Category
	}
	if c.Metadata.Importance != 0 {
		payload[payloadImportance] = c.Metadata.Importance
	}
	return payload
}

func payloadToChunk(id string, payload map[string]*qdrant.Value) model.KnowledgeChunk {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	getInt := func(key string) int {
		if v, ok := payload[key]; ok {
			return int(v.GetIntegerValue())
		}
		return 0
	}
	getFloat := func(key string) float64 {
		if v, ok := payload[key]; ok {
			return v.GetDoubleValue()
		}
		return 0
	}

	dateAdded, _ := time.Parse(time.RFC3339, get(payloadDateAdded))

	return model.KnowledgeChunk{
		ID:      id,
		Content: get(payloadContent),
		Metadata: model.ChunkMetadata{
			Source:      get(payloadSource),
			Filename:    get(payloadFilename),
			Type:        model.ChunkType(get(payloadType)),
			ChunkIndex:  getInt(payloadChunkIndex),
			TotalChunks: getInt(payloadTotalChunks),
			DateAdded:   dateAdded,
			Category:    get(payloadCategory),
			Importance:  getFloat(payloadImportance),
		},
	}
}

func idToString(id *qdrant.PointId) string {
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func stringsToUUIDs(ids []string) []*qdrant.PointId {
	out := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		out[i] = qdrant.NewIDUUID(id)
	}
	return out
}
