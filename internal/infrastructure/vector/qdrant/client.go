package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/resilience"
)

const scrollPageSize = 256

// indexedPayloadFields get keyword indexes so scoped queries stay cheap.
var indexedPayloadFields = []string{"domain_id", "document_id"}

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Name() string {
	return "qdrant"
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vectorSize := len(chunks[0].Embedding)
	if vectorSize == 0 {
		return fmt.Errorf("qdrant upsert: chunk %q has no embedding", chunks[0].ID)
	}

	points := make([]point, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) != vectorSize {
			return fmt.Errorf("qdrant upsert: chunk %q has %d dimensions, want %d", chunk.ID, len(chunk.Embedding), vectorSize)
		}
		payload, err := chunkPayload(chunk)
		if err != nil {
			return err
		}
		points = append(points, point{
			ID:      pointID(chunk.ID),
			Vector:  chunk.Embedding,
			Payload: payload,
		})
	}

	if err := c.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.doJSON(ctx, http.MethodPut, path, map[string]any{"points": points}, nil, "upsert")
}

func (c *Client) Query(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.RetrievedChunk, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
		"filter":       buildFilter(filter),
	}

	var searchResp struct {
		Result []struct {
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.doJSON(ctx, http.MethodPost, path, reqBody, &searchResp, "search"); err != nil {
		if isNotFound(err) {
			return []domain.RetrievedChunk{}, nil
		}
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		var chunk domain.Chunk
		if err := json.Unmarshal(r.Payload, &chunk); err != nil {
			return nil, fmt.Errorf("decode search payload: %w", err)
		}
		out = append(out, domain.RetrievedChunk{
			Chunk:    chunk,
			Distance: 1 - r.Score,
		})
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, filter domain.SearchFilter) error {
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	err := c.doJSON(ctx, http.MethodPost, path, map[string]any{"filter": buildFilter(filter)}, nil, "delete")
	if isNotFound(err) {
		return nil
	}
	return err
}

// Stats counts matching points exactly and scrolls their document ids.
func (c *Client) Stats(ctx context.Context, filter domain.SearchFilter) (domain.ChunkStats, error) {
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	countPath := fmt.Sprintf("/collections/%s/points/count", c.collection)
	err := c.doJSON(ctx, http.MethodPost, countPath, map[string]any{
		"filter": buildFilter(filter),
		"exact":  true,
	}, &countResp, "count")
	if isNotFound(err) {
		return domain.ChunkStats{}, nil
	}
	if err != nil {
		return domain.ChunkStats{}, err
	}

	documents := make(map[string]struct{})
	var offset any
	scrollPath := fmt.Sprintf("/collections/%s/points/scroll", c.collection)
	for {
		reqBody := map[string]any{
			"filter":       buildFilter(filter),
			"limit":        scrollPageSize,
			"with_payload": []string{"document_id"},
			"with_vector":  false,
		}
		if offset != nil {
			reqBody["offset"] = offset
		}

		var scrollResp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := c.doJSON(ctx, http.MethodPost, scrollPath, reqBody, &scrollResp, "scroll"); err != nil {
			return domain.ChunkStats{}, err
		}
		for _, p := range scrollResp.Result.Points {
			if id := getStringPayload(p.Payload, "document_id"); id != "" {
				documents[id] = struct{}{}
			}
		}
		if scrollResp.Result.NextPageOffset == nil || len(scrollResp.Result.Points) == 0 {
			break
		}
		offset = scrollResp.Result.NextPageOffset
	}

	return domain.ChunkStats{Chunks: countResp.Result.Count, Documents: len(documents)}, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.doJSON(ctx, http.MethodPut, path, reqBody, nil, "ensure collection")

	// 409 if the collection already exists (depends on version/config).
	var statusErr *resilience.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		err = nil
	}
	if err != nil {
		return err
	}

	for _, field := range indexedPayloadFields {
		indexPath := fmt.Sprintf("/collections/%s/index?wait=true", c.collection)
		indexBody := map[string]any{"field_name": field, "field_schema": "keyword"}
		if err := c.doJSON(ctx, http.MethodPut, indexPath, indexBody, nil, "create payload index"); err != nil {
			return err
		}
	}

	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("qdrant", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func buildFilter(filter domain.SearchFilter) map[string]any {
	key, value := filter.Key()
	return map[string]any{
		"must": []map[string]any{
			{
				"key": key,
				"match": map[string]any{
					"value": value,
				},
			},
		},
	}
}

// chunkPayload stores the chunk in its JSON shape so search results decode
// straight back into domain.Chunk.
func chunkPayload(chunk domain.Chunk) (map[string]any, error) {
	raw, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk payload: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal chunk payload: %w", err)
	}
	return payload, nil
}

// pointID keeps uuid ids as they are and maps anything else to a stable
// name-based uuid, since qdrant only accepts uuids or integers.
func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func isNotFound(err error) bool {
	var statusErr *resilience.HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
