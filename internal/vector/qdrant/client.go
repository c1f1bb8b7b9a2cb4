package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/retrieval"
	"github.com/papertrail/backend/pkg/config"
	"github.com/papertrail/backend/pkg/logger"
)

// Client is a REST client to Qdrant. The text collection carries a named
// dense vector plus a named sparse vector per point; images live in their
// own collection with a single dense vector.
type Client struct {
	baseURL         string
	apiKey          string
	collection      string
	imageCollection string
	denseDim        int
	http            *http.Client
}

var _ retrieval.VectorIndex = (*Client)(nil)

func NewClient(cfg config.QdrantConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:         cfg.URL,
		apiKey:          cfg.APIKey,
		collection:      cfg.Collection,
		imageCollection: cfg.ImageCollection,
		denseDim:        cfg.DenseDim,
		http:            &http.Client{Timeout: timeout},
	}
}

// EnsureCollections creates the text and image collections if missing.
// Qdrant answers 200 for an existing collection with the same schema.
func (c *Client) EnsureCollections(ctx context.Context) error {
	text := map[string]any{
		"vectors": map[string]any{
			string(retrieval.SpaceDense): map[string]any{
				"size":     c.denseDim,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			string(retrieval.SpaceSparse): map[string]any{},
		},
	}
	if err := c.putJSON(ctx, fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection), text); err != nil {
		return fmt.Errorf("failed to ensure text collection: %w", err)
	}

	if c.imageCollection == "" {
		return nil
	}
	images := map[string]any{
		"vectors": map[string]any{
			"size":     c.denseDim,
			"distance": "Cosine",
		},
	}
	if err := c.putJSON(ctx, fmt.Sprintf("%s/collections/%s", c.baseURL, c.imageCollection), images); err != nil {
		return fmt.Errorf("failed to ensure image collection: %w", err)
	}
	return nil
}

type searchHit struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type searchResponse struct {
	Result []searchHit `json:"result"`
}

// Search runs a nearest-neighbor query over one of the named text spaces.
func (c *Client) Search(ctx context.Context, space retrieval.Space, vec retrieval.Vector, limit int, filter *retrieval.SectionFilter) ([]evidence.Chunk, error) {
	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
	}
	switch space {
	case retrieval.SpaceDense:
		req["vector"] = map[string]any{
			"name":   string(retrieval.SpaceDense),
			"vector": vec.Dense,
		}
	case retrieval.SpaceSparse:
		req["vector"] = map[string]any{
			"name": string(retrieval.SpaceSparse),
			"vector": map[string]any{
				"indices": vec.Sparse.Indices,
				"values":  vec.Sparse.Values,
			},
		}
	default:
		return nil, fmt.Errorf("unsupported text space: %s", space)
	}
	if filter != nil && len(filter.Allowed) > 0 {
		req["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key":   "section_title",
					"match": map[string]any{"any": filter.Allowed},
				},
			},
		}
	}

	var resp searchResponse
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.postJSON(ctx, url, req, &resp); err != nil {
		return nil, err
	}

	chunks := make([]evidence.Chunk, 0, len(resp.Result))
	for _, hit := range resp.Result {
		chunks = append(chunks, chunkFromPayload(hit))
	}
	logger.GetLogger().Debug("qdrant search complete",
		zap.String("space", string(space)),
		zap.Int("hits", len(chunks)))
	return chunks, nil
}

// SearchImages queries the image collection with a score floor.
func (c *Client) SearchImages(ctx context.Context, vec []float32, limit int, minScore float64) ([]evidence.Image, error) {
	if c.imageCollection == "" {
		return nil, nil
	}
	req := map[string]any{
		"vector":          vec,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": minScore,
	}
	var resp searchResponse
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.imageCollection)
	if err := c.postJSON(ctx, url, req, &resp); err != nil {
		return nil, err
	}

	images := make([]evidence.Image, 0, len(resp.Result))
	for _, hit := range resp.Result {
		img := evidence.Image{Score: hit.Score}
		if v, ok := hit.Payload["image_id"].(string); ok {
			img.ImageID = v
		}
		if v, ok := hit.Payload["paper_title"].(string); ok {
			img.PaperTitle = v
		}
		if v, ok := hit.Payload["page_number"].(float64); ok {
			img.PageNumber = int(v)
		}
		if v, ok := hit.Payload["caption"].(string); ok {
			img.Caption = v
		}
		images = append(images, img)
	}
	return images, nil
}

func chunkFromPayload(hit searchHit) evidence.Chunk {
	chunk := evidence.Chunk{Score: hit.Score}
	if v, ok := hit.Payload["text"].(string); ok {
		chunk.Text = v
	}
	if v, ok := hit.Payload["paper_title"].(string); ok {
		chunk.PaperTitle = v
	}
	if v, ok := hit.Payload["section_title"].(string); ok {
		chunk.SectionTitle = v
	}
	if v, ok := hit.Payload["page_start"].(float64); ok {
		chunk.PageStart = int(v)
	}
	if v, ok := hit.Payload["page_end"].(float64); ok {
		chunk.PageEnd = int(v)
	}
	return chunk
}

func (c *Client) putJSON(ctx context.Context, url string, body any) error {
	return c.doJSON(ctx, http.MethodPut, url, body, nil)
}

func (c *Client) postJSON(ctx context.Context, url string, body any, out any) error {
	return c.doJSON(ctx, http.MethodPost, url, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
