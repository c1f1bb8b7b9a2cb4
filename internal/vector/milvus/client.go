package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/retrieval"
	"github.com/papertrail/backend/pkg/logger"
)

// Client is the Milvus backend for the text index. Milvus carries the dense
// space only; the retriever runs in dense-only mode against it.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

var _ retrieval.VectorIndex = (*Client)(nil)

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(
		context.Background(),
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Research paper chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "8192",
				},
			},
			{
				Name:     "paper_title",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "section_title",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "page_start",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "page_end",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, _ := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

// Search implements nearest-neighbor lookup over the dense space. Requests
// for the sparse space are an error so that a misconfigured hybrid setup
// fails loudly instead of silently fusing nothing.
func (m *Client) Search(ctx context.Context, space retrieval.Space, vec retrieval.Vector, limit int, filter *retrieval.SectionFilter) ([]evidence.Chunk, error) {
	if space != retrieval.SpaceDense {
		return nil, fmt.Errorf("milvus backend does not support the %s space", space)
	}

	expr := sectionExpr(filter)
	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"text", "paper_title", "section_title", "page_start", "page_end"},
		[]entity.Vector{entity.FloatVector(vec.Dense)},
		"embedding",
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]evidence.Chunk, 0)
	for _, sr := range searchResult {
		textCol := sr.Fields.GetColumn("text")
		titleCol := sr.Fields.GetColumn("paper_title")
		sectionCol := sr.Fields.GetColumn("section_title")
		startCol := sr.Fields.GetColumn("page_start")
		endCol := sr.Fields.GetColumn("page_end")

		for i := 0; i < sr.ResultCount; i++ {
			text, _ := textCol.Get(i)
			title, _ := titleCol.Get(i)
			section, _ := sectionCol.Get(i)
			start, _ := startCol.Get(i)
			end, _ := endCol.Get(i)

			results = append(results, evidence.Chunk{
				Text:         text.(string),
				PaperTitle:   title.(string),
				SectionTitle: section.(string),
				PageStart:    int(start.(int64)),
				PageEnd:      int(end.(int64)),
				Score:        float64(sr.Scores[i]),
			})
		}
	}

	logger.Info("Vector search completed",
		zap.Int("limit", limit),
		zap.Int("results", len(results)),
		zap.String("filter", expr),
	)

	return results, nil
}

// SearchImages is unsupported on this backend; image retrieval requires the
// qdrant provider.
func (m *Client) SearchImages(ctx context.Context, vec []float32, limit int, minScore float64) ([]evidence.Image, error) {
	return nil, fmt.Errorf("milvus backend does not support image search")
}

func sectionExpr(filter *retrieval.SectionFilter) string {
	if filter == nil || len(filter.Allowed) == 0 {
		return ""
	}
	quoted := make([]string, len(filter.Allowed))
	for i, s := range filter.Allowed {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("section_title in [%s]", strings.Join(quoted, ", "))
}
