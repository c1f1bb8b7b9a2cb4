package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/metrics"
	"github.com/papertrail/backend/internal/retrieval"
	"github.com/papertrail/backend/pkg/logger"
	"github.com/papertrail/backend/pkg/utils"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SetOutcome caches a finished pipeline outcome under the question hash.
// Suspended and escalated outcomes are never cached; callers only pass
// answered results here.
func (c *Client) SetOutcome(ctx context.Context, questionHash string, outcome interface{}, ttl time.Duration) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("outcome:%s", questionHash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set outcome cache: %w", err)
	}

	logger.Debug("Outcome cached", zap.String("question_hash", questionHash), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetOutcome(ctx context.Context, questionHash string, outcome interface{}) (bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("outcome:%s", questionHash)).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("outcome").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get outcome cache: %w", err)
	}

	err = json.Unmarshal(data, outcome)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}

	metrics.CacheHits.WithLabelValues("outcome").Inc()
	logger.Debug("Outcome cache hit", zap.String("question_hash", questionHash))
	return true, nil
}

func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("embedding:%s", textHash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	logger.Debug("Embedding cached", zap.String("text_hash", textHash))
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("embedding:%s", textHash)).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	err = json.Unmarshal(data, &embedding)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	metrics.CacheHits.WithLabelValues("embedding").Inc()
	logger.Debug("Embedding cache hit", zap.String("text_hash", textHash))
	return embedding, true, nil
}

func (c *Client) InvalidateOutcomes(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "outcome:*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Outcome cache invalidated")
	return nil
}

const embeddingTTL = 24 * time.Hour

// CachingEmbedder wraps an embedder with a Redis cache on the dense side.
// Sparse vectors are computed locally and cost nothing to recompute, so
// they bypass the cache.
type CachingEmbedder struct {
	inner retrieval.Embedder
	cache *Client
}

var _ retrieval.Embedder = (*CachingEmbedder)(nil)

func NewCachingEmbedder(inner retrieval.Embedder, cache *Client) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, cache: cache}
}

func (e *CachingEmbedder) EmbedDense(ctx context.Context, text string) ([]float32, error) {
	textHash := utils.HashString(text)

	cached, hit, err := e.cache.GetEmbedding(ctx, textHash)
	if err != nil {
		logger.Warn("Embedding cache lookup failed", zap.Error(err))
	} else if hit {
		return cached, nil
	}

	embedding, err := e.inner.EmbedDense(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetEmbedding(ctx, textHash, embedding, embeddingTTL); err != nil {
		logger.Warn("Failed to cache embedding", zap.Error(err))
	}
	return embedding, nil
}

func (e *CachingEmbedder) EmbedSparse(ctx context.Context, text string) (retrieval.SparseVector, error) {
	return e.inner.EmbedSparse(ctx, text)
}
