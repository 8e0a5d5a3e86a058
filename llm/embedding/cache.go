package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache 以装饰器方式为任意 Embedder 提供 Redis 缓存。
// 缓存键由嵌入器名、模型维度与文本内容哈希派生；缓存故障只降级为直连，
// 不向上层暴露错误。
type RedisCache struct {
	inner  Embedder
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache 创建嵌入缓存，ttl 为零表示不过期。
func NewRedisCache(inner Embedder, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "embedding_cache")),
	}
}

func (c *RedisCache) Name() string    { return c.inner.Name() + "+cache" }
func (c *RedisCache) Dimensions() int { return c.inner.Dimensions() }

// EmbedQuery 实现 Embedder.EmbedQuery。
func (c *RedisCache) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	key := c.cacheKey(query)

	if vec, ok := c.get(ctx, key); ok {
		return vec, nil
	}

	vec, err := c.inner.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, vec)
	return vec, nil
}

// EmbedDocuments 实现 Embedder.EmbedDocuments。逐条查缓存，
// 只把未命中的文本发给底层嵌入器。
func (c *RedisCache) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	vectors := make([][]float64, len(documents))
	var missing []string
	var missingIdx []int

	for i, doc := range documents {
		if vec, ok := c.get(ctx, c.cacheKey(doc)); ok {
			vectors[i] = vec
			continue
		}
		missing = append(missing, doc)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range fresh {
		idx := missingIdx[j]
		vectors[idx] = vec
		c.put(ctx, c.cacheKey(documents[idx]), vec)
	}
	return vectors, nil
}

func (c *RedisCache) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.inner.Name() + "|" + text))
	return "policyrag:emb:" + hex.EncodeToString(h[:16])
}

func (c *RedisCache) get(ctx context.Context, key string) ([]float64, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("缓存读取失败", zap.Error(err))
		}
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (c *RedisCache) put(ctx context.Context, key string, vec []float64) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug("缓存写入失败", zap.Error(err))
	}
}
