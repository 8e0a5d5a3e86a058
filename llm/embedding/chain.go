package embedding

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// FallbackChain 按序尝试多个嵌入器，首个成功者胜出。
// 全部失败时返回聚合错误，由检索层决定是否进入降级模式。
type FallbackChain struct {
	embedders []Embedder
	logger    *zap.Logger
}

// NewFallbackChain 创建降级链。至少需要一个嵌入器。
func NewFallbackChain(logger *zap.Logger, embedders ...Embedder) *FallbackChain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackChain{
		embedders: embedders,
		logger:    logger.With(zap.String("component", "embedding_chain")),
	}
}

func (c *FallbackChain) Name() string { return "fallback_chain" }

// Dimensions 返回首个嵌入器的维度。
func (c *FallbackChain) Dimensions() int {
	if len(c.embedders) == 0 {
		return 0
	}
	return c.embedders[0].Dimensions()
}

// EmbedQuery 实现 Embedder.EmbedQuery。
func (c *FallbackChain) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	var errs []error
	for i, e := range c.embedders {
		vec, err := e.EmbedQuery(ctx, query)
		if err == nil {
			if i > 0 {
				c.logger.Warn("嵌入器降级",
					zap.String("embedder", e.Name()),
					zap.Int("fallback_index", i),
				)
			}
			return vec, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// EmbedDocuments 实现 Embedder.EmbedDocuments。
func (c *FallbackChain) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	var errs []error
	for i, e := range c.embedders {
		vectors, err := e.EmbedDocuments(ctx, documents)
		if err == nil {
			if i > 0 {
				c.logger.Warn("嵌入器降级",
					zap.String("embedder", e.Name()),
					zap.Int("fallback_index", i),
				)
			}
			return vectors, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}
