// 软件包 embedding 为检索层提供文本向量化能力.
//
// 远程 ollama 嵌入器是首选；本地哈希嵌入器作为降级兜底，保证向量检索
// 在嵌入服务不可用时仍能以降低的质量继续工作。Redis 缓存与降级链都是
// 装饰器，对上层透明。
package embedding

import "context"

// Embedder 是文本向量化的统一抽象。实现必须是并发安全的。
type Embedder interface {
	// EmbedQuery 向量化单个查询
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
	// EmbedDocuments 批量向量化文档
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)
	// Dimensions 返回向量维度
	Dimensions() int
	// Name 返回嵌入器名称
	Name() string
}
