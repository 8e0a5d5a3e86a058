package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/policyrag/llm/embedding"
	"github.com/BaSui01/policyrag/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RetrieverConfig 向量检索器配置。
type RetrieverConfig struct {
	// TopK 默认返回条数
	TopK int
	// Chunker 分块参数
	Chunker ChunkerConfig
}

// DefaultRetrieverConfig 返回默认检索器配置。
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:    5,
		Chunker: DefaultChunkerConfig(),
	}
}

// VectorRetriever 组合嵌入器、分块器与向量存储。
// 嵌入全链失败时 Search 进入降级模式：返回空结果而非错误，
// 由上层用图谱检索兜底。
type VectorRetriever struct {
	config   RetrieverConfig
	embedder embedding.Embedder
	store    VectorStore
	chunker  *Chunker
	logger   *zap.Logger
}

// NewVectorRetriever 创建检索器。store 为 nil 时使用内存存储。
func NewVectorRetriever(config RetrieverConfig, embedder embedding.Embedder, store VectorStore, tokenizer Tokenizer, logger *zap.Logger) *VectorRetriever {
	if config.TopK <= 0 {
		config.TopK = 5
	}
	if store == nil {
		store = NewInMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorRetriever{
		config:   config,
		embedder: embedder,
		store:    store,
		chunker:  NewChunker(config.Chunker, tokenizer),
		logger:   logger.With(zap.String("component", "vector_retriever")),
	}
}

// Document 是待入库的原始文档。
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// AddDocuments 分块、嵌入并写入存储，返回写入的分块数。
func (r *VectorRetriever) AddDocuments(ctx context.Context, docs []Document) (int, error) {
	var stored []StoredDocument
	var texts []string

	for _, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		for _, chunk := range r.chunker.Split(doc.Text) {
			metadata := map[string]string{
				"source_id":   id,
				"chunk_index": fmt.Sprint(chunk.Index),
			}
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			stored = append(stored, StoredDocument{
				ID:       fmt.Sprintf("%s#%d", id, chunk.Index),
				Text:     chunk.Text,
				Metadata: metadata,
			})
			texts = append(texts, chunk.Text)
		}
	}
	if len(stored) == 0 {
		return 0, nil
	}

	vectors, err := r.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, types.NewError(types.ErrRetrieval, "embed documents failed").WithCause(err)
	}
	if len(vectors) != len(stored) {
		return 0, types.NewError(types.ErrRetrieval,
			fmt.Sprintf("embedding count mismatch: %d chunks, %d vectors", len(stored), len(vectors)))
	}
	for i := range stored {
		stored[i].Vector = vectors[i]
	}

	if err := r.store.Add(ctx, stored); err != nil {
		return 0, types.NewError(types.ErrRetrieval, "store documents failed").WithCause(err)
	}

	r.logger.Info("文档入库完成",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(stored)),
	)
	return len(stored), nil
}

// Search 检索与查询最相关的 topK 条文档。
// topK <= 0 时使用配置默认值。嵌入失败进入降级模式，返回空结果。
func (r *VectorRetriever) Search(ctx context.Context, query string, topK int) ([]types.RetrievedDocument, error) {
	if strings.TrimSpace(query) == "" {
		return []types.RetrievedDocument{}, nil
	}
	if topK <= 0 {
		topK = r.config.TopK
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrRetrieval, "query embedding cancelled").WithCause(err)
		}
		// 降级：嵌入不可用不阻断问答链路
		r.logger.Warn("查询嵌入失败，向量检索降级为空结果", zap.Error(err))
		return []types.RetrievedDocument{}, nil
	}

	docs, err := r.store.Search(ctx, vector, topK)
	if err != nil {
		return nil, types.NewError(types.ErrRetrieval, "vector search failed").WithCause(err)
	}
	if docs == nil {
		docs = []types.RetrievedDocument{}
	}
	return docs, nil
}

// Count 返回已入库的分块数。
func (r *VectorRetriever) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}
