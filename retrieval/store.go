// 软件包 retrieval 提供向量化检索：分块、向量存储与检索器.
//
// VectorStore 抽象底层存储，内置内存实现与 Qdrant REST 实现。
// 检索结果按余弦相似度降序，同分保持插入顺序（稳定排序）。
package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/BaSui01/policyrag/types"
)

// StoredDocument 是写入向量存储的一条记录。
type StoredDocument struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Vector   []float64         `json:"vector"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// VectorStore 是向量存储的统一抽象。实现必须是并发安全的。
type VectorStore interface {
	// Add 写入文档
	Add(ctx context.Context, docs []StoredDocument) error
	// Search 按向量检索 topK 条，相似度降序
	Search(ctx context.Context, vector []float64, topK int) ([]types.RetrievedDocument, error)
	// Count 返回存储的文档数
	Count(ctx context.Context) (int, error)
}

// Clearable 是可选能力：支持清空的存储。
type Clearable interface {
	Clear(ctx context.Context) error
}

// InMemoryStore 内存向量存储，保持插入顺序以保证同分排序稳定。
type InMemoryStore struct {
	mu   sync.RWMutex
	docs []StoredDocument
}

// NewInMemoryStore 创建内存向量存储。
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Add 实现 VectorStore.Add。
func (s *InMemoryStore) Add(_ context.Context, docs []StoredDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, docs...)
	return nil
}

// Search 实现 VectorStore.Search。负相似度截断为 0。
func (s *InMemoryStore) Search(_ context.Context, vector []float64, topK int) ([]types.RetrievedDocument, error) {
	if topK <= 0 {
		return []types.RetrievedDocument{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]types.RetrievedDocument, 0, len(s.docs))
	for _, doc := range s.docs {
		sim := CosineSimilarity(vector, doc.Vector)
		if sim < 0 {
			sim = 0
		}
		results = append(results, types.RetrievedDocument{
			ID:         doc.ID,
			Text:       doc.Text,
			Similarity: sim,
			Metadata:   doc.Metadata,
		})
	}

	// 稳定排序：同分保持插入顺序
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count 实现 VectorStore.Count。
func (s *InMemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Clear 实现 Clearable。
func (s *InMemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	return nil
}

// CosineSimilarity 计算两个向量的余弦相似度。
// 维度不一致或零向量返回 0。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
