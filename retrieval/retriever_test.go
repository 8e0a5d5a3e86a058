package retrieval

import (
	"context"
	"testing"

	"github.com/BaSui01/policyrag/llm/embedding"
	"github.com/BaSui01/policyrag/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenEmbedder 模拟嵌入服务全部不可用。
type brokenEmbedder struct{}

func (brokenEmbedder) EmbedQuery(context.Context, string) ([]float64, error) {
	return nil, types.NewError(types.ErrUpstreamError, "embedding down")
}

func (brokenEmbedder) EmbedDocuments(context.Context, []string) ([][]float64, error) {
	return nil, types.NewError(types.ErrUpstreamError, "embedding down")
}

func (brokenEmbedder) Dimensions() int { return 64 }
func (brokenEmbedder) Name() string    { return "broken" }

func newTestRetriever(t *testing.T) *VectorRetriever {
	t.Helper()
	return NewVectorRetriever(
		DefaultRetrieverConfig(),
		embedding.NewLocalEmbedder(64),
		nil, nil, nil,
	)
}

func TestRetrieverAddAndSearch(t *testing.T) {
	retriever := newTestRetriever(t)
	ctx := context.Background()

	n, err := retriever.AddDocuments(ctx, []Document{
		{ID: "plan", Text: "华侨经济文化合作试验区由试验区管委会负责管理。", Metadata: map[string]string{"title": "总体方案"}},
		{ID: "talent", Text: "人才引进办法规定了高层次人才的补贴标准。"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	docs, err := retriever.Search(ctx, "试验区管委会负责管理", 5)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "plan#0", docs[0].ID)
	assert.Equal(t, "总体方案", docs[0].Metadata["title"])
}

func TestRetrieverChunksLongDocuments(t *testing.T) {
	config := DefaultRetrieverConfig()
	config.Chunker = ChunkerConfig{ChunkSize: 16, ChunkOverlap: 4}
	retriever := NewVectorRetriever(config, embedding.NewLocalEmbedder(64), nil, nil, nil)
	ctx := context.Background()

	long := "第一条总则。第二条管理体制。第三条产业政策。第四条人才引进。第五条财政支持。"
	n, err := retriever.AddDocuments(ctx, []Document{{ID: "doc", Text: long}})
	require.NoError(t, err)
	assert.Greater(t, n, 1)

	count, err := retriever.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestRetrieverGeneratesIDWhenMissing(t *testing.T) {
	retriever := newTestRetriever(t)
	ctx := context.Background()

	n, err := retriever.AddDocuments(ctx, []Document{{Text: "无 ID 文档。"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docs, err := retriever.Search(ctx, "无 ID 文档", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.NotEmpty(t, docs[0].ID)
}

func TestRetrieverEmptyQuery(t *testing.T) {
	retriever := newTestRetriever(t)
	docs, err := retriever.Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRetrieverDefaultTopK(t *testing.T) {
	retriever := newTestRetriever(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := retriever.AddDocuments(ctx, []Document{{Text: "政策文本片段。"}})
		require.NoError(t, err)
	}

	docs, err := retriever.Search(ctx, "政策", 0)
	require.NoError(t, err)
	assert.Len(t, docs, 5)
}

func TestRetrieverDegradesWhenEmbeddingDown(t *testing.T) {
	retriever := NewVectorRetriever(DefaultRetrieverConfig(), brokenEmbedder{}, nil, nil, nil)

	// 检索降级为空结果而非报错
	docs, err := retriever.Search(context.Background(), "试验区", 5)
	require.NoError(t, err)
	assert.Empty(t, docs)

	// 入库失败仍然报错
	_, err = retriever.AddDocuments(context.Background(), []Document{{Text: "政策。"}})
	require.Error(t, err)
	assert.Equal(t, types.ErrRetrieval, types.GetErrorCode(err))
}

func TestRetrieverSkipsEmptyDocuments(t *testing.T) {
	retriever := newTestRetriever(t)
	n, err := retriever.AddDocuments(context.Background(), []Document{{Text: "  "}})
	require.NoError(t, err)
	assert.Zero(t, n)
}
