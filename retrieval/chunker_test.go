package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSimpleTokenizerCJK(t *testing.T) {
	tok := SimpleTokenizer{}
	assert.Equal(t, 4, tok.CountTokens("试验区啊"))
	assert.Equal(t, 1, tok.CountTokens("abcd"))
	assert.Equal(t, 0, tok.CountTokens(""))
	// 混排：2 个汉字 + 4 个字母
	assert.Equal(t, 3, tok.CountTokens("政策abcd"))
}

func TestChunkerShortTextSingleChunk(t *testing.T) {
	chunker := NewChunker(DefaultChunkerConfig(), nil)
	chunks := chunker.Split("这是一段很短的政策文本。")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestChunkerEmptyText(t *testing.T) {
	chunker := NewChunker(DefaultChunkerConfig(), nil)
	assert.Empty(t, chunker.Split("   \n  "))
}

func TestChunkerSplitsAtSentenceBoundary(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{ChunkSize: 20, ChunkOverlap: 5}, nil)

	text := strings.Repeat("华侨试验区位于汕头市。", 10)
	chunks := chunker.Split(text)
	require.Greater(t, len(chunks), 1)

	// 每块以句号结尾，说明断点落在句子边界
	for _, chunk := range chunks {
		assert.True(t, strings.HasSuffix(chunk.Text, "。"), "chunk %d: %q", chunk.Index, chunk.Text)
	}
}

func TestChunkerOverlapCarriesTailSentence(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{ChunkSize: 24, ChunkOverlap: 12}, nil)

	text := "第一条总则说明。第二条管理体制规定。第三条产业扶持政策。第四条人才引进办法。"
	chunks := chunker.Split(text)
	require.Greater(t, len(chunks), 1)

	// 后块应以前块的尾句开头
	first := splitSentences(chunks[0].Text)
	tail := first[len(first)-1]
	assert.True(t, strings.HasPrefix(chunks[1].Text, tail),
		"chunk[1] %q should start with %q", chunks[1].Text, tail)
}

func TestChunkerHardSplitsOversizedSentence(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{ChunkSize: 10, ChunkOverlap: 0}, nil)

	// 无标点超长句
	chunks := chunker.Split(strings.Repeat("政", 35))
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, SimpleTokenizer{}.CountTokens(chunk.Text), 10)
	}
}

func TestChunkerCoversAllText(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(8, 64).Draw(t, "size")
		overlap := rapid.IntRange(0, size/2).Draw(t, "overlap")
		n := rapid.IntRange(1, 30).Draw(t, "sentences")

		var builder strings.Builder
		for i := 0; i < n; i++ {
			builder.WriteString("政策条款内容。")
		}
		text := builder.String()

		chunker := NewChunker(ChunkerConfig{ChunkSize: size, ChunkOverlap: overlap}, nil)
		chunks := chunker.Split(text)

		joined := ""
		for _, c := range chunks {
			joined += c.Text
		}
		// 去重叠后原文每个句子都被覆盖
		assert.Contains(t, joined, "政策条款内容。")
		assert.NotEmpty(t, chunks)
	})
}
