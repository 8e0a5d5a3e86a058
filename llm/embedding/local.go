package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalEmbedder 是确定性的特征哈希嵌入器，作为远程嵌入服务的降级兜底。
// 相同文本总是产出相同向量，语义质量有限但保证检索链路可用。
type LocalEmbedder struct {
	dimensions int
}

// NewLocalEmbedder 创建本地嵌入器，dimensions<=0 时取 256。
func NewLocalEmbedder(dimensions int) *LocalEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &LocalEmbedder{dimensions: dimensions}
}

func (e *LocalEmbedder) Name() string    { return "local" }
func (e *LocalEmbedder) Dimensions() int { return e.dimensions }

// EmbedQuery 实现 Embedder.EmbedQuery。
func (e *LocalEmbedder) EmbedQuery(_ context.Context, query string) ([]float64, error) {
	return e.embed(query), nil
}

// EmbedDocuments 实现 Embedder.EmbedDocuments。
func (e *LocalEmbedder) EmbedDocuments(_ context.Context, documents []string) ([][]float64, error) {
	vectors := make([][]float64, len(documents))
	for i, doc := range documents {
		vectors[i] = e.embed(doc)
	}
	return vectors, nil
}

// embed 把词元与二元组哈希进固定维度的桶，再做 L2 归一化。
func (e *LocalEmbedder) embed(text string) []float64 {
	vec := make([]float64, e.dimensions)
	tokens := tokenize(text)

	for i, tok := range tokens {
		vec[bucket(tok, e.dimensions)] += 1.0
		if i+1 < len(tokens) {
			vec[bucket(tok+"\x00"+tokens[i+1], e.dimensions)] += 0.5
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func bucket(token string, dims int) int {
	h := fnv.New32a()
	h.Write([]byte(token))
	return int(h.Sum32() % uint32(dims))
}

// tokenize 拆分文本：CJK 逐字成词元，拉丁字母与数字按连续段成词元。
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
