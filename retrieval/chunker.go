package retrieval

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer 统计文本的 Token 数，供分块器做预算。
type Tokenizer interface {
	CountTokens(text string) int
}

// TiktokenTokenizer 基于 tiktoken 编码的 Token 计数器。
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenTokenizer 创建 tiktoken 计数器，默认 cl100k_base 编码。
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenTokenizer{encoding: enc}, nil
}

// CountTokens 实现 Tokenizer.CountTokens。
func (t *TiktokenTokenizer) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// SimpleTokenizer 按字符近似估算 Token，无外部依赖，
// CJK 文本约 1 字 1 Token，其余约 4 字符 1 Token。
type SimpleTokenizer struct{}

// CountTokens 实现 Tokenizer.CountTokens。
func (SimpleTokenizer) CountTokens(text string) int {
	var cjk, other int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		} else {
			other++
		}
	}
	count := cjk + (other+3)/4
	if count == 0 && text != "" {
		count = 1
	}
	return count
}

// ChunkerConfig 分块参数，单位 Token。
type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultChunkerConfig 返回默认分块参数。
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:    512,
		ChunkOverlap: 50,
	}
}

// Chunk 是一个分块结果。
type Chunk struct {
	Text  string
	Index int
}

// Chunker 把长文档切成带重叠的分块，尽量在句子边界断开。
type Chunker struct {
	config    ChunkerConfig
	tokenizer Tokenizer
}

// NewChunker 创建分块器，tokenizer 为 nil 时使用 SimpleTokenizer。
func NewChunker(config ChunkerConfig, tokenizer Tokenizer) *Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 512
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 10
	}
	if tokenizer == nil {
		tokenizer = SimpleTokenizer{}
	}
	return &Chunker{config: config, tokenizer: tokenizer}
}

// Split 切分文档。空白文档返回空切片。
func (c *Chunker) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return []Chunk{}
	}
	if c.tokenizer.CountTokens(text) <= c.config.ChunkSize {
		return []Chunk{{Text: text, Index: 0}}
	}

	sentences := splitSentences(text)
	var chunks []Chunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunkText := strings.TrimSpace(strings.Join(current, ""))
		if chunkText != "" {
			chunks = append(chunks, Chunk{Text: chunkText, Index: len(chunks)})
		}
		// 从尾部回收句子作为下一块的重叠
		overlap, overlapTokens := c.tailOverlap(current)
		current = overlap
		currentTokens = overlapTokens
	}

	for _, sentence := range sentences {
		tokens := c.tokenizer.CountTokens(sentence)
		if currentTokens+tokens > c.config.ChunkSize && len(current) > 0 {
			flush()
		}
		// 超长单句硬切
		if tokens > c.config.ChunkSize {
			for _, piece := range hardSplit(sentence, c.tokenizer, c.config.ChunkSize) {
				current = append(current, piece)
				currentTokens += c.tokenizer.CountTokens(piece)
				flush()
			}
			continue
		}
		current = append(current, sentence)
		currentTokens += tokens
	}
	if len(current) > 0 {
		chunkText := strings.TrimSpace(strings.Join(current, ""))
		if chunkText != "" {
			chunks = append(chunks, Chunk{Text: chunkText, Index: len(chunks)})
		}
	}
	return chunks
}

// tailOverlap 从当前块尾部取不超过重叠预算的整句。
func (c *Chunker) tailOverlap(sentences []string) ([]string, int) {
	if c.config.ChunkOverlap <= 0 {
		return nil, 0
	}
	var overlap []string
	tokens := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		n := c.tokenizer.CountTokens(sentences[i])
		if tokens+n > c.config.ChunkOverlap {
			break
		}
		overlap = append([]string{sentences[i]}, overlap...)
		tokens += n
	}
	return overlap, tokens
}

var sentenceEnders = map[rune]struct{}{
	'。': {}, '！': {}, '？': {}, '；': {},
	'.': {}, '!': {}, '?': {}, '\n': {},
}

// splitSentences 按中英文句末标点切句，保留标点。
func splitSentences(text string) []string {
	var sentences []string
	var builder strings.Builder
	for _, r := range text {
		builder.WriteRune(r)
		if _, ok := sentenceEnders[r]; ok {
			if s := builder.String(); strings.TrimSpace(s) != "" {
				sentences = append(sentences, s)
			}
			builder.Reset()
		}
	}
	if s := builder.String(); strings.TrimSpace(s) != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// hardSplit 把超长句按 Token 预算硬切成若干段。
// 先按字符数近似步长，再用 Token 数校验收缩。
func hardSplit(sentence string, tokenizer Tokenizer, budget int) []string {
	var pieces []string
	runes := []rune(sentence)
	for len(runes) > 0 {
		end := budget
		if end > len(runes) {
			end = len(runes)
		}
		piece := string(runes[:end])
		for end > 1 && tokenizer.CountTokens(piece) > budget {
			end = end * 3 / 4
			piece = string(runes[:end])
		}
		pieces = append(pieces, piece)
		runes = runes[end:]
	}
	return pieces
}
