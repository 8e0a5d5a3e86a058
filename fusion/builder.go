// 软件包 fusion 把向量检索与图谱检索的结果融合为有界的 LLM 上下文。
//
// 融合顺序是契约：问题块在最前，图谱块先于向量块。
// 结构化事实精度更高，前置可以锚定模型注意力。
package fusion

import (
	"fmt"
	"strings"

	"github.com/BaSui01/policyrag/types"
	"go.uber.org/zap"
)

// Config 融合策略参数，长度单位均为字符（rune）。
type Config struct {
	// MaxVectorSnippets 向量片段数上限
	MaxVectorSnippets int
	// VectorSnippetChars 单个向量片段截断长度
	VectorSnippetChars int
	// MaxGraphEntities 图谱实体数上限
	MaxGraphEntities int
	// MaxRelationsPerEntity 每个实体展示的关系数上限
	MaxRelationsPerEntity int
	// MaxPolicies 政策条目数上限
	MaxPolicies int
	// PolicyChars 政策摘要截断长度
	PolicyChars int
	// MaxContextChars 整体上下文预算
	MaxContextChars int
}

// DefaultConfig 返回默认融合参数。
func DefaultConfig() Config {
	return Config{
		MaxVectorSnippets:     3,
		VectorSnippetChars:    300,
		MaxGraphEntities:      3,
		MaxRelationsPerEntity: 3,
		MaxPolicies:           2,
		PolicyChars:           200,
		MaxContextChars:       3000,
	}
}

// Builder 上下文融合器。
type Builder struct {
	config Config
	logger *zap.Logger
}

// NewBuilder 创建融合器，零值配置字段回落到默认值。
func NewBuilder(config Config, logger *zap.Logger) *Builder {
	defaults := DefaultConfig()
	if config.MaxVectorSnippets <= 0 {
		config.MaxVectorSnippets = defaults.MaxVectorSnippets
	}
	if config.VectorSnippetChars <= 0 {
		config.VectorSnippetChars = defaults.VectorSnippetChars
	}
	if config.MaxGraphEntities <= 0 {
		config.MaxGraphEntities = defaults.MaxGraphEntities
	}
	if config.MaxRelationsPerEntity <= 0 {
		config.MaxRelationsPerEntity = defaults.MaxRelationsPerEntity
	}
	if config.MaxPolicies <= 0 {
		config.MaxPolicies = defaults.MaxPolicies
	}
	if config.PolicyChars <= 0 {
		config.PolicyChars = defaults.PolicyChars
	}
	if config.MaxContextChars <= 0 {
		config.MaxContextChars = defaults.MaxContextChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		config: config,
		logger: logger.With(zap.String("component", "context_fusion")),
	}
}

// Build 按融合策略组装上下文：
//  1. 问题块无条件收录，超长时截断到预算内；
//  2. 图谱块（实体及其关系、政策摘要）排在向量块之前；
//  3. 向量片段截断并标注相似度；
//  4. 图谱块与向量块超出剩余预算时被丢弃；
//  5. 两路都为空时上下文只剩问题本身，链路不中断。
func (b *Builder) Build(question string, questionEntities []string, graph types.GraphContext, docs []types.RetrievedDocument) types.FusedContext {
	fused := types.FusedContext{
		Question:      question,
		GraphEnhanced: !graph.Empty(),
	}

	budget := b.config.MaxContextChars

	qText := questionBlock(question, questionEntities)
	if len([]rune(qText)) > budget {
		qText = truncateRunes(qText, budget-1)
	}
	fused.Blocks = append(fused.Blocks, types.ContextBlock{
		Source: types.SourceQuestion,
		Text:   qText,
	})
	budget -= len([]rune(qText))

	appendBlock := func(block types.ContextBlock) {
		cost := len([]rune(block.Text))
		if cost == 0 || cost > budget {
			return
		}
		fused.Blocks = append(fused.Blocks, block)
		budget -= cost
	}

	for _, block := range b.graphBlocks(graph) {
		appendBlock(block)
	}
	for _, block := range b.vectorBlocks(docs) {
		appendBlock(block)
	}

	if len(fused.Blocks) <= 1 {
		b.logger.Warn("融合上下文仅包含问题本身",
			zap.String("question", question),
		)
	}
	return fused
}

func questionBlock(question string, entities []string) string {
	var builder strings.Builder
	builder.WriteString("【问题】")
	builder.WriteString(question)
	if len(entities) > 0 {
		builder.WriteString("\n【问题实体】")
		builder.WriteString(strings.Join(entities, "、"))
	}
	return builder.String()
}

// graphBlocks 组装图谱块：每个实体一块（含关系），每条政策一块。
func (b *Builder) graphBlocks(graph types.GraphContext) []types.ContextBlock {
	var blocks []types.ContextBlock

	entities := graph.Entities
	if len(entities) > b.config.MaxGraphEntities {
		entities = entities[:b.config.MaxGraphEntities]
	}
	for _, entity := range entities {
		var builder strings.Builder
		fmt.Fprintf(&builder, "【图谱实体】%s（%s）", entity.Name, entity.Kind)

		relations := graph.RelationsOf(entity.Name)
		if len(relations) > b.config.MaxRelationsPerEntity {
			relations = relations[:b.config.MaxRelationsPerEntity]
		}
		for _, r := range relations {
			fmt.Fprintf(&builder, "\n- %s %s %s", r.Source, r.Predicate, r.Target)
		}
		blocks = append(blocks, types.ContextBlock{
			Source: types.SourceGraph,
			Text:   builder.String(),
		})
	}

	policies := graph.Policies
	if len(policies) > b.config.MaxPolicies {
		policies = policies[:b.config.MaxPolicies]
	}
	for _, policy := range policies {
		blocks = append(blocks, types.ContextBlock{
			Source: types.SourceGraph,
			Text:   "【相关政策】" + truncateRunes(policy.Summary(), b.config.PolicyChars),
		})
	}
	return blocks
}

// vectorBlocks 组装向量块，标注相似度。
func (b *Builder) vectorBlocks(docs []types.RetrievedDocument) []types.ContextBlock {
	if len(docs) > b.config.MaxVectorSnippets {
		docs = docs[:b.config.MaxVectorSnippets]
	}
	blocks := make([]types.ContextBlock, 0, len(docs))
	for _, doc := range docs {
		text := strings.TrimSpace(doc.Text)
		if text == "" {
			continue
		}
		blocks = append(blocks, types.ContextBlock{
			Source:     types.SourceVector,
			Text:       fmt.Sprintf("【检索片段 %.2f】%s", doc.Similarity, truncateRunes(text, b.config.VectorSnippetChars)),
			Similarity: doc.Similarity,
		})
	}
	return blocks
}

// truncateRunes 按字符截断，带省略号。
func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
