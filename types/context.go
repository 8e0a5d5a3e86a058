package types

import "strings"

// GraphContext 是图谱检索的聚合结果。
// 检索失败时返回 EmptyGraphContext()，调用方永远不会拿到 nil 切片语义上的"未知"。
type GraphContext struct {
	Entities  []Entity    `json:"entities"`
	Policies  []PolicyRef `json:"policies"`
	Relations []Relation  `json:"relations"`
}

// EmptyGraphContext 返回各字段均为空切片的图谱上下文。
func EmptyGraphContext() GraphContext {
	return GraphContext{
		Entities:  []Entity{},
		Policies:  []PolicyRef{},
		Relations: []Relation{},
	}
}

// Empty 判断图谱上下文是否不含任何信号。
func (g GraphContext) Empty() bool {
	return len(g.Entities) == 0 && len(g.Policies) == 0 && len(g.Relations) == 0
}

// RelationsOf 返回以指定实体为源端的关系（按规范名匹配）。
func (g GraphContext) RelationsOf(entity string) []Relation {
	key := NormalizeName(entity)
	var out []Relation
	for _, r := range g.Relations {
		if NormalizeName(r.Source) == key {
			out = append(out, r)
		}
	}
	return out
}

// ContextSource 标识上下文块的来源模态。
type ContextSource string

const (
	SourceQuestion ContextSource = "question"
	SourceGraph    ContextSource = "graph"
	SourceVector   ContextSource = "vector"
)

// ContextBlock 是融合上下文中的一个块。
type ContextBlock struct {
	Source     ContextSource `json:"source"`
	Text       string        `json:"text"`
	Similarity float64       `json:"similarity,omitempty"`
}

// FusedContext 是融合后的 LLM 上下文。块的顺序即最终提示词中的顺序：
// 问题块在前，图谱块先于向量块。
type FusedContext struct {
	Question      string         `json:"question"`
	Blocks        []ContextBlock `json:"blocks"`
	GraphEnhanced bool           `json:"graph_enhanced"`
}

// Text 将所有块拼接为提交给 LLM 的上下文文本。
func (f FusedContext) Text() string {
	parts := make([]string, 0, len(f.Blocks))
	for _, b := range f.Blocks {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Passages 返回图谱与向量块的纯文本，供评估器作为检索上下文使用。
func (f FusedContext) Passages() []string {
	var out []string
	for _, b := range f.Blocks {
		if b.Source == SourceQuestion || b.Text == "" {
			continue
		}
		out = append(out, b.Text)
	}
	return out
}
