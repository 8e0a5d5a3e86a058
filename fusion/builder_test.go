package fusion

import (
	"strings"
	"testing"

	"github.com/BaSui01/policyrag/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph() types.GraphContext {
	return types.GraphContext{
		Entities: []types.Entity{
			{Name: "华侨经济文化合作试验区", Kind: types.EntityLocation, Confidence: 0.95},
			{Name: "试验区管委会", Kind: types.EntityOrg, Confidence: 0.9},
		},
		Policies: []types.PolicyRef{
			{Title: "华侨经济文化合作试验区总体方案", IssuingAgency: "国务院", PublishDate: "2014-09-15"},
		},
		Relations: []types.Relation{
			{Source: "试验区管委会", Target: "华侨经济文化合作试验区", Predicate: types.PredicateManages, Confidence: 0.9},
		},
	}
}

func sampleDocs() []types.RetrievedDocument {
	return []types.RetrievedDocument{
		{ID: "d1", Text: "试验区实行管委会负责制。", Similarity: 0.91},
		{ID: "d2", Text: "人才引进补贴标准另行规定。", Similarity: 0.72},
	}
}

func TestBuildGraphBlocksBeforeVectorBlocks(t *testing.T) {
	builder := NewBuilder(DefaultConfig(), nil)

	fused := builder.Build("试验区的管理机构是什么？", []string{"试验区"}, sampleGraph(), sampleDocs())

	require.NotEmpty(t, fused.Blocks)
	assert.Equal(t, types.SourceQuestion, fused.Blocks[0].Source)
	assert.True(t, fused.GraphEnhanced)

	lastGraph, firstVector := -1, -1
	for i, block := range fused.Blocks {
		switch block.Source {
		case types.SourceGraph:
			lastGraph = i
		case types.SourceVector:
			if firstVector < 0 {
				firstVector = i
			}
		}
	}
	require.GreaterOrEqual(t, lastGraph, 0)
	require.GreaterOrEqual(t, firstVector, 0)
	assert.Less(t, lastGraph, firstVector, "图谱块必须排在向量块之前")
}

func TestBuildIncludesQuestionAndEntitiesVerbatim(t *testing.T) {
	builder := NewBuilder(DefaultConfig(), nil)

	fused := builder.Build("管理机构是什么？", []string{"试验区", "管委会"}, types.EmptyGraphContext(), nil)

	text := fused.Text()
	assert.Contains(t, text, "管理机构是什么？")
	assert.Contains(t, text, "试验区、管委会")
}

func TestBuildBothSourcesEmpty(t *testing.T) {
	builder := NewBuilder(DefaultConfig(), nil)

	fused := builder.Build("问题？", nil, types.EmptyGraphContext(), nil)

	require.Len(t, fused.Blocks, 1)
	assert.Equal(t, types.SourceQuestion, fused.Blocks[0].Source)
	assert.False(t, fused.GraphEnhanced)
	assert.Empty(t, fused.Passages())
}

func TestBuildTruncatesVectorSnippets(t *testing.T) {
	builder := NewBuilder(DefaultConfig(), nil)

	long := strings.Repeat("政策内容。", 100)
	fused := builder.Build("问题？", nil, types.EmptyGraphContext(), []types.RetrievedDocument{
		{ID: "d", Text: long, Similarity: 0.8},
	})

	require.Len(t, fused.Blocks, 2)
	snippet := fused.Blocks[1].Text
	// 前缀 + 300 字符 + 省略号
	assert.LessOrEqual(t, len([]rune(snippet)), 300+20)
	assert.True(t, strings.HasSuffix(snippet, "…"))
}

func TestBuildCapsCounts(t *testing.T) {
	builder := NewBuilder(DefaultConfig(), nil)

	graph := sampleGraph()
	for i := 0; i < 6; i++ {
		graph.Entities = append(graph.Entities, types.Entity{Name: "实体" + strings.Repeat("甲", i+1), Kind: types.EntityOrg})
		graph.Policies = append(graph.Policies, types.PolicyRef{Title: "政策" + strings.Repeat("乙", i+1)})
	}
	docs := make([]types.RetrievedDocument, 6)
	for i := range docs {
		docs[i] = types.RetrievedDocument{ID: "d", Text: "片段内容。", Similarity: 0.5}
	}

	fused := builder.Build("问题？", nil, graph, docs)

	var graphEntityBlocks, policyBlocks, vectorBlocks int
	for _, block := range fused.Blocks {
		switch {
		case block.Source == types.SourceVector:
			vectorBlocks++
		case strings.HasPrefix(block.Text, "【图谱实体】"):
			graphEntityBlocks++
		case strings.HasPrefix(block.Text, "【相关政策】"):
			policyBlocks++
		}
	}
	assert.Equal(t, 3, graphEntityBlocks)
	assert.Equal(t, 2, policyBlocks)
	assert.Equal(t, 3, vectorBlocks)
}

func TestBuildRelationsPerEntityCapped(t *testing.T) {
	builder := NewBuilder(DefaultConfig(), nil)

	graph := types.EmptyGraphContext()
	graph.Entities = []types.Entity{{Name: "管委会", Kind: types.EntityOrg}}
	for _, target := range []string{"甲", "乙", "丙", "丁", "戊"} {
		graph.Relations = append(graph.Relations, types.Relation{
			Source: "管委会", Target: target, Predicate: types.PredicateManages,
		})
	}

	fused := builder.Build("问题？", nil, graph, nil)

	var entityBlock string
	for _, block := range fused.Blocks {
		if strings.HasPrefix(block.Text, "【图谱实体】") {
			entityBlock = block.Text
		}
	}
	require.NotEmpty(t, entityBlock)
	assert.Equal(t, 3, strings.Count(entityBlock, "\n- "))
}

func TestBuildOversizedQuestionAlwaysIncluded(t *testing.T) {
	builder := NewBuilder(DefaultConfig(), nil)

	question := strings.Repeat("问", 3001)
	fused := builder.Build(question, nil, types.EmptyGraphContext(), sampleDocs())

	require.NotEmpty(t, fused.Blocks)
	assert.Equal(t, types.SourceQuestion, fused.Blocks[0].Source)
	assert.True(t, strings.HasPrefix(fused.Blocks[0].Text, "【问题】"))
	assert.NotEmpty(t, fused.Text())

	// 问题块截断到预算内，图谱/向量块因预算耗尽被丢弃
	total := 0
	for _, block := range fused.Blocks {
		total += len([]rune(block.Text))
	}
	assert.LessOrEqual(t, total, DefaultConfig().MaxContextChars)
	require.Len(t, fused.Blocks, 1)
	assert.True(t, strings.HasSuffix(fused.Blocks[0].Text, "…"))
}

func TestBuildRespectsTotalBudget(t *testing.T) {
	config := DefaultConfig()
	config.MaxContextChars = 120
	builder := NewBuilder(config, nil)

	docs := []types.RetrievedDocument{
		{ID: "d1", Text: strings.Repeat("长片段", 40), Similarity: 0.9},
		{ID: "d2", Text: strings.Repeat("更长片段", 40), Similarity: 0.8},
	}
	fused := builder.Build("短问题？", nil, types.EmptyGraphContext(), docs)

	total := 0
	for _, block := range fused.Blocks {
		total += len([]rune(block.Text))
	}
	assert.LessOrEqual(t, total, 120)
}
