package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/policyrag/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGen 依次返回预设响应。
type scriptedGen struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (g *scriptedGen) Generate(_ context.Context, _, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if g.calls >= len(g.responses) {
		return "", errors.New("no more scripted responses")
	}
	resp := g.responses[g.calls]
	g.calls++
	return resp, nil
}

func TestExtractEntitiesParsesProseWrappedJSON(t *testing.T) {
	gen := &scriptedGen{responses: []string{
		`好的，以下是提取结果：
{"entities": [
  {"text": "华侨经济文化合作试验区", "label": "LOCATION", "confidence": 0.95},
  {"text": "管理委员会", "label": "ORG", "confidence": 0.85},
  {"text": "低置信实体", "label": "CONCEPT", "confidence": 0.2}
]}
希望对你有帮助。`,
	}}
	ex := NewExtractor(gen, DefaultConfig(), nil)

	entities, err := ex.ExtractEntities(context.Background(), "华侨经济文化合作试验区管理委员会负责……")
	require.NoError(t, err)
	require.Len(t, entities, 2)

	assert.Equal(t, "华侨经济文化合作试验区", entities[0].Name)
	assert.Equal(t, types.EntityLocation, entities[0].Kind)
	assert.Equal(t, "管理委员会", entities[1].Name)
	assert.Equal(t, types.EntityOrg, entities[1].Kind)
}

func TestExtractEntitiesLLMFailureFallsBackToRules(t *testing.T) {
	gen := &scriptedGen{err: types.NewError(types.ErrUpstreamError, "down")}
	ex := NewExtractor(gen, DefaultConfig(), nil)

	entities, err := ex.ExtractEntities(context.Background(),
		"华侨经济文化合作试验区管理委员会负责试验区的开发建设工作。")
	require.NoError(t, err)
	require.NotEmpty(t, entities)

	names := entityNames(entities)
	assert.Contains(t, names, "华侨经济文化合作试验区")
	for _, e := range entities {
		assert.InDelta(t, 0.5, e.Confidence, 1e-9)
	}
}

func TestExtractEntitiesGarbageResponseFallsBackToRules(t *testing.T) {
	gen := &scriptedGen{responses: []string{"完全不是JSON的回答"}}
	ex := NewExtractor(gen, DefaultConfig(), nil)

	entities, err := ex.ExtractEntities(context.Background(), "市政府发布新政策。")
	require.NoError(t, err)
	assert.NotEmpty(t, entities)
}

func TestExtractEntitiesEmptyText(t *testing.T) {
	ex := NewExtractor(&scriptedGen{}, DefaultConfig(), nil)
	entities, err := ex.ExtractEntities(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestExtractRelationsValidatesEndpoints(t *testing.T) {
	gen := &scriptedGen{responses: []string{
		`{"relations": [
  {"source": "管委会", "target": "试验区", "relation": "MANAGES", "confidence": 0.9},
  {"source": "管委会", "target": "不存在的实体", "relation": "APPROVES", "confidence": 0.9},
  {"source": "试验区", "target": "试验区", "relation": "CONTAINS", "confidence": 0.9}
]}`,
	}}
	ex := NewExtractor(gen, DefaultConfig(), nil)

	entities := []types.Entity{
		{Name: "管委会", Kind: types.EntityOrg, Confidence: 0.9},
		{Name: "试验区", Kind: types.EntityLocation, Confidence: 0.9},
	}
	relations, err := ex.ExtractRelations(context.Background(), "……", entities)
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, types.PredicateManages, relations[0].Predicate)
}

func TestExtractRelationsTooFewEntities(t *testing.T) {
	gen := &scriptedGen{}
	ex := NewExtractor(gen, DefaultConfig(), nil)

	relations, err := ex.ExtractRelations(context.Background(), "文本",
		[]types.Entity{{Name: "唯一实体"}})
	require.NoError(t, err)
	assert.Empty(t, relations)
	assert.Zero(t, gen.calls)
}

func TestExtractRelationsLLMFailureReturnsEmpty(t *testing.T) {
	gen := &scriptedGen{err: errors.New("down")}
	ex := NewExtractor(gen, DefaultConfig(), nil)

	relations, err := ex.ExtractRelations(context.Background(), "文本", []types.Entity{
		{Name: "甲"}, {Name: "乙"},
	})
	require.NoError(t, err)
	assert.Empty(t, relations)
}

func TestExtractEntitiesFromQuestion(t *testing.T) {
	gen := &scriptedGen{responses: []string{
		`{"entities": ["华侨经济文化合作试验区", "管理机构", ""]}`,
	}}
	ex := NewExtractor(gen, DefaultConfig(), nil)

	entities, err := ex.ExtractEntitiesFromQuestion(context.Background(),
		"华侨经济文化合作试验区的管理机构是什么？")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "华侨经济文化合作试验区", entities[0].Name)
}

func TestExtractFromDocument(t *testing.T) {
	gen := &scriptedGen{responses: []string{
		`{"entities": [
  {"text": "市政府", "label": "ORG", "confidence": 0.9},
  {"text": "产业扶持政策", "label": "REGULATION", "confidence": 0.85}
]}`,
		`{"relations": [
  {"source": "市政府", "target": "产业扶持政策", "relation": "PUBLISHES", "confidence": 0.9}
]}`,
	}}
	ex := NewExtractor(gen, DefaultConfig(), nil)

	result, err := ex.ExtractFromDocument(context.Background(), DocumentInput{
		ID:      "doc-1",
		Title:   "产业扶持政策",
		Content: "市政府发布产业扶持政策……",
	})
	require.NoError(t, err)
	assert.Len(t, result.Entities, 2)
	require.Len(t, result.Relations, 1)
	assert.Equal(t, types.PredicatePublishes, result.Relations[0].Predicate)
}

func TestRuleExtractorLatinRuns(t *testing.T) {
	r := newRuleExtractor(0.5)
	entities := r.extractEntities("The State Council issued new guidance for local agencies.")

	names := entityNames(entities)
	assert.Contains(t, names, "State Council")
}

func TestExtractJSON(t *testing.T) {
	out, err := extractJSON(`前缀 {"a": {"b": 1}} 后缀`)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}}`, out)

	_, err = extractJSON("没有大括号")
	assert.Error(t, err)
}

func entityNames(entities []types.Entity) []string {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	return names
}
