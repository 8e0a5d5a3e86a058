package evaluation

import (
	"context"
	"strings"
	"testing"

	"github.com/BaSui01/policyrag/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vocabExtractor 从固定词表中找出现于文本的实体。
type vocabExtractor struct {
	vocab []string
	err   error
}

func (v *vocabExtractor) ExtractEntitiesFromQuestion(_ context.Context, text string) ([]types.Entity, error) {
	if v.err != nil {
		return nil, v.err
	}
	var out []types.Entity
	for _, name := range v.vocab {
		if strings.Contains(text, name) {
			out = append(out, types.Entity{Name: name, Kind: types.EntityConcept, Confidence: 0.8})
		}
	}
	return out, nil
}

// mapVerifier 按预置映射核对关系。
type mapVerifier struct {
	known map[string]bool
}

func (m *mapVerifier) VerifyRelations(_ context.Context, pairs []types.Relation) map[string]bool {
	out := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		key := types.NormalizeName(p.Source) + "|" + types.NormalizeName(p.Target)
		out[key] = m.known[key]
	}
	return out
}

func sampleGraphContext() types.GraphContext {
	return types.GraphContext{
		Entities: []types.Entity{
			{Name: "试验区管委会", Kind: types.EntityOrg},
			{Name: "华侨试验区", Kind: types.EntityLocation},
		},
		Policies: []types.PolicyRef{
			{Title: "总体方案", RelatedEntities: []string{"国务院"}},
		},
		Relations: []types.Relation{},
	}
}

func newTestDetector(vocab []string, known map[string]bool) *Detector {
	return NewDetector(DefaultDetectorConfig(),
		&vocabExtractor{vocab: vocab},
		&mapVerifier{known: known},
		nil,
	)
}

func TestDetectGroundedAnswerScoresHigh(t *testing.T) {
	detector := newTestDetector(
		[]string{"试验区管委会", "华侨试验区"},
		map[string]bool{"试验区管委会|华侨试验区": true},
	)

	answer := "根据总体方案的规定，试验区管委会管理华侨试验区。"
	docs := []types.RetrievedDocument{
		{Text: "试验区管委会管理华侨试验区，依据总体方案的规定。", Similarity: 0.9},
	}

	result := detector.Detect(context.Background(), answer, "华侨试验区的管理机构是什么？", docs, sampleGraphContext())

	assert.InDelta(t, 1.0, result.DimensionScores["entity_consistency"], 1e-9)
	assert.InDelta(t, 1.0, result.DimensionScores["relation_verification"], 1e-9)
	assert.Greater(t, result.DimensionScores["content_overlap"], 0.5)
	assert.GreaterOrEqual(t, result.Confidence, 0.7)
	assert.True(t, result.IsReliable)
	assert.NotEqual(t, RiskHigh, result.RiskLevel)
}

func TestDetectNoAnswerEntitiesFullScore(t *testing.T) {
	detector := newTestDetector([]string{"不会出现的实体"}, nil)

	result := detector.Detect(context.Background(),
		"这个问题无法根据现有资料回答。", "问题？", nil, types.EmptyGraphContext())

	assert.InDelta(t, 1.0, result.DimensionScores["entity_consistency"], 1e-9)
}

func TestDetectUnverifiedRelationClaims(t *testing.T) {
	detector := newTestDetector(nil, map[string]bool{})

	answer := "财政部发布产业扶持政策。"
	result := detector.Detect(context.Background(), answer, "问题？", nil, types.EmptyGraphContext())

	assert.Zero(t, result.DimensionScores["relation_verification"])
	assert.Contains(t, result.Warnings, "答案中的关系描述可能不准确")
}

func TestDetectNoRelationClaimsFullScore(t *testing.T) {
	detector := newTestDetector(nil, nil)

	result := detector.Detect(context.Background(),
		"这是一段没有任何主谓宾关系表述的平铺文字内容。", "问题？", nil, types.EmptyGraphContext())

	assert.InDelta(t, 1.0, result.DimensionScores["relation_verification"], 1e-9)
}

func TestDetectNoDocsConservativeOverlap(t *testing.T) {
	detector := newTestDetector(nil, nil)

	result := detector.Detect(context.Background(),
		"没有参考文档支撑的较长回答内容在此。", "问题？", nil, types.EmptyGraphContext())

	assert.InDelta(t, 0.3, result.DimensionScores["content_overlap"], 1e-9)
}

func TestDetectShortAnswerLowCoherence(t *testing.T) {
	detector := newTestDetector(nil, nil)

	result := detector.Detect(context.Background(), "不知道。", "问题？", nil, types.EmptyGraphContext())

	assert.InDelta(t, 0.2, result.DimensionScores["semantic_coherence"], 1e-9)
	assert.Contains(t, result.Warnings, "答案的逻辑连贯性有待改善")
}

func TestDetectRiskLevels(t *testing.T) {
	assert.Equal(t, RiskLow, riskLevelOf(0.85))
	assert.Equal(t, RiskLow, riskLevelOf(0.8))
	assert.Equal(t, RiskMedium, riskLevelOf(0.65))
	assert.Equal(t, RiskMedium, riskLevelOf(0.5))
	assert.Equal(t, RiskHigh, riskLevelOf(0.49))
}

func TestDetectExtractorFailureConservative(t *testing.T) {
	detector := NewDetector(DefaultDetectorConfig(),
		&vocabExtractor{err: types.NewError(types.ErrExtraction, "down")},
		&mapVerifier{}, nil)

	result := detector.Detect(context.Background(),
		"较长的答案文本，含有若干实体名称与内容。", "问题？", nil, types.EmptyGraphContext())

	assert.InDelta(t, 0.3, result.DimensionScores["entity_consistency"], 1e-9)
}

func TestExtractRelationClaims(t *testing.T) {
	claims := extractRelationClaims("试验区管委会管理华侨试验区。汕头市政府发布产业政策。")
	require.Len(t, claims, 2)

	predicates := map[types.RelationPredicate]bool{}
	for _, c := range claims {
		predicates[c.Predicate] = true
	}
	assert.True(t, predicates[types.PredicateManages])
	assert.True(t, predicates[types.PredicatePublishes])
}

func TestConfidenceExplanation(t *testing.T) {
	detector := newTestDetector(nil, nil)

	explanation := detector.ConfidenceExplanation(DetectionResult{
		Confidence: 0.85,
		DimensionScores: map[string]float64{
			"entity_consistency":    0.9,
			"relation_verification": 0.8,
			"content_overlap":       0.7,
		},
	})
	assert.Contains(t, explanation, "较高可信度")
	assert.Contains(t, explanation, "实体信息已验证")
	assert.True(t, strings.HasSuffix(explanation, "。"))
}
