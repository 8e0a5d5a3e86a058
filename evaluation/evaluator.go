package evaluation

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/policyrag/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Generator 是评估器对生成模型的最小依赖。
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Embedder 是评估器对嵌入服务的最小依赖。
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
}

// EvaluatorConfig EARAG 六维评估配置。
type EvaluatorConfig struct {
	// EntityCoverageWeight 实体覆盖权重
	EntityCoverageWeight float64
	// FaithfulnessWeight 忠实度权重
	FaithfulnessWeight float64
	// RelevancyWeight 相关性权重
	RelevancyWeight float64
	// SufficiencyWeight 充分性权重
	SufficiencyWeight float64
	// HallucinationPenalty 幻觉惩罚权重（取正值，计算时作减项）
	HallucinationPenalty float64
	// DimensionTimeout 单维度评估超时
	DimensionTimeout time.Duration
}

// DefaultEvaluatorConfig 返回默认评估配置。
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		EntityCoverageWeight: 0.30,
		FaithfulnessWeight:   0.25,
		RelevancyWeight:      0.15,
		SufficiencyWeight:    0.15,
		HallucinationPenalty: 0.15,
		DimensionTimeout:     20 * time.Second,
	}
}

// 维度诊断阈值。
const (
	thresholdEntityCoverage = 0.8
	thresholdFaithfulness   = 0.7
	thresholdRelevancy      = 0.7
	thresholdSufficiency    = 0.8
	thresholdHallucination  = 0.2
)

// neutralScore 单维度失败时的中性默认分。
const neutralScore = 0.5

// Evaluator 实体感知的六维答案评估器（EARAG）。
// 各维度独立计算，单维失败退化为中性分并附诊断，不中断整体评估。
type Evaluator struct {
	config    EvaluatorConfig
	generator Generator
	embedder  Embedder
	extractor NameExtractor
	logger    *zap.Logger
}

// NewEvaluator 创建评估器。
func NewEvaluator(config EvaluatorConfig, generator Generator, embedder Embedder, extractor NameExtractor, logger *zap.Logger) *Evaluator {
	defaults := DefaultEvaluatorConfig()
	if config.EntityCoverageWeight <= 0 {
		config.EntityCoverageWeight = defaults.EntityCoverageWeight
	}
	if config.FaithfulnessWeight <= 0 {
		config.FaithfulnessWeight = defaults.FaithfulnessWeight
	}
	if config.RelevancyWeight <= 0 {
		config.RelevancyWeight = defaults.RelevancyWeight
	}
	if config.SufficiencyWeight <= 0 {
		config.SufficiencyWeight = defaults.SufficiencyWeight
	}
	if config.HallucinationPenalty <= 0 {
		config.HallucinationPenalty = defaults.HallucinationPenalty
	}
	if config.DimensionTimeout <= 0 {
		config.DimensionTimeout = defaults.DimensionTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		config:    config,
		generator: generator,
		embedder:  embedder,
		extractor: extractor,
		logger:    logger.With(zap.String("component", "earag_evaluator")),
	}
}

// Evaluate 对答案执行六维评估。
// graphEntities 是图谱中已验证的实体名集合（规范名）。
func (e *Evaluator) Evaluate(ctx context.Context, question, answer string, contextPassages []string, graphEntities map[string]struct{}) *types.EvaluationResult {
	qEntities, aEntities, cEntities := e.extractAllEntities(ctx, question, answer, contextPassages)

	qSet := nameSet(qEntities)
	aSet := nameSet(aEntities)
	cSet := nameSet(cEntities)

	var diagnosis []string
	scores := map[string]float64{}

	// 纯集合运算维度
	scores["entity_coverage"] = coverageRatio(qSet, aSet)
	scores["sufficiency"] = coverageRatio(qSet, cSet)

	unmatchedRatio := unmatchedEntityRatio(aSet, graphEntities)

	// LLM 与嵌入维度并行计算，各自超时独立
	var faithfulness, relevancy float64
	var faithNote, relevancyNote string
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		faithfulness, faithNote = e.faithfulness(groupCtx, answer, contextPassages, unmatchedRatio)
		return nil
	})
	group.Go(func() error {
		relevancy, relevancyNote = e.relevancy(groupCtx, question, answer)
		return nil
	})
	_ = group.Wait()
	for _, note := range []string{faithNote, relevancyNote} {
		if note != "" {
			diagnosis = append(diagnosis, note)
		}
	}

	scores["faithfulness"] = faithfulness
	scores["relevancy"] = relevancy
	scores["hallucination"] = clamp01((1 - faithfulness) + 0.5*unmatchedRatio)

	overall := clamp01(
		e.config.EntityCoverageWeight*scores["entity_coverage"] +
			e.config.FaithfulnessWeight*scores["faithfulness"] +
			e.config.RelevancyWeight*scores["relevancy"] +
			e.config.SufficiencyWeight*scores["sufficiency"] -
			e.config.HallucinationPenalty*scores["hallucination"],
	)
	quality := types.QualityLevelOf(overall)

	diagnosis = append(diagnosis, e.dimensionDiagnosis(scores, qSet, aSet, cSet, graphEntities)...)
	diagnosis = append([]string{
		fmt.Sprintf("整体评分 %.3f（%s）", overall, quality),
	}, diagnosis...)

	result := &types.EvaluationResult{
		DimensionScores: scores,
		OverallScore:    overall,
		Quality:         quality,
		Diagnosis:       diagnosis,
		EntityAnalysis: &types.EntityAnalysis{
			QuestionEntities: setToSlice(qSet),
			AnswerEntities:   setToSlice(aSet),
			MissingEntities:  setToSlice(difference(qSet, aSet)),
			UnverifiedInKG:   setToSlice(difference(aSet, graphEntities)),
		},
	}

	e.logger.Info("六维评估完成",
		zap.Float64("overall", overall),
		zap.String("quality", string(quality)),
	)
	return result
}

// extractAllEntities 并行抽取问题、答案与上下文实体。
// 任一路失败记空集，不阻断评估。
func (e *Evaluator) extractAllEntities(ctx context.Context, question, answer string, passages []string) (q, a, c []types.Entity) {
	contextText := strings.Join(capPassages(passages, 3), "\n")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		q = e.extractSafe(groupCtx, question, "question")
		return nil
	})
	group.Go(func() error {
		a = e.extractSafe(groupCtx, answer, "answer")
		return nil
	})
	group.Go(func() error {
		c = e.extractSafe(groupCtx, contextText, "context")
		return nil
	})
	_ = group.Wait()
	return q, a, c
}

func (e *Evaluator) extractSafe(ctx context.Context, text, role string) []types.Entity {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	entities, err := e.extractor.ExtractEntitiesFromQuestion(ctx, text)
	if err != nil {
		e.logger.Warn("实体抽取失败", zap.String("role", role), zap.Error(err))
		return nil
	}
	return entities
}

// faithfulness = LLM 自评分 − 0.1 × 未验证实体比例，下限 0。
// LLM 不可用时退化为中性分并返回诊断说明。
func (e *Evaluator) faithfulness(ctx context.Context, answer string, passages []string, unmatchedRatio float64) (float64, string) {
	contextText := strings.Join(capPassages(passages, 3), "\n")
	llmScore := neutralScore
	note := ""
	if strings.TrimSpace(contextText) != "" {
		score, err := e.llmFaithfulness(ctx, answer, contextText)
		if err != nil {
			e.logger.Warn("忠实度自评失败，使用中性分", zap.Error(err))
			note = "忠实度评估失败，采用中性默认分"
		} else {
			llmScore = score
		}
	}
	score := llmScore - 0.1*unmatchedRatio
	if score < 0 {
		score = 0
	}
	return score, note
}

const faithfulnessSystemPrompt = "你是严格的事实核查助手，只输出数字评分。"

var scorePattern = regexp.MustCompile(`(0?\.\d+|[01](\.\d+)?)`)

func (e *Evaluator) llmFaithfulness(ctx context.Context, answer, contextText string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.DimensionTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`评估答案对上下文的事实忠实度，0-1评分（0完全不符，1完全符合）：

上下文: %s

答案: %s

评估标准：
- 答案内容是否基于上下文
- 是否存在与上下文矛盾的信息
- 是否添加了上下文中没有的事实

只输出0到1之间的数字分数，例如：0.8`,
		truncateText(contextText, 500), truncateText(answer, 500))

	resp, err := e.generator.Generate(ctx, faithfulnessSystemPrompt, prompt)
	if err != nil {
		return 0, err
	}
	match := scorePattern.FindString(strings.TrimSpace(resp))
	if match == "" {
		return neutralScore, nil
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return neutralScore, nil
	}
	return clamp01(score), nil
}

// relevancy = 问题与答案嵌入的余弦相似度，下限 0。
// 嵌入不可用时退化为中性分并返回诊断说明。
func (e *Evaluator) relevancy(ctx context.Context, question, answer string) (float64, string) {
	ctx, cancel := context.WithTimeout(ctx, e.config.DimensionTimeout)
	defer cancel()

	qVec, err := e.embedder.EmbedQuery(ctx, question)
	if err == nil {
		var aVec []float64
		aVec, err = e.embedder.EmbedQuery(ctx, answer)
		if err == nil {
			return clamp01(cosine(qVec, aVec)), ""
		}
	}
	e.logger.Warn("相关性嵌入计算失败，使用中性分", zap.Error(err))
	return neutralScore, "相关性评估失败，采用中性默认分"
}

// dimensionDiagnosis 对低于阈值的维度生成诊断条目。
func (e *Evaluator) dimensionDiagnosis(scores map[string]float64, qSet, aSet, cSet, graphEntities map[string]struct{}) []string {
	var out []string
	if scores["entity_coverage"] < thresholdEntityCoverage {
		missing := setToSlice(difference(qSet, aSet))
		if len(missing) > 0 {
			out = append(out, "实体覆盖不足，遗漏关键实体: "+strings.Join(missing, "、"))
		} else {
			out = append(out, "实体覆盖不足")
		}
	}
	if scores["faithfulness"] < thresholdFaithfulness {
		out = append(out, "事实忠实度较低，可能存在错误信息")
	}
	if scores["relevancy"] < thresholdRelevancy {
		out = append(out, "答案与问题相关性较低")
	}
	if scores["sufficiency"] < thresholdSufficiency {
		uncovered := setToSlice(difference(qSet, cSet))
		if len(uncovered) > 0 {
			out = append(out, "上下文覆盖不足，建议补充检索: "+strings.Join(uncovered, "、"))
		} else {
			out = append(out, "上下文覆盖不足")
		}
	}
	if scores["hallucination"] > thresholdHallucination {
		out = append(out, "检测到潜在幻觉内容")
		if unverified := setToSlice(difference(aSet, graphEntities)); len(unverified) > 0 {
			out = append(out, "包含未验证实体: "+strings.Join(unverified, "、"))
		}
	}
	return out
}

// coverageRatio = |q ∩ ref| / |q|，问题没有实体时记满分。
func coverageRatio(q, ref map[string]struct{}) float64 {
	if len(q) == 0 {
		return 1.0
	}
	covered := 0
	for name := range q {
		if _, ok := ref[name]; ok {
			covered++
		}
	}
	return float64(covered) / float64(len(q))
}

// unmatchedEntityRatio = |answer − graph| / |answer|，答案没有实体时为 0。
func unmatchedEntityRatio(aSet, graphEntities map[string]struct{}) float64 {
	if len(aSet) == 0 {
		return 0
	}
	unmatched := 0
	for name := range aSet {
		if _, ok := graphEntities[name]; !ok {
			unmatched++
		}
	}
	return float64(unmatched) / float64(len(aSet))
}

func nameSet(entities []types.Entity) map[string]struct{} {
	set := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if name := types.NormalizeName(e.Name); name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

func difference(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := b[k]; !ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func capPassages(passages []string, n int) []string {
	if len(passages) > n {
		return passages[:n]
	}
	return passages
}

func truncateText(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func cosine(a, b []float64) float64 {
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
