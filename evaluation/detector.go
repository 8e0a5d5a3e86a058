package evaluation

import (
	"context"
	"regexp"
	"strings"

	"github.com/BaSui01/policyrag/types"
	"go.uber.org/zap"
)

// RiskLevel 幻觉风险等级。
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// NameExtractor 是评估器对实体抽取的最小依赖。
type NameExtractor interface {
	ExtractEntitiesFromQuestion(ctx context.Context, text string) ([]types.Entity, error)
}

// RelationVerifier 核对关系是否存在于图谱中，
// 返回 "source|target"（规范名）到存在性的映射。
type RelationVerifier interface {
	VerifyRelations(ctx context.Context, pairs []types.Relation) map[string]bool
}

// DetectorConfig 幻觉检测配置。
type DetectorConfig struct {
	// EntityConsistencyWeight 实体一致性权重
	EntityConsistencyWeight float64
	// RelationVerificationWeight 关系验证权重
	RelationVerificationWeight float64
	// ContentOverlapWeight 内容重叠权重
	ContentOverlapWeight float64
	// SemanticCoherenceWeight 语义连贯权重
	SemanticCoherenceWeight float64
	// ReliabilityThreshold 可靠性阈值
	ReliabilityThreshold float64
}

// DefaultDetectorConfig 返回默认检测配置。
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		EntityConsistencyWeight:    0.4,
		RelationVerificationWeight: 0.3,
		ContentOverlapWeight:       0.2,
		SemanticCoherenceWeight:    0.1,
		ReliabilityThreshold:       0.7,
	}
}

// DetectionResult 幻觉检测结果。
type DetectionResult struct {
	Confidence      float64            `json:"confidence"`
	RiskLevel       RiskLevel          `json:"risk_level"`
	IsReliable      bool               `json:"is_reliable"`
	DimensionScores map[string]float64 `json:"dimension_scores"`
	Warnings        []string           `json:"warnings,omitempty"`
}

// Detector 基于图谱核对的快速幻觉检测器，四个维度加权求和。
// 任一维度内部失败都退化为该维度的保守分值，检测本身不报错。
type Detector struct {
	config    DetectorConfig
	extractor NameExtractor
	verifier  RelationVerifier
	logger    *zap.Logger
}

// NewDetector 创建幻觉检测器。
func NewDetector(config DetectorConfig, extractor NameExtractor, verifier RelationVerifier, logger *zap.Logger) *Detector {
	defaults := DefaultDetectorConfig()
	if config.EntityConsistencyWeight <= 0 {
		config.EntityConsistencyWeight = defaults.EntityConsistencyWeight
	}
	if config.RelationVerificationWeight <= 0 {
		config.RelationVerificationWeight = defaults.RelationVerificationWeight
	}
	if config.ContentOverlapWeight <= 0 {
		config.ContentOverlapWeight = defaults.ContentOverlapWeight
	}
	if config.SemanticCoherenceWeight <= 0 {
		config.SemanticCoherenceWeight = defaults.SemanticCoherenceWeight
	}
	if config.ReliabilityThreshold <= 0 {
		config.ReliabilityThreshold = defaults.ReliabilityThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		config:    config,
		extractor: extractor,
		verifier:  verifier,
		logger:    logger.With(zap.String("component", "hallucination_detector")),
	}
}

// Detect 对答案做四维幻觉检测。
func (d *Detector) Detect(ctx context.Context, answer, question string, docs []types.RetrievedDocument, graph types.GraphContext) DetectionResult {
	entityScore := d.entityConsistency(ctx, answer, graph)
	relationScore := d.relationVerification(ctx, answer)
	overlapScore := d.contentOverlap(answer, docs)
	coherenceScore := d.semanticCoherence(answer, question)

	confidence := clamp01(
		entityScore*d.config.EntityConsistencyWeight +
			relationScore*d.config.RelationVerificationWeight +
			overlapScore*d.config.ContentOverlapWeight +
			coherenceScore*d.config.SemanticCoherenceWeight,
	)

	result := DetectionResult{
		Confidence: confidence,
		RiskLevel:  riskLevelOf(confidence),
		IsReliable: confidence >= d.config.ReliabilityThreshold,
		DimensionScores: map[string]float64{
			"entity_consistency":    entityScore,
			"relation_verification": relationScore,
			"content_overlap":       overlapScore,
			"semantic_coherence":    coherenceScore,
		},
		Warnings: buildWarnings(entityScore, relationScore, overlapScore, coherenceScore),
	}

	d.logger.Info("幻觉检测完成",
		zap.Float64("confidence", confidence),
		zap.String("risk_level", string(result.RiskLevel)),
	)
	return result
}

// entityConsistency 答案实体在图谱上下文中的验证比例。
// 答案不含实体时记满分；完全匹配计 1，包含关系的部分匹配计 0.5。
func (d *Detector) entityConsistency(ctx context.Context, answer string, graph types.GraphContext) float64 {
	entities, err := d.extractor.ExtractEntitiesFromQuestion(ctx, answer)
	if err != nil {
		d.logger.Warn("答案实体抽取失败", zap.Error(err))
		return 0.3
	}
	if len(entities) == 0 {
		return 1.0
	}

	known := make(map[string]struct{})
	for _, e := range graph.Entities {
		known[types.NormalizeName(e.Name)] = struct{}{}
		for _, alias := range e.Aliases {
			known[types.NormalizeName(alias)] = struct{}{}
		}
	}
	for _, p := range graph.Policies {
		for _, name := range p.RelatedEntities {
			known[types.NormalizeName(name)] = struct{}{}
		}
	}

	var verified float64
	for _, entity := range entities {
		name := types.NormalizeName(entity.Name)
		if _, ok := known[name]; ok {
			verified++
			continue
		}
		for k := range known {
			if len([]rune(name)) > 2 && (strings.Contains(k, name) || strings.Contains(name, k)) {
				verified += 0.5
				break
			}
		}
	}
	return clamp01(verified / float64(len(entities)))
}

// relationClaimPatterns 从答案中识别主谓宾表述的模式。
var relationClaimPatterns = []struct {
	re        *regexp.Regexp
	predicate types.RelationPredicate
}{
	{regexp.MustCompile(`([^，。！？\n]+?)负责([^，。！？\n]+)`), types.PredicateResponsibleFor},
	{regexp.MustCompile(`([^，。！？\n]+?)管理([^，。！？\n]+)`), types.PredicateManages},
	{regexp.MustCompile(`([^，。！？\n]+?)审批([^，。！？\n]+)`), types.PredicateApproves},
	{regexp.MustCompile(`([^，。！？\n]+?)发布([^，。！？\n]+)`), types.PredicatePublishes},
	{regexp.MustCompile(`([^，。！？\n]+?)适用于([^，。！？\n]+)`), types.PredicateAppliesTo},
	{regexp.MustCompile(`([^，。！？\n]+?)要求([^，。！？\n]+)`), types.PredicateRequires},
}

// extractRelationClaims 提取答案中陈述的关系。
func extractRelationClaims(answer string) []types.Relation {
	var claims []types.Relation
	for _, pattern := range relationClaimPatterns {
		for _, match := range pattern.re.FindAllStringSubmatch(answer, -1) {
			source := strings.TrimSpace(match[1])
			target := strings.TrimSpace(match[2])
			if source == "" || target == "" {
				continue
			}
			claims = append(claims, types.Relation{
				Source:    source,
				Target:    target,
				Predicate: pattern.predicate,
			})
		}
	}
	return claims
}

// relationVerification 答案陈述的关系被图谱确认的比例。
// 没有关系陈述时记满分。
func (d *Detector) relationVerification(ctx context.Context, answer string) float64 {
	claims := extractRelationClaims(answer)
	if len(claims) == 0 {
		return 1.0
	}

	verified := d.verifier.VerifyRelations(ctx, claims)
	confirmed := 0
	for _, claim := range claims {
		key := types.NormalizeName(claim.Source) + "|" + types.NormalizeName(claim.Target)
		if verified[key] {
			confirmed++
		}
	}
	return float64(confirmed) / float64(len(claims))
}

// contentOverlap 答案关键词与检索文档的平均重叠率。
// 没有参考文档时给保守低分。
func (d *Detector) contentOverlap(answer string, docs []types.RetrievedDocument) float64 {
	if len(docs) == 0 {
		return 0.3
	}
	answerKeywords := extractKeywords(answer)
	if len(answerKeywords) == 0 {
		return 0.3
	}

	var total float64
	counted := 0
	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		total += keywordOverlap(answerKeywords, extractKeywords(doc.Text))
		counted++
	}
	if counted == 0 {
		return 0.3
	}
	return clamp01(total / float64(counted))
}

// coherenceConnectors 逻辑连接词，作为连贯性的启发信号。
var coherenceConnectors = []string{"因为", "所以", "由于", "因此", "根据", "按照", "依据"}

// coherenceSubstance 政策答案中应出现的实质性词汇。
var coherenceSubstance = []string{"规定", "要求", "政策", "条款", "办法"}

// semanticCoherence 答案与问题的启发式连贯性评分。
func (d *Detector) semanticCoherence(answer, question string) float64 {
	if len([]rune(strings.TrimSpace(answer))) < 10 {
		return 0.2
	}

	questionKeywords := extractKeywords(question)
	answerKeywords := extractKeywords(answer)
	if len(questionKeywords) == 0 || len(answerKeywords) == 0 {
		return 0.4
	}
	relevance := keywordOverlap(questionKeywords, answerKeywords)

	indicators := 0
	for _, connector := range coherenceConnectors {
		if strings.Contains(answer, connector) {
			indicators++
		}
	}
	for _, word := range coherenceSubstance {
		if strings.Contains(answer, word) {
			indicators++
			break
		}
	}

	score := (relevance + min(float64(indicators)/5, 0.5)) / 1.5
	return clamp01(score)
}

func riskLevelOf(confidence float64) RiskLevel {
	switch {
	case confidence >= 0.8:
		return RiskLow
	case confidence >= 0.5:
		return RiskMedium
	default:
		return RiskHigh
	}
}

func buildWarnings(entityScore, relationScore, overlapScore, coherenceScore float64) []string {
	var warnings []string
	if entityScore < 0.5 {
		warnings = append(warnings, "答案中包含未经验证的实体信息")
	}
	if relationScore < 0.4 {
		warnings = append(warnings, "答案中的关系描述可能不准确")
	}
	if overlapScore < 0.3 {
		warnings = append(warnings, "答案内容与检索文档相关性较低")
	}
	if coherenceScore < 0.4 {
		warnings = append(warnings, "答案的逻辑连贯性有待改善")
	}
	if entityScore < 0.5 && relationScore < 0.5 && overlapScore < 0.5 && coherenceScore < 0.5 {
		warnings = append(warnings, "答案可信度较低，建议谨慎对待")
	}
	return warnings
}

// ConfidenceExplanation 生成面向用户的可信度说明。
func (d *Detector) ConfidenceExplanation(result DetectionResult) string {
	var parts []string
	switch {
	case result.Confidence >= 0.8:
		parts = append(parts, "答案具有较高可信度")
	case result.Confidence >= 0.5:
		parts = append(parts, "答案具有中等可信度")
	default:
		parts = append(parts, "答案可信度较低")
	}
	if result.DimensionScores["entity_consistency"] >= 0.7 {
		parts = append(parts, "实体信息已验证")
	}
	if result.DimensionScores["relation_verification"] >= 0.6 {
		parts = append(parts, "关系描述基本准确")
	}
	if result.DimensionScores["content_overlap"] >= 0.6 {
		parts = append(parts, "内容与文档资料吻合")
	}
	return strings.Join(parts, "，") + "。"
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
