package types

// QualityLevel 是答案质量等级。
type QualityLevel string

const (
	QualityExcellent QualityLevel = "EXCELLENT"
	QualityGood      QualityLevel = "GOOD"
	QualityFair      QualityLevel = "FAIR"
	QualityPoor      QualityLevel = "POOR"
)

// QualityLevelOf 按总分划定质量等级：≥0.8 优、≥0.7 良、≥0.6 中、其余差。
func QualityLevelOf(score float64) QualityLevel {
	switch {
	case score >= 0.8:
		return QualityExcellent
	case score >= 0.7:
		return QualityGood
	case score >= 0.6:
		return QualityFair
	default:
		return QualityPoor
	}
}

// EntityAnalysis 记录评估期间的实体核对结果。
type EntityAnalysis struct {
	QuestionEntities []string `json:"question_entities"`
	AnswerEntities   []string `json:"answer_entities"`
	MissingEntities  []string `json:"missing_entities,omitempty"`
	UnverifiedInKG   []string `json:"unverified_in_kg,omitempty"`
}

// EvaluationResult 是多维评估的结构化结果。
// DimensionScores 的键为维度名，所有分值落在 [0,1]。
type EvaluationResult struct {
	DimensionScores map[string]float64 `json:"dimension_scores"`
	OverallScore    float64            `json:"overall_score"`
	Quality         QualityLevel       `json:"quality"`
	Diagnosis       []string           `json:"diagnosis,omitempty"`
	Warnings        []string           `json:"warnings,omitempty"`
	EntityAnalysis  *EntityAnalysis    `json:"entity_analysis,omitempty"`
}

// Score 返回指定维度的分值，维度缺失时返回 0。
func (r *EvaluationResult) Score(dimension string) float64 {
	if r == nil || r.DimensionScores == nil {
		return 0
	}
	return r.DimensionScores[dimension]
}
