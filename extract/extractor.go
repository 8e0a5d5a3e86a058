// 软件包 extract 从政策文本与用户问题中识别实体和关系.
//
// 首选路径是 LLM 结构化抽取（JSON 输出），失败时回退到规则抽取器，
// 以固定的较低置信度产出实体。空结果是合法输出，不视为错误。
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/policyrag/types"
	"go.uber.org/zap"
)

// Generator 是抽取器对生成模型的最小依赖。
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Config 抽取器配置
type Config struct {
	// LLM 抽取置信度下限，低于该值的实体被丢弃
	ConfidenceFloor float64
	// 规则回退抽取的固定置信度
	FallbackConfidence float64
	// 单次抽取的实体数上限
	MaxEntities int
	// 送入提示词的文本截断长度（字符）
	MaxPromptChars int
}

// DefaultConfig 返回默认抽取配置
func DefaultConfig() Config {
	return Config{
		ConfidenceFloor:    0.4,
		FallbackConfidence: 0.5,
		MaxEntities:        20,
		MaxPromptChars:     1000,
	}
}

// Extractor 实体关系抽取器
type Extractor struct {
	gen    Generator
	rules  *ruleExtractor
	cfg    Config
	logger *zap.Logger
}

// NewExtractor 创建抽取器，logger 为 nil 时使用 Nop。
func NewExtractor(gen Generator, cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = 0.4
	}
	if cfg.FallbackConfidence <= 0 {
		cfg.FallbackConfidence = 0.5
	}
	if cfg.MaxEntities <= 0 {
		cfg.MaxEntities = 20
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = 1000
	}
	return &Extractor{
		gen:    gen,
		rules:  newRuleExtractor(cfg.FallbackConfidence),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "entity_extractor")),
	}
}

const entitySystemPrompt = "你是一个专业的政策文档分析专家。只输出JSON，不要任何解释。"

type rawEntity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type rawRelation struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Relation   string  `json:"relation"`
	Confidence float64 `json:"confidence"`
}

// ExtractEntities 从文本中提取实体。LLM 路径失败时回退到规则抽取。
func (e *Extractor) ExtractEntities(ctx context.Context, text string) ([]types.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return []types.Entity{}, nil
	}

	prompt := e.buildEntityPrompt(text)
	resp, err := e.gen.Generate(ctx, entitySystemPrompt, prompt)
	if err != nil {
		e.logger.Warn("LLM 实体抽取失败，回退到规则抽取", zap.Error(err))
		return e.rules.extractEntities(text), nil
	}

	entities, perr := e.parseEntityResponse(resp)
	if perr != nil {
		e.logger.Warn("实体响应解析失败，回退到规则抽取", zap.Error(perr))
		return e.rules.extractEntities(text), nil
	}
	return entities, nil
}

// ExtractRelations 提取实体间关系。端点不在给定实体集合中的关系被丢弃。
// 实体不足两个时直接返回空。
func (e *Extractor) ExtractRelations(ctx context.Context, text string, entities []types.Entity) ([]types.Relation, error) {
	if len(entities) < 2 {
		return []types.Relation{}, nil
	}

	prompt := e.buildRelationPrompt(text, entities)
	resp, err := e.gen.Generate(ctx, entitySystemPrompt, prompt)
	if err != nil {
		e.logger.Warn("关系抽取失败", zap.Error(err))
		return []types.Relation{}, nil
	}

	relations, perr := e.parseRelationResponse(resp, entities)
	if perr != nil {
		e.logger.Warn("关系响应解析失败", zap.Error(perr))
		return []types.Relation{}, nil
	}
	return relations, nil
}

// ExtractEntitiesFromQuestion 从用户问题中提取关键实体。
// 问题通常很短，失败时同样回退规则抽取。
func (e *Extractor) ExtractEntitiesFromQuestion(ctx context.Context, question string) ([]types.Entity, error) {
	if strings.TrimSpace(question) == "" {
		return []types.Entity{}, nil
	}

	prompt := fmt.Sprintf(`请从以下问题中提取关键实体（人名、机构名、地名、政策术语等），以JSON格式返回：

问题：%s

只返回JSON格式，例如：
{"entities": ["实体1", "实体2", "实体3"]}`, question)

	resp, err := e.gen.Generate(ctx, entitySystemPrompt, prompt)
	if err != nil {
		e.logger.Warn("问题实体抽取失败，回退到规则抽取", zap.Error(err))
		return e.rules.extractEntities(question), nil
	}

	payload, perr := extractJSON(resp)
	if perr != nil {
		return e.rules.extractEntities(question), nil
	}

	var parsed struct {
		Entities []string `json:"entities"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return e.rules.extractEntities(question), nil
	}

	entities := make([]types.Entity, 0, len(parsed.Entities))
	for _, name := range parsed.Entities {
		if strings.TrimSpace(name) == "" {
			continue
		}
		entities = append(entities, types.Entity{
			Name:       strings.TrimSpace(name),
			Kind:       types.EntityOther,
			Confidence: 0.8,
		})
	}
	return capEntities(types.MergeEntities(entities), e.cfg.MaxEntities), nil
}

// DocumentInput 是待抽取的文档。
type DocumentInput struct {
	ID      string
	Title   string
	Content string
}

// DocumentExtraction 是单个文档的抽取结果。
type DocumentExtraction struct {
	DocumentID    string
	DocumentTitle string
	Entities      []types.Entity
	Relations     []types.Relation
}

// ExtractFromDocument 从完整文档中提取实体和关系，供建图索引使用。
func (e *Extractor) ExtractFromDocument(ctx context.Context, doc DocumentInput) (*DocumentExtraction, error) {
	text := strings.TrimSpace(strings.Join([]string{doc.Title, doc.Content}, "\n"))
	result := &DocumentExtraction{
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		Entities:      []types.Entity{},
		Relations:     []types.Relation{},
	}
	if text == "" {
		return result, nil
	}

	entities, err := e.ExtractEntities(ctx, text)
	if err != nil {
		return nil, types.NewError(types.ErrExtraction, "document entity extraction failed").WithCause(err)
	}
	result.Entities = entities

	relations, err := e.ExtractRelations(ctx, text, entities)
	if err != nil {
		return nil, types.NewError(types.ErrExtraction, "document relation extraction failed").WithCause(err)
	}
	result.Relations = relations

	e.logger.Info("文档抽取完成",
		zap.String("document", doc.Title),
		zap.Int("entities", len(entities)),
		zap.Int("relations", len(relations)),
	)
	return result, nil
}

func (e *Extractor) buildEntityPrompt(text string) string {
	return fmt.Sprintf(`请从以下政策文本中提取关键实体，按照指定格式返回JSON：

文本：%s

请提取以下类型的实体：
- 组织机构(ORG)：政府部门、企业、事业单位、社会团体等
- 政策概念(CONCEPT)：政策术语、专业概念、业务术语等
- 地理位置(LOCATION)：国家、省市、区域、具体地点等
- 时间信息(TIME)：日期、期限、时间段等
- 人员角色(PERSON)：职位、岗位、人员类别等
- 法规条款(REGULATION)：法律条文、政策条款、规定等

输出要求：
1. 只返回JSON格式，不要其他解释
2. 每个实体包含text（实体文本）、label（类型）、confidence（置信度0-1）
3. 置信度基于实体在文本中的重要性和明确性

输出格式：
{"entities": [{"text": "实体名称", "label": "ORG", "confidence": 0.9}]}`, truncate(text, e.cfg.MaxPromptChars))
}

func (e *Extractor) buildRelationPrompt(text string, entities []types.Entity) string {
	names := make([]string, len(entities))
	for i, ent := range entities {
		names[i] = ent.Name
	}

	return fmt.Sprintf(`请分析以下文本中实体间的关系：

文本：%s

已识别实体：%s

请识别以下类型的关系：
- 发布(PUBLISHES)：机构发布政策
- 适用于(APPLIES_TO)：政策适用于某对象
- 管理(MANAGES)：机构管理某事务
- 要求(REQUIRES)：政策要求某行为
- 包含(CONTAINS)：文档包含某内容
- 负责(RESPONSIBLE_FOR)：机构负责某事务
- 审批(APPROVES)：机构审批某事项
- 监督(SUPERVISES)：机构监督某活动

输出要求：
1. 只返回JSON格式
2. 只提取确实存在的关系
3. source和target必须是已识别的实体

输出格式：
{"relations": [{"source": "实体1", "target": "实体2", "relation": "PUBLISHES", "confidence": 0.9}]}`,
		truncate(text, e.cfg.MaxPromptChars), strings.Join(names, "、"))
}

func (e *Extractor) parseEntityResponse(resp string) ([]types.Entity, error) {
	payload, err := extractJSON(resp)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Entities []rawEntity `json:"entities"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("invalid entity JSON: %w", err)
	}

	entities := make([]types.Entity, 0, len(parsed.Entities))
	for _, raw := range parsed.Entities {
		name := strings.TrimSpace(raw.Text)
		if name == "" {
			continue
		}
		confidence := raw.Confidence
		if confidence == 0 {
			confidence = 0.5
		}
		if confidence < e.cfg.ConfidenceFloor {
			continue
		}
		entities = append(entities, types.Entity{
			Name:       name,
			Kind:       types.ParseEntityKind(raw.Label),
			Confidence: clamp01(confidence),
		})
	}
	return capEntities(types.MergeEntities(entities), e.cfg.MaxEntities), nil
}

func (e *Extractor) parseRelationResponse(resp string, entities []types.Entity) ([]types.Relation, error) {
	payload, err := extractJSON(resp)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Relations []rawRelation `json:"relations"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("invalid relation JSON: %w", err)
	}

	known := make(map[string]struct{}, len(entities))
	for _, ent := range entities {
		known[ent.NormalizedName()] = struct{}{}
	}

	relations := make([]types.Relation, 0, len(parsed.Relations))
	for _, raw := range parsed.Relations {
		confidence := raw.Confidence
		if confidence == 0 {
			confidence = 0.5
		}
		rel := types.Relation{
			Source:     strings.TrimSpace(raw.Source),
			Target:     strings.TrimSpace(raw.Target),
			Predicate:  types.ParsePredicate(raw.Relation),
			Confidence: clamp01(confidence),
		}
		if !rel.Valid() {
			continue
		}
		// 端点必须落在已识别实体集合内
		if _, ok := known[types.NormalizeName(rel.Source)]; !ok {
			continue
		}
		if _, ok := known[types.NormalizeName(rel.Target)]; !ok {
			continue
		}
		relations = append(relations, rel)
	}
	return relations, nil
}

func capEntities(entities []types.Entity, limit int) []types.Entity {
	if len(entities) > limit {
		return entities[:limit]
	}
	return entities
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
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
