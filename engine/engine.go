// 软件包 engine 编排问答主链路：
// 问题实体抽取 → 向量与图谱并行检索 → 上下文融合 → 答案生成 → 质量评估.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/policyrag/evaluation"
	"github.com/BaSui01/policyrag/extract"
	"github.com/BaSui01/policyrag/fusion"
	"github.com/BaSui01/policyrag/retrieval"
	"github.com/BaSui01/policyrag/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Generator 答案生成的最小依赖。
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// EntityExtractor 实体抽取的最小依赖。
type EntityExtractor interface {
	ExtractEntitiesFromQuestion(ctx context.Context, question string) ([]types.Entity, error)
	ExtractFromDocument(ctx context.Context, doc extract.DocumentInput) (*extract.DocumentExtraction, error)
}

// Retriever 向量检索的最小依赖。
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]types.RetrievedDocument, error)
	AddDocuments(ctx context.Context, docs []retrieval.Document) (int, error)
}

// GraphQuerier 图谱检索的最小依赖。
type GraphQuerier interface {
	Query(ctx context.Context, question string, entityNames []string, maxHops any) types.GraphContext
}

// GraphIndexer 文档入图的可选依赖，为 nil 时跳过建图。
type GraphIndexer interface {
	UpsertEntities(ctx context.Context, entities []types.Entity) error
	AddRelations(ctx context.Context, relations []types.Relation) error
}

// MetricsRecorder 链路指标记录的可选依赖，为 nil 时不记录。
type MetricsRecorder interface {
	RecordStage(stage string, duration time.Duration)
	RecordRetrieval(source string, count int)
}

// Config 引擎配置。
type Config struct {
	// TopK 向量检索条数
	TopK int
	// MaxHops 图谱遍历跳数
	MaxHops int
	// AnswerTimeout 答案生成超时
	AnswerTimeout time.Duration
}

// DefaultConfig 返回默认引擎配置。
func DefaultConfig() Config {
	return Config{
		TopK:          5,
		MaxHops:       2,
		AnswerTimeout: 30 * time.Second,
	}
}

// Engine 政策问答引擎。
type Engine struct {
	config    Config
	extractor EntityExtractor
	retriever Retriever
	graph     GraphQuerier
	indexer   GraphIndexer
	fusion    *fusion.Builder
	generator Generator
	detector  *evaluation.Detector
	evaluator *evaluation.Evaluator
	metrics   MetricsRecorder
	logger    *zap.Logger
}

// Options 引擎装配参数。
type Options struct {
	Config    Config
	Extractor EntityExtractor
	Retriever Retriever
	Graph     GraphQuerier
	Indexer   GraphIndexer
	Fusion    *fusion.Builder
	Generator Generator
	Detector  *evaluation.Detector
	Evaluator *evaluation.Evaluator
	Metrics   MetricsRecorder
	Logger    *zap.Logger
}

// New 装配问答引擎。Fusion 为 nil 时使用默认融合策略。
func New(opts Options) *Engine {
	config := opts.Config
	if config.TopK <= 0 {
		config.TopK = DefaultConfig().TopK
	}
	if config.MaxHops <= 0 {
		config.MaxHops = DefaultConfig().MaxHops
	}
	if config.AnswerTimeout <= 0 {
		config.AnswerTimeout = DefaultConfig().AnswerTimeout
	}
	if opts.Fusion == nil {
		opts.Fusion = fusion.NewBuilder(fusion.DefaultConfig(), opts.Logger)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		config:    config,
		extractor: opts.Extractor,
		retriever: opts.Retriever,
		graph:     opts.Graph,
		indexer:   opts.Indexer,
		fusion:    opts.Fusion,
		generator: opts.Generator,
		detector:  opts.Detector,
		evaluator: opts.Evaluator,
		metrics:   opts.Metrics,
		logger:    logger.With(zap.String("component", "qa_engine")),
	}
}

// Source 答案的来源条目。
type Source struct {
	Type      string   `json:"type"`
	Title     string   `json:"title,omitempty"`
	Relevance float64  `json:"relevance,omitempty"`
	Preview   string   `json:"preview,omitempty"`
	Entities  []string `json:"entities,omitempty"`
	Relations []string `json:"relations,omitempty"`
}

// Answer 问答结果。
type Answer struct {
	Answer           string                      `json:"answer"`
	QuestionEntities []string                    `json:"question_entities"`
	Sources          []Source                    `json:"sources"`
	GraphEnhanced    bool                        `json:"graph_enhanced"`
	ProcessingTime   time.Duration               `json:"processing_time"`
	Confidence       *evaluation.DetectionResult `json:"confidence,omitempty"`
	Evaluation       *types.EvaluationResult     `json:"evaluation,omitempty"`
}

// AskOptions 单次问答选项。
type AskOptions struct {
	// UseGraph 关闭后跳过图谱检索
	UseGraph bool
	// WithConfidence 关闭后跳过幻觉检测
	WithConfidence bool
	// TopK 覆盖默认检索条数
	TopK int
	// MaxHops 覆盖默认跳数，接受任意类型，由图谱层收敛
	MaxHops any
}

// DefaultAskOptions 返回默认问答选项。
func DefaultAskOptions() AskOptions {
	return AskOptions{
		UseGraph:       true,
		WithConfidence: true,
	}
}

// AnswerQuestion 回答问题。LLM 不可用时返回 LLM_SERVICE_ERROR。
func (e *Engine) AnswerQuestion(ctx context.Context, question string, opts AskOptions) (*Answer, error) {
	answer, _, _, err := e.answer(ctx, question, opts)
	return answer, err
}

// AnswerQuestionWithEval 回答问题并执行六维评估，
// 评估复用首轮检索得到的图谱上下文与融合结果。
func (e *Engine) AnswerQuestionWithEval(ctx context.Context, question string, opts AskOptions) (*Answer, error) {
	answer, graphCtx, fused, err := e.answer(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	if e.evaluator == nil {
		return answer, nil
	}

	evalStarted := time.Now()
	answer.Evaluation = e.evaluator.Evaluate(ctx,
		question, answer.Answer, fused.Passages(), graphEntitySet(graphCtx))
	e.recordStage("evaluate", evalStarted)
	return answer, nil
}

// answer 执行问答主链路，返回中间产物供评估复用。
func (e *Engine) answer(ctx context.Context, question string, opts AskOptions) (*Answer, types.GraphContext, types.FusedContext, error) {
	started := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, types.EmptyGraphContext(), types.FusedContext{}, types.NewError(types.ErrValidation, "question is empty")
	}

	extractStarted := time.Now()
	entityNames := e.questionEntities(ctx, question)
	e.recordStage("extract", extractStarted)

	retrieveStarted := time.Now()
	docs, graphCtx := e.retrieve(ctx, question, entityNames, opts)
	e.recordStage("retrieve", retrieveStarted)
	if e.metrics != nil {
		e.metrics.RecordRetrieval("vector", len(docs))
		e.metrics.RecordRetrieval("graph", len(graphCtx.Entities))
	}

	fused := e.fusion.Build(question, entityNames, graphCtx, docs)

	generateStarted := time.Now()
	answerText, err := e.generate(ctx, question, fused)
	e.recordStage("generate", generateStarted)
	if err != nil {
		return nil, graphCtx, fused, err
	}

	answer := &Answer{
		Answer:           answerText,
		QuestionEntities: entityNames,
		Sources:          buildSources(docs, graphCtx),
		GraphEnhanced:    fused.GraphEnhanced,
	}

	if opts.WithConfidence && e.detector != nil {
		detectStarted := time.Now()
		result := e.detector.Detect(ctx, answerText, question, docs, graphCtx)
		e.recordStage("detect", detectStarted)
		answer.Confidence = &result
	}

	answer.ProcessingTime = time.Since(started)
	e.logger.Info("问答完成",
		zap.String("question", question),
		zap.Bool("graph_enhanced", answer.GraphEnhanced),
		zap.Duration("elapsed", answer.ProcessingTime),
	)
	return answer, graphCtx, fused, nil
}

// recordStage 记录单阶段耗时，未配置指标时为空操作。
func (e *Engine) recordStage(stage string, started time.Time) {
	if e.metrics != nil {
		e.metrics.RecordStage(stage, time.Since(started))
	}
}

// questionEntities 抽取问题实体名，抽取失败时退化为空集。
func (e *Engine) questionEntities(ctx context.Context, question string) []string {
	entities, err := e.extractor.ExtractEntitiesFromQuestion(ctx, question)
	if err != nil {
		e.logger.Warn("问题实体抽取失败", zap.Error(err))
		return []string{}
	}
	names := make([]string, 0, len(entities))
	for _, entity := range entities {
		names = append(names, entity.Name)
	}
	return names
}

// retrieve 并行执行向量检索与图谱检索。
// 两路各自失败都退化为空结果，不阻断问答。
func (e *Engine) retrieve(ctx context.Context, question string, entityNames []string, opts AskOptions) ([]types.RetrievedDocument, types.GraphContext) {
	docs := []types.RetrievedDocument{}
	graphCtx := types.EmptyGraphContext()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		topK := opts.TopK
		if topK <= 0 {
			topK = e.config.TopK
		}
		found, err := e.retriever.Search(groupCtx, question, topK)
		if err != nil {
			e.logger.Warn("向量检索失败", zap.Error(err))
			return nil
		}
		docs = found
		return nil
	})
	group.Go(func() error {
		graphCtx = e.queryGraph(groupCtx, question, entityNames, opts)
		return nil
	})
	_ = group.Wait()
	return docs, graphCtx
}

func (e *Engine) queryGraph(ctx context.Context, question string, entityNames []string, opts AskOptions) types.GraphContext {
	if !opts.UseGraph || e.graph == nil {
		return types.EmptyGraphContext()
	}
	maxHops := opts.MaxHops
	if maxHops == nil {
		maxHops = e.config.MaxHops
	}
	return e.graph.Query(ctx, question, entityNames, maxHops)
}

const answerSystemPrompt = "你是一个专业的政策法规问答助手。请根据提供的上下文信息，准确回答用户问题。"

// generate 基于融合上下文生成答案。
func (e *Engine) generate(ctx context.Context, question string, fused types.FusedContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.AnswerTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`上下文信息：
%s

用户问题：%s

回答要求：
1. 基于上下文信息回答，不要编造不存在的信息
2. 回答要准确、具体、有条理
3. 如果信息不足或问题超出专业领域，请如实说明
4. 提及具体的政策名称、机构名称时要准确
5. 回答长度控制在200-400字

请回答：`, fused.Text(), question)

	answer, err := e.generator.Generate(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return "", types.NewError(types.ErrLLMService, "answer generation failed").WithCause(err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "抱歉，无法根据现有信息回答您的问题。", nil
	}
	return answer, nil
}

// AnalyzeDocument 分析文档：抽取实体与关系、写入向量索引，
// 配置了 GraphIndexer 时同步写入图谱。
func (e *Engine) AnalyzeDocument(ctx context.Context, doc extract.DocumentInput) (*extract.DocumentExtraction, error) {
	result, err := e.extractor.ExtractFromDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	if _, err := e.retriever.AddDocuments(ctx, []retrieval.Document{{
		ID:   doc.ID,
		Text: doc.Content,
		Metadata: map[string]string{
			"title": doc.Title,
		},
	}}); err != nil {
		e.logger.Warn("文档向量索引失败", zap.Error(err))
	}

	if e.indexer != nil {
		if err := e.indexer.UpsertEntities(ctx, result.Entities); err != nil {
			e.logger.Warn("实体入图失败", zap.Error(err))
		}
		if err := e.indexer.AddRelations(ctx, result.Relations); err != nil {
			e.logger.Warn("关系入图失败", zap.Error(err))
		}
	}
	return result, nil
}

// buildSources 汇总答案来源：向量文档在前三条，图谱实体一条。
func buildSources(docs []types.RetrievedDocument, graphCtx types.GraphContext) []Source {
	sources := []Source{}

	limit := 3
	if len(docs) < limit {
		limit = len(docs)
	}
	for _, doc := range docs[:limit] {
		sources = append(sources, Source{
			Type:      "document",
			Title:     doc.Metadata["title"],
			Relevance: doc.Similarity,
			Preview:   previewText(doc.Text, 100),
		})
	}

	if len(graphCtx.Entities) > 0 {
		source := Source{Type: "graph_entity"}
		entityLimit := 3
		if len(graphCtx.Entities) < entityLimit {
			entityLimit = len(graphCtx.Entities)
		}
		seen := map[string]struct{}{}
		for _, entity := range graphCtx.Entities[:entityLimit] {
			source.Entities = append(source.Entities, entity.Name)
			for _, relation := range graphCtx.RelationsOf(entity.Name) {
				key := string(relation.Predicate)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				source.Relations = append(source.Relations, key)
			}
		}
		sources = append(sources, source)
	}
	return sources
}

// graphEntitySet 收集图谱上下文中的全部实体规范名。
func graphEntitySet(graphCtx types.GraphContext) map[string]struct{} {
	set := make(map[string]struct{})
	for _, entity := range graphCtx.Entities {
		set[types.NormalizeName(entity.Name)] = struct{}{}
		for _, alias := range entity.Aliases {
			set[types.NormalizeName(alias)] = struct{}{}
		}
	}
	for _, policy := range graphCtx.Policies {
		for _, name := range policy.RelatedEntities {
			set[types.NormalizeName(name)] = struct{}{}
		}
	}
	for _, relation := range graphCtx.Relations {
		set[types.NormalizeName(relation.Source)] = struct{}{}
		set[types.NormalizeName(relation.Target)] = struct{}{}
	}
	return set
}

func previewText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
