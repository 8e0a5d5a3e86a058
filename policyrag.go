// 软件包 policyrag 提供政策知识图谱问答的一站式入口。
//
// 使用方法:
//
//	import "github.com/BaSui01/policyrag"
//
//	client, err := policyrag.New(nil)                          // 全默认配置
//	client, err := policyrag.New(cfg, policyrag.WithLogger(l)) // 自定义
//
//	answer, err := client.Ask(ctx, "华侨经济文化合作试验区的管理机构是什么？")
//
// New 按配置装配完整链路：LLM 客户端（限流/重试/降级）、嵌入降级链
// （可选 Redis 缓存）、实体抽取、图谱存储与查询、向量检索、上下文融合、
// 幻觉检测与多维评估，并初始化日志、指标与遥测。
package policyrag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/policyrag/config"
	"github.com/BaSui01/policyrag/engine"
	"github.com/BaSui01/policyrag/evaluation"
	"github.com/BaSui01/policyrag/extract"
	"github.com/BaSui01/policyrag/fusion"
	"github.com/BaSui01/policyrag/graph"
	"github.com/BaSui01/policyrag/llm"
	"github.com/BaSui01/policyrag/llm/embedding"
	"github.com/BaSui01/policyrag/observability"
	"github.com/BaSui01/policyrag/retrieval"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option 配置 New 创建的客户端。
type Option func(*options)

type options struct {
	logger      *zap.Logger
	provider    llm.Provider
	embedder    embedding.Embedder
	vectorStore retrieval.VectorStore
	namespace   string
}

// WithLogger 使用外部 logger，不再根据 LogConfig 构建。
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProvider 使用预构建的 LLM Provider，替代默认 ollama。
func WithProvider(provider llm.Provider) Option {
	return func(o *options) { o.provider = provider }
}

// WithEmbedder 使用预构建的嵌入器，替代默认降级链。
func WithEmbedder(embedder embedding.Embedder) Option {
	return func(o *options) { o.embedder = embedder }
}

// WithVectorStore 使用预构建的向量存储，替代配置决定的存储。
func WithVectorStore(store retrieval.VectorStore) Option {
	return func(o *options) { o.vectorStore = store }
}

// WithMetricsNamespace 覆盖 Prometheus 指标 namespace，默认 "policyrag"。
func WithMetricsNamespace(namespace string) Option {
	return func(o *options) { o.namespace = namespace }
}

// Client 政策问答客户端。
type Client struct {
	cfg       *config.Config
	logger    *zap.Logger
	ownLogger bool

	engine    *engine.Engine
	store     *graph.Store
	query     *graph.QueryEngine
	metrics   *observability.Collector
	telemetry *observability.Providers
	redis     *redis.Client
}

// New 按配置装配客户端。cfg 为 nil 时使用默认配置。
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	ownLogger := false
	if logger == nil {
		logger = NewLogger(cfg.Log)
		ownLogger = true
	}

	telemetry, err := observability.Init(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	namespace := o.namespace
	if namespace == "" {
		namespace = "policyrag"
	}
	metrics := observability.NewCollector(namespace, logger)

	// LLM 客户端：限流 + 重试 + 模型降级
	provider := o.provider
	if provider == nil {
		provider = llm.NewOllamaProvider(llm.OllamaConfig{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, logger)
	}
	client := llm.NewClient(provider, llm.ClientConfig{
		Model:          cfg.LLM.Model,
		FallbackModels: cfg.LLM.FallbackModels,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        cfg.LLM.Timeout,
		MaxRetries:     cfg.LLM.MaxRetries,
		RateLimitRPS:   cfg.LLM.RateLimitRPS,
		RateLimitBurst: cfg.LLM.RateLimitBurst,
	}, logger)
	client.SetMetrics(metrics)

	// 嵌入降级链：远程 → 本地确定性嵌入，可选 Redis 缓存
	var redisClient *redis.Client
	embedder := o.embedder
	if embedder == nil {
		remote := embedding.NewOllamaEmbedder(embedding.OllamaConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		})
		local := embedding.NewLocalEmbedder(cfg.Embedding.Dimensions)
		embedder = embedding.NewFallbackChain(logger, remote, local)

		if cfg.Redis.Enabled {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				PoolSize: cfg.Redis.PoolSize,
			})
			embedder = embedding.NewRedisCache(embedder, redisClient, cfg.Embedding.CacheTTL, logger)
		}
	}

	// 实体抽取
	extractCfg := extract.DefaultConfig()
	extractCfg.ConfidenceFloor = cfg.Extraction.ConfidenceFloor
	extractCfg.FallbackConfidence = cfg.Extraction.FallbackConfidence
	extractCfg.MaxEntities = cfg.Extraction.MaxEntities
	extractor := extract.NewExtractor(client, extractCfg, logger)

	// 图谱存储与查询
	store, err := graph.Open(graph.StoreConfig{
		Driver:      cfg.Graph.Driver,
		DSN:         cfg.Graph.DSN(),
		EntityLimit: cfg.Graph.EntityLimit,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	if err := store.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrate graph store: %w", err)
	}
	query := graph.NewQueryEngine(store, logger)

	// 向量检索：Qdrant 启用时走 REST，否则内存存储
	vectorStore := o.vectorStore
	if vectorStore == nil && cfg.Qdrant.Enabled {
		vectorStore = retrieval.NewQdrantStore(retrieval.QdrantConfig{
			BaseURL:    cfg.Qdrant.BaseURL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Dimensions: cfg.Embedding.Dimensions,
		}, logger)
	}
	var tokenizer retrieval.Tokenizer
	if tk, err := retrieval.NewTiktokenTokenizer(""); err == nil {
		tokenizer = tk
	} else {
		logger.Warn("tiktoken 初始化失败，回退简易分词", zap.Error(err))
	}
	retriever := retrieval.NewVectorRetriever(retrieval.RetrieverConfig{
		TopK: cfg.Retrieval.TopK,
		Chunker: retrieval.ChunkerConfig{
			ChunkSize:    cfg.Retrieval.ChunkSize,
			ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		},
	}, embedder, vectorStore, tokenizer, logger)

	// 融合、检测与评估
	builder := fusion.NewBuilder(fusion.Config{
		MaxVectorSnippets:     cfg.Fusion.MaxVectorSnippets,
		VectorSnippetChars:    cfg.Fusion.VectorSnippetChars,
		MaxGraphEntities:      cfg.Fusion.MaxGraphEntities,
		MaxRelationsPerEntity: cfg.Fusion.MaxRelationsPerEntity,
		MaxPolicies:           cfg.Fusion.MaxPolicies,
		PolicyChars:           cfg.Fusion.PolicyChars,
		MaxContextChars:       cfg.Fusion.MaxContextChars,
	}, logger)

	detector := evaluation.NewDetector(evaluation.DetectorConfig{
		EntityConsistencyWeight:    cfg.Hallucination.EntityConsistencyWeight,
		RelationVerificationWeight: cfg.Hallucination.RelationVerificationWeight,
		ContentOverlapWeight:       cfg.Hallucination.ContentOverlapWeight,
		SemanticCoherenceWeight:    cfg.Hallucination.SemanticCoherenceWeight,
		ReliabilityThreshold:       cfg.Hallucination.ReliabilityThreshold,
	}, extractor, query, logger)

	evaluator := evaluation.NewEvaluator(evaluation.EvaluatorConfig{
		EntityCoverageWeight: cfg.Evaluation.EntityCoverageWeight,
		FaithfulnessWeight:   cfg.Evaluation.FaithfulnessWeight,
		RelevancyWeight:      cfg.Evaluation.RelevancyWeight,
		SufficiencyWeight:    cfg.Evaluation.SufficiencyWeight,
		HallucinationPenalty: cfg.Evaluation.HallucinationPenalty,
		DimensionTimeout:     cfg.Evaluation.DimensionTimeout,
	}, client, embedder, extractor, logger)

	eng := engine.New(engine.Options{
		Config: engine.Config{
			TopK:          cfg.Retrieval.TopK,
			MaxHops:       cfg.Graph.DefaultMaxHops,
			AnswerTimeout: cfg.LLM.Timeout,
		},
		Extractor: extractor,
		Retriever: retriever,
		Graph:     query,
		Indexer:   store,
		Fusion:    builder,
		Generator: client,
		Detector:  detector,
		Evaluator: evaluator,
		Metrics:   metrics,
		Logger:    logger,
	})

	return &Client{
		cfg:       cfg,
		logger:    logger,
		ownLogger: ownLogger,
		engine:    eng,
		store:     store,
		query:     query,
		metrics:   metrics,
		telemetry: telemetry,
		redis:     redisClient,
	}, nil
}

// Ask 回答问题，使用默认问答选项（图谱增强 + 可信度检测）。
func (c *Client) Ask(ctx context.Context, question string) (*engine.Answer, error) {
	return c.AskWithOptions(ctx, question, engine.DefaultAskOptions())
}

// AskWithOptions 按指定选项回答问题。
func (c *Client) AskWithOptions(ctx context.Context, question string, opts engine.AskOptions) (*engine.Answer, error) {
	ctx, span := observability.StartStage(ctx, "ask")
	defer span.End()

	start := time.Now()
	answer, err := c.engine.AnswerQuestion(ctx, question, opts)
	c.recordAnswer(answer, err, time.Since(start))
	return answer, err
}

// AskWithEval 回答问题并附带六维质量评估。
func (c *Client) AskWithEval(ctx context.Context, question string) (*engine.Answer, error) {
	ctx, span := observability.StartStage(ctx, "ask_with_eval")
	defer span.End()

	start := time.Now()
	answer, err := c.engine.AnswerQuestionWithEval(ctx, question, engine.DefaultAskOptions())
	c.recordAnswer(answer, err, time.Since(start))
	if err == nil && answer.Evaluation != nil {
		c.metrics.RecordEvaluation(answer.Evaluation.DimensionScores)
	}
	return answer, err
}

// IndexDocument 抽取文档中的实体与关系，写入图谱并向量化入库。
func (c *Client) IndexDocument(ctx context.Context, doc extract.DocumentInput) (*extract.DocumentExtraction, error) {
	ctx, span := observability.StartStage(ctx, "index_document")
	defer span.End()

	result, err := c.engine.AnalyzeDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordDocumentAnalyzed(len(result.Entities), len(result.Relations))
	return result, nil
}

// GraphStatistics 返回图谱实体/关系/政策计数。
func (c *Client) GraphStatistics(ctx context.Context) *graph.Statistics {
	return c.query.Statistics(ctx)
}

// Engine 返回底层问答引擎，便于直接使用高级接口。
func (c *Client) Engine() *engine.Engine { return c.engine }

// Metrics 返回指标收集器，便于在组件间共享。
func (c *Client) Metrics() *observability.Collector { return c.metrics }

// Close 关闭遥测导出器与 Redis 连接，刷新日志缓冲。
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if err := c.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.ownLogger {
		_ = c.logger.Sync()
	}
	return errors.Join(errs...)
}

func (c *Client) recordAnswer(answer *engine.Answer, err error, duration time.Duration) {
	status := "success"
	graphEnhanced := false
	if err != nil {
		status = "error"
	} else {
		graphEnhanced = answer.GraphEnhanced
		if answer.Confidence != nil {
			c.metrics.RecordConfidence(answer.Confidence.Confidence)
		}
	}
	c.metrics.RecordQuestion(status, graphEnhanced, duration)
}

// NewLogger 根据日志配置构建 zap logger，构建失败时回退生产默认配置。
func NewLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
