package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 问答指标
	questionsTotal   *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	answerConfidence prometheus.Histogram

	// 检索指标
	retrievedDocuments *prometheus.HistogramVec

	// 评估指标
	evaluationScore *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 文档入库指标
	documentsAnalyzed  prometheus.Counter
	entitiesExtracted  prometheus.Counter
	relationsExtracted prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "observability")),
	}

	// 问答指标
	c.questionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_total",
			Help:      "Total number of questions answered",
		},
		[]string{"status", "graph_enhanced"},
	)

	c.stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	c.answerConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_confidence",
			Help:      "Answer confidence score distribution",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	// 检索指标
	c.retrievedDocuments = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_documents",
			Help:      "Number of documents retrieved per question",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		},
		[]string{"source"}, // source: vector, graph
	)

	// 评估指标
	c.evaluationScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_score",
			Help:      "Evaluation dimension score distribution",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
		[]string{"dimension"},
	)

	// LLM 指标
	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	// 文档入库指标
	c.documentsAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_analyzed_total",
			Help:      "Total number of documents analyzed",
		},
	)

	c.entitiesExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_extracted_total",
			Help:      "Total number of entities extracted from documents",
		},
	)

	c.relationsExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relations_extracted_total",
			Help:      "Total number of relations extracted from documents",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 问答指标记录
// =============================================================================

// RecordQuestion 记录一次问答
func (c *Collector) RecordQuestion(status string, graphEnhanced bool, duration time.Duration) {
	c.questionsTotal.WithLabelValues(status, boolLabel(graphEnhanced)).Inc()
	c.stageDuration.WithLabelValues("total").Observe(duration.Seconds())
}

// RecordStage 记录单个阶段耗时
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordConfidence 记录答案可信度
func (c *Collector) RecordConfidence(confidence float64) {
	c.answerConfidence.Observe(confidence)
}

// RecordRetrieval 记录一次检索召回量
func (c *Collector) RecordRetrieval(source string, count int) {
	c.retrievedDocuments.WithLabelValues(source).Observe(float64(count))
}

// RecordEvaluation 记录各维度评估得分
func (c *Collector) RecordEvaluation(scores map[string]float64) {
	for dimension, score := range scores {
		c.evaluationScore.WithLabelValues(dimension).Observe(score)
	}
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 📄 文档入库指标记录
// =============================================================================

// RecordDocumentAnalyzed 记录文档分析结果
func (c *Collector) RecordDocumentAnalyzed(entities, relations int) {
	c.documentsAnalyzed.Inc()
	c.entitiesExtracted.Add(float64(entities))
	c.relationsExtracted.Add(float64(relations))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
