// =============================================================================
// 📦 PolicyRAG 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LLM:           DefaultLLMConfig(),
		Embedding:     DefaultEmbeddingConfig(),
		Redis:         DefaultRedisConfig(),
		Graph:         DefaultGraphConfig(),
		Qdrant:        DefaultQdrantConfig(),
		Extraction:    DefaultExtractionConfig(),
		Retrieval:     DefaultRetrievalConfig(),
		Fusion:        DefaultFusionConfig(),
		Hallucination: DefaultHallucinationConfig(),
		Evaluation:    DefaultEvaluationConfig(),
		Log:           DefaultLogConfig(),
		Telemetry:     DefaultTelemetryConfig(),
	}
}

// DefaultLLMConfig 返回默认生成模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:        "http://localhost:11434",
		Model:          "qwen2.5:7b",
		FallbackModels: []string{"qwen2.5:3b"},
		Temperature:    0.3,
		MaxTokens:      2048,
		Timeout:        60 * time.Second,
		MaxRetries:     2,
		RateLimitRPS:   10,
		RateLimitBurst: 20,
	}
}

// DefaultEmbeddingConfig 返回默认向量化配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL:    "http://localhost:11434",
		Model:      "nomic-embed-text",
		Dimensions: 768,
		Timeout:    30 * time.Second,
		CacheTTL:   24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  false,
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
		PoolSize: 10,
	}
}

// DefaultGraphConfig 返回默认图谱存储配置
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		Driver:         "sqlite",
		Name:           "policyrag.db",
		EntityLimit:    20,
		DefaultMaxHops: 2,
	}
}

// DefaultQdrantConfig 返回默认 Qdrant 配置
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		Enabled:    false,
		BaseURL:    "http://localhost:6333",
		Collection: "policy_chunks",
	}
}

// DefaultExtractionConfig 返回默认抽取配置
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		ConfidenceFloor:    0.4,
		FallbackConfidence: 0.5,
		MaxEntities:        20,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:         5,
		ChunkSize:    512,
		ChunkOverlap: 50,
	}
}

// DefaultFusionConfig 返回默认融合配置
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		MaxVectorSnippets:     3,
		VectorSnippetChars:    300,
		MaxGraphEntities:      3,
		MaxRelationsPerEntity: 3,
		MaxPolicies:           2,
		PolicyChars:           200,
		MaxContextChars:       3000,
	}
}

// DefaultHallucinationConfig 返回默认幻觉检测配置
func DefaultHallucinationConfig() HallucinationConfig {
	return HallucinationConfig{
		EntityConsistencyWeight:    0.4,
		RelationVerificationWeight: 0.3,
		ContentOverlapWeight:       0.2,
		SemanticCoherenceWeight:    0.1,
		ReliabilityThreshold:       0.7,
	}
}

// DefaultEvaluationConfig 返回默认评估配置
func DefaultEvaluationConfig() EvaluationConfig {
	return EvaluationConfig{
		EntityCoverageWeight: 0.30,
		FaithfulnessWeight:   0.25,
		RelevancyWeight:      0.15,
		SufficiencyWeight:    0.15,
		HallucinationPenalty: 0.15,
		DimensionTimeout:     20 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "policyrag",
		SampleRate:   1.0,
	}
}
