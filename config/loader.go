// =============================================================================
// 📦 PolicyRAG 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("POLICYRAG").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是问答管道的完整配置结构。所有组件在构造时显式接收配置，
// 不读取进程级全局状态。
type Config struct {
	// LLM 生成模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Embedding 向量化配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Redis 嵌入缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Graph 知识图谱存储配置
	Graph GraphConfig `yaml:"graph" env:"GRAPH"`

	// Qdrant 向量存储配置（可选，默认内存存储）
	Qdrant QdrantConfig `yaml:"qdrant" env:"QDRANT"`

	// Extraction 实体抽取配置
	Extraction ExtractionConfig `yaml:"extraction" env:"EXTRACTION"`

	// Retrieval 向量检索配置
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`

	// Fusion 上下文融合配置
	Fusion FusionConfig `yaml:"fusion" env:"FUSION"`

	// Hallucination 幻觉检测配置
	Hallucination HallucinationConfig `yaml:"hallucination" env:"HALLUCINATION"`

	// Evaluation 多维评估配置
	Evaluation EvaluationConfig `yaml:"evaluation" env:"EVALUATION"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// LLMConfig 生成模型配置
type LLMConfig struct {
	// 服务地址（ollama 兼容）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 备用模型链，按序降级
	FallbackModels []string `yaml:"fallback_models" env:"FALLBACK_MODELS"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大生成 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 每秒请求上限
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发请求上限
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	// 服务地址（ollama 兼容）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 向量维度
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 缓存 TTL（零值表示不过期）
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用嵌入缓存
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
}

// GraphConfig 知识图谱存储配置
type GraphConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 实体查询返回上限
	EntityLimit int `yaml:"entity_limit" env:"ENTITY_LIMIT"`
	// 多跳遍历默认跳数
	DefaultMaxHops int `yaml:"default_max_hops" env:"DEFAULT_MAX_HOPS"`
}

// QdrantConfig Qdrant 向量存储配置
type QdrantConfig struct {
	// 是否启用（关闭时使用内存存储）
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// REST 地址
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key（可选）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
}

// ExtractionConfig 实体抽取配置
type ExtractionConfig struct {
	// LLM 抽取置信度下限，低于该值的实体被丢弃
	ConfidenceFloor float64 `yaml:"confidence_floor" env:"CONFIDENCE_FLOOR"`
	// 规则回退抽取的固定置信度
	FallbackConfidence float64 `yaml:"fallback_confidence" env:"FALLBACK_CONFIDENCE"`
	// 单次抽取的实体数上限
	MaxEntities int `yaml:"max_entities" env:"MAX_ENTITIES"`
}

// RetrievalConfig 向量检索配置
type RetrievalConfig struct {
	// 默认返回条数
	TopK int `yaml:"top_k" env:"TOP_K"`
	// 分块大小（Token）
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	// 分块重叠（Token）
	ChunkOverlap int `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
}

// FusionConfig 上下文融合配置
type FusionConfig struct {
	// 向量片段数上限
	MaxVectorSnippets int `yaml:"max_vector_snippets" env:"MAX_VECTOR_SNIPPETS"`
	// 向量片段截断长度（字符）
	VectorSnippetChars int `yaml:"vector_snippet_chars" env:"VECTOR_SNIPPET_CHARS"`
	// 图谱实体数上限
	MaxGraphEntities int `yaml:"max_graph_entities" env:"MAX_GRAPH_ENTITIES"`
	// 每个实体的关系数上限
	MaxRelationsPerEntity int `yaml:"max_relations_per_entity" env:"MAX_RELATIONS_PER_ENTITY"`
	// 政策条目数上限
	MaxPolicies int `yaml:"max_policies" env:"MAX_POLICIES"`
	// 政策摘要截断长度（字符）
	PolicyChars int `yaml:"policy_chars" env:"POLICY_CHARS"`
	// 整体上下文预算（字符）
	MaxContextChars int `yaml:"max_context_chars" env:"MAX_CONTEXT_CHARS"`
}

// HallucinationConfig 幻觉检测配置
type HallucinationConfig struct {
	// 实体一致性权重
	EntityConsistencyWeight float64 `yaml:"entity_consistency_weight" env:"ENTITY_CONSISTENCY_WEIGHT"`
	// 关系验证权重
	RelationVerificationWeight float64 `yaml:"relation_verification_weight" env:"RELATION_VERIFICATION_WEIGHT"`
	// 内容重叠权重
	ContentOverlapWeight float64 `yaml:"content_overlap_weight" env:"CONTENT_OVERLAP_WEIGHT"`
	// 语义连贯权重
	SemanticCoherenceWeight float64 `yaml:"semantic_coherence_weight" env:"SEMANTIC_COHERENCE_WEIGHT"`
	// 可靠性阈值
	ReliabilityThreshold float64 `yaml:"reliability_threshold" env:"RELIABILITY_THRESHOLD"`
}

// EvaluationConfig 多维评估配置
type EvaluationConfig struct {
	// 实体覆盖权重
	EntityCoverageWeight float64 `yaml:"entity_coverage_weight" env:"ENTITY_COVERAGE_WEIGHT"`
	// 忠实度权重
	FaithfulnessWeight float64 `yaml:"faithfulness_weight" env:"FAITHFULNESS_WEIGHT"`
	// 相关性权重
	RelevancyWeight float64 `yaml:"relevancy_weight" env:"RELEVANCY_WEIGHT"`
	// 充分性权重
	SufficiencyWeight float64 `yaml:"sufficiency_weight" env:"SUFFICIENCY_WEIGHT"`
	// 幻觉惩罚权重（取正值，计算时作减项）
	HallucinationPenalty float64 `yaml:"hallucination_penalty" env:"HALLUCINATION_PENALTY"`
	// 单维度评估超时
	DimensionTimeout time.Duration `yaml:"dimension_timeout" env:"DIMENSION_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "POLICYRAG",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm temperature must be between 0 and 2")
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, "retrieval top_k must be positive")
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		errs = append(errs, "chunk_overlap must be smaller than chunk_size")
	}
	if w := c.Hallucination.EntityConsistencyWeight + c.Hallucination.RelationVerificationWeight +
		c.Hallucination.ContentOverlapWeight + c.Hallucination.SemanticCoherenceWeight; w <= 0 {
		errs = append(errs, "hallucination weights must sum to a positive value")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回图谱数据库连接字符串
func (g *GraphConfig) DSN() string {
	switch g.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			g.Host, g.Port, g.User, g.Password, g.Name, g.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			g.User, g.Password, g.Host, g.Port, g.Name,
		)
	case "sqlite":
		return g.Name
	default:
		return ""
	}
}
