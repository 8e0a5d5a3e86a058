package llm

import (
	"context"
	"time"

	"github.com/BaSui01/policyrag/llm/retry"
	"github.com/BaSui01/policyrag/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientConfig 客户端配置
type ClientConfig struct {
	// 首选模型
	Model string
	// 备用模型链，主模型耗尽重试后按序降级
	FallbackModels []string
	// 温度参数
	Temperature float64
	// 最大生成 Token 数
	MaxTokens int
	// 单次请求超时
	Timeout time.Duration
	// 每个模型的最大重试次数
	MaxRetries int
	// 每秒请求上限（0 表示不限流）
	RateLimitRPS float64
	// 突发请求上限
	RateLimitBurst int
}

// DefaultClientConfig 返回默认客户端配置
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Temperature:    0.3,
		MaxTokens:      2048,
		Timeout:        60 * time.Second,
		MaxRetries:     2,
		RateLimitRPS:   10,
		RateLimitBurst: 20,
	}
}

// MetricsRecorder 记录 LLM 请求指标的可选依赖。
type MetricsRecorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// Client 在 Provider 之上叠加限流、重试与模型降级。
// 所有生成类调用都经由 Client，上层不直接持有 Provider。
type Client struct {
	provider Provider
	cfg      ClientConfig
	limiter  *rate.Limiter
	retryer  retry.Retryer
	metrics  MetricsRecorder
	logger   *zap.Logger
}

// NewClient 创建 LLM 客户端，logger 为 nil 时使用 Nop。
func NewClient(provider Provider, cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	return &Client{
		provider: provider,
		cfg:      cfg,
		limiter:  limiter,
		retryer: retry.NewBackoffRetryer(&retry.RetryPolicy{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: 1 * time.Second,
			MaxDelay:     15 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		}, logger),
		logger: logger.With(zap.String("component", "llm_client")),
	}
}

// Provider 返回底层 Provider。
func (c *Client) Provider() Provider { return c.provider }

// SetMetrics 注入请求指标记录器，nil 表示不记录。
func (c *Client) SetMetrics(metrics MetricsRecorder) { c.metrics = metrics }

// Generate 执行一次生成。依次尝试首选模型与备用模型，
// 每个模型内部按策略重试；全部失败时返回 LLM_SERVICE_ERROR。
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	models := append([]string{c.cfg.Model}, c.cfg.FallbackModels...)

	var lastErr error
	for i, model := range models {
		content, err := c.generateWithModel(ctx, model, system, prompt)
		if err == nil {
			if i > 0 {
				c.logger.Warn("主模型失败，已降级",
					zap.String("model", model),
					zap.Int("fallback_index", i),
				)
			}
			return content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("模型调用失败",
			zap.String("model", model),
			zap.Error(err),
		)
	}

	return "", types.NewError(types.ErrLLMService, "all models exhausted").
		WithCause(lastErr).WithProvider(c.provider.Name())
}

func (c *Client) generateWithModel(ctx context.Context, model, system, prompt string) (string, error) {
	var messages []Message
	if system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})

	req := &ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	started := time.Now()
	result, err := c.retryer.DoWithResult(ctx, func() (any, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		return c.provider.Completion(callCtx, req)
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordLLMRequest(c.provider.Name(), model, "error", time.Since(started), 0, 0)
		}
		return "", err
	}
	resp := result.(*ChatResponse)
	if c.metrics != nil {
		c.metrics.RecordLLMRequest(c.provider.Name(), model, "success", time.Since(started),
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return resp.Content, nil
}
