package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/BaSui01/policyrag/types"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatResponse struct {
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model"`
	Content   string    `json:"content"`
	Usage     ChatUsage `json:"usage,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Provider 是对话模型的统一抽象。实现必须是并发安全的。
type Provider interface {
	// Completion 执行一次非流式补全
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// HealthCheck 探测上游可用性
	HealthCheck(ctx context.Context) error
	// Name 返回 Provider 名称
	Name() string
}

// MapHTTPError 将上游 HTTP 状态映射为统一的 *types.Error。
func MapHTTPError(status int, msg, provider string) *types.Error {
	code := types.ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized:
		code = types.ErrAuthentication
	case http.StatusNotFound:
		code = types.ErrModelNotFound
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	case http.StatusRequestEntityTooLarge:
		code = types.ErrContextTooLong
	case http.StatusServiceUnavailable:
		code = types.ErrServiceUnavailable
	case http.StatusGatewayTimeout:
		code = types.ErrUpstreamTimeout
	}

	return types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider(provider)
}
