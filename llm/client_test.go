package llm

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/policyrag/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider 按模型名返回预设结果，用于验证降级链。
type scriptedProvider struct {
	responses map[string]string
	errors    map[string]error
	usage     ChatUsage
	calls     []string
}

func (p *scriptedProvider) Completion(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	p.calls = append(p.calls, req.Model)
	if err, ok := p.errors[req.Model]; ok {
		return nil, err
	}
	return &ChatResponse{Model: req.Model, Content: p.responses[req.Model], Usage: p.usage}, nil
}

func (p *scriptedProvider) HealthCheck(context.Context) error { return nil }
func (p *scriptedProvider) Name() string                      { return "scripted" }

func newTestClient(p Provider, fallbacks ...string) *Client {
	cfg := DefaultClientConfig()
	cfg.Model = "primary"
	cfg.FallbackModels = fallbacks
	cfg.MaxRetries = 0
	cfg.RateLimitRPS = 0
	cfg.Timeout = time.Second
	return NewClient(p, cfg, nil)
}

func TestClientGenerate(t *testing.T) {
	p := &scriptedProvider{responses: map[string]string{"primary": "答案"}}
	c := newTestClient(p)

	out, err := c.Generate(context.Background(), "system", "问题")
	require.NoError(t, err)
	assert.Equal(t, "答案", out)
	assert.Equal(t, []string{"primary"}, p.calls)
}

func TestClientFallsBackToSecondaryModel(t *testing.T) {
	p := &scriptedProvider{
		responses: map[string]string{"backup": "备用答案"},
		errors: map[string]error{
			"primary": types.NewError(types.ErrModelOverloaded, "overloaded"),
		},
	}
	c := newTestClient(p, "backup")

	out, err := c.Generate(context.Background(), "", "问题")
	require.NoError(t, err)
	assert.Equal(t, "备用答案", out)
	assert.Equal(t, []string{"primary", "backup"}, p.calls)
}

// recordedRequest 记录一次指标上报的关键字段。
type recordedRequest struct {
	provider, model, status        string
	promptTokens, completionTokens int
}

type stubMetrics struct {
	records []recordedRequest
}

func (m *stubMetrics) RecordLLMRequest(provider, model, status string, _ time.Duration, promptTokens, completionTokens int) {
	m.records = append(m.records, recordedRequest{provider, model, status, promptTokens, completionTokens})
}

func TestClientRecordsRequestMetrics(t *testing.T) {
	p := &scriptedProvider{
		responses: map[string]string{"backup": "备用答案"},
		errors: map[string]error{
			"primary": types.NewError(types.ErrModelOverloaded, "overloaded"),
		},
		usage: ChatUsage{PromptTokens: 12, CompletionTokens: 34},
	}
	c := newTestClient(p, "backup")
	metrics := &stubMetrics{}
	c.SetMetrics(metrics)

	_, err := c.Generate(context.Background(), "", "问题")
	require.NoError(t, err)

	require.Len(t, metrics.records, 2)
	assert.Equal(t, recordedRequest{"scripted", "primary", "error", 0, 0}, metrics.records[0])
	assert.Equal(t, recordedRequest{"scripted", "backup", "success", 12, 34}, metrics.records[1])
}

func TestClientAllModelsExhausted(t *testing.T) {
	p := &scriptedProvider{
		errors: map[string]error{
			"primary": types.NewError(types.ErrUpstreamError, "down"),
			"backup":  types.NewError(types.ErrUpstreamError, "down"),
		},
	}
	c := newTestClient(p, "backup")

	_, err := c.Generate(context.Background(), "", "问题")
	require.Error(t, err)
	assert.Equal(t, types.ErrLLMService, types.GetErrorCode(err))
}

func TestClientRetriesRetryableErrors(t *testing.T) {
	attempts := 0
	p := &flakyProvider{failures: 1, onCall: func() { attempts++ }}

	cfg := DefaultClientConfig()
	cfg.Model = "m"
	cfg.MaxRetries = 2
	cfg.RateLimitRPS = 0
	c := NewClient(p, cfg, nil)

	out, err := c.Generate(context.Background(), "", "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, attempts)
}

type flakyProvider struct {
	failures int
	onCall   func()
}

func (p *flakyProvider) Completion(context.Context, *ChatRequest) (*ChatResponse, error) {
	p.onCall()
	if p.failures > 0 {
		p.failures--
		return nil, types.NewError(types.ErrUpstreamError, "transient").WithRetryable(true)
	}
	return &ChatResponse{Content: "ok"}, nil
}

func (p *flakyProvider) HealthCheck(context.Context) error { return nil }
func (p *flakyProvider) Name() string                      { return "flaky" }
