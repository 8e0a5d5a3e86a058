package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/policyrag"

// Tracer 返回本模块的 tracer。遥测关闭时为全局 noop tracer。
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartStage 为问答链路的单个阶段开启 span。
func StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, stage,
		trace.WithAttributes(attribute.String("policyrag.stage", stage)),
	)
}
