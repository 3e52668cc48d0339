package eino

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"z-bid-writer/pkg/logger"
	"z-bid-writer/pkg/metrics"
)

// startTimeKey 在 Context 中记录开始时间，供 OnEnd/OnError 计算耗时
type startTimeKey struct{}

// newPromptCallbackHandler 提示词模板渲染的回调：追踪、计数、耗时和渲染后的字数
func newPromptCallbackHandler() *cbtemplate.PromptCallbackHandler {
	return &cbtemplate.PromptCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *einoprompt.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			attrs := []attribute.KeyValue{
				attribute.Int("prompt.variables", variableCount(input)),
			}
			if info != nil {
				attrs = append(attrs,
					attribute.String("eino.node_name", info.Name),
					attribute.String("eino.type", info.Type),
				)
			}

			ctx, _ = otel.Tracer("eino").Start(ctx, "prompt.format", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *einoprompt.CallbackOutput) context.Context {
			messages, chars := renderedSize(output)

			metrics.PromptFormatTotal.WithLabelValues("success").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.PromptFormatDuration.Observe(d)
			}
			logger.Debug(ctx, "prompt rendered", "messages", messages, "chars", chars)

			span := trace.SpanFromContext(ctx)
			span.SetAttributes(
				attribute.Int("prompt.messages", messages),
				attribute.Int("prompt.chars", chars),
			)
			span.End()
			return ctx
		},

		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			metrics.PromptFormatTotal.WithLabelValues("error").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.PromptFormatDuration.Observe(d)
			}
			logger.Warn(ctx, "prompt render failed", "error", err.Error())

			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return ctx
		},
	}
}

func variableCount(in *einoprompt.CallbackInput) int {
	if in == nil {
		return 0
	}
	return len(in.Variables)
}

// renderedSize 渲染结果的消息数和字符数
func renderedSize(out *einoprompt.CallbackOutput) (messages, chars int) {
	if out == nil {
		return 0, 0
	}
	for _, msg := range out.Result {
		if msg == nil {
			continue
		}
		messages++
		chars += len([]rune(msg.Content))
	}
	return messages, chars
}

// elapsedSeconds 从 OnStart 写入的开始时间到现在的秒数，取不到时返回 0
func elapsedSeconds(ctx context.Context) float64 {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}
