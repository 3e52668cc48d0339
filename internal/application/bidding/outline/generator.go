// Package outline 生成并校验标书提纲
package outline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"z-bid-writer/internal/domain/entity"
	"z-bid-writer/internal/workflow/node"
	workflowport "z-bid-writer/internal/workflow/port"
	apperrors "z-bid-writer/pkg/errors"
	"z-bid-writer/pkg/logger"
	"z-bid-writer/pkg/metrics"
	"z-bid-writer/pkg/tracer"
)

// GenerateOutput 提纲生成结果
type GenerateOutput struct {
	Outline *entity.Outline
	// JSON 规范化后的提纲 JSON
	JSON string
	// Markdown 提纲预览文本
	Markdown string
	// Raw 模型原始回复
	Raw string
}

type Generator struct {
	completer workflowport.ChatCompleter
	prompts   workflowport.PromptProvider
}

func NewGenerator(completer workflowport.ChatCompleter, prompts workflowport.PromptProvider) *Generator {
	return &Generator{completer: completer, prompts: prompts}
}

// Generate 校验输入，发起一次提纲生成调用，整理并校验返回的 JSON
func (g *Generator) Generate(ctx context.Context, inputs entity.BidInputs) (*GenerateOutput, error) {
	if g == nil || g.completer == nil || g.prompts == nil {
		return nil, apperrors.New(apperrors.CodeInternalError, "outline generator not configured")
	}
	if err := inputs.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "bidding.outline.Generate")
	defer span.End()

	start := time.Now()
	out, err := g.generate(ctx, inputs)
	if err != nil {
		metrics.OutlineGenerationTotal.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
		span.RecordError(err)
		logger.Error(ctx, "outline generation failed", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	counts := out.Outline.Counts()
	span.SetAttributes(
		attribute.Int("outline.chapters", counts.Chapters),
		attribute.Int("outline.sections", counts.Sections),
		attribute.Int("outline.sub_sections", counts.SubSections),
	)
	metrics.OutlineGenerationTotal.WithLabelValues("success").Inc()
	logger.Info(ctx, "outline generated",
		"chapters", counts.Chapters,
		"sections", counts.Sections,
		"sub_sections", counts.SubSections,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (g *Generator) generate(ctx context.Context, inputs entity.BidInputs) (*GenerateOutput, error) {
	msgs, err := g.prompts.OutlineMessages(ctx, inputs)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to build outline prompt")
	}

	raw, err := g.completer.Call(ctx, msgs, workflowport.WithJSONOutput())
	if err != nil {
		return nil, err
	}

	clean, err := node.Sanitize(raw)
	if err != nil {
		logger.Warn(ctx, "outline response could not be repaired", "chars", len(raw))
		return nil, err
	}

	o, err := Parse(clean)
	if err != nil {
		return nil, err
	}

	data, err := o.JSON()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to encode outline")
	}
	return &GenerateOutput{
		Outline:  o,
		JSON:     string(data),
		Markdown: o.DisplayText(),
		Raw:      raw,
	}, nil
}
