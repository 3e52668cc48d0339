// Package bidding 编排标书生成流程：输入 -> 提纲 -> 小节正文 -> 汇总写出
package bidding

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"z-bid-writer/internal/application/bidding/content"
	"z-bid-writer/internal/application/bidding/document"
	"z-bid-writer/internal/application/bidding/outline"
	"z-bid-writer/internal/domain/entity"
	"z-bid-writer/internal/domain/repository"
	apperrors "z-bid-writer/pkg/errors"
	"z-bid-writer/pkg/logger"
	"z-bid-writer/pkg/tracer"
)

// CachePurger 清空小节内容缓存
type CachePurger interface {
	Purge(ctx context.Context) (int, error)
}

// EventPublisher 运行事件发布
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, ev entity.RunEvent) error
}

// RunOptions 单次运行选项
type RunOptions struct {
	// Fresh 为 true 时先清空小节缓存，全部重新生成
	Fresh bool
}

// DocumentResult 正文生成结果
type DocumentResult struct {
	RunID     string        `json:"run_id"`
	Text      string        `json:"-"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    []string      `json:"failed,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RunResult 一次完整运行的结果
type RunResult struct {
	Outline  *outline.GenerateOutput
	Document *DocumentResult
}

// Service 标书生成服务；同一时间只允许一个生成任务运行
type Service struct {
	inputs     repository.InputRepository
	artifacts  repository.ArtifactRepository
	outlines   *outline.Generator
	contents   *content.Generator
	aggregator *document.Aggregator
	progress   *Progress
	purger     CachePurger
	events     EventPublisher

	running sync.Mutex
}

// ServiceOption 服务可选项
type ServiceOption func(*Service)

// WithCachePurger 设置缓存清理器，未设置时 Fresh 选项不生效
func WithCachePurger(p CachePurger) ServiceOption {
	return func(s *Service) {
		s.purger = p
	}
}

// WithEventPublisher 设置运行事件发布器
func WithEventPublisher(p EventPublisher) ServiceOption {
	return func(s *Service) {
		s.events = p
	}
}

// NewService 创建标书生成服务。progress 应与 contents 的进度回调为同一实例
func NewService(
	inputs repository.InputRepository,
	artifacts repository.ArtifactRepository,
	outlines *outline.Generator,
	contents *content.Generator,
	aggregator *document.Aggregator,
	progress *Progress,
	opts ...ServiceOption,
) *Service {
	if progress == nil {
		progress = NewProgress()
	}
	s := &Service{
		inputs:     inputs,
		artifacts:  artifacts,
		outlines:   outlines,
		contents:   contents,
		aggregator: aggregator,
		progress:   progress,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status 最近一次运行的进度
func (s *Service) Status() RunStatus {
	return s.progress.Snapshot()
}

// Inputs 读取当前输入文档
func (s *Service) Inputs(ctx context.Context) (entity.BidInputs, error) {
	return s.inputs.LoadInputs(ctx)
}

// SaveInputs 更新输入文档，nil 表示保持不变
func (s *Service) SaveInputs(ctx context.Context, tech, score *string) error {
	if tech == nil && score == nil {
		return apperrors.New(apperrors.CodeInvalidParam, "nothing to update")
	}
	if tech != nil {
		if err := s.inputs.SaveInput(ctx, entity.DocTech, *tech); err != nil {
			return err
		}
	}
	if score != nil {
		if err := s.inputs.SaveInput(ctx, entity.DocScore, *score); err != nil {
			return err
		}
	}
	return nil
}

// Outline 读取已保存的提纲
func (s *Service) Outline(ctx context.Context) (*entity.Outline, error) {
	raw, err := s.artifacts.LoadOutline(ctx)
	if err != nil {
		return nil, err
	}
	return outline.Parse(raw)
}

// SaveOutline 校验并保存人工编辑后的提纲
func (s *Service) SaveOutline(ctx context.Context, raw any) (*entity.Outline, error) {
	o, err := outline.Parse(raw)
	if err != nil {
		return nil, err
	}
	data, err := o.JSON()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to encode outline")
	}
	if err := s.artifacts.SaveOutline(ctx, string(data), o.DisplayText()); err != nil {
		return nil, err
	}
	logger.Info(ctx, "outline replaced", "sub_sections", o.Counts().SubSections)
	return o, nil
}

// Document 读取已生成的正文
func (s *Service) Document(ctx context.Context) (string, error) {
	return s.artifacts.LoadDocument(ctx)
}

// GenerateOutline 读取输入，生成提纲并保存
func (s *Service) GenerateOutline(ctx context.Context) (out *outline.GenerateOutput, err error) {
	ctx, release, err := s.begin(ctx, StageOutline)
	if err != nil {
		return nil, err
	}
	var done int
	defer settle(release, &done, &err)

	out, err = s.generateOutline(ctx)
	if err != nil {
		s.publishFailure(ctx, err)
		return nil, err
	}
	s.publishOutline(ctx, out)
	return out, nil
}

// GenerateDocument 基于已保存的提纲生成全部小节并写出正文
func (s *Service) GenerateDocument(ctx context.Context, opts RunOptions) (res *DocumentResult, err error) {
	ctx, release, err := s.begin(ctx, StageSections)
	if err != nil {
		return nil, err
	}
	var done int
	defer settle(release, &done, &err)

	res, err = s.generateDocument(ctx, opts)
	if err != nil {
		s.publishFailure(ctx, err)
		return nil, err
	}
	done = res.Succeeded
	s.publishDocument(ctx, res)
	return res, nil
}

// Run 依次生成提纲和正文
func (s *Service) Run(ctx context.Context, opts RunOptions) (_ *RunResult, err error) {
	ctx, release, err := s.begin(ctx, StageOutline)
	if err != nil {
		return nil, err
	}
	var done int
	defer settle(release, &done, &err)

	out, err := s.generateOutline(ctx)
	if err != nil {
		s.publishFailure(ctx, err)
		return nil, err
	}
	s.publishOutline(ctx, out)

	res, err := s.generateDocument(ctx, opts)
	if err != nil {
		s.publishFailure(ctx, err)
		return nil, err
	}
	done = res.Succeeded
	s.publishDocument(ctx, res)
	return &RunResult{Outline: out, Document: res}, nil
}

// begin 占用运行锁并为本次运行分配 run_id
func (s *Service) begin(ctx context.Context, stage string) (context.Context, func(int, error), error) {
	if !s.running.TryLock() {
		return ctx, nil, apperrors.New(apperrors.CodeConflict, "a generation run is already in progress")
	}

	runID := uuid.NewString()
	ctx = logger.WithContext(ctx, logger.RunIDKey, runID)
	s.progress.begin(runID, stage)

	return ctx, func(n int, err error) {
		s.progress.finish(n, err)
		s.running.Unlock()
	}, nil
}

// settle 在 defer 中结束运行并释放运行锁；panic 时记为失败后继续向上抛出
func settle(release func(int, error), done *int, err *error) {
	if r := recover(); r != nil {
		release(0, apperrors.Newf(apperrors.CodeInternalError, "run panicked: %v", r))
		panic(r)
	}
	release(*done, *err)
}

func (s *Service) generateOutline(ctx context.Context) (*outline.GenerateOutput, error) {
	s.progress.stage(StageOutline)

	inputs, err := s.inputs.LoadInputs(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.outlines.Generate(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if err := s.artifacts.SaveOutline(ctx, out.JSON, out.Markdown); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) generateDocument(ctx context.Context, opts RunOptions) (*DocumentResult, error) {
	ctx, span := tracer.Start(ctx, "bidding.GenerateDocument")
	defer span.End()

	start := time.Now()
	inputs, err := s.inputs.LoadInputs(ctx)
	if err != nil {
		return nil, err
	}
	if err := inputs.Validate(); err != nil {
		return nil, err
	}
	o, err := s.Outline(ctx)
	if err != nil {
		return nil, err
	}

	if opts.Fresh && s.purger != nil {
		n, err := s.purger.Purge(ctx)
		if err != nil {
			logger.Warn(ctx, "failed to purge content cache", "error", err.Error())
		} else {
			logger.Info(ctx, "content cache purged", "keys", n)
		}
	}

	jobs := content.BuildJobs(o, inputs)
	s.progress.stage(StageSections)
	s.progress.Update(0, len(jobs))

	outcomes, err := s.contents.GenerateAll(ctx, jobs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.progress.stage(StageWriting)
	text, err := s.aggregator.Commit(ctx, outcomes)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	res := &DocumentResult{
		RunID:     logger.RunIDFromContext(ctx),
		Text:      text,
		Total:     len(outcomes),
		Succeeded: outcomes.SuccessCount(),
		Failed:    outcomes.Failed(),
		Elapsed:   time.Since(start).Round(time.Millisecond),
	}

	logger.Info(ctx, "document generated",
		"succeeded", res.Succeeded,
		"total", res.Total,
		"elapsed", res.Elapsed.String(),
	)
	return res, nil
}

func (s *Service) publishOutline(ctx context.Context, out *outline.GenerateOutput) {
	s.publish(ctx, entity.RunEvent{
		Type:  entity.RunEventOutlineGenerated,
		Total: out.Outline.Counts().SubSections,
	})
}

func (s *Service) publishDocument(ctx context.Context, res *DocumentResult) {
	s.publish(ctx, entity.RunEvent{
		Type:      entity.RunEventDocumentGenerated,
		Total:     res.Total,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
	})
}

func (s *Service) publishFailure(ctx context.Context, err error) {
	s.publish(ctx, entity.RunEvent{
		Type:      entity.RunEventRunFailed,
		ErrorCode: string(apperrors.CodeOf(err)),
		Error:     err.Error(),
	})
}

// publish 发布失败只记录日志，不影响运行结果
func (s *Service) publish(ctx context.Context, ev entity.RunEvent) {
	if s.events == nil {
		return
	}
	ev.RunID = logger.RunIDFromContext(ctx)
	ev.OccurredAt = time.Now()
	if err := s.events.PublishRunEvent(ctx, ev); err != nil {
		logger.Warn(ctx, "failed to publish run event", "type", string(ev.Type), "error", err.Error())
	}
}
