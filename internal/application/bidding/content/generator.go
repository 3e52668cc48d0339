// Package content 并发生成各小节正文
package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"z-bid-writer/internal/config"
	"z-bid-writer/internal/domain/entity"
	workflowport "z-bid-writer/internal/workflow/port"
	apperrors "z-bid-writer/pkg/errors"
	"z-bid-writer/pkg/logger"
	"z-bid-writer/pkg/metrics"
	"z-bid-writer/pkg/tracer"
)

const (
	// PlaceholderExhausted 调用最终失败时写入的正文
	PlaceholderExhausted = "生成失败，请手动补充。"
	// PlaceholderErrorPrefix 任务自身出错时的正文前缀，后接错误信息
	PlaceholderErrorPrefix = "生成失败："
)

// ContentCache 已生成小节的缓存，用于中断后续跑
type ContentCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, content string) error
}

// ProgressFunc 每个批次结束后回调
type ProgressFunc func(completed, total int)

type Option func(*Generator)

// WithCache 启用小节缓存
func WithCache(c ContentCache) Option {
	return func(g *Generator) {
		g.cache = c
	}
}

// WithProgress 设置进度回调
func WithProgress(fn ProgressFunc) Option {
	return func(g *Generator) {
		g.progress = fn
	}
}

// WithSleep 替换等待函数
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Generator) {
		g.sleep = fn
	}
}

// Generator 小节正文生成器。
// 同一个 Generator 上的所有调用共享一个并发上限。
type Generator struct {
	completer workflowport.ChatCompleter
	prompts   workflowport.PromptProvider
	cfg       config.GenerationConfig

	sem      *semaphore.Weighted
	cache    ContentCache
	progress ProgressFunc
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewGenerator(completer workflowport.ChatCompleter, prompts workflowport.PromptProvider, cfg config.GenerationConfig, opts ...Option) *Generator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 15
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 15
	}
	g := &Generator{
		completer: completer,
		prompts:   prompts,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateAll 按批次并发生成全部小节，返回与 jobs 顺序一致的结果。
// 单个小节失败只会得到占位正文；只有任务本身非法或 ctx 被取消时返回错误。
func (g *Generator) GenerateAll(ctx context.Context, jobs []entity.GenerationJob) (entity.JobOutcomes, error) {
	for i, job := range jobs {
		if strings.TrimSpace(job.SubSectionTitle) == "" || strings.TrimSpace(job.ChapterTitle) == "" {
			return nil, apperrors.Newf(apperrors.CodeInvalidParam, "job %d has blank sub-section or chapter title", i)
		}
	}

	total := len(jobs)
	outcomes := make(entity.JobOutcomes, total)
	if total == 0 {
		return outcomes, nil
	}

	ctx, span := tracer.Start(ctx, "bidding.content.GenerateAll")
	defer span.End()

	start := time.Now()
	logger.Info(ctx, "section generation started",
		"jobs", total,
		"batch_size", g.cfg.BatchSize,
		"concurrency", g.cfg.Concurrency,
	)

	completed := 0
	for lo := 0; lo < total; lo += g.cfg.BatchSize {
		hi := min(lo+g.cfg.BatchSize, total)

		if err := ctx.Err(); err != nil {
			g.fillCancelled(outcomes, jobs, lo, err)
			return outcomes, apperrors.Wrap(err, apperrors.CodeGenerationFailed, "section generation cancelled")
		}

		var eg errgroup.Group
		for i := lo; i < hi; i++ {
			eg.Go(func() error {
				outcomes[i] = entity.JobOutcome{Job: jobs[i], Result: g.runLimited(ctx, jobs[i])}
				return nil
			})
		}
		_ = eg.Wait()

		completed = hi
		if g.progress != nil {
			g.progress(completed, total)
		}
		metrics.GenerationProgress.Set(float64(completed) / float64(total))
		logger.Info(ctx, "batch completed",
			"completed", completed,
			"total", total,
			"percent", fmt.Sprintf("%.1f", float64(completed)*100/float64(total)),
		)

		if hi < total {
			_ = g.sleep(ctx, g.cfg.BatchPause)
		}
	}

	// 最后一批运行中被取消时，未完成的任务已是占位正文，不能当作成功返回
	if err := ctx.Err(); err != nil {
		return outcomes, apperrors.Wrap(err, apperrors.CodeGenerationFailed, "section generation cancelled")
	}

	logger.Info(ctx, "section generation finished",
		"success", outcomes.SuccessCount(),
		"total", total,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return outcomes, nil
}

// runLimited 占用一个并发名额执行任务，完成后稍作停顿再释放名额
func (g *Generator) runLimited(ctx context.Context, job entity.GenerationJob) entity.JobResult {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return failedResult(job, PlaceholderErrorPrefix+err.Error(), err)
	}
	defer g.sem.Release(1)

	res := g.runJob(ctx, job)
	_ = g.sleep(ctx, g.cfg.JobPause)
	return res
}

func (g *Generator) runJob(ctx context.Context, job entity.GenerationJob) entity.JobResult {
	ctx = logger.WithContext(ctx, logger.ChapterKey, job.ChapterTitle)
	ctx = logger.WithContext(ctx, logger.SectionKey, job.SubSectionTitle)
	start := time.Now()

	var key string
	if g.cache != nil {
		key = CacheKey(job)
		content, ok, err := g.cache.Get(ctx, key)
		switch {
		case err != nil:
			logger.Warn(ctx, "content cache read failed", "error", err.Error())
		case ok:
			metrics.SectionGenerationTotal.WithLabelValues("cached").Inc()
			logger.Debug(ctx, "section content served from cache")
			return entity.JobResult{Title: job.SubSectionTitle, Content: content, Success: true, Cached: true}
		}
	}

	msgs, err := g.prompts.SectionMessages(ctx, job)
	if err != nil {
		metrics.SectionGenerationTotal.WithLabelValues("failed").Inc()
		logger.Error(ctx, "failed to build section prompt", err)
		return failedResult(job, PlaceholderErrorPrefix+err.Error(), err)
	}

	var attempts int
	content, err := g.completer.Call(ctx, msgs, workflowport.WithAttempts(&attempts))
	if err != nil {
		metrics.SectionGenerationTotal.WithLabelValues("failed").Inc()
		logger.Error(ctx, "section generation failed", err,
			"attempts", attempts,
			"elapsed", time.Since(start).Round(time.Millisecond).String(),
		)
		res := failedResult(job, PlaceholderExhausted, err)
		res.Attempts = attempts
		return res
	}

	chars := len([]rune(content))
	metrics.SectionGenerationTotal.WithLabelValues("success").Inc()
	metrics.SectionContentChars.Observe(float64(chars))
	logger.Info(ctx, "section generated",
		"chars", chars,
		"attempts", attempts,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, content); err != nil {
			logger.Warn(ctx, "content cache write failed", "error", err.Error())
		}
	}
	return entity.JobResult{Title: job.SubSectionTitle, Content: content, Success: true, Attempts: attempts}
}

func (g *Generator) fillCancelled(outcomes entity.JobOutcomes, jobs []entity.GenerationJob, from int, err error) {
	for i := from; i < len(jobs); i++ {
		outcomes[i] = entity.JobOutcome{
			Job:    jobs[i],
			Result: failedResult(jobs[i], PlaceholderErrorPrefix+err.Error(), err),
		}
	}
}

func failedResult(job entity.GenerationJob, placeholder string, err error) entity.JobResult {
	return entity.JobResult{
		Title:   job.SubSectionTitle,
		Content: placeholder,
		Success: false,
		Err:     err.Error(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
