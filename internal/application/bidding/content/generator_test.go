package content

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-bid-writer/internal/config"
	"z-bid-writer/internal/domain/entity"
	"z-bid-writer/internal/workflow/port"
	"z-bid-writer/internal/workflow/prompt"
	apperrors "z-bid-writer/pkg/errors"
)

// echoCompleter 以小节标题作为正文返回，可注入随机延迟和失败
type echoCompleter struct {
	maxDelay time.Duration
	fail     map[string]error

	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (c *echoCompleter) Call(ctx context.Context, msgs []*schema.Message, opts ...port.CallOption) (string, error) {
	c.calls.Add(1)
	n := c.inflight.Add(1)
	defer c.inflight.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if c.maxDelay > 0 {
		time.Sleep(time.Duration(rand.Int64N(int64(c.maxDelay))))
	}

	co := port.ApplyCallOptions(opts...)
	if co.Attempts != nil {
		*co.Attempts = 1
	}

	title := titleFromPrompt(msgs)
	if err, ok := c.fail[title]; ok {
		return "", err
	}
	return "正文:" + title, nil
}

// stubPrompts 把小节标题直接作为用户消息
type stubPrompts struct {
	err error
}

func (p stubPrompts) OutlineMessages(context.Context, entity.BidInputs) ([]*schema.Message, error) {
	return nil, errors.New("not used")
}

func (p stubPrompts) SectionMessages(_ context.Context, job entity.GenerationJob) ([]*schema.Message, error) {
	if p.err != nil {
		return nil, p.err
	}
	return []*schema.Message{schema.UserMessage(job.SubSectionTitle)}, nil
}

func titleFromPrompt(msgs []*schema.Message) string {
	return msgs[len(msgs)-1].Content
}

func noSleep(context.Context, time.Duration) error { return nil }

func makeJobs(n int) []entity.GenerationJob {
	jobs := make([]entity.GenerationJob, n)
	for i := range jobs {
		jobs[i] = entity.GenerationJob{
			SubSectionTitle: fmt.Sprintf("1.%d.1 小节%d", i/3+1, i),
			ChapterTitle:    "第一章",
			SectionTitle:    fmt.Sprintf("1.%d 节", i/3+1),
		}
	}
	return jobs
}

func TestGenerateAll_PreservesOrderUnderRandomDelays(t *testing.T) {
	c := &echoCompleter{maxDelay: 20 * time.Millisecond}
	g := NewGenerator(c, stubPrompts{}, config.GenerationConfig{Concurrency: 5, BatchSize: 7}, WithSleep(noSleep))

	jobs := makeJobs(23)
	outcomes, err := g.GenerateAll(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, outcomes, len(jobs))

	for i, o := range outcomes {
		assert.Equal(t, jobs[i], o.Job)
		assert.Equal(t, jobs[i].SubSectionTitle, o.Result.Title)
		assert.Equal(t, "正文:"+jobs[i].SubSectionTitle, o.Result.Content)
		assert.True(t, o.Result.Success)
		assert.Equal(t, 1, o.Result.Attempts)
	}
}

func TestGenerateAll_RespectsConcurrencyCap(t *testing.T) {
	c := &echoCompleter{maxDelay: 10 * time.Millisecond}
	g := NewGenerator(c, stubPrompts{}, config.GenerationConfig{Concurrency: 3, BatchSize: 15}, WithSleep(noSleep))

	_, err := g.GenerateAll(context.Background(), makeJobs(30))
	require.NoError(t, err)
	assert.LessOrEqual(t, c.peak.Load(), int32(3))
	assert.EqualValues(t, 30, c.calls.Load())
}

func TestGenerateAll_CapSharedAcrossCalls(t *testing.T) {
	c := &echoCompleter{maxDelay: 10 * time.Millisecond}
	g := NewGenerator(c, stubPrompts{}, config.GenerationConfig{Concurrency: 2, BatchSize: 10}, WithSleep(noSleep))

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.GenerateAll(context.Background(), makeJobs(10))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.peak.Load(), int32(2))
}

func TestGenerateAll_FailurePlaceholders(t *testing.T) {
	jobs := makeJobs(3)
	c := &echoCompleter{fail: map[string]error{
		jobs[1].SubSectionTitle: apperrors.New(apperrors.CodeRateLimited, "rate limited"),
	}}
	g := NewGenerator(c, stubPrompts{}, config.GenerationConfig{Concurrency: 2, BatchSize: 2}, WithSleep(noSleep))

	outcomes, err := g.GenerateAll(context.Background(), jobs)
	require.NoError(t, err)

	assert.True(t, outcomes[0].Result.Success)
	assert.False(t, outcomes[1].Result.Success)
	assert.Equal(t, PlaceholderExhausted, outcomes[1].Result.Content)
	assert.Contains(t, outcomes[1].Result.Err, "rate limited")
	assert.True(t, outcomes[2].Result.Success)
	assert.Equal(t, 2, outcomes.SuccessCount())
}

func TestGenerateAll_PromptErrorPlaceholder(t *testing.T) {
	g := NewGenerator(&echoCompleter{}, stubPrompts{err: errors.New("template broken")},
		config.GenerationConfig{Concurrency: 1, BatchSize: 1}, WithSleep(noSleep))

	outcomes, err := g.GenerateAll(context.Background(), makeJobs(1))
	require.NoError(t, err)
	assert.Equal(t, "生成失败：template broken", outcomes[0].Result.Content)
	assert.False(t, outcomes[0].Result.Success)
}

func TestGenerateAll_RejectsBlankTitles(t *testing.T) {
	c := &echoCompleter{}
	g := NewGenerator(c, stubPrompts{}, config.GenerationConfig{}, WithSleep(noSleep))

	jobs := makeJobs(2)
	jobs[1].ChapterTitle = " "
	_, err := g.GenerateAll(context.Background(), jobs)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParam)
	assert.Zero(t, c.calls.Load())
}

func TestGenerateAll_Empty(t *testing.T) {
	g := NewGenerator(&echoCompleter{}, stubPrompts{}, config.GenerationConfig{})
	outcomes, err := g.GenerateAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestGenerateAll_ProgressAndPauses(t *testing.T) {
	var mu sync.Mutex
	var pauses []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		pauses = append(pauses, d)
		return nil
	}
	var progress [][2]int

	cfg := config.GenerationConfig{Concurrency: 4, BatchSize: 4, BatchPause: 200 * time.Millisecond, JobPause: 50 * time.Millisecond}
	g := NewGenerator(&echoCompleter{}, stubPrompts{}, cfg,
		WithSleep(sleep),
		WithProgress(func(completed, total int) { progress = append(progress, [2]int{completed, total}) }),
	)

	_, err := g.GenerateAll(context.Background(), makeJobs(10))
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{4, 10}, {8, 10}, {10, 10}}, progress)

	var batch, job int
	for _, d := range pauses {
		switch d {
		case cfg.BatchPause:
			batch++
		case cfg.JobPause:
			job++
		}
	}
	assert.Equal(t, 2, batch)
	assert.Equal(t, 10, job)
}

func TestGenerateAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGenerator(&echoCompleter{}, stubPrompts{}, config.GenerationConfig{Concurrency: 2, BatchSize: 2},
		WithSleep(noSleep),
		WithProgress(func(completed, total int) {
			if completed == 2 {
				cancel()
			}
		}),
	)

	jobs := makeJobs(5)
	outcomes, err := g.GenerateAll(ctx, jobs)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 5)
	assert.True(t, outcomes[1].Result.Success)
	for _, o := range outcomes[2:] {
		assert.False(t, o.Result.Success)
		assert.Equal(t, jobs[2].ChapterTitle, o.Job.ChapterTitle)
	}
}

// cancellingCompleter 第一次调用时取消 ctx，模拟最后一批运行中途被中断
type cancellingCompleter struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancellingCompleter) Call(ctx context.Context, _ []*schema.Message, _ ...port.CallOption) (string, error) {
	c.once.Do(c.cancel)
	<-ctx.Done()
	return "", apperrors.Wrap(ctx.Err(), apperrors.CodeTimeout, "call aborted")
}

func TestGenerateAll_CancelledDuringLastBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := NewGenerator(&cancellingCompleter{cancel: cancel}, stubPrompts{},
		config.GenerationConfig{Concurrency: 2, BatchSize: 5}, WithSleep(noSleep))

	outcomes, err := g.GenerateAll(ctx, makeJobs(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, apperrors.ErrGenerationFailed)
	require.Len(t, outcomes, 2)
	assert.Zero(t, outcomes.SuccessCount())
}

type memoryCache struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
}

func (m *memoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = content
	return nil
}

func TestGenerateAll_CacheReuse(t *testing.T) {
	cache := &memoryCache{data: map[string]string{}}
	c := &echoCompleter{}
	g := NewGenerator(c, stubPrompts{}, config.GenerationConfig{Concurrency: 3, BatchSize: 3}, WithSleep(noSleep), WithCache(cache))

	jobs := makeJobs(4)
	_, err := g.GenerateAll(context.Background(), jobs)
	require.NoError(t, err)
	assert.EqualValues(t, 4, c.calls.Load())
	assert.Len(t, cache.data, 4)

	outcomes, err := g.GenerateAll(context.Background(), jobs)
	require.NoError(t, err)
	assert.EqualValues(t, 4, c.calls.Load())
	for i, o := range outcomes {
		assert.True(t, o.Result.Cached)
		assert.Equal(t, "正文:"+jobs[i].SubSectionTitle, o.Result.Content)
	}
}

func TestGenerateAll_CacheErrorsDoNotFailJobs(t *testing.T) {
	cache := &memoryCache{data: map[string]string{}, getErr: errors.New("redis down")}
	g := NewGenerator(&echoCompleter{}, stubPrompts{}, config.GenerationConfig{Concurrency: 1, BatchSize: 2}, WithSleep(noSleep), WithCache(cache))

	outcomes, err := g.GenerateAll(context.Background(), makeJobs(2))
	require.NoError(t, err)
	assert.Equal(t, 2, outcomes.SuccessCount())
}

func TestBuildJobs(t *testing.T) {
	o := &entity.Outline{BodyParagraphs: []entity.Chapter{{
		ChapterTitle: "第一章 系统架构",
		Sections: []entity.Section{{
			SectionTitle: "1.1 高可用设计",
			SubSections: []entity.SubSection{
				{SubSectionTitle: "1.1.1 集群部署", ContentSummary: "集群"},
				{SubSectionTitle: "1.1.2 故障切换", ContentSummary: "切换"},
			},
		}},
	}}}
	inputs := entity.NewBidInputs("需要高可用", "系统架构(40分)")

	jobs := BuildJobs(o, inputs)
	require.Len(t, jobs, 2)
	assert.Equal(t, "1.1.1 集群部署", jobs[0].SubSectionTitle)
	assert.Equal(t, "切换", jobs[1].ContentSummary)
	assert.Equal(t, "1.1 高可用设计", jobs[1].SectionTitle)
	assert.Equal(t, o.DisplayText(), jobs[0].OutlineText)
	assert.Equal(t, "需要高可用", jobs[0].TechText)
	assert.Equal(t, "系统架构(40分)", jobs[0].ScoreText)

	assert.NotEqual(t, CacheKey(jobs[0]), CacheKey(jobs[1]))
	assert.Equal(t, CacheKey(jobs[0]), CacheKey(BuildJobs(o, inputs)[0]))

	changedTech := BuildJobs(o, entity.NewBidInputs("完全不同的技术要求", "系统架构(40分)"))
	changedScore := BuildJobs(o, entity.NewBidInputs("需要高可用", "完全不同的评分"))
	assert.NotEqual(t, CacheKey(jobs[0]), CacheKey(changedTech[0]))
	assert.NotEqual(t, CacheKey(jobs[0]), CacheKey(changedScore[0]))
}

func TestGenerateAll_WithPromptRegistry(t *testing.T) {
	o := &entity.Outline{BodyParagraphs: []entity.Chapter{{
		ChapterTitle: "第一章",
		Sections: []entity.Section{{
			SectionTitle: "1.1 节",
			SubSections:  []entity.SubSection{{SubSectionTitle: "1.1.1 小节", ContentSummary: "摘要"}},
		}},
	}}}
	var seen []*schema.Message
	c := completerFunc(func(_ context.Context, msgs []*schema.Message, _ ...port.CallOption) (string, error) {
		seen = msgs
		return "正文", nil
	})
	g := NewGenerator(c, prompt.NewRegistry(), config.GenerationConfig{Concurrency: 1, BatchSize: 1}, WithSleep(noSleep))

	outcomes, err := g.GenerateAll(context.Background(), BuildJobs(o, entity.NewBidInputs("技术", "评分")))
	require.NoError(t, err)
	assert.Equal(t, "正文", outcomes[0].Result.Content)
	require.Len(t, seen, 2)
	assert.Contains(t, seen[1].Content, "1.1.1 小节")
	assert.Contains(t, seen[1].Content, "摘要")
}

type completerFunc func(ctx context.Context, msgs []*schema.Message, opts ...port.CallOption) (string, error)

func (f completerFunc) Call(ctx context.Context, msgs []*schema.Message, opts ...port.CallOption) (string, error) {
	return f(ctx, msgs, opts...)
}
