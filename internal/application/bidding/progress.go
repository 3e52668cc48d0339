package bidding

import (
	"sync"
	"time"
)

// 运行阶段
const (
	StageIdle     = "idle"
	StageOutline  = "outline"
	StageSections = "sections"
	StageWriting  = "writing"
	StageDone     = "done"
	StageFailed   = "failed"
)

// RunStatus 最近一次运行的进度快照
type RunStatus struct {
	RunID      string     `json:"run_id,omitempty"`
	Stage      string     `json:"stage"`
	Completed  int        `json:"completed"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Running 是否仍在进行中
func (s RunStatus) Running() bool {
	return s.StartedAt != nil && s.FinishedAt == nil
}

// Progress 记录当前运行的进度，供查询接口读取
type Progress struct {
	mu     sync.RWMutex
	status RunStatus
	now    func() time.Time
}

func NewProgress() *Progress {
	return &Progress{status: RunStatus{Stage: StageIdle}, now: time.Now}
}

// Snapshot 返回当前状态的副本
func (p *Progress) Snapshot() RunStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Update 由小节生成器在每批完成后回调
func (p *Progress) Update(completed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Completed = completed
	p.status.Total = total
}

func (p *Progress) begin(runID, stage string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.status = RunStatus{RunID: runID, Stage: stage, StartedAt: &now}
}

func (p *Progress) stage(stage string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Stage = stage
}

func (p *Progress) finish(succeeded int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.status.FinishedAt = &now
	p.status.Succeeded = succeeded
	if err != nil {
		p.status.Stage = StageFailed
		p.status.Error = err.Error()
		return
	}
	p.status.Stage = StageDone
}
