package entity

import "time"

// RunEventType 运行事件类型
type RunEventType string

const (
	RunEventOutlineGenerated  RunEventType = "outline_generated"
	RunEventDocumentGenerated RunEventType = "document_generated"
	RunEventRunFailed         RunEventType = "run_failed"
)

// RunEvent 生成运行的阶段性结果，发布给下游订阅方
type RunEvent struct {
	Type       RunEventType `json:"type"`
	RunID      string       `json:"run_id"`
	Total      int          `json:"total,omitempty"`
	Succeeded  int          `json:"succeeded,omitempty"`
	Failed     []string     `json:"failed,omitempty"`
	ErrorCode  string       `json:"error_code,omitempty"`
	Error      string       `json:"error,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}
