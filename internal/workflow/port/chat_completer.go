package port

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"z-bid-writer/internal/domain/entity"
)

// ChatCompleter 定义工作流层对对话补全端点的最小依赖（port）。
type ChatCompleter interface {
	Call(ctx context.Context, msgs []*schema.Message, opts ...CallOption) (string, error)
}

// PromptProvider 提供大纲与小节的提示词消息
type PromptProvider interface {
	OutlineMessages(ctx context.Context, inputs entity.BidInputs) ([]*schema.Message, error)
	SectionMessages(ctx context.Context, job entity.GenerationJob) ([]*schema.Message, error)
}

// CallOptions 单次调用选项
type CallOptions struct {
	// JSONOutput 去掉回复外层的代码块标记
	JSONOutput bool
	// Attempts 非空时写入实际请求次数
	Attempts *int
}

type CallOption func(*CallOptions)

// WithJSONOutput 期望返回 JSON
func WithJSONOutput() CallOption {
	return func(o *CallOptions) {
		o.JSONOutput = true
	}
}

// WithAttempts 记录本次调用实际发出的请求次数
func WithAttempts(n *int) CallOption {
	return func(o *CallOptions) {
		o.Attempts = n
	}
}

// ApplyCallOptions 合并调用选项
func ApplyCallOptions(opts ...CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
