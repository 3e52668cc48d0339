package prompt

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"z-bid-writer/internal/domain/entity"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	// PromptOutlineV1 大纲生成：系统角色 + 技术要求 + 评分标准 + 生成指令
	PromptOutlineV1 PromptID = "outline_v1"
	// PromptSectionV1 小节正文生成：系统角色 + 单条用户消息
	PromptSectionV1 PromptID = "section_v1"
)

type messageFile struct {
	role schema.RoleType
	path string
}

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	files, err := resolvePromptFiles(id)
	if err != nil {
		return nil, err
	}
	msgs := make([]schema.MessagesTemplate, 0, len(files))
	for _, f := range files {
		text, err := readEmbeddedText(f.path)
		if err != nil {
			return nil, err
		}
		switch f.role {
		case schema.System:
			msgs = append(msgs, schema.SystemMessage(text))
		default:
			msgs = append(msgs, schema.UserMessage(text))
		}
	}

	// 模板内含 JSON 示例，使用 Go 模板语法避免花括号转义
	tpl := einoprompt.FromMessages(schema.GoTemplate, msgs...)
	r.cache[id] = tpl
	return tpl, nil
}

// Messages 渲染指定模板
func (r *Registry) Messages(ctx context.Context, id PromptID, vars map[string]any) ([]*schema.Message, error) {
	tpl, err := r.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format prompt %s: %w", id, err)
	}
	return msgs, nil
}

// OutlineMessages 构造大纲生成的四条消息
func (r *Registry) OutlineMessages(ctx context.Context, inputs entity.BidInputs) ([]*schema.Message, error) {
	return r.Messages(ctx, PromptOutlineV1, map[string]any{
		"tech_content":  inputs.Tech.Content,
		"score_content": inputs.Score.Content,
	})
}

// SectionMessages 构造小节正文生成的消息
func (r *Registry) SectionMessages(ctx context.Context, job entity.GenerationJob) ([]*schema.Message, error) {
	return r.Messages(ctx, PromptSectionV1, map[string]any{
		"tech_req_md":         job.TechText,
		"scoring_criteria_md": job.ScoreText,
		"full_outline_md":     job.OutlineText,
		"title":               job.SubSectionTitle,
		"content_summary":     job.ContentSummary,
	})
}

func resolvePromptFiles(id PromptID) ([]messageFile, error) {
	switch id {
	case PromptOutlineV1:
		return []messageFile{
			{schema.System, "templates/outline_v1.system.txt"},
			{schema.User, "templates/outline_v1.tech.txt"},
			{schema.User, "templates/outline_v1.score.txt"},
			{schema.User, "templates/outline_v1.generate.txt"},
		}, nil
	case PromptSectionV1:
		return []messageFile{
			{schema.System, "templates/section_v1.system.txt"},
			{schema.User, "templates/section_v1.user.txt"},
		}, nil
	default:
		return nil, fmt.Errorf("unknown prompt id: %s", id)
	}
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
