// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-bid-writer/internal/domain/entity"
)

// InputRepository 输入文档存取
type InputRepository interface {
	// LoadInputs 读取技术要求和评分标准；文件不存在时对应文档 Present 为 false
	LoadInputs(ctx context.Context) (entity.BidInputs, error)
	// SaveInput 覆盖写入一份输入文档，name 为 entity.DocTech 或 entity.DocScore
	SaveInput(ctx context.Context, name, content string) error
}

// ArtifactRepository 生成产物存取，所有写入都是原子的
type ArtifactRepository interface {
	// SaveOutline 同时保存提纲 JSON 与 Markdown 预览
	SaveOutline(ctx context.Context, jsonText, markdown string) error
	// LoadOutline 返回提纲 JSON；不存在时返回 OutlineNotFound
	LoadOutline(ctx context.Context) (string, error)
	LoadOutlineMarkdown(ctx context.Context) (string, error)

	SaveDocument(ctx context.Context, text string) error
	// LoadDocument 不存在时返回 FileNotFound
	LoadDocument(ctx context.Context) (string, error)
}
