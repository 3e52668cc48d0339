// Package document 把乱序完成的小节结果整理为有序的标书正文
package document

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"time"

	"z-bid-writer/internal/domain/entity"
	"z-bid-writer/internal/domain/repository"
	apperrors "z-bid-writer/pkg/errors"
	"z-bid-writer/pkg/logger"
	"z-bid-writer/pkg/tracer"
)

// UnknownTitle 无法识别编号时的节标题
const UnknownTitle = "未知标题"

var dottedNumeral = regexp.MustCompile(`^\d+(\.\d+)*\.?$`)

// ChapterBlock 一章及其小节结果，按首次出现的顺序排列
type ChapterBlock struct {
	Title string
	Items []entity.JobOutcome
}

// SectionGroup 同一节编号下的小节
type SectionGroup struct {
	Key   string
	Title string
	Items []entity.JobOutcome
}

// Organized 按章分组后的结果
type Organized struct {
	Chapters []ChapterBlock
}

// Organize 按章标题分组，章的顺序与首次出现顺序一致，章内保持任务顺序
func Organize(outcomes entity.JobOutcomes) *Organized {
	org := &Organized{}
	index := make(map[string]int)
	for _, item := range outcomes {
		title := item.Job.ChapterTitle
		idx, ok := index[title]
		if !ok {
			idx = len(org.Chapters)
			index[title] = idx
			org.Chapters = append(org.Chapters, ChapterBlock{Title: title})
		}
		org.Chapters[idx].Items = append(org.Chapters[idx].Items, item)
	}
	return org
}

// SectionKey 由小节标题推出所属节的分组键。
// 首个词是点分编号时取前两段（"1.2.3 x" -> "1.2"，"3 x" -> "3"），
// 否则为 "<首个词> 未知标题"；空标题为 "未知标题"。
func SectionKey(title string) string {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return UnknownTitle
	}
	token := fields[0]
	if !dottedNumeral.MatchString(token) {
		return token + " " + UnknownTitle
	}
	parts := strings.Split(strings.TrimSuffix(token, "."), ".")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ".")
}

// Groups 把一章的小节按节分组，分组键按字典序排列（"1.10" 排在 "1.2" 之前）
func (c ChapterBlock) Groups() []SectionGroup {
	var groups []SectionGroup
	pos := make(map[string]int)
	for _, item := range c.Items {
		key := SectionKey(item.Job.SubSectionTitle)
		idx, ok := pos[key]
		if !ok {
			idx = len(groups)
			pos[key] = idx
			groups = append(groups, SectionGroup{Key: key, Title: groupTitle(key, item.Job.SectionTitle)})
		}
		groups[idx].Items = append(groups[idx].Items, item)
	}
	slices.SortStableFunc(groups, func(a, b SectionGroup) int {
		return strings.Compare(a.Key, b.Key)
	})
	return groups
}

func groupTitle(key, sectionTitle string) string {
	if strings.TrimSpace(sectionTitle) != "" {
		return sectionTitle
	}
	if strings.HasSuffix(key, UnknownTitle) {
		return key
	}
	return key + " " + UnknownTitle
}

// Render 渲染为 Markdown 正文
func Render(o *Organized) string {
	var parts []string
	for _, ch := range o.Chapters {
		parts = append(parts, "# "+ch.Title+"\n\n")
		for _, g := range ch.Groups() {
			parts = append(parts, "## "+g.Title+"\n\n")
			for _, item := range g.Items {
				parts = append(parts, "### "+item.Result.Title+"\n\n"+item.Result.Content+"\n\n")
			}
		}
	}
	return strings.Join(parts, "\n")
}

// Aggregator 整理结果并一次性写出正文
type Aggregator struct {
	repo repository.ArtifactRepository
}

func NewAggregator(repo repository.ArtifactRepository) *Aggregator {
	return &Aggregator{repo: repo}
}

// Commit 在内存中渲染完整正文后原子写入；写入失败时不会留下部分内容
func (a *Aggregator) Commit(ctx context.Context, outcomes entity.JobOutcomes) (string, error) {
	// 已取消的运行不写出，保留上一次的正文
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeGenerationFailed, "document write cancelled")
	}

	ctx, span := tracer.Start(ctx, "bidding.document.Commit")
	defer span.End()

	start := time.Now()
	org := Organize(outcomes)
	text := Render(org)

	if err := a.repo.SaveDocument(ctx, text); err != nil {
		span.RecordError(err)
		logger.Error(ctx, "failed to write document", err)
		if apperrors.IsAppError(err) {
			return "", err
		}
		return "", apperrors.Wrap(err, apperrors.CodeWriteFailed, "failed to write document")
	}

	logger.Info(ctx, "document written",
		"chapters", len(org.Chapters),
		"sub_sections", len(outcomes),
		"chars", len([]rune(text)),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return text, nil
}
