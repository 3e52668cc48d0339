// Package entity 定义领域实体
package entity

import (
	"bytes"
	"encoding/json"
	"iter"
	"strings"
)

// Outline 标书三级提纲：章 -> 节 -> 小节
type Outline struct {
	BodyParagraphs []Chapter `json:"body_paragraphs"`
}

// Chapter 章
type Chapter struct {
	ChapterTitle string    `json:"chapter_title"`
	Sections     []Section `json:"sections"`
}

// Section 节
type Section struct {
	SectionTitle string       `json:"section_title"`
	SubSections  []SubSection `json:"sub_sections"`
}

// SubSection 小节，提纲的叶子，只有摘要没有正文
type SubSection struct {
	SubSectionTitle string `json:"sub_section_title"`
	ContentSummary  string `json:"content_summary"`
}

// OutlineEntry 按文档顺序展开后的一个小节
type OutlineEntry struct {
	ChapterTitle    string
	SectionTitle    string
	SubSectionTitle string
	ContentSummary  string
}

// OutlineCounts 提纲各层级数量
type OutlineCounts struct {
	Chapters    int `json:"chapters"`
	Sections    int `json:"sections"`
	SubSections int `json:"sub_sections"`
}

// IsEmpty 提纲没有任何章
func (o *Outline) IsEmpty() bool {
	return o == nil || len(o.BodyParagraphs) == 0
}

// Flatten 按章、节、小节的文档顺序遍历所有小节
func (o *Outline) Flatten() iter.Seq[OutlineEntry] {
	return func(yield func(OutlineEntry) bool) {
		if o == nil {
			return
		}
		for _, ch := range o.BodyParagraphs {
			for _, sec := range ch.Sections {
				for _, sub := range sec.SubSections {
					entry := OutlineEntry{
						ChapterTitle:    ch.ChapterTitle,
						SectionTitle:    sec.SectionTitle,
						SubSectionTitle: sub.SubSectionTitle,
						ContentSummary:  sub.ContentSummary,
					}
					if !yield(entry) {
						return
					}
				}
			}
		}
	}
}

// DisplayText 生成提纲的 Markdown 预览，同时作为生成正文时的提纲上下文
func (o *Outline) DisplayText() string {
	if o == nil {
		return ""
	}
	var lines []string
	for _, ch := range o.BodyParagraphs {
		lines = append(lines, "# "+ch.ChapterTitle)
		for _, sec := range ch.Sections {
			lines = append(lines, "## "+sec.SectionTitle)
			for _, sub := range sec.SubSections {
				lines = append(lines, "### "+sub.SubSectionTitle)
				lines = append(lines, "\n"+sub.ContentSummary+"\n")
			}
		}
	}
	return strings.Join(lines, "\n")
}

// JSON 返回两空格缩进的提纲 JSON，保留非 ASCII 字符
func (o *Outline) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(o); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Counts 统计章、节、小节数量
func (o *Outline) Counts() OutlineCounts {
	var c OutlineCounts
	if o == nil {
		return c
	}
	c.Chapters = len(o.BodyParagraphs)
	for _, ch := range o.BodyParagraphs {
		c.Sections += len(ch.Sections)
		for _, sec := range ch.Sections {
			c.SubSections += len(sec.SubSections)
		}
	}
	return c
}
