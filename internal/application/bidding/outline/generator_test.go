package outline

import (
	"context"
	"slices"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-bid-writer/internal/domain/entity"
	"z-bid-writer/internal/workflow/port"
	"z-bid-writer/internal/workflow/prompt"
	apperrors "z-bid-writer/pkg/errors"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
	msgs  []*schema.Message
	opts  port.CallOptions
}

func (f *fakeCompleter) Call(_ context.Context, msgs []*schema.Message, opts ...port.CallOption) (string, error) {
	f.calls++
	f.msgs = msgs
	f.opts = port.ApplyCallOptions(opts...)
	return f.reply, f.err
}

const sampleReply = "```json\n" + `{
  "body_paragraphs": [
    {
      "chapter_title": "第一章 系统架构",
      "sections": [
        {
          "section_title": "1.1 高可用设计",
          "sub_sections": [
            {"sub_section_title": "1.1.1 集群部署", "content_summary": "说明集群与故障切换"}
          ]
        }
      ]
    }
  ]
}` + "\n```"

func TestGenerator_EndToEndSample(t *testing.T) {
	fc := &fakeCompleter{reply: sampleReply}
	g := NewGenerator(fc, prompt.NewRegistry())

	out, err := g.Generate(context.Background(), entity.NewBidInputs("需要高可用", "系统架构(40分)"))
	require.NoError(t, err)

	assert.Equal(t, 1, fc.calls)
	assert.True(t, fc.opts.JSONOutput)
	require.Len(t, fc.msgs, 4)
	assert.Contains(t, fc.msgs[1].Content, "需要高可用")
	assert.Contains(t, fc.msgs[2].Content, "系统架构(40分)")

	assert.Equal(t, entity.OutlineCounts{Chapters: 1, Sections: 1, SubSections: 1}, out.Outline.Counts())
	entries := slices.Collect(out.Outline.Flatten())
	require.Len(t, entries, 1)
	assert.Equal(t, "1.1.1 集群部署", entries[0].SubSectionTitle)

	assert.Contains(t, out.Markdown, "# 第一章 系统架构\n## 1.1 高可用设计\n### 1.1.1 集群部署")
	assert.Contains(t, out.JSON, `"sub_section_title": "1.1.1 集群部署"`)
	assert.Equal(t, sampleReply, out.Raw)
}

func TestGenerator_RepairsResponse(t *testing.T) {
	fc := &fakeCompleter{reply: `{"body_paragraphs": [{"chapter_title": "第一章", "sections": [
		{"section_title": "1.1 节", "sub_sections": [{"sub_section_title": "1.1.1 小节", "content_summary": "提供"7x24"服务",},],},
	]}]}`}
	g := NewGenerator(fc, prompt.NewRegistry())

	out, err := g.Generate(context.Background(), entity.NewBidInputs("t", "s"))
	require.NoError(t, err)
	assert.Equal(t, `提供"7x24"服务`, out.Outline.BodyParagraphs[0].Sections[0].SubSections[0].ContentSummary)
}

func TestGenerator_InputErrorsSkipNetwork(t *testing.T) {
	fc := &fakeCompleter{reply: sampleReply}
	g := NewGenerator(fc, prompt.NewRegistry())

	_, err := g.Generate(context.Background(), entity.NewBidInputs("", "s"))
	assert.ErrorIs(t, err, apperrors.ErrEmptyInput)

	_, err = g.Generate(context.Background(), entity.BidInputs{Tech: entity.SourceDocument{Name: "tech", Content: "x", Present: true}})
	assert.ErrorIs(t, err, apperrors.ErrInputMissing)

	assert.Zero(t, fc.calls)
}

func TestGenerator_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  error
	}{
		{"transport", "", apperrors.New(apperrors.CodeRateLimited, "429"), apperrors.ErrRateLimited},
		{"unrepairable", "抱歉，我无法完成", nil, apperrors.ErrMalformedResponse},
		{"empty outline", `{"body_paragraphs": []}`, nil, apperrors.ErrInvalidOutlineShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(&fakeCompleter{reply: tt.reply, err: tt.err}, prompt.NewRegistry())
			_, err := g.Generate(context.Background(), entity.NewBidInputs("t", "s"))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGenerator_NotConfigured(t *testing.T) {
	var g *Generator
	_, err := g.Generate(context.Background(), entity.NewBidInputs("t", "s"))
	assert.ErrorIs(t, err, apperrors.ErrInternalError)

	_, err = NewGenerator(nil, nil).Generate(context.Background(), entity.NewBidInputs("t", "s"))
	assert.ErrorIs(t, err, apperrors.ErrInternalError)
}
