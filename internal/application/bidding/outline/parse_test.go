package outline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "z-bid-writer/pkg/errors"
)

const validOutline = `{
  "body_paragraphs": [
    {
      "chapter_title": "第一章 总体方案",
      "sections": [
        {
          "section_title": "1.1 系统架构",
          "sub_sections": [
            {"sub_section_title": "1.1.1 部署架构", "content_summary": "双活部署"},
            {"sub_section_title": "1.1.2 容灾", "content_summary": ""}
          ]
        }
      ]
    }
  ]
}`

func TestParse_AcceptedInputs(t *testing.T) {
	var generic map[string]any
	require.NoError(t, json.Unmarshal([]byte(validOutline), &generic))

	inputs := map[string]any{
		"string":      validOutline,
		"bytes":       []byte(validOutline),
		"raw message": json.RawMessage(validOutline),
		"decoded":     generic,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			o, err := Parse(in)
			require.NoError(t, err)
			require.Len(t, o.BodyParagraphs, 1)
			ch := o.BodyParagraphs[0]
			assert.Equal(t, "第一章 总体方案", ch.ChapterTitle)
			require.Len(t, ch.Sections[0].SubSections, 2)
			assert.Equal(t, "1.1.2 容灾", ch.Sections[0].SubSections[1].SubSectionTitle)
			assert.Empty(t, ch.Sections[0].SubSections[1].ContentSummary)
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	o, err := Parse(validOutline)
	require.NoError(t, err)

	data, err := o.JSON()
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, o, again)
}

func TestParse_ShapeErrorsNamePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		path string
	}{
		{"root not object", `[1]`, "(root)"},
		{"missing body", `{}`, "body_paragraphs"},
		{"empty body", `{"body_paragraphs": []}`, "body_paragraphs"},
		{"body not list", `{"body_paragraphs": {}}`, "body_paragraphs"},
		{"chapter not object", `{"body_paragraphs": ["x"]}`, "body_paragraphs[0]"},
		{"missing chapter title", `{"body_paragraphs": [{"sections": []}]}`, "body_paragraphs[0].chapter_title"},
		{"blank chapter title", `{"body_paragraphs": [{"chapter_title": " ", "sections": []}]}`, "body_paragraphs[0].chapter_title"},
		{"numeric chapter title", `{"body_paragraphs": [{"chapter_title": 1, "sections": []}]}`, "body_paragraphs[0].chapter_title"},
		{"empty sections", `{"body_paragraphs": [{"chapter_title": "c", "sections": []}]}`, "body_paragraphs[0].sections"},
		{
			"missing section title",
			`{"body_paragraphs": [{"chapter_title": "c", "sections": [{"sub_sections": []}]}]}`,
			"body_paragraphs[0].sections[0].section_title",
		},
		{
			"second section bad",
			`{"body_paragraphs": [{"chapter_title": "c", "sections": [
				{"section_title": "s", "sub_sections": [{"sub_section_title": "t", "content_summary": ""}]},
				{"section_title": "", "sub_sections": []}
			]}]}`,
			"body_paragraphs[0].sections[1].section_title",
		},
		{
			"missing sub sections",
			`{"body_paragraphs": [{"chapter_title": "c", "sections": [{"section_title": "s"}]}]}`,
			"body_paragraphs[0].sections[0].sub_sections",
		},
		{
			"missing sub title",
			`{"body_paragraphs": [{"chapter_title": "c", "sections": [{"section_title": "s", "sub_sections": [{"content_summary": "x"}]}]}]}`,
			"body_paragraphs[0].sections[0].sub_sections[0].sub_section_title",
		},
		{
			"summary wrong type",
			`{"body_paragraphs": [{"chapter_title": "c", "sections": [{"section_title": "s", "sub_sections": [{"sub_section_title": "t", "content_summary": []}]}]}]}`,
			"body_paragraphs[0].sections[0].sub_sections[0].content_summary",
		},
		{
			"missing summary",
			`{"body_paragraphs": [{"chapter_title": "c", "sections": [{"section_title": "s", "sub_sections": [{"sub_section_title": "t"}]}]}]}`,
			"body_paragraphs[0].sections[0].sub_sections[0].content_summary",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidOutlineShape)
			appErr := apperrors.AsAppError(err)
			assert.Equal(t, tt.path, appErr.Detail)
			assert.Contains(t, appErr.Message, tt.path)
		})
	}
}

func TestParse_MalformedText(t *testing.T) {
	_, err := Parse(`{"body_paragraphs": [`)
	assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)

	_, err = Parse("   ")
	assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)
}

func TestParse_UnsupportedType(t *testing.T) {
	_, err := Parse(42)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParam)
}
