package outline

import (
	"encoding/json"
	"fmt"
	"strings"

	"z-bid-writer/internal/domain/entity"
	apperrors "z-bid-writer/pkg/errors"
)

// Parse 把 JSON 文本或已解码的对象转换为提纲。
// 第一阶段解码为通用结构，第二阶段逐层校验并构造实体；
// 校验失败时返回 InvalidOutlineShape，信息中带有第一个出错字段的路径。
func Parse(input any) (*entity.Outline, error) {
	var tree any
	switch v := input.(type) {
	case string:
		decoded, err := decodeGeneric([]byte(v))
		if err != nil {
			return nil, err
		}
		tree = decoded
	case []byte:
		decoded, err := decodeGeneric(v)
		if err != nil {
			return nil, err
		}
		tree = decoded
	case json.RawMessage:
		decoded, err := decodeGeneric(v)
		if err != nil {
			return nil, err
		}
		tree = decoded
	case map[string]any:
		tree = v
	default:
		return nil, apperrors.Newf(apperrors.CodeInvalidParam, "unsupported outline input type %T", input)
	}
	return build(tree)
}

func decodeGeneric(data []byte) (any, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, apperrors.New(apperrors.CodeMalformedResponse, "outline text is empty")
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeMalformedResponse, "outline text is not valid JSON")
	}
	return v, nil
}

func shapeError(path, problem string) error {
	return apperrors.Newf(apperrors.CodeInvalidOutlineShape, "invalid outline: %s %s", path, problem).
		WithDetail(path)
}

func build(tree any) (*entity.Outline, error) {
	root, ok := tree.(map[string]any)
	if !ok {
		return nil, shapeError("(root)", "must be an object")
	}

	chapters, err := requireList(root, "body_paragraphs", "body_paragraphs")
	if err != nil {
		return nil, err
	}

	out := &entity.Outline{BodyParagraphs: make([]entity.Chapter, 0, len(chapters))}
	for i, rawChapter := range chapters {
		chPath := fmt.Sprintf("body_paragraphs[%d]", i)
		ch, err := asObject(rawChapter, chPath)
		if err != nil {
			return nil, err
		}
		chapterTitle, err := requireTitle(ch, "chapter_title", chPath+".chapter_title")
		if err != nil {
			return nil, err
		}
		sections, err := requireList(ch, "sections", chPath+".sections")
		if err != nil {
			return nil, err
		}

		chapter := entity.Chapter{ChapterTitle: chapterTitle, Sections: make([]entity.Section, 0, len(sections))}
		for j, rawSection := range sections {
			secPath := fmt.Sprintf("%s.sections[%d]", chPath, j)
			sec, err := asObject(rawSection, secPath)
			if err != nil {
				return nil, err
			}
			sectionTitle, err := requireTitle(sec, "section_title", secPath+".section_title")
			if err != nil {
				return nil, err
			}
			subs, err := requireList(sec, "sub_sections", secPath+".sub_sections")
			if err != nil {
				return nil, err
			}

			section := entity.Section{SectionTitle: sectionTitle, SubSections: make([]entity.SubSection, 0, len(subs))}
			for k, rawSub := range subs {
				subPath := fmt.Sprintf("%s.sub_sections[%d]", secPath, k)
				sub, err := asObject(rawSub, subPath)
				if err != nil {
					return nil, err
				}
				subTitle, err := requireTitle(sub, "sub_section_title", subPath+".sub_section_title")
				if err != nil {
					return nil, err
				}
				summary, err := requireString(sub, "content_summary", subPath+".content_summary")
				if err != nil {
					return nil, err
				}
				section.SubSections = append(section.SubSections, entity.SubSection{
					SubSectionTitle: subTitle,
					ContentSummary:  summary,
				})
			}
			chapter.Sections = append(chapter.Sections, section)
		}
		out.BodyParagraphs = append(out.BodyParagraphs, chapter)
	}
	return out, nil
}

func asObject(v any, path string) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, shapeError(path, "must be an object")
	}
	return obj, nil
}

func requireList(obj map[string]any, key, path string) ([]any, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, shapeError(path, "is required")
	}
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, shapeError(path, "must be a non-empty array")
	}
	return list, nil
}

func requireString(obj map[string]any, key, path string) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", shapeError(path, "is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", shapeError(path, "must be a string")
	}
	return s, nil
}

func requireTitle(obj map[string]any, key, path string) (string, error) {
	s, err := requireString(obj, key, path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", shapeError(path, "must not be blank")
	}
	return s, nil
}
