package node

import (
	"encoding/json"
	"strings"
)

type bracket struct {
	start  int
	closer byte
}

// ExtractJSONObject 截取模型输出中夹在说明文字之间的 JSON 值（对象或数组）。
// 先出现的括号截取结果不合法，且该括号在另一种括号出现之前已闭合时，
// 改用另一种括号的截取结果，例如 "大纲 [v1]：{...}"。
// 都不合法时，文本以括号开头或找不到成对括号则原样返回，否则返回先出现的截取结果交给后续修复。
func ExtractJSONObject(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" || json.Valid([]byte(raw)) {
		return raw
	}

	first := bracket{start: strings.IndexByte(raw, '{'), closer: '}'}
	second := bracket{start: strings.IndexByte(raw, '['), closer: ']'}
	if second.start >= 0 && (first.start < 0 || second.start < first.start) {
		first, second = second, first
	}
	if first.start < 0 {
		return raw
	}

	span := first.span(raw)
	if span != "" && json.Valid([]byte(span)) {
		return span
	}
	if second.start >= 0 && first.closedBefore(raw, second.start) {
		if alt := second.span(raw); alt != "" && json.Valid([]byte(alt)) {
			return alt
		}
	}
	if span == "" || first.start == 0 {
		return raw
	}
	return span
}

// span 从开括号截到最后一个同类闭括号
func (b bracket) span(raw string) string {
	end := strings.LastIndexByte(raw, b.closer)
	if end <= b.start {
		return ""
	}
	return raw[b.start : end+1]
}

func (b bracket) closedBefore(raw string, pos int) bool {
	idx := strings.IndexByte(raw[b.start:], b.closer)
	return idx >= 0 && b.start+idx < pos
}
