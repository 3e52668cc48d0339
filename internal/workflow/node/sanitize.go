package node

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"

	apperrors "z-bid-writer/pkg/errors"
)

// maxDetailRunes 错误详情中保留的修复后文本长度
const maxDetailRunes = 2000

var (
	fenceHeadPattern     = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*\r?\n?")
	fenceTailPattern     = regexp.MustCompile("\\s*```$")
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
)

// StripCodeFence 去掉模型输出外层的 ``` 或 ```json 代码块标记及首尾空白
func StripCodeFence(s string) string {
	raw := strings.TrimSpace(s)
	raw = fenceHeadPattern.ReplaceAllString(raw, "")
	raw = fenceTailPattern.ReplaceAllString(raw, "")
	return strings.TrimSpace(raw)
}

// Sanitize 把模型返回的 JSON 文本整理成可解析的规范 JSON。
// 去掉代码块标记和 JSON 前后的说明文字后先直接解析，
// 失败后依次做修复再解析一次；仍失败时返回 MalformedResponse。
func Sanitize(raw string) (string, error) {
	text := ExtractJSONObject(StripCodeFence(raw))
	if text == "" {
		return "", apperrors.New(apperrors.CodeMalformedResponse, "empty response")
	}

	v, err := decodeJSON(text)
	if err == nil {
		return encodeJSON(v)
	}

	repaired := RepairJSON(text)
	v, rerr := decodeJSON(repaired)
	if rerr != nil {
		return "", apperrors.Wrap(err, apperrors.CodeMalformedResponse, "response is not valid JSON").
			WithDetail(TruncateByRunes(repaired, maxDetailRunes))
	}
	return encodeJSON(v)
}

// RepairJSON 依次应用修复规则，每条规则对已合法的文本不产生影响
func RepairJSON(s string) string {
	s = escapeStrayQuotes(s)
	s = escapeControlInStrings(s)
	s = truncateUnbalanced(s)
	s = trailingCommaPattern.ReplaceAllString(s, "$1")
	return s
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeMalformedResponse, "failed to encode JSON")
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// isEscaped 判断 s[i] 前是否有奇数个连续反斜杠
func isEscaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// escapeStrayQuotes 转义字符串内部未转义的双引号。
// 结构性引号的前一个非空白字符是 { [ , : 之一（或位于开头），
// 或者后一个非空白字符是 , } ] : 之一（或位于结尾）。
func escapeStrayQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '"' || isEscaped(s, i) {
			b.WriteByte(c)
			continue
		}

		prev := byte(0)
		for j := i - 1; j >= 0; j-- {
			if !isSpace(s[j]) {
				prev = s[j]
				break
			}
		}
		next := byte(0)
		for j := i + 1; j < len(s); j++ {
			if !isSpace(s[j]) {
				next = s[j]
				break
			}
		}

		opening := prev == 0 || strings.IndexByte("{[,:", prev) >= 0
		closing := next == 0 || strings.IndexByte(",}]:", next) >= 0
		if !opening && !closing {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// escapeControlInStrings 把字符串值里的裸换行转义
func escapeControlInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// truncateUnbalanced 未转义引号为奇数时，截断到最后一个使括号深度归零的 }
func truncateUnbalanced(s string) string {
	quotes := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '"' && !isEscaped(s, i) {
			quotes++
		}
	}
	if quotes%2 == 0 {
		return s
	}

	depth, cut := 0, -1
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' && !isEscaped(s, i) {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				cut = i
			}
		}
	}
	if cut < 0 {
		return s
	}
	return s[:cut+1]
}
