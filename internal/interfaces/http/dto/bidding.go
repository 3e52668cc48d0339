package dto

import (
	"z-bid-writer/internal/application/bidding"
	"z-bid-writer/internal/application/bidding/outline"
	"z-bid-writer/internal/domain/entity"
)

// InputDocumentResponse 单份输入文档
type InputDocumentResponse struct {
	Present bool   `json:"present"`
	Chars   int    `json:"chars"`
	Content string `json:"content"`
}

// InputsResponse 输入文档
type InputsResponse struct {
	Tech  InputDocumentResponse `json:"tech"`
	Score InputDocumentResponse `json:"score"`
}

// UpdateInputsRequest 更新输入文档，省略的字段保持不变
type UpdateInputsRequest struct {
	Tech  *string `json:"tech,omitempty"`
	Score *string `json:"score,omitempty"`
}

// OutlineResponse 提纲
type OutlineResponse struct {
	Outline  *entity.Outline      `json:"outline"`
	Markdown string               `json:"markdown"`
	Counts   entity.OutlineCounts `json:"counts"`
}

// GenerateDocumentRequest 生成正文请求
type GenerateDocumentRequest struct {
	// Fresh 忽略已缓存的小节正文
	Fresh bool `json:"fresh"`
}

// DocumentResultResponse 正文生成结果
type DocumentResultResponse struct {
	RunID     string   `json:"run_id"`
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    []string `json:"failed,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

// DocumentResponse 已生成的正文
type DocumentResponse struct {
	Content string `json:"content"`
	Chars   int    `json:"chars"`
}

// RunResponse 完整运行结果
type RunResponse struct {
	Outline  *OutlineResponse        `json:"outline"`
	Document *DocumentResultResponse `json:"document"`
}

func ToInputsResponse(in entity.BidInputs) *InputsResponse {
	return &InputsResponse{
		Tech:  toInputDocument(in.Tech),
		Score: toInputDocument(in.Score),
	}
}

func toInputDocument(doc entity.SourceDocument) InputDocumentResponse {
	return InputDocumentResponse{
		Present: doc.Present,
		Chars:   len([]rune(doc.Content)),
		Content: doc.Content,
	}
}

func ToOutlineResponse(o *entity.Outline) *OutlineResponse {
	if o == nil {
		return nil
	}
	return &OutlineResponse{
		Outline:  o,
		Markdown: o.DisplayText(),
		Counts:   o.Counts(),
	}
}

func ToOutlineResponseFromOutput(out *outline.GenerateOutput) *OutlineResponse {
	if out == nil {
		return nil
	}
	return &OutlineResponse{
		Outline:  out.Outline,
		Markdown: out.Markdown,
		Counts:   out.Outline.Counts(),
	}
}

func ToDocumentResultResponse(res *bidding.DocumentResult) *DocumentResultResponse {
	if res == nil {
		return nil
	}
	return &DocumentResultResponse{
		RunID:     res.RunID,
		Total:     res.Total,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		ElapsedMs: res.Elapsed.Milliseconds(),
	}
}

func ToDocumentResponse(text string) *DocumentResponse {
	return &DocumentResponse{Content: text, Chars: len([]rune(text))}
}
