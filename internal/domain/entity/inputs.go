package entity

import (
	"strings"

	apperrors "z-bid-writer/pkg/errors"
)

const (
	// DocTech 技术要求文档
	DocTech = "tech"
	// DocScore 评分标准文档
	DocScore = "score"
)

// SourceDocument 一份输入文档；Present 为 false 表示文档不存在
type SourceDocument struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Present bool   `json:"present"`
}

// BidInputs 标书生成的两份输入
type BidInputs struct {
	Tech  SourceDocument `json:"tech"`
	Score SourceDocument `json:"score"`
}

// NewBidInputs 由文本构造输入
func NewBidInputs(tech, score string) BidInputs {
	return BidInputs{
		Tech:  SourceDocument{Name: DocTech, Content: tech, Present: true},
		Score: SourceDocument{Name: DocScore, Content: score, Present: true},
	}
}

// Validate 在发起任何网络调用前校验输入
func (in BidInputs) Validate() error {
	for _, doc := range []SourceDocument{in.Tech, in.Score} {
		if !doc.Present {
			return apperrors.Newf(apperrors.CodeInputMissing, "input document %q is missing", doc.Name)
		}
		if strings.TrimSpace(doc.Content) == "" {
			return apperrors.Newf(apperrors.CodeEmptyInput, "input document %q is empty", doc.Name)
		}
	}
	return nil
}
