package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"z-bid-writer/internal/application/bidding"
	"z-bid-writer/internal/application/bidding/outline"
	"z-bid-writer/internal/domain/entity"
	"z-bid-writer/internal/interfaces/http/dto"
	apperrors "z-bid-writer/pkg/errors"
	"z-bid-writer/pkg/logger"
)

// BiddingService 标书生成服务
type BiddingService interface {
	Inputs(ctx context.Context) (entity.BidInputs, error)
	SaveInputs(ctx context.Context, tech, score *string) error
	Outline(ctx context.Context) (*entity.Outline, error)
	SaveOutline(ctx context.Context, raw any) (*entity.Outline, error)
	GenerateOutline(ctx context.Context) (*outline.GenerateOutput, error)
	Document(ctx context.Context) (string, error)
	GenerateDocument(ctx context.Context, opts bidding.RunOptions) (*bidding.DocumentResult, error)
	Run(ctx context.Context, opts bidding.RunOptions) (*bidding.RunResult, error)
	Status() bidding.RunStatus
}

// BiddingHandler 标书生成接口
type BiddingHandler struct {
	svc BiddingService
}

func NewBiddingHandler(svc BiddingService) *BiddingHandler {
	return &BiddingHandler{svc: svc}
}

// GetInputs 获取输入文档
// @Summary 获取输入文档
// @Tags Bidding
// @Produce json
// @Success 200 {object} dto.Response[dto.InputsResponse]
// @Router /v1/inputs [get]
func (h *BiddingHandler) GetInputs(c *gin.Context) {
	inputs, err := h.svc.Inputs(c.Request.Context())
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToInputsResponse(inputs))
}

// UpdateInputs 更新输入文档
// @Summary 更新技术要求和评分标准
// @Tags Bidding
// @Accept json
// @Produce json
// @Param body body dto.UpdateInputsRequest true "输入文档"
// @Success 200 {object} dto.Response[dto.InputsResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/inputs [put]
func (h *BiddingHandler) UpdateInputs(c *gin.Context) {
	var req dto.UpdateInputsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.svc.SaveInputs(ctx, req.Tech, req.Score); err != nil {
		dto.FromError(c, err)
		return
	}
	inputs, err := h.svc.Inputs(ctx)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToInputsResponse(inputs))
}

// GetOutline 获取已保存的提纲
// @Summary 获取提纲
// @Tags Bidding
// @Produce json
// @Success 200 {object} dto.Response[dto.OutlineResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/outline [get]
func (h *BiddingHandler) GetOutline(c *gin.Context) {
	o, err := h.svc.Outline(c.Request.Context())
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToOutlineResponse(o))
}

// UpdateOutline 用编辑后的提纲替换已保存的提纲，请求体即提纲 JSON
// @Summary 替换提纲
// @Tags Bidding
// @Accept json
// @Produce json
// @Success 200 {object} dto.Response[dto.OutlineResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/outline [put]
func (h *BiddingHandler) UpdateOutline(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		dto.BadRequest(c, "failed to read request body")
		return
	}
	if !json.Valid(body) {
		dto.BadRequest(c, "request body is not valid JSON")
		return
	}

	o, err := h.svc.SaveOutline(c.Request.Context(), json.RawMessage(body))
	if err != nil {
		// 提纲由调用方提交，结构错误属于请求错误
		if errors.Is(err, apperrors.ErrInvalidOutlineShape) {
			appErr := apperrors.AsAppError(err)
			dto.ErrorWithDetail(c, http.StatusBadRequest, appErr.Message, &dto.ErrorDetail{
				ErrorCode: string(appErr.Code),
				Details:   appErr.Detail,
			})
			return
		}
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToOutlineResponse(o))
}

// GenerateOutline 根据输入文档生成提纲
// @Summary 生成提纲
// @Tags Bidding
// @Produce json
// @Success 200 {object} dto.Response[dto.OutlineResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/outline/generate [post]
func (h *BiddingHandler) GenerateOutline(c *gin.Context) {
	out, err := h.svc.GenerateOutline(runContext(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToOutlineResponseFromOutput(out))
}

// GetDocument 获取已生成的正文
// @Summary 获取正文
// @Tags Bidding
// @Produce json
// @Success 200 {object} dto.Response[dto.DocumentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/document [get]
func (h *BiddingHandler) GetDocument(c *gin.Context) {
	text, err := h.svc.Document(c.Request.Context())
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToDocumentResponse(text))
}

// GenerateDocument 基于已保存的提纲生成正文
// @Summary 生成正文
// @Tags Bidding
// @Accept json
// @Produce json
// @Param body body dto.GenerateDocumentRequest false "选项"
// @Success 200 {object} dto.Response[dto.DocumentResultResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/document/generate [post]
func (h *BiddingHandler) GenerateDocument(c *gin.Context) {
	req, ok := bindOptional(c)
	if !ok {
		return
	}

	res, err := h.svc.GenerateDocument(runContext(c), bidding.RunOptions{Fresh: req.Fresh})
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToDocumentResultResponse(res))
}

// Run 依次生成提纲和正文
// @Summary 一次生成提纲和正文
// @Tags Bidding
// @Accept json
// @Produce json
// @Param body body dto.GenerateDocumentRequest false "选项"
// @Success 200 {object} dto.Response[dto.RunResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/run [post]
func (h *BiddingHandler) Run(c *gin.Context) {
	req, ok := bindOptional(c)
	if !ok {
		return
	}

	res, err := h.svc.Run(runContext(c), bidding.RunOptions{Fresh: req.Fresh})
	if err != nil {
		dto.FromError(c, err)
		return
	}
	logger.Info(c.Request.Context(), "run finished via http", "run_id", res.Document.RunID)
	dto.Success(c, &dto.RunResponse{
		Outline:  dto.ToOutlineResponseFromOutput(res.Outline),
		Document: dto.ToDocumentResultResponse(res.Document),
	})
}

// Status 最近一次运行的进度
// @Summary 运行进度
// @Tags Bidding
// @Produce json
// @Success 200 {object} dto.Response[bidding.RunStatus]
// @Router /v1/status [get]
func (h *BiddingHandler) Status(c *gin.Context) {
	dto.Success(c, h.svc.Status())
}

// runContext 生成类请求不随客户端断开而取消，批次总是完整跑完；保留请求上的日志与追踪字段
func runContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// bindOptional 请求体可以为空
func bindOptional(c *gin.Context) (dto.GenerateDocumentRequest, bool) {
	var req dto.GenerateDocumentRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return req, false
	}
	return req, true
}
