// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1004"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"
	CodeConflict           ErrorCode = "1009"

	// 输入错误 (3xxx)
	CodeInputMissing ErrorCode = "3001"
	CodeEmptyInput   ErrorCode = "3002"
	CodeFileNotFound ErrorCode = "3004"

	// 业务错误 (4xxx)
	CodeGenerationFailed    ErrorCode = "4001"
	CodeMalformedResponse   ErrorCode = "4002"
	CodeInvalidOutlineShape ErrorCode = "4003"
	CodeOutlineNotFound     ErrorCode = "4004"

	// 外部服务错误 (5xxx)
	CodeRateLimited          ErrorCode = "5001"
	CodeTransientServerError ErrorCode = "5002"
	CodeTimeout              ErrorCode = "5003"
	CodeInvalidResponseShape ErrorCode = "5004"
	CodeTransportFailure     ErrorCode = "5005"
	CodeWriteFailed          ErrorCode = "5006"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，使 errors.Is(err, ErrRateLimited) 这类判断成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Newf 创建带格式化消息的应用错误
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeInputMissing, CodeEmptyInput:
		return http.StatusBadRequest
	case CodeNotFound, CodeFileNotFound, CodeOutlineNotFound:
		return http.StatusNotFound
	case CodeMalformedResponse, CodeInvalidOutlineShape, CodeInvalidResponseShape:
		return http.StatusBadGateway
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeTransientServerError, CodeTransportFailure, CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误，仅用于 errors.Is 比较；需要携带上下文时用 New/Wrap 创建新实例
var (
	ErrInvalidParam     = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound         = New(CodeNotFound, "resource not found")
	ErrInternalError    = New(CodeInternalError, "internal server error")
	ErrConflict         = New(CodeConflict, "resource busy")
	ErrInputMissing     = New(CodeInputMissing, "input document missing")
	ErrEmptyInput       = New(CodeEmptyInput, "input document empty")
	ErrOutlineNotFound  = New(CodeOutlineNotFound, "outline not found")
	ErrGenerationFailed = New(CodeGenerationFailed, "generation failed")

	ErrMalformedResponse   = New(CodeMalformedResponse, "malformed llm response")
	ErrInvalidOutlineShape = New(CodeInvalidOutlineShape, "invalid outline shape")

	ErrRateLimited          = New(CodeRateLimited, "rate limited")
	ErrTransientServerError = New(CodeTransientServerError, "transient server error")
	ErrTimeout              = New(CodeTimeout, "request timeout")
	ErrInvalidResponseShape = New(CodeInvalidResponseShape, "invalid response shape")
	ErrTransportFailure     = New(CodeTransportFailure, "transport failure")
	ErrWriteFailed          = New(CodeWriteFailed, "write failed")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// CodeOf 返回错误链上第一个 AppError 的错误码
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeSuccess
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}
