package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"z-bid-writer/internal/workflow/node"
	"z-bid-writer/internal/workflow/port"
	apperrors "z-bid-writer/pkg/errors"
	"z-bid-writer/pkg/logger"
	"z-bid-writer/pkg/metrics"
	"z-bid-writer/pkg/tracer"
)

const (
	maxResponseBytes = 8 << 20
	maxDetailBytes   = 512
)

var _ port.ChatCompleter = (*Client)(nil)

// Client 对话补全客户端，可被多个 goroutine 共享
type Client struct {
	opts     Options
	endpoint string
	sess     *session
}

// NewClient 创建客户端；HTTP 连接池在首次调用时创建
func NewClient(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		opts:     opts,
		endpoint: strings.TrimRight(opts.BaseURL, "/") + "/chat/completions",
		sess:     newSession(opts),
	}
}

// Model 返回模型名
func (c *Client) Model() string {
	return c.opts.Model
}

// Close 释放连接池，之后的调用会重新建立连接
func (c *Client) Close() error {
	c.sess.close()
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Call 发送一次逻辑调用，失败时按退避策略重试，返回第一条候选回复的文本
func (c *Client) Call(ctx context.Context, msgs []*schema.Message, opts ...port.CallOption) (string, error) {
	co := port.ApplyCallOptions(opts...)
	if len(msgs) == 0 {
		return "", apperrors.New(apperrors.CodeInvalidParam, "no messages to send")
	}

	ctx, span := tracer.Start(ctx, "llm.Call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", c.opts.Model),
			attribute.Int("llm.messages", len(msgs)),
		),
	)
	defer span.End()

	body, err := json.Marshal(c.buildRequest(msgs))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternalError, "failed to encode request")
	}

	start := time.Now()
	state := newRetryState(c.opts.RetryDelay, c.opts.RetryBackoff)
	attempts := 0

	content, err := backoff.Retry(ctx, func() (string, error) {
		attempts++
		return c.attempt(ctx, body, state)
	},
		backoff.WithBackOff(state),
		backoff.WithMaxTries(uint(c.opts.MaxRetries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.LLMRetryTotal.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
			logger.Warn(ctx, "llm request failed, retrying",
				"attempt", attempts,
				"max_retries", c.opts.MaxRetries,
				"wait", wait.String(),
				"error", err.Error(),
			)
		}),
	)
	if co.Attempts != nil {
		*co.Attempts = attempts
	}

	metrics.LLMCallDuration.WithLabelValues(c.opts.Model).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("llm.attempts", attempts))

	if err != nil {
		err = normalizeError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.LLMCallTotal.WithLabelValues(c.opts.Model, string(apperrors.CodeOf(err))).Inc()
		logger.Error(ctx, "llm call failed", err, "attempts", attempts)
		return "", err
	}

	metrics.LLMCallTotal.WithLabelValues(c.opts.Model, "success").Inc()
	logger.Debug(ctx, "llm call succeeded",
		"attempts", attempts,
		"chars", len([]rune(content)),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if co.JSONOutput {
		content = node.StripCodeFence(content)
	}
	return content, nil
}

func (c *Client) buildRequest(msgs []*schema.Message) chatRequest {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return chatRequest{
		Model:       c.opts.Model,
		Messages:    out,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		TopP:        c.opts.TopP,
	}
}

// attempt 发出一次 HTTP 请求；可重试的错误直接返回，不可重试的包装为 backoff.Permanent
func (c *Client) attempt(ctx context.Context, body []byte, state *retryState) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", backoff.Permanent(err)
	}

	hc, err := c.sess.acquire()
	if err != nil {
		return "", backoff.Permanent(apperrors.Wrap(err, apperrors.CodeTransportFailure, "failed to create http client"))
	}

	metrics.LLMInflightCalls.Inc()
	defer metrics.LLMInflightCalls.Dec()

	actx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(apperrors.Wrap(err, apperrors.CodeTransportFailure, "failed to build request"))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			state.setOverride(d)
		}
		return "", apperrors.New(apperrors.CodeRateLimited, "rate limited by upstream").
			WithDetail(snippet(data))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", apperrors.Newf(apperrors.CodeTransientServerError, "upstream returned status %d", resp.StatusCode).
			WithDetail(snippet(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", backoff.Permanent(apperrors.Wrap(err, apperrors.CodeInvalidResponseShape, "response body is not JSON").
			WithDetail(snippet(data)))
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", backoff.Permanent(apperrors.New(apperrors.CodeInvalidResponseShape, "response has no message content").
			WithDetail(snippet(data)))
	}
	return parsed.Choices[0].Message.Content, nil
}

// classifyTransportError 超时可重试；调用方取消和其它连接错误不重试
func classifyTransportError(parent context.Context, err error) error {
	if perr := parent.Err(); perr != nil {
		return backoff.Permanent(err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Wrap(err, apperrors.CodeTimeout, "request timed out")
	}
	return backoff.Permanent(apperrors.Wrap(err, apperrors.CodeTransportFailure, "request failed"))
}

// normalizeError 去掉 backoff 包装，并把上下文错误归入错误分类
func normalizeError(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if apperrors.IsAppError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.CodeTimeout, "call deadline exceeded")
	}
	return apperrors.Wrap(err, apperrors.CodeTransportFailure, "call aborted")
}

func snippet(b []byte) string {
	if len(b) > maxDetailBytes {
		return string(b[:maxDetailBytes])
	}
	return string(b)
}
