package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-bid-writer/internal/application/bidding"
	"z-bid-writer/internal/application/bidding/outline"
	"z-bid-writer/internal/config"
	"z-bid-writer/internal/domain/entity"
	"z-bid-writer/internal/interfaces/http/handler"
	apperrors "z-bid-writer/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var sampleOutline = &entity.Outline{BodyParagraphs: []entity.Chapter{{
	ChapterTitle: "第一章",
	Sections: []entity.Section{{
		SectionTitle: "1.1 概述",
		SubSections:  []entity.SubSection{{SubSectionTitle: "1.1.1 背景", ContentSummary: "说明背景"}},
	}},
}}}

type fakeService struct {
	inputs     entity.BidInputs
	outline    *entity.Outline
	document   string
	err        error
	lastOpts   bidding.RunOptions
	lastCtxErr error
	savedRaw   any
	savedTech  *string
	savedScore *string
}

func (f *fakeService) Inputs(context.Context) (entity.BidInputs, error) { return f.inputs, nil }

func (f *fakeService) SaveInputs(_ context.Context, tech, score *string) error {
	if tech == nil && score == nil {
		return apperrors.New(apperrors.CodeInvalidParam, "nothing to update")
	}
	f.savedTech, f.savedScore = tech, score
	if tech != nil {
		f.inputs.Tech = entity.SourceDocument{Name: entity.DocTech, Content: *tech, Present: true}
	}
	return nil
}

func (f *fakeService) Outline(context.Context) (*entity.Outline, error) {
	if f.outline == nil {
		return nil, apperrors.New(apperrors.CodeOutlineNotFound, "outline.json not found")
	}
	return f.outline, nil
}

func (f *fakeService) SaveOutline(_ context.Context, raw any) (*entity.Outline, error) {
	f.savedRaw = raw
	return outline.Parse(raw)
}

func (f *fakeService) GenerateOutline(context.Context) (*outline.GenerateOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &outline.GenerateOutput{Outline: sampleOutline, Markdown: sampleOutline.DisplayText()}, nil
}

func (f *fakeService) Document(context.Context) (string, error) {
	if f.document == "" {
		return "", apperrors.New(apperrors.CodeFileNotFound, "content.md not found")
	}
	return f.document, nil
}

func (f *fakeService) GenerateDocument(ctx context.Context, opts bidding.RunOptions) (*bidding.DocumentResult, error) {
	f.lastOpts = opts
	f.lastCtxErr = ctx.Err()
	if f.err != nil {
		return nil, f.err
	}
	return &bidding.DocumentResult{RunID: "run-1", Total: 3, Succeeded: 2, Failed: []string{"1.2.1 x"}, Elapsed: 1500 * time.Millisecond}, nil
}

func (f *fakeService) Run(ctx context.Context, opts bidding.RunOptions) (*bidding.RunResult, error) {
	out, err := f.GenerateOutline(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := f.GenerateDocument(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &bidding.RunResult{Outline: out, Document: doc}, nil
}

func (f *fakeService) Status() bidding.RunStatus {
	return bidding.RunStatus{RunID: "run-1", Stage: bidding.StageSections, Completed: 4, Total: 10}
}

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type denyLimiter struct{ calls int }

func (l *denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.calls++
	return false, nil
}

func newTestRouter(svc handler.BiddingService, storage handler.HealthChecker, limiter *denyLimiter) *gin.Engine {
	cfg := &config.Config{}
	cfg.App.Name = "z-bid-writer"
	cfg.Security.RateLimit.Enabled = limiter != nil
	handlers := RouterHandlers{
		Health:  handler.NewHealthHandler(storage, nil, "test"),
		Bidding: handler.NewBiddingHandler(svc),
	}
	if limiter == nil {
		return NewWithDeps(cfg, handlers, nil).Engine()
	}
	return NewWithDeps(cfg, handlers, limiter).Engine()
}

func do(t *testing.T, engine *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var payload map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload), w.Body.String())
	}
	return w, payload
}

func okStorage() handler.HealthChecker {
	return checkerFunc(func(context.Context) error { return nil })
}

func TestHealthEndpoints(t *testing.T) {
	engine := newTestRouter(&fakeService{}, okStorage(), nil)

	w, body := do(t, engine, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test", body["version"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, body = do(t, engine, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "disabled", checks["redis"].(map[string]any)["status"])

	broken := newTestRouter(&fakeService{}, checkerFunc(func(context.Context) error {
		return errors.New("missing dir")
	}), nil)
	w, body = do(t, broken, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_ready", body["status"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	engine := newTestRouter(&fakeService{}, okStorage(), nil)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestInputsEndpoints(t *testing.T) {
	svc := &fakeService{}
	engine := newTestRouter(svc, okStorage(), nil)

	w, _ := do(t, engine, http.MethodPut, "/v1/inputs", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := do(t, engine, http.MethodPut, "/v1/inputs", `{"tech":"需要高可用"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.savedTech)
	assert.Nil(t, svc.savedScore)
	tech := body["data"].(map[string]any)["tech"].(map[string]any)
	assert.Equal(t, true, tech["present"])
	assert.EqualValues(t, 5, tech["chars"])
}

func TestOutlineEndpoints(t *testing.T) {
	svc := &fakeService{}
	engine := newTestRouter(svc, okStorage(), nil)

	w, body := do(t, engine, http.MethodGet, "/v1/outline", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperrors.CodeOutlineNotFound), body["error"].(map[string]any)["error_code"])

	w, _ = do(t, engine, http.MethodPut, "/v1/outline", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = do(t, engine, http.MethodPut, "/v1/outline", `{"body_paragraphs": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperrors.CodeInvalidOutlineShape), body["error"].(map[string]any)["error_code"])

	raw, err := sampleOutline.JSON()
	require.NoError(t, err)
	w, body = do(t, engine, http.MethodPut, "/v1/outline", string(raw))
	require.Equal(t, http.StatusOK, w.Code)
	counts := body["data"].(map[string]any)["counts"].(map[string]any)
	assert.EqualValues(t, 1, counts["sub_sections"])

	w, body = do(t, engine, http.MethodPost, "/v1/outline/generate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body["data"].(map[string]any)["markdown"], "### 1.1.1 背景")
}

func TestGenerateDocumentEndpoint(t *testing.T) {
	svc := &fakeService{}
	engine := newTestRouter(svc, okStorage(), nil)

	w, body := do(t, engine, http.MethodPost, "/v1/document/generate", `{"fresh": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.lastOpts.Fresh)
	data := body["data"].(map[string]any)
	assert.Equal(t, "run-1", data["run_id"])
	assert.EqualValues(t, 2, data["succeeded"])
	assert.EqualValues(t, 1500, data["elapsed_ms"])

	w, _ = do(t, engine, http.MethodPost, "/v1/document/generate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, svc.lastOpts.Fresh)

	w, body = do(t, engine, http.MethodPost, "/v1/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, body["data"].(map[string]any)["outline"])
}

func TestDocumentGenerate_IgnoresClientDisconnect(t *testing.T) {
	svc := &fakeService{}
	engine := newTestRouter(svc, okStorage(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/document/generate", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, svc.lastCtxErr)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.New(apperrors.CodeConflict, "busy"), http.StatusConflict},
		{apperrors.New(apperrors.CodeInputMissing, "missing"), http.StatusBadRequest},
		{apperrors.New(apperrors.CodeRateLimited, "limited"), http.StatusTooManyRequests},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		engine := newTestRouter(&fakeService{err: tt.err}, okStorage(), nil)
		w, _ := do(t, engine, http.MethodPost, "/v1/outline/generate", "")
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
	}
}

func TestDocumentAndStatusEndpoints(t *testing.T) {
	svc := &fakeService{}
	engine := newTestRouter(svc, okStorage(), nil)

	w, _ := do(t, engine, http.MethodGet, "/v1/document", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.document = "# 第一章\n\n"
	w, body := do(t, engine, http.MethodGet, "/v1/document", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# 第一章\n\n", body["data"].(map[string]any)["content"])

	w, body = do(t, engine, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, bidding.StageSections, body["data"].(map[string]any)["stage"])
}

func TestRateLimitAppliesToGenerationOnly(t *testing.T) {
	limiter := &denyLimiter{}
	engine := newTestRouter(&fakeService{}, okStorage(), limiter)

	w, body := do(t, engine, http.MethodPost, "/v1/document/generate", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, string(apperrors.CodeRateLimited), body["error"].(map[string]any)["error_code"])

	w, _ = do(t, engine, http.MethodGet, "/v1/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, limiter.calls)
}
