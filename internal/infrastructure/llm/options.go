// Package llm 提供对 OpenAI 兼容对话补全端点的带重试调用
package llm

import (
	"time"

	"z-bid-writer/internal/config"
)

// Options 客户端构造参数；构造后不可修改
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64

	Timeout        time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	MaxRetries   int
	RetryDelay   time.Duration
	RetryBackoff float64

	ProxyURL string
}

// OptionsFromConfig 由配置复制出客户端参数
func OptionsFromConfig(cfg config.LLMConfig) Options {
	return Options{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		TopP:           cfg.TopP,
		Timeout:        cfg.Timeout,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		RetryBackoff:   cfg.RetryBackoff,
		ProxyURL:       cfg.ProxyURL,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 20 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff < 1 {
		o.RetryBackoff = 1
	}
	return o
}
