// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"z-bid-writer/internal/application/bidding"
	"z-bid-writer/internal/application/bidding/content"
	"z-bid-writer/internal/application/bidding/outline"
	"z-bid-writer/internal/config"
	"z-bid-writer/internal/infrastructure/llm"
	"z-bid-writer/internal/infrastructure/messaging"
	"z-bid-writer/internal/infrastructure/persistence/filestore"
	"z-bid-writer/internal/infrastructure/persistence/redis"
	"z-bid-writer/internal/interfaces/http/handler"
	"z-bid-writer/internal/interfaces/http/middleware"
	"z-bid-writer/internal/workflow/port"
	"z-bid-writer/internal/workflow/prompt"
	"z-bid-writer/pkg/logger"
)

// Version 健康检查中返回的版本号，由 cmd 在启动时设置
var Version = "dev"

// CLIApp 命令行工具所需的依赖
type CLIApp struct {
	Service *bidding.Service
	Store   *filestore.Store
}

func ProvideStore(cfg *config.Config) *filestore.Store {
	return filestore.NewStore(cfg.Storage)
}

func ProvideLLMClient(cfg *config.Config) (*llm.Client, func()) {
	client := llm.NewClient(llm.OptionsFromConfig(cfg.LLM))
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup
}

// ProvideRedisClient 缓存、限流和事件都未启用时返回 nil
func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Enabled && !cfg.Security.RateLimit.Enabled && !cfg.Events.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(ctx, "redis connected", "host", cfg.Cache.Redis.Host, "db", cfg.Cache.Redis.DB)
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideContentCache(cfg *config.Config, client *redis.Client) *redis.ContentCache {
	if client == nil || !cfg.Cache.Enabled {
		return nil
	}
	return redis.NewContentCache(client, cfg.Cache.KeyPrefix, cfg.Cache.ContentTTL)
}

func ProvideEventProducer(cfg *config.Config, client *redis.Client) *messaging.Producer {
	if client == nil || !cfg.Events.Enabled {
		return nil
	}
	return messaging.NewProducer(client.Redis(), cfg.Events.Stream, cfg.Events.MaxLen)
}

func ProvideContentGenerator(
	cfg *config.Config,
	completer port.ChatCompleter,
	prompts port.PromptProvider,
	cache *redis.ContentCache,
	progress *bidding.Progress,
) *content.Generator {
	opts := []content.Option{content.WithProgress(progress.Update)}
	if cache != nil {
		opts = append(opts, content.WithCache(cache))
	}
	return content.NewGenerator(completer, prompts, cfg.Generation, opts...)
}

func ProvideOutlineGenerator(completer port.ChatCompleter, prompts port.PromptProvider) *outline.Generator {
	return outline.NewGenerator(completer, prompts)
}

func ProvidePromptRegistry() *prompt.Registry {
	return prompt.NewRegistry()
}

func ProvideServiceOptions(cache *redis.ContentCache, producer *messaging.Producer) []bidding.ServiceOption {
	var opts []bidding.ServiceOption
	if cache != nil {
		opts = append(opts, bidding.WithCachePurger(cache))
	}
	if producer != nil {
		opts = append(opts, bidding.WithEventPublisher(producer))
	}
	return opts
}

func ProvideHealthHandler(store *filestore.Store, client *redis.Client) *handler.HealthHandler {
	if client == nil {
		return handler.NewHealthHandler(store, nil, Version)
	}
	return handler.NewHealthHandler(store, client, Version)
}

func ProvideRateLimiter(cfg *config.Config, client *redis.Client) middleware.RateLimiter {
	if client == nil || !cfg.Security.RateLimit.Enabled {
		return nil
	}
	return redis.NewRateLimiter(client)
}
