//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"z-bid-writer/internal/application/bidding"
	"z-bid-writer/internal/application/bidding/document"
	"z-bid-writer/internal/config"
	"z-bid-writer/internal/domain/repository"
	"z-bid-writer/internal/infrastructure/llm"
	"z-bid-writer/internal/infrastructure/persistence/filestore"
	"z-bid-writer/internal/interfaces/http/handler"
	"z-bid-writer/internal/interfaces/http/router"
	"z-bid-writer/internal/workflow/port"
	"z-bid-writer/internal/workflow/prompt"
)

var StorageSet = wire.NewSet(
	ProvideStore,
	wire.Bind(new(repository.InputRepository), new(*filestore.Store)),
	wire.Bind(new(repository.ArtifactRepository), new(*filestore.Store)),
)

var RedisSet = wire.NewSet(
	ProvideRedisClient,
	ProvideContentCache,
	ProvideEventProducer,
)

var LLMSet = wire.NewSet(
	ProvideLLMClient,
	ProvidePromptRegistry,
	wire.Bind(new(port.ChatCompleter), new(*llm.Client)),
	wire.Bind(new(port.PromptProvider), new(*prompt.Registry)),
)

var BiddingSet = wire.NewSet(
	bidding.NewProgress,
	ProvideOutlineGenerator,
	ProvideContentGenerator,
	document.NewAggregator,
	ProvideServiceOptions,
	bidding.NewService,
)

var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewBiddingHandler,
	wire.Bind(new(handler.BiddingService), new(*bidding.Service)),
	ProvideRateLimiter,
	wire.Struct(new(router.RouterHandlers), "*"),
	router.NewWithDeps,
)

// InitializeApp 初始化 HTTP 服务
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		StorageSet,
		RedisSet,
		LLMSet,
		BiddingSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeCLI 初始化命令行工具
func InitializeCLI(ctx context.Context, cfg *config.Config) (*CLIApp, func(), error) {
	wire.Build(
		StorageSet,
		RedisSet,
		LLMSet,
		BiddingSet,
		wire.Struct(new(CLIApp), "*"),
	)
	return nil, nil, nil
}
