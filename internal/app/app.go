// Package app assembles the resolution pipeline from configuration. Both the API server and the CLI use it.
package app

import (
	"context"
	"errors"
	"fmt"

	"nft-metadata-resolver/internal/adapter/chain"
	"nft-metadata-resolver/internal/adapter/chain/evm"
	"nft-metadata-resolver/internal/adapter/chain/starknet"
	"nft-metadata-resolver/internal/adapter/content"
	"nft-metadata-resolver/internal/adapter/metadata"
	"nft-metadata-resolver/internal/adapter/storage/memory"
	"nft-metadata-resolver/internal/adapter/storage/sqlite"
	"nft-metadata-resolver/internal/application"
	"nft-metadata-resolver/internal/config"
	"nft-metadata-resolver/internal/domain/entity"
	domainService "nft-metadata-resolver/internal/domain/service"

	"go.uber.org/zap"
)

// App holds the long-lived components. Close releases them in reverse order of creation.
type App struct {
	Config   *config.Config
	Registry *chain.Registry
	Store    *sqlite.Store
	Hot      *memory.HotStore
	Service  *application.ResolverService

	logger *zap.Logger
}

// New dials every enabled chain, opens the persistent tier and wires the orchestrator.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger.Info("Initializing dependencies...")

	adapters, err := dialChains(ctx, cfg.Chains, logger)
	if err != nil {
		return nil, err
	}
	registry := chain.NewRegistry(adapters...)
	logger.Info("Chain adapters registered", zap.Strings("chains", registry.Supported()))

	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		registry.Close()
		return nil, fmt.Errorf("open persistent tier: %w", err)
	}
	logger.Info("Persistent tier opened", zap.String("path", cfg.Storage.SQLitePath))

	hot := memory.NewHotStore(cfg.Cache, logger)

	fetcher := content.NewHTTPFetcher(cfg.Content, nil, logger)
	resolver := content.NewResolver(cfg.Content.GetGateways(), fetcher.Fetch, content.Options{
		MaxRetries:     cfg.Content.MaxRetries,
		GatewayRetries: cfg.Content.GatewayRetries,
		Backoff:        content.Backoff{Base: cfg.Content.BackoffBase, Max: cfg.Content.BackoffMax},
	}, logger)
	normalizer := metadata.NewNormalizer(resolver, logger)

	cache := application.NewTieredCache(hot, store, logger)
	service := application.NewResolverService(registry, cache, normalizer, cfg.Resolver, logger)

	return &App{
		Config:   cfg,
		Registry: registry,
		Store:    store,
		Hot:      hot,
		Service:  service,
		logger:   logger,
	}, nil
}

// Close waits for pending cache writes, then closes the store and the node connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Service.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush cache writes: %w", err))
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close persistent tier: %w", err))
	}
	a.Registry.Close()
	a.logger.Info("Dependencies released")
	return errors.Join(errs...)
}

func dialChains(ctx context.Context, cfg config.ChainsConfig, logger *zap.Logger) ([]domainService.ChainAdapter, error) {
	var adapters []domainService.ChainAdapter
	closeAll := func() {
		for _, a := range adapters {
			a.Close()
		}
	}

	for _, name := range config.ChainOrder {
		chainCfg := cfg.Get(name)
		if !chainCfg.Enabled {
			logger.Info("Chain disabled", zap.String("chain", name))
			continue
		}
		rpcURL, err := entity.NewRPCURL(chainCfg.RPCURL)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("chain %s: %w", name, err)
		}

		var adapter domainService.ChainAdapter
		switch name {
		case starknet.ChainID:
			adapter, err = starknet.Dial(rpcURL, chainCfg.GetCallTimeout(), logger)
		default:
			adapter, err = evm.Dial(ctx, name, rpcURL, chainCfg.GetCallTimeout(), logger)
		}
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("dial %s node: %w", name, err)
		}
		logger.Info("Chain adapter created", zap.String("chain", name), zap.String("rpc", rpcURL.Redacted()))
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}
