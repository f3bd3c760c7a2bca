package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"nft-metadata-resolver/internal/adapter/delivery/http"
	handler "nft-metadata-resolver/internal/adapter/handler/http"
	"nft-metadata-resolver/internal/app"
	"nft-metadata-resolver/internal/config"
	"nft-metadata-resolver/internal/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// --- Configuration ---
	cfgPath := "configs"
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", cfgPath, err)
	}

	// --- Logger ---
	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info("Logger initialized", zap.Any("config", cfg.Logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Dependency Injection (Manual) ---
	application, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}

	nftHandler := handler.NewNFTHandler(application.Service, cfg.Server.GetRequestTimeout(), appLogger)

	// --- HTTP Router & Server ---
	appLogger.Info("Setting up HTTP router...")
	r := router.New()
	http.RegisterRoutes(r, nftHandler, appLogger)

	server := &fasthttp.Server{
		Handler: http.LoggingMiddleware(r.Handler, appLogger),
		Name:    cfg.App.Name,
	}

	serverAddr := ":" + cfg.Server.Port
	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", serverAddr))
		serveErr <- server.ListenAndServe(serverAddr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			appLogger.Error("HTTP server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	if err := application.Close(shutdownCtx); err != nil {
		appLogger.Warn("Dependency shutdown incomplete", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
