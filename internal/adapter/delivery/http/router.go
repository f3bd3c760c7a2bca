package http

import (
	"time"

	handler "nft-metadata-resolver/internal/adapter/handler/http"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// RegisterRoutes sets up the resolution API, the admin invalidation routes and the health checks.
func RegisterRoutes(r *router.Router, h *handler.NFTHandler, logger *zap.Logger) {
	logger.Info("Setting up application-specific routes...")

	api := r.Group("/api")
	api.GET("/nft/{chain}/{contract}/{tokenId}", h.GetNFT)
	api.DELETE("/nft/{chain}/{contract}/{tokenId}", h.DeleteNFT)
	api.GET("/collection/{chain}/{contract}", h.GetCollection)
	api.DELETE("/collection/{chain}/{contract}", h.DeleteCollection)
	api.GET("/collection/{chain}/{contract}/tokens", h.ListCollectionTokens)
	api.GET("/chains", h.GetChains)

	logger.Info("Setting up health check routes...")
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)

	logger.Info("All routes registered.")
}

// LoggingMiddleware logs every request with its status and duration.
func LoggingMiddleware(next fasthttp.RequestHandler, logger *zap.Logger) fasthttp.RequestHandler {
	logger = logger.Named("HTTP")
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		logger.Info("Request handled",
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("uri", ctx.RequestURI()),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
