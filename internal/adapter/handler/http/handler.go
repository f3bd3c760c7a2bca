package http

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"nft-metadata-resolver/internal/application/port"
	"nft-metadata-resolver/internal/domain"
	"nft-metadata-resolver/internal/domain/entity"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// NFTHandler serves the resolution service over HTTP.
type NFTHandler struct {
	service        port.ResolverService
	requestTimeout time.Duration
	startedAt      time.Time
	logger         *zap.Logger
}

// NewNFTHandler creates the handler. A non-positive timeout leaves requests unbounded.
func NewNFTHandler(service port.ResolverService, requestTimeout time.Duration, logger *zap.Logger) *NFTHandler {
	return &NFTHandler{
		service:        service,
		requestTimeout: requestTimeout,
		startedAt:      time.Now(),
		logger:         logger.Named("NFTHandler"),
	}
}

// GetNFT handles GET /api/nft/{chain}/{contract}/{tokenId}?refresh=
func (h *NFTHandler) GetNFT(ctx *fasthttp.RequestCtx) {
	chain, contract, tokenID := pathParam(ctx, "chain"), pathParam(ctx, "contract"), pathParam(ctx, "tokenId")

	refresh := false
	if raw := ctx.QueryArgs().Peek("refresh"); len(raw) > 0 {
		v, err := strconv.ParseBool(string(raw))
		if err != nil {
			h.writeError(ctx, fasthttp.StatusBadRequest, "Bad Request", "refresh must be a boolean")
			return
		}
		refresh = v
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.service.ResolveNFT(reqCtx, chain, contract, tokenID, refresh)
	if err != nil {
		h.handleServiceError(ctx, err, zap.String("chain", chain), zap.String("contract", contract), zap.String("tokenId", tokenID))
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, NewNFTResponse(res.Metadata, res.FromCache, res.Source))
}

// GetCollection handles GET /api/collection/{chain}/{contract}
func (h *NFTHandler) GetCollection(ctx *fasthttp.RequestCtx) {
	chain, contract := pathParam(ctx, "chain"), pathParam(ctx, "contract")

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.service.ResolveCollection(reqCtx, chain, contract)
	if err != nil {
		h.handleServiceError(ctx, err, zap.String("chain", chain), zap.String("contract", contract))
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, NewCollectionResponse(res.Collection, res.FromCache))
}

// ListCollectionTokens handles GET /api/collection/{chain}/{contract}/tokens?limit=&offset=
func (h *NFTHandler) ListCollectionTokens(ctx *fasthttp.RequestCtx) {
	chain, contract := pathParam(ctx, "chain"), pathParam(ctx, "contract")

	limit, ok := queryInt(ctx, "limit", defaultPageLimit)
	if !ok || limit < 1 || limit > maxPageLimit {
		h.writeError(ctx, fasthttp.StatusBadRequest, "Bad Request", "limit must be an integer between 1 and 100")
		return
	}
	offset, ok := queryInt(ctx, "offset", 0)
	if !ok || offset < 0 {
		h.writeError(ctx, fasthttp.StatusBadRequest, "Bad Request", "offset must be a non-negative integer")
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	page, err := h.service.ListCollectionTokens(reqCtx, chain, contract, limit, offset)
	if err != nil {
		h.handleServiceError(ctx, err, zap.String("chain", chain), zap.String("contract", contract))
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, newTokenPageResponse(page))
}

// DeleteNFT handles DELETE /api/nft/{chain}/{contract}/{tokenId}
func (h *NFTHandler) DeleteNFT(ctx *fasthttp.RequestCtx) {
	chain, contract, tokenID := pathParam(ctx, "chain"), pathParam(ctx, "contract"), pathParam(ctx, "tokenId")

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	found, err := h.service.InvalidateNFT(reqCtx, chain, contract, tokenID)
	if err != nil {
		h.handleServiceError(ctx, err, zap.String("chain", chain), zap.String("contract", contract), zap.String("tokenId", tokenID))
		return
	}
	removed := 0
	if found {
		removed = 1
	}
	key := entity.NewTokenIdentity(chain, contract, tokenID).Key()
	h.logger.Info("Invalidated token", zap.String("key", key), zap.Int("removed", removed))
	h.writeJSON(ctx, fasthttp.StatusOK, InvalidationResponse{Key: key, Removed: removed})
}

// DeleteCollection handles DELETE /api/collection/{chain}/{contract}
func (h *NFTHandler) DeleteCollection(ctx *fasthttp.RequestCtx) {
	chain, contract := pathParam(ctx, "chain"), pathParam(ctx, "contract")

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	removed, err := h.service.InvalidateCollection(reqCtx, chain, contract)
	if err != nil {
		h.handleServiceError(ctx, err, zap.String("chain", chain), zap.String("contract", contract))
		return
	}
	key := entity.NewCollectionIdentity(chain, contract).Key()
	h.logger.Info("Invalidated collection", zap.String("key", key), zap.Int("removed", removed))
	h.writeJSON(ctx, fasthttp.StatusOK, InvalidationResponse{Key: key, Removed: removed})
}

// GetChains handles GET /api/chains
func (h *NFTHandler) GetChains(ctx *fasthttp.RequestCtx) {
	h.writeJSON(ctx, fasthttp.StatusOK, ChainsResponse{Chains: h.service.SupportedChains()})
}

// Health handles GET /health. A degraded dependency still answers 200 with status "degraded".
func (h *NFTHandler) Health(ctx *fasthttp.RequestCtx) {
	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	report := h.service.HealthCheck(reqCtx)
	services := make(map[string]string, len(report.Chains)+1)
	services["hot"] = serviceStatus(report.HotTierHealthy)
	for chain, healthy := range report.Chains {
		services[chain] = serviceStatus(healthy)
	}

	h.writeJSON(ctx, fasthttp.StatusOK, HealthResponse{
		Status:    report.Status(),
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startedAt).Seconds(),
		Services:  services,
	})
}

// Stats handles GET /stats
func (h *NFTHandler) Stats(ctx *fasthttp.RequestCtx) {
	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	stats, err := h.service.CacheStatistics(reqCtx)
	if err != nil {
		h.handleServiceError(ctx, err)
		return
	}

	perChain := stats.PerChainCounts
	if perChain == nil {
		perChain = map[string]int64{}
	}
	h.writeJSON(ctx, fasthttp.StatusOK, StatsResponse{
		Timestamp: time.Now().UTC(),
		Cache: CacheStats{
			Database: DatabaseStats{
				TotalNFTs:        stats.TotalRecords,
				TotalCollections: stats.TotalCollections,
				NFTsByChain:      perChain,
			},
			Hot: HotStats{Healthy: stats.HotTierHealthy},
		},
	})
}

func (h *NFTHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.requestTimeout)
}

// handleServiceError maps the error class onto a status code.
func (h *NFTHandler) handleServiceError(ctx *fasthttp.RequestCtx, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))

	switch domain.ClassOf(err) {
	case domain.ClassClientInput:
		h.logger.Debug("Rejected request", fields...)
		h.writeError(ctx, fasthttp.StatusBadRequest, "Bad Request", err.Error())
	case domain.ClassNotFound:
		h.logger.Debug("Resource not found", fields...)
		h.writeError(ctx, fasthttp.StatusNotFound, "Not Found", err.Error())
	case domain.ClassTransient:
		h.logger.Warn("Upstream unavailable", fields...)
		h.writeError(ctx, fasthttp.StatusServiceUnavailable, "Service Unavailable", err.Error())
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			h.logger.Warn("Request timed out", fields...)
			h.writeError(ctx, fasthttp.StatusGatewayTimeout, "Gateway Timeout", "request timed out")
			return
		}
		h.logger.Error("Request failed", fields...)
		h.writeError(ctx, fasthttp.StatusInternalServerError, "Internal Server Error", "internal error")
	}
}

func (h *NFTHandler) writeError(ctx *fasthttp.RequestCtx, status int, title, message string) {
	h.writeJSON(ctx, status, ErrorResponse{StatusCode: status, Error: title, Message: message})
}

func (h *NFTHandler) writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	if err := json.NewEncoder(ctx).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func pathParam(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func queryInt(ctx *fasthttp.RequestCtx, name string, fallback int) (int, bool) {
	raw := ctx.QueryArgs().Peek(name)
	if len(raw) == 0 {
		return fallback, true
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}
