package http

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	handler "nft-metadata-resolver/internal/adapter/handler/http"
	"nft-metadata-resolver/internal/domain"
	"nft-metadata-resolver/internal/domain/entity"

	"github.com/fasthttp/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"
)

// routeService answers only for ethereum and records which operation ran.
type routeService struct {
	last string
}

func (s *routeService) check(op, chain string) error {
	s.last = op
	if !strings.EqualFold(chain, "ethereum") {
		return &domain.UnsupportedChainError{Chain: chain, Supported: []string{"ethereum"}}
	}
	return nil
}

func (s *routeService) ResolveNFT(_ context.Context, chain, addr, tokenID string, _ bool) (entity.NFTResult, error) {
	id := entity.NewTokenIdentity(chain, addr, tokenID)
	return entity.NFTResult{Metadata: entity.Metadata{}.WithIdentity(id)}, s.check("resolveNFT", chain)
}

func (s *routeService) ResolveCollection(_ context.Context, chain, addr string) (entity.CollectionResult, error) {
	return entity.CollectionResult{}, s.check("resolveCollection", chain)
}

func (s *routeService) ListCollectionTokens(_ context.Context, chain, _ string, _, _ int) (entity.MetadataPage, error) {
	return entity.MetadataPage{}, s.check("listTokens", chain)
}

func (s *routeService) InvalidateNFT(_ context.Context, chain, _, _ string) (bool, error) {
	return true, s.check("invalidateNFT", chain)
}

func (s *routeService) InvalidateCollection(_ context.Context, chain, _ string) (int, error) {
	return 0, s.check("invalidateCollection", chain)
}

func (s *routeService) CacheStatistics(context.Context) (entity.CacheStatistics, error) {
	s.last = "stats"
	return entity.CacheStatistics{HotTierHealthy: true}, nil
}

func (s *routeService) HealthCheck(context.Context) entity.HealthReport {
	s.last = "health"
	return entity.HealthReport{HotTierHealthy: true}
}

func (s *routeService) SupportedChains() []string {
	s.last = "chains"
	return []string{"ethereum"}
}

func (s *routeService) Shutdown(context.Context) error {
	return nil
}

func startAPI(t *testing.T, svc *routeService) *fasthttp.Client {
	t.Helper()
	logger := zap.NewNop()
	r := router.New()
	RegisterRoutes(r, handler.NewNFTHandler(svc, time.Second, logger), logger)

	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: LoggingMiddleware(r.Handler, logger)}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	return &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
}

func TestRoutes(t *testing.T) {
	t.Parallel()
	svc := &routeService{}
	client := startAPI(t, svc)

	tests := []struct {
		method string
		path   string
		status int
		op     string
	}{
		{fasthttp.MethodGet, "/api/nft/ethereum/0xabc/1", fasthttp.StatusOK, "resolveNFT"},
		{fasthttp.MethodGet, "/api/nft/ethereum/0xabc/1?refresh=true", fasthttp.StatusOK, "resolveNFT"},
		{fasthttp.MethodGet, "/api/nft/solana/0xabc/1", fasthttp.StatusBadRequest, "resolveNFT"},
		{fasthttp.MethodDelete, "/api/nft/ethereum/0xabc/1", fasthttp.StatusOK, "invalidateNFT"},
		{fasthttp.MethodGet, "/api/collection/ethereum/0xabc", fasthttp.StatusOK, "resolveCollection"},
		{fasthttp.MethodGet, "/api/collection/ethereum/0xabc/tokens?limit=5", fasthttp.StatusOK, "listTokens"},
		{fasthttp.MethodDelete, "/api/collection/ethereum/0xabc", fasthttp.StatusOK, "invalidateCollection"},
		{fasthttp.MethodGet, "/api/chains", fasthttp.StatusOK, "chains"},
		{fasthttp.MethodGet, "/health", fasthttp.StatusOK, "health"},
		{fasthttp.MethodGet, "/stats", fasthttp.StatusOK, "stats"},
	}
	for _, tc := range tests {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		req.Header.SetMethod(tc.method)
		req.SetRequestURI("http://api.test" + tc.path)

		require.NoError(t, client.Do(req, resp), tc.path)
		assert.Equal(t, tc.status, resp.StatusCode(), "%s %s: %s", tc.method, tc.path, resp.Body())
		assert.Equal(t, tc.op, svc.last, tc.path)
		assert.Equal(t, "application/json", string(resp.Header.ContentType()), tc.path)

		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()
	client := startAPI(t, &routeService{})

	status, _, err := client.Get(nil, "http://api.test/api/nft/ethereum")
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusNotFound, status)

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI("http://api.test/api/chains")
	require.NoError(t, client.Do(req, resp))
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, resp.StatusCode())
}
