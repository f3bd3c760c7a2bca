package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nft-metadata-resolver/internal/domain/entity"
	"nft-metadata-resolver/internal/pkg/apperrors"

	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const defaultCallTimeout = 10 * time.Second

// JSONRPCRequest is a JSON-RPC 2.0 call with positional params.
type JSONRPCRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// JSONRPCResponse defines the basic structure for a JSON-RPC response.
type JSONRPCResponse struct {
	ID      json.RawMessage `json:"id"`
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is an error object returned by the node. It means the node was reached.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// ErrorCode returns the JSON-RPC error code.
func (e *JSONRPCError) ErrorCode() int {
	return e.Code
}

// IsCallError reports whether err is an error object answered by the node, as opposed to a transport failure.
func IsCallError(err error) bool {
	var rpcErr *JSONRPCError
	return errors.As(err, &rpcErr)
}

// Options tunes a Client.
type Options struct {
	Timeout time.Duration
	// Dial overrides the HTTP dialer. Tests pass an in-memory listener.
	Dial fasthttp.DialFunc
}

// Client is a JSON-RPC client over HTTP(S) or a single long-lived websocket. Safe for concurrent use.
type Client struct {
	url      entity.RPCURL
	protocol entity.Protocol
	client   *fasthttp.Client
	timeout  time.Duration
	logger   *zap.Logger

	nextID atomic.Uint64

	wsMu   sync.Mutex
	wsConn *websocket.Conn
}

// NewClient creates a client for a validated node URL.
func NewClient(rpcURL entity.RPCURL, opts Options, logger *zap.Logger) (*Client, error) {
	protocol := rpcURL.Protocol()
	if protocol == entity.ProtocolUnknown {
		return nil, fmt.Errorf("%w: unsupported protocol in URL %s", apperrors.ErrInvalidInput, rpcURL.Redacted())
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Client{
		url:      rpcURL,
		protocol: protocol,
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
			Dial:         opts.Dial,
		},
		timeout: timeout,
		logger:  logger.Named("RPCClient").With(zap.String("node", rpcURL.Redacted())),
	}, nil
}

// CallContext performs one call and decodes the result into result, which may be nil.
// A node error object is returned as *JSONRPCError; transport failures wrap apperrors.ErrTimeout
// or apperrors.ErrExternalServiceFailure.
func (c *Client) CallContext(ctx context.Context, result any, method string, params ...any) error {
	if params == nil {
		params = []any{}
	}
	req := JSONRPCRequest{Jsonrpc: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encode %s request: %v", apperrors.ErrInternal, method, err)
	}

	var body []byte
	if c.protocol.IsStream() {
		body, err = c.callWS(ctx, req.ID, payload)
	} else {
		body, err = c.callHTTP(ctx, payload)
	}
	if err != nil {
		return err
	}

	return c.decodeResponse(method, body, result)
}

// callHTTP performs the JSON-RPC call over HTTP/HTTPS.
func (c *Client) callHTTP(ctx context.Context, payload []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url.String())
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	timeout := c.effectiveTimeout(ctx)
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: context deadline already passed", apperrors.ErrTimeout)
	}

	if err := c.client.DoTimeout(req, resp, timeout); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			c.logger.Debug("HTTP RPC call timed out", zap.Duration("timeout", timeout), zap.Error(err))
			return nil, fmt.Errorf("%w: http request timed out after %v: %v", apperrors.ErrTimeout, timeout, err)
		}
		c.logger.Debug("HTTP RPC call failed", zap.Error(err))
		return nil, fmt.Errorf("%w: http request failed: %v", apperrors.ErrExternalServiceFailure, err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Debug("HTTP RPC call returned non-OK status", zap.Int("statusCode", resp.StatusCode()))
		return nil, fmt.Errorf("%w: node returned non-OK http status: %d",
			apperrors.ErrExternalServiceFailure, resp.StatusCode(),
		)
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}

// callWS performs the JSON-RPC call over the shared websocket, dialing it on first use.
// Calls are serialized; a failed exchange drops the connection so the next call redials.
func (c *Client) callWS(ctx context.Context, id uint64, payload []byte) ([]byte, error) {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	conn, err := c.ensureWSConn(ctx)
	if err != nil {
		return nil, err
	}

	timeout := c.effectiveTimeout(ctx)
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: context deadline already passed", apperrors.ErrTimeout)
	}
	deadline := time.Now().Add(timeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.dropWSConn()
		c.logger.Debug("WSS write message failed", zap.Error(err))
		return nil, c.wsError(ctx, "write", err)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.dropWSConn()
			c.logger.Debug("WSS read message failed", zap.Error(err))
			return nil, c.wsError(ctx, "read", err)
		}
		var envelope struct {
			ID json.RawMessage `json:"id"`
		}
		if json.Unmarshal(message, &envelope) == nil && string(envelope.ID) == fmt.Sprint(id) {
			return message, nil
		}
		c.logger.Debug("Skipping unrelated websocket message", zap.ByteString("body", message))
	}
}

func (c *Client) ensureWSConn(ctx context.Context) (*websocket.Conn, error) {
	if c.wsConn != nil {
		return c.wsConn, nil
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.timeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.url.String(), nil)
	if err != nil {
		c.logger.Debug("WSS dial failed", zap.Error(err))
		return nil, c.wsError(ctx, "dial", err)
	}
	c.logger.Debug("WSS connection established")
	c.wsConn = conn
	return conn, nil
}

func (c *Client) dropWSConn() {
	if c.wsConn != nil {
		_ = c.wsConn.Close()
		c.wsConn = nil
	}
}

func (c *Client) wsError(ctx context.Context, op string, err error) error {
	if ctxErr := context.Cause(ctx); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: wss %s context timed out: %v", apperrors.ErrTimeout, op, ctxErr)
		}
		return fmt.Errorf("%w: wss %s context error: %v", apperrors.ErrExternalServiceFailure, op, ctxErr)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: wss %s timed out: %v", apperrors.ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: wss %s failed: %v", apperrors.ErrExternalServiceFailure, op, err)
}

func (c *Client) effectiveTimeout(ctx context.Context) time.Duration {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	return timeout
}

// decodeResponse checks the JSON-RPC envelope and unmarshals the result.
func (c *Client) decodeResponse(method string, body []byte, result any) error {
	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		c.logger.Debug("RPC call returned invalid JSON", zap.String("method", method), zap.ByteString("body", body))
		return fmt.Errorf("%w: %s returned invalid JSON response: %v", apperrors.ErrExternalServiceFailure, method, err)
	}

	if rpcResp.Error != nil {
		c.logger.Debug("RPC call returned JSON-RPC error",
			zap.String("method", method),
			zap.Int("errorCode", rpcResp.Error.Code),
			zap.String("errorMessage", rpcResp.Error.Message),
		)
		return rpcResp.Error
	}

	if rpcResp.Jsonrpc != "2.0" || rpcResp.Result == nil {
		return fmt.Errorf("%w: %s returned invalid JSON-RPC structure", apperrors.ErrExternalServiceFailure, method)
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", apperrors.ErrExternalServiceFailure, method, err)
	}
	return nil
}

// Close drops the websocket connection and idle HTTP connections.
func (c *Client) Close() {
	c.wsMu.Lock()
	c.dropWSConn()
	c.wsMu.Unlock()
	c.client.CloseIdleConnections()
}
