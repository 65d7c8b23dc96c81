package handlers

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flowforge/flowforge/types"
)

// RelayHandler bridges the editor frontend and the execution server: HTTP
// run control is reverse-proxied, chat traffic is relayed over WebSocket.
type RelayHandler struct {
	executionURL *url.URL
	proxy        *httputil.ReverseProxy
	logger       *zap.Logger
}

// NewRelayHandler creates a relay to the execution server at rawURL.
func NewRelayHandler(rawURL string, logger *zap.Logger) (*RelayHandler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid execution server URL").WithCause(err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("execution server unreachable",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		WriteError(w, types.NewError(types.ErrUpstreamError, "execution server unreachable").
			WithCause(err).WithRetryable(true), nil)
	}

	return &RelayHandler{
		executionURL: target,
		proxy:        proxy,
		logger:       logger.With(zap.String("component", "relay_handler")),
	}, nil
}

// HandleProxy forwards run control requests (compile, run, abort) to the
// execution server unchanged.
func (h *RelayHandler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	h.proxy.ServeHTTP(w, r)
}

// HandleChatRelay handles GET /ws/chat. It accepts the editor WebSocket,
// dials the execution server's chat endpoint for the same run, and pumps
// frames in both directions until either side closes.
func (h *RelayHandler) HandleChatRelay(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "run_id is required"), h.logger)
		return
	}

	client, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer client.Close(websocket.StatusInternalError, "relay closed")

	upstreamURL := h.chatURL(runID)
	upstream, _, err := websocket.Dial(r.Context(), upstreamURL, nil)
	if err != nil {
		h.logger.Error("dial execution server failed",
			zap.String("url", upstreamURL),
			zap.Error(err))
		client.Close(websocket.StatusTryAgainLater, "execution server unavailable")
		return
	}
	defer upstream.Close(websocket.StatusInternalError, "relay closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pump(ctx, client, upstream) })
	g.Go(func() error { return pump(ctx, upstream, client) })

	if err := g.Wait(); err != nil && websocket.CloseStatus(err) == -1 {
		h.logger.Debug("chat relay ended", zap.String("run_id", runID), zap.Error(err))
	}

	client.Close(websocket.StatusNormalClosure, "")
	upstream.Close(websocket.StatusNormalClosure, "")
}

// chatURL builds the upstream WebSocket URL for a run.
func (h *RelayHandler) chatURL(runID string) string {
	scheme := "ws"
	if h.executionURL.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + h.executionURL.Host + "/ws/chat?run_id=" + url.QueryEscape(runID)
}

// pump copies frames from src to dst until src closes or ctx is canceled.
func pump(ctx context.Context, src, dst *websocket.Conn) error {
	for {
		typ, data, err := src.Read(ctx)
		if err != nil {
			return err
		}
		if err := dst.Write(ctx, typ, data); err != nil {
			return err
		}
	}
}
