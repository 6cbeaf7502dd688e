package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/molrank/internal/engine"
	"github.com/onnwee/molrank/internal/middleware"
)

// Stream message types.
const (
	MessageFrame  = "frame"
	MessageResult = "result"
	MessageError  = "error"
)

const (
	streamReadTimeout  = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
	maxFrameInterval   = 5 * time.Second
)

// StreamMessage is one server message on /v1/rank/stream.
type StreamMessage struct {
	Type          string        `json:"type"`
	Iteration     int           `json:"iteration,omitempty"`
	Probabilities []float64     `json:"probabilities,omitempty"`
	Result        *RankResponse `json:"result,omitempty"`
	Error         *ErrorDetail  `json:"error,omitempty"`
}

// StreamHandlers serves the diffusion history over WebSocket.
type StreamHandlers struct {
	rank     *RankHandlers
	upgrader websocket.Upgrader
}

// NewStreamHandlers creates stream handlers sharing the rank handlers'
// engine and default weights. With no allowed origins every origin is
// accepted, matching the CORS middleware.
func NewStreamHandlers(rank *RankHandlers, allowedOrigins []string) *StreamHandlers {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &StreamHandlers{
		rank: rank,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// Stream handles GET /v1/rank/stream. The client sends one RankRequest;
// the server replies with a frame message per diffusion iteration, then a
// result message, then closes. Failures are sent as an error message. An
// omitted strategy means graph_diffusion.
func (h *StreamHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}
	defer conn.Close()

	requestID := middleware.GetRequestID(ctx)
	conn.SetReadLimit(h.rank.maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

	req := newRankRequest()
	if err := conn.ReadJSON(&req); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			slog.WarnContext(ctx, "failed to read stream request", "error", err, "request_id", requestID)
		}
		_ = h.send(conn, StreamMessage{Type: MessageError, Error: &ErrorDetail{Code: ErrCodeBadRequest, Message: "Invalid JSON request"}})
		return
	}
	req.Diffusion.IncludeHistory = true
	if req.Strategy == "" {
		req.Strategy = string(engine.StrategyGraphDiffusion)
	}

	resp, err := h.rank.run(r, &req)
	if err != nil {
		code := classify(err)
		message := err.Error()
		if code == ErrCodeInternal {
			slog.ErrorContext(ctx, "stream rank failed", "error", err, "request_id", requestID)
			message = "Internal server error"
		}
		_ = h.send(conn, StreamMessage{Type: MessageError, Error: &ErrorDetail{Code: code, Message: message}})
		return
	}

	interval := time.Duration(req.FrameIntervalMS) * time.Millisecond
	if interval > maxFrameInterval {
		interval = maxFrameInterval
	}
	if hist := resp.History; hist != nil {
		for i, frame := range hist.Frames {
			if i > 0 && !pause(ctx, interval) {
				return
			}
			if err := h.send(conn, StreamMessage{Type: MessageFrame, Iteration: i + 1, Probabilities: frame}); err != nil {
				slog.DebugContext(ctx, "stream client went away", "error", err, "request_id", requestID)
				return
			}
		}
		resp.History = nil
	}

	if err := h.send(conn, StreamMessage{Type: MessageResult, Result: resp}); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(streamWriteTimeout))
}

func (h *StreamHandlers) send(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(msg)
}

// pause waits d, returning false if ctx ends first.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
