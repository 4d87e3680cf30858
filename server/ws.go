package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/kilobridge/kilobridge/internal/chat"
	"github.com/kilobridge/kilobridge/internal/metrics"
	"github.com/kilobridge/kilobridge/internal/sse"
)

// WSChatSubprotocol is the subprotocol clients negotiate on /ws/chat.
const WSChatSubprotocol = "kilobridge.chat.v1"

const wsCloseInvalidRequest = 4002

// wsChatHandler serves the WebSocket form of /chat/stream.
//
// Protocol:
//  1. Client opens a WebSocket with subprotocol "kilobridge.chat.v1".
//  2. Client sends one chat request as a JSON text frame within 10 seconds.
//  3. Server sends each token as a text frame, then "[DONE]".
//  4. Server closes with 1000.
func (s *Server) wsChatHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-s.shutdownCh:
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:       []string{WSChatSubprotocol},
			InsecureSkipVerify: true,
		})
		if err != nil {
			slog.Debug("ws/chat: accept failed", "error", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()

		metrics.WSConnectionsActive.Inc()
		defer metrics.WSConnectionsActive.Dec()

		ctx := r.Context()

		readCtx, readCancel := context.WithTimeout(ctx, 10*time.Second)
		typ, data, err := conn.Read(readCtx)
		readCancel()
		if err != nil {
			slog.Debug("ws/chat: read request failed", "error", err)
			return
		}
		if typ != websocket.MessageText {
			_ = conn.Close(websocket.StatusCode(wsCloseInvalidRequest), "expected text frame for request")
			return
		}

		var body chatRequest
		if err := json.Unmarshal(data, &body); err != nil {
			_ = conn.Close(websocket.StatusCode(wsCloseInvalidRequest), "invalid request")
			return
		}
		if err := chat.Validate(body.Messages); err != nil {
			_ = conn.Close(websocket.StatusCode(wsCloseInvalidRequest), "invalid request")
			return
		}

		emit := &wsEmitter{ctx: ctx, conn: conn}
		s.cfg.Responder.RespondStream(ctx, body.toRequest(), emit)

		_ = conn.Close(websocket.StatusNormalClosure, "")
	})
}

// wsEmitter sends every token as one text message.
type wsEmitter struct {
	mu   sync.Mutex
	ctx  context.Context
	conn *websocket.Conn
	done bool
}

var _ sse.Emitter = (*wsEmitter)(nil)

func (e *wsEmitter) Token(token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return sse.ErrClosed
	}
	return e.write(token)
}

func (e *wsEmitter) Done() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return nil
	}
	e.done = true
	return e.write(sse.Sentinel)
}

func (e *wsEmitter) write(msg string) error {
	if err := e.conn.Write(e.ctx, websocket.MessageText, []byte(msg)); err != nil {
		return err
	}
	metrics.WSMessagesTotal.Inc()
	return nil
}
