package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/homework-lens/backend/internal/ingest"
	"github.com/homework-lens/backend/internal/upload"
)

// WebSocket message types for the registry feed
const (
	// Client -> Server messages
	MsgTypeUploadInline = "upload:inline"
	MsgTypePing         = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeSnapshot  = "snapshot"
	MsgTypeAck       = "ack"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams registry snapshots and accepts inline uploads
type WebSocketHandler struct {
	registry Registry
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new registry feed handler. Browser clients
// must come from the server's own host or one of allowedOrigins.
func NewWebSocketHandler(registry Registry, logger *slog.Logger, allowedOrigins []string) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		logger: logger.With("component", "ws"),
	}
}

// originChecker accepts requests without an Origin header, same-host origins
// and the listed ones. "*" accepts every origin.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// wsConn serialises writes; the feed goroutine and the read loop both write.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg.Timestamp = time.Now().UnixMilli()
	return c.ws.WriteJSON(msg)
}

// HandleWebSocket upgrades the connection, sends the current snapshot and then
// one snapshot per registry change until the client disconnects
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	conn := &wsConn{ws: ws}

	updates, cancel := wsh.registry.Subscribe()
	defer cancel()

	wsh.logger.Debug("client connected")
	conn.send(WSMessage{Type: MsgTypeConnected})
	wsh.sendSnapshot(conn, wsh.registry.Snapshot())

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				wsh.sendSnapshot(conn, snap)
			case <-done:
				return
			}
		}
	}()

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.logger.Warn("connection error", "error", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			conn.send(WSMessage{Type: MsgTypePong, ID: msg.ID})
		case MsgTypeUploadInline:
			wsh.handleUploadInline(c, conn, msg)
		default:
			wsh.sendError(conn, msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	wsh.logger.Debug("client disconnected")
	return nil
}

func (wsh *WebSocketHandler) handleUploadInline(c echo.Context, conn *wsConn, msg WSMessage) {
	var src ingest.InlineSource
	if err := json.Unmarshal(msg.Payload, &src); err != nil {
		wsh.sendError(conn, msg.ID, "Invalid inline payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	rec, err := wsh.registry.IngestInline(c.Request().Context(), src)
	if err != nil {
		apiErr := FromDomainError(err)
		wsh.sendError(conn, msg.ID, apiErr.Message, apiErr.Code)
		return
	}
	conn.send(WSMessage{Type: MsgTypeAck, ID: msg.ID, Payload: mustJSON(rec)})
}

func (wsh *WebSocketHandler) sendSnapshot(conn *wsConn, snap upload.Snapshot) {
	if err := conn.send(WSMessage{Type: MsgTypeSnapshot, Payload: mustJSON(snap)}); err != nil {
		wsh.logger.Debug("failed to send snapshot", "error", err)
	}
}

func (wsh *WebSocketHandler) sendError(conn *wsConn, id, message, code string) {
	conn.send(WSMessage{
		Type:    MsgTypeError,
		ID:      id,
		Payload: mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
