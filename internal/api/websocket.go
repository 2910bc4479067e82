package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ai-playground/backend/internal/models"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types for the state push protocol
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeState     = "state"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

const (
	// clientBuffer is how many events may queue for a slow client before
	// further events are dropped. A dropped event only delays a reload.
	clientBuffer = 16
	writeWait    = 10 * time.Second
)

// WebSocket message structure
type WSMessage struct {
	Type   string            `json:"type"`
	Form   models.FormName   `json:"form,omitempty"`
	Status models.FormStatus `json:"status,omitempty"`
	// Forms is the status of every form when the connection opened.
	Forms     map[models.FormName]models.FormStatus `json:"forms,omitempty"`
	Message   string                                `json:"message,omitempty"`
	Timestamp int64                                 `json:"timestamp"`
}

// StateReader returns a session's current form state
type StateReader interface {
	Snapshot(id string) models.Snapshot
}

type wsClient struct {
	send chan models.StateEvent
}

// Hub fans session state events out to the WebSocket connections of that
// session. It implements session.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*wsClient]struct{})}
}

// Notify queues ev for every connection of sessionID without blocking.
func (h *Hub) Notify(sessionID string, ev models.StateEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[sessionID] {
		select {
		case c.send <- ev:
		default:
		}
	}
}

// ClientCount returns the number of connections of sessionID.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

func (h *Hub) subscribe(sessionID string) *wsClient {
	c := &wsClient{send: make(chan models.StateEvent, clientBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*wsClient]struct{})
	}
	h.clients[sessionID][c] = struct{}{}
	return c
}

func (h *Hub) unsubscribe(sessionID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[sessionID], c)
	if len(h.clients[sessionID]) == 0 {
		delete(h.clients, sessionID)
	}
}

// WebSocketHandler pushes form state changes to the page
type WebSocketHandler struct {
	hub            *Hub
	state          StateReader
	upgrader       websocket.Upgrader
	maxMessageSize int64
	log            *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *Hub, state StateReader, maxMessageSize int64, log *slog.Logger) *WebSocketHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebSocketHandler{
		hub:   hub,
		state: state,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The session cookie is SameSite=Lax and the stream is read-only.
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
		},
		maxMessageSize: maxMessageSize,
		log:            log,
	}
}

// HandleWebSocket upgrades the connection and streams the session's state
// events until the client goes away.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	id := sessionID(c)
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	if wsh.maxMessageSize > 0 {
		ws.SetReadLimit(wsh.maxMessageSize)
	}

	client := wsh.hub.subscribe(id)
	defer wsh.hub.unsubscribe(id, client)

	wsh.log.Debug("websocket connected", "session", id)
	defer wsh.log.Debug("websocket disconnected", "session", id)

	// Subscribed first, so a change after this snapshot is still pushed.
	// The page compares these statuses with what it rendered.
	snap := wsh.state.Snapshot(id)
	hello := WSMessage{
		Type: MsgTypeConnected,
		Forms: map[models.FormName]models.FormStatus{
			models.FormImage:   snap.Image.Status,
			models.FormSummary: snap.Summary.Status,
		},
	}
	if err := wsh.sendMessage(ws, hello); err != nil {
		return nil
	}

	// Only this goroutine writes; the reader hands replies over.
	replies := make(chan WSMessage, 1)
	done := make(chan struct{})
	go wsh.readLoop(ws, replies, done)

	for {
		select {
		case ev := <-client.send:
			err = wsh.sendMessage(ws, WSMessage{Type: MsgTypeState, Form: ev.Form, Status: ev.Status})
		case msg := <-replies:
			err = wsh.sendMessage(ws, msg)
		case <-done:
			return nil
		case <-c.Request().Context().Done():
			return nil
		}
		if err != nil {
			return nil
		}
	}
}

func (wsh *WebSocketHandler) readLoop(ws *websocket.Conn, replies chan<- WSMessage, done chan<- struct{}) {
	defer close(done)
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.log.Debug("websocket read failed", "error", err)
			}
			return
		}

		reply := WSMessage{Type: MsgTypePong}
		if msg.Type != MsgTypePing {
			reply = WSMessage{Type: MsgTypeError, Message: "Unknown message type: " + msg.Type}
		}
		select {
		case replies <- reply:
		default:
		}
	}
}

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(msg); err != nil {
		wsh.log.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}
