package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/agentdesk/internal/identity"
)

// clientMessage is one inbound WebSocket command.
type clientMessage struct {
	Type    string `json:"type"`
	AgentID string `json:"agent_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// WebSocketHandler upgrades chat connections and drives the inbound command
// loop. Each connection gets its own session; the session is torn down, and
// any in-flight generation cancelled, when the connection drops.
type WebSocketHandler struct {
	registry      *Registry
	scheduler     *Scheduler
	emitter       *Emitter
	limiter       *RateLimiter
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates the chat WebSocket handler.
func NewWebSocketHandler(registry *Registry, scheduler *Scheduler, emitter *Emitter, limiter *RateLimiter, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		registry:      registry,
		scheduler:     scheduler,
		emitter:       emitter,
		limiter:       limiter,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsSink adapts a websocket connection to the emitter's Sink.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(ctx context.Context, payload []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	slog.Info("chat connection request", "user_id", userID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	connID := uuid.NewString()
	if _, err := h.registry.Open(connID); err != nil {
		slog.Error("failed to open chat session", "error", err, "conn_id", connID)
		return
	}
	defer h.registry.Close(connID)

	h.emitter.Attach(connID, &wsSink{conn: ws})
	defer h.emitter.Detach(connID)

	h.readLoop(r.Context(), ws, connID, userID)
	slog.Info("chat connection ended", "conn_id", connID, "user_id", userID)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, connID, userID string) {
	for {
		_, payload, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("websocket closed by client", "conn_id", connID)
			} else {
				slog.Warn("websocket read error", "error", err, "conn_id", connID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.emitter.Emit(connID, ErrorEvent("invalid message payload"))
			continue
		}

		switch msg.Type {
		case "start_chat":
			h.handleStartChat(ctx, connID, userID, msg)
		case "chat_message":
			h.handleChatMessage(ctx, connID, msg)
		default:
			h.emitter.Emit(connID, ErrorEvent("unknown message type: "+msg.Type))
		}
	}
}

func (h *WebSocketHandler) handleStartChat(ctx context.Context, connID, userID string, msg clientMessage) {
	if msg.AgentID == "" {
		h.emitter.Emit(connID, ErrorEvent("agent_id is required"))
		return
	}
	// Identity comes from the request; the payload user_id is only a
	// fallback for clients connecting without the identity cookie.
	uid := userID
	if uid == "" {
		uid = msg.UserID
	}
	if uid == "" {
		h.emitter.Emit(connID, ErrorEvent("user_id is required"))
		return
	}

	if err := h.registry.Bind(ctx, connID, msg.AgentID, uid); err != nil {
		h.emitter.Emit(connID, ErrorEvent(clientErrorMessage(err)))
		return
	}
	h.emitter.Emit(connID, ChatStartedEvent())
	h.emitter.Emit(connID, StatusEvent("Chat session started."))
}

func (h *WebSocketHandler) handleChatMessage(ctx context.Context, connID string, msg clientMessage) {
	sess, err := h.registry.Get(connID)
	if err != nil {
		h.emitter.Emit(connID, ErrorEvent(clientErrorMessage(err)))
		return
	}
	_, boundUser, bound := sess.binding()
	if !bound {
		h.emitter.Emit(connID, ErrorEvent(clientErrorMessage(ErrSessionNotBound)))
		return
	}

	if !h.limiter.Allow(boundUser) {
		h.emitter.Emit(connID, ErrorEvent("rate limit exceeded, please slow down"))
		return
	}

	if err := h.scheduler.Submit(ctx, connID, msg.Message); err != nil {
		h.emitter.Emit(connID, ErrorEvent(clientErrorMessage(err)))
	}
}

// clientErrorMessage maps engine errors to the messages sent over the wire.
// Unexpected errors are masked so internals never leak to clients.
func clientErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrAgentNotFound):
		return "agent not found"
	case errors.Is(err, ErrUnauthorized):
		return "you do not have access to this agent"
	case errors.Is(err, ErrSessionNotBound):
		return "no active chat session, send start_chat first"
	case errors.Is(err, ErrEmptyMessage):
		return "message cannot be empty"
	case errors.Is(err, ErrSessionNotFound):
		return "session not found"
	default:
		slog.Error("chat command failed", "error", err)
		return "internal error, please try again"
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
