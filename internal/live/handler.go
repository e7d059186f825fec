package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/speak2fill/speak2fill/internal/engine"
	"github.com/speak2fill/speak2fill/internal/geometry"
	"github.com/speak2fill/speak2fill/internal/store"
)

// Handler manages WebSocket connections for the filling loop.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a WebSocket handler.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{engine: eng}
}

// ServeHTTP upgrades to WebSocket and runs the message loop.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("live: websocket accept: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		var msg ClientMessage
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Printf("live: connection closed: %v", websocket.CloseStatus(err))
			}
			return
		}

		switch msg.Type {
		case "turn":
			h.handleTurn(ctx, conn, msg)
		case "ping":
			h.send(ctx, conn, ServerMessage{Type: "pong", RequestID: msg.ID})
		default:
			h.sendError(ctx, conn, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

func (h *Handler) handleTurn(ctx context.Context, conn *websocket.Conn, msg ClientMessage) {
	var data TurnData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid_data", "invalid turn data")
		return
	}
	if data.SessionID == "" {
		h.sendError(ctx, conn, msg.ID, "missing_session", "session_id is required")
		return
	}

	res, err := h.engine.Chat(ctx, data.SessionID, data.UserMessage, data.Event)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrUnknownEvent):
			h.sendError(ctx, conn, msg.ID, "invalid_event", "unknown event: "+data.Event)
		case errors.Is(err, store.ErrNotFound):
			h.sendError(ctx, conn, msg.ID, "not_found", "session not found")
		default:
			log.Printf("live: turn failed: %v", err)
			h.sendError(ctx, conn, msg.ID, "internal", "internal error")
		}
		return
	}

	reply := ReplyData{
		AssistantText: res.AssistantText,
		Action:        res.Action,
		Ignored:       res.Ignored,
	}
	if a := res.Action; a != nil && data.DisplayWidth > 0 && data.DisplayHeight > 0 {
		mapped := geometry.Map(geometry.FromInts(a.BBox),
			float64(a.ImageWidth), float64(a.ImageHeight),
			float64(data.DisplayWidth), float64(data.DisplayHeight))
		reply.DisplayBBox = &mapped
	}

	h.send(ctx, conn, ServerMessage{Type: "reply", RequestID: msg.ID, Data: reply})
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		log.Printf("live: write failed: %v", err)
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, requestID, code, message string) {
	h.send(ctx, conn, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data:      ErrorData{Code: code, Message: message},
	})
}
