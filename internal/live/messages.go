// Package live defines the WebSocket protocol for the conversational
// filling loop. Each "turn" message maps to exactly one engine turn, so a
// dropped connection never leaves a half-applied transition — clients
// reconnect and resume from the stored session.
package live

import (
	"encoding/json"

	"github.com/speak2fill/speak2fill/internal/engine"
	"github.com/speak2fill/speak2fill/internal/geometry"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "turn", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// TurnData is the payload for "turn" messages. Semantics match POST /v1/chat:
// an empty utterance with no explicit event starts (or re-asks) the session.
type TurnData struct {
	SessionID   string `json:"session_id"`
	UserMessage string `json:"user_message"`
	Event       string `json:"event,omitempty"`
	// Optional render-target dimensions for a mapped reply bbox.
	DisplayWidth  int `json:"display_width,omitempty"`
	DisplayHeight int `json:"display_height,omitempty"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "reply", "pong", "error"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// ReplyData carries the outcome of one turn.
type ReplyData struct {
	AssistantText string         `json:"assistant_text"`
	Action        *engine.Action `json:"action"`
	DisplayBBox   *geometry.Rect `json:"display_bbox,omitempty"`
	Ignored       bool           `json:"ignored,omitempty"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
