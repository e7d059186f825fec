package handler

import (
	"errors"
	"net/http"

	"github.com/speak2fill/speak2fill/internal/engine"
	"github.com/speak2fill/speak2fill/internal/geometry"
)

// ChatHandler drives the conversational filling loop.
type ChatHandler struct {
	engine *engine.Engine
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(eng *engine.Engine) *ChatHandler {
	return &ChatHandler{engine: eng}
}

type chatRequest struct {
	SessionID   string `json:"session_id"`
	UserMessage string `json:"user_message"`
	Event       string `json:"event"`
	// Optional render-target dimensions. When set, the response carries the
	// action bbox mapped into that space so the client can draw directly.
	DisplayWidth  int `json:"display_width,omitempty"`
	DisplayHeight int `json:"display_height,omitempty"`
}

type chatResponse struct {
	AssistantText string         `json:"assistant_text"`
	Action        *engine.Action `json:"action"`
	DisplayBBox   *geometry.Rect `json:"display_bbox,omitempty"`
	Ignored       bool           `json:"ignored,omitempty"`
}

// displayBBox maps an action bbox into the client's render space. The
// source space is always the dimensions recorded at session creation.
func displayBBox(a *engine.Action, displayWidth, displayHeight int) *geometry.Rect {
	if a == nil || displayWidth <= 0 || displayHeight <= 0 {
		return nil
	}
	mapped := geometry.Map(geometry.FromInts(a.BBox),
		float64(a.ImageWidth), float64(a.ImageHeight),
		float64(displayWidth), float64(displayHeight))
	return &mapped
}

// Chat applies one turn of user input to a session and returns what the
// assistant should say plus an optional guidance action.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "session_id is required")
		return
	}

	res, err := h.engine.Chat(r.Context(), req.SessionID, req.UserMessage, req.Event)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownEvent) {
			writeError(w, http.StatusBadRequest, "INVALID_EVENT", "unknown event: "+req.Event)
			return
		}
		storeErrorToHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		AssistantText: res.AssistantText,
		Action:        res.Action,
		DisplayBBox:   displayBBox(res.Action, req.DisplayWidth, req.DisplayHeight),
		Ignored:       res.Ignored,
	})
}
