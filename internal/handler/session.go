package handler

import (
	"net/http"

	"github.com/speak2fill/speak2fill/internal/form"
	"github.com/speak2fill/speak2fill/internal/store"
)

// SessionHandler serves session records and their stored images.
type SessionHandler struct {
	store store.Store
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(st store.Store) *SessionHandler {
	return &SessionHandler{store: st}
}

type sessionResponse struct {
	SessionID    string            `json:"session_id"`
	Filename     string            `json:"filename"`
	CreatedAt    string            `json:"created_at"`
	ImageWidth   int               `json:"image_width"`
	ImageHeight  int               `json:"image_height"`
	Language     string            `json:"language"`
	Fields       []form.Field      `json:"fields"`
	Cursor       int               `json:"cursor"`
	Phase        form.Phase        `json:"phase"`
	Completed    bool              `json:"completed"`
	FilledValues map[string]string `json:"filled_values"`
	History      []form.Turn       `json:"history"`
}

// GetSession returns the full session record.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:    sess.SessionID,
		Filename:     sess.Filename,
		CreatedAt:    sess.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		ImageWidth:   sess.ImageWidth,
		ImageHeight:  sess.ImageHeight,
		Language:     sess.Language,
		Fields:       sess.Fields,
		Cursor:       sess.Cursor,
		Phase:        sess.Phase,
		Completed:    sess.Terminal(),
		FilledValues: sess.FilledValues,
		History:      sess.History,
	})
}

// GetImage streams the original uploaded image back to the client so the
// UI can render guides over the exact pixels the bboxes were measured on.
func (h *SessionHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	img, err := h.store.GetImage(r.Context(), id)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(img))
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}
