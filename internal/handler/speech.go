package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/speak2fill/speak2fill/internal/speech"
	"github.com/speak2fill/speak2fill/internal/store"
)

const maxAudioBytes = 10 << 20

// Transcriber converts spoken audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, localeCode string) (string, error)
}

// Synthesizer converts text to spoken audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, localeCode, speaker string) ([]byte, error)
}

// SpeechHandler converts between audio and text at the edge of the system.
type SpeechHandler struct {
	store       store.Store
	transcriber Transcriber
	synthesizer Synthesizer
}

// NewSpeechHandler creates a SpeechHandler.
func NewSpeechHandler(st store.Store, tr Transcriber, syn Synthesizer) *SpeechHandler {
	return &SpeechHandler{store: st, transcriber: tr, synthesizer: syn}
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
	Language   string `json:"language"`
}

// Transcribe accepts a multipart audio upload and returns the transcript in
// the spoken language. The optional language form value picks the STT locale;
// it defaults to English (India).
func (h *SpeechHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil || len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "empty audio upload")
		return
	}

	locale := speech.LocaleFor(r.FormValue("language"))
	text, err := h.transcriber.Transcribe(r.Context(), audio, locale)
	if err != nil {
		log.Printf("speech: transcription failed: %v", err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "transcription unavailable, try again")
		return
	}

	writeJSON(w, http.StatusOK, transcribeResponse{Transcript: text, Language: locale})
}

type synthesizeRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
	Voice     string `json:"voice"`
}

// Synthesize converts assistant text to audio. When a session id is given its
// language wins over the request language, so prompts are spoken in the
// language the session was created with.
func (h *SpeechHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "text is required")
		return
	}

	language := req.Language
	if req.SessionID != "" {
		sess, err := h.store.Get(r.Context(), req.SessionID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				storeErrorToHTTP(w, err)
				return
			}
		} else if sess.Language != "" {
			language = sess.Language
		}
	}

	audio, err := h.synthesizer.Synthesize(r.Context(), req.Text,
		speech.LocaleFor(language), speech.SpeakerFor(req.Voice))
	if err != nil {
		log.Printf("speech: synthesis failed: %v", err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "speech synthesis unavailable, try again")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}
