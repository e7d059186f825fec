package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speak2fill/speak2fill/internal/engine"
	"github.com/speak2fill/speak2fill/internal/form"
	"github.com/speak2fill/speak2fill/internal/lang"
	"github.com/speak2fill/speak2fill/internal/store"
)

type stubSpeech struct{}

func (stubSpeech) Transcribe(ctx context.Context, audio []byte, locale string) (string, error) {
	return "", nil
}

func (stubSpeech) Synthesize(ctx context.Context, text, locale, speaker string) ([]byte, error) {
	return nil, nil
}

func testRoutes(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	phrases, err := lang.Load()
	require.NoError(t, err)
	cfg := Config{
		Store:       st,
		Engine:      engine.New(st, phrases, nil),
		Transcriber: stubSpeech{},
		Synthesizer: stubSpeech{},
	}
	return Routes(cfg), st
}

func TestRoutes_Healthz(t *testing.T) {
	r, _ := testRoutes(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRoutes_SessionLookup(t *testing.T) {
	r, st := testRoutes(t)

	sess := form.NewSession(uuid.New().String(), "form.png", "en",
		[]form.Field{
			{FieldID: "name", Label: "Name", BBox: form.BBox{10, 10, 100, 40}, InputMode: form.InputModeVoice, WriteLanguage: "en"},
		},
		nil, 200, 100)
	require.NoError(t, st.Create(context.Background(), sess, []byte{0x89}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sess.SessionID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+uuid.New().String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_UnknownPath(t *testing.T) {
	r, _ := testRoutes(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
