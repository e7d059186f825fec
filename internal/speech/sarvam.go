// Package speech wraps the Sarvam speech APIs: Saarika for transcription and
// Bulbul for synthesis. The engine never calls these — speech conversion
// happens at the edge, before and after a turn.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.sarvam.ai"
	defaultTimeout = 60 * time.Second
	sttModel       = "saarika:v2.5"
)

// ErrEmptyAudio is returned when synthesis yields no audio.
var ErrEmptyAudio = errors.New("speech service returned no audio")

// Client talks to the Sarvam API.
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client with production defaults.
func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:     apiKey,
		BaseURL:    defaultBaseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// LocaleFor maps a short language code to the locale the API expects.
// Unknown codes default to English (India).
func LocaleFor(language string) string {
	lang := strings.ToLower(strings.ReplaceAll(language, "_", "-"))
	if i := strings.Index(lang, "-"); i > 0 {
		lang = lang[:i]
	}
	switch lang {
	case "ml":
		return "ml-IN"
	case "hi":
		return "hi-IN"
	case "ta":
		return "ta-IN"
	case "te":
		return "te-IN"
	case "en":
		return "en-IN"
	default:
		return "en-IN"
	}
}

// SpeakerFor maps an app-level voice name to an API speaker.
func SpeakerFor(voice string) string {
	switch strings.ToLower(voice) {
	case "male":
		return "karun"
	default: // "default", "female", anything else
		return "anushka"
	}
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
}

// Transcribe converts audio to text in the given locale. No translation:
// the transcript stays in the spoken language.
func (c *Client) Transcribe(ctx context.Context, audio []byte, localeCode string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("building transcribe request: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("building transcribe request: %w", err)
	}
	mw.WriteField("model", sttModel)
	mw.WriteField("language_code", localeCode)
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building transcribe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.BaseURL, "/")+"/speech-to-text", &body)
	if err != nil {
		return "", fmt.Errorf("building transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("api-subscription-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling speech-to-text: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech-to-text returned %d", resp.StatusCode)
	}

	var tr transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding transcript: %w", err)
	}
	return tr.Transcript, nil
}

type synthesizeRequest struct {
	Text                 string `json:"text"`
	TargetLanguageCode   string `json:"target_language_code"`
	Speaker              string `json:"speaker"`
	EnablePreprocessing  bool   `json:"enable_preprocessing"`
}

type synthesizeResponse struct {
	Audios []string `json:"audios"`
}

// Synthesize converts text to audio bytes in the given locale and voice.
func (c *Client) Synthesize(ctx context.Context, text, localeCode, speaker string) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{
		Text:                text,
		TargetLanguageCode:  localeCode,
		Speaker:             speaker,
		EnablePreprocessing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("building synthesize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.BaseURL, "/")+"/text-to-speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-subscription-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling text-to-speech: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("text-to-speech returned %d", resp.StatusCode)
	}

	var sr synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding audio: %w", err)
	}
	if len(sr.Audios) == 0 {
		return nil, ErrEmptyAudio
	}
	audio, err := base64.StdEncoding.DecodeString(sr.Audios[0])
	if err != nil {
		return nil, fmt.Errorf("decoding audio payload: %w", err)
	}
	return audio, nil
}
