// Package infer turns OCR text boxes into a fillable-field list by asking a
// language model. The model's answer is advisory: everything it returns is
// re-validated before a session is created.
package infer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/speak2fill/speak2fill/internal/form"
)

// ErrNoFields is returned when the model produces no usable fields.
var ErrNoFields = errors.New("no fillable fields identified")

const (
	defaultModel   = "gemini-2.5-flash-lite"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 30 * time.Second
)

// Client calls the Gemini generateContent endpoint.
type Client struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client with production defaults.
func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:     apiKey,
		Model:      defaultModel,
		BaseURL:    defaultBaseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
	Config   genConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type genConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// rawField is the shape the model is asked to produce.
type rawField struct {
	Label         string    `json:"label"`
	BBox          form.BBox `json:"bbox"`
	InputMode     string    `json:"input_mode"`
	WriteLanguage string    `json:"write_language"`
}

// InferFields asks the model which regions of the form a user must fill,
// given the OCR text boxes and image dimensions. Returned fields carry
// stable snake_case ids derived from their labels.
func (c *Client) InferFields(ctx context.Context, items []form.OCRItem, imageWidth, imageHeight int) ([]form.Field, error) {
	prompt := buildPrompt(items, imageWidth, imageHeight)

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		Config:   genConfig{Temperature: 0.1, MaxOutputTokens: 2048},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling inference request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.BaseURL, "/"), c.Model, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling inference service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference service returned %d", resp.StatusCode)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, fmt.Errorf("decoding inference response: %w", err)
	}
	if len(gen.Candidates) == 0 || len(gen.Candidates[0].Content.Parts) == 0 {
		return nil, ErrNoFields
	}

	fields, err := parseFields(gen.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	return fields, nil
}

func buildPrompt(items []form.OCRItem, imageWidth, imageHeight int) string {
	var sb strings.Builder
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. '%s' (confidence: %.2f, bbox: %v)\n", i, item.Text, item.Score, item.BBox)
	}

	return fmt.Sprintf(`You are analyzing a scanned form. Based on the OCR text below, identify ALL fillable fields that need user input.

OCR Data (image dimensions: %dx%d):
%s
Rules:
1. EXCLUDE office-only fields (e.g., "For office use only", "Approval stamp")
2. EXCLUDE pre-filled system fields (e.g., form numbers, dates already filled)
3. For each user-fillable field, determine:
   - label: clear field name (e.g., "Name", "Date of Birth", "Address")
   - bbox: bounding box coordinates [x1, y1, x2, y2] where user should write
   - input_mode: "voice" for text fields, "placeholder" for dates/signatures
   - write_language: "en" for English, "ml" for Malayalam/native, "numeric" for numbers

Return ONLY a valid JSON array (no markdown, no explanation):
[
  {"label": "Name", "bbox": [x1, y1, x2, y2], "input_mode": "voice", "write_language": "en"},
  ...
]

JSON output:`, imageWidth, imageHeight, sb.String())
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")
var rawJSONArray = regexp.MustCompile(`(?s)(\[.*\])`)

// parseFields extracts the JSON array from the model's answer, which may be
// fenced in markdown despite instructions, and normalizes each entry.
func parseFields(text string) ([]form.Field, error) {
	jsonText := text
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		jsonText = m[1]
	} else if m := rawJSONArray.FindStringSubmatch(text); m != nil {
		jsonText = m[1]
	}

	var raw []rawField
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, fmt.Errorf("inference output is not a field array: %w", err)
	}

	fields := make([]form.Field, 0, len(raw))
	used := make(map[string]int)
	for _, rf := range raw {
		if rf.Label == "" {
			continue
		}
		if rf.InputMode == "" {
			rf.InputMode = form.InputModeVoice
		}
		if rf.WriteLanguage == "" {
			rf.WriteLanguage = "en"
		}
		fields = append(fields, form.Field{
			FieldID:       assignID(rf.Label, used),
			Label:         rf.Label,
			BBox:          rf.BBox,
			InputMode:     rf.InputMode,
			WriteLanguage: rf.WriteLanguage,
		})
	}
	return fields, nil
}

var nonIdent = regexp.MustCompile(`[^a-z0-9]+`)

// assignID derives a stable snake_case id from the label, suffixing
// duplicates so ids stay unique within a session.
func assignID(label string, used map[string]int) string {
	id := strings.Trim(nonIdent.ReplaceAllString(strings.ToLower(label), "_"), "_")
	if id == "" {
		id = "field"
	}
	used[id]++
	if n := used[id]; n > 1 {
		return fmt.Sprintf("%s_%d", id, n)
	}
	return id
}
