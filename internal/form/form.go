// Package form defines the session data model for voice-guided form filling.
// A Session is created once from the output of the field-inference step and
// afterwards mutated only by the engine, one event at a time.
package form

import (
	"fmt"
	"time"
)

// Phase tracks where the conversation stands for the current field.
type Phase string

const (
	// PhaseAskInput means the engine is waiting for the user to provide
	// a value for the current field.
	PhaseAskInput Phase = "ASK_INPUT"
	// PhaseAwaitConfirmation means a value has been captured and the engine
	// is waiting for the user to confirm they physically wrote it.
	PhaseAwaitConfirmation Phase = "AWAIT_CONFIRMATION"
)

// Input modes. Voice fields collect a spoken value; placeholder fields
// (dates, signatures) are guided without collecting one.
const (
	InputModeVoice       = "voice"
	InputModePlaceholder = "placeholder"
)

// WriteLanguageNumeric marks fields whose value must be digits only.
const WriteLanguageNumeric = "numeric"

// BBox is an axis-aligned rectangle [x1,y1,x2,y2] in source-image pixels.
type BBox [4]int

// Width returns x2-x1.
func (b BBox) Width() int { return b[2] - b[0] }

// Height returns y2-y1.
func (b BBox) Height() int { return b[3] - b[1] }

// Field is a single fillable region on the source form.
type Field struct {
	FieldID       string `json:"field_id"`
	Label         string `json:"label"`
	BBox          BBox   `json:"bbox"`
	InputMode     string `json:"input_mode"`
	WriteLanguage string `json:"write_language"`
}

// OCRItem is one text box reported by the OCR collaborator. Kept on the
// session so renderers and diagnostics can see what the inference step saw.
type OCRItem struct {
	Text  string  `json:"text"`
	BBox  BBox    `json:"bbox"`
	Score float64 `json:"score"`
}

// Turn is one entry in a session's conversation history.
type Turn struct {
	Role string    `json:"role"` // "user" or "assistant"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is one end-to-end attempt to fill one form.
//
// Fields, ImageWidth, ImageHeight, Language and SessionID are fixed at
// creation. Cursor, Phase, FilledValues and History are owned by the engine.
// Cursor == len(Fields) is the terminal state.
type Session struct {
	SessionID   string            `json:"session_id"`
	Filename    string            `json:"filename"`
	CreatedAt   time.Time         `json:"created_at"`
	ImageWidth  int               `json:"image_width"`
	ImageHeight int               `json:"image_height"`
	Language    string            `json:"language"`
	Fields      []Field           `json:"fields"`
	OCRItems    []OCRItem         `json:"ocr_items,omitempty"`
	Cursor      int               `json:"cursor"`
	Phase       Phase             `json:"phase"`
	FilledValues map[string]string `json:"filled_values"`
	History     []Turn            `json:"history,omitempty"`
}

// NewSession builds a freshly initialized session. Callers are expected to
// have validated fields against the image dimensions first.
func NewSession(id, filename, language string, fields []Field, ocrItems []OCRItem, imageWidth, imageHeight int) *Session {
	if language == "" {
		language = "en"
	}
	return &Session{
		SessionID:    id,
		Filename:     filename,
		CreatedAt:    time.Now(),
		ImageWidth:   imageWidth,
		ImageHeight:  imageHeight,
		Language:     language,
		Fields:       fields,
		OCRItems:     ocrItems,
		Cursor:       0,
		Phase:        PhaseAskInput,
		FilledValues: make(map[string]string),
	}
}

// Terminal reports whether all fields have been addressed.
func (s *Session) Terminal() bool { return s.Cursor >= len(s.Fields) }

// CurrentField returns the field under the cursor.
func (s *Session) CurrentField() (Field, bool) {
	if s.Terminal() {
		return Field{}, false
	}
	return s.Fields[s.Cursor], true
}

// AppendTurn adds one entry to the conversation history.
func (s *Session) AppendTurn(role, text string) {
	s.History = append(s.History, Turn{Role: role, Text: text, At: time.Now()})
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate a record outside an Update.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Fields = append([]Field(nil), s.Fields...)
	cp.OCRItems = append([]OCRItem(nil), s.OCRItems...)
	cp.History = append([]Turn(nil), s.History...)
	cp.FilledValues = make(map[string]string, len(s.FilledValues))
	for k, v := range s.FilledValues {
		cp.FilledValues[k] = v
	}
	return &cp
}

// ValidateFields rejects a field list that may not be admitted into a
// session: empty labels, duplicate ids, inverted or out-of-range bboxes.
// A zero-width or zero-height bbox is allowed — some analysis outputs are
// imprecise and a degenerate box still maps to a drawable line.
func ValidateFields(fields []Field, imageWidth, imageHeight int) error {
	if len(fields) == 0 {
		return fmt.Errorf("no fields")
	}
	if imageWidth <= 0 || imageHeight <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", imageWidth, imageHeight)
	}
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f.FieldID == "" {
			return fmt.Errorf("field %d: missing field_id", i)
		}
		if seen[f.FieldID] {
			return fmt.Errorf("field %d: duplicate field_id %q", i, f.FieldID)
		}
		seen[f.FieldID] = true
		if f.Label == "" {
			return fmt.Errorf("field %q: missing label", f.FieldID)
		}
		b := f.BBox
		if b[0] > b[2] || b[1] > b[3] {
			return fmt.Errorf("field %q: inverted bbox %v", f.FieldID, b)
		}
		if b[0] < 0 || b[1] < 0 || b[2] > imageWidth || b[3] > imageHeight {
			return fmt.Errorf("field %q: bbox %v outside image %dx%d", f.FieldID, b, imageWidth, imageHeight)
		}
	}
	return nil
}
