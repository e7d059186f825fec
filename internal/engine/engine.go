// Package engine implements the form-filling state machine. One inbound
// event against one session record produces exactly one assistant reply and
// at most one guidance action; all record mutation happens inside the
// store's atomic Update.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/speak2fill/speak2fill/internal/event"
	"github.com/speak2fill/speak2fill/internal/eventbus"
	"github.com/speak2fill/speak2fill/internal/form"
	"github.com/speak2fill/speak2fill/internal/lang"
	"github.com/speak2fill/speak2fill/internal/store"
)

// EventType is the semantic event vocabulary.
type EventType string

const (
	EventStart       EventType = "START"
	EventUserSpoke   EventType = "USER_SPOKE"
	EventConfirmDone EventType = "CONFIRM_DONE"
	EventSkipField   EventType = "SKIP_FIELD"
)

// ErrUnknownEvent is returned when a caller names an event outside the
// vocabulary. Rejected before the transition function runs.
var ErrUnknownEvent = errors.New("unknown event type")

// Event is one inbound occurrence for a session. Text carries the raw
// utterance when there is one.
type Event struct {
	Type EventType
	Text string
}

// Action instructs a renderer to highlight a field and show the value to
// write there. BBox is in source-image pixels; renderers scale it through
// the coordinate mapper using the attached image dimensions.
//
// TextToWrite is empty only for fields that collect no value (dates,
// signatures): captured values are never empty, so an empty string is the
// "no committed text" marker.
type Action struct {
	Type        string    `json:"type"` // always "DRAW_GUIDE"
	FieldLabel  string    `json:"field_label"`
	TextToWrite string    `json:"text_to_write"`
	BBox        form.BBox `json:"bbox"`
	ImageWidth  int       `json:"image_width"`
	ImageHeight int       `json:"image_height"`
}

// Result is the outcome of one turn.
type Result struct {
	AssistantText string  `json:"assistant_text"`
	Action        *Action `json:"action"`
	// Ignored is set when the event was not legal for the session's state
	// and the record was left untouched.
	Ignored bool `json:"ignored,omitempty"`
}

// Engine drives sessions through their fields.
type Engine struct {
	store   store.Store
	phrases *lang.Classifier
	bus     *eventbus.Bus
}

// New creates an Engine. bus may be nil.
func New(st store.Store, phrases *lang.Classifier, bus *eventbus.Bus) *Engine {
	return &Engine{store: st, phrases: phrases, bus: bus}
}

// Chat executes one conversational turn. When explicitEvent is empty the
// utterance is classified against the session language's phrase table; all
// four semantic transitions stay reachable either way. Events are published
// only after the transition has committed.
func (e *Engine) Chat(ctx context.Context, sessionID, userMessage, explicitEvent string) (Result, error) {
	var res Result
	var evts []event.DomainEvent

	_, err := e.store.Update(ctx, sessionID, func(s *form.Session) error {
		ev, err := e.resolveEvent(s, userMessage, explicitEvent)
		if err != nil {
			return err
		}
		res, evts = apply(s, ev)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if e.bus != nil {
		for _, evt := range evts {
			e.bus.Publish(ctx, evt)
		}
	}
	return res, nil
}

// resolveEvent maps wire input to a semantic event. An explicit event name
// wins; otherwise an empty utterance is a START (idempotent re-emit of the
// current instruction) and control phrases come from the phrase table.
func (e *Engine) resolveEvent(s *form.Session, userMessage, explicitEvent string) (Event, error) {
	if explicitEvent != "" {
		switch EventType(explicitEvent) {
		case EventStart, EventUserSpoke, EventConfirmDone, EventSkipField:
			return Event{Type: EventType(explicitEvent), Text: userMessage}, nil
		default:
			return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, explicitEvent)
		}
	}
	if strings.TrimSpace(userMessage) == "" {
		return Event{Type: EventStart}, nil
	}
	switch e.phrases.Classify(userMessage, s.Language) {
	case lang.KindConfirm:
		return Event{Type: EventConfirmDone, Text: userMessage}, nil
	case lang.KindSkip:
		return Event{Type: EventSkipField, Text: userMessage}, nil
	default:
		return Event{Type: EventUserSpoke, Text: userMessage}, nil
	}
}

// apply is the transition function: deterministic for a fixed record and
// event, computation-only, no I/O. It mutates s in place and returns the
// reply plus the domain events to publish after commit.
func apply(s *form.Session, ev Event) (Result, []event.DomainEvent) {
	// Terminal state is idempotent: same completion reply for every event,
	// record untouched.
	if s.Terminal() {
		return Result{
			AssistantText: promptCompletion(s.Language),
			Ignored:       ev.Type != EventStart,
		}, nil
	}

	var res Result
	var evts []event.DomainEvent

	switch ev.Type {
	case EventStart:
		res, evts = emitCurrent(s)

	case EventUserSpoke:
		res, evts = applyUserSpoke(s, ev.Text)

	case EventConfirmDone:
		if s.Phase == form.PhaseAskInput {
			// Nudge: no value has been offered for this field yet, so a
			// confirmation must not skip it. Re-ask instead.
			res, evts = emitCurrent(s)
		} else {
			cur, _ := s.CurrentField()
			s.Cursor++
			s.Phase = form.PhaseAskInput
			evts = append(evts, event.NewFieldConfirmed(event.FieldAdvancedPayload{
				SessionID: s.SessionID, FieldID: cur.FieldID, Cursor: s.Cursor,
			}))
			next, nextEvts := emitCurrent(s)
			res, evts = next, append(evts, nextEvts...)
		}

	case EventSkipField:
		cur, _ := s.CurrentField()
		s.Cursor++
		s.Phase = form.PhaseAskInput
		evts = append(evts, event.NewFieldSkipped(event.FieldAdvancedPayload{
			SessionID: s.SessionID, FieldID: cur.FieldID, Cursor: s.Cursor,
		}))
		next, nextEvts := emitCurrent(s)
		res, evts = next, append(evts, nextEvts...)

	default:
		// Unreachable through resolveEvent; re-emit the current instruction.
		res, evts = emitCurrent(s)
	}

	if text := strings.TrimSpace(ev.Text); text != "" {
		s.AppendTurn("user", ev.Text)
	}
	s.AppendTurn("assistant", res.AssistantText)
	return res, evts
}

func applyUserSpoke(s *form.Session, text string) (Result, []event.DomainEvent) {
	field, _ := s.CurrentField()

	// Placeholder fields collect nothing; re-emit the writing guide.
	if field.InputMode == form.InputModePlaceholder {
		return emitCurrent(s)
	}

	value := normalizeValue(text, field.WriteLanguage)
	if value == "" {
		// An empty utterance carries no information: no transition, no value.
		return Result{AssistantText: promptAsk(s.Language, field.Label)}, nil
	}

	// Overwriting a pending value before confirmation is allowed; the most
	// recent offer wins.
	s.FilledValues[field.FieldID] = value
	s.Phase = form.PhaseAwaitConfirmation

	return Result{
			AssistantText: promptWrite(s.Language, field.Label, value),
			Action:        buildAction(s, field, value),
		}, []event.DomainEvent{event.NewValueCaptured(event.ValueCapturedPayload{
			SessionID: s.SessionID, FieldID: field.FieldID, Value: value,
		})}
}

// emitCurrent produces the instruction for the field under the cursor, or
// the completion message if the cursor just ran off the end. Entering a
// placeholder field goes straight to the writing guide.
func emitCurrent(s *form.Session) (Result, []event.DomainEvent) {
	if s.Terminal() {
		return Result{AssistantText: promptCompletion(s.Language)},
			[]event.DomainEvent{event.NewSessionCompleted(event.SessionCompletedPayload{
				SessionID:   s.SessionID,
				FieldCount:  len(s.Fields),
				FilledCount: len(s.FilledValues),
			})}
	}

	field, _ := s.CurrentField()
	if field.InputMode == form.InputModePlaceholder {
		s.Phase = form.PhaseAwaitConfirmation
		return Result{
			AssistantText: promptPlaceholder(s.Language, field.Label),
			Action:        buildAction(s, field, ""),
		}, nil
	}

	if s.Phase == form.PhaseAwaitConfirmation {
		// A value is already pending; repeat the writing guide so renderers
		// can redraw after a reconnect.
		value := s.FilledValues[field.FieldID]
		return Result{
			AssistantText: promptWrite(s.Language, field.Label, value),
			Action:        buildAction(s, field, value),
		}, nil
	}

	return Result{AssistantText: promptAsk(s.Language, field.Label)}, nil
}

func buildAction(s *form.Session, field form.Field, value string) *Action {
	return &Action{
		Type:        "DRAW_GUIDE",
		FieldLabel:  field.Label,
		TextToWrite: value,
		BBox:        field.BBox,
		ImageWidth:  s.ImageWidth,
		ImageHeight: s.ImageHeight,
	}
}

// normalizeValue trims and collapses whitespace; numeric fields keep digits
// only. Casing is preserved — folding happens only for phrase matching.
func normalizeValue(text, writeLanguage string) string {
	if writeLanguage == form.WriteLanguageNumeric {
		var b strings.Builder
		for _, r := range text {
			if unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	return strings.Join(strings.Fields(text), " ")
}
