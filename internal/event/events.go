// Package event defines the domain events emitted after a committed session
// transition. Events are diagnostics and fan-out material — the session
// record itself is always the source of truth.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DomainEvent carries the canonical shape of every session event.
type DomainEvent struct {
	ID         string
	EventType  string
	OccurredAt time.Time
	SessionID  string
	FieldID    string
	Summary    string
	Payload    json.RawMessage
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// SessionCreatedPayload carries event-specific data for session_created.
type SessionCreatedPayload struct {
	SessionID   string `json:"session_id"`
	FieldCount  int    `json:"field_count"`
	ImageWidth  int    `json:"image_width"`
	ImageHeight int    `json:"image_height"`
	Language    string `json:"language"`
}

func NewSessionCreated(p SessionCreatedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "session_created",
		OccurredAt: time.Now(),
		SessionID:  p.SessionID,
		Summary:    fmt.Sprintf("Session created with %d fields (%dx%d)", p.FieldCount, p.ImageWidth, p.ImageHeight),
		Payload:    mustJSON(p),
	}
}

// ValueCapturedPayload carries event-specific data for value_captured.
type ValueCapturedPayload struct {
	SessionID string `json:"session_id"`
	FieldID   string `json:"field_id"`
	Value     string `json:"value"`
}

func NewValueCaptured(p ValueCapturedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "value_captured",
		OccurredAt: time.Now(),
		SessionID:  p.SessionID,
		FieldID:    p.FieldID,
		Summary:    fmt.Sprintf("Value captured for field %s", p.FieldID),
		Payload:    mustJSON(p),
	}
}

// FieldAdvancedPayload carries event-specific data for field_confirmed and
// field_skipped.
type FieldAdvancedPayload struct {
	SessionID string `json:"session_id"`
	FieldID   string `json:"field_id"`
	Cursor    int    `json:"cursor"`
}

func NewFieldConfirmed(p FieldAdvancedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "field_confirmed",
		OccurredAt: time.Now(),
		SessionID:  p.SessionID,
		FieldID:    p.FieldID,
		Summary:    fmt.Sprintf("Field %s confirmed written, cursor now %d", p.FieldID, p.Cursor),
		Payload:    mustJSON(p),
	}
}

func NewFieldSkipped(p FieldAdvancedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "field_skipped",
		OccurredAt: time.Now(),
		SessionID:  p.SessionID,
		FieldID:    p.FieldID,
		Summary:    fmt.Sprintf("Field %s skipped, cursor now %d", p.FieldID, p.Cursor),
		Payload:    mustJSON(p),
	}
}

// SessionCompletedPayload carries event-specific data for session_completed.
type SessionCompletedPayload struct {
	SessionID   string `json:"session_id"`
	FieldCount  int    `json:"field_count"`
	FilledCount int    `json:"filled_count"`
}

func NewSessionCompleted(p SessionCompletedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "session_completed",
		OccurredAt: time.Now(),
		SessionID:  p.SessionID,
		Summary:    fmt.Sprintf("Session completed: %d of %d fields filled", p.FilledCount, p.FieldCount),
		Payload:    mustJSON(p),
	}
}
