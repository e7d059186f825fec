package eventbus

import (
	"context"
	"log"

	"github.com/speak2fill/speak2fill/internal/event"
)

// LogConsumer logs all session events for observability.
type LogConsumer struct{}

func NewLogConsumer() *LogConsumer { return &LogConsumer{} }

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	short := evt.SessionID
	if len(short) > 8 {
		short = short[:8]
	}
	log.Printf("event: %s [session %s] %s", evt.EventType, short, evt.Summary)
	return nil
}
