package events

import (
	"context"
	"log"
)

// LogPublisher writes events to the application log. It is used when no
// broker is configured.
type LogPublisher struct{}

// NewLogPublisher creates a new LogPublisher.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, event OrderEvent) error {
	log.Printf("[EVENT] Type=%s, Order=%s, Status=%s, Reason=%s",
		event.EventType, event.OrderID, event.Status, event.Reason)
	return nil
}
