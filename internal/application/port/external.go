package port

import (
	"context"

	"github.com/garyjia/approval-flow/internal/domain/event"
)

// EventPublisher delivers domain events to an outside channel
type EventPublisher interface {
	Publish(ctx context.Context, e *event.Event) error
	Name() string
}

// MessageSender delivers a plain text message to one chat user
type MessageSender interface {
	SendText(ctx context.Context, receiverID string, content string) error
}
