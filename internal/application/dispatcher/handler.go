package dispatcher

import (
	"context"

	"github.com/garyjia/approval-flow/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	Kind        event.Kind
	Handler     Handler
	Description string
}

// AllKinds is the subscription key of handlers that receive every event
const AllKinds event.Kind = "*"
