package events

import (
	"fmt"

	"github.com/kelindar/event"
)

// Bus wraps the kelindar/event dispatcher for in-process broadcasting of
// stream lifecycle events.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish broadcasts an event to all subscribers of its type.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case StreamStartedEvent:
		event.Publish(b.dispatcher, e)
	case StreamStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case StreamRemovedEvent:
		event.Publish(b.dispatcher, e)
	case FrameProcessedEvent:
		event.Publish(b.dispatcher, e)
	case SinkErrorEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a handler; the handler's parameter type selects which
// events it receives. Returns an unsubscribe function. A handler that is not
// a func over one of the event types is a programming error and panics.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StreamStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamRemovedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameProcessedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SinkErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		panic(fmt.Sprintf("events: unsupported handler type %T", handler))
	}
}
