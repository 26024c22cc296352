package ports

import "gostudio/domain/event"

// EventSink receives session lifecycle events. Publish must not block; sinks drop
// events they cannot deliver.
type EventSink interface {
	Publish(e event.Event)
}
