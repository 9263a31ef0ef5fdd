package interfaces

import "encoding/json"

// Handler receives the raw payload of one inbound event.
type Handler func(data json.RawMessage)

// Subscription identifies one registered handler.
type Subscription struct {
	Event string
	ID    uint64
}

// ResultChannel is the live push channel as seen by views.
// ARCHITECTURAL DISCOVERY: Views never touch the socket; they attach and
// detach handlers and watch the connectivity flag
type ResultChannel interface {
	Connected() bool

	// Subscribe registers a handler for an event name.
	Subscribe(event string, h Handler) Subscription

	// Unsubscribe is idempotent; a removed handler never fires again.
	Unsubscribe(sub Subscription)

	// OnStatusChange registers a connectivity observer.
	OnStatusChange(fn func(connected bool)) (cancel func())
}
