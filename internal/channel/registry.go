package channel

import (
	"sort"
	"sync"
	"sync/atomic"

	"practicum/pkg/interfaces"
)

type handlerEntry struct {
	id      uint64
	handler interfaces.Handler
	active  atomic.Bool
}

// Registry tracks event handlers by event name and subscription id.
// ARCHITECTURAL DISCOVERY: Handlers outlive any single connection; a reconnect
// or a user switch keeps every registration intact
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]map[uint64]*handlerEntry
	nextID   uint64
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]map[uint64]*handlerEntry),
	}
}

// Add registers h for event and returns its subscription.
func (r *Registry) Add(event string, h interfaces.Handler) interfaces.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	entry := &handlerEntry{id: r.nextID, handler: h}
	entry.active.Store(true)

	if r.handlers[event] == nil {
		r.handlers[event] = make(map[uint64]*handlerEntry)
	}
	r.handlers[event][entry.id] = entry

	return interfaces.Subscription{Event: event, ID: entry.id}
}

// Remove is idempotent. A dispatch already holding a snapshot skips the
// entry because it is deactivated before being dropped from the map.
func (r *Registry) Remove(sub interfaces.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, exists := r.handlers[sub.Event]
	if !exists {
		return
	}
	entry, exists := entries[sub.ID]
	if !exists {
		return
	}

	entry.active.Store(false)
	delete(entries, sub.ID)
	if len(entries) == 0 {
		delete(r.handlers, sub.Event)
	}
}

// snapshot returns the handlers for event in registration order.
func (r *Registry) snapshot(event string) []*handlerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.handlers[event]
	out := make([]*handlerEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Count returns the number of live handlers for event.
func (r *Registry) Count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}
