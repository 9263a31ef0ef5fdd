package channel

import (
	"context"
	"log/slog"
	"sync"

	"practicum/pkg/types"
)

// Dispatcher delivers inbound envelopes to registered handlers.
// ARCHITECTURAL DISCOVERY: One goroutine runs every handler, so handlers
// observe events in arrival order and never run concurrently with each other
type Dispatcher struct {
	inbound  chan types.Envelope
	registry *Registry
	logger   *slog.Logger

	mu       sync.RWMutex
	running  bool
	shutdown chan struct{}
	done     chan struct{}
}

// NewDispatcher creates a stopped dispatcher with a bounded inbound queue.
func NewDispatcher(registry *Registry, bufferSize int, logger *slog.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		inbound:  make(chan types.Envelope, bufferSize),
		registry: registry,
		logger:   logger,
	}
}

// Start launches the dispatch loop.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrDispatcherRunning
	}
	d.running = true
	d.shutdown = make(chan struct{})
	d.done = make(chan struct{})

	go d.run(d.shutdown, d.done)
	return nil
}

// Stop ends the loop and waits for the handler in progress to return.
// Envelopes still queued are dropped.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrDispatcherNotRunning
	}
	d.running = false
	close(d.shutdown)
	done := d.done
	d.mu.Unlock()

	<-done
	return nil
}

// Dispatch queues env for delivery. It blocks while the queue is full so a
// slow handler applies backpressure to the socket reader instead of losing frames.
func (d *Dispatcher) Dispatch(ctx context.Context, env types.Envelope) error {
	d.mu.RLock()
	if !d.running {
		d.mu.RUnlock()
		return ErrDispatcherNotRunning
	}
	shutdown := d.shutdown
	d.mu.RUnlock()

	select {
	case d.inbound <- env:
		return nil
	case <-shutdown:
		return ErrDispatcherNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run(shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case env := <-d.inbound:
			d.deliver(env)
		case <-shutdown:
			return
		}
	}
}

func (d *Dispatcher) deliver(env types.Envelope) {
	entries := d.registry.snapshot(env.Event)
	if len(entries) == 0 {
		d.logger.Debug("no handler for event", "event", env.Event)
		return
	}

	for _, entry := range entries {
		if !entry.active.Load() {
			continue
		}
		d.invoke(env, entry)
	}
}

func (d *Dispatcher) invoke(env types.Envelope, entry *handlerEntry) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked", "event", env.Event, "subscription", entry.id, "panic", r)
		}
	}()
	entry.handler(env.Data)
}
