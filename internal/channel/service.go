package channel

import (
	"context"
	"log/slog"
	"sync"

	"practicum/pkg/interfaces"
	"practicum/pkg/types"
)

// Service keeps at most one live channel open, following the session's user.
// ARCHITECTURAL DISCOVERY: Views depend only on the ResultChannel façade; the
// channel underneath is swapped on login, logout and user switches while
// handler registrations and status observers stay in place
type Service struct {
	users      interfaces.UserSource
	opts       Options
	registry   *Registry
	dispatcher *Dispatcher
	logger     *slog.Logger

	mu            sync.Mutex
	current       *Channel
	currentUserID int64
	connected     bool
	closed        bool
	started       bool
	unsubscribe   func()

	listenersMu  sync.Mutex
	listeners    map[uint64]func(bool)
	nextListener uint64

	// serializes status notifications so observers see transitions in order
	notifyMu sync.Mutex

	closing sync.WaitGroup
}

var _ interfaces.ResultChannel = (*Service)(nil)

// NewService creates a stopped service; Start begins following users.
func NewService(users interfaces.UserSource, opts Options) *Service {
	opts.applyDefaults()
	registry := NewRegistry()
	return &Service{
		users:      users,
		opts:       opts,
		registry:   registry,
		dispatcher: NewDispatcher(registry, opts.BufferSize, opts.Logger),
		logger:     opts.Logger,
		listeners:  make(map[uint64]func(bool)),
	}
}

// Start subscribes to session transitions and opens a channel for the
// current user, if any.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrChannelStarted
	}
	s.started = true
	s.mu.Unlock()

	if err := s.dispatcher.Start(); err != nil {
		return err
	}

	cancel := s.users.Subscribe(s.onUser)

	s.mu.Lock()
	s.unsubscribe = cancel
	s.mu.Unlock()

	s.onUser(s.users.CurrentUser())
	return nil
}

// onUser reacts to a session transition. The same user id keeps the
// existing channel; anything else closes it and, for a user, opens a new one.
func (s *Service) onUser(user *types.User) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if user != nil && s.current != nil && s.currentUserID == user.ID {
		s.mu.Unlock()
		return
	}
	if user == nil && s.current == nil {
		s.mu.Unlock()
		return
	}

	old := s.current
	s.current = nil
	s.currentUserID = 0
	wasConnected := s.connected
	s.connected = false

	var next *Channel
	if user != nil {
		next = s.newChannel(user.ID)
		s.current = next
		s.currentUserID = user.ID
	}
	s.mu.Unlock()

	// FUNCTIONAL DISCOVERY: The old channel is closed off the caller's goroutine
	// because session observers run under the session's transition lock
	if old != nil {
		s.closing.Add(1)
		go func() {
			defer s.closing.Done()
			_ = old.Close()
		}()
	}

	if wasConnected {
		s.publish(old, false)
	}

	if next != nil {
		if err := next.Start(); err != nil {
			s.logger.Error("failed to start live channel", "user_id", user.ID, "error", err)
		}
	}
}

func (s *Service) newChannel(userID int64) *Channel {
	var ch *Channel
	ch = NewChannel(userID, s.opts, func(ctx context.Context, env types.Envelope) error {
		return s.deliver(ctx, ch, env)
	}, func(connected bool) {
		s.onStatus(ch, connected)
	})
	return ch
}

// deliver drops frames from a channel that was replaced but has not finished
// closing, so one user's room never reaches handlers serving the next.
func (s *Service) deliver(ctx context.Context, ch *Channel, env types.Envelope) error {
	s.mu.Lock()
	current := s.current == ch
	s.mu.Unlock()
	if !current {
		s.logger.Debug("dropping frame from replaced channel", "event", env.Event, "user_id", ch.UserID())
		return nil
	}
	return s.dispatcher.Dispatch(ctx, env)
}

// onStatus ignores transitions from channels that are no longer current.
func (s *Service) onStatus(ch *Channel, connected bool) {
	s.mu.Lock()
	if s.current != ch || s.connected == connected {
		s.mu.Unlock()
		return
	}
	s.connected = connected
	s.mu.Unlock()

	s.publish(ch, connected)
}

// publish delivers one transition to every listener, re-checking under the
// notify lock that the transition is still the latest one.
func (s *Service) publish(ch *Channel, connected bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	stale := s.connected != connected || (connected && s.current != ch)
	s.mu.Unlock()
	if stale {
		return
	}

	s.listenersMu.Lock()
	fns := make([]func(bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}

// Connected reports whether the current user's room is joined.
func (s *Service) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Subscribe registers h for event. Registrations survive reconnects.
func (s *Service) Subscribe(event string, h interfaces.Handler) interfaces.Subscription {
	return s.registry.Add(event, h)
}

// Unsubscribe is idempotent.
func (s *Service) Unsubscribe(sub interfaces.Subscription) {
	s.registry.Remove(sub)
}

// OnStatusChange registers fn for connectivity transitions.
func (s *Service) OnStatusChange(fn func(connected bool)) (cancel func()) {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// CurrentUserID returns the user whose room is open, or 0.
func (s *Service) CurrentUserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUserID
}

// Close stops following the session and disposes the channel and dispatcher.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.unsubscribe
	current := s.current
	s.current = nil
	s.currentUserID = 0
	wasConnected := s.connected
	s.connected = false
	started := s.started
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wasConnected {
		s.publish(current, false)
	}
	if current != nil {
		s.closing.Add(1)
		go func() {
			defer s.closing.Done()
			_ = current.Close()
		}()
	}

	done := make(chan struct{})
	go func() {
		s.closing.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if started {
		if err := s.dispatcher.Stop(); err != nil && err != ErrDispatcherNotRunning {
			return err
		}
	}
	s.logger.Info("live channel service closed")
	return nil
}
