package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"practicum/pkg/types"
)

// Options configures one live channel.
type Options struct {
	URL              string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	BufferSize       int
	Backoff          Backoff
	Logger           *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.ReadTimeout {
		o.PingInterval = o.ReadTimeout * 9 / 10
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 100
	}
	if o.Backoff.Validate() != nil {
		o.Backoff = DefaultBackoff()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Sink receives every decoded inbound envelope.
type Sink func(ctx context.Context, env types.Envelope) error

// Channel is the live connection for one user: it dials, joins the user's
// submission room and keeps reconnecting until closed.
// FUNCTIONAL DISCOVERY: The join frame is written before the first read, so
// no inbound event can be delivered on a connection that has not joined
type Channel struct {
	userID   int64
	opts     Options
	sink     Sink
	onStatus func(connected bool)
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	conn      *Connection
	connected bool
	started   bool
	closeOnce sync.Once
}

// NewChannel creates a channel for userID. onStatus is called on every
// connectivity transition and may be nil.
func NewChannel(userID int64, opts Options, sink Sink, onStatus func(connected bool)) *Channel {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		userID:   userID,
		opts:     opts,
		sink:     sink,
		onStatus: onStatus,
		logger:   opts.Logger.With("user_id", userID),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (c *Channel) UserID() int64 { return c.userID }

// Start launches the connect/read/reconnect loop.
func (c *Channel) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return ErrChannelClosed
	}
	if c.started {
		return ErrChannelStarted
	}
	c.started = true

	go c.run()
	return nil
}

// Connected reports whether the room has been joined on a live socket.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) run() {
	defer close(c.done)

	attempt := 0
	for {
		if c.ctx.Err() != nil {
			return
		}

		conn, err := c.connect()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			delay := c.opts.Backoff.Delay(attempt)
			c.logger.Warn("live channel connect failed", "error", err, "attempt", attempt+1, "retry_in", delay)
			attempt++
			if !c.wait(delay) {
				return
			}
			continue
		}

		attempt = 0
		c.setConnected(true)
		c.logger.Info("live channel connected")

		err = c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
		c.setConnected(false)

		if c.ctx.Err() != nil {
			return
		}

		delay := c.opts.Backoff.Delay(attempt)
		c.logger.Warn("live channel lost", "error", err, "retry_in", delay)
		attempt++
		if !c.wait(delay) {
			return
		}
	}
}

// connect dials and joins the room. The join is fully written before returning.
func (c *Channel) connect() (*Connection, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	ws, _, err := dialer.DialContext(c.ctx, c.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	conn := NewConnection(ws, c.opts.BufferSize, c.opts.WriteTimeout, c.opts.PingInterval)
	conn.KeepAlive(c.opts.ReadTimeout)

	join, err := roomEnvelope(types.EventJoinSubmissionRoom, c.userID)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.Send(c.ctx, join); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("join room: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Close may have run while the join was in flight.
	if c.ctx.Err() != nil {
		_ = conn.Close()
		return nil, c.ctx.Err()
	}
	c.conn = conn
	return conn, nil
}

func (c *Channel) readLoop(conn *Connection) error {
	for {
		data, err := conn.ReadMessage(c.opts.ReadTimeout)
		if err != nil {
			return err
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.logger.Warn("dropping malformed live frame", "error", err, "bytes", len(data))
			continue
		}

		if err := c.sink(c.ctx, env); err != nil {
			return fmt.Errorf("deliver %s: %w", env.Event, err)
		}
	}
}

func (c *Channel) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Channel) setConnected(connected bool) {
	c.mu.Lock()
	changed := c.connected != connected
	c.connected = connected
	c.mu.Unlock()

	if changed && c.onStatus != nil {
		c.onStatus(connected)
	}
}

// Close leaves the room, closes the socket and stops reconnecting.
// It is safe to call more than once and blocks until the loop has exited.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		conn := c.conn
		started := c.started
		c.mu.Unlock()

		if conn != nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.WriteTimeout)
			leave, encErr := roomEnvelope(types.EventLeaveSubmissionRoom, c.userID)
			if encErr == nil {
				if sendErr := conn.Send(ctx, leave); sendErr != nil && !errors.Is(sendErr, ErrConnectionClosed) {
					c.logger.Debug("failed to leave room", "error", sendErr)
				}
			}
			_ = conn.Shutdown(ctx)
			cancel()
		}

		if started {
			<-c.done
		}
		c.logger.Info("live channel closed")
	})
	return nil
}

func roomEnvelope(event string, userID int64) (types.Envelope, error) {
	data, err := json.Marshal(types.RoomRequest{UserID: userID})
	if err != nil {
		return types.Envelope{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return types.Envelope{Event: event, Data: data}, nil
}
