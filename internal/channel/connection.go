package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps one established websocket with a single writer goroutine.
// ARCHITECTURAL DISCOVERY: gorilla/websocket allows one concurrent writer, so
// every frame (join, leave, pings, close) is serialized through writeLoop
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan writeRequest
	writeTimeout time.Duration
	pingInterval time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	done         chan struct{}
}

type writeRequest struct {
	messageType int
	data        []byte
	result      chan error
}

// NewConnection starts the writer for an established websocket.
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout, pingInterval time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan writeRequest, bufferSize),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	defer close(c.done)

	var ping <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case req := <-c.writeCh:
			err := c.write(req.messageType, req.data)
			if req.result != nil {
				req.result <- err
			}
			if err != nil {
				// A failed write leaves the socket unusable; the read loop sees the close.
				_ = c.conn.Close()
				c.cancel()
				return
			}

		case <-ping:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// Send marshals v and waits until the frame has been written to the socket.
func (c *Connection) Send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.enqueue(ctx, websocket.TextMessage, data)
}

func (c *Connection) enqueue(ctx context.Context, messageType int, data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	req := writeRequest{messageType: messageType, data: data, result: make(chan error, 1)}
	select {
	case c.writeCh <- req:
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-c.ctx.Done():
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadMessage blocks for the next frame; each call resets the read deadline.
func (c *Connection) ReadMessage(readTimeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// KeepAlive extends the read deadline whenever the peer answers a ping.
func (c *Connection) KeepAlive(readTimeout time.Duration) {
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
}

// Shutdown sends a close frame through the writer, then closes the socket.
func (c *Connection) Shutdown(ctx context.Context) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.enqueue(ctx, websocket.CloseMessage, msg)
	return c.Close()
}

// Close stops the writer and closes the socket; safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
		err = c.conn.Close()
	})
	return err
}
