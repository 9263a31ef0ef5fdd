package channel

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Lifecycle errors
var (
	ErrDispatcherRunning    = errors.New("dispatcher is already running")
	ErrDispatcherNotRunning = errors.New("dispatcher is not running")
	ErrChannelClosed        = errors.New("channel is closed")
	ErrChannelStarted       = errors.New("channel already started")
	ErrServiceClosed        = errors.New("channel service is closed")
)
