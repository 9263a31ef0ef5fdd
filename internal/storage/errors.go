package storage

import "errors"

var (
	ErrStoreClosed  = errors.New("store is closed")
	ErrWriteTimeout = errors.New("write operation timeout")
	ErrEmptyKey     = errors.New("key cannot be empty")
)
