package interfaces

import "context"

// KeyValueStore is the local persistence port for the session.
// ARCHITECTURAL DISCOVERY: Multi-key writes and deletes are atomic so a
// credential pair and its user record are never observed half written
type KeyValueStore interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	Set(ctx context.Context, key, value string) error

	// SetMany writes all pairs or none.
	SetMany(ctx context.Context, values map[string]string) error

	// Delete removes the keys atomically; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	Close() error
}
