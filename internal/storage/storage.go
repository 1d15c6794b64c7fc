package storage

import "context"

// Store is the durable key-value capability used for checkpoint snapshots.
// Values are opaque bytes; the same bytes written must come back.
type Store interface {
	// Get returns the value for key, with found=false for an absent key.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	Close() error
}
