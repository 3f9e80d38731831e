package ports

import "context"

// KeyValueStore is the durable string-keyed store that survives restarts.
// Get on a missing key returns an error matching domain.ErrKeyNotFound.
// Delete on a missing key succeeds.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
