// Package store defines the durable key-value abstraction the chat services
// persist into, plus its in-memory and Postgres implementations. Every
// operation is individually atomic; nothing here provides cross-key
// transactions, so callers that need check-then-write semantics must
// serialize those themselves.
package store

import "context"

// Store is the durable KV contract. Get returns common.ErrNotFound for
// missing keys. KeysWithPrefix returns matching keys in ascending
// lexicographic order.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}
