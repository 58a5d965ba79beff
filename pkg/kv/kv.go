// Package kv provides the durable key-value storage the cart engine
// persists its collections into. Two production backends exist: Redis for
// hosted deployments and an embedded sqlite table for single-box installs.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has never been written or was deleted.
var ErrNotFound = errors.New("kv: key not found")

// Store is the narrow surface the engine needs from durable storage.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}
