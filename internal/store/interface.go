package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("record not found")

// Store defines durable key/value persistence for client-side records.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close()
}
