package statestore

import (
	"context"
	"time"
)

// KV is the engine's view of the replicated cluster state store. All keys and
// values are strings; typed clients are layered on top.
//
// Implementations do NOT guarantee read-your-writes: a Get issued right after
// a successful Put may still miss the entry. Callers that must confirm a
// write re-read and retry.
type KV interface {
	Put(ctx context.Context, key, value string) error
	// Get returns the value of key, or ErrStoreEntryNotFound.
	Get(ctx context.Context, key string) (string, error)
	// GetPrefix returns all entries whose key starts with prefix. A missing
	// prefix is not an error, the result is just empty.
	GetPrefix(ctx context.Context, prefix string) (map[string]string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config collects the dial parameters of the backing store.
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
}
