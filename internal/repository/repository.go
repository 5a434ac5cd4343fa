package repository

import "context"

// KVStore is the local persistent key/value namespace the store falls back
// to when the remote document store is unavailable.
//
// Values are JSON-serialised. None of the methods return errors: a missing
// or corrupt entry reads as absent, and a failed write reports false.
type KVStore interface {
	Get(ctx context.Context, key string, dst any) bool
	Set(ctx context.Context, key string, value any) bool
	Remove(ctx context.Context, key string) bool
}
