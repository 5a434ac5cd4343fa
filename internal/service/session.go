package service

import (
	"context"

	"github.com/sakif/minelux/internal/repository"
)

// CurrentUserKey is the storage key of the session pointer.
const CurrentUserKey = "currentUser"

// SessionStore remembers which user is logged in on a single-user client
// such as the CLI. The HTTP API does not use it; every request there carries
// its own token.
type SessionStore interface {
	CurrentUser(ctx context.Context) (string, bool)
	SetCurrentUser(ctx context.Context, username string) bool
	ClearCurrentUser(ctx context.Context) bool
}

// KVSession keeps the session pointer in the local key/value store.
type KVSession struct {
	kv repository.KVStore
}

func NewKVSession(kv repository.KVStore) *KVSession {
	return &KVSession{kv: kv}
}

func (s *KVSession) CurrentUser(ctx context.Context) (string, bool) {
	var username string
	if !s.kv.Get(ctx, CurrentUserKey, &username) || username == "" {
		return "", false
	}
	return username, true
}

func (s *KVSession) SetCurrentUser(ctx context.Context, username string) bool {
	return s.kv.Set(ctx, CurrentUserKey, username)
}

func (s *KVSession) ClearCurrentUser(ctx context.Context) bool {
	return s.kv.Remove(ctx, CurrentUserKey)
}
