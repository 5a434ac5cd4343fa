package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sakif/minelux/internal/apperror"
	"github.com/sakif/minelux/internal/remote"
	"github.com/sakif/minelux/internal/store"
)

// =========================================================================
// FAKES
// =========================================================================
//
// fakeDoc stands in for store.Document. It keeps the document as raw JSON,
// the way the real stores do, so a test can never observe the service's
// in-memory snapshot through it by accident.

type fakeDoc[T any] struct {
	raw      []byte
	saves    int
	messages []string
	failSave bool
}

func (d *fakeDoc[T]) Load(_ context.Context) (T, store.Source) {
	var v T
	if d.raw == nil {
		return v, store.SourceNone
	}
	if err := json.Unmarshal(d.raw, &v); err != nil {
		var zero T
		return zero, store.SourceNone
	}
	return v, store.SourceLocal
}

func (d *fakeDoc[T]) Save(_ context.Context, value T, message string) (store.Source, error) {
	if d.failSave {
		return store.SourceNone, fmt.Errorf("fake: %w", store.ErrNotPersisted)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return store.SourceNone, err
	}
	d.raw = raw
	d.saves++
	d.messages = append(d.messages, message)
	return store.SourceLocal, nil
}

func (d *fakeDoc[T]) SaveLocal(ctx context.Context, value T) (store.Source, error) {
	return d.Save(ctx, value, "")
}

func (d *fakeDoc[T]) Remote() bool { return false }

// stored decodes what was last saved.
func (d *fakeDoc[T]) stored() T {
	var v T
	_ = json.Unmarshal(d.raw, &v)
	return v
}

// memoryKV is an in-memory repository.KVStore.
type memoryKV struct {
	values map[string][]byte
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: make(map[string][]byte)}
}

func (m *memoryKV) Get(_ context.Context, key string, dst any) bool {
	raw, ok := m.values[key]
	return ok && json.Unmarshal(raw, dst) == nil
}

func (m *memoryKV) Set(_ context.Context, key string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	m.values[key] = raw
	return true
}

func (m *memoryKV) Remove(_ context.Context, key string) bool {
	delete(m.values, key)
	return true
}

// downRemote fails every call, like a GitHub that can't be reached.
type downRemote struct{}

func (downRemote) Fetch(context.Context, string, any) error {
	return errors.New("dial tcp: connection refused")
}

func (downRemote) Commit(context.Context, string, any, string) (*remote.CommitResult, error) {
	return nil, errors.New("dial tcp: connection refused")
}

// readDownRemote fails every fetch but accepts commits, the way GitHub
// behaves when the raw content host is down and the contents API is not.
// Commits are recorded as raw JSON.
type readDownRemote struct {
	commits [][]byte
}

func (r *readDownRemote) Fetch(context.Context, string, any) error {
	return errors.New("raw host: 503 Service Unavailable")
}

func (r *readDownRemote) Commit(_ context.Context, _ string, content any, _ string) (*remote.CommitResult, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	r.commits = append(r.commits, raw)
	return &remote.CommitResult{}, nil
}

// fakeRemoteDocs is a reachable remote holding raw JSON documents. A
// missing path answers 404.
type fakeRemoteDocs struct {
	docs map[string][]byte
}

func (r *fakeRemoteDocs) Fetch(_ context.Context, path string, dst any) error {
	raw, ok := r.docs[path]
	if !ok {
		return apperror.Remote(apperror.ErrFetch, path, 404, "")
	}
	return json.Unmarshal(raw, dst)
}

func (r *fakeRemoteDocs) Commit(_ context.Context, path string, content any, _ string) (*remote.CommitResult, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	r.docs[path] = raw
	return &remote.CommitResult{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}
