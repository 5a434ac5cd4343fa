// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer) / CLI  → parses input, writes output
//	Service (Business layer)    → validates, enforces rules, owns state
//	Store (Data layer)          → remote-or-local JSON documents
//
// Unlike a database-backed app, the data here is two whole JSON documents
// (every user, every mod). Each service loads its document once, keeps the
// snapshot in memory behind a mutex, and writes the whole document back on
// every change. Nothing lives in package-level variables: main.go builds one
// UserService and one ModService and hands them to whoever needs them.
//
// DEPENDENCY INJECTION:
// Services take a Document (interface), NOT a *store.Document (concrete
// type). Tests pass an in-memory fake; main.go passes the real facade.
package service

import (
	"context"

	"github.com/sakif/minelux/internal/store"
)

// Document is the subset of store.Document the services need.
type Document[T any] interface {
	Load(ctx context.Context) (T, store.Source)
	Save(ctx context.Context, value T, message string) (store.Source, error)
	SaveLocal(ctx context.Context, value T) (store.Source, error)
	Remote() bool
}
