// Package app assembles the storage stack and the services from a Config.
//
// Both entry points (cmd/server and cmd/modctl) need the same graph:
//
//	sqlite.DB ─────────────┐
//	remote.Client ─ breaker ┴→ store.Document ×2 → UserService, ModService
//
// Building it in one place keeps the two binaries reading and writing the
// documents the same way.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/minelux/internal/auth"
	"github.com/sakif/minelux/internal/config"
	"github.com/sakif/minelux/internal/model"
	"github.com/sakif/minelux/internal/remote"
	sqliteRepo "github.com/sakif/minelux/internal/repository/sqlite"
	"github.com/sakif/minelux/internal/service"
	"github.com/sakif/minelux/internal/store"
)

// App is the wired dependency graph. Close releases the database.
type App struct {
	DB     *sqliteRepo.DB
	Remote *remote.Client
	Users  *service.UserService
	Mods   *service.ModService
}

// Options tweak what New builds.
type Options struct {
	// Session, when true, gives UserService a session pointer in the local
	// store. Only single-user clients such as the CLI want this.
	Session bool
	// Passwords overrides the bcrypt service. Tests pass a low-cost one.
	Passwords *auth.PasswordService
	// RemoteOptions are passed to remote.New.
	RemoteOptions []remote.Option
}

// New opens the local store, builds the remote client and both services,
// and loads both documents.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if cfg.DBPath != ":memory:" {
		// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("app: creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("app: opening database: %w", err)
	}

	rem := remote.New(remote.Config{
		Owner:      cfg.GitHub.Owner,
		Repo:       cfg.GitHub.Repo,
		Branch:     cfg.GitHub.Branch,
		Token:      cfg.GitHub.Token,
		APIBaseURL: cfg.GitHub.APIURL,
		RawBaseURL: cfg.GitHub.RawURL,
		Timeout:    cfg.RemoteTimeout,
	}, logger, opts.RemoteOptions...)

	if cfg.GitHub.Token == "" && (cfg.UsersRemote || cfg.ModsRemote) {
		logger.Warn("GITHUB_TOKEN not set, remote commits will fail and fall back to local storage")
	}

	// One breaker for both documents: they live in the same repository, so
	// when one can't be reached neither can the other.
	breaker := store.NewBreaker(store.BreakerConfig{Name: "github"}, logger)

	usersDoc := store.NewDocument[model.Users](store.DocumentConfig{
		Name:      "users",
		Path:      cfg.GitHub.UsersPath,
		LocalKey:  cfg.UsersKey(),
		UseRemote: cfg.UsersRemote,
	}, rem, db, breaker, logger)

	modsDoc := store.NewDocument[[]model.Mod](store.DocumentConfig{
		Name:      "mods",
		Path:      cfg.GitHub.ModsPath,
		LocalKey:  cfg.ModsKey(),
		UseRemote: cfg.ModsRemote,
	}, rem, db, breaker, logger)

	var session service.SessionStore
	if opts.Session {
		session = service.NewKVSession(db)
	}

	passwords := opts.Passwords
	if passwords == nil {
		passwords = auth.NewPasswordService()
	}

	a := &App{
		DB:     db,
		Remote: rem,
		Users: service.NewUserService(usersDoc, session, passwords, service.AdminAccount{
			Username: cfg.AdminUsername,
			Password: cfg.AdminPassword,
		}, logger),
		Mods: service.NewModService(modsDoc, logger),
	}

	a.Users.Load(ctx)
	a.Mods.LoadMods(ctx)

	return a, nil
}

// Close closes the local database.
func (a *App) Close() error {
	return a.DB.Close()
}
