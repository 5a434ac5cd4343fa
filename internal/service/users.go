package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sakif/minelux/internal/apperror"
	"github.com/sakif/minelux/internal/auth"
	"github.com/sakif/minelux/internal/model"
	"github.com/sakif/minelux/internal/store"
)

// Registration rules. Lengths are counted in characters, not bytes, so
// Arabic usernames get the same allowance as Latin ones.
const (
	MinUsernameLength = 3
	MinPasswordLength = 6
)

// AdminAccount is the reserved admin user. It is seeded on first load and
// can never be deleted.
type AdminAccount struct {
	Username string
	Password string
}

// UserService owns the users document.
//
// STATE:
// users is the in-memory snapshot of the whole document, keyed by username.
// Every mutation edits the snapshot, saves the whole map, and undoes the edit
// if no store accepted the write, so the snapshot never claims something the
// stores don't have.
type UserService struct {
	mu     sync.Mutex
	users  model.Users
	loaded bool
	// stale is set when the remote is authoritative but the snapshot came
	// from the local fallback (or nowhere). The next operation retries the
	// remote before trusting it.
	stale bool

	doc       Document[model.Users]
	session   SessionStore
	passwords *auth.PasswordService
	admin     AdminAccount
	now       func() time.Time
	logger    *slog.Logger
}

// NewUserService creates a UserService. session may be nil, in which case
// Login and Register do not remember the user and CurrentUser reports a
// guest.
func NewUserService(
	doc Document[model.Users],
	session SessionStore,
	passwords *auth.PasswordService,
	admin AdminAccount,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		doc:       doc,
		session:   session,
		passwords: passwords,
		admin:     admin,
		now:       time.Now,
		logger:    logger,
	}
}

// Load reads the users document and makes sure the reserved admin exists
// with the admin role. If the admin had to be seeded or repaired, the
// document is saved straight away, unless the remote is authoritative and
// could not be read: then the seed lives in memory only, so a bare admin
// map is never committed over the real users.json.
//
// Load replaces the in-memory snapshot and returns a copy of it.
func (s *UserService) Load(ctx context.Context) model.Users {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked(ctx)
	return s.users.Clone()
}

func (s *UserService) loadLocked(ctx context.Context) {
	users, src := s.doc.Load(ctx)
	if users == nil {
		users = make(model.Users)
	}
	for name, u := range users {
		if u == nil {
			delete(users, name)
			continue
		}
		u.Username = name
	}

	s.users = users
	s.loaded = true
	s.stale = s.doc.Remote() && src != store.SourceRemote

	s.logger.Info("users loaded",
		slog.Int("count", len(users)),
		slog.String("source", string(src)),
	)

	if s.ensureAdminLocked() {
		if s.stale {
			s.logger.Warn("remote users document unavailable, admin seeded in memory only",
				slog.String("username", s.admin.Username),
				slog.String("source", string(src)),
			)
			return
		}
		if _, err := s.doc.Save(ctx, s.users, "Seed admin user"); err != nil {
			// The seed still lives in memory; the next successful save
			// persists it along with whatever changed.
			s.logger.Error("failed to persist seeded admin",
				slog.String("username", s.admin.Username),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ensureAdminLocked seeds or repairs the reserved admin. It reports whether
// the snapshot changed.
func (s *UserService) ensureAdminLocked() bool {
	if u, ok := s.users[s.admin.Username]; ok {
		if u.Role == model.RoleAdmin {
			return false
		}
		s.logger.Warn("reserved admin had lost its role, restoring", slog.String("username", s.admin.Username))
		u.Role = model.RoleAdmin
		return true
	}

	hash, err := s.passwords.Hash(s.admin.Password)
	if err != nil {
		// Only reachable with an admin password over 72 bytes, which
		// config.Load already rejects. Seed an unusable password rather
		// than none at all.
		s.logger.Error("cannot hash admin password, admin login disabled", slog.String("error", err.Error()))
		hash = ""
	}

	s.users[s.admin.Username] = &model.User{
		Username:  s.admin.Username,
		Password:  hash,
		Role:      model.RoleAdmin,
		CreatedAt: model.Timestamp(s.now()),
	}
	s.logger.Info("seeded reserved admin", slog.String("username", s.admin.Username))
	return true
}

func (s *UserService) ensureLoaded(ctx context.Context) {
	if !s.loaded || s.stale {
		s.loadLocked(ctx)
	}
}

// save persists the snapshot. undo runs when neither store accepted it.
// A stale snapshot is only ever written locally.
func (s *UserService) save(ctx context.Context, message string, undo func()) error {
	persist := func() (store.Source, error) { return s.doc.Save(ctx, s.users, message) }
	if s.stale {
		persist = func() (store.Source, error) { return s.doc.SaveLocal(ctx, s.users) }
	}
	if _, err := persist(); err != nil {
		undo()
		s.logger.Error("failed to persist users",
			slog.String("message", message),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/users: %s: %w", strings.ToLower(message), err)
	}
	return nil
}

// =========================================================================
// SESSION
// =========================================================================

// Login checks the credentials. On success it remembers the user in the
// session store (when one is wired) and returns true.
//
// A legacy plain-text password that matches is replaced with its bcrypt
// hash. Failing to persist that upgrade does not fail the login.
func (s *UserService) Login(ctx context.Context, username, password string) bool {
	username = strings.TrimSpace(username)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	u, ok := s.users[username]
	if !ok {
		return false
	}

	match, rehash := s.passwords.Check(u.Password, password)
	if !match {
		s.logger.Info("login rejected", slog.String("username", username))
		return false
	}

	if rehash {
		s.upgradePasswordLocked(ctx, u, password)
	}

	if s.session != nil {
		s.session.SetCurrentUser(ctx, username)
	}

	s.logger.Info("user logged in", slog.String("username", username))
	return true
}

func (s *UserService) upgradePasswordLocked(ctx context.Context, u *model.User, password string) {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		s.logger.Warn("cannot hash legacy password", slog.String("username", u.Username), slog.String("error", err.Error()))
		return
	}

	old := u.Password
	u.Password = hash
	if err := s.save(ctx, "Upgrade password hash: "+u.Username, func() { u.Password = old }); err != nil {
		return
	}
	s.logger.Info("upgraded legacy password", slog.String("username", u.Username))
}

// Logout forgets the current user of a single-user client.
func (s *UserService) Logout(ctx context.Context) {
	if s.session != nil {
		s.session.ClearCurrentUser(ctx)
	}
}

// CurrentUser returns the user remembered by the session store, if any.
func (s *UserService) CurrentUser(ctx context.Context) (string, bool) {
	if s.session == nil {
		return "", false
	}
	return s.session.CurrentUser(ctx)
}

// =========================================================================
// MUTATIONS
// =========================================================================

// Register creates a regular user and logs them in.
//
// Checks run in a fixed order and the first failure wins: both fields
// present, username free, username long enough, password long enough,
// image acceptable.
func (s *UserService) Register(ctx context.Context, username, password, image string) error {
	username = strings.TrimSpace(username)
	image = strings.TrimSpace(image)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	if username == "" || password == "" {
		return apperror.ValidationFailed("username", "username and password are required")
	}
	if _, exists := s.users[username]; exists {
		return apperror.ValidationFailed("username", "username already exists")
	}
	if utf8.RuneCountInString(username) < MinUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be at least %d characters", MinUsernameLength))
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if !validImage(image) {
		return apperror.ValidationFailed("image", "image must be an http(s) URL or an image data URL up to 2 MiB")
	}

	if err := s.createLocked(ctx, username, password, image, "Register user: "+username); err != nil {
		return err
	}

	if s.session != nil {
		s.session.SetCurrentUser(ctx, username)
	}
	return nil
}

// AddUser is the admin form for creating a regular user. It only requires
// both fields and an unused username; the registration length rules do not
// apply.
func (s *UserService) AddUser(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	if username == "" || password == "" {
		return apperror.ValidationFailed("username", "username and password are required")
	}
	if _, exists := s.users[username]; exists {
		return apperror.ValidationFailed("username", "username already exists")
	}

	return s.createLocked(ctx, username, password, "", "Add user: "+username)
}

func (s *UserService) createLocked(ctx context.Context, username, password, image, message string) error {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	s.users[username] = &model.User{
		Username:  username,
		Password:  hash,
		Image:     image,
		Role:      model.RoleUser,
		CreatedAt: model.Timestamp(s.now()),
	}

	if err := s.save(ctx, message, func() { delete(s.users, username) }); err != nil {
		return err
	}

	s.logger.Info("user created", slog.String("username", username))
	return nil
}

// DeleteUser removes a user. The reserved admin is protected no matter who
// asks.
func (s *UserService) DeleteUser(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	u, ok := s.users[username]
	if !ok {
		return apperror.NotFound("user", username)
	}
	if username == s.admin.Username {
		return apperror.Protected("user", username)
	}

	delete(s.users, username)
	if err := s.save(ctx, "Delete user: "+username, func() { s.users[username] = u }); err != nil {
		return err
	}

	s.logger.Info("user deleted", slog.String("username", username))
	return nil
}

// UpdateUserImage replaces a user's profile image.
//
// It returns false, with a nil error, when the change could not be persisted
// anywhere; the snapshot keeps the old image in that case.
func (s *UserService) UpdateUserImage(ctx context.Context, username, image string) (bool, error) {
	image = strings.TrimSpace(image)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	u, ok := s.users[username]
	if !ok {
		return false, apperror.NotFound("user", username)
	}
	if !validImage(image) {
		return false, apperror.ValidationFailed("image", "image must be an http(s) URL or an image data URL up to 2 MiB")
	}

	old := u.Image
	u.Image = image
	if err := s.save(ctx, "Update image: "+username, func() { u.Image = old }); err != nil {
		if errors.Is(err, store.ErrNotPersisted) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// =========================================================================
// QUERIES
// =========================================================================
//
// The queries below read the snapshot as it is and never load. Call Load
// once at startup.

// IsAdmin reports whether username exists and has the admin role.
func (s *UserService) IsAdmin(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	return ok && u.IsAdmin()
}

// Get returns a copy of one user.
func (s *UserService) Get(username string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return model.User{}, apperror.NotFound("user", username)
	}
	return *u, nil
}

// List returns copies of all users ordered by username.
func (s *UserService) List() []model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b model.User) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out
}

// Count returns the number of users.
func (s *UserService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// AdminUsername returns the reserved admin's username.
func (s *UserService) AdminUsername() string {
	return s.admin.Username
}
