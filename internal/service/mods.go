package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/minelux/internal/apperror"
	"github.com/sakif/minelux/internal/model"
)

// ModInput is what an admin submits to add a mod.
type ModInput struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Type    string `json:"type"`
	Link    string `json:"link"`
	Desc    string `json:"desc"`
	Image   string `json:"image"`
}

// ModService owns the mods document.
//
// The snapshot is replaced wholesale by LoadMods and edited in place by
// AddMod and DeleteMod, which save the whole list after each edit.
type ModService struct {
	mu     sync.Mutex
	mods   []model.Mod
	loaded bool

	doc    Document[[]model.Mod]
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

func NewModService(doc Document[[]model.Mod], logger *slog.Logger) *ModService {
	return &ModService{
		doc:    doc,
		now:    time.Now,
		newID:  func() string { return xid.New().String() },
		logger: logger,
	}
}

// LoadMods refetches the mods document, replacing the snapshot. It never
// fails: with no usable copy anywhere the listing is empty.
func (s *ModService) LoadMods(ctx context.Context) []model.Mod {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked(ctx)
	return slices.Clone(s.mods)
}

func (s *ModService) loadLocked(ctx context.Context) {
	mods, src := s.doc.Load(ctx)
	if mods == nil {
		mods = []model.Mod{}
	}

	legacy := 0
	for i := range mods {
		if mods[i].ID == "" {
			mods[i].ID = legacyModID(mods[i])
			legacy++
		}
	}

	s.mods = mods
	s.loaded = true

	s.logger.Info("mods loaded",
		slog.Int("count", len(mods)),
		slog.Int("legacy", legacy),
		slog.String("source", string(src)),
	)
}

func (s *ModService) ensureLoaded(ctx context.Context) {
	if !s.loaded {
		s.loadLocked(ctx)
	}
}

// legacyModID derives an ID for a record written before mods carried one.
// It is a pure function of the record's content, so the same record gets the
// same ID on every load until a save writes it out for good.
func legacyModID(m model.Mod) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s", m.Name, m.Version, m.Link, m.CreatedAt)
	return "legacy-" + hex.EncodeToString(h.Sum(nil))[:16]
}

// Mods returns the snapshot, loading it on first use.
func (s *ModService) Mods(ctx context.Context) []model.Mod {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded(ctx)
	return slices.Clone(s.mods)
}

// Get returns one mod by ID.
func (s *ModService) Get(ctx context.Context, id string) (model.Mod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	i := s.indexLocked(id)
	if i < 0 {
		return model.Mod{}, apperror.NotFound("mod", id)
	}
	return s.mods[i], nil
}

func (s *ModService) indexLocked(id string) int {
	return slices.IndexFunc(s.mods, func(m model.Mod) bool { return m.ID == id })
}

// AddMod validates in, appends a new mod and persists the list.
//
// Drive share links are rewritten to direct downloads. If the list cannot
// be persisted anywhere the snapshot is left as it was and the error wraps
// store.ErrNotPersisted.
func (s *ModService) AddMod(ctx context.Context, in ModInput) (*model.Mod, error) {
	mod := model.Mod{
		Name:    strings.TrimSpace(in.Name),
		Version: strings.TrimSpace(in.Version),
		Type:    strings.TrimSpace(in.Type),
		Link:    CleanDriveLink(strings.TrimSpace(in.Link)),
		Desc:    strings.TrimSpace(in.Desc),
		Image:   strings.TrimSpace(in.Image),
	}

	for _, f := range []struct{ field, value string }{
		{"name", mod.Name},
		{"version", mod.Version},
		{"type", mod.Type},
		{"link", mod.Link},
	} {
		if f.value == "" {
			return nil, apperror.ValidationFailed(f.field, "name, version, type and link are required")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	mod.ID = s.newID()
	mod.CreatedAt = model.Timestamp(s.now())

	updated := append(slices.Clone(s.mods), mod)
	if _, err := s.doc.Save(ctx, updated, "Add mod: "+mod.Name); err != nil {
		s.logger.Error("failed to persist new mod",
			slog.String("name", mod.Name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/mods: adding mod %q: %w", mod.Name, err)
	}
	s.mods = updated

	s.logger.Info("mod added",
		slog.String("id", mod.ID),
		slog.String("name", mod.Name),
	)
	return &mod, nil
}

// DeleteMod removes the mod with the given ID and persists the list.
func (s *ModService) DeleteMod(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	i := s.indexLocked(id)
	if i < 0 {
		return apperror.NotFound("mod", id)
	}
	name := s.mods[i].Name

	updated := slices.Delete(slices.Clone(s.mods), i, i+1)
	if _, err := s.doc.Save(ctx, updated, "Delete mod: "+name); err != nil {
		s.logger.Error("failed to persist mod deletion",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/mods: deleting mod %s: %w", id, err)
	}
	s.mods = updated

	s.logger.Info("mod deleted",
		slog.String("id", id),
		slog.String("name", name),
	)
	return nil
}

// =========================================================================
// BROWSING
// =========================================================================

// Filter narrows the listing. Empty fields match everything.
type Filter struct {
	// Query matches a case-insensitive substring of the name or description.
	Query   string
	Version string
	Type    string
}

// FilterMods returns the mods matching f, in their original order.
func FilterMods(mods []model.Mod, f Filter) []model.Mod {
	q := strings.ToLower(strings.TrimSpace(f.Query))

	out := make([]model.Mod, 0, len(mods))
	for _, m := range mods {
		if q != "" &&
			!strings.Contains(strings.ToLower(m.Name), q) &&
			!strings.Contains(strings.ToLower(m.Desc), q) {
			continue
		}
		if f.Version != "" && m.Version != f.Version {
			continue
		}
		if f.Type != "" && m.Type != f.Type {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Facets lists the distinct non-empty versions and types, in the order they
// first appear. They feed the listing's filter drop-downs.
type Facets struct {
	Versions []string `json:"versions"`
	Types    []string `json:"types"`
}

func ModFacets(mods []model.Mod) Facets {
	f := Facets{Versions: []string{}, Types: []string{}}
	for _, m := range mods {
		if m.Version != "" && !slices.Contains(f.Versions, m.Version) {
			f.Versions = append(f.Versions, m.Version)
		}
		if m.Type != "" && !slices.Contains(f.Types, m.Type) {
			f.Types = append(f.Types, m.Type)
		}
	}
	return f
}

// Stats are the counters shown on the admin dashboard.
type Stats struct {
	Mods     int `json:"mods"`
	Users    int `json:"users"`
	Versions int `json:"versions"`
	Types    int `json:"types"`
}

func NewStats(mods []model.Mod, users int) Stats {
	f := ModFacets(mods)
	return Stats{
		Mods:     len(mods),
		Users:    users,
		Versions: len(f.Versions),
		Types:    len(f.Types),
	}
}
