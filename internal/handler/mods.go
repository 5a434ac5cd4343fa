package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/minelux/internal/model"
	"github.com/sakif/minelux/internal/service"
)

// ModHandler serves the mod listing and the admin mod actions.
type ModHandler struct {
	mods   *service.ModService
	users  *service.UserService
	logger *slog.Logger
}

func NewModHandler(mods *service.ModService, users *service.UserService, logger *slog.Logger) *ModHandler {
	return &ModHandler{mods: mods, users: users, logger: logger}
}

// HandleList returns the mods matching the query string, in document order.
//
// HTTP: GET /api/mods?q=cave&version=1.20&type=tool
//
// Every parameter is optional. q is a case-insensitive substring of the
// name or description; version and type must match exactly.
func (h *ModHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mods := service.FilterMods(h.mods.Mods(r.Context()), service.Filter{
		Query:   q.Get("q"),
		Version: q.Get("version"),
		Type:    q.Get("type"),
	})
	writeJSON(w, http.StatusOK, mods)
}

// HandleGet returns one mod.
//
// HTTP: GET /api/mods/{id}
func (h *ModHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	mod, err := h.mods.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mod)
}

// HandleFacets returns the distinct versions and types for the filter
// drop-downs.
//
// HTTP: GET /api/mods/facets
func (h *ModHandler) HandleFacets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, service.ModFacets(h.mods.Mods(r.Context())))
}

// HandleStats returns the dashboard counters.
//
// HTTP: GET /api/stats
func (h *ModHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, service.NewStats(h.mods.Mods(r.Context()), h.users.Count()))
}

// HandleCreate adds a mod.
//
// HTTP: POST /api/mods (admin)
// REQUEST BODY: {"name":"Foo","version":"1.20","type":"tool","link":"https://...","desc":"","image":""}
func (h *ModHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.ModInput
	if !decodeJSON(w, r, &in) {
		return
	}

	mod, err := h.mods.AddMod(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mod)
}

// HandleDelete removes a mod by its ID.
//
// HTTP: DELETE /api/mods/{id} (admin)
func (h *ModHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.mods.DeleteMod(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent) // 204 No Content: deleted, no body
}

// HandleReload refetches the mods document, picking up edits made directly
// in the repository.
//
// HTTP: POST /api/mods/reload (admin)
func (h *ModHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	mods := h.mods.LoadMods(r.Context())
	h.logger.Info("mods reloaded", slog.Int("count", len(mods)))
	writeJSON(w, http.StatusOK, struct {
		Count int         `json:"count"`
		Mods  []model.Mod `json:"mods"`
	}{len(mods), mods})
}
