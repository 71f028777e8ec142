package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/abrezinsky/racetrial/internal/services"
)

// ==================== Admin Pages ====================

func (h *Handlers) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	data := AdminPageData{
		Title:     "Race Control",
		PageTitle: "Race Control",
		ActiveNav: "dashboard",
	}
	h.templates.AdminDashboard.ExecuteTemplate(w, "admin", data)
}

// ==================== Routes ====================

func (h *Handlers) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	id, err := h.Routes.CreateRoute(r.Context(), services.RouteInput{
		Name:      req.Name,
		Topology:  req.Topology,
		Smooth:    req.Smooth,
		Waypoints: req.Waypoints,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, IDResponse{ID: id})
}

func (h *Handlers) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.Routes.DeleteRoute(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondDeleted(w)
}

// ==================== Events ====================

func (h *Handlers) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	def, err := h.Events.CreateEvent(r.Context(), services.EventInput{
		Name:     req.Name,
		Kind:     req.Kind,
		RouteID:  req.RouteID,
		Laps:     req.Laps,
		Capacity: req.Capacity,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, def)
}

func (h *Handlers) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.Events.DeleteEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	respondDeleted(w)
}

// ==================== Settings ====================

func (h *Handlers) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.Settings.Get(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	baseURL, err := h.Settings.GetBaseURL(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, SettingsResponse{Settings: st, BaseURL: baseURL})
}

func (h *Handlers) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	err := h.Settings.Update(r.Context(), services.SettingsUpdate{
		CountdownStepMS:    req.CountdownStepMS,
		CountdownSteps:     req.CountdownSteps,
		ResolveTimeoutMS:   req.ResolveTimeoutMS,
		StatsDisplayMS:     req.StatsDisplayMS,
		ProximityThreshold: req.ProximityThreshold,
		ProgressStyle:      req.ProgressStyle,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if req.BaseURL != nil {
		if err := h.Settings.SetBaseURL(r.Context(), *req.BaseURL); err != nil {
			respondError(w, err)
			return
		}
	}
	h.handleGetSettings(w, r)
}

// ==================== Database Management ====================

func (h *Handlers) handleResetResults(w http.ResponseWriter, r *http.Request) {
	if err := h.Results.ResetResults(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "Results cleared")
}

func (h *Handlers) handleResetDatabase(w http.ResponseWriter, r *http.Request) {
	var req DatabaseResetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	result, err := h.Settings.ResetTables(r.Context(), req.Tables)
	if err != nil {
		respondError(w, err)
		return
	}

	// Live state follows the cleared tables.
	h.Routes.ForgetCircuits()
	if err := h.Events.LoadEvents(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, result)
}
