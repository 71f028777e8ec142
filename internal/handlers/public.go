package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ==================== Live Board ====================

func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.templates.Index.Execute(w, map[string]string{"EventID": r.URL.Query().Get("event")})
}

// ==================== Routes ====================

func (h *Handlers) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.Routes.ListRoutes(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, routes)
}

func (h *Handlers) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	rt, err := h.Routes.GetRoute(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, rt)
}

// ==================== Events ====================

func (h *Handlers) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Events.ListEvents(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, events)
}

func (h *Handlers) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, ev)
}

func (h *Handlers) handleEventQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.Events.JoinQR(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(png)
}

func (h *Handlers) handleEventLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	url, err := h.Events.JoinURL(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, JoinURLResponse{EventID: id, URL: url})
}

func (h *Handlers) handleJoinEvent(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.ParticipantID == "" {
		respondError(w, Validation("participant_id is required"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.Events.Join(r.Context(), id, req.ParticipantID); err != nil {
		respondError(w, err)
		return
	}
	ev, err := h.Events.GetEvent(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, ev)
}

func (h *Handlers) handleLeaveEvent(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := h.Events.Leave(r.Context(), chi.URLParam(r, "id"), req.ParticipantID); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "Left event")
}

// ==================== Participants ====================

func (h *Handlers) handleRegisterParticipant(w http.ResponseWriter, r *http.Request) {
	var req ParticipantRegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	p, err := h.Events.RegisterParticipant(req.Name, req.Position)
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, p)
}

func (h *Handlers) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := h.Events.GetParticipant(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, p)
}

func (h *Handlers) handleParticipantProgress(w http.ResponseWriter, r *http.Request) {
	st, err := h.Events.ParticipantProgress(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, st)
}

func (h *Handlers) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req PositionUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	p, err := h.Events.UpdatePosition(chi.URLParam(r, "id"), req.Position)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, p)
}

// ==================== Results ====================

func (h *Handlers) handleListResults(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, err)
		return
	}
	results, err := h.Results.ListResults(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, results)
}

func (h *Handlers) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	routeID, err := parseIDParam(r, "routeID")
	if err != nil {
		respondError(w, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if _, err := h.Routes.GetRoute(r.Context(), routeID); err != nil {
		respondError(w, err)
		return
	}
	board, err := h.Results.Leaderboard(r.Context(), routeID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, board)
}
