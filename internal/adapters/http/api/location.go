package api

import "net/http"

// LocationHandler exposes the location gate.
type LocationHandler struct {
	session Session
}

// NewLocationHandler creates a new location handler.
func NewLocationHandler(session Session) *LocationHandler {
	return &LocationHandler{session: session}
}

// HandleGet handles GET /location requests.
func (h *LocationHandler) HandleGet(w http.ResponseWriter, _ *http.Request) {
	reading, err := h.session.Location()
	if err != nil {
		writeDomainError(w, "api.location", err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// HandleRestart handles POST /location/restart requests.
func (h *LocationHandler) HandleRestart(w http.ResponseWriter, r *http.Request) {
	if err := h.session.RestartLocation(r.Context()); err != nil {
		writeDomainError(w, "api.location_restart", err)
		return
	}
	reading, err := h.session.Location()
	if err != nil {
		writeDomainError(w, "api.location_restart", err)
		return
	}
	writeJSON(w, http.StatusAccepted, reading)
}
