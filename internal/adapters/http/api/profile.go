package api

import "net/http"

// ProfileHandler serves the reward ledger, impact totals and sync state.
type ProfileHandler struct {
	session Session
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(session Session) *ProfileHandler {
	return &ProfileHandler{session: session}
}

// HandleProfile handles GET /profile requests.
func (h *ProfileHandler) HandleProfile(w http.ResponseWriter, _ *http.Request) {
	p, err := h.session.Profile()
	if err != nil {
		writeDomainError(w, "api.profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleImpact handles GET /impact requests.
func (h *ProfileHandler) HandleImpact(w http.ResponseWriter, _ *http.Request) {
	totals, err := h.session.Impact()
	if err != nil {
		writeDomainError(w, "api.impact", err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// HandleSyncStatus handles GET /sync requests.
func (h *ProfileHandler) HandleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	status, err := h.session.SyncStatus()
	if err != nil {
		writeDomainError(w, "api.sync_status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleSync handles POST /sync requests by queueing a full profile push.
func (h *ProfileHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if err := h.session.SyncProfile(r.Context()); err != nil {
		writeDomainError(w, "api.sync", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
