package api

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/okian/ecoquest/internal/domain/capture"
)

// photoField is the multipart field carrying an uploaded picture.
const photoField = "photo"

// ActionsHandler serves the catalog and runs captures.
type ActionsHandler struct {
	session        Session
	limiter        *rate.Limiter
	maxUploadBytes int64
}

// NewActionsHandler creates a new actions handler. A nil limiter disables rate limiting.
func NewActionsHandler(session Session, limiter *rate.Limiter, maxUploadBytes int64) *ActionsHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &ActionsHandler{session: session, limiter: limiter, maxUploadBytes: maxUploadBytes}
}

type selectResponse struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	RequiresLocation bool   `json:"requires_location"`
}

// HandleList handles GET /actions requests.
func (h *ActionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	views, err := h.session.Actions(r.Context())
	if err != nil {
		writeDomainError(w, "api.list_actions", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleGet handles GET /actions/{id} requests.
func (h *ActionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_action"
	id, ok := actionID(w, r, op)
	if !ok {
		return
	}
	view, err := h.session.Action(r.Context(), id)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSelect handles POST /actions/{id}/select requests.
func (h *ActionsHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	const op = "api.select_action"
	id, ok := actionID(w, r, op)
	if !ok {
		return
	}
	e, err := h.session.SelectAction(r.Context(), id)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, selectResponse{ID: e.ID, Title: e.Title, RequiresLocation: e.RequiresLocation})
}

// HandleCapture handles POST /actions/{id}/capture requests. A multipart body
// with a "photo" file is used as the picture; otherwise the device camera is.
func (h *ActionsHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	const op = "api.capture"
	id, ok := actionID(w, r, op)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate_limited", NewKind(op, ErrRateLimited))
		return
	}

	var (
		res capture.Result
		err error
	)
	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		file, _, ferr := r.FormFile(photoField)
		switch {
		case ferr == nil:
			defer file.Close() //nolint:errcheck // read-only upload
			res, err = h.session.CaptureUpload(r.Context(), id, file)
		case errors.Is(ferr, http.ErrMissingFile):
			res, err = h.session.Capture(r.Context(), id)
		default:
			var tooLarge *http.MaxBytesError
			if errors.As(ferr, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "too_large", WrapKind(op, ErrTooLarge, ferr))
				return
			}
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, ferr))
			return
		}
	} else {
		res, err = h.session.Capture(r.Context(), id)
	}
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func actionID(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing action id")))
		return "", false
	}
	return id, true
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
