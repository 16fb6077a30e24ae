// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	service "github.com/okian/ecoquest/internal/app"
	"github.com/okian/ecoquest/internal/domain/capture"
	"github.com/okian/ecoquest/internal/domain/catalog"
	"github.com/okian/ecoquest/internal/domain/impact"
	"github.com/okian/ecoquest/internal/domain/ledger"
	"github.com/okian/ecoquest/internal/domain/location"
)

// Session is the player session the handlers drive.
type Session interface {
	Actions(ctx context.Context) ([]service.ActionView, error)
	Action(ctx context.Context, id string) (service.ActionView, error)
	SelectAction(ctx context.Context, id string) (catalog.Entry, error)
	Capture(ctx context.Context, id string, opts ...capture.AttemptOption) (capture.Result, error)
	CaptureUpload(ctx context.Context, id string, upload io.Reader) (capture.Result, error)

	Profile() (ledger.Profile, error)
	Impact() (impact.Totals, error)
	SyncStatus() (ledger.SyncStatus, error)
	SyncProfile(ctx context.Context) error

	Location() (location.Reading, error)
	RestartLocation(ctx context.Context) error
}

// Server wires HTTP routes for the player API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	actionsHandler  *ActionsHandler
	profileHandler  *ProfileHandler
	locationHandler *LocationHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(session Session, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := defaultServerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		actionsHandler:  NewActionsHandler(session, cfg.limiter(), cfg.maxUploadBytes),
		profileHandler:  NewProfileHandler(session),
		locationHandler: NewLocationHandler(session),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /actions", MetricsMiddleware(s.actionsHandler.HandleList, "actions"))
	mux.HandleFunc("GET /actions/{id}", MetricsMiddleware(s.actionsHandler.HandleGet, "action"))
	mux.HandleFunc("POST /actions/{id}/select", MetricsMiddleware(s.actionsHandler.HandleSelect, "select"))
	mux.HandleFunc("POST /actions/{id}/capture", MetricsMiddleware(s.actionsHandler.HandleCapture, "capture"))

	mux.HandleFunc("GET /profile", MetricsMiddleware(s.profileHandler.HandleProfile, "profile"))
	mux.HandleFunc("GET /impact", MetricsMiddleware(s.profileHandler.HandleImpact, "impact"))
	mux.HandleFunc("GET /sync", MetricsMiddleware(s.profileHandler.HandleSyncStatus, "sync"))
	mux.HandleFunc("POST /sync", MetricsMiddleware(s.profileHandler.HandleSync, "sync"))

	mux.HandleFunc("GET /location", MetricsMiddleware(s.locationHandler.HandleGet, "location"))
	mux.HandleFunc("POST /location/restart", MetricsMiddleware(s.locationHandler.HandleRestart, "location_restart"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates a session error to its HTTP status.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	writeError(w, status, code, WrapKind(op, kindFor(status), err))
}
