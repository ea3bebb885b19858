// Package http exposes the session engine to UI clients over a small JSON
// API, with a server-sent-events stream carrying reconciled snapshots.
package http

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/access"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/session"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Server is the HTTP surface over a session hub.
type Server struct {
	hub    *session.Hub
	logger *slog.Logger
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithServerLogger configures request-level logging.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates the HTTP surface. The embedded OpenAPI document is
// parsed and validated up front so a drifted spec fails at startup, not in
// production traffic.
func NewServer(hub *session.Hub, opts ...ServerOption) (*Server, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded openapi spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("embedded openapi spec is invalid: %w", err)
	}

	s := &Server{hub: hub, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(openapiSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})

	r.Route("/rooms/{roomID}", func(r chi.Router) {
		r.Post("/sessions", s.handleInitialize)
		r.Route("/sessions/{userID}", func(r chi.Router) {
			r.Delete("/", s.handleTeardown)
			r.Post("/navigate", s.handleNavigate)
			r.Post("/enabled/{stageID}", s.handleToggle)
			r.Get("/report", s.handleReport)
			r.Get("/events", s.handleEvents)
		})
	})

	return r
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Espalier API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

type initializeRequest struct {
	UserID string `json:"user_id"`
}

type navigateRequest struct {
	Stage domain.StageID `json:"stage"`
}

type sessionResponse struct {
	RoomID        string           `json:"room_id"`
	UserID        string           `json:"user_id"`
	CurrentStage  domain.StageID   `json:"current_stage"`
	HostUserID    string           `json:"host_user_id"`
	IsHost        bool             `json:"is_host"`
	VisitedStages []domain.StageID `json:"visited_stages"`
	EnabledStages []domain.StageID `json:"enabled_stages"`
	Version       int64            `json:"version"`
}

type reportResponse struct {
	sessionResponse
	Stages          map[domain.StageID]access.StageAccess `json:"stages"`
	RecommendedNext domain.StageID                        `json:"recommended_next,omitempty"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var body initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		s.writeError(w, http.StatusUnprocessableEntity, errors.New("user_id is required"))
		return
	}

	sess, err := s.hub.Initialize(r.Context(), roomID, body.UserID)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	resp, err := snapshotResponse(sess)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleTeardown(w http.ResponseWriter, r *http.Request) {
	s.hub.Teardown(chi.URLParam(r, "roomID"), chi.URLParam(r, "userID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.hub.Get(chi.URLParam(r, "roomID"), chi.URLParam(r, "userID"))
	if !ok {
		s.writeError(w, http.StatusNotFound, domain.ErrNotInitialized)
		return
	}

	var body navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Stage == "" {
		s.writeError(w, http.StatusUnprocessableEntity, errors.New("stage is required"))
		return
	}

	if err := sess.Navigate(r.Context(), body.Stage); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.hub.Get(chi.URLParam(r, "roomID"), chi.URLParam(r, "userID"))
	if !ok {
		s.writeError(w, http.StatusNotFound, domain.ErrNotInitialized)
		return
	}

	stage := domain.StageID(chi.URLParam(r, "stageID"))
	if err := sess.ToggleEnabled(r.Context(), stage); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.hub.Get(chi.URLParam(r, "roomID"), chi.URLParam(r, "userID"))
	if !ok {
		s.writeError(w, http.StatusNotFound, domain.ErrNotInitialized)
		return
	}

	resp, err := reportFor(sess)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleEvents streams the participant's accessibility report as SSE,
// re-emitting on every reconciled change.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.hub.Get(chi.URLParam(r, "roomID"), chi.URLParam(r, "userID"))
	if !ok {
		s.writeError(w, http.StatusNotFound, domain.ErrNotInitialized)
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	emit := func() bool {
		resp, err := reportFor(sess)
		if err != nil {
			// The room vanished mid-stream; tell the client and stop.
			fmt.Fprintf(w, "event: teardown\ndata: {}\n\n")
			flusher.Flush()
			return false
		}
		payload, err := json.Marshal(resp)
		if err != nil {
			return false
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return true
	}

	if !emit() {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case _, open := <-updates:
			if !open {
				return
			}
			if !emit() {
				return
			}
		}
	}
}

func snapshotResponse(sess *session.Session) (sessionResponse, error) {
	state, err := sess.State()
	if err != nil {
		return sessionResponse{}, err
	}
	return sessionResponse{
		RoomID:        state.RoomID,
		UserID:        sess.UserID(),
		CurrentStage:  state.CurrentStage,
		HostUserID:    state.HostUserID,
		IsHost:        sess.IsHost(),
		VisitedStages: state.VisitedStages,
		EnabledStages: state.EnabledStages(),
		Version:       state.Version,
	}, nil
}

func reportFor(sess *session.Session) (reportResponse, error) {
	base, err := snapshotResponse(sess)
	if err != nil {
		return reportResponse{}, err
	}
	stages, err := sess.Report()
	if err != nil {
		return reportResponse{}, err
	}
	resp := reportResponse{sessionResponse: base, Stages: stages}
	if next, ok := sess.RecommendedNext(); ok {
		resp.RecommendedNext = next
	}
	return resp, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotInitialized):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotAccessible):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
