package http

import (
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"emergency-dispatch-service/internal/app"
	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/observability/metrics"
	"emergency-dispatch-service/internal/session"
)

//go:embed static/index.html
var dashboardPage []byte

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{
		app: application,
		log: logging.WithComponent("http"),
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument(metrics.DefaultMetrics))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(dashboardPage)
	})

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("starting"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/sessions", h.listSessions)
		r.Post("/sessions", h.startSession)
		r.Delete("/sessions/{id}", h.stopSession)
		r.Get("/ws", application.Hub.ServeHTTP)
	})

	return r
}

type handlers struct {
	app *app.Application
	log zerolog.Logger
}

type startRequest struct {
	ID string `json:"id"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"startedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	s, err := h.app.StartCall(r.Context(), req.ID)
	switch {
	case errors.Is(err, session.ErrSessionAlreadyActive):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	case err != nil:
		h.log.Error().Err(err).Str("requestId", middleware.GetReqID(r.Context())).Msg("Failed to start call")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		ID:        s.ID(),
		State:     s.State().String(),
		StartedAt: s.StartedAt(),
	})
}

// stopSession is idempotent: an unknown or finished call is still 204.
func (h *handlers) stopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.app.EndCall(id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listSessions(w http.ResponseWriter, _ *http.Request) {
	infos := h.app.Registry.List()
	out := make([]sessionResponse, 0, len(infos))
	for _, in := range infos {
		out = append(out, sessionResponse{ID: in.ID, State: in.State, StartedAt: in.StartedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// instrument records request counts and latency by route pattern.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordHTTPRequest(route, status, time.Since(start).Seconds())
		})
	}
}
