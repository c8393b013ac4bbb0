package httpapi

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salah0eldin/autonmous-iot-car/internal/control"
	"github.com/salah0eldin/autonmous-iot-car/internal/journal"
	"github.com/salah0eldin/autonmous-iot-car/internal/layout"
)

//go:embed static
var staticFiles embed.FS

const applyTimeout = 2 * time.Second

type Options struct {
	Layout *layout.Layout
	// Session backs the REST control API. It must already be running.
	Session *control.Session
	// Control is the WebSocket session handler.
	Control http.Handler
	// Journal may be nil when the journal is disabled.
	Journal *journal.Repo
	// ControlMiddleware wraps the REST control routes, e.g. rate limiting.
	ControlMiddleware []func(http.Handler) http.Handler
}

type Server struct {
	opts Options
}

func NewServer(opts Options) *Server {
	return &Server{opts: opts}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	static, _ := fs.Sub(staticFiles, "static")
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, static, "index.html")
	})
	if s.opts.Control != nil {
		r.Handle("/ws/control", s.opts.Control)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/layout", s.handleLayout)
		r.Get("/commands", s.handleListCommands)
		r.Route("/control", func(r chi.Router) {
			r.Use(s.opts.ControlMiddleware...)
			r.Get("/state", s.handleState)
			r.Post("/press", s.handlePress)
			r.Post("/release", s.handleRelease)
			r.Post("/pointer-cancel", s.handlePointerCancel)
			r.Post("/speed", s.handleSpeed)
			r.Post("/auto-home", s.handleToggleAutoHome)
			r.Post("/go-home", s.handleGoHome)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}

func (s *Server) handleLayout(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Layout == nil {
		writeError(w, http.StatusServiceUnavailable, "layout not loaded")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Layout)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.opts.Session == nil {
		writeError(w, http.StatusServiceUnavailable, "control session unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), applyTimeout)
	defer cancel()
	st, err := s.opts.Session.Snapshot(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type pressRequest struct {
	Button  string `json:"button"`
	Pointer int    `json:"pointer"`
}

type speedRequest struct {
	Car   *int `json:"car"`
	Steer *int `json:"steer"`
}

func (s *Server) handlePress(w http.ResponseWriter, r *http.Request) {
	var req pressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Button) == "" {
		writeError(w, http.StatusBadRequest, "button is required")
		return
	}
	s.apply(w, r, control.Event{Type: control.EventPress, Button: req.Button, Pointer: req.Pointer})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req pressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Button) == "" {
		writeError(w, http.StatusBadRequest, "button is required")
		return
	}
	s.apply(w, r, control.Event{Type: control.EventRelease, Button: req.Button})
}

func (s *Server) handlePointerCancel(w http.ResponseWriter, r *http.Request) {
	var req pressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.apply(w, r, control.Event{Type: control.EventPointerCancel, Pointer: req.Pointer})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Car == nil && req.Steer == nil {
		writeError(w, http.StatusBadRequest, "car or steer is required")
		return
	}
	s.apply(w, r, control.Event{Type: control.EventSpeed, Car: req.Car, Steer: req.Steer})
}

func (s *Server) handleToggleAutoHome(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, control.Event{Type: control.EventToggleAutoHome})
}

func (s *Server) handleGoHome(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, control.Event{Type: control.EventGoHome})
}

func (s *Server) apply(w http.ResponseWriter, r *http.Request, ev control.Event) {
	if s.opts.Session == nil {
		writeError(w, http.StatusServiceUnavailable, "control session unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), applyTimeout)
	defer cancel()
	st, err := s.opts.Session.Apply(ctx, ev)
	switch {
	case errors.Is(err, control.ErrUnknownButton), errors.Is(err, control.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, st)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		writeError(w, http.StatusNotFound, "command journal disabled")
		return
	}
	q := r.URL.Query()
	limit := 100
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	cursor, err := journal.DecodeCursor(q.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cursor")
		return
	}
	page, err := s.opts.Journal.List(r.Context(), strings.TrimSpace(q.Get("session")), limit, cursor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list commands")
		return
	}
	if page.Entries == nil {
		page.Entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, page)
}
